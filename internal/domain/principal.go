package domain

// AuthMethod identifies how a principal authenticated.
type AuthMethod string

const (
	AuthMethodJWT AuthMethod = "jwt"
)

// Principal is the authenticated caller attached to a request.
type Principal struct {
	ID         string
	Subject    string
	Username   string
	Email      string
	Roles      []string
	Scopes     []string
	AuthMethod AuthMethod
}

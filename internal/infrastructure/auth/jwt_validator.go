// Package auth validates bearer tokens against the identity provider's
// JWKS endpoint.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/ventureforge/pipeline-server/internal/domain"
)

const (
	defaultJWKSRefreshInterval = time.Hour
	jwksInitialRetryInterval   = time.Second
	jwksInitialRetryBackoff    = 10 * time.Second
	jwksInitialRetryTimeout    = 2 * time.Minute
	defaultClockSkew           = 30 * time.Second
)

// JWTValidator validates RS256 tokens with keys fetched from a JWKS URL.
type JWTValidator struct {
	issuer          string
	audience        string
	jwksURL         string
	refreshInterval time.Duration
	clockSkew       time.Duration
	logger          zerolog.Logger
	jwks            atomic.Pointer[keyfunc.JWKS]
	lastErr         atomic.Value // stores lastErrWrap
}

// lastErrWrap avoids storing bare nil in atomic.Value.
type lastErrWrap struct{ Err error }

// NewJWTValidator fetches the JWKS and returns a ready validator. The
// initial fetch retries with backoff so a slow identity provider at boot
// does not kill the server.
func NewJWTValidator(ctx context.Context, jwksURL, issuer, audience string, refreshInterval, clockSkew time.Duration, logger zerolog.Logger) (*JWTValidator, error) {
	if jwksURL == "" {
		return nil, errors.New("jwks url is required")
	}
	if refreshInterval <= 0 {
		refreshInterval = defaultJWKSRefreshInterval
	}
	if clockSkew <= 0 {
		clockSkew = defaultClockSkew
	}

	v := &JWTValidator{
		issuer:          issuer,
		audience:        audience,
		jwksURL:         jwksURL,
		refreshInterval: refreshInterval,
		clockSkew:       clockSkew,
		logger:          logger,
	}
	v.lastErr.Store(lastErrWrap{Err: nil})

	if err := v.initJWKS(ctx); err != nil {
		return nil, err
	}
	return v, nil
}

func (v *JWTValidator) initJWKS(ctx context.Context) error {
	options := keyfunc.Options{
		Ctx:               ctx,
		RefreshInterval:   v.refreshInterval,
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			v.lastErr.Store(lastErrWrap{Err: err})
			if err != nil {
				v.logger.Error().Err(err).Msg("jwks refresh failed")
			}
		},
	}

	backoff := jwksInitialRetryInterval
	deadline := time.Now().Add(jwksInitialRetryTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}

	for attempt := 1; ; attempt++ {
		jwks, err := keyfunc.Get(v.jwksURL, options)
		if err == nil {
			v.lastErr.Store(lastErrWrap{Err: nil})
			v.jwks.Store(jwks)
			return nil
		}

		v.logger.Warn().
			Err(err).
			Str("jwks_url", v.jwksURL).
			Int("attempt", attempt).
			Msg("initial jwks fetch failed, retrying")

		if time.Now().After(deadline) {
			return fmt.Errorf("fetch jwks: %w", err)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("fetch jwks: %w", ctx.Err())
		case <-time.After(backoff):
		}

		if next := backoff * 2; next <= jwksInitialRetryBackoff {
			backoff = next
		} else {
			backoff = jwksInitialRetryBackoff
		}
	}
}

// Validate parses and validates the given JWT, returning the principal.
func (v *JWTValidator) Validate(_ context.Context, rawToken string) (*domain.Principal, error) {
	jwks := v.jwks.Load()
	if jwks == nil {
		return nil, errors.New("jwks not initialised")
	}

	parser := jwt.NewParser(jwt.WithValidMethods([]string{"RS256"}))
	token, err := parser.ParseWithClaims(rawToken, jwt.MapClaims{}, jwks.Keyfunc)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid claims")
	}

	iss, _ := mapClaims["iss"].(string)
	if v.issuer != "" && iss != v.issuer {
		return nil, fmt.Errorf("issuer mismatch %s", iss)
	}

	if v.audience != "" {
		if err := v.checkAudience(mapClaims["aud"]); err != nil {
			return nil, err
		}
	}

	sub, _ := mapClaims["sub"].(string)
	if sub == "" {
		return nil, errors.New("sub claim missing")
	}

	expires := jwtNumericTime(mapClaims["exp"])
	notBefore := jwtNumericTime(mapClaims["nbf"])
	now := time.Now().UTC()
	if !expires.IsZero() && now.After(expires.Add(v.clockSkew)) {
		return nil, errors.New("token expired")
	}
	if !notBefore.IsZero() && now.Add(v.clockSkew).Before(notBefore) {
		return nil, errors.New("token not yet valid")
	}

	email, _ := mapClaims["email"].(string)
	username, _ := mapClaims["preferred_username"].(string)

	principal := &domain.Principal{
		ID:         sub,
		Subject:    sub,
		Username:   username,
		Email:      email,
		AuthMethod: domain.AuthMethodJWT,
	}
	if realmAccess, ok := mapClaims["realm_access"].(map[string]any); ok {
		if rawRoles, ok := realmAccess["roles"].([]interface{}); ok {
			for _, role := range rawRoles {
				if s, ok := role.(string); ok {
					principal.Roles = append(principal.Roles, s)
				}
			}
		}
	}
	if scopeStr, ok := mapClaims["scope"].(string); ok && scopeStr != "" {
		principal.Scopes = strings.Split(scopeStr, " ")
	}
	return principal, nil
}

func (v *JWTValidator) checkAudience(audRaw any) error {
	switch val := audRaw.(type) {
	case nil:
		return errors.New("aud claim missing")
	case string:
		if val != v.audience {
			return errors.New("audience mismatch")
		}
	case []interface{}:
		for _, item := range val {
			if s, ok := item.(string); ok && s == v.audience {
				return nil
			}
		}
		return errors.New("audience mismatch")
	default:
		return fmt.Errorf("aud claim unsupported type %T", val)
	}
	return nil
}

// Ready indicates whether the JWKS has been successfully loaded.
func (v *JWTValidator) Ready() bool {
	if v.jwks.Load() == nil {
		return false
	}
	if val := v.lastErr.Load(); val != nil {
		if wrap, ok := val.(lastErrWrap); ok && wrap.Err != nil {
			return false
		}
	}
	return true
}

func jwtNumericTime(value any) time.Time {
	switch timeValue := value.(type) {
	case float64:
		return time.Unix(int64(timeValue), 0).UTC()
	case int64:
		return time.Unix(timeValue, 0).UTC()
	case jwt.NumericDate:
		return timeValue.Time.UTC()
	}
	return time.Time{}
}

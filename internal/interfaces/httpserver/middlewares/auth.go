package middlewares

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/ventureforge/pipeline-server/internal/domain"
	"github.com/ventureforge/pipeline-server/internal/utils/platformerrors"
)

const principalContextKey = "principal"

// TokenValidator validates a raw bearer token and returns the principal.
type TokenValidator interface {
	Validate(ctx context.Context, rawToken string) (*domain.Principal, error)
}

// AuthMiddleware validates JWT bearer tokens issued by the identity
// provider and attaches the principal to the request.
func AuthMiddleware(validator TokenValidator, logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			logger.Warn().
				Str("path", c.FullPath()).
				Str("method", c.Request.Method).
				Msg("unauthenticated request")
			abortUnauthorized(c, logger, errors.New("authentication required"))
			return
		}

		principal, err := validator.Validate(c.Request.Context(), token)
		if err != nil {
			logger.Warn().Err(err).Msg("jwt validation failed")
			abortUnauthorized(c, logger, errors.New("invalid or expired token"))
			return
		}

		setPrincipal(c, *principal)
		c.Next()
	}
}

// PrincipalFromContext returns the authenticated principal, if any.
func PrincipalFromContext(c *gin.Context) (domain.Principal, bool) {
	val, ok := c.Get(principalContextKey)
	if !ok {
		return domain.Principal{}, false
	}
	principal, ok := val.(domain.Principal)
	return principal, ok
}

func setPrincipal(c *gin.Context, principal domain.Principal) {
	c.Set(principalContextKey, principal)
	c.Set("user_id", principal.ID)
	if principal.Email != "" {
		c.Set("user_email", principal.Email)
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func abortUnauthorized(c *gin.Context, logger zerolog.Logger, err error) {
	platformErr := platformerrors.NewError(
		c.Request.Context(),
		platformerrors.LayerRoute,
		platformerrors.ErrorTypeUnauthorized,
		err.Error(),
		nil,
		"",
	)
	platformerrors.WriteHTTPError(c, platformErr, logger)
}

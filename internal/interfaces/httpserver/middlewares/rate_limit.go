package middlewares

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/ventureforge/pipeline-server/internal/infrastructure/metrics"
	"github.com/ventureforge/pipeline-server/internal/infrastructure/ratelimit"
	"github.com/ventureforge/pipeline-server/internal/utils/platformerrors"
)

// RateLimitMiddleware enforces the shared per-user request limit. It runs
// after auth so the key is the principal, never the IP.
func RateLimitMiddleware(limiter *ratelimit.Limiter, logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			c.Next()
			return
		}

		result, err := limiter.Allow(c.Request.Context(), principal.ID)
		if err != nil {
			platformerrors.WriteError(c, err, logger)
			return
		}

		if !result.Allowed {
			metrics.RateLimitRejectionsTotal.Inc()
			retryAfter := int(result.RetryAfter.Seconds()) + 1
			platformErr := platformerrors.NewErrorWithContext(
				c.Request.Context(),
				platformerrors.LayerRoute,
				platformerrors.ErrorTypeRateLimited,
				"too many requests, slow down",
				nil,
				"",
				map[string]any{"retry_after_seconds": retryAfter},
			)
			platformerrors.WriteHTTPError(c, platformErr, logger)
			return
		}

		c.Header("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
		c.Next()
	}
}

package v1

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/ventureforge/pipeline-server/internal/infrastructure/ratelimit"
	"github.com/ventureforge/pipeline-server/internal/interfaces/httpserver/handlers/artifacthandler"
	"github.com/ventureforge/pipeline-server/internal/interfaces/httpserver/handlers/chathandler"
	"github.com/ventureforge/pipeline-server/internal/interfaces/httpserver/handlers/messagehandler"
	"github.com/ventureforge/pipeline-server/internal/interfaces/httpserver/handlers/projecthandler"
	"github.com/ventureforge/pipeline-server/internal/interfaces/httpserver/middlewares"
)

// V1Route binds the versioned API surface.
type V1Route struct {
	chat      *chathandler.Handler
	projects  *projecthandler.Handler
	artifacts *artifacthandler.Handler
	messages  *messagehandler.Handler
	limiter   *ratelimit.Limiter
	logger    zerolog.Logger
}

func NewV1Route(
	chat *chathandler.Handler,
	projects *projecthandler.Handler,
	artifacts *artifacthandler.Handler,
	messages *messagehandler.Handler,
	limiter *ratelimit.Limiter,
	logger zerolog.Logger,
) *V1Route {
	return &V1Route{
		chat:      chat,
		projects:  projects,
		artifacts: artifacts,
		messages:  messages,
		limiter:   limiter,
		logger:    logger,
	}
}

// RegisterRouter mounts all v1 endpoints on the given (already
// authenticated) router group.
func (r *V1Route) RegisterRouter(router gin.IRouter) {
	group := router.Group("/v1")

	// Chat is the only rate-limited surface; artifact review actions are
	// cheap and unlimited.
	group.POST("/chat", middlewares.RateLimitMiddleware(r.limiter, r.logger), r.chat.Chat)

	projects := group.Group("/projects")
	projects.POST("", r.projects.Create)
	projects.GET("", r.projects.List)
	projects.GET("/:project_id", r.projects.Get)

	artifacts := projects.Group("/:project_id/artifacts")
	artifacts.GET("", r.artifacts.List)
	artifacts.POST("", r.artifacts.Generate)
	artifacts.POST("/:stage/approve", r.artifacts.Approve)
	artifacts.PUT("/:stage", r.artifacts.Edit)
	artifacts.POST("/:stage/restore", r.artifacts.Restore)
	artifacts.GET("/:stage/versions", r.artifacts.Versions)

	conversations := group.Group("/conversations")
	conversations.POST("/:conversation_id/messages", r.messages.Append)
	conversations.GET("/:conversation_id/messages", r.messages.List)
}

// Package messagehandler exposes conversation message persistence.
package messagehandler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/ventureforge/pipeline-server/internal/domain/chat"
	"github.com/ventureforge/pipeline-server/internal/interfaces/httpserver/middlewares"
	"github.com/ventureforge/pipeline-server/internal/utils/platformerrors"
)

// Handler serves the conversation message endpoints.
type Handler struct {
	messages chat.Repository
	logger   zerolog.Logger
}

func NewHandler(messages chat.Repository, logger zerolog.Logger) *Handler {
	return &Handler{messages: messages, logger: logger}
}

// AppendRequest persists one conversation turn. ID is the client-generated
// idempotency key; retrying the same ID is a no-op success.
type AppendRequest struct {
	ID       string `json:"id" binding:"required"`
	Role     string `json:"role" binding:"required"`
	Content  string `json:"content" binding:"required"`
	Sequence int64  `json:"sequence"`
}

// Append stores a message idempotently.
func (h *Handler) Append(c *gin.Context) {
	ctx := c.Request.Context()
	if _, ok := middlewares.PrincipalFromContext(c); !ok {
		platformerrors.WriteHTTPError(c, platformerrors.NewError(ctx, platformerrors.LayerHandler,
			platformerrors.ErrorTypeUnauthorized, "authentication required", nil, ""), h.logger)
		return
	}

	var req AppendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		platformerrors.WriteHTTPError(c, platformerrors.NewError(ctx, platformerrors.LayerHandler,
			platformerrors.ErrorTypeValidation, "invalid request body: "+err.Error(), err, ""), h.logger)
		return
	}
	if !chat.Role(req.Role).IsValid() {
		platformerrors.WriteHTTPError(c, platformerrors.NewError(ctx, platformerrors.LayerHandler,
			platformerrors.ErrorTypeValidation, "unknown role: "+req.Role, nil, ""), h.logger)
		return
	}

	msg := &chat.Message{
		PublicID:       req.ID,
		ConversationID: c.Param("conversation_id"),
		Role:           chat.Role(req.Role),
		Content:        req.Content,
		Sequence:       req.Sequence,
		CreatedAt:      time.Now().UTC(),
	}
	if err := h.messages.Append(ctx, msg); err != nil {
		platformerrors.WriteError(c, err, h.logger)
		return
	}
	c.JSON(http.StatusOK, msg)
}

// List returns the conversation history in sequence order.
func (h *Handler) List(c *gin.Context) {
	ctx := c.Request.Context()
	if _, ok := middlewares.PrincipalFromContext(c); !ok {
		platformerrors.WriteHTTPError(c, platformerrors.NewError(ctx, platformerrors.LayerHandler,
			platformerrors.ErrorTypeUnauthorized, "authentication required", nil, ""), h.logger)
		return
	}

	messages, err := h.messages.ListByConversation(ctx, c.Param("conversation_id"))
	if err != nil {
		platformerrors.WriteError(c, err, h.logger)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// Package projecthandler exposes project CRUD endpoints.
package projecthandler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/ventureforge/pipeline-server/internal/domain/project"
	"github.com/ventureforge/pipeline-server/internal/interfaces/httpserver/middlewares"
	"github.com/ventureforge/pipeline-server/internal/utils/idgen"
	"github.com/ventureforge/pipeline-server/internal/utils/platformerrors"
)

// Handler serves the project endpoints.
type Handler struct {
	projects project.Repository
	logger   zerolog.Logger
}

func NewHandler(projects project.Repository, logger zerolog.Logger) *Handler {
	return &Handler{projects: projects, logger: logger}
}

// CreateRequest names a new project.
type CreateRequest struct {
	Name string `json:"name" binding:"required"`
}

// Create registers a new venture project for the caller.
func (h *Handler) Create(c *gin.Context) {
	ctx := c.Request.Context()
	principal, ok := middlewares.PrincipalFromContext(c)
	if !ok {
		platformerrors.WriteHTTPError(c, platformerrors.NewError(ctx, platformerrors.LayerHandler,
			platformerrors.ErrorTypeUnauthorized, "authentication required", nil, ""), h.logger)
		return
	}

	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		platformerrors.WriteHTTPError(c, platformerrors.NewError(ctx, platformerrors.LayerHandler,
			platformerrors.ErrorTypeValidation, "invalid request body: "+err.Error(), err, ""), h.logger)
		return
	}

	id, err := idgen.GenerateSecureID("proj", 16)
	if err != nil {
		platformerrors.WriteError(c, platformerrors.AsError(ctx, platformerrors.LayerHandler, err,
			"failed to generate project id"), h.logger)
		return
	}

	now := time.Now().UTC()
	created := &project.Project{
		PublicID:  id,
		UserID:    principal.ID,
		Name:      req.Name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.projects.Create(ctx, created); err != nil {
		platformerrors.WriteError(c, err, h.logger)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// List returns the caller's projects, newest first.
func (h *Handler) List(c *gin.Context) {
	ctx := c.Request.Context()
	principal, ok := middlewares.PrincipalFromContext(c)
	if !ok {
		platformerrors.WriteHTTPError(c, platformerrors.NewError(ctx, platformerrors.LayerHandler,
			platformerrors.ErrorTypeUnauthorized, "authentication required", nil, ""), h.logger)
		return
	}

	projects, err := h.projects.ListByUser(ctx, principal.ID)
	if err != nil {
		platformerrors.WriteError(c, err, h.logger)
		return
	}
	c.JSON(http.StatusOK, gin.H{"projects": projects})
}

// Get returns one project if the caller owns it.
func (h *Handler) Get(c *gin.Context) {
	ctx := c.Request.Context()
	principal, ok := middlewares.PrincipalFromContext(c)
	if !ok {
		platformerrors.WriteHTTPError(c, platformerrors.NewError(ctx, platformerrors.LayerHandler,
			platformerrors.ErrorTypeUnauthorized, "authentication required", nil, ""), h.logger)
		return
	}

	proj, err := h.projects.FindByPublicID(ctx, c.Param("project_id"))
	if err != nil {
		platformerrors.WriteError(c, err, h.logger)
		return
	}
	if proj == nil {
		platformerrors.WriteHTTPError(c, platformerrors.NewError(ctx, platformerrors.LayerHandler,
			platformerrors.ErrorTypeNotFound, "project not found", nil, ""), h.logger)
		return
	}
	if proj.UserID != principal.ID {
		platformerrors.WriteHTTPError(c, platformerrors.NewError(ctx, platformerrors.LayerHandler,
			platformerrors.ErrorTypeForbidden, "project belongs to another user", nil, ""), h.logger)
		return
	}
	c.JSON(http.StatusOK, proj)
}

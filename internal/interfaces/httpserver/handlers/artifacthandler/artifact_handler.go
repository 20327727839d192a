// Package artifacthandler exposes the artifact lifecycle endpoints.
package artifacthandler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/ventureforge/pipeline-server/internal/domain"
	"github.com/ventureforge/pipeline-server/internal/domain/artifact"
	"github.com/ventureforge/pipeline-server/internal/domain/project"
	"github.com/ventureforge/pipeline-server/internal/infrastructure/metrics"
	"github.com/ventureforge/pipeline-server/internal/interfaces/httpserver/middlewares"
	"github.com/ventureforge/pipeline-server/internal/utils/platformerrors"
)

// Handler serves the artifact endpoints.
type Handler struct {
	artifacts *artifact.Service
	projects  project.Repository
	logger    zerolog.Logger
}

func NewHandler(artifacts *artifact.Service, projects project.Repository, logger zerolog.Logger) *Handler {
	return &Handler{artifacts: artifacts, projects: projects, logger: logger}
}

// GenerateRequest applies a model-produced artifact for the next stage.
type GenerateRequest struct {
	Type    string `json:"type" binding:"required"`
	Title   string `json:"title"`
	Content string `json:"content" binding:"required"`
}

// EditRequest replaces an artifact's content.
type EditRequest struct {
	Title   string `json:"title"`
	Content string `json:"content" binding:"required"`
}

// RestoreRequest rolls an artifact back to a stored version.
type RestoreRequest struct {
	Version int `json:"version" binding:"required"`
}

// List returns every artifact for the project.
func (h *Handler) List(c *gin.Context) {
	if _, ok := h.authorizeProject(c); !ok {
		return
	}
	artifacts, err := h.artifacts.ListByProject(c.Request.Context(), c.Param("project_id"))
	if err != nil {
		platformerrors.WriteError(c, err, h.logger)
		return
	}
	c.JSON(http.StatusOK, gin.H{"artifacts": artifacts})
}

// Generate stores a generated artifact for the next required stage.
func (h *Handler) Generate(c *gin.Context) {
	if _, ok := h.authorizeProject(c); !ok {
		return
	}
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	created, err := h.artifacts.Generate(c.Request.Context(), artifact.GenerateInput{
		ProjectID: c.Param("project_id"),
		Stage:     artifact.Stage(req.Type),
		Title:     req.Title,
		Content:   req.Content,
	})
	if err != nil {
		platformerrors.WriteError(c, err, h.logger)
		return
	}
	metrics.ArtifactTransitionsTotal.WithLabelValues(string(created.Type), "generated").Inc()
	c.JSON(http.StatusOK, created)
}

// Approve moves the stage's draft artifact to approved.
func (h *Handler) Approve(c *gin.Context) {
	principal, ok := h.authorizeProject(c)
	if !ok {
		return
	}
	stage := artifact.Stage(c.Param("stage"))
	approved, err := h.artifacts.Approve(c.Request.Context(), c.Param("project_id"), stage, principal.ID)
	if err != nil {
		platformerrors.WriteError(c, err, h.logger)
		return
	}
	metrics.ArtifactTransitionsTotal.WithLabelValues(string(stage), "approved").Inc()
	c.JSON(http.StatusOK, approved)
}

// Edit replaces the artifact content and resets it to draft.
func (h *Handler) Edit(c *gin.Context) {
	if _, ok := h.authorizeProject(c); !ok {
		return
	}
	var req EditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	stage := artifact.Stage(c.Param("stage"))
	edited, err := h.artifacts.Edit(c.Request.Context(), c.Param("project_id"), stage, req.Title, req.Content)
	if err != nil {
		platformerrors.WriteError(c, err, h.logger)
		return
	}
	metrics.ArtifactTransitionsTotal.WithLabelValues(string(stage), "edited").Inc()
	c.JSON(http.StatusOK, edited)
}

// Restore rolls the artifact back to a stored version.
func (h *Handler) Restore(c *gin.Context) {
	if _, ok := h.authorizeProject(c); !ok {
		return
	}
	var req RestoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	stage := artifact.Stage(c.Param("stage"))
	restored, err := h.artifacts.RestoreVersion(c.Request.Context(), c.Param("project_id"), stage, req.Version)
	if err != nil {
		platformerrors.WriteError(c, err, h.logger)
		return
	}
	metrics.ArtifactTransitionsTotal.WithLabelValues(string(stage), "restored").Inc()
	c.JSON(http.StatusOK, restored)
}

// Versions lists the snapshot history for a stage, newest first.
func (h *Handler) Versions(c *gin.Context) {
	if _, ok := h.authorizeProject(c); !ok {
		return
	}
	stage := artifact.Stage(c.Param("stage"))
	versions, err := h.artifacts.ListVersions(c.Request.Context(), c.Param("project_id"), stage)
	if err != nil {
		platformerrors.WriteError(c, err, h.logger)
		return
	}
	c.JSON(http.StatusOK, gin.H{"versions": versions})
}

func (h *Handler) authorizeProject(c *gin.Context) (domain.Principal, bool) {
	ctx := c.Request.Context()
	principal, ok := middlewares.PrincipalFromContext(c)
	if !ok {
		platformerrors.WriteHTTPError(c, platformerrors.NewError(ctx, platformerrors.LayerHandler,
			platformerrors.ErrorTypeUnauthorized, "authentication required", nil, ""), h.logger)
		return domain.Principal{}, false
	}

	proj, err := h.projects.FindByPublicID(ctx, c.Param("project_id"))
	if err != nil {
		platformerrors.WriteError(c, err, h.logger)
		return domain.Principal{}, false
	}
	if proj == nil {
		platformerrors.WriteHTTPError(c, platformerrors.NewError(ctx, platformerrors.LayerHandler,
			platformerrors.ErrorTypeNotFound, "project not found", nil, ""), h.logger)
		return domain.Principal{}, false
	}
	if proj.UserID != principal.ID {
		platformerrors.WriteHTTPError(c, platformerrors.NewError(ctx, platformerrors.LayerHandler,
			platformerrors.ErrorTypeForbidden, "project belongs to another user", nil, ""), h.logger)
		return domain.Principal{}, false
	}
	return principal, true
}

func (h *Handler) badRequest(c *gin.Context, err error) {
	platformerrors.WriteHTTPError(c, platformerrors.NewError(c.Request.Context(), platformerrors.LayerHandler,
		platformerrors.ErrorTypeValidation, "invalid request body: "+err.Error(), err, ""), h.logger)
}

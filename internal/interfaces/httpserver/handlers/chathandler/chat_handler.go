// Package chathandler implements the streaming chat gateway.
package chathandler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"github.com/shopspring/decimal"

	"github.com/ventureforge/pipeline-server/internal/domain/artifact"
	"github.com/ventureforge/pipeline-server/internal/domain/billing"
	"github.com/ventureforge/pipeline-server/internal/domain/cache"
	domainchat "github.com/ventureforge/pipeline-server/internal/domain/chat"
	"github.com/ventureforge/pipeline-server/internal/domain/envelope"
	"github.com/ventureforge/pipeline-server/internal/domain/pipeline"
	"github.com/ventureforge/pipeline-server/internal/domain/project"
	"github.com/ventureforge/pipeline-server/internal/domain/prompt"
	"github.com/ventureforge/pipeline-server/internal/infrastructure/metrics"
	"github.com/ventureforge/pipeline-server/internal/interfaces/httpserver/middlewares"
	chatrequests "github.com/ventureforge/pipeline-server/internal/interfaces/httpserver/requests/chat"
	chatclient "github.com/ventureforge/pipeline-server/internal/utils/httpclients/chat"
	"github.com/ventureforge/pipeline-server/internal/utils/platformerrors"
)

const (
	cacheStatusHit  = "HIT"
	cacheStatusMiss = "MISS"
)

// Config carries the gateway's tunables.
type Config struct {
	Model           string
	MaxMessages     int
	MaxMessageChars int
	InitialCredits  int64
	CacheTTL        time.Duration
	ReplayChunk     int
	ReplayDelay     time.Duration
}

// Handler serves POST /v1/chat: it authenticates, limits, debits, builds
// the pipeline-aware prompt, then streams either a cached replay or the
// live upstream completion.
type Handler struct {
	cfg       Config
	client    *chatclient.CompletionClient
	cache     cache.Store
	credits   billing.CreditStore
	usage     billing.UsageRecorder
	audit     domainchat.AuditRecorder
	projects  project.Repository
	artifacts *artifact.Service
	contexts  *pipeline.ContextBuilder
	logger    zerolog.Logger
}

func NewHandler(
	cfg Config,
	client *chatclient.CompletionClient,
	cacheStore cache.Store,
	credits billing.CreditStore,
	usage billing.UsageRecorder,
	audit domainchat.AuditRecorder,
	projects project.Repository,
	artifacts *artifact.Service,
	contexts *pipeline.ContextBuilder,
	logger zerolog.Logger,
) *Handler {
	return &Handler{
		cfg:       cfg,
		client:    client,
		cache:     cacheStore,
		credits:   credits,
		usage:     usage,
		audit:     audit,
		projects:  projects,
		artifacts: artifacts,
		contexts:  contexts,
		logger:    logger,
	}
}

// Chat handles one streaming turn.
func (h *Handler) Chat(c *gin.Context) {
	start := time.Now()
	ctx := c.Request.Context()

	principal, ok := middlewares.PrincipalFromContext(c)
	if !ok {
		platformerrors.WriteHTTPError(c, platformerrors.NewError(ctx, platformerrors.LayerHandler,
			platformerrors.ErrorTypeUnauthorized, "authentication required", nil, ""), h.logger)
		return
	}

	var req chatrequests.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		platformerrors.WriteHTTPError(c, platformerrors.NewError(ctx, platformerrors.LayerHandler,
			platformerrors.ErrorTypeValidation, "invalid request body: "+err.Error(), err, ""), h.logger)
		return
	}
	if err := req.Validate(ctx, h.cfg.MaxMessages, h.cfg.MaxMessageChars); err != nil {
		platformerrors.WriteError(c, err, h.logger)
		return
	}

	// A project is optional; without one the turn is plain chat.
	if req.ProjectID != "" {
		proj, err := h.projects.FindByPublicID(ctx, req.ProjectID)
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
	}

	if err := h.credits.EnsureAccount(ctx, principal.ID, h.cfg.InitialCredits); err != nil {
		platformerrors.WriteError(c, err, h.logger)
		return
	}
	if err := h.credits.Consume(ctx, principal.ID); err != nil {
		platformerrors.WriteError(c, err, h.logger)
		return
	}
	// From here on a failure before upstream contact refunds the debit.

	systemPrompt := prompt.Active.Body
	if req.ProjectID != "" {
		contextBlock, err := h.contexts.Build(ctx, req.ProjectID)
		if err != nil {
			h.refund(c, principal.ID)
			platformerrors.WriteError(c, err, h.logger)
			return
		}
		systemPrompt = prompt.Active.WithPipelineContext(contextBlock)
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: systemPrompt,
	})
	for _, msg := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	hash, err := cache.PromptHash(systemPrompt, messages[1:], h.cfg.Model)
	if err != nil {
		h.refund(c, principal.ID)
		platformerrors.WriteError(c, platformerrors.AsError(ctx, platformerrors.LayerHandler, err,
			"failed to compute prompt hash"), h.logger)
		return
	}

	c.Header("X-Prompt-Version", prompt.Active.Version)

	entry, err := h.cache.Get(ctx, hash)
	if err != nil {
		// A broken cache must not block chat; log and fall through to MISS.
		h.logger.Warn().Err(err).Msg("cache lookup failed")
		entry = nil
	}

	requestID := middlewares.RequestIDFromContext(c)
	if entry != nil {
		h.serveFromCache(c, principal.ID, &req, entry, requestID, start)
		return
	}

	h.serveFromUpstream(c, principal.ID, &req, messages, hash, requestID, start)
}

func (h *Handler) serveFromCache(c *gin.Context, userID string, req *chatrequests.ChatRequest, entry *cache.Entry, requestID string, start time.Time) {
	c.Header("X-Cache-Status", cacheStatusHit)
	chatclient.SetupSSEHeaders(c)

	replayer := cache.Replayer{ChunkSize: h.cfg.ReplayChunk, Delay: h.cfg.ReplayDelay}
	err := replayer.Replay(c.Request.Context(), entry.Response, func(chunk string) error {
		return chatclient.WriteDelta(c, chunk)
	})
	if err != nil {
		// Headers are committed; all we can do is stop the stream.
		h.logger.Warn().Err(err).Msg("cache replay interrupted")
		metrics.ChatCompletionsTotal.WithLabelValues(cacheStatusHit, "interrupted").Inc()
		return
	}
	if err := chatclient.WriteDone(c); err != nil {
		h.logger.Warn().Err(err).Msg("failed to write stream terminator")
		return
	}

	metrics.ChatCompletionsTotal.WithLabelValues(cacheStatusHit, "ok").Inc()
	metrics.StreamDuration.WithLabelValues(cacheStatusHit).Observe(time.Since(start).Seconds())
	h.finish(c, userID, req, entry.Response, cacheStatusHit, requestID, start)
}

func (h *Handler) serveFromUpstream(c *gin.Context, userID string, req *chatrequests.ChatRequest, messages []openai.ChatCompletionMessage, hash, requestID string, start time.Time) {
	c.Header("X-Cache-Status", cacheStatusMiss)

	request := openai.ChatCompletionRequest{
		Model:    h.cfg.Model,
		Messages: messages,
		Stream:   true,
	}

	fullText, err := h.client.StreamToContext(c, request, nil)
	if err != nil {
		metrics.ChatCompletionsTotal.WithLabelValues(cacheStatusMiss, "error").Inc()
		// Failed attempts are audited too, with zero response chars.
		h.recordAudit(c, userID, req, "", cacheStatusMiss, requestID, start)
		if c.Writer.Written() {
			// Mid-stream failure: the SSE channel is the only way out.
			h.logger.Error().Err(err).Str("request_id", requestID).Msg("stream failed after headers were sent")
			return
		}
		h.refund(c, userID)
		platformerrors.WriteError(c, err, h.logger)
		return
	}

	metrics.ChatCompletionsTotal.WithLabelValues(cacheStatusMiss, "ok").Inc()
	metrics.StreamDuration.WithLabelValues(cacheStatusMiss).Observe(time.Since(start).Seconds())

	h.recordEnvelopeTelemetry(c, req.ProjectID, fullText)
	h.storeInCache(c, hash, fullText)
	h.finish(c, userID, req, fullText, cacheStatusMiss, requestID, start)
}

// recordEnvelopeTelemetry decodes the full response for observability and
// the pipeline state hint. The gateway never persists messages or
// artifacts itself; the consumer owns that.
func (h *Handler) recordEnvelopeTelemetry(c *gin.Context, projectID, fullText string) {
	env, decodeErr := envelope.Decode(fullText)
	if decodeErr != nil {
		metrics.EnvelopeDecodesTotal.WithLabelValues(string(decodeErr.Reason)).Inc()
		h.logger.Warn().
			Str("reason", string(decodeErr.Reason)).
			Str("project_id", projectID).
			Msg("model response failed envelope decode")
		return
	}
	metrics.EnvelopeDecodesTotal.WithLabelValues("ok").Inc()
	if projectID != "" && env.State != nil && env.State.Stage != "" {
		h.artifacts.UpdateStateHint(c.Request.Context(), projectID, env.State.Mode, env.State.Stage, env.NextActions)
	}
}

func (h *Handler) storeInCache(c *gin.Context, hash, fullText string) {
	if fullText == "" {
		return
	}
	now := time.Now().UTC()
	err := h.cache.Put(c.Request.Context(), &cache.Entry{
		PromptHash: hash,
		Response:   fullText,
		Model:      h.cfg.Model,
		CreatedAt:  now,
		ExpiresAt:  now.Add(h.cfg.CacheTTL),
	})
	if err != nil {
		h.logger.Warn().Err(err).Msg("failed to store cache entry")
	}
}

func (h *Handler) recordAudit(c *gin.Context, userID string, req *chatrequests.ChatRequest, fullText, cacheStatus, requestID string, start time.Time) {
	if err := h.audit.Record(c.Request.Context(), &domainchat.AuditEntry{
		RequestID:      requestID,
		UserID:         userID,
		ConversationID: req.ConversationID,
		CacheStatus:    cacheStatus,
		PromptVersion:  prompt.Active.Version,
		ResponseChars:  len(fullText),
		Duration:       time.Since(start),
		CreatedAt:      time.Now().UTC(),
	}); err != nil {
		h.logger.Warn().Err(err).Msg("failed to record audit entry")
	}
}

// finish records the audit row and the usage ledger entry. Both are best
// effort once the response has streamed.
func (h *Handler) finish(c *gin.Context, userID string, req *chatrequests.ChatRequest, fullText, cacheStatus, requestID string, start time.Time) {
	h.recordAudit(c, userID, req, fullText, cacheStatus, requestID, start)

	cost := decimal.Zero
	if cacheStatus == cacheStatusMiss {
		cost = decimal.NewFromFloat(0.001)
	}
	if err := h.usage.Record(c.Request.Context(), &billing.Usage{
		UserID:           userID,
		ConversationID:   req.ConversationID,
		RequestID:        requestID,
		Model:            h.cfg.Model,
		CacheStatus:      cacheStatus,
		CompletionTokens: int64(len(fullText) / 4),
		Cost:             cost,
		CreatedAt:        time.Now().UTC(),
	}); err != nil {
		h.logger.Warn().Err(err).Msg("failed to record usage")
	}
}

func (h *Handler) refund(c *gin.Context, userID string) {
	if err := h.credits.Refund(c.Request.Context(), userID); err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("failed to refund credit")
	}
}

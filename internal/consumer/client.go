package consumer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"resty.dev/v3"

	"github.com/ventureforge/pipeline-server/internal/domain/chat"
	"github.com/ventureforge/pipeline-server/internal/domain/envelope"
	"github.com/ventureforge/pipeline-server/internal/utils/platformerrors"
)

// APIClient talks to the pipeline gateway over HTTP. It implements
// Transport, MessageStore and ArtifactApplier so a Consumer can be wired
// entirely against the public API.
type APIClient struct {
	client  *resty.Client
	baseURL string
	token   string
}

func NewAPIClient(client *resty.Client, baseURL, token string) *APIClient {
	return &APIClient{
		client:  client,
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:   token,
	}
}

var (
	_ Transport       = (*APIClient)(nil)
	_ MessageStore    = (*APIClient)(nil)
	_ ArtifactApplier = (*APIClient)(nil)
)

type outboundMessage struct {
	ID      string `json:"id,omitempty"`
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatPayload struct {
	ProjectID      string            `json:"project_id"`
	ConversationID string            `json:"conversation_id"`
	Messages       []outboundMessage `json:"messages"`
}

// OpenStream starts the gateway SSE stream for one turn.
func (a *APIClient) OpenStream(ctx context.Context, req *TurnRequest) (io.ReadCloser, error) {
	payload := chatPayload{
		ProjectID:      req.ProjectID,
		ConversationID: req.ConversationID,
	}
	for _, msg := range req.History {
		payload.Messages = append(payload.Messages, outboundMessage{
			ID:      msg.PublicID,
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}
	payload.Messages = append(payload.Messages, outboundMessage{
		ID:      req.UserMessageID,
		Role:    string(chat.RoleUser),
		Content: req.UserText,
	})

	resp, err := a.prepare(ctx).
		SetBody(payload).
		SetDoNotParseResponse(true).
		Post(a.baseURL + "/v1/chat")
	if err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerConsumer,
			platformerrors.ErrorTypeExternal, "chat request failed", err, "")
	}
	if resp.IsError() {
		defer resp.RawResponse.Body.Close()
		body, _ := io.ReadAll(resp.RawResponse.Body)
		return nil, a.errorFromStatus(ctx, resp.StatusCode(), string(body))
	}
	return resp.RawResponse.Body, nil
}

// Append persists one message through the gateway's idempotent endpoint.
func (a *APIClient) Append(ctx context.Context, msg *chat.Message) error {
	resp, err := a.prepare(ctx).
		SetBody(map[string]any{
			"id":       msg.PublicID,
			"role":     string(msg.Role),
			"content":  msg.Content,
			"sequence": msg.Sequence,
		}).
		Post(fmt.Sprintf("%s/v1/conversations/%s/messages", a.baseURL, msg.ConversationID))
	if err != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerConsumer,
			platformerrors.ErrorTypeExternal, "message persist failed", err, "")
	}
	if resp.IsError() {
		return a.errorFromStatus(ctx, resp.StatusCode(), resp.String())
	}
	return nil
}

// Apply submits the envelope's artifact to the pipeline.
func (a *APIClient) Apply(ctx context.Context, projectID string, payload *envelope.ArtifactPayload) error {
	resp, err := a.prepare(ctx).
		SetBody(map[string]any{
			"type":    string(payload.Type),
			"title":   payload.Title,
			"content": payload.Content,
		}).
		Post(fmt.Sprintf("%s/v1/projects/%s/artifacts", a.baseURL, projectID))
	if err != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerConsumer,
			platformerrors.ErrorTypeExternal, "artifact submit failed", err, "")
	}
	if resp.IsError() {
		return a.errorFromStatus(ctx, resp.StatusCode(), resp.String())
	}
	return nil
}

func (a *APIClient) prepare(ctx context.Context) *resty.Request {
	req := a.client.R().SetContext(ctx)
	req.SetHeader("Content-Type", "application/json")
	if a.token != "" {
		req.SetHeader("Authorization", "Bearer "+a.token)
	}
	return req
}

func (a *APIClient) errorFromStatus(ctx context.Context, status int, detail string) error {
	detail = strings.TrimSpace(detail)
	message := fmt.Sprintf("gateway returned status %d", status)
	if detail != "" {
		message = fmt.Sprintf("%s: %s", message, detail)
	}

	errorType := platformerrors.ErrorTypeExternal
	switch status {
	case http.StatusUnauthorized:
		errorType = platformerrors.ErrorTypeUnauthorized
	case http.StatusForbidden:
		errorType = platformerrors.ErrorTypeForbidden
	case http.StatusNotFound:
		errorType = platformerrors.ErrorTypeNotFound
	case http.StatusPaymentRequired:
		errorType = platformerrors.ErrorTypeCreditsExhausted
	case http.StatusTooManyRequests:
		errorType = platformerrors.ErrorTypeRateLimited
	case http.StatusConflict:
		errorType = platformerrors.ErrorTypeConflict
	case http.StatusServiceUnavailable:
		errorType = platformerrors.ErrorTypeUnavailable
	}
	return platformerrors.NewError(ctx, platformerrors.LayerConsumer, errorType, message, nil, "")
}

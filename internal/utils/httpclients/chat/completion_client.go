// Package chat wraps the upstream OpenAI-compatible completion API.
package chat

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	openai "github.com/sashabaranov/go-openai"
	"resty.dev/v3"

	"github.com/ventureforge/pipeline-server/internal/infrastructure/logger"
	"github.com/ventureforge/pipeline-server/internal/infrastructure/metrics"
	"github.com/ventureforge/pipeline-server/internal/utils/platformerrors"
)

const (
	requestTimeout       = 120 * time.Second
	channelBufferSize    = 100
	errorBufferSize      = 10
	dataPrefix           = "data: "
	doneMarker           = "[DONE]"
	newlineChar          = "\n"
	scannerInitialBuffer = 12 * 1024        // 12KB
	scannerMaxBuffer     = 10 * 1024 * 1024 // 10MB
)

type StreamOption func(*resty.Request)

// BeforeDoneCallback runs before the [DONE] marker is written, so the
// handler can flush trailing metadata while the stream is still open.
type BeforeDoneCallback func(*gin.Context) error

type StreamChoice struct {
	Delta struct {
		Content string `json:"content"`
	} `json:"delta"`
}

func WithHeader(key, value string) StreamOption {
	return func(r *resty.Request) {
		if strings.TrimSpace(key) == "" {
			return
		}
		r.SetHeader(key, value)
	}
}

// CompletionClient streams chat completions from an OpenAI-compatible
// endpoint.
type CompletionClient struct {
	client  *resty.Client
	baseURL string
	apiKey  string
}

func NewCompletionClient(client *resty.Client, baseURL, apiKey string) *CompletionClient {
	return &CompletionClient{
		client:  client,
		baseURL: normalizeBaseURL(baseURL),
		apiKey:  apiKey,
	}
}

// StreamToContext proxies the upstream SSE stream to the gin response
// writer while accumulating the assistant text, returning the full text
// once the upstream sends [DONE]. Every delta line is written to the
// client and folded into the builder in the same loop, so the caller gets
// the complete response without a second pass.
func (c *CompletionClient) StreamToContext(reqCtx *gin.Context, request openai.ChatCompletionRequest, beforeDone BeforeDoneCallback, opts ...StreamOption) (string, error) {
	ctx, cancel := context.WithTimeout(reqCtx.Request.Context(), requestTimeout)
	defer cancel()

	// Connect before committing SSE headers: an upstream 402/429/5xx must
	// still reach the client as a plain HTTP status.
	resp, err := c.doStreamingRequest(ctx, request, opts...)
	if err != nil {
		return "", err
	}

	SetupSSEHeaders(reqCtx)

	dataChan := make(chan string, channelBufferSize)
	errChan := make(chan error, errorBufferSize)

	var wg sync.WaitGroup
	wg.Add(1)
	go c.streamResponseToChannel(ctx, resp, dataChan, errChan, &wg)

	var contentBuilder strings.Builder
	streamingComplete := false

	for !streamingComplete {
		select {
		case line, ok := <-dataChan:
			if !ok {
				// Producer exits without [DONE] on failure; surface the
				// queued error rather than a silent short response.
				select {
				case err := <-errChan:
					if err != nil {
						wg.Wait()
						return "", err
					}
				default:
				}
				// An EOF without [DONE] is a truncated response. Callers
				// must not treat the partial text as complete (or cache it).
				wg.Wait()
				return "", platformerrors.NewError(ctx, platformerrors.LayerHandler,
					platformerrors.ErrorTypeStreamInterrupted,
					"upstream stream ended before completion", nil, "")
			}

			if data, found := strings.CutPrefix(line, dataPrefix); found && data == doneMarker {
				if beforeDone != nil {
					if err := beforeDone(reqCtx); err != nil {
						log := logger.GetLogger()
						log.Warn().Err(err).Msg("beforeDone callback failed")
					}
				}
				if err := writeSSELine(reqCtx, line); err != nil {
					cancel()
					wg.Wait()
					return "", platformerrors.AsError(ctx, platformerrors.LayerHandler, err, "unable to write SSE line")
				}
				streamingComplete = true
				cancel()
				break
			}

			if err := writeSSELine(reqCtx, line); err != nil {
				cancel()
				wg.Wait()
				return "", platformerrors.AsError(ctx, platformerrors.LayerHandler, err, "unable to write SSE line")
			}

			if data, found := strings.CutPrefix(line, dataPrefix); found {
				if delta := parseDelta(data); delta != "" {
					contentBuilder.WriteString(delta)
				}
			}

		case err, ok := <-errChan:
			if ok && err != nil {
				cancel()
				wg.Wait()
				return "", err
			}

		case <-ctx.Done():
			wg.Wait()
			return "", platformerrors.NewError(ctx, platformerrors.LayerHandler, platformerrors.ErrorTypeTimeout,
				"upstream stream timed out", ctx.Err(), "")

		case <-reqCtx.Request.Context().Done():
			cancel()
			wg.Wait()
			return "", platformerrors.AsError(reqCtx.Request.Context(), platformerrors.LayerHandler,
				reqCtx.Request.Context().Err(), "client request cancelled")
		}
	}

	cancel()
	wg.Wait()

	return contentBuilder.String(), nil
}

// SetupSSEHeaders writes the event-stream headers and commits them.
func SetupSSEHeaders(reqCtx *gin.Context) {
	if reqCtx == nil {
		return
	}
	reqCtx.Header("Content-Type", "text/event-stream")
	reqCtx.Header("Cache-Control", "no-cache")
	reqCtx.Header("Connection", "keep-alive")
	reqCtx.Header("Transfer-Encoding", "chunked")
	reqCtx.Writer.WriteHeaderNow()
}

// WriteDelta frames one assistant text chunk as an upstream-shaped SSE
// event. The cache replay path uses this so hits and misses look the same
// on the wire.
func WriteDelta(reqCtx *gin.Context, content string) error {
	payload := map[string]any{
		"choices": []map[string]any{
			{"delta": map[string]string{"content": content}},
		},
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return writeSSELine(reqCtx, dataPrefix+string(raw))
}

// WriteDone writes the terminal [DONE] event.
func WriteDone(reqCtx *gin.Context) error {
	return writeSSELine(reqCtx, dataPrefix+doneMarker)
}

func (c *CompletionClient) streamResponseToChannel(ctx context.Context, resp *resty.Response, dataChan chan<- string, errChan chan<- error, wg *sync.WaitGroup) {
	defer wg.Done()
	defer close(dataChan)

	defer func() {
		if closeErr := resp.RawResponse.Body.Close(); closeErr != nil {
			log := logger.GetLogger()
			log.Error().Err(closeErr).Msg("unable to close response body")
		}
	}()

	scanner := bufio.NewScanner(resp.RawResponse.Body)
	scanner.Buffer(make([]byte, 0, scannerInitialBuffer), scannerMaxBuffer)

	for scanner.Scan() {
		select {
		case dataChan <- scanner.Text():
		case <-ctx.Done():
			sendAsyncError(errChan, ctx.Err())
			return
		}
	}

	if err := scanner.Err(); err != nil {
		sendAsyncError(errChan, err)
	}
}

func (c *CompletionClient) doStreamingRequest(ctx context.Context, request openai.ChatCompletionRequest, opts ...StreamOption) (*resty.Response, error) {
	request.Stream = true

	req := c.prepareRequest(ctx).
		SetBody(request).
		SetDoNotParseResponse(true)

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(req)
	}
	if req.Header.Get("Accept-Encoding") == "" {
		req.SetHeader("Accept-Encoding", "identity")
	}

	resp, err := req.Post(c.endpoint("/chat/completions"))
	if err != nil {
		metrics.UpstreamErrorsTotal.WithLabelValues("transport").Inc()
		return nil, platformerrors.NewError(ctx, platformerrors.LayerHandler, platformerrors.ErrorTypeExternal,
			"upstream request failed", err, "")
	}
	if resp.IsError() {
		return nil, c.errorFromResponse(ctx, resp)
	}
	if resp.RawResponse == nil || resp.RawResponse.Body == nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerHandler, platformerrors.ErrorTypeExternal,
			"upstream returned empty response body", nil, "")
	}
	return resp, nil
}

func (c *CompletionClient) prepareRequest(ctx context.Context) *resty.Request {
	req := c.client.R().SetContext(ctx)
	req.SetHeader("Content-Type", "application/json")
	if strings.TrimSpace(c.apiKey) != "" {
		req.SetHeader("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))
	}
	return req
}

func (c *CompletionClient) endpoint(path string) string {
	if strings.HasPrefix(path, "/") {
		return c.baseURL + path
	}
	return c.baseURL + "/" + path
}

// errorFromResponse maps upstream HTTP failures onto the error taxonomy:
// 429 stays retriable rate limiting, 402 stays credits exhausted, anything
// else upstream-side becomes an external error behind a 502.
func (c *CompletionClient) errorFromResponse(ctx context.Context, resp *resty.Response) error {
	status := resp.StatusCode()

	var detail string
	if resp.RawResponse != nil && resp.RawResponse.Body != nil {
		defer resp.RawResponse.Body.Close()
		if body, err := io.ReadAll(resp.RawResponse.Body); err == nil {
			detail = strings.TrimSpace(string(body))
		}
	}

	message := fmt.Sprintf("upstream completion failed with status %d", status)
	if detail != "" {
		message = fmt.Sprintf("%s: %s", message, detail)
	}

	switch {
	case status == http.StatusTooManyRequests:
		metrics.UpstreamErrorsTotal.WithLabelValues("rate_limited").Inc()
		return platformerrors.NewError(ctx, platformerrors.LayerHandler, platformerrors.ErrorTypeRateLimited, message, nil, "")
	case status == http.StatusPaymentRequired:
		metrics.UpstreamErrorsTotal.WithLabelValues("payment_required").Inc()
		return platformerrors.NewError(ctx, platformerrors.LayerHandler, platformerrors.ErrorTypeCreditsExhausted, message, nil, "")
	case status >= http.StatusInternalServerError:
		metrics.UpstreamErrorsTotal.WithLabelValues("server_error").Inc()
		return platformerrors.NewError(ctx, platformerrors.LayerHandler, platformerrors.ErrorTypeExternal, message, nil, "")
	default:
		metrics.UpstreamErrorsTotal.WithLabelValues("client_error").Inc()
		return platformerrors.NewError(ctx, platformerrors.LayerHandler, platformerrors.ErrorTypeExternal, message, nil, "")
	}
}

func parseDelta(data string) string {
	var streamData struct {
		Choices []StreamChoice `json:"choices"`
	}
	if err := json.Unmarshal([]byte(data), &streamData); err != nil {
		log := logger.GetLogger()
		log.Error().Err(err).Str("data", data).Msg("failed to parse stream chunk JSON")
		return ""
	}
	var delta strings.Builder
	for _, choice := range streamData.Choices {
		delta.WriteString(choice.Delta.Content)
	}
	return delta.String()
}

func writeSSELine(reqCtx *gin.Context, line string) error {
	if reqCtx == nil {
		return platformerrors.NewError(context.Background(), platformerrors.LayerHandler,
			platformerrors.ErrorTypeValidation, "nil gin context provided", nil, "")
	}
	if _, err := reqCtx.Writer.Write([]byte(line + newlineChar)); err != nil {
		return err
	}
	reqCtx.Writer.Flush()
	return nil
}

func sendAsyncError(errChan chan<- error, err error) {
	if err == nil {
		return
	}
	select {
	case errChan <- err:
	default:
	}
}

func normalizeBaseURL(base string) string {
	return strings.TrimRight(strings.TrimSpace(base), "/")
}

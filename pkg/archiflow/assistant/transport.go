// transport.go implements the transport adapter: one HTTP POST per attempt
// against an OpenAI-compatible /chat/completions endpoint. The adapter has
// no retry or fallback knowledge; classification and retries live in the
// gateway client.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Version is injected at build time via ldflags.
var Version = "dev"

// userAgent identifies the client to the provider.
func userAgent() string {
	return "archiflow-assistant/" + Version
}

// RequestAttempt is the transient state for a single network call. Created
// fresh for each attempt and owned exclusively by the gateway client for
// the lifetime of the call.
type RequestAttempt struct {
	RequestID     string
	Model         string
	ModelIndex    int
	Messages      []ChatMessage
	AttemptNumber int
	Deadline      time.Time

	// Config snapshot taken at admission; attempts never observe a torn
	// mix of old and new config values.
	BaseURL     string
	APIKey      string
	Temperature float64
	MaxTokens   int
}

// ---------- Wire types (OpenAI-compatible) ----------

// wireMessage is a message in the OpenAI chat format; only role and content
// are serialized.
type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// wireRequest is the OpenAI-compatible chat completions request. Streaming
// is always disabled.
type wireRequest struct {
	Model       string        `json:"model"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	Stream      bool          `json:"stream"`
	Messages    []wireMessage `json:"messages"`
}

// rawResponse is the unclassified outcome of one attempt.
type rawResponse struct {
	Status int
	Body   []byte

	// RetryAfterSec is parsed from the Retry-After header on 429,
	// 0 when absent.
	RetryAfterSec int
}

// Transport performs single network attempts. Safe for concurrent use.
type Transport struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// NewTransport creates a transport adapter.
// No global client timeout is set — each attempt carries its own deadline
// via context, which the gateway client controls per call.
func NewTransport(logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     120 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		logger: logger.With("component", "transport"),
	}
}

// Do performs exactly one network attempt. The context deadline is the
// attempt deadline: on expiry the in-flight request is aborted, partial
// responses are discarded, and a KindTimeout error is returned.
func (t *Transport) Do(ctx context.Context, attempt *RequestAttempt) (*rawResponse, error) {
	msgs := make([]wireMessage, len(attempt.Messages))
	for i, m := range attempt.Messages {
		msgs[i] = wireMessage{Role: string(m.Role), Content: m.Content}
	}

	reqBody := wireRequest{
		Model:       attempt.Model,
		Temperature: attempt.Temperature,
		MaxTokens:   attempt.MaxTokens,
		Stream:      false,
		Messages:    msgs,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, &GatewayError{Kind: KindConfig, Message: fmt.Sprintf("marshaling request: %v", err)}
	}

	endpoint := strings.TrimRight(attempt.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, &GatewayError{Kind: KindConfig, Message: fmt.Sprintf("creating request: %v", err)}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+attempt.APIKey)
	req.Header.Set("User-Agent", userAgent())

	t.logger.Debug("sending chat completion",
		"request_id", attempt.RequestID,
		"model", attempt.Model,
		"attempt", attempt.AttemptNumber,
		"messages", len(msgs),
		"endpoint", endpoint,
	)

	start := time.Now()
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, t.classifyTransportErr(ctx, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, t.classifyTransportErr(ctx, err)
	}

	raw := &rawResponse{Status: resp.StatusCode, Body: respBody}
	if resp.StatusCode == http.StatusTooManyRequests {
		raw.RetryAfterSec = parseRetryAfter(resp.Header.Get("Retry-After"))
	}

	t.logger.Debug("attempt done",
		"request_id", attempt.RequestID,
		"model", attempt.Model,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return raw, nil
}

// parseRetryAfter handles both forms of the Retry-After header: delay
// seconds and an HTTP-date. Returns 0 when the header is absent, malformed,
// or already in the past.
func parseRetryAfter(value string) int {
	if value == "" {
		return 0
	}
	if sec, err := strconv.Atoi(value); err == nil && sec > 0 {
		return sec
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return int((d + time.Second - 1) / time.Second)
		}
	}
	return 0
}

// classifyTransportErr maps an HTTP client error to the gateway taxonomy.
// Deadline expiry on the attempt context becomes KindTimeout; everything
// else at this level is a network failure.
func (t *Transport) classifyTransportErr(ctx context.Context, err error) *GatewayError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &GatewayError{Kind: KindTimeout, Message: "attempt deadline exceeded", Err: err}
	}
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return &GatewayError{Kind: KindCanceled, Message: "attempt canceled", Err: err}
	}
	return &GatewayError{Kind: KindNetwork, Message: err.Error(), Err: err}
}

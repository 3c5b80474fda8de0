// client.go implements the gateway client: admission control, per-request
// timeout/cancellation, the model-fallback retry loop, error
// classification, and lifecycle event emission.
//
// Providers intermittently reject specific model identifiers (deprecated,
// overloaded) without this being a conversation error; swapping to the next
// model in priority order and replaying the same prompt is cheaper and more
// user-transparent than surfacing an error immediately. Authentication and
// quota errors are never retried because switching models cannot fix them.
package assistant

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Client is the LLM gateway client. One instance serves the whole
// application; it is safe for concurrent use by multiple goroutines.
//
// The client is stateless across calls except for the admission counter and
// the in-flight request table. Configuration is replaced wholesale via
// Configure (atomic swap) — in-flight requests keep the snapshot they were
// admitted under.
type Client struct {
	transport *Transport
	bus       *EventBus
	logger    *slog.Logger

	cfg     atomic.Pointer[ClientConfig]
	limiter atomic.Pointer[rate.Limiter]

	// mu guards the admission counter and the request table. The counter is
	// checked and updated under the same lock — no check-then-act race.
	mu       sync.Mutex
	inFlight int
	requests map[string]*inflightRequest
}

// inflightRequest tracks one admitted logical request.
type inflightRequest struct {
	cancel context.CancelFunc

	// canceled is set by Cancel before the context is torn down, so the
	// send loop can distinguish caller cancellation from attempt timeout.
	canceled atomic.Bool

	// finished guards the terminal transition: exactly one winner emits
	// the request_finished event.
	finished atomic.Bool
}

// New creates a gateway client with the given configuration. The event bus
// may be shared with other subsystems; pass nil for a private bus.
func New(cfg ClientConfig, bus *EventBus, logger *slog.Logger) (*Client, error) {
	if bus == nil {
		bus = NewEventBus()
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		transport: NewTransport(logger),
		bus:       bus,
		logger:    logger.With("component", "gateway"),
		requests:  make(map[string]*inflightRequest),
	}
	if err := c.Configure(cfg); err != nil {
		return nil, err
	}
	return c, nil
}

// Bus returns the event bus callers subscribe to for lifecycle
// notifications.
func (c *Client) Bus() *EventBus {
	return c.bus
}

// Configure validates and replaces the active configuration in one atomic
// swap, then recomputes and reports connectivity status. In-flight requests
// observe either the old or the new config, never a torn mix.
func (c *Client) Configure(cfg ClientConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.MaxWindow < 1 {
		cfg.MaxWindow = DefaultMaxWindow
	}

	c.cfg.Store(&cfg)

	if cfg.RequestsPerMinute > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter.Store(rate.NewLimiter(rate.Limit(cfg.RequestsPerMinute/60.0), burst))
	} else {
		c.limiter.Store(nil)
	}

	connected := cfg.APIKey != ""
	c.bus.EmitConnectionStatus(connected)
	c.logger.Info("gateway configured",
		"base_url", cfg.BaseURL,
		"models", len(cfg.Models),
		"connected", connected,
	)
	return nil
}

// Connected reports whether an API key is configured.
func (c *Client) Connected() bool {
	cfg := c.cfg.Load()
	return cfg != nil && cfg.APIKey != ""
}

// InFlight returns the number of currently admitted logical requests.
func (c *Client) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

// Send submits a conversation and blocks until the logical request
// terminates with exactly one of a CompletionResult or a GatewayError.
// Concurrent Send calls are independent; attempts within one call are
// strictly sequential.
func (c *Client) Send(ctx context.Context, conv *Conversation) (*CompletionResult, error) {
	return c.send(ctx, conv, false)
}

// SendJSON is Send with a structured-JSON expectation: the completion
// content is passed through JSON recovery, and the result content is the
// recovered canonical JSON text. A completion that cannot be recovered
// yields a KindParse error carrying the raw text.
func (c *Client) SendJSON(ctx context.Context, conv *Conversation) (*CompletionResult, error) {
	return c.send(ctx, conv, true)
}

// Cancel aborts the in-flight request if still running; it resolves with a
// KindCanceled error and its admission slot is freed immediately. Safe to
// invoke concurrently with the attempt's own timeout — only one of the two
// transitions the request to terminal state. Returns false when the request
// is unknown or already terminal.
func (c *Client) Cancel(requestID string) bool {
	c.mu.Lock()
	entry := c.requests[requestID]
	c.mu.Unlock()
	if entry == nil {
		return false
	}
	entry.canceled.Store(true)
	entry.cancel()
	c.logger.Info("request canceled", "request_id", requestID)
	return true
}

func (c *Client) send(ctx context.Context, conv *Conversation, structured bool) (*CompletionResult, error) {
	cfg := c.cfg.Load()
	if cfg == nil {
		return nil, &GatewayError{Kind: KindConfig, Message: "client not configured"}
	}
	if conv == nil || conv.Len() == 0 {
		return nil, &GatewayError{Kind: KindConfig, Message: "conversation is empty"}
	}
	if cfg.APIKey == "" {
		return nil, &GatewayError{Kind: KindConfig, Message: "API key not configured"}
	}

	// Admission control: immediate rejection when saturated. New logical
	// requests are never queued — only retries of an already-admitted
	// request wait.
	c.mu.Lock()
	if c.inFlight >= cfg.MaxConcurrentRequests {
		c.mu.Unlock()
		return nil, &GatewayError{Kind: KindBusy, Message: "too many concurrent requests"}
	}
	c.inFlight++

	requestID := uuid.NewString()
	reqCtx, cancel := context.WithCancel(ctx)
	entry := &inflightRequest{cancel: cancel}
	c.requests[requestID] = entry
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.inFlight--
		delete(c.requests, requestID)
		c.mu.Unlock()
		cancel()
		c.bus.CleanupRequest(requestID)
	}()

	messages := conv.Messages()
	if !conv.FirstIsSystem() {
		withSystem := make([]ChatMessage, 0, len(messages)+1)
		withSystem = append(withSystem, NewMessage(RoleSystem, cfg.SystemPrompt))
		withSystem = append(withSystem, messages...)
		messages = withSystem
	}

	c.bus.EmitRequestStarted(requestID)
	defer func() {
		if entry.finished.CompareAndSwap(false, true) {
			c.bus.EmitRequestFinished(requestID)
		}
	}()

	result, gerr := c.runFallbackLoop(reqCtx, entry, requestID, cfg, messages, structured)
	if gerr != nil {
		c.bus.EmitError(requestID, gerr.Error())
		return nil, gerr
	}
	return result, nil
}

// runFallbackLoop drives sequential attempts across the model priority list
// until success, a terminal error, or exhaustion. Each attempt is a fresh
// network call with its own deadline; retries never resend on a still-open
// connection.
func (c *Client) runFallbackLoop(reqCtx context.Context, entry *inflightRequest, requestID string, cfg *ClientConfig, messages []ChatMessage, structured bool) (*CompletionResult, *GatewayError) {
	var (
		modelIndex       int
		attemptNum       int
		lastErr          *GatewayError
		rateLimitRetried bool
	)

	for {
		model := cfg.Models[modelIndex]

		if lim := c.limiter.Load(); lim != nil {
			if err := lim.Wait(reqCtx); err != nil {
				return nil, c.terminalCtxError(entry, err)
			}
		}

		attemptCtx, attemptCancel := context.WithTimeout(reqCtx, cfg.Timeout())
		attempt := &RequestAttempt{
			RequestID:     requestID,
			Model:         model,
			ModelIndex:    modelIndex,
			Messages:      messages,
			AttemptNumber: attemptNum + 1,
			Deadline:      time.Now().Add(cfg.Timeout()),
			BaseURL:       cfg.BaseURL,
			APIKey:        cfg.APIKey,
			Temperature:   cfg.Temperature,
			MaxTokens:     cfg.MaxTokens,
		}

		start := time.Now()
		raw, terr := c.transport.Do(attemptCtx, attempt)
		attemptCancel()

		var content string
		var gerr *GatewayError
		if terr != nil {
			gerr, _ = terr.(*GatewayError)
			if gerr == nil {
				gerr = &GatewayError{Kind: KindNetwork, Message: terr.Error(), Err: terr}
			}
		} else {
			content, gerr = parseEnvelope(raw)
		}

		// Caller cancellation wins over any attempt outcome.
		if entry.canceled.Load() {
			return nil, &GatewayError{Kind: KindCanceled, Message: "request canceled by caller"}
		}
		if gerr != nil && gerr.Kind == KindCanceled {
			return nil, c.terminalCtxError(entry, reqCtx.Err())
		}

		if gerr == nil {
			if structured {
				recovered, recErr := RecoverJSON(content)
				if recErr != nil {
					// Content-level parse failures are not retried; the
					// caller falls back to displaying the raw text.
					return nil, recErr
				}
				content = recovered
			}
			c.logger.Info("completion done",
				"request_id", requestID,
				"model", model,
				"attempt", attemptNum+1,
				"duration_ms", time.Since(start).Milliseconds(),
			)
			return &CompletionResult{Content: content, RequestID: requestID}, nil
		}

		if !gerr.Retryable(model) {
			c.logger.Warn("non-retryable error, failing immediately",
				"request_id", requestID,
				"model", model,
				"attempt", attemptNum+1,
				"kind", gerr.Kind.String(),
				"error", gerr,
			)
			return nil, gerr
		}
		lastErr = gerr

		// Rate limit: back off and retry the same model once before
		// advancing the fallback chain. The server-requested delay is
		// honored within bounds.
		advance := true
		delay := cfg.RetryDelay()
		if gerr.Kind == KindRateLimit {
			if !rateLimitRetried {
				rateLimitRetried = true
				advance = false
			}
			delay = rateLimitDelay(gerr.RetryAfterSec, cfg.RetryDelay())
		}

		attemptNum++
		if attemptNum >= cfg.MaxRetries {
			return nil, &GatewayError{Kind: KindExhausted, Err: lastErr}
		}
		if advance {
			if modelIndex+1 >= len(cfg.Models) {
				return nil, &GatewayError{Kind: KindExhausted, Err: lastErr}
			}
			modelIndex++
		}

		c.logger.Warn("retrying after retryable error",
			"request_id", requestID,
			"model", model,
			"next_model", cfg.Models[modelIndex],
			"attempt", attemptNum,
			"kind", gerr.Kind.String(),
			"delay_ms", delay.Milliseconds(),
			"error", gerr,
		)

		if delay > 0 {
			select {
			case <-reqCtx.Done():
				return nil, c.terminalCtxError(entry, reqCtx.Err())
			case <-time.After(delay):
			}
		}
	}
}

// terminalCtxError maps a request-context error to the terminal taxonomy:
// caller cancellation beats deadline expiry.
func (c *Client) terminalCtxError(entry *inflightRequest, err error) *GatewayError {
	if entry.canceled.Load() {
		return &GatewayError{Kind: KindCanceled, Message: "request canceled by caller"}
	}
	if err == context.DeadlineExceeded {
		return &GatewayError{Kind: KindTimeout, Message: "request deadline exceeded", Err: err}
	}
	return &GatewayError{Kind: KindCanceled, Message: "request context done", Err: err}
}

// rateLimitDelay bounds the Retry-After hint: at least the configured retry
// delay (floored at one second), at most thirty seconds.
func rateLimitDelay(retryAfterSec int, fallback time.Duration) time.Duration {
	d := time.Duration(retryAfterSec) * time.Second
	if d <= 0 {
		d = fallback
	}
	if d < time.Second {
		d = time.Second
	}
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	return d
}

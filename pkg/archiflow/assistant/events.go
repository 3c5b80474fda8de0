// events.go implements an in-memory pub/sub event bus for gateway lifecycle
// events. The original desktop app used GUI signal/slot connections for
// these; here listeners register callbacks and receive events via direct
// function call.
//
// Event types:
//   - request_started / request_finished (exactly one finished per started)
//   - typing_started / typing_finished
//   - connection_status (Data: bool)
//   - error (Data: message string)
package assistant

import (
	"sync"
	"sync/atomic"
	"time"
)

// EventType identifies a lifecycle event.
type EventType string

const (
	EventRequestStarted   EventType = "request_started"
	EventRequestFinished  EventType = "request_finished"
	EventTypingStarted    EventType = "typing_started"
	EventTypingFinished   EventType = "typing_finished"
	EventConnectionStatus EventType = "connection_status"
	EventError            EventType = "error"
)

// Event is a single typed lifecycle event.
type Event struct {
	// RequestID scopes the event to a logical request. Empty for
	// client-wide events such as connection_status.
	RequestID string    `json:"request_id,omitempty"`
	Seq       int64     `json:"seq"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

// EventListener is a callback that receives gateway events.
type EventListener func(event Event)

// EventBus is a thread-safe pub/sub hub for gateway events. Subscribers
// receive events synchronously during Emit — keep listener logic fast or
// dispatch to goroutines internally.
type EventBus struct {
	listeners sync.Map // listenerID (uint64) → EventListener
	nextID    atomic.Uint64
	seqByReq  sync.Map // requestID → *atomic.Int64
	globalSeq atomic.Int64
}

// NewEventBus creates a new event bus.
func NewEventBus() *EventBus {
	return &EventBus{}
}

// Subscribe registers a listener and returns an unsubscribe function.
// The listener is called synchronously for every emitted event.
func (eb *EventBus) Subscribe(fn EventListener) func() {
	id := eb.nextID.Add(1)
	eb.listeners.Store(id, fn)
	return func() { eb.listeners.Delete(id) }
}

// SubscribeRequest registers a listener that only receives events for a
// specific logical request. Returns an unsubscribe function.
func (eb *EventBus) SubscribeRequest(requestID string, fn EventListener) func() {
	return eb.Subscribe(func(event Event) {
		if event.RequestID == requestID {
			fn(event)
		}
	})
}

// Emit sends an event to all registered listeners. The Seq field is
// auto-assigned from an atomic counter scoped to the request ID.
func (eb *EventBus) Emit(event Event) {
	if event.RequestID != "" {
		event.Seq = eb.requestSeq(event.RequestID).Add(1)
	} else {
		event.Seq = eb.globalSeq.Add(1)
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	eb.listeners.Range(func(_, value any) bool {
		if fn, ok := value.(EventListener); ok {
			fn(event)
		}
		return true
	})
}

// EmitRequestStarted emits request_started followed by typing_started.
func (eb *EventBus) EmitRequestStarted(requestID string) {
	eb.Emit(Event{RequestID: requestID, Type: EventRequestStarted})
	eb.Emit(Event{RequestID: requestID, Type: EventTypingStarted})
}

// EmitRequestFinished emits typing_finished followed by request_finished.
// Callers guarantee exactly one finished per started.
func (eb *EventBus) EmitRequestFinished(requestID string) {
	eb.Emit(Event{RequestID: requestID, Type: EventTypingFinished})
	eb.Emit(Event{RequestID: requestID, Type: EventRequestFinished})
}

// EmitConnectionStatus emits a client-wide connectivity event.
func (eb *EventBus) EmitConnectionStatus(connected bool) {
	eb.Emit(Event{Type: EventConnectionStatus, Data: connected})
}

// EmitError emits an error event for a request.
func (eb *EventBus) EmitError(requestID, message string) {
	eb.Emit(Event{RequestID: requestID, Type: EventError, Data: message})
}

// CleanupRequest removes the sequence counter for a completed request.
func (eb *EventBus) CleanupRequest(requestID string) {
	eb.seqByReq.Delete(requestID)
}

// requestSeq returns the sequence counter for a request, creating one if
// needed.
func (eb *EventBus) requestSeq(requestID string) *atomic.Int64 {
	if v, ok := eb.seqByReq.Load(requestID); ok {
		return v.(*atomic.Int64)
	}
	seq := &atomic.Int64{}
	actual, _ := eb.seqByReq.LoadOrStore(requestID, seq)
	return actual.(*atomic.Int64)
}

// Package assistant implements the ArchiFlow AI assistant gateway: the
// client-side subsystem that forwards chat conversations to an
// OpenAI-compatible chat-completion endpoint with bounded concurrency,
// per-attempt timeouts, model-fallback retry, and recovery of structured
// JSON from loosely formatted model output.
package assistant

import (
	"time"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether the role is one of the three known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// ChatMessage is a single turn in a conversation. Messages are immutable
// once created; build new ones instead of mutating.
type ChatMessage struct {
	Role      Role
	Content   string
	CreatedAt time.Time
}

// NewMessage creates a ChatMessage stamped with the current time.
func NewMessage(role Role, content string) ChatMessage {
	return ChatMessage{Role: role, Content: content, CreatedAt: time.Now()}
}

// DefaultMaxWindow is the conversation window used when the config does not
// set one. Bounds token usage on long-running dialogs.
const DefaultMaxWindow = 20

// Conversation holds an ordered message history with a bounded window.
// Ordering is insertion order. At most one leading system message is kept;
// it survives window eviction so the assistant never loses its instructions.
//
// Conversation is not safe for concurrent use; each caller (dialog, REPL)
// owns its own instance.
type Conversation struct {
	messages  []ChatMessage
	maxWindow int
}

// NewConversation creates an empty conversation. maxWindow bounds the number
// of non-system messages retained; values < 1 fall back to DefaultMaxWindow.
func NewConversation(maxWindow int) *Conversation {
	if maxWindow < 1 {
		maxWindow = DefaultMaxWindow
	}
	return &Conversation{maxWindow: maxWindow}
}

// Append adds a message, evicting the oldest non-system messages once the
// window is exceeded.
func (c *Conversation) Append(msg ChatMessage) {
	// A system message is only meaningful in the leading position.
	if msg.Role == RoleSystem {
		if len(c.messages) == 0 {
			c.messages = append(c.messages, msg)
		}
		return
	}

	c.messages = append(c.messages, msg)

	head := 0
	if c.FirstIsSystem() {
		head = 1
	}
	if over := len(c.messages) - head - c.maxWindow; over > 0 {
		kept := make([]ChatMessage, 0, head+c.maxWindow)
		kept = append(kept, c.messages[:head]...)
		kept = append(kept, c.messages[head+over:]...)
		c.messages = kept
	}
}

// Messages returns a copy of the current window in insertion order.
func (c *Conversation) Messages() []ChatMessage {
	out := make([]ChatMessage, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len returns the number of messages currently held, system included.
func (c *Conversation) Len() int {
	return len(c.messages)
}

// FirstIsSystem reports whether the conversation starts with a system message.
func (c *Conversation) FirstIsSystem() bool {
	return len(c.messages) > 0 && c.messages[0].Role == RoleSystem
}

// CompletionResult is the success payload delivered to the caller.
type CompletionResult struct {
	// Content is the assistant reply. For SendJSON it is the recovered
	// canonical JSON text.
	Content string

	// RequestID identifies the logical request, usable with Cancel while
	// the request is still in flight.
	RequestID string
}

package assistant

import (
	"testing"
)

func TestConversationAppendAndWindow(t *testing.T) {
	t.Run("insertion order preserved", func(t *testing.T) {
		conv := NewConversation(10)
		conv.Append(NewMessage(RoleUser, "first"))
		conv.Append(NewMessage(RoleAssistant, "second"))
		conv.Append(NewMessage(RoleUser, "third"))

		msgs := conv.Messages()
		if len(msgs) != 3 {
			t.Fatalf("expected 3 messages, got %d", len(msgs))
		}
		for i, want := range []string{"first", "second", "third"} {
			if msgs[i].Content != want {
				t.Errorf("messages[%d] = %q, want %q", i, msgs[i].Content, want)
			}
		}
	})

	t.Run("oldest non-system evicted beyond window", func(t *testing.T) {
		conv := NewConversation(2)
		conv.Append(NewMessage(RoleUser, "a"))
		conv.Append(NewMessage(RoleAssistant, "b"))
		conv.Append(NewMessage(RoleUser, "c"))

		msgs := conv.Messages()
		if len(msgs) != 2 {
			t.Fatalf("expected 2 messages, got %d", len(msgs))
		}
		if msgs[0].Content != "b" || msgs[1].Content != "c" {
			t.Errorf("got %q, %q; want b, c", msgs[0].Content, msgs[1].Content)
		}
	})

	t.Run("leading system message survives eviction", func(t *testing.T) {
		conv := NewConversation(2)
		conv.Append(NewMessage(RoleSystem, "instructions"))
		conv.Append(NewMessage(RoleUser, "a"))
		conv.Append(NewMessage(RoleAssistant, "b"))
		conv.Append(NewMessage(RoleUser, "c"))

		msgs := conv.Messages()
		if len(msgs) != 3 {
			t.Fatalf("expected 3 messages (system + window), got %d", len(msgs))
		}
		if msgs[0].Role != RoleSystem {
			t.Errorf("first message role = %q, want system", msgs[0].Role)
		}
		if msgs[1].Content != "b" || msgs[2].Content != "c" {
			t.Errorf("window = %q, %q; want b, c", msgs[1].Content, msgs[2].Content)
		}
	})

	t.Run("non-leading system message ignored", func(t *testing.T) {
		conv := NewConversation(10)
		conv.Append(NewMessage(RoleUser, "hi"))
		conv.Append(NewMessage(RoleSystem, "late instructions"))

		if conv.Len() != 1 {
			t.Fatalf("expected 1 message, got %d", conv.Len())
		}
		if conv.FirstIsSystem() {
			t.Error("FirstIsSystem = true, want false")
		}
	})

	t.Run("messages returns a copy", func(t *testing.T) {
		conv := NewConversation(10)
		conv.Append(NewMessage(RoleUser, "original"))

		msgs := conv.Messages()
		msgs[0].Content = "mutated"

		if conv.Messages()[0].Content != "original" {
			t.Error("Messages() exposed internal state")
		}
	})

	t.Run("invalid window falls back to default", func(t *testing.T) {
		conv := NewConversation(0)
		for i := 0; i < DefaultMaxWindow+5; i++ {
			conv.Append(NewMessage(RoleUser, "msg"))
		}
		if conv.Len() != DefaultMaxWindow {
			t.Errorf("Len = %d, want %d", conv.Len(), DefaultMaxWindow)
		}
	})
}

func TestRoleValid(t *testing.T) {
	tests := []struct {
		role Role
		want bool
	}{
		{RoleSystem, true},
		{RoleUser, true},
		{RoleAssistant, true},
		{Role("tool"), false},
		{Role(""), false},
	}

	for _, tt := range tests {
		if got := tt.role.Valid(); got != tt.want {
			t.Errorf("Role(%q).Valid() = %v, want %v", tt.role, got, tt.want)
		}
	}
}

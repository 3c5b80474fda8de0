package history

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/Attafii/Archiflow-sub001/pkg/archiflow/assistant"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "history.db"), nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreAppendAndLoad(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	msgs := []assistant.ChatMessage{
		assistant.NewMessage(assistant.RoleSystem, "instructions"),
		assistant.NewMessage(assistant.RoleUser, "how many bags of cement?"),
		assistant.NewMessage(assistant.RoleAssistant, "you ordered 40 bags"),
	}
	for _, m := range msgs {
		if err := store.Append(ctx, "job-site-a", m); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	conv, err := store.Load(ctx, "job-site-a", 10)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	got := conv.Messages()
	if len(got) != 3 {
		t.Fatalf("loaded %d messages, want 3", len(got))
	}
	for i, want := range msgs {
		if got[i].Role != want.Role || got[i].Content != want.Content {
			t.Errorf("messages[%d] = %+v, want %+v", i, got[i], want)
		}
	}
	if !conv.FirstIsSystem() {
		t.Error("leading system message lost on reload")
	}
}

func TestStoreLoadAppliesWindow(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Append(ctx, "c1", assistant.NewMessage(assistant.RoleSystem, "sys")); err != nil {
		t.Fatal(err)
	}
	for _, content := range []string{"a", "b", "c", "d"} {
		if err := store.Append(ctx, "c1", assistant.NewMessage(assistant.RoleUser, content)); err != nil {
			t.Fatal(err)
		}
	}

	conv, err := store.Load(ctx, "c1", 2)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	got := conv.Messages()
	if len(got) != 3 {
		t.Fatalf("loaded %d messages, want system + 2 window", len(got))
	}
	if got[0].Role != assistant.RoleSystem {
		t.Errorf("first message = %+v, want system", got[0])
	}
	if got[1].Content != "c" || got[2].Content != "d" {
		t.Errorf("window = %q, %q; want c, d", got[1].Content, got[2].Content)
	}
}

func TestStoreInvalidRoleRejected(t *testing.T) {
	store := newTestStore(t)

	err := store.Append(context.Background(), "c1", assistant.ChatMessage{
		Role:    assistant.Role("tool"),
		Content: "nope",
	})
	if err == nil {
		t.Fatal("expected error for invalid role")
	}
}

func TestStoreClear(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Append(ctx, "c1", assistant.NewMessage(assistant.RoleUser, "hi")); err != nil {
		t.Fatal(err)
	}
	if err := store.Append(ctx, "c2", assistant.NewMessage(assistant.RoleUser, "other")); err != nil {
		t.Fatal(err)
	}

	if err := store.Clear(ctx, "c1"); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	conv, err := store.Load(ctx, "c1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if conv.Len() != 0 {
		t.Errorf("cleared conversation has %d messages", conv.Len())
	}

	// Other conversations untouched.
	other, err := store.Load(ctx, "c2", 10)
	if err != nil {
		t.Fatal(err)
	}
	if other.Len() != 1 {
		t.Errorf("unrelated conversation has %d messages, want 1", other.Len())
	}
}

func TestStoreConversations(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"first", "second", "third"} {
		if err := store.Append(ctx, id, assistant.NewMessage(assistant.RoleUser, "hi")); err != nil {
			t.Fatal(err)
		}
	}

	ids, err := store.Conversations(ctx)
	if err != nil {
		t.Fatalf("Conversations: %v", err)
	}
	want := []string{"third", "second", "first"}
	if len(ids) != len(want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids[%d] = %q, want %q (most recent first)", i, ids[i], want[i])
		}
	}
}

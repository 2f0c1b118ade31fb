package model

import (
	"testing"
	"time"

	"github.com/fathima-sithara/chat-sync/internal/store"
)

func TestMessageFromDocument(t *testing.T) {
	ts := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	m := MessageFromDocument(store.Document{
		"id":         "m1",
		"room_id":    "r1",
		"sender_id":  "u1",
		"content":    "hello",
		"type":       TypeText,
		"created_at": ts,
		"updated_at": ts,
	})
	if m.ID != "m1" || m.RoomID != "r1" || m.SenderID != "u1" {
		t.Fatalf("unexpected message: %+v", m)
	}
	if !m.CreatedAt.Equal(ts) {
		t.Fatalf("unexpected created_at: %v", m.CreatedAt)
	}
	if m.FileURL != "" {
		t.Fatalf("absent file_url should decode empty, got %q", m.FileURL)
	}
}

func TestDecodeToleratesMissingAndMistypedFields(t *testing.T) {
	// a document with nothing we expect must still decode
	m := MessageFromDocument(store.Document{"junk": 42})
	if m == nil {
		t.Fatal("decode returned nil for sparse document")
	}
	if !m.CreatedAt.IsZero() {
		t.Fatalf("missing timestamp should decode to zero, got %v", m.CreatedAt)
	}

	// mistyped fields decode to zero values, not panics
	m = MessageFromDocument(store.Document{
		"content":    17,
		"created_at": "yesterday",
	})
	if m.Content != "" || !m.CreatedAt.IsZero() {
		t.Fatalf("mistyped fields should decode to zero values: %+v", m)
	}

	if got := MessageFromDocument(nil); got != nil {
		t.Fatalf("nil document should decode to nil, got %+v", got)
	}
}

func TestRoomMembersFromMixedRepresentations(t *testing.T) {
	// adapters may hand arrays back as []any
	r := RoomFromDocument(store.Document{
		"id":      "r1",
		"members": []any{"a", "b", 3},
	})
	if len(r.Members) != 2 || r.Members[0] != "a" || r.Members[1] != "b" {
		t.Fatalf("unexpected members: %v", r.Members)
	}

	r = RoomFromDocument(store.Document{"members": []string{"x"}})
	if len(r.Members) != 1 || r.Members[0] != "x" {
		t.Fatalf("unexpected members: %v", r.Members)
	}

	if !r.HasMember("x") || r.HasMember("y") {
		t.Fatal("HasMember misbehaving")
	}
}

func TestUsersFromDocumentsPreservesArrivalOrder(t *testing.T) {
	docs := []store.Document{
		{"id": "u2", "display_name": "Second"},
		{"id": "u1", "display_name": "First"},
	}
	users := UsersFromDocuments(docs)
	if len(users) != 2 {
		t.Fatalf("expected 2 users, got %d", len(users))
	}
	if users[0].ID != "u2" || users[1].ID != "u1" {
		t.Fatalf("arrival order not preserved: %v", users)
	}
}

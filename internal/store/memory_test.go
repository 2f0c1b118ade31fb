package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func testClock() func() time.Time {
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	n := 0
	return func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
}

func TestAddGetRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	key, err := s.Add(ctx, "rooms", Document{"name": "general", "is_private": false})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if key == "" {
		t.Fatal("Add returned empty key")
	}

	doc, err := s.Get(ctx, "rooms", key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if doc["id"] != key {
		t.Fatalf("key not injected: got %v want %v", doc["id"], key)
	}
	if doc["name"] != "general" {
		t.Fatalf("unexpected name: got %v", doc["name"])
	}
}

func TestGetNotFound(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.Get(context.Background(), "rooms", "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestServerTimestampResolved(t *testing.T) {
	s := NewMemoryStore()
	s.SetClock(testClock())
	ctx := context.Background()

	key, err := s.Add(ctx, "messages", Document{"content": "hi", "created_at": ServerTimestamp})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	doc, err := s.Get(ctx, "messages", key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	ts, ok := doc["created_at"].(time.Time)
	if !ok {
		t.Fatalf("created_at not resolved to time.Time: %T", doc["created_at"])
	}
	if ts.IsZero() {
		t.Fatal("created_at resolved to zero time")
	}
}

func TestPutMergePreservesFields(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.Put(ctx, "users", "u1", Document{"email": "a@b.c", "display_name": "A"}, false); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := s.Put(ctx, "users", "u1", Document{"display_name": "B"}, true); err != nil {
		t.Fatalf("merge Put failed: %v", err)
	}

	doc, err := s.Get(ctx, "users", "u1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if doc["email"] != "a@b.c" {
		t.Fatalf("merge dropped email: got %v", doc["email"])
	}
	if doc["display_name"] != "B" {
		t.Fatalf("merge did not apply display_name: got %v", doc["display_name"])
	}

	// non-merge replaces outright
	if err := s.Put(ctx, "users", "u1", Document{"display_name": "C"}, false); err != nil {
		t.Fatalf("replace Put failed: %v", err)
	}
	doc, err = s.Get(ctx, "users", "u1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if _, ok := doc["email"]; ok {
		t.Fatal("replace kept a field it should have dropped")
	}
}

func TestQueryFilters(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.Put(ctx, "rooms", "r1", Document{"is_private": false, "members": []string{"a", "b"}}, false); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := s.Put(ctx, "rooms", "r2", Document{"is_private": true, "members": []string{"b", "c"}}, false); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	public, err := s.Query(ctx, "rooms", []Filter{Eq("is_private", false)}, nil, 0)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(public) != 1 || public[0]["id"] != "r1" {
		t.Fatalf("unexpected public rooms: %v", public)
	}

	bRooms, err := s.Query(ctx, "rooms", []Filter{Contains("members", "b")}, nil, 0)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(bRooms) != 2 {
		t.Fatalf("expected 2 rooms for member b, got %d", len(bRooms))
	}

	cRooms, err := s.Query(ctx, "rooms", []Filter{Contains("members", "c")}, nil, 0)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(cRooms) != 1 || cRooms[0]["id"] != "r2" {
		t.Fatalf("unexpected rooms for member c: %v", cRooms)
	}
}

func TestOrderedQueryNeedsIndex(t *testing.T) {
	s := NewMemoryStore()
	s.SetClock(testClock())
	ctx := context.Background()

	for _, content := range []string{"one", "two", "three"} {
		if _, err := s.Add(ctx, "messages", Document{
			"room_id":    "r1",
			"content":    content,
			"created_at": ServerTimestamp,
		}); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}

	filters := []Filter{Eq("room_id", "r1")}
	order := &Order{Field: "created_at", Desc: true}

	_, err := s.Query(ctx, "messages", filters, order, 0)
	if !errors.Is(err, ErrMissingIndex) {
		t.Fatalf("expected ErrMissingIndex before provisioning, got %v", err)
	}

	if err := s.ProvisionIndex(ctx, "messages", "room_id", "created_at"); err != nil {
		t.Fatalf("ProvisionIndex failed: %v", err)
	}

	docs, err := s.Query(ctx, "messages", filters, order, 2)
	if err != nil {
		t.Fatalf("Query after provisioning failed: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("limit not applied: got %d docs", len(docs))
	}
	if docs[0]["content"] != "three" || docs[1]["content"] != "two" {
		t.Fatalf("wrong order: got %v then %v", docs[0]["content"], docs[1]["content"])
	}
}

func TestOrderOnlyQueryNeedsNoIndex(t *testing.T) {
	s := NewMemoryStore()
	s.SetClock(testClock())
	ctx := context.Background()

	for _, name := range []string{"a", "b"} {
		if _, err := s.Add(ctx, "rooms", Document{"name": name, "created_at": ServerTimestamp}); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}
	docs, err := s.Query(ctx, "rooms", nil, &Order{Field: "created_at", Desc: true}, 0)
	if err != nil {
		t.Fatalf("order-only query failed: %v", err)
	}
	if len(docs) != 2 || docs[0]["name"] != "b" {
		t.Fatalf("unexpected result: %v", docs)
	}
}

func TestSubscribeConcurrentWritesNeverDeliverStale(t *testing.T) {
	s := NewMemoryStore()
	s.SetClock(testClock())
	ctx := context.Background()

	var mu sync.Mutex
	var sizes []int

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			if _, err := s.Add(ctx, "messages", Document{
				"room_id":    "r1",
				"content":    "x",
				"created_at": ServerTimestamp,
			}); err != nil {
				t.Errorf("Add failed: %v", err)
				return
			}
		}
	}()

	release, err := s.Subscribe(ctx, "messages", []Filter{Eq("room_id", "r1")},
		func(docs []Document) {
			mu.Lock()
			sizes = append(sizes, len(docs))
			mu.Unlock()
		}, nil)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	<-done
	release()

	// writes only add documents, so a shrinking snapshot means an older
	// set was delivered after a newer one
	mu.Lock()
	defer mu.Unlock()
	if len(sizes) == 0 {
		t.Fatal("no snapshots delivered")
	}
	for i := 1; i < len(sizes); i++ {
		if sizes[i] < sizes[i-1] {
			t.Fatalf("stale snapshot delivered out of order: sizes %v", sizes)
		}
	}
}

func TestSubscribeDeliversSnapshots(t *testing.T) {
	s := NewMemoryStore()
	s.SetClock(testClock())
	ctx := context.Background()

	var snapshots [][]Document
	release, err := s.Subscribe(ctx, "messages", []Filter{Eq("room_id", "r1")},
		func(docs []Document) { snapshots = append(snapshots, docs) }, nil)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if len(snapshots) != 1 || len(snapshots[0]) != 0 {
		t.Fatalf("expected one empty initial snapshot, got %v", snapshots)
	}

	if _, err := s.Add(ctx, "messages", Document{"room_id": "r1", "content": "hi", "created_at": ServerTimestamp}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if len(snapshots) != 2 || len(snapshots[1]) != 1 {
		t.Fatalf("expected snapshot with the new message, got %v", snapshots)
	}

	// other collections and other rooms don't wake this listener with
	// their content
	if _, err := s.Add(ctx, "messages", Document{"room_id": "r2", "content": "other", "created_at": ServerTimestamp}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	last := snapshots[len(snapshots)-1]
	if len(last) != 1 {
		t.Fatalf("filter leaked another room's message: %v", last)
	}

	release()
	before := len(snapshots)
	if _, err := s.Add(ctx, "messages", Document{"room_id": "r1", "content": "late", "created_at": ServerTimestamp}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if len(snapshots) != before {
		t.Fatal("released subscription still receiving snapshots")
	}
	release() // second release is a harmless no-op
}

package session

import (
	"testing"
	"time"
)

func testContext(channel, chatID, anchorID string) *Context {
	return &Context{
		Channel:  channel,
		ChatID:   chatID,
		AnchorID: anchorID,
		Kind:     SearchSelection,
		Candidates: []Candidate{
			{Index: 1, Title: "a"},
			{Index: 2, Title: "b"},
		},
	}
}

func TestGetReturnsStoredContext(t *testing.T) {
	store := NewStore(5*time.Minute, nil)
	store.Put(testContext("telegram", "chat1", "msg1"))

	got, ok := store.Get("telegram", "chat1", "msg1")
	if !ok {
		t.Fatal("expected context to be present")
	}
	if len(got.Candidates) != 2 {
		t.Errorf("candidates = %d, want 2", len(got.Candidates))
	}
}

func TestGetMissesOtherChats(t *testing.T) {
	store := NewStore(5*time.Minute, nil)
	store.Put(testContext("telegram", "chat1", "msg1"))

	// Same anchor ID in a different chat must not resolve.
	if _, ok := store.Get("telegram", "chat2", "msg1"); ok {
		t.Error("context leaked across chats")
	}
	if _, ok := store.Get("discord", "chat1", "msg1"); ok {
		t.Error("context leaked across channels")
	}
}

func TestExpiryAtExactTTL(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	store := NewStore(5*time.Minute, clock)
	store.Put(testContext("telegram", "chat1", "msg1"))

	now = now.Add(5*time.Minute - time.Second)
	if _, ok := store.Get("telegram", "chat1", "msg1"); !ok {
		t.Fatal("context expired before TTL")
	}

	now = now.Add(time.Second)
	if _, ok := store.Get("telegram", "chat1", "msg1"); ok {
		t.Error("context still resolvable at exactly TTL")
	}
}

func TestExpiredEntryEvictedOnGet(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	store := NewStore(time.Minute, clock)
	store.Put(testContext("telegram", "chat1", "msg1"))

	now = now.Add(2 * time.Minute)
	store.Get("telegram", "chat1", "msg1")

	if store.Len() != 0 {
		t.Errorf("store has %d entries after lazy eviction, want 0", store.Len())
	}
}

func TestSweepExpired(t *testing.T) {
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	now := base
	clock := func() time.Time { return now }

	store := NewStore(time.Minute, clock)
	store.Put(testContext("telegram", "chat1", "old"))

	now = base.Add(30 * time.Second)
	store.Put(testContext("telegram", "chat1", "new"))

	removed := store.SweepExpired(base.Add(70 * time.Second))
	if removed != 1 {
		t.Fatalf("swept %d, want 1", removed)
	}
	if _, ok := store.Get("telegram", "chat1", "new"); !ok {
		t.Error("live context was swept")
	}
}

func TestPutOverwritesSameAnchor(t *testing.T) {
	store := NewStore(5*time.Minute, nil)
	store.Put(testContext("telegram", "chat1", "msg1"))

	replacement := testContext("telegram", "chat1", "msg1")
	replacement.Kind = DeleteFileSelection
	store.Put(replacement)

	got, ok := store.Get("telegram", "chat1", "msg1")
	if !ok {
		t.Fatal("expected context to be present")
	}
	if got.Kind != DeleteFileSelection {
		t.Errorf("kind = %v, want DeleteFileSelection", got.Kind)
	}
	if store.Len() != 1 {
		t.Errorf("store has %d entries, want 1", store.Len())
	}
}

func TestZeroTTLNeverExpires(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	store := NewStore(0, clock)
	store.Put(testContext("telegram", "chat1", "msg1"))

	now = now.Add(24 * time.Hour)
	if _, ok := store.Get("telegram", "chat1", "msg1"); !ok {
		t.Error("context expired with zero TTL")
	}
}

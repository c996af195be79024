package respcache

import (
	"testing"
	"time"

	"github.com/kioku/aperture/pkg/engine"
)

func TestStoreThenLookupHits(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir, 10)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	entry := engine.CacheEntry{API: "petstore", Operation: "list-pets", RequestHash: "abc123", Body: []byte(`{"ok":true}`), Status: 200, TTL: time.Minute}
	if err := store.Store(entry); err != nil {
		t.Fatalf("store: %v", err)
	}

	body, hit := store.Lookup("petstore", "list-pets", "abc123")
	if !hit {
		t.Fatal("expected cache hit")
	}
	if string(body) != `{"ok":true}` {
		t.Errorf("unexpected body: %s", body)
	}
}

func TestLookupMissesOnExpiry(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir, 10)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	entry := engine.CacheEntry{API: "petstore", Operation: "list-pets", RequestHash: "abc123", Body: []byte("x"), TTL: time.Nanosecond}
	if err := store.Store(entry); err != nil {
		t.Fatalf("store: %v", err)
	}
	time.Sleep(2 * time.Millisecond)

	if _, hit := store.Lookup("petstore", "list-pets", "abc123"); hit {
		t.Fatal("expected expired entry to miss")
	}
}

func TestEvictionKeepsDirectoryUnderCap(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir, 2)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	for i := 0; i < 5; i++ {
		entry := engine.CacheEntry{API: "petstore", Operation: "list-pets", RequestHash: string(rune('a' + i)), Body: []byte("x"), TTL: time.Hour}
		if err := store.Store(entry); err != nil {
			t.Fatalf("store %d: %v", i, err)
		}
	}

	stats, err := store.Stat()
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if stats.Valid > 2 {
		t.Errorf("expected at most 2 valid entries, got %d", stats.Valid)
	}
}

func TestClearScopedToAPI(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir, 10)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	_ = store.Store(engine.CacheEntry{API: "petstore", Operation: "list-pets", RequestHash: "a", Body: []byte("x"), TTL: time.Hour})
	_ = store.Store(engine.CacheEntry{API: "other", Operation: "list-things", RequestHash: "b", Body: []byte("y"), TTL: time.Hour})

	if err := store.Clear("petstore"); err != nil {
		t.Fatalf("clear: %v", err)
	}

	if _, hit := store.Lookup("petstore", "list-pets", "a"); hit {
		t.Fatal("expected petstore entry to be cleared")
	}
	if _, hit := store.Lookup("other", "list-things", "b"); !hit {
		t.Fatal("expected other API entry to survive scoped clear")
	}
}

package cachestore

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kioku/aperture/pkg/cachemodel"
)

func writeSourceSpec(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "petstore.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write source spec: %v", err)
	}
	return path
}

func sampleSpec() *cachemodel.CachedSpec {
	return &cachemodel.CachedSpec{
		Name:               "petstore",
		Version:            "1.0.0",
		BaseURL:            "https://api.example.com",
		CacheFormatVersion: cachemodel.CacheFormatVersion,
		Commands: []cachemodel.CachedCommand{
			{OperationID: "listPets", Method: "GET", PathTemplate: "/pets"},
		},
	}
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	source := writeSourceSpec(t, dir, "openapi: 3.0.3")

	store := New(dir)
	if err := store.Save(sampleSpec(), source); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := store.Load("petstore", source)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Name != "petstore" || len(loaded.Commands) != 1 {
		t.Fatalf("unexpected loaded spec: %+v", loaded)
	}
}

func TestLoadDetectsStaleOnContentChange(t *testing.T) {
	dir := t.TempDir()
	source := writeSourceSpec(t, dir, "openapi: 3.0.3")

	store := New(dir)
	if err := store.Save(sampleSpec(), source); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Mutate the source without changing mtime/size isn't representative;
	// simulate an edit that changes size and content hash together.
	if err := os.WriteFile(source, []byte("openapi: 3.0.3\ninfo: {}"), 0o600); err != nil {
		t.Fatalf("rewrite source: %v", err)
	}

	if _, err := store.Load("petstore", source); err == nil {
		t.Fatal("expected stale cache error")
	}
}

func TestLoadMissingEntry(t *testing.T) {
	dir := t.TempDir()
	source := writeSourceSpec(t, dir, "openapi: 3.0.3")
	store := New(dir)
	if _, err := store.Load("unknown", source); err == nil {
		t.Fatal("expected error for missing cache entry")
	}
}

func TestInvalidateRemovesEntry(t *testing.T) {
	dir := t.TempDir()
	source := writeSourceSpec(t, dir, "openapi: 3.0.3")
	store := New(dir)
	if err := store.Save(sampleSpec(), source); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Invalidate("petstore"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, err := store.Load("petstore", source); err == nil {
		t.Fatal("expected error after invalidate")
	}
}

func TestLegacyEntryWithoutFingerprintLoadsLeniently(t *testing.T) {
	dir := t.TempDir()
	source := writeSourceSpec(t, dir, "openapi: 3.0.3")
	store := New(dir)

	if err := store.Save(sampleSpec(), source); err != nil {
		t.Fatalf("save: %v", err)
	}

	meta, err := store.loadMetadataLocked()
	if err != nil {
		t.Fatalf("load metadata: %v", err)
	}
	meta.Specs["petstore"] = cachemodel.SpecMetadata{UpdatedAt: time.Now()}
	if err := store.saveMetadataLocked(meta); err != nil {
		t.Fatalf("save metadata: %v", err)
	}

	if _, err := store.Load("petstore", source); err != nil {
		t.Fatalf("expected legacy entry to load leniently: %v", err)
	}
}

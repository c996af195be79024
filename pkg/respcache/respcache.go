// Package respcache is the on-disk, per-request response cache described
// by the execution engine's cache-lookup and post-store steps. Each entry
// is one JSON file under <cache-dir>/responses, written through atomicio
// so concurrent writers to the same key still produce one well-formed file.
package respcache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/kioku/aperture/internal/atomicio"
	"github.com/kioku/aperture/pkg/aperrors"
	"github.com/kioku/aperture/pkg/engine"
)

// Entry is the on-disk shape of one cached response.
type Entry struct {
	API             string            `json:"api"`
	Operation       string            `json:"operation"`
	RequestHash     string            `json:"request_hash"`
	CreatedAt       time.Time         `json:"created_at"`
	TTL             time.Duration     `json:"ttl"`
	Body            []byte            `json:"body"`
	Status          int               `json:"status"`
	RedactedRequest map[string]string `json:"redacted_request,omitempty"`
	BodyHash        string            `json:"body_hash"`
}

func (e *Entry) expired(now time.Time) bool {
	if e.TTL <= 0 {
		return false
	}
	return now.After(e.CreatedAt.Add(e.TTL))
}

// Store manages the responses subdirectory of the cache directory.
type Store struct {
	dir        string
	maxEntries int
}

// New returns a Store rooted at <cacheDir>/responses, creating it if
// necessary, capping the directory at maxEntries valid entries.
func New(cacheDir string, maxEntries int) (*Store, error) {
	dir := filepath.Join(cacheDir, "responses")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, &aperrors.CacheError{Reason: "create response cache directory", Err: err}
	}
	if maxEntries <= 0 {
		maxEntries = 500
	}
	return &Store{dir: dir, maxEntries: maxEntries}, nil
}

var nonWordRun = regexp.MustCompile(`[^A-Za-z0-9]+`)

func sanitizeComponent(s string) string {
	s = nonWordRun.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

func (s *Store) entryPath(api, operation, requestHash string) string {
	name := fmt.Sprintf("%s_%s_%s_cache.json", sanitizeComponent(api), sanitizeComponent(operation), requestHash)
	return filepath.Join(s.dir, name)
}

// Lookup implements engine.Cache. Expired entries are treated as misses and
// lazily removed.
func (s *Store) Lookup(api, operation, requestHash string) ([]byte, bool) {
	path := s.entryPath(api, operation, requestHash)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, false
	}
	if entry.expired(time.Now()) {
		_ = os.Remove(path)
		return nil, false
	}
	return entry.Body, true
}

// Store writes entry atomically, then evicts the oldest entries if the
// directory now exceeds maxEntries. Implements engine.Cache.
func (s *Store) Store(input engine.CacheEntry) error {
	entry := Entry{
		API:             input.API,
		Operation:       input.Operation,
		RequestHash:     input.RequestHash,
		CreatedAt:       time.Now(),
		TTL:             input.TTL,
		Body:            input.Body,
		Status:          input.Status,
		RedactedRequest: input.RedactedRequest,
		BodyHash:        bodyHash(input.Body),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return &aperrors.CacheError{Reason: "marshal response cache entry", Err: err}
	}

	path := s.entryPath(input.API, input.Operation, input.RequestHash)
	if err := atomicio.WriteFile(path, data, 0o600); err != nil {
		return &aperrors.CacheError{Reason: "write response cache entry", Err: err}
	}

	return s.evictIfOverCap()
}

func (s *Store) evictIfOverCap() error {
	entries, err := s.listValid()
	if err != nil {
		return err
	}
	if len(entries) <= s.maxEntries {
		return nil
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].entry.CreatedAt.Before(entries[j].entry.CreatedAt) })
	excess := len(entries) - s.maxEntries
	for i := 0; i < excess; i++ {
		_ = os.Remove(entries[i].path)
	}
	return nil
}

type loadedEntry struct {
	path  string
	entry Entry
}

func (s *Store) listValid() ([]loadedEntry, error) {
	files, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, &aperrors.CacheError{Reason: "list response cache directory", Err: err}
	}

	now := time.Now()
	var out []loadedEntry
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), "_cache.json") {
			continue
		}
		path := filepath.Join(s.dir, f.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(data, &entry); err != nil {
			continue
		}
		if entry.expired(now) {
			_ = os.Remove(path)
			continue
		}
		out = append(out, loadedEntry{path: path, entry: entry})
	}
	return out, nil
}

// Stats summarises the cache directory's contents.
type Stats struct {
	Total      int
	Valid      int
	Expired    int
	TotalBytes int64
	HitsByAPI  map[string]int
}

// Stat scans the directory and computes aggregate statistics. It does not
// mutate the directory (expired entries are counted, not removed).
func (s *Store) Stat() (Stats, error) {
	files, err := os.ReadDir(s.dir)
	if err != nil {
		return Stats{}, &aperrors.CacheError{Reason: "list response cache directory", Err: err}
	}

	stats := Stats{HitsByAPI: map[string]int{}}
	now := time.Now()
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), "_cache.json") {
			continue
		}
		info, err := f.Info()
		if err != nil {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, f.Name()))
		if err != nil {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(data, &entry); err != nil {
			continue
		}

		stats.Total++
		stats.TotalBytes += info.Size()
		if entry.expired(now) {
			stats.Expired++
		} else {
			stats.Valid++
			stats.HitsByAPI[entry.API]++
		}
	}
	return stats, nil
}

// Clear removes cache entries. When api is empty, every entry is removed;
// otherwise only entries for that API.
func (s *Store) Clear(api string) error {
	files, err := os.ReadDir(s.dir)
	if err != nil {
		return &aperrors.CacheError{Reason: "list response cache directory", Err: err}
	}
	prefix := ""
	if api != "" {
		prefix = sanitizeComponent(api) + "_"
	}
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), "_cache.json") {
			continue
		}
		if prefix != "" && !strings.HasPrefix(f.Name(), prefix) {
			continue
		}
		_ = os.Remove(filepath.Join(s.dir, f.Name()))
	}
	return nil
}

func bodyHash(body []byte) string {
	return fmt.Sprintf("%x", simpleFNV(body))
}

// simpleFNV is a tiny FNV-1a implementation used only to fingerprint cached
// bodies for invalidation checks; it is not a security boundary.
func simpleFNV(data []byte) uint64 {
	const offset64 = 14695981039346656037
	const prime64 = 1099511628211
	hash := uint64(offset64)
	for _, b := range data {
		hash ^= uint64(b)
		hash *= prime64
	}
	return hash
}

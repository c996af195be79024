// Package cachestore persists a cachemodel.CachedSpec as a compact binary
// file per API, alongside a metadata index used for fast freshness checks.
// Grounded on the fingerprinting and atomic-rewrite discipline of a typical
// spec-cache manager: content hash + mtime + size comparisons gate a costly
// hash recomputation, and every mutation goes through atomicio.
package cachestore

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/kioku/aperture/internal/atomicio"
	"github.com/kioku/aperture/pkg/aperrors"
	"github.com/kioku/aperture/pkg/cachemodel"
)

const metadataFileName = "cache_metadata.json"

// Store manages the on-disk cache directory: <name>.bin files and the
// shared cache_metadata.json index.
type Store struct {
	dir string
}

// New returns a Store rooted at dir. dir must already exist.
func New(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) specPath(name string) string {
	return filepath.Join(s.dir, name+".bin")
}

func (s *Store) metadataPath() string {
	return filepath.Join(s.dir, metadataFileName)
}

// Save serialises spec with msgpack and writes it atomically, then updates
// the metadata index (also atomically) under the directory lock.
func (s *Store) Save(spec *cachemodel.CachedSpec, sourcePath string) error {
	data, err := msgpack.Marshal(spec)
	if err != nil {
		return &aperrors.CacheError{Reason: "marshal cached spec", Err: err}
	}

	return atomicio.WithLock(s.dir, func() error {
		if err := atomicio.WriteFile(s.specPath(spec.Name), data, 0o600); err != nil {
			return &aperrors.CacheError{Reason: "write cached spec", Err: err}
		}

		fp, err := Fingerprint(sourcePath)
		if err != nil {
			return &aperrors.CacheError{Reason: "fingerprint source spec", Err: err}
		}

		meta, err := s.loadMetadataLocked()
		if err != nil {
			return err
		}
		meta.Specs[spec.Name] = cachemodel.SpecMetadata{
			UpdatedAt:   time.Now(),
			ContentHash: fp.ContentHash,
			Mtime:       fp.Mtime,
			FileSize:    fp.FileSize,
		}
		return s.saveMetadataLocked(meta)
	})
}

// Load reads and validates the cache entry for name against sourcePath's
// current fingerprint, following the freshness check's fast-path-first
// ordering: metadata presence, then mtime/size, then content hash.
func (s *Store) Load(name, sourcePath string) (*cachemodel.CachedSpec, error) {
	meta, err := s.loadMetadataLocked()
	if err != nil {
		return nil, err
	}

	entry, ok := meta.Specs[name]
	if !ok {
		return nil, &aperrors.CacheError{Reason: fmt.Sprintf("no cache entry for %q", name)}
	}

	fresh, err := s.isFresh(entry, sourcePath)
	if err != nil {
		return nil, err
	}
	if !fresh {
		return nil, &aperrors.CacheError{Reason: fmt.Sprintf("cache entry for %q is stale; run reinit", name)}
	}

	data, err := os.ReadFile(s.specPath(name))
	if err != nil {
		return nil, &aperrors.CacheError{Reason: "read cached spec", Err: err}
	}

	var spec cachemodel.CachedSpec
	if err := msgpack.Unmarshal(data, &spec); err != nil {
		return nil, &aperrors.CacheError{Reason: "corrupted binary cache", Err: err}
	}

	if spec.CacheFormatVersion != cachemodel.CacheFormatVersion {
		return nil, &aperrors.CacheError{Reason: fmt.Sprintf(
			"cache format version mismatch: have %d want %d", spec.CacheFormatVersion, cachemodel.CacheFormatVersion)}
	}

	return &spec, nil
}

// isFresh implements the fast-path-first ordering: mtime/size comparison
// short-circuits before a content-hash recomputation; entries predating
// fingerprint fields are treated leniently ("no opinion" -> load succeeds).
func (s *Store) isFresh(entry cachemodel.SpecMetadata, sourcePath string) (bool, error) {
	info, err := os.Stat(sourcePath)
	if err != nil {
		return false, &aperrors.CacheError{Reason: "stat source spec", Err: err}
	}

	if entry.Mtime.IsZero() && entry.FileSize == 0 && entry.ContentHash == "" {
		return true, nil
	}

	if !entry.Mtime.IsZero() && !entry.Mtime.Equal(info.ModTime()) {
		return false, nil
	}
	if entry.FileSize != 0 && entry.FileSize != info.Size() {
		return false, nil
	}

	if entry.ContentHash == "" {
		return true, nil
	}

	fp, err := Fingerprint(sourcePath)
	if err != nil {
		return false, err
	}
	return fp.ContentHash == entry.ContentHash, nil
}

// Invalidate removes one spec's cache entry and binary file.
func (s *Store) Invalidate(name string) error {
	return atomicio.WithLock(s.dir, func() error {
		_ = os.Remove(s.specPath(name))
		meta, err := s.loadMetadataLocked()
		if err != nil {
			return err
		}
		delete(meta.Specs, name)
		return s.saveMetadataLocked(meta)
	})
}

func (s *Store) loadMetadataLocked() (*cachemodel.GlobalCacheMetadata, error) {
	data, err := os.ReadFile(s.metadataPath())
	if os.IsNotExist(err) {
		return &cachemodel.GlobalCacheMetadata{
			CacheFormatVersion: cachemodel.CacheFormatVersion,
			Specs:              map[string]cachemodel.SpecMetadata{},
		}, nil
	}
	if err != nil {
		return nil, &aperrors.CacheError{Reason: "read cache metadata", Err: err}
	}

	var meta cachemodel.GlobalCacheMetadata
	if err := jsonUnmarshal(data, &meta); err != nil {
		return nil, &aperrors.CacheError{Reason: "corrupted cache metadata", Err: err}
	}
	if meta.Specs == nil {
		meta.Specs = map[string]cachemodel.SpecMetadata{}
	}
	return &meta, nil
}

func (s *Store) saveMetadataLocked(meta *cachemodel.GlobalCacheMetadata) error {
	data, err := jsonMarshalIndent(meta)
	if err != nil {
		return &aperrors.CacheError{Reason: "marshal cache metadata", Err: err}
	}
	if err := atomicio.WriteFile(s.metadataPath(), data, 0o600); err != nil {
		return &aperrors.CacheError{Reason: "write cache metadata", Err: err}
	}
	return nil
}

// FingerprintInfo is the content_hash + mtime + file_size triple recorded for
// one source spec file.
type FingerprintInfo struct {
	ContentHash string
	Mtime       time.Time
	FileSize    int64
}

// Fingerprint computes the fingerprint of the spec file at path.
func Fingerprint(path string) (FingerprintInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FingerprintInfo{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return FingerprintInfo{}, err
	}
	sum := sha256.Sum256(data)
	return FingerprintInfo{
		ContentHash: hex.EncodeToString(sum[:]),
		Mtime:       info.ModTime(),
		FileSize:    info.Size(),
	}, nil
}

// Package atomicio provides crash-safe file writes and advisory directory
// locking shared by every component that mutates the cache directory.
package atomicio

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// WriteFile writes data to path by first writing to a sibling temp file and
// renaming it onto path. The target is never truncated in place: a reader
// either sees the previous complete content or the new complete content,
// never a partial write.
func WriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := tempSiblingFile(dir, filepath.Base(path))
	if err != nil {
		return fmt.Errorf("atomicio: create temp file: %w", err)
	}

	if err := writeAndClose(tmp, data, perm); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("atomicio: write temp file: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("atomicio: rename temp file: %w", err)
	}

	return nil
}

func writeAndClose(path string, data []byte, perm os.FileMode) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// tempSiblingFile picks a sibling temp file name of the form
// .<basename>.<64-bit-random-hex>.tmp and ensures it does not already exist.
func tempSiblingFile(dir, basename string) (string, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	suffix := binary.BigEndian.Uint64(buf[:])
	name := fmt.Sprintf(".%s.%016x.tmp", basename, suffix)
	return filepath.Join(dir, name), nil
}

// DirLock is an advisory exclusive lock scoped to one cache directory,
// implemented as a lock file named .aperture.lock inside it.
type DirLock struct {
	flock *flock.Flock
}

// NewDirLock prepares (without acquiring) a lock for dir. The directory must
// already exist.
func NewDirLock(dir string) *DirLock {
	return &DirLock{flock: flock.New(filepath.Join(dir, ".aperture.lock"))}
}

// Acquire blocks until the exclusive lock is granted.
func (l *DirLock) Acquire() error {
	return l.flock.Lock()
}

// TryAcquire attempts to take the lock without blocking. ok is false if the
// lock is currently held by another process.
func (l *DirLock) TryAcquire() (ok bool, err error) {
	return l.flock.TryLock()
}

// Release drops the lock.
func (l *DirLock) Release() error {
	return l.flock.Unlock()
}

// WithLock acquires the directory lock, runs fn, and releases the lock
// regardless of fn's outcome.
func WithLock(dir string, fn func() error) error {
	lock := NewDirLock(dir)
	if err := lock.Acquire(); err != nil {
		return fmt.Errorf("atomicio: acquire lock on %s: %w", dir, err)
	}
	defer func() { _ = lock.Release() }()
	return fn()
}

// Package filelock coordinates writes to reflector's state files across
// goroutines and processes. Append-only sinks use AppendSync; whole-file
// state uses LockAndWrite.
package filelock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrLocked is returned by TryWithLock when another holder owns the lock.
var ErrLocked = errors.New("lock is held by another process")

// FileLock wraps a flock advisory lock.
type FileLock struct {
	flock *flock.Flock
	path  string
}

// NewFileLock creates a lock backed by the file at path. The file is created
// on first use.
func NewFileLock(path string) *FileLock {
	return &FileLock{
		flock: flock.New(path),
		path:  path,
	}
}

// Path returns the lock file path.
func (fl *FileLock) Path() string {
	return fl.path
}

// Lock acquires an exclusive lock, blocking until it is available.
func (fl *FileLock) Lock() error {
	if err := fl.flock.Lock(); err != nil {
		return fmt.Errorf("acquire lock on %s: %w", fl.path, err)
	}
	return nil
}

// TryLock attempts to acquire the lock without blocking.
func (fl *FileLock) TryLock() (bool, error) {
	acquired, err := fl.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("try lock on %s: %w", fl.path, err)
	}
	return acquired, nil
}

// Unlock releases the lock.
func (fl *FileLock) Unlock() error {
	if err := fl.flock.Unlock(); err != nil {
		return fmt.Errorf("release lock on %s: %w", fl.path, err)
	}
	return nil
}

// WithLock runs fn while holding the lock.
func (fl *FileLock) WithLock(fn func() error) error {
	if err := fl.Lock(); err != nil {
		return err
	}
	defer fl.Unlock()
	return fn()
}

// TryWithLock runs fn only if the lock can be taken immediately.
func (fl *FileLock) TryWithLock(fn func() error) error {
	ok, err := fl.TryLock()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: %w", fl.path, ErrLocked)
	}
	defer fl.Unlock()
	return fn()
}

// AppendSync appends data to the file at path under its ".lock" companion
// lock and fsyncs before returning, so the bytes survive a crash right after
// the call.
func AppendSync(path string, data []byte) error {
	lock := NewFileLock(path + ".lock")
	return lock.WithLock(func() error {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}
		if _, err := f.Write(data); err != nil {
			f.Close()
			return fmt.Errorf("append to %s: %w", path, err)
		}
		if err := f.Sync(); err != nil {
			f.Close()
			return fmt.Errorf("sync %s: %w", path, err)
		}
		return f.Close()
	})
}

// AtomicWrite writes data to path through a temp file in the same directory
// followed by a rename, so readers never observe a partial file.
func AtomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	tempFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tempPath := tempFile.Name()

	defer func() {
		if tempFile != nil {
			tempFile.Close()
			os.Remove(tempPath)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tempPath, 0644); err != nil {
		return fmt.Errorf("set permissions: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("rename temp file to %s: %w", path, err)
	}

	tempFile = nil
	return nil
}

// LockAndWrite holds the ".lock" companion lock of path while atomically
// replacing its contents.
func LockAndWrite(path string, data []byte) error {
	lock := NewFileLock(path + ".lock")
	return lock.WithLock(func() error {
		return AtomicWrite(path, data)
	})
}

// LockAndRemove removes path while holding its companion lock. A missing file
// is not an error.
func LockAndRemove(path string) error {
	lock := NewFileLock(path + ".lock")
	return lock.WithLock(func() error {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", path, err)
		}
		return nil
	})
}

package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
	"github.com/pelletier/go-toml/v2"
)

// File is a Store backed by a TOML key-value file. Every call re-reads the
// file, so a login or logout performed by another process is observed on
// the next dispatch. A sidecar ".lock" file serializes access across
// processes; mu serializes goroutines sharing the one flock handle, which
// would otherwise treat a second Lock as already held.
type File struct {
	path string

	mu   sync.Mutex
	lock *flock.Flock
}

// NewFile returns a File store persisting to path.
func NewFile(path string) *File {
	return &File{path: path, lock: flock.New(path + ".lock")}
}

// Path returns the session file location.
func (f *File) Path() string { return f.path }

func (f *File) Token() (string, bool, error) {
	if err := f.ensureDir(); err != nil {
		return "", false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.lock.RLock(); err != nil {
		return "", false, fmt.Errorf("session: lock %s: %w", f.path, err)
	}
	defer func() { _ = f.lock.Unlock() }()

	kv, err := f.read()
	if err != nil {
		return "", false, err
	}
	tok := kv[TokenKey]
	return tok, tok != "", nil
}

func (f *File) SetToken(token string) error {
	if token == "" {
		return ErrEmptyToken
	}
	return f.update(func(kv map[string]string) { kv[TokenKey] = token })
}

func (f *File) Clear() error {
	return f.update(func(kv map[string]string) { delete(kv, TokenKey) })
}

func (f *File) update(mutate func(map[string]string)) error {
	if err := f.ensureDir(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.lock.Lock(); err != nil {
		return fmt.Errorf("session: lock %s: %w", f.path, err)
	}
	defer func() { _ = f.lock.Unlock() }()

	kv, err := f.read()
	if err != nil {
		return err
	}
	mutate(kv)
	if len(kv) == 0 {
		if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("session: remove %s: %w", f.path, err)
		}
		return nil
	}
	return f.write(kv)
}

func (f *File) read() (map[string]string, error) {
	kv := map[string]string{}
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return kv, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: read %s: %w", f.path, err)
	}
	if err := toml.Unmarshal(data, &kv); err != nil {
		return nil, fmt.Errorf("session: parse %s: %w", f.path, err)
	}
	return kv, nil
}

func (f *File) write(kv map[string]string) error {
	data, err := toml.Marshal(kv)
	if err != nil {
		return fmt.Errorf("session: encode: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".session-*")
	if err != nil {
		return fmt.Errorf("session: write %s: %w", f.path, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("session: write %s: %w", f.path, err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("session: write %s: %w", f.path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("session: write %s: %w", f.path, err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("session: write %s: %w", f.path, err)
	}
	return nil
}

func (f *File) ensureDir() error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("session: create dir: %w", err)
	}
	return nil
}

var _ Store = (*File)(nil)

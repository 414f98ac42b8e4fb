package session

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// ErrFileUnavailable wraps filesystem failures of [FileStore].
var ErrFileUnavailable = errors.New("session file unavailable")

// FileStore keeps one file per key inside a directory. Files are written with
// mode 0600 through a temp file and rename.
type FileStore struct {
	dir string
	now func() time.Time
}

// NewFileStore returns a store rooted at dir, creating it with mode 0700.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("session directory required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFileUnavailable, err)
	}
	return &FileStore{dir: dir, now: time.Now}, nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, base64.RawURLEncoding.EncodeToString([]byte(key))+".sess")
}

// Save writes r under key.
func (s *FileStore) Save(_ context.Context, key string, r *Record) error {
	blob, err := Encode(r)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, ".sess-*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFileUnavailable, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: %v", ErrFileUnavailable, err)
	}
	if _, err := tmp.Write(blob); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: %v", ErrFileUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrFileUnavailable, err)
	}
	if err := os.Rename(tmpName, s.path(key)); err != nil {
		return fmt.Errorf("%w: %v", ErrFileUnavailable, err)
	}
	return nil
}

// Load reads the record under key. Records past their expiry are removed and
// reported as [ErrNotFound].
func (s *FileStore) Load(ctx context.Context, key string) (*Record, error) {
	blob, err := os.ReadFile(s.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrFileUnavailable, err)
	}

	r, err := Decode(blob)
	if err != nil {
		_ = s.Delete(ctx, key)
		return nil, err
	}
	if r.ExpiresAt != 0 && r.TTL(s.now(), 0) <= 0 {
		_ = s.Delete(ctx, key)
		return nil, ErrNotFound
	}
	return r, nil
}

// Delete removes the file for key. A missing file is not an error.
func (s *FileStore) Delete(_ context.Context, key string) error {
	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %v", ErrFileUnavailable, err)
	}
	return nil
}

package memory

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileStoreOption configures a file store.
type FileStoreOption func(*fileStore)

// WithMaxFileSize skips documents larger than n bytes. Zero or negative
// means no limit.
func WithMaxFileSize(n int64) FileStoreOption {
	return func(s *fileStore) {
		s.maxSize = n
	}
}

type fileStore struct {
	root    string
	maxSize int64
}

// NewFileStore returns a read-only Store over the files below root. A key
// is the file's path relative to root with / separators. Hidden files and
// directories are never listed, and a missing root lists as empty.
func NewFileStore(root string, opts ...FileStoreOption) Store {
	s := &fileStore{root: root}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *fileStore) tooLarge(size int64) bool {
	return s.maxSize > 0 && size > s.maxSize
}

func (s *fileStore) List(ctx context.Context) ([]string, error) {
	var keys []string

	walk := func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == s.root && errors.Is(err, fs.ErrNotExist) {
				return fs.SkipAll
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		hidden := path != s.root && strings.HasPrefix(d.Name(), ".")
		switch {
		case hidden && d.IsDir():
			return filepath.SkipDir
		case hidden, d.IsDir():
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() || s.tooLarge(info.Size()) {
			return nil
		}

		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	}

	if err := filepath.WalkDir(s.root, walk); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadFailed, err)
	}
	return keys, nil
}

func (s *fileStore) Load(ctx context.Context, keys ...string) ([]Entry, error) {
	entries := make([]Entry, 0, len(keys))

	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLoadFailed, err)
		}

		data, err := s.read(key)
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Key: key, Value: data})
	}
	return entries, nil
}

func (s *fileStore) read(key string) ([]byte, error) {
	path := filepath.Join(s.root, filepath.FromSlash(key))

	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	case err != nil:
		return nil, fmt.Errorf("%w: %s: %v", ErrLoadFailed, key, err)
	case s.tooLarge(info.Size()):
		return nil, fmt.Errorf("%w: %s (%d bytes)", ErrTooLarge, key, info.Size())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrLoadFailed, key, err)
	}
	return data, nil
}

// Package memory provides access to the retrieval documents an agent is
// grounded with. Documents are addressed by /-separated keys and read
// from pluggable storage on every call.
package memory

import (
	"context"
	"errors"
)

var (
	ErrKeyNotFound = errors.New("document not found")
	ErrLoadFailed  = errors.New("document store unreadable")
	ErrTooLarge    = errors.New("document exceeds size limit")
)

// Entry is a stored document. Keys are /-separated hierarchical paths and
// values are the raw document bytes.
type Entry struct {
	Key   string
	Value []byte
}

// Store lists and loads documents. Implementations are stateless: they
// perform I/O on each call without caching.
type Store interface {
	// List returns all available keys in lexical order.
	List(ctx context.Context) ([]string, error)
	// Load retrieves entries for the specified keys, in the order given.
	Load(ctx context.Context, keys ...string) ([]Entry, error)
}

// LoadAll lists the store and loads every entry.
func LoadAll(ctx context.Context, s Store) ([]Entry, error) {
	keys, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, nil
	}
	return s.Load(ctx, keys...)
}

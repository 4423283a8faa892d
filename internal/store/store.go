// Package store provides the document store behind every coachd repository.
//
// Documents are JSON values addressed by (collection, key). All writes that
// depend on the current value go through Update, which applies a mutation
// function atomically: concurrent updates to the same key never lose writes.
// Keys are conventionally "<userID>/<id>" so List can select one user's
// documents by prefix.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrConflict is returned when an update lost every optimistic retry.
	ErrConflict = errors.New("concurrent update conflict")

	// ErrSkip may be returned by an UpdateFunc to leave the document unchanged.
	// Update then returns nil.
	ErrSkip = errors.New("skip update")
)

// UpdateFunc receives the current encoded document (nil if absent) and
// returns the new encoding.
type UpdateFunc func(current []byte, exists bool) ([]byte, error)

// Store is a keyed JSON document store with atomic read-modify-write.
type Store interface {
	// Get returns the encoded document or ErrNotFound.
	Get(ctx context.Context, collection, key string) ([]byte, error)

	// Put writes the document unconditionally.
	Put(ctx context.Context, collection, key string, value []byte) error

	// Update applies fn atomically to the document.
	Update(ctx context.Context, collection, key string, fn UpdateFunc) error

	// List returns every document whose key starts with prefix, ordered by key.
	List(ctx context.Context, collection, prefix string) ([][]byte, error)

	// Delete removes the document. Deleting a missing document is not an error.
	Delete(ctx context.Context, collection, key string) error

	// Close releases backend resources.
	Close() error
}

// KeySeparator joins the user id and document id of a key. User ids must
// not contain it or one user's prefix would select another's documents.
const KeySeparator = "/"

// Key joins a user id and document id into a store key.
func Key(userID, id string) string {
	return userID + KeySeparator + id
}

// UserPrefix returns the List prefix selecting one user's documents.
func UserPrefix(userID string) string {
	return userID + KeySeparator
}

// GetJSON loads and decodes a document.
func GetJSON[T any](ctx context.Context, s Store, collection, key string) (T, error) {
	var v T
	raw, err := s.Get(ctx, collection, key)
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("decode %s/%s: %w", collection, key, err)
	}
	return v, nil
}

// PutJSON encodes and writes a document.
func PutJSON[T any](ctx context.Context, s Store, collection, key string, v T) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, key, err)
	}
	return s.Put(ctx, collection, key, raw)
}

// UpdateJSON decodes the current document into a T (the zero value when
// absent), lets fn mutate it and writes the result back atomically.
func UpdateJSON[T any](ctx context.Context, s Store, collection, key string, fn func(v *T, exists bool) error) error {
	return s.Update(ctx, collection, key, func(current []byte, exists bool) ([]byte, error) {
		var v T
		if exists {
			if err := json.Unmarshal(current, &v); err != nil {
				return nil, fmt.Errorf("decode %s/%s: %w", collection, key, err)
			}
		}
		if err := fn(&v, exists); err != nil {
			return nil, err
		}
		return json.Marshal(v)
	})
}

// ListJSON decodes every document under prefix.
func ListJSON[T any](ctx context.Context, s Store, collection, prefix string) ([]T, error) {
	raws, err := s.List(ctx, collection, prefix)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(raws))
	for _, raw := range raws {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("decode %s: %w", collection, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// sortedMatches returns the keys of m with the given prefix in order.
func sortedMatches[V any](m map[string]V, prefix string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

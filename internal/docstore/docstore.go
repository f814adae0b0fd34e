// Package docstore defines the document-database contract the core runs on:
// point reads and writes, optimistic transactions, atomic batches, ordered
// collection queries and push subscriptions.
//
// Paths alternate collection and document segments, e.g.
// "users/u1/mission_progress/2025-09-28".
package docstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultMaxAttempts bounds transaction retries after a conflicting write.
const DefaultMaxAttempts = 5

var (
	// ErrNotFound is returned by Get for a missing document.
	ErrNotFound = errors.New("docstore: document not found")
	// ErrConflict is returned when a transaction kept losing to concurrent writes.
	ErrConflict = errors.New("docstore: transaction conflict, retries exhausted")
	// ErrInvalidPath is returned for paths that do not name a document.
	ErrInvalidPath = errors.New("docstore: invalid document path")
)

// Document is a snapshot of one document. Data is nil when the document does
// not exist (only subscriptions deliver such snapshots).
type Document struct {
	Path      string
	ID        string
	Data      []byte
	UpdatedAt time.Time
}

// Exists reports whether the snapshot holds data.
func (d Document) Exists() bool { return d.Data != nil }

// DataTo decodes the document into v.
func (d Document) DataTo(v any) error {
	if !d.Exists() {
		return ErrNotFound
	}
	return decode(d.Data, v)
}

// Direction orders query results.
type Direction int

const (
	Asc Direction = iota
	Desc
)

// Query selects the documents directly inside a collection.
type Query struct {
	Collection string
	OrderBy    string // top-level field name; empty orders by document id
	Direction  Direction
	Limit      int // 0 means no limit
}

// Write is one mutation of a batch or transaction.
type Write struct {
	Path   string
	Value  any
	Merge  bool
	Delete bool
}

// SetOption tunes Set.
type SetOption func(*setOptions)

type setOptions struct {
	merge bool
}

// Merge makes Set overlay the top-level fields of the value onto the existing
// document instead of replacing it.
func Merge() SetOption {
	return func(o *setOptions) { o.merge = true }
}

// ApplySetOptions resolves options for implementations.
func ApplySetOptions(opts []SetOption) (merge bool) {
	var o setOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o.merge
}

// Reader is the read half shared by stores and transactions.
type Reader interface {
	Get(ctx context.Context, path string) (Document, error)
}

// Tx is a read-modify-write unit. Reads observe committed state; writes are
// buffered and applied atomically at commit, or not at all.
type Tx interface {
	Reader
	Set(path string, value any, opts ...SetOption) error
	Delete(path string) error
}

// TxFunc may run more than once; it must not have side effects outside tx.
type TxFunc func(ctx context.Context, tx Tx) error

// Store is the document database.
type Store interface {
	Reader
	Set(ctx context.Context, path string, value any, opts ...SetOption) error
	Delete(ctx context.Context, path string) error
	// RunTransaction runs fn and commits its writes if none of the documents it
	// read changed meanwhile; otherwise it retries with fresh reads. After
	// DefaultMaxAttempts lost races it returns ErrConflict.
	RunTransaction(ctx context.Context, fn TxFunc) error
	// Batch applies all writes atomically.
	Batch(ctx context.Context, writes []Write) error
	Query(ctx context.Context, q Query) ([]Document, error)
	// Subscribe delivers the full query result now and after every change to
	// the collection. The caller must invoke cancel to release it.
	Subscribe(ctx context.Context, q Query) (<-chan []Document, func(), error)
	// SubscribeDoc delivers the document now and after every change to it.
	SubscribeDoc(ctx context.Context, path string) (<-chan Document, func(), error)
}

// Join builds a path from segments.
func Join(segments ...string) string {
	return strings.Join(segments, "/")
}

// Split returns the parent collection and id of a document path.
func Split(path string) (collection, id string, err error) {
	parts := strings.Split(path, "/")
	if len(parts) < 2 || len(parts)%2 != 0 {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	for _, p := range parts {
		if p == "" {
			return "", "", fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
	}
	return strings.Join(parts[:len(parts)-1], "/"), parts[len(parts)-1], nil
}

// Get reads path and decodes it into a T. found is false for a missing document.
func Get[T any](ctx context.Context, r Reader, path string) (value T, found bool, err error) {
	doc, err := r.Get(ctx, path)
	if errors.Is(err, ErrNotFound) {
		return value, false, nil
	}
	if err != nil {
		return value, false, err
	}
	if err := doc.DataTo(&value); err != nil {
		return value, false, fmt.Errorf("decode %s: %w", path, err)
	}
	return value, true, nil
}

// DecodeAll decodes a query result.
func DecodeAll[T any](docs []Document) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, d := range docs {
		var v T
		if err := d.DataTo(&v); err != nil {
			return nil, fmt.Errorf("decode %s: %w", d.Path, err)
		}
		out = append(out, v)
	}
	return out, nil
}

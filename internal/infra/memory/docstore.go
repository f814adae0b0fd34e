package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"chronotech-quiz-service/internal/docstore"
	"chronotech-quiz-service/internal/metrics"
)

// DocStore is an in-process implementation of docstore.Store. Transactions are
// optimistic: every path carries the sequence number of its last write, reads
// record it, and commit fails if any read path moved on.
type DocStore struct {
	now         func() time.Time
	maxAttempts int
	metrics     *metrics.Recorder

	mu       sync.RWMutex
	docs     map[string]storedDoc
	versions map[string]uint64
	seq      uint64
	subs     map[*subscription]struct{}

	// beforeCommit runs after a transaction function returns and before its
	// writes are validated; tests use it to inject concurrent writes.
	beforeCommit func(attempt int)
}

type storedDoc struct {
	data      []byte
	updatedAt time.Time
}

type subscription struct {
	query *docstore.Query
	path  string
	docs  chan []docstore.Document
	doc   chan docstore.Document
}

func NewDocStore(rec *metrics.Recorder) *DocStore {
	return &DocStore{
		now:         time.Now,
		maxAttempts: docstore.DefaultMaxAttempts,
		metrics:     rec,
		docs:        make(map[string]storedDoc),
		versions:    make(map[string]uint64),
		subs:        make(map[*subscription]struct{}),
	}
}

// SetMaxAttempts bounds transaction retries. Values below 1 are ignored.
func (s *DocStore) SetMaxAttempts(n int) {
	if n > 0 {
		s.maxAttempts = n
	}
}

func (s *DocStore) Get(_ context.Context, path string) (docstore.Document, error) {
	if _, _, err := docstore.Split(path); err != nil {
		return docstore.Document{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, _ := s.snapshotLocked(path)
	if !doc.Exists() {
		return docstore.Document{}, docstore.ErrNotFound
	}
	return doc, nil
}

func (s *DocStore) Set(ctx context.Context, path string, value any, opts ...docstore.SetOption) error {
	return s.Batch(ctx, []docstore.Write{{Path: path, Value: value, Merge: docstore.ApplySetOptions(opts)}})
}

func (s *DocStore) Delete(ctx context.Context, path string) error {
	return s.Batch(ctx, []docstore.Write{{Path: path, Delete: true}})
}

func (s *DocStore) Batch(ctx context.Context, writes []docstore.Write) error {
	return s.RunTransaction(ctx, func(_ context.Context, tx docstore.Tx) error {
		for _, w := range writes {
			var err error
			if w.Delete {
				err = tx.Delete(w.Path)
			} else if w.Merge {
				err = tx.Set(w.Path, w.Value, docstore.Merge())
			} else {
				err = tx.Set(w.Path, w.Value)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *DocStore) RunTransaction(ctx context.Context, fn docstore.TxFunc) error {
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		tx := &memTx{store: s, reads: make(map[string]uint64)}
		if err := fn(ctx, tx); err != nil {
			return err
		}
		if s.beforeCommit != nil {
			s.beforeCommit(attempt)
		}
		ok, err := s.commit(tx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		s.metrics.TxRetry("memory")
	}
	return docstore.ErrConflict
}

func (s *DocStore) Query(_ context.Context, q docstore.Query) ([]docstore.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryLocked(q), nil
}

// Subscribe returns a channel that receives the full query result on every
// change to the collection. The caller must invoke the returned cancel
// function to avoid leaks.
func (s *DocStore) Subscribe(ctx context.Context, q docstore.Query) (<-chan []docstore.Document, func(), error) {
	sub := &subscription{query: &q, docs: make(chan []docstore.Document, 8)}

	s.mu.Lock()
	s.subs[sub] = struct{}{}
	sub.docs <- s.queryLocked(q)
	s.mu.Unlock()

	cancel := s.cancelFunc(sub)
	context.AfterFunc(ctx, cancel)
	return sub.docs, cancel, nil
}

func (s *DocStore) SubscribeDoc(ctx context.Context, path string) (<-chan docstore.Document, func(), error) {
	if _, _, err := docstore.Split(path); err != nil {
		return nil, nil, err
	}
	sub := &subscription{path: path, doc: make(chan docstore.Document, 8)}

	s.mu.Lock()
	s.subs[sub] = struct{}{}
	initial, _ := s.snapshotLocked(path)
	sub.doc <- initial
	s.mu.Unlock()

	cancel := s.cancelFunc(sub)
	context.AfterFunc(ctx, cancel)
	return sub.doc, cancel, nil
}

func (s *DocStore) cancelFunc(sub *subscription) func() {
	return func() {
		s.mu.Lock()
		if _, ok := s.subs[sub]; ok {
			delete(s.subs, sub)
			if sub.docs != nil {
				close(sub.docs)
			}
			if sub.doc != nil {
				close(sub.doc)
			}
		}
		s.mu.Unlock()
	}
}

func (s *DocStore) commit(tx *memTx) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for path, seen := range tx.reads {
		if s.versions[path] != seen {
			return false, nil
		}
	}

	now := s.now()
	changed := make([]string, 0, len(tx.order))
	for _, path := range tx.order {
		data := tx.pending[path]
		s.seq++
		s.versions[path] = s.seq
		if data == nil {
			delete(s.docs, path)
		} else {
			s.docs[path] = storedDoc{data: data, updatedAt: now}
		}
		changed = append(changed, path)
	}
	s.broadcastLocked(changed)
	return true, nil
}

func (s *DocStore) broadcastLocked(changed []string) {
	for sub := range s.subs {
		switch {
		case sub.query != nil:
			for _, path := range changed {
				if docstore.InCollection(path, sub.query.Collection) {
					docstore.SendLatest(sub.docs, s.queryLocked(*sub.query))
					break
				}
			}
		default:
			for _, path := range changed {
				if path == sub.path {
					doc, _ := s.snapshotLocked(path)
					docstore.SendLatest(sub.doc, doc)
					break
				}
			}
		}
	}
}

func (s *DocStore) queryLocked(q docstore.Query) []docstore.Document {
	var docs []docstore.Document
	for path := range s.docs {
		if !docstore.InCollection(path, q.Collection) {
			continue
		}
		doc, _ := s.snapshotLocked(path)
		docs = append(docs, doc)
	}
	return docstore.Apply(docs, q)
}

func (s *DocStore) snapshotLocked(path string) (docstore.Document, uint64) {
	_, id, _ := docstore.Split(path)
	doc := docstore.Document{Path: path, ID: id}
	if stored, ok := s.docs[path]; ok {
		doc.Data = append([]byte(nil), stored.data...)
		doc.UpdatedAt = stored.updatedAt
	}
	return doc, s.versions[path]
}

type memTx struct {
	store   *DocStore
	reads   map[string]uint64
	pending map[string][]byte
	order   []string
}

func (t *memTx) Get(_ context.Context, path string) (docstore.Document, error) {
	if _, _, err := docstore.Split(path); err != nil {
		return docstore.Document{}, err
	}
	t.store.mu.RLock()
	doc, version := t.store.snapshotLocked(path)
	t.store.mu.RUnlock()

	if seen, ok := t.reads[path]; ok && seen != version {
		// the document moved between two reads of the same attempt; make the
		// commit fail so the function re-runs on a consistent view
		t.reads[path] = ^uint64(0)
	} else if !ok {
		t.reads[path] = version
	}
	if !doc.Exists() {
		return docstore.Document{}, docstore.ErrNotFound
	}
	return doc, nil
}

func (t *memTx) Set(path string, value any, opts ...docstore.SetOption) error {
	w := docstore.Write{Path: path, Value: value, Merge: docstore.ApplySetOptions(opts)}
	current, err := t.current(path, w.Merge)
	if err != nil {
		return err
	}
	data, err := docstore.Resolve(w, current)
	if err != nil {
		return err
	}
	t.stage(path, data)
	return nil
}

func (t *memTx) Delete(path string) error {
	if _, _, err := docstore.Split(path); err != nil {
		return err
	}
	t.stage(path, nil)
	return nil
}

// current returns what a merge overlays: a pending write from this
// transaction, or the committed document (read through the tx so the merge
// base is validated at commit).
func (t *memTx) current(path string, merge bool) ([]byte, error) {
	if _, _, err := docstore.Split(path); err != nil {
		return nil, err
	}
	if !merge {
		return nil, nil
	}
	if data, ok := t.pending[path]; ok {
		return data, nil
	}
	doc, err := t.Get(context.Background(), path)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return doc.Data, nil
}

func (t *memTx) stage(path string, data []byte) {
	if t.pending == nil {
		t.pending = make(map[string][]byte)
	}
	if _, ok := t.pending[path]; !ok {
		t.order = append(t.order, path)
	}
	t.pending[path] = data
}

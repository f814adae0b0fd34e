package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"chronotech-quiz-service/internal/docstore"
	"chronotech-quiz-service/internal/metrics"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DocStore implements docstore.Store on Redis.
//
// Layout:
//
//	doc:{path}        STRING  JSON envelope {"data":{...},"updatedAt":...}
//	col:{collection}  SET     ids of the documents directly in collection
//
// Transactions WATCH every key they read and commit their writes in one
// MULTI/EXEC, together with a PUBLISH of each changed path on the change
// channel. Subscriptions share a single pub/sub forwarder per store.
type DocStore struct {
	client      *redis.Client
	channel     string
	maxAttempts int
	now         func() time.Time
	metrics     *metrics.Recorder
	log         *zap.Logger

	mu        sync.Mutex
	subs      map[*subscription]struct{}
	forwarder context.CancelFunc

	// beforeCommit runs between the transaction function and EXEC.
	beforeCommit func(attempt int)
}

type envelope struct {
	Data      json.RawMessage `json:"data"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

type subscription struct {
	query *docstore.Query
	path  string

	mu     sync.Mutex
	closed bool
	docs   chan []docstore.Document
	doc    chan docstore.Document
}

func NewDocStore(client *redis.Client, rec *metrics.Recorder, log *zap.Logger) *DocStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &DocStore{
		client:      client,
		channel:     "docstore:changes",
		maxAttempts: docstore.DefaultMaxAttempts,
		now:         time.Now,
		metrics:     rec,
		log:         log,
		subs:        make(map[*subscription]struct{}),
	}
}

// SetMaxAttempts bounds transaction retries. Values below 1 are ignored.
func (s *DocStore) SetMaxAttempts(n int) {
	if n > 0 {
		s.maxAttempts = n
	}
}

func docKey(path string) string { return "doc:" + path }

func colKey(collection string) string { return "col:" + collection }

func (s *DocStore) Get(ctx context.Context, path string) (docstore.Document, error) {
	return s.read(ctx, s.client, path)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *DocStore) read(ctx context.Context, g getter, path string) (docstore.Document, error) {
	_, id, err := docstore.Split(path)
	if err != nil {
		return docstore.Document{}, err
	}
	raw, err := g.Get(ctx, docKey(path)).Bytes()
	if errors.Is(err, redis.Nil) {
		return docstore.Document{}, docstore.ErrNotFound
	}
	if err != nil {
		return docstore.Document{}, fmt.Errorf("redis get %s: %w", path, err)
	}
	return decodeEnvelope(path, id, raw)
}

func decodeEnvelope(path, id string, raw []byte) (docstore.Document, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return docstore.Document{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return docstore.Document{Path: path, ID: id, Data: env.Data, UpdatedAt: env.UpdatedAt}, nil
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
			switch {
			case w.Delete:
				err = tx.Delete(w.Path)
			case w.Merge:
				err = tx.Set(w.Path, w.Value, docstore.Merge())
			default:
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
		err := s.client.Watch(ctx, func(rtx *redis.Tx) error {
			tx := &redisTx{ctx: ctx, store: s, rtx: rtx}
			if err := fn(ctx, tx); err != nil {
				return err
			}
			if s.beforeCommit != nil {
				s.beforeCommit(attempt)
			}
			if len(tx.order) == 0 {
				return nil
			}
			_, err := rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				return s.queueWrites(ctx, pipe, tx)
			})
			return err
		})
		if errors.Is(err, redis.TxFailedErr) {
			s.metrics.TxRetry("redis")
			continue
		}
		return err
	}
	return docstore.ErrConflict
}

func (s *DocStore) queueWrites(ctx context.Context, pipe redis.Pipeliner, tx *redisTx) error {
	now := s.now()
	for _, path := range tx.order {
		collection, id, _ := docstore.Split(path)
		data := tx.pending[path]
		if data == nil {
			pipe.Del(ctx, docKey(path))
			pipe.SRem(ctx, colKey(collection), id)
		} else {
			raw, err := json.Marshal(envelope{Data: data, UpdatedAt: now})
			if err != nil {
				return fmt.Errorf("encode %s: %w", path, err)
			}
			pipe.Set(ctx, docKey(path), raw, 0)
			pipe.SAdd(ctx, colKey(collection), id)
		}
		pipe.Publish(ctx, s.channel, path)
	}
	return nil
}

func (s *DocStore) Query(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	ids, err := s.client.SMembers(ctx, colKey(q.Collection)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers %s: %w", q.Collection, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = docKey(docstore.Join(q.Collection, id))
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget %s: %w", q.Collection, err)
	}
	docs := make([]docstore.Document, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// removed between SMEMBERS and MGET
			continue
		}
		doc, err := decodeEnvelope(docstore.Join(q.Collection, ids[i]), ids[i], []byte(raw))
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docstore.Apply(docs, q), nil
}

// Subscribe returns a channel that receives the full query result now and on
// every change to the collection. The caller must invoke cancel to avoid leaks.
func (s *DocStore) Subscribe(ctx context.Context, q docstore.Query) (<-chan []docstore.Document, func(), error) {
	sub := &subscription{query: &q, docs: make(chan []docstore.Document, 8)}
	if err := s.register(ctx, sub); err != nil {
		return nil, nil, err
	}
	cancel := s.cancelFunc(sub)
	context.AfterFunc(ctx, cancel)
	return sub.docs, cancel, nil
}

func (s *DocStore) SubscribeDoc(ctx context.Context, path string) (<-chan docstore.Document, func(), error) {
	if _, _, err := docstore.Split(path); err != nil {
		return nil, nil, err
	}
	sub := &subscription{path: path, doc: make(chan docstore.Document, 8)}
	if err := s.register(ctx, sub); err != nil {
		return nil, nil, err
	}
	cancel := s.cancelFunc(sub)
	context.AfterFunc(ctx, cancel)
	return sub.doc, cancel, nil
}

func (s *DocStore) register(ctx context.Context, sub *subscription) error {
	if err := s.startForwarder(ctx); err != nil {
		return err
	}
	// hold the subscription lock across registration and the initial read so
	// no forwarded update can overtake the first snapshot
	sub.mu.Lock()
	defer sub.mu.Unlock()

	s.mu.Lock()
	s.subs[sub] = struct{}{}
	s.mu.Unlock()

	if err := s.refreshLocked(ctx, sub); err != nil {
		s.mu.Lock()
		delete(s.subs, sub)
		s.mu.Unlock()
		return err
	}
	return nil
}

// startForwarder subscribes to the change channel once per store.
func (s *DocStore) startForwarder(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.forwarder != nil {
		return nil
	}

	fwdCtx, cancel := context.WithCancel(context.Background())
	ps := s.client.Subscribe(fwdCtx, s.channel)
	// ensures the subscription is live before the first snapshot is read
	if _, err := ps.Receive(ctx); err != nil {
		cancel()
		_ = ps.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}
	s.forwarder = cancel

	go func() {
		defer ps.Close()
		ch := ps.Channel()
		for {
			select {
			case <-fwdCtx.Done():
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				s.dispatch(fwdCtx, m.Payload)
			}
		}
	}()
	return nil
}

func (s *DocStore) dispatch(ctx context.Context, path string) {
	s.mu.Lock()
	targets := make([]*subscription, 0, len(s.subs))
	for sub := range s.subs {
		if sub.matches(path) {
			targets = append(targets, sub)
		}
	}
	s.mu.Unlock()

	for _, sub := range targets {
		sub.mu.Lock()
		if err := s.refreshLocked(ctx, sub); err != nil {
			s.log.Warn("docstore subscription refresh failed", zap.String("path", path), zap.Error(err))
		}
		sub.mu.Unlock()
	}
}

func (sub *subscription) matches(path string) bool {
	if sub.query != nil {
		return docstore.InCollection(path, sub.query.Collection)
	}
	return sub.path == path
}

// refreshLocked reads the subscription's current view and delivers it.
// sub.mu must be held.
func (s *DocStore) refreshLocked(ctx context.Context, sub *subscription) error {
	if sub.closed {
		return nil
	}
	if sub.query != nil {
		docs, err := s.Query(ctx, *sub.query)
		if err != nil {
			return err
		}
		docstore.SendLatest(sub.docs, docs)
		return nil
	}
	doc, err := s.Get(ctx, sub.path)
	if errors.Is(err, docstore.ErrNotFound) {
		_, id, _ := docstore.Split(sub.path)
		doc, err = docstore.Document{Path: sub.path, ID: id}, nil
	}
	if err != nil {
		return err
	}
	docstore.SendLatest(sub.doc, doc)
	return nil
}

func (s *DocStore) cancelFunc(sub *subscription) func() {
	return func() {
		s.mu.Lock()
		delete(s.subs, sub)
		s.mu.Unlock()

		sub.mu.Lock()
		defer sub.mu.Unlock()
		if sub.closed {
			return
		}
		sub.closed = true
		if sub.docs != nil {
			close(sub.docs)
		}
		if sub.doc != nil {
			close(sub.doc)
		}
	}
}

// Close stops the change forwarder. Open subscriptions stop receiving updates.
func (s *DocStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.forwarder != nil {
		s.forwarder()
		s.forwarder = nil
	}
}

type redisTx struct {
	ctx     context.Context
	store   *DocStore
	rtx     *redis.Tx
	pending map[string][]byte
	order   []string
}

func (t *redisTx) Get(ctx context.Context, path string) (docstore.Document, error) {
	if _, _, err := docstore.Split(path); err != nil {
		return docstore.Document{}, err
	}
	if err := t.rtx.Watch(ctx, docKey(path)).Err(); err != nil {
		return docstore.Document{}, fmt.Errorf("redis watch %s: %w", path, err)
	}
	return t.store.read(ctx, t.rtx, path)
}

func (t *redisTx) Set(path string, value any, opts ...docstore.SetOption) error {
	if _, _, err := docstore.Split(path); err != nil {
		return err
	}
	w := docstore.Write{Path: path, Value: value, Merge: docstore.ApplySetOptions(opts)}
	var current []byte
	if w.Merge {
		if data, ok := t.pending[path]; ok {
			current = data
		} else {
			doc, err := t.Get(t.ctx, path)
			if err != nil && !errors.Is(err, docstore.ErrNotFound) {
				return err
			}
			current = doc.Data
		}
	}
	data, err := docstore.Resolve(w, current)
	if err != nil {
		return err
	}
	t.stage(path, data)
	return nil
}

func (t *redisTx) Delete(path string) error {
	if _, _, err := docstore.Split(path); err != nil {
		return err
	}
	t.stage(path, nil)
	return nil
}

func (t *redisTx) stage(path string, data []byte) {
	if t.pending == nil {
		t.pending = make(map[string][]byte)
	}
	if _, ok := t.pending[path]; !ok {
		t.order = append(t.order, path)
	}
	t.pending[path] = data
}

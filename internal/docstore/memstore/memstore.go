// Package memstore is an in-process docstore.Store. It backs the agent's
// "memory" driver and is the store fake used by service tests.
//
// Subscription pushes are delivered synchronously on the writing goroutine
// after the store lock is released, so a write has been observed by every open
// listener by the time it returns.
package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/yungbote/gallery-client/internal/docstore"
	"github.com/yungbote/gallery-client/internal/platform/logger"
)

type Store struct {
	log *logger.Logger

	mu     sync.Mutex
	docs   map[docstore.Path]docstore.Data
	subs   map[docstore.Path]map[int]*subscription
	nextID int
}

var _ docstore.Store = (*Store)(nil)

func New(baseLog *logger.Logger) *Store {
	if baseLog == nil {
		baseLog = logger.Nop()
	}
	return &Store{
		log:  baseLog.With("store", "MemStore"),
		docs: map[docstore.Path]docstore.Data{},
		subs: map[docstore.Path]map[int]*subscription{},
	}
}

// Seed replaces stored documents without notifying listeners.
func (s *Store) Seed(docs map[docstore.Path]docstore.Data) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for p, d := range docs {
		s.docs[docstore.Join(string(p))] = docstore.ApplySet(d)
	}
}

// SeedFile loads a JSON object of {"<document path>": {fields...}}.
func (s *Store) SeedFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}
	var docs map[string]map[string]any
	if err := json.Unmarshal(raw, &docs); err != nil {
		return fmt.Errorf("decode seed file: %w", err)
	}
	seed := make(map[docstore.Path]docstore.Data, len(docs))
	for p, d := range docs {
		dp := docstore.Join(p)
		if err := docstore.ValidateDocumentPath(dp); err != nil {
			return err
		}
		seed[dp] = d
	}
	s.Seed(seed)
	s.log.Info("Seeded memory store", "documents", len(seed), "file", path)
	return nil
}

// Snapshot deep-copies every stored document.
func (s *Store) Snapshot() map[docstore.Path]docstore.Data {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[docstore.Path]docstore.Data, len(s.docs))
	for p, d := range s.docs {
		out[p] = docstore.CloneData(d)
	}
	return out
}

// SubscriberCount reports open listeners for path.
func (s *Store) SubscriberCount(path docstore.Path) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs[path])
}

func (s *Store) Get(ctx context.Context, path docstore.Path) (*docstore.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := docstore.ValidateDocumentPath(path); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(path), nil
}

func (s *Store) Set(ctx context.Context, path docstore.Path, data docstore.Data) error {
	return s.write(ctx, path, false, func(_ docstore.Data) docstore.Data {
		return docstore.ApplySet(data)
	})
}

func (s *Store) Merge(ctx context.Context, path docstore.Path, data docstore.Data) error {
	return s.write(ctx, path, false, func(cur docstore.Data) docstore.Data {
		return docstore.ApplyMerge(cur, data)
	})
}

func (s *Store) Update(ctx context.Context, path docstore.Path, data docstore.Data) error {
	return s.write(ctx, path, true, func(cur docstore.Data) docstore.Data {
		return docstore.ApplyMerge(cur, data)
	})
}

func (s *Store) write(ctx context.Context, path docstore.Path, mustExist bool, next func(docstore.Data) docstore.Data) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := docstore.ValidateDocumentPath(path); err != nil {
		return err
	}
	s.mu.Lock()
	cur, ok := s.docs[path]
	if mustExist && !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", docstore.ErrNotFound, path)
	}
	s.docs[path] = next(cur)
	snap := s.snapshotLocked(path)
	listeners := s.listenersLocked(path)
	s.mu.Unlock()

	for _, sub := range listeners {
		sub.deliver(cloneDocument(snap), nil)
	}
	return nil
}

func (s *Store) Query(ctx context.Context, collection docstore.Path, filters ...docstore.Filter) ([]*docstore.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := docstore.ValidateFilters(filters); err != nil {
		return nil, err
	}
	prefix := strings.Trim(string(collection), "/") + "/"
	depth := len(collection.Segments()) + 1

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*docstore.Document, 0)
	for p := range s.docs {
		if !strings.HasPrefix(string(p), prefix) || len(p.Segments()) != depth {
			continue
		}
		doc := s.snapshotLocked(p)
		if docstore.Matches(doc, filters) {
			out = append(out, doc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) Subscribe(ctx context.Context, path docstore.Path, fn docstore.Listener) (docstore.Subscription, error) {
	if fn == nil {
		return nil, fmt.Errorf("listener required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := docstore.ValidateDocumentPath(path); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.nextID++
	sub := &subscription{store: s, path: path, id: s.nextID, fn: fn}
	if s.subs[path] == nil {
		s.subs[path] = map[int]*subscription{}
	}
	s.subs[path][sub.id] = sub
	initial := s.snapshotLocked(path)
	s.mu.Unlock()

	sub.deliver(initial, nil)
	return sub, nil
}

// Fail pushes err to every listener on path and closes them, the way a remote
// listener dies when the connection drops.
func (s *Store) Fail(path docstore.Path, err error) {
	s.mu.Lock()
	listeners := s.listenersLocked(path)
	s.mu.Unlock()
	for _, sub := range listeners {
		sub.deliver(nil, err)
		_ = sub.Close()
	}
}

func (s *Store) snapshotLocked(path docstore.Path) *docstore.Document {
	d, ok := s.docs[path]
	doc := &docstore.Document{Path: path, ID: path.ID(), Exists: ok}
	if ok {
		doc.Data = docstore.CloneData(d)
	}
	return doc
}

func (s *Store) listenersLocked(path docstore.Path) []*subscription {
	set := s.subs[path]
	out := make([]*subscription, 0, len(set))
	for _, sub := range set {
		out = append(out, sub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

type subscription struct {
	store *Store
	path  docstore.Path
	id    int
	fn    docstore.Listener

	// deliverMu serialises pushes; Close never takes it so a listener may
	// close its own subscription from inside a push.
	deliverMu sync.Mutex
	closed    atomic.Bool
}

func (sub *subscription) deliver(doc *docstore.Document, err error) {
	sub.deliverMu.Lock()
	defer sub.deliverMu.Unlock()
	if sub.closed.Load() {
		return
	}
	sub.fn(doc, err)
}

func (sub *subscription) Close() error {
	sub.store.mu.Lock()
	if set := sub.store.subs[sub.path]; set != nil {
		delete(set, sub.id)
		if len(set) == 0 {
			delete(sub.store.subs, sub.path)
		}
	}
	sub.store.mu.Unlock()

	sub.closed.Store(true)
	return nil
}

func cloneDocument(d *docstore.Document) *docstore.Document {
	if d == nil {
		return nil
	}
	cp := *d
	cp.Data = docstore.CloneData(d.Data)
	return &cp
}

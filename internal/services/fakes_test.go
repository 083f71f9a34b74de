package services

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/yungbote/gallery-client/internal/docstore"
	"github.com/yungbote/gallery-client/internal/docstore/memstore"
	"github.com/yungbote/gallery-client/internal/platform/logger"
)

var errStoreDown = errors.New("store unavailable")

type call struct {
	Op   string
	Path docstore.Path
	Data docstore.Data
	IDs  []string
}

// recordingStore wraps memstore, records every call and fails calls whose
// "<op> <path>" key starts with a registered prefix.
type recordingStore struct {
	inner *memstore.Store

	mu    sync.Mutex
	calls []call
	fail  map[string]error
}

func newRecordingStore() *recordingStore {
	return &recordingStore{inner: memstore.New(logger.Nop()), fail: map[string]error{}}
}

func (s *recordingStore) failOn(prefix string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[prefix] = err
}

func (s *recordingStore) record(c call) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, c)
	key := c.Op + " " + string(c.Path)
	for prefix, err := range s.fail {
		if strings.HasPrefix(key, prefix) {
			return err
		}
	}
	return nil
}

func (s *recordingStore) Calls() []call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]call, len(s.calls))
	copy(out, s.calls)
	return out
}

func (s *recordingStore) count(op string, path docstore.Path) int {
	n := 0
	for _, c := range s.Calls() {
		if c.Op == op && (path == "" || c.Path == path) {
			n++
		}
	}
	return n
}

func (s *recordingStore) Get(ctx context.Context, path docstore.Path) (*docstore.Document, error) {
	if err := s.record(call{Op: "get", Path: path}); err != nil {
		return nil, err
	}
	return s.inner.Get(ctx, path)
}

func (s *recordingStore) Set(ctx context.Context, path docstore.Path, data docstore.Data) error {
	if err := s.record(call{Op: "set", Path: path, Data: data}); err != nil {
		return err
	}
	return s.inner.Set(ctx, path, data)
}

func (s *recordingStore) Merge(ctx context.Context, path docstore.Path, data docstore.Data) error {
	if err := s.record(call{Op: "merge", Path: path, Data: data}); err != nil {
		return err
	}
	return s.inner.Merge(ctx, path, data)
}

func (s *recordingStore) Update(ctx context.Context, path docstore.Path, data docstore.Data) error {
	if err := s.record(call{Op: "update", Path: path, Data: data}); err != nil {
		return err
	}
	return s.inner.Update(ctx, path, data)
}

func (s *recordingStore) Query(ctx context.Context, collection docstore.Path, filters ...docstore.Filter) ([]*docstore.Document, error) {
	ids, _ := docstore.IDsFromFilters(filters)
	if err := s.record(call{Op: "query", Path: collection, IDs: ids}); err != nil {
		return nil, err
	}
	return s.inner.Query(ctx, collection, filters...)
}

func (s *recordingStore) Subscribe(ctx context.Context, path docstore.Path, fn docstore.Listener) (docstore.Subscription, error) {
	if err := s.record(call{Op: "subscribe", Path: path}); err != nil {
		return nil, err
	}
	return s.inner.Subscribe(ctx, path, fn)
}

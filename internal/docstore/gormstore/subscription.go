package gormstore

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yungbote/gallery-client/internal/docstore"
)

const refreshTimeout = 10 * time.Second

type subscription struct {
	store  *Store
	path   docstore.Path
	fn     docstore.Listener

	cancelMu sync.Mutex
	cancel   func()

	// mu serialises pushes; Close never takes it.
	mu     sync.Mutex
	closed atomic.Bool
}

func (sub *subscription) setCancel(cancel func()) {
	sub.cancelMu.Lock()
	defer sub.cancelMu.Unlock()
	if sub.closed.Load() {
		cancel()
		return
	}
	sub.cancel = cancel
}

// refresh re-reads the document and pushes it. A read failure is pushed as an
// error and ends the subscription.
func (sub *subscription) refresh() {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.closed.Load() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()
	doc, err := sub.store.Get(ctx, sub.path)
	if sub.closed.Load() {
		return
	}
	if err != nil {
		sub.store.log.Warn("subscription read failed", "path", string(sub.path), "error", err)
		sub.fn(nil, err)
		sub.shutdown()
		return
	}
	sub.fn(doc, nil)
}

func (sub *subscription) Close() error {
	sub.shutdown()
	return nil
}

func (sub *subscription) shutdown() {
	if sub.closed.Swap(true) {
		return
	}
	sub.cancelMu.Lock()
	defer sub.cancelMu.Unlock()
	if sub.cancel != nil {
		sub.cancel()
		sub.cancel = nil
	}
}

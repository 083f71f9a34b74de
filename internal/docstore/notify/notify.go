// Package notify fans document-change notifications out to live
// subscriptions. A notification carries only the changed document path; the
// subscriber re-reads the document itself.
package notify

import (
	"context"
	"sync"
)

type Notifier interface {
	Publish(ctx context.Context, path string) error
	// Subscribe registers fn for changes to path. The returned cancel func is idempotent.
	Subscribe(path string, fn func()) (cancel func())
	Close() error
}

// Local dispatches notifications inside one process.
type Local struct {
	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]func()
}

var _ Notifier = (*Local)(nil)

func NewLocal() *Local {
	return &Local{subs: map[string]map[int]func(){}}
}

func (l *Local) Publish(_ context.Context, path string) error {
	l.Dispatch(path)
	return nil
}

// Dispatch runs every callback registered for path on the calling goroutine.
func (l *Local) Dispatch(path string) {
	l.mu.Lock()
	set := l.subs[path]
	fns := make([]func(), 0, len(set))
	for _, fn := range set {
		fns = append(fns, fn)
	}
	l.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (l *Local) Subscribe(path string, fn func()) func() {
	l.mu.Lock()
	l.nextID++
	id := l.nextID
	if l.subs[path] == nil {
		l.subs[path] = map[int]func(){}
	}
	l.subs[path][id] = fn
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if set := l.subs[path]; set != nil {
				delete(set, id)
				if len(set) == 0 {
					delete(l.subs, path)
				}
			}
		})
	}
}

// Count reports registered callbacks for path.
func (l *Local) Count(path string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.subs[path])
}

func (l *Local) Close() error {
	l.mu.Lock()
	l.subs = map[string]map[int]func(){}
	l.mu.Unlock()
	return nil
}

// Package docstore is the client's view of the remote document store: a
// path-addressed tree of collections and documents with point reads, merge
// writes, small batched "in" queries and live per-document subscriptions.
package docstore

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrNotFound is returned by Update when the target document does not exist.
	ErrNotFound = errors.New("docstore: document not found")
	// ErrInvalidQuery is returned for malformed filters, including "in" filters
	// over more than MaxInValues values.
	ErrInvalidQuery = errors.New("docstore: invalid query")
	// ErrInvalidPath is returned when a document path has an odd segment count.
	ErrInvalidPath = errors.New("docstore: invalid path")
)

// Data is the field map of one document.
type Data = map[string]any

// Path addresses a collection ("galleries/g1/pieces") or a document
// ("galleries/g1/pieces/p1"). Documents have an even number of segments.
type Path string

func Join(segments ...string) Path {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		s = strings.Trim(strings.TrimSpace(s), "/")
		if s != "" {
			parts = append(parts, s)
		}
	}
	return Path(strings.Join(parts, "/"))
}

func (p Path) Segments() []string {
	s := strings.Trim(string(p), "/")
	if s == "" {
		return nil
	}
	return strings.Split(s, "/")
}

func (p Path) IsDocument() bool {
	n := len(p.Segments())
	return n > 0 && n%2 == 0
}

// ID is the last path segment.
func (p Path) ID() string {
	segs := p.Segments()
	if len(segs) == 0 {
		return ""
	}
	return segs[len(segs)-1]
}

func (p Path) Parent() Path {
	segs := p.Segments()
	if len(segs) <= 1 {
		return ""
	}
	return Path(strings.Join(segs[:len(segs)-1], "/"))
}

func (p Path) Child(id string) Path { return Join(string(p), id) }

func (p Path) String() string { return string(p) }

// Document is a point-in-time snapshot. Exists is false for a missing document,
// in which case Data is nil.
type Document struct {
	Path   Path
	ID     string
	Exists bool
	Data   Data
}

// Listener receives every snapshot pushed by a subscription. err is non-nil when
// the subscription failed; no further pushes follow an error.
type Listener func(doc *Document, err error)

// Subscription is a live document listener. Close is idempotent.
type Subscription interface {
	Close() error
}

type Store interface {
	// Get reads one document. A missing document is not an error.
	Get(ctx context.Context, path Path) (*Document, error)
	// Set replaces the whole document.
	Set(ctx context.Context, path Path, data Data) error
	// Merge writes the given fields into the document, creating it if needed.
	// Nested maps are merged and Transform values are applied to current values.
	Merge(ctx context.Context, path Path, data Data) error
	// Update is Merge that fails with ErrNotFound when the document is missing.
	Update(ctx context.Context, path Path, data Data) error
	// Query lists documents directly under collection that match every filter.
	Query(ctx context.Context, collection Path, filters ...Filter) ([]*Document, error)
	// Subscribe opens a live listener. fn receives an initial snapshot and then
	// one snapshot per change until the subscription is closed.
	Subscribe(ctx context.Context, path Path, fn Listener) (Subscription, error)
}

func ValidateDocumentPath(p Path) error {
	if !p.IsDocument() {
		return errors.Join(ErrInvalidPath, errors.New(string(p)))
	}
	return nil
}

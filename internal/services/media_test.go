package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/yungbote/gallery-client/internal/domain"
	"github.com/yungbote/gallery-client/internal/platform/gcp"
	"github.com/yungbote/gallery-client/internal/platform/logger"
)

type fakeResolver struct {
	mu      sync.Mutex
	objects map[string]bool
	fail    error
	lookups int
}

func (f *fakeResolver) Attrs(ctx context.Context, key string) (*gcp.ObjectAttrs, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	if f.fail != nil {
		return nil, f.fail
	}
	if !f.objects[key] {
		return nil, gcp.ErrObjectNotFound
	}
	return &gcp.ObjectAttrs{Size: 1}, nil
}

func (f *fakeResolver) PublicURL(key string) string { return "https://cdn.test/" + key }

func TestMediaResolveMemoises(t *testing.T) {
	res := &fakeResolver{objects: map[string]bool{"pieces/p1.jpg": true}}
	svc := NewMediaService(res, logger.Nop())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		url, ok := svc.Resolve(ctx, "/pieces/p1.jpg")
		if !ok || url != "https://cdn.test/pieces/p1.jpg" {
			t.Fatalf("resolve: want=%q got=%q ok=%v", "https://cdn.test/pieces/p1.jpg", url, ok)
		}
	}
	if _, ok := svc.Resolve(ctx, "pieces/missing.jpg"); ok {
		t.Fatalf("missing object resolved")
	}
	_, _ = svc.Resolve(ctx, "pieces/missing.jpg")
	if res.lookups != 2 {
		t.Fatalf("lookups: want=2 got=%d", res.lookups)
	}
	if _, ok := svc.Resolve(ctx, "  "); ok {
		t.Fatalf("blank path resolved")
	}
}

func TestMediaResolveRetriesAfterFailure(t *testing.T) {
	res := &fakeResolver{objects: map[string]bool{"a.jpg": true}, fail: errors.New("timeout")}
	svc := NewMediaService(res, logger.Nop())

	if _, ok := svc.Resolve(context.Background(), "a.jpg"); ok {
		t.Fatalf("want not ok while resolver fails")
	}
	res.fail = nil
	if _, ok := svc.Resolve(context.Background(), "a.jpg"); !ok {
		t.Fatalf("want ok after resolver recovers")
	}
}

func TestPieceMedia(t *testing.T) {
	res := &fakeResolver{objects: map[string]bool{"t.jpg": true, "f.jpg": true}}
	svc := NewMediaService(res, logger.Nop())
	got := svc.PieceMedia(context.Background(), &domain.Piece{
		ID:            "p1",
		ThumbnailPath: "t.jpg",
		ImageHalfPath: "h.jpg",
		ImageFullPath: "f.jpg",
	})
	want := PieceMedia{ThumbnailURL: "https://cdn.test/t.jpg", FullURL: "https://cdn.test/f.jpg"}
	if got != want {
		t.Fatalf("piece media: want=%+v got=%+v", want, got)
	}
}

package services

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/yungbote/gallery-client/internal/domain"
	"github.com/yungbote/gallery-client/internal/platform/gcp"
	"github.com/yungbote/gallery-client/internal/platform/logger"
)

// BlobResolver is the slice of gcp.BlobResolver the media service needs.
type BlobResolver interface {
	Attrs(ctx context.Context, key string) (*gcp.ObjectAttrs, error)
	PublicURL(key string) string
}

type PieceMedia struct {
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`
	HalfURL      string `json:"halfUrl,omitempty"`
	FullURL      string `json:"fullUrl,omitempty"`
}

type MediaService interface {
	// Resolve turns a stored asset path into a fetchable URL. Missing objects
	// and lookup failures report ok=false.
	Resolve(ctx context.Context, path string) (url string, ok bool)
	PieceMedia(ctx context.Context, piece *domain.Piece) PieceMedia
}

type mediaResult struct {
	url string
	ok  bool
}

type mediaService struct {
	log      *logger.Logger
	resolver BlobResolver

	mu    sync.Mutex
	cache map[string]mediaResult
}

func NewMediaService(resolver BlobResolver, baseLog *logger.Logger) MediaService {
	if baseLog == nil {
		baseLog = logger.Nop()
	}
	return &mediaService{
		log:      baseLog.With("service", "MediaService"),
		resolver: resolver,
		cache:    map[string]mediaResult{},
	}
}

func (s *mediaService) Resolve(ctx context.Context, path string) (string, bool) {
	key := strings.TrimLeft(strings.TrimSpace(path), "/")
	if key == "" || s.resolver == nil {
		return "", false
	}
	s.mu.Lock()
	if r, ok := s.cache[key]; ok {
		s.mu.Unlock()
		return r.url, r.ok
	}
	s.mu.Unlock()

	ctx, span := tracer.Start(ctx, "MediaService.Resolve")
	defer span.End()

	var res mediaResult
	_, err := s.resolver.Attrs(ctx, key)
	switch {
	case errors.Is(err, gcp.ErrObjectNotFound):
		s.log.Warn("media object missing", "path", key)
	case err != nil:
		// not memoised; the next call retries
		span.RecordError(err)
		s.log.Warn("media lookup failed", "path", key, "error", err)
		return "", false
	default:
		res = mediaResult{url: s.resolver.PublicURL(key), ok: true}
	}

	s.mu.Lock()
	s.cache[key] = res
	s.mu.Unlock()
	return res.url, res.ok
}

func (s *mediaService) PieceMedia(ctx context.Context, piece *domain.Piece) PieceMedia {
	if piece == nil {
		return PieceMedia{}
	}
	var out PieceMedia
	out.ThumbnailURL, _ = s.Resolve(ctx, piece.ThumbnailPath)
	out.HalfURL, _ = s.Resolve(ctx, piece.ImageHalfPath)
	out.FullURL, _ = s.Resolve(ctx, piece.ImageFullPath)
	return out
}

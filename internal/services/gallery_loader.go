package services

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/gallery-client/internal/docstore"
	"github.com/yungbote/gallery-client/internal/domain"
	apperr "github.com/yungbote/gallery-client/internal/pkg/errors"
	"github.com/yungbote/gallery-client/internal/platform/logger"
)

var tracer = otel.Tracer("github.com/yungbote/gallery-client/internal/services")

type GalleryLoader interface {
	Load(ctx context.Context, galleryID, collectionID string) (*domain.GalleryGraph, error)
}

type GalleryLoaderConfig struct {
	// BatchSize caps the ids per "in" query. Values outside 1..docstore.MaxInValues are clamped.
	BatchSize int
	Now       func() time.Time
}

type galleryLoader struct {
	log       *logger.Logger
	store     docstore.Store
	batchSize int
	now       func() time.Time
}

func NewGalleryLoader(store docstore.Store, cfg GalleryLoaderConfig, baseLog *logger.Logger) GalleryLoader {
	if baseLog == nil {
		baseLog = logger.Nop()
	}
	size := cfg.BatchSize
	if size <= 0 || size > docstore.MaxInValues {
		size = docstore.MaxInValues
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &galleryLoader{
		log:       baseLog.With("service", "GalleryLoader"),
		store:     store,
		batchSize: size,
		now:       now,
	}
}

// Load reads the collection and every referenced artist and active piece.
// Any read failure fails the whole load; no partial graph is returned.
func (l *galleryLoader) Load(ctx context.Context, galleryID, collectionID string) (*domain.GalleryGraph, error) {
	const op = "load gallery"
	galleryID = strings.TrimSpace(galleryID)
	collectionID = strings.TrimSpace(collectionID)
	if galleryID == "" || collectionID == "" {
		return nil, apperr.InvalidArgument(op, "gallery id and collection id are required")
	}

	ctx, span := tracer.Start(ctx, "GalleryLoader.Load")
	defer span.End()
	span.SetAttributes(
		attribute.String("gallery.id", galleryID),
		attribute.String("collection.id", collectionID),
	)

	graph, err := l.load(ctx, galleryID, collectionID, span.SetAttributes)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, apperr.Kind(err))
		l.log.Warn("gallery load failed", "gallery_id", galleryID, "collection_id", collectionID, "error", err)
		return nil, err
	}
	l.log.Info("gallery loaded",
		"gallery_id", galleryID,
		"collection_id", collectionID,
		"artists", len(graph.Artists),
		"pieces", len(graph.Pieces),
	)
	return graph, nil
}

func (l *galleryLoader) load(ctx context.Context, galleryID, collectionID string, annotate func(...attribute.KeyValue)) (*domain.GalleryGraph, error) {
	const op = "load gallery"
	doc, err := l.store.Get(ctx, docstore.Collection(galleryID, collectionID))
	if err != nil {
		return nil, apperr.Transient(op, err)
	}
	if !doc.Exists {
		return nil, apperr.NotFound(op, "collection "+collectionID+" not found")
	}
	collection, err := domain.CollectionFromDocument(doc)
	if err != nil {
		return nil, err
	}

	artistIDs := collection.ArtistIDs()
	pieceIDs := collection.PieceIDs()
	artistChunks := chunkIDs(artistIDs, l.batchSize)
	pieceChunks := chunkIDs(pieceIDs, l.batchSize)
	annotate(
		attribute.Int("artist.chunks", len(artistChunks)),
		attribute.Int("piece.chunks", len(pieceChunks)),
	)

	artistResults := make([][]*docstore.Document, len(artistChunks))
	pieceResults := make([][]*docstore.Document, len(pieceChunks))

	g, gctx := errgroup.WithContext(ctx)
	for i, chunk := range artistChunks {
		i, chunk := i, chunk
		g.Go(func() error {
			docs, err := l.store.Query(gctx, docstore.Artists(galleryID), docstore.IDIn(chunk))
			if err != nil {
				return apperr.Transient("query artists", err)
			}
			artistResults[i] = docs
			return nil
		})
	}
	for i, chunk := range pieceChunks {
		i, chunk := i, chunk
		g.Go(func() error {
			docs, err := l.store.Query(gctx, docstore.Pieces(galleryID),
				docstore.IDIn(chunk),
				docstore.Where("active", docstore.OpEqual, true),
			)
			if err != nil {
				return apperr.Transient("query pieces", err)
			}
			pieceResults[i] = docs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	artists := make([]*domain.Artist, 0, len(artistIDs))
	for _, docs := range artistResults {
		for _, d := range docs {
			a, err := domain.ArtistFromDocument(d)
			if err != nil {
				l.log.Warn("dropping malformed artist", "artist_id", d.ID, "error", err)
				continue
			}
			artists = append(artists, a)
		}
	}
	pieces := make([]*domain.Piece, 0, len(pieceIDs))
	for _, docs := range pieceResults {
		for _, d := range docs {
			p, err := domain.PieceFromDocument(d)
			if err != nil {
				l.log.Warn("dropping malformed piece", "piece_id", d.ID, "error", err)
				continue
			}
			if !p.Active {
				continue
			}
			pieces = append(pieces, p)
		}
	}

	sortArtistsByLastName(artists)
	return &domain.GalleryGraph{
		Collection:     collection,
		Artists:        artists,
		Pieces:         pieces,
		ArtistPieceMap: buildArtistPieceMap(collection, artists, pieces),
		LoadedAt:       l.now().UTC(),
	}, nil
}

// buildArtistPieceMap gives every artist referenced by the collection a bucket
// and files each piece under its artist when that artist was loaded. Buckets
// are sorted by title.
func buildArtistPieceMap(collection *domain.Collection, artists []*domain.Artist, pieces []*domain.Piece) map[string][]*domain.Piece {
	loaded := make(map[string]bool, len(artists))
	for _, a := range artists {
		loaded[a.ArtistID] = true
	}
	out := make(map[string][]*domain.Piece, len(collection.Artists))
	for _, id := range collection.ArtistIDs() {
		out[id] = []*domain.Piece{}
	}
	for _, p := range pieces {
		if !loaded[p.ArtistID] {
			continue
		}
		out[p.ArtistID] = append(out[p.ArtistID], p)
	}
	for _, bucket := range out {
		sort.SliceStable(bucket, func(i, j int) bool {
			return strings.ToLower(bucket[i].Title) < strings.ToLower(bucket[j].Title)
		})
	}
	return out
}

func sortArtistsByLastName(artists []*domain.Artist) {
	sort.SliceStable(artists, func(i, j int) bool {
		return strings.ToLower(lastNameToken(artists[i].DisplayName)) < strings.ToLower(lastNameToken(artists[j].DisplayName))
	})
}

func lastNameToken(displayName string) string {
	parts := strings.Fields(displayName)
	if len(parts) == 0 {
		return displayName
	}
	return parts[len(parts)-1]
}

func chunkIDs(ids []string, size int) [][]string {
	if len(ids) == 0 {
		return nil
	}
	out := make([][]string, 0, (len(ids)+size-1)/size)
	for i := 0; i < len(ids); i += size {
		end := i + size
		if end > len(ids) {
			end = len(ids)
		}
		out = append(out, ids[i:end])
	}
	return out
}

// PiecesForArtist returns the artist's bucket, or an empty slice.
func PiecesForArtist(artistPieceMap map[string][]*domain.Piece, artistID string) []*domain.Piece {
	if bucket, ok := artistPieceMap[artistID]; ok && bucket != nil {
		return bucket
	}
	return []*domain.Piece{}
}

// SearchPieces keeps pieces whose title or artist display name contains the
// query, case-insensitively. A blank query returns pieces unchanged.
func SearchPieces(pieces []*domain.Piece, artists []*domain.Artist, query string) []*domain.Piece {
	term := strings.ToLower(strings.TrimSpace(query))
	if term == "" {
		return pieces
	}
	byID := make(map[string]*domain.Artist, len(artists))
	for _, a := range artists {
		byID[a.ArtistID] = a
	}
	out := make([]*domain.Piece, 0)
	for _, p := range pieces {
		if strings.Contains(strings.ToLower(p.Title), term) {
			out = append(out, p)
			continue
		}
		if a := byID[p.ArtistID]; a != nil && strings.Contains(strings.ToLower(a.DisplayName), term) {
			out = append(out, p)
		}
	}
	return out
}

package services

import (
	"context"
	"sync"

	"github.com/yungbote/gallery-client/internal/domain"
	apperr "github.com/yungbote/gallery-client/internal/pkg/errors"
	"github.com/yungbote/gallery-client/internal/platform/logger"
)

// GalleryState is a point-in-time copy of what the visitor is looking at.
type GalleryState struct {
	GalleryID          string                     `json:"galleryId,omitempty"`
	Collection         *domain.Collection         `json:"collection"`
	Artists            []*domain.Artist           `json:"artists"`
	Pieces             []*domain.Piece            `json:"pieces"`
	ArtistPieceMap     map[string][]*domain.Piece `json:"artistPieceMap"`
	FavoritedPieces    []*domain.Piece            `json:"favoritedPieces"`
	SelectedArtistID   string                     `json:"selectedArtistId,omitempty"`
	SelectedPieceID    string                     `json:"selectedPieceId,omitempty"`
	SearchQuery        string                     `json:"searchQuery"`
	ShowingFavorites   bool                       `json:"showingFavorites"`
	IsLoading          bool                       `json:"isLoading"`
	IsLoadingFavorites bool                       `json:"isLoadingFavorites"`
	Error              string                     `json:"error,omitempty"`
}

func (s *GalleryState) Loaded() bool { return s.Collection != nil }

type GalleryStateService interface {
	LoadGallery(ctx context.Context, galleryID, collectionID string) error
	LoadFavorites(ctx context.Context, userID string) error
	SelectArtist(artistID string)
	SelectPiece(pieceID string)
	SetSearchQuery(query string)
	SetShowingFavorites(showing bool)
	PiecesForArtist(artistID string) []*domain.Piece
	CurrentPiece() *domain.Piece
	CurrentArtist() *domain.Artist
	FilteredPieces() []*domain.Piece
	ClearError()
	Reset()
	Snapshot() GalleryState
}

type galleryStateService struct {
	log       *logger.Logger
	loader    GalleryLoader
	favorites FavoritesService

	mu    sync.Mutex
	state GalleryState
}

func NewGalleryStateService(loader GalleryLoader, favorites FavoritesService, baseLog *logger.Logger) GalleryStateService {
	if baseLog == nil {
		baseLog = logger.Nop()
	}
	return &galleryStateService{
		log:       baseLog.With("service", "GalleryStateService"),
		loader:    loader,
		favorites: favorites,
		state:     emptyGalleryState(),
	}
}

func emptyGalleryState() GalleryState {
	return GalleryState{
		Artists:         []*domain.Artist{},
		Pieces:          []*domain.Piece{},
		ArtistPieceMap:  map[string][]*domain.Piece{},
		FavoritedPieces: []*domain.Piece{},
	}
}

// LoadGallery replaces the loaded graph. On failure the previous graph stays
// and Error carries the visitor-facing message.
func (s *galleryStateService) LoadGallery(ctx context.Context, galleryID, collectionID string) error {
	s.mu.Lock()
	s.state.IsLoading = true
	s.state.Error = ""
	s.mu.Unlock()

	graph, err := s.loader.Load(ctx, galleryID, collectionID)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.IsLoading = false
	if err != nil {
		s.state.Error = loadErrorMessage(err)
		return err
	}
	s.state.GalleryID = galleryID
	s.state.Collection = graph.Collection
	s.state.Artists = graph.Artists
	s.state.Pieces = graph.Pieces
	s.state.ArtistPieceMap = graph.ArtistPieceMap
	return nil
}

func loadErrorMessage(err error) string {
	switch apperr.Kind(err) {
	case "not_found":
		return "Collection not found"
	case "":
		return "Failed to load gallery"
	default:
		return apperr.Message(err)
	}
}

// LoadFavorites narrows the loaded pieces to the visitor's favorites.
func (s *galleryStateService) LoadFavorites(ctx context.Context, userID string) error {
	s.mu.Lock()
	s.state.IsLoadingFavorites = true
	s.mu.Unlock()

	ids := s.favorites.GetAllFavorites(ctx, userID)
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.Piece, 0, len(ids))
	for _, p := range s.state.Pieces {
		if want[p.ID] {
			out = append(out, p)
		}
	}
	s.state.FavoritedPieces = out
	s.state.IsLoadingFavorites = false
	s.log.Debug("favorites loaded", "user_id", userID, "count", len(out))
	return nil
}

func (s *galleryStateService) SelectArtist(artistID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.SelectedArtistID = artistID
	s.state.SelectedPieceID = ""
	s.state.SearchQuery = ""
}

func (s *galleryStateService) SelectPiece(pieceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.SelectedPieceID = pieceID
}

func (s *galleryStateService) SetSearchQuery(query string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.SearchQuery = query
	s.state.SelectedArtistID = ""
	s.state.ShowingFavorites = false
}

func (s *galleryStateService) SetShowingFavorites(showing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.ShowingFavorites = showing
	s.state.SelectedArtistID = ""
	s.state.SearchQuery = ""
}

func (s *galleryStateService) PiecesForArtist(artistID string) []*domain.Piece {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clonePieces(PiecesForArtist(s.state.ArtistPieceMap, artistID))
}

func (s *galleryStateService) CurrentPiece() *domain.Piece {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.SelectedPieceID == "" {
		return nil
	}
	for _, p := range s.state.Pieces {
		if p.ID == s.state.SelectedPieceID {
			return p
		}
	}
	return nil
}

func (s *galleryStateService) CurrentArtist() *domain.Artist {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.SelectedArtistID == "" {
		return nil
	}
	for _, a := range s.state.Artists {
		if a.ArtistID == s.state.SelectedArtistID {
			return a
		}
	}
	return nil
}

// FilteredPieces applies the artist selection first, then the search query.
func (s *galleryStateService) FilteredPieces() []*domain.Piece {
	s.mu.Lock()
	defer s.mu.Unlock()
	pieces := s.state.Pieces
	if s.state.SelectedArtistID != "" {
		pieces = PiecesForArtist(s.state.ArtistPieceMap, s.state.SelectedArtistID)
	}
	return clonePieces(SearchPieces(pieces, s.state.Artists, s.state.SearchQuery))
}

func (s *galleryStateService) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Error = ""
}

func (s *galleryStateService) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = emptyGalleryState()
}

// Snapshot copies the slices and the index so callers cannot mutate state.
func (s *galleryStateService) Snapshot() GalleryState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.state
	out.Artists = make([]*domain.Artist, len(s.state.Artists))
	copy(out.Artists, s.state.Artists)
	out.Pieces = clonePieces(s.state.Pieces)
	out.FavoritedPieces = clonePieces(s.state.FavoritedPieces)
	out.ArtistPieceMap = make(map[string][]*domain.Piece, len(s.state.ArtistPieceMap))
	for k, v := range s.state.ArtistPieceMap {
		out.ArtistPieceMap[k] = clonePieces(v)
	}
	return out
}

func clonePieces(in []*domain.Piece) []*domain.Piece {
	out := make([]*domain.Piece, len(in))
	copy(out, in)
	return out
}

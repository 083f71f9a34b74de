package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/gallery-client/internal/domain"
	"github.com/yungbote/gallery-client/internal/http/response"
	"github.com/yungbote/gallery-client/internal/platform/logger"
	"github.com/yungbote/gallery-client/internal/services"
)

type GalleryHandler struct {
	log   *logger.Logger
	state services.GalleryStateService
}

func NewGalleryHandler(log *logger.Logger, state services.GalleryStateService) *GalleryHandler {
	return &GalleryHandler{log: log.With("handler", "GalleryHandler"), state: state}
}

type galleryPayload struct {
	services.GalleryState
	CurrentArtist *domain.Artist `json:"currentArtist"`
	CurrentPiece  *domain.Piece  `json:"currentPiece"`
}

func (h *GalleryHandler) payload() galleryPayload {
	return galleryPayload{
		GalleryState:  h.state.Snapshot(),
		CurrentArtist: h.state.CurrentArtist(),
		CurrentPiece:  h.state.CurrentPiece(),
	}
}

// GetGallery loads the visitor's collection on first use, or again when the
// visitor's gallery changed.
func (h *GalleryHandler) GetGallery(c *gin.Context) {
	rec := visitor(c)
	if rec == nil {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", errNotLoggedIn)
		return
	}
	snap := h.state.Snapshot()
	if !snap.Loaded() || snap.GalleryID != rec.GalleryID || c.Query("reload") == "true" {
		if err := h.state.LoadGallery(c.Request.Context(), rec.GalleryID, collectionID(rec)); err != nil {
			response.RespondAppError(c, err)
			return
		}
	}
	response.RespondOK(c, h.payload())
}

func (h *GalleryHandler) Search(c *gin.Context) {
	h.state.SetSearchQuery(c.Query("q"))
	response.RespondOK(c, gin.H{"query": c.Query("q"), "pieces": h.state.FilteredPieces()})
}

func (h *GalleryHandler) ArtistPieces(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	response.RespondOK(c, gin.H{"artistId": id, "pieces": h.state.PiecesForArtist(id)})
}

func (h *GalleryHandler) Select(c *gin.Context) {
	var req struct {
		ArtistID *string `json:"artistId"`
		PieceID  *string `json:"pieceId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if req.ArtistID != nil {
		h.state.SelectArtist(*req.ArtistID)
	}
	if req.PieceID != nil {
		h.state.SelectPiece(*req.PieceID)
	}
	response.RespondOK(c, h.payload())
}

func (h *GalleryHandler) Favorites(c *gin.Context) {
	rec := visitor(c)
	if rec == nil || rec.User == nil {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", errNotLoggedIn)
		return
	}
	_ = h.state.LoadFavorites(c.Request.Context(), rec.User.UserID)
	h.state.SetShowingFavorites(true)
	response.RespondOK(c, gin.H{"pieces": h.state.Snapshot().FavoritedPieces})
}

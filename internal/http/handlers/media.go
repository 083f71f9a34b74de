package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/gallery-client/internal/http/response"
	apperr "github.com/yungbote/gallery-client/internal/pkg/errors"
	"github.com/yungbote/gallery-client/internal/services"
)

type MediaHandler struct {
	media services.MediaService
	state services.GalleryStateService
}

func NewMediaHandler(media services.MediaService, state services.GalleryStateService) *MediaHandler {
	return &MediaHandler{media: media, state: state}
}

// Resolve answers {url} for ?path=, or 404 when the object cannot be found.
func (h *MediaHandler) Resolve(c *gin.Context) {
	path := strings.TrimSpace(c.Query("path"))
	if path == "" {
		response.RespondError(c, http.StatusBadRequest, "invalid_argument", apperr.InvalidArgument("resolve media", "path is required"))
		return
	}
	url, ok := h.media.Resolve(c.Request.Context(), path)
	if !ok {
		response.RespondError(c, http.StatusNotFound, "not_found", apperr.NotFound("resolve media", "media not found"))
		return
	}
	response.RespondOK(c, gin.H{"path": path, "url": url})
}

// PieceMedia resolves the image urls of a piece in the loaded gallery.
func (h *MediaHandler) PieceMedia(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	for _, p := range h.state.Snapshot().Pieces {
		if p.ID == id {
			response.RespondOK(c, h.media.PieceMedia(c.Request.Context(), p))
			return
		}
	}
	response.RespondError(c, http.StatusNotFound, "not_found", apperr.NotFound("piece media", "piece not loaded"))
}

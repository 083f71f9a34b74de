package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/gallery-client/internal/domain"
	"github.com/yungbote/gallery-client/internal/http/response"
	apperr "github.com/yungbote/gallery-client/internal/pkg/errors"
	"github.com/yungbote/gallery-client/internal/platform/logger"
	"github.com/yungbote/gallery-client/internal/services"
)

type SessionHandler struct {
	log       *logger.Logger
	auth      services.AuthService
	state     services.GalleryStateService
	favorites services.FavoritesService
}

func NewSessionHandler(log *logger.Logger, auth services.AuthService, state services.GalleryStateService, favorites services.FavoritesService) *SessionHandler {
	return &SessionHandler{
		log:       log.With("handler", "SessionHandler"),
		auth:      auth,
		state:     state,
		favorites: favorites,
	}
}

type sessionPayload struct {
	Success   bool                `json:"success"`
	User      *domain.GalleryUser `json:"user,omitempty"`
	SessionID string              `json:"sessionId,omitempty"`
	GalleryID string              `json:"galleryId,omitempty"`
	Error     string              `json:"error,omitempty"`
}

func sessionOK(rec *domain.SessionRecord) sessionPayload {
	return sessionPayload{Success: true, User: rec.User, SessionID: rec.SessionID, GalleryID: rec.GalleryID}
}

func (h *SessionHandler) Login(c *gin.Context) {
	var req struct {
		AccessCode string             `json:"accessCode"`
		GalleryID  string             `json:"galleryId"`
		Device     *domain.DeviceInfo `json:"device"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	rec, err := h.auth.Login(c.Request.Context(), req.AccessCode, req.GalleryID, req.Device)
	if err != nil {
		c.JSON(response.StatusFor(err), sessionPayload{Success: false, Error: apperr.Message(err)})
		return
	}
	h.state.Reset()
	response.RespondOK(c, sessionOK(rec))
}

func (h *SessionHandler) Logout(c *gin.Context) {
	h.auth.Logout(c.Request.Context())
	h.favorites.ClearAllCache()
	h.state.Reset()
	response.RespondOK(c, gin.H{"success": true})
}

// Session reports the current visitor, restoring a saved session when none is
// active in memory.
func (h *SessionHandler) Session(c *gin.Context) {
	if rec, ok := h.auth.Current(); ok {
		response.RespondOK(c, sessionOK(rec))
		return
	}
	rec, err := h.auth.Restore()
	if err != nil {
		h.log.Debug("no session to restore", "error", err)
		response.RespondOK(c, sessionPayload{Success: false, Error: apperr.Message(err)})
		return
	}
	response.RespondOK(c, sessionOK(rec))
}

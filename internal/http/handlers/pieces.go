package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/gallery-client/internal/domain"
	"github.com/yungbote/gallery-client/internal/http/response"
	apperr "github.com/yungbote/gallery-client/internal/pkg/errors"
	"github.com/yungbote/gallery-client/internal/platform/logger"
	"github.com/yungbote/gallery-client/internal/services"
)

const streamPingInterval = 15 * time.Second

type PieceHandler struct {
	log       *logger.Logger
	analytics services.AnalyticsService
	favorites services.FavoritesService
}

func NewPieceHandler(log *logger.Logger, analytics services.AnalyticsService, favorites services.FavoritesService) *PieceHandler {
	return &PieceHandler{
		log:       log.With("handler", "PieceHandler"),
		analytics: analytics,
		favorites: favorites,
	}
}

// analyticsResult answers 400 for bad input. Write failures are already
// logged by the analytics service and do not fail the request.
func (h *PieceHandler) analyticsResult(c *gin.Context, err error, payload any) {
	if apperr.Kind(err) == "invalid_argument" {
		response.RespondAppError(c, err)
		return
	}
	response.RespondOK(c, payload)
}

func (h *PieceHandler) RecordView(c *gin.Context) {
	rec := visitor(c)
	pieceID := strings.TrimSpace(c.Param("id"))
	err := h.analytics.RecordPieceView(c.Request.Context(), rec.User, rec.GalleryID, collectionID(rec), pieceID, rec.SessionID)
	h.analyticsResult(c, err, gin.H{"ok": true, "pieceId": pieceID})
}

func (h *PieceHandler) RecordEvent(c *gin.Context) {
	var req struct {
		EventType string `json:"eventType"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	rec := visitor(c)
	pieceID := strings.TrimSpace(c.Param("id"))
	eventType := domain.EventType(strings.TrimSpace(req.EventType))
	err := h.analytics.RecordInteractionEvent(c.Request.Context(), rec.User, rec.GalleryID, collectionID(rec), pieceID, rec.SessionID, eventType)
	h.analyticsResult(c, err, gin.H{"ok": true, "pieceId": pieceID, "eventType": eventType})
}

func (h *PieceHandler) ToggleFavorite(c *gin.Context) {
	var req struct {
		IsFavorite *bool `json:"isFavorite"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.IsFavorite == nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", fmt.Errorf("isFavorite is required"))
		return
	}
	rec := visitor(c)
	pieceID := strings.TrimSpace(c.Param("id"))
	err := h.analytics.ToggleFavorite(c.Request.Context(), rec.User, rec.GalleryID, collectionID(rec), pieceID, rec.SessionID, *req.IsFavorite)
	h.analyticsResult(c, err, gin.H{"pieceId": pieceID, "isFavorite": *req.IsFavorite})
}

func (h *PieceHandler) FavoriteStatus(c *gin.Context) {
	rec := visitor(c)
	pieceID := strings.TrimSpace(c.Param("id"))
	on := h.favorites.IsFavorited(c.Request.Context(), rec.User.UserID, pieceID)
	response.RespondOK(c, gin.H{"pieceId": pieceID, "isFavorite": on})
}

func (h *PieceHandler) FavoritesForPieces(c *gin.Context) {
	var req struct {
		PieceIDs []string `json:"pieceIds"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	rec := visitor(c)
	response.RespondOK(c, gin.H{"favorites": h.favorites.GetFavoritesForPieces(c.Request.Context(), rec.User.UserID, req.PieceIDs)})
}

// FavoriteStream holds one favorites subscription open for the life of the
// request and writes every status change as an SSE "favorite" event.
func (h *PieceHandler) FavoriteStream(c *gin.Context) {
	rec := visitor(c)
	pieceID := strings.TrimSpace(c.Param("id"))
	w := c.Writer
	flusher, ok := w.(http.Flusher)
	if !ok {
		response.RespondError(c, http.StatusInternalServerError, "streaming_unsupported", fmt.Errorf("streaming unsupported"))
		return
	}

	updates := make(chan bool, 8)
	unsubscribe := h.favorites.SubscribeToFavoriteStatus(rec.User.UserID, pieceID, func(isOn bool) {
		select {
		case updates <- isOn:
		default:
			h.log.Warn("dropping favorite update; stream buffer full", "piece_id", pieceID)
		}
	})
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ping := time.NewTicker(streamPingInterval)
	defer ping.Stop()
	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			h.log.Debug("favorite stream closed", "piece_id", pieceID, "err", ctx.Err())
			return
		case <-ping.C:
			_, _ = fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case isOn := <-updates:
			payload, err := json.Marshal(gin.H{"pieceId": pieceID, "isFavorite": isOn})
			if err != nil {
				h.log.Warn("failed to marshal favorite event", "error", err)
				continue
			}
			_, _ = fmt.Fprintf(w, "event: favorite\ndata: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

func (h *PieceHandler) RecordActivity(c *gin.Context) {
	h.analytics.RecordActivity()
	c.Status(http.StatusNoContent)
}

package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/gallery-client/internal/docstore"
	"github.com/yungbote/gallery-client/internal/domain"
	apperr "github.com/yungbote/gallery-client/internal/pkg/errors"
	"github.com/yungbote/gallery-client/internal/platform/logger"
)

const DefaultHeartbeatInterval = 60 * time.Second

// ErrSessionEnded is returned when starting a session id whose document
// already carries an endTime. Ended sessions are never reopened.
var ErrSessionEnded = errors.New("analytics session already ended")

// AnalyticsService records sessions, piece views and interactions. Every method
// logs its own failures; the returned error exists so callers can choose to
// drop it explicitly. Nothing is retried.
type AnalyticsService interface {
	StartSession(ctx context.Context, user *domain.GalleryUser, galleryID, sessionID string, device *domain.DeviceInfo) error
	RecordPieceView(ctx context.Context, user *domain.GalleryUser, galleryID, collectionID, pieceID, sessionID string) error
	RecordInteractionEvent(ctx context.Context, user *domain.GalleryUser, galleryID, collectionID, pieceID, sessionID string, eventType domain.EventType) error
	ToggleFavorite(ctx context.Context, user *domain.GalleryUser, galleryID, collectionID, pieceID, sessionID string, isFavorite bool) error
	EndSession(ctx context.Context, user *domain.GalleryUser, galleryID, sessionID string) error
	RecordActivity()
	Active() bool
	CurrentPieceView() (pieceID string, ok bool)
}

// Ticker is the heartbeat clock. time.Ticker satisfies it through tickerAdapter.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type tickerAdapter struct{ t *time.Ticker }

func (a tickerAdapter) C() <-chan time.Time { return a.t.C }
func (a tickerAdapter) Stop()               { a.t.Stop() }

type AnalyticsConfig struct {
	HeartbeatInterval time.Duration
	Device            domain.DeviceInfo
	Now               func() time.Time
	NewTicker         func(time.Duration) Ticker
	// Favorites receives the optimistic cache write after a successful toggle.
	Favorites FavoriteCache
}

type openView struct {
	eventID   string
	pieceID   string
	galleryID string
	userID    string
	startedAt time.Time
}

type activeSession struct {
	user         *domain.GalleryUser
	galleryID    string
	sessionID    string
	startedAt    time.Time
	lastActivity time.Time
	stop         chan struct{}
	done         chan struct{}
}

type analyticsService struct {
	log       *logger.Logger
	store     docstore.Store
	interval  time.Duration
	device    domain.DeviceInfo
	now       func() time.Time
	newTicker func(time.Duration) Ticker
	favorites FavoriteCache

	// lifeMu serialises StartSession and EndSession end to end.
	lifeMu sync.Mutex
	// viewMu orders piece-view close/open pairs. Taken after lifeMu.
	viewMu sync.Mutex

	mu      sync.Mutex
	session *activeSession
	view    *openView
}

func NewAnalyticsService(store docstore.Store, cfg AnalyticsConfig, baseLog *logger.Logger) AnalyticsService {
	if baseLog == nil {
		baseLog = logger.Nop()
	}
	s := &analyticsService{
		log:       baseLog.With("service", "AnalyticsService"),
		store:     store,
		interval:  cfg.HeartbeatInterval,
		device:    cfg.Device,
		now:       cfg.Now,
		newTicker: cfg.NewTicker,
		favorites: cfg.Favorites,
	}
	if s.interval <= 0 {
		s.interval = DefaultHeartbeatInterval
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newTicker == nil {
		s.newTicker = func(d time.Duration) Ticker { return tickerAdapter{t: time.NewTicker(d)} }
	}
	return s
}

// StartSession writes a new session document, or resumes a live one with the
// same id by merging lastActivity. A session that already ended yields
// ErrSessionEnded.
func (s *analyticsService) StartSession(ctx context.Context, user *domain.GalleryUser, galleryID, sessionID string, device *domain.DeviceInfo) error {
	const op = "start session"
	if user == nil || user.UserID == "" || galleryID == "" || sessionID == "" {
		err := apperr.InvalidArgument(op, "user, gallery id and session id are required")
		s.log.Warn("analytics session not started", "error", err)
		return err
	}
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()

	ctx, span := tracer.Start(ctx, "AnalyticsService.StartSession")
	defer span.End()

	// a new session replaces any prior one; its heartbeat and open view end with it
	s.mu.Lock()
	prev := s.session
	s.session = nil
	s.mu.Unlock()
	if prev != nil {
		stopHeartbeat(prev)
	}
	s.viewMu.Lock()
	_ = s.closeCurrentView(ctx) // logged inside
	s.viewMu.Unlock()

	path := docstore.UserSession(galleryID, sessionID)
	existing, err := s.store.Get(ctx, path)
	if err != nil {
		span.RecordError(err)
		s.log.Error("failed to read analytics session", "session_id", sessionID, "error", err)
		return apperr.Transient(op, err)
	}

	now := s.now()
	stamp := domain.FormatTime(now)
	startedAt := now
	resumed := existing.Exists
	if resumed {
		if existing.Data[domain.SessionFieldEndTime] != nil {
			s.log.Info("analytics session already ended", "session_id", sessionID)
			return fmt.Errorf("%s %s: %w", op, sessionID, ErrSessionEnded)
		}
		if raw, _ := docstore.StringOpt(existing.Data, domain.SessionFieldStartTime); raw != "" {
			if t, ok := domain.ParseTime(raw); ok {
				startedAt = t
			}
		}
		err = s.store.Merge(ctx, path, docstore.Data{domain.SessionFieldLastActivity: stamp})
	} else {
		info := s.device
		if device != nil {
			info = *device
		}
		err = s.store.Set(ctx, path, docstore.Data{
			domain.SessionFieldUserID:          user.UserID,
			domain.SessionFieldSessionID:       sessionID,
			domain.SessionFieldStartTime:       stamp,
			domain.SessionFieldLastActivity:    stamp,
			domain.SessionFieldEndTime:         nil,
			domain.SessionFieldDurationSeconds: int64(0),
			"deviceType":                       info.DeviceType,
			"browser":                          info.Browser,
			"os":                               info.OperatingSystem,
			"screenResolution":                 info.ScreenResolution,
			"isGuided":                         false,
			domain.SessionFieldAccessCode:      user.CodeValue,
		})
	}
	if err != nil {
		span.RecordError(err)
		s.log.Error("failed to start analytics session", "session_id", sessionID, "error", err)
		return apperr.Transient(op, err)
	}

	sess := &activeSession{
		user:         user,
		galleryID:    galleryID,
		sessionID:    sessionID,
		startedAt:    startedAt,
		lastActivity: now,
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
	s.mu.Lock()
	s.session = sess
	s.mu.Unlock()
	go s.runHeartbeat(sess, s.newTicker(s.interval))

	s.log.Info("analytics session started", "session_id", sessionID, "user_id", user.UserID, "resumed", resumed)
	return nil
}

func (s *analyticsService) runHeartbeat(sess *activeSession, ticker Ticker) {
	defer close(sess.done)
	defer ticker.Stop()
	for {
		select {
		case <-sess.stop:
			return
		case <-ticker.C():
			s.heartbeat(sess)
		}
	}
}

// heartbeat merges liveness into the session document. Failures are logged only.
func (s *analyticsService) heartbeat(sess *activeSession) {
	s.mu.Lock()
	last := sess.lastActivity
	s.mu.Unlock()
	now := s.now()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	err := s.store.Merge(ctx, docstore.UserSession(sess.galleryID, sess.sessionID), docstore.Data{
		domain.SessionFieldLastActivity:    domain.FormatTime(last),
		domain.SessionFieldDurationSeconds: wholeSeconds(now.Sub(sess.startedAt)),
	})
	if err != nil {
		s.log.Warn("session heartbeat failed", "session_id", sess.sessionID, "error", err)
	}
}

func stopHeartbeat(sess *activeSession) {
	close(sess.stop)
	<-sess.done
}

func (s *analyticsService) RecordPieceView(ctx context.Context, user *domain.GalleryUser, galleryID, collectionID, pieceID, sessionID string) error {
	const op = "record piece view"
	if user == nil || user.UserID == "" || pieceID == "" {
		return apperr.InvalidArgument(op, "user and piece id are required")
	}
	s.viewMu.Lock()
	defer s.viewMu.Unlock()

	ctx, span := tracer.Start(ctx, "AnalyticsService.RecordPieceView")
	defer span.End()
	span.SetAttributes(attribute.String("piece.id", pieceID))

	var errs []error
	if err := s.closeCurrentView(ctx); err != nil {
		errs = append(errs, err)
	}

	now := s.now()
	s.touch(now)
	event := &domain.ViewingEvent{
		EventID:      NewEventID(domain.EventView, pieceID, user.UserID, now),
		GalleryID:    galleryID,
		UserID:       user.UserID,
		CollectionID: collectionID,
		PieceID:      pieceID,
		EventType:    domain.EventView,
		SessionID:    sessionID,
		Timestamp:    now,
	}
	if err := s.store.Set(ctx, docstore.ViewingEvent(event.EventID), event.Fields()); err != nil {
		s.log.Error("failed to record piece view", "piece_id", pieceID, "error", err)
		errs = append(errs, apperr.Transient(op, err))
		return errors.Join(errs...)
	}
	s.mu.Lock()
	s.view = &openView{eventID: event.EventID, pieceID: pieceID, galleryID: galleryID, userID: user.UserID, startedAt: now}
	s.mu.Unlock()

	stamp := domain.FormatTime(now)
	interaction := interactionBase(galleryID, user.UserID, pieceID, collectionID, stamp)
	interaction["last_viewed"] = stamp
	interaction["view_count"] = docstore.Increment(1)
	if err := s.store.Merge(ctx, docstore.UserPieceInteraction(galleryID, user.UserID, pieceID), interaction); err != nil {
		s.log.Warn("failed to update piece interaction", "piece_id", pieceID, "error", err)
		errs = append(errs, apperr.Transient(op, err))
	}
	if err := s.store.Merge(ctx, docstore.PieceStats(pieceID), docstore.Data{
		"pieceId":       pieceID,
		"totalViews":    docstore.Increment(1),
		"uniqueViewers": docstore.ArrayUnion(user.UserID),
		"lastUpdated":   stamp,
	}); err != nil {
		s.log.Warn("failed to update piece stats", "piece_id", pieceID, "error", err)
		errs = append(errs, apperr.Transient(op, err))
	}
	s.log.Debug("piece view recorded", "piece_id", pieceID, "event_id", event.EventID)
	return errors.Join(errs...)
}

// closeCurrentView stamps the open view's duration. The view is forgotten even
// when the write fails. Callers hold viewMu.
func (s *analyticsService) closeCurrentView(ctx context.Context) error {
	const op = "close piece view"
	s.mu.Lock()
	view := s.view
	s.view = nil
	s.mu.Unlock()
	if view == nil {
		return nil
	}
	now := s.now()
	elapsed := now.Sub(view.startedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	ms := elapsed.Milliseconds()

	var errs []error
	if err := s.store.Update(ctx, docstore.ViewingEvent(view.eventID), docstore.Data{"duration_ms": ms}); err != nil {
		s.log.Warn("failed to close piece view", "event_id", view.eventID, "error", err)
		errs = append(errs, apperr.Transient(op, err))
	}
	if err := s.store.Merge(ctx, docstore.UserPieceInteraction(view.galleryID, view.userID, view.pieceID), docstore.Data{
		"total_duration_ms": docstore.Increment(ms),
		"last_updated":      domain.FormatTime(now),
	}); err != nil {
		s.log.Warn("failed to add view duration", "piece_id", view.pieceID, "error", err)
		errs = append(errs, apperr.Transient(op, err))
	}
	s.log.Debug("piece view ended", "piece_id", view.pieceID, "seconds", wholeSeconds(elapsed))
	return errors.Join(errs...)
}

func (s *analyticsService) RecordInteractionEvent(ctx context.Context, user *domain.GalleryUser, galleryID, collectionID, pieceID, sessionID string, eventType domain.EventType) error {
	const op = "record interaction"
	if !eventType.Valid() {
		return apperr.InvalidArgument(op, fmt.Sprintf("unknown event type %q", eventType))
	}
	if eventType.IsFavoriteToggle() {
		return s.ToggleFavorite(ctx, user, galleryID, collectionID, pieceID, sessionID, eventType == domain.EventFavorite)
	}
	return s.recordInteraction(ctx, user, galleryID, collectionID, pieceID, sessionID, eventType)
}

func (s *analyticsService) recordInteraction(ctx context.Context, user *domain.GalleryUser, galleryID, collectionID, pieceID, sessionID string, eventType domain.EventType) error {
	const op = "record interaction"
	if user == nil || user.UserID == "" || pieceID == "" {
		return apperr.InvalidArgument(op, "user and piece id are required")
	}
	ctx, span := tracer.Start(ctx, "AnalyticsService.RecordInteractionEvent")
	defer span.End()
	span.SetAttributes(attribute.String("event.type", string(eventType)))

	now := s.now()
	s.touch(now)
	event := &domain.ViewingEvent{
		EventID:      NewEventID(eventType, pieceID, user.UserID, now),
		GalleryID:    galleryID,
		UserID:       user.UserID,
		CollectionID: collectionID,
		PieceID:      pieceID,
		EventType:    eventType,
		SessionID:    sessionID,
		Timestamp:    now,
	}
	var errs []error
	if err := s.store.Set(ctx, docstore.ViewingEvent(event.EventID), event.Fields()); err != nil {
		s.log.Warn("failed to record interaction", "event_type", string(eventType), "piece_id", pieceID, "error", err)
		errs = append(errs, apperr.Transient(op, err))
	}

	update := interactionBase(galleryID, user.UserID, pieceID, collectionID, domain.FormatTime(now))
	switch {
	case eventType.IsZoom():
		update["zoom_count"] = docstore.Increment(1)
	case eventType == domain.EventReadDescription:
		update["description_views"] = docstore.Increment(1)
	}
	if err := s.store.Merge(ctx, docstore.UserPieceInteraction(galleryID, user.UserID, pieceID), update); err != nil {
		s.log.Warn("failed to update interaction counts", "event_type", string(eventType), "piece_id", pieceID, "error", err)
		errs = append(errs, apperr.Transient(op, err))
	}
	return errors.Join(errs...)
}

func (s *analyticsService) ToggleFavorite(ctx context.Context, user *domain.GalleryUser, galleryID, collectionID, pieceID, sessionID string, isFavorite bool) error {
	const op = "toggle favorite"
	if user == nil || user.UserID == "" || pieceID == "" {
		return apperr.InvalidArgument(op, "user and piece id are required")
	}
	eventType := domain.EventUnfavorite
	if isFavorite {
		eventType = domain.EventFavorite
	}
	var errs []error
	if err := s.recordInteraction(ctx, user, galleryID, collectionID, pieceID, sessionID, eventType); err != nil {
		errs = append(errs, err)
	}

	now := s.now()
	record := &domain.FavoriteRecord{UserID: user.UserID, PieceID: pieceID, IsOn: isFavorite, ModifiedDateTimeUTC: now}
	if err := s.store.Set(ctx, docstore.FavoritePiece(user.UserID, pieceID), record.Fields()); err != nil {
		s.log.Error("failed to write favorite", "piece_id", pieceID, "is_favorite", isFavorite, "error", err)
		errs = append(errs, apperr.Transient(op, err))
	} else if s.favorites != nil {
		s.favorites.UpdateCache(user.UserID, pieceID, isFavorite)
	}

	update := interactionBase(galleryID, user.UserID, pieceID, collectionID, domain.FormatTime(now))
	update["favorite"] = isFavorite
	if err := s.store.Merge(ctx, docstore.UserPieceInteraction(galleryID, user.UserID, pieceID), update); err != nil {
		s.log.Warn("failed to update interaction favorite", "piece_id", pieceID, "error", err)
		errs = append(errs, apperr.Transient(op, err))
	}
	s.log.Debug("favorite toggled", "piece_id", pieceID, "is_favorite", isFavorite)
	return errors.Join(errs...)
}

// EndSession stops the heartbeat before anything else, closes the open view
// and writes the final session fields. Calling it with no session is a no-op.
func (s *analyticsService) EndSession(ctx context.Context, user *domain.GalleryUser, galleryID, sessionID string) error {
	const op = "end session"
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()

	s.mu.Lock()
	sess := s.session
	s.session = nil
	hasView := s.view != nil
	s.mu.Unlock()
	if sess == nil && !hasView {
		return nil
	}
	if sess != nil {
		stopHeartbeat(sess)
	}

	ctx, span := tracer.Start(ctx, "AnalyticsService.EndSession")
	defer span.End()

	var errs []error
	s.viewMu.Lock()
	if err := s.closeCurrentView(ctx); err != nil {
		errs = append(errs, err)
	}
	s.viewMu.Unlock()

	if sess == nil {
		return errors.Join(errs...)
	}
	if galleryID == "" {
		galleryID = sess.galleryID
	}
	if sessionID == "" {
		sessionID = sess.sessionID
	}
	now := s.now()
	stamp := domain.FormatTime(now)
	duration := wholeSeconds(now.Sub(sess.startedAt))
	err := s.store.Merge(ctx, docstore.UserSession(galleryID, sessionID), docstore.Data{
		domain.SessionFieldEndTime:         stamp,
		domain.SessionFieldDurationSeconds: duration,
		domain.SessionFieldLastActivity:    stamp,
	})
	if err != nil {
		span.RecordError(err)
		s.log.Error("failed to end analytics session", "session_id", sessionID, "error", err)
		errs = append(errs, apperr.Transient(op, err))
	} else {
		s.log.Info("analytics session ended", "session_id", sessionID, "seconds", duration)
	}
	return errors.Join(errs...)
}

// RecordActivity marks the session non-idle. The next heartbeat carries it.
func (s *analyticsService) RecordActivity() {
	s.touch(s.now())
}

func (s *analyticsService) touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != nil {
		s.session.lastActivity = now
	}
}

func (s *analyticsService) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session != nil
}

func (s *analyticsService) CurrentPieceView() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.view == nil {
		return "", false
	}
	return s.view.pieceID, true
}

func interactionBase(galleryID, userID, pieceID, collectionID, stamp string) docstore.Data {
	d := docstore.Data{
		"gallery_id":   galleryID,
		"user_id":      userID,
		"piece_id":     pieceID,
		"last_updated": stamp,
	}
	if collectionID != "" {
		d["collection_ids"] = docstore.ArrayUnion(collectionID)
	}
	return d
}

func wholeSeconds(d time.Duration) int64 {
	if d < 0 {
		return 0
	}
	return int64(d / time.Second)
}

// NewEventID builds "<type>_<piece>_<user>_<unixms>_<rand8>".
func NewEventID(eventType domain.EventType, pieceID, userID string, at time.Time) string {
	return fmt.Sprintf("%s_%s_%s_%d_%s", eventType, pieceID, userID, at.UnixMilli(), randSuffix())
}

// NewSessionID builds "<user>_<unixms>_<rand8>".
func NewSessionID(userID string, at time.Time) string {
	return fmt.Sprintf("%s_%d_%s", userID, at.UnixMilli(), randSuffix())
}

func randSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

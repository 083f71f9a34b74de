package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/yungbote/gallery-client/internal/domain"
	apperr "github.com/yungbote/gallery-client/internal/pkg/errors"
	"github.com/yungbote/gallery-client/internal/platform/callable"
	"github.com/yungbote/gallery-client/internal/platform/logger"
)

const (
	loginFunction = "loginWithAccessCode"

	msgInvalidAccessCode = "Invalid access code"
	msgLoginUnavailable  = "Failed to validate access code. Please try again."
	msgNoSavedSession    = "No saved session"
	msgInvalidSession    = "Invalid session data"
)

type AuthService interface {
	Login(ctx context.Context, accessCode, galleryID string, device *domain.DeviceInfo) (*domain.SessionRecord, error)
	Restore() (*domain.SessionRecord, error)
	Resume(ctx context.Context) (*domain.SessionRecord, error)
	Logout(ctx context.Context)
	Current() (*domain.SessionRecord, bool)
	IsAuthenticated() bool
}

type AuthConfig struct {
	SessionFile string
	Now         func() time.Time
}

type loginRequest struct {
	AccessCode string `json:"accessCode"`
	GalleryID  string `json:"galleryId"`
}

type loginResponse struct {
	Success bool       `json:"success"`
	Message string     `json:"message"`
	User    *loginUser `json:"user"`
}

type loginUser struct {
	ID             string `json:"id"`
	DisplayName    string `json:"displayName"`
	FirstName      string `json:"firstName"`
	LastName       string `json:"lastName"`
	CollectionID   string `json:"collectionId"`
	CollectionName string `json:"collectionName"`
	HideTitles     bool   `json:"hideTitles"`
}

type authService struct {
	log       *logger.Logger
	callable  callable.Client
	analytics AnalyticsService
	file      *sessionFile
	now       func() time.Time

	mu      sync.Mutex
	current *domain.SessionRecord
}

func NewAuthService(client callable.Client, analytics AnalyticsService, cfg AuthConfig, baseLog *logger.Logger) AuthService {
	if baseLog == nil {
		baseLog = logger.Nop()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &authService{
		log:       baseLog.With("service", "AuthService"),
		callable:  client,
		analytics: analytics,
		file:      newSessionFile(cfg.SessionFile),
		now:       now,
	}
}

// Login validates the access code, persists the session record and starts the
// analytics session. An analytics failure does not fail the login.
func (s *authService) Login(ctx context.Context, accessCode, galleryID string, device *domain.DeviceInfo) (*domain.SessionRecord, error) {
	const op = "login"
	code := strings.ToUpper(strings.TrimSpace(accessCode))
	galleryID = strings.TrimSpace(galleryID)
	if code == "" || galleryID == "" {
		return nil, apperr.InvalidArgument(op, "access code and gallery id are required")
	}

	ctx, span := tracer.Start(ctx, "AuthService.Login")
	defer span.End()

	var resp loginResponse
	if err := s.callable.Call(ctx, loginFunction, loginRequest{AccessCode: code, GalleryID: galleryID}, &resp); err != nil {
		span.RecordError(err)
		s.log.Error("login call failed", "gallery_id", galleryID, "error", err)
		return nil, apperr.Transient(op, errors.New(msgLoginUnavailable))
	}
	if !resp.Success || resp.User == nil || strings.TrimSpace(resp.User.ID) == "" {
		msg := strings.TrimSpace(resp.Message)
		if msg == "" {
			msg = msgInvalidAccessCode
		}
		s.log.Info("login rejected", "gallery_id", galleryID, "reason", msg)
		return nil, apperr.Unauthorized(op, msg)
	}

	u := resp.User
	user := &domain.GalleryUser{
		UserID:           u.ID,
		DisplayName:      u.DisplayName,
		FirstName:        u.FirstName,
		LastName:         u.LastName,
		CollectionID:     u.CollectionID,
		CollectionName:   u.CollectionName,
		HideTitles:       u.HideTitles,
		CodeValue:        code,
		Active:           true,
		LastLoginTimeUTC: s.now().UTC(),
	}
	rec := &domain.SessionRecord{
		User:      user,
		SessionID: NewSessionID(user.UserID, s.now()),
		GalleryID: galleryID,
	}
	if err := s.file.Save(rec); err != nil {
		s.log.Warn("failed to persist session", "session_id", rec.SessionID, "error", err)
	}
	s.mu.Lock()
	s.current = rec
	s.mu.Unlock()

	if s.analytics != nil {
		_ = s.analytics.StartSession(ctx, user, galleryID, rec.SessionID, device)
	}
	s.log.Info("visitor logged in", "user_id", user.UserID, "session_id", rec.SessionID, "collection_id", user.CollectionID)
	return rec, nil
}

// Restore loads the persisted record. A corrupt record is cleared.
func (s *authService) Restore() (*domain.SessionRecord, error) {
	const op = "restore session"
	rec, err := s.file.Load()
	switch {
	case errors.Is(err, errNoSavedSession):
		return nil, apperr.NotFound(op, msgNoSavedSession)
	case err != nil:
		s.log.Warn("discarding saved session", "error", err)
		s.clear()
		return nil, apperr.Malformed(op, msgInvalidSession)
	}
	s.mu.Lock()
	s.current = rec
	s.mu.Unlock()
	s.log.Info("session restored", "user_id", rec.User.UserID, "session_id", rec.SessionID)
	return rec, nil
}

// Resume restores the saved record and resumes its analytics session. A
// session that already ended continues under a fresh session id, which is
// persisted in place of the old one.
func (s *authService) Resume(ctx context.Context) (*domain.SessionRecord, error) {
	rec, err := s.Restore()
	if err != nil {
		return nil, err
	}
	out := *rec
	if s.analytics == nil {
		return &out, nil
	}
	err = s.analytics.StartSession(ctx, out.User, out.GalleryID, out.SessionID, nil)
	if !errors.Is(err, ErrSessionEnded) {
		return &out, nil
	}

	out.SessionID = NewSessionID(out.User.UserID, s.now())
	if err := s.file.Save(&out); err != nil {
		s.log.Warn("failed to persist session", "session_id", out.SessionID, "error", err)
	}
	next := out
	s.mu.Lock()
	s.current = &next
	s.mu.Unlock()
	s.log.Info("ended session replaced", "previous_session_id", rec.SessionID, "session_id", out.SessionID)
	_ = s.analytics.StartSession(ctx, out.User, out.GalleryID, out.SessionID, nil)
	return &out, nil
}

// Logout ends the analytics session, if any, and forgets the visitor.
func (s *authService) Logout(ctx context.Context) {
	s.mu.Lock()
	rec := s.current
	s.mu.Unlock()
	if rec != nil && s.analytics != nil {
		_ = s.analytics.EndSession(ctx, rec.User, rec.GalleryID, rec.SessionID)
	}
	s.clear()
}

func (s *authService) clear() {
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
	if err := s.file.Clear(); err != nil {
		s.log.Warn("failed to clear session file", "error", err)
	}
}

func (s *authService) Current() (*domain.SessionRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil, false
	}
	cp := *s.current
	return &cp, true
}

func (s *authService) IsAuthenticated() bool {
	_, ok := s.Current()
	return ok
}

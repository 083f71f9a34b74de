package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	server "github.com/yungbote/gallery-client/internal/http"
	"github.com/yungbote/gallery-client/internal/observability"
	"github.com/yungbote/gallery-client/internal/platform/logger"
)

type App struct {
	Log      *logger.Logger
	Router   *gin.Engine
	Cfg      Config
	Clients  Clients
	Services Services

	otelShutdown func(context.Context) error
}

func New(ctx context.Context) (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading configuration...")
	cfg, err := LoadConfig(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("load config: %w", err)
	}

	shutdown := observability.InitOTel(ctx, log, observability.OtelConfigFromEnv(serviceName))

	clients, err := wireClients(ctx, log, cfg)
	if err != nil {
		_ = shutdown(ctx)
		log.Sync()
		return nil, err
	}
	serviceset := wireServices(log, cfg, clients)
	router := wireRouter(log, cfg, serviceset)

	return &App{
		Log:          log,
		Router:       router,
		Cfg:          cfg,
		Clients:      clients,
		Services:     serviceset,
		otelShutdown: shutdown,
	}, nil
}

// Start restores a saved visitor session so a restarted agent resumes where
// the kiosk left off.
func (a *App) Start(ctx context.Context) {
	if a == nil {
		return
	}
	rec, err := a.Services.Auth.Resume(ctx)
	if err != nil {
		a.Log.Info("No session restored", "reason", err)
		return
	}
	a.Log.Info("Session resumed", "session_id", rec.SessionID, "gallery_id", rec.GalleryID)
}

func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Router == nil {
		return fmt.Errorf("app not initialized")
	}
	addr := ":" + a.Cfg.Port
	a.Log.Info("Listening", "addr", addr)
	return (&server.Server{Engine: a.Router}).Run(ctx, addr)
}

// Close ends the live analytics session before releasing clients.
func (a *App) Close() {
	if a == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if a.Services.Analytics != nil && a.Services.Analytics.Active() {
		if rec, ok := a.Services.Auth.Current(); ok {
			_ = a.Services.Analytics.EndSession(ctx, rec.User, rec.GalleryID, rec.SessionID)
		}
	}
	if a.Services.Favorites != nil {
		a.Services.Favorites.Dispose()
	}
	a.Clients.Close()
	if a.otelShutdown != nil {
		_ = a.otelShutdown(ctx)
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}

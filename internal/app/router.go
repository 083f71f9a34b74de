package app

import (
	"github.com/gin-gonic/gin"

	server "github.com/yungbote/gallery-client/internal/http"
	httpH "github.com/yungbote/gallery-client/internal/http/handlers"
	httpMW "github.com/yungbote/gallery-client/internal/http/middleware"
	"github.com/yungbote/gallery-client/internal/platform/logger"
	"github.com/yungbote/gallery-client/internal/services"
)

const serviceName = "gallery-client"

func wireRouter(log *logger.Logger, cfg Config, svc Services) *gin.Engine {
	log.Info("Wiring router...")
	return server.NewRouter(server.RouterConfig{
		Log:               log,
		ServiceName:       serviceName,
		AllowedOrigins:    cfg.AllowedOrigins,
		CurrentSession:    currentSession(svc.Auth),
		VisitorMiddleware: httpMW.NewVisitorMiddleware(log, svc.Auth),
		HealthHandler:     httpH.NewHealthHandler(),
		SessionHandler:    httpH.NewSessionHandler(log, svc.Auth, svc.State, svc.Favorites),
		GalleryHandler:    httpH.NewGalleryHandler(log, svc.State),
		PieceHandler:      httpH.NewPieceHandler(log, svc.Analytics, svc.Favorites),
		MediaHandler:      httpH.NewMediaHandler(svc.Media, svc.State),
	})
}

func currentSession(auth services.AuthService) httpMW.SessionLookup {
	return func() (string, bool) {
		rec, ok := auth.Current()
		if !ok {
			return "", false
		}
		return rec.SessionID, true
	}
}

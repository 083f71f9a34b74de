package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/gallery-client/internal/http/handlers"
	httpMW "github.com/yungbote/gallery-client/internal/http/middleware"
	"github.com/yungbote/gallery-client/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	ServiceName    string
	AllowedOrigins []string

	CurrentSession    httpMW.SessionLookup
	VisitorMiddleware *httpMW.VisitorMiddleware

	HealthHandler  *httpH.HealthHandler
	SessionHandler *httpH.SessionHandler
	GalleryHandler *httpH.GalleryHandler
	PieceHandler   *httpH.PieceHandler
	MediaHandler   *httpH.MediaHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext(cfg.CurrentSession))
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.CORS(cfg.AllowedOrigins...))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/api")
	{
		// Session (public)
		if cfg.SessionHandler != nil {
			api.POST("/login", cfg.SessionHandler.Login)
			api.POST("/logout", cfg.SessionHandler.Logout)
			api.GET("/session", cfg.SessionHandler.Session)
		}
	}

	protected := api.Group("/")
	{
		if cfg.VisitorMiddleware != nil {
			protected.Use(cfg.VisitorMiddleware.RequireVisitor())
		}

		// Gallery
		if cfg.GalleryHandler != nil {
			protected.GET("/gallery", cfg.GalleryHandler.GetGallery)
			protected.GET("/gallery/search", cfg.GalleryHandler.Search)
			protected.POST("/gallery/select", cfg.GalleryHandler.Select)
			protected.GET("/artists/:id/pieces", cfg.GalleryHandler.ArtistPieces)
			protected.GET("/favorites", cfg.GalleryHandler.Favorites)
		}

		// Pieces (analytics + favorites)
		if cfg.PieceHandler != nil {
			protected.POST("/pieces/:id/view", cfg.PieceHandler.RecordView)
			protected.POST("/pieces/:id/events", cfg.PieceHandler.RecordEvent)
			protected.POST("/pieces/:id/favorite", cfg.PieceHandler.ToggleFavorite)
			protected.GET("/pieces/:id/favorite", cfg.PieceHandler.FavoriteStatus)
			protected.GET("/pieces/:id/favorite/stream", cfg.PieceHandler.FavoriteStream)
			protected.POST("/favorites/status", cfg.PieceHandler.FavoritesForPieces)
			protected.POST("/activity", cfg.PieceHandler.RecordActivity)
		}

		// Media
		if cfg.MediaHandler != nil {
			protected.GET("/media", cfg.MediaHandler.Resolve)
			protected.GET("/pieces/:id/media", cfg.MediaHandler.PieceMedia)
		}
	}

	return r
}

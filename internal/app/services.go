package app

import (
	"github.com/yungbote/gallery-client/internal/domain"
	"github.com/yungbote/gallery-client/internal/platform/logger"
	"github.com/yungbote/gallery-client/internal/services"
)

type Services struct {
	Loader    services.GalleryLoader
	Favorites services.FavoritesService
	Analytics services.AnalyticsService
	Auth      services.AuthService
	State     services.GalleryStateService
	Media     services.MediaService
}

func wireServices(log *logger.Logger, cfg Config, clients Clients) Services {
	log.Info("Wiring services...")
	favorites := services.NewFavoritesService(clients.Store, log)
	analytics := services.NewAnalyticsService(clients.Store, services.AnalyticsConfig{
		HeartbeatInterval: cfg.HeartbeatInterval,
		Device: domain.DeviceInfo{
			DeviceType:       cfg.DeviceType,
			Browser:          cfg.Browser,
			OperatingSystem:  cfg.OperatingSystem,
			ScreenResolution: cfg.ScreenResolution,
		},
		Favorites: favorites,
	}, log)
	loader := services.NewGalleryLoader(clients.Store, services.GalleryLoaderConfig{BatchSize: cfg.QueryBatchSize}, log)
	return Services{
		Loader:    loader,
		Favorites: favorites,
		Analytics: analytics,
		Auth:      services.NewAuthService(clients.Callable, analytics, services.AuthConfig{SessionFile: cfg.SessionFile}, log),
		State:     services.NewGalleryStateService(loader, favorites, log),
		Media:     services.NewMediaService(clients.Media, log),
	}
}

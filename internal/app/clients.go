package app

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/yungbote/gallery-client/internal/docstore"
	"github.com/yungbote/gallery-client/internal/docstore/gormstore"
	"github.com/yungbote/gallery-client/internal/docstore/memstore"
	"github.com/yungbote/gallery-client/internal/docstore/notify"
	"github.com/yungbote/gallery-client/internal/platform/callable"
	"github.com/yungbote/gallery-client/internal/platform/gcp"
	"github.com/yungbote/gallery-client/internal/platform/logger"
)

type Clients struct {
	Store    docstore.Store
	DB       *gorm.DB
	Notifier notify.Notifier
	Callable callable.Client
	// Media is nil when no media bucket is configured.
	Media gcp.BlobResolver
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")
	var out Clients

	if err := wireDocstore(ctx, log, cfg, &out); err != nil {
		out.Close()
		return Clients{}, err
	}

	client, err := callable.New(log, callable.Config{
		BaseURL: cfg.AuthCallableURL,
		Timeout: cfg.AuthTimeout,
	})
	if err != nil {
		out.Close()
		return Clients{}, fmt.Errorf("init callable client: %w", err)
	}
	out.Callable = client

	if strings.TrimSpace(cfg.MediaBucketName) == "" {
		log.Warn("MEDIA_BUCKET_NAME not set; media urls will not resolve")
		return out, nil
	}
	media, err := gcp.NewBlobResolver(ctx, log, mediaConfig(cfg))
	if err != nil {
		out.Close()
		return Clients{}, fmt.Errorf("init media storage: %w", err)
	}
	out.Media = media
	return out, nil
}

func mediaConfig(cfg Config) gcp.MediaConfig {
	mode := gcp.StorageMode(strings.ToLower(strings.TrimSpace(cfg.ObjectStorageMode)))
	if mode == "" {
		mode = gcp.StorageModeGCS
		if strings.TrimSpace(cfg.StorageEmulatorHost) != "" {
			mode = gcp.StorageModeGCSEmulator
		}
	}
	return gcp.MediaConfig{
		BucketName:    cfg.MediaBucketName,
		CDNDomain:     cfg.MediaCDNDomain,
		Mode:          mode,
		EmulatorHost:  cfg.StorageEmulatorHost,
		PublicBaseURL: cfg.PublicBaseURL,
	}
}

// wireDocstore picks the document backend. SQL backends publish changes
// through redis when REDIS_ADDR is set, otherwise in-process only.
func wireDocstore(ctx context.Context, log *logger.Logger, cfg Config, out *Clients) error {
	switch cfg.DocstoreDriver {
	case "", "memory":
		mem := memstore.New(log)
		if cfg.DocstoreSeedFile != "" {
			if err := mem.SeedFile(cfg.DocstoreSeedFile); err != nil {
				return err
			}
		}
		out.Store = mem
		return nil
	case string(gormstore.DriverSQLite), string(gormstore.DriverPostgres):
	default:
		return fmt.Errorf("unsupported DOCSTORE_DRIVER %q", cfg.DocstoreDriver)
	}

	db, err := gormstore.Open(log, gormstore.DBConfig{
		Driver:           gormstore.Driver(cfg.DocstoreDriver),
		PostgresHost:     cfg.PostgresHost,
		PostgresPort:     cfg.PostgresPort,
		PostgresUser:     cfg.PostgresUser,
		PostgresPassword: cfg.PostgresPassword,
		PostgresName:     cfg.PostgresName,
		SQLitePath:       cfg.SQLitePath,
	})
	if err != nil {
		return fmt.Errorf("init docstore: %w", err)
	}
	out.DB = db

	var notifier notify.Notifier = notify.NewLocal()
	if strings.TrimSpace(cfg.RedisAddr) != "" {
		r, err := notify.NewRedis(ctx, log, notify.RedisConfig{
			Addr:          cfg.RedisAddr,
			Password:      cfg.RedisPassword,
			ChannelPrefix: cfg.RedisChannelPrefix,
		})
		if err != nil {
			return fmt.Errorf("init redis notifier: %w", err)
		}
		notifier = r
	}
	out.Notifier = notifier
	out.Store = gormstore.New(db, notifier, log)
	return nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Media != nil {
		_ = c.Media.Close()
	}
	if c.Notifier != nil {
		_ = c.Notifier.Close()
	}
	if c.DB != nil {
		if sqlDB, err := c.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}

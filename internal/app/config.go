package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/gallery-client/internal/platform/envutil"
	"github.com/yungbote/gallery-client/internal/platform/logger"
)

// Config holds every runtime setting. Values come from defaults, then the
// optional YAML file named by GALLERY_CONFIG_FILE, then the environment.
type Config struct {
	LogMode string `yaml:"log_mode"`
	Port    string `yaml:"port"`

	DocstoreDriver   string `yaml:"docstore_driver"`
	DocstoreSeedFile string `yaml:"docstore_seed_file"`
	SQLitePath       string `yaml:"sqlite_path"`
	PostgresHost     string `yaml:"postgres_host"`
	PostgresPort     string `yaml:"postgres_port"`
	PostgresUser     string `yaml:"postgres_user"`
	PostgresPassword string `yaml:"-"`
	PostgresName     string `yaml:"postgres_name"`

	RedisAddr          string `yaml:"redis_addr"`
	RedisPassword      string `yaml:"-"`
	RedisChannelPrefix string `yaml:"redis_channel_prefix"`

	AuthCallableURL string        `yaml:"auth_callable_url"`
	AuthTimeout     time.Duration `yaml:"auth_timeout"`
	SessionFile     string        `yaml:"session_file"`

	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	QueryBatchSize    int           `yaml:"query_batch_size"`

	DeviceType       string `yaml:"device_type"`
	Browser          string `yaml:"browser"`
	OperatingSystem  string `yaml:"os"`
	ScreenResolution string `yaml:"screen_resolution"`

	MediaBucketName     string `yaml:"media_bucket_name"`
	MediaCDNDomain      string `yaml:"media_cdn_domain"`
	ObjectStorageMode   string `yaml:"object_storage_mode"`
	StorageEmulatorHost string `yaml:"storage_emulator_host"`
	PublicBaseURL       string `yaml:"object_storage_public_base_url"`

	AllowedOrigins []string `yaml:"allowed_origins"`
}

func defaultConfig() Config {
	return Config{
		LogMode:            "development",
		Port:               "8080",
		DocstoreDriver:     "memory",
		SQLitePath:         "gallery.db",
		PostgresHost:       "localhost",
		PostgresPort:       "5432",
		PostgresUser:       "postgres",
		PostgresName:       "gallery",
		RedisChannelPrefix: "docstore:",
		AuthTimeout:        15 * time.Second,
		HeartbeatInterval:  60 * time.Second,
		QueryBatchSize:     10,
		DeviceType:         "desktop",
		Browser:            "agent",
		OperatingSystem:    "unknown",
	}
}

func LoadConfig(log *logger.Logger) (Config, error) {
	cfg := defaultConfig()
	if path := envutil.String("GALLERY_CONFIG_FILE", ""); path != "" {
		if err := loadConfigFile(path, &cfg); err != nil {
			return Config{}, err
		}
		if log != nil {
			log.Info("Loaded config file", "path", path)
		}
	}
	applyEnv(&cfg)
	cfg.DocstoreDriver = strings.ToLower(strings.TrimSpace(cfg.DocstoreDriver))
	if cfg.QueryBatchSize < 1 || cfg.QueryBatchSize > 10 {
		if log != nil {
			log.Warn("QUERY_BATCH_SIZE out of range; clamping", "value", cfg.QueryBatchSize)
		}
		cfg.QueryBatchSize = clampInt(cfg.QueryBatchSize, 1, 10)
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 60 * time.Second
	}
	return cfg, nil
}

func loadConfigFile(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.LogMode = envutil.String("LOG_MODE", cfg.LogMode)
	cfg.Port = envutil.String("PORT", cfg.Port)

	cfg.DocstoreDriver = envutil.String("DOCSTORE_DRIVER", cfg.DocstoreDriver)
	cfg.DocstoreSeedFile = envutil.String("DOCSTORE_SEED_FILE", cfg.DocstoreSeedFile)
	cfg.SQLitePath = envutil.String("SQLITE_PATH", cfg.SQLitePath)
	cfg.PostgresHost = envutil.String("POSTGRES_HOST", cfg.PostgresHost)
	cfg.PostgresPort = envutil.String("POSTGRES_PORT", cfg.PostgresPort)
	cfg.PostgresUser = envutil.String("POSTGRES_USER", cfg.PostgresUser)
	cfg.PostgresPassword = envutil.String("POSTGRES_PASSWORD", cfg.PostgresPassword)
	cfg.PostgresName = envutil.String("POSTGRES_NAME", cfg.PostgresName)

	cfg.RedisAddr = envutil.String("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = envutil.String("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisChannelPrefix = envutil.String("REDIS_CHANNEL_PREFIX", cfg.RedisChannelPrefix)

	cfg.AuthCallableURL = envutil.String("AUTH_CALLABLE_URL", cfg.AuthCallableURL)
	cfg.AuthTimeout = envutil.Duration("AUTH_TIMEOUT", cfg.AuthTimeout)
	cfg.SessionFile = envutil.String("SESSION_FILE", cfg.SessionFile)

	cfg.HeartbeatInterval = envutil.Duration("HEARTBEAT_INTERVAL", cfg.HeartbeatInterval)
	cfg.QueryBatchSize = envutil.Int("QUERY_BATCH_SIZE", cfg.QueryBatchSize)

	cfg.DeviceType = envutil.String("DEVICE_TYPE", cfg.DeviceType)
	cfg.Browser = envutil.String("DEVICE_BROWSER", cfg.Browser)
	cfg.OperatingSystem = envutil.String("DEVICE_OS", cfg.OperatingSystem)
	cfg.ScreenResolution = envutil.String("DEVICE_SCREEN_RESOLUTION", cfg.ScreenResolution)

	cfg.MediaBucketName = envutil.String("MEDIA_BUCKET_NAME", cfg.MediaBucketName)
	cfg.MediaCDNDomain = envutil.String("MEDIA_CDN_DOMAIN", cfg.MediaCDNDomain)
	cfg.ObjectStorageMode = envutil.String("OBJECT_STORAGE_MODE", cfg.ObjectStorageMode)
	cfg.StorageEmulatorHost = envutil.String("STORAGE_EMULATOR_HOST", cfg.StorageEmulatorHost)
	cfg.PublicBaseURL = envutil.String("OBJECT_STORAGE_PUBLIC_BASE_URL", cfg.PublicBaseURL)

	if raw := envutil.String("ALLOWED_ORIGINS", ""); raw != "" {
		cfg.AllowedOrigins = nil
		for _, o := range strings.Split(raw, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
			}
		}
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

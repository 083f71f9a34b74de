package gcp

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"google.golang.org/api/option"

	"github.com/yungbote/gallery-client/internal/platform/envutil"
)

type StorageMode string

const (
	StorageModeGCS         StorageMode = "gcs"
	StorageModeGCSEmulator StorageMode = "gcs_emulator"
)

// MediaConfig describes the read-only bucket holding artwork images.
type MediaConfig struct {
	BucketName    string
	CDNDomain     string
	Mode          StorageMode
	EmulatorHost  string
	PublicBaseURL string
}

func (c MediaConfig) IsEmulator() bool { return c.Mode == StorageModeGCSEmulator }

// MediaConfigFromEnv reads MEDIA_BUCKET_NAME, MEDIA_CDN_DOMAIN,
// OBJECT_STORAGE_MODE, STORAGE_EMULATOR_HOST and OBJECT_STORAGE_PUBLIC_BASE_URL.
// An unset mode with an emulator host selects the emulator.
func MediaConfigFromEnv() (MediaConfig, error) {
	cfg := MediaConfig{
		BucketName:    envutil.String("MEDIA_BUCKET_NAME", ""),
		CDNDomain:     envutil.String("MEDIA_CDN_DOMAIN", ""),
		EmulatorHost:  envutil.String("STORAGE_EMULATOR_HOST", ""),
		PublicBaseURL: envutil.String("OBJECT_STORAGE_PUBLIC_BASE_URL", ""),
		Mode:          StorageMode(strings.ToLower(envutil.String("OBJECT_STORAGE_MODE", ""))),
	}
	if cfg.Mode == "" {
		cfg.Mode = StorageModeGCS
		if cfg.EmulatorHost != "" {
			cfg.Mode = StorageModeGCSEmulator
		}
	}
	return cfg, cfg.Validate()
}

func (c MediaConfig) Validate() error {
	switch c.Mode {
	case StorageModeGCS, StorageModeGCSEmulator:
	default:
		return fmt.Errorf("invalid OBJECT_STORAGE_MODE=%q (allowed: %q, %q)", c.Mode, StorageModeGCS, StorageModeGCSEmulator)
	}
	if strings.TrimSpace(c.BucketName) == "" {
		return fmt.Errorf("missing env var MEDIA_BUCKET_NAME")
	}
	if c.IsEmulator() {
		if c.EmulatorHost == "" {
			return fmt.Errorf("OBJECT_STORAGE_MODE=%q requires STORAGE_EMULATOR_HOST to be set", StorageModeGCSEmulator)
		}
		if !absoluteURL(c.EmulatorHost) {
			return fmt.Errorf("invalid STORAGE_EMULATOR_HOST=%q; expected absolute URL like http://fake-gcs:4443", c.EmulatorHost)
		}
	}
	if c.PublicBaseURL != "" && !absoluteURL(c.PublicBaseURL) {
		return fmt.Errorf("invalid OBJECT_STORAGE_PUBLIC_BASE_URL=%q; expected absolute URL like http://localhost:4443", c.PublicBaseURL)
	}
	return nil
}

func absoluteURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	return err == nil && strings.TrimSpace(u.Scheme) != "" && strings.TrimSpace(u.Host) != ""
}

// ClientOptionsFromEnv picks up credentials from GOOGLE_APPLICATION_CREDENTIALS_JSON
// (inline JSON or a file path) or GOOGLE_APPLICATION_CREDENTIALS.
func ClientOptionsFromEnv() []option.ClientOption {
	creds := strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON"))
	if creds == "" {
		creds = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if creds == "" {
		return nil
	}
	if strings.HasPrefix(creds, "{") {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(creds))}
	}
	return []option.ClientOption{option.WithCredentialsFile(creds)}
}

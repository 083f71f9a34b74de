package gcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/yungbote/gallery-client/internal/platform/logger"
)

// ErrObjectNotFound is returned by Attrs for a missing object.
var ErrObjectNotFound = errors.New("object not found")

type ObjectAttrs struct {
	Size        int64
	ContentType string
	Updated     time.Time
	ETag        string
}

// BlobResolver turns stored asset paths into fetchable URLs.
type BlobResolver interface {
	Attrs(ctx context.Context, key string) (*ObjectAttrs, error)
	PublicURL(key string) string
	Close() error
}

type blobResolver struct {
	log           *logger.Logger
	client        *storage.Client
	httpClient    *http.Client
	cfg           MediaConfig
	emulatorHost  string
	publicBaseURL string
}

func NewBlobResolver(ctx context.Context, log *logger.Logger, cfg MediaConfig) (BlobResolver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate media storage config: %w", err)
	}
	if log == nil {
		log = logger.Nop()
	}
	r := &blobResolver{
		log:           log.With("service", "BlobResolver"),
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		cfg:           cfg,
		emulatorHost:  strings.TrimRight(strings.TrimSpace(cfg.EmulatorHost), "/"),
		publicBaseURL: strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/"),
	}
	if cfg.IsEmulator() && r.publicBaseURL == "" {
		r.publicBaseURL = r.emulatorHost
	}

	var err error
	switch cfg.Mode {
	case StorageModeGCSEmulator:
		_ = os.Setenv("STORAGE_EMULATOR_HOST", r.emulatorHost)
		r.client, err = storage.NewClient(ctx, option.WithoutAuthentication())
	default:
		opts := append(ClientOptionsFromEnv(), option.WithScopes(storage.ScopeReadOnly))
		r.client, err = storage.NewClient(ctx, opts...)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	r.log.Info("Media storage initialized",
		"mode", cfg.Mode,
		"bucket", cfg.BucketName,
		"cdn_domain", cfg.CDNDomain,
		"public_base_url", r.publicBaseURL,
	)
	return r, nil
}

func (r *blobResolver) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}

// PublicURL prefers the CDN domain, then the emulator media endpoint, then a
// configured public base, then the GCS default host.
func (r *blobResolver) PublicURL(key string) string {
	return publicURL(r.cfg, r.publicBaseURL, key)
}

func publicURL(cfg MediaConfig, publicBase, key string) string {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if cfg.CDNDomain != "" {
		return fmt.Sprintf("https://%s/%s", cfg.CDNDomain, key)
	}
	if cfg.IsEmulator() && publicBase != "" {
		return fmt.Sprintf("%s/storage/v1/b/%s/o/%s?alt=media", publicBase, url.PathEscape(cfg.BucketName), url.PathEscape(key))
	}
	if publicBase != "" {
		return fmt.Sprintf("%s/%s/%s", publicBase, cfg.BucketName, key)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", cfg.BucketName, key)
}

func (r *blobResolver) Attrs(ctx context.Context, key string) (*ObjectAttrs, error) {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if r.cfg.IsEmulator() {
		return r.emulatorAttrs(ctx, key)
	}
	attrs, err := r.client.Bucket(r.cfg.BucketName).Object(key).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch GCS object attrs: %w", err)
	}
	return &ObjectAttrs{
		Size:        attrs.Size,
		ContentType: attrs.ContentType,
		Updated:     attrs.Updated,
		ETag:        attrs.Etag,
	}, nil
}

func (r *blobResolver) emulatorAttrs(ctx context.Context, key string) (*ObjectAttrs, error) {
	metaURL := fmt.Sprintf("%s/storage/v1/b/%s/o/%s", r.emulatorHost, url.PathEscape(r.cfg.BucketName), url.PathEscape(key))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, metaURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed creating emulator attrs request: %w", err)
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed emulator attrs request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("emulator attrs failed: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var payload struct {
		Size        string `json:"size"`
		ContentType string `json:"contentType"`
		Updated     string `json:"updated"`
		ETag        string `json:"etag"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode emulator attrs: %w", err)
	}
	size, _ := strconv.ParseInt(strings.TrimSpace(payload.Size), 10, 64)
	var updated time.Time
	if ts := strings.TrimSpace(payload.Updated); ts != "" {
		if parsed, perr := time.Parse(time.RFC3339, ts); perr == nil {
			updated = parsed
		}
	}
	return &ObjectAttrs{Size: size, ContentType: payload.ContentType, Updated: updated, ETag: payload.ETag}, nil
}

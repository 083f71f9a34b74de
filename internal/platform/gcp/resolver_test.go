package gcp

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/yungbote/gallery-client/internal/platform/logger"
)

func TestPublicURLPrecedence(t *testing.T) {
	cases := []struct {
		name string
		cfg  MediaConfig
		base string
		want string
	}{
		{"gcs default", MediaConfig{BucketName: "art", Mode: StorageModeGCS}, "", "https://storage.googleapis.com/art/pieces/p1.jpg"},
		{"cdn", MediaConfig{BucketName: "art", Mode: StorageModeGCS, CDNDomain: "cdn.example.com"}, "", "https://cdn.example.com/pieces/p1.jpg"},
		{"public base", MediaConfig{BucketName: "art", Mode: StorageModeGCS}, "http://localhost:9000", "http://localhost:9000/art/pieces/p1.jpg"},
		{"emulator", MediaConfig{BucketName: "art", Mode: StorageModeGCSEmulator}, "http://fake-gcs:4443", "http://fake-gcs:4443/storage/v1/b/art/o/pieces%2Fp1.jpg?alt=media"},
	}
	for _, tc := range cases {
		if got := publicURL(tc.cfg, tc.base, "/pieces/p1.jpg"); got != tc.want {
			t.Fatalf("%s: want=%q got=%q", tc.name, tc.want, got)
		}
	}
}

func TestMediaConfigFromEnv(t *testing.T) {
	t.Setenv("MEDIA_BUCKET_NAME", "art")
	t.Setenv("OBJECT_STORAGE_MODE", "")
	t.Setenv("STORAGE_EMULATOR_HOST", "http://fake-gcs:4443")
	t.Setenv("OBJECT_STORAGE_PUBLIC_BASE_URL", "")

	cfg, err := MediaConfigFromEnv()
	if err != nil {
		t.Fatalf("MediaConfigFromEnv: %v", err)
	}
	if cfg.Mode != StorageModeGCSEmulator {
		t.Fatalf("mode: want=%q got=%q", StorageModeGCSEmulator, cfg.Mode)
	}

	t.Setenv("OBJECT_STORAGE_MODE", "s3")
	if _, err := MediaConfigFromEnv(); err == nil {
		t.Fatalf("want error for unknown mode")
	}
	t.Setenv("OBJECT_STORAGE_MODE", "gcs")
	t.Setenv("MEDIA_BUCKET_NAME", "")
	if _, err := MediaConfigFromEnv(); err == nil {
		t.Fatalf("want error for missing bucket")
	}
}

func TestEmulatorAttrs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.EscapedPath() == "/storage/v1/b/art/o/pieces%2Fp1.jpg" {
			_, _ = w.Write([]byte(`{"size":"2048","contentType":"image/jpeg","etag":"x1"}`))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()
	t.Setenv("STORAGE_EMULATOR_HOST", srv.URL)

	res, err := NewBlobResolver(context.Background(), logger.Nop(), MediaConfig{
		BucketName:   "art",
		Mode:         StorageModeGCSEmulator,
		EmulatorHost: srv.URL,
	})
	if err != nil {
		t.Fatalf("NewBlobResolver: %v", err)
	}
	defer res.Close()

	attrs, err := res.Attrs(context.Background(), "pieces/p1.jpg")
	if err != nil {
		t.Fatalf("Attrs: %v", err)
	}
	if attrs.Size != 2048 || attrs.ContentType != "image/jpeg" {
		t.Fatalf("attrs: %+v", attrs)
	}
	if _, err := res.Attrs(context.Background(), "missing.jpg"); !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("missing object: want ErrObjectNotFound got=%v", err)
	}
}

package observability

import "testing"

func TestParseHeaders(t *testing.T) {
	got := parseHeaders(" api-key=abc , bad, =x, team=gallery ")
	if len(got) != 2 || got["api-key"] != "abc" || got["team"] != "gallery" {
		t.Fatalf("headers: got=%v", got)
	}
	if parseHeaders("") != nil {
		t.Fatalf("empty headers: want nil")
	}
}

func TestOtelConfigFromEnv(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("OTEL_SAMPLER_RATIO", "4")
	cfg := OtelConfigFromEnv("gallery-client")
	if !cfg.Enabled {
		t.Fatalf("enabled: want=true")
	}
	if cfg.SampleRatio != 1 {
		t.Fatalf("ratio: want=1 got=%v", cfg.SampleRatio)
	}
}

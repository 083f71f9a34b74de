package callable

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/yungbote/gallery-client/internal/platform/ctxutil"
	"github.com/yungbote/gallery-client/internal/platform/logger"
)

// Client invokes HTTPS callable functions: POST {"data": ...} and read
// {"result": ...} or {"error": {...}}. Calls are never retried.
type Client interface {
	Call(ctx context.Context, name string, data any, out any) error
}

type Config struct {
	BaseURL string
	Timeout time.Duration
	// HTTPClient overrides the instrumented default; tests use it.
	HTTPClient *http.Client
}

func New(log *logger.Logger, cfg Config) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("missing AUTH_CALLABLE_URL")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	return &client{
		log:        log.With("client", "CallableClient"),
		baseURL:    base,
		httpClient: hc,
	}, nil
}

type client struct {
	log        *logger.Logger
	baseURL    string
	httpClient *http.Client
}

type callRequest struct {
	Data any `json:"data"`
}

type callResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *callError      `json:"error,omitempty"`
}

type callError struct {
	Message string `json:"message"`
	Status  string `json:"status"`
}

// HTTPError is a non-2xx reply or an {"error": ...} body.
type HTTPError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "callable: <nil error>"
	}
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = "<empty body>"
	}
	if len(msg) > 2000 {
		msg = msg[:2000] + "..."
	}
	if e.Status != "" {
		return fmt.Sprintf("callable http %d %s: %s", e.StatusCode, e.Status, msg)
	}
	return fmt.Sprintf("callable http %d: %s", e.StatusCode, msg)
}

func (c *client) Call(ctx context.Context, name string, data any, out any) error {
	name = strings.Trim(strings.TrimSpace(name), "/")
	if name == "" {
		return fmt.Errorf("callable: function name required")
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(callRequest{Data: data}); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), http.MethodPost, c.baseURL+"/"+name, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if td := ctxutil.GetTraceData(ctx); td != nil {
		if td.RequestID != "" {
			req.Header.Set("X-Request-Id", td.RequestID)
		}
		if td.SessionID != "" {
			req.Header.Set("X-Gallery-Session", td.SessionID)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn("callable request failed", "function", name, "error", err)
		return err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return readErr
	}
	c.log.Debug("callable request done", "function", name, "status", resp.StatusCode, "elapsed", time.Since(start).String())

	var cr callResponse
	decodeErr := json.Unmarshal(raw, &cr)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		he := &HTTPError{StatusCode: resp.StatusCode, Message: string(raw)}
		if decodeErr == nil && cr.Error != nil {
			he.Status = cr.Error.Status
			he.Message = cr.Error.Message
		}
		return he
	}
	if decodeErr != nil {
		return fmt.Errorf("callable: decode response: %w", decodeErr)
	}
	if cr.Error != nil {
		return &HTTPError{StatusCode: resp.StatusCode, Status: cr.Error.Status, Message: cr.Error.Message}
	}
	if out == nil || len(cr.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(cr.Result, out); err != nil {
		return fmt.Errorf("callable: decode result: %w", err)
	}
	return nil
}

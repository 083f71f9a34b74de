package callable

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/yungbote/gallery-client/internal/platform/logger"
)

func TestCallWrapsDataAndUnwrapsResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/loginWithAccessCode" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body struct {
			Data map[string]string `json:"data"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Data["accessCode"] != "ABC" {
			t.Errorf("data: got=%v", body.Data)
		}
		_, _ = w.Write([]byte(`{"result":{"success":true,"value":7}}`))
	}))
	defer srv.Close()

	c, err := New(logger.Nop(), Config{BaseURL: srv.URL + "/"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	var out struct {
		Success bool `json:"success"`
		Value   int  `json:"value"`
	}
	if err := c.Call(context.Background(), "loginWithAccessCode", map[string]string{"accessCode": "ABC"}, &out); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if !out.Success || out.Value != 7 {
		t.Fatalf("result: got=%+v", out)
	}
}

func TestCallSurfacesFunctionError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad code","status":"INVALID_ARGUMENT"}}`))
	}))
	defer srv.Close()

	c, _ := New(logger.Nop(), Config{BaseURL: srv.URL})
	err := c.Call(context.Background(), "fn", nil, nil)
	var he *HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("want HTTPError got=%v", err)
	}
	if he.StatusCode != http.StatusBadRequest || he.Status != "INVALID_ARGUMENT" || he.Message != "bad code" {
		t.Fatalf("error: got=%+v", he)
	}
}

func TestNewRequiresBaseURL(t *testing.T) {
	if _, err := New(logger.Nop(), Config{}); err == nil {
		t.Fatalf("want error for empty base url")
	}
}

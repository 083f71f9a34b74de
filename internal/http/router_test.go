package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/gallery-client/internal/docstore"
	"github.com/yungbote/gallery-client/internal/docstore/memstore"
	httpH "github.com/yungbote/gallery-client/internal/http/handlers"
	httpMW "github.com/yungbote/gallery-client/internal/http/middleware"
	"github.com/yungbote/gallery-client/internal/platform/callable"
	"github.com/yungbote/gallery-client/internal/platform/logger"
	"github.com/yungbote/gallery-client/internal/services"
)

const loginReply = `{"result":{"success":true,"user":{"id":"u1","displayName":"Ada L","collectionId":"c1","collectionName":"Spring"}}}`

type routerFixture struct {
	store     *memstore.Store
	favorites services.FavoritesService
	analytics services.AnalyticsService
	engine    *gin.Engine
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logger.Nop()

	fn := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Data struct {
				AccessCode string `json:"accessCode"`
			} `json:"data"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Data.AccessCode != "OPEN" {
			_, _ = w.Write([]byte(`{"result":{"success":false,"message":"Code expired"}}`))
			return
		}
		_, _ = w.Write([]byte(loginReply))
	}))
	t.Cleanup(fn.Close)
	client, err := callable.New(log, callable.Config{BaseURL: fn.URL, HTTPClient: fn.Client()})
	if err != nil {
		t.Fatalf("callable.New: %v", err)
	}

	store := memstore.New(log)
	store.Seed(map[docstore.Path]docstore.Data{
		docstore.Collection("g1", "c1"):    {"name": "Spring", "artists": map[string]any{"a1": []any{"p1", "p2"}}},
		docstore.Artists("g1").Child("a1"): {"displayName": "Mary Cassatt", "active": true},
		docstore.Pieces("g1").Child("p1"):  {"title": "Sunflowers", "artistID": "a1", "active": true},
		docstore.Pieces("g1").Child("p2"):  {"title": "Boating Party", "artistID": "a1", "active": true},
		docstore.FavoritePiece("u1", "p2"): {"userId": "u1", "pieceId": "p2", "isOn": true},
	})

	favorites := services.NewFavoritesService(store, log)
	t.Cleanup(favorites.Dispose)
	analytics := services.NewAnalyticsService(store, services.AnalyticsConfig{HeartbeatInterval: time.Hour, Favorites: favorites}, log)
	auth := services.NewAuthService(client, analytics, services.AuthConfig{}, log)
	t.Cleanup(func() { auth.Logout(context.Background()) })
	state := services.NewGalleryStateService(services.NewGalleryLoader(store, services.GalleryLoaderConfig{}, log), favorites, log)

	engine := NewRouter(RouterConfig{
		Log: log,
		CurrentSession: func() (string, bool) {
			rec, ok := auth.Current()
			if !ok {
				return "", false
			}
			return rec.SessionID, true
		},
		VisitorMiddleware: httpMW.NewVisitorMiddleware(log, auth),
		HealthHandler:     httpH.NewHealthHandler(),
		SessionHandler:    httpH.NewSessionHandler(log, auth, state, favorites),
		GalleryHandler:    httpH.NewGalleryHandler(log, state),
		PieceHandler:      httpH.NewPieceHandler(log, analytics, favorites),
	})
	return &routerFixture{store: store, favorites: favorites, analytics: analytics, engine: engine}
}

func (f *routerFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)
	return rec
}

func (f *routerFixture) login(t *testing.T) {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/login", gin.H{"accessCode": " open ", "galleryId": "g1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("login status: want=200 got=%d body=%s", rec.Code, rec.Body.String())
	}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestProtectedRoutesRequireLogin(t *testing.T) {
	f := newRouterFixture(t)
	if rec := f.do(t, http.MethodGet, "/api/gallery", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("status: want=401 got=%d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/healthcheck", nil); rec.Code != http.StatusOK {
		t.Fatalf("healthcheck: want=200 got=%d", rec.Code)
	}
}

func TestLoginRejected(t *testing.T) {
	f := newRouterFixture(t)
	rec := f.do(t, http.MethodPost, "/api/login", gin.H{"accessCode": "nope", "galleryId": "g1"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status: want=401 got=%d", rec.Code)
	}
	var got struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	decode(t, rec, &got)
	if got.Success || got.Error != "Code expired" {
		t.Fatalf("payload: %+v", got)
	}
}

func TestGalleryFlow(t *testing.T) {
	f := newRouterFixture(t)
	f.login(t)

	rec := f.do(t, http.MethodGet, "/api/gallery", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("gallery: want=200 got=%d body=%s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get(httpMW.HeaderGallerySession) == "" {
		t.Fatalf("gallery session header missing")
	}
	var gallery struct {
		Pieces         []map[string]any            `json:"pieces"`
		ArtistPieceMap map[string][]map[string]any `json:"artistPieceMap"`
	}
	decode(t, rec, &gallery)
	if len(gallery.Pieces) != 2 || gallery.ArtistPieceMap["a1"][0]["title"] != "Boating Party" {
		t.Fatalf("gallery payload: %s", rec.Body.String())
	}

	rec = f.do(t, http.MethodGet, "/api/gallery/search?q=sun", nil)
	var search struct {
		Pieces []map[string]any `json:"pieces"`
	}
	decode(t, rec, &search)
	if len(search.Pieces) != 1 || search.Pieces[0]["id"] != "p1" {
		t.Fatalf("search: %s", rec.Body.String())
	}

	rec = f.do(t, http.MethodPost, "/api/gallery/select", gin.H{"pieceId": "p2"})
	var sel struct {
		CurrentPiece map[string]any `json:"currentPiece"`
	}
	decode(t, rec, &sel)
	if sel.CurrentPiece["id"] != "p2" {
		t.Fatalf("select: %s", rec.Body.String())
	}

	rec = f.do(t, http.MethodGet, "/api/favorites", nil)
	var favs struct {
		Pieces []map[string]any `json:"pieces"`
	}
	decode(t, rec, &favs)
	if len(favs.Pieces) != 1 || favs.Pieces[0]["id"] != "p2" {
		t.Fatalf("favorites: %s", rec.Body.String())
	}
}

func TestPieceEvents(t *testing.T) {
	f := newRouterFixture(t)
	f.login(t)

	if rec := f.do(t, http.MethodPost, "/api/pieces/p1/view", nil); rec.Code != http.StatusOK {
		t.Fatalf("view: want=200 got=%d", rec.Code)
	}
	if id, ok := f.analytics.CurrentPieceView(); !ok || id != "p1" {
		t.Fatalf("current view: want=p1 got=%q", id)
	}
	if rec := f.do(t, http.MethodPost, "/api/pieces/p1/events", gin.H{"eventType": "wiggle"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad event: want=400 got=%d", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, "/api/pieces/p1/events", gin.H{"eventType": "zoom_in"}); rec.Code != http.StatusOK {
		t.Fatalf("zoom: want=200 got=%d", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, "/api/pieces/p1/favorite", gin.H{}); rec.Code != http.StatusBadRequest {
		t.Fatalf("favorite without flag: want=400 got=%d", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, "/api/pieces/p1/favorite", gin.H{"isFavorite": true}); rec.Code != http.StatusOK {
		t.Fatalf("favorite: want=200 got=%d", rec.Code)
	}

	rec := f.do(t, http.MethodPost, "/api/favorites/status", gin.H{"pieceIds": []string{"p1", "p2", "p9"}})
	var status struct {
		Favorites map[string]bool `json:"favorites"`
	}
	decode(t, rec, &status)
	if !status.Favorites["p1"] || !status.Favorites["p2"] || status.Favorites["p9"] {
		t.Fatalf("status: %v", status.Favorites)
	}
	if rec := f.do(t, http.MethodPost, "/api/activity", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("activity: want=204 got=%d", rec.Code)
	}
}

func TestFavoriteStreamReleasesSubscription(t *testing.T) {
	f := newRouterFixture(t)
	f.login(t)

	srv := httptest.NewServer(f.engine)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/pieces/p2/favorite/stream", nil)
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	var data string
	for data == "" {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if strings.HasPrefix(line, "data: ") {
			data = strings.TrimSpace(strings.TrimPrefix(line, "data: "))
		}
	}
	if !strings.Contains(data, `"isFavorite":true`) {
		t.Fatalf("first event: %s", data)
	}
	if n := f.favorites.ActiveSubscriptions(); n != 1 {
		t.Fatalf("subscriptions while streaming: want=1 got=%d", n)
	}

	cancel()
	deadline := time.Now().Add(2 * time.Second)
	for f.favorites.ActiveSubscriptions() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("subscription not released after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

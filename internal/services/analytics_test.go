package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/yungbote/gallery-client/internal/docstore"
	"github.com/yungbote/gallery-client/internal/domain"
	"github.com/yungbote/gallery-client/internal/platform/logger"
)

type manualTicker struct {
	ch      chan time.Time
	mu      sync.Mutex
	stopped bool
}

func newManualTicker() *manualTicker { return &manualTicker{ch: make(chan time.Time)} }

func (m *manualTicker) C() <-chan time.Time { return m.ch }

func (m *manualTicker) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
}

func (m *manualTicker) isStopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type cacheSpy struct {
	mu     sync.Mutex
	writes map[string]bool
}

func (c *cacheSpy) UpdateCache(userID, pieceID string, isOn bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writes == nil {
		c.writes = map[string]bool{}
	}
	c.writes[userID+"/"+pieceID] = isOn
}

type analyticsFixture struct {
	store   *recordingStore
	clock   *fakeClock
	tickers chan *manualTicker
	cache   *cacheSpy
	svc     AnalyticsService
}

func newAnalyticsFixture() *analyticsFixture {
	return newAnalyticsFixtureOver(nil)
}

// newAnalyticsFixtureOver puts wrap, when given, between the service and the
// recording store.
func newAnalyticsFixtureOver(wrap func(*recordingStore) docstore.Store) *analyticsFixture {
	f := &analyticsFixture{
		store:   newRecordingStore(),
		clock:   newFakeClock(),
		tickers: make(chan *manualTicker, 4),
		cache:   &cacheSpy{},
	}
	var store docstore.Store = f.store
	if wrap != nil {
		store = wrap(f.store)
	}
	f.svc = NewAnalyticsService(store, AnalyticsConfig{
		HeartbeatInterval: time.Minute,
		Device:            domain.DeviceInfo{DeviceType: "desktop", Browser: "agent", OperatingSystem: "linux"},
		Now:               f.clock.Now,
		NewTicker: func(time.Duration) Ticker {
			t := newManualTicker()
			f.tickers <- t
			return t
		},
		Favorites: f.cache,
	}, logger.Nop())
	return f
}

var testUser = &domain.GalleryUser{UserID: "u1", DisplayName: "Visitor", CollectionID: "c1", CodeValue: "ABC123"}

func (f *analyticsFixture) doc(t *testing.T, path docstore.Path) docstore.Data {
	t.Helper()
	d, err := f.store.inner.Get(context.Background(), path)
	if err != nil {
		t.Fatalf("Get %s: %v", path, err)
	}
	if !d.Exists {
		t.Fatalf("document %s missing", path)
	}
	return d.Data
}

func TestPieceViewClosesPreviousBeforeOpeningNext(t *testing.T) {
	f := newAnalyticsFixture()
	ctx := context.Background()

	if err := f.svc.RecordPieceView(ctx, testUser, "g1", "c1", "pA", "s1"); err != nil {
		t.Fatalf("view A: %v", err)
	}
	f.clock.Advance(2500 * time.Millisecond)
	if err := f.svc.RecordPieceView(ctx, testUser, "g1", "c1", "pB", "s1"); err != nil {
		t.Fatalf("view B: %v", err)
	}

	var viewA docstore.Path
	updates, creates := 0, 0
	updateIdx, createBIdx := -1, -1
	for i, c := range f.store.Calls() {
		if !strings.HasPrefix(string(c.Path), "viewing_events/") {
			continue
		}
		switch c.Op {
		case "set":
			creates++
			if strings.HasPrefix(c.Path.ID(), "view_pA_") {
				viewA = c.Path
			}
			if strings.HasPrefix(c.Path.ID(), "view_pB_") {
				createBIdx = i
			}
		case "update":
			updates++
			updateIdx = i
			if c.Path != viewA {
				t.Fatalf("duration written to %s, want %s", c.Path, viewA)
			}
			if got := c.Data["duration_ms"]; got != int64(2500) {
				t.Fatalf("duration_ms: want=2500 got=%v", got)
			}
		}
	}
	if updates != 1 || creates != 2 {
		t.Fatalf("viewing event writes: want 1 update 2 creates got %d/%d", updates, creates)
	}
	if updateIdx > createBIdx {
		t.Fatalf("close of A issued after open of B")
	}
	if pid, ok := f.svc.CurrentPieceView(); !ok || pid != "pB" {
		t.Fatalf("current view: want pB got=%q", pid)
	}

	inter := f.doc(t, docstore.UserPieceInteraction("g1", "u1", "pA"))
	if got := docstore.Int64(inter, "view_count"); got != 1 {
		t.Fatalf("view_count: want=1 got=%d", got)
	}
	if got := docstore.Int64(inter, "total_duration_ms"); got != 2500 {
		t.Fatalf("total_duration_ms: want=2500 got=%d", got)
	}
	stats := f.doc(t, docstore.PieceStats("pA"))
	if got := docstore.Int64(stats, "totalViews"); got != 1 {
		t.Fatalf("totalViews: want=1 got=%d", got)
	}
}

func TestPieceStatsUniqueViewers(t *testing.T) {
	f := newAnalyticsFixture()
	ctx := context.Background()
	other := &domain.GalleryUser{UserID: "u2"}
	_ = f.svc.RecordPieceView(ctx, testUser, "g1", "c1", "pA", "s1")
	_ = f.svc.RecordPieceView(ctx, testUser, "g1", "c1", "pA", "s1")
	_ = f.svc.RecordPieceView(ctx, other, "g1", "c1", "pA", "s2")

	stats := f.doc(t, docstore.PieceStats("pA"))
	if got := docstore.Int64(stats, "totalViews"); got != 3 {
		t.Fatalf("totalViews: want=3 got=%d", got)
	}
	viewers, err := docstore.StringList(stats["uniqueViewers"])
	if err != nil || len(viewers) != 2 {
		t.Fatalf("uniqueViewers: want 2 got=%v err=%v", viewers, err)
	}
}

func TestSessionLifecycle(t *testing.T) {
	f := newAnalyticsFixture()
	ctx := context.Background()
	path := docstore.UserSession("g1", "s1")

	if err := f.svc.StartSession(ctx, testUser, "g1", "s1", nil); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	ticker := <-f.tickers
	d := f.doc(t, path)
	if d["endTime"] != nil || d["deviceType"] != "desktop" || d["accessCode"] != "ABC123" {
		t.Fatalf("session doc: %v", d)
	}

	f.clock.Advance(30 * time.Second)
	f.svc.RecordActivity()
	activity := domain.FormatTime(f.clock.Now())
	f.clock.Advance(30 * time.Second)
	ticker.ch <- f.clock.Now()
	// a second tick can only be received after the first heartbeat finished
	ticker.ch <- f.clock.Now()

	d = f.doc(t, path)
	if got := docstore.Int64(d, "durationSeconds"); got != 60 {
		t.Fatalf("heartbeat durationSeconds: want=60 got=%d", got)
	}
	if got := d["lastActivity"]; got != activity {
		t.Fatalf("heartbeat lastActivity: want=%v got=%v", activity, got)
	}

	_ = f.svc.RecordPieceView(ctx, testUser, "g1", "c1", "pA", "s1")
	f.clock.Advance(15 * time.Second)
	if err := f.svc.EndSession(ctx, testUser, "g1", "s1"); err != nil {
		t.Fatalf("EndSession: %v", err)
	}
	if !ticker.isStopped() {
		t.Fatalf("heartbeat ticker not stopped")
	}
	if f.svc.Active() {
		t.Fatalf("session still active")
	}
	if _, ok := f.svc.CurrentPieceView(); ok {
		t.Fatalf("open view survived EndSession")
	}
	d = f.doc(t, path)
	if d["endTime"] == nil || docstore.Int64(d, "durationSeconds") != 75 {
		t.Fatalf("final session doc: %v", d)
	}

	before := len(f.store.Calls())
	if err := f.svc.EndSession(ctx, testUser, "g1", "s1"); err != nil {
		t.Fatalf("second EndSession: %v", err)
	}
	if len(f.store.Calls()) != before {
		t.Fatalf("second EndSession wrote to the store")
	}
}

func TestStartSessionStopsPriorHeartbeat(t *testing.T) {
	f := newAnalyticsFixture()
	ctx := context.Background()
	_ = f.svc.StartSession(ctx, testUser, "g1", "s1", nil)
	first := <-f.tickers
	_ = f.svc.StartSession(ctx, testUser, "g1", "s2", &domain.DeviceInfo{DeviceType: "tablet"})
	second := <-f.tickers

	if !first.isStopped() {
		t.Fatalf("prior heartbeat still running")
	}
	if second.isStopped() {
		t.Fatalf("new heartbeat stopped")
	}
	if got := f.doc(t, docstore.UserSession("g1", "s2"))["deviceType"]; got != "tablet" {
		t.Fatalf("device override: got=%v", got)
	}
	_ = f.svc.EndSession(ctx, testUser, "g1", "s2")
}

// gatedStore holds every Set until release is closed.
type gatedStore struct {
	*recordingStore
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStore) Set(ctx context.Context, path docstore.Path, data docstore.Data) error {
	g.entered <- struct{}{}
	<-g.release
	return g.recordingStore.Set(ctx, path, data)
}

func TestOverlappingStartSessionsLeaveOneHeartbeat(t *testing.T) {
	var gate *gatedStore
	f := newAnalyticsFixtureOver(func(s *recordingStore) docstore.Store {
		gate = &gatedStore{recordingStore: s, entered: make(chan struct{}, 2), release: make(chan struct{})}
		return gate
	})
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, id := range []string{"s1", "s2"} {
		id := id
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = f.svc.StartSession(ctx, testUser, "g1", id, nil)
		}()
	}
	<-gate.entered
	close(gate.release)
	wg.Wait()
	first, second := <-f.tickers, <-f.tickers

	if err := f.svc.EndSession(ctx, testUser, "", ""); err != nil {
		t.Fatalf("EndSession: %v", err)
	}
	if !first.isStopped() || !second.isStopped() {
		t.Fatalf("heartbeat outlived the session: first=%v second=%v", first.isStopped(), second.isStopped())
	}
	if f.svc.Active() {
		t.Fatalf("session still active")
	}
}

func TestEndedSessionIsNeverReopened(t *testing.T) {
	f := newAnalyticsFixture()
	ctx := context.Background()
	path := docstore.UserSession("g1", "s1")

	_ = f.svc.StartSession(ctx, testUser, "g1", "s1", nil)
	<-f.tickers
	f.clock.Advance(time.Minute)
	if err := f.svc.EndSession(ctx, testUser, "g1", "s1"); err != nil {
		t.Fatalf("EndSession: %v", err)
	}
	ended := f.doc(t, path)

	f.clock.Advance(time.Minute)
	if err := f.svc.StartSession(ctx, testUser, "g1", "s1", nil); !errors.Is(err, ErrSessionEnded) {
		t.Fatalf("restart of ended session: want ErrSessionEnded got=%v", err)
	}
	if f.svc.Active() {
		t.Fatalf("ended session became active")
	}
	select {
	case <-f.tickers:
		t.Fatalf("heartbeat started for an ended session")
	default:
	}
	d := f.doc(t, path)
	if d["endTime"] == nil || d["endTime"] != ended["endTime"] {
		t.Fatalf("endTime: want=%v got=%v", ended["endTime"], d["endTime"])
	}
	if got := docstore.Int64(d, "durationSeconds"); got != 60 {
		t.Fatalf("durationSeconds: want=60 got=%d", got)
	}
	if got := f.store.count("set", path); got != 1 {
		t.Fatalf("session document replaced: sets=%d", got)
	}
}

func TestStartSessionResumesLiveSession(t *testing.T) {
	f := newAnalyticsFixture()
	ctx := context.Background()
	path := docstore.UserSession("g1", "s1")

	_ = f.svc.StartSession(ctx, testUser, "g1", "s1", nil)
	<-f.tickers
	started := f.doc(t, path)["startTime"]

	// a restarted agent: same store, fresh in-memory state
	g := newAnalyticsFixtureOver(func(*recordingStore) docstore.Store { return f.store })
	g.clock.Advance(90 * time.Second)
	if err := g.svc.StartSession(ctx, testUser, "g1", "s1", nil); err != nil {
		t.Fatalf("resume: %v", err)
	}
	ticker := <-g.tickers

	d := f.doc(t, path)
	if d["startTime"] != started || d["endTime"] != nil {
		t.Fatalf("resumed session doc: %v", d)
	}
	if got := d["lastActivity"]; got != domain.FormatTime(g.clock.Now()) {
		t.Fatalf("lastActivity: got=%v", got)
	}
	if got := f.store.count("set", path); got != 1 {
		t.Fatalf("session document replaced: sets=%d", got)
	}

	ticker.ch <- g.clock.Now()
	ticker.ch <- g.clock.Now()
	if got := docstore.Int64(f.doc(t, path), "durationSeconds"); got != 90 {
		t.Fatalf("durationSeconds counts from the original start: want=90 got=%d", got)
	}
	_ = g.svc.EndSession(ctx, testUser, "g1", "s1")
	_ = f.svc.EndSession(ctx, testUser, "g1", "s1")
}

func TestStartSessionClosesOpenView(t *testing.T) {
	f := newAnalyticsFixture()
	ctx := context.Background()
	interaction := docstore.UserPieceInteraction("g1", "u1", "pA")

	_ = f.svc.StartSession(ctx, testUser, "g1", "s1", nil)
	<-f.tickers
	_ = f.svc.RecordPieceView(ctx, testUser, "g1", "c1", "pA", "s1")
	f.clock.Advance(4 * time.Second)

	_ = f.svc.StartSession(ctx, testUser, "g1", "s2", nil)
	<-f.tickers
	if pid, ok := f.svc.CurrentPieceView(); ok {
		t.Fatalf("view %q survived the session change", pid)
	}
	if got := docstore.Int64(f.doc(t, interaction), "total_duration_ms"); got != 4000 {
		t.Fatalf("total_duration_ms: want=4000 got=%d", got)
	}

	f.clock.Advance(time.Hour)
	_ = f.svc.RecordPieceView(ctx, testUser, "g1", "c1", "pB", "s2")
	if got := docstore.Int64(f.doc(t, interaction), "total_duration_ms"); got != 4000 {
		t.Fatalf("idle time charged to the old view: got=%d", got)
	}
	_ = f.svc.EndSession(ctx, testUser, "g1", "s2")
}

func TestHeartbeatFailureIsSwallowed(t *testing.T) {
	f := newAnalyticsFixture()
	ctx := context.Background()
	_ = f.svc.StartSession(ctx, testUser, "g1", "s1", nil)
	ticker := <-f.tickers
	f.store.failOn("merge "+string(docstore.UserSession("g1", "s1")), errStoreDown)

	ticker.ch <- f.clock.Now()
	ticker.ch <- f.clock.Now()
	if !f.svc.Active() {
		t.Fatalf("heartbeat failure ended the session")
	}
	if err := f.svc.EndSession(ctx, testUser, "g1", "s1"); err == nil {
		t.Fatalf("want final write error to be returned")
	}
	if f.svc.Active() {
		t.Fatalf("session must end even when the final write fails")
	}
}

func TestInteractionCounters(t *testing.T) {
	f := newAnalyticsFixture()
	ctx := context.Background()
	for _, et := range []domain.EventType{domain.EventZoomIn, domain.EventZoomOut, domain.EventReadDescription} {
		if err := f.svc.RecordInteractionEvent(ctx, testUser, "g1", "c1", "pA", "s1", et); err != nil {
			t.Fatalf("RecordInteractionEvent %s: %v", et, err)
		}
	}
	inter := f.doc(t, docstore.UserPieceInteraction("g1", "u1", "pA"))
	if got := docstore.Int64(inter, "zoom_count"); got != 2 {
		t.Fatalf("zoom_count: want=2 got=%d", got)
	}
	if got := docstore.Int64(inter, "description_views"); got != 1 {
		t.Fatalf("description_views: want=1 got=%d", got)
	}
	if err := f.svc.RecordInteractionEvent(ctx, testUser, "g1", "c1", "pA", "s1", "spin"); err == nil {
		t.Fatalf("want error for unknown event type")
	}
}

func TestToggleFavoriteWritesRecordAndCache(t *testing.T) {
	f := newAnalyticsFixture()
	ctx := context.Background()

	if err := f.svc.RecordInteractionEvent(ctx, testUser, "g1", "c1", "pA", "s1", domain.EventFavorite); err != nil {
		t.Fatalf("favorite: %v", err)
	}
	fav := f.doc(t, docstore.FavoritePiece("u1", "pA"))
	if fav["isOn"] != true || fav["pieceId"] != "pA" || fav["userId"] != "u1" {
		t.Fatalf("favorite record: %v", fav)
	}
	inter := f.doc(t, docstore.UserPieceInteraction("g1", "u1", "pA"))
	if inter["favorite"] != true {
		t.Fatalf("interaction favorite: %v", inter)
	}
	if !f.cache.writes["u1/pA"] {
		t.Fatalf("cache hook not called")
	}

	if err := f.svc.ToggleFavorite(ctx, testUser, "g1", "c1", "pA", "s1", false); err != nil {
		t.Fatalf("unfavorite: %v", err)
	}
	if f.doc(t, docstore.FavoritePiece("u1", "pA"))["isOn"] != false {
		t.Fatalf("favorite not switched off")
	}
	events := 0
	for _, c := range f.store.Calls() {
		if c.Op == "set" && strings.HasPrefix(string(c.Path), "viewing_events/") {
			events++
		}
	}
	if events != 2 {
		t.Fatalf("favorite events: want=2 got=%d", events)
	}
}

func TestToggleFavoriteFailureSkipsCache(t *testing.T) {
	f := newAnalyticsFixture()
	f.store.failOn("set favorites/", errStoreDown)
	if err := f.svc.ToggleFavorite(context.Background(), testUser, "g1", "c1", "pA", "s1", true); err == nil {
		t.Fatalf("want error")
	}
	if _, ok := f.cache.writes["u1/pA"]; ok {
		t.Fatalf("cache updated after failed write")
	}
}

func TestIDFormats(t *testing.T) {
	at := time.UnixMilli(1700000000123)
	id := NewEventID(domain.EventView, "p1", "u1", at)
	parts := strings.Split(id, "_")
	if len(parts) != 5 || parts[0] != "view" || parts[3] != "1700000000123" || len(parts[4]) != 8 {
		t.Fatalf("event id: %q", id)
	}
	sid := NewSessionID("u1", at)
	if parts := strings.Split(sid, "_"); len(parts) != 3 || parts[0] != "u1" || len(parts[2]) != 8 {
		t.Fatalf("session id: %q", sid)
	}
}

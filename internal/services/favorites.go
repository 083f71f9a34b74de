package services

import (
	"context"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/gallery-client/internal/docstore"
	"github.com/yungbote/gallery-client/internal/domain"
	"github.com/yungbote/gallery-client/internal/platform/logger"
)

// FavoriteCache is the optimistic write hook used after a successful toggle.
type FavoriteCache interface {
	UpdateCache(userID, pieceID string, isOn bool)
}

type FavoritesService interface {
	FavoriteCache
	IsFavorited(ctx context.Context, userID, pieceID string) bool
	// SubscribeToFavoriteStatus registers onChange for (userID, pieceID). The
	// returned func removes only this callback and is safe to call twice.
	SubscribeToFavoriteStatus(userID, pieceID string, onChange func(isOn bool)) (unsubscribe func())
	GetFavoritesForPieces(ctx context.Context, userID string, pieceIDs []string) map[string]bool
	GetAllFavorites(ctx context.Context, userID string) []string
	ClearCache(userID, pieceID string)
	ClearAllCache()
	ActiveSubscriptions() int
	Dispose()
}

type favoriteKey struct {
	userID  string
	pieceID string
}

// favoriteEntry is one shared remote subscription and the callbacks it feeds.
// The entry outlives a failed subscription so its callbacks keep receiving
// pushes once the next subscriber reopens it.
type favoriteEntry struct {
	callbacks map[uint64]func(bool)
	sub       docstore.Subscription
	// gen identifies the current open attempt; bumped whenever sub is retired.
	gen     uint64
	opening bool
}

func (e *favoriteEntry) snapshot() []func(bool) {
	out := make([]func(bool), 0, len(e.callbacks))
	for _, cb := range e.callbacks {
		out = append(out, cb)
	}
	return out
}

// retire drops the current subscription and invalidates any open in flight.
func (e *favoriteEntry) retire() docstore.Subscription {
	dead := e.sub
	e.sub = nil
	e.opening = false
	e.gen++
	return dead
}

type favoritesService struct {
	log   *logger.Logger
	store docstore.Store

	// ctx scopes the remote subscriptions; cancelled by Dispose.
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	cache    map[favoriteKey]bool
	entries  map[favoriteKey]*favoriteEntry
	nextID   uint64
	disposed bool
}

func NewFavoritesService(store docstore.Store, baseLog *logger.Logger) FavoritesService {
	if baseLog == nil {
		baseLog = logger.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &favoritesService{
		log:     baseLog.With("service", "FavoritesService"),
		store:   store,
		ctx:     ctx,
		cancel:  cancel,
		cache:   map[favoriteKey]bool{},
		entries: map[favoriteKey]*favoriteEntry{},
	}
}

func (s *favoritesService) cached(key favoriteKey) (bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.cache[key]
	return v, ok
}

// IsFavorited answers from cache when it can. A failed read reports false and
// leaves the cache untouched.
func (s *favoritesService) IsFavorited(ctx context.Context, userID, pieceID string) bool {
	key := favoriteKey{userID: userID, pieceID: pieceID}
	if v, ok := s.cached(key); ok {
		return v
	}
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(pieceID) == "" {
		return false
	}

	ctx, span := tracer.Start(ctx, "FavoritesService.IsFavorited")
	defer span.End()
	span.SetAttributes(attribute.String("piece.id", pieceID))

	doc, err := s.store.Get(ctx, docstore.FavoritePiece(userID, pieceID))
	if err != nil {
		span.RecordError(err)
		s.log.Warn("favorite read failed", "op", "is_favorited", "user_id", userID, "piece_id", pieceID, "error", err)
		return false
	}
	on := domain.FavoriteIsOn(doc)
	s.mu.Lock()
	s.cache[key] = on
	s.mu.Unlock()
	return on
}

func (s *favoritesService) SubscribeToFavoriteStatus(userID, pieceID string, onChange func(bool)) func() {
	if onChange == nil {
		return func() {}
	}
	key := favoriteKey{userID: userID, pieceID: pieceID}

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return func() {}
	}
	s.nextID++
	id := s.nextID
	entry := s.entries[key]
	if entry == nil {
		entry = &favoriteEntry{callbacks: map[uint64]func(bool){}}
		s.entries[key] = entry
	}
	entry.callbacks[id] = onChange
	if entry.sub != nil || entry.opening {
		cached, known := s.cache[key]
		s.mu.Unlock()
		if known {
			onChange(cached)
		}
		return s.unsubscriber(key, entry, id)
	}
	// new key, or the previous subscription died: (re)open for every callback
	entry.gen++
	entry.opening = true
	gen := entry.gen
	s.mu.Unlock()

	s.open(key, entry, gen)
	return s.unsubscriber(key, entry, id)
}

// open subscribes outside the lock: stores may push the initial snapshot
// before Subscribe returns.
func (s *favoritesService) open(key favoriteKey, entry *favoriteEntry, gen uint64) {
	sub, err := s.store.Subscribe(s.ctx, docstore.FavoritePiece(key.userID, key.pieceID), func(doc *docstore.Document, err error) {
		s.push(key, entry, gen, doc, err)
	})
	if err != nil {
		s.log.Warn("favorite subscription failed", "user_id", key.userID, "piece_id", key.pieceID, "error", err)
		s.mu.Lock()
		if entry.gen == gen {
			entry.retire()
		}
		cbs := entry.snapshot()
		s.mu.Unlock()
		for _, cb := range cbs {
			cb(false)
		}
		return
	}

	s.mu.Lock()
	if entry.gen != gen || s.entries[key] != entry {
		// released, cleared or failed while opening
		s.mu.Unlock()
		_ = sub.Close()
		return
	}
	entry.sub = sub
	entry.opening = false
	s.mu.Unlock()
	s.log.Debug("favorite subscription opened", "user_id", key.userID, "piece_id", key.pieceID)
}

// push fans one remote update out to the callbacks registered at push time.
// An error notifies false without touching the cache and retires the
// subscription; the callbacks stay registered and the next subscriber for the
// key reopens it.
func (s *favoritesService) push(key favoriteKey, entry *favoriteEntry, gen uint64, doc *docstore.Document, err error) {
	s.mu.Lock()
	if err != nil {
		var dead docstore.Subscription
		if entry.gen == gen {
			dead = entry.retire()
		}
		cbs := entry.snapshot()
		s.mu.Unlock()
		s.log.Warn("favorite subscription error", "user_id", key.userID, "piece_id", key.pieceID, "error", err)
		if dead != nil {
			_ = dead.Close()
		}
		for _, cb := range cbs {
			cb(false)
		}
		return
	}
	on := domain.FavoriteIsOn(doc)
	s.cache[key] = on
	cbs := entry.snapshot()
	s.mu.Unlock()
	for _, cb := range cbs {
		cb(on)
	}
}

func (s *favoritesService) unsubscriber(key favoriteKey, entry *favoriteEntry, id uint64) func() {
	return func() {
		s.mu.Lock()
		if _, ok := entry.callbacks[id]; !ok {
			s.mu.Unlock()
			return
		}
		delete(entry.callbacks, id)
		var closing docstore.Subscription
		if len(entry.callbacks) == 0 && s.entries[key] == entry {
			delete(s.entries, key)
			closing = entry.retire()
		}
		s.mu.Unlock()
		if closing != nil {
			if err := closing.Close(); err != nil {
				s.log.Warn("favorite subscription close failed", "piece_id", key.pieceID, "error", err)
			}
			s.log.Debug("favorite subscription closed", "user_id", key.userID, "piece_id", key.pieceID)
		}
	}
}

func (s *favoritesService) UpdateCache(userID, pieceID string, isOn bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[favoriteKey{userID: userID, pieceID: pieceID}] = isOn
}

// GetFavoritesForPieces resolves cached ids directly and reads the rest concurrently.
func (s *favoritesService) GetFavoritesForPieces(ctx context.Context, userID string, pieceIDs []string) map[string]bool {
	out := make(map[string]bool, len(pieceIDs))
	missing := make([]string, 0)
	s.mu.Lock()
	for _, pid := range pieceIDs {
		if _, seen := out[pid]; seen {
			continue
		}
		if v, ok := s.cache[favoriteKey{userID: userID, pieceID: pid}]; ok {
			out[pid] = v
			continue
		}
		out[pid] = false
		missing = append(missing, pid)
	}
	s.mu.Unlock()
	if len(missing) == 0 {
		return out
	}

	results := make([]bool, len(missing))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, pid := range missing {
		i, pid := i, pid
		g.Go(func() error {
			results[i] = s.IsFavorited(gctx, userID, pid)
			return nil
		})
	}
	_ = g.Wait()
	for i, pid := range missing {
		out[pid] = results[i]
	}
	return out
}

// GetAllFavorites lists the piece ids the user has switched on. Failures yield an empty list.
func (s *favoritesService) GetAllFavorites(ctx context.Context, userID string) []string {
	if strings.TrimSpace(userID) == "" {
		return []string{}
	}
	ctx, span := tracer.Start(ctx, "FavoritesService.GetAllFavorites")
	defer span.End()

	docs, err := s.store.Query(ctx, docstore.FavoritePieces(userID), docstore.Where("isOn", docstore.OpEqual, true))
	if err != nil {
		span.RecordError(err)
		s.log.Warn("favorite list failed", "op", "get_all_favorites", "user_id", userID, "error", err)
		return []string{}
	}
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.ID)
	}
	span.SetAttributes(attribute.Int("favorites.count", len(out)))
	return out
}

func (s *favoritesService) ClearCache(userID, pieceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cache, favoriteKey{userID: userID, pieceID: pieceID})
}

// ClearAllCache drops every cached value and closes every live subscription.
// Outstanding unsubscribe funcs become no-ops.
func (s *favoritesService) ClearAllCache() {
	s.mu.Lock()
	subs := make([]docstore.Subscription, 0, len(s.entries))
	for key, entry := range s.entries {
		if dead := entry.retire(); dead != nil {
			subs = append(subs, dead)
		}
		entry.callbacks = map[uint64]func(bool){}
		delete(s.entries, key)
	}
	s.cache = map[favoriteKey]bool{}
	s.mu.Unlock()
	for _, sub := range subs {
		_ = sub.Close()
	}
}

// ActiveSubscriptions counts keys with a live or opening remote subscription.
func (s *favoritesService) ActiveSubscriptions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, entry := range s.entries {
		if entry.sub != nil || entry.opening {
			n++
		}
	}
	return n
}

func (s *favoritesService) Dispose() {
	s.mu.Lock()
	s.disposed = true
	s.mu.Unlock()
	s.ClearAllCache()
	s.cancel()
}

package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/gallery-client/internal/platform/logger"
)

// Redis publishes document changes on "<prefix><path>" channels and forwards
// every change seen on the pattern "<prefix>*" to local subscribers, so writers
// in other processes reach this process's listeners.
type Redis struct {
	log    *logger.Logger
	rdb    *goredis.Client
	prefix string
	local  *Local
	cancel context.CancelFunc
	done   chan struct{}
}

var _ Notifier = (*Redis)(nil)

type RedisConfig struct {
	Addr          string
	Password      string
	DB            int
	ChannelPrefix string
}

func NewRedis(ctx context.Context, log *logger.Logger, cfg RedisConfig) (*Redis, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	prefix := cfg.ChannelPrefix
	if prefix == "" {
		prefix = "docstore:"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancelPing := context.WithTimeout(ctx, 5*time.Second)
	defer cancelPing()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	n := &Redis{
		log:    log.With("service", "RedisNotifier"),
		rdb:    rdb,
		prefix: prefix,
		local:  NewLocal(),
		done:   make(chan struct{}),
	}
	if err := n.startForwarder(ctx); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return n, nil
}

func (n *Redis) Publish(ctx context.Context, path string) error {
	if n == nil || n.rdb == nil {
		return fmt.Errorf("redis notifier not initialized")
	}
	return n.rdb.Publish(ctx, n.prefix+path, "").Err()
}

func (n *Redis) Subscribe(path string, fn func()) func() {
	return n.local.Subscribe(path, fn)
}

func (n *Redis) startForwarder(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	n.cancel = cancel

	sub := n.rdb.PSubscribe(ctx, n.prefix+"*")
	// ensures subscription actually started
	if _, err := sub.Receive(ctx); err != nil {
		cancel()
		_ = sub.Close()
		return fmt.Errorf("redis psubscribe: %w", err)
	}

	go func() {
		defer close(n.done)
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					_ = sub.Close()
					return
				}
				path := strings.TrimPrefix(m.Channel, n.prefix)
				if path == "" {
					n.log.Warn("redis change notification without path", "channel", m.Channel)
					continue
				}
				n.local.Dispatch(path)
			}
		}
	}()
	return nil
}

func (n *Redis) Close() error {
	if n == nil || n.rdb == nil {
		return nil
	}
	if n.cancel != nil {
		n.cancel()
		<-n.done
		n.cancel = nil
	}
	_ = n.local.Close()
	return n.rdb.Close()
}

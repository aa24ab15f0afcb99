package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisOpts configures a Redis broadcaster.
type RedisOpts struct {
	Client    *redis.Client // required
	Prefix    string        // channel prefix, e.g. "gigroom:"
	PingEvery time.Duration // idle interval before a health ping; 0 means 30s
	Logger    *slog.Logger  // nil means slog.Default()
}

// Redis is a Broadcaster backed by redis pub/sub so several server
// instances share realtime groups. Each instance publishes to
// {prefix}{group} and fans inbound messages out to its own local Hub.
type Redis struct {
	client    *redis.Client
	prefix    string
	pingEvery time.Duration
	hub       *Hub
	log       *slog.Logger
	healthy   atomic.Bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRedis starts the subscription loop and returns immediately. The
// broadcaster reports itself unavailable until the first subscription is
// confirmed.
func NewRedis(opts RedisOpts) *Redis {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pingEvery := opts.PingEvery
	if pingEvery <= 0 {
		pingEvery = defaultPingEvery
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &Redis{
		client:    opts.Client,
		prefix:    opts.Prefix,
		pingEvery: pingEvery,
		hub:       NewHub(logger),
		log:       logger,
		cancel:    cancel,
	}
	r.wg.Add(1)
	go r.subscribe(ctx)
	return r
}

// Join registers s locally. It returns ErrUnavailable while the redis
// subscription is down; s is registered regardless and starts receiving
// once the subscription recovers.
func (r *Redis) Join(group string, s Subscriber) error {
	_ = r.hub.Join(group, s)
	if !r.healthy.Load() {
		return ErrUnavailable
	}
	return nil
}

// Leave unregisters s locally.
func (r *Redis) Leave(group string, s Subscriber) {
	r.hub.Leave(group, s)
}

// Send publishes env. Local subscribers receive it through the
// subscription like every other instance. A failed publish marks the
// broadcaster unavailable until the subscription next hears from redis.
func (r *Redis) Send(ctx context.Context, group string, env Envelope) bool {
	data, err := json.Marshal(env)
	if err != nil {
		r.log.Warn("broadcast: encode envelope", "group", group, "error", err)
		return false
	}
	if err := r.client.Publish(ctx, r.prefix+group, data).Err(); err != nil {
		r.log.Warn("broadcast: redis publish failed", "group", group, "error", err)
		r.healthy.Store(false)
		return false
	}
	return true
}

// Healthy reports whether the subscription is currently established.
func (r *Redis) Healthy() bool {
	return r.healthy.Load()
}

// Close stops the subscription loop and closes the client.
func (r *Redis) Close() error {
	r.cancel()
	r.wg.Wait()
	return r.client.Close()
}

const (
	minBackoff       = 500 * time.Millisecond
	maxBackoff       = 30 * time.Second
	defaultPingEvery = 30 * time.Second
)

func (r *Redis) subscribe(ctx context.Context) {
	defer r.wg.Done()
	backoff := minBackoff
	for ctx.Err() == nil {
		ps := r.client.PSubscribe(ctx, r.prefix+"*")
		if _, err := ps.Receive(ctx); err != nil {
			ps.Close()
			r.healthy.Store(false)
			if ctx.Err() != nil {
				return
			}
			r.log.Warn("broadcast: redis subscribe failed", "error", err, "retry_in", backoff)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}

		r.healthy.Store(true)
		backoff = minBackoff
		r.log.Info("broadcast: redis subscription established", "pattern", r.prefix+"*")

		stop := context.AfterFunc(ctx, func() { ps.Close() })
		err := r.pump(ctx, ps)
		stop()
		ps.Close()
		r.healthy.Store(false)
		if ctx.Err() == nil {
			r.log.Warn("broadcast: redis subscription lost", "error", err)
		}
	}
}

// pump forwards inbound messages to the local hub until the subscription
// fails. An idle subscription is pinged every pingEvery; a ping left
// unanswered for another interval counts as a failure.
func (r *Redis) pump(ctx context.Context, ps *redis.PubSub) error {
	pinged := false
	for {
		msg, err := ps.ReceiveTimeout(ctx, r.pingEvery)
		if err != nil {
			if !isTimeout(err) {
				return err
			}
			if pinged {
				return fmt.Errorf("broadcast: redis ping unanswered after %s", r.pingEvery)
			}
			if err := ps.Ping(ctx); err != nil {
				return err
			}
			pinged = true
			continue
		}
		pinged = false
		r.healthy.Store(true)

		m, ok := msg.(*redis.Message)
		if !ok {
			continue
		}
		var env Envelope
		if err := json.Unmarshal([]byte(m.Payload), &env); err != nil {
			r.log.Warn("broadcast: decode envelope", "channel", m.Channel, "error", err)
			continue
		}
		r.hub.Send(ctx, strings.TrimPrefix(m.Channel, r.prefix), env)
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

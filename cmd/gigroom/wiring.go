package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gigroom/gigroom/internal/broadcast"
	"github.com/gigroom/gigroom/internal/config"
	"github.com/gigroom/gigroom/internal/notify"
	"github.com/gigroom/gigroom/internal/relay"
	discordadapter "github.com/gigroom/gigroom/internal/relay/discord"
	slackadapter "github.com/gigroom/gigroom/internal/relay/slack"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// newBroadcaster builds the configured realtime medium. The returned func
// releases its resources.
func newBroadcaster(cfg config.BroadcastConfig, logger *slog.Logger) (broadcast.Broadcaster, func()) {
	switch cfg.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		r := broadcast.NewRedis(broadcast.RedisOpts{Client: client, Prefix: cfg.Redis.Prefix, Logger: logger})
		return r, func() { r.Close() }
	case "none":
		return broadcast.Nop{}, func() {}
	default:
		return broadcast.NewHub(logger), func() {}
	}
}

// startRelay connects the configured ops relay. It returns nil when no
// platform is configured.
func startRelay(ctx context.Context, cfg config.RelayConfig, logger *slog.Logger) (*relay.Relay, error) {
	var adapter relay.Adapter
	var err error
	switch cfg.Platform {
	case "":
		return nil, nil
	case "slack":
		adapter, err = slackadapter.New(slackadapter.AdapterOpts{BotToken: cfg.BotToken, ChannelID: cfg.ChannelID})
	case "discord":
		adapter, err = discordadapter.New(discordadapter.AdapterOpts{BotToken: cfg.BotToken, ChannelID: cfg.ChannelID, Logger: logger})
	default:
		return nil, fmt.Errorf("unsupported relay platform %q", cfg.Platform)
	}
	if err != nil {
		return nil, err
	}

	r, err := relay.New(relay.Opts{Adapter: adapter, ChannelID: cfg.ChannelID, Types: cfg.Types, AppURL: cfg.AppURL, Logger: logger})
	if err != nil {
		return nil, err
	}
	if err := r.Start(ctx); err != nil {
		return nil, fmt.Errorf("start %s relay: %w", cfg.Platform, err)
	}
	return r, nil
}

// newNotifier builds the notification service, mirroring to rl when set.
func newNotifier(gormDB *gorm.DB, bc broadcast.Broadcaster, rl *relay.Relay, logger *slog.Logger) (*notify.Service, error) {
	opts := notify.Opts{DB: gormDB, Broadcaster: bc, Logger: logger}
	if rl != nil {
		opts.Relay = rl
	}
	return notify.New(opts)
}

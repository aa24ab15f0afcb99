package relay

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gigroom/gigroom/internal/models"
)

// DefaultTypes are the notification types mirrored when none are configured.
var DefaultTypes = []string{
	string(models.NotifyNewBid),
	string(models.NotifyBidAccepted),
	string(models.NotifyBidCountered),
	string(models.NotifyBookingRequest),
	string(models.NotifyBookingConfirmed),
}

const (
	queueSize   = 256
	sendTimeout = 30 * time.Second
)

// Opts holds parameters for creating a Relay.
type Opts struct {
	Adapter   Adapter      // required
	ChannelID string       // operator channel
	AppURL    string       // base for deep links on cards; empty omits links
	Types     []string     // notification types to mirror; empty means DefaultTypes
	Logger    *slog.Logger // nil means slog.Default()
}

type item struct {
	n         models.Notification
	recipient string
}

// Relay queues notifications and posts them to the operator channel from a
// single worker goroutine. Mirror never blocks the caller.
type Relay struct {
	adapter   Adapter
	channelID string
	appURL    string
	types     map[models.NotificationType]bool
	log       *slog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan item
	wg     sync.WaitGroup
}

// New creates a Relay. Call Start to begin delivering.
func New(opts Opts) (*Relay, error) {
	if opts.Adapter == nil {
		return nil, fmt.Errorf("relay: adapter is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	types := opts.Types
	if len(types) == 0 {
		types = DefaultTypes
	}
	set := make(map[models.NotificationType]bool, len(types))
	for _, t := range types {
		set[models.NotificationType(t)] = true
	}
	return &Relay{
		adapter:   opts.Adapter,
		channelID: opts.ChannelID,
		appURL:    opts.AppURL,
		types:     set,
		log:       logger,
		queue:     make(chan item, queueSize),
	}, nil
}

// Start connects the adapter and launches the delivery worker.
func (r *Relay) Start(ctx context.Context) error {
	if err := r.adapter.Connect(ctx); err != nil {
		return fmt.Errorf("relay: connect: %w", err)
	}
	r.wg.Add(1)
	go r.run()
	return nil
}

// Wants reports whether notifications of type t are mirrored.
func (r *Relay) Wants(t models.NotificationType) bool {
	return r.types[t]
}

// Mirror enqueues n for the operator channel if its type is selected. A full
// queue drops the notification with a warning.
func (r *Relay) Mirror(n *models.Notification, recipient string) {
	if n == nil || !r.Wants(n.NotificationType) {
		return
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	select {
	case r.queue <- item{n: *n, recipient: recipient}:
	default:
		r.log.Warn("relay: queue full, dropping notification", "notification_id", n.ID, "type", n.NotificationType)
	}
}

// Close stops accepting work, drains the queue and closes the adapter.
func (r *Relay) Close() error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()
	r.wg.Wait()
	return r.adapter.Close()
}

func (r *Relay) run() {
	defer r.wg.Done()
	for it := range r.queue {
		card := NewCard(&it.n, it.recipient, r.appURL)
		msg := OutboundMessage{
			ChannelID: r.channelID,
			Text:      card.Title,
			Cards:     []Card{card},
		}
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		if err := r.adapter.Send(ctx, msg); err != nil {
			r.log.Warn("relay: send failed", "notification_id", it.n.ID, "error", err)
		}
		cancel()
	}
}

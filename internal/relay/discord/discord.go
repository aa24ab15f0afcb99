// Package discord posts relay cards to a Discord channel as embeds.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/gigroom/gigroom/internal/relay"
)

const (
	maxRetries  = 3
	baseBackoff = 2 * time.Second
	maxBackoff  = 2 * time.Minute
)

// session is the subset of *discordgo.Session the adapter calls.
type session interface {
	User(userID string, options ...discordgo.RequestOption) (*discordgo.User, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	Close() error
}

// Adapter implements relay.Adapter for Discord over the REST API.
type Adapter struct {
	sess        session
	botToken    string
	channelID   string
	log         *slog.Logger
	baseBackoff time.Duration
	maxBackoff  time.Duration

	mu        sync.Mutex
	botUserID string
	ready     bool
	closed    bool
}

// AdapterOpts configures a Discord Adapter.
type AdapterOpts struct {
	BotToken  string       // bot token without the "Bot " prefix
	ChannelID string       // operator channel used when a message names none
	Logger    *slog.Logger // nil means slog.Default()
	Session   session      // replaces the real API in tests
}

// New creates a Discord Adapter.
func New(opts AdapterOpts) (*Adapter, error) {
	if opts.Session == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("discord: bot token is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		sess:        opts.Session,
		botToken:    opts.BotToken,
		channelID:   opts.ChannelID,
		log:         logger,
		baseBackoff: baseBackoff,
		maxBackoff:  maxBackoff,
	}, nil
}

// Connect opens the REST session and checks the token by loading the bot user.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch {
	case a.closed:
		return fmt.Errorf("discord: adapter already closed")
	case a.ready:
		return nil
	}
	if a.sess == nil {
		dg, err := discordgo.New("Bot " + a.botToken)
		if err != nil {
			return fmt.Errorf("discord: create session: %w", err)
		}
		a.sess = dg
	}
	me, err := a.sess.User("@me")
	if err != nil {
		return fmt.Errorf("discord: verify token: %w", err)
	}
	a.botUserID = me.ID
	a.ready = true
	return nil
}

// Send posts msg with one embed per card.
func (a *Adapter) Send(ctx context.Context, msg relay.OutboundMessage) error {
	a.mu.Lock()
	ready := a.ready
	a.mu.Unlock()
	if !ready {
		return fmt.Errorf("discord: not connected")
	}

	channelID := msg.ChannelID
	if channelID == "" {
		channelID = a.channelID
	}
	if channelID == "" {
		return fmt.Errorf("discord: no channel specified")
	}
	if err := a.send(ctx, channelID, cardMessage(msg)); err != nil {
		return fmt.Errorf("discord: send message: %w", err)
	}
	return nil
}

// Close shuts down the session. It is safe to call twice.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	a.ready = false
	if a.sess != nil {
		return a.sess.Close()
	}
	return nil
}

// BotUserID returns the bot's user ID once connected.
func (a *Adapter) BotUserID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.botUserID
}

// send posts data, backing off exponentially on HTTP 429 up to maxRetries
// times.
func (a *Adapter) send(ctx context.Context, channelID string, data *discordgo.MessageSend) error {
	wait := a.baseBackoff
	for attempt := 0; ; attempt++ {
		_, err := a.sess.ChannelMessageSendComplex(channelID, data)
		if err == nil || !isRateLimited(err) || attempt == maxRetries {
			return err
		}
		a.log.Warn("discord: rate limited", "channel", channelID, "attempt", attempt+1, "retry_in", wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait = min(wait*2, a.maxBackoff)
	}
}

func isRateLimited(err error) bool {
	var rest *discordgo.RESTError
	return errors.As(err, &rest) && rest.Response != nil && rest.Response.StatusCode == http.StatusTooManyRequests
}

// cardMessage renders msg. Mentions are disabled so user-written titles
// cannot ping the channel.
func cardMessage(msg relay.OutboundMessage) *discordgo.MessageSend {
	data := &discordgo.MessageSend{
		Content:         msg.Text,
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	}
	for _, c := range msg.Cards {
		data.Embeds = append(data.Embeds, cardEmbed(c))
	}
	return data
}

// cardEmbed renders one card with its title linking into the app.
func cardEmbed(c relay.Card) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       c.Title,
		URL:         c.Link,
		Description: c.Body,
		Color:       embedColor(c.Color),
		Footer:      &discordgo.MessageEmbedFooter{Text: c.Footer()},
	}
	if !c.At.IsZero() {
		embed.Timestamp = c.At.UTC().Format(time.RFC3339)
	}
	for _, f := range c.Fields {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value, Inline: f.Short})
	}
	return embed
}

// embedColor parses a "#rrggbb" hint. Anything unparsable renders uncoloured.
func embedColor(hex string) int {
	v, err := strconv.ParseUint(strings.TrimPrefix(hex, "#"), 16, 32)
	if err != nil {
		return 0
	}
	return int(v)
}

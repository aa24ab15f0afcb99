// Package slack posts relay cards to a Slack channel through the Web API.
package slack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gigroom/gigroom/internal/relay"
	slackapi "github.com/slack-go/slack"
)

// maxRetries bounds how often a rate-limited post is retried.
const maxRetries = 3

// slackClient is the subset of the Slack API the adapter calls.
type slackClient interface {
	AuthTestContext(ctx context.Context) (*slackapi.AuthTestResponse, error)
	PostMessageContext(ctx context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error)
}

// Adapter implements relay.Adapter for Slack.
type Adapter struct {
	client    slackClient
	botToken  string
	channelID string
	backoff   time.Duration // first wait when Slack sends no Retry-After

	mu        sync.Mutex
	botUserID string
	ready     bool
	closed    bool
}

// AdapterOpts configures a Slack Adapter.
type AdapterOpts struct {
	BotToken  string // xoxb-... bot token
	ChannelID string // operator channel used when a message names none
	Client    slackClient
}

// New creates a Slack Adapter. Client replaces the real API in tests.
func New(opts AdapterOpts) (*Adapter, error) {
	if opts.Client == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("slack: bot token is required")
	}
	return &Adapter{
		client:    opts.Client,
		botToken:  opts.BotToken,
		channelID: opts.ChannelID,
		backoff:   time.Second,
	}, nil
}

// Connect builds the API client and checks the token with auth.test.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch {
	case a.closed:
		return fmt.Errorf("slack: adapter already closed")
	case a.ready:
		return nil
	}
	if a.client == nil {
		a.client = slackapi.New(a.botToken)
	}
	resp, err := a.client.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("slack: auth test: %w", err)
	}
	a.botUserID = resp.UserID
	a.ready = true
	return nil
}

// Send posts msg, one attachment per card.
func (a *Adapter) Send(ctx context.Context, msg relay.OutboundMessage) error {
	a.mu.Lock()
	ready := a.ready
	a.mu.Unlock()
	if !ready {
		return fmt.Errorf("slack: not connected")
	}

	channelID := msg.ChannelID
	if channelID == "" {
		channelID = a.channelID
	}
	if channelID == "" {
		return fmt.Errorf("slack: no channel specified")
	}
	if err := a.post(ctx, channelID, cardOptions(msg)); err != nil {
		return fmt.Errorf("slack: post message: %w", err)
	}
	return nil
}

// Close marks the adapter closed. The Web API holds no connection.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	a.ready = false
	return nil
}

// BotUserID returns the bot's user ID once connected.
func (a *Adapter) BotUserID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.botUserID
}

// post sends options to channelID, waiting out rate limits up to maxRetries
// times. Slack's Retry-After wins over the local backoff.
func (a *Adapter) post(ctx context.Context, channelID string, options []slackapi.MsgOption) error {
	for attempt := 0; ; attempt++ {
		_, _, err := a.client.PostMessageContext(ctx, channelID, options...)
		var limited *slackapi.RateLimitedError
		if err == nil || !errors.As(err, &limited) || attempt == maxRetries {
			return err
		}
		wait := limited.RetryAfter
		if wait <= 0 {
			wait = a.backoff << attempt
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// cardOptions renders msg. The text doubles as the notification fallback and
// unfurling is off so deep links stay on one line.
func cardOptions(msg relay.OutboundMessage) []slackapi.MsgOption {
	options := []slackapi.MsgOption{
		slackapi.MsgOptionText(msg.Text, false),
		slackapi.MsgOptionDisableLinkUnfurl(),
	}
	if len(msg.Cards) == 0 {
		return options
	}
	atts := make([]slackapi.Attachment, 0, len(msg.Cards))
	for _, c := range msg.Cards {
		atts = append(atts, cardAttachment(c))
	}
	return append(options, slackapi.MsgOptionAttachments(atts...))
}

// cardAttachment renders one card with its title linking into the app.
func cardAttachment(c relay.Card) slackapi.Attachment {
	att := slackapi.Attachment{
		Color:     c.Color,
		Title:     c.Title,
		TitleLink: c.Link,
		Text:      c.Body,
		Fallback:  c.Title,
		Footer:    c.Footer(),
	}
	if !c.At.IsZero() {
		att.Ts = json.Number(strconv.FormatInt(c.At.Unix(), 10))
	}
	for _, f := range c.Fields {
		att.Fields = append(att.Fields, slackapi.AttachmentField{Title: f.Name, Value: f.Value, Short: f.Short})
	}
	return att
}

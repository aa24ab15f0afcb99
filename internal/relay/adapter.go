// Package relay mirrors selected notifications to an operator chat channel
// (Slack or Discord) so humans can watch negotiations as they happen.
package relay

import (
	"context"
	"strings"
	"time"

	"github.com/gigroom/gigroom/internal/models"
)

// Adapter posts rendered notifications to one chat platform.
type Adapter interface {
	// Connect verifies credentials and prepares the client.
	Connect(ctx context.Context) error

	// Send posts msg to the platform.
	Send(ctx context.Context, msg OutboundMessage) error

	// Close releases the platform connection.
	Close() error
}

// OutboundMessage is one post to the operator channel.
type OutboundMessage struct {
	ChannelID string // empty uses the adapter default
	Text      string // plain fallback, usually the first card's title
	Cards     []Card
}

// Card is a notification rendered for an operator channel.
type Card struct {
	Kind     models.NotificationType
	Title    string    // e.g. "New bid from ana"
	Body     string    // notification message
	Link     string    // absolute URL of the in-app route; empty when unknown
	At       time.Time // notification creation time
	Severity string    // "info", "warning", "error", "success"
	Color    string    // "#rrggbb"
	Fields   []Field
}

// Field is a labelled value shown on a card.
type Field struct {
	Name  string
	Value string
	Short bool // render side-by-side with another field
}

// Footer names the product and the notification kind, e.g. "gigroom · new bid".
func (c Card) Footer() string {
	if c.Kind == "" {
		return "gigroom"
	}
	return "gigroom · " + strings.ReplaceAll(string(c.Kind), "_", " ")
}

// Package broadcast fans realtime events out to connected clients grouped
// by room or user. Delivery is best-effort: a failed send never undoes the
// write that produced it.
package broadcast

import (
	"context"
	"errors"
	"fmt"
)

// EventType names the kind of envelope pushed to clients.
type EventType string

const (
	EventMessage      EventType = "message"
	EventTyping       EventType = "typing"
	EventReadReceipt  EventType = "read_receipt"
	EventBid          EventType = "bid"
	EventNotification EventType = "notification"
	EventWarning      EventType = "warning"
)

// ErrUnavailable is returned by Join when the medium cannot currently
// deliver to the group.
var ErrUnavailable = errors.New("broadcast: medium unavailable")

// Envelope is the unit pushed to subscribers.
type Envelope struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload,omitempty"`
}

// Warning builds the synthetic envelope sent to a connection when realtime
// delivery is degraded or a client frame is rejected.
func Warning(msg string) Envelope {
	return Envelope{Type: EventWarning, Payload: map[string]string{"detail": msg}}
}

// Subscriber receives envelopes for the groups it joined. Deliver must not
// block; it returns false when the envelope was dropped.
type Subscriber interface {
	Deliver(Envelope) bool
}

// Broadcaster is the realtime medium.
type Broadcaster interface {
	// Join adds s to group. s may still be registered when an error is
	// returned; callers Leave unconditionally.
	Join(group string, s Subscriber) error
	// Leave removes s from group. It is a no-op if s is absent.
	Leave(group string, s Subscriber)
	// Send publishes env to group and reports whether the medium accepted it.
	Send(ctx context.Context, group string, env Envelope) bool
}

// RoomGroup is the group key for a chat room.
func RoomGroup(roomID uint) string {
	return fmt.Sprintf("chat_room_%d", roomID)
}

// UserGroup is the group key for a user's notification stream.
func UserGroup(userID uint) string {
	return fmt.Sprintf("notifications_%d", userID)
}

package broadcast

import "context"

// Nop is the Broadcaster used when no realtime medium is configured.
type Nop struct{}

func (Nop) Join(string, Subscriber) error { return ErrUnavailable }

func (Nop) Leave(string, Subscriber) {}

func (Nop) Send(context.Context, string, Envelope) bool { return false }

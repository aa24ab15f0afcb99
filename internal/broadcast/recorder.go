package broadcast

import (
	"context"
	"sync"
)

// Sent is one envelope captured by a Recorder.
type Sent struct {
	Group    string
	Envelope Envelope
}

// Recorder is a Broadcaster for tests. It captures every Send and can be
// switched into a failing mode to simulate an unavailable medium.
type Recorder struct {
	mu   sync.Mutex
	sent []Sent
	fail bool
}

// NewRecorder creates a Recorder that accepts every send.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// SetFail makes subsequent Join and Send calls fail.
func (r *Recorder) SetFail(fail bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail = fail
}

func (r *Recorder) Join(string, Subscriber) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return ErrUnavailable
	}
	return nil
}

func (r *Recorder) Leave(string, Subscriber) {}

func (r *Recorder) Send(_ context.Context, group string, env Envelope) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return false
	}
	r.sent = append(r.sent, Sent{Group: group, Envelope: env})
	return true
}

// Sent returns a copy of all captured envelopes.
func (r *Recorder) Sent() []Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Sent, len(r.sent))
	copy(out, r.sent)
	return out
}

// OfType returns captured envelopes with the given type.
func (r *Recorder) OfType(t EventType) []Sent {
	var out []Sent
	for _, s := range r.Sent() {
		if s.Envelope.Type == t {
			out = append(out, s)
		}
	}
	return out
}

// Reset discards captured envelopes.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = nil
}

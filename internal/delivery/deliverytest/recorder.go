// Package deliverytest provides an in-memory delivery.Notifier for tests.
package deliverytest

import (
	"context"
	"fmt"
	"sync"

	"github.com/Additional-Code/relay/internal/delivery"
)

// Retraction records a RetractAction call.
type Retraction struct {
	Recipient int64
	Ref       delivery.ActionRef
}

// Recorder keeps every notification it was asked to deliver. Recipients
// listed in Unreachable fail with delivery.ErrDelivery.
type Recorder struct {
	mu          sync.Mutex
	sent        []delivery.Notification
	retracted   []Retraction
	unreachable map[int64]bool
}

func NewRecorder() *Recorder {
	return &Recorder{unreachable: make(map[int64]bool)}
}

// Unreachable makes deliveries to recipient fail.
func (r *Recorder) Unreachable(recipient int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unreachable[recipient] = true
}

func (r *Recorder) Send(ctx context.Context, n delivery.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.unreachable[n.Recipient] {
		return fmt.Errorf("%w: recipient %d unreachable", delivery.ErrDelivery, n.Recipient)
	}
	r.sent = append(r.sent, n)
	return nil
}

func (r *Recorder) RetractAction(ctx context.Context, recipient int64, ref delivery.ActionRef) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.unreachable[recipient] {
		return fmt.Errorf("%w: recipient %d unreachable", delivery.ErrDelivery, recipient)
	}
	r.retracted = append(r.retracted, Retraction{Recipient: recipient, Ref: ref})
	return nil
}

// Sent returns a copy of delivered notifications.
func (r *Recorder) Sent() []delivery.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]delivery.Notification(nil), r.sent...)
}

// To returns notifications delivered to recipient.
func (r *Recorder) To(recipient int64) []delivery.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []delivery.Notification
	for _, n := range r.sent {
		if n.Recipient == recipient {
			out = append(out, n)
		}
	}
	return out
}

// Retracted returns recorded retractions.
func (r *Recorder) Retracted() []Retraction {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Retraction(nil), r.retracted...)
}

// Reset drops everything recorded so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = nil
	r.retracted = nil
}

// Package exchange carries the brick's JSON documents to the remote
// controller and back. MQTT is the network transport; Loopback stands in for
// the controller on the bench and in tests.
package exchange

import (
	"context"
	"sync"

	"github.com/itohio/brickheat/pkg/brick"
)

var (
	_ brick.Exchanger = Func(nil)
	_ brick.Exchanger = (*Loopback)(nil)
	_ brick.Exchanger = (*MQTT)(nil)
)

// Func adapts a function to brick.Exchanger.
type Func func(ctx context.Context, out brick.Document) (brick.Document, error)

// Exchange calls f.
func (f Func) Exchange(ctx context.Context, out brick.Document) (brick.Document, error) {
	return f(ctx, out)
}

// Loopback is a scripted controller. Each exchange records the outgoing
// document as the controller would decode it and answers with the next
// queued reply, or an empty document when the queue is empty.
type Loopback struct {
	mu      sync.Mutex
	replies []brick.Document
	sent    []brick.Document
}

// NewLoopback creates a loopback controller with queued replies.
func NewLoopback(replies ...brick.Document) *Loopback {
	return &Loopback{replies: replies}
}

// Queue appends a reply.
func (l *Loopback) Queue(reply brick.Document) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.replies = append(l.replies, reply)
}

// Exchange records out and pops the next reply. Both directions pass through
// JSON so the feature sees what a real controller would send.
func (l *Loopback) Exchange(ctx context.Context, out brick.Document) (brick.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	wire, err := out.Clone()
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.sent = append(l.sent, wire)
	if len(l.replies) == 0 {
		return brick.Document{}, nil
	}
	reply := l.replies[0]
	l.replies = l.replies[1:]
	return reply.Clone()
}

// Sent returns the documents received so far.
func (l *Loopback) Sent() []brick.Document {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]brick.Document, len(l.sent))
	copy(out, l.sent)
	return out
}

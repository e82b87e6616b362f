// Package transport delivers outbound messages to users.
//
// The heartbeat executor and the ingress handler both talk to a
// Transport so the delivery channel (chat platform, console, tests)
// stays pluggable.
package transport

import (
	"context"
	"fmt"
	"io"
	"sync"

	verrors "github.com/daemonvigil/vigil/errors"
)

// Transport delivers one message to one user.
type Transport interface {
	Send(ctx context.Context, userID, text string) error
}

// Delivery is one delivered message recorded by MemoryTransport.
type Delivery struct {
	UserID string
	Text   string
}

// MemoryTransport records sent messages in memory. Useful for tests;
// FailWith injects delivery failures.
type MemoryTransport struct {
	mu       sync.Mutex
	sent     []Delivery
	FailWith error
}

// NewMemoryTransport creates an in-memory transport.
func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{}
}

// Send implements Transport.
func (t *MemoryTransport) Send(ctx context.Context, userID, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.FailWith != nil {
		return verrors.TransportFailed(userID, t.FailWith)
	}
	t.sent = append(t.sent, Delivery{UserID: userID, Text: text})
	return nil
}

// Sent returns a copy of all delivered messages.
func (t *MemoryTransport) Sent() []Delivery {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Delivery, len(t.sent))
	copy(out, t.sent)
	return out
}

// SentTo returns messages delivered to one user.
func (t *MemoryTransport) SentTo(userID string) []Delivery {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []Delivery
	for _, s := range t.sent {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out
}

// WriterTransport writes messages to an io.Writer, one line per
// message with the user id prefixed. Useful for console runs.
type WriterTransport struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterTransport creates a writer-backed transport.
func NewWriterTransport(w io.Writer) *WriterTransport {
	return &WriterTransport{w: w}
}

// Send implements Transport.
func (t *WriterTransport) Send(ctx context.Context, userID, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, err := fmt.Fprintf(t.w, "[%s] %s\n", userID, text); err != nil {
		return verrors.TransportFailed(userID, err)
	}
	return nil
}

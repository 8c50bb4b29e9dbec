package server

import (
	"context"
	"sync"
)

// Mailbox queues conversation replies per requester until a client collects them. It is the
// conversation.Notifier of the HTTP front end.
type Mailbox struct {
	mu      sync.Mutex
	limit   int
	pending map[string][]string
}

// NewMailbox creates a Mailbox holding at most limit replies per requester; older replies are
// dropped first. A non-positive limit means unbounded.
func NewMailbox(limit int) *Mailbox {
	return &Mailbox{limit: limit, pending: make(map[string][]string)}
}

// Notify queues text for requesterID.
func (m *Mailbox) Notify(_ context.Context, requesterID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := append(m.pending[requesterID], text)
	if m.limit > 0 && len(q) > m.limit {
		q = q[len(q)-m.limit:]
	}
	m.pending[requesterID] = q
	return nil
}

// Drain returns and removes every queued reply of requesterID, oldest first.
func (m *Mailbox) Drain(requesterID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := m.pending[requesterID]
	delete(m.pending, requesterID)
	if q == nil {
		return []string{}
	}
	return q
}

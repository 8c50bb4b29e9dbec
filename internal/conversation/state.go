// Package conversation drives the chat dialogue that collects a form link, weight preferences
// and a repetition count. It is independent of the transport carrying the messages.
package conversation

import (
	"context"
	"sync"
	"time"
)

// State is a requester's position in the dialogue.
type State string

const (
	StateIdle                State = "idle"
	StateAwaitingQuestion    State = "awaiting_question"
	StateAwaitingWeights     State = "awaiting_weights"
	StateAwaitingRepetitions State = "awaiting_repetitions"
	StateRunning             State = "running"
)

// Session is the dialogue state of one requester.
type Session struct {
	State State `json:"state"`
	// QuestionIndex is the 0-based question chosen in StateAwaitingQuestion.
	QuestionIndex int       `json:"question_index"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// StateStore keeps sessions keyed by requester identity. Get returns an idle session for an
// unknown requester.
type StateStore interface {
	Get(ctx context.Context, requesterID string) (Session, error)
	Put(ctx context.Context, requesterID string, s Session) error
}

// MemoryStateStore is a process-local StateStore.
type MemoryStateStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

// NewMemoryStateStore creates an empty store.
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{sessions: make(map[string]Session)}
}

func (m *MemoryStateStore) Get(_ context.Context, requesterID string) (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[requesterID]
	if !ok {
		return Session{State: StateIdle}, nil
	}
	return s, nil
}

func (m *MemoryStateStore) Put(_ context.Context, requesterID string, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.UpdatedAt = time.Now()
	m.sessions[requesterID] = s
	return nil
}

package store

import (
	"context"
	"sync"

	"github.com/agenix-ai/voicebridge/pkg/bridge/session"
)

// Memory is an in-process Store for tests and single-node development.
// Records are cloned on both save and load so callers never share state
// with the stored snapshot, matching the semantics of a real external store.
type Memory struct {
	mu       sync.Mutex
	sessions map[string]*session.Session
}

func NewMemory() *Memory {
	return &Memory{sessions: make(map[string]*session.Session)}
}

func (m *Memory) Load(ctx context.Context, callSID string) (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[callSID]
	if !ok {
		return nil, ErrNotFound
	}
	return s.Clone(), nil
}

func (m *Memory) Save(ctx context.Context, callSID string, s *session.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[callSID] = s.Clone()
	return nil
}

func (m *Memory) Delete(ctx context.Context, callSID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, callSID)
	return nil
}

// Len reports the number of stored sessions.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Package store persists call sessions in an external key-value store. All
// operations are atomic at the granularity of one full session record; the
// orchestrator always round-trips load, mutate, save. No conflict detection
// is needed because at most one live orchestrator owns a call id at a time.
package store

import (
	"context"
	"errors"

	"github.com/agenix-ai/voicebridge/pkg/bridge/session"
)

// ErrNotFound is returned by Load when no session exists for the call id.
var ErrNotFound = errors.New("session not found")

type Store interface {
	Load(ctx context.Context, callSID string) (*session.Session, error)
	Save(ctx context.Context, callSID string, s *session.Session) error
	Delete(ctx context.Context, callSID string) error
}

package usecase

import (
	"sync"

	"github.com/google/uuid"

	"docrag/internal/domain"
)

// Session is a caller-owned conversation history. The answer flow is the
// only writer; Clear is the only other mutation. Sessions are
// independent, so concurrent conversations never interfere, and nothing
// is persisted across restarts.
type Session struct {
	ID string

	mu    sync.Mutex
	turns []domain.Turn
}

func NewSession() *Session {
	return &Session{ID: uuid.NewString()}
}

func (s *Session) Append(turn domain.Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, turn)
}

// Turns returns a copy of the conversation so far.
func (s *Session) Turns() []domain.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = nil
}

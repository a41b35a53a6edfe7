package extract

import (
	"sync"
)

const DefaultMaxTurns = 20

// Turn is one exchange kept as context for the next extraction.
type Turn struct {
	User      string
	Assistant string
}

// Session is the running conversation the remote model sees. It only grows
// on successful extractions and is emptied by Reset.
type Session struct {
	mu       sync.Mutex
	turns    []Turn
	maxTurns int
}

func NewSession(maxTurns int) *Session {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &Session{maxTurns: maxTurns}
}

func (s *Session) History() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Turn(nil), s.turns...)
}

func (s *Session) Record(user, assistant string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.turns = append(s.turns, Turn{User: user, Assistant: assistant})
	if over := len(s.turns) - s.maxTurns; over > 0 {
		s.turns = append([]Turn(nil), s.turns[over:]...)
	}
}

func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = nil
}

func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turns)
}

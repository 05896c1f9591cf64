// Package conversation keeps per-user question/answer history.
package conversation

import (
	"sync"

	"medrag/internal/domain"
)

// Store holds the history of every user. Turns are only appended; with a
// positive maxTurns the oldest turns are dropped beyond the cap.
type Store struct {
	mu       sync.Mutex
	maxTurns int
	users    map[string]*Session
}

func NewStore(maxTurns int) *Store {
	return &Store{maxTurns: max(maxTurns, 0), users: make(map[string]*Session)}
}

// Session is one user's history. Hold it via Store.Acquire for the whole
// classify, answer and append sequence so a user's turns stay in request order.
type Session struct {
	mu       sync.Mutex
	maxTurns int
	turns    []domain.ConversationTurn
}

// Acquire locks and returns the session for user. Call Release when done.
func (s *Store) Acquire(user string) *Session {
	s.mu.Lock()
	sess, ok := s.users[user]
	if !ok {
		sess = &Session{maxTurns: s.maxTurns}
		s.users[user] = sess
	}
	s.mu.Unlock()
	sess.mu.Lock()
	return sess
}

// History returns a copy of the user's turns, oldest first, without holding
// the session.
func (s *Store) History(user string) []domain.ConversationTurn {
	sess := s.Acquire(user)
	defer sess.Release()
	return sess.History()
}

// Users returns how many users have a session.
func (s *Store) Users() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

// History returns a copy of the turns, oldest first.
func (s *Session) History() []domain.ConversationTurn {
	return append([]domain.ConversationTurn(nil), s.turns...)
}

// Append records a completed exchange.
func (s *Session) Append(question, answer string) {
	s.turns = append(s.turns, domain.ConversationTurn{Question: question, Answer: answer})
	if s.maxTurns > 0 && len(s.turns) > s.maxTurns {
		drop := len(s.turns) - s.maxTurns
		s.turns = append([]domain.ConversationTurn(nil), s.turns[drop:]...)
	}
}

func (s *Session) Release() { s.mu.Unlock() }

package session

import (
	"log"
	"sync"
	"time"
)

// Store keeps one Session per user identifier. Sessions for different users
// are independent; each Session carries its own lock so a user's events are
// handled one at a time.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

// Acquire returns the session for userID, creating it on first use, and locks
// it. The caller must call the returned release func when done.
func (st *Store) Acquire(userID, chatID string) (*Session, func()) {
	st.mu.Lock()
	s, ok := st.sessions[userID]
	if !ok {
		s = &Session{UserID: userID, ChatID: chatID, Step: StepIdle, UpdatedAt: now()}
		st.sessions[userID] = s
	}
	st.mu.Unlock()

	s.mu.Lock()
	if chatID != "" {
		s.ChatID = chatID
	}
	return s, s.mu.Unlock
}

// AcquireExisting locks the session for userID only if it exists.
func (st *Store) AcquireExisting(userID string) (*Session, func(), bool) {
	st.mu.Lock()
	s, ok := st.sessions[userID]
	st.mu.Unlock()
	if !ok {
		return nil, nil, false
	}
	s.mu.Lock()
	return s, s.mu.Unlock, true
}

// Lookup returns the session for userID without creating or locking it.
func (st *Store) Lookup(userID string) (*Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[userID]
	return s, ok
}

// Clear destroys the session for userID.
func (st *Store) Clear(userID string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.sessions, userID)
}

// Len returns the number of live sessions.
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

// Sweep removes sessions that have not been touched for longer than ttl.
// Sessions that are currently locked by a handler are skipped. It returns the
// number of sessions removed.
func (st *Store) Sweep(ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}
	cutoff := now().Add(-ttl)

	st.mu.Lock()
	defer st.mu.Unlock()

	removed := 0
	for id, s := range st.sessions {
		if !s.mu.TryLock() {
			continue
		}
		stale := s.UpdatedAt.Before(cutoff)
		s.mu.Unlock()
		if stale {
			delete(st.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		log.Printf("session: swept %d idle session(s)", removed)
	}
	return removed
}

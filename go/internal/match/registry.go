package match

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/duel/go/internal/models"
)

// Registry owns the live sessions of one process and enforces that a participant is in at
// most one session at a time.
type Registry struct {
	mu       sync.RWMutex
	sessions map[models.SessionID]*Session
	nextID   models.SessionID
	clock    clockwork.Clock
}

// NewRegistry creates an empty registry. Ids start at 0.
func NewRegistry(clock clockwork.Clock) *Registry {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Registry{
		sessions: make(map[models.SessionID]*Session),
		clock:    clock,
	}
}

// CreateSession allocates the next id and stores a new session. It refuses a self-match
// and participants that already occupy a session, checked under the same lock as the
// insert so two concurrent challenges cannot both claim a participant.
func (r *Registry) CreateSession(host, opponent models.Participant, duration int) (*Session, error) {
	if host.ID == opponent.ID {
		return nil, ErrSelfChallenge
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.occupiedLocked(host.ID) {
		return nil, ErrHostBusy
	}
	if r.occupiedLocked(opponent.ID) {
		return nil, ErrOpponentBusy
	}

	s := newSession(r.nextID, host, opponent, duration, r.now())
	r.sessions[s.ID] = s
	r.nextID++
	return s, nil
}

// IsOccupied reports whether participantID is host or opponent of any stored session.
func (r *Registry) IsOccupied(participantID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.occupiedLocked(participantID)
}

func (r *Registry) occupiedLocked(participantID string) bool {
	for _, s := range r.sessions {
		if s.Involves(participantID) {
			return true
		}
	}
	return false
}

// Remove deletes the session. Removing an absent id is a no-op.
func (r *Registry) Remove(id models.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Get returns the stored session for id.
func (r *Registry) Get(id models.SessionID) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// NextID returns the id the next CreateSession will assign.
func (r *Registry) NextID() models.SessionID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.nextID
}

func (r *Registry) now() time.Time {
	return r.clock.Now().UTC()
}

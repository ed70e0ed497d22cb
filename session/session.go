package session

import (
	"sync"
	"time"

	"credpulse/agents"
	"credpulse/decision"
)

// Key identifies one unit of analysis work. Two requests with the same key
// share one execution.
type Key struct {
	MerchantID string
	BuyerID    string
	InvoiceID  string
}

// State is the session lifecycle position. COMPLETED, DEGRADED and FAILED are
// terminal; a session never stays RUNNING past the overall deadline.
type State string

const (
	StatePending   State = "PENDING"
	StateRunning   State = "RUNNING"
	StateCompleted State = "COMPLETED"
	StateDegraded  State = "DEGRADED"
	StateFailed    State = "FAILED"
)

// Terminal reports whether the state can no longer change.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateDegraded || s == StateFailed
}

// Session is the unit of orchestration work. It is mutated only by the one
// run that owns the PENDING->RUNNING transition; every other holder observes
// it through Snapshot and Done. Once terminal it is immutable.
type Session struct {
	ID        string
	Key       Key
	Case      agents.Case
	CreatedAt time.Time

	mu          sync.RWMutex
	done        chan struct{}
	state       State
	results     []agents.AgentResult
	final       *decision.Final
	offer       *decision.Offer
	failure     error
	completedAt *time.Time
}

// Snapshot is a read-only view of a session at one point in time.
type Snapshot struct {
	ID          string
	Key         Key
	Case        agents.Case
	State       State
	Results     []agents.AgentResult
	Final       *decision.Final
	Offer       *decision.Offer
	Failure     error
	CreatedAt   time.Time
	CompletedAt *time.Time
}

func newSession(id string, c agents.Case, createdAt time.Time) *Session {
	return &Session{
		ID:        id,
		Key:       Key{MerchantID: c.MerchantID, BuyerID: c.BuyerID, InvoiceID: c.InvoiceID},
		Case:      c,
		CreatedAt: createdAt,
		done:      make(chan struct{}),
		state:     StatePending,
	}
}

// Done is closed once the session reaches a terminal state.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Snapshot copies the current session contents for lock-free reading.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]agents.AgentResult, len(s.results))
	copy(results, s.results)

	return Snapshot{
		ID:          s.ID,
		Key:         s.Key,
		Case:        s.Case,
		State:       s.state,
		Results:     results,
		Final:       s.final,
		Offer:       s.offer,
		Failure:     s.failure,
		CreatedAt:   s.CreatedAt,
		CompletedAt: s.completedAt,
	}
}

// MarkRunning transitions PENDING -> RUNNING. It reports false when the
// session already left PENDING, which means another run owns it.
func (s *Session) MarkRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StatePending {
		return false
	}
	s.state = StateRunning
	return true
}

// Complete finalizes the session with a decision. The state must be one of
// the terminal success states; calling Complete twice is a no-op.
func (s *Session) Complete(state State, results []agents.AgentResult, final decision.Final, offer *decision.Offer, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return
	}
	s.state = state
	s.results = results
	s.final = &final
	s.offer = offer
	s.completedAt = &at
	close(s.done)
}

// Fail finalizes the session as FAILED with the infrastructure fault that
// stopped it. Calling Fail after a terminal transition is a no-op.
func (s *Session) Fail(err error, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return
	}
	s.state = StateFailed
	s.failure = err
	s.completedAt = &at
	close(s.done)
}

package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"credpulse/agents"
)

var (
	// ErrNotFound signals an unknown session id.
	ErrNotFound = errors.New("session: not found")
)

// Store is the keyed session cache. CreateIfAbsent is the single atomic
// entry point: for any key there is at most one live session, so concurrent
// requests attach to the in-flight run instead of starting a duplicate.
type Store struct {
	mu    sync.Mutex
	byKey map[Key]*Session
	byID  map[string]*Session

	now   func() time.Time
	idGen func() string
}

// NewStore builds an empty in-memory store.
func NewStore() *Store {
	return &Store{
		byKey: make(map[Key]*Session),
		byID:  make(map[string]*Session),
		now:   time.Now,
		idGen: func() string { return uuid.NewString() },
	}
}

// WithClock overrides the store clock.
func (st *Store) WithClock(now func() time.Time) *Store {
	st.now = now
	return st
}

// WithIDGenerator overrides session id generation.
func (st *Store) WithIDGenerator(gen func() string) *Store {
	st.idGen = gen
	return st
}

// CreateIfAbsent returns the session for the case key, creating a PENDING one
// when none exists. created reports whether the caller owns the new run. A
// key whose previous session ended FAILED is retried with a fresh session;
// COMPLETED and DEGRADED sessions are sticky and serve read-after-write.
func (st *Store) CreateIfAbsent(c agents.Case) (sess *Session, created bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	key := Key{MerchantID: c.MerchantID, BuyerID: c.BuyerID, InvoiceID: c.InvoiceID}
	if existing, ok := st.byKey[key]; ok && existing.State() != StateFailed {
		return existing, false
	}

	sess = newSession(st.idGen(), c, st.now())
	st.byKey[key] = sess
	st.byID[sess.ID] = sess
	return sess, true
}

// Get returns the session for a key, if any.
func (st *Store) Get(key Key) (*Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	sess, ok := st.byKey[key]
	return sess, ok
}

// GetByID returns the session with the given id.
func (st *Store) GetByID(id string) (*Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	sess, ok := st.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return sess, nil
}

// Evict removes a session by key. Retention policy lives outside the core;
// this is the hook it calls.
func (st *Store) Evict(key Key) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if sess, ok := st.byKey[key]; ok {
		delete(st.byKey, key)
		delete(st.byID, sess.ID)
	}
}

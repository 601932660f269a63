package session

import (
	"context"
	"sort"
	"sync"
)

// Snapshotter persists session state after every applied mutation.
type Snapshotter interface {
	SaveSession(ctx context.Context, s *Session) error
}

// Store owns the in-flight sessions. The map lock only guards membership;
// each session has its own lock held for the whole read-modify-write.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
	snap    Snapshotter
}

type entry struct {
	mu sync.Mutex
	s  *Session
}

// NewStore creates an empty store. snap may be nil.
func NewStore(snap Snapshotter) *Store {
	return &Store{
		entries: make(map[string]*entry),
		snap:    snap,
	}
}

// Insert adds a new session and persists its first snapshot.
func (st *Store) Insert(ctx context.Context, s *Session) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if _, ok := st.entries[s.ID]; ok {
		return newError(KindInternal, "session %s already exists", s.ID)
	}
	c := s.Clone()
	if st.snap != nil {
		if err := st.snap.SaveSession(ctx, c); err != nil {
			return wrapError(KindInternal, err, "persist session %s", s.ID)
		}
	}
	st.entries[s.ID] = &entry{s: c}
	return nil
}

// put adds a session without persisting it. It reports false when the id
// is already taken.
func (st *Store) put(s *Session) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.entries[s.ID]; ok {
		return false
	}
	st.entries[s.ID] = &entry{s: s.Clone()}
	return true
}

func (st *Store) lookup(id string) (*entry, error) {
	st.mu.RLock()
	e, ok := st.entries[id]
	st.mu.RUnlock()
	if !ok {
		return nil, newError(KindSessionNotFound, "session %s not found", id)
	}
	return e, nil
}

// Get returns a copy of the session.
func (st *Store) Get(id string) (*Session, error) {
	e, err := st.lookup(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.s.Clone(), nil
}

// Apply runs fn against a copy of the session under the session lock. The
// copy replaces the stored session only when fn returns nil and the
// snapshot is saved, so a failed operation leaves no trace. It returns a
// copy of the new state.
func (st *Store) Apply(ctx context.Context, id string, fn func(s *Session) error) (*Session, error) {
	e, err := st.lookup(id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.s.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.Version++

	if st.snap != nil {
		if err := st.snap.SaveSession(ctx, next); err != nil {
			return nil, wrapError(KindInternal, err, "persist session %s", id)
		}
	}
	e.s = next
	return next.Clone(), nil
}

// Delete drops a session from memory. Persisted snapshots are untouched.
func (st *Store) Delete(id string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.entries, id)
}

// IDs returns the ids of all sessions, sorted.
func (st *Store) IDs() []string {
	st.mu.RLock()
	ids := make([]string, 0, len(st.entries))
	for id := range st.entries {
		ids = append(ids, id)
	}
	st.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Len returns the number of sessions held.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.entries)
}

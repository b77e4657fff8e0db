package bridge

import (
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/yamux"
)

// SessionEntry describes one connected bridge client.
type SessionEntry struct {
	ID          string
	RemoteAddr  string
	ConnectedAt time.Time
	Session     *yamux.Session
	// Listeners counts the addListener streams currently open.
	Listeners int
}

// SessionRegistry tracks the sessions a Host is serving.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*SessionEntry
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[string]*SessionEntry),
	}
}

// Register adds a session under id.
func (r *SessionRegistry) Register(id, remoteAddr string, session *yamux.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[id] = &SessionEntry{
		ID:          id,
		RemoteAddr:  remoteAddr,
		ConnectedAt: time.Now(),
		Session:     session,
	}
}

// Unregister removes a session.
func (r *SessionRegistry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// AddListeners adjusts the open listener count of a session by delta.
func (r *SessionRegistry) AddListeners(id string, delta int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.sessions[id]; ok {
		entry.Listeners += delta
	}
}

// Get returns a copy of the entry for id.
func (r *SessionRegistry) Get(id string) (SessionEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.sessions[id]
	if !ok {
		return SessionEntry{}, false
	}
	return *entry, true
}

// List returns copies of all entries, oldest first.
func (r *SessionRegistry) List() []SessionEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]SessionEntry, 0, len(r.sessions))
	for _, entry := range r.sessions {
		out = append(out, *entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConnectedAt.Before(out[j].ConnectedAt) })
	return out
}

// Len returns the number of sessions.
func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CloseAll closes every registered session.
func (r *SessionRegistry) CloseAll() {
	r.mu.RLock()
	sessions := make([]*yamux.Session, 0, len(r.sessions))
	for _, entry := range r.sessions {
		sessions = append(sessions, entry.Session)
	}
	r.mu.RUnlock()

	for _, s := range sessions {
		s.Close()
	}
}

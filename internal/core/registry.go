package core

import (
	"sync"

	"github.com/sirupsen/logrus"

	"image-crop-engine/internal/display"
)

// Registry is the arena of live sessions keyed by instance.
type Registry struct {
	mu         sync.RWMutex
	sessions   map[InstanceID]*Session
	nextHandle Handle
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions:   make(map[InstanceID]*Session),
		nextHandle: 1,
	}
}

// create registers a fresh session and returns it together with the
// session it replaced, if any. The caller must close the replaced session.
func (r *Registry) create(id InstanceID, d display.Display, logger logrus.FieldLogger) (*Session, *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h := r.nextHandle
	r.nextHandle++

	s := &Session{
		id:      id,
		handle:  h,
		display: d,
		logger:  logger.WithFields(logrus.Fields{"instance": id, "handle": h}),
	}
	old := r.sessions[id]
	r.sessions[id] = s
	return s, old
}

func (r *Registry) lookup(id InstanceID) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

func (r *Registry) remove(id InstanceID) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	return s, ok
}

// removeAll empties the registry and returns what it held.
func (r *Registry) removeAll() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Session, 0, len(r.sessions))
	for id, s := range r.sessions {
		out = append(out, s)
		delete(r.sessions, id)
	}
	return out
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

package app

import (
	"context"
	"sync"

	"github.com/dkeye/Mesh/internal/core"
	"github.com/dkeye/Mesh/internal/domain"
	"github.com/rs/zerolog/log"
)

// Entry is the registry's view of one live signaling connection.
type Entry struct {
	Conn     domain.ConnID
	Signal   core.SignalConnection
	Cancel   context.CancelFunc
	Room     domain.RoomID
	User     domain.UserID
	Username string
}

// Registry maps live connection ids to their transport and room binding.
type Registry struct {
	mu    sync.RWMutex
	conns map[domain.ConnID]*Entry
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[domain.ConnID]*Entry)}
}

func (r *Registry) Bind(conn domain.ConnID, sig core.SignalConnection, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[conn] = &Entry{Conn: conn, Signal: sig, Cancel: cancel}
	log.Info().Str("module", "app.registry").Str("conn", string(conn)).Msg("bound signal")
}

func (r *Registry) Unbind(conn domain.ConnID) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[conn]
	if !ok {
		return Entry{}, false
	}
	delete(r.conns, conn)
	log.Info().Str("module", "app.registry").Str("conn", string(conn)).Msg("unbind signal")
	return *e, true
}

func (r *Registry) Get(conn domain.ConnID) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[conn]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Attach records that conn is in room as user.
func (r *Registry) Attach(conn domain.ConnID, room domain.RoomID, user domain.UserID, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[conn]
	if !ok {
		return false
	}
	e.Room, e.User, e.Username = room, user, name
	log.Info().Str("module", "app.registry").Str("conn", string(conn)).Str("room", string(room)).Msg("attached to room")
	return true
}

// Detach clears the room binding and returns the room conn was in.
func (r *Registry) Detach(conn domain.ConnID) (domain.RoomID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[conn]
	if !ok || e.Room == "" {
		return "", false
	}
	room := e.Room
	e.Room = ""
	log.Info().Str("module", "app.registry").Str("conn", string(conn)).Str("room", string(room)).Msg("detached from room")
	return room, true
}

func (r *Registry) RoomOf(conn domain.ConnID) (domain.RoomID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[conn]
	if !ok || e.Room == "" {
		return "", false
	}
	return e.Room, true
}

func (r *Registry) MembersOfRoom(room domain.RoomID) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, 8)
	for _, e := range r.conns {
		if e.Room == room {
			out = append(out, *e)
		}
	}
	return out
}

func (r *Registry) All() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.conns))
	for _, e := range r.conns {
		out = append(out, *e)
	}
	return out
}

// Cancel tears down the connection's pumps. The read pump's exit then runs
// the normal disconnect path.
func (r *Registry) Cancel(conn domain.ConnID) bool {
	r.mu.RLock()
	e, ok := r.conns[conn]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("conn", string(conn)).Msg("canceled connection")
	return true
}

package client

import (
	"sort"
	"sync"

	"github.com/dkeye/Mesh/internal/domain"
	"github.com/dkeye/Mesh/internal/protocol"
)

// LobbyView is the client's copy of the room list. Updates carry a version
// per room; anything older than what was already applied is dropped.
type LobbyView struct {
	mu       sync.RWMutex
	rooms    map[domain.RoomID]domain.RoomSummary
	versions map[domain.RoomID]int64
}

func NewLobbyView() *LobbyView {
	return &LobbyView{
		rooms:    make(map[domain.RoomID]domain.RoomSummary),
		versions: make(map[domain.RoomID]int64),
	}
}

// Reset replaces the view with a full snapshot.
func (l *LobbyView) Reset(list []domain.RoomSummary) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rooms = make(map[domain.RoomID]domain.RoomSummary, len(list))
	for _, s := range list {
		l.rooms[s.ID] = s
		if s.Version > l.versions[s.ID] {
			l.versions[s.ID] = s.Version
		}
	}
}

// Apply folds a room-updated or room-deleted frame in and reports whether
// the view changed.
func (l *LobbyView) Apply(m protocol.Message) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch m.Type {
	case protocol.TypeRoomUpdated:
		if m.Room == nil || m.Room.Version < l.versions[m.Room.ID] {
			return false
		}
		l.versions[m.Room.ID] = m.Room.Version
		l.rooms[m.Room.ID] = *m.Room
		return true
	case protocol.TypeRoomDeleted:
		if m.Version < l.versions[m.RoomID] {
			return false
		}
		l.versions[m.RoomID] = m.Version
		if _, ok := l.rooms[m.RoomID]; !ok {
			return false
		}
		delete(l.rooms, m.RoomID)
		return true
	}
	return false
}

func (l *LobbyView) Get(id domain.RoomID) (domain.RoomSummary, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s, ok := l.rooms[id]
	return s, ok
}

// Rooms lists rooms newest first.
func (l *LobbyView) Rooms() []domain.RoomSummary {
	l.mu.RLock()
	out := make([]domain.RoomSummary, 0, len(l.rooms))
	for _, s := range l.rooms {
		out = append(out, s)
	}
	l.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt > out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}

package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dkeye/Mesh/internal/domain"
	"github.com/rs/zerolog/log"
)

// MemoryLedger is a threadsafe in-process ledger. Each operation runs in one
// critical section, which is the in-memory equivalent of a conditional update.
type MemoryLedger struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]*domain.Room
	now   func() time.Time
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		rooms: make(map[domain.RoomID]*domain.Room),
		now:   time.Now,
	}
}

func (l *MemoryLedger) Create(_ context.Context, name string, capacity int, creator domain.UserID) (domain.Room, error) {
	name, err := domain.ValidateRoomName(name)
	if err != nil {
		return domain.Room{}, err
	}
	capacity, err = domain.ValidateCapacity(capacity)
	if err != nil {
		return domain.Room{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	id := domain.NewRoomID()
	for {
		if _, taken := l.rooms[id]; !taken {
			break
		}
		id = domain.NewRoomID()
	}
	room := &domain.Room{
		ID:           id,
		Name:         name,
		Capacity:     capacity,
		CreatedBy:    creator,
		Active:       true,
		CreatedAt:    l.now(),
		Version:      1,
		Participants: []domain.Participant{},
	}
	l.rooms[id] = room
	log.Info().Str("module", "ledger.memory").Str("room_id", string(id)).Int("capacity", capacity).Msg("room created")
	return room.Clone(), nil
}

func (l *MemoryLedger) Get(_ context.Context, id domain.RoomID) (domain.Room, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	r, ok := l.rooms[id]
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	return r.Clone(), nil
}

func (l *MemoryLedger) List(_ context.Context) ([]domain.Room, error) {
	l.mu.RLock()
	out := make([]domain.Room, 0, len(l.rooms))
	for _, r := range l.rooms {
		if r.Active {
			out = append(out, r.Clone())
		}
	}
	l.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (l *MemoryLedger) Join(_ context.Context, id domain.RoomID, p domain.Participant) (JoinResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.rooms[id]
	if !ok || !r.Active {
		return JoinResult{}, domain.ErrRoomNotFound
	}

	for i := range r.Participants {
		if r.Participants[i].UserID != p.UserID {
			continue
		}
		prev := r.Participants[i].ConnID
		r.Participants[i].ConnID = p.ConnID
		if p.Username != "" {
			r.Participants[i].Username = p.Username
		}
		r.Version++
		log.Info().Str("module", "ledger.memory").Str("room_id", string(id)).Str("user", string(p.UserID)).Msg("participant reconnected")
		return JoinResult{Room: r.Clone(), Reconnected: true, PreviousConn: prev}, nil
	}

	if r.Full() {
		return JoinResult{}, domain.ErrRoomFull
	}
	p.JoinedAt = l.now()
	r.Participants = append(r.Participants, p)
	r.Version++
	log.Info().Str("module", "ledger.memory").Str("room_id", string(id)).Str("user", string(p.UserID)).Int("count", len(r.Participants)).Msg("participant added")
	return JoinResult{Room: r.Clone()}, nil
}

func (l *MemoryLedger) Leave(_ context.Context, id domain.RoomID, user domain.UserID, conn domain.ConnID) (LeaveResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.rooms[id]
	if !ok {
		return LeaveResult{}, domain.ErrRoomNotFound
	}
	idx := -1
	for i, p := range r.Participants {
		if p.UserID == user && p.ConnID == conn {
			idx = i
			break
		}
	}
	if idx < 0 {
		return LeaveResult{Room: r.Clone()}, nil
	}
	r.Participants = append(r.Participants[:idx], r.Participants[idx+1:]...)
	r.Version++
	res := LeaveResult{Room: r.Clone(), Removed: true}
	if len(r.Participants) == 0 {
		delete(l.rooms, id)
		res.Deleted = true
		log.Info().Str("module", "ledger.memory").Str("room_id", string(id)).Msg("room deleted (empty)")
	} else {
		log.Info().Str("module", "ledger.memory").Str("room_id", string(id)).Str("user", string(user)).Msg("participant removed")
	}
	return res, nil
}

func (l *MemoryLedger) SetFlags(_ context.Context, id domain.RoomID, user domain.UserID, f Flags) (domain.Room, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.rooms[id]
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	for i := range r.Participants {
		if r.Participants[i].UserID != user {
			continue
		}
		if f.Muted != nil {
			r.Participants[i].IsMuted = *f.Muted
		}
		if f.VideoOff != nil {
			r.Participants[i].IsVideoOff = *f.VideoOff
		}
		r.Version++
		return r.Clone(), nil
	}
	return domain.Room{}, domain.ErrNotAuthorized
}

func (l *MemoryLedger) Update(_ context.Context, id domain.RoomID, requester domain.UserID, patch RoomPatch) (domain.Room, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.rooms[id]
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	if r.CreatedBy != requester {
		return domain.Room{}, domain.ErrNotAuthorized
	}
	if patch.Capacity != nil {
		c, err := domain.ValidateCapacity(*patch.Capacity)
		if err != nil {
			return domain.Room{}, err
		}
		if c < len(r.Participants) {
			return domain.Room{}, domain.ErrInvalidCapacity
		}
		r.Capacity = c
	}
	if patch.Name != nil {
		name, err := domain.ValidateRoomName(*patch.Name)
		if err != nil {
			return domain.Room{}, err
		}
		r.Name = name
	}
	r.Version++
	return r.Clone(), nil
}

func (l *MemoryLedger) Delete(_ context.Context, id domain.RoomID, requester domain.UserID) (domain.Room, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.rooms[id]
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	if r.CreatedBy != requester {
		return domain.Room{}, domain.ErrNotAuthorized
	}
	delete(l.rooms, id)
	r.Version++
	log.Info().Str("module", "ledger.memory").Str("room_id", string(id)).Msg("room deleted by creator")
	return r.Clone(), nil
}

func (l *MemoryLedger) Close(context.Context) error { return nil }

package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

type (
	RoomID string
	// ConnID identifies one live signaling connection. It changes on reconnect.
	ConnID string
)

const (
	DefaultCapacity = 6
	MinCapacity     = 2
	MaxRoomNameLen  = 64
	roomIDLen       = 10
)

var (
	ErrRoomFull        = errors.New("room is full")
	ErrRoomNotFound    = errors.New("room not found")
	ErrNotAuthorized   = errors.New("not authorized")
	ErrInvalidCapacity = errors.New("invalid capacity")
	ErrRoomNameEmpty   = errors.New("room name empty")
)

const roomIDAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz_-"

// NewRoomID returns a short URL-safe id.
func NewRoomID() RoomID {
	var b strings.Builder
	b.Grow(roomIDLen)
	for b.Len() < roomIDLen {
		u := uuid.New()
		for _, c := range u {
			if b.Len() == roomIDLen {
				break
			}
			b.WriteByte(roomIDAlphabet[int(c)%len(roomIDAlphabet)])
		}
	}
	return RoomID(b.String())
}

// NewConnID returns a fresh connection id.
func NewConnID() ConnID {
	return ConnID(uuid.NewString())
}

type Participant struct {
	UserID     UserID    `json:"userId"`
	Username   string    `json:"username"`
	ConnID     ConnID    `json:"connectionId"`
	JoinedAt   time.Time `json:"joinedAt"`
	IsMuted    bool      `json:"isMuted"`
	IsVideoOff bool      `json:"isVideoOff"`
}

type Room struct {
	ID           RoomID        `json:"roomId"`
	Name         string        `json:"roomName"`
	Capacity     int           `json:"maxParticipants"`
	CreatedBy    UserID        `json:"createdBy"`
	Active       bool          `json:"isActive"`
	CreatedAt    time.Time     `json:"createdAt"`
	Version      int64         `json:"version"`
	Participants []Participant `json:"participants"`
}

// ValidateCapacity normalizes a requested capacity.
func ValidateCapacity(c int) (int, error) {
	if c == 0 {
		return DefaultCapacity, nil
	}
	if c < MinCapacity {
		return 0, ErrInvalidCapacity
	}
	return c, nil
}

func ValidateRoomName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrRoomNameEmpty
	}
	if len(name) > MaxRoomNameLen {
		name = name[:MaxRoomNameLen]
	}
	return name, nil
}

// Clone returns a copy that shares no participant storage with r.
func (r Room) Clone() Room {
	out := r
	out.Participants = make([]Participant, len(r.Participants))
	copy(out.Participants, r.Participants)
	return out
}

func (r Room) Find(user UserID) (Participant, bool) {
	for _, p := range r.Participants {
		if p.UserID == user {
			return p, true
		}
	}
	return Participant{}, false
}

// Others lists every participant except user.
func (r Room) Others(user UserID) []Participant {
	out := make([]Participant, 0, len(r.Participants))
	for _, p := range r.Participants {
		if p.UserID != user {
			out = append(out, p)
		}
	}
	return out
}

func (r Room) Full() bool { return len(r.Participants) >= r.Capacity }

// RoomSummary is the lobby view of a room. Version lets observers apply
// updates idempotently: a summary with a lower version than one already seen
// is stale.
type RoomSummary struct {
	ID           RoomID   `json:"roomId"`
	Name         string   `json:"roomName"`
	Capacity     int      `json:"maxParticipants"`
	Count        int      `json:"participantCount"`
	CreatedBy    UserID   `json:"createdBy"`
	CreatedAt    int64    `json:"createdAt"`
	Version      int64    `json:"version"`
	Participants []string `json:"participants"`
}

func (r Room) Summary() RoomSummary {
	names := make([]string, 0, len(r.Participants))
	for _, p := range r.Participants {
		names = append(names, p.Username)
	}
	return RoomSummary{
		ID:           r.ID,
		Name:         r.Name,
		Capacity:     r.Capacity,
		Count:        len(r.Participants),
		CreatedBy:    r.CreatedBy,
		CreatedAt:    r.CreatedAt.Unix(),
		Version:      r.Version,
		Participants: names,
	}
}

// Package ledger is the authoritative store of rooms and their participants.
//
// Every mutation is a single atomic step with respect to the capacity
// invariant: implementations never read membership, decide, and write back
// in separate steps.
package ledger

import (
	"context"
	"errors"

	"github.com/dkeye/Mesh/internal/domain"
)

// ErrUnavailable wraps storage failures that must fail a request outright.
var ErrUnavailable = errors.New("ledger unavailable")

type JoinResult struct {
	Room domain.Room
	// Reconnected is true when the (room, user) entry already existed and
	// only its connection id was replaced.
	Reconnected  bool
	PreviousConn domain.ConnID
}

type LeaveResult struct {
	Room domain.Room
	// Removed is false when no entry matched (user, conn): the user already
	// left or has reconnected under a newer connection id.
	Removed bool
	// Deleted reports that the leave emptied the room and it was destroyed.
	Deleted bool
}

// Flags is a partial update of a participant's media flags.
type Flags struct {
	Muted    *bool
	VideoOff *bool
}

// RoomPatch is a partial update of room settings by its creator.
type RoomPatch struct {
	Name     *string
	Capacity *int
}

type Ledger interface {
	Create(ctx context.Context, name string, capacity int, creator domain.UserID) (domain.Room, error)
	Get(ctx context.Context, id domain.RoomID) (domain.Room, error)
	List(ctx context.Context) ([]domain.Room, error)
	Join(ctx context.Context, id domain.RoomID, p domain.Participant) (JoinResult, error)
	Leave(ctx context.Context, id domain.RoomID, user domain.UserID, conn domain.ConnID) (LeaveResult, error)
	SetFlags(ctx context.Context, id domain.RoomID, user domain.UserID, f Flags) (domain.Room, error)
	Update(ctx context.Context, id domain.RoomID, requester domain.UserID, patch RoomPatch) (domain.Room, error)
	Delete(ctx context.Context, id domain.RoomID, requester domain.UserID) (domain.Room, error)
	Close(ctx context.Context) error
}

package orch

import (
	"errors"
	"sync"

	"github.com/dkeye/Mesh/internal/app"
	"github.com/dkeye/Mesh/internal/domain"
	"github.com/dkeye/Mesh/internal/ledger"
	"github.com/dkeye/Mesh/internal/protocol"
)

var (
	ErrUnknownConn = errors.New("unknown connection")
	ErrNotInRoom   = errors.New("not in a room")
)

// Orchestrator coordinates room membership: it mutates the ledger, keeps the
// registry's room bindings in step and emits the resulting events.
type Orchestrator struct {
	Ledger   ledger.Ledger
	Registry *app.Registry
	Notify   *app.Notifier

	locks roomLocks
}

func New(l ledger.Ledger, reg *app.Registry, policy app.Policy) *Orchestrator {
	return &Orchestrator{
		Ledger:   l,
		Registry: reg,
		Notify:   app.NewNotifier(reg, policy),
	}
}

// ErrorCode maps an orchestrator error to its wire code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrRoomFull):
		return protocol.CodeRoomFull
	case errors.Is(err, domain.ErrRoomNotFound):
		return protocol.CodeRoomNotFound
	case errors.Is(err, domain.ErrNotAuthorized):
		return protocol.CodeNotAuthorized
	case errors.Is(err, ErrNotInRoom):
		return protocol.CodeNotInRoom
	case errors.Is(err, domain.ErrInvalidCapacity),
		errors.Is(err, domain.ErrRoomNameEmpty),
		errors.Is(err, domain.ErrUsernameEmpty),
		errors.Is(err, domain.ErrUsernameTooLong),
		errors.Is(err, domain.ErrUserIDEmpty),
		errors.Is(err, domain.ErrUserIDTooLong):
		return protocol.CodeBadPayload
	default:
		return protocol.CodeInternal
	}
}

// roomLocks serializes membership changes per room so that the ledger
// mutation, registry binding and event fan-out of one change are never
// interleaved with another change to the same room.
type roomLocks struct {
	mu    sync.Mutex
	locks map[domain.RoomID]*roomLock
}

type roomLock struct {
	sync.Mutex
	refs int
}

func (l *roomLocks) lock(id domain.RoomID) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[domain.RoomID]*roomLock)
	}
	rl, ok := l.locks[id]
	if !ok {
		rl = &roomLock{}
		l.locks[id] = rl
	}
	rl.refs++
	l.mu.Unlock()

	rl.Lock()
	return func() {
		rl.Unlock()
		l.mu.Lock()
		rl.refs--
		if rl.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

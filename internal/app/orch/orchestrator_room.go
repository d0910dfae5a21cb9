package orch

import (
	"context"
	"errors"

	"github.com/dkeye/Mesh/internal/domain"
	"github.com/dkeye/Mesh/internal/ledger"
	"github.com/dkeye/Mesh/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Join admits conn into room as user. The joiner receives the current
// participants before anyone else learns about it, so an initiator's offer
// can never overtake the responder's participant list.
func (o *Orchestrator) Join(ctx context.Context, conn domain.ConnID, room domain.RoomID, userID domain.UserID, name string) error {
	entry, ok := o.Registry.Get(conn)
	if !ok {
		return ErrUnknownConn
	}
	user, err := domain.NewUser(userID, name)
	if err != nil {
		return err
	}
	if entry.Room != "" && entry.Room != room {
		if err := o.Leave(ctx, conn); err != nil {
			log.Warn().Err(err).Str("module", "orch").Str("conn", string(conn)).Str("from_room", string(entry.Room)).Msg("leave before join")
		}
	}

	unlock := o.locks.lock(room)
	defer unlock()

	res, err := o.Ledger.Join(ctx, room, domain.Participant{
		UserID:   user.ID,
		Username: user.Username,
		ConnID:   conn,
	})
	if err != nil {
		log.Info().Err(err).Str("module", "orch").Str("conn", string(conn)).Str("room", string(room)).Msg("join rejected")
		return err
	}
	o.Registry.Attach(conn, room, user.ID, user.Username)

	self, _ := res.Room.Find(user.ID)
	peer := protocol.PeerFrom(self)
	o.Notify.SendTo(conn, protocol.ExistingParticipants(room, protocol.PeersFrom(res.Room.Others(user.ID))))

	switch {
	case !res.Reconnected:
		o.Notify.SendRoom(room, conn, protocol.UserJoined(room, peer))
		o.Notify.Broadcast(protocol.RoomUpdated(res.Room.Summary()))
		log.Info().Str("module", "orch").Str("conn", string(conn)).Str("room", string(room)).Int("count", len(res.Room.Participants)).Msg("joined")
	case res.PreviousConn != conn:
		// The old socket no longer speaks for this user.
		o.Registry.Detach(res.PreviousConn)
		o.Notify.SendRoom(room, conn, protocol.UserReconnected(room, peer, res.PreviousConn))
		log.Info().Str("module", "orch").Str("conn", string(conn)).Str("prev", string(res.PreviousConn)).Str("room", string(room)).Msg("reconnected")
	default:
		log.Debug().Str("module", "orch").Str("conn", string(conn)).Str("room", string(room)).Msg("duplicate join on same connection")
	}
	return nil
}

// Leave removes conn from its room. It is a no-op for a connection that is
// not in a room.
func (o *Orchestrator) Leave(ctx context.Context, conn domain.ConnID) error {
	entry, ok := o.Registry.Get(conn)
	if !ok || entry.Room == "" {
		return nil
	}
	room := entry.Room

	unlock := o.locks.lock(room)
	defer unlock()

	res, err := o.Ledger.Leave(ctx, room, entry.User, conn)
	o.Registry.Detach(conn)
	if errors.Is(err, domain.ErrRoomNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !res.Removed {
		log.Debug().Str("module", "orch").Str("conn", string(conn)).Str("room", string(room)).Msg("stale leave ignored")
		return nil
	}

	if res.Deleted {
		o.Notify.Broadcast(protocol.RoomDeleted(room, res.Room.Version))
	} else {
		o.Notify.SendRoom(room, conn, protocol.UserLeft(room, entry.User, conn))
		o.Notify.Broadcast(protocol.RoomUpdated(res.Room.Summary()))
	}
	log.Info().Str("module", "orch").Str("conn", string(conn)).Str("room", string(room)).Bool("room_deleted", res.Deleted).Msg("left")
	return nil
}

// Disconnect runs when a connection's transport is gone. It leaves the room
// and forgets the connection.
func (o *Orchestrator) Disconnect(ctx context.Context, conn domain.ConnID) {
	if err := o.Leave(ctx, conn); err != nil {
		log.Error().Err(err).Str("module", "orch").Str("conn", string(conn)).Msg("leave on disconnect")
	}
	o.Registry.Unbind(conn)
}

// KickByConn forcibly closes a connection. Cleanup follows through Disconnect
// once the transport's read pump exits.
func (o *Orchestrator) KickByConn(conn domain.ConnID) {
	o.Registry.Cancel(conn)
}

func (o *Orchestrator) CreateRoom(ctx context.Context, name string, capacity int, creator domain.UserID) (domain.Room, error) {
	r, err := o.Ledger.Create(ctx, name, capacity, creator)
	if err != nil {
		return domain.Room{}, err
	}
	o.Notify.Broadcast(protocol.RoomUpdated(r.Summary()))
	return r, nil
}

func (o *Orchestrator) ListRooms(ctx context.Context) ([]domain.RoomSummary, error) {
	rooms, err := o.Ledger.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.RoomSummary, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, r.Summary())
	}
	return out, nil
}

func (o *Orchestrator) GetRoom(ctx context.Context, id domain.RoomID) (domain.Room, error) {
	return o.Ledger.Get(ctx, id)
}

func (o *Orchestrator) UpdateRoom(ctx context.Context, id domain.RoomID, requester domain.UserID, patch ledger.RoomPatch) (domain.Room, error) {
	unlock := o.locks.lock(id)
	defer unlock()

	r, err := o.Ledger.Update(ctx, id, requester, patch)
	if err != nil {
		return domain.Room{}, err
	}
	o.Notify.Broadcast(protocol.RoomUpdated(r.Summary()))
	return r, nil
}

// EvictRoom deletes a room on its creator's behalf and detaches every
// connection still in it.
func (o *Orchestrator) EvictRoom(ctx context.Context, id domain.RoomID, requester domain.UserID) error {
	unlock := o.locks.lock(id)
	defer unlock()

	r, err := o.Ledger.Delete(ctx, id, requester)
	if err != nil {
		return err
	}
	members := o.Registry.MembersOfRoom(id)
	o.Notify.Broadcast(protocol.RoomDeleted(id, r.Version))
	for _, m := range members {
		o.Registry.Detach(m.Conn)
	}
	log.Info().Str("module", "orch").Str("room", string(id)).Int("evicted", len(members)).Msg("room evicted")
	return nil
}

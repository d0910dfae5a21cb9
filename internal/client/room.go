// Package client runs one participant's side of a room: signaling, the
// peer mesh and local media.
package client

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/dkeye/Mesh/internal/domain"
	"github.com/dkeye/Mesh/internal/media"
	"github.com/dkeye/Mesh/internal/mesh"
	"github.com/dkeye/Mesh/internal/protocol"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrJoinRejected   = errors.New("join rejected")
	ErrRoomDeleted    = errors.New("room deleted")
	ErrConnectionLost = errors.New("signaling connection lost")
)

type State int32

const (
	StateJoining State = iota
	StateJoined
	StateLeaving
	StateLeft
)

func (s State) String() string {
	switch s {
	case StateJoining:
		return "joining"
	case StateJoined:
		return "joined"
	case StateLeaving:
		return "leaving"
	case StateLeft:
		return "left"
	}
	return "unknown"
}

// Conn is the signaling link a Room talks through.
type Conn interface {
	Send(protocol.Message) error
	Incoming() <-chan protocol.Message
	Close()
}

type Config struct {
	RoomID   domain.RoomID
	UserID   domain.UserID
	Username string
	Devices  media.Devices
	Preset   media.Preset
}

// Room is one participant's membership in one room.
type Room struct {
	cfg   Config
	conn  Conn
	mesh  *mesh.Manager
	media *media.Controller
	sink  *media.RemoteSink
	lobby *LobbyView
	log   zerolog.Logger

	state     atomic.Int32
	closeOnce sync.Once

	mu    sync.RWMutex
	peers map[domain.ConnID]protocol.Peer
}

func NewRoom(conn Conn, factory mesh.PeerFactory, src media.Source, cfg Config, opts ...mesh.ManagerOption) *Room {
	r := &Room{
		cfg:   cfg,
		conn:  conn,
		sink:  media.NewRemoteSink(),
		lobby: NewLobbyView(),
		peers: make(map[domain.ConnID]protocol.Peer),
		log:   log.With().Str("module", "client").Str("room", string(cfg.RoomID)).Logger(),
	}
	r.media = media.NewController(src, r.targets, conn)
	opts = append(opts, mesh.WithOnConnected(func(*mesh.Session) { r.media.Reapply() }))
	r.mesh = mesh.NewManager(factory, conn, r.media, opts...)
	return r
}

func (r *Room) targets() []media.Target {
	sessions := r.mesh.Sessions()
	out := make([]media.Target, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s)
	}
	return out
}

func (r *Room) State() State { return State(r.state.Load()) }

func (r *Room) setState(s State) {
	old := State(r.state.Swap(int32(s)))
	if old != s {
		r.log.Info().Str("from", old.String()).Str("to", s.String()).Msg("room state")
	}
}

func (r *Room) Media() *media.Controller { return r.media }
func (r *Room) Mesh() *mesh.Manager      { return r.mesh }
func (r *Room) Lobby() *LobbyView        { return r.lobby }
func (r *Room) Sink() *media.RemoteSink  { return r.sink }

// Peers lists the other participants by username.
func (r *Room) Peers() []protocol.Peer {
	r.mu.RLock()
	out := make([]protocol.Peer, 0, len(r.peers))
	for _, p := range r.peers {
		out = append(out, p)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}

// Run joins the room and processes frames until ctx ends, the room is
// deleted, the join is rejected, or the connection drops. Local media and
// every peer session are released on return.
func (r *Room) Run(ctx context.Context) error {
	defer r.Close()

	r.setState(StateJoining)
	if err := r.media.Apply(ctx, r.cfg.Devices, r.cfg.Preset); err != nil {
		// The room still works without local media.
		r.log.Warn().Err(err).Msg("local media unavailable")
	}
	join := protocol.Message{
		Type:     protocol.TypeJoinRoom,
		RoomID:   r.cfg.RoomID,
		UserID:   r.cfg.UserID,
		Username: r.cfg.Username,
	}
	if err := r.conn.Send(join); err != nil {
		return fmt.Errorf("send join: %w", err)
	}

	// Track draining is tied to the room's lifetime.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := r.mesh.Events()
	for {
		select {
		case <-ctx.Done():
			r.leave()
			return nil
		case msg, ok := <-r.conn.Incoming():
			if !ok {
				return ErrConnectionLost
			}
			if err := r.handle(msg); err != nil {
				return err
			}
		case e := <-events:
			r.handleEvent(runCtx, e)
		}
	}
}

func (r *Room) leave() {
	if r.State() != StateJoined {
		return
	}
	r.setState(StateLeaving)
	if err := r.conn.Send(protocol.Message{
		Type:   protocol.TypeLeaveRoom,
		RoomID: r.cfg.RoomID,
		UserID: r.cfg.UserID,
	}); err != nil {
		r.log.Debug().Err(err).Msg("leave not sent")
	}
}

func (r *Room) handle(msg protocol.Message) error {
	switch msg.Type {
	case protocol.TypeExistingParticipants:
		r.mu.Lock()
		for _, p := range msg.Participants {
			r.peers[p.ConnectionID] = p
		}
		r.mu.Unlock()
		r.setState(StateJoined)
	case protocol.TypeUserJoined:
		r.mu.Lock()
		r.peers[msg.Peer.ConnectionID] = *msg.Peer
		r.mu.Unlock()
	case protocol.TypeUserReconnected:
		r.mu.Lock()
		delete(r.peers, msg.PreviousConnectionID)
		r.peers[msg.Peer.ConnectionID] = *msg.Peer
		r.mu.Unlock()
	case protocol.TypeUserLeft, protocol.TypeUserLeftTimeout:
		r.mu.Lock()
		delete(r.peers, msg.ConnectionID)
		r.mu.Unlock()
		r.sink.Forget(msg.ConnectionID)
	case protocol.TypeUserMicToggled, protocol.TypeUserVideoToggled:
		r.mu.Lock()
		if p, ok := r.peers[msg.ConnectionID]; ok {
			if msg.IsMuted != nil {
				p.IsMuted = *msg.IsMuted
			}
			if msg.IsVideoOff != nil {
				p.IsVideoOff = *msg.IsVideoOff
			}
			r.peers[msg.ConnectionID] = p
		}
		r.mu.Unlock()
		return nil
	case protocol.TypeRoomUpdated:
		r.lobby.Apply(msg)
		return nil
	case protocol.TypeRoomDeleted:
		r.lobby.Apply(msg)
		if msg.RoomID == r.cfg.RoomID {
			return ErrRoomDeleted
		}
		return nil
	case protocol.TypeError:
		if r.State() == StateJoining {
			return fmt.Errorf("%w: %s: %s", ErrJoinRejected, msg.Code, msg.Error)
		}
		r.log.Warn().Str("code", msg.Code).Str("error", msg.Error).Msg("server error")
		return nil
	case protocol.TypePong:
		return nil
	}

	if err := r.mesh.HandleMessage(msg); err != nil {
		// One peer's bad frame never ends the room.
		r.log.Warn().Err(err).Str("type", string(msg.Type)).Msg("mesh")
	}
	return nil
}

func (r *Room) handleEvent(ctx context.Context, e mesh.Event) {
	switch e.Kind {
	case mesh.TrackReceived:
		go func() {
			_ = r.sink.DrainTrack(ctx, e.Peer, e.Track)
		}()
	case mesh.PeerLost:
		r.log.Warn().Str("peer", string(e.Peer)).Msg("peer lost")
	case mesh.StateChanged:
		r.log.Debug().Str("peer", string(e.Peer)).Str("state", e.State.String()).Msg("peer state")
	}
}

// Close releases local media, every peer session and the connection. It
// runs on every exit path of Run and may be called again.
func (r *Room) Close() {
	r.closeOnce.Do(func() {
		r.media.Close()
		r.mesh.Close()
		r.conn.Close()
		r.setState(StateLeft)
	})
}

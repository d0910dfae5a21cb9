package mesh

import (
	"fmt"
	"sync"

	"github.com/dkeye/Mesh/internal/domain"
	"github.com/dkeye/Mesh/internal/protocol"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

type EventKind int

const (
	PeerAdded EventKind = iota
	PeerRemoved
	// PeerLost means negotiation gave up after a failed ICE restart.
	PeerLost
	TrackReceived
	StateChanged
)

func (k EventKind) String() string {
	switch k {
	case PeerAdded:
		return "peer-added"
	case PeerRemoved:
		return "peer-removed"
	case PeerLost:
		return "peer-lost"
	case TrackReceived:
		return "track-received"
	case StateChanged:
		return "state-changed"
	}
	return "unknown"
}

type Event struct {
	Kind  EventKind
	Peer  domain.ConnID
	Role  Role
	State State
	Track *webrtc.TrackRemote
}

type ManagerOption func(*Manager)

// WithOnConnected runs fn each time a session reaches connected, including
// after an ICE restart.
func WithOnConnected(fn func(*Session)) ManagerOption {
	return func(m *Manager) { m.onConnected = fn }
}

func WithOptions(o Options) ManagerOption {
	return func(m *Manager) { m.opts = o }
}

// Manager keeps exactly one Session per remote connection id in the room.
type Manager struct {
	factory     PeerFactory
	sig         Signaler
	tracks      TrackSource
	opts        Options
	onConnected func(*Session)

	mu       sync.Mutex
	sessions map[domain.ConnID]*Session
	events   chan Event
	closed   bool
}

func NewManager(f PeerFactory, sig Signaler, tracks TrackSource, opts ...ManagerOption) *Manager {
	m := &Manager{
		factory:  f,
		sig:      sig,
		tracks:   tracks,
		opts:     DefaultOptions(),
		sessions: make(map[domain.ConnID]*Session),
		events:   make(chan Event, 256),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *Manager) Events() <-chan Event { return m.events }

// HandleMessage applies one server frame to the mesh. Frames that do not
// concern peer topology are ignored.
func (m *Manager) HandleMessage(msg protocol.Message) error {
	switch msg.Type {
	case protocol.TypeExistingParticipants:
		// A peer whose offer arrived first already has a responder session.
		for _, p := range msg.Participants {
			if _, ok := m.Get(p.ConnectionID); ok {
				continue
			}
			if _, err := m.add(p.ConnectionID, Responder); err != nil {
				return err
			}
		}
	case protocol.TypeUserJoined:
		_, err := m.replace(msg.Peer.ConnectionID, Initiator)
		return err
	case protocol.TypeUserReconnected:
		if msg.PreviousConnectionID != "" {
			m.Remove(msg.PreviousConnectionID)
		}
		_, err := m.replace(msg.Peer.ConnectionID, Initiator)
		return err
	case protocol.TypeUserLeft, protocol.TypeUserLeftTimeout:
		m.Remove(msg.ConnectionID)
	case protocol.TypeOffer:
		desc, err := protocol.DecodeDescription(msg.Description)
		if err != nil {
			return err
		}
		s, ok := m.Get(msg.From)
		if !ok {
			if s, err = m.add(msg.From, Responder); err != nil {
				return err
			}
		}
		s.HandleOffer(desc)
	case protocol.TypeAnswer:
		s, ok := m.Get(msg.From)
		if !ok {
			log.Debug().Str("module", "mesh").Str("from", string(msg.From)).Msg("answer for unknown peer dropped")
			return nil
		}
		desc, err := protocol.DecodeDescription(msg.Description)
		if err != nil {
			return err
		}
		s.HandleAnswer(desc)
	case protocol.TypeICECandidate:
		s, ok := m.Get(msg.From)
		if !ok {
			log.Debug().Str("module", "mesh").Str("from", string(msg.From)).Msg("candidate for unknown peer dropped")
			return nil
		}
		c, err := protocol.DecodeCandidate(msg.Candidate)
		if err != nil {
			return err
		}
		s.HandleCandidate(c)
	case protocol.TypeRenegotiateHint:
		s, ok := m.Get(msg.From)
		if !ok {
			return nil
		}
		h, err := protocol.DecodeHint(msg.Hint)
		if err != nil {
			return err
		}
		s.HandleHint(h)
	}
	return nil
}

func (m *Manager) Get(peer domain.ConnID) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[peer]
	return s, ok
}

// Sessions returns a snapshot of the live sessions.
func (m *Manager) Sessions() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// Remove closes and forgets the session for peer, if any.
func (m *Manager) Remove(peer domain.ConnID) {
	m.mu.Lock()
	s, ok := m.sessions[peer]
	delete(m.sessions, peer)
	m.mu.Unlock()
	if !ok {
		return
	}
	s.Close()
	m.emit(Event{Kind: PeerRemoved, Peer: peer, Role: s.Role(), State: StateClosed})
}

// Close releases every session. It is safe to call more than once.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	all := m.sessions
	m.sessions = make(map[domain.ConnID]*Session)
	m.mu.Unlock()
	for _, s := range all {
		s.Close()
	}
}

func (m *Manager) replace(peer domain.ConnID, role Role) (*Session, error) {
	m.Remove(peer)
	return m.add(peer, role)
}

func (m *Manager) add(peer domain.ConnID, role Role) (*Session, error) {
	pc, err := m.factory.NewPeer()
	if err != nil {
		return nil, fmt.Errorf("new peer %s: %w", peer, err)
	}
	s := newSession(peer, role, pc, m.sig, m.opts, sessionHooks{
		state: func(s *Session, st State) {
			m.emit(Event{Kind: StateChanged, Peer: s.Peer(), Role: s.Role(), State: st})
		},
		connected: m.onConnected,
		lost:      m.lost,
		track: func(s *Session, t *webrtc.TrackRemote) {
			m.emit(Event{Kind: TrackReceived, Peer: s.Peer(), Role: s.Role(), State: s.State(), Track: t})
		},
	})

	// Tracks go on before the session is visible, so a concurrent track
	// swap never finds it without senders.
	tracks := m.localTracks()
	if err := s.attach(tracks); err != nil {
		s.Close()
		return nil, fmt.Errorf("start session %s: %w", peer, err)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		s.Close()
		return nil, fmt.Errorf("mesh closed")
	}
	m.sessions[peer] = s
	m.mu.Unlock()

	m.resync(s, tracks)
	s.launch()
	log.Info().Str("module", "mesh").Str("peer", string(peer)).Str("role", role.String()).Msg("session added")
	m.emit(Event{Kind: PeerAdded, Peer: peer, Role: role, State: StateIdle})
	return s, nil
}

func (m *Manager) localTracks() []webrtc.TrackLocal {
	if m.tracks == nil {
		return nil
	}
	return m.tracks.LocalTracks()
}

// resync swaps in any track that changed between attach and publication.
// A swap after publication reaches the session through Sessions().
func (m *Manager) resync(s *Session, attached []webrtc.TrackLocal) {
	have := make(map[webrtc.RTPCodecType]webrtc.TrackLocal, len(attached))
	for _, t := range attached {
		have[t.Kind()] = t
	}
	for _, t := range m.localTracks() {
		if have[t.Kind()] == t {
			continue
		}
		if err := s.ReplaceTrack(t.Kind(), t); err != nil {
			s.log.Debug().Err(err).Str("kind", t.Kind().String()).Msg("resync track")
		}
	}
}

func (m *Manager) lost(s *Session) {
	m.mu.Lock()
	if m.sessions[s.Peer()] == s {
		delete(m.sessions, s.Peer())
	}
	m.mu.Unlock()
	m.emit(Event{Kind: PeerLost, Peer: s.Peer(), Role: s.Role(), State: StateFailed})
}

// emit never blocks a session goroutine; a full channel drops the event.
func (m *Manager) emit(e Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	select {
	case m.events <- e:
	default:
		log.Warn().Str("module", "mesh").Str("event", e.Kind.String()).Msg("event dropped")
	}
}

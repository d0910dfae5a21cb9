package mesh

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/Mesh/internal/domain"
	"github.com/dkeye/Mesh/internal/protocol"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Options struct {
	// OfferDelay lets the responder finish its own setup before the first
	// offer lands.
	OfferDelay time.Duration
	// RestartGrace is how long a failed pairing waits before the initiator
	// tries an ICE restart.
	RestartGrace time.Duration
}

func DefaultOptions() Options {
	return Options{OfferDelay: 100 * time.Millisecond, RestartGrace: 2 * time.Second}
}

type sessionHooks struct {
	state     func(*Session, State)
	connected func(*Session)
	lost      func(*Session)
	track     func(*Session, *webrtc.TrackRemote)
}

// Session negotiates one peer connection with one remote participant.
// All signaling work runs on a single mailbox goroutine, so the fields
// below the mailbox are never touched concurrently.
type Session struct {
	peer  domain.ConnID
	role  Role
	pc    PeerConn
	sig   Signaler
	opts  Options
	hooks sessionHooks
	log   zerolog.Logger

	state atomic.Int32

	mailbox   chan func()
	done      chan struct{}
	closeOnce sync.Once

	timerMu sync.Mutex
	timers  []*time.Timer

	remotePending []webrtc.ICECandidateInit
	localPending  []webrtc.ICECandidateInit
	localSent     bool
	restarted     bool
	wantOffer     bool
	wantRestart   bool
}

func newSession(peer domain.ConnID, role Role, pc PeerConn, sig Signaler, opts Options, hooks sessionHooks) *Session {
	return &Session{
		peer:    peer,
		role:    role,
		pc:      pc,
		sig:     sig,
		opts:    opts,
		hooks:   hooks,
		mailbox: make(chan func(), 64),
		done:    make(chan struct{}),
		log: log.With().
			Str("module", "mesh").
			Str("peer", string(peer)).
			Str("role", role.String()).
			Logger(),
	}
}

func (s *Session) Peer() domain.ConnID { return s.peer }
func (s *Session) Role() Role          { return s.role }
func (s *Session) State() State        { return State(s.state.Load()) }

// Done is closed once the session is closed.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) start(tracks []webrtc.TrackLocal) error {
	if err := s.attach(tracks); err != nil {
		return err
	}
	s.launch()
	return nil
}

// attach adds the local tracks and wires the peer connection callbacks.
// Nothing is sent until launch.
func (s *Session) attach(tracks []webrtc.TrackLocal) error {
	for _, t := range tracks {
		if err := s.pc.AddTrack(t); err != nil {
			return err
		}
	}
	s.pc.OnICECandidate(func(c *webrtc.ICECandidateInit) {
		s.post(func() { s.localCandidate(c) })
	})
	s.pc.OnICEConnectionStateChange(func(st webrtc.ICEConnectionState) {
		s.post(func() { s.iceState(st) })
	})
	s.pc.OnTrack(func(t *webrtc.TrackRemote) {
		if s.hooks.track != nil {
			s.hooks.track(s, t)
		}
	})
	return nil
}

func (s *Session) launch() {
	go s.run()

	if s.role == Initiator {
		s.after(s.opts.OfferDelay, func() {
			if s.State() == StateIdle {
				s.offer(false)
			}
		})
	}
}

func (s *Session) run() {
	for {
		select {
		case <-s.done:
			return
		case fn := <-s.mailbox:
			fn()
		}
	}
}

func (s *Session) post(fn func()) {
	select {
	case <-s.done:
		return
	default:
	}
	select {
	case s.mailbox <- fn:
	case <-s.done:
	}
}

func (s *Session) after(d time.Duration, fn func()) {
	t := time.AfterFunc(d, func() { s.post(fn) })
	s.timerMu.Lock()
	s.timers = append(s.timers, t)
	s.timerMu.Unlock()
}

func (s *Session) stopTimers() {
	s.timerMu.Lock()
	for _, t := range s.timers {
		t.Stop()
	}
	s.timers = nil
	s.timerMu.Unlock()
}

func (s *Session) setState(st State) {
	for {
		old := State(s.state.Load())
		if old == StateClosed || old == st {
			return
		}
		if s.state.CompareAndSwap(int32(old), int32(st)) {
			s.log.Debug().Str("from", old.String()).Str("to", st.String()).Msg("state")
			if s.hooks.state != nil {
				s.hooks.state(s, st)
			}
			return
		}
	}
}

func (s *Session) HandleOffer(desc webrtc.SessionDescription) {
	s.post(func() { s.handleOffer(desc) })
}

func (s *Session) HandleAnswer(desc webrtc.SessionDescription) {
	s.post(func() { s.handleAnswer(desc) })
}

func (s *Session) HandleCandidate(c webrtc.ICECandidateInit) {
	s.post(func() { s.handleCandidate(c) })
}

func (s *Session) HandleHint(h protocol.Hint) {
	s.post(func() {
		if h.Reason == protocol.HintRenegotiate {
			s.renegotiate()
			return
		}
		s.log.Debug().Str("reason", h.Reason).Strs("kinds", h.Kinds).Msg("hint")
	})
}

// Renegotiate starts a fresh offer/answer round from either side. A
// collision with the remote's own offer is settled by role: the initiator
// rolls back and answers, the responder keeps its offer.
func (s *Session) Renegotiate() {
	s.post(s.renegotiate)
}

func (s *Session) ReplaceTrack(kind webrtc.RTPCodecType, track webrtc.TrackLocal) error {
	return s.pc.ReplaceTrack(kind, track)
}

func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.setState(StateClosed)
		close(s.done)
		s.stopTimers()
		if err := s.pc.Close(); err != nil {
			s.log.Warn().Err(err).Msg("close peer connection")
		}
	})
}

func (s *Session) send(m protocol.Message, err error) {
	if err != nil {
		s.log.Error().Err(err).Str("type", string(m.Type)).Msg("encode")
		return
	}
	if err := s.sig.Send(m); err != nil {
		s.log.Warn().Err(err).Str("type", string(m.Type)).Msg("send")
	}
}

func (s *Session) offer(restart bool) {
	desc, err := s.pc.CreateOffer(restart)
	if err != nil {
		s.log.Error().Err(err).Bool("restart", restart).Msg("create offer")
		if restart {
			s.lose()
		}
		return
	}
	switch {
	case restart:
		s.setState(StateRestarting)
	case s.State() == StateIdle:
		s.setState(StateOffering)
	}
	s.send(protocol.Offer(s.peer, desc))
	s.markLocalSent()
}

func (s *Session) renegotiate() {
	if s.pc.SignalingState() != webrtc.SignalingStateStable {
		s.wantOffer = true
		return
	}
	s.offer(false)
}

func (s *Session) handleOffer(desc webrtc.SessionDescription) {
	if s.pc.SignalingState() == webrtc.SignalingStateHaveLocalOffer {
		if s.role == Responder {
			s.log.Debug().Msg("glare: keeping local offer")
			return
		}
		s.log.Debug().Msg("glare: rolling back local offer")
		if err := s.pc.Rollback(); err != nil {
			s.log.Error().Err(err).Msg("rollback")
			return
		}
		// A rolled-back restart still has to happen once this round settles.
		if s.State() == StateRestarting {
			s.wantRestart = true
		}
	}
	if err := s.pc.SetRemoteDescription(desc); err != nil {
		s.log.Error().Err(err).Msg("set remote offer")
		return
	}
	s.flushRemote()

	answer, err := s.pc.CreateAnswer()
	if err != nil {
		s.log.Error().Err(err).Msg("create answer")
		return
	}
	switch s.State() {
	case StateIdle, StateOffering:
		s.setState(StateAnswering)
	case StateFailed:
		s.restarted = true
		s.setState(StateRestarting)
	}
	s.send(protocol.Answer(s.peer, answer))
	s.markLocalSent()
	switch {
	case s.wantRestart:
		s.wantRestart, s.wantOffer = false, false
		s.offer(true)
	case s.wantOffer:
		s.wantOffer = false
		s.offer(false)
	}
}

func (s *Session) handleAnswer(desc webrtc.SessionDescription) {
	if s.pc.SignalingState() != webrtc.SignalingStateHaveLocalOffer {
		s.log.Debug().Msg("stale answer ignored")
		return
	}
	if err := s.pc.SetRemoteDescription(desc); err != nil {
		s.log.Error().Err(err).Msg("set remote answer")
		return
	}
	s.flushRemote()
	if s.wantOffer {
		s.wantOffer = false
		s.offer(false)
	}
}

func (s *Session) handleCandidate(c webrtc.ICECandidateInit) {
	if !s.pc.HasRemoteDescription() {
		s.remotePending = append(s.remotePending, c)
		return
	}
	if err := s.pc.AddICECandidate(c); err != nil {
		s.log.Warn().Err(err).Msg("add candidate")
	}
}

func (s *Session) flushRemote() {
	for _, c := range s.remotePending {
		if err := s.pc.AddICECandidate(c); err != nil {
			s.log.Warn().Err(err).Msg("add buffered candidate")
		}
	}
	s.remotePending = nil
}

// Local candidates wait until our description has gone out, so the remote
// side never sees a candidate before the description it belongs to.
func (s *Session) localCandidate(c *webrtc.ICECandidateInit) {
	if c == nil {
		return
	}
	if !s.localSent {
		s.localPending = append(s.localPending, *c)
		return
	}
	s.send(protocol.ICECandidate(s.peer, *c))
}

func (s *Session) markLocalSent() {
	if s.localSent {
		return
	}
	s.localSent = true
	for _, c := range s.localPending {
		s.send(protocol.ICECandidate(s.peer, c))
	}
	s.localPending = nil
}

func (s *Session) iceState(st webrtc.ICEConnectionState) {
	switch st {
	case webrtc.ICEConnectionStateConnected, webrtc.ICEConnectionStateCompleted:
		if s.State() == StateConnected {
			return
		}
		s.setState(StateConnected)
		if s.hooks.connected != nil {
			s.hooks.connected(s)
		}
	case webrtc.ICEConnectionStateFailed:
		s.failed()
	case webrtc.ICEConnectionStateDisconnected:
		s.log.Debug().Msg("ice disconnected")
	}
}

// A pairing gets one ICE restart. Failing again, or failing mid-restart,
// gives the peer up.
func (s *Session) failed() {
	if s.State() == StateRestarting || s.restarted {
		s.lose()
		return
	}
	s.setState(StateFailed)
	if s.role == Responder {
		wait := 2 * s.opts.RestartGrace
		s.log.Info().Dur("wait", wait).Msg("ice failed, waiting for restart offer")
		s.after(wait, func() {
			if s.State() == StateFailed {
				s.log.Info().Msg("no restart offer arrived")
				s.lose()
			}
		})
		return
	}
	s.log.Info().Dur("grace", s.opts.RestartGrace).Msg("ice failed, scheduling restart")
	s.after(s.opts.RestartGrace, func() {
		if s.State() != StateFailed {
			return
		}
		s.restarted = true
		s.offer(true)
	})
}

func (s *Session) lose() {
	s.log.Warn().Msg("peer lost")
	s.setState(StateFailed)
	if s.hooks.lost != nil {
		s.hooks.lost(s)
	}
	s.Close()
}

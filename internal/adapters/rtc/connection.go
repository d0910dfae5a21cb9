package rtc

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/Mesh/internal/mesh"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var ErrNoSender = errors.New("no sender for media kind")

type Config struct {
	STUN         []string
	TURN         []string
	TURNUsername string
	TURNPassword string
	// IncludeLoopback gathers 127.0.0.1 candidates. Only useful on one host.
	IncludeLoopback bool
}

func DefaultConfig() Config {
	return Config{STUN: []string{"stun:stun.l.google.com:19302"}}
}

func (c Config) WebRTC() webrtc.Configuration {
	var servers []webrtc.ICEServer
	if len(c.STUN) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: c.STUN})
	}
	if len(c.TURN) > 0 {
		servers = append(servers, webrtc.ICEServer{
			URLs:           c.TURN,
			Username:       c.TURNUsername,
			Credential:     c.TURNPassword,
			CredentialType: webrtc.ICECredentialTypePassword,
		})
	}
	return webrtc.Configuration{
		ICEServers:    servers,
		BundlePolicy:  webrtc.BundlePolicyMaxBundle,
		RTCPMuxPolicy: webrtc.RTCPMuxPolicyRequire,
	}
}

// Factory builds pion-backed peer connections for the mesh.
type Factory struct {
	cfg Config
}

func NewFactory(cfg Config) *Factory {
	return &Factory{cfg: cfg}
}

func (f *Factory) NewPeer() (mesh.PeerConn, error) {
	return NewPeerConnection(f.cfg)
}

// PeerConnection adapts *webrtc.PeerConnection to mesh.PeerConn.
type PeerConnection struct {
	pc  *webrtc.PeerConnection
	log zerolog.Logger

	mu      sync.Mutex
	senders map[webrtc.RTPCodecType]*webrtc.RTPSender
}

func NewPeerConnection(cfg Config) (*PeerConnection, error) {
	// A MediaEngine must not be shared between peer connections.
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}
	se := webrtc.SettingEngine{}
	se.SetIncludeLoopbackCandidate(cfg.IncludeLoopback)
	api := webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithSettingEngine(se))

	pc, err := api.NewPeerConnection(cfg.WebRTC())
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	id := uuid.NewString()[:8]
	c := &PeerConnection{
		pc:      pc,
		log:     log.With().Str("module", "webrtc").Str("pc", id).Logger(),
		senders: make(map[webrtc.RTPCodecType]*webrtc.RTPSender),
	}
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		c.log.Info().Str("peer_connection_state", s.String()).Msg("Peer state")
	})
	pc.OnSignalingStateChange(func(s webrtc.SignalingState) {
		c.log.Debug().Str("signaling_state", s.String()).Msg("Signaling state")
	})
	return c, nil
}

func (c *PeerConnection) CreateOffer(iceRestart bool) (webrtc.SessionDescription, error) {
	offer, err := c.pc.CreateOffer(&webrtc.OfferOptions{ICERestart: iceRestart})
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("create offer: %w", err)
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("set local offer: %w", err)
	}
	return offer, nil
}

func (c *PeerConnection) CreateAnswer() (webrtc.SessionDescription, error) {
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("create answer: %w", err)
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("set local answer: %w", err)
	}
	return answer, nil
}

func (c *PeerConnection) SetRemoteDescription(desc webrtc.SessionDescription) error {
	if err := c.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("set remote %s: %w", desc.Type, err)
	}
	return nil
}

func (c *PeerConnection) Rollback() error {
	pending := c.pc.PendingLocalDescription()
	if pending == nil {
		return errors.New("rollback: no pending local description")
	}
	// pion rejects a rollback with an empty SDP.
	err := c.pc.SetLocalDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeRollback, SDP: pending.SDP})
	if err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

func (c *PeerConnection) AddICECandidate(ci webrtc.ICECandidateInit) error {
	if err := c.pc.AddICECandidate(ci); err != nil {
		return fmt.Errorf("add candidate: %w", err)
	}
	return nil
}

func (c *PeerConnection) SignalingState() webrtc.SignalingState {
	return c.pc.SignalingState()
}

func (c *PeerConnection) HasRemoteDescription() bool {
	return c.pc.RemoteDescription() != nil
}

// AddTrack attaches a local track and drains RTCP for its sender.
func (c *PeerConnection) AddTrack(track webrtc.TrackLocal) error {
	sender, err := c.pc.AddTrack(track)
	if err != nil {
		return fmt.Errorf("add %s track: %w", track.Kind(), err)
	}
	c.mu.Lock()
	c.senders[track.Kind()] = sender
	c.mu.Unlock()

	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return nil
}

// ReplaceTrack swaps the outgoing track of kind without renegotiation.
func (c *PeerConnection) ReplaceTrack(kind webrtc.RTPCodecType, track webrtc.TrackLocal) error {
	c.mu.Lock()
	sender := c.senders[kind]
	c.mu.Unlock()
	if sender == nil {
		return fmt.Errorf("replace %s track: %w", kind, ErrNoSender)
	}
	if err := sender.ReplaceTrack(track); err != nil {
		return fmt.Errorf("replace %s track: %w", kind, err)
	}
	return nil
}

func (c *PeerConnection) OnICECandidate(fn func(*webrtc.ICECandidateInit)) {
	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			fn(nil)
			return
		}
		init := cand.ToJSON()
		fn(&init)
	})
}

func (c *PeerConnection) OnICEConnectionStateChange(fn func(webrtc.ICEConnectionState)) {
	c.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		c.log.Info().Str("ice_state", s.String()).Msg("ICE state")
		fn(s)
	})
}

func (c *PeerConnection) OnTrack(fn func(*webrtc.TrackRemote)) {
	c.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		c.log.Info().
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		fn(track)
	})
}

func (c *PeerConnection) Close() error {
	if err := c.pc.Close(); err != nil {
		c.log.Error().Err(err).Msg("close error")
		return err
	}
	c.log.Info().Msg("closed")
	return nil
}

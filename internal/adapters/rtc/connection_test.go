package rtc

import (
	"errors"
	"testing"
	"time"

	"github.com/dkeye/Mesh/internal/domain"
	"github.com/dkeye/Mesh/internal/mesh"
	"github.com/dkeye/Mesh/internal/protocol"
	"github.com/pion/webrtc/v4"
)

func vp8Track(t *testing.T, id string) *webrtc.TrackLocalStaticSample {
	t.Helper()
	track, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, id, "local")
	if err != nil {
		t.Fatalf("new track: %v", err)
	}
	return track
}

func TestConfigCarriesTURNCredentials(t *testing.T) {
	cfg := Config{
		STUN:         []string{"stun:stun.example:3478"},
		TURN:         []string{"turn:turn.example:3478"},
		TURNUsername: "u",
		TURNPassword: "p",
	}.WebRTC()
	if len(cfg.ICEServers) != 2 {
		t.Fatalf("ice servers=%d, want 2", len(cfg.ICEServers))
	}
	if cfg.ICEServers[1].Username != "u" || cfg.ICEServers[1].Credential != "p" {
		t.Fatalf("turn=%+v", cfg.ICEServers[1])
	}
	if cfg.BundlePolicy != webrtc.BundlePolicyMaxBundle || cfg.RTCPMuxPolicy != webrtc.RTCPMuxPolicyRequire {
		t.Fatalf("bundle=%s rtcp-mux=%s", cfg.BundlePolicy, cfg.RTCPMuxPolicy)
	}
}

func TestRollbackRestoresStable(t *testing.T) {
	pc, err := NewPeerConnection(Config{IncludeLoopback: true})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer pc.Close()
	if err := pc.AddTrack(vp8Track(t, "video")); err != nil {
		t.Fatalf("add track: %v", err)
	}
	if _, err := pc.CreateOffer(false); err != nil {
		t.Fatalf("offer: %v", err)
	}
	if pc.SignalingState() != webrtc.SignalingStateHaveLocalOffer {
		t.Fatalf("state=%s", pc.SignalingState())
	}
	if err := pc.Rollback(); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if pc.SignalingState() != webrtc.SignalingStateStable {
		t.Fatalf("state after rollback=%s", pc.SignalingState())
	}
	if err := pc.Rollback(); err == nil {
		t.Fatalf("second rollback succeeded")
	}
}

func TestReplaceTrackWithoutSender(t *testing.T) {
	pc, err := NewPeerConnection(Config{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer pc.Close()
	err = pc.ReplaceTrack(webrtc.RTPCodecTypeAudio, nil)
	if !errors.Is(err, ErrNoSender) {
		t.Fatalf("err=%v, want ErrNoSender", err)
	}
}

type staticTracks []webrtc.TrackLocal

func (s staticTracks) LocalTracks() []webrtc.TrackLocal { return s }

// relay stamps the sender the way the server does and hands the frame to
// the other side's manager.
type relay struct {
	from domain.ConnID
	to   *mesh.Manager
}

func (r *relay) Send(m protocol.Message) error {
	m.From, m.To = r.from, ""
	return r.to.HandleMessage(m)
}

func waitState(t *testing.T, m *mesh.Manager, peer domain.ConnID, want mesh.State) *mesh.Session {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for {
		if s, ok := m.Get(peer); ok && s.State() == want {
			return s
		}
		if time.Now().After(deadline) {
			t.Fatalf("%s never reached %s", peer, want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestLoopbackMeshSwapsCameraInPlace(t *testing.T) {
	factory := NewFactory(Config{IncludeLoopback: true})
	opts := mesh.WithOptions(mesh.Options{OfferDelay: 10 * time.Millisecond, RestartGrace: time.Second})
	ra, rb := &relay{from: "a"}, &relay{from: "b"}
	ma := mesh.NewManager(factory, ra, staticTracks{vp8Track(t, "cam-a")}, opts)
	mb := mesh.NewManager(factory, rb, staticTracks{vp8Track(t, "cam-b")}, opts)
	ra.to, rb.to = mb, ma
	t.Cleanup(ma.Close)
	t.Cleanup(mb.Close)

	if err := ma.HandleMessage(protocol.Message{
		Type: protocol.TypeUserJoined,
		Peer: &protocol.Peer{ConnectionID: "b", UserID: "ub"},
	}); err != nil {
		t.Fatalf("user-joined: %v", err)
	}

	sa := waitState(t, ma, "b", mesh.StateConnected)
	sb := waitState(t, mb, "a", mesh.StateConnected)
	if sa.Role() != mesh.Initiator || sb.Role() != mesh.Responder {
		t.Fatalf("roles a=%s b=%s", sa.Role(), sb.Role())
	}

	if err := sa.ReplaceTrack(webrtc.RTPCodecTypeVideo, vp8Track(t, "cam-a2")); err != nil {
		t.Fatalf("replace: %v", err)
	}
	time.Sleep(200 * time.Millisecond)
	if got, _ := mb.Get("a"); got != sb || sb.State() != mesh.StateConnected {
		t.Fatalf("remote session changed after track swap: state=%s", sb.State())
	}
	if len(ma.Sessions()) != 1 || len(mb.Sessions()) != 1 {
		t.Fatalf("sessions a=%d b=%d", len(ma.Sessions()), len(mb.Sessions()))
	}
}

package mesh

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Mesh/internal/domain"
	"github.com/dkeye/Mesh/internal/protocol"
	"github.com/pion/webrtc/v4"
)

// fakePeer follows the JSEP signaling transitions closely enough to catch
// out-of-order calls, without any media or ICE underneath.
type fakePeer struct {
	mu sync.Mutex

	state  webrtc.SignalingState
	remote bool
	closed bool

	offers        int
	restartOffers int
	answers       int
	rollbacks     int
	remoteSets    int
	candidates    []webrtc.ICECandidateInit
	earlyAdds     int
	tracks        []webrtc.TrackLocal
	replaced      map[webrtc.RTPCodecType]webrtc.TrackLocal
	addTrackErr   error
	replaceErr    error

	onCandidate func(*webrtc.ICECandidateInit)
	onICE       func(webrtc.ICEConnectionState)
}

func newFakePeer() *fakePeer {
	return &fakePeer{state: webrtc.SignalingStateStable, replaced: map[webrtc.RTPCodecType]webrtc.TrackLocal{}}
}

func (f *fakePeer) CreateOffer(iceRestart bool) (webrtc.SessionDescription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != webrtc.SignalingStateStable && f.state != webrtc.SignalingStateHaveLocalOffer {
		return webrtc.SessionDescription{}, fmt.Errorf("create offer in %s", f.state)
	}
	f.offers++
	if iceRestart {
		f.restartOffers++
	}
	f.state = webrtc.SignalingStateHaveLocalOffer
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: fmt.Sprintf("offer-%d", f.offers)}, nil
}

func (f *fakePeer) CreateAnswer() (webrtc.SessionDescription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != webrtc.SignalingStateHaveRemoteOffer {
		return webrtc.SessionDescription{}, fmt.Errorf("create answer in %s", f.state)
	}
	f.answers++
	f.state = webrtc.SignalingStateStable
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: fmt.Sprintf("answer-%d", f.answers)}, nil
}

func (f *fakePeer) SetRemoteDescription(d webrtc.SessionDescription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case d.Type == webrtc.SDPTypeOffer && f.state == webrtc.SignalingStateStable:
		f.state = webrtc.SignalingStateHaveRemoteOffer
	case d.Type == webrtc.SDPTypeAnswer && f.state == webrtc.SignalingStateHaveLocalOffer:
		f.state = webrtc.SignalingStateStable
	default:
		return fmt.Errorf("set remote %s in %s", d.Type, f.state)
	}
	f.remote = true
	f.remoteSets++
	return nil
}

func (f *fakePeer) Rollback() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != webrtc.SignalingStateHaveLocalOffer {
		return fmt.Errorf("rollback in %s", f.state)
	}
	f.rollbacks++
	f.state = webrtc.SignalingStateStable
	return nil
}

func (f *fakePeer) AddICECandidate(c webrtc.ICECandidateInit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.remote {
		f.earlyAdds++
		return errors.New("remote description not set")
	}
	f.candidates = append(f.candidates, c)
	return nil
}

func (f *fakePeer) SignalingState() webrtc.SignalingState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakePeer) HasRemoteDescription() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.remote
}

func (f *fakePeer) AddTrack(t webrtc.TrackLocal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addTrackErr != nil {
		return f.addTrackErr
	}
	f.tracks = append(f.tracks, t)
	return nil
}

func (f *fakePeer) ReplaceTrack(kind webrtc.RTPCodecType, t webrtc.TrackLocal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.replaceErr != nil {
		return f.replaceErr
	}
	f.replaced[kind] = t
	return nil
}

func (f *fakePeer) OnICECandidate(fn func(*webrtc.ICECandidateInit)) {
	f.mu.Lock()
	f.onCandidate = fn
	f.mu.Unlock()
}

func (f *fakePeer) OnICEConnectionStateChange(fn func(webrtc.ICEConnectionState)) {
	f.mu.Lock()
	f.onICE = fn
	f.mu.Unlock()
}

func (f *fakePeer) OnTrack(func(*webrtc.TrackRemote)) {}

func (f *fakePeer) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakePeer) fireICE(st webrtc.ICEConnectionState) {
	f.mu.Lock()
	fn := f.onICE
	f.mu.Unlock()
	fn(st)
}

func (f *fakePeer) gather(c string) {
	f.mu.Lock()
	fn := f.onCandidate
	f.mu.Unlock()
	fn(&webrtc.ICECandidateInit{Candidate: c})
}

func (f *fakePeer) get(fn func(*fakePeer) int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fn(f)
}

func (f *fakePeer) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeFactory struct {
	mu    sync.Mutex
	peers []*fakePeer
}

func (ff *fakeFactory) NewPeer() (PeerConn, error) {
	p := newFakePeer()
	ff.mu.Lock()
	ff.peers = append(ff.peers, p)
	ff.mu.Unlock()
	return p, nil
}

func (ff *fakeFactory) peer(i int) *fakePeer {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return ff.peers[i]
}

func (ff *fakeFactory) count() int {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return len(ff.peers)
}

// recordSignaler keeps every outbound message and, when deliver is set,
// hands it on.
type recordSignaler struct {
	mu      sync.Mutex
	msgs    []protocol.Message
	hold    bool
	held    []protocol.Message
	deliver func(protocol.Message)
}

func (r *recordSignaler) Send(m protocol.Message) error {
	r.mu.Lock()
	r.msgs = append(r.msgs, m)
	if r.hold {
		r.held = append(r.held, m)
		r.mu.Unlock()
		return nil
	}
	d := r.deliver
	r.mu.Unlock()
	if d != nil {
		d(m)
	}
	return nil
}

func (r *recordSignaler) setHold(h bool) {
	r.mu.Lock()
	r.hold = h
	var out []protocol.Message
	if !h {
		out, r.held = r.held, nil
	}
	d := r.deliver
	r.mu.Unlock()
	for _, m := range out {
		d(m)
	}
}

func (r *recordSignaler) heldCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.held)
}

func (r *recordSignaler) sent() []protocol.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]protocol.Message(nil), r.msgs...)
}

func (r *recordSignaler) count(t protocol.Type) int {
	n := 0
	for _, m := range r.sent() {
		if m.Type == t {
			n++
		}
	}
	return n
}

// toSession routes a relayed message into s as if the server had stamped it.
func toSession(s *Session) func(protocol.Message) {
	return func(m protocol.Message) {
		switch m.Type {
		case protocol.TypeOffer:
			d, _ := protocol.DecodeDescription(m.Description)
			s.HandleOffer(d)
		case protocol.TypeAnswer:
			d, _ := protocol.DecodeDescription(m.Description)
			s.HandleAnswer(d)
		case protocol.TypeICECandidate:
			c, _ := protocol.DecodeCandidate(m.Candidate)
			s.HandleCandidate(c)
		case protocol.TypeRenegotiateHint:
			h, _ := protocol.DecodeHint(m.Hint)
			s.HandleHint(h)
		}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func testSession(t *testing.T, peer domain.ConnID, role Role, opts Options, hooks sessionHooks) (*Session, *fakePeer, *recordSignaler) {
	t.Helper()
	pc := newFakePeer()
	sig := &recordSignaler{}
	s := newSession(peer, role, pc, sig, opts, hooks)
	if err := s.start(nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(s.Close)
	return s, pc, sig
}

// flush waits until everything already posted to s has run.
func flush(s *Session) {
	done := make(chan struct{})
	s.post(func() { close(done) })
	select {
	case <-done:
	case <-s.Done():
	}
}

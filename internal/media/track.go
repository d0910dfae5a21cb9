package media

import (
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"
	pmedia "github.com/pion/webrtc/v4/pkg/media"
	"golang.org/x/time/rate"
)

type TrackState int32

const (
	TrackStateOk TrackState = iota
	TrackStateMuted
	TrackStateStopped
)

// LocalTrack is an outgoing sample track shared by every peer session.
// Samples over the active preset's budget are dropped before they reach
// the packetizer.
type LocalTrack struct {
	*webrtc.TrackLocalStaticSample
	state atomic.Int32 // Zero by default (TrackStateOk)

	mu     sync.Mutex
	bytes  *rate.Limiter
	frames *rate.Limiter
	now    func() time.Time

	written atomic.Uint64
	dropped atomic.Uint64
}

func NewLocalTrack(codec webrtc.RTPCodecCapability, id, streamID string) (*LocalTrack, error) {
	t, err := webrtc.NewTrackLocalStaticSample(codec, id, streamID)
	if err != nil {
		return nil, err
	}
	return &LocalTrack{TrackLocalStaticSample: t, now: time.Now}, nil
}

func (t *LocalTrack) State() TrackState { return TrackState(t.state.Load()) }

func (t *LocalTrack) SetMuted(muted bool) {
	for {
		old := t.state.Load()
		if TrackState(old) == TrackStateStopped {
			return
		}
		next := TrackStateOk
		if muted {
			next = TrackStateMuted
		}
		if t.state.CompareAndSwap(old, int32(next)) {
			return
		}
	}
}

func (t *LocalTrack) Stop() { t.state.Store(int32(TrackStateStopped)) }

// SetCeiling applies the bitrate and, for video, frame-rate cap of p.
func (t *LocalTrack) SetCeiling(p Preset) {
	bitrate := p.AudioBitrate
	if t.Kind() == webrtc.RTPCodecTypeVideo {
		bitrate = p.VideoBitrate
	}
	perSecond := bitrate / 8

	t.mu.Lock()
	defer t.mu.Unlock()
	t.bytes = rate.NewLimiter(rate.Limit(perSecond), perSecond)
	t.frames = nil
	if t.Kind() == webrtc.RTPCodecTypeVideo && p.FrameRate > 0 {
		t.frames = rate.NewLimiter(rate.Limit(p.FrameRate), 1)
	}
}

// WriteSample forwards s unless the track is muted or over budget.
func (t *LocalTrack) WriteSample(s pmedia.Sample) error {
	switch t.State() {
	case TrackStateStopped:
		return io.ErrClosedPipe
	case TrackStateMuted:
		return nil
	}
	if !t.allow(len(s.Data)) {
		t.dropped.Add(1)
		return nil
	}
	t.written.Add(1)
	return t.TrackLocalStaticSample.WriteSample(s)
}

func (t *LocalTrack) allow(n int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	if t.frames != nil && !t.frames.AllowN(now, 1) {
		return false
	}
	if t.bytes == nil {
		return true
	}
	if b := t.bytes.Burst(); n > b {
		n = b
	}
	return t.bytes.AllowN(now, n)
}

// Counters reports samples written and dropped by the ceiling.
func (t *LocalTrack) Counters() (written, dropped uint64) {
	return t.written.Load(), t.dropped.Load()
}

package media

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/Mesh/internal/domain"
	"github.com/dkeye/Mesh/internal/protocol"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"
)

//go:generate mockgen -destination=mock_target_test.go -package=media github.com/dkeye/Mesh/internal/media Target

var ErrSuperseded = errors.New("acquisition superseded")

// Target is one peer session whose outgoing tracks the controller swaps.
type Target interface {
	Peer() domain.ConnID
	ReplaceTrack(kind webrtc.RTPCodecType, track webrtc.TrackLocal) error
}

type Sender interface {
	Send(protocol.Message) error
}

// Controller owns the local stream and keeps every session fed with it.
type Controller struct {
	src     Source
	targets func() []Target
	out     Sender

	mu       sync.Mutex
	gen      uint64
	cancel   context.CancelFunc
	stream   *Stream
	devices  Devices
	preset   Preset
	muted    bool
	videoOff bool
}

func NewController(src Source, targets func() []Target, out Sender) *Controller {
	p, _ := Lookup(DefaultPreset)
	return &Controller{src: src, targets: targets, out: out, preset: p}
}

// LocalTracks returns the tracks new sessions start with.
func (c *Controller) LocalTracks() []webrtc.TrackLocal {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream == nil {
		return nil
	}
	return c.stream.Tracks()
}

func (c *Controller) Preset() Preset {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.preset
}

func (c *Controller) Devices() Devices {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.devices
}

// Apply acquires media for d at preset p and swaps it into every session.
// A later Apply cancels one still acquiring. If acquisition fails the
// current stream stays in place.
func (c *Controller) Apply(ctx context.Context, d Devices, p Preset) error {
	c.mu.Lock()
	c.gen++
	gen := c.gen
	if c.cancel != nil {
		c.cancel()
	}
	actx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()
	defer cancel()

	stream, err := c.src.Acquire(actx, d, p)

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		if stream != nil {
			stream.Stop()
		}
		return ErrSuperseded
	}
	c.cancel = nil
	if err != nil {
		c.mu.Unlock()
		log.Warn().Str("module", "media").Err(err).Msg("acquire failed, keeping current media")
		return fmt.Errorf("acquire: %w", err)
	}
	old := c.stream
	c.stream, c.devices, c.preset = stream, d, p
	if stream.Audio != nil {
		stream.Audio.SetMuted(c.muted)
	}
	if stream.Video != nil {
		stream.Video.SetMuted(c.videoOff)
	}
	c.mu.Unlock()
	stream.SetCeiling(p)

	err = c.replaceAll(stream, p)
	if old != nil {
		old.Stop()
	}
	return err
}

// replaceAll swaps stream into every session concurrently. A failing
// session does not stop the others; their errors are joined.
func (c *Controller) replaceAll(stream *Stream, p Preset) error {
	targets := c.targets()
	if len(targets) == 0 {
		return nil
	}
	var kinds []string
	for _, t := range stream.Tracks() {
		kinds = append(kinds, t.Kind().String())
	}

	wp := pool.New().WithErrors()
	for _, t := range targets {
		wp.Go(func() error {
			for _, track := range stream.Tracks() {
				if err := t.ReplaceTrack(track.Kind(), track); err != nil {
					log.Warn().Str("module", "media").Str("peer", string(t.Peer())).Err(err).Msg("replace track")
					return fmt.Errorf("peer %s: %w", t.Peer(), err)
				}
			}
			msg, err := protocol.RenegotiateHint(t.Peer(), protocol.Hint{
				Reason: protocol.HintTrackReplaced,
				Kinds:  kinds,
				Preset: p.Name,
			})
			if err == nil {
				err = c.out.Send(msg)
			}
			if err != nil {
				log.Debug().Str("module", "media").Str("peer", string(t.Peer())).Err(err).Msg("hint not sent")
			}
			return nil
		})
	}
	return wp.Wait()
}

// SetPreset changes the ceiling without reacquiring.
func (c *Controller) SetPreset(p Preset) {
	c.mu.Lock()
	c.preset = p
	s := c.stream
	c.mu.Unlock()
	if s != nil {
		s.SetCeiling(p)
	}
}

// Reapply re-applies the active ceiling. Safe to call on every connect.
func (c *Controller) Reapply() {
	c.SetPreset(c.Preset())
}

func (c *Controller) SetMuted(muted bool) error {
	c.mu.Lock()
	c.muted = muted
	if c.stream != nil && c.stream.Audio != nil {
		c.stream.Audio.SetMuted(muted)
	}
	c.mu.Unlock()
	return c.out.Send(protocol.Message{Type: protocol.TypeToggleMic, IsMuted: &muted})
}

func (c *Controller) SetVideoOff(off bool) error {
	c.mu.Lock()
	c.videoOff = off
	if c.stream != nil && c.stream.Video != nil {
		c.stream.Video.SetMuted(off)
	}
	c.mu.Unlock()
	return c.out.Send(protocol.Message{Type: protocol.TypeToggleVideo, IsVideoOff: &off})
}

func (c *Controller) Muted() (audio, video bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.muted, c.videoOff
}

// Close cancels any acquisition and releases the local stream.
func (c *Controller) Close() {
	c.mu.Lock()
	c.gen++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	s := c.stream
	c.stream = nil
	c.mu.Unlock()
	if s != nil {
		s.Stop()
	}
}

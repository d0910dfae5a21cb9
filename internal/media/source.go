package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	pmedia "github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
	"github.com/rs/zerolog/log"
)

var ErrDeviceUnavailable = errors.New("media device unavailable")

const (
	oggPageDuration = 20 * time.Millisecond
	opusSampleRate  = 48000
	streamID        = "mesh-local"
)

// Devices names the capture device per kind. Empty means no device.
type Devices struct {
	Video string
	Audio string
}

// Stream is one acquisition: at most one track per kind plus whatever
// feeds them.
type Stream struct {
	Video *LocalTrack
	Audio *LocalTrack

	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

func (s *Stream) Tracks() []webrtc.TrackLocal {
	var out []webrtc.TrackLocal
	if s.Video != nil {
		out = append(out, s.Video)
	}
	if s.Audio != nil {
		out = append(out, s.Audio)
	}
	return out
}

func (s *Stream) Track(kind webrtc.RTPCodecType) *LocalTrack {
	if kind == webrtc.RTPCodecTypeVideo {
		return s.Video
	}
	return s.Audio
}

func (s *Stream) SetCeiling(p Preset) {
	for _, t := range []*LocalTrack{s.Video, s.Audio} {
		if t != nil {
			t.SetCeiling(p)
		}
	}
}

// Stop releases the stream's tracks and waits for its feeders to exit.
func (s *Stream) Stop() {
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		for _, t := range []*LocalTrack{s.Video, s.Audio} {
			if t != nil {
				t.Stop()
			}
		}
		s.wg.Wait()
	})
}

// Source acquires local media. Acquire may block and must honour ctx.
type Source interface {
	Acquire(ctx context.Context, d Devices, p Preset) (*Stream, error)
}

// FileSource plays IVF (VP8) video and Ogg/Opus audio files as if they
// were capture devices. The device id is the file path.
type FileSource struct {
	Loop bool
}

func (fs FileSource) Acquire(ctx context.Context, d Devices, p Preset) (*Stream, error) {
	var video, audio *os.File
	closeAll := func() {
		for _, f := range []*os.File{video, audio} {
			if f != nil {
				_ = f.Close()
			}
		}
	}
	var err error
	if d.Video != "" {
		if video, err = os.Open(d.Video); err != nil {
			return nil, fmt.Errorf("%w: video %s: %v", ErrDeviceUnavailable, d.Video, err)
		}
	}
	if d.Audio != "" {
		if audio, err = os.Open(d.Audio); err != nil {
			closeAll()
			return nil, fmt.Errorf("%w: audio %s: %v", ErrDeviceUnavailable, d.Audio, err)
		}
	}
	if err := ctx.Err(); err != nil {
		closeAll()
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s := &Stream{cancel: cancel}
	if video != nil {
		ivf, header, err := ivfreader.NewWith(video)
		if err != nil {
			closeAll()
			cancel()
			return nil, fmt.Errorf("%w: video %s: %v", ErrDeviceUnavailable, d.Video, err)
		}
		if s.Video, err = NewLocalTrack(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", streamID); err != nil {
			closeAll()
			cancel()
			return nil, err
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer video.Close()
			fs.pumpIVF(runCtx, s.Video, video, ivf, header)
		}()
	}
	if audio != nil {
		ogg, _, err := oggreader.NewWith(audio)
		if err != nil {
			s.Stop()
			_ = audio.Close()
			return nil, fmt.Errorf("%w: audio %s: %v", ErrDeviceUnavailable, d.Audio, err)
		}
		if s.Audio, err = NewLocalTrack(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", streamID); err != nil {
			s.Stop()
			_ = audio.Close()
			return nil, err
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer audio.Close()
			fs.pumpOgg(runCtx, s.Audio, audio, ogg)
		}()
	}
	s.SetCeiling(p)
	log.Info().Str("module", "media").Str("video", d.Video).Str("audio", d.Audio).Str("preset", p.Name).Msg("stream acquired")
	return s, nil
}

func (fs FileSource) pumpIVF(ctx context.Context, t *LocalTrack, f *os.File, ivf *ivfreader.IVFReader, h *ivfreader.IVFFileHeader) {
	interval := time.Second / 30
	if h.TimebaseDenominator != 0 {
		interval = time.Duration(float64(time.Second) * float64(h.TimebaseNumerator) / float64(h.TimebaseDenominator))
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		frame, _, err := ivf.ParseNextFrame()
		if errors.Is(err, io.EOF) && fs.Loop {
			if _, err = f.Seek(0, io.SeekStart); err == nil {
				ivf, _, err = ivfreader.NewWith(f)
			}
			if err == nil {
				continue
			}
		}
		if err != nil {
			log.Debug().Str("module", "media").Err(err).Msg("video source ended")
			return
		}
		if err := t.WriteSample(pmedia.Sample{Data: frame, Duration: interval}); err != nil {
			return
		}
	}
}

func (fs FileSource) pumpOgg(ctx context.Context, t *LocalTrack, f *os.File, ogg *oggreader.OggReader) {
	var lastGranule uint64
	ticker := time.NewTicker(oggPageDuration)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		page, header, err := ogg.ParseNextPage()
		if errors.Is(err, io.EOF) && fs.Loop {
			if _, err = f.Seek(0, io.SeekStart); err == nil {
				ogg, _, err = oggreader.NewWith(f)
				lastGranule = 0
			}
			if err == nil {
				continue
			}
		}
		if err != nil {
			log.Debug().Str("module", "media").Err(err).Msg("audio source ended")
			return
		}
		samples := header.GranulePosition - lastGranule
		lastGranule = header.GranulePosition
		d := time.Duration(float64(samples) / opusSampleRate * float64(time.Second))
		if err := t.WriteSample(pmedia.Sample{Data: page, Duration: d}); err != nil {
			return
		}
	}
}

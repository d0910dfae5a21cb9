package media

import (
	"context"
	"sync"

	"github.com/dkeye/Mesh/internal/domain"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

type SinkStats struct {
	Packets uint64
	Bytes   uint64
	// Lost counts sequence numbers skipped between received packets.
	Lost uint64
	// LastSeq is the newest sequence number of the most recent track.
	LastSeq uint16
}

// RemoteSink drains remote tracks and keeps receive counters per peer.
type RemoteSink struct {
	mu    sync.RWMutex
	stats map[domain.ConnID]*SinkStats
}

func NewRemoteSink() *RemoteSink {
	return &RemoteSink{stats: make(map[domain.ConnID]*SinkStats)}
}

// DrainTrack reads t until it ends or ctx is done.
func (s *RemoteSink) DrainTrack(ctx context.Context, peer domain.ConnID, t *webrtc.TrackRemote) error {
	return s.Drain(ctx, peer, func() (*rtp.Packet, error) {
		pkt, _, err := t.ReadRTP()
		return pkt, err
	})
}

func (s *RemoteSink) Drain(ctx context.Context, peer domain.ConnID, read func() (*rtp.Packet, error)) error {
	logger := log.With().Str("module", "media").Str("peer", string(peer)).Logger()
	var (
		last uint16
		seen bool
	)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		pkt, err := read()
		if err != nil {
			logger.Debug().Err(err).Msg("remote track ended")
			return err
		}
		var lost uint64
		if seen {
			// uint16 arithmetic handles wraparound; a backwards step is reordering.
			gap := pkt.SequenceNumber - last
			if gap >= 0x8000 || gap == 0 {
				s.record(peer, pkt, 0, false)
				continue
			}
			lost = uint64(gap - 1)
		}
		last, seen = pkt.SequenceNumber, true
		s.record(peer, pkt, lost, true)
	}
}

func (s *RemoteSink) record(peer domain.ConnID, pkt *rtp.Packet, lost uint64, advance bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats[peer]
	if st == nil {
		st = &SinkStats{}
		s.stats[peer] = st
	}
	st.Packets++
	st.Bytes += uint64(len(pkt.Payload))
	st.Lost += lost
	if advance {
		st.LastSeq = pkt.SequenceNumber
	}
}

func (s *RemoteSink) Stats(peer domain.ConnID) (SinkStats, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.stats[peer]
	if !ok {
		return SinkStats{}, false
	}
	return *st, true
}

func (s *RemoteSink) Forget(peer domain.ConnID) {
	s.mu.Lock()
	delete(s.stats, peer)
	s.mu.Unlock()
}

// Snapshot copies the counters of every peer still tracked.
func (s *RemoteSink) Snapshot() map[domain.ConnID]SinkStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[domain.ConnID]SinkStats, len(s.stats))
	for peer, st := range s.stats {
		out[peer] = *st
	}
	return out
}

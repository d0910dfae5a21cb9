package media

import (
	"context"
	"io"
	"testing"

	"github.com/pion/rtp"
)

func packets(seqs ...uint16) func() (*rtp.Packet, error) {
	i := 0
	return func() (*rtp.Packet, error) {
		if i == len(seqs) {
			return nil, io.EOF
		}
		p := &rtp.Packet{Header: rtp.Header{SequenceNumber: seqs[i]}, Payload: make([]byte, 10)}
		i++
		return p, nil
	}
}

func TestRemoteSinkCountsGaps(t *testing.T) {
	s := NewRemoteSink()
	err := s.Drain(context.Background(), "peer", packets(65533, 65534, 65535, 2, 3, 1))
	if err != io.EOF {
		t.Fatalf("err=%v, want EOF", err)
	}
	st, ok := s.Stats("peer")
	if !ok {
		t.Fatalf("no stats")
	}
	// 0 and 1 skipped across the wrap; the late 1 is reordering, not loss.
	if st.Packets != 6 || st.Bytes != 60 || st.Lost != 2 || st.LastSeq != 3 {
		t.Fatalf("stats=%+v", st)
	}

	s.Forget("peer")
	if _, ok := s.Stats("peer"); ok {
		t.Fatalf("stats kept after Forget")
	}
}

func TestRemoteSinkStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewRemoteSink()
	if err := s.Drain(ctx, "peer", packets(1, 2)); err != context.Canceled {
		t.Fatalf("err=%v", err)
	}
}

func TestRemoteSinkSnapshotIsACopy(t *testing.T) {
	s := NewRemoteSink()
	_ = s.Drain(context.Background(), "a", packets(1, 2))
	_ = s.Drain(context.Background(), "b", packets(7))

	snap := s.Snapshot()
	if len(snap) != 2 || snap["a"].Packets != 2 || snap["b"].Packets != 1 {
		t.Fatalf("snapshot=%+v", snap)
	}
	_ = s.Drain(context.Background(), "a", packets(3))
	if snap["a"].Packets != 2 {
		t.Fatalf("snapshot changed after more packets")
	}
}

package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/dkeye/Mesh/internal/domain"
)

// Behaviour every Ledger backend shares. Each backend's test file runs these
// against its own constructor.

func testConcurrentJoinsRespectCapacity(t *testing.T, newLedger func(*testing.T) Ledger) {
	for _, capacity := range []int{2, 3, 6} {
		t.Run(fmt.Sprintf("capacity=%d", capacity), func(t *testing.T) {
			l := newLedger(t)
			ctx := context.Background()
			r, err := l.Create(ctx, "race", capacity, "owner")
			if err != nil {
				t.Fatalf("Create: %v", err)
			}

			const k = 40
			var ok, full atomic.Int32
			var wg sync.WaitGroup
			start := make(chan struct{})
			for i := 0; i < k; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					<-start
					_, err := l.Join(ctx, r.ID, participant(fmt.Sprintf("u%d", i)))
					switch {
					case err == nil:
						ok.Add(1)
					case errors.Is(err, domain.ErrRoomFull):
						full.Add(1)
					default:
						t.Errorf("Join: unexpected err %v", err)
					}
				}(i)
			}
			close(start)
			wg.Wait()

			if int(ok.Load()) != capacity {
				t.Fatalf("successful joins=%d, want %d", ok.Load(), capacity)
			}
			if int(full.Load()) != k-capacity {
				t.Fatalf("room-full=%d, want %d", full.Load(), k-capacity)
			}
			got, err := l.Get(ctx, r.ID)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if len(got.Participants) != capacity {
				t.Fatalf("participants=%d, want %d", len(got.Participants), capacity)
			}
		})
	}
}

func testEmptyRoomIsDeleted(t *testing.T, newLedger func(*testing.T) Ledger) {
	l := newLedger(t)
	ctx := context.Background()
	r, _ := l.Create(ctx, "r", 3, "a")

	for _, u := range []string{"a", "b"} {
		if _, err := l.Join(ctx, r.ID, participant(u)); err != nil {
			t.Fatalf("Join(%s): %v", u, err)
		}
	}

	res, err := l.Leave(ctx, r.ID, "a", "conn-a")
	if err != nil {
		t.Fatalf("Leave(a): %v", err)
	}
	if !res.Removed || res.Deleted {
		t.Fatalf("Leave(a)=%+v, want removed and not deleted", res)
	}

	res, err = l.Leave(ctx, r.ID, "b", "conn-b")
	if err != nil {
		t.Fatalf("Leave(b): %v", err)
	}
	if !res.Deleted {
		t.Fatalf("Leave(b).Deleted=false, want true")
	}
	if _, err := l.Get(ctx, r.ID); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("Get after last leave err=%v, want ErrRoomNotFound", err)
	}
	rooms, _ := l.List(ctx)
	if len(rooms) != 0 {
		t.Fatalf("List=%d rooms, want 0", len(rooms))
	}
}

func testReconnectReplacesConnection(t *testing.T, newLedger func(*testing.T) Ledger) {
	l := newLedger(t)
	ctx := context.Background()
	r, _ := l.Create(ctx, "r", 2, "a")

	first, err := l.Join(ctx, r.ID, participant("a"))
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if first.Reconnected {
		t.Fatalf("first join reported as reconnect")
	}

	again := participant("a")
	again.ConnID = "conn-a-2"
	res, err := l.Join(ctx, r.ID, again)
	if err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if !res.Reconnected || res.PreviousConn != "conn-a" {
		t.Fatalf("rejoin=%+v, want reconnected from conn-a", res)
	}
	if len(res.Room.Participants) != 1 {
		t.Fatalf("participants=%d, want 1", len(res.Room.Participants))
	}
	if res.Room.Version <= first.Room.Version {
		t.Fatalf("version %d not bumped past %d", res.Room.Version, first.Room.Version)
	}

	// The old socket's disconnect must not remove the reconnected entry.
	lr, err := l.Leave(ctx, r.ID, "a", "conn-a")
	if err != nil {
		t.Fatalf("stale Leave: %v", err)
	}
	if lr.Removed {
		t.Fatalf("stale Leave removed the reconnected entry")
	}
	got, _ := l.Get(ctx, r.ID)
	if p, ok := got.Find("a"); !ok || p.ConnID != "conn-a-2" {
		t.Fatalf("participant=%+v ok=%v, want conn-a-2", p, ok)
	}
}

func testFullRoomRejectsWithoutChange(t *testing.T, newLedger func(*testing.T) Ledger) {
	l := newLedger(t)
	ctx := context.Background()
	r, _ := l.Create(ctx, "pair", 2, "a")
	_, _ = l.Join(ctx, r.ID, participant("a"))
	before, _ := l.Join(ctx, r.ID, participant("b"))

	if _, err := l.Join(ctx, r.ID, participant("c")); !errors.Is(err, domain.ErrRoomFull) {
		t.Fatalf("Join(c) err=%v, want ErrRoomFull", err)
	}
	after, _ := l.Get(ctx, r.ID)
	if after.Version != before.Room.Version || len(after.Participants) != 2 {
		t.Fatalf("room changed by rejected join: %+v", after)
	}
	if _, err := l.Join(ctx, "missing", participant("c")); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("Join(missing) err=%v, want ErrRoomNotFound", err)
	}
}

package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dkeye/Mesh/internal/domain"
)

func participant(user string) domain.Participant {
	return domain.Participant{
		UserID:   domain.UserID(user),
		Username: user,
		ConnID:   domain.ConnID("conn-" + user),
	}
}

func TestMemoryCreateDefaults(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()

	r, err := l.Create(ctx, "  standup  ", 0, "owner")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if r.Capacity != domain.DefaultCapacity {
		t.Fatalf("Capacity=%d, want %d", r.Capacity, domain.DefaultCapacity)
	}
	if r.Name != "standup" {
		t.Fatalf("Name=%q, want %q", r.Name, "standup")
	}
	if _, err := l.Create(ctx, "x", 1, "owner"); !errors.Is(err, domain.ErrInvalidCapacity) {
		t.Fatalf("Create(capacity=1) err=%v, want ErrInvalidCapacity", err)
	}
	if _, err := l.Create(ctx, "   ", 4, "owner"); !errors.Is(err, domain.ErrRoomNameEmpty) {
		t.Fatalf("Create(blank) err=%v, want ErrRoomNameEmpty", err)
	}
}

func newMemory(*testing.T) Ledger { return NewMemoryLedger() }

func TestMemoryConcurrentJoinsRespectCapacity(t *testing.T) {
	testConcurrentJoinsRespectCapacity(t, newMemory)
}

func TestMemoryEmptyRoomIsDeleted(t *testing.T) { testEmptyRoomIsDeleted(t, newMemory) }

func TestMemoryReconnectReplacesConnection(t *testing.T) {
	testReconnectReplacesConnection(t, newMemory)
}

func TestMemoryFullRoomRejectsWithoutChange(t *testing.T) {
	testFullRoomRejectsWithoutChange(t, newMemory)
}

func TestMemoryDeleteRequiresCreator(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()
	r, _ := l.Create(ctx, "r", 4, "owner")
	_, _ = l.Join(ctx, r.ID, participant("guest"))

	if _, err := l.Delete(ctx, r.ID, "guest"); !errors.Is(err, domain.ErrNotAuthorized) {
		t.Fatalf("Delete(guest) err=%v, want ErrNotAuthorized", err)
	}
	deleted, err := l.Delete(ctx, r.ID, "owner")
	if err != nil {
		t.Fatalf("Delete(owner): %v", err)
	}
	if len(deleted.Participants) != 1 {
		t.Fatalf("deleted snapshot participants=%d, want 1", len(deleted.Participants))
	}
	if _, err := l.Get(ctx, r.ID); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("Get after delete err=%v", err)
	}
}

func TestMemorySetFlagsAndUpdate(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()
	r, _ := l.Create(ctx, "r", 3, "owner")
	_, _ = l.Join(ctx, r.ID, participant("owner"))
	_, _ = l.Join(ctx, r.ID, participant("b"))

	muted := true
	room, err := l.SetFlags(ctx, r.ID, "b", Flags{Muted: &muted})
	if err != nil {
		t.Fatalf("SetFlags: %v", err)
	}
	if p, _ := room.Find("b"); !p.IsMuted || p.IsVideoOff {
		t.Fatalf("flags=%+v, want muted only", p)
	}
	if _, err := l.SetFlags(ctx, r.ID, "nobody", Flags{Muted: &muted}); !errors.Is(err, domain.ErrNotAuthorized) {
		t.Fatalf("SetFlags(nobody) err=%v", err)
	}

	two := 2
	if _, err := l.Update(ctx, r.ID, "b", RoomPatch{Capacity: &two}); !errors.Is(err, domain.ErrNotAuthorized) {
		t.Fatalf("Update by non-creator err=%v", err)
	}
	name := "renamed"
	room, err = l.Update(ctx, r.ID, "owner", RoomPatch{Name: &name, Capacity: &two})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if room.Name != name || room.Capacity != 2 {
		t.Fatalf("room=%+v", room)
	}
	if _, err := l.Join(ctx, r.ID, participant("c")); !errors.Is(err, domain.ErrRoomFull) {
		t.Fatalf("Join past updated capacity err=%v, want ErrRoomFull", err)
	}

	three := 3
	if _, err := l.Update(ctx, r.ID, "owner", RoomPatch{Capacity: &three}); err != nil {
		t.Fatalf("Update grow: %v", err)
	}
	if _, err := l.Join(ctx, r.ID, participant("c")); err != nil {
		t.Fatalf("Join(c): %v", err)
	}
	if _, err := l.Update(ctx, r.ID, "owner", RoomPatch{Capacity: &two}); !errors.Is(err, domain.ErrInvalidCapacity) {
		t.Fatalf("shrink below count err=%v, want ErrInvalidCapacity", err)
	}
}

func TestMemoryListNewestFirst(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var tick int
	l.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	a, _ := l.Create(ctx, "a", 2, "u")
	b, _ := l.Create(ctx, "b", 2, "u")

	rooms, err := l.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(rooms) != 2 || rooms[0].ID != b.ID || rooms[1].ID != a.ID {
		t.Fatalf("List order=%v, want [b a]", rooms)
	}
}

package client

import (
	"testing"

	"github.com/dkeye/Mesh/internal/domain"
	"github.com/dkeye/Mesh/internal/protocol"
)

func TestLobbyIgnoresStaleVersions(t *testing.T) {
	l := NewLobbyView()
	l.Reset([]domain.RoomSummary{{ID: "r1", Count: 1, Version: 3, CreatedAt: 1}})

	if l.Apply(protocol.RoomUpdated(domain.RoomSummary{ID: "r1", Count: 0, Version: 2})) {
		t.Fatalf("stale update applied")
	}
	if !l.Apply(protocol.RoomUpdated(domain.RoomSummary{ID: "r1", Count: 2, Version: 4, CreatedAt: 1})) {
		t.Fatalf("fresh update rejected")
	}
	if s, _ := l.Get("r1"); s.Count != 2 {
		t.Fatalf("count=%d, want 2", s.Count)
	}

	if !l.Apply(protocol.RoomDeleted("r1", 5)) {
		t.Fatalf("delete rejected")
	}
	// An update overtaken by the delete must not resurrect the room.
	if l.Apply(protocol.RoomUpdated(domain.RoomSummary{ID: "r1", Count: 1, Version: 4})) {
		t.Fatalf("room resurrected by stale update")
	}
	if len(l.Rooms()) != 0 {
		t.Fatalf("rooms=%+v", l.Rooms())
	}
}

func TestLobbyOrdersNewestFirst(t *testing.T) {
	l := NewLobbyView()
	l.Apply(protocol.RoomUpdated(domain.RoomSummary{ID: "old", CreatedAt: 10, Version: 1}))
	l.Apply(protocol.RoomUpdated(domain.RoomSummary{ID: "new", CreatedAt: 20, Version: 1}))
	rooms := l.Rooms()
	if len(rooms) != 2 || rooms[0].ID != "new" {
		t.Fatalf("rooms=%+v", rooms)
	}
}

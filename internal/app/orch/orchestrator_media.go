package orch

import (
	"context"
	"fmt"

	"github.com/dkeye/Mesh/internal/domain"
	"github.com/dkeye/Mesh/internal/ledger"
	"github.com/dkeye/Mesh/internal/protocol"
	"github.com/rs/zerolog/log"
)

type MediaKind string

const (
	MediaAudio MediaKind = "audio"
	MediaVideo MediaKind = "video"
)

// ToggleMedia records a participant's mute or video-off flag and tells the
// rest of the room. The flag is advisory: it does not touch any media path.
func (o *Orchestrator) ToggleMedia(ctx context.Context, conn domain.ConnID, kind MediaKind, value bool) error {
	entry, ok := o.Registry.Get(conn)
	if !ok {
		return ErrUnknownConn
	}
	if entry.Room == "" {
		return ErrNotInRoom
	}

	var f ledger.Flags
	switch kind {
	case MediaAudio:
		f.Muted = &value
	case MediaVideo:
		f.VideoOff = &value
	default:
		return fmt.Errorf("toggle media: unknown kind %q", kind)
	}

	room, err := o.Ledger.SetFlags(ctx, entry.Room, entry.User, f)
	if err != nil {
		return err
	}
	self, ok := room.Find(entry.User)
	if !ok {
		return ErrNotInRoom
	}
	var msg protocol.Message
	if kind == MediaAudio {
		msg = protocol.MicToggled(room.ID, self)
	} else {
		msg = protocol.VideoToggled(room.ID, self)
	}
	o.Notify.SendRoom(room.ID, conn, msg)
	log.Debug().Str("module", "orch").Str("conn", string(conn)).Str("kind", string(kind)).Bool("value", value).Msg("media toggled")
	return nil
}

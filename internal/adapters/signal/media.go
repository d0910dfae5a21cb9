package signal

import (
	"context"

	"github.com/dkeye/Mesh/internal/app/orch"
	"github.com/dkeye/Mesh/internal/protocol"
)

func (ctl *SignalWSController) handleToggle(ctx context.Context, s *session, msg protocol.Message) {
	var err error
	switch msg.Type {
	case protocol.TypeToggleMic:
		err = ctl.Orch.ToggleMedia(ctx, s.conn, orch.MediaAudio, *msg.IsMuted)
	case protocol.TypeToggleVideo:
		err = ctl.Orch.ToggleMedia(ctx, s.conn, orch.MediaVideo, *msg.IsVideoOff)
	}
	if err != nil {
		ctl.sendJSON(s.ws, protocol.Error(orch.ErrorCode(err), err.Error()))
	}
}

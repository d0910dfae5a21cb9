package signal

import (
	"context"

	"github.com/dkeye/Mesh/internal/app/orch"
	"github.com/dkeye/Mesh/internal/domain"
	"github.com/dkeye/Mesh/internal/protocol"
	"github.com/rs/zerolog/log"
)

const defaultUsername = "guest"

// identity returns the user a message speaks for: the id it names, or the
// connection's client token when it names none.
func (s *session) identity(msg protocol.Message) domain.UserID {
	if msg.UserID != "" {
		return msg.UserID
	}
	return domain.UserID(s.token)
}

func (ctl *SignalWSController) handleJoin(ctx context.Context, s *session, msg protocol.Message) {
	user := s.identity(msg)
	if !ctl.Limiter.Allow(user) {
		log.Warn().Str("module", "signal").Str("user", string(user)).Msg("join rate limited")
		ctl.sendJSON(s.ws, protocol.Error(protocol.CodeRateLimited, "too many join attempts"))
		return
	}
	name := msg.Username
	if name == "" {
		name = defaultUsername
	}

	log.Info().Str("module", "signal").Str("conn", string(s.conn)).Str("room", string(msg.RoomID)).Str("user", string(user)).Msg("join")
	if err := ctl.Orch.Join(ctx, s.conn, msg.RoomID, user, name); err != nil {
		ctl.sendJSON(s.ws, protocol.Error(orch.ErrorCode(err), err.Error()))
	}
}

func (ctl *SignalWSController) handleLeave(ctx context.Context, s *session) {
	log.Info().Str("module", "signal").Str("conn", string(s.conn)).Msg("leave")
	if err := ctl.Orch.Leave(ctx, s.conn); err != nil {
		ctl.sendJSON(s.ws, protocol.Error(orch.ErrorCode(err), err.Error()))
	}
}

package orch

import (
	"github.com/dkeye/Mesh/internal/domain"
	"github.com/dkeye/Mesh/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Forward relays a peer-to-peer signaling message from one connection to
// the connection named in msg.To. The payload is passed through untouched.
// Messages to unknown connections, or to connections outside the sender's
// room, are dropped.
func (o *Orchestrator) Forward(from domain.ConnID, msg protocol.Message) bool {
	if !msg.Type.Relayed() {
		return false
	}
	to := msg.To
	src, ok := o.Registry.Get(from)
	if !ok || src.Room == "" {
		log.Debug().Str("module", "orch.relay").Str("from", string(from)).Str("type", string(msg.Type)).Msg("sender not in a room, dropped")
		return false
	}
	dst, ok := o.Registry.Get(to)
	if !ok || dst.Room != src.Room {
		log.Debug().Str("module", "orch.relay").Str("from", string(from)).Str("to", string(to)).Str("type", string(msg.Type)).Msg("destination gone, dropped")
		return false
	}

	msg.From = from
	msg.To = ""
	return o.Notify.SendTo(to, msg)
}

package signal

import "github.com/dkeye/Mesh/internal/protocol"

// handleRelay passes offer, answer, candidate and hint messages to their
// destination. A miss is not reported back to the sender.
func (ctl *SignalWSController) handleRelay(s *session, msg protocol.Message) {
	if msg.To == "" {
		ctl.sendJSON(s.ws, protocol.Error(protocol.CodeBadPayload, "missing destination"))
		return
	}
	ctl.Orch.Forward(s.conn, msg)
}

package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dkeye/Mesh/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.Cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.Cfg.WriteWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ctl.Cfg.WriteWait)); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump ping failed")
				return
			}
		}
	}
}

// readPump owns the connection's lifetime: when it returns, the connection
// leaves its room and is forgotten. A peer that stops answering pings is
// dropped after PongWait.
func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, s *session) {
	defer func() {
		log.Info().Str("module", "signal").Str("conn", string(s.conn)).Msg("readPump closing")
		cancel()
		s.ws.Close()
		ctl.Orch.Disconnect(context.Background(), s.conn)
	}()

	extend := func() error {
		return s.ws.conn.SetReadDeadline(time.Now().Add(ctl.Cfg.PongWait))
	}
	_ = extend()
	s.ws.conn.SetPongHandler(func(string) error { return extend() })

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Str("conn", string(s.conn)).Msg("readPump ctx done")
			return
		default:
			_, data, err := s.ws.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Warn().Err(err).Str("module", "signal").Str("conn", string(s.conn)).Msg("readPump read error")
				}
				return
			}
			_ = extend()
			ctl.handleSignal(ctx, s, data)
		}
	}
}

func (ctl *SignalWSController) handleSignal(ctx context.Context, s *session, data []byte) {
	msg, err := protocol.Parse(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(s.conn)).Msg("bad message")
		ctl.sendJSON(s.ws, protocol.Error(protocol.CodeBadPayload, err.Error()))
		return
	}

	switch msg.Type {
	case protocol.TypeJoinRoom:
		ctl.handleJoin(ctx, s, msg)
	case protocol.TypeLeaveRoom:
		ctl.handleLeave(ctx, s)
	case protocol.TypeToggleMic, protocol.TypeToggleVideo:
		ctl.handleToggle(ctx, s, msg)
	case protocol.TypePing:
		ctl.handlePing(s.ws)
	case protocol.TypeOffer, protocol.TypeAnswer, protocol.TypeICECandidate, protocol.TypeRenegotiateHint:
		ctl.handleRelay(s, msg)
	default:
		log.Warn().Str("module", "signal").Str("type", string(msg.Type)).Msg("unexpected message from client")
		ctl.sendJSON(s.ws, protocol.Error(protocol.CodeBadPayload, "unexpected message type"))
	}
}

func (ctl *SignalWSController) sendJSON(c *WsSignalConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}

package app

import (
	"encoding/json"
	"errors"

	"github.com/dkeye/Mesh/internal/core"
	"github.com/dkeye/Mesh/internal/domain"
	"github.com/rs/zerolog/log"
)

// Notifier encodes messages once and fans them out to registered
// connections, applying Policy on backpressure.
type Notifier struct {
	Registry *Registry
	Policy   Policy
}

func NewNotifier(reg *Registry, policy Policy) *Notifier {
	return &Notifier{Registry: reg, Policy: policy}
}

func encode(v any) (core.Frame, bool) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.notifier").Msg("marshal")
		return nil, false
	}
	return b, true
}

// SendTo delivers v to a single connection. It reports whether the frame
// was queued.
func (n *Notifier) SendTo(conn domain.ConnID, v any) bool {
	e, ok := n.Registry.Get(conn)
	if !ok {
		return false
	}
	f, ok := encode(v)
	if !ok {
		return false
	}
	return n.deliver(e, f)
}

// SendRoom delivers v to every connection attached to room except one.
func (n *Notifier) SendRoom(room domain.RoomID, except domain.ConnID, v any) {
	f, ok := encode(v)
	if !ok {
		return
	}
	for _, e := range n.Registry.MembersOfRoom(room) {
		if e.Conn == except {
			continue
		}
		n.deliver(e, f)
	}
}

// Broadcast delivers v to every connected client, in a room or not.
func (n *Notifier) Broadcast(v any) {
	f, ok := encode(v)
	if !ok {
		return
	}
	for _, e := range n.Registry.All() {
		n.deliver(e, f)
	}
}

func (n *Notifier) deliver(e Entry, f core.Frame) bool {
	err := e.Signal.TrySend(f)
	if err == nil {
		return true
	}
	if !errors.Is(err, core.ErrBackpressure) || n.Policy == nil {
		log.Debug().Err(err).Str("module", "app.notifier").Str("conn", string(e.Conn)).Msg("send failed")
		return false
	}
	switch n.Policy.OnBackPressure(e) {
	case KickMember:
		log.Warn().Str("module", "app.notifier").Str("conn", string(e.Conn)).Msg("slow connection kicked")
		n.Registry.Cancel(e.Conn)
	case MarkSlow, DropFrame, NoAction:
		log.Debug().Str("module", "app.notifier").Str("conn", string(e.Conn)).Msg("frame dropped")
	}
	return false
}

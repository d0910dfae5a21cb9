package mesh

type Role int

const (
	// Initiator sends the first offer and owns ICE restarts.
	Initiator Role = iota
	// Responder answers. It yields when both sides offer at once.
	Responder
)

func (r Role) String() string {
	if r == Initiator {
		return "initiator"
	}
	return "responder"
}

type State int32

const (
	StateIdle State = iota
	StateOffering
	StateAnswering
	StateConnected
	StateRestarting
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOffering:
		return "offering"
	case StateAnswering:
		return "answering"
	case StateConnected:
		return "connected"
	case StateRestarting:
		return "restarting"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

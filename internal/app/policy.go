package app

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	MarkSlow
	KickMember
	DropFrame
)

// Policy decides what happens to a connection whose outbound queue is full.
type Policy interface {
	OnBackPressure(e Entry) BackpressureAction
}

type SimplePolicy struct{}

// OnBackPressure kicks the slow connection. Signaling frames cannot be
// dropped without desynchronizing the peers on the other end.
func (SimplePolicy) OnBackPressure(Entry) BackpressureAction {
	return KickMember
}

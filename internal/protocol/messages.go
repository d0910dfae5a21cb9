// Package protocol defines the JSON envelopes exchanged over the signaling
// websocket by the server and mesh clients.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/dkeye/Mesh/internal/domain"
)

type Type string

const (
	// client -> server
	TypeJoinRoom    Type = "join-room"
	TypeLeaveRoom   Type = "leave-room"
	TypeToggleMic   Type = "toggle-mic"
	TypeToggleVideo Type = "toggle-video"
	TypePing        Type = "ping"

	// server -> client
	TypeExistingParticipants Type = "existing-participants"
	TypeUserJoined           Type = "user-joined"
	TypeUserReconnected      Type = "user-reconnected"
	TypeUserLeft             Type = "user-left"
	TypeUserLeftTimeout      Type = "user-left-timeout"
	TypeUserMicToggled       Type = "user-mic-toggled"
	TypeUserVideoToggled     Type = "user-video-toggled"
	TypeRoomUpdated          Type = "room-updated"
	TypeRoomDeleted          Type = "room-deleted"
	TypeError                Type = "error"
	TypePong                 Type = "pong"

	// relayed peer to peer
	TypeOffer           Type = "offer"
	TypeAnswer          Type = "answer"
	TypeICECandidate    Type = "ice-candidate"
	TypeRenegotiateHint Type = "renegotiate-hint"
)

// Error codes carried by TypeError frames.
const (
	CodeRoomFull      = "room-full"
	CodeRoomNotFound  = "room-not-found"
	CodeNotAuthorized = "not-authorized"
	CodeBadPayload    = "bad-payload"
	CodeRateLimited   = "rate-limited"
	CodeNotInRoom     = "not-in-room"
	CodeInternal      = "internal"
)

// Relayed reports whether t is forwarded between peers without inspection.
func (t Type) Relayed() bool {
	switch t {
	case TypeOffer, TypeAnswer, TypeICECandidate, TypeRenegotiateHint:
		return true
	}
	return false
}

// Peer describes a remote participant as seen by a client.
type Peer struct {
	ConnectionID domain.ConnID `json:"connectionId"`
	UserID       domain.UserID `json:"userId"`
	Username     string        `json:"username"`
	IsMuted      bool          `json:"isMuted"`
	IsVideoOff   bool          `json:"isVideoOff"`
}

func PeerFrom(p domain.Participant) Peer {
	return Peer{
		ConnectionID: p.ConnID,
		UserID:       p.UserID,
		Username:     p.Username,
		IsMuted:      p.IsMuted,
		IsVideoOff:   p.IsVideoOff,
	}
}

func PeersFrom(ps []domain.Participant) []Peer {
	out := make([]Peer, 0, len(ps))
	for _, p := range ps {
		out = append(out, PeerFrom(p))
	}
	return out
}

// Message is the single envelope for every frame type. Only the fields
// relevant to Type are set.
type Message struct {
	Type Type `json:"type"`

	RoomID     domain.RoomID `json:"roomId,omitempty"`
	UserID     domain.UserID `json:"userId,omitempty"`
	Username   string        `json:"username,omitempty"`
	IsMuted    *bool         `json:"isMuted,omitempty"`
	IsVideoOff *bool         `json:"isVideoOff,omitempty"`

	Participants         []Peer              `json:"participants,omitempty"`
	Peer                 *Peer               `json:"peer,omitempty"`
	ConnectionID         domain.ConnID       `json:"connectionId,omitempty"`
	PreviousConnectionID domain.ConnID       `json:"previousConnectionId,omitempty"`
	Room                 *domain.RoomSummary `json:"room,omitempty"`
	Version              int64               `json:"version,omitempty"`

	To          domain.ConnID   `json:"to,omitempty"`
	From        domain.ConnID   `json:"from,omitempty"`
	Description json.RawMessage `json:"description,omitempty"`
	Candidate   json.RawMessage `json:"candidate,omitempty"`
	Hint        json.RawMessage `json:"hint,omitempty"`

	Code  string `json:"code,omitempty"`
	Error string `json:"error,omitempty"`
}

// Parse decodes and validates one inbound frame.
func Parse(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, err
	}
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}

func (m Message) Validate() error {
	switch m.Type {
	case TypeJoinRoom:
		if m.RoomID == "" {
			return fmt.Errorf("join-room missing roomId")
		}
	case TypeLeaveRoom, TypePing, TypePong:
	case TypeToggleMic:
		if m.IsMuted == nil {
			return fmt.Errorf("toggle-mic missing isMuted")
		}
	case TypeToggleVideo:
		if m.IsVideoOff == nil {
			return fmt.Errorf("toggle-video missing isVideoOff")
		}
	case TypeOffer, TypeAnswer:
		if m.To == "" && m.From == "" {
			return fmt.Errorf("%s missing to/from", m.Type)
		}
		if len(m.Description) == 0 {
			return fmt.Errorf("%s missing description", m.Type)
		}
	case TypeICECandidate:
		if m.To == "" && m.From == "" {
			return fmt.Errorf("ice-candidate missing to/from")
		}
		if len(m.Candidate) == 0 {
			return fmt.Errorf("ice-candidate missing candidate")
		}
	case TypeRenegotiateHint:
		if m.To == "" && m.From == "" {
			return fmt.Errorf("renegotiate-hint missing to/from")
		}
	case TypeExistingParticipants, TypeRoomUpdated, TypeRoomDeleted:
	case TypeUserJoined, TypeUserReconnected:
		if m.Peer == nil {
			return fmt.Errorf("%s missing peer", m.Type)
		}
	case TypeUserLeft, TypeUserLeftTimeout, TypeUserMicToggled, TypeUserVideoToggled:
		if m.ConnectionID == "" {
			return fmt.Errorf("%s missing connectionId", m.Type)
		}
	case TypeError:
		if m.Code == "" {
			return fmt.Errorf("error message missing code")
		}
	default:
		return fmt.Errorf("unsupported message type %q", m.Type)
	}
	return nil
}

func ExistingParticipants(room domain.RoomID, peers []Peer) Message {
	if peers == nil {
		peers = []Peer{}
	}
	return Message{Type: TypeExistingParticipants, RoomID: room, Participants: peers}
}

func UserJoined(room domain.RoomID, p Peer) Message {
	return Message{Type: TypeUserJoined, RoomID: room, Peer: &p}
}

func UserReconnected(room domain.RoomID, p Peer, previous domain.ConnID) Message {
	return Message{Type: TypeUserReconnected, RoomID: room, Peer: &p, PreviousConnectionID: previous}
}

func UserLeft(room domain.RoomID, user domain.UserID, conn domain.ConnID) Message {
	return Message{Type: TypeUserLeft, RoomID: room, UserID: user, ConnectionID: conn}
}

func MicToggled(room domain.RoomID, p domain.Participant) Message {
	muted := p.IsMuted
	return Message{Type: TypeUserMicToggled, RoomID: room, UserID: p.UserID, ConnectionID: p.ConnID, IsMuted: &muted}
}

func VideoToggled(room domain.RoomID, p domain.Participant) Message {
	off := p.IsVideoOff
	return Message{Type: TypeUserVideoToggled, RoomID: room, UserID: p.UserID, ConnectionID: p.ConnID, IsVideoOff: &off}
}

func RoomUpdated(s domain.RoomSummary) Message {
	return Message{Type: TypeRoomUpdated, RoomID: s.ID, Room: &s, Version: s.Version}
}

func RoomDeleted(room domain.RoomID, version int64) Message {
	return Message{Type: TypeRoomDeleted, RoomID: room, Version: version}
}

func Error(code, text string) Message {
	return Message{Type: TypeError, Code: code, Error: text}
}

func Pong() Message { return Message{Type: TypePong} }

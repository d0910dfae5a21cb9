package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/dkeye/Mesh/internal/domain"
	"github.com/pion/webrtc/v4"
)

type sdp struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

type candidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

const (
	// HintRenegotiate asks the initiator of a pairing to send a fresh offer.
	HintRenegotiate = "renegotiate"
	// HintTrackReplaced reports an in-place track swap. Advisory only.
	HintTrackReplaced = "track-replaced"
)

// Hint tells a peer why the sender changed or wants to change the session.
type Hint struct {
	Reason string   `json:"reason"`
	Kinds  []string `json:"kinds,omitempty"`
	Preset string   `json:"preset,omitempty"`
}

func EncodeDescription(desc webrtc.SessionDescription) (json.RawMessage, error) {
	return json.Marshal(sdp{Type: desc.Type.String(), SDP: desc.SDP})
}

func DecodeDescription(raw json.RawMessage) (webrtc.SessionDescription, error) {
	var s sdp
	if err := json.Unmarshal(raw, &s); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("decode description: %w", err)
	}
	var t webrtc.SDPType
	switch s.Type {
	case "offer":
		t = webrtc.SDPTypeOffer
	case "answer":
		t = webrtc.SDPTypeAnswer
	default:
		return webrtc.SessionDescription{}, fmt.Errorf("unsupported sdp type %q", s.Type)
	}
	return webrtc.SessionDescription{Type: t, SDP: s.SDP}, nil
}

func EncodeCandidate(init webrtc.ICECandidateInit) (json.RawMessage, error) {
	return json.Marshal(candidate{
		Candidate:        init.Candidate,
		SDPMid:           init.SDPMid,
		SDPMLineIndex:    init.SDPMLineIndex,
		UsernameFragment: init.UsernameFragment,
	})
}

func DecodeCandidate(raw json.RawMessage) (webrtc.ICECandidateInit, error) {
	var c candidate
	if err := json.Unmarshal(raw, &c); err != nil {
		return webrtc.ICECandidateInit{}, fmt.Errorf("decode candidate: %w", err)
	}
	return webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}, nil
}

func Offer(to domain.ConnID, desc webrtc.SessionDescription) (Message, error) {
	raw, err := EncodeDescription(desc)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: TypeOffer, To: to, Description: raw}, nil
}

func Answer(to domain.ConnID, desc webrtc.SessionDescription) (Message, error) {
	raw, err := EncodeDescription(desc)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: TypeAnswer, To: to, Description: raw}, nil
}

func ICECandidate(to domain.ConnID, init webrtc.ICECandidateInit) (Message, error) {
	raw, err := EncodeCandidate(init)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: TypeICECandidate, To: to, Candidate: raw}, nil
}

func DecodeHint(raw json.RawMessage) (Hint, error) {
	var h Hint
	if len(raw) == 0 {
		return h, nil
	}
	if err := json.Unmarshal(raw, &h); err != nil {
		return Hint{}, fmt.Errorf("decode hint: %w", err)
	}
	return h, nil
}

func RenegotiateHint(to domain.ConnID, h Hint) (Message, error) {
	raw, err := json.Marshal(h)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: TypeRenegotiateHint, To: to, Hint: raw}, nil
}

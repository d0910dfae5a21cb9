// Package mesh keeps one negotiated peer session per remote participant and
// turns room events into a full mesh of peer connections.
package mesh

import (
	"github.com/dkeye/Mesh/internal/protocol"
	"github.com/pion/webrtc/v4"
)

// PeerConn is the slice of a WebRTC peer connection a Session drives.
// CreateOffer and CreateAnswer also apply the result as the local
// description.
type PeerConn interface {
	CreateOffer(iceRestart bool) (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetRemoteDescription(webrtc.SessionDescription) error
	// Rollback discards a pending local offer.
	Rollback() error
	AddICECandidate(webrtc.ICECandidateInit) error
	SignalingState() webrtc.SignalingState
	HasRemoteDescription() bool

	AddTrack(webrtc.TrackLocal) error
	ReplaceTrack(kind webrtc.RTPCodecType, track webrtc.TrackLocal) error

	// OnICECandidate receives nil once gathering is complete.
	OnICECandidate(func(*webrtc.ICECandidateInit))
	OnICEConnectionStateChange(func(webrtc.ICEConnectionState))
	OnTrack(func(*webrtc.TrackRemote))
	Close() error
}

// PeerFactory builds a fresh PeerConn for every new session.
type PeerFactory interface {
	NewPeer() (PeerConn, error)
}

// Signaler carries a session's outbound messages to the relay.
type Signaler interface {
	Send(protocol.Message) error
}

// TrackSource supplies the local tracks every new session starts with.
type TrackSource interface {
	LocalTracks() []webrtc.TrackLocal
}

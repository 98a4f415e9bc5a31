package peer

import (
	"github.com/matrix-org/rivulet/pkg/media"
	"github.com/pion/webrtc/v3"
)

// Everything a session reports to its owner. The owner switches on the concrete type.
type MessageContent = interface{}

// A local offer or answer has been applied and must be sent to the remote peer.
type LocalDescriptionReady struct {
	Description webrtc.SessionDescription
}

// A local candidate to trickle to the remote peer. Always reported after the local description.
type NewICECandidate struct {
	Candidate webrtc.ICECandidateInit
}

type ICEGatheringComplete struct{}

// The first packets of a remote track arrived.
type TrackReceived struct {
	Track media.RemoteTrack
}

type ConnectionStateChanged struct {
	State webrtc.PeerConnectionState
}

// The session did not get any media within the negotiation timeout.
type NegotiationTimedOut struct{}

package participant

import (
	"github.com/matrix-org/rivulet/pkg/media"
	"github.com/matrix-org/rivulet/pkg/peer"
)

// Participant is a remote peer of the call together with our session to it.
type Participant struct {
	Key     peer.SessionKey
	Session *peer.Session
	// Nil until the first remote track arrives.
	Stream *media.RemoteStream
}

func (p *Participant) ID() string {
	return p.Key.PeerID
}

// Status is a point-in-time view of a participant.
type Status struct {
	PeerID    string
	Role      peer.Role
	State     peer.State
	Published bool
}

func (p *Participant) Status() Status {
	return Status{
		PeerID:    p.Key.PeerID,
		Role:      p.Session.Role(),
		State:     p.Session.State(),
		Published: p.Stream != nil,
	}
}

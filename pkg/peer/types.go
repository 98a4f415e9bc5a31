package peer

import "fmt"

// Role of the local side in the negotiation with one remote peer. Fixed for the lifetime of a session.
type Role int

const (
	RoleOfferer Role = iota + 1
	RoleAnswerer
)

func (r Role) String() string {
	switch r {
	case RoleOfferer:
		return "offerer"
	case RoleAnswerer:
		return "answerer"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

// Negotiation state of a session. States only ever advance.
type State int32

const (
	StateIdle State = iota
	StateNegotiating
	// Media from the remote peer arrived.
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Identifies one incarnation of a session with a remote peer. The epoch changes every time
// a session for the same peer is recreated, so late events of a closed session can be told
// apart from events of its successor.
type SessionKey struct {
	PeerID string
	Epoch  uint64
}

// IsPolite decides which side yields when both peers sent an offer to each other at the same time.
// Exactly one side of every pair of distinct peers is polite.
func IsPolite(localPeerID, remotePeerID string) bool {
	return localPeerID > remotePeerID
}

package call

import (
	"github.com/matrix-org/rivulet/pkg/channel"
	"github.com/matrix-org/rivulet/pkg/peer"
	"github.com/matrix-org/rivulet/pkg/signaling"
	"github.com/pion/webrtc/v3"
)

// Process a message from one of our sessions.
func (c *Call) processPeerMessage(message channel.Message[peer.SessionKey, peer.MessageContent]) {
	// Sessions that have been removed (or replaced) may still have messages in flight.
	participant := c.tracker.Lookup(message.Sender)
	if participant == nil {
		c.logger.WithField("remote_peer", message.Sender.PeerID).Debug("ignoring message of a removed session")
		return
	}

	logger := c.logger.WithField("remote_peer", participant.ID())

	// Since Go does not support ADTs, we have to use a switch statement to
	// determine the actual type of the message.
	switch msg := message.Content.(type) {
	case peer.LocalDescriptionReady:
		messageType := signaling.Offer
		if msg.Description.Type == webrtc.SDPTypeAnswer {
			messageType = signaling.Answer
		}
		c.sendTo(participant.ID(), messageType, msg.Description)

	case peer.NewICECandidate:
		c.sendTo(participant.ID(), signaling.ICE, msg.Candidate)

	case peer.ICEGatheringComplete:
		logger.Debug("ICE gathering complete")

	case peer.TrackReceived:
		if c.tracker.PublishTrack(participant.ID(), msg.Track) {
			logger.WithField("track_id", msg.Track.ID()).Info("remote stream updated")
		}
		participant.Session.MarkConnected()

	case peer.ConnectionStateChanged:
		switch msg.State {
		case webrtc.PeerConnectionStateDisconnected,
			webrtc.PeerConnectionStateFailed,
			webrtc.PeerConnectionStateClosed:
			logger.WithField("state", msg.State).Info("connection lost, removing participant")
			c.tracker.Remove(participant.ID())
		default:
		}

	case peer.NegotiationTimedOut:
		if state := participant.Session.State(); state == peer.StateIdle || state == peer.StateNegotiating {
			logger.Warn("negotiation timed out, removing participant")
			c.tracker.Remove(participant.ID())
		}

	default:
		logger.Errorf("unknown message type: %T", msg)
	}
}

package call

import (
	"github.com/matrix-org/rivulet/pkg/peer"
	"github.com/matrix-org/rivulet/pkg/signaling"
	"github.com/pion/webrtc/v3"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// Process a message received from the relay.
func (c *Call) processSignalingMessage(envelope signaling.Envelope) {
	logger := c.logger.WithFields(logrus.Fields{"type": envelope.Type, "from": envelope.From})

	if envelope.Room != "" && envelope.Room != c.identity.RoomID {
		logger.WithField("room", envelope.Room).Warn("ignoring message for another room")
		return
	}

	if envelope.To != "" && envelope.To != c.identity.PeerID {
		logger.WithField("to", envelope.To).Warn("ignoring message for another peer")
		return
	}

	switch envelope.Type {
	case signaling.NewPeer:
		peerID, err := envelope.PeerID()
		if err != nil {
			logger.WithError(err).Warn("invalid presence notification")
			return
		}
		c.onPeerJoined(peerID)

	case signaling.PeerLeft:
		peerID, err := envelope.PeerID()
		if err != nil {
			logger.WithError(err).Warn("invalid presence notification")
			return
		}
		c.onPeerLeft(peerID)

	case signaling.LeaveRoom:
		if c.isRemotePeer(envelope.From) {
			c.onPeerLeft(envelope.From)
		}

	case signaling.JoinRoom:
		logger.Debug("ignoring join notice, presence is announced by the relay")

	case signaling.Offer:
		if !c.isRemotePeer(envelope.From) {
			logger.Warn("ignoring offer without a valid sender")
			return
		}

		offer, err := envelope.SessionDescription()
		if err != nil {
			logger.WithError(err).Warn("invalid offer")
			return
		}
		c.onOffer(envelope.From, offer)

	case signaling.Answer:
		answer, err := envelope.SessionDescription()
		if err != nil {
			logger.WithError(err).Warn("invalid answer")
			return
		}
		c.onAnswer(envelope.From, answer)

	case signaling.ICE:
		candidate, err := envelope.ICECandidate()
		if err != nil {
			logger.WithError(err).Warn("invalid candidate")
			return
		}
		c.onRemoteCandidate(envelope.From, candidate)

	case signaling.ChatMessage, signaling.LegacyChat:
		chat, err := envelope.Chat()
		if err != nil {
			logger.WithError(err).Warn("invalid chat message")
			return
		}
		c.publishChat(chat)

	default:
		logger.Warn("ignoring message of unknown type")
	}
}

func (c *Call) isRemotePeer(peerID string) bool {
	return peerID != "" && peerID != c.identity.PeerID && peerID != signaling.ServerSender
}

// A new participant joined after us, so we are the ones to send the offer.
func (c *Call) onPeerJoined(peerID string) {
	logger := c.logger.WithField("remote_peer", peerID)

	if !c.isRemotePeer(peerID) {
		logger.Debug("ignoring own presence")
		return
	}

	if c.tracker.Get(peerID) != nil {
		logger.Debug("participant is already known")
		return
	}

	if _, _, err := c.tracker.GetOrCreate(peerID, c.offerer()); err != nil {
		logger.WithError(err).Error("failed to create session")
		c.telemetry.AddError(err)
		return
	}

	logger.Info("participant joined, sending offer")
	c.telemetry.AddEvent("participant joined", attribute.String("remote_peer", peerID))
}

func (c *Call) onPeerLeft(peerID string) {
	logger := c.logger.WithField("remote_peer", peerID)

	if !c.tracker.Remove(peerID) {
		logger.Debug("unknown participant left")
		return
	}

	logger.Info("participant left")
	c.telemetry.AddEvent("participant left", attribute.String("remote_peer", peerID))
}

func (c *Call) onOffer(peerID string, offer webrtc.SessionDescription) {
	logger := c.logger.WithField("remote_peer", peerID)

	if existing := c.tracker.Get(peerID); existing != nil {
		session := existing.Session

		// Both sides sent an offer at the same time, exactly one of them yields.
		if session.Role() == peer.RoleOfferer && !session.HasRemoteDescription() {
			if !peer.IsPolite(c.identity.PeerID, peerID) {
				logger.Info("offers collided, ignoring the remote offer")
				return
			}

			logger.Info("offers collided, answering the remote offer")
		} else {
			logger.Info("remote peer restarted the negotiation, replacing session")
		}

		c.tracker.Remove(peerID)
	}

	if _, _, err := c.tracker.GetOrCreate(peerID, c.answerer(offer)); err != nil {
		logger.WithError(err).Error("failed to create session")
		c.telemetry.AddError(err)
		return
	}

	logger.Info("received offer, answering")
}

func (c *Call) onAnswer(peerID string, answer webrtc.SessionDescription) {
	participant := c.tracker.Get(peerID)
	if participant == nil {
		c.logger.WithField("remote_peer", peerID).Warn("ignoring answer from unknown participant")
		return
	}

	// Errors are logged by the session.
	_ = participant.Session.ProcessAnswer(answer)
}

func (c *Call) onRemoteCandidate(peerID string, candidate webrtc.ICECandidateInit) {
	participant := c.tracker.Get(peerID)
	if participant == nil {
		c.logger.WithField("remote_peer", peerID).Warn("ignoring candidate from unknown participant")
		return
	}

	_ = participant.Session.ProcessRemoteCandidate(candidate)
}

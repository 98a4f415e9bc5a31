package call

import (
	"github.com/matrix-org/rivulet/pkg/call/participant"
	"github.com/matrix-org/rivulet/pkg/channel"
	"github.com/matrix-org/rivulet/pkg/media"
	"github.com/matrix-org/rivulet/pkg/peer"
	"github.com/matrix-org/rivulet/pkg/signaling"
	"github.com/pion/webrtc/v3"
	"go.opentelemetry.io/otel/attribute"
)

// Listen on messages from incoming channels and process them.
// This is essentially the main loop of the call, it is the only place where the
// participants are modified. If this function returns, the call is over.
func (c *Call) processMessages() {
	defer c.end()

	for {
		select {
		case envelope, ok := <-c.signaler.Messages():
			if !ok {
				c.logger.Warn("signaling closed, ending the call")
				return
			}
			c.processSignalingMessage(envelope)
		case connected := <-c.signaler.States():
			c.processLinkState(connected)
		case message := <-c.peerMessages:
			c.processPeerMessage(message)
		case query := <-c.queries:
			query()
		case <-c.leave:
			c.sendLeaveNotice()
			return
		}
	}
}

func (c *Call) end() {
	c.tracker.RemoveAll()
	c.signaler.Close()
	c.publishConnected(false)

	c.logger.Info("left the room")
	c.telemetry.End()

	close(c.connected)
	close(c.remoteStreams)
	close(c.chat)
	close(c.done)
}

func (c *Call) processLinkState(connected bool) {
	c.logger.WithField("connected", connected).Info("relay link state changed")
	c.telemetry.AddEvent("relay link state changed", attribute.Bool("connected", connected))
	c.publishConnected(connected)
}

// Sessions of a new participant are created through these.
func (c *Call) offerer() participant.SessionFactory {
	return func(key peer.SessionKey) (*peer.Session, error) {
		return peer.NewOfferer(c.sessionParams(key))
	}
}

func (c *Call) answerer(offer webrtc.SessionDescription) participant.SessionFactory {
	return func(key peer.SessionKey) (*peer.Session, error) {
		return peer.NewAnswerer(c.sessionParams(key), offer)
	}
}

func (c *Call) sessionParams(key peer.SessionKey) peer.Params {
	return peer.Params{
		Key:         key,
		Factory:     c.factory,
		LocalStream: c.localStream,
		Sink:        channel.NewSink[peer.SessionKey, peer.MessageContent](key, c.peerMessages),
		Logger:      c.logger,
		Telemetry:   c.telemetry,
		Config:      peer.Config{NegotiationTimeout: c.config.NegotiationTimeout},
	}
}

// Sends an envelope to a single remote peer. Dropped (with a warning) while the relay is down.
func (c *Call) sendTo(peerID string, messageType signaling.MessageType, payload any) {
	envelope, err := signaling.NewEnvelope(messageType, c.identity.RoomID, c.identity.PeerID, peerID, payload)
	if err != nil {
		c.logger.WithError(err).Error("failed to encode message")
		return
	}

	if err := c.signaler.Send(envelope); err != nil {
		c.logger.WithError(err).WithField("type", messageType).Warn("failed to send message")
	}
}

func (c *Call) sendLeaveNotice() {
	envelope, err := signaling.NewEnvelope(signaling.LeaveRoom, c.identity.RoomID, c.identity.PeerID, "", c.identity.PeerID)
	if err != nil {
		return
	}

	if err := c.signaler.Send(envelope); err != nil {
		c.logger.WithError(err).Debug("could not send leave notice")
	}
}

// Latest-value publishing: the main loop is the only sender, so after draining the
// buffered value there is always room for the new one.
func (c *Call) publishConnected(connected bool) {
	select {
	case <-c.connected:
	default:
	}

	c.connected <- connected
}

func (c *Call) publishRemoteStreams(streams map[string]media.RemoteStream) {
	select {
	case <-c.remoteStreams:
	default:
	}

	c.remoteStreams <- streams
}

func (c *Call) publishChat(chat signaling.Chat) {
	select {
	case c.chat <- chat:
	default:
		c.logger.Warn("chat consumer is too slow, dropping chat message")
	}
}

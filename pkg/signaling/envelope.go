package signaling

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pion/webrtc/v3"
)

type MessageType string

const (
	NewPeer     MessageType = "new-peer"
	PeerLeft    MessageType = "peer-left"
	Offer       MessageType = "offer"
	Answer      MessageType = "answer"
	ICE         MessageType = "ice"
	JoinRoom    MessageType = "join-room"
	LeaveRoom   MessageType = "leave-room"
	ChatMessage MessageType = "chat-message"
	// Older relays broadcast chat under this name.
	LegacyChat MessageType = "chat"
)

// The sender the relay uses for presence notifications.
const ServerSender = "server"

var ErrInvalidPayload = errors.New("invalid payload")

// Envelope is a single signaling message exchanged with the relay.
// An empty `To` means broadcast to the room.
type Envelope struct {
	Type MessageType     `json:"type"`
	Room string          `json:"room"`
	From string          `json:"from"`
	To   string          `json:"to,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Chat message as sent over the relay.
type Chat struct {
	Text      string    `json:"text"`
	Sender    string    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
}

func NewEnvelope(messageType MessageType, room, from, to string, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to encode %s payload: %w", messageType, err)
	}

	return Envelope{Type: messageType, Room: room, From: from, To: to, Data: data}, nil
}

// The peer ID carried by `new-peer` and `peer-left`.
func (e Envelope) PeerID() (string, error) {
	var peerID string
	if err := json.Unmarshal(e.Data, &peerID); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrInvalidPayload, e.Type, err)
	}

	if peerID == "" {
		return "", fmt.Errorf("%w: %s: empty peer ID", ErrInvalidPayload, e.Type)
	}

	return peerID, nil
}

// The description carried by `offer` and `answer`. The SDP type must match the envelope type.
func (e Envelope) SessionDescription() (webrtc.SessionDescription, error) {
	var description webrtc.SessionDescription
	if err := json.Unmarshal(e.Data, &description); err != nil {
		return description, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, e.Type, err)
	}

	expected := webrtc.SDPTypeOffer
	if e.Type == Answer {
		expected = webrtc.SDPTypeAnswer
	}

	if description.Type != expected || description.SDP == "" {
		return description, fmt.Errorf("%w: %s: unexpected description %q", ErrInvalidPayload, e.Type, description.Type)
	}

	return description, nil
}

// The candidate carried by `ice`.
func (e Envelope) ICECandidate() (webrtc.ICECandidateInit, error) {
	var candidate webrtc.ICECandidateInit
	if err := json.Unmarshal(e.Data, &candidate); err != nil {
		return candidate, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, e.Type, err)
	}

	return candidate, nil
}

// The chat message carried by `chat-message`. Relays that forward plain strings are accepted as well.
func (e Envelope) Chat() (Chat, error) {
	var chat Chat
	if err := json.Unmarshal(e.Data, &chat); err != nil {
		var text string
		if json.Unmarshal(e.Data, &text) != nil {
			return chat, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, e.Type, err)
		}

		chat.Text = text
	}

	if chat.Sender == "" {
		chat.Sender = e.From
	}

	return chat, nil
}

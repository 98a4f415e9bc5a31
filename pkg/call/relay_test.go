package call_test

import (
	"sync"

	"github.com/matrix-org/rivulet/pkg/signaling"
)

// An in-memory relay with the same routing rules as the real one: presence is announced
// by the relay itself, messages with a recipient are unicast, everything else is broadcast.
type fakeRelay struct {
	room    string
	mutex   sync.Mutex
	members map[string]*fakeSignaler
}

func newFakeRelay(room string) *fakeRelay {
	return &fakeRelay{room: room, members: make(map[string]*fakeSignaler)}
}

func (r *fakeRelay) signaler(peerID string) *fakeSignaler {
	return &fakeSignaler{
		relay:    r,
		peerID:   peerID,
		messages: make(chan signaling.Envelope, 256),
		states:   make(chan bool, 1),
	}
}

func (r *fakeRelay) attach(s *fakeSignaler) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.members[s.peerID] = s
	s.setConnected(true)
	r.broadcastLocked(s.peerID, r.presence(signaling.NewPeer, s.peerID))
}

func (r *fakeRelay) detach(s *fakeSignaler) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.members[s.peerID] != s {
		return
	}

	delete(r.members, s.peerID)
	s.setConnected(false)
	r.broadcastLocked("", r.presence(signaling.PeerLeft, s.peerID))
}

// Announces the peer to everybody else again, as a relay does after a reconnect.
func (r *fakeRelay) announce(peerID string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.broadcastLocked(peerID, r.presence(signaling.NewPeer, peerID))
}

func (r *fakeRelay) route(envelope signaling.Envelope) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if envelope.To == "" {
		r.broadcastLocked(envelope.From, envelope)
		return
	}

	if recipient, found := r.members[envelope.To]; found {
		recipient.deliver(envelope)
	}
}

func (r *fakeRelay) broadcastLocked(except string, envelope signaling.Envelope) {
	for peerID, member := range r.members {
		if peerID != except {
			member.deliver(envelope)
		}
	}
}

func (r *fakeRelay) presence(messageType signaling.MessageType, peerID string) signaling.Envelope {
	envelope, err := signaling.NewEnvelope(messageType, r.room, signaling.ServerSender, "", peerID)
	if err != nil {
		panic(err)
	}

	return envelope
}

// Implements `call.Signaler` on top of the fake relay.
type fakeSignaler struct {
	relay    *fakeRelay
	peerID   string
	messages chan signaling.Envelope
	states   chan bool

	mutex     sync.Mutex
	connected bool
	closed    bool
	sent      []signaling.Envelope
}

func (s *fakeSignaler) Connect() {
	s.relay.attach(s)
}

func (s *fakeSignaler) Send(envelope signaling.Envelope) error {
	s.mutex.Lock()
	if !s.connected {
		s.mutex.Unlock()
		return signaling.ErrNotConnected
	}
	s.sent = append(s.sent, envelope)
	s.mutex.Unlock()

	envelope.From = s.peerID
	envelope.Room = s.relay.room
	s.relay.route(envelope)

	return nil
}

func (s *fakeSignaler) Messages() <-chan signaling.Envelope {
	return s.messages
}

func (s *fakeSignaler) States() <-chan bool {
	return s.states
}

func (s *fakeSignaler) Close() {
	s.relay.detach(s)

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.closed {
		s.closed = true
		close(s.messages)
	}
}

// Simulates a lost relay connection.
func (s *fakeSignaler) drop() {
	s.relay.detach(s)
}

// Simulates the relay connection coming back.
func (s *fakeSignaler) reconnect() {
	s.relay.attach(s)
}

// Hands an envelope to the call as if it came from the relay.
func (s *fakeSignaler) inject(envelope signaling.Envelope) {
	s.deliver(envelope)
}

func (s *fakeSignaler) deliver(envelope signaling.Envelope) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.closed {
		s.messages <- envelope
	}
}

func (s *fakeSignaler) setConnected(connected bool) {
	s.mutex.Lock()
	s.connected = connected
	s.mutex.Unlock()

	select {
	case <-s.states:
	default:
	}
	s.states <- connected
}

func (s *fakeSignaler) sentOfType(messageType signaling.MessageType) []signaling.Envelope {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var envelopes []signaling.Envelope
	for _, envelope := range s.sent {
		if envelope.Type == messageType {
			envelopes = append(envelopes, envelope)
		}
	}

	return envelopes
}

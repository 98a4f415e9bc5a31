/*
Copyright 2022 The Matrix.org Foundation C.I.C.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package call

import (
	"errors"
	"sync"
	"time"

	"github.com/matrix-org/rivulet/pkg/call/participant"
	"github.com/matrix-org/rivulet/pkg/channel"
	"github.com/matrix-org/rivulet/pkg/media"
	"github.com/matrix-org/rivulet/pkg/peer"
	"github.com/matrix-org/rivulet/pkg/signaling"
	"github.com/matrix-org/rivulet/pkg/telemetry"
	"github.com/matrix-org/rivulet/pkg/webrtc_ext"
	"github.com/sirupsen/logrus"
)

var ErrInvalidIdentity = errors.New("room and peer IDs must be set")

// Identity of the local participant. Fixed for the lifetime of the call.
type Identity struct {
	RoomID string
	PeerID string
}

// Signaler is the connection to the relay, see `signaling.Client`.
type Signaler interface {
	Connect()
	Send(envelope signaling.Envelope) error
	Messages() <-chan signaling.Envelope
	States() <-chan bool
	Close()
}

// Call is the local side of a mesh call: one session per remote participant, all of
// them owned by the call's main loop.
type Call struct {
	identity    Identity
	config      Config
	logger      *logrus.Entry
	telemetry   *telemetry.Telemetry
	signaler    Signaler
	factory     webrtc_ext.ConnectionFactory
	localStream *media.LocalStream
	tracker     *participant.Tracker

	peerMessages chan channel.Message[peer.SessionKey, peer.MessageContent]
	queries      chan func()
	leave        chan struct{}
	leaveOnce    sync.Once
	done         chan struct{}

	connected     chan bool
	remoteStreams chan map[string]media.RemoteStream
	chat          chan signaling.Chat
}

func (c *Call) Identity() Identity {
	return c.identity
}

// Leaves the call: closes every session and the relay connection. Blocks until the call is over.
func (c *Call) Leave() {
	c.leaveOnce.Do(func() { close(c.leave) })
	<-c.done
}

// Closed once the call is over.
func (c *Call) Done() <-chan struct{} {
	return c.done
}

// Whether the relay is connected. Only the latest state is kept for a slow consumer.
// Closed once the call is over.
func (c *Call) SignalingConnected() <-chan bool {
	return c.connected
}

// The full set of remote streams by peer ID, every time it changes. Only the latest set is kept
// for a slow consumer. Closed once the call is over.
func (c *Call) RemoteStreams() <-chan map[string]media.RemoteStream {
	return c.remoteStreams
}

// Chat messages of the room. Closed once the call is over.
func (c *Call) Chat() <-chan signaling.Chat {
	return c.chat
}

// Broadcasts a chat message to the room.
func (c *Call) SendChat(text string) error {
	envelope, err := signaling.NewEnvelope(
		signaling.ChatMessage,
		c.identity.RoomID,
		c.identity.PeerID,
		"",
		signaling.Chat{Text: text, Sender: c.identity.PeerID, Timestamp: time.Now().UTC()},
	)
	if err != nil {
		return err
	}

	return c.signaler.Send(envelope)
}

// The remote participants, ordered by peer ID. Empty once the call is over.
func (c *Call) Peers() []participant.Status {
	result := make(chan []participant.Status, 1)
	query := func() {
		var statuses []participant.Status
		c.tracker.ForEach(func(p *participant.Participant) {
			statuses = append(statuses, p.Status())
		})
		result <- statuses
	}

	select {
	case c.queries <- query:
		return <-result
	case <-c.done:
		return nil
	}
}

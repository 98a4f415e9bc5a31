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
	"context"

	"github.com/matrix-org/rivulet/pkg/call/participant"
	"github.com/matrix-org/rivulet/pkg/channel"
	"github.com/matrix-org/rivulet/pkg/media"
	"github.com/matrix-org/rivulet/pkg/peer"
	"github.com/matrix-org/rivulet/pkg/signaling"
	"github.com/matrix-org/rivulet/pkg/telemetry"
	"github.com/matrix-org/rivulet/pkg/webrtc_ext"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// Joins the room: connects the signaler and starts the call's main loop.
// The local stream may be nil, in which case the call only receives media.
func Join(
	config Config,
	identity Identity,
	localStream *media.LocalStream,
	signaler Signaler,
	factory webrtc_ext.ConnectionFactory,
) (*Call, error) {
	if identity.RoomID == "" || identity.PeerID == "" || identity.PeerID == signaling.ServerSender {
		return nil, ErrInvalidIdentity
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	call := &Call{
		identity:      identity,
		config:        config,
		logger:        logrus.WithFields(logrus.Fields{"room_id": identity.RoomID, "local_peer": identity.PeerID}),
		signaler:      signaler,
		factory:       factory,
		localStream:   localStream,
		peerMessages:  make(chan channel.Message[peer.SessionKey, peer.MessageContent], 100),
		queries:       make(chan func()),
		leave:         make(chan struct{}),
		done:          make(chan struct{}),
		connected:     make(chan bool, 1),
		remoteStreams: make(chan map[string]media.RemoteStream, 1),
		chat:          make(chan signaling.Chat, config.ChatBufferSize),
	}

	call.telemetry = telemetry.NewTelemetry(
		context.Background(),
		"call",
		attribute.String("room_id", identity.RoomID),
		attribute.String("local_peer", identity.PeerID),
	)
	call.tracker = participant.NewParticipantTracker(call.publishRemoteStreams)

	if localStream == nil {
		call.logger.Warn("joining without local media")
	}

	signaler.Connect()

	// Start the call's main loop.
	go call.processMessages()

	call.logger.Info("joined the room")

	return call, nil
}

package peer

import (
	"github.com/matrix-org/rivulet/pkg/media"
	"github.com/pion/webrtc/v3"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// Called by the connection for every gathered local candidate. Candidates go through the
// worker so that they are never reported before the local description they belong to.
func (s *Session) onICECandidateGathered(candidate *webrtc.ICECandidateInit) {
	if candidate == nil {
		_ = s.enqueue(func() {
			s.logger.Debug("ICE candidate gathering finished")
			s.send(ICEGatheringComplete{})
		})
		return
	}

	gathered := *candidate
	_ = s.enqueue(func() {
		s.logger.WithField("candidate", gathered.Candidate).Debug("ICE candidate gathered")
		s.send(NewICECandidate{Candidate: gathered})
	})
}

// Called once the first packets of a remote track arrive.
func (s *Session) onTrackReceived(track media.RemoteTrack) {
	s.logger.WithFields(logrus.Fields{
		"track_id":  track.ID(),
		"stream_id": track.StreamID(),
		"kind":      track.Kind(),
	}).Info("remote track received")

	s.telemetry.AddEvent("track received",
		attribute.String("track_id", track.ID()),
		attribute.String("kind", track.Kind().String()),
	)

	// Request a keyframe so that the video can be decoded right away.
	if track.Kind() == webrtc.RTPCodecTypeVideo {
		if err := s.connection.RequestKeyFrame(track.SSRC()); err != nil {
			s.logger.WithError(err).Debug("failed to request keyframe")
		}
	}

	s.send(TrackReceived{Track: track})
}

func (s *Session) onConnectionStateChanged(state webrtc.PeerConnectionState) {
	// Closing the connection reports its final states after the session is gone.
	if s.sink.Sealed() {
		return
	}

	s.logger.WithField("state", state).Info("connection state changed")
	s.telemetry.AddEvent("connection state changed", attribute.String("state", state.String()))

	s.send(ConnectionStateChanged{State: state})
}

func (s *Session) onNegotiationTimeout() {
	switch s.State() {
	case StateIdle, StateNegotiating:
		s.logger.Warn("no media received within the negotiation timeout")
		s.telemetry.Fail(ErrNegotiationTimeout)
		s.send(NegotiationTimedOut{})
	default:
	}
}

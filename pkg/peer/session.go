package peer

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/matrix-org/rivulet/pkg/channel"
	"github.com/matrix-org/rivulet/pkg/media"
	"github.com/matrix-org/rivulet/pkg/telemetry"
	"github.com/matrix-org/rivulet/pkg/webrtc_ext"
	"github.com/matrix-org/rivulet/pkg/worker"
	"github.com/pion/webrtc/v3"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

var (
	ErrCantCreatePeerConnection = errors.New("can't create peer connection")
	ErrCantSetRemoteDescription = errors.New("can't set remote description")
	ErrCantCreateOffer          = errors.New("can't create offer")
	ErrCantCreateAnswer         = errors.New("can't create answer")
	ErrCantSetLocalDescription  = errors.New("can't set local description")
	ErrCantAddICECandidate      = errors.New("can't add ICE candidate")
	ErrUnexpectedAnswer         = errors.New("answer received by the answering side")
	ErrNegotiationTimeout       = errors.New("negotiation timed out")
)

type Config struct {
	// A session that has not received any media after this long reports `NegotiationTimedOut`.
	// Zero disables the timeout.
	NegotiationTimeout time.Duration
}

type Sink = channel.SinkWithSender[SessionKey, MessageContent]

// Everything a session needs to be created.
type Params struct {
	Key     SessionKey
	Factory webrtc_ext.ConnectionFactory
	// May be nil, the session then only receives.
	LocalStream *media.LocalStream
	Sink        *Sink
	Logger      *logrus.Entry
	Telemetry   *telemetry.Telemetry
	Config      Config
}

// Session is the negotiation with a single remote peer on top of one media connection.
// The owner drives it through the public methods and learns about its progress from the
// messages posted to the sink. Negotiation steps of a session are executed one at a time,
// in the order in which they were submitted.
type Session struct {
	key         SessionKey
	role        Role
	logger      *logrus.Entry
	telemetry   *telemetry.Telemetry
	sink        *Sink
	localStream *media.LocalStream
	connection  webrtc_ext.Connection
	worker      *worker.Worker[func()]

	state                atomic.Int32
	hasRemoteDescription atomic.Bool
	negotiationTimer     *time.Timer
	closeOnce            sync.Once

	// Only accessed by the worker.
	pendingCandidates []webrtc.ICECandidateInit
}

// Creates a session that sends an offer to the remote peer.
func NewOfferer(params Params) (*Session, error) {
	session, err := newSession(params, RoleOfferer)
	if err != nil {
		return nil, err
	}

	if err := session.enqueue(session.offer); err != nil {
		session.Close()
		return nil, err
	}

	return session, nil
}

// Creates a session that answers the given offer of the remote peer.
func NewAnswerer(params Params, offer webrtc.SessionDescription) (*Session, error) {
	session, err := newSession(params, RoleAnswerer)
	if err != nil {
		return nil, err
	}

	if err := session.enqueue(func() { session.answer(offer) }); err != nil {
		session.Close()
		return nil, err
	}

	return session, nil
}

func newSession(params Params, role Role) (*Session, error) {
	logger := params.Logger.WithFields(logrus.Fields{
		"remote_peer": params.Key.PeerID,
		"epoch":       params.Key.Epoch,
		"role":        role,
	})

	session := &Session{
		key:         params.Key,
		role:        role,
		logger:      logger,
		localStream: params.LocalStream,
		sink:        params.Sink,
		telemetry: params.Telemetry.CreateChild(
			"session",
			attribute.String("remote_peer", params.Key.PeerID),
			attribute.String("role", role.String()),
		),
	}

	connection, err := params.Factory.CreateConnection(webrtc_ext.Callbacks{
		OnICECandidate:          session.onICECandidateGathered,
		OnTrack:                 session.onTrackReceived,
		OnConnectionStateChange: session.onConnectionStateChanged,
	})
	if err != nil {
		logger.WithError(err).Error("failed to create peer connection")
		session.telemetry.Fail(err)
		session.telemetry.End()
		return nil, fmt.Errorf("%w: %v", ErrCantCreatePeerConnection, err)
	}

	session.connection = connection

	session.worker = worker.StartWorker(worker.Config[func()]{
		OnTask: func(step func()) {
			// Steps that were queued before the session got closed are pointless.
			if session.State() == StateClosed {
				return
			}
			step()
		},
		// A step that is still running when the session gets closed belongs to its span.
		OnStop: session.telemetry.End,
	})

	if timeout := params.Config.NegotiationTimeout; timeout > 0 {
		session.negotiationTimer = time.AfterFunc(timeout, session.onNegotiationTimeout)
	}

	return session, nil
}

func (s *Session) Key() SessionKey {
	return s.key
}

func (s *Session) PeerID() string {
	return s.key.PeerID
}

func (s *Session) Role() Role {
	return s.role
}

func (s *Session) State() State {
	return State(s.state.Load())
}

// Whether the remote offer or answer has been applied.
func (s *Session) HasRemoteDescription() bool {
	return s.hasRemoteDescription.Load()
}

// Applies the answer of the remote peer. Only valid for offering sessions.
func (s *Session) ProcessAnswer(answer webrtc.SessionDescription) error {
	if s.role != RoleOfferer {
		s.logger.Warn("ignoring answer, we are the answering side")
		return ErrUnexpectedAnswer
	}

	return s.enqueue(func() {
		if s.hasRemoteDescription.Load() {
			s.logger.Warn("ignoring repeated answer")
			return
		}

		if err := s.connection.SetRemoteDescription(answer); err != nil {
			s.fault(ErrCantSetRemoteDescription, err)
			return
		}

		s.logger.Info("answer applied")
		s.telemetry.AddEvent("answer applied")
		s.remoteDescriptionApplied()
	})
}

// Applies a candidate of the remote peer, or keeps it until the remote description is known.
func (s *Session) ProcessRemoteCandidate(candidate webrtc.ICECandidateInit) error {
	return s.enqueue(func() {
		if !s.hasRemoteDescription.Load() {
			s.logger.Debug("remote description not set yet, queueing remote candidate")
			s.pendingCandidates = append(s.pendingCandidates, candidate)
			return
		}

		s.applyCandidate(candidate)
	})
}

// Marks the session as connected, i.e. media from the remote peer is flowing.
// Returns false if the session was already connected or closed.
func (s *Session) MarkConnected() bool {
	if !s.advance(StateConnected) {
		return false
	}

	if s.negotiationTimer != nil {
		s.negotiationTimer.Stop()
	}

	s.logger.Info("session connected")
	s.telemetry.AddEvent("connected")
	s.telemetry.SetAttributes(attribute.Bool("connected", true))

	return true
}

// Closes the session and seals its sink. Idempotent.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		// Seal first: closing the connection fires callbacks that would otherwise block on the sink.
		s.sink.Seal()
		s.advance(StateClosed)

		if s.negotiationTimer != nil {
			s.negotiationTimer.Stop()
		}

		s.worker.Stop()

		if err := s.connection.Close(); err != nil {
			s.logger.WithError(err).Error("failed to close peer connection")
		}

		s.logger.Info("session closed")
	})
}

func (s *Session) offer() {
	s.advance(StateNegotiating)
	s.attachLocalTracks()

	// Make sure we are able to receive every kind of media even if we don't send it.
	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
		if s.localStream.HasKind(kind) {
			continue
		}

		if err := s.connection.AddReceiveOnlyTransceiver(kind); err != nil {
			s.logger.WithError(err).WithField("kind", kind).Warn("failed to add receive-only transceiver")
		}
	}

	offer, err := s.connection.CreateOffer()
	if err != nil {
		s.fault(ErrCantCreateOffer, err)
		return
	}

	if err := s.connection.SetLocalDescription(offer); err != nil {
		s.fault(ErrCantSetLocalDescription, err)
		return
	}

	s.logger.Info("offer created")
	s.telemetry.AddEvent("offer created")
	s.send(LocalDescriptionReady{Description: offer})
}

func (s *Session) answer(offer webrtc.SessionDescription) {
	s.advance(StateNegotiating)

	if len(s.localStream.Tracks()) == 0 {
		s.logger.Warn("answering offer without local stream")
	}
	s.attachLocalTracks()

	if err := s.connection.SetRemoteDescription(offer); err != nil {
		s.fault(ErrCantSetRemoteDescription, err)
		return
	}

	s.remoteDescriptionApplied()

	answer, err := s.connection.CreateAnswer()
	if err != nil {
		s.fault(ErrCantCreateAnswer, err)
		return
	}

	if err := s.connection.SetLocalDescription(answer); err != nil {
		s.fault(ErrCantSetLocalDescription, err)
		return
	}

	s.logger.Info("answer created")
	s.telemetry.AddEvent("answer created")
	s.send(LocalDescriptionReady{Description: answer})
}

func (s *Session) attachLocalTracks() {
	for _, track := range s.localStream.Tracks() {
		if err := s.connection.AddTrack(track); err != nil {
			s.logger.WithError(err).WithField("track_id", track.ID()).Warn("failed to add local track")
		}
	}
}

// Flushes the queued remote candidates in the order of their arrival.
func (s *Session) remoteDescriptionApplied() {
	s.hasRemoteDescription.Store(true)

	pending := s.pendingCandidates
	s.pendingCandidates = nil

	if len(pending) > 0 {
		s.logger.WithField("count", len(pending)).Debug("applying queued remote candidates")
	}

	for _, candidate := range pending {
		s.applyCandidate(candidate)
	}
}

func (s *Session) applyCandidate(candidate webrtc.ICECandidateInit) {
	if err := s.connection.AddICECandidate(candidate); err != nil {
		s.fault(ErrCantAddICECandidate, err)
	}
}

// Moves the state forward. Returns false if the session is already at or past `to`.
func (s *Session) advance(to State) bool {
	for {
		current := s.state.Load()
		if State(current) >= to {
			return false
		}

		if s.state.CompareAndSwap(current, int32(to)) {
			return true
		}
	}
}

func (s *Session) enqueue(step func()) error {
	if err := s.worker.Send(step); err != nil {
		s.logger.Debug("session is closed, dropping negotiation step")
		return err
	}

	return nil
}

func (s *Session) send(content MessageContent) {
	if err := s.sink.Send(content); err != nil {
		s.logger.WithError(err).Debug("dropping message of a closed session")
	}
}

// Negotiation faults don't end the session.
func (s *Session) fault(kind error, err error) {
	s.logger.WithError(err).Error(kind.Error())
	s.telemetry.AddError(fmt.Errorf("%w: %v", kind, err))
}

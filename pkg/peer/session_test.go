package peer_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/matrix-org/rivulet/pkg/channel"
	"github.com/matrix-org/rivulet/pkg/media"
	"github.com/matrix-org/rivulet/pkg/media/mediatest"
	"github.com/matrix-org/rivulet/pkg/peer"
	"github.com/matrix-org/rivulet/pkg/webrtc_ext/webrtctest"
	"github.com/matrix-org/rivulet/pkg/worker"
	"github.com/pion/webrtc/v3"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 2 * time.Second

type harness struct {
	factory  *webrtctest.Factory
	messages chan channel.Message[peer.SessionKey, peer.MessageContent]
	key      peer.SessionKey
}

func newHarness() *harness {
	return &harness{
		factory:  webrtctest.NewFactory(),
		messages: make(chan channel.Message[peer.SessionKey, peer.MessageContent], 64),
		key:      peer.SessionKey{PeerID: "bob", Epoch: 1},
	}
}

func (h *harness) params(stream *media.LocalStream, config peer.Config) peer.Params {
	return peer.Params{
		Key:         h.key,
		Factory:     h.factory,
		LocalStream: stream,
		Sink:        channel.NewSink[peer.SessionKey, peer.MessageContent](h.key, h.messages),
		Logger:      logrus.NewEntry(logrus.New()),
		Config:      config,
	}
}

func (h *harness) connection(t *testing.T) *webrtctest.Connection {
	t.Helper()

	select {
	case connection := <-h.factory.Created():
		return connection
	case <-time.After(waitTimeout):
		t.Fatal("no connection created")
		return nil
	}
}

func expectMessage[T any](t *testing.T, h *harness) T {
	t.Helper()

	select {
	case message := <-h.messages:
		assert.Equal(t, h.key, message.Sender)
		content, ok := message.Content.(T)
		require.Truef(t, ok, "unexpected message %T", message.Content)
		return content
	case <-time.After(waitTimeout):
		var zero T
		t.Fatalf("no %T received", zero)
		return zero
	}
}

func expectNoMessage(t *testing.T, h *harness) {
	t.Helper()

	select {
	case message := <-h.messages:
		t.Fatalf("unexpected message %T", message.Content)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestOffererWithoutLocalStreamReceivesEverything(t *testing.T) {
	h := newHarness()

	session, err := peer.NewOfferer(h.params(nil, peer.Config{}))
	require.NoError(t, err)
	defer session.Close()

	ready := expectMessage[peer.LocalDescriptionReady](t, h)
	assert.Equal(t, webrtc.SDPTypeOffer, ready.Description.Type)

	connection := h.connection(t)
	assert.Empty(t, connection.Tracks())
	assert.Equal(t, []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo}, connection.ReceiveOnly())
	assert.Equal(t, &ready.Description, connection.LocalDescription())

	assert.Equal(t, peer.RoleOfferer, session.Role())
	assert.Equal(t, peer.StateNegotiating, session.State())
	assert.Equal(t, "bob", session.PeerID())
}

func TestOffererAttachesLocalTracks(t *testing.T) {
	h := newHarness()
	stream, err := media.NewPlaceholderStream("local")
	require.NoError(t, err)

	session, err := peer.NewOfferer(h.params(stream, peer.Config{}))
	require.NoError(t, err)
	defer session.Close()

	expectMessage[peer.LocalDescriptionReady](t, h)

	connection := h.connection(t)
	assert.Len(t, connection.Tracks(), 2)
	assert.Empty(t, connection.ReceiveOnly())
}

func TestAnswererWithoutLocalStream(t *testing.T) {
	h := newHarness()
	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "remote-offer"}

	session, err := peer.NewAnswerer(h.params(nil, peer.Config{}), offer)
	require.NoError(t, err)
	defer session.Close()

	ready := expectMessage[peer.LocalDescriptionReady](t, h)
	assert.Equal(t, webrtc.SDPTypeAnswer, ready.Description.Type)

	connection := h.connection(t)
	assert.Equal(t, &offer, connection.RemoteDescription())
	assert.Empty(t, connection.ReceiveOnly())
	assert.True(t, session.HasRemoteDescription())
	assert.Equal(t, peer.RoleAnswerer, session.Role())
}

func TestLocalCandidatesFollowLocalDescription(t *testing.T) {
	h := newHarness()

	session, err := peer.NewOfferer(h.params(nil, peer.Config{}))
	require.NoError(t, err)
	defer session.Close()

	connection := h.connection(t)
	connection.EmitCandidate("candidate-1")
	connection.EmitCandidate("candidate-2")
	connection.EmitGatheringComplete()

	expectMessage[peer.LocalDescriptionReady](t, h)
	assert.Equal(t, "candidate-1", expectMessage[peer.NewICECandidate](t, h).Candidate.Candidate)
	assert.Equal(t, "candidate-2", expectMessage[peer.NewICECandidate](t, h).Candidate.Candidate)
	expectMessage[peer.ICEGatheringComplete](t, h)
}

func TestRemoteCandidatesAreQueuedUntilAnswer(t *testing.T) {
	h := newHarness()

	session, err := peer.NewOfferer(h.params(nil, peer.Config{}))
	require.NoError(t, err)
	defer session.Close()

	expectMessage[peer.LocalDescriptionReady](t, h)
	connection := h.connection(t)

	for _, candidate := range []string{"c1", "c2", "c3"} {
		require.NoError(t, session.ProcessRemoteCandidate(webrtc.ICECandidateInit{Candidate: candidate}))
	}

	// Nothing can be applied without a remote description.
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, connection.AppliedCandidates())
	assert.False(t, session.HasRemoteDescription())

	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "remote-answer"}
	require.NoError(t, session.ProcessAnswer(answer))
	require.NoError(t, session.ProcessRemoteCandidate(webrtc.ICECandidateInit{Candidate: "c4"}))

	assert.Eventually(t, func() bool {
		return len(connection.AppliedCandidates()) == 4
	}, waitTimeout, 5*time.Millisecond)
	assert.Equal(t, []string{"c1", "c2", "c3", "c4"}, connection.AppliedCandidates())
	assert.Equal(t, &answer, connection.RemoteDescription())
}

func TestCandidatesArePreservedWhileAnswerIsSlow(t *testing.T) {
	h := newHarness()
	release := h.factory.HoldAnswers()
	defer release()

	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "remote-offer"}
	session, err := peer.NewAnswerer(h.params(nil, peer.Config{}), offer)
	require.NoError(t, err)
	defer session.Close()

	connection := h.connection(t)

	// Far more candidates than a session could ever buffer in a channel.
	expected := make([]string, 0, 500)
	for i := 0; i < 500; i++ {
		candidate := fmt.Sprintf("candidate-%d", i)
		expected = append(expected, candidate)
		require.NoError(t, session.ProcessRemoteCandidate(webrtc.ICECandidateInit{Candidate: candidate}))
	}

	release()
	expectMessage[peer.LocalDescriptionReady](t, h)

	assert.Eventually(t, func() bool {
		return len(connection.AppliedCandidates()) == len(expected)
	}, waitTimeout, 5*time.Millisecond)
	assert.Equal(t, expected, connection.AppliedCandidates())
}

func TestInvalidAnswerLeavesSessionIntact(t *testing.T) {
	h := newHarness()

	session, err := peer.NewOfferer(h.params(nil, peer.Config{}))
	require.NoError(t, err)
	defer session.Close()

	expectMessage[peer.LocalDescriptionReady](t, h)
	connection := h.connection(t)

	require.NoError(t, session.ProcessRemoteCandidate(webrtc.ICECandidateInit{Candidate: "c1"}))
	// The fake connection rejects empty descriptions.
	require.NoError(t, session.ProcessAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer}))
	require.NoError(t, session.ProcessAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "valid"}))

	assert.Eventually(t, func() bool {
		return len(connection.AppliedCandidates()) == 1
	}, waitTimeout, 5*time.Millisecond)
	assert.Equal(t, peer.StateNegotiating, session.State())
}

func TestAnswerToAnswererIsRejected(t *testing.T) {
	h := newHarness()
	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "remote-offer"}

	session, err := peer.NewAnswerer(h.params(nil, peer.Config{}), offer)
	require.NoError(t, err)
	defer session.Close()

	err = session.ProcessAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer"})
	assert.ErrorIs(t, err, peer.ErrUnexpectedAnswer)
}

func TestTrackArrivalIsReported(t *testing.T) {
	h := newHarness()

	session, err := peer.NewOfferer(h.params(nil, peer.Config{}))
	require.NoError(t, err)
	defer session.Close()

	expectMessage[peer.LocalDescriptionReady](t, h)
	connection := h.connection(t)

	audio := mediatest.NewTrack("audio", "remote-stream", webrtc.RTPCodecTypeAudio, 1)
	video := mediatest.NewTrack("video", "remote-stream", webrtc.RTPCodecTypeVideo, 2)
	connection.EmitTrack(audio)
	connection.EmitTrack(video)

	assert.Equal(t, "audio", expectMessage[peer.TrackReceived](t, h).Track.ID())
	assert.Equal(t, "video", expectMessage[peer.TrackReceived](t, h).Track.ID())
	assert.Equal(t, []webrtc.SSRC{2}, connection.KeyFrameRequests())
}

func TestStateOnlyAdvances(t *testing.T) {
	h := newHarness()

	session, err := peer.NewOfferer(h.params(nil, peer.Config{}))
	require.NoError(t, err)

	expectMessage[peer.LocalDescriptionReady](t, h)

	assert.True(t, session.MarkConnected())
	assert.False(t, session.MarkConnected())
	assert.Equal(t, peer.StateConnected, session.State())

	session.Close()
	assert.Equal(t, peer.StateClosed, session.State())
	assert.False(t, session.MarkConnected())
	assert.Equal(t, peer.StateClosed, session.State())
}

func TestNegotiationTimeout(t *testing.T) {
	h := newHarness()

	session, err := peer.NewOfferer(h.params(nil, peer.Config{NegotiationTimeout: 50 * time.Millisecond}))
	require.NoError(t, err)
	defer session.Close()

	expectMessage[peer.LocalDescriptionReady](t, h)
	expectMessage[peer.NegotiationTimedOut](t, h)
}

func TestConnectedSessionDoesNotTimeOut(t *testing.T) {
	h := newHarness()

	session, err := peer.NewOfferer(h.params(nil, peer.Config{NegotiationTimeout: 50 * time.Millisecond}))
	require.NoError(t, err)
	defer session.Close()

	expectMessage[peer.LocalDescriptionReady](t, h)
	require.True(t, session.MarkConnected())

	time.Sleep(100 * time.Millisecond)
	expectNoMessage(t, h)
}

func TestCloseSealsTheSession(t *testing.T) {
	h := newHarness()

	session, err := peer.NewOfferer(h.params(nil, peer.Config{}))
	require.NoError(t, err)

	expectMessage[peer.LocalDescriptionReady](t, h)
	connection := h.connection(t)

	session.Close()
	session.Close()

	assert.True(t, connection.Closed())
	assert.Equal(t, peer.StateClosed, session.State())

	// Late callbacks of the connection are not reported anymore.
	connection.EmitTrack(mediatest.NewTrack("audio", "remote", webrtc.RTPCodecTypeAudio, 1))
	connection.EmitState(webrtc.PeerConnectionStateFailed)
	expectNoMessage(t, h)

	err = session.ProcessRemoteCandidate(webrtc.ICECandidateInit{Candidate: "late"})
	assert.ErrorIs(t, err, worker.ErrWorkerClosed)
}

func TestCloseDuringInFlightAnswer(t *testing.T) {
	h := newHarness()
	release := h.factory.HoldAnswers()

	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "remote-offer"}
	session, err := peer.NewAnswerer(h.params(nil, peer.Config{}), offer)
	require.NoError(t, err)

	session.Close()
	release()

	expectNoMessage(t, h)
	assert.Equal(t, peer.StateClosed, session.State())
}

func TestConnectionStateChangesAreReported(t *testing.T) {
	h := newHarness()

	session, err := peer.NewOfferer(h.params(nil, peer.Config{}))
	require.NoError(t, err)
	defer session.Close()

	expectMessage[peer.LocalDescriptionReady](t, h)
	h.connection(t).EmitState(webrtc.PeerConnectionStateFailed)

	assert.Equal(t, webrtc.PeerConnectionStateFailed, expectMessage[peer.ConnectionStateChanged](t, h).State)
}

func TestConnectionFactoryFailure(t *testing.T) {
	h := newHarness()
	h.factory.FailNext(errors.New("no network"))

	_, err := peer.NewOfferer(h.params(nil, peer.Config{}))
	assert.ErrorIs(t, err, peer.ErrCantCreatePeerConnection)
}

func TestExactlyOneSideIsPolite(t *testing.T) {
	pairs := [][2]string{{"alice", "bob"}, {"b", "a"}, {"peer-10", "peer-9"}, {"x", "xy"}}

	for _, pair := range pairs {
		assert.NotEqual(t, peer.IsPolite(pair[0], pair[1]), peer.IsPolite(pair[1], pair[0]), pair)
	}
}

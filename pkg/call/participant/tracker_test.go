package participant_test

import (
	"errors"
	"testing"

	"github.com/matrix-org/rivulet/pkg/call/participant"
	"github.com/matrix-org/rivulet/pkg/channel"
	"github.com/matrix-org/rivulet/pkg/media"
	"github.com/matrix-org/rivulet/pkg/media/mediatest"
	"github.com/matrix-org/rivulet/pkg/peer"
	"github.com/matrix-org/rivulet/pkg/webrtc_ext/webrtctest"
	"github.com/pion/webrtc/v3"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	tracker   *participant.Tracker
	factory   *webrtctest.Factory
	messages  chan channel.Message[peer.SessionKey, peer.MessageContent]
	snapshots []map[string]media.RemoteStream
}

func newFixture() *fixture {
	f := &fixture{
		factory:  webrtctest.NewFactory(),
		messages: make(chan channel.Message[peer.SessionKey, peer.MessageContent], 256),
	}
	f.tracker = participant.NewParticipantTracker(func(streams map[string]media.RemoteStream) {
		f.snapshots = append(f.snapshots, streams)
	})

	return f
}

func (f *fixture) offerer(key peer.SessionKey) (*peer.Session, error) {
	return peer.NewOfferer(peer.Params{
		Key:     key,
		Factory: f.factory,
		Sink:    channel.NewSink[peer.SessionKey, peer.MessageContent](key, f.messages),
		Logger:  logrus.NewEntry(logrus.New()),
	})
}

func (f *fixture) add(t *testing.T, peerID string) *participant.Participant {
	t.Helper()

	p, created, err := f.tracker.GetOrCreate(peerID, f.offerer)
	require.NoError(t, err)
	require.True(t, created)

	return p
}

func TestGetOrCreateIsIdempotent(t *testing.T) {
	f := newFixture()
	defer f.tracker.RemoveAll()

	first := f.add(t, "bob")

	second, created, err := f.tracker.GetOrCreate("bob", func(peer.SessionKey) (*peer.Session, error) {
		t.Fatal("must not create a second session")
		return nil, nil
	})
	require.NoError(t, err)

	assert.False(t, created)
	assert.Same(t, first, second)
	assert.Equal(t, 1, f.tracker.Len())
	assert.Len(t, f.factory.Connections(), 1)
}

func TestFailedCreationLeavesNoParticipant(t *testing.T) {
	f := newFixture()
	f.factory.FailNext(errors.New("no network"))

	_, _, err := f.tracker.GetOrCreate("bob", f.offerer)
	assert.ErrorIs(t, err, peer.ErrCantCreatePeerConnection)
	assert.Nil(t, f.tracker.Get("bob"))
	assert.Equal(t, 0, f.tracker.Len())
}

func TestLookupRejectsStaleKeys(t *testing.T) {
	f := newFixture()
	defer f.tracker.RemoveAll()

	old := f.add(t, "bob")
	require.True(t, f.tracker.Remove("bob"))
	replacement := f.add(t, "bob")

	assert.NotEqual(t, old.Key, replacement.Key)
	assert.Nil(t, f.tracker.Lookup(old.Key))
	assert.Same(t, replacement, f.tracker.Lookup(replacement.Key))
	assert.Equal(t, peer.StateClosed, old.Session.State())
}

func TestPublishedStreamsAreSnapshots(t *testing.T) {
	f := newFixture()
	defer f.tracker.RemoveAll()

	f.add(t, "bob")
	f.add(t, "carol")

	audio := mediatest.NewTrack("bob-audio", "bob-stream", webrtc.RTPCodecTypeAudio, 1)
	video := mediatest.NewTrack("bob-video", "bob-stream", webrtc.RTPCodecTypeVideo, 2)

	assert.True(t, f.tracker.PublishTrack("bob", audio))
	assert.False(t, f.tracker.PublishTrack("bob", audio))
	assert.True(t, f.tracker.PublishTrack("bob", video))
	assert.False(t, f.tracker.PublishTrack("dave", audio))

	require.Len(t, f.snapshots, 2)
	assert.Len(t, f.snapshots[0]["bob"].Tracks, 1)
	assert.Len(t, f.snapshots[1]["bob"].Tracks, 2)
	assert.NotContains(t, f.snapshots[1], "carol", "participants without media are not published")

	// Removing a participant without a stream does not change the published set.
	require.True(t, f.tracker.Remove("carol"))
	assert.Len(t, f.snapshots, 2)

	require.True(t, f.tracker.Remove("bob"))
	require.Len(t, f.snapshots, 3)
	assert.Empty(t, f.snapshots[2])
	assert.False(t, f.tracker.Remove("bob"))
}

func TestSessionCountFollowsPresence(t *testing.T) {
	f := newFixture()
	defer f.tracker.RemoveAll()

	joined := map[string]bool{}
	events := []struct {
		peerID string
		joined bool
	}{
		{"a", true}, {"b", true}, {"a", true}, {"c", true}, {"b", false},
		{"b", false}, {"d", false}, {"b", true}, {"a", false}, {"c", true},
	}

	for _, event := range events {
		if event.joined {
			_, _, err := f.tracker.GetOrCreate(event.peerID, f.offerer)
			require.NoError(t, err)
			joined[event.peerID] = true
		} else {
			f.tracker.Remove(event.peerID)
			delete(joined, event.peerID)
		}

		assert.Equal(t, len(joined), f.tracker.Len())
	}

	assert.Equal(t, []string{"b", "c"}, f.tracker.PeerIDs())
}

func TestRemoveAllClosesEverySession(t *testing.T) {
	f := newFixture()

	bob := f.add(t, "bob")
	carol := f.add(t, "carol")
	f.tracker.PublishTrack("carol", mediatest.NewTrack("t", "s", webrtc.RTPCodecTypeAudio, 1))

	f.tracker.RemoveAll()

	assert.Equal(t, 0, f.tracker.Len())
	assert.Equal(t, peer.StateClosed, bob.Session.State())
	assert.Equal(t, peer.StateClosed, carol.Session.State())
	for _, connection := range f.factory.Connections() {
		assert.True(t, connection.Closed())
	}

	require.Len(t, f.snapshots, 2)
	assert.Empty(t, f.snapshots[1])
}

func TestForEachVisitsInPeerOrder(t *testing.T) {
	f := newFixture()
	defer f.tracker.RemoveAll()

	for _, peerID := range []string{"carol", "alice", "bob"} {
		f.add(t, peerID)
	}

	var visited []string
	f.tracker.ForEach(func(p *participant.Participant) {
		visited = append(visited, p.ID())
		assert.Equal(t, peer.RoleOfferer, p.Status().Role)
	})

	assert.Equal(t, []string{"alice", "bob", "carol"}, visited)
}

package main

import (
	"testing"
	"time"

	"github.com/matrix-org/rivulet/pkg/media"
	"github.com/matrix-org/rivulet/pkg/media/mediatest"
	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatsReporterFollowsStreams(t *testing.T) {
	reporter := newStatsReporter()
	assert.Contains(t, reporter.report(), "not receiving any media")

	track := mediatest.NewTrack("bob-audio", "bob-stream", webrtc.RTPCodecTypeAudio, 1)
	defer track.End()

	streams := map[string]media.RemoteStream{
		"bob": {PeerID: "bob", ID: "bob-stream", Tracks: []media.RemoteTrack{track}},
	}
	reporter.update(streams)
	// Known tracks are not read twice.
	reporter.update(streams)
	require.Len(t, reporter.tracks, 1)

	track.Push(1, []byte{1, 2, 3})
	track.Push(3, []byte{4, 5, 6})

	require.Eventually(t, func() bool {
		return reporter.tracks["bob-audio"].counter.Snapshot().Packets == 2
	}, time.Second, 5*time.Millisecond)

	snapshot := reporter.tracks["bob-audio"].counter.Snapshot()
	assert.Equal(t, uint64(1), snapshot.Lost)

	report := reporter.report()
	assert.Contains(t, report, "bob-audio")
	assert.Contains(t, report, "audio")

	reporter.update(map[string]media.RemoteStream{})
	assert.Empty(t, reporter.tracks)
}

func TestReceivedTracksListAudioFirst(t *testing.T) {
	video := mediatest.NewTrack("bob-video", "bob-stream", webrtc.RTPCodecTypeVideo, 2)
	audio := mediatest.NewTrack("bob-audio", "bob-stream", webrtc.RTPCodecTypeAudio, 1)
	defer video.End()
	defer audio.End()

	tracks := receivedTracks(media.RemoteStream{PeerID: "bob", Tracks: []media.RemoteTrack{video, audio}})

	require.Len(t, tracks, 2)
	assert.Equal(t, "bob-audio", tracks[0].ID())
	assert.Equal(t, "bob-video", tracks[1].ID())
}

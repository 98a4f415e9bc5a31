package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/matrix-org/rivulet/pkg/media"
	"github.com/pion/webrtc/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

var (
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#22d3ee"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
)

type trackStats struct {
	peerID  string
	kind    string
	counter *media.StatsCounter
}

// Reads every remote track and keeps receive statistics for it.
type statsReporter struct {
	tracks map[string]*trackStats
}

func newStatsReporter() *statsReporter {
	return &statsReporter{tracks: make(map[string]*trackStats)}
}

// Starts reading tracks that appeared and forgets the ones that are gone.
func (r *statsReporter) update(streams map[string]media.RemoteStream) {
	current := make(map[string]bool)

	for peerID, stream := range streams {
		for _, track := range receivedTracks(stream) {
			current[track.ID()] = true
			if _, found := r.tracks[track.ID()]; found {
				continue
			}

			stats := &trackStats{peerID: peerID, kind: track.Kind().String(), counter: &media.StatsCounter{}}
			r.tracks[track.ID()] = stats

			go func(track media.RemoteTrack) {
				logger := logrus.WithFields(logrus.Fields{"remote_peer": stats.peerID, "track_id": track.ID()})
				if err := media.Drain(track, stats.counter.Observe); err != nil {
					logger.WithError(err).Warn("failed to read remote track")
					return
				}
				logger.Debug("remote track ended")
			}(track)
		}
	}

	for trackID := range r.tracks {
		if !current[trackID] {
			delete(r.tracks, trackID)
		}
	}
}

// Audio and video tracks of the stream, tracks of other kinds can't be read as RTP.
func receivedTracks(stream media.RemoteStream) []media.RemoteTrack {
	return append(
		stream.TracksOfKind(webrtc.RTPCodecTypeAudio),
		stream.TracksOfKind(webrtc.RTPCodecTypeVideo)...,
	)
}

// Renders the statistics of every track as a table.
func (r *statsReporter) report() string {
	if len(r.tracks) == 0 {
		return mutedStyle.Render("not receiving any media")
	}

	trackIDs := maps.Keys(r.tracks)
	slices.Sort(trackIDs)

	rows := make([][]string, 0, len(trackIDs))
	for _, trackID := range trackIDs {
		stats := r.tracks[trackID]
		snapshot := stats.counter.Snapshot()

		rows = append(rows, []string{
			stats.peerID,
			trackID,
			stats.kind,
			fmt.Sprintf("%d", snapshot.Packets),
			fmt.Sprintf("%d", snapshot.Bytes),
			fmt.Sprintf("%d", snapshot.Lost),
		})
	}

	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		Headers("Peer", "Track", "Kind", "Packets", "Bytes", "Lost").
		Rows(rows...).
		Render()
}

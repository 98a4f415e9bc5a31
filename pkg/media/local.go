package media

import (
	"fmt"
	"sync/atomic"

	"github.com/pion/webrtc/v3"
)

// LocalStream is the set of local tracks that is offered to every remote peer of a call.
// It is shared by all sessions and never modified by them, its owner decides when to stop it.
type LocalStream struct {
	id     string
	tracks []webrtc.TrackLocal

	audioEnabled atomic.Bool
	videoEnabled atomic.Bool
	stopped      atomic.Bool
}

func NewLocalStream(id string, tracks ...webrtc.TrackLocal) *LocalStream {
	stream := &LocalStream{id: id, tracks: tracks}
	stream.audioEnabled.Store(true)
	stream.videoEnabled.Store(true)

	return stream
}

// Creates a stream with an Opus and a VP8 track that carry no samples until somebody writes
// to them. Useful for headless participants that want sendrecv media sections.
func NewPlaceholderStream(id string) (*LocalStream, error) {
	audio, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio",
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create audio track: %w", err)
	}

	video, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
		"video",
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create video track: %w", err)
	}

	return NewLocalStream(id, audio, video), nil
}

func (s *LocalStream) ID() string {
	return s.id
}

// Tracks to attach to a new session. Empty once the stream is stopped.
func (s *LocalStream) Tracks() []webrtc.TrackLocal {
	if s == nil || s.stopped.Load() {
		return nil
	}

	tracks := make([]webrtc.TrackLocal, len(s.tracks))
	copy(tracks, s.tracks)

	return tracks
}

// HasKind reports whether the stream carries at least one track of the given kind.
func (s *LocalStream) HasKind(kind webrtc.RTPCodecType) bool {
	for _, track := range s.Tracks() {
		if track.Kind() == kind {
			return true
		}
	}

	return false
}

func (s *LocalStream) SetAudioEnabled(enabled bool) {
	s.audioEnabled.Store(enabled)
}

func (s *LocalStream) AudioEnabled() bool {
	return s.audioEnabled.Load()
}

func (s *LocalStream) SetVideoEnabled(enabled bool) {
	s.videoEnabled.Store(enabled)
}

func (s *LocalStream) VideoEnabled() bool {
	return s.videoEnabled.Load()
}

// Stop the stream. Sessions created afterwards negotiate without local tracks.
func (s *LocalStream) Stop() {
	s.stopped.Store(true)
	s.audioEnabled.Store(false)
	s.videoEnabled.Store(false)
}

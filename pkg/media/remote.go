package media

import (
	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
)

// RemoteTrack is the part of a received track that the call layer relies on.
// It is satisfied by `*webrtc.TrackRemote`.
type RemoteTrack interface {
	ID() string
	StreamID() string
	Kind() webrtc.RTPCodecType
	SSRC() webrtc.SSRC
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

// RemoteStream groups the tracks received from a single remote peer.
type RemoteStream struct {
	// The remote peer that publishes the stream.
	PeerID string
	// Stream identifier as announced by the remote side (the first track's stream ID).
	ID     string
	Tracks []RemoteTrack
}

// WithTrack returns a copy of the stream that contains the track. The second return value
// is false if the stream already had a track with the same ID.
func (s RemoteStream) WithTrack(track RemoteTrack) (RemoteStream, bool) {
	for _, existing := range s.Tracks {
		if existing.ID() == track.ID() {
			return s, false
		}
	}

	if s.ID == "" {
		s.ID = track.StreamID()
	}

	tracks := make([]RemoteTrack, 0, len(s.Tracks)+1)
	tracks = append(tracks, s.Tracks...)
	s.Tracks = append(tracks, track)

	return s, true
}

// Tracks of the given kind.
func (s RemoteStream) TracksOfKind(kind webrtc.RTPCodecType) []RemoteTrack {
	var tracks []RemoteTrack
	for _, track := range s.Tracks {
		if track.Kind() == kind {
			tracks = append(tracks, track)
		}
	}

	return tracks
}

// Package mediatest provides in-memory tracks for tests.
package mediatest

import (
	"io"
	"sync"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
)

// Track is a `media.RemoteTrack` fed by `Push` and ended by `End`.
type Track struct {
	id       string
	streamID string
	kind     webrtc.RTPCodecType
	ssrc     webrtc.SSRC

	packets chan *rtp.Packet
	endOnce sync.Once
}

func NewTrack(id, streamID string, kind webrtc.RTPCodecType, ssrc webrtc.SSRC) *Track {
	return &Track{
		id:       id,
		streamID: streamID,
		kind:     kind,
		ssrc:     ssrc,
		packets:  make(chan *rtp.Packet, 64),
	}
}

func (t *Track) ID() string                { return t.id }
func (t *Track) StreamID() string          { return t.streamID }
func (t *Track) Kind() webrtc.RTPCodecType { return t.kind }
func (t *Track) SSRC() webrtc.SSRC         { return t.ssrc }

func (t *Track) ReadRTP() (*rtp.Packet, interceptor.Attributes, error) {
	packet, ok := <-t.packets
	if !ok {
		return nil, nil, io.EOF
	}

	return packet, interceptor.Attributes{}, nil
}

// Push queues a packet with the given sequence number and payload.
func (t *Track) Push(sequenceNumber uint16, payload []byte) {
	t.packets <- &rtp.Packet{
		Header:  rtp.Header{Version: 2, SequenceNumber: sequenceNumber, SSRC: uint32(t.ssrc)},
		Payload: payload,
	}
}

// End makes `ReadRTP` return `io.EOF` once the queued packets are consumed.
func (t *Track) End() {
	t.endOnce.Do(func() { close(t.packets) })
}

// Package webrtctest provides an in-memory `webrtc_ext.ConnectionFactory` for tests.
package webrtctest

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/matrix-org/rivulet/pkg/media"
	"github.com/matrix-org/rivulet/pkg/webrtc_ext"
	"github.com/pion/webrtc/v3"
)

var (
	ErrClosed              = errors.New("connection closed")
	ErrNoRemoteDescription = errors.New("remote description not set")
)

var sequence atomic.Uint64

// Factory records every connection it creates.
type Factory struct {
	mutex       sync.Mutex
	connections []*Connection
	created     chan *Connection
	// When set, `CreateAnswer` of every new connection blocks until the channel is closed.
	answerGate chan struct{}
	// Returned by the next `CreateConnection` call.
	failure error
}

func NewFactory() *Factory {
	return &Factory{created: make(chan *Connection, 128)}
}

func (f *Factory) CreateConnection(callbacks webrtc_ext.Callbacks) (webrtc_ext.Connection, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if f.failure != nil {
		err := f.failure
		f.failure = nil
		return nil, err
	}

	connection := &Connection{
		id:         sequence.Add(1),
		callbacks:  callbacks,
		answerGate: f.answerGate,
	}
	f.connections = append(f.connections, connection)
	f.created <- connection

	return connection, nil
}

// Created yields connections in the order of creation.
func (f *Factory) Created() <-chan *Connection {
	return f.created
}

func (f *Factory) Connections() []*Connection {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	return append([]*Connection(nil), f.connections...)
}

// FailNext makes the next `CreateConnection` call fail.
func (f *Factory) FailNext(err error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.failure = err
}

// HoldAnswers blocks `CreateAnswer` of connections created from now on until `release` is called.
func (f *Factory) HoldAnswers() (release func()) {
	gate := make(chan struct{})

	f.mutex.Lock()
	f.answerGate = gate
	f.mutex.Unlock()

	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

// Connection mimics the parts of a pion peer connection that matter for negotiation:
// descriptions, candidate application rules and callbacks.
type Connection struct {
	id         uint64
	callbacks  webrtc_ext.Callbacks
	answerGate chan struct{}

	mutex            sync.Mutex
	tracks           []webrtc.TrackLocal
	receiveOnly      []webrtc.RTPCodecType
	local            *webrtc.SessionDescription
	remote           *webrtc.SessionDescription
	candidates       []webrtc.ICECandidateInit
	keyFrameRequests []webrtc.SSRC
	closed           bool
}

func (c *Connection) AddTrack(track webrtc.TrackLocal) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.closed {
		return ErrClosed
	}

	c.tracks = append(c.tracks, track)
	return nil
}

func (c *Connection) AddReceiveOnlyTransceiver(kind webrtc.RTPCodecType) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.closed {
		return ErrClosed
	}

	c.receiveOnly = append(c.receiveOnly, kind)
	return nil
}

func (c *Connection) CreateOffer() (webrtc.SessionDescription, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.closed {
		return webrtc.SessionDescription{}, ErrClosed
	}

	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: fmt.Sprintf("offer-%d", c.id)}, nil
}

func (c *Connection) CreateAnswer() (webrtc.SessionDescription, error) {
	if c.answerGate != nil {
		<-c.answerGate
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.closed {
		return webrtc.SessionDescription{}, ErrClosed
	}

	if c.remote == nil || c.remote.Type != webrtc.SDPTypeOffer {
		return webrtc.SessionDescription{}, ErrNoRemoteDescription
	}

	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: fmt.Sprintf("answer-%d", c.id)}, nil
}

func (c *Connection) SetLocalDescription(description webrtc.SessionDescription) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.closed {
		return ErrClosed
	}

	c.local = &description
	return nil
}

func (c *Connection) SetRemoteDescription(description webrtc.SessionDescription) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.closed {
		return ErrClosed
	}

	if description.SDP == "" {
		return fmt.Errorf("empty %s", description.Type)
	}

	c.remote = &description
	return nil
}

func (c *Connection) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.closed {
		return ErrClosed
	}

	if c.remote == nil {
		return ErrNoRemoteDescription
	}

	c.candidates = append(c.candidates, candidate)
	return nil
}

func (c *Connection) RequestKeyFrame(ssrc webrtc.SSRC) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.keyFrameRequests = append(c.keyFrameRequests, ssrc)
	return nil
}

func (c *Connection) Close() error {
	c.mutex.Lock()
	alreadyClosed := c.closed
	c.closed = true
	c.mutex.Unlock()

	if !alreadyClosed {
		c.EmitState(webrtc.PeerConnectionStateClosed)
	}

	return nil
}

// Triggers the candidate callback as if a local candidate was gathered.
func (c *Connection) EmitCandidate(candidate string) {
	if c.callbacks.OnICECandidate != nil {
		c.callbacks.OnICECandidate(&webrtc.ICECandidateInit{Candidate: candidate})
	}
}

func (c *Connection) EmitGatheringComplete() {
	if c.callbacks.OnICECandidate != nil {
		c.callbacks.OnICECandidate(nil)
	}
}

func (c *Connection) EmitTrack(track media.RemoteTrack) {
	if c.callbacks.OnTrack != nil {
		c.callbacks.OnTrack(track)
	}
}

func (c *Connection) EmitState(state webrtc.PeerConnectionState) {
	if c.callbacks.OnConnectionStateChange != nil {
		c.callbacks.OnConnectionStateChange(state)
	}
}

func (c *Connection) Tracks() []webrtc.TrackLocal {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return append([]webrtc.TrackLocal(nil), c.tracks...)
}

func (c *Connection) ReceiveOnly() []webrtc.RTPCodecType {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return append([]webrtc.RTPCodecType(nil), c.receiveOnly...)
}

func (c *Connection) LocalDescription() *webrtc.SessionDescription {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.local
}

func (c *Connection) RemoteDescription() *webrtc.SessionDescription {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.remote
}

// Candidates that were applied, in the order of application.
func (c *Connection) AppliedCandidates() []string {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	applied := make([]string, 0, len(c.candidates))
	for _, candidate := range c.candidates {
		applied = append(applied, candidate.Candidate)
	}

	return applied
}

func (c *Connection) KeyFrameRequests() []webrtc.SSRC {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return append([]webrtc.SSRC(nil), c.keyFrameRequests...)
}

func (c *Connection) Closed() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.closed
}

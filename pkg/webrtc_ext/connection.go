package webrtc_ext

import (
	"fmt"

	"github.com/matrix-org/rivulet/pkg/media"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v3"
)

// Callbacks that a connection invokes from pion's goroutines.
type Callbacks struct {
	// Called for every gathered local candidate, with nil once gathering is complete.
	OnICECandidate func(*webrtc.ICECandidateInit)
	// Called once the first RTP packets of a remote track arrive.
	OnTrack func(media.RemoteTrack)
	// Called on every change of the aggregate connection state.
	OnConnectionStateChange func(webrtc.PeerConnectionState)
}

// Connection is the media connection to a single remote peer.
type Connection interface {
	AddTrack(track webrtc.TrackLocal) error
	// Adds a transceiver that only receives media of the given kind.
	AddReceiveOnlyTransceiver(kind webrtc.RTPCodecType) error
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(description webrtc.SessionDescription) error
	SetRemoteDescription(description webrtc.SessionDescription) error
	AddICECandidate(candidate webrtc.ICECandidateInit) error
	// Asks the remote sender of the given stream for a keyframe.
	RequestKeyFrame(ssrc webrtc.SSRC) error
	Close() error
}

// ConnectionFactory creates pre-configured connections.
type ConnectionFactory interface {
	CreateConnection(callbacks Callbacks) (Connection, error)
}

// Peer connection factory backed by pion.
type PeerConnectionFactory struct {
	api           *webrtc.API
	configuration webrtc.Configuration
}

func NewPeerConnectionFactory(config Config) (*PeerConnectionFactory, error) {
	api, err := CreateWebRTCAPI(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create WebRTC API: %w", err)
	}

	return &PeerConnectionFactory{api: api, configuration: config.Configuration()}, nil
}

func (f *PeerConnectionFactory) CreateConnection(callbacks Callbacks) (Connection, error) {
	peerConnection, err := f.api.NewPeerConnection(f.configuration)
	if err != nil {
		return nil, err
	}

	peerConnection.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if callbacks.OnICECandidate == nil {
			return
		}

		if candidate == nil {
			callbacks.OnICECandidate(nil)
			return
		}

		init := candidate.ToJSON()
		callbacks.OnICECandidate(&init)
	})

	peerConnection.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if callbacks.OnTrack != nil {
			callbacks.OnTrack(track)
		}
	})

	peerConnection.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		if callbacks.OnConnectionStateChange != nil {
			callbacks.OnConnectionStateChange(state)
		}
	})

	return &peerConnectionWrapper{peerConnection}, nil
}

type peerConnectionWrapper struct {
	peerConnection *webrtc.PeerConnection
}

func (w *peerConnectionWrapper) AddTrack(track webrtc.TrackLocal) error {
	sender, err := w.peerConnection.AddTrack(track)
	if err != nil {
		return err
	}

	// Incoming RTCP has to be read for the interceptors (NACK, reports) to work.
	go func() {
		buffer := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buffer); err != nil {
				return
			}
		}
	}()

	return nil
}

func (w *peerConnectionWrapper) AddReceiveOnlyTransceiver(kind webrtc.RTPCodecType) error {
	_, err := w.peerConnection.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	})

	return err
}

func (w *peerConnectionWrapper) CreateOffer() (webrtc.SessionDescription, error) {
	return w.peerConnection.CreateOffer(nil)
}

func (w *peerConnectionWrapper) CreateAnswer() (webrtc.SessionDescription, error) {
	return w.peerConnection.CreateAnswer(nil)
}

func (w *peerConnectionWrapper) SetLocalDescription(description webrtc.SessionDescription) error {
	return w.peerConnection.SetLocalDescription(description)
}

func (w *peerConnectionWrapper) SetRemoteDescription(description webrtc.SessionDescription) error {
	return w.peerConnection.SetRemoteDescription(description)
}

func (w *peerConnectionWrapper) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	return w.peerConnection.AddICECandidate(candidate)
}

func (w *peerConnectionWrapper) RequestKeyFrame(ssrc webrtc.SSRC) error {
	return w.peerConnection.WriteRTCP([]rtcp.Packet{
		&rtcp.PictureLossIndication{MediaSSRC: uint32(ssrc)},
	})
}

func (w *peerConnectionWrapper) Close() error {
	return w.peerConnection.Close()
}

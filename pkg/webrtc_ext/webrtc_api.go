package webrtc_ext

import (
	"fmt"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v3"
	"github.com/sirupsen/logrus"
)

// Creates Pion's WebRTC API with the default codecs, the default interceptors (NACK, RTCP reports)
// and the NAT settings from the configuration.
func CreateWebRTCAPI(config Config) (*webrtc.API, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("failed to register default codecs: %w", err)
	}

	// Each API needs its own registry, `webrtc.NewPeerConnection` would create one implicitly.
	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, registry); err != nil {
		return nil, fmt.Errorf("failed to set default interceptors: %w", err)
	}

	settings := webrtc.SettingEngine{LoggerFactory: NewLoggerFactory(logrus.WithField("component", "pion"))}
	if len(config.PublicIPs) > 0 {
		settings.SetNAT1To1IPs(config.PublicIPs, webrtc.ICECandidateTypeHost)
	}

	return webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(registry),
		webrtc.WithSettingEngine(settings),
	), nil
}

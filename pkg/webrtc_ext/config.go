package webrtc_ext

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pion/webrtc/v3"
)

var ErrInvalidICEServer = errors.New("invalid ICE server")

const DefaultSTUNServer = "stun:stun.l.google.com:19302"

// Configuration of the peer connections.
type Config struct {
	// STUN and TURN servers used to gather candidates.
	ICEServers []ICEServer `yaml:"iceServers"`
	// Only use relayed (TURN) candidates.
	ForceRelay bool `yaml:"forceRelay"`
	// Public IP addresses that are announced instead of the host candidates (1:1 NAT).
	PublicIPs []string `yaml:"ipAddresses"`
}

type ICEServer struct {
	URLs       []string `yaml:"urls"`
	Username   string   `yaml:"username"`
	Credential string   `yaml:"credential"`
}

func DefaultConfig() Config {
	return Config{ICEServers: []ICEServer{{URLs: []string{DefaultSTUNServer}}}}
}

func (c Config) Validate() error {
	for _, server := range c.ICEServers {
		if len(server.URLs) == 0 {
			return fmt.Errorf("%w: no URLs", ErrInvalidICEServer)
		}

		for _, url := range server.URLs {
			scheme, _, found := strings.Cut(url, ":")
			if !found {
				return fmt.Errorf("%w: %q has no scheme", ErrInvalidICEServer, url)
			}

			switch scheme {
			case "stun", "stuns":
			case "turn", "turns":
				if server.Username == "" || server.Credential == "" {
					return fmt.Errorf("%w: %q requires credentials", ErrInvalidICEServer, url)
				}
			default:
				return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidICEServer, scheme)
			}
		}
	}

	if c.ForceRelay && !c.hasTURN() {
		return fmt.Errorf("%w: relay-only policy without a TURN server", ErrInvalidICEServer)
	}

	return nil
}

// The pion configuration for a new peer connection.
func (c Config) Configuration() webrtc.Configuration {
	servers := make([]webrtc.ICEServer, 0, len(c.ICEServers))
	for _, server := range c.ICEServers {
		iceServer := webrtc.ICEServer{URLs: server.URLs}
		if server.Username != "" {
			iceServer.Username = server.Username
			iceServer.Credential = server.Credential
			iceServer.CredentialType = webrtc.ICECredentialTypePassword
		}

		servers = append(servers, iceServer)
	}

	configuration := webrtc.Configuration{ICEServers: servers}
	if c.ForceRelay {
		configuration.ICETransportPolicy = webrtc.ICETransportPolicyRelay
	}

	return configuration
}

func (c Config) hasTURN() bool {
	for _, server := range c.ICEServers {
		for _, url := range server.URLs {
			if strings.HasPrefix(url, "turn:") || strings.HasPrefix(url, "turns:") {
				return true
			}
		}
	}

	return false
}

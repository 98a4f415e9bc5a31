package signaling

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

var ErrInvalidConfig = errors.New("invalid signaling config")

// Configuration of the relay connection.
type Config struct {
	// Base URL of the relay, e.g. `ws://localhost:3001`.
	URL string `yaml:"url"`
	// How long to wait before re-dialing the relay after the connection is lost.
	ReconnectDelay time.Duration `yaml:"reconnectDelay"`
	// Interval of the keepalive pings.
	PingPeriod time.Duration `yaml:"pingPeriod"`
	// The connection is considered dead if nothing is read for this long.
	PongWait time.Duration `yaml:"pongWait"`
	// Deadline for a single write.
	WriteWait time.Duration `yaml:"writeWait"`
}

func DefaultConfig() Config {
	return Config{
		URL:            "ws://localhost:3001",
		ReconnectDelay: 3 * time.Second,
		PingPeriod:     54 * time.Second,
		PongWait:       60 * time.Second,
		WriteWait:      10 * time.Second,
	}
}

func (c Config) Validate() error {
	parsed, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if parsed.Scheme != "ws" && parsed.Scheme != "wss" {
		return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidConfig, parsed.Scheme)
	}

	if c.ReconnectDelay <= 0 || c.PingPeriod <= 0 || c.PongWait <= 0 || c.WriteWait <= 0 {
		return fmt.Errorf("%w: durations must be positive", ErrInvalidConfig)
	}

	if c.PingPeriod >= c.PongWait {
		return fmt.Errorf("%w: ping period must be shorter than pong wait", ErrInvalidConfig)
	}

	return nil
}

// The endpoint of a room member: `{base}/ws/{room}/{peer}`.
func EndpointURL(base, room, peerID string) (string, error) {
	if _, err := url.Parse(base); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	return strings.TrimRight(base, "/") + "/ws/" + url.PathEscape(room) + "/" + url.PathEscape(peerID), nil
}

package call

import (
	"errors"
	"time"
)

var ErrInvalidConfig = errors.New("invalid call config")

// Configuration of a call.
type Config struct {
	// Sessions that receive no media within this time are dropped. Zero disables the timeout.
	NegotiationTimeout time.Duration `yaml:"negotiationTimeout"`
	// How many received chat messages are kept for a slow consumer before new ones are dropped.
	ChatBufferSize int `yaml:"chatBufferSize"`
}

func DefaultConfig() Config {
	return Config{
		NegotiationTimeout: 30 * time.Second,
		ChatBufferSize:     32,
	}
}

func (c Config) Validate() error {
	if c.NegotiationTimeout < 0 || c.ChatBufferSize < 0 {
		return ErrInvalidConfig
	}

	return nil
}

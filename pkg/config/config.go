package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/matrix-org/rivulet/pkg/call"
	"github.com/matrix-org/rivulet/pkg/signaling"
	"github.com/matrix-org/rivulet/pkg/telemetry"
	"github.com/matrix-org/rivulet/pkg/webrtc_ext"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Client configuration.
type Config struct {
	// Relay connection.
	Signaling signaling.Config `yaml:"signaling"`
	// ICE servers and other peer connection settings.
	WebRTC webrtc_ext.Config `yaml:"webrtc"`
	// Call (mesh) configuration.
	Call call.Config `yaml:"call"`
	// Tracing. Disabled unless an exporter is configured.
	Telemetry telemetry.Config `yaml:"telemetry"`
	// Starting from which level to log stuff.
	LogLevel string `yaml:"log"`
}

// The configuration used for everything that is not set explicitly.
func Default() Config {
	return Config{
		Signaling: signaling.DefaultConfig(),
		WebRTC:    webrtc_ext.DefaultConfig(),
		Call:      call.DefaultConfig(),
		LogLevel:  "info",
	}
}

func (c Config) Validate() error {
	if err := c.Signaling.Validate(); err != nil {
		return err
	}

	if err := c.WebRTC.Validate(); err != nil {
		return err
	}

	return c.Call.Validate()
}

// Tries to load a config from the `CONFIG` environment variable.
// If the environment variable is not set, tries to load a config from the
// provided path to the config file (YAML). Without a path, the defaults are used.
func LoadConfig(path string) (*Config, error) {
	config, err := LoadConfigFromEnv()
	if err != nil {
		if !errors.Is(err, ErrNoConfigEnvVar) {
			return nil, err
		}

		if path == "" {
			logrus.Info("no config given, using defaults")
			return LoadConfigFromString("")
		}

		return LoadConfigFromPath(path)
	}

	return config, nil
}

// ErrNoConfigEnvVar is returned when the CONFIG environment variable is not set.
var ErrNoConfigEnvVar = errors.New("environment variable not set or invalid")

// Tries to load the config from environment variable (`CONFIG`).
func LoadConfigFromEnv() (*Config, error) {
	configEnv := os.Getenv("CONFIG")
	if configEnv == "" {
		return nil, ErrNoConfigEnvVar
	}

	return LoadConfigFromString(configEnv)
}

// Tries to load a config from the provided path.
func LoadConfigFromPath(path string) (*Config, error) {
	logrus.WithField("path", path).Info("loading config")

	file, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	return LoadConfigFromString(string(file))
}

// Load config from the provided string. Values missing from the string keep their defaults.
// Returns an error if the string is not a valid YAML or the resulting config is invalid.
func LoadConfigFromString(configString string) (*Config, error) {
	config := Default()
	if err := yaml.Unmarshal([]byte(configString), &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config values: %w", err)
	}

	return &config, nil
}

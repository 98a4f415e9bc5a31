package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/matrix-org/rivulet/pkg/call"
	"github.com/matrix-org/rivulet/pkg/config"
	"github.com/matrix-org/rivulet/pkg/media"
	"github.com/matrix-org/rivulet/pkg/profiling"
	"github.com/matrix-org/rivulet/pkg/signaling"
	"github.com/matrix-org/rivulet/pkg/telemetry"
	"github.com/matrix-org/rivulet/pkg/webrtc_ext"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var ErrCallEnded = errors.New("call ended unexpectedly")

var (
	flagPeerID           string
	flagRelayURL         string
	flagPlaceholderMedia bool
	flagStatsInterval    time.Duration
)

var joinCmd = &cobra.Command{
	Use:   "join <room>",
	Short: "Join a room and stay in the call until interrupted",
	Long: `Join a room on the relay and connect to every participant in it.

Lines typed on the standard input are sent to the room as chat messages,
except for "/audio on|off" and "/video on|off" which toggle the local media.

Examples:
  rivulet join standup
  rivulet join standup --peer-id alice --placeholder-media
  rivulet join standup --relay-url wss://relay.example.org --stats-interval 10s`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return joinRoom(cmd.Context(), args[0])
	},
}

func init() {
	flags := joinCmd.Flags()
	flags.StringVar(&flagPeerID, "peer-id", "", "ID of the local peer, a random one is generated if empty")
	flags.StringVar(&flagRelayURL, "relay-url", "", "URL of the relay, overrides the configured one")
	flags.BoolVar(&flagPlaceholderMedia, "placeholder-media", false, "publish placeholder audio and video tracks")
	flags.DurationVar(&flagStatsInterval, "stats-interval", 0, "how often to log receive statistics, 0 disables them")
}

func joinRoom(parent context.Context, room string) error {
	// Load the config file from the environment variable or path.
	cfg, err := config.LoadConfig(flagConfigPath)
	if err != nil {
		return fmt.Errorf("could not load config: %w", err)
	}

	if flagRelayURL != "" {
		cfg.Signaling.URL = flagRelayURL
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	setLogLevel(cfg.LogLevel)

	if flagCPUProfile != "" {
		stopProfiling, err := profiling.StartCPUProfiling(flagCPUProfile)
		if err != nil {
			return err
		}
		defer func() {
			if err := stopProfiling(); err != nil {
				logrus.WithError(err).Error("failed to stop CPU profiling")
			}
		}()
	}

	if flagMemProfile != "" {
		defer func() {
			if err := profiling.WriteMemoryProfile(flagMemProfile); err != nil {
				logrus.WithError(err).Error("failed to write memory profile")
			}
		}()
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Enabled() {
		provider, err := telemetry.SetupTelemetry(ctx, cfg.Telemetry)
		if err != nil {
			return err
		}
		defer func() {
			if err := provider.Shutdown(context.Background()); err != nil {
				logrus.WithError(err).Error("failed to flush traces")
			}
		}()
	}

	peerID := flagPeerID
	if peerID == "" {
		peerID = uuid.NewString()
	}

	logger := logrus.WithFields(logrus.Fields{"room_id": room, "local_peer": peerID})

	client, err := signaling.NewClient(cfg.Signaling, room, peerID, logger)
	if err != nil {
		return err
	}

	factory, err := webrtc_ext.NewPeerConnectionFactory(cfg.WebRTC)
	if err != nil {
		return err
	}

	var localStream *media.LocalStream
	if flagPlaceholderMedia {
		if localStream, err = media.NewPlaceholderStream(peerID); err != nil {
			return err
		}
		defer localStream.Stop()
	}

	c, err := call.Join(cfg.Call, call.Identity{RoomID: room, PeerID: peerID}, localStream, client, factory)
	if err != nil {
		return err
	}

	fmt.Printf("joined %s as %s\n", room, peerID)

	go readCommands(os.Stdin, c, localStream)

	return watch(ctx, c)
}

// Prints the state of the call until the context is done or the call ends.
func watch(ctx context.Context, c *call.Call) error {
	reporter := newStatsReporter()

	var ticks <-chan time.Time
	if flagStatsInterval > 0 {
		ticker := time.NewTicker(flagStatsInterval)
		defer ticker.Stop()
		ticks = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			c.Leave()
			fmt.Println("left the room")
			return nil

		case connected, ok := <-c.SignalingConnected():
			if !ok {
				return ErrCallEnded
			}
			if connected {
				fmt.Println("connected to the relay")
			} else {
				fmt.Println(mutedStyle.Render("relay connection lost, reconnecting"))
			}

		case streams, ok := <-c.RemoteStreams():
			if !ok {
				return ErrCallEnded
			}
			reporter.update(streams)
			fmt.Printf("receiving media from %d participant(s)\n", len(streams))

		case chat, ok := <-c.Chat():
			if !ok {
				return ErrCallEnded
			}
			fmt.Printf("[%s] %s: %s\n", chat.Timestamp.Local().Format(time.Kitchen), chat.Sender, chat.Text)

		case <-ticks:
			fmt.Println(reporter.report())
		}
	}
}

func readCommands(input io.Reader, c *call.Call, localStream *media.LocalStream) {
	scanner := bufio.NewScanner(input)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "":
		case (strings.HasPrefix(line, "/audio ") || strings.HasPrefix(line, "/video ")) && localStream == nil:
			fmt.Println("not publishing any media")
		case strings.HasPrefix(line, "/audio "):
			localStream.SetAudioEnabled(strings.TrimPrefix(line, "/audio ") == "on")
		case strings.HasPrefix(line, "/video "):
			localStream.SetVideoEnabled(strings.TrimPrefix(line, "/video ") == "on")
		default:
			if err := c.SendChat(line); err != nil {
				logrus.WithError(err).Warn("failed to send chat message")
			}
		}
	}
}

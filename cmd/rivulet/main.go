/*
Copyright 2022 The Matrix.org Foundation C.I.C.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	flagConfigPath string
	flagCPUProfile string
	flagMemProfile string
)

var rootCmd = &cobra.Command{
	Use:   "rivulet",
	Short: "Mesh video call client",
	Long: `Rivulet joins a room on a signaling relay and keeps a direct WebRTC
connection to every other participant of the room.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagConfigPath, "config", "", "configuration file path (YAML), the CONFIG environment variable has precedence")
	flags.StringVar(&flagCPUProfile, "cpu-profile", "", "write CPU profile to `file`")
	flags.StringVar(&flagMemProfile, "mem-profile", "", "write memory profile to `file` when exiting")

	rootCmd.AddCommand(joinCmd)
}

func main() {
	// Initialize logging subsystem (formatting, global logging framework etc).
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, ForceColors: true})

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		logrus.WithError(err).Error("exiting")
		os.Exit(1)
	}
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		logrus.SetLevel(logrus.DebugLevel)
	case "info":
		logrus.SetLevel(logrus.InfoLevel)
	case "warn":
		logrus.SetLevel(logrus.WarnLevel)
	case "error":
		logrus.SetLevel(logrus.ErrorLevel)
	case "fatal":
		logrus.SetLevel(logrus.FatalLevel)
	case "panic":
		logrus.SetLevel(logrus.PanicLevel)
	default:
		logrus.SetLevel(logrus.InfoLevel)
	}
}

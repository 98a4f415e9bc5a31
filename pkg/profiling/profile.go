package profiling

import (
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"

	"github.com/sirupsen/logrus"
)

// Starts CPU profiling into the given file and returns a function to stop profiling.
func StartCPUProfiling(path string) (func() error, error) {
	logrus.WithField("path", path).Info("initializing CPU profiling")

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("could not create CPU profile: %w", err)
	}

	if err := pprof.StartCPUProfile(file); err != nil {
		file.Close()
		return nil, fmt.Errorf("could not start CPU profile: %w", err)
	}

	return func() error {
		pprof.StopCPUProfile()

		if err := file.Close(); err != nil {
			return fmt.Errorf("could not close CPU profile: %w", err)
		}

		return nil
	}, nil
}

// Writes the current heap profile into the given file.
func WriteMemoryProfile(path string) error {
	logrus.WithField("path", path).Info("writing memory profile")

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("could not create memory profile: %w", err)
	}
	defer file.Close()

	runtime.GC()

	if err := pprof.WriteHeapProfile(file); err != nil {
		return fmt.Errorf("could not write memory profile: %w", err)
	}

	return nil
}

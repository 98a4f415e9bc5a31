package profiling_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/matrix-org/rivulet/pkg/profiling"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfilesAreWritten(t *testing.T) {
	dir := t.TempDir()

	cpu := filepath.Join(dir, "cpu.pprof")
	stop, err := profiling.StartCPUProfiling(cpu)
	require.NoError(t, err)
	require.NoError(t, stop())

	memory := filepath.Join(dir, "mem.pprof")
	require.NoError(t, profiling.WriteMemoryProfile(memory))

	for _, path := range []string{cpu, memory} {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Positive(t, info.Size())
	}
}

func TestUnwritableProfilePath(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing", "profile.pprof")

	_, err := profiling.StartCPUProfiling(missing)
	assert.Error(t, err)
	assert.Error(t, profiling.WriteMemoryProfile(missing))
}

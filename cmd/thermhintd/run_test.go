package main

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"codeberg.org/mutker/thermhint/internal/config"
	"codeberg.org/mutker/thermhint/internal/pid"
	"codeberg.org/mutker/thermhint/internal/platform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameThreadStaysPinned(t *testing.T) {
	seen := make(chan []int32)
	go func() {
		unlock := lockFrameThread()
		defer unlock()

		tids := make([]int32, 0, 50)
		for i := 0; i < 50; i++ {
			tids = append(tids, platform.Gettid())
			runtime.Gosched()
			time.Sleep(time.Millisecond)
		}
		seen <- tids
	}()

	tids := <-seen
	require.NotEmpty(t, tids)
	for _, tid := range tids {
		assert.Equal(t, tids[0], tid)
	}
}

func TestRunSimulatedPlatform(t *testing.T) {
	t.Setenv("THERMHINT_CONFIG", "")

	var err error
	loader, err = config.NewLoader()
	require.NoError(t, err)
	c, err := loader.Load()
	require.NoError(t, err)
	c.Platform = config.PlatformSim
	c.Metrics.Enabled = false
	c.Telemetry.Enabled = false

	pidDir = t.TempDir()
	t.Cleanup(func() { pidDir = "" })

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	require.NoError(t, run(ctx, c))

	_, err = os.Stat(filepath.Join(pidDir, pid.DefaultName))
	assert.True(t, os.IsNotExist(err))
}

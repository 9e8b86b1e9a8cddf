package workload

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"codeberg.org/mutker/thermhint/internal/coordinator"
	"codeberg.org/mutker/thermhint/internal/metrics"
	"codeberg.org/mutker/thermhint/internal/platform"
	"codeberg.org/mutker/thermhint/internal/platform/sim"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingCollector struct {
	mu        sync.Mutex
	snapshots []metrics.Snapshot
}

func (c *recordingCollector) Record(_ context.Context, s *metrics.Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshots = append(c.snapshots, *s)
	return nil
}

func (c *recordingCollector) Recent(context.Context, int) ([]metrics.Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]metrics.Snapshot(nil), c.snapshots...), nil
}

func (*recordingCollector) Close() error { return nil }

func setup(t *testing.T, clock clockwork.Clock, level int) (*sim.Device, *coordinator.Coordinator) {
	t.Helper()
	dev := sim.New(sim.Options{APILevel: level, Clock: clock, InitialHeadroom: 0.4})
	c := coordinator.New(coordinator.WithClock(clock))
	require.NoError(t, c.SetApplication(dev.Application()))
	t.Cleanup(func() { c.Close() })
	return dev, c
}

func TestScaleFor(t *testing.T) {
	tests := []struct {
		status platform.ThermalStatus
		want   float64
	}{
		{platform.StatusNone, 1},
		{platform.StatusLight, 0.85},
		{platform.StatusModerate, 0.5},
		{platform.StatusSevere, 0.25},
		{platform.StatusShutdown, 0.25},
		{platform.StatusError, 1},
	}

	for _, tt := range tests {
		assert.InDelta(t, tt.want, scaleFor(tt.status), 1e-9, tt.status.String())
	}
}

func TestFrameReportsWork(t *testing.T) {
	clock := clockwork.NewFakeClock()
	dev, c := setup(t, clock, platform.LevelHintSetThreads)

	h := New(c,
		WithClock(clock),
		WithWork(func(_ context.Context, budget time.Duration) { clock.Advance(budget) }),
	)

	h.Frame(context.Background())

	report, ok := dev.Last(sim.OpHintReport)
	require.True(t, ok)
	assert.InDelta(t, float64(platform.DefaultTargetNanos)*0.6, float64(report.Value), 1)

	update, ok := dev.Last(sim.OpHintUpdateTarget)
	require.True(t, ok)
	assert.Equal(t, platform.DefaultTargetNanos, update.Value)
	assert.Equal(t, int64(1), h.Frames())
}

func TestThrottlingScalesWork(t *testing.T) {
	clock := clockwork.NewFakeClock()
	dev, c := setup(t, clock, platform.LevelHintSetThreads)

	h := New(c,
		WithClock(clock),
		WithWork(func(_ context.Context, budget time.Duration) { clock.Advance(budget) }),
	)
	c.SetThermalListener(h.OnThermalStatus)

	c.SetThermalStatus(platform.StatusSevere)
	assert.InDelta(t, 0.25, h.Scale(), 1e-9)

	h.Frame(context.Background())
	report, _ := dev.Last(sim.OpHintReport)
	assert.InDelta(t, float64(platform.DefaultTargetNanos)*0.6*0.25, float64(report.Value), 1)

	c.SetThermalStatus(platform.StatusNone)
	assert.InDelta(t, 1, h.Scale(), 1e-9)
}

func TestFrameRecordsSnapshots(t *testing.T) {
	clock := clockwork.NewFakeClock()
	_, c := setup(t, clock, platform.LevelHintManager)
	collector := &recordingCollector{}

	h := New(c,
		WithClock(clock),
		WithCollector(collector),
		WithWork(func(_ context.Context, budget time.Duration) { clock.Advance(budget) }),
	)
	for i := 0; i < 3; i++ {
		h.Frame(context.Background())
	}

	got, err := collector.Recent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, got, 3)

	s := got[2]
	assert.Equal(t, string(platform.TierDirect), s.HintTier)
	assert.Equal(t, string(platform.TierDirect), s.ThermalTier)
	assert.Equal(t, 1, s.Threads)
	assert.Equal(t, c.HintSession().ID().String(), s.SessionID)
	assert.Equal(t, time.Duration(platform.DefaultTargetNanos), s.Target)
	assert.InDelta(t, 0.4, s.Headroom, 1e-6)
	assert.False(t, s.Throttled)
}

func TestRunWorkersJoinAndLeave(t *testing.T) {
	clock := clockwork.NewRealClock()
	dev, c := setup(t, clock, platform.LevelHintSetThreads)

	var next atomic.Int32
	next.Store(5000)

	h := New(c,
		WithClock(clock),
		WithWorkers(2),
		WithFrameInterval(time.Millisecond),
		WithThreadID(func() int32 { return next.Add(1) }),
		WithWork(func(context.Context, time.Duration) {}),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, h.Run(ctx))

	assert.Positive(t, h.Frames())
	assert.Equal(t, 4, dev.Count(sim.OpHintSetThreads))
	assert.Len(t, c.HintSession().Threads(), 1)
	assert.Equal(t, 1, dev.Count(sim.OpThermalRegister))
	assert.Equal(t, 1, dev.Count(sim.OpThermalUnregister))
}

func TestRunRecreatesOnOlderPlatforms(t *testing.T) {
	clock := clockwork.NewRealClock()
	dev, c := setup(t, clock, platform.LevelHintManager)

	var next atomic.Int32
	next.Store(7000)

	h := New(c,
		WithClock(clock),
		WithWorkers(1),
		WithFrameInterval(time.Millisecond),
		WithThreadID(func() int32 { return next.Add(1) }),
		WithWork(func(context.Context, time.Duration) {}),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, h.Run(ctx))

	// Initial session plus one recreation per join and leave.
	assert.Equal(t, 3, dev.Count(sim.OpHintCreate))
	assert.Equal(t, 1, dev.OpenSessions())
	assert.Equal(t, int64(2), c.HintSession().Recreations())
}

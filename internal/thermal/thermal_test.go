package thermal_test

import (
	"sync"
	"testing"
	"time"

	"codeberg.org/mutker/thermhint/internal/errors"
	"codeberg.org/mutker/thermhint/internal/platform"
	"codeberg.org/mutker/thermhint/internal/platform/sim"
	"codeberg.org/mutker/thermhint/internal/thermal"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type transition struct {
	previous, current platform.ThermalStatus
}

type recorder struct {
	mu    sync.Mutex
	calls []transition
}

func (r *recorder) listen(previous, current platform.ThermalStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, transition{previous, current})
}

func (r *recorder) get() []transition {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]transition(nil), r.calls...)
}

func newMonitor(t *testing.T, level int) (*thermal.Monitor, *sim.Device, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	dev := sim.New(sim.Options{APILevel: level, Clock: clock, InitialHeadroom: 0.4})
	m := thermal.New(thermal.WithClock(clock))
	require.NoError(t, m.Initialize(dev.Application()))
	t.Cleanup(func() { _ = m.Close() })
	return m, dev, clock
}

func TestSetStatusNotifiesEveryCall(t *testing.T) {
	m := thermal.New()
	rec := &recorder{}
	m.SetListener(rec.listen)

	sequence := []platform.ThermalStatus{
		platform.StatusLight,
		platform.StatusLight,
		platform.StatusSevere,
		platform.StatusNone,
	}
	for _, s := range sequence {
		m.SetStatus(s)
		assert.Equal(t, s, m.Status())
	}

	assert.Equal(t, []transition{
		{platform.StatusNone, platform.StatusLight},
		{platform.StatusLight, platform.StatusLight},
		{platform.StatusLight, platform.StatusSevere},
		{platform.StatusSevere, platform.StatusNone},
	}, rec.get())
}

func TestReplacingListener(t *testing.T) {
	m := thermal.New()
	first, second := &recorder{}, &recorder{}

	m.SetListener(first.listen)
	m.SetStatus(platform.StatusLight)
	m.SetListener(second.listen)
	m.SetStatus(platform.StatusModerate)
	m.SetStatus(platform.StatusSevere)

	assert.Len(t, first.get(), 1)
	assert.Equal(t, []transition{
		{platform.StatusLight, platform.StatusModerate},
		{platform.StatusModerate, platform.StatusSevere},
	}, second.get())

	m.SetListener(nil)
	m.SetStatus(platform.StatusNone)
	assert.Len(t, second.get(), 2)
}

func TestMonitorIsRateLimited(t *testing.T) {
	for _, level := range []int{platform.LevelThermalHeadroom, platform.LevelThermalManager} {
		m, dev, clock := newMonitor(t, level)
		require.Equal(t, 1, dev.Count(sim.OpThermalHeadroom), "initialize seeds headroom")
		assert.InDelta(t, 0.4, m.Headroom(), 1e-6)

		dev.SetHeadroom(0.8)
		for i := 0; i < 50; i++ {
			m.Monitor()
			clock.Advance(10 * time.Millisecond)
		}
		assert.Equal(t, 1, dev.Count(sim.OpThermalHeadroom), "level %d", level)
		assert.InDelta(t, 0.4, m.Headroom(), 1e-6)

		clock.Advance(500 * time.Millisecond)
		m.Monitor()
		m.Monitor()
		assert.Equal(t, 2, dev.Count(sim.OpThermalHeadroom), "level %d", level)
		assert.InDelta(t, 0.8, m.Headroom(), 1e-6)
	}
}

func TestHeadroomForecastMatchesInterval(t *testing.T) {
	clock := clockwork.NewFakeClock()
	dev := sim.New(sim.Options{APILevel: platform.LevelThermalManager, Clock: clock})
	m := thermal.New(thermal.WithClock(clock), thermal.WithRefreshInterval(2*time.Second))
	require.NoError(t, m.Initialize(dev.Application()))

	e, ok := dev.Last(sim.OpThermalHeadroom)
	require.True(t, ok)
	assert.Equal(t, int64(2*time.Second), e.Value)
}

func TestPolledStatusChangeIsForwarded(t *testing.T) {
	m, dev, clock := newMonitor(t, platform.LevelThermalManager)
	rec := &recorder{}
	m.SetListener(rec.listen)

	clock.Advance(time.Second)
	m.Monitor()
	assert.Empty(t, rec.get(), "unchanged polled status is not forwarded")

	dev.Push(platform.StatusSevere) // not registered: only the device state changes
	clock.Advance(time.Second)
	m.Monitor()

	assert.Equal(t, []transition{{platform.StatusNone, platform.StatusSevere}}, rec.get())
	assert.Equal(t, platform.StatusSevere, m.Status())
}

func TestPlatformListenerRegistration(t *testing.T) {
	m, dev, _ := newMonitor(t, platform.LevelThermalManager)
	rec := &recorder{}
	m.SetListener(rec.listen)

	require.NoError(t, m.RegisterPlatformListener())
	require.NoError(t, m.RegisterPlatformListener())
	assert.Equal(t, 1, dev.Count(sim.OpThermalRegister))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		dev.Push(platform.StatusCritical)
	}()
	wg.Wait()

	assert.Equal(t, platform.StatusCritical, m.Status())
	assert.Equal(t, []transition{{platform.StatusNone, platform.StatusCritical}}, rec.get())

	require.NoError(t, m.UnregisterPlatformListener())
	require.NoError(t, m.UnregisterPlatformListener())
	assert.Equal(t, 1, dev.Count(sim.OpThermalUnregister))

	dev.Push(platform.StatusNone)
	assert.Equal(t, platform.StatusCritical, m.Status())
}

func TestReflectiveTier(t *testing.T) {
	m, dev, _ := newMonitor(t, platform.LevelThermalHeadroom)
	assert.Equal(t, platform.TierReflective, m.Tier())
	assert.Equal(t, 0, dev.Count(sim.OpThermalAcquire))

	// No push callback on this tier; registration is a no-op.
	require.NoError(t, m.RegisterPlatformListener())
	assert.Equal(t, 0, dev.Count(sim.OpThermalRegister))

	require.NoError(t, m.Close())
	assert.EqualValues(t, 0, dev.Registry().Outstanding())
}

func TestCapabilityAbsent(t *testing.T) {
	tests := []struct {
		name string
		opts sim.Options
	}{
		{"no services", sim.Options{APILevel: 29, NoServices: true}},
		{"headroom method missing", sim.Options{APILevel: 29}},
		{"direct hidden and no services", sim.Options{APILevel: 33, NoDirect: true, NoServices: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := sim.New(tt.opts)
			m := thermal.New()

			err := m.Initialize(dev.Application())
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, errors.ErrCapabilityAbsent))
			assert.Equal(t, platform.TierUnsupported, m.Tier())

			m.Monitor()
			assert.Zero(t, m.Headroom())
			require.NoError(t, m.RegisterPlatformListener())
			require.NoError(t, m.Close())
			if reg := dev.Registry(); reg != nil {
				assert.EqualValues(t, 0, reg.Outstanding())
			}
		})
	}
}

func TestCloseReleasesDirectManager(t *testing.T) {
	clock := clockwork.NewFakeClock()
	dev := sim.New(sim.Options{APILevel: platform.LevelThermalManager, Clock: clock})
	m := thermal.New(thermal.WithClock(clock))
	require.NoError(t, m.Initialize(dev.Application()))
	require.NoError(t, m.RegisterPlatformListener())

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	assert.Equal(t, 1, dev.Count(sim.OpThermalUnregister))
	assert.Equal(t, 1, dev.Count(sim.OpThermalRelease))
	assert.Equal(t, platform.TierUnsupported, m.Tier())
}

func TestConcurrentPushAndPoll(t *testing.T) {
	m, dev, clock := newMonitor(t, platform.LevelThermalManager)
	require.NoError(t, m.RegisterPlatformListener())

	var wg sync.WaitGroup
	calls := 0
	var mu sync.Mutex
	m.SetListener(func(_, _ platform.ThermalStatus) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			dev.Push(platform.ThermalStatus(i % 4))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			clock.Advance(100 * time.Millisecond)
			m.Monitor()
			_ = m.Status()
			_ = m.Headroom()
		}
	}()
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, calls, 100)
}

package sysfs

import (
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"codeberg.org/mutker/thermhint/internal/coordinator"
	"codeberg.org/mutker/thermhint/internal/errors"
	"codeberg.org/mutker/thermhint/internal/hint"
	"codeberg.org/mutker/thermhint/internal/logger"
	"codeberg.org/mutker/thermhint/internal/platform"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type trip struct {
	kind string
	temp int64
}

func writeZone(t *testing.T, root, name, kind string, temp int64, trips ...trip) string {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	write(t, filepath.Join(dir, "type"), kind)
	setTemp(t, dir, temp)
	for i, tp := range trips {
		write(t, filepath.Join(dir, "trip_point_"+strconv.Itoa(i)+"_type"), tp.kind)
		write(t, filepath.Join(dir, "trip_point_"+strconv.Itoa(i)+"_temp"), strconv.FormatInt(tp.temp, 10))
	}
	return dir
}

func setTemp(t *testing.T, dir string, temp int64) {
	t.Helper()
	write(t, filepath.Join(dir, "temp"), strconv.FormatInt(temp, 10))
}

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content+"\n"), 0o644))
}

type clampRecorder struct {
	mu    sync.Mutex
	calls map[int32][]uint32
	fail  map[int32]bool
}

func newClampRecorder() *clampRecorder {
	return &clampRecorder{calls: map[int32][]uint32{}, fail: map[int32]bool{}}
}

func (r *clampRecorder) apply(tid int32, utilMin uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail[tid] {
		return os.ErrPermission
	}
	r.calls[tid] = append(r.calls[tid], utilMin)
	return nil
}

func (r *clampRecorder) last(tid int32) (uint32, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.calls[tid]
	if len(c) == 0 {
		return 0, false
	}
	return c[len(c)-1], true
}

func TestDiscoverZones(t *testing.T) {
	root := t.TempDir()
	writeZone(t, root, "thermal_zone1", "x86_pkg_temp", 40000,
		trip{"critical", 105000}, trip{"passive", 90000}, trip{"hot", 95000})
	writeZone(t, root, "thermal_zone0", "acpitz", 30000, trip{"critical", 100000})
	writeZone(t, root, "thermal_zone2", "bare", 19000)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "cooling_device0"), 0o755))

	zones, err := DiscoverZones(root)
	require.NoError(t, err)
	require.Len(t, zones, 3)

	assert.Equal(t, "thermal_zone0", zones[0].Name)
	assert.Equal(t, "acpitz", zones[0].Type)
	assert.Equal(t, int64(90000), zones[0].severe)
	assert.Equal(t, int64(90000), zones[1].severe)
	assert.Equal(t, int64(defaultSevereMilliC), zones[2].severe)

	h, err := zones[1].Headroom()
	require.NoError(t, err)
	assert.InDelta(t, 40.0/90.0, h, 1e-6)
}

func TestDiscoverZonesEmpty(t *testing.T) {
	_, err := DiscoverZones(t.TempDir())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCapabilityAbsent))
}

func TestThermalManagerHeadroomAndStatus(t *testing.T) {
	root := t.TempDir()
	clock := clockwork.NewFakeClock()
	cool := writeZone(t, root, "thermal_zone0", "cpu", 45000, trip{"passive", 90000})
	writeZone(t, root, "thermal_zone1", "gpu", 60000, trip{"passive", 100000})

	mgr, err := NewThermalManager(Options{Root: root, Clock: clock, Logger: logger.Nop()})
	require.NoError(t, err)
	defer mgr.Release()

	h, err := mgr.Headroom(0)
	require.NoError(t, err)
	assert.InDelta(t, 0.6, h, 1e-6)

	status, err := mgr.Status()
	require.NoError(t, err)
	assert.Equal(t, platform.StatusNone, status)

	// Hottest zone wins, and a rising trend is extrapolated.
	setTemp(t, cool, 81000)
	clock.Advance(time.Second)
	h, err = mgr.Headroom(time.Second)
	require.NoError(t, err)
	assert.InDelta(t, 0.9+0.3, h, 1e-5)

	status, err = mgr.Status()
	require.NoError(t, err)
	assert.Equal(t, platform.StatusModerate, status)
}

func TestThermalManagerListener(t *testing.T) {
	root := t.TempDir()
	clock := clockwork.NewFakeClock()
	zone := writeZone(t, root, "thermal_zone0", "cpu", 30000, trip{"passive", 90000})

	mgr, err := NewThermalManager(Options{Root: root, Clock: clock, PollInterval: time.Second, Logger: logger.Nop()})
	require.NoError(t, err)
	defer mgr.Release()

	got := make(chan platform.ThermalStatus, 1)
	require.NoError(t, mgr.RegisterStatusListener(func(s platform.ThermalStatus) { got <- s }))

	setTemp(t, zone, 95000)
	clock.BlockUntil(1)
	clock.Advance(time.Second)

	select {
	case s := <-got:
		assert.Equal(t, platform.StatusSevere, s)
	case <-time.After(5 * time.Second):
		t.Fatal("listener not invoked")
	}

	require.NoError(t, mgr.UnregisterStatusListener())
	require.NoError(t, mgr.RegisterStatusListener(func(platform.ThermalStatus) {}))
}

func TestThermalManagerReleased(t *testing.T) {
	root := t.TempDir()
	writeZone(t, root, "thermal_zone0", "cpu", 30000)

	mgr, err := NewThermalManager(Options{Root: root, Logger: logger.Nop()})
	require.NoError(t, err)
	require.NoError(t, mgr.Release())

	_, err = mgr.Headroom(0)
	assert.True(t, errors.HasCode(err, errors.ErrReferenceReleased))
}

func TestNextUtilMin(t *testing.T) {
	tests := []struct {
		name           string
		current        uint32
		actual, target int64
		want           uint32
	}{
		{"on target", 100, 16, 16, 100},
		{"over budget", 0, 20, 16, 128},
		{"under budget", 128, 12, 16, 0},
		{"saturates", 1000, 64, 16, utilClampMax},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, nextUtilMin(tt.current, tt.actual, tt.target))
		})
	}
}

func TestHintSessionClamp(t *testing.T) {
	rec := newClampRecorder()
	mgr := NewHintManager(Options{setUtilMin: rec.apply, Logger: logger.Nop()})

	_, err := mgr.CreateSession(nil, 16_000_000)
	assert.True(t, errors.HasCode(err, errors.ErrSessionCreation))

	s, err := mgr.CreateSession([]int32{10, 11}, 16_000_000)
	require.NoError(t, err)

	require.NoError(t, s.ReportActualWorkDuration(20_000_000))
	v, ok := rec.last(10)
	require.True(t, ok)
	assert.Equal(t, uint32(128), v)
	v, _ = rec.last(11)
	assert.Equal(t, uint32(128), v)

	// No change, no syscall.
	require.NoError(t, s.ReportActualWorkDuration(16_000_000))
	assert.Len(t, rec.calls[10], 1)

	setter, ok := s.(platform.ThreadSetter)
	require.True(t, ok)
	require.NoError(t, setter.SetThreads([]int32{11, 12}))
	v, _ = rec.last(10)
	assert.Equal(t, uint32(0), v)
	v, _ = rec.last(12)
	assert.Equal(t, uint32(128), v)

	require.NoError(t, s.Close())
	v, _ = rec.last(12)
	assert.Equal(t, uint32(0), v)

	assert.True(t, errors.HasCode(s.ReportActualWorkDuration(1), errors.ErrSessionClosed))
	assert.NoError(t, s.Close())
}

func TestHintSessionClampFailure(t *testing.T) {
	rec := newClampRecorder()
	rec.fail[7] = true
	mgr := NewHintManager(Options{setUtilMin: rec.apply, Logger: logger.Nop()})

	s, err := mgr.CreateSession([]int32{7, 8}, 10)
	require.NoError(t, err)

	err = s.ReportActualWorkDuration(20)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrSchedulerHintFailed))
	_, ok := rec.last(8)
	assert.True(t, ok)
}

func TestApplicationWithCoordinator(t *testing.T) {
	root := t.TempDir()
	writeZone(t, root, "thermal_zone0", "cpu", 45000, trip{"passive", 90000})
	rec := newClampRecorder()
	clock := clockwork.NewFakeClock()

	app := Application("test", Options{Root: root, Clock: clock, setUtilMin: rec.apply, Logger: logger.Nop()})
	app.ThreadID = func() int32 { return 100 }

	c := coordinator.New(coordinator.WithClock(clock), coordinator.WithLogger(logger.Nop()))
	require.NoError(t, c.SetApplication(app))

	caps := c.Capabilities()
	assert.Equal(t, platform.TierDirect, caps.Thermal)
	assert.Equal(t, platform.TierDirect, caps.Hint)
	assert.Equal(t, hint.PolicySetThreads, caps.ThreadSync)
	assert.InDelta(t, 0.5, c.ThermalHeadroom(), 1e-6)

	c.BeginPerfHintSession()
	clock.Advance(time.Duration(2 * platform.DefaultTargetNanos))
	c.EndPerfHintSession(platform.DefaultTargetNanos)
	v, ok := rec.last(100)
	require.True(t, ok)
	assert.Equal(t, uint32(512), v)

	c.AddThreadIdToHintSession(101)
	v, _ = rec.last(101)
	assert.Equal(t, uint32(512), v)

	require.NoError(t, c.Close())
	v, _ = rec.last(101)
	assert.Zero(t, v)
}

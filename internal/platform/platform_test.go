package platform_test

import (
	"testing"

	"codeberg.org/mutker/thermhint/internal/platform"
	"github.com/stretchr/testify/assert"
)

func TestStatusFromHeadroom(t *testing.T) {
	tests := []struct {
		headroom float32
		want     platform.ThermalStatus
	}{
		{-0.1, platform.StatusError},
		{0, platform.StatusNone},
		{0.69, platform.StatusNone},
		{0.7, platform.StatusLight},
		{0.9, platform.StatusModerate},
		{1.0, platform.StatusSevere},
		{1.15, platform.StatusCritical},
		{1.25, platform.StatusEmergency},
		{1.5, platform.StatusShutdown},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, platform.StatusFromHeadroom(tt.headroom), "headroom %v", tt.headroom)
	}
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "severe", platform.StatusSevere.String())
	assert.Equal(t, "status(42)", platform.ThermalStatus(42).String())
	assert.True(t, platform.StatusModerate.Throttled())
	assert.False(t, platform.StatusLight.Throttled())
}

func TestCurrentThreadID(t *testing.T) {
	app := &platform.Application{ThreadID: func() int32 { return 77 }}
	assert.EqualValues(t, 77, app.CurrentThreadID())

	var none *platform.Application
	assert.Positive(t, none.CurrentThreadID())
}

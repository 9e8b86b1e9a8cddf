package errors_test

import (
	"fmt"
	"testing"

	"codeberg.org/mutker/thermhint/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessages(t *testing.T) {
	f := errors.New()

	err := f.New(errors.ErrCapabilityAbsent)
	assert.Equal(t, "Platform capability not available", err.Error())
	assert.Equal(t, errors.ErrCapabilityAbsent, err.Code())

	err = f.WithData(errors.ErrMethodNotFound, "setThreads")
	assert.Equal(t, "Service method not found: setThreads", err.Error())
	assert.Equal(t, "setThreads", err.GetData())

	err = f.WithMessage(errors.ErrBoundaryCall, "boom")
	assert.Equal(t, "boom", err.Error())
}

func TestWrapUnwrap(t *testing.T) {
	f := errors.New()
	cause := fmt.Errorf("device gone")

	err := f.Wrap(errors.ErrThermalReadFailed, cause)
	assert.Equal(t, "Failed to read thermal state: device gone", err.Error())
	require.ErrorIs(t, err, cause)
}

func TestHasCode(t *testing.T) {
	f := errors.New()
	inner := f.New(errors.ErrServiceNotFound)
	outer := f.Wrap(errors.ErrCapabilityAbsent, inner)

	assert.True(t, errors.HasCode(outer, errors.ErrCapabilityAbsent))
	assert.True(t, errors.HasCode(outer, errors.ErrServiceNotFound))
	assert.False(t, errors.HasCode(outer, errors.ErrSessionCreation))
	assert.False(t, errors.HasCode(nil, errors.ErrInternal))
	assert.False(t, errors.HasCode(fmt.Errorf("plain"), errors.ErrInternal))
}

func TestUnknownCodeMessage(t *testing.T) {
	assert.Equal(t, "custom_code", errors.GetErrorMessage(errors.ErrorCode("custom_code")))
}

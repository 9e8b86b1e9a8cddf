package pid

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"codeberg.org/mutker/thermhint/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAndRemove(t *testing.T) {
	f := New(t.TempDir(), "")
	assert.Equal(t, DefaultName, filepath.Base(f.Path()))

	require.NoError(t, f.Write())
	b, err := os.ReadFile(f.Path())
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), string(b))

	// Rewriting our own PID is allowed.
	require.NoError(t, f.Write())

	require.NoError(t, f.Remove())
	require.NoError(t, f.Remove())
	_, err = os.Stat(f.Path())
	assert.True(t, os.IsNotExist(err))
}

func TestWriteDetectsLiveProcess(t *testing.T) {
	f := New(t.TempDir(), "test.pid")
	// The parent of the test binary is alive for the duration of the test.
	require.NoError(t, os.WriteFile(f.Path(), []byte(strconv.Itoa(os.Getppid())), 0o600))

	err := f.Write()
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrAlreadyRunning))
}

func TestWriteReplacesStaleFile(t *testing.T) {
	tests := map[string]string{
		"garbage":  "not a pid",
		"empty":    "",
		"negative": "-4",
	}

	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			f := New(t.TempDir(), "test.pid")
			require.NoError(t, os.WriteFile(f.Path(), []byte(content), 0o600))
			require.NoError(t, f.Write())
		})
	}
}

// Package pid guards against running two daemons at once.
package pid

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"codeberg.org/mutker/thermhint/internal/errors"
	"golang.org/x/sys/unix"
)

const DefaultName = "thermhintd.pid"

// File is a PID file at a fixed path.
type File struct {
	path string
}

// New returns a PID file in dir, or in the temp directory when dir is empty.
func New(dir, name string) *File {
	if dir == "" {
		dir = os.TempDir()
	}
	if name == "" {
		name = DefaultName
	}
	return &File{path: filepath.Join(dir, name)}
}

func (f *File) Path() string {
	return f.path
}

// Write records the current process ID. It fails with ErrAlreadyRunning when
// the file names a live process; stale or unreadable files are replaced.
func (f *File) Write() error {
	errFactory := errors.New()

	if pid, ok := f.read(); ok && pid != os.Getpid() && alive(pid) {
		return errFactory.WithData(errors.ErrAlreadyRunning, struct {
			PID  int
			Path string
		}{PID: pid, Path: f.path})
	}

	if err := os.WriteFile(f.path, []byte(strconv.Itoa(os.Getpid())), 0o600); err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	return nil
}

// Remove removes the PID file.
func (f *File) Remove() error {
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return errors.New().Wrap(errors.ErrInternal, err)
	}
	return nil
}

func (f *File) read() (int, bool) {
	b, err := os.ReadFile(f.path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

// alive probes pid with signal 0. EPERM means the process exists but
// belongs to someone else.
func alive(pid int) bool {
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

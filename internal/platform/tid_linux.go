//go:build linux

package platform

import "golang.org/x/sys/unix"

// Gettid returns the kernel id of the calling thread.
func Gettid() int32 {
	return int32(unix.Gettid())
}

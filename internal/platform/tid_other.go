//go:build !linux

package platform

import "os"

// Gettid falls back to the process id where thread ids are not exposed.
func Gettid() int32 {
	return int32(os.Getpid())
}

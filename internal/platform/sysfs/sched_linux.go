//go:build linux

package sysfs

import "golang.org/x/sys/unix"

// Values from include/uapi/linux/sched.h.
const (
	schedFlagKeepAll      = 0x18
	schedFlagUtilClampMin = 0x20
)

func setUtilMin(tid int32, utilMin uint32) error {
	attr := unix.SchedAttr{
		Flags:    schedFlagKeepAll | schedFlagUtilClampMin,
		Util_min: utilMin,
	}
	return unix.SchedSetAttr(int(tid), &attr, 0)
}

//go:build !linux

package sysfs

import "codeberg.org/mutker/thermhint/internal/errors"

func setUtilMin(int32, uint32) error {
	return errors.New().New(errors.ErrNotImplemented)
}

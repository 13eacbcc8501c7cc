//go:build !linux

package modem

import "time"

func setSystemTime(time.Time) error {
	return errClockUnsupported
}

package modem

import (
	"errors"
	"time"
)

// ClockSink receives the network time after a successful sync.
type ClockSink interface {
	SetTime(t time.Time) error
}

// ClockFunc adapts a function to the ClockSink interface.
type ClockFunc func(time.Time) error

func (f ClockFunc) SetTime(t time.Time) error { return f(t) }

// SystemClock sets the host clock. It requires CAP_SYS_TIME.
type SystemClock struct{}

func (SystemClock) SetTime(t time.Time) error {
	return setSystemTime(t)
}

var errClockUnsupported = errors.New("setting the system clock is not supported on this platform")

package modem

import (
	"time"

	"i4.energy/across/celldial/at"
)

// EventKind names what happened on the modem link.
type EventKind string

const (
	EventCommand     EventKind = "command"
	EventModeChange  EventKind = "mode"
	EventEscape      EventKind = "escape"
	EventDialAttempt EventKind = "dial_attempt"
	EventDialResult  EventKind = "dial_result"
	EventHangup      EventKind = "hangup"
	EventPPPStatus   EventKind = "ppp_status"
	EventTimeSync    EventKind = "time_sync"
)

// Event describes one step of modem activity. Only the fields relevant to
// Kind are set.
type Event struct {
	Kind     EventKind     `json:"kind"`
	Time     time.Time     `json:"time"`
	Command  string        `json:"command,omitempty"`
	Terminal at.Terminal   `json:"-"`
	Result   string        `json:"result,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
	Mode     Mode          `json:"-"`
	ModeName string        `json:"mode,omitempty"`
	Attempt  int           `json:"attempt,omitempty"`
	APN      string        `json:"apn,omitempty"`
	OK       bool          `json:"ok"`
	Error    string        `json:"error,omitempty"`
	Address  string        `json:"address,omitempty"`
	Network  time.Time     `json:"network_time,omitzero"`
}

// Observer receives modem events. Observe is called synchronously from the
// goroutine driving the modem and must not block.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) { f(e) }

// Observers fans an event out to several observers in order.
type Observers []Observer

func (o Observers) Observe(e Event) {
	for _, obs := range o {
		if obs != nil {
			obs.Observe(e)
		}
	}
}

func (m *Modem) emit(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	if e.Kind == EventCommand {
		e.Result = e.Terminal.String()
	}
	if e.Kind != EventModeChange {
		e.Mode = m.Mode()
	}
	e.ModeName = e.Mode.String()
	m.observer.Observe(e)
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

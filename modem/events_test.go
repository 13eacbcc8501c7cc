package modem

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"i4.energy/across/celldial/at"
)

func TestEvents(t *testing.T) {
	t.Run("commands carry result and mode", func(t *testing.T) {
		sim := NewSimTransport()
		sim.Reply("AT+GSN", "\r\nERROR\r\n")
		rec := &recorder{}
		m := newSimModem(t, sim, fastConfig(sim).WithObserver(rec))

		m.IMEI(context.Background())

		commands := rec.kinds(EventCommand)
		last := commands[len(commands)-1]
		if last.Command != "AT+GSN" || last.Result != "ERROR" || last.OK {
			t.Errorf("unexpected command event %+v", last)
		}
		if last.ModeName != "command" {
			t.Errorf("expected command mode, got %q", last.ModeName)
		}
	})

	t.Run("mode changes are reported once", func(t *testing.T) {
		sim := NewSimTransport()
		rec := &recorder{}
		m := newSimModem(t, sim, fastConfig(sim).WithObserver(rec))

		m.setMode(ModeData)
		m.setMode(ModeData)
		m.setMode(ModeCommand)

		changes := rec.kinds(EventModeChange)
		if len(changes) != 2 {
			t.Fatalf("expected 2 mode changes, got %d", len(changes))
		}
		if changes[0].ModeName != "data" || changes[1].ModeName != "command" {
			t.Errorf("unexpected mode changes %+v", changes)
		}
	})

	t.Run("observers fan out", func(t *testing.T) {
		first, second := &recorder{}, &recorder{}
		Observers{first, nil, second}.Observe(Event{Kind: EventHangup})

		if len(first.events) != 1 || len(second.events) != 1 {
			t.Errorf("expected both observers to receive the event")
		}
	})

	t.Run("json encoding", func(t *testing.T) {
		e := Event{
			Kind:     EventCommand,
			Time:     time.Date(2025, time.January, 15, 18, 30, 0, 0, time.UTC),
			Command:  "AT",
			Terminal: at.TermOK,
			Result:   "OK",
			ModeName: "command",
			OK:       true,
		}
		data, err := json.Marshal(e)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got := string(data)
		for _, want := range []string{`"kind":"command"`, `"command":"AT"`, `"result":"OK"`, `"mode":"command"`, `"ok":true`} {
			if !strings.Contains(got, want) {
				t.Errorf("expected %s in %s", want, got)
			}
		}
		if strings.Contains(got, "network_time") {
			t.Errorf("expected zero network time to be omitted: %s", got)
		}
	})
}

package modem

import (
	"slices"
	"strings"
	"testing"
	"time"
)

func TestSimTransportCommands(t *testing.T) {
	t.Run("records commands verbatim", func(t *testing.T) {
		sim := NewSimTransport()
		sim.Attached = false

		for _, cmd := range []string{"AT+CGATT?", "AT+CGATT=1", "AT+CGACT?", "AT+CGDCONT=1,\"IP\",\"CMNET\""} {
			if _, err := sim.Write([]byte(cmd + "\r")); err != nil {
				t.Fatalf("unexpected error from Write: %v", err)
			}
		}

		want := []string{"AT+CGATT?", "AT+CGATT=1", "AT+CGACT?", "AT+CGDCONT=1,\"IP\",\"CMNET\""}
		if got := sim.Commands(); !slices.Equal(got, want) {
			t.Errorf("expected %q, got %q", want, got)
		}
		if !sim.Attached {
			t.Error("expected AT+CGATT=1 to attach")
		}
	})

	t.Run("answers attach queries", func(t *testing.T) {
		sim := NewSimTransport()
		sim.Write([]byte("AT+CGATT?\r"))

		buf := make([]byte, 64)
		n, err := sim.Read(buf)
		if err != nil {
			t.Fatalf("unexpected error from Read: %v", err)
		}
		if got := string(buf[:n]); !strings.Contains(got, "+CGATT: 1") || strings.Contains(got, "ERROR") {
			t.Errorf("unexpected response %q", got)
		}
	})

	t.Run("skips leading line noise", func(t *testing.T) {
		sim := NewSimTransport()
		sim.Write([]byte("\x00~ AT+CPIN?\r"))

		if got := sim.Commands(); !slices.Equal(got, []string{"AT+CPIN?"}) {
			t.Errorf("unexpected commands %q", got)
		}
	})

	t.Run("accepts escape after guard time", func(t *testing.T) {
		sim := NewSimTransport()
		sim.SetDataMode(true)

		time.Sleep(2 * sim.GuardTime)
		sim.Write([]byte("+++"))
		deadline := time.Now().Add(time.Second)
		for sim.DataMode() {
			if time.Now().After(deadline) {
				t.Fatal("escape never accepted")
			}
			time.Sleep(5 * time.Millisecond)
		}
	})
}

package modem

import (
	"context"
	"slices"
	"testing"
	"time"
)

// fastConfig shortens every timing so that a full dial sequence against the
// simulator takes milliseconds.
func fastConfig(d Dialer) *ConfigBuilder {
	return NewConfigBuilder().
		WithDialer(d).
		WithCommandTimeout(200 * time.Millisecond).
		WithProbeTimeout(50 * time.Millisecond).
		WithDialTimeout(500 * time.Millisecond).
		WithPayloadPoll(10 * time.Millisecond).
		WithGuardTime(60 * time.Millisecond).
		WithFillerPause(5 * time.Millisecond).
		WithSettleDelay(time.Millisecond).
		WithRegistrationWait(time.Millisecond).
		WithAttachSettle(time.Millisecond).
		WithHourOffset(8)
}

func newSimModem(t *testing.T, sim *SimTransport, b *ConfigBuilder) *Modem {
	t.Helper()
	if b == nil {
		b = fastConfig(sim)
	}
	config, err := b.Build()
	if err != nil {
		t.Fatalf("unexpected error from Build(): %v", err)
	}
	m, err := New(context.Background(), config)
	if err != nil {
		t.Fatalf("unexpected error from New(): %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

// sent returns the commands received by the simulator, probes excluded.
func sent(sim *SimTransport) []string {
	return slices.DeleteFunc(sim.Commands(), func(c string) bool { return c == "AT" })
}

func count(sim *SimTransport, cmd string) int {
	n := 0
	for _, c := range sim.Commands() {
		if c == cmd {
			n++
		}
	}
	return n
}

// recorder collects events.
type recorder struct {
	events []Event
}

func (r *recorder) Observe(e Event) { r.events = append(r.events, e) }

func (r *recorder) kinds(kind EventKind) []Event {
	var out []Event
	for _, e := range r.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

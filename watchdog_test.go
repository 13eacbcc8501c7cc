package main

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"testing"
	"time"

	"i4.energy/across/celldial/modem"
)

func newSimModem(t *testing.T, sim *modem.SimTransport, opts ...func(*modem.ConfigBuilder)) *modem.Modem {
	t.Helper()
	builder := modem.NewConfigBuilder().
		WithDialer(sim).
		WithCommandTimeout(200 * time.Millisecond).
		WithProbeTimeout(50 * time.Millisecond).
		WithDialTimeout(500 * time.Millisecond).
		WithPayloadPoll(10 * time.Millisecond).
		WithGuardTime(60 * time.Millisecond).
		WithFillerPause(5 * time.Millisecond).
		WithSettleDelay(time.Millisecond).
		WithRegistrationWait(time.Millisecond).
		WithAttachSettle(time.Millisecond)
	for _, opt := range opts {
		opt(builder)
	}
	config, err := builder.Build()
	if err != nil {
		t.Fatalf("unexpected error from Build(): %v", err)
	}
	m, err := modem.New(context.Background(), config)
	if err != nil {
		t.Fatalf("unexpected error from New(): %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func newWatchdog(m Modem) *Watchdog {
	return &Watchdog{
		Modem:    m,
		Interval: time.Hour,
		Params:   modem.ConnectionParams{APN: "CMNET"},
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestWatchdogCheck(t *testing.T) {
	t.Run("healthy session is left alone", func(t *testing.T) {
		m := &fakeModem{mode: modem.ModeData, up: true}
		if !newWatchdog(m).check(context.Background()) {
			t.Error("expected healthy session")
		}
		if got := m.Calls(); !slices.Equal(got, []string{"CheckPPPStatus"}) {
			t.Errorf("unexpected calls %v", got)
		}
	})

	t.Run("command mode redials", func(t *testing.T) {
		m := &fakeModem{mode: modem.ModeCommand}
		if newWatchdog(m).check(context.Background()) {
			t.Error("expected unhealthy session")
		}
		if got := m.Calls(); !slices.Equal(got, []string{"Hangup", "Connect"}) {
			t.Errorf("unexpected calls %v", got)
		}
		if m.connect.APN != "CMNET" {
			t.Errorf("expected redial with CMNET, got %q", m.connect.APN)
		}
	})

	t.Run("lost address redials", func(t *testing.T) {
		m := &fakeModem{mode: modem.ModeData, up: false}
		newWatchdog(m).check(context.Background())
		if got := m.Calls(); !slices.Equal(got, []string{"CheckPPPStatus", "Hangup", "Connect"}) {
			t.Errorf("unexpected calls %v", got)
		}
	})

	t.Run("paused watchdog does not redial", func(t *testing.T) {
		m := &fakeModem{mode: modem.ModeCommand}
		w := newWatchdog(m)
		w.Pause()
		if w.check(context.Background()) {
			t.Error("expected unhealthy report while paused")
		}
		if got := m.Calls(); len(got) != 0 {
			t.Errorf("expected no calls while paused, got %v", got)
		}

		w.Resume()
		w.check(context.Background())
		if got := m.Calls(); !slices.Equal(got, []string{"Hangup", "Connect"}) {
			t.Errorf("unexpected calls after resume %v", got)
		}
	})

	t.Run("canceled context skips redial", func(t *testing.T) {
		m := &fakeModem{mode: modem.ModeCommand}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		newWatchdog(m).check(ctx)
		if got := m.Calls(); len(got) != 0 {
			t.Errorf("expected no calls, got %v", got)
		}
	})
}

func TestWatchdogWithSimulator(t *testing.T) {
	sim := modem.NewSimTransport()
	m := newSimModem(t, sim)
	w := newWatchdog(m)

	// not connected yet
	w.check(context.Background())
	if m.Mode() != modem.ModeData || !sim.DataMode() {
		t.Fatalf("expected data mode after redial, got %s", m.Mode())
	}

	if !w.check(context.Background()) {
		t.Error("expected healthy session")
	}
	if m.Mode() != modem.ModeData {
		t.Errorf("expected data mode after status check, got %s", m.Mode())
	}

	sim.Reply("AT+CGPADDR=1", "\r\n+CGPADDR: 1,\"0.0.0.0\"\r\n\r\nOK\r\n")
	if w.check(context.Background()) {
		t.Error("expected session without address to be reported down")
	}
	if m.Mode() != modem.ModeData {
		t.Errorf("expected data mode after redial, got %s", m.Mode())
	}

	dials := 0
	for _, c := range sim.Commands() {
		if c == "ATD*99#" {
			dials++
		}
	}
	if dials != 2 {
		t.Errorf("expected 2 dials, got %d", dials)
	}
}

func TestWatchdogRun(t *testing.T) {
	m := &fakeModem{mode: modem.ModeData, up: true}
	w := newWatchdog(m)
	w.Interval = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for len(m.Calls()) < 2 {
		if time.Now().After(deadline) {
			t.Fatal("watchdog never checked the session")
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

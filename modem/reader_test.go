package modem

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"i4.energy/across/celldial/at"
)

func newTestLink(t *testing.T) (*link, *SimTransport) {
	t.Helper()
	sim := NewSimTransport()
	l := newLink(sim)
	t.Cleanup(func() { l.close() })
	return l, sim
}

func TestLinkRead(t *testing.T) {
	t.Run("returns on the sentinel before the timeout", func(t *testing.T) {
		tests := []struct {
			name  string
			input string
			want  at.Terminal
		}{
			{"ok", "\r\n+CPIN: READY\r\n\r\nOK\r\n", at.TermOK},
			{"error", "\r\nERROR\r\n", at.TermError},
			{"no carrier", "\r\nNO CARRIER\r\n", at.TermNoCarrier},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				l, sim := newTestLink(t)
				sim.Inject(tt.input)

				start := time.Now()
				r, err := l.read(context.Background(), time.Second, at.FinalSentinels)
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if r.Kind != tt.want {
					t.Errorf("expected %s, got %s", tt.want, r.Kind)
				}
				if r.Text != tt.input {
					t.Errorf("expected text %q, got %q", tt.input, r.Text)
				}
				if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
					t.Errorf("read took %v", elapsed)
				}
			})
		}
	})

	t.Run("times out without a sentinel", func(t *testing.T) {
		l, sim := newTestLink(t)
		sim.Inject("\r\n+CREG: 0,1\r\n")

		timeout := 50 * time.Millisecond
		start := time.Now()
		r, err := l.read(context.Background(), timeout, at.FinalSentinels)
		elapsed := time.Since(start)

		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if r.Kind != at.TermTimeout {
			t.Errorf("expected timeout, got %s", r.Kind)
		}
		if r.Text != "\r\n+CREG: 0,1\r\n" {
			t.Errorf("expected partial text, got %q", r.Text)
		}
		if elapsed < timeout || elapsed > timeout+250*time.Millisecond {
			t.Errorf("expected read to last about %v, took %v", timeout, elapsed)
		}
	})

	t.Run("sentinel split across chunks", func(t *testing.T) {
		l, sim := newTestLink(t)
		sim.Inject("\r\nO")
		go func() {
			time.Sleep(10 * time.Millisecond)
			sim.Inject("K\r\n")
		}()

		r, err := l.read(context.Background(), time.Second, at.FinalSentinels)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if r.Kind != at.TermOK {
			t.Errorf("expected OK, got %s", r.Kind)
		}
	})

	t.Run("bytes after the sentinel stay pending", func(t *testing.T) {
		l, sim := newTestLink(t)
		sim.Inject("\r\nOK\r\n\r\nRING\r\n")

		r, err := l.read(context.Background(), time.Second, at.FinalSentinels)
		if err != nil || r.Kind != at.TermOK {
			t.Fatalf("expected OK, got %s, %v", r.Kind, err)
		}
		r, err = l.read(context.Background(), 20*time.Millisecond, at.FinalSentinels)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if r.Kind != at.TermTimeout || !strings.Contains(r.Text, "RING") {
			t.Errorf("expected pending RING, got %s %q", r.Kind, r.Text)
		}
	})

	t.Run("CONNECT ends the read and leaves payload", func(t *testing.T) {
		l, sim := newTestLink(t)
		sim.Inject("\r\nCONNECT 150000000\r\n~\x7d\x23")

		r, err := l.read(context.Background(), time.Second, at.OnlineSentinels)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if r.Kind != at.TermConnect {
			t.Errorf("expected CONNECT, got %s", r.Kind)
		}

		buf := make([]byte, 16)
		n, err := l.readPayload(buf, time.Second)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(buf[:n]) != "~\x7d\x23" {
			t.Errorf("expected payload, got %q", buf[:n])
		}
	})

	t.Run("closed transport", func(t *testing.T) {
		l, sim := newTestLink(t)
		sim.Close()

		_, err := l.read(context.Background(), time.Second, at.FinalSentinels)
		if !errors.Is(err, ErrAlreadyClosed) {
			t.Errorf("expected ErrAlreadyClosed, got %v", err)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		l, _ := newTestLink(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := l.read(ctx, time.Second, at.FinalSentinels)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

func TestLinkDiscard(t *testing.T) {
	l, sim := newTestLink(t)
	sim.Inject("\r\nRING\r\n")

	// wait for the pump to hand the chunk over
	deadline := time.Now().Add(time.Second)
	for len(l.chunks) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	if n := l.discard(); n != 8 {
		t.Errorf("expected 8 discarded bytes, got %d", n)
	}
	r, err := l.read(context.Background(), 20*time.Millisecond, at.FinalSentinels)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Text != "" {
		t.Errorf("expected nothing after discard, got %q", r.Text)
	}
}

func TestLinkWriteAfterClose(t *testing.T) {
	l, _ := newTestLink(t)
	if err := l.close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := l.write([]byte("AT\r")); !errors.Is(err, ErrAlreadyClosed) {
		t.Errorf("expected ErrAlreadyClosed, got %v", err)
	}
	if err := l.close(); !errors.Is(err, ErrAlreadyClosed) {
		t.Errorf("expected ErrAlreadyClosed on second close, got %v", err)
	}
}

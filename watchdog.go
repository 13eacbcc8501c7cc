package main

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"i4.energy/across/celldial/modem"
)

// Watchdog keeps the data session up. On every tick it checks the PPP
// session and redials when the link is down. An operator hangup pauses it
// until the next explicit connect.
type Watchdog struct {
	Modem    Modem
	Interval time.Duration
	Params   modem.ConnectionParams
	Logger   *slog.Logger

	paused atomic.Bool
}

// Pause stops redialing, e.g. after a hangup requested by an operator.
func (w *Watchdog) Pause() {
	if !w.paused.Swap(true) {
		w.Logger.Info("Watchdog paused")
	}
}

// Resume re-enables redialing.
func (w *Watchdog) Resume() {
	if w.paused.Swap(false) {
		w.Logger.Info("Watchdog resumed")
	}
}

// Paused reports whether redialing is suspended.
func (w *Watchdog) Paused() bool {
	return w.paused.Load()
}

// Run checks the session until ctx is canceled.
func (w *Watchdog) Run(ctx context.Context) {
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.check(ctx)
		}
	}
}

// check reports whether the session was healthy before the check.
func (w *Watchdog) check(ctx context.Context) bool {
	if w.Paused() {
		return false
	}
	if w.Modem.Mode() == modem.ModeData {
		up, err := w.Modem.CheckPPPStatus(ctx)
		if err == nil && up {
			return true
		}
		w.Logger.Warn("PPP session down", "error", err)
	}
	if ctx.Err() != nil {
		return false
	}

	if err := w.Modem.Hangup(ctx); err != nil {
		w.Logger.Debug("Hangup before redial failed", "error", err)
	}
	if err := w.Modem.Connect(ctx, w.Params.APN, w.Params.Username, w.Params.Password); err != nil {
		w.Logger.Error("Redial failed", "error", err, "apn", w.Params.APN)
		return false
	}
	w.Logger.Info("Redialed", "apn", w.Params.APN)
	return false
}

package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"i4.energy/across/celldial/modem"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "data", "journal.db"), nil)
	if err != nil {
		t.Fatalf("unexpected error from Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore(t *testing.T) {
	t.Run("journals session events only", func(t *testing.T) {
		s := openTestStore(t)
		base := time.Date(2025, time.January, 15, 10, 0, 0, 0, time.UTC)

		s.Observe(modem.Event{Kind: modem.EventCommand, Time: base, Command: "AT"})
		s.Observe(modem.Event{Kind: modem.EventModeChange, Time: base})
		s.Observe(modem.Event{Kind: modem.EventDialResult, Time: base.Add(time.Second), APN: "CMNET", Attempt: 1, OK: true})
		s.Observe(modem.Event{Kind: modem.EventPPPStatus, Time: base.Add(2 * time.Second), OK: true, Address: "10.64.12.7"})
		s.Observe(modem.Event{Kind: modem.EventHangup, Time: base.Add(3 * time.Second), OK: true})

		entries, err := s.Recent(context.Background(), "", 10)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(entries) != 3 {
			t.Fatalf("expected 3 entries, got %d", len(entries))
		}
		if entries[0].Kind != "hangup" || entries[2].Kind != "dial_result" {
			t.Errorf("expected newest first, got %s .. %s", entries[0].Kind, entries[2].Kind)
		}
		if entries[1].Address != "10.64.12.7" {
			t.Errorf("expected address, got %q", entries[1].Address)
		}
		if entries[2].APN != "CMNET" || entries[2].Attempt != 1 {
			t.Errorf("unexpected dial entry %+v", entries[2])
		}
	})

	t.Run("filters by kind and limits", func(t *testing.T) {
		s := openTestStore(t)
		ctx := context.Background()
		for i := range 5 {
			if err := s.Add(ctx, &Entry{Kind: "dial_result", Attempt: i + 1}); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}
		network := time.Date(2025, time.January, 15, 18, 30, 0, 0, time.UTC)
		if err := s.Add(ctx, &Entry{Kind: "time_sync", OK: true, NetworkTime: network}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		dials, err := s.Recent(ctx, "dial_result", 2)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(dials) != 2 {
			t.Errorf("expected 2 entries, got %d", len(dials))
		}

		syncs, err := s.Recent(ctx, "time_sync", 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(syncs) != 1 || !syncs[0].NetworkTime.Equal(network) {
			t.Errorf("unexpected time sync entries %+v", syncs)
		}
	})
}

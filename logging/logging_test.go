package logging_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"i4.energy/across/celldial/logging"
	"i4.energy/across/celldial/modem"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"verbose", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := logging.ParseLevel(tt.name); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestNew(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		logger, _ := logging.New("json", slog.LevelInfo, &buf)
		logger.Debug("hidden")
		logger.Info("shown", "apn", "CMNET")

		var record map[string]any
		if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
			t.Fatalf("expected a single JSON record, got %q: %v", buf.String(), err)
		}
		if record["msg"] != "shown" || record["apn"] != "CMNET" {
			t.Errorf("unexpected record %v", record)
		}
	})

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		logger, _ := logging.New("text", slog.LevelDebug, &buf)
		logger.Debug("probe", "mode", "command")

		if !strings.Contains(buf.String(), "msg=probe mode=command") {
			t.Errorf("unexpected output %q", buf.String())
		}
	})
}

func TestOffsetHandler(t *testing.T) {
	var buf bytes.Buffer
	logger, handler := logging.New("json", slog.LevelInfo, &buf)
	var _ modem.ClockSink = handler

	if err := handler.SetTime(time.Now().Add(2 * time.Hour)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if off := handler.Offset(); off < 2*time.Hour-time.Minute || off > 2*time.Hour {
		t.Errorf("unexpected offset %v", off)
	}

	// derived loggers share the offset
	logger.With("component", "watchdog").Info("shifted")

	var record struct {
		Time      time.Time `json:"time"`
		Component string    `json:"component"`
	}
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if record.Component != "watchdog" {
		t.Errorf("expected component attribute, got %q", record.Component)
	}
	if d := time.Until(record.Time); d < time.Hour+59*time.Minute || d > 2*time.Hour {
		t.Errorf("expected record time about 2h ahead, got %v", d)
	}
}

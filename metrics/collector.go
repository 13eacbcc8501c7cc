// Package metrics exposes modem activity as Prometheus metrics.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"i4.energy/across/celldial/modem"
)

// Collector turns modem events into Prometheus metrics. It implements both
// prometheus.Collector and modem.Observer.
type Collector struct {
	// AT commands
	commands        *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec

	// Link
	mode    prometheus.Gauge
	escapes *prometheus.CounterVec

	// Session
	dialAttempts prometheus.Counter
	dials        *prometheus.CounterVec
	hangups      *prometheus.CounterVec
	connected    prometheus.Gauge

	// Clock
	timeSyncs    *prometheus.CounterVec
	lastTimeSync prometheus.Gauge
}

// NewCollector creates a Collector with all series at zero.
func NewCollector() *Collector {
	return &Collector{
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "celldial_at_commands_total",
			Help: "AT commands sent, by command and final result code",
		}, []string{"command", "result"}),
		commandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "celldial_at_command_duration_seconds",
			Help:    "Time from sending an AT command to its final result code",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"command"}),

		mode: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "celldial_link_data_mode",
			Help: "Whether the serial link is in data mode (1) or command mode (0)",
		}),
		escapes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "celldial_escape_sequences_total",
			Help: "Escape sequences sent to leave data mode, by outcome",
		}, []string{"result"}),

		dialAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "celldial_dial_attempts_total",
			Help: "Full dial sequences started",
		}),
		dials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "celldial_dials_total",
			Help: "Connect calls finished, by outcome",
		}, []string{"result"}),
		hangups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "celldial_hangups_total",
			Help: "Hangups, by outcome",
		}, []string{"result"}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "celldial_ppp_connected",
			Help: "Whether the last status check found an IP address",
		}),

		timeSyncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "celldial_time_syncs_total",
			Help: "Network time synchronizations, by outcome",
		}, []string{"result"}),
		lastTimeSync: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "celldial_last_time_sync_timestamp_seconds",
			Help: "Network time reported by the last successful synchronization",
		}),
	}
}

func (c *Collector) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.commands, c.commandDuration,
		c.mode, c.escapes,
		c.dialAttempts, c.dials, c.hangups, c.connected,
		c.timeSyncs, c.lastTimeSync,
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, col := range c.collectors() {
		col.Describe(ch)
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, col := range c.collectors() {
		col.Collect(ch)
	}
}

// Observe implements modem.Observer.
func (c *Collector) Observe(e modem.Event) {
	switch e.Kind {
	case modem.EventCommand:
		name := commandName(e.Command)
		c.commands.WithLabelValues(name, e.Result).Inc()
		c.commandDuration.WithLabelValues(name).Observe(e.Duration.Seconds())
	case modem.EventModeChange:
		if e.Mode == modem.ModeData {
			c.mode.Set(1)
		} else {
			c.mode.Set(0)
		}
	case modem.EventEscape:
		c.escapes.WithLabelValues(outcome(e.OK)).Inc()
	case modem.EventDialAttempt:
		c.dialAttempts.Inc()
	case modem.EventDialResult:
		c.dials.WithLabelValues(outcome(e.OK)).Inc()
		if e.OK {
			c.connected.Set(1)
		}
	case modem.EventHangup:
		c.hangups.WithLabelValues(outcome(e.OK)).Inc()
		if e.OK {
			c.connected.Set(0)
		}
	case modem.EventPPPStatus:
		if e.OK {
			c.connected.Set(1)
		} else {
			c.connected.Set(0)
		}
	case modem.EventTimeSync:
		c.timeSyncs.WithLabelValues(outcome(e.OK)).Inc()
		if !e.Network.IsZero() {
			c.lastTimeSync.Set(float64(e.Network.Unix()))
		}
	}
}

// commandName strips arguments so that APNs and credentials never become
// label values.
func commandName(cmd string) string {
	if i := strings.IndexAny(cmd, "=?"); i >= 0 {
		return cmd[:i+1]
	}
	return cmd
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

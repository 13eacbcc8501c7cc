package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"i4.energy/across/celldial/events"
	"i4.energy/across/celldial/journal"
	"i4.energy/across/celldial/logging"
	"i4.energy/across/celldial/metrics"
	"i4.energy/across/celldial/modem"
)

func main() {
	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(2)
	}

	config, err := LoadConfig(
		WithDefaults(),
		WithFile(opts.ConfigFile),
		WithDotEnv(opts.EnvFile),
		WithEnv(),
		WithFlags(parser, &opts),
	)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger, logClock := logging.New(config.LogFormat, logging.ParseLevel(config.LogLevel), os.Stderr)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector()
	registry.MustRegister(collector)

	hub := events.NewHub()
	observers := modem.Observers{collector, hub}

	var store *journal.Store
	if config.JournalPath != "" {
		store, err = journal.Open(config.JournalPath, logger.With("component", "journal"))
		if err != nil {
			logger.Error("Failed to open journal", "error", err, "path", config.JournalPath)
			os.Exit(1)
		}
		defer store.Close()
		observers = append(observers, store)
	}

	if config.MQTT.Broker != "" {
		pub, err := events.NewMQTTPublisher(config.MQTT.events(), logger.With("component", "mqtt"))
		if err != nil {
			logger.Error("Failed to connect to MQTT broker", "error", err, "broker", config.MQTT.Broker)
			os.Exit(1)
		}
		defer pub.Close()
		observers = append(observers, pub)
	}

	if config.NSQ.Address != "" {
		pub, err := events.NewNSQPublisher(config.NSQ.Address, config.NSQ.Topic, logger.With("component", "nsq"))
		if err != nil {
			logger.Error("Failed to create NSQ producer", "error", err, "address", config.NSQ.Address)
			os.Exit(1)
		}
		defer pub.Close()
		observers = append(observers, pub)
	}

	builder := modem.NewConfigBuilder().
		WithDialer(modem.SerialDialer{
			PortName: config.SerialPort,
			BaudRate: config.BaudRate,
		}).
		WithDefaultAPN(config.APN).
		WithHourOffset(config.HourOffset).
		WithClock(logClock).
		WithLogger(logger.With("component", "modem")).
		WithObserver(observers)
	if config.SyncSystemClock {
		builder = builder.WithClock(modem.SystemClock{})
	}
	modemConfig, err := builder.Build()
	if err != nil {
		logger.Error("Failed to create modem config", "error", err)
		os.Exit(1)
	}

	m, err := modem.New(context.Background(), modemConfig)
	if err != nil {
		logger.Error("Failed to create modem", "error", err)
		os.Exit(1)
	}

	logger.Info("Starting cellular dialer", "port", config.SerialPort, "apn", config.APN)

	params := modem.ConnectionParams{
		APN:      config.APN,
		Username: config.Username,
		Password: config.Password,
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	if config.DialOnStart {
		if err := m.Connect(ctx, params.APN, params.Username, params.Password); err != nil {
			logger.Error("Initial dial failed", "error", err, "apn", params.APN)
		}
	}

	var watchdog *Watchdog
	if config.CheckInterval > 0 {
		watchdog = &Watchdog{
			Modem:    m,
			Interval: config.CheckInterval,
			Params:   params,
			Logger:   logger.With("component", "watchdog"),
		}
		go watchdog.Run(ctx)
	}

	server := &Server{
		Logger:   logger.With("component", "server"),
		Modem:    m,
		Params:   params,
		Journal:  store,
		Hub:      hub,
		Metrics:  promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
		Watchdog: watchdog,
	}
	httpServer := &http.Server{
		Addr:    config.BindAddress,
		Handler: server.Handler(),
	}

	// Channel to listen for interrupt signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start HTTP server in a goroutine
	go func() {
		logger.Info("Starting HTTP server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	sig := <-sigChan
	logger.Info("Received shutdown signal", "signal", sig)
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Info("Closing HTTP server")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to gracefully shutdown server", "error", err)
	}

	logger.Info("Closing modem connection")
	if err := m.Close(); err != nil {
		logger.Error("Failed to close modem", "error", err)
	}
}

// powerlive samples a smart plug once per second and charts the load
// live in the terminal, optionally recording every reading to a capture
// file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mvell/powerlive/internal/config"
	"github.com/mvell/powerlive/internal/metrics"
	"github.com/mvell/powerlive/internal/monitor"
	"github.com/mvell/powerlive/internal/plug"
	"github.com/mvell/powerlive/internal/store"
	"github.com/mvell/powerlive/internal/tui"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "powerlive: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  = flag.String("config", "", "YAML config file")
		address     = flag.String("ip", "", "plug IP or hostname (falls back to $PLUG_IP)")
		driver      = flag.String("driver", "", "plug driver: shelly1, shelly2, mqtt or sim")
		interval    = flag.Duration("interval", 0, "sample interval, default 1s")
		window      = flag.Int("b", 0, "sliding window length in samples, at least 2, default 30")
		horizontal  = flag.Bool("hr", false, "horizontal layout, default is vertical")
		storePath   = flag.String("db", "", "capture file, .csv or SQLite (falls back to $DB_NAME)")
		resetStore  = flag.Bool("db-reset", false, "delete previously captured rows on start")
		verbose     = flag.Bool("v", false, "log every sample")
		headless    = flag.Bool("headless", false, "run without the TUI")
		metricsAddr = flag.String("metrics", "", "Prometheus listen address, e.g. :9190")
		highWatts   = flag.Float64("high", 0, "alert threshold in watts")
		logFile     = flag.String("log-file", "", "log destination while the TUI owns the terminal")
		broker      = flag.String("broker", "", "MQTT broker address for the mqtt driver")
		deviceID    = flag.String("device", "", "MQTT device ID for the mqtt driver")
		simSeed     = flag.Int64("sim-seed", 0, "seed for the sim driver, 0 picks one")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Flags beat the config file, but only when actually given.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "ip":
			cfg.Plug.Address = *address
		case "driver":
			cfg.Plug.Driver = *driver
		case "interval":
			cfg.Capture.Interval = interval.String()
		case "b":
			cfg.Capture.Window = *window
		case "hr":
			cfg.Display.Horizontal = *horizontal
		case "db":
			cfg.Capture.StorePath = *storePath
		case "db-reset":
			cfg.Capture.ResetStore = *resetStore
		case "v":
			cfg.Display.Verbose = *verbose
		case "metrics":
			cfg.Metrics.Addr = *metricsAddr
		case "high":
			cfg.Plug.HighWatts = *highWatts
		case "log-file":
			cfg.Display.LogFile = *logFile
		case "broker":
			cfg.Plug.MQTT.Broker = *broker
		case "device":
			cfg.Plug.MQTT.DeviceID = *deviceID
		case "sim-seed":
			cfg.Plug.SimSeed = *simSeed
		}
	})
	if cfg.Plug.Address == "" {
		cfg.Plug.Address = os.Getenv("PLUG_IP")
	}
	if cfg.Capture.StorePath == "" {
		cfg.Capture.StorePath = os.Getenv("DB_NAME")
	}

	switch cfg.Plug.Driver {
	case "shelly1", "shelly2":
		if cfg.Plug.Address == "" {
			return errors.New("plug address not set; use -ip, PLUG_IP, or the config file")
		}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, closeLogger, err := buildLogger(cfg, *headless)
	if err != nil {
		return err
	}
	defer closeLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, closePlug, err := buildPlug(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closePlug()

	var st store.Store
	if cfg.Capture.StorePath != "" {
		st, err = store.Open(cfg.Capture.StorePath)
		if err != nil {
			return fmt.Errorf("open %s: %w", cfg.Capture.StorePath, err)
		}
		logger.Info("recording samples", "path", cfg.Capture.StorePath)
	}

	var collectors *metrics.Metrics
	if cfg.Metrics.Addr != "" {
		collectors = metrics.New()
		go func() {
			if err := collectors.Serve(ctx, cfg.Metrics.Addr, logger); err != nil {
				logger.Error("metrics server failed", "err", err)
			}
		}()
	}

	opts := monitor.Options{
		Interval:   cfg.Capture.IntervalDuration(),
		Window:     cfg.Capture.Window,
		Store:      st,
		Metrics:    collectors,
		Logger:     logger,
		ResetStore: cfg.Capture.ResetStore,
		Verbose:    cfg.Display.Verbose,
	}

	if *headless {
		mon, err := monitor.New(p, opts)
		if err != nil {
			return err
		}
		return mon.Run(ctx)
	}

	prog := tea.NewProgram(tui.New(tui.Config{
		PlugName:   p.Name(),
		StorePath:  cfg.Capture.StorePath,
		HighWatts:  cfg.Plug.HighWatts,
		Horizontal: cfg.Display.Horizontal,
	}), tea.WithAltScreen())

	opts.Renderer = tui.Feed(prog)
	mon, err := monitor.New(p, opts)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	runErr := make(chan error, 1)
	go func() {
		err := mon.Run(runCtx)
		prog.Send(tui.StoppedMsg{Err: err})
		runErr <- err
	}()

	if _, err := prog.Run(); err != nil {
		cancel()
		<-runErr
		return err
	}
	cancel()
	return <-runErr
}

// buildLogger picks the log destination. The TUI owns the terminal, so
// interactive runs log to a file or nowhere.
func buildLogger(cfg *config.Config, headless bool) (*slog.Logger, func(), error) {
	if headless {
		return slog.New(slog.NewTextHandler(os.Stderr, nil)), func() {}, nil
	}
	if cfg.Display.LogFile == "" {
		return slog.New(slog.NewTextHandler(io.Discard, nil)), func() {}, nil
	}
	f, err := os.OpenFile(cfg.Display.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return slog.New(slog.NewTextHandler(f, nil)), func() { f.Close() }, nil
}

func buildPlug(ctx context.Context, cfg *config.Config, logger *slog.Logger) (plug.Plug, func(), error) {
	switch cfg.Plug.Driver {
	case "shelly1":
		return plug.NewGen1(cfg.Plug.Address, logger), func() {}, nil
	case "shelly2":
		return plug.NewGen2(cfg.Plug.Address, logger), func() {}, nil
	case "sim":
		return plug.NewSim(cfg.Plug.SimSeed), func() {}, nil
	case "mqtt":
		m, err := plug.DialMQTT(ctx, plug.MQTTConfig{
			Broker:     cfg.Plug.MQTT.Broker,
			DeviceID:   cfg.Plug.MQTT.DeviceID,
			ClientID:   cfg.Plug.MQTT.ClientID,
			Username:   cfg.Plug.MQTT.Username,
			Password:   cfg.Plug.MQTT.Password(),
			StaleAfter: cfg.Plug.MQTT.StaleAfterDuration(),
		}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to broker: %w", err)
		}
		return m, func() { m.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown driver %q", cfg.Plug.Driver)
	}
}

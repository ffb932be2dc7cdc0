package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/itohio/brickheat/pkg/brick"
	"github.com/itohio/brickheat/pkg/config"
	"github.com/itohio/brickheat/pkg/console"
	"github.com/itohio/brickheat/pkg/fsmem"
	"github.com/itohio/brickheat/pkg/heat"
	"github.com/itohio/brickheat/pkg/identity"
	"github.com/itohio/brickheat/pkg/rtcmem"
	"github.com/itohio/brickheat/pkg/sensor"
)

func main() {
	var (
		configFlag  = flag.String("config", "config.yaml", "Configuration file path")
		mockFlag    = flag.Bool("mock", false, "Use simulated sensor, expander and controller")
		setupFlag   = flag.Bool("setup", false, "Run the bench setup menu instead of wake cycles")
		cyclesFlag  = flag.Int("cycles", 0, "Number of wake cycles to run (0 = until interrupted)")
		consoleFlag = flag.String("serial-console", "", "Serial port for the setup menu (default: this terminal)")
		macFlag     = flag.String("mac", "", "MAC address override (e.g. a4:cf:12:00:11:22)")
		verboseFlag = flag.Bool("v", false, "Verbose logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verboseFlag {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configFlag)
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if *mockFlag {
		cfg.Heater.Driver = "mock"
		cfg.Sensor.Driver = "mock"
		cfg.Exchange.Driver = "loopback"
	}
	if *macFlag != "" {
		cfg.Node.MAC = *macFlag
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *setupFlag, *cyclesFlag, *consoleFlag, logger); err != nil {
		logger.Error("brick stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, setup bool, cycles int, consolePort string, logger *slog.Logger) error {
	nodeID, err := identity.Resolve(cfg.Node.MAC, cfg.Node.Interface)
	if err != nil {
		return fmt.Errorf("failed to resolve node identity: %w", err)
	}
	logger = logger.With("node", nodeID)

	fs, err := fsmem.Open(cfg.Storage.Persistent)
	if err != nil {
		return err
	}
	rtc := rtcmem.New(rtcmem.NewFileBackend(cfg.Storage.Retained), logger)

	exp, closeExp, err := openExpander(cfg.Heater)
	if err != nil {
		return err
	}
	defer closeExp()

	var ex brick.Exchanger
	if setup {
		// The controller is not consulted on the bench.
		ex = newLoopback()
	} else {
		ex, err = openExchanger(ctx, cfg, nodeID, logger)
		if err != nil {
			return err
		}
		if c, ok := ex.(interface{ Close() error }); ok {
			defer c.Close()
		}
	}

	feature, err := heat.New(rtc, fs, heat.Options{
		NodeID: nodeID,
		Sensor: sensor.Options{
			PollInterval: cfg.Sensor.PollInterval,
			Timeout:      cfg.Sensor.Timeout,
		},
		Logger: logger,
	})
	if err != nil {
		return err
	}
	feature.SetHeatPin(exp, cfg.Heater.Pin)
	feature.SetTempPin(openBus(cfg, logger), cfg.Sensor.Pin)

	b := brick.New(rtc, fs, ex, logger)
	if err := b.Register(feature); err != nil {
		return err
	}

	if !setup {
		logger.Info("starting wake cycles", "sleep", cfg.Cycle.Sleep, "cycles", cycles)
		return b.Run(ctx, cfg.Cycle.Sleep, cycles)
	}

	if err := b.Boot(ctx); err != nil {
		logger.Warn("boot completed with errors", "error", err)
	}
	con, closeCon, err := openConsole(consolePort, cfg.Heater.BaudRate)
	if err != nil {
		return err
	}
	defer closeCon()
	return b.Setup(ctx, con)
}

func openConsole(port string, baudRate int) (*console.Console, func() error, error) {
	if port != "" {
		return console.OpenSerial(port, baudRate)
	}
	term, err := console.NewTerminal()
	if err != nil {
		return nil, nil, err
	}
	return console.New(term, term.Stdout()), term.Close, nil
}

package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/itohio/brickheat/pkg/brick"
	"github.com/itohio/brickheat/pkg/config"
	"github.com/itohio/brickheat/pkg/ds18b20"
	"github.com/itohio/brickheat/pkg/exchange"
	"github.com/itohio/brickheat/pkg/expander"
)

// openExpander opens the heater expander. Host GPIO lines are released when
// the process exits, so they are claimed again here; a warm start does not
// configure the pin. The co-processor keeps its pin state across restarts.
func openExpander(cfg config.HeaterConfig) (expander.Expander, func() error, error) {
	switch cfg.Driver {
	case "mock":
		m := expander.NewMock()
		if err := m.SetOutput(cfg.Pin); err != nil {
			return nil, nil, err
		}
		return m, func() error { return nil }, nil
	case "gpio":
		g := expander.NewGPIO(cfg.Chip)
		if err := g.SetOutput(cfg.Pin); err != nil {
			return nil, nil, err
		}
		return g, g.Close, nil
	case "serial":
		s := expander.NewSerial(cfg.Port, cfg.BaudRate)
		if err := s.Connect(); err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown heater driver %q", cfg.Driver)
	}
}

func openBus(cfg *config.Config, logger *slog.Logger) ds18b20.Bus {
	if cfg.Sensor.Driver == "w1" {
		return ds18b20.NewW1(cfg.Sensor.Root, logger)
	}
	return ds18b20.NewMock(cfg.Mock.Devices, cfg.Mock.Temperature, cfg.Mock.TimeScale)
}

// newLoopback answers like a controller that asks for the sensor metadata on
// the first cycle and then only collects readings.
func newLoopback() *exchange.Loopback {
	return exchange.NewLoopback(brick.Document{"r": []any{4, 6}})
}

func openExchanger(ctx context.Context, cfg *config.Config, nodeID string, logger *slog.Logger) (brick.Exchanger, error) {
	switch cfg.Exchange.Driver {
	case "loopback":
		return newLoopback(), nil
	case "mqtt":
		broker := cfg.Exchange.Broker
		if broker == "" && cfg.Exchange.Discover {
			var err error
			broker, err = exchange.DiscoverBroker(ctx, cfg.Node.Interface, 0, logger)
			if err != nil {
				return nil, err
			}
		}
		return exchange.DialMQTT(ctx, exchange.MQTTOptions{
			Broker:      broker,
			User:        cfg.Exchange.User,
			Password:    cfg.Exchange.Password,
			TopicPrefix: cfg.Exchange.TopicPrefix,
			NodeID:      nodeID,
			Timeout:     cfg.Exchange.Timeout,
			Logger:      logger,
		})
	default:
		return nil, fmt.Errorf("unknown exchange driver %q", cfg.Exchange.Driver)
	}
}

// Package sensor wraps a DS18B20 on a one-wire bus: enumeration, background
// conversions and a bounded wait for their completion.
package sensor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/itohio/brickheat/pkg/ds18b20"
)

const (
	// DefaultPollInterval is the sleep between conversion-complete polls.
	DefaultPollInterval = time.Millisecond
	// DefaultTimeout bounds one conversion wait; a 12 bit conversion takes 750ms.
	DefaultTimeout = time.Second
)

// ErrTimeout is returned when a conversion does not complete in time.
var ErrTimeout = errors.New("conversion timed out")

// Options configures a Controller.
type Options struct {
	PollInterval time.Duration
	Timeout      time.Duration
	Logger       *slog.Logger
}

// Controller drives the temperature sensor. Apart from the last value read,
// which serves as fallback for a stuck conversion, it holds no state: the
// sensor address and precision live with the caller.
type Controller struct {
	bus          ds18b20.Bus
	pollInterval time.Duration
	timeout      time.Duration
	log          *slog.Logger

	last     float32
	haveLast bool
}

// New creates a sensor controller on the given bus.
func New(bus ds18b20.Bus, opts Options) *Controller {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Controller{
		bus:          bus,
		pollInterval: opts.PollInterval,
		timeout:      opts.Timeout,
		log:          opts.Logger,
	}
}

// Initialize enumerates the bus and returns the address of the first device.
// connected is false when the bus is empty or cannot be enumerated.
func (c *Controller) Initialize() (addr ds18b20.Address, connected bool) {
	devices, err := c.bus.Devices()
	if err != nil {
		c.log.Warn("failed to enumerate one-wire bus", "error", err)
		return addr, false
	}
	if len(devices) == 0 {
		return addr, false
	}
	c.log.Debug("temperature sensor found", "address", devices[0].String(), "count", len(devices))
	return devices[0], true
}

// ScheduleConversion requests a conversion on all devices. When blocking is
// false it returns immediately and the conversion proceeds in the background.
func (c *Controller) ScheduleConversion(ctx context.Context, blocking bool) error {
	if err := c.bus.RequestTemperatures(); err != nil {
		return fmt.Errorf("failed to request conversion: %w", err)
	}
	if !blocking {
		return nil
	}
	return c.WaitReady(ctx)
}

// ScheduleConversionFor requests a conversion on a single device.
func (c *Controller) ScheduleConversionFor(ctx context.Context, addr ds18b20.Address, blocking bool) error {
	if err := c.bus.RequestTemperature(addr); err != nil {
		return fmt.Errorf("failed to request conversion: %w", err)
	}
	if !blocking {
		return nil
	}
	return c.WaitReady(ctx)
}

// IsReady polls conversion completion without blocking.
func (c *Controller) IsReady() bool {
	return c.bus.ConversionComplete()
}

// WaitReady polls IsReady every PollInterval until the conversion completes,
// the timeout elapses (ErrTimeout) or ctx is done.
func (c *Controller) WaitReady(ctx context.Context) error {
	if c.IsReady() {
		return nil
	}

	deadline := time.NewTimer(c.timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			if c.IsReady() {
				return nil
			}
			return ErrTimeout
		case <-ticker.C:
			if c.IsReady() {
				return nil
			}
		}
	}
}

// ReadCelsius returns the result of the last completed conversion.
func (c *Controller) ReadCelsius(addr ds18b20.Address) (float32, error) {
	v, err := c.bus.TempC(addr)
	if err != nil {
		return ds18b20.DisconnectedC, fmt.Errorf("failed to read sensor %s: %w", addr, err)
	}
	c.last = v
	c.haveLast = true
	return v, nil
}

// Read waits for the pending conversion and returns its result. When the
// wait fails it returns the last known value, or DisconnectedC if there is
// none, together with the error.
func (c *Controller) Read(ctx context.Context, addr ds18b20.Address) (float32, error) {
	if err := c.WaitReady(ctx); err != nil {
		c.log.Warn("temperature conversion did not complete", "sensor", addr.String(), "error", err)
		return c.fallback(), err
	}
	v, err := c.ReadCelsius(addr)
	if err != nil {
		return c.fallback(), err
	}
	return v, nil
}

// SetPrecision changes the resolution and performs one blocking conversion
// whose result is discarded: the first reading after a resolution change is
// the 85 °C power-on value.
func (c *Controller) SetPrecision(ctx context.Context, bits uint8) error {
	if err := c.bus.SetResolution(bits); err != nil {
		return fmt.Errorf("failed to set precision: %w", err)
	}
	if err := c.ScheduleConversion(ctx, true); err != nil {
		return fmt.Errorf("failed to discard first reading: %w", err)
	}
	return nil
}

func (c *Controller) fallback() float32 {
	if c.haveLast {
		return c.last
	}
	return ds18b20.DisconnectedC
}

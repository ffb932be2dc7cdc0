// Package heat is the radiator feature of a brick: one DS18B20 temperature
// sensor and one heater output on an I/O expander.
//
// Defaults live in the persistent store (section "heat"); the working copy,
// the sensor identity and the one-shot request flags live in retained memory
// and are re-seeded from the defaults only on a cold start.
package heat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/itohio/brickheat/pkg/brick"
	"github.com/itohio/brickheat/pkg/ds18b20"
	"github.com/itohio/brickheat/pkg/expander"
	"github.com/itohio/brickheat/pkg/fsmem"
	"github.com/itohio/brickheat/pkg/heater"
	"github.com/itohio/brickheat/pkg/rtcmem"
	"github.com/itohio/brickheat/pkg/sensor"
)

const (
	// Name is the feature name.
	Name = "heat"
	// Version is the feature version; it is part of the retained region key.
	Version uint16 = 1

	keyCorrection  = "sCorr"
	keyPrecision   = "sPrec"
	keyOffPolarity = "hOff"

	// Default values of the persistent store.
	DefaultCorrection  float32 = 0
	DefaultPrecision   uint8   = 11
	DefaultOffPolarity uint8   = 1

	// Request codes of the "r" command.
	requestCorrection = 4
	requestPrecision  = 6

	sensorSuffix = "_rad"
)

var errDisconnected = errors.New("sensor disconnected")

// Ensure Feature implements brick.Feature.
var _ brick.Feature = (*Feature)(nil)

// Retained is the feature's region in retained memory.
type Retained struct {
	SensorAddress       ds18b20.Address
	SensorConnected     bool
	Precision           uint8
	Correction          float32
	OffPolarity         uint8
	PrecisionRequested  bool
	CorrectionRequested bool
}

// Defaults is the typed view of the persistent store section.
type Defaults struct {
	Correction  float32
	Precision   uint8
	OffPolarity uint8
}

// ValidPrecision reports whether p is a supported sensor resolution.
func ValidPrecision(p int) bool {
	return p >= ds18b20.MinResolution && p <= ds18b20.MaxResolution
}

// ValidOffPolarity reports whether v is a pin level.
func ValidOffPolarity(v int) bool {
	return v == 0 || v == 1
}

// Options configures a Feature.
type Options struct {
	// NodeID is the lowercase MAC without separators; the sensor is reported
	// as NodeID + "_rad".
	NodeID string
	Sensor sensor.Options
	Logger *slog.Logger
}

// Feature implements the heat feature.
type Feature struct {
	rtc  *rtcmem.Memory
	fs   *fsmem.Section
	data Retained

	heater     *heater.Controller
	sensor     *sensor.Controller
	sensorOpts sensor.Options
	sensorName string
	tempPin    uint8
	log        *slog.Logger
}

// New creates the feature and registers its retained region. Hardware is
// assigned afterwards with SetHeatPin and SetTempPin.
func New(rtc *rtcmem.Memory, fs *fsmem.Store, opts Options) (*Feature, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Sensor.Logger == nil {
		opts.Sensor.Logger = opts.Logger
	}

	f := &Feature{
		rtc:        rtc,
		fs:         fs.Section(Name),
		sensorOpts: opts.Sensor,
		sensorName: opts.NodeID + sensorSuffix,
		log:        opts.Logger.With("feature", Name),
	}
	if err := rtc.Register(fmt.Sprintf("%s/%d", Name, Version), &f.data); err != nil {
		return nil, fmt.Errorf("failed to register retained region: %w", err)
	}
	return f, nil
}

// SetHeatPin assigns the expander pin switching the heater. A later call
// replaces the previous pin.
func (f *Feature) SetHeatPin(exp expander.Expander, pin uint8) {
	f.heater = heater.New(exp, pin)
}

// SetTempPin assigns the one-wire bus of the radiator sensor and the pin it
// is wired to. The pin is informational: the bus is already bound to it.
func (f *Feature) SetTempPin(bus ds18b20.Bus, pin uint8) {
	f.sensor = sensor.New(bus, f.sensorOpts)
	f.tempPin = pin
}

// Name returns the feature name.
func (f *Feature) Name() string {
	return Name
}

// Version returns the feature version.
func (f *Feature) Version() uint16 {
	return Version
}

// SensorName returns the name the sensor is reported under.
func (f *Feature) SensorName() string {
	return f.sensorName
}

// State returns a copy of the retained working state.
func (f *Feature) State() Retained {
	return f.data
}

// Defaults returns the persistent defaults.
func (f *Feature) Defaults() Defaults {
	return Defaults{
		Correction:  f.fs.Float32(keyCorrection),
		Precision:   f.fs.Uint8(keyPrecision),
		OffPolarity: f.fs.Uint8(keyOffPolarity),
	}
}

// Begin fills in missing defaults and, on a cold start, re-seeds the retained
// state from them, probes the sensor and forces the heater off.
func (f *Feature) Begin(ctx context.Context) error {
	if f.heater == nil || f.sensor == nil {
		return errors.New("hardware not assigned")
	}

	f.fs.SetDefault(keyCorrection, DefaultCorrection)
	f.fs.SetDefault(keyPrecision, DefaultPrecision)
	f.fs.SetDefault(keyOffPolarity, DefaultOffPolarity)

	if f.rtc.Valid() {
		return nil
	}

	def := f.Defaults()
	if !ValidPrecision(int(def.Precision)) {
		f.log.Warn("invalid default precision, using built-in", "value", def.Precision, "precision", DefaultPrecision)
		def.Precision = DefaultPrecision
	}
	if !ValidOffPolarity(int(def.OffPolarity)) {
		f.log.Warn("invalid default off state, using built-in", "value", def.OffPolarity, "off_polarity", DefaultOffPolarity)
		def.OffPolarity = DefaultOffPolarity
	}
	f.data = Retained{
		Precision:   def.Precision,
		Correction:  def.Correction,
		OffPolarity: def.OffPolarity,
	}
	f.data.SensorAddress, f.data.SensorConnected = f.sensor.Initialize()
	f.log.Info("cold start",
		"sensor_connected", f.data.SensorConnected,
		"precision", f.data.Precision,
		"correction", f.data.Correction,
		"off_polarity", f.data.OffPolarity)

	return f.heater.InitializeOutput(f.data.OffPolarity)
}

// Start schedules the background conversion read by Deliver. After a cold
// start the precision is transmitted first, discarding the dummy reading.
func (f *Feature) Start(ctx context.Context) error {
	if !f.data.SensorConnected {
		return nil
	}

	if !f.rtc.Valid() {
		if err := f.sensor.SetPrecision(ctx, f.data.Precision); err != nil {
			return err
		}
	}
	return f.sensor.ScheduleConversionFor(ctx, f.data.SensorAddress, false)
}

// Deliver emits requested metadata and the current temperature:
//
//	"p": precision                 (once, if requested)
//	"c": [[name, correction], ...] (once, if requested)
//	"t": [[name, celsius], ...]    (whenever a sensor is connected)
func (f *Feature) Deliver(ctx context.Context, out brick.Document) error {
	if f.data.PrecisionRequested {
		f.data.PrecisionRequested = false
		out["p"] = int(f.data.Precision)
	}

	if f.data.CorrectionRequested {
		f.data.CorrectionRequested = false
		out.Append("c", f.sensorName, f.data.Correction)
	}

	if !f.data.SensorConnected {
		return nil
	}

	v, err := f.sensor.Read(ctx, f.data.SensorAddress)
	if v == ds18b20.DisconnectedC {
		if err == nil {
			err = errDisconnected
		}
		return fmt.Errorf("no temperature for %s: %w", f.sensorName, err)
	}
	out.Append("t", f.sensorName, v+f.data.Correction)
	return err
}

// Feedback applies commands from the remote controller:
//
//	"h": 0|1      heater off/on
//	"p": 8..12    new working precision
//	"r": [codes]  4 requests correction, 6 requests precision (answered by
//	              the next cycle's Deliver)
//
// Anything else is ignored.
func (f *Feature) Feedback(ctx context.Context, in brick.Document) error {
	var errs []error

	if h, ok := in.Int("h"); ok {
		switch h {
		case 0:
			errs = append(errs, f.heater.WriteOff(f.data.OffPolarity))
		case 1:
			errs = append(errs, f.heater.WriteOn(f.data.OffPolarity))
		}
	}

	if p, ok := in.Int("p"); ok && ValidPrecision(p) {
		f.data.Precision = uint8(p)
		if f.data.SensorConnected {
			errs = append(errs, f.sensor.SetPrecision(ctx, f.data.Precision))
		}
	}

	if codes, ok := in.Ints("r"); ok {
		for _, code := range codes {
			switch code {
			case requestCorrection:
				f.data.CorrectionRequested = true
			case requestPrecision:
				f.data.PrecisionRequested = true
			}
		}
	}

	return errors.Join(errs...)
}

// End finalises the feature. There is nothing to release.
func (f *Feature) End(ctx context.Context) error {
	return nil
}

// DescribeRetained prints the retained state.
func (f *Feature) DescribeRetained(w io.Writer) {
	fmt.Fprintf(w, "  tempPrecisionRequested: %t\n", f.data.PrecisionRequested)
	fmt.Fprintf(w, "  tempCorrRequested: %t\n", f.data.CorrectionRequested)
	fmt.Fprintf(w, "  tempSensorConnected: %t\n", f.data.SensorConnected)
	fmt.Fprintf(w, "  tempSensorPrecision: %d\n", f.data.Precision)
	fmt.Fprintf(w, "  tempSensorCorrection: %.2f\n", f.data.Correction)
	if f.data.SensorConnected {
		fmt.Fprintf(w, "  tempSensorAddr: %s\n", f.data.SensorAddress)
	} else {
		fmt.Fprintln(w, "  tempSensorAddr: ---")
	}
	fmt.Fprintf(w, "  heatOffState: %d\n", f.data.OffPolarity)
	if f.heater != nil {
		fmt.Fprintf(w, "  heatPin: %d\n", f.heater.Pin())
	}
	fmt.Fprintf(w, "  tempPin: %d\n", f.tempPin)
}

// DescribePersistent prints the persistent defaults.
func (f *Feature) DescribePersistent(w io.Writer) {
	def := f.Defaults()
	fmt.Fprintf(w, "  defaultTempPrecision: %d\n", def.Precision)
	fmt.Fprintf(w, "  defaultTempCorrection: %.2f\n", def.Correction)
	fmt.Fprintf(w, "  defaultHeatOffState: %d\n", def.OffPolarity)
}

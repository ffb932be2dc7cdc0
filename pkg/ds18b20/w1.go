package ds18b20

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// DefaultW1Root is where the kernel w1 subsystem exposes slave devices.
const DefaultW1Root = "/sys/bus/w1/devices"

// Ensure W1 implements Bus.
var _ Bus = (*W1)(nil)

// W1 drives DS18B20 sensors through the Linux w1_therm sysfs interface.
// Reading w1_slave blocks for the conversion, so a requested conversion runs
// in a goroutine and ConversionComplete polls its completion.
type W1 struct {
	root string
	log  *slog.Logger

	mu     sync.Mutex
	done   chan struct{}
	values map[Address]float32
}

// NewW1 creates a bus rooted at the given sysfs device directory.
func NewW1(root string, logger *slog.Logger) *W1 {
	if root == "" {
		root = DefaultW1Root
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &W1{
		root:   root,
		log:    logger,
		values: make(map[Address]float32),
	}
}

// Devices lists the DS18B20 slaves registered by the kernel.
func (b *W1) Devices() ([]Address, error) {
	matches, err := filepath.Glob(filepath.Join(b.root, fmt.Sprintf("%02x-*", FamilyCode)))
	if err != nil {
		return nil, fmt.Errorf("failed to list w1 devices: %w", err)
	}

	result := make([]Address, 0, len(matches))
	for _, m := range matches {
		addr, err := addressFromSlaveName(filepath.Base(m))
		if err != nil {
			b.log.Warn("skipping w1 slave", "name", filepath.Base(m), "error", err)
			continue
		}
		result = append(result, addr)
	}
	return result, nil
}

// SetResolution writes the resolution of every slave.
func (b *W1) SetResolution(bits uint8) error {
	if bits < MinResolution || bits > MaxResolution {
		return fmt.Errorf("resolution out of range: %d", bits)
	}
	devices, err := b.Devices()
	if err != nil {
		return err
	}
	var errs []error
	for _, addr := range devices {
		path := filepath.Join(b.root, slaveName(addr), "resolution")
		if err := os.WriteFile(path, []byte(strconv.Itoa(int(bits))), 0644); err != nil {
			errs = append(errs, fmt.Errorf("failed to set resolution of %s: %w", addr, err))
		}
	}
	return errors.Join(errs...)
}

// RequestTemperatures starts a conversion on all slaves.
func (b *W1) RequestTemperatures() error {
	devices, err := b.Devices()
	if err != nil {
		return err
	}
	b.convert(devices)
	return nil
}

// RequestTemperature starts a conversion on one slave.
func (b *W1) RequestTemperature(addr Address) error {
	if _, err := os.Stat(filepath.Join(b.root, slaveName(addr))); err != nil {
		return fmt.Errorf("device %s not on bus: %w", addr, err)
	}
	b.convert([]Address{addr})
	return nil
}

// ConversionComplete reports whether no conversion is in flight.
func (b *W1) ConversionComplete() bool {
	b.mu.Lock()
	done := b.done
	b.mu.Unlock()
	if done == nil {
		return true
	}
	select {
	case <-done:
		return true
	default:
		return false
	}
}

// TempC returns the last converted value of a slave.
func (b *W1) TempC(addr Address) (float32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.values[addr]
	if !ok {
		return DisconnectedC, fmt.Errorf("no conversion result for %s", addr)
	}
	return v, nil
}

func (b *W1) convert(devices []Address) {
	done := make(chan struct{})
	b.mu.Lock()
	prev := b.done
	b.done = done
	b.mu.Unlock()

	go func() {
		defer close(done)
		// Conversions on one bus are serialised by the kernel anyway.
		if prev != nil {
			<-prev
		}
		for _, addr := range devices {
			v, err := b.readSlave(addr)
			if err != nil {
				b.log.Warn("w1 conversion failed", "sensor", addr.String(), "error", err)
				v = DisconnectedC
			}
			b.mu.Lock()
			b.values[addr] = v
			b.mu.Unlock()
		}
	}()
}

func (b *W1) readSlave(addr Address) (float32, error) {
	data, err := os.ReadFile(filepath.Join(b.root, slaveName(addr), "w1_slave"))
	if err != nil {
		return DisconnectedC, fmt.Errorf("failed to read w1_slave: %w", err)
	}
	return parseW1Slave(string(data))
}

// parseW1Slave parses the w1_therm output:
//
//	72 01 4b 46 7f ff 0e 10 57 : crc=57 YES
//	72 01 4b 46 7f ff 0e 10 57 t=23125
func parseW1Slave(data string) (float32, error) {
	lines := strings.Split(strings.TrimSpace(data), "\n")
	if len(lines) < 2 {
		return DisconnectedC, fmt.Errorf("invalid w1_slave format: expected 2 lines, got %d", len(lines))
	}
	if !strings.HasSuffix(strings.TrimSpace(lines[0]), "YES") {
		return DisconnectedC, fmt.Errorf("crc check failed: %q", lines[0])
	}
	idx := strings.LastIndex(lines[1], "t=")
	if idx < 0 {
		return DisconnectedC, fmt.Errorf("invalid w1_slave format: missing temperature")
	}
	milli, err := strconv.ParseInt(strings.TrimSpace(lines[1][idx+2:]), 10, 32)
	if err != nil {
		return DisconnectedC, fmt.Errorf("invalid temperature: %w", err)
	}
	return float32(milli) / 1000, nil
}

// slaveName renders the sysfs name "28-0316a2795eff": family code, then the
// serial most significant byte first.
func slaveName(addr Address) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%02x-", addr[0])
	for i := 6; i >= 1; i-- {
		fmt.Fprintf(&sb, "%02x", addr[i])
	}
	return sb.String()
}

func addressFromSlaveName(name string) (Address, error) {
	family, serialHex, ok := strings.Cut(name, "-")
	if !ok || len(serialHex) != 12 {
		return Address{}, fmt.Errorf("invalid slave name %q", name)
	}
	if family != fmt.Sprintf("%02x", FamilyCode) {
		return Address{}, fmt.Errorf("unsupported family %q", family)
	}
	serial, err := strconv.ParseUint(serialHex, 16, 64)
	if err != nil {
		return Address{}, fmt.Errorf("invalid serial in %q: %w", name, err)
	}
	return NewAddress(serial), nil
}

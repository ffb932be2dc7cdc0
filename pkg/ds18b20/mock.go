package ds18b20

import (
	"fmt"
	"sync"
	"time"

	"github.com/chewxy/math32"
)

// Ensure Mock implements Bus.
var _ Bus = (*Mock)(nil)

// Mock simulates a one-wire bus with DS18B20 devices.
//
// Conversions take ConversionTime(resolution) scaled by timeScale; the first
// conversion after SetResolution yields PowerOnC, like the real part.
type Mock struct {
	mu sync.Mutex

	devices     []Address
	temperature float32
	resolution  uint8
	timeScale   float64
	stuck       bool

	readyAt     time.Time
	pending     bool
	dummyNext   bool
	scratchpad  float32
	conversions int
	now         func() time.Time
}

// NewMock creates a simulated bus with n devices at the given temperature.
// A timeScale of 0 completes conversions immediately.
func NewMock(n int, temperature float32, timeScale float64) *Mock {
	devices := make([]Address, 0, n)
	for i := 0; i < n; i++ {
		devices = append(devices, NewAddress(0x0316a2795e00+uint64(i)))
	}
	return &Mock{
		devices:     devices,
		temperature: temperature,
		resolution:  MaxResolution,
		timeScale:   timeScale,
		scratchpad:  PowerOnC,
		now:         time.Now,
	}
}

// Devices returns the simulated ROM codes.
func (m *Mock) Devices() ([]Address, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Address, len(m.devices))
	copy(out, m.devices)
	return out, nil
}

// SetResolution sets the converter resolution of all devices.
func (m *Mock) SetResolution(bits uint8) error {
	if bits < MinResolution || bits > MaxResolution {
		return fmt.Errorf("resolution out of range: %d", bits)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resolution = bits
	m.dummyNext = true
	return nil
}

// RequestTemperatures starts a conversion on all devices.
func (m *Mock) RequestTemperatures() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settle()
	ms := ConversionTime(m.resolution) * m.timeScale
	m.readyAt = m.now().Add(time.Duration(ms * float64(time.Millisecond)))
	m.pending = true
	m.conversions++
	return nil
}

// RequestTemperature starts a conversion on one device.
func (m *Mock) RequestTemperature(addr Address) error {
	if !m.has(addr) {
		return fmt.Errorf("device %s not on bus", addr)
	}
	return m.RequestTemperatures()
}

// ConversionComplete reports whether the last requested conversion is done.
func (m *Mock) ConversionComplete() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settle()
	return !m.pending
}

// TempC returns the last converted value of a device.
func (m *Mock) TempC(addr Address) (float32, error) {
	if !m.has(addr) {
		return DisconnectedC, fmt.Errorf("device %s not on bus", addr)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settle()
	return m.scratchpad, nil
}

// SetTemperature changes the simulated temperature.
func (m *Mock) SetTemperature(t float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.temperature = t
}

// SetStuck makes conversions never complete.
func (m *Mock) SetStuck(stuck bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stuck = stuck
}

// Resolution returns the current converter resolution.
func (m *Mock) Resolution() uint8 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resolution
}

// Conversions returns the number of conversions requested so far.
func (m *Mock) Conversions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conversions
}

func (m *Mock) has(addr Address) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.devices {
		if d == addr {
			return true
		}
	}
	return false
}

// settle completes a pending conversion once its time has passed.
// Must be called with mu held.
func (m *Mock) settle() {
	if !m.pending || m.stuck || m.now().Before(m.readyAt) {
		return
	}
	m.pending = false
	if m.dummyNext {
		m.dummyNext = false
		m.scratchpad = PowerOnC
		return
	}
	m.scratchpad = quantize(m.temperature, m.resolution)
}

// quantize truncates t to the step of the given resolution (1 °C at 8 bits
// down to 0.0625 °C at 12 bits).
func quantize(t float32, bits uint8) float32 {
	if bits < MinResolution {
		bits = MinResolution
	}
	step := float32(1) / float32(uint(1)<<(bits-MinResolution))
	return math32.Floor(t/step) * step
}

// Package ds18b20 provides access to DS18B20 temperature sensors on a
// one-wire bus. Bus is implemented by the Linux w1 sysfs driver (W1) and by
// a simulated bus (Mock) for tests and bench use without hardware.
package ds18b20

import (
	"encoding/hex"
	"fmt"
)

const (
	// MinResolution and MaxResolution bound the converter resolution in bits.
	MinResolution = 8
	MaxResolution = 12

	// PowerOnC is the scratchpad value after reset or a resolution change.
	PowerOnC float32 = 85.0
	// DisconnectedC is reported for a sensor that could not be read.
	DisconnectedC float32 = -127.0

	// FamilyCode is the one-wire family code of DS18B20 devices.
	FamilyCode = 0x28
)

// Address is the 64-bit ROM code of a one-wire device: family code, 48-bit
// serial (least significant byte first) and CRC.
type Address [8]byte

// String renders the address as 16 lowercase hex digits, two per byte.
func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

// IsZero reports whether the address is unset.
func (a Address) IsZero() bool {
	return a == Address{}
}

// Valid reports whether the trailing CRC byte matches the first seven.
func (a Address) Valid() bool {
	return crc8(a[:7]) == a[7]
}

// ParseAddress parses the 16 hex digit form produced by String.
func ParseAddress(s string) (Address, error) {
	var a Address
	b, err := hex.DecodeString(s)
	if err != nil {
		return a, fmt.Errorf("invalid address %q: %w", s, err)
	}
	if len(b) != len(a) {
		return a, fmt.Errorf("invalid address %q: expected %d bytes, got %d", s, len(a), len(b))
	}
	copy(a[:], b)
	return a, nil
}

// Bus is a one-wire bus with DS18B20 devices attached.
//
// A conversion is requested with RequestTemperatures and runs in the
// background; ConversionComplete polls it and TempC returns the result of the
// last completed conversion.
type Bus interface {
	Devices() ([]Address, error)
	SetResolution(bits uint8) error
	RequestTemperatures() error
	RequestTemperature(addr Address) error
	ConversionComplete() bool
	TempC(addr Address) (float32, error)
}

// ConversionTime returns the datasheet maximum conversion time in
// milliseconds for the given resolution.
func ConversionTime(bits uint8) float64 {
	switch {
	case bits <= 9:
		return 93.75
	case bits == 10:
		return 187.5
	case bits == 11:
		return 375
	default:
		return 750
	}
}

// crc8 is the Dallas/Maxim CRC (polynomial x^8 + x^5 + x^4 + 1).
func crc8(data []byte) byte {
	var crc byte
	for _, b := range data {
		for i := 0; i < 8; i++ {
			mix := (crc ^ b) & 0x01
			crc >>= 1
			if mix != 0 {
				crc ^= 0x8C
			}
			b >>= 1
		}
	}
	return crc
}

// NewAddress builds a ROM code for a DS18B20 from its 48-bit serial, filling
// in the family code and CRC.
func NewAddress(serial uint64) Address {
	var a Address
	a[0] = FamilyCode
	for i := 0; i < 6; i++ {
		a[1+i] = byte(serial >> (8 * i))
	}
	a[7] = crc8(a[:7])
	return a
}

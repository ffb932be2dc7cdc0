// Package rtcmem emulates the RTC memory of a sleep-cycled brick: a block of
// state that survives sleep and reset but not power loss.
//
// Features register typed regions before Load. The whole block is stored as a
// versioned CBOR snapshot guarded by a CRC32; any mismatch makes the memory
// invalid and every region starts from its zero value (cold start). There is
// no partial recovery.
package rtcmem

import (
	"errors"
	"fmt"
	"hash/crc32"
	"log/slog"
	"reflect"
	"sort"

	"github.com/fxamacker/cbor/v2"
)

// FormatVersion is the current snapshot envelope version.
const FormatVersion = 1

var (
	// ErrChecksum is reported when the snapshot CRC does not match.
	ErrChecksum = errors.New("retained memory checksum mismatch")
	// ErrVersion is reported for a snapshot written by another format version.
	ErrVersion = errors.New("retained memory version mismatch")
	// ErrMissingRegion is reported when a registered region is not in the snapshot.
	ErrMissingRegion = errors.New("retained memory region missing")
)

// envelope is the on-backend representation of the retained memory.
type envelope struct {
	Version  uint16 `cbor:"1,keyasint"`
	Payload  []byte `cbor:"2,keyasint"`
	Checksum uint32 `cbor:"3,keyasint"`
}

// Memory is the retained memory of one brick.
type Memory struct {
	backend Backend
	log     *slog.Logger

	regions map[string]any
	loaded  bool
	valid   bool
}

// New creates a retained memory on the given backend.
func New(backend Backend, logger *slog.Logger) *Memory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Memory{
		backend: backend,
		log:     logger,
		regions: make(map[string]any),
	}
}

// Register adds a region. ptr must be a non-nil pointer to a CBOR encodable
// value; it is filled by Load and written by Save. Regions must be
// registered before Load.
func (m *Memory) Register(name string, ptr any) error {
	if m.loaded {
		return fmt.Errorf("region %q registered after load", name)
	}
	v := reflect.ValueOf(ptr)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return fmt.Errorf("region %q: expected non-nil pointer, got %T", name, ptr)
	}
	if _, ok := m.regions[name]; ok {
		return fmt.Errorf("region %q already registered", name)
	}
	m.regions[name] = ptr
	return nil
}

// Load reads the snapshot and fills all regions. An invalid snapshot is not
// an error: Valid reports false and the regions are zeroed. Only backend
// failures are returned.
func (m *Memory) Load() error {
	m.loaded = true
	m.valid = false

	blob, err := m.backend.Load()
	if err != nil {
		m.reset()
		return fmt.Errorf("failed to load retained memory: %w", err)
	}
	if blob == nil {
		m.log.Info("retained memory empty, cold start")
		m.reset()
		return nil
	}

	if err := m.decode(blob); err != nil {
		m.log.Info("retained memory invalid, cold start", "reason", err)
		m.reset()
		return nil
	}

	m.valid = true
	return nil
}

// Valid reports whether the last Load restored a valid snapshot. It stays
// fixed for the whole wake cycle, Save does not change it.
func (m *Memory) Valid() bool {
	return m.valid
}

// Save writes all regions to the backend, so that the next Load is valid.
func (m *Memory) Save() error {
	payload := make(map[string]cbor.RawMessage, len(m.regions))
	for name, ptr := range m.regions {
		raw, err := cbor.Marshal(ptr)
		if err != nil {
			return fmt.Errorf("failed to encode region %q: %w", name, err)
		}
		payload[name] = raw
	}

	body, err := cbor.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode retained memory: %w", err)
	}
	blob, err := cbor.Marshal(envelope{
		Version:  FormatVersion,
		Payload:  body,
		Checksum: crc32.ChecksumIEEE(body),
	})
	if err != nil {
		return fmt.Errorf("failed to encode retained memory: %w", err)
	}

	if err := m.backend.Store(blob); err != nil {
		return fmt.Errorf("failed to store retained memory: %w", err)
	}
	return nil
}

// Invalidate wipes the backend so the next Load is a cold start.
func (m *Memory) Invalidate() error {
	if err := m.backend.Store(nil); err != nil {
		return fmt.Errorf("failed to invalidate retained memory: %w", err)
	}
	return nil
}

// Regions returns the registered region names in sorted order.
func (m *Memory) Regions() []string {
	names := make([]string, 0, len(m.regions))
	for name := range m.regions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *Memory) decode(blob []byte) error {
	var env envelope
	if err := cbor.Unmarshal(blob, &env); err != nil {
		return fmt.Errorf("invalid envelope: %w", err)
	}
	if env.Version != FormatVersion {
		return fmt.Errorf("%w: got %d, want %d", ErrVersion, env.Version, FormatVersion)
	}
	if crc32.ChecksumIEEE(env.Payload) != env.Checksum {
		return ErrChecksum
	}

	var payload map[string]cbor.RawMessage
	if err := cbor.Unmarshal(env.Payload, &payload); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	for name, ptr := range m.regions {
		raw, ok := payload[name]
		if !ok {
			return fmt.Errorf("%w: %q", ErrMissingRegion, name)
		}
		if err := cbor.Unmarshal(raw, ptr); err != nil {
			return fmt.Errorf("invalid region %q: %w", name, err)
		}
	}
	return nil
}

func (m *Memory) reset() {
	for _, ptr := range m.regions {
		reflect.ValueOf(ptr).Elem().SetZero()
	}
}

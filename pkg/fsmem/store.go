// Package fsmem is the durable key/value store of a brick. Each feature owns
// a named section; values survive power loss because the store is a YAML
// file on persistent storage.
package fsmem

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// Store holds all feature sections. Changes are kept in memory until Save.
type Store struct {
	path string

	mu       sync.Mutex
	sections map[string]map[string]any
	dirty    bool
}

// Open loads the store from a YAML file. A missing file yields an empty
// store; an empty path yields a store that is never written.
func Open(path string) (*Store, error) {
	s := &Store{
		path:     path,
		sections: make(map[string]map[string]any),
	}
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read store: %w", err)
	}

	if err := yaml.Unmarshal(data, &s.sections); err != nil {
		return nil, fmt.Errorf("failed to parse store: %w", err)
	}
	if s.sections == nil {
		s.sections = make(map[string]map[string]any)
	}
	return s, nil
}

// Section returns the section of a feature, creating it if needed.
func (s *Store) Section(name string) *Section {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sections[name]; !ok {
		s.sections[name] = make(map[string]any)
	}
	return &Section{store: s, name: name}
}

// Dirty reports whether there are unsaved changes.
func (s *Store) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// Save writes the store if it changed since the last save. The file is
// replaced atomically so a power cut never leaves a truncated store.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirty || s.path == "" {
		return nil
	}

	data, err := yaml.Marshal(s.sections)
	if err != nil {
		return fmt.Errorf("failed to marshal store: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace store: %w", err)
	}

	s.dirty = false
	return nil
}

// Section is the key/value space of one feature.
type Section struct {
	store *Store
	name  string
}

// Name returns the section name.
func (sec *Section) Name() string {
	return sec.name
}

// Has reports whether key is set.
func (sec *Section) Has(key string) bool {
	sec.store.mu.Lock()
	defer sec.store.mu.Unlock()
	_, ok := sec.store.sections[sec.name][key]
	return ok
}

// Set stores a value and marks the store dirty.
func (sec *Section) Set(key string, value any) {
	sec.store.mu.Lock()
	defer sec.store.mu.Unlock()
	sec.store.sections[sec.name][key] = value
	sec.store.dirty = true
}

// SetDefault stores value only if key is missing and reports whether it did.
func (sec *Section) SetDefault(key string, value any) bool {
	sec.store.mu.Lock()
	defer sec.store.mu.Unlock()
	if _, ok := sec.store.sections[sec.name][key]; ok {
		return false
	}
	sec.store.sections[sec.name][key] = value
	sec.store.dirty = true
	return true
}

// Float32 returns a numeric value as float32 (0 if missing or not numeric).
func (sec *Section) Float32(key string) float32 {
	v, _ := sec.number(key)
	return float32(v)
}

// Uint8 returns a numeric value truncated to uint8 (0 if missing, negative or
// not numeric).
func (sec *Section) Uint8(key string) uint8 {
	v, ok := sec.number(key)
	if !ok || v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// Keys returns the keys of the section in sorted order.
func (sec *Section) Keys() []string {
	sec.store.mu.Lock()
	defer sec.store.mu.Unlock()
	keys := make([]string, 0, len(sec.store.sections[sec.name]))
	for k := range sec.store.sections[sec.name] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (sec *Section) number(key string) (float64, bool) {
	sec.store.mu.Lock()
	defer sec.store.mu.Unlock()
	switch v := sec.store.sections[sec.name][key].(type) {
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}

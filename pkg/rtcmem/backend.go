package rtcmem

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Backend stores the raw retained memory block. Load returns nil, nil when
// the block was never written or was wiped.
type Backend interface {
	Load() ([]byte, error)
	Store(data []byte) error
}

// Ensure FileBackend implements Backend.
var _ Backend = (*FileBackend)(nil)

// Ensure MemBackend implements Backend.
var _ Backend = (*MemBackend)(nil)

// FileBackend keeps the block in a file. Placed on a tmpfs (/run, /dev/shm)
// it survives process restarts but not a reboot, like RTC memory.
type FileBackend struct {
	path string
}

// NewFileBackend creates a file backed block.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

// Load reads the block file.
func (b *FileBackend) Load() ([]byte, error) {
	data, err := os.ReadFile(b.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Store replaces the block file; nil data removes it.
func (b *FileBackend) Store(data []byte) error {
	if data == nil {
		err := os.Remove(b.path)
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if err := os.MkdirAll(filepath.Dir(b.path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	tmp := b.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, b.path)
}

// MemBackend keeps the block in process memory.
type MemBackend struct {
	mu   sync.Mutex
	data []byte
}

// NewMemBackend creates an empty in-memory block.
func NewMemBackend() *MemBackend {
	return &MemBackend{}
}

// Load returns a copy of the block.
func (b *MemBackend) Load() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.data == nil {
		return nil, nil
	}
	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out, nil
}

// Store replaces the block.
func (b *MemBackend) Store(data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if data == nil {
		b.data = nil
		return nil
	}
	b.data = make([]byte, len(data))
	copy(b.data, data)
	return nil
}

// Corrupt flips one bit of the stored block, simulating decayed memory.
func (b *MemBackend) Corrupt(offset int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.data) == 0 {
		return
	}
	b.data[offset%len(b.data)] ^= 0x01
}

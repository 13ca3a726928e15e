package ratelimit

import (
	"os"
	"path/filepath"
)

// Slot is a single named piece of durable storage holding the serialized ledger.
type Slot interface {
	Load() ([]byte, error)
	Save(data []byte) error
}

// FileSlot stores the ledger as a JSON file. A missing file loads as empty.
type FileSlot struct {
	Path string
}

// NewFileSlot returns a slot backed by path, creating its directory if needed.
func NewFileSlot(path string) (*FileSlot, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return &FileSlot{Path: path}, nil
}

func (s *FileSlot) Load() ([]byte, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}

// Save replaces the file atomically so a crash never leaves a torn ledger.
func (s *FileSlot) Save(data []byte) error {
	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.Path)
}

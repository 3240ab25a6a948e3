//go:build !cgo && !tinygo

package periph

import (
	"os"

	"sparkrt/hal"
)

// Storage reports ErrNoFilesystem for every operation: the FAT driver
// needs cgo on the host.
type Storage struct {
	dev hal.BlockDevice
}

func NewStorage(dev hal.BlockDevice) *Storage { return &Storage{dev: dev} }

func (s *Storage) Mount(StorageConfig) error { return ErrNoFilesystem }
func (s *Storage) Unmount() error            { return nil }
func (s *Storage) Mounted() bool             { return false }

// File is never returned by this build.
type File struct{}

func (f *File) Read([]byte) (int, error)  { return 0, os.ErrClosed }
func (f *File) Write([]byte) (int, error) { return 0, os.ErrClosed }
func (f *File) Close() error              { return nil }

func (s *Storage) Open(string, int) (*File, error) { return nil, ErrNotMounted }
func (s *Storage) AppendLine(string, string) error { return ErrNotMounted }
func (s *Storage) ReadFile(string) ([]byte, error) { return nil, ErrNotMounted }
func (s *Storage) Remove(string) error             { return ErrNotMounted }

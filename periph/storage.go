//go:build cgo || tinygo

package periph

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/golang/glog"
	"tinygo.org/x/tinyfs"
	"tinygo.org/x/tinyfs/fatfs"

	"sparkrt/hal"
	"sparkrt/osal"
)

// Storage is a FAT filesystem on a block device. It is safe for use from
// several tasks.
type Storage struct {
	mu   sync.Mutex
	dev  hal.BlockDevice
	fat  *fatfs.FATFS
	cfg  StorageConfig
	open int
}

// NewStorage returns an unmounted filesystem on dev.
func NewStorage(dev hal.BlockDevice) *Storage {
	return &Storage{dev: dev}
}

// Mount mounts the filesystem. It is a no-op when already mounted.
func (s *Storage) Mount(cfg StorageConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fat != nil {
		return nil
	}
	if s.dev == nil {
		return fmt.Errorf("periph: storage: no device: %w", osal.ErrNotFound)
	}

	fat := fatfs.New(s.dev).Configure(&fatfs.Config{SectorSize: fatfs.SectorSize})
	if err := fat.Mount(); err != nil {
		if !cfg.FormatIfMountFailed {
			return mapFatErr("mount", err)
		}
		glog.Warningf("periph: storage: mount failed (%v), formatting", err)
		if err := fat.Format(); err != nil {
			return mapFatErr("format", err)
		}
		if err := fat.Mount(); err != nil {
			return mapFatErr("mount", err)
		}
	}
	s.fat = fat
	s.cfg = cfg
	return nil
}

// Unmount unmounts the filesystem. Files must be closed first.
func (s *Storage) Unmount() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fat == nil {
		return nil
	}
	if s.open > 0 {
		return ErrFilesOpen
	}
	err := s.fat.Unmount()
	s.fat = nil
	return mapFatErr("unmount", err)
}

// Mounted reports whether Mount succeeded and Unmount was not called since.
func (s *Storage) Mounted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fat != nil
}

// File is an open file. Its methods share the filesystem lock.
type File struct {
	s *Storage
	f tinyfs.File
}

// Open opens path. flag must be one of O_RDONLY, O_RDWR, or O_WRONLY or
// O_RDWR combined with O_CREATE and exactly one of O_TRUNC and O_APPEND.
// Other sets fail with osal.ErrInvalidParameter.
func (s *Storage) Open(path string, flag int) (*File, error) {
	if !validOpenFlags(flag) {
		return nil, fmt.Errorf("periph: storage open %s: flags %#x: %w", path, flag, osal.ErrInvalidParameter)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fat == nil {
		return nil, ErrNotMounted
	}
	if s.open >= s.cfg.maxFiles() {
		return nil, ErrTooManyFiles
	}
	f, err := s.fat.OpenFile(path, flag)
	if err != nil {
		return nil, mapFatErr("open "+path, err)
	}
	s.open++
	return &File{s: s, f: f}, nil
}

func (f *File) Read(p []byte) (int, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.f == nil {
		return 0, os.ErrClosed
	}
	return f.f.Read(p)
}

func (f *File) Write(p []byte) (int, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.f == nil {
		return 0, os.ErrClosed
	}
	return f.f.Write(p)
}

func (f *File) Close() error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.f == nil {
		return nil
	}
	err := f.f.Close()
	f.f = nil
	f.s.open--
	return err
}

// AppendLine appends line and a newline to path, creating it if needed.
func (s *Storage) AppendLine(path, line string) error {
	f, err := s.Open(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND)
	if err != nil {
		return err
	}
	_, werr := f.Write([]byte(line + "\n"))
	cerr := f.Close()
	if werr != nil {
		return mapFatErr("write "+path, werr)
	}
	return mapFatErr("close "+path, cerr)
}

// ReadFile returns the contents of path.
func (s *Storage) ReadFile(path string) ([]byte, error) {
	f, err := s.Open(path, os.O_RDONLY)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	b, err := io.ReadAll(f)
	if err != nil && !errors.Is(err, io.EOF) {
		return b, mapFatErr("read "+path, err)
	}
	return b, nil
}

// Remove deletes path.
func (s *Storage) Remove(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fat == nil {
		return ErrNotMounted
	}
	return mapFatErr("remove "+path, s.fat.Remove(path))
}

func mapFatErr(op string, err error) error {
	if err == nil {
		return nil
	}

	var fr fatfs.FileResult
	if errors.As(err, &fr) {
		switch fr {
		case fatfs.FileResultNoFile, fatfs.FileResultNoPath:
			return fmt.Errorf("periph: storage %s: %w", op, osal.ErrNotFound)
		case fatfs.FileResultNoFilesystem, fatfs.FileResultInvalidName, fatfs.FileResultInvalidParameter,
			fatfs.FileResultExist, fatfs.FileResultDenied:
			return fmt.Errorf("periph: storage %s: %w: %v", op, osal.ErrInvalidParameter, err)
		case fatfs.FileResultNotEnoughCore:
			return fmt.Errorf("periph: storage %s: %w", op, osal.ErrNoMemory)
		}
	}
	return fmt.Errorf("periph: storage %s: %v", op, err)
}

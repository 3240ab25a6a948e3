//go:build !tinygo

package hal

import (
	"fmt"
	"os"
	"sync"
)

// hostSD is a block device backed by an image file.
type hostSD struct {
	mu     sync.Mutex
	f      *os.File
	size   int64
	erased [hostSDBlockBytes]byte
}

func openHostSD(path string, blocks int64) (*hostSD, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("sd image %s: %w", path, err)
	}

	size := blocks * hostSDBlockBytes
	if st, err := f.Stat(); err == nil && st.Size() > 0 {
		if st.Size()%hostSDBlockBytes != 0 {
			_ = f.Close()
			return nil, fmt.Errorf("sd image %s: size %d is not a multiple of %d", path, st.Size(), hostSDBlockBytes)
		}
		size = st.Size()
	} else if err := f.Truncate(size); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("sd image %s: %w", path, err)
	}

	sd := &hostSD{f: f, size: size}
	for i := range sd.erased {
		sd.erased[i] = 0xFF
	}
	return sd, nil
}

func (d *hostSD) Size() int64           { return d.size }
func (d *hostSD) WriteBlockSize() int64 { return hostSDBlockBytes }
func (d *hostSD) EraseBlockSize() int64 { return hostSDBlockBytes }

func (d *hostSD) ReadAt(p []byte, off int64) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.f == nil {
		return 0, os.ErrClosed
	}
	if off < 0 || off >= d.size {
		return 0, fmt.Errorf("sd read at %d: %w", off, os.ErrInvalid)
	}
	if room := d.size - off; int64(len(p)) > room {
		p = p[:room]
	}
	return d.f.ReadAt(p, off)
}

func (d *hostSD) WriteAt(p []byte, off int64) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.f == nil {
		return 0, os.ErrClosed
	}
	if off < 0 || off >= d.size {
		return 0, fmt.Errorf("sd write at %d: %w", off, os.ErrInvalid)
	}
	if room := d.size - off; int64(len(p)) > room {
		p = p[:room]
	}
	return d.f.WriteAt(p, off)
}

func (d *hostSD) EraseBlocks(start, n int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.f == nil {
		return os.ErrClosed
	}
	if start < 0 || n < 0 || (start+n)*hostSDBlockBytes > d.size {
		return fmt.Errorf("sd erase start=%d len=%d: %w", start, n, os.ErrInvalid)
	}
	for i := start; i < start+n; i++ {
		if _, err := d.f.WriteAt(d.erased[:], i*hostSDBlockBytes); err != nil {
			return fmt.Errorf("sd erase block %d: %w", i, err)
		}
	}
	return nil
}

func (d *hostSD) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.f == nil {
		return nil
	}
	err := d.f.Close()
	d.f = nil
	return err
}

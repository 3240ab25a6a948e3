package periph

import (
	"errors"
	"os"
)

// DefaultMaxFiles bounds open files when StorageConfig.MaxFiles is zero.
const DefaultMaxFiles = 4

var (
	// ErrNotMounted reports a storage operation before Mount.
	ErrNotMounted = errors.New("periph: storage not mounted")
	// ErrTooManyFiles reports that MaxFiles files are already open.
	ErrTooManyFiles = errors.New("periph: too many open files")
	// ErrFilesOpen reports an Unmount while files are open.
	ErrFilesOpen = errors.New("periph: files still open")
	// ErrNoFilesystem reports a build without FAT support.
	ErrNoFilesystem = errors.New("periph: no filesystem support in this build")
)

// StorageConfig controls mounting.
type StorageConfig struct {
	// FormatIfMountFailed formats the device when it holds no filesystem.
	FormatIfMountFailed bool
	// MaxFiles bounds simultaneously open files.
	MaxFiles int
}

func (c StorageConfig) maxFiles() int {
	if c.MaxFiles <= 0 {
		return DefaultMaxFiles
	}
	return c.MaxFiles
}

// Open accepts these flag sets only; they map to the fopen modes r, w, a,
// r+, w+ and a+.
var openModes = [...]int{
	os.O_RDONLY,
	os.O_WRONLY | os.O_CREATE | os.O_TRUNC,
	os.O_WRONLY | os.O_CREATE | os.O_APPEND,
	os.O_RDWR,
	os.O_RDWR | os.O_CREATE | os.O_TRUNC,
	os.O_RDWR | os.O_CREATE | os.O_APPEND,
}

func validOpenFlags(flag int) bool {
	for _, m := range openModes {
		if flag == m {
			return true
		}
	}
	return false
}

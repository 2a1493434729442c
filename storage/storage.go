// Package storage provides the sector-addressed backing stores behind the
// emulated disk drives.
package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"sync/atomic"

	"github.com/ardnew/softgpib/pkg"
)

// Storage defines the interface for disk image backends. Offsets are byte
// offsets into the image; drive emulators compute them from their own
// addressing.
type Storage interface {
	// ReadAt reads len(p) bytes at off. A short read returns the bytes
	// transferred together with an error.
	ReadAt(p []byte, off int64) (int, error)

	// WriteAt writes p at off. A short write returns the bytes transferred
	// together with an error.
	WriteAt(p []byte, off int64) (int, error)

	// Size returns the image size in bytes.
	Size() int64

	// Sync flushes any cached writes.
	Sync() error

	// IsReadOnly returns true if the medium is write protected.
	IsReadOnly() bool

	// IsPresent returns true if a medium is loaded.
	IsPresent() bool

	// Close releases the backend.
	Close() error
}

// Poller is implemented by storages whose media state can change outside
// the emulator. Poll refreshes it and is called from the clock tick.
type Poller interface {
	Poll()
}

// bounds validates an access of n bytes at off against size.
func bounds(off int64, n int, size int64) error {
	if off < 0 || off+int64(n) > size {
		return fmt.Errorf("offset %d length %d: %w", off, n, pkg.ErrOutOfRange)
	}
	return nil
}

// MemoryStorage implements Storage with an in-memory buffer.
type MemoryStorage struct {
	data     []byte
	readOnly bool
	present  bool
	mutex    sync.RWMutex
}

// NewMemoryStorage creates a zero-filled in-memory image of size bytes.
func NewMemoryStorage(size int64) *MemoryStorage {
	return &MemoryStorage{
		data:    make([]byte, size),
		present: true,
	}
}

// ReadAt copies image bytes into p.
func (m *MemoryStorage) ReadAt(p []byte, off int64) (int, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if !m.present {
		return 0, pkg.ErrNotPresent
	}
	if err := bounds(off, len(p), int64(len(m.data))); err != nil {
		return 0, err
	}
	return copy(p, m.data[off:]), nil
}

// WriteAt copies p into the image.
func (m *MemoryStorage) WriteAt(p []byte, off int64) (int, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if !m.present {
		return 0, pkg.ErrNotPresent
	}
	if m.readOnly {
		return 0, pkg.ErrWriteProtected
	}
	if err := bounds(off, len(p), int64(len(m.data))); err != nil {
		return 0, err
	}
	return copy(m.data[off:], p), nil
}

// Size returns the image size.
func (m *MemoryStorage) Size() int64 {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return int64(len(m.data))
}

// Bytes returns the image contents. The slice aliases the image.
func (m *MemoryStorage) Bytes() []byte {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.data
}

// Sync is a no-op for memory storage.
func (m *MemoryStorage) Sync() error {
	return nil
}

// IsReadOnly returns whether the image is write protected.
func (m *MemoryStorage) IsReadOnly() bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.readOnly
}

// SetReadOnly sets the write protect flag.
func (m *MemoryStorage) SetReadOnly(readOnly bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.readOnly = readOnly
}

// IsPresent returns whether a medium is loaded.
func (m *MemoryStorage) IsPresent() bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.present
}

// SetPresent loads or removes the medium.
func (m *MemoryStorage) SetPresent(present bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.present = present
}

// Close is a no-op for memory storage.
func (m *MemoryStorage) Close() error {
	return nil
}

// FileStorage implements Storage with an image file on the host.
type FileStorage struct {
	path  string
	file  *os.File
	size  int64
	mutex sync.RWMutex

	// Refreshed by Poll.
	readOnly atomic.Bool
	present  atomic.Bool
}

// OpenFile opens the image at path. A missing image is created with size
// bytes of zeros unless readOnly is set. A positive size also extends a
// shorter existing image.
func OpenFile(path string, size int64, readOnly bool) (*FileStorage, error) {
	flags := os.O_RDWR
	if readOnly {
		flags = os.O_RDONLY
	} else {
		flags |= os.O_CREATE
	}

	file, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("stat image: %w", err)
	}

	actual := stat.Size()
	if !readOnly && size > actual {
		if err := file.Truncate(size); err != nil {
			file.Close()
			return nil, fmt.Errorf("extend image: %w", err)
		}
		pkg.LogInfo(pkg.ComponentStorage, "image extended",
			"path", path, "from", actual, "to", size)
		actual = size
	}

	f := &FileStorage{path: path, file: file, size: actual}
	f.readOnly.Store(readOnly)
	f.present.Store(true)
	return f, nil
}

// Path returns the image path.
func (f *FileStorage) Path() string {
	return f.path
}

// ReadAt reads image bytes into p.
func (f *FileStorage) ReadAt(p []byte, off int64) (int, error) {
	f.mutex.RLock()
	defer f.mutex.RUnlock()

	if f.file == nil || !f.present.Load() {
		return 0, pkg.ErrNotPresent
	}
	if err := bounds(off, len(p), f.size); err != nil {
		return 0, err
	}
	return f.file.ReadAt(p, off)
}

// WriteAt writes p into the image.
func (f *FileStorage) WriteAt(p []byte, off int64) (int, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if f.file == nil || !f.present.Load() {
		return 0, pkg.ErrNotPresent
	}
	if f.readOnly.Load() {
		return 0, pkg.ErrWriteProtected
	}
	if err := bounds(off, len(p), f.size); err != nil {
		return 0, err
	}
	return f.file.WriteAt(p, off)
}

// Size returns the image size.
func (f *FileStorage) Size() int64 {
	f.mutex.RLock()
	defer f.mutex.RUnlock()
	return f.size
}

// Sync flushes file writes to disk.
func (f *FileStorage) Sync() error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if f.file == nil || f.readOnly.Load() {
		return nil
	}
	return f.file.Sync()
}

// IsReadOnly returns whether the image is write protected.
func (f *FileStorage) IsReadOnly() bool {
	return f.readOnly.Load()
}

// IsPresent returns whether the image file still exists.
func (f *FileStorage) IsPresent() bool {
	return f.present.Load()
}

// Poll re-checks that the image exists and whether it has been made read
// only on the host. A read-only open stays read only.
func (f *FileStorage) Poll() {
	stat, err := os.Stat(f.path)
	present := err == nil
	if f.present.Swap(present) != present {
		pkg.LogInfo(pkg.ComponentStorage, "medium changed", "path", f.path, "present", present)
	}
	if !present {
		if !errors.Is(err, fs.ErrNotExist) {
			pkg.LogWarn(pkg.ComponentStorage, "poll image", "path", f.path, "error", err)
		}
		return
	}
	if stat.Mode().Perm()&0o222 == 0 {
		f.readOnly.Store(true)
	}
}

// Close closes the underlying file.
func (f *FileStorage) Close() error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if f.file != nil {
		var err error
		if !f.readOnly.Load() {
			err = f.file.Sync()
		}
		if cerr := f.file.Close(); err == nil {
			err = cerr
		}
		f.file = nil
		return err
	}
	return nil
}

var (
	_ Storage = (*MemoryStorage)(nil)
	_ Storage = (*FileStorage)(nil)
	_ Poller  = (*FileStorage)(nil)
)

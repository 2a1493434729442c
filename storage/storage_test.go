package storage

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ardnew/softgpib/pkg"
)

func TestMemoryStorage_ReadWrite(t *testing.T) {
	s := NewMemoryStorage(1024)

	data := bytes.Repeat([]byte{0xA5}, 256)
	if n, err := s.WriteAt(data, 256); err != nil || n != 256 {
		t.Fatalf("WriteAt() = %d, %v, want 256, nil", n, err)
	}

	buf := make([]byte, 256)
	if n, err := s.ReadAt(buf, 256); err != nil || n != 256 {
		t.Fatalf("ReadAt() = %d, %v, want 256, nil", n, err)
	}
	if !bytes.Equal(buf, data) {
		t.Error("ReadAt() data mismatch")
	}
}

func TestMemoryStorage_Errors(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(*MemoryStorage)
		write   bool
		off     int64
		wantErr error
	}{
		{"read past end", nil, false, 1000, pkg.ErrOutOfRange},
		{"write past end", nil, true, 1000, pkg.ErrOutOfRange},
		{"negative offset", nil, false, -1, pkg.ErrOutOfRange},
		{"write protected", func(m *MemoryStorage) { m.SetReadOnly(true) }, true, 0, pkg.ErrWriteProtected},
		{"read protected ok", func(m *MemoryStorage) { m.SetReadOnly(true) }, false, 0, nil},
		{"no medium read", func(m *MemoryStorage) { m.SetPresent(false) }, false, 0, pkg.ErrNotPresent},
		{"no medium write", func(m *MemoryStorage) { m.SetPresent(false) }, true, 0, pkg.ErrNotPresent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewMemoryStorage(1024)
			if tt.setup != nil {
				tt.setup(s)
			}
			buf := make([]byte, 256)
			var err error
			if tt.write {
				_, err = s.WriteAt(buf, tt.off)
			} else {
				_, err = s.ReadAt(buf, tt.off)
			}
			if tt.wantErr == nil && err != nil {
				t.Errorf("error = %v, want nil", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestFileStorage_CreateAndReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")

	f, err := OpenFile(path, 4096, false)
	if err != nil {
		t.Fatalf("OpenFile() error = %v", err)
	}
	if got := f.Size(); got != 4096 {
		t.Errorf("Size() = %d, want 4096", got)
	}
	if _, err := f.WriteAt([]byte("LIF"), 512); err != nil {
		t.Fatalf("WriteAt() error = %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	ro, err := OpenFile(path, 0, true)
	if err != nil {
		t.Fatalf("OpenFile(readOnly) error = %v", err)
	}
	defer ro.Close()

	buf := make([]byte, 3)
	if _, err := ro.ReadAt(buf, 512); err != nil {
		t.Fatalf("ReadAt() error = %v", err)
	}
	if string(buf) != "LIF" {
		t.Errorf("ReadAt() = %q, want %q", buf, "LIF")
	}
	if _, err := ro.WriteAt(buf, 0); !errors.Is(err, pkg.ErrWriteProtected) {
		t.Errorf("WriteAt() error = %v, want %v", err, pkg.ErrWriteProtected)
	}
}

func TestFileStorage_Poll(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	f, err := OpenFile(path, 1024, false)
	if err != nil {
		t.Fatalf("OpenFile() error = %v", err)
	}
	defer f.Close()

	f.Poll()
	if !f.IsPresent() {
		t.Fatal("IsPresent() = false, want true")
	}

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	f.Poll()
	if f.IsPresent() {
		t.Error("IsPresent() after remove = true, want false")
	}
	if _, err := f.ReadAt(make([]byte, 1), 0); !errors.Is(err, pkg.ErrNotPresent) {
		t.Errorf("ReadAt() error = %v, want %v", err, pkg.ErrNotPresent)
	}
}

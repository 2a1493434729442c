package ss80

import (
	"fmt"
	"slices"
	"strings"

	"github.com/ardnew/softgpib/device"
	"github.com/ardnew/softgpib/pkg"
)

// Describe record sizes.
const (
	ControllerSize = 5
	UnitSize       = 19
	VolumeSize     = 13
)

// Model is the static identity of an emulated SS80 drive: the Identify
// bytes and the three Describe records. All multi-byte fields are
// big-endian.
type Model struct {
	Name       string
	ID         device.Identity
	Controller [ControllerSize]byte
	Unit       [UnitSize]byte
	Volume     [VolumeSize]byte
}

// BlockSize returns the bytes per block from the unit description.
func (m Model) BlockSize() int {
	return int(m.Unit[4])<<8 | int(m.Unit[5])
}

// MaxBlock returns the maximum single-vector address from the volume
// description.
func (m Model) MaxBlock() uint64 {
	var v uint64
	for _, b := range m.Volume[6:12] {
		v = v<<8 | uint64(b)
	}
	return v
}

// WithMaxBlock returns a copy of m describing a volume of n blocks.
func (m Model) WithMaxBlock(n uint64) Model {
	for i := 11; i >= 6; i-- {
		m.Volume[i] = byte(n)
		n >>= 8
	}
	return m
}

// Removable reports whether the unit description declares a removable
// volume.
func (m Model) Removable() bool {
	return m.Unit[18] != 0
}

// ImageSize returns the bytes of backing store the model addresses.
func (m Model) ImageSize() int64 {
	return int64(m.MaxBlock()) * int64(m.BlockSize())
}

var (
	// HP9134L is a fixed 9134L Winchester.
	HP9134L = Model{
		Name:       "9134L",
		ID:         device.Identity{0x02, 0x21},
		Controller: [ControllerSize]byte{0x80, 0x01, 0x02, 0xe8, 0x05},
		Unit: [UnitSize]byte{
			0x00,             // winchester
			0x09, 0x13, 0x40, // 9134
			0x01, 0x00, // 256 bytes per block
			0x01,       // buffered blocks
			0x00,       // burst size
			0x01, 0xf6, // block time 502us
			0x00, 0x8c, // 140 kB/s
			0x11, 0x94, // optimal retry
			0x11, 0x94, // access time
			0x1f,       // max interleave
			0x01,       // fixed volumes
			0x00,       // removable volumes
		},
		Volume: [VolumeSize]byte{
			0x00, 0x00, 0x00, // max cylinder
			0x00,       // max head
			0x00, 0x00, // max sector
			0x00, 0x00, 0x00, 0x00, 0xe3, 0x40, // max block
			0x07, // interleave
		},
	}

	// HP9122D is a removable 9122D floppy.
	HP9122D = Model{
		Name:       "9122D",
		ID:         device.Identity{0x02, 0x22},
		Controller: [ControllerSize]byte{0x80, 0x01, 0x02, 0xe8, 0x05},
		Unit: [UnitSize]byte{
			0x01,             // floppy
			0x09, 0x12, 0x20, // 9122
			0x01, 0x00, // 256 bytes per block
			0x01,       // buffered blocks
			0x00,       // burst size
			0x17, 0x00, // block time 5888us
			0x00, 0x2d, // 45 kB/s
			0x11, 0x94, // optimal retry
			0x20, 0xd0, // access time
			0x0f,       // max interleave
			0x00,       // fixed volumes
			0x01,       // removable volumes
		},
		Volume: [VolumeSize]byte{
			0x00, 0x00, 0x00,
			0x00,
			0x00, 0x00,
			0x00, 0x00, 0x00, 0x00, 0x09, 0x9f,
			0x02,
		},
	}
)

var models = map[string]Model{
	HP9134L.Name: HP9134L,
	HP9122D.Name: HP9122D,
}

// Lookup returns the model named name, ignoring case.
func Lookup(name string) (Model, error) {
	if m, ok := models[strings.ToUpper(name)]; ok {
		return m, nil
	}
	return Model{}, fmt.Errorf("ss80 model %q: %w", name, pkg.ErrInvalidParameter)
}

// Models returns the names of the built-in models, sorted.
func Models() []string {
	names := make([]string, 0, len(models))
	for name := range models {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

package amigo

import (
	"fmt"
	"slices"
	"strings"

	"github.com/ardnew/softgpib/device"
	"github.com/ardnew/softgpib/pkg"
)

// Model is the fixed geometry and identity of an emulated AMIGO drive.
type Model struct {
	Name            string
	ID              device.Identity
	BytesPerSector  int
	SectorsPerTrack int
	Heads           int
	Cylinders       int
}

// Sectors returns the number of sectors on the medium.
func (m Model) Sectors() int {
	return m.SectorsPerTrack * m.Heads * m.Cylinders
}

// ImageSize returns the bytes of backing store the model addresses.
func (m Model) ImageSize() int64 {
	return int64(m.Sectors()) * int64(m.BytesPerSector)
}

// Offset returns the byte offset of p in the image.
func (m Model) Offset(p CHS) int64 {
	lba := int64(m.SectorsPerTrack)*int64(p.Head) +
		int64(m.SectorsPerTrack*m.Heads)*int64(p.Cylinder) +
		int64(p.Sector)
	return lba * int64(m.BytesPerSector)
}

// Normalize carries sector overflow into the head and head overflow into
// the cylinder. It reports false when the result lies past the last
// cylinder.
func (m Model) Normalize(p CHS) (CHS, bool) {
	sector, head, cyl := int(p.Sector), int(p.Head), int(p.Cylinder)
	head += sector / m.SectorsPerTrack
	sector %= m.SectorsPerTrack
	cyl += head / m.Heads
	head %= m.Heads
	if cyl >= m.Cylinders {
		return p, false
	}
	return CHS{Cylinder: uint16(cyl), Head: uint8(head), Sector: uint8(sector)}, true
}

var (
	// HP9121D is a dual 3.5" floppy.
	HP9121D = Model{
		Name: "9121D", ID: device.Identity{0x01, 0x04},
		BytesPerSector: 256, SectorsPerTrack: 16, Heads: 2, Cylinders: 35,
	}

	// HP9895A is an 8" floppy.
	HP9895A = Model{
		Name: "9895A", ID: device.Identity{0x00, 0x81},
		BytesPerSector: 256, SectorsPerTrack: 30, Heads: 2, Cylinders: 77,
	}

	// HP9134A is a 5 MB Winchester.
	HP9134A = Model{
		Name: "9134A", ID: device.Identity{0x01, 0x06},
		BytesPerSector: 256, SectorsPerTrack: 31, Heads: 4, Cylinders: 153,
	}
)

var models = map[string]Model{
	HP9121D.Name: HP9121D,
	HP9895A.Name: HP9895A,
	HP9134A.Name: HP9134A,
}

// Lookup returns the model named name, ignoring case.
func Lookup(name string) (Model, error) {
	if m, ok := models[strings.ToUpper(name)]; ok {
		return m, nil
	}
	return Model{}, fmt.Errorf("amigo model %q: %w", name, pkg.ErrInvalidParameter)
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

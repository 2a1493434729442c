package ss80

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ardnew/softgpib/bus"
	"github.com/ardnew/softgpib/bus/hal/sim"
	"github.com/ardnew/softgpib/device"
	"github.com/ardnew/softgpib/device/devicetest"
)

const testAddr = 0

// testModel is a 9122D cut down to 16 blocks.
var testModel = HP9122D.WithMaxBlock(16)

func newTestDevice(t *testing.T) (*Device, *devicetest.Port, *devicetest.Storage, *bus.PollRegister) {
	t.Helper()
	port := devicetest.NewPort()
	store := devicetest.NewStorage(testModel.ImageSize())
	var ppr bus.PollRegister
	d := New("ss80", testAddr, testModel, store, port, ppr.Bit(0))
	d.Init()
	return d, port, store, &ppr
}

// setAddress returns a set address opcode for block blk.
func setAddress(blk uint64) []byte {
	return []byte{byte(OpSetAddress), 0, 0, byte(blk >> 24), byte(blk >> 16), byte(blk >> 8), byte(blk)}
}

// setLength returns a set length opcode for n bytes.
func setLength(n uint32) []byte {
	return []byte{byte(OpSetLength), byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n)}
}

func record(parts ...[]byte) []byte {
	return bytes.Join(parts, nil)
}

func TestModel(t *testing.T) {
	tests := []struct {
		model     Model
		maxBlock  uint64
		blockSize int
		removable bool
	}{
		{HP9134L, 0xe340, 256, false},
		{HP9122D, 0x099f, 256, true},
		{testModel, 16, 256, true},
	}

	for _, tt := range tests {
		t.Run(tt.model.Name, func(t *testing.T) {
			if got := tt.model.MaxBlock(); got != tt.maxBlock {
				t.Errorf("MaxBlock() = %#x, want %#x", got, tt.maxBlock)
			}
			if got := tt.model.BlockSize(); got != tt.blockSize {
				t.Errorf("BlockSize() = %d, want %d", got, tt.blockSize)
			}
			if got := tt.model.Removable(); got != tt.removable {
				t.Errorf("Removable() = %v, want %v", got, tt.removable)
			}
		})
	}
}

func TestLookup(t *testing.T) {
	if m, err := Lookup("9134l"); err != nil || m.Name != "9134L" {
		t.Errorf("Lookup(9134l) = %v, %v, want 9134L", m.Name, err)
	}
	if _, err := Lookup("7945"); err == nil {
		t.Error("Lookup(7945) should fail")
	}
	if diff := cmp.Diff([]string{"9122D", "9134L"}, Models()); diff != "" {
		t.Errorf("Models() mismatch (-want +got):\n%s", diff)
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		rec  []byte
		ops  []Opcode
		used int
	}{
		{"empty", nil, nil, 0},
		{"unit only", []byte{0x20}, []Opcode{0x20}, 1},
		{"read", record([]byte{0x20, 0x40}, setAddress(3), setLength(512), []byte{0x00}),
			[]Opcode{0x20, 0x40, OpSetAddress, OpSetLength, OpLocateAndRead}, 15},
		{"terminal stops scan", []byte{0x0D, 0x00}, []Opcode{OpRequestStatus}, 1},
		{"skips parameters", []byte{0x39, 1, 2, 0x3B, 3, 0x48, 4, 0x34, 0x35},
			[]Opcode{OpSetRPS, OpSetRetryTime, OpSetReturnAddress, OpNoOp, OpDescribe}, 9},
		{"final stops scan", []byte{0x3E, 1, 2, 3, 4, 5, 6, 7, 8, 0x00},
			[]Opcode{OpSetStatusMask}, 9},
		{"unknown stops scan", []byte{0x21, 0x7A, 0x00}, []Opcode{0x21, 0x7A}, 2},
		{"truncated parameters", []byte{0x18, 0x00, 0x01}, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmds, used := Decode(tt.rec)
			var ops []Opcode
			for _, c := range cmds {
				ops = append(ops, c.Op)
			}
			if diff := cmp.Diff(tt.ops, ops); diff != "" {
				t.Errorf("Decode() opcodes mismatch (-want +got):\n%s", diff)
			}
			if used != tt.used {
				t.Errorf("Decode() used = %d, want %d", used, tt.used)
			}
		})
	}
}

func TestDevice_DecodeUnitVolume(t *testing.T) {
	tests := []struct {
		name   string
		rec    []byte
		unit   uint8
		volume uint8
	}{
		{"set unit", []byte{0x23}, 3, 0},
		{"set volume", []byte{0x47}, 0, 7},
		{"set return addressing", []byte{0x48, 0x01}, 0, 0},
		{"write file mark", []byte{0x41, 0x4C}, 0, 1},
		{"unload", []byte{0x4D}, 0, 0},
		{"unit and volume", []byte{0x2F, 0x4F}, 15, 15},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, _, _, _ := newTestDevice(t)
			d.Decode(tt.rec)
			s := d.Snapshot()
			if s.Unit != tt.unit {
				t.Errorf("Unit = %d, want %d", s.Unit, tt.unit)
			}
			if s.Volume != tt.volume {
				t.Errorf("Volume = %d, want %d", s.Volume, tt.volume)
			}
		})
	}
}

func TestOpcode_Class(t *testing.T) {
	tests := []struct {
		op   Opcode
		want Class
	}{
		{0x00, Terminal},
		{0x2F, Complementary},
		{0x47, Complementary},
		{0x48, Complementary},
		{0x4C, Final},
		{0x31, Final},
		{0x7F, Unknown},
	}

	for _, tt := range tests {
		if got := tt.op.Class(); got != tt.want {
			t.Errorf("Opcode(%#x).Class() = %v, want %v", uint8(tt.op), got, tt.want)
		}
	}
}

func TestDevice_Init(t *testing.T) {
	d, _, _, ppr := newTestDevice(t)
	want := State{QStat: device.StatusPowerOn}
	if diff := cmp.Diff(want, d.Snapshot()); diff != "" {
		t.Errorf("Snapshot() after Init mismatch (-want +got):\n%s", diff)
	}
	if ppr.Value() != 0 {
		t.Errorf("PollRegister.Value() = %#x, want 0", ppr.Value())
	}
}

func TestDevice_ExecuteWithoutTerminal(t *testing.T) {
	ctx := context.Background()
	d, port, store, _ := newTestDevice(t)
	d.Clear()

	port.Queue([]byte{0x20})
	if st := d.Commands(ctx, devicetest.ListenTo(testAddr), SecondaryCommand); st != 0 {
		t.Fatalf("Commands(command) = %v, want 0", st)
	}
	if st := d.Commands(ctx, devicetest.ListenTo(testAddr), SecondaryExecute); st != 0 {
		t.Fatalf("Commands(execute) = %v, want 0", st)
	}

	s := d.Snapshot()
	if s.QStat != device.StatusOK {
		t.Errorf("QStat = %v, want %v", s.QStat, device.StatusOK)
	}
	if s.Exec != ExecIdle {
		t.Errorf("Exec = %v, want %v", s.Exec, ExecIdle)
	}
	if len(port.Sent()) != 0 {
		t.Errorf("Sent() = % X, want nothing", port.Sent())
	}
	if store.Reads+store.Writes != 0 {
		t.Errorf("storage calls = %d, want 0", store.Reads+store.Writes)
	}
}

func TestDevice_LocateAndReadBoundary(t *testing.T) {
	tests := []struct {
		name    string
		address uint64
		length  uint32
		ok      bool
	}{
		{"last block", 15, 256, true},
		{"ends at max", 14, 512, true},
		{"past max", 16, 256, false},
		{"straddles max", 15, 512, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			d, port, store, _ := newTestDevice(t)
			copy(store.Bytes()[tt.address*256:], bytes.Repeat([]byte{0xA5}, 256))

			d.Decode(record(setAddress(tt.address), setLength(tt.length), []byte{0x00}))
			if st := d.Execute(ctx); st != 0 {
				t.Fatalf("Execute() = %v, want 0", st)
			}
			s := d.Snapshot()

			if !tt.ok {
				if diff := cmp.Diff([]byte{0x01}, port.Sent()); diff != "" {
					t.Errorf("Sent() mismatch (-want +got):\n%s", diff)
				}
				if s.QStat != device.StatusError || s.Errors != device.ErrSeek {
					t.Errorf("QStat, Errors = %v, %v, want error, seek", s.QStat, s.Errors)
				}
				if store.Reads != 0 {
					t.Errorf("storage reads = %d, want 0", store.Reads)
				}
				if s.Address != tt.address {
					t.Errorf("Address = %d, want %d", s.Address, tt.address)
				}
				return
			}
			if got := len(port.Sent()); got != int(tt.length) {
				t.Errorf("len(Sent()) = %d, want %d", got, tt.length)
			}
			if port.Sent()[0] != 0xA5 {
				t.Errorf("Sent()[0] = %#x, want 0xa5", port.Sent()[0])
			}
			if s.QStat != device.StatusOK || s.Errors != 0 {
				t.Errorf("QStat, Errors = %v, %v, want ok, none", s.QStat, s.Errors)
			}
			if want := tt.address + uint64(tt.length)/256; s.Address != want {
				t.Errorf("Address = %d, want %d", s.Address, want)
			}
		})
	}
}

func TestDevice_LocateAndReadChunks(t *testing.T) {
	ctx := context.Background()
	d, port, _, _ := newTestDevice(t)

	d.Decode(record(setAddress(0), setLength(600), []byte{0x00}))
	d.Execute(ctx)

	w := port.Writes()
	if len(w) != 3 {
		t.Fatalf("len(Writes()) = %d, want 3", len(w))
	}
	for i, want := range []struct {
		n   int
		eoi bool
	}{{256, false}, {256, false}, {88, true}} {
		if len(w[i].Data) != want.n || w[i].Flags.Has(bus.EOI) != want.eoi {
			t.Errorf("Writes()[%d] = %d bytes eoi=%v, want %d eoi=%v",
				i, len(w[i].Data), w[i].Flags.Has(bus.EOI), want.n, want.eoi)
		}
	}
}

func TestDevice_LocateAndReadStorageFailure(t *testing.T) {
	ctx := context.Background()
	d, port, store, _ := newTestDevice(t)
	store.ReadBudget = 256

	d.Decode(record(setAddress(2), setLength(512), []byte{0x00}))
	d.Execute(ctx)

	w := port.Writes()
	if len(w) != 2 {
		t.Fatalf("len(Writes()) = %d, want 2", len(w))
	}
	if len(w[0].Data) != 256 {
		t.Errorf("data bytes before error = %d, want 256", len(w[0].Data))
	}
	if diff := cmp.Diff(devicetest.Write{Data: []byte{0x01}, Flags: bus.EOI}, w[1]); diff != "" {
		t.Errorf("error report mismatch (-want +got):\n%s", diff)
	}
	s := d.Snapshot()
	if s.QStat != device.StatusError {
		t.Errorf("QStat = %v, want %v", s.QStat, device.StatusError)
	}
	if s.Errors&device.ErrRead == 0 {
		t.Errorf("Errors = %v, want read", s.Errors)
	}
	if s.Address != 3 {
		t.Errorf("Address = %d, want 3", s.Address)
	}
}

func TestDevice_LocateAndReadBusFailure(t *testing.T) {
	ctx := context.Background()
	d, port, _, _ := newTestDevice(t)
	port.FailAfter = 100

	d.Decode(record(setAddress(0), setLength(512), []byte{0x00}))
	if st := d.Execute(ctx); !st.Has(bus.Timeout) {
		t.Errorf("Execute() = %v, want timeout", st)
	}
	s := d.Snapshot()
	if s.QStat != device.StatusError || s.Errors&device.ErrGPIB == 0 {
		t.Errorf("QStat, Errors = %v, %v, want error, gpib", s.QStat, s.Errors)
	}
}

func TestDevice_LocateAndWrite(t *testing.T) {
	ctx := context.Background()
	d, port, store, _ := newTestDevice(t)

	data := append(bytes.Repeat([]byte{0x11}, 256), bytes.Repeat([]byte{0x22}, 256)...)
	d.Decode(record(setAddress(4), setLength(512), []byte{0x02}))
	port.Queue(data)
	if st := d.Execute(ctx); st != 0 {
		t.Fatalf("Execute() = %v, want 0", st)
	}

	if !bytes.Equal(store.Bytes()[4*256:6*256], data) {
		t.Error("image does not hold the written data")
	}
	s := d.Snapshot()
	if s.Address != 6 || s.QStat != device.StatusOK || s.Errors != 0 {
		t.Errorf("Snapshot() = %+v, want address 6 ok", s)
	}
}

func TestDevice_LocateAndWriteProtected(t *testing.T) {
	ctx := context.Background()
	d, port, store, _ := newTestDevice(t)
	store.SetReadOnly(true)

	d.Decode(record(setAddress(0), setLength(512), []byte{0x02}))
	port.Queue(make([]byte, 512), []byte{0x70})
	d.Execute(ctx)

	if port.Pending() != 1 {
		t.Errorf("Pending() = %d, want 1 (data message fully consumed)", port.Pending())
	}
	s := d.Snapshot()
	if s.QStat != device.StatusError {
		t.Errorf("QStat = %v, want %v", s.QStat, device.StatusError)
	}
	if want := device.ErrWrite | device.ErrWP; s.Errors != want {
		t.Errorf("Errors = %v, want %v", s.Errors, want)
	}
	if store.Writes != 1 {
		t.Errorf("storage writes = %d, want 1", store.Writes)
	}
}

// A command byte where write data was expected ends the transfer and is
// left for the dispatcher.
func TestDevice_LocateAndWriteInterrupted(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	b := sim.New()
	clock := bus.NewClock(time.Millisecond)
	var ppr bus.PollRegister
	tr := bus.NewTransport(b.NewPort("device"), clock, &ppr)
	tr.SetTimeout(50 * time.Millisecond)
	tr.Reset()
	go clock.Run(ctx)

	store := devicetest.NewStorage(testModel.ImageSize())
	d := New("ss80", testAddr, testModel, store, tr, ppr.Bit(0))
	d.Init()
	d.Decode(record(setAddress(0), setLength(512), []byte{0x02}))

	cmd := bus.Byte{Value: 0x3F, Status: bus.ATN}
	if err := tr.Unread(cmd); err != nil {
		t.Fatalf("Unread() = %v, want nil", err)
	}

	done := make(chan bus.Status, 1)
	go func() { done <- d.Execute(ctx) }()
	select {
	case st := <-done:
		if st != 0 {
			t.Errorf("Execute() = %v, want 0", st)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Execute(locate and write) did not return after a command byte")
	}

	if got, ok := tr.Pending(); !ok || got != cmd {
		t.Errorf("Pending() = %v, %v, want %v, true", got, ok, cmd)
	}
	s := d.Snapshot()
	if s.QStat != device.StatusError {
		t.Errorf("QStat = %v, want %v", s.QStat, device.StatusError)
	}
	if s.Errors != device.ErrWrite {
		t.Errorf("Errors = %v, want %v", s.Errors, device.ErrWrite)
	}
	if s.Exec != ExecIdle {
		t.Errorf("Exec = %v, want %v", s.Exec, ExecIdle)
	}
	if store.Writes != 0 {
		t.Errorf("storage writes = %d, want 0", store.Writes)
	}
}

func TestDevice_LocateAndWriteSeek(t *testing.T) {
	ctx := context.Background()
	d, port, store, _ := newTestDevice(t)

	d.Decode(record(setAddress(16), setLength(256), []byte{0x02}))
	port.Queue(make([]byte, 256))
	d.Execute(ctx)

	if port.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", port.Pending())
	}
	if store.Writes != 0 {
		t.Errorf("storage writes = %d, want 0", store.Writes)
	}
	if want := device.ErrSeek | device.ErrWrite; d.Snapshot().Errors != want {
		t.Errorf("Errors = %v, want %v", d.Snapshot().Errors, want)
	}
}

func TestDevice_SendStatus(t *testing.T) {
	ctx := context.Background()
	d, port, _, _ := newTestDevice(t)

	// A failed seek leaves an address bounds error to report.
	d.Decode(record([]byte{0x41}, setAddress(0x20), setLength(256), []byte{0x00}))
	d.Execute(ctx)
	port.Reset()

	d.Decode([]byte{0x0D})
	d.Execute(ctx)

	var want [StatusSize]byte
	want[0] = 0x10
	want[1] = 0xff
	want[3] = 0x01
	want[15] = 0x20
	w := port.Writes()
	if len(w) != 1 {
		t.Fatalf("len(Writes()) = %d, want 1", len(w))
	}
	if diff := cmp.Diff(want[:], w[0].Data); diff != "" {
		t.Errorf("status record mismatch (-want +got):\n%s", diff)
	}
	if !w[0].Flags.Has(bus.EOI) {
		t.Error("status record sent without EOI")
	}
}

func TestDevice_Describe(t *testing.T) {
	ctx := context.Background()
	d, port, _, _ := newTestDevice(t)

	d.Decode([]byte{0x20, 0x35})
	d.Execute(ctx)

	w := port.Writes()
	if len(w) != 3 {
		t.Fatalf("len(Writes()) = %d, want 3", len(w))
	}
	sizes := []int{ControllerSize, UnitSize, VolumeSize}
	for i, size := range sizes {
		if len(w[i].Data) != size {
			t.Errorf("record %d length = %d, want %d", i, len(w[i].Data), size)
		}
		if got, want := w[i].Flags.Has(bus.EOI), i == 2; got != want {
			t.Errorf("record %d EOI = %v, want %v", i, got, want)
		}
	}
	if diff := cmp.Diff(testModel.Volume[:], w[2].Data); diff != "" {
		t.Errorf("volume record mismatch (-want +got):\n%s", diff)
	}
}

func TestDevice_Report(t *testing.T) {
	ctx := context.Background()
	d, port, _, _ := newTestDevice(t)

	for _, want := range []byte{0x02, 0x00} {
		port.Reset()
		if st := d.Commands(ctx, devicetest.TalkFrom(testAddr), SecondaryReport); st != 0 {
			t.Fatalf("Commands(report) = %v, want 0", st)
		}
		if diff := cmp.Diff([]devicetest.Write{{Data: []byte{want}, Flags: bus.EOI}}, port.Writes()); diff != "" {
			t.Errorf("report mismatch (-want +got):\n%s", diff)
		}
	}
}

func TestDevice_ClearIdempotent(t *testing.T) {
	ctx := context.Background()
	d, _, _, _ := newTestDevice(t)

	d.Decode(record([]byte{0x23, 0x42}, setAddress(99), setLength(256), []byte{0x00}))
	d.Execute(ctx)

	d.Clear()
	once := d.Snapshot()
	d.Clear()
	twice := d.Snapshot()

	if diff := cmp.Diff(State{}, once); diff != "" {
		t.Errorf("state after one clear mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(once, twice); diff != "" {
		t.Errorf("state after two clears mismatch (-once +twice):\n%s", diff)
	}
}

func TestDevice_SelectedClear(t *testing.T) {
	d, _, _, ppr := newTestDevice(t)

	d.Decode(record([]byte{0x22, 0x41}, setLength(512)))
	d.SelectedClear()

	want := State{Unit: 2}
	if diff := cmp.Diff(want, d.Snapshot()); diff != "" {
		t.Errorf("Snapshot() mismatch (-want +got):\n%s", diff)
	}
	if ppr.Value() != 0x01 {
		t.Errorf("PollRegister.Value() = %#x, want 0x01", ppr.Value())
	}
}

func TestDevice_PreserveOnClear(t *testing.T) {
	ctx := context.Background()
	d, _, _, _ := newTestDevice(t)
	d.SetPreserveOnClear(func(s State) bool { return s.Errors&device.ErrSeek != 0 })

	d.Decode(record(setAddress(100), setLength(256), []byte{0x00}))
	d.Execute(ctx)
	d.Clear()

	s := d.Snapshot()
	if s.Errors != device.ErrSeek || s.QStat != device.StatusError {
		t.Errorf("Errors, QStat = %v, %v, want seek, error", s.Errors, s.QStat)
	}
	if s.Address != 0 {
		t.Errorf("Address = %d, want 0", s.Address)
	}
}

func TestDevice_PreserveOnReport(t *testing.T) {
	tests := []struct {
		name     string
		preserve func(State) bool
		want     []byte
		qstat    device.QuickStatus
	}{
		{"no hook", nil, []byte{0x01, 0x00}, device.StatusOK},
		{"preserve", func(State) bool { return true }, []byte{0x01, 0x01}, device.StatusError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			d, port, _, _ := newTestDevice(t)
			d.SetPreserveOnClear(tt.preserve)

			d.Decode(record(setAddress(100), setLength(256), []byte{0x00}))
			d.Execute(ctx)
			port.Reset()

			var got []byte
			for range tt.want {
				if st := d.Commands(ctx, devicetest.TalkFrom(testAddr), SecondaryReport); st != 0 {
					t.Fatalf("Commands(report) = %v, want 0", st)
				}
			}
			for _, w := range port.Writes() {
				got = append(got, w.Data...)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("reports mismatch (-want +got):\n%s", diff)
			}
			if s := d.Snapshot(); s.QStat != tt.qstat {
				t.Errorf("QStat after report = %v, want %v", s.QStat, tt.qstat)
			}
		})
	}
}

func TestDevice_PreserveIgnoredAtPowerOn(t *testing.T) {
	ctx := context.Background()
	d, _, _, _ := newTestDevice(t)
	d.SetPreserveOnClear(func(State) bool { return true })

	d.Decode(record(setAddress(100), setLength(256), []byte{0x00}))
	d.Execute(ctx)
	d.Init()

	want := State{QStat: device.StatusPowerOn}
	if diff := cmp.Diff(want, d.Snapshot()); diff != "" {
		t.Errorf("Snapshot() after Init mismatch (-want +got):\n%s", diff)
	}
}

func TestDevice_Transparent(t *testing.T) {
	tests := []struct {
		name string
		rec  []byte
		want State
		ppr  uint8
	}{
		{"channel clear", []byte{0x08}, State{Unit: 1}, 0x01},
		{"unit then clear", []byte{0x21, 0x08}, State{Unit: 1}, 0x01},
		{"cancel", []byte{0x09}, State{Unit: 1, Length: 256}, 0x01},
		{"parity", []byte{0x01, 0x00}, State{Unit: 1, Length: 256, Exec: ExecLocateAndRead}, 0x01},
		{"loopback", []byte{0x02, 0, 0, 0, 1}, State{Unit: 1, Length: 256, Exec: ExecLocateAndRead}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			d, port, _, ppr := newTestDevice(t)
			d.Clear()
			d.Decode(record([]byte{0x21}, setLength(256), []byte{0x00}))

			port.Queue(tt.rec)
			if st := d.Commands(ctx, devicetest.ListenTo(testAddr), SecondaryTransparent); st != 0 {
				t.Fatalf("Commands(transparent) = %v, want 0", st)
			}
			if diff := cmp.Diff(tt.want, d.Snapshot()); diff != "" {
				t.Errorf("Snapshot() mismatch (-want +got):\n%s", diff)
			}
			if ppr.Value() != tt.ppr {
				t.Errorf("PollRegister.Value() = %#x, want %#x", ppr.Value(), tt.ppr)
			}
		})
	}
}

func TestDevice_AmigoClear(t *testing.T) {
	ctx := context.Background()
	d, port, _, _ := newTestDevice(t)
	d.Decode(record([]byte{0x23}, setAddress(5)))

	port.Queue([]byte{0x00})
	if st := d.Commands(ctx, devicetest.ListenTo(testAddr), SecondaryReport); st != 0 {
		t.Fatalf("Commands(amigo clear) = %v, want 0", st)
	}
	if diff := cmp.Diff(State{}, d.Snapshot()); diff != "" {
		t.Errorf("Snapshot() mismatch (-want +got):\n%s", diff)
	}
}

func TestDevice_Identify(t *testing.T) {
	d, port, _, ppr := newTestDevice(t)
	d.Clear()

	if st := d.Identify(context.Background()); st != 0 {
		t.Fatalf("Identify() = %v, want 0", st)
	}
	want := []devicetest.Write{{Data: []byte{0x02, 0x22}, Flags: bus.EOI}}
	if diff := cmp.Diff(want, port.Writes()); diff != "" {
		t.Errorf("Identify() writes mismatch (-want +got):\n%s", diff)
	}
	if ppr.Value() != 0 {
		t.Errorf("PollRegister.Value() = %#x, want 0", ppr.Value())
	}
}

func TestDevice_CommandsNotAddressed(t *testing.T) {
	d, port, _, _ := newTestDevice(t)
	port.Queue([]byte{0x00})

	if st := d.Commands(context.Background(), devicetest.ListenTo(5), SecondaryCommand); st != 0 {
		t.Errorf("Commands() = %v, want 0", st)
	}
	if port.Pending() != 1 {
		t.Errorf("Pending() = %d, want 1", port.Pending())
	}
}

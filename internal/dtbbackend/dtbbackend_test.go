package dtbbackend

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dtutils/state/internal/dterr"
	"github.com/dtutils/state/internal/rawbackend"
	"github.com/dtutils/state/internal/state"
	"github.com/dtutils/state/pkg/dtree"
)

type memDevice struct {
	buf        []byte
	noErase    bool
	eraseCalls int
}

func newMemDevice(size int, noErase bool) *memDevice {
	return &memDevice{buf: make([]byte, size), noErase: noErase}
}

func (d *memDevice) Size() (int64, error) { return int64(len(d.buf)), nil }

func (d *memDevice) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || int(off)+len(p) > len(d.buf) {
		return 0, dterr.New(dterr.IOError, "read out of range")
	}
	return copy(p, d.buf[off:int(off)+len(p)]), nil
}

func (d *memDevice) WriteAt(p []byte, off int64) (int, error) {
	if int(off)+len(p) > len(d.buf) {
		grown := make([]byte, int(off)+len(p))
		copy(grown, d.buf)
		d.buf = grown
	}
	return copy(d.buf[off:int(off)+len(p)], p), nil
}

func (d *memDevice) Erase(off, size int64) error {
	d.eraseCalls++
	return nil
}

func (d *memDevice) Geometry() (rawbackend.Geometry, error) {
	return rawbackend.Geometry{EraseRequired: !d.noErase, NoErase: d.noErase}, nil
}

func (d *memDevice) Close() error { return nil }

func buildInstance(t *testing.T) *state.Instance {
	t.Helper()
	root := dtree.NewNode("state")
	root.SetU32("magic", 0xcafef00d)
	name := dtree.NewNode("hostname")
	root.AttachChild(name)
	name.SetString("type", "string")
	name.SetReg(0, 32)

	inst, err := state.Assemble("state", root)
	require.NoError(t, err)
	return inst
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	inst := buildInstance(t)
	require.NoError(t, inst.Set("hostname", "board-42"))

	dev := newMemDevice(4096, true)
	be, err := Open(dev)
	require.NoError(t, err)
	require.NoError(t, be.Save(inst))

	inst2 := buildInstance(t)
	be2, err := Open(dev)
	require.NoError(t, err)
	require.NoError(t, be2.Load(inst2))

	got, err := inst2.Get("hostname")
	require.NoError(t, err)
	require.Equal(t, "board-42", got)
}

func TestLoadRejectsMagicMismatch(t *testing.T) {
	inst := buildInstance(t)
	dev := newMemDevice(4096, true)
	be, err := Open(dev)
	require.NoError(t, err)
	require.NoError(t, be.Save(inst))

	inst2 := buildInstance(t)
	inst2.Magic = 0x11111111
	be2, err := Open(dev)
	require.NoError(t, err)
	require.Error(t, be2.Load(inst2), "expected magic mismatch error")
}

func TestSaveErasesWhenMediumRequiresIt(t *testing.T) {
	inst := buildInstance(t)
	dev := newMemDevice(4096, false)
	be, err := Open(dev)
	require.NoError(t, err)
	require.NoError(t, be.Save(inst))
	require.Greater(t, dev.eraseCalls, 0, "expected Save to erase before writing on an erase-required medium")
}

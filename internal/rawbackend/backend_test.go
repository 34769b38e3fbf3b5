package rawbackend

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dtutils/state/internal/state"
	"github.com/dtutils/state/pkg/dtree"
)

func buildInstance(t *testing.T) *state.Instance {
	t.Helper()
	root := dtree.NewNode("state")
	root.SetU32("magic", 0xdeadbeef)
	counter := dtree.NewNode("counter")
	root.AttachChild(counter)
	counter.SetString("type", "uint32")
	counter.SetReg(0, 4)

	inst, err := state.Assemble("state", root)
	require.NoError(t, err)
	return inst
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	inst := buildInstance(t)
	require.NoError(t, inst.Set("counter", "42"))

	dev := newMemDevice(64 * 1024)
	be, err := Configure(dev, 0, 64*1024, inst, nil)
	require.NoError(t, err)
	require.NoError(t, be.Save(inst))

	inst2 := buildInstance(t)
	be2, err := Configure(dev, 0, 64*1024, inst2, nil)
	require.NoError(t, err)
	require.NoError(t, be2.Load(inst2))

	got, err := inst2.Get("counter")
	require.NoError(t, err)
	require.Equal(t, "42", got)
}

func TestLoadFallsBackToSecondCopyOnCorruption(t *testing.T) {
	inst := buildInstance(t)
	require.NoError(t, inst.Set("counter", "7"))

	dev := newMemDevice(64 * 1024)
	be, err := Configure(dev, 0, 64*1024, inst, nil)
	require.NoError(t, err)
	require.NoError(t, be.Save(inst))

	// Corrupt copy 0's header CRC.
	dev.buf[12] ^= 0xff

	inst2 := buildInstance(t)
	be2, err := Configure(dev, 0, 64*1024, inst2, nil)
	require.NoError(t, err)
	require.NoError(t, be2.Load(inst2), "should recover from copy 1")
	require.Equal(t, 1, be2.numCopyRead)

	got, err := inst2.Get("counter")
	require.NoError(t, err)
	require.Equal(t, "7", got)
}

func TestLoadFailsWhenBothCopiesCorrupted(t *testing.T) {
	inst := buildInstance(t)
	require.NoError(t, inst.Set("counter", "7"))

	dev := newMemDevice(64 * 1024)
	be, err := Configure(dev, 0, 64*1024, inst, nil)
	require.NoError(t, err)
	require.NoError(t, be.Save(inst))

	dev.buf[12] ^= 0xff
	dev.buf[int(be.stride)+12] ^= 0xff

	inst2 := buildInstance(t)
	be2, err := Configure(dev, 0, 64*1024, inst2, nil)
	require.NoError(t, err)
	require.Error(t, be2.Load(inst2), "expected Load to fail when both copies are corrupted")
}

// orderDevice records the offset of every WriteAt call in order.
type orderDevice struct {
	*memDevice
	writes []int64
}

func (d *orderDevice) WriteAt(p []byte, off int64) (int, error) {
	d.writes = append(d.writes, off)
	return d.memDevice.WriteAt(p, off)
}

func TestSaveWritesNumCopyReadLast(t *testing.T) {
	inst := buildInstance(t)
	require.NoError(t, inst.Set("counter", "1"))

	dev := &orderDevice{memDevice: newMemDevice(64 * 1024)}
	be, err := Configure(dev, 0, 64*1024, inst, nil)
	require.NoError(t, err)
	require.NoError(t, be.Save(inst))

	be.numCopyRead = 1
	be.haveRead = true

	dev.writes = nil
	require.NoError(t, inst.Set("counter", "2"))
	require.NoError(t, be.Save(inst))
	require.Equal(t, []int64{0, be.stride}, dev.writes, "copy 1 (numCopyRead) must be written last")

	inst2 := buildInstance(t)
	be2, err := Configure(dev, 0, 64*1024, inst2, nil)
	require.NoError(t, err)
	require.NoError(t, be2.Load(inst2))

	got, err := inst2.Get("counter")
	require.NoError(t, err)
	require.Equal(t, "2", got)
}

func TestConfigureRejectsInsufficientSpace(t *testing.T) {
	inst := buildInstance(t)
	dev := newMemDevice(8)
	_, err := Configure(dev, 0, 8, inst, nil)
	require.Error(t, err, "expected no-space error for a region too small for two copies")
}

func TestNotEnoughCopiesIsDetectedBeforeWrite(t *testing.T) {
	inst := buildInstance(t)
	dev := newMemDevice(20)
	_, err := Configure(dev, 0, 20, inst, nil)
	require.Error(t, err, "expected configure to reject a region fitting less than NumCopies records")
}

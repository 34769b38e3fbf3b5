package dtree

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestU32RoundTrip(t *testing.T) {
	n := NewNode("x")
	n.SetU32("size", 0xdeadbeef)
	v, err := n.ReadU32("size")
	require.NoError(t, err)
	require.Equal(t, uint32(0xdeadbeef), v)
}

func TestU32ArrayRoundTrip(t *testing.T) {
	n := NewNode("x")
	want := []uint32{1, 2, 3, 0xffffffff}
	n.SetU32Array("vals", want)
	got, err := n.ReadU32Array("vals")
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestStringRoundTrip(t *testing.T) {
	n := NewNode("x")
	n.SetString("name", "bootstate")
	got, err := n.ReadString("name")
	require.NoError(t, err)
	require.Equal(t, "bootstate", got)
}

func TestStringListRoundTrip(t *testing.T) {
	n := NewNode("x")
	n.SetStringList("compatible", []string{"barebox,state", "state"})
	got, err := n.ReadStringList("compatible")
	require.NoError(t, err)
	require.Equal(t, []string{"barebox,state", "state"}, got)
}

func TestBoolRoundTrip(t *testing.T) {
	n := NewNode("x")
	require.False(t, n.ReadBool("dirty"), "should be false before being set")

	n.SetBool("dirty", true)
	require.True(t, n.ReadBool("dirty"))

	n.SetBool("dirty", false)
	require.False(t, n.ReadBool("dirty"))
}

func TestRegStartSize(t *testing.T) {
	n := NewNode("x")
	n.SetReg(0x1000, 0x40)
	start, size, err := ReadRegStartSize(n)
	require.NoError(t, err)
	require.Equal(t, uint32(0x1000), start)
	require.Equal(t, uint32(0x40), size)
}

func TestReadRegWithCellsSpec(t *testing.T) {
	n := NewNode("x")
	n.SetU32Array("reg", []uint32{0, 0x1000, 0x40})
	regions, err := ReadReg(n, CellsSpec{AddressCells: 2, SizeCells: 1})
	require.NoError(t, err)
	require.Len(t, regions, 1)
	require.Equal(t, uint64(0x1000), regions[0][0])
	require.Equal(t, uint64(0x40), regions[0][1])
}

func TestCellsSpecDefaults(t *testing.T) {
	n := NewNode("x")
	spec := ReadCellsSpec(n)
	require.Equal(t, CellsSpec{AddressCells: 2, SizeCells: 1}, spec)
}

package dtree

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFlattenLoadFDTRoundTrip(t *testing.T) {
	root := NewNode("")
	state := NewNode("state")
	root.AttachChild(state)
	state.SetStringList("compatible", []string{"barebox,state"})
	state.SetString("backend-type", "raw")
	bootstate := NewNode("bootstate")
	state.AttachChild(bootstate)
	bootstate.SetU32("size", 4)

	blob := Flatten(root)

	tree, err := LoadFDT(blob)
	require.NoError(t, err)

	got := ByPath(tree.Root(), "/state")
	require.NotNil(t, got, "round-tripped tree missing /state")

	compat, err := got.ReadStringList("compatible")
	require.NoError(t, err)
	require.Equal(t, []string{"barebox,state"}, compat)

	bs := ByPath(tree.Root(), "/state/bootstate")
	require.NotNil(t, bs, "round-tripped tree missing /state/bootstate")

	size, err := bs.ReadU32("size")
	require.NoError(t, err)
	require.Equal(t, uint32(4), size)
}

func TestLoadFDTRejectsBadMagic(t *testing.T) {
	bad := make([]byte, fdtHeaderSize+16)
	_, err := LoadFDT(bad)
	require.Error(t, err, "expected error for blob with zero magic")
}

func TestFlattenDedupesStrings(t *testing.T) {
	root := NewNode("")
	a := NewNode("a")
	b := NewNode("b")
	root.AttachChild(a)
	root.AttachChild(b)
	a.SetU32("size", 1)
	b.SetU32("size", 2)

	blob := Flatten(root)
	require.Equal(t, 1, bytes.Count(blob, []byte("size\x00")), "property name should be stored once in the strings block")
	tree, err := LoadFDT(blob)
	require.NoError(t, err)

	va, err := ByPath(tree.Root(), "/a").ReadU32("size")
	require.NoError(t, err)
	vb, err := ByPath(tree.Root(), "/b").ReadU32("size")
	require.NoError(t, err)
	require.Equal(t, uint32(1), va)
	require.Equal(t, uint32(2), vb)
}

package dtree

import (
	"github.com/dtutils/state/internal/buf"
	"github.com/dtutils/state/internal/dterr"
)

// Typed property reads. Device-tree scalar properties are big-endian cell
// arrays; strings are NUL-terminated (string lists are NUL-separated runs
// of those).

func (n *Node) readRaw(name string) ([]byte, error) {
	p := n.Property(name)
	if p == nil {
		return nil, errMissingProperty
	}
	return p.Value, nil
}

// ReadU8Array reads a byte-array property (each element one byte).
func (n *Node) ReadU8Array(name string) ([]byte, error) {
	return n.readRaw(name)
}

// ReadU16Array reads a property as an array of big-endian uint16 cells.
func (n *Node) ReadU16Array(name string) ([]uint16, error) {
	raw, err := n.readRaw(name)
	if err != nil {
		return nil, err
	}
	if len(raw)%2 != 0 {
		return nil, errWrongLength
	}
	out := make([]uint16, len(raw)/2)
	for i := range out {
		out[i] = uint16(raw[i*2])<<8 | uint16(raw[i*2+1])
	}
	return out, nil
}

// ReadU32Array reads a property as an array of big-endian uint32 cells.
func (n *Node) ReadU32Array(name string) ([]uint32, error) {
	raw, err := n.readRaw(name)
	if err != nil {
		return nil, err
	}
	if len(raw)%4 != 0 {
		return nil, errWrongLength
	}
	out := make([]uint32, len(raw)/4)
	for i := range out {
		out[i] = buf.U32BE(raw[i*4:])
	}
	return out, nil
}

// ReadU64Array reads a property as an array of big-endian uint64 cells.
func (n *Node) ReadU64Array(name string) ([]uint64, error) {
	raw, err := n.readRaw(name)
	if err != nil {
		return nil, err
	}
	if len(raw)%8 != 0 {
		return nil, errWrongLength
	}
	out := make([]uint64, len(raw)/8)
	for i := range out {
		out[i] = buf.U64BE(raw[i*8:])
	}
	return out, nil
}

// ReadU32 reads a single big-endian uint32 cell property.
func (n *Node) ReadU32(name string) (uint32, error) {
	raw, err := n.readRaw(name)
	if err != nil {
		return 0, err
	}
	if len(raw) != 4 {
		return 0, errWrongLength
	}
	return buf.U32BE(raw), nil
}

// ReadString reads a NUL-terminated string property.
func (n *Node) ReadString(name string) (string, error) {
	raw, err := n.readRaw(name)
	if err != nil {
		return "", err
	}
	return string(trimOneNul(raw)), nil
}

// ReadStringList reads a property holding a NUL-separated list of strings
// (e.g. "compatible").
func (n *Node) ReadStringList(name string) ([]string, error) {
	raw, err := n.readRaw(name)
	if err != nil {
		return nil, err
	}
	return splitNulStrings(raw), nil
}

// ReadBool reports whether a boolean property is present at all; per
// device-tree convention its value (even empty) is irrelevant.
func (n *Node) ReadBool(name string) bool { return n.HasProperty(name) }

// CellsSpec describes how many 32-bit cells make up an address and a size
// field in a reg-style property, as declared by a parent's
// "#address-cells"/"#size-cells" properties (default 2/1 per device-tree
// convention when absent).
type CellsSpec struct {
	AddressCells int
	SizeCells    int
}

// ReadCellsSpec reads #address-cells/#size-cells from n, defaulting to
// {2, 1} for any that are absent.
func ReadCellsSpec(n *Node) CellsSpec {
	spec := CellsSpec{AddressCells: 2, SizeCells: 1}
	if v, err := n.ReadU32("#address-cells"); err == nil {
		spec.AddressCells = int(v)
	}
	if v, err := n.ReadU32("#size-cells"); err == nil {
		spec.SizeCells = int(v)
	}
	return spec
}

// ReadReg parses a "reg" property into (address, size) pairs per the given
// cells spec.
func ReadReg(n *Node, spec CellsSpec) ([][2]uint64, error) {
	cells, err := n.ReadU32Array("reg")
	if err != nil {
		return nil, err
	}
	stride := spec.AddressCells + spec.SizeCells
	if stride == 0 || len(cells)%stride != 0 {
		return nil, dterr.New(dterr.InvalidArgument, "reg property has wrong arity for #address-cells=%d #size-cells=%d", spec.AddressCells, spec.SizeCells)
	}
	out := make([][2]uint64, 0, len(cells)/stride)
	for i := 0; i < len(cells); i += stride {
		var addr, size uint64
		for j := 0; j < spec.AddressCells; j++ {
			addr = addr<<32 | uint64(cells[i+j])
		}
		for j := 0; j < spec.SizeCells; j++ {
			size = size<<32 | uint64(cells[i+spec.AddressCells+j])
		}
		out = append(out, [2]uint64{addr, size})
	}
	return out, nil
}

// ReadRegStartSize reads a two-cell "reg = <start size>" property as used by
// state schema variables (always one address cell, one size cell,
// irrespective of the parent's #address-cells).
func ReadRegStartSize(n *Node) (start, size uint32, err error) {
	cells, err := n.ReadU32Array("reg")
	if err != nil {
		return 0, 0, err
	}
	if len(cells) != 2 {
		return 0, 0, dterr.New(dterr.InvalidArgument, "reg must be <start size>, got %d cells", len(cells))
	}
	return cells[0], cells[1], nil
}

// PhandleCells reads a phandle reference property (e.g. "backend =
// <&phandle>") as its raw big-endian uint32 cells. It does not consult any
// "#...-cells" property of the referenced node, so phandles and argument
// cells are returned in one flat list. Most of this engine's phandle
// references are bare (no extra arguments), so the common case is a single
// cell holding the phandle.
func (n *Node) PhandleCells(name string) ([]uint32, error) {
	return n.ReadU32Array(name)
}

// --- Typed property writes ---

// SetU8Array writes a raw byte-array property.
func (n *Node) SetU8Array(name string, v []byte) { n.SetProperty(name, append([]byte(nil), v...)) }

// PutPropU32 writes a single big-endian uint32 cell property on n.
func PutPropU32(n *Node, name string, v uint32) {
	b := make([]byte, 4)
	buf.PutU32BE(b, v)
	n.SetProperty(name, b)
}

// SetU32Array writes a property as an array of big-endian uint32 cells.
func (n *Node) SetU32Array(name string, v []uint32) {
	b := make([]byte, 0, len(v)*4)
	for _, x := range v {
		b = buf.AppendU32BE(b, x)
	}
	n.SetProperty(name, b)
}

// SetU32 writes a single big-endian uint32 cell property.
func (n *Node) SetU32(name string, v uint32) { PutPropU32(n, name, v) }

// SetString writes a NUL-terminated string property.
func (n *Node) SetString(name, v string) {
	n.SetProperty(name, append([]byte(v), 0))
}

// SetStringList writes a NUL-separated list-of-strings property.
func (n *Node) SetStringList(name string, v []string) {
	var b []byte
	for _, s := range v {
		b = append(b, s...)
		b = append(b, 0)
	}
	n.SetProperty(name, b)
}

// SetBool sets (or clears) a boolean marker property.
func (n *Node) SetBool(name string, v bool) {
	if v {
		n.SetProperty(name, nil)
		return
	}
	delete(n.props, name)
	for i, p := range n.propOrd {
		if p == name {
			n.propOrd = append(n.propOrd[:i], n.propOrd[i+1:]...)
			break
		}
	}
}

// SetReg writes a "reg = <start size>" property.
func (n *Node) SetReg(start, size uint32) {
	n.SetU32Array("reg", []uint32{start, size})
}

func trimOneNul(b []byte) []byte {
	if len(b) > 0 && b[len(b)-1] == 0 {
		return b[:len(b)-1]
	}
	return b
}

package dtree

import (
	"github.com/dtutils/state/internal/buf"
	"github.com/dtutils/state/internal/dterr"
)

// Flattened device-tree blob (FDT) constants, mirroring upstream dtc's
// fdt.h: a header, a structure block of begin/end-node and property tokens,
// and a strings block holding property names deduplicated by offset.
const (
	fdtMagic = 0xd00dfeed

	fdtBeginNode = 0x1
	fdtEndNode   = 0x2
	fdtProp      = 0x3
	fdtNop       = 0x4
	fdtEnd       = 0x9

	fdtHeaderSize = 10 * 4 // version 17 header, 10 uint32 fields
	fdtTagSize    = 4
	fdtVersion    = 17
	fdtLastComp   = 16
)

type fdtHeader struct {
	magic            uint32
	totalSize        uint32
	offDtStruct      uint32
	offDtStrings     uint32
	offMemRsvmap     uint32
	version          uint32
	lastCompVersion  uint32
	bootCpuidPhys    uint32
	sizeDtStrings    uint32
	sizeDtStruct     uint32
}

func decodeFDTHeader(b []byte) (fdtHeader, error) {
	if len(b) < fdtHeaderSize {
		return fdtHeader{}, dterr.New(dterr.InvalidArgument, "fdt blob shorter than header (%d bytes)", len(b))
	}
	h := fdtHeader{
		magic:           buf.U32BE(b[0:4]),
		totalSize:       buf.U32BE(b[4:8]),
		offDtStruct:     buf.U32BE(b[8:12]),
		offDtStrings:    buf.U32BE(b[12:16]),
		offMemRsvmap:    buf.U32BE(b[16:20]),
		version:         buf.U32BE(b[20:24]),
		lastCompVersion: buf.U32BE(b[24:28]),
		bootCpuidPhys:   buf.U32BE(b[28:32]),
		sizeDtStrings:   buf.U32BE(b[32:36]),
		sizeDtStruct:    buf.U32BE(b[36:40]),
	}
	if h.magic != fdtMagic {
		return fdtHeader{}, dterr.New(dterr.IntegrityFailure, "fdt blob has bad magic 0x%08x", h.magic)
	}
	if !buf.Has(b, 0, int(h.totalSize)) {
		return fdtHeader{}, dterr.New(dterr.IntegrityFailure, "fdt blob truncated: header claims %d bytes, have %d", h.totalSize, len(b))
	}
	return h, nil
}

func (h fdtHeader) encode() []byte {
	out := make([]byte, fdtHeaderSize)
	buf.PutU32BE(out[0:4], h.magic)
	buf.PutU32BE(out[4:8], h.totalSize)
	buf.PutU32BE(out[8:12], h.offDtStruct)
	buf.PutU32BE(out[12:16], h.offDtStrings)
	buf.PutU32BE(out[16:20], h.offMemRsvmap)
	buf.PutU32BE(out[20:24], h.version)
	buf.PutU32BE(out[24:28], h.lastCompVersion)
	buf.PutU32BE(out[28:32], h.bootCpuidPhys)
	buf.PutU32BE(out[32:36], h.sizeDtStrings)
	buf.PutU32BE(out[36:40], h.sizeDtStruct)
	return out
}

// LoadFDT parses a flattened device-tree blob into a Tree.
func LoadFDT(b []byte) (*Tree, error) {
	h, err := decodeFDTHeader(b)
	if err != nil {
		return nil, err
	}
	if !buf.Has(b, int(h.offDtStruct), int(h.sizeDtStruct)) || !buf.Has(b, int(h.offDtStrings), int(h.sizeDtStrings)) {
		return nil, dterr.New(dterr.IntegrityFailure, "fdt blob struct/strings block out of range")
	}
	structEnd, _ := buf.AddOverflowSafe(int(h.offDtStruct), int(h.sizeDtStruct))
	strBlock, _ := buf.Slice(b, int(h.offDtStrings), int(h.sizeDtStrings))

	structBlock := b[:structEnd]
	off := int(h.offDtStruct)
	readTag := func() (uint32, error) {
		if !buf.Has(structBlock, off, fdtTagSize) {
			return 0, dterr.New(dterr.IntegrityFailure, "fdt structure block truncated")
		}
		tag := buf.U32BE(b[off:])
		off += fdtTagSize
		return tag, nil
	}

	var root *Node
	var stack []*Node

	for {
		tag, err := readTag()
		if err != nil {
			return nil, err
		}
		switch tag {
		case fdtNop:
			continue
		case fdtBeginNode:
			nameEnd := off
			for nameEnd < structEnd && b[nameEnd] != 0 {
				nameEnd++
			}
			if nameEnd >= structEnd {
				return nil, dterr.New(dterr.IntegrityFailure, "fdt node name unterminated")
			}
			name := string(b[off:nameEnd])
			off = buf.AlignUp(nameEnd+1, 4)
			n := NewNode(name)
			if len(stack) == 0 {
				root = n
			} else {
				stack[len(stack)-1].AttachChild(n)
			}
			stack = append(stack, n)
		case fdtEndNode:
			if len(stack) == 0 {
				return nil, dterr.New(dterr.IntegrityFailure, "fdt END_NODE without matching BEGIN_NODE")
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 && root != nil {
				// Root closed; remaining tokens (if any) must be FDT_END.
			}
		case fdtProp:
			if !buf.Has(structBlock, off, 8) {
				return nil, dterr.New(dterr.IntegrityFailure, "fdt property header truncated")
			}
			plen := buf.U32BE(b[off:])
			nameoff := buf.U32BE(b[off+4:])
			off += 8
			valSlice, ok := buf.Slice(structBlock, off, int(plen))
			if !ok {
				return nil, dterr.New(dterr.IntegrityFailure, "fdt property value truncated")
			}
			value := append([]byte(nil), valSlice...)
			valEnd, _ := buf.AddOverflowSafe(off, int(plen))
			off = buf.AlignUp(valEnd, 4)
			name, err := fdtStringAt(strBlock, nameoff)
			if err != nil {
				return nil, err
			}
			if len(stack) == 0 {
				return nil, dterr.New(dterr.IntegrityFailure, "fdt property outside any node")
			}
			stack[len(stack)-1].SetProperty(name, value)
		case fdtEnd:
			if root == nil {
				return nil, dterr.New(dterr.IntegrityFailure, "fdt blob has no root node")
			}
			return NewTree(root), nil
		default:
			return nil, dterr.New(dterr.IntegrityFailure, "fdt unknown structure tag 0x%x", tag)
		}
	}
}

func fdtStringAt(strBlock []byte, off uint32) (string, error) {
	if !buf.Has(strBlock, int(off), 1) {
		return "", dterr.New(dterr.IntegrityFailure, "fdt string offset out of range")
	}
	end := int(off)
	for end < len(strBlock) && strBlock[end] != 0 {
		end++
	}
	return string(strBlock[off:end]), nil
}

// Flatten serializes the subtree rooted at n into an FDT blob.
func Flatten(n *Node) []byte {
	var structBlock []byte
	var strBlock []byte
	stringOff := make(map[string]uint32)

	internString := func(s string) uint32 {
		if off, ok := stringOff[s]; ok {
			return off
		}
		off := uint32(len(strBlock))
		strBlock = append(strBlock, s...)
		strBlock = append(strBlock, 0)
		stringOff[s] = off
		return off
	}

	var emit func(*Node)
	emit = func(cur *Node) {
		structBlock = buf.AppendU32BE(structBlock, fdtBeginNode)
		structBlock = append(structBlock, cur.name...)
		structBlock = append(structBlock, 0)
		for len(structBlock)%4 != 0 {
			structBlock = append(structBlock, 0)
		}
		for _, name := range cur.propOrd {
			p := cur.props[name]
			structBlock = buf.AppendU32BE(structBlock, fdtProp)
			structBlock = buf.AppendU32BE(structBlock, uint32(len(p.Value)))
			structBlock = buf.AppendU32BE(structBlock, internString(name))
			structBlock = append(structBlock, p.Value...)
			for len(structBlock)%4 != 0 {
				structBlock = append(structBlock, 0)
			}
		}
		for _, c := range cur.children {
			emit(c)
		}
		structBlock = buf.AppendU32BE(structBlock, fdtEndNode)
	}
	emit(n)
	structBlock = buf.AppendU32BE(structBlock, fdtEnd)

	h := fdtHeader{
		magic:           fdtMagic,
		version:         fdtVersion,
		lastCompVersion: fdtLastComp,
		offMemRsvmap:    uint32(fdtHeaderSize),
	}
	// Memory reservation map is empty but still present as a single
	// zero-terminator entry (address=0, size=0), per the on-disk format.
	rsvmap := make([]byte, 16)

	h.offDtStruct = h.offMemRsvmap + uint32(len(rsvmap))
	h.sizeDtStruct = uint32(len(structBlock))
	h.offDtStrings = h.offDtStruct + h.sizeDtStruct
	h.sizeDtStrings = uint32(len(strBlock))
	h.totalSize = h.offDtStrings + h.sizeDtStrings

	out := make([]byte, 0, h.totalSize)
	out = append(out, h.encode()...)
	out = append(out, rsvmap...)
	out = append(out, structBlock...)
	out = append(out, strBlock...)
	return out
}

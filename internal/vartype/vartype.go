// Package vartype implements the state engine's typed variable system:
// uint8, uint32, enum32, mac and string values, each with a fixed-size
// wire representation, a human-readable text form, and schema-driven
// construction from a device-tree node. A tagged struct with a Kind field
// stands in for the teacher's interface-per-record-type dispatch, since
// every kind here fits in one small, closed set of cases.
package vartype

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dtutils/state/internal/buf"
	"github.com/dtutils/state/internal/dterr"
	"github.com/dtutils/state/pkg/dtree"
)

// Kind identifies a variable's wire type.
type Kind int

const (
	Uint8 Kind = iota
	Uint32
	Enum32
	MAC
	String
)

func (k Kind) String() string {
	switch k {
	case Uint8:
		return "uint8"
	case Uint32:
		return "uint32"
	case Enum32:
		return "enum32"
	case MAC:
		return "mac"
	case String:
		return "string"
	default:
		return "unknown"
	}
}

// KindFromName maps a schema "type" property value to a Kind.
func KindFromName(name string) (Kind, bool) {
	switch name {
	case "uint8":
		return Uint8, true
	case "uint32":
		return Uint32, true
	case "enum32":
		return Enum32, true
	case "mac":
		return MAC, true
	case "string":
		return String, true
	default:
		return 0, false
	}
}

// stringMaxLen is the largest buffer a string variable may declare.
const stringMaxLen = 4096

// Variable is one typed, positioned value inside a state instance. Start
// and Size describe its byte range within the raw backend's flat payload;
// for kinds other than string, Size is fixed by the kind.
type Variable struct {
	Name  string
	Start uint32
	Size  uint32
	Kind  Kind

	value   uint32 // uint8 / uint32 / enum32 current value
	defVal  uint32
	mac     [6]byte
	macDef  [6]byte
	str     string
	strDef  string
	names   []string // enum32 only, ordered
}

// NewFromSchema builds a Variable from a schema leaf node: it reads "type"
// and "reg" (start, size), validates the declared size against the kind,
// and for enum32 reads the "names" string list.
func NewFromSchema(name string, node *dtree.Node) (*Variable, error) {
	typeName, err := node.ReadString("type")
	if err != nil {
		return nil, dterr.Wrap(dterr.InvalidArgument, err, "%s: type property not found", name)
	}
	kind, ok := KindFromName(typeName)
	if !ok {
		return nil, dterr.New(dterr.InvalidArgument, "%s: unknown variable type %q", name, typeName)
	}

	start, size, err := dtree.ReadRegStartSize(node)
	if err != nil {
		return nil, dterr.Wrap(dterr.InvalidArgument, err, "%s: reg property not found", name)
	}

	v := &Variable{Name: name, Start: start, Kind: kind}

	switch kind {
	case Uint8:
		v.Size = 1
	case Uint32, Enum32:
		v.Size = 4
	case MAC:
		v.Size = 6
	case String:
		if size > stringMaxLen {
			return nil, dterr.New(dterr.InvalidArgument, "%s: string size %d exceeds maximum %d", name, size, stringMaxLen)
		}
		v.Size = size
	}

	if kind != String && size != v.Size {
		return nil, dterr.New(dterr.SchemaConflict, "%s: size mismatch: type=%s(size=%d) size=%d", name, kind, v.Size, size)
	}

	if kind == Enum32 {
		names, err := node.ReadStringList("names")
		if err != nil {
			return nil, dterr.Wrap(dterr.InvalidArgument, err, "%s: names property not found", name)
		}
		if len(names) == 0 {
			return nil, dterr.New(dterr.InvalidArgument, "%s: enum32 requires at least one name", name)
		}
		v.names = names
	}

	return v, nil
}

// End returns the exclusive end of the variable's byte range.
func (v *Variable) End() uint32 { return v.Start + v.Size }

// Get formats the variable's current value as text.
func (v *Variable) Get() (string, error) {
	switch v.Kind {
	case Uint8, Uint32:
		return strconv.FormatUint(uint64(v.value), 10), nil
	case Enum32:
		if int(v.value) >= len(v.names) {
			return "", dterr.New(dterr.OutOfRange, "%s: enum32 value %d out of range of %d names", v.Name, v.value, len(v.names))
		}
		return v.names[v.value], nil
	case MAC:
		return formatMAC(v.mac), nil
	case String:
		return v.str, nil
	default:
		return "", dterr.New(dterr.InvalidArgument, "%s: unknown kind", v.Name)
	}
}

// Set parses text and stores it as the variable's current value.
func (v *Variable) Set(text string) error {
	switch v.Kind {
	case Uint32:
		n, err := strconv.ParseUint(text, 0, 32)
		if errors.Is(err, strconv.ErrRange) {
			return dterr.Wrap(dterr.OutOfRange, err, "%s: value %q out of range for uint32", v.Name, text)
		}
		if err != nil {
			return dterr.Wrap(dterr.InvalidArgument, err, "%s: invalid uint32 %q", v.Name, text)
		}
		v.value = uint32(n)
		return nil
	case Uint8:
		n, err := strconv.ParseUint(text, 0, 64)
		if errors.Is(err, strconv.ErrRange) {
			return dterr.Wrap(dterr.OutOfRange, err, "%s: value %q out of range for uint8", v.Name, text)
		}
		if err != nil {
			return dterr.Wrap(dterr.InvalidArgument, err, "%s: invalid uint8 %q", v.Name, text)
		}
		if n > 255 {
			return dterr.New(dterr.OutOfRange, "%s: value %d out of range for uint8", v.Name, n)
		}
		v.value = uint32(n)
		return nil
	case Enum32:
		for i, name := range v.names {
			if name == text {
				v.value = uint32(i)
				return nil
			}
		}
		return dterr.New(dterr.InvalidArgument, "%s: %q is not one of %v", v.Name, text, v.names)
	case MAC:
		mac, err := parseMAC(text)
		if err != nil {
			return dterr.Wrap(dterr.InvalidArgument, err, "%s: invalid mac address %q", v.Name, text)
		}
		v.mac = mac
		return nil
	case String:
		if uint32(len(text)) > v.Size {
			return dterr.New(dterr.InvalidArgument, "%s: string of length %d exceeds buffer size %d", v.Name, len(text), v.Size)
		}
		v.str = text
		return nil
	default:
		return dterr.New(dterr.InvalidArgument, "%s: unknown kind", v.Name)
	}
}

// Names returns the enum32 name table, or nil for other kinds.
func (v *Variable) Names() []string { return v.names }

// EncodeRaw serializes the variable's current value into a little-endian
// byte buffer of exactly v.Size bytes, as stored by the raw flash backend.
func (v *Variable) EncodeRaw() []byte {
	out := make([]byte, v.Size)
	switch v.Kind {
	case Uint8:
		out[0] = byte(v.value)
	case Uint32, Enum32:
		buf.PutU32LE(out, v.value)
	case MAC:
		copy(out, v.mac[:])
	case String:
		n := copy(out, v.str)
		for i := n; i < len(out); i++ {
			out[i] = 0
		}
	}
	return out
}

// DecodeRaw loads the variable's current value from a little-endian byte
// buffer produced by EncodeRaw. raw must be exactly v.Size bytes.
func (v *Variable) DecodeRaw(raw []byte) error {
	if uint32(len(raw)) != v.Size {
		return dterr.New(dterr.InvalidArgument, "%s: raw buffer length %d != variable size %d", v.Name, len(raw), v.Size)
	}
	switch v.Kind {
	case Uint8:
		v.value = uint32(raw[0])
	case Uint32, Enum32:
		v.value = buf.U32LE(raw)
	case MAC:
		copy(v.mac[:], raw)
	case String:
		v.str = string(trimAtFirstNul(raw))
	}
	return nil
}

// ImportFromNode reads "value"/"default" (and the mac "default"/"value"
// arrays) from a stored-state node, falling back to the default whenever
// the value is absent, mirroring the original engine's per-backend load
// path for the DTB backend.
func (v *Variable) ImportFromNode(node *dtree.Node) error {
	switch v.Kind {
	case Uint8, Uint32, Enum32:
		if d, err := node.ReadU32("default"); err == nil {
			v.defVal = d
		}
		if val, err := node.ReadU32("value"); err == nil {
			v.value = val
		} else {
			v.value = v.defVal
		}
	case MAC:
		if d, err := node.ReadU8Array("default"); err == nil && len(d) == 6 {
			copy(v.macDef[:], d)
		}
		if val, err := node.ReadU8Array("value"); err == nil && len(val) == 6 {
			copy(v.mac[:], val)
		} else {
			v.mac = v.macDef
		}
	case String:
		if d, err := node.ReadString("default"); err == nil {
			v.strDef = d
		}
		if val, err := node.ReadString("value"); err == nil {
			v.str = val
		} else {
			v.str = v.strDef
		}
	}
	return nil
}

// ExportMode selects how ExportToNode treats the default/value pair.
type ExportMode int

const (
	// ExportNormal writes "default" only when it is non-zero/non-empty
	// (mac variables always write it), then always writes "value".
	ExportNormal ExportMode = iota
	// ExportFixupOnly always writes "default" (even zero/empty) and
	// stops there, used when publishing a live-tree fixup before a
	// value has been loaded.
	ExportFixupOnly
)

// ExportToNode writes the variable's default/value (and, for enum32, its
// names table) onto node, in the form ImportFromNode expects to read back.
func (v *Variable) ExportToNode(node *dtree.Node, mode ExportMode) error {
	switch v.Kind {
	case Uint8, Uint32, Enum32:
		if v.defVal != 0 || mode == ExportFixupOnly {
			node.SetU32("default", v.defVal)
			if mode == ExportFixupOnly {
				return nil
			}
		}
		node.SetU32("value", v.value)
		if v.Kind == Enum32 {
			node.SetStringList("names", v.names)
		}
	case MAC:
		node.SetU8Array("default", v.macDef[:])
		if mode == ExportFixupOnly {
			return nil
		}
		node.SetU8Array("value", v.mac[:])
	case String:
		if v.strDef != "" || mode == ExportFixupOnly {
			node.SetString("default", v.strDef)
			if mode == ExportFixupOnly {
				return nil
			}
		}
		node.SetString("value", v.str)
	}
	return nil
}

func formatMAC(mac [6]byte) string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", mac[0], mac[1], mac[2], mac[3], mac[4], mac[5])
}

func parseMAC(s string) ([6]byte, error) {
	var mac [6]byte
	if len(s) != 17 {
		return mac, dterr.New(dterr.InvalidArgument, "mac address must be 17 characters, got %d", len(s))
	}
	parts := strings.Split(s, ":")
	if len(parts) != 6 {
		return mac, dterr.New(dterr.InvalidArgument, "mac address must have 6 colon-separated octets")
	}
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 16, 8)
		if err != nil {
			return mac, dterr.Wrap(dterr.InvalidArgument, err, "invalid octet %q", p)
		}
		mac[i] = byte(n)
	}
	return mac, nil
}

func trimAtFirstNul(b []byte) []byte {
	for i, c := range b {
		if c == 0 {
			return b[:i]
		}
	}
	return b
}

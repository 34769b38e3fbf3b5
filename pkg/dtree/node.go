package dtree

import (
	"strings"

	"github.com/dtutils/state/internal/dterr"
)

// Node is a device-tree node: an ordered list of children (insertion order
// preserved) and an unordered map of properties addressed by name.
type Node struct {
	name     string
	parent   *Node
	children []*Node
	props    map[string]*Property
	propOrd  []string
	phandle  uint32

	tree *Tree // owning tree, for alias/phandle indices; nil for detached nodes
}

// Property is an untyped byte-string device-tree property.
type Property struct {
	Name  string
	Value []byte
}

// NewNode creates a detached, empty node with the given name.
func NewNode(name string) *Node {
	return &Node{name: name, props: make(map[string]*Property)}
}

// Name returns the node's own name (not its path).
func (n *Node) Name() string { return n.name }

// Parent returns the node's parent, or nil for the root.
func (n *Node) Parent() *Node { return n.parent }

// Phandle returns the node's phandle, or 0 if none was assigned.
func (n *Node) Phandle() uint32 { return n.phandle }

// Path returns the full slash-joined path from the root to n.
func (n *Node) Path() string {
	if n.parent == nil {
		return "/"
	}
	var parts []string
	for cur := n; cur.parent != nil; cur = cur.parent {
		parts = append([]string{cur.name}, parts...)
	}
	return "/" + strings.Join(parts, "/")
}

// Children returns n's children in insertion order. Callers must not mutate
// the returned slice.
func (n *Node) Children() []*Node { return n.children }

// AttachChild appends child as the last child of n, preserving insertion
// order among siblings, and reparents it.
func (n *Node) AttachChild(child *Node) {
	child.parent = n
	child.tree = n.tree
	n.children = append(n.children, child)
	if n.tree != nil {
		n.tree.indexPhandle(child)
	}
}

// Child looks up a direct child by name.
func (n *Node) Child(name string) *Node {
	for _, c := range n.children {
		if c.name == name {
			return c
		}
	}
	return nil
}

// SetProperty adds or replaces a byte-blob property, preserving the
// property's position in insertion order if it already existed.
func (n *Node) SetProperty(name string, value []byte) {
	if _, ok := n.props[name]; !ok {
		n.propOrd = append(n.propOrd, name)
	}
	n.props[name] = &Property{Name: name, Value: value}
}

// Property returns the named property, or nil if absent.
func (n *Node) Property(name string) *Property { return n.props[name] }

// HasProperty reports whether the named property exists.
func (n *Node) HasProperty(name string) bool {
	_, ok := n.props[name]
	return ok
}

// Properties returns all properties of n in insertion order.
func (n *Node) Properties() []*Property {
	out := make([]*Property, 0, len(n.propOrd))
	for _, name := range n.propOrd {
		out = append(out, n.props[name])
	}
	return out
}

// FindNext performs a pre-order "find next" query: given a predicate, it
// returns the first matching node strictly after `after` in pre-order
// traversal (or the first match from the root if after is nil). It never
// returns `after` itself even when after matches.
func FindNext(root, after *Node, match func(*Node) bool) *Node {
	var found *Node
	var passedAfter bool
	if after == nil {
		passedAfter = true
	}
	var walk func(*Node)
	walk = func(cur *Node) {
		if found != nil {
			return
		}
		if passedAfter && match(cur) {
			found = cur
			return
		}
		if cur == after {
			passedAfter = true
		}
		for _, c := range cur.children {
			walk(c)
			if found != nil {
				return
			}
		}
	}
	walk(root)
	return found
}

// Walk performs a pre-order traversal starting at n, calling fn on every
// node including n itself. Walk stops and returns fn's error if it is
// non-nil.
func Walk(n *Node, fn func(*Node) error) error {
	if err := fn(n); err != nil {
		return err
	}
	for _, c := range n.children {
		if err := Walk(c, fn); err != nil {
			return err
		}
	}
	return nil
}

// ByPath resolves an absolute, slash-separated path ("/a/b/c") from root.
// An empty path or "/" returns root itself.
func ByPath(root *Node, path string) *Node {
	path = strings.Trim(path, "/")
	if path == "" {
		return root
	}
	cur := root
	for _, seg := range strings.Split(path, "/") {
		cur = cur.Child(seg)
		if cur == nil {
			return nil
		}
	}
	return cur
}

// ByPhandle finds the node with the given phandle anywhere under root.
func ByPhandle(root *Node, phandle uint32) *Node {
	if root.tree != nil {
		return root.tree.byPhandle[phandle]
	}
	return FindNext(root, nil, func(n *Node) bool { return n.phandle == phandle })
}

// ByCompatible finds the next node (strictly after `after`) whose
// "compatible" property contains token as one of its NUL-separated entries
// (substring match per spec, not exact-token match, to mirror of_device_is_compatible
// behavior for trailing/partial driver strings).
func ByCompatible(root, after *Node, token string) *Node {
	return FindNext(root, after, func(n *Node) bool {
		p := n.Property("compatible")
		if p == nil {
			return false
		}
		for _, s := range splitNulStrings(p.Value) {
			if strings.Contains(s, token) {
				return true
			}
		}
		return false
	})
}

// ByPropertyExistence finds the next node (strictly after `after`) carrying
// the named property.
func ByPropertyExistence(root, after *Node, prop string) *Node {
	return FindNext(root, after, func(n *Node) bool { return n.HasProperty(prop) })
}

// OfDeviceIDEntry pairs a compatible token with implementation-defined
// driver data, mirroring of_device_id tables.
type OfDeviceIDEntry struct {
	Compatible string
	Data       any
}

// MatchOfDeviceID finds the next node (strictly after `after`) whose
// "compatible" list matches any entry in table, returning the node and the
// matching entry's Data.
func MatchOfDeviceID(root, after *Node, table []OfDeviceIDEntry) (*Node, any) {
	var resultData any
	node := FindNext(root, after, func(n *Node) bool {
		p := n.Property("compatible")
		if p == nil {
			return false
		}
		names := splitNulStrings(p.Value)
		for _, entry := range table {
			for _, s := range names {
				if s == entry.Compatible {
					resultData = entry.Data
					return true
				}
			}
		}
		return false
	})
	return node, resultData
}

// errMissingProperty and errWrongLength are the distinct sentinels spec.md
// §4.1 requires for "missing property" vs "wrong length".
var (
	errMissingProperty = dterr.New(dterr.NotFound, "property not found")
	errWrongLength     = dterr.New(dterr.InvalidArgument, "property has unexpected length")
)

// ErrMissingProperty reports whether err is the "property absent" sentinel.
func ErrMissingProperty(err error) bool { return err == errMissingProperty }

// ErrWrongLength reports whether err is the "wrong length" sentinel.
func ErrWrongLength(err error) bool { return err == errWrongLength }

func splitNulStrings(b []byte) []string {
	var out []string
	start := 0
	for i, c := range b {
		if c == 0 {
			if i > start {
				out = append(out, string(b[start:i]))
			}
			start = i + 1
		}
	}
	if start < len(b) {
		out = append(out, string(b[start:]))
	}
	return out
}

// Package state assembles a typed, offset-addressed variable layout from a
// device-tree schema sub-graph, enforces its layout invariants, and
// provides the get/set/dump operations the CLI drives. It is the typed
// counterpart of the raw/DTB backends: they move bytes, this package gives
// those bytes meaning.
package state

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dtutils/state/internal/dterr"
	"github.com/dtutils/state/internal/vartype"
	"github.com/dtutils/state/pkg/dtree"
)

// Instance is one schema-defined collection of variables plus the dynamic
// state (magic, dirty flag) the CLI and backends operate on.
type Instance struct {
	Name       string
	SchemaRoot *dtree.Node
	Magic      uint32
	Vars       []*vartype.Variable
	Dirty      bool
}

// Assemble walks schemaRoot depth-first, turning every leaf node carrying a
// "type" property into a Variable (name is the dot-joined path from the
// root), and validates that no two variables overlap.
func Assemble(name string, schemaRoot *dtree.Node) (*Instance, error) {
	magic, err := schemaRoot.ReadU32("magic")
	if err != nil {
		return nil, dterr.Wrap(dterr.InvalidArgument, err, "%s: magic property not found", name)
	}

	inst := &Instance{Name: name, SchemaRoot: schemaRoot, Magic: magic, Dirty: true}

	var walk func(node *dtree.Node, prefix string) error
	walk = func(node *dtree.Node, prefix string) error {
		for _, child := range node.Children() {
			shortName := stripUnitAddress(child.Name())
			fullName := shortName
			if prefix != "" {
				fullName = prefix + "." + shortName
			}
			if !child.HasProperty("type") {
				if err := walk(child, fullName); err != nil {
					return err
				}
				continue
			}
			v, err := vartype.NewFromSchema(fullName, child)
			if err != nil {
				return err
			}
			if err := v.ImportFromNode(child); err != nil {
				return err
			}
			inst.Vars = append(inst.Vars, v)
		}
		return nil
	}
	if err := walk(schemaRoot, ""); err != nil {
		return nil, err
	}

	sort.Slice(inst.Vars, func(i, j int) bool { return inst.Vars[i].Start < inst.Vars[j].Start })

	if err := checkOverlap(inst.Vars); err != nil {
		return nil, err
	}

	return inst, nil
}

func stripUnitAddress(name string) string {
	if i := strings.IndexByte(name, '@'); i >= 0 {
		return name[:i]
	}
	return name
}

// checkOverlap verifies consecutive (start-sorted) variables never overlap,
// reporting every conflicting pair in a single aggregated error.
func checkOverlap(vars []*vartype.Variable) error {
	var conflicts []string
	for i := 1; i < len(vars); i++ {
		prev, cur := vars[i-1], vars[i]
		if prev.End() > cur.Start {
			conflicts = append(conflicts, fmt.Sprintf(
				"%s (0x%02x..0x%02x) and %s (0x%02x..0x%02x)",
				prev.Name, prev.Start, prev.End()-1, cur.Name, cur.Start, cur.End()-1))
		}
	}
	if len(conflicts) == 0 {
		return nil
	}
	return dterr.New(dterr.SchemaConflict, "conflicting variable positions: %s", strings.Join(conflicts, "; "))
}

// Find returns the variable with the given dotted name, or a not-found
// error.
func (inst *Instance) Find(name string) (*vartype.Variable, error) {
	for _, v := range inst.Vars {
		if v.Name == name {
			return v, nil
		}
	}
	return nil, dterr.New(dterr.NotFound, "%s: no such variable %q", inst.Name, name)
}

// Get formats the named variable's current value as text.
func (inst *Instance) Get(name string) (string, error) {
	v, err := inst.Find(name)
	if err != nil {
		return "", err
	}
	return v.Get()
}

// Set parses text and stores it into the named variable, marking the
// instance dirty on success.
func (inst *Instance) Set(name, value string) error {
	v, err := inst.Find(name)
	if err != nil {
		return err
	}
	if err := v.Set(value); err != nil {
		return err
	}
	inst.Dirty = true
	return nil
}

// Dump renders every variable as a KEY=VALUE line. When shell is true,
// names are upper-cased-with-underscores and prefixed with the instance
// name and values are double-quoted, matching --dump-shell's
// shell-sourceable form; otherwise names keep their dotted form and are
// prefixed with the instance name only when multi is true.
func (inst *Instance) Dump(multi, shell bool) ([]string, error) {
	lines := make([]string, 0, len(inst.Vars))
	for _, v := range inst.Vars {
		val, err := v.Get()
		if err != nil {
			return nil, err
		}
		if shell {
			key := strings.ToUpper(inst.Name + "_" + strings.ReplaceAll(v.Name, ".", "_"))
			lines = append(lines, fmt.Sprintf("%s=%q", key, val))
			continue
		}
		key := v.Name
		if multi {
			key = inst.Name + "." + key
		}
		lines = append(lines, fmt.Sprintf("%s=%s", key, val))
	}
	return lines, nil
}

// ConvMode selects the direction and annotation level of a schema<->node
// conversion.
type ConvMode int

const (
	// ConvToNode rebuilds a plain value-bearing schema sub-tree (used by
	// the DTB backend's save path).
	ConvToNode ConvMode = iota
	// ConvFixup additionally annotates backend/digest/cell-width
	// metadata, used when publishing the schema into the live tree.
	ConvFixup
)

// FixupAnnotations carries the extra properties ConvFixup mode writes onto
// the rebuilt root node.
type FixupAnnotations struct {
	BackendType   string
	BackendPhandle uint32
	Algo          string
	AddressCells  uint32
	SizeCells     uint32
}

// ToNode rebuilds a schema sub-tree from the instance's current values,
// under the given conversion mode. ann is only consulted in ConvFixup mode.
func (inst *Instance) ToNode(mode ConvMode, ann FixupAnnotations) *dtree.Node {
	root := dtree.NewNode(inst.SchemaRoot.Name())
	root.SetU32("magic", inst.Magic)

	if mode == ConvFixup {
		if ann.BackendType != "" {
			root.SetString("backend-type", ann.BackendType)
		}
		if ann.BackendPhandle != 0 {
			root.SetU32("backend", ann.BackendPhandle)
		}
		if ann.Algo != "" {
			root.SetString("algo", ann.Algo)
		}
		root.SetU32("#address-cells", ann.AddressCells)
		root.SetU32("#size-cells", ann.SizeCells)
	}

	exportMode := vartype.ExportNormal
	if mode == ConvFixup {
		exportMode = vartype.ExportFixupOnly
	}

	for _, v := range inst.Vars {
		leaf := nodeForDottedName(root, v.Name)
		leaf.SetString("type", v.Kind.String())
		leaf.SetReg(v.Start, v.Size)
		_ = v.ExportToNode(leaf, exportMode)
	}
	return root
}

// nodeForDottedName walks/creates the intermediate nodes for a
// dot-separated variable name under root, returning the leaf node.
func nodeForDottedName(root *dtree.Node, dotted string) *dtree.Node {
	cur := root
	parts := strings.Split(dotted, ".")
	for _, part := range parts {
		child := cur.Child(part)
		if child == nil {
			child = dtree.NewNode(part)
			cur.AttachChild(child)
		}
		cur = child
	}
	return cur
}

package dtree

import (
	"strconv"
	"strings"
)

// Tree owns a root node plus the alias and phandle indices derived from it,
// so alias and phandle lookups through a Tree are O(1) instead of
// re-walking on every call.
type Tree struct {
	root      *Node
	aliases   map[string]string // alias name -> absolute path
	byPhandle map[uint32]*Node
	maxPhandle uint32
}

// NewTree wraps root as the root of a new Tree, indexing aliases and
// phandles found anywhere in the subtree.
func NewTree(root *Node) *Tree {
	t := &Tree{
		root:      root,
		aliases:   make(map[string]string),
		byPhandle: make(map[uint32]*Node),
	}
	_ = Walk(root, func(n *Node) error {
		n.tree = t
		t.indexPhandle(n)
		return nil
	})
	t.reindexAliases()
	return t
}

// Root returns the tree's root node.
func (t *Tree) Root() *Node { return t.root }

func (t *Tree) indexPhandle(n *Node) {
	if n.phandle != 0 {
		t.byPhandle[n.phandle] = n
		if n.phandle > t.maxPhandle {
			t.maxPhandle = n.phandle
		}
	}
}

// reindexAliases scans /aliases: every property whose value is a valid path
// is indexed by its full alias name. Splitting a name into stem and id is
// left to AliasStemAndID.
func (t *Tree) reindexAliases() {
	t.aliases = make(map[string]string)
	aliasesNode := t.root.Child("aliases")
	if aliasesNode == nil {
		return
	}
	for _, p := range aliasesNode.Properties() {
		path := strings.TrimRight(string(p.Value), "\x00")
		if !strings.HasPrefix(path, "/") {
			continue
		}
		if ByPath(t.root, path) == nil {
			continue
		}
		t.aliases[p.Name] = path
	}
}

// AliasStemAndID splits an alias name into its non-numeric stem and trailing
// decimal id, e.g. "ethernet1" -> ("ethernet", 1, true).
func AliasStemAndID(alias string) (stem string, id int, ok bool) {
	i := len(alias)
	for i > 0 && alias[i-1] >= '0' && alias[i-1] <= '9' {
		i--
	}
	if i == len(alias) {
		return alias, 0, false
	}
	n, err := strconv.Atoi(alias[i:])
	if err != nil {
		return alias, 0, false
	}
	return alias[:i], n, true
}

// ByAlias resolves a node through /aliases by alias name.
func (t *Tree) ByAlias(name string) *Node {
	path, ok := t.aliases[name]
	if !ok {
		return nil
	}
	return ByPath(t.root, path)
}

// FindByPathOrAlias dispatches on a leading '/': an absolute path is
// resolved directly, anything else is looked up as an alias.
func (t *Tree) FindByPathOrAlias(pathOrAlias string) *Node {
	if strings.HasPrefix(pathOrAlias, "/") {
		return ByPath(t.root, pathOrAlias)
	}
	return t.ByAlias(pathOrAlias)
}

// AllocPhandle returns an unused phandle (max phandle in the tree + 1) and
// writes it back as a "phandle" property on target, indexing it.
func (t *Tree) AllocPhandle(target *Node) uint32 {
	t.maxPhandle++
	target.phandle = t.maxPhandle
	PutPropU32(target, "phandle", t.maxPhandle)
	t.byPhandle[t.maxPhandle] = target
	return t.maxPhandle
}

// ByPhandle resolves a node by phandle via the tree's index.
func (t *Tree) ByPhandle(phandle uint32) *Node { return t.byPhandle[phandle] }

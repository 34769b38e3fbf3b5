package dtree

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/dtutils/state/internal/buf"
	"github.com/dtutils/state/internal/dterr"
)

// LoadDirectory imports a sysfs-style device-tree directory (each node a
// directory, each property a regular file holding the property's raw
// bytes) rooted at dir, mirroring /proc/device-tree and
// /sys/firmware/devicetree/base layouts.
func LoadDirectory(dir string) (*Tree, error) {
	root := NewNode("")
	if err := scanDir(root, dir); err != nil {
		return nil, dterr.Wrap(dterr.IOError, err, "scanning device-tree directory %s", dir)
	}
	return NewTree(root), nil
}

func scanDir(node *Node, path string) error {
	entries, err := os.ReadDir(path)
	if err != nil {
		return err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	for _, ent := range entries {
		name := ent.Name()
		if len(name) > 0 && name[0] == '.' {
			continue
		}
		full := filepath.Join(path, name)
		if ent.IsDir() {
			child := NewNode(name)
			node.AttachChild(child)
			if err := scanDir(child, full); err != nil {
				return err
			}
			continue
		}
		data, err := os.ReadFile(full)
		if err != nil {
			return err
		}
		node.SetProperty(name, data)
		if name == "phandle" && len(data) == 4 {
			node.phandle = buf.U32BE(data)
		}
	}
	return nil
}

// Candidate locations LoadSystem probes, in order, for a live system
// device-tree: a flattened blob exposed by firmware, then the two sysfs
// directory mirrors of the same tree.
var (
	systemFDTPath       = "/sys/firmware/fdt"
	systemDirCandidates = []string{
		"/sys/firmware/devicetree/base",
		"/proc/device-tree",
	}
)

// LoadSystem loads the running system's device tree, preferring a
// flattened blob (/sys/firmware/fdt) when present and falling back to the
// sysfs directory mirrors in order.
func LoadSystem() (*Tree, error) {
	if data, err := os.ReadFile(systemFDTPath); err == nil {
		return LoadFDT(data)
	}
	var lastErr error
	for _, dir := range systemDirCandidates {
		if _, err := os.Stat(dir); err != nil {
			lastErr = err
			continue
		}
		return LoadDirectory(dir)
	}
	if lastErr == nil {
		lastErr = dterr.New(dterr.NotFound, "no device-tree source found")
	}
	return nil, dterr.Wrap(dterr.NotFound, lastErr, "no accessible device-tree source")
}

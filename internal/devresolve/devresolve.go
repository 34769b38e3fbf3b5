// Package devresolve turns a state schema's "backend" phandle into a
// concrete device path, offset and size, walking the device-tree node and
// classifying the sysfs device it corresponds to the way udev would: EEPROM,
// MTD or block, by subsystem.
package devresolve

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dtutils/state/internal/dterr"
	"github.com/dtutils/state/pkg/dtree"
)

// PartitionTableGUID is the canonical "state" GPT partition type UUID the
// original tool special-cases when locating its own partition by type.
const PartitionTableGUID = "4778ed65-bf42-45fa-9c5b-287a1dc4aab1"

// Resolved is the outcome of resolving a backend node to an accessible
// device region.
type Resolved struct {
	DevPath         string
	Offset          int64
	Size            int64
	IsGPTPartitioned bool
	IsBlockDisk     bool
}

// sysClassMTD/sysClassBlock are vars (not consts) so tests can point them at
// a scratch directory mimicking the real sysfs layout.
var (
	sysClassMTD   = "/sys/class/mtd"
	sysClassBlock = "/sys/class/block"
)

// Resolve classifies backendNode (the device-tree node a state's "backend"
// phandle points at) and returns the accessible device path/offset/size.
func Resolve(backendNode *dtree.Node) (*Resolved, error) {
	if dev, offset, size, ok := resolveDirect(backendNode); ok {
		return &Resolved{DevPath: dev, Offset: offset, Size: size}, nil
	}

	parent := backendNode.Parent()
	if parent == nil {
		return nil, dterr.New(dterr.BackendUnavailable, "backend node %s has no parent to resolve against", backendNode.Path())
	}

	if parent.Name() == "partitions" && parent.Parent() != nil {
		parent = parent.Parent()
	}

	if isFixedPartitions(parent) {
		if uuid, err := backendNode.ReadString("partuuid"); err == nil {
			return resolveByPartUUID(uuid)
		}
	}

	if isStorageByUUID(parent) {
		uuid, err := parent.ReadString("uuid")
		if err != nil {
			return nil, dterr.Wrap(dterr.BackendUnavailable, err, "barebox,storage-by-uuid node %s missing uuid", parent.Path())
		}
		return resolveByPartUUID(uuid)
	}

	parentDev, parentClass, ok := classifyNode(parent)
	if !ok {
		return nil, dterr.New(dterr.BackendUnavailable, "cannot classify device for node %s", parent.Path())
	}

	switch parentClass {
	case classMTD:
		label, err := backendNode.ReadString("label")
		if err != nil {
			return nil, dterr.Wrap(dterr.InvalidArgument, err, "mtd partition node %s missing label", backendNode.Path())
		}
		return resolveMTDPartitionByLabel(parentDev, label)
	case classEEPROM:
		start, size, err := dtree.ReadRegStartSize(backendNode)
		if err != nil {
			return nil, dterr.Wrap(dterr.InvalidArgument, err, "%s: reg property required for eeprom partition", backendNode.Path())
		}
		return &Resolved{DevPath: eepromSysfsPath(parentDev), Offset: int64(start), Size: int64(size)}, nil
	case classBlock:
		spec := dtree.ReadCellsSpec(parent)
		start, size, err := parseRegWithSpec(backendNode, spec)
		if err != nil {
			return nil, err
		}
		return resolveBlockPartition(parentDev, start, size)
	}

	return nil, dterr.New(dterr.BackendUnavailable, "unhandled device class for node %s", parent.Path())
}

// resolveDirect classifies backendNode itself, in case it already maps to a
// udev device without requiring the parent/partition fallback path.
func resolveDirect(n *dtree.Node) (devpath string, offset, size int64, ok bool) {
	dev, class, ok := classifyNode(n)
	if !ok {
		return "", 0, 0, false
	}
	switch class {
	case classEEPROM:
		return eepromSysfsPath(dev), 0, 0, true
	case classMTD:
		sz, err := readSysfsUint(filepath.Join(sysClassMTD, dev, "size"))
		if err != nil {
			return "", 0, 0, false
		}
		return "/dev/" + dev, 0, int64(sz), true
	case classBlock:
		sz, err := readSysfsUint(filepath.Join(sysClassBlock, dev, "size"))
		if err != nil {
			return "", 0, 0, false
		}
		return "/dev/" + dev, 0, int64(sz) * 512, true
	}
	return "", 0, 0, false
}

type devClass int

const (
	classUnknown devClass = iota
	classEEPROM
	classMTD
	classBlock
)

// classifyNode looks up a udev-equivalent device name for n (its
// device-tree node name, as sysfs device directories under /sys/class/*
// are named) and classifies it by subsystem, mirroring
// udev_device_is_eeprom/udev_parse_mtd/cdev_from_block_device.
func classifyNode(n *dtree.Node) (name string, class devClass, ok bool) {
	name = n.Name()
	if hasEEPROMAttr(name) {
		return name, classEEPROM, true
	}
	if subsystemIs(sysClassMTD, name, "mtd") {
		return name, classMTD, true
	}
	if subsystemIs(sysClassBlock, name, "block") {
		return name, classBlock, true
	}
	return name, classUnknown, false
}

var sysBusNVMemDevices = "/sys/bus/nvmem/devices"

func hasEEPROMAttr(name string) bool {
	_, err := os.Stat(filepath.Join(sysBusNVMemDevices, name, "eeprom"))
	return err == nil
}

func subsystemIs(classDir, name, want string) bool {
	target, err := os.Readlink(filepath.Join(classDir, name, "subsystem"))
	if err != nil {
		return false
	}
	return filepath.Base(target) == want
}

func eepromSysfsPath(name string) string {
	return filepath.Join(sysBusNVMemDevices, name, "eeprom")
}

func isFixedPartitions(n *dtree.Node) bool {
	return compatibleContains(n, "fixed-partitions")
}

func isStorageByUUID(n *dtree.Node) bool {
	return compatibleContains(n, "barebox,storage-by-uuid")
}

func compatibleContains(n *dtree.Node, token string) bool {
	list, err := n.ReadStringList("compatible")
	if err != nil {
		return false
	}
	for _, s := range list {
		if s == token {
			return true
		}
	}
	return false
}

// resolveByPartUUID scans /sys/class/block/*/uevent for ID_PART_TABLE_UUID
// or ID_PART_ENTRY_UUID matching uuid, mirroring of_find_device_by_uuid's
// udev property lookup.
func resolveByPartUUID(uuid string) (*Resolved, error) {
	entries, err := os.ReadDir(sysClassBlock)
	if err != nil {
		return nil, dterr.Wrap(dterr.BackendUnavailable, err, "listing %s", sysClassBlock)
	}
	for _, e := range entries {
		props, err := readUevent(filepath.Join(sysClassBlock, e.Name(), "uevent"))
		if err != nil {
			continue
		}
		if strings.EqualFold(props["ID_PART_TABLE_UUID"], uuid) || strings.EqualFold(props["ID_PART_ENTRY_UUID"], uuid) {
			sz, err := readSysfsUint(filepath.Join(sysClassBlock, e.Name(), "size"))
			if err != nil {
				return nil, dterr.Wrap(dterr.BackendUnavailable, err, "reading size for %s", e.Name())
			}
			return &Resolved{
				DevPath:          "/dev/" + e.Name(),
				Size:             int64(sz) * 512,
				IsGPTPartitioned: true,
			}, nil
		}
	}
	return nil, dterr.New(dterr.NotFound, "no block device found for partition uuid %q", uuid)
}

// resolveMTDPartitionByLabel scans every mtd device under sysClassMTD for
// one whose "name" sysfs attribute matches label and returns the first
// match. The search is not limited to partitions of parentMTD; parentMTD
// only appears in the not-found error.
func resolveMTDPartitionByLabel(parentMTD, label string) (*Resolved, error) {
	entries, err := os.ReadDir(sysClassMTD)
	if err != nil {
		return nil, dterr.Wrap(dterr.BackendUnavailable, err, "listing %s", sysClassMTD)
	}
	for _, e := range entries {
		nameBytes, err := os.ReadFile(filepath.Join(sysClassMTD, e.Name(), "name"))
		if err != nil {
			continue
		}
		if strings.TrimSpace(string(nameBytes)) != label {
			continue
		}
		sz, err := readSysfsUint(filepath.Join(sysClassMTD, e.Name(), "size"))
		if err != nil {
			return nil, err
		}
		return &Resolved{DevPath: "/dev/" + e.Name(), Size: int64(sz)}, nil
	}
	return nil, dterr.New(dterr.NotFound, "no mtd partition found with label %q under %s", label, parentMTD)
}

// resolveBlockPartition finds the partition under parentDisk whose
// {start*512, size*512} region contains [start, start+size), subtracting
// the partition's own start from the requested offset.
func resolveBlockPartition(parentDisk string, start, size uint32) (*Resolved, error) {
	diskDir := filepath.Join(sysClassBlock, parentDisk)
	entries, err := os.ReadDir(diskDir)
	if err != nil {
		return nil, dterr.Wrap(dterr.BackendUnavailable, err, "listing %s", diskDir)
	}
	want := struct{ offset, size int64 }{int64(start), int64(size)}
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), parentDisk) {
			continue
		}
		partDir := filepath.Join(diskDir, e.Name())
		pStart, err1 := readSysfsUint(filepath.Join(partDir, "start"))
		pSize, err2 := readSysfsUint(filepath.Join(partDir, "size"))
		if err1 != nil || err2 != nil {
			continue
		}
		pOffset := int64(pStart) * 512
		pSizeBytes := int64(pSize) * 512
		if want.offset >= pOffset && want.offset+want.size <= pOffset+pSizeBytes {
			return &Resolved{
				DevPath: "/dev/" + e.Name(),
				Offset:  want.offset - pOffset,
				Size:    want.size,
			}, nil
		}
	}
	return nil, dterr.New(dterr.NotFound, "no partition of %s contains region [%d,%d)", parentDisk, start, start+size)
}

func parseRegWithSpec(n *dtree.Node, spec dtree.CellsSpec) (start, size uint32, err error) {
	regs, err := dtree.ReadReg(n, spec)
	if err != nil {
		return 0, 0, err
	}
	if len(regs) == 0 {
		return 0, 0, dterr.New(dterr.InvalidArgument, "%s: reg property is empty", n.Path())
	}
	return uint32(regs[0][0]), uint32(regs[0][1]), nil
}

func readSysfsUint(path string) (uint64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, dterr.Wrap(dterr.IOError, err, "reading %s", path)
	}
	return strconv.ParseUint(strings.TrimSpace(string(b)), 10, 64)
}

func readUevent(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	out := make(map[string]string)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		out[k] = v
	}
	return out, sc.Err()
}

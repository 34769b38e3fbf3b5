// Package dtbbackend implements the DTB backend: state is stored as a plain
// flattened device-tree blob at a fixed path, with no redundancy, CRC, or
// HMAC of its own (the blob's schema sub-tree carries default/value pairs
// directly, the same shape Assemble reads from a live schema).
package dtbbackend

import (
	"github.com/dtutils/state/internal/dterr"
	"github.com/dtutils/state/internal/rawbackend"
	"github.com/dtutils/state/internal/state"
	"github.com/dtutils/state/pkg/dtree"
)

// Backend is one DTB-file-backed store bound to a Device.
type Backend struct {
	dev        rawbackend.Device
	needsErase bool
}

// Open binds a DTB backend to dev, probing its geometry to decide whether
// Save must erase before writing (MTD devices without MTD_NO_ERASE).
func Open(dev rawbackend.Device) (*Backend, error) {
	geom, err := dev.Geometry()
	if err != nil {
		return nil, dterr.Wrap(dterr.BackendUnavailable, err, "probing device geometry")
	}
	return &Backend{dev: dev, needsErase: geom.EraseRequired && !geom.NoErase}, nil
}

// Load reads the whole device, unflattens it into a device-tree, re-assembles
// variables from its schema sub-tree (which doubles as the stored values),
// and copies each variable's value into inst by name. It rejects a magic
// mismatch the same way the raw backend does, unless inst.Magic is 0.
func (b *Backend) Load(inst *state.Instance) error {
	size, err := b.dev.Size()
	if err != nil {
		return dterr.Wrap(dterr.IOError, err, "reading device size")
	}
	raw := make([]byte, size)
	if _, err := b.dev.ReadAt(raw, 0); err != nil {
		return dterr.Wrap(dterr.IOError, err, "reading dtb blob")
	}

	tree, err := dtree.LoadFDT(raw)
	if err != nil {
		return dterr.Wrap(dterr.IntegrityFailure, err, "unflattening dtb blob")
	}

	stored, err := state.Assemble(inst.Name, tree.Root())
	if err != nil {
		return dterr.Wrap(dterr.IntegrityFailure, err, "assembling stored schema")
	}
	if inst.Magic != 0 && inst.Magic != stored.Magic {
		return dterr.New(dterr.IntegrityFailure, "magic mismatch: got 0x%08x want 0x%08x", stored.Magic, inst.Magic)
	}

	for _, v := range inst.Vars {
		sv, err := stored.Find(v.Name)
		if err != nil {
			continue
		}
		if err := v.DecodeRaw(sv.EncodeRaw()); err != nil {
			return err
		}
	}
	return nil
}

// Save rebuilds a plain value-bearing schema sub-tree from inst's current
// values, flattens it, and overwrites the whole device, erasing first when
// the underlying medium requires it.
func (b *Backend) Save(inst *state.Instance) error {
	root := inst.ToNode(state.ConvToNode, state.FixupAnnotations{})
	blob := dtree.Flatten(root)

	if b.needsErase {
		if err := b.dev.Erase(0, int64(len(blob))); err != nil {
			return err
		}
	}
	if _, err := b.dev.WriteAt(blob, 0); err != nil {
		return dterr.Wrap(dterr.IOError, err, "writing dtb blob")
	}
	return nil
}

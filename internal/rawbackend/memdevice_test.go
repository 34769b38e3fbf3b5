package rawbackend

import "github.com/dtutils/state/internal/dterr"

// memDevice is an in-memory Device used by tests: no erase required, fixed
// size, byte-addressable.
type memDevice struct {
	buf []byte
}

func newMemDevice(size int) *memDevice { return &memDevice{buf: make([]byte, size)} }

func (d *memDevice) Size() (int64, error) { return int64(len(d.buf)), nil }

func (d *memDevice) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || int(off)+len(p) > len(d.buf) {
		return 0, dterr.New(dterr.IOError, "read out of range")
	}
	return copy(p, d.buf[off:int(off)+len(p)]), nil
}

func (d *memDevice) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || int(off)+len(p) > len(d.buf) {
		return 0, dterr.New(dterr.IOError, "write out of range")
	}
	return copy(d.buf[off:int(off)+len(p)], p), nil
}

func (d *memDevice) Erase(off, size int64) error { return nil }

func (d *memDevice) Geometry() (Geometry, error) {
	return Geometry{EraseRequired: false, NoErase: true}, nil
}

func (d *memDevice) Close() error { return nil }

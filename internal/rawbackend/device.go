package rawbackend

import (
	"os"

	"github.com/dtutils/state/internal/dterr"
)

// Geometry describes the properties of the backing medium that affect how
// copies are striped and whether an explicit erase must precede a write.
type Geometry struct {
	EraseRequired bool
	WriteSize     uint32
	EraseSize     uint32
	NoErase       bool
}

// Device is the block/MTD/char-device abstraction the raw backend is built
// against: size query, offset read/write, and (for erase-required media) an
// erase primitive plus geometry. A plain regular file satisfies it trivially
// with EraseRequired=false.
type Device interface {
	Size() (int64, error)
	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)
	Erase(off, size int64) error
	Geometry() (Geometry, error)
	Close() error
}

// fileDevice is the plain-file fallback: no erase step, size from stat.
type fileDevice struct {
	f *os.File
}

// OpenFileDevice opens path as a Device using only regular-file semantics
// (no MTD/block geometry probing). OpenDevice (geometry_linux.go /
// geometry_other.go) should be preferred; this is exposed for tests and for
// callers that already know they have a plain file.
func OpenFileDevice(path string, writable bool) (Device, error) {
	flag := os.O_RDONLY
	if writable {
		flag = os.O_RDWR
	}
	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, dterr.Wrap(dterr.IOError, err, "opening %s", path)
	}
	return &fileDevice{f: f}, nil
}

func (d *fileDevice) Size() (int64, error) {
	st, err := d.f.Stat()
	if err != nil {
		return 0, dterr.Wrap(dterr.IOError, err, "stat %s", d.f.Name())
	}
	return st.Size(), nil
}

func (d *fileDevice) ReadAt(p []byte, off int64) (int, error) {
	n, err := d.f.ReadAt(p, off)
	if err != nil {
		return n, dterr.Wrap(dterr.IOError, err, "read %s at %d", d.f.Name(), off)
	}
	return n, nil
}

func (d *fileDevice) WriteAt(p []byte, off int64) (int, error) {
	n, err := d.f.WriteAt(p, off)
	if err != nil {
		return n, dterr.Wrap(dterr.IOError, err, "write %s at %d", d.f.Name(), off)
	}
	return n, nil
}

func (d *fileDevice) Erase(off, size int64) error { return nil }

func (d *fileDevice) Geometry() (Geometry, error) {
	return Geometry{EraseRequired: false, NoErase: true}, nil
}

func (d *fileDevice) Close() error { return d.f.Close() }

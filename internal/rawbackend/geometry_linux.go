//go:build linux

package rawbackend

import (
	"os"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/dtutils/state/internal/dterr"
)

// MTD ioctl numbers and the MTD_NO_ERASE flag bit, from linux/mtd/mtd-abi.h.
// No ecosystem MTD binding appears anywhere in the pack, so these are
// reproduced directly as the stable kernel ABI values.
const (
	memGetInfo    = 0x80204d01
	memErase      = 0x40084d02
	mtdNoErase    = 0x1000
	blkGetSize64  = 0x80081272
)

type mtdInfoUser struct {
	Type      uint8
	_         [3]byte // compiler padding to align Flags on a 4-byte boundary
	Flags     uint32
	Size      uint32
	EraseSize uint32
	WriteSize uint32
	OOBSize   uint32
	Padding   uint64
}

type eraseInfoUser struct {
	Start  uint32
	Length uint32
}

// mtdDevice wraps an MTD character device, using ioctls for geometry and
// erase, matching barebox-state.c's mtd_get_meminfo()/erase() calls.
type mtdDevice struct {
	f    *os.File
	info mtdInfoUser
}

// blockDevice wraps a block device: size via BLKGETSIZE64, no erase needed.
type blockDevice struct {
	f    *os.File
	size int64
}

// OpenDevice opens path, probing whether it is an MTD character device, a
// block device, or a plain regular file, and returns the Device
// implementation with the matching geometry behavior.
func OpenDevice(path string, writable bool) (Device, error) {
	flag := os.O_RDONLY
	if writable {
		flag = os.O_RDWR
	}
	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, dterr.Wrap(dterr.IOError, err, "opening %s", path)
	}

	var info mtdInfoUser
	if err := ioctl(f.Fd(), memGetInfo, unsafe.Pointer(&info)); err == nil {
		return &mtdDevice{f: f, info: info}, nil
	}

	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, dterr.Wrap(dterr.IOError, err, "stat %s", path)
	}
	if st.Mode()&os.ModeDevice != 0 && st.Mode()&os.ModeCharDevice == 0 {
		var size uint64
		if err := ioctl(f.Fd(), blkGetSize64, unsafe.Pointer(&size)); err == nil {
			return &blockDevice{f: f, size: int64(size)}, nil
		}
	}

	return &fileDevice{f: f}, nil
}

func ioctl(fd uintptr, req uint, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, uintptr(req), uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

func (d *mtdDevice) Size() (int64, error) { return int64(d.info.Size), nil }

func (d *mtdDevice) ReadAt(p []byte, off int64) (int, error) {
	n, err := d.f.ReadAt(p, off)
	if err != nil {
		return n, dterr.Wrap(dterr.IOError, err, "mtd read at %d", off)
	}
	return n, nil
}

func (d *mtdDevice) WriteAt(p []byte, off int64) (int, error) {
	n, err := d.f.WriteAt(p, off)
	if err != nil {
		return n, dterr.Wrap(dterr.IOError, err, "mtd write at %d", off)
	}
	return n, nil
}

func (d *mtdDevice) Erase(off, size int64) error {
	ei := eraseInfoUser{Start: uint32(off), Length: uint32(size)}
	if err := ioctl(d.f.Fd(), memErase, unsafe.Pointer(&ei)); err != nil {
		return dterr.Wrap(dterr.IOError, err, "mtd erase at %d len %d", off, size)
	}
	return nil
}

func (d *mtdDevice) Geometry() (Geometry, error) {
	noErase := d.info.Flags&mtdNoErase != 0
	return Geometry{
		EraseRequired: !noErase,
		WriteSize:     d.info.WriteSize,
		EraseSize:     d.info.EraseSize,
		NoErase:       noErase,
	}, nil
}

func (d *mtdDevice) Close() error { return d.f.Close() }

func (d *blockDevice) Size() (int64, error) { return d.size, nil }

func (d *blockDevice) ReadAt(p []byte, off int64) (int, error) {
	n, err := d.f.ReadAt(p, off)
	if err != nil {
		return n, dterr.Wrap(dterr.IOError, err, "block read at %d", off)
	}
	return n, nil
}

func (d *blockDevice) WriteAt(p []byte, off int64) (int, error) {
	n, err := d.f.WriteAt(p, off)
	if err != nil {
		return n, dterr.Wrap(dterr.IOError, err, "block write at %d", off)
	}
	return n, nil
}

func (d *blockDevice) Erase(off, size int64) error { return nil }

func (d *blockDevice) Geometry() (Geometry, error) {
	return Geometry{EraseRequired: false, NoErase: true}, nil
}

func (d *blockDevice) Close() error { return d.f.Close() }

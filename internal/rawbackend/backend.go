// Package rawbackend implements the raw-flash backend: a self-describing,
// CRC- and optionally HMAC-protected record written as N redundant,
// eraseblock-aware-strided copies, read back by first-valid-copy.
package rawbackend

import (
	"fmt"

	"github.com/dtutils/state/internal/dterr"
	"github.com/dtutils/state/internal/dtlog"
	"github.com/dtutils/state/internal/state"
)

// NumCopies is the fixed redundancy factor (RAW_BACKEND_COPIES upstream).
const NumCopies = 2

// Digest is the keyed-MAC interface the HMAC binding layer provides; nil
// means the backend runs without authentication.
type Digest interface {
	Length() int
	Sum(data []byte) []byte
}

// Backend is one configured raw-flash store bound to a Device.
type Backend struct {
	dev    Device
	offset int64
	size   int64
	digest Digest

	sizeData    uint32
	sizeFull    uint32
	stride      int64
	numCopyRead int
	haveRead    bool
	skipHMAC    bool
}

// SetSkipHMACVerify controls whether Load bypasses the HMAC check while
// still running header/magic/CRC validation (the CLI's "-f" flag).
func (b *Backend) SetSkipHMACVerify(skip bool) { b.skipHMAC = skip }

// Configure binds an already opened dev, whose region starts at offset, and
// computes size_data/size_full/stride for inst's current variable layout.
// size_data is the largest variable's end offset; size_full adds the
// header and, if digest is non-nil, the digest length, and is rounded up
// to the write size when erase is required; stride is size_full rounded up
// to the MTD erase size when erase is required, else size_full itself. Configure fails with no-space if fewer than NumCopies fit in
// region of length `size`.
func Configure(dev Device, offset, size int64, inst *state.Instance, digest Digest) (*Backend, error) {
	b := &Backend{dev: dev, offset: offset, size: size, digest: digest, numCopyRead: -1}

	if len(inst.Vars) == 0 {
		b.sizeData = 0
	} else {
		last := inst.Vars[len(inst.Vars)-1]
		b.sizeData = last.End()
	}
	b.sizeFull = uint32(headerSize) + b.sizeData
	if digest != nil {
		b.sizeFull += uint32(digest.Length())
	}

	geom, err := dev.Geometry()
	if err != nil {
		return nil, dterr.Wrap(dterr.BackendUnavailable, err, "probing device geometry")
	}

	if geom.EraseRequired && geom.WriteSize > 0 {
		b.sizeFull = alignUp32(b.sizeFull, geom.WriteSize)
	}
	if geom.EraseRequired && geom.EraseSize > 0 {
		b.stride = int64(alignUp32(b.sizeFull, geom.EraseSize))
	} else {
		b.stride = int64(b.sizeFull)
	}

	if b.stride == 0 || size/b.stride < NumCopies {
		return nil, dterr.New(dterr.NoSpace, "not enough space for %d copies (%d bytes each)", NumCopies, b.stride)
	}

	return b, nil
}

func alignUp32(n, align uint32) uint32 {
	return (n + align - 1) / align * align
}

// Load reads copies in order 0..NumCopies, returning at the first one that
// passes header CRC, magic, length-bound, data CRC and (if configured)
// HMAC verification. On success each variable's raw bytes are populated
// from the winning copy's payload and numCopyRead is recorded for Save's
// write ordering. If every copy fails, Load returns an error and the
// caller is expected to mark the instance dirty and continue with
// defaults.
func (b *Backend) Load(inst *state.Instance) error {
	var lastErr error
	for i := 0; i < NumCopies; i++ {
		off := b.offset + int64(i)*b.stride
		if err := b.loadOne(inst, off); err != nil {
			dtlog.Debug(fmt.Sprintf("rawbackend: copy %d failed: %v", i, err))
			lastErr = err
			continue
		}
		b.numCopyRead = i
		b.haveRead = true
		dtlog.Debug(fmt.Sprintf("rawbackend: copy %d successfully loaded", i))
		return nil
	}
	if lastErr == nil {
		lastErr = dterr.New(dterr.IntegrityFailure, "no copies available")
	}
	return dterr.Wrap(dterr.IntegrityFailure, lastErr, "all %d copies failed to load", NumCopies)
}

func (b *Backend) loadOne(inst *state.Instance, off int64) error {
	maxLen := b.stride - int64(headerSize)
	digestLen := 0
	if b.digest != nil {
		digestLen = b.digest.Length()
		maxLen -= int64(digestLen)
	}

	raw := make([]byte, headerSize)
	if _, err := b.dev.ReadAt(raw, off); err != nil {
		return dterr.Wrap(dterr.IOError, err, "reading header at %d", off)
	}
	h := decodeHeader(raw)

	if crc32IEEE(raw[:headerSize-4]) != h.headerCRC {
		return dterr.New(dterr.IntegrityFailure, "bad header crc at offset %d", off)
	}
	if inst.Magic != 0 && inst.Magic != h.magic {
		return dterr.New(dterr.IntegrityFailure, "magic mismatch: got 0x%08x want 0x%08x", h.magic, inst.Magic)
	}
	if int64(h.dataLen) > maxLen {
		return dterr.New(dterr.IntegrityFailure, "data_len %d exceeds max %d", h.dataLen, maxLen)
	}

	full := make([]byte, int(headerSize)+int(h.dataLen)+digestLen)
	if _, err := b.dev.ReadAt(full, off); err != nil {
		return dterr.Wrap(dterr.IOError, err, "reading record at %d", off)
	}
	data := full[headerSize : headerSize+int(h.dataLen)]

	if crc32IEEE(data) != h.dataCRC {
		return dterr.New(dterr.IntegrityFailure, "bad data crc at offset %d", off)
	}

	if b.digest != nil && !b.skipHMAC {
		mac := full[headerSize+int(h.dataLen):]
		want := b.digest.Sum(full[:headerSize+int(h.dataLen)])
		if !bytesEqual(want, mac) {
			return dterr.New(dterr.IntegrityFailure, "hmac mismatch at offset %d", off)
		}
	}

	for _, v := range inst.Vars {
		if v.End() > uint32(h.dataLen) {
			continue
		}
		if err := v.DecodeRaw(data[v.Start:v.End()]); err != nil {
			return err
		}
	}

	return nil
}

// Save gathers every variable's raw bytes into a fresh record and writes
// all copies other than numCopyRead first, then numCopyRead last, so a
// crash mid-save leaves at least one previously valid copy readable.
func (b *Backend) Save(inst *state.Instance) error {
	data := make([]byte, b.sizeData)
	for _, v := range inst.Vars {
		copy(data[v.Start:v.End()], v.EncodeRaw())
	}

	h := header{magic: inst.Magic, dataLen: uint16(len(data))}
	h.dataCRC = crc32IEEE(data)
	encoded := h.encode()
	h.headerCRC = headerCRC(encoded)
	encoded = h.encode()

	full := make([]byte, 0, b.sizeFull)
	full = append(full, encoded...)
	full = append(full, data...)
	if b.digest != nil {
		full = append(full, b.digest.Sum(full)...)
	}
	if uint32(len(full)) < b.sizeFull {
		full = append(full, make([]byte, b.sizeFull-uint32(len(full)))...)
	}

	readCopy := b.numCopyRead
	if !b.haveRead {
		readCopy = -1
	}

	for i := 0; i < NumCopies; i++ {
		if i == readCopy {
			continue
		}
		if err := b.saveOne(i, full); err != nil {
			return err
		}
	}
	if readCopy >= 0 {
		if err := b.saveOne(readCopy, full); err != nil {
			return err
		}
	} else {
		if err := b.saveOne(0, full); err != nil {
			return err
		}
	}

	return nil
}

func (b *Backend) saveOne(i int, full []byte) error {
	off := b.offset + int64(i)*b.stride
	geom, err := b.dev.Geometry()
	if err != nil {
		return dterr.Wrap(dterr.BackendUnavailable, err, "probing device geometry")
	}
	if geom.EraseRequired {
		if err := b.dev.Erase(off, b.stride); err != nil {
			return err
		}
	}
	if _, err := b.dev.WriteAt(full, off); err != nil {
		return dterr.Wrap(dterr.IOError, err, "writing copy %d at %d", i, off)
	}
	return nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

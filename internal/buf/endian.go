// Package buf contains endian-safe encode/decode helpers shared by the
// device-tree property codec, the FDT blob codec, and the raw backend's
// header/payload encoding. Device-tree wire data is big-endian; raw backend
// payloads are little-endian (§9 "Endianness" keeps both conversions
// explicit at their respective boundaries).
package buf

import "encoding/binary"

// U16LE reads a little-endian uint16 from b. Returns 0 when b is too short.
func U16LE(b []byte) uint16 {
	if len(b) < 2 {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

// U32LE reads a little-endian uint32 from b. Returns 0 when b is too short.
func U32LE(b []byte) uint32 {
	if len(b) < 4 {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

// U64LE reads a little-endian uint64 from b. Returns 0 when b is too short.
func U64LE(b []byte) uint64 {
	if len(b) < 8 {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

// PutU16LE writes a little-endian uint16 into b[:2].
func PutU16LE(b []byte, v uint16) { binary.LittleEndian.PutUint16(b, v) }

// PutU32LE writes a little-endian uint32 into b[:4].
func PutU32LE(b []byte, v uint32) { binary.LittleEndian.PutUint32(b, v) }

// U32BE reads a big-endian uint32 from b. Returns 0 when b is too short.
func U32BE(b []byte) uint32 {
	if len(b) < 4 {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

// U64BE reads a big-endian uint64 from b. Returns 0 when b is too short.
func U64BE(b []byte) uint64 {
	if len(b) < 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

// PutU32BE writes a big-endian uint32 into b[:4].
func PutU32BE(b []byte, v uint32) { binary.BigEndian.PutUint32(b, v) }

// PutU64BE writes a big-endian uint64 into b[:8].
func PutU64BE(b []byte, v uint64) { binary.BigEndian.PutUint64(b, v) }

// AppendU32BE appends the big-endian encoding of v to b.
func AppendU32BE(b []byte, v uint32) []byte {
	var tmp [4]byte
	PutU32BE(tmp[:], v)
	return append(b, tmp[:]...)
}

// I32LE reads a little-endian int32 from b. Returns 0 when b is too short.
func I32LE(b []byte) int32 {
	if len(b) < 4 {
		return 0
	}
	return int32(binary.LittleEndian.Uint32(b))
}

// AlignUp rounds n up to the next multiple of align (align must be a power
// of two).
func AlignUp(n, align int) int {
	return (n + align - 1) &^ (align - 1)
}

package rawbackend

import (
	"hash/crc32"

	"github.com/dtutils/state/internal/buf"
)

// headerSize is sizeof(struct backend_raw_header): magic(4) + reserved(2) +
// data_len(2) + data_crc(4) + header_crc(4).
const headerSize = 4 + 2 + 2 + 4 + 4

type header struct {
	magic     uint32
	reserved  uint16
	dataLen   uint16
	dataCRC   uint32
	headerCRC uint32
}

func decodeHeader(b []byte) header {
	return header{
		magic:     buf.U32LE(b[0:4]),
		reserved:  buf.U16LE(b[4:6]),
		dataLen:   buf.U16LE(b[6:8]),
		dataCRC:   buf.U32LE(b[8:12]),
		headerCRC: buf.U32LE(b[12:16]),
	}
}

func (h header) encode() []byte {
	b := make([]byte, headerSize)
	buf.PutU32LE(b[0:4], h.magic)
	buf.PutU16LE(b[4:6], h.reserved)
	buf.PutU16LE(b[6:8], h.dataLen)
	buf.PutU32LE(b[8:12], h.dataCRC)
	buf.PutU32LE(b[12:16], h.headerCRC)
	return b
}

// crc32IEEE computes CRC-32 with the IEEE polynomial, reflected, init 0,
// final XOR 0xFFFFFFFF (Go's hash/crc32.ChecksumIEEE already implements
// exactly this convention).
func crc32IEEE(b []byte) uint32 {
	return crc32.ChecksumIEEE(b)
}

// headerCRC computes header_crc: CRC-32 over the header bytes preceding the
// header_crc field itself.
func headerCRC(encoded []byte) uint32 {
	return crc32IEEE(encoded[:headerSize-4])
}

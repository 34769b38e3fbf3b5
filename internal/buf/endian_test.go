package buf

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLittleEndianHelpers(t *testing.T) {
	data := []byte{0x01, 0x23, 0x45, 0x67, 0x89, 0xab, 0xcd, 0xef}

	assert.Equal(t, uint16(0x2301), U16LE(data))
	assert.Equal(t, uint32(0x67452301), U32LE(data))
	assert.Equal(t, uint64(0xefcdab8967452301), U64LE(data))
	assert.Equal(t, int32(0x67452301), I32LE(data))

	short := []byte{0xAA}
	assert.Equal(t, uint16(0), U16LE(short))
	assert.Equal(t, uint32(0), U32LE(short))
	assert.Equal(t, uint64(0), U64LE(short))
	assert.Equal(t, int32(0), I32LE(short))
}

func TestBigEndianHelpers(t *testing.T) {
	var b [8]byte
	PutU32BE(b[:4], 0xdeadbeef)
	assert.Equal(t, uint32(0xdeadbeef), U32BE(b[:4]))

	PutU64BE(b[:], 0x0102030405060708)
	assert.Equal(t, uint64(0x0102030405060708), U64BE(b[:]))

	out := AppendU32BE([]byte{0xff}, 1)
	assert.Equal(t, []byte{0xff, 0, 0, 0, 1}, out)

	assert.Equal(t, uint32(0), U32BE([]byte{1, 2}), "short U32BE should return 0")
}

func TestAlignUp(t *testing.T) {
	cases := []struct{ n, align, want int }{
		{0, 8, 0},
		{1, 8, 8},
		{8, 8, 8},
		{9, 8, 16},
		{4097, 4096, 8192},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, AlignUp(c.n, c.align))
	}
}

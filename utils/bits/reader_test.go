// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package bits

import (
	"math"
	"testing"

	"github.com/cnotch/av1hub/av/codec/codecerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var bitsDatas = [][]byte{
	{0x46, 0x4c, 0x56, 0x01, 0x05, 0x00, 0x00, 0x00, 0x09},
	{
		0x47, 0x40, 0x00, 0x10, 0x00,
		0x00, 0xb0, 0x0d, 0x00, 0x01, 0xc1, 0x00, 0x00,
		0x00, 0x01, 0xf0, 0x01,
		0x2e, 0x70, 0x19, 0x05,
	},
}

func TestBitsReader_ReadBit(t *testing.T) {
	r := NewReader(bitsDatas[0])
	gotRet, err := r.ReadBit()
	require.NoError(t, err)
	assert.Equal(t, uint8(0), gotRet)

	gotRet, _ = r.ReadBit()
	assert.Equal(t, uint8(1), gotRet)

	require.NoError(t, r.Skip(3))
	gotRet, _ = r.ReadBit()
	assert.Equal(t, uint8(1), gotRet)

	gotRet, _ = r.ReadBit()
	assert.Equal(t, uint8(1), gotRet)

	require.NoError(t, r.Skip(5))
	gotRet, _ = r.ReadBit()
	assert.Equal(t, uint8(1), gotRet)

	gotRet, _ = r.ReadBit()
	assert.Equal(t, uint8(1), gotRet)

	gotRet, _ = r.ReadBit()
	assert.Equal(t, uint8(0), gotRet)

	b, err := r.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, byte(0x2b), b)
	assert.Equal(t, uint64(23), r.Offset())
}

func TestBitsReader_Read(t *testing.T) {
	r := NewReader(bitsDatas[1])
	gotRet, err := r.Read(32)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x47400010), gotRet)

	require.NoError(t, r.Skip(4))
	gotRet, _ = r.Read(32)
	assert.Equal(t, uint32(0x000b00d0), gotRet)

	require.NoError(t, r.Skip(8))
	gotRet, _ = r.Read(12)
	assert.Equal(t, uint32(0x1c1), gotRet)
}

func TestBitsReader_ReadUint64(t *testing.T) {
	r := NewReader(bitsDatas[1])
	gotRet, err := r.ReadUint64(36)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x474000100), gotRet)

	gotRet, _ = r.ReadUint64(32)
	assert.Equal(t, uint64(0x000b00d0), gotRet)

	require.NoError(t, r.Skip(8))
	gotRet, _ = r.ReadUint64(12)
	assert.Equal(t, uint64(0x1c1), gotRet)
}

func TestBitsReader_BitByBitEqualsBulk(t *testing.T) {
	for n := 1; n <= 64; n++ {
		for start := uint64(0); start < 9; start++ {
			bulk := NewReader(bitsDatas[1])
			single := NewReader(bitsDatas[1])
			require.NoError(t, bulk.Skip(start))
			require.NoError(t, single.Skip(start))

			want, err := bulk.ReadUint64(n)
			require.NoError(t, err)

			var got uint64
			for i := 0; i < n; i++ {
				b, err := single.ReadBit()
				require.NoError(t, err)
				got = got<<1 | uint64(b)
			}
			assert.Equal(t, want, got, "n=%d start=%d", n, start)
			assert.Equal(t, start+uint64(n), bulk.Offset())
			assert.Equal(t, bulk.Offset(), single.Offset())
		}
	}
}

func TestBitsReader_Peek(t *testing.T) {
	r := NewReader(bitsDatas[0])
	v, err := r.Peek(16)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x464c), v)
	assert.Equal(t, uint64(0), r.Offset())
}

func TestBitsReader_EOF(t *testing.T) {
	r := NewReader([]byte{0xff})
	_, err := r.Read(9)
	assert.True(t, codecerr.Is(err, codecerr.KindUnexpectedEOF))
	assert.Equal(t, uint64(0), r.Offset())

	_, err = r.Read(8)
	require.NoError(t, err)
	_, err = r.ReadBit()
	assert.True(t, codecerr.Is(err, codecerr.KindUnexpectedEOF))
	off, unit, ok := codecerr.OffsetOf(err)
	assert.True(t, ok)
	assert.Equal(t, int64(8), off)
	assert.Equal(t, codecerr.UnitBit, unit)

	empty := NewReader(nil)
	_, err = empty.ReadByte()
	assert.Error(t, err)
	assert.Equal(t, uint64(0), empty.BitsLeft())
	assert.Nil(t, empty.BytesLeft())
}

func TestBitsReader_ContractViolation(t *testing.T) {
	r := NewReader(bitsDatas[1])
	_, err := r.Read(33)
	assert.True(t, codecerr.Is(err, codecerr.KindParse))
	_, err = r.ReadUint64(65)
	assert.True(t, codecerr.Is(err, codecerr.KindParse))
	_, err = r.Read(-1)
	assert.True(t, codecerr.Is(err, codecerr.KindParse))
}

func TestBitsReader_HugeSkip(t *testing.T) {
	r := NewReader(bitsDatas[0])
	require.NoError(t, r.Skip(3))
	err := r.Skip(math.MaxUint64)
	assert.True(t, codecerr.Is(err, codecerr.KindUnexpectedEOF))
	assert.Equal(t, uint64(0), r.BitsLeft())
	assert.Equal(t, uint64(len(bitsDatas[0])*8), r.Offset())
}

func TestBitsReader_ByteAlign(t *testing.T) {
	r := NewReader(bitsDatas[0])
	r.ByteAlign()
	assert.Equal(t, uint64(0), r.Offset())
	_, _ = r.ReadBit()
	assert.False(t, r.IsByteAligned())
	r.ByteAlign()
	assert.Equal(t, uint64(8), r.Offset())
	assert.Equal(t, bitsDatas[0][1:], r.BytesLeft())
}

func TestBitsReader_Descriptors(t *testing.T) {
	// uvlc: 001 01 => leadingZeros=2, value=1 => 1+3 = 4
	r := NewReader([]byte{0x28})
	v, err := r.ReadUvlc()
	require.NoError(t, err)
	assert.Equal(t, uint32(4), v)

	// su(7): 1111111 => -1
	r = NewReader([]byte{0xfe})
	s, err := r.ReadSu(7)
	require.NoError(t, err)
	assert.Equal(t, int32(-1), s)

	// ns(5): w=3, m=3; v=2 bits
	r = NewReader([]byte{0x40}) // 01 => 1 < 3
	ns, err := r.ReadNs(5)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), ns)
	r = NewReader([]byte{0xe0}) // 11 1 => (3<<1)-3+1 = 4
	ns, err = r.ReadNs(5)
	require.NoError(t, err)
	assert.Equal(t, uint32(4), ns)

	r = NewReader([]byte{0x34, 0x12})
	le, err := r.ReadLe(2)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x1234), le)
}

func TestLSBReader(t *testing.T) {
	r := NewLSBReader([]byte{0x46, 0x4c})
	b, err := r.ReadBit()
	require.NoError(t, err)
	assert.Equal(t, uint8(0), b)
	b, _ = r.ReadBit()
	assert.Equal(t, uint8(1), b)

	v, err := r.Read(6) // remaining bits of 0x46 from bit 2 upward: 0x46>>2 = 0x11
	require.NoError(t, err)
	assert.Equal(t, uint32(0x11), v)

	p, err := r.Peek(8)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x4c), p)
	by, err := r.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, byte(0x4c), by)

	_, err = r.ReadBit()
	assert.True(t, codecerr.Is(err, codecerr.KindUnexpectedEOF))
	_, err = r.Read(40)
	assert.True(t, codecerr.Is(err, codecerr.KindParse))
	assert.True(t, codecerr.Is(r.Skip(1), codecerr.KindUnexpectedEOF))
}

func BenchmarkReadBit(b *testing.B) {
	r := NewReader(bitsDatas[1])
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r.offset = 2
		ret, _ := r.ReadBit()
		_ = ret
	}
}

func BenchmarkRead(b *testing.B) {
	r := NewReader(bitsDatas[1])
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r.offset = 2
		ret, _ := r.Read(29)
		_ = ret
	}
}

func BenchmarkReadUint64(b *testing.B) {
	r := NewReader(bitsDatas[1])
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r.offset = 2
		ret, _ := r.ReadUint64(61)
		_ = ret
	}
}

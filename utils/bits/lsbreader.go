// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package bits

import (
	"github.com/cnotch/av1hub/av/codec/codecerr"
)

// LSBReader LSB 优先的位读取器，用于旧式未压缩头格式。
// 多位取值中先读出的位是低位。
type LSBReader struct {
	buf    []byte
	offset uint64
}

// NewLSBReader retruns a new LSBReader.
func NewLSBReader(buf []byte) *LSBReader {
	return &LSBReader{buf: buf}
}

// ReadBit read a bit.
func (r *LSBReader) ReadBit() (uint8, error) {
	if r.offset >= uint64(len(r.buf))<<3 {
		return 0, codecerr.EOF(int64(r.offset), codecerr.UnitBit)
	}
	tmp := (r.buf[r.offset>>3] >> (r.offset & 0x7)) & 1
	r.offset++
	return tmp, nil
}

// Read read the uint32 of n bits.
func (r *LSBReader) Read(n int) (uint32, error) {
	v, err := r.readUint64(n, 32)
	return uint32(v), err
}

// ReadUint64 read the uint64 of n bits.
func (r *LSBReader) ReadUint64(n int) (uint64, error) { return r.readUint64(n, 64) }

// ReadByte read 8 bits.
func (r *LSBReader) ReadByte() (byte, error) {
	v, err := r.readUint64(8, 8)
	return byte(v), err
}

// Peek peek the uint64 of n bits.
func (r *LSBReader) Peek(n int) (uint64, error) {
	clone := *r
	return clone.readUint64(n, 64)
}

// Skip skip n bits.
func (r *LSBReader) Skip(n uint64) error {
	left := r.BitsLeft()
	if n > left {
		at := r.offset
		r.offset += left
		return codecerr.EOFf(int64(at), codecerr.UnitBit, "skip %d bits, %d left", n, left)
	}
	r.offset += n
	return nil
}

// ByteAlign 跳到下一个字节边界
func (r *LSBReader) ByteAlign() {
	if rem := r.offset & 0x7; rem != 0 {
		r.offset += 8 - rem
	}
}

// Offset returns the offset of bits.
func (r *LSBReader) Offset() uint64 { return r.offset }

// BitsLeft returns the number of left bits.
func (r *LSBReader) BitsLeft() uint64 {
	total := uint64(len(r.buf)) << 3
	if r.offset >= total {
		return 0
	}
	return total - r.offset
}

func (r *LSBReader) readUint64(n, max int) (uint64, error) {
	if n < 0 || n > max {
		return 0, codecerr.Parse(int64(r.offset), "read %d bits, limit is %d", n, max)
	}
	if uint64(n) > r.BitsLeft() {
		return 0, codecerr.EOFf(int64(r.offset), codecerr.UnitBit, "read %d bits, %d left", n, r.BitsLeft())
	}

	var tmp uint64
	for i := 0; i < n; i++ {
		bit := (r.buf[r.offset>>3] >> (r.offset & 0x7)) & 1
		tmp |= uint64(bit) << uint(i)
		r.offset++
	}
	return tmp, nil
}

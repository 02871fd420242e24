// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package bits 提供基于不可变字节缓冲区的位读取器。
// 所有读取在越过缓冲区末尾时返回 UnexpectedEOF 错误，不会 panic。
package bits

import (
	"github.com/cnotch/av1hub/av/codec/codecerr"
)

// Reader MSB 优先的位读取器，几乎所有编解码语法都使用它。
type Reader struct {
	buf    []byte
	offset uint64 // bit base
}

// NewReader retruns a new Reader.
func NewReader(buf []byte) *Reader {
	return &Reader{
		buf: buf,
	}
}

// Skip skip n bits.
// 越界时读取位置停在缓冲区末尾并返回 UnexpectedEOF。
func (r *Reader) Skip(n uint64) error {
	left := r.BitsLeft()
	if n > left {
		at := r.offset
		r.offset += left
		return codecerr.EOFf(int64(at), codecerr.UnitBit, "skip %d bits, %d left", n, left)
	}
	r.offset += n
	return nil
}

// Peek peek the uint64 of n bits.
func (r *Reader) Peek(n int) (uint64, error) {
	clone := *r
	return clone.readUint64(n, 64)
}

// Read read the uint32 of n bits.
func (r *Reader) Read(n int) (uint32, error) {
	v, err := r.readUint64(n, 32)
	return uint32(v), err
}

// ReadBit read a bit.
func (r *Reader) ReadBit() (uint8, error) {
	if r.offset >= r.bitLen() {
		return 0, codecerr.EOF(int64(r.offset), codecerr.UnitBit)
	}

	tmp := (r.buf[r.offset>>3] >> (7 - r.offset&0x7)) & 1
	r.offset++
	return tmp, nil
}

// ReadByte read 8 bits.
func (r *Reader) ReadByte() (byte, error) {
	v, err := r.readUint64(8, 8)
	return byte(v), err
}

// ReadBool read one bit bool.
func (r *Reader) ReadBool() (bool, error) {
	b, err := r.ReadBit()
	return b == 1, err
}

// ReadUint64 read the uint64 of n bits.
func (r *Reader) ReadUint64(n int) (uint64, error) { return r.readUint64(n, 64) }

// ByteAlign 跳到下一个字节边界
func (r *Reader) ByteAlign() {
	if rem := r.offset & 0x7; rem != 0 {
		r.offset += 8 - rem
	}
}

// IsByteAligned 当前位置是否字节对齐
func (r *Reader) IsByteAligned() bool {
	return r.offset&0x7 == 0
}

// Offset returns the offset of bits.
func (r *Reader) Offset() uint64 {
	return r.offset
}

// BitsLeft returns the number of left bits.
func (r *Reader) BitsLeft() uint64 {
	if r.offset >= r.bitLen() {
		return 0
	}
	return r.bitLen() - r.offset
}

// BytesLeft returns the left byte slice.
func (r *Reader) BytesLeft() []byte {
	idx := (r.offset + 7) >> 3
	if idx >= uint64(len(r.buf)) {
		return nil
	}
	return r.buf[idx:]
}

func (r *Reader) bitLen() uint64 {
	return uint64(len(r.buf)) << 3
}

var bitsMask = [9]byte{
	0x00,
	0x01, 0x03, 0x07, 0x0f,
	0x1f, 0x3f, 0x7f, 0xff,
}

// readUint64 read the uint64 of n bits.
func (r *Reader) readUint64(n, max int) (uint64, error) {
	if n < 0 || n > max {
		return 0, codecerr.Parse(int64(r.offset), "read %d bits, limit is %d", n, max)
	}
	if n == 0 {
		return 0, nil
	}
	if uint64(n) > r.BitsLeft() {
		return 0, codecerr.EOFf(int64(r.offset), codecerr.UnitBit, "read %d bits, %d left", n, r.BitsLeft())
	}

	idx := r.offset >> 3
	validBits := 8 - int(r.offset&0x7)
	r.offset += uint64(n)

	var tmp uint64
	for n >= validBits {
		n -= validBits
		tmp |= uint64(r.buf[idx]&bitsMask[validBits]) << uint(n)
		idx++
		validBits = 8
	}

	if n > 0 {
		tmp |= uint64((r.buf[idx] >> uint(validBits-n)) & bitsMask[n])
	}
	return tmp, nil
}

// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package bits

import (
	"github.com/cnotch/av1hub/av/codec/codecerr"
)

// ==== AV1 descriptor methods

// ReadUvlc 读取 uvlc() 变长码
func (r *Reader) ReadUvlc() (uint32, error) {
	leadingZeros := 0
	for {
		done, err := r.ReadBool()
		if err != nil {
			return 0, err
		}
		if done {
			break
		}
		leadingZeros++
	}

	if leadingZeros >= 32 {
		return 1<<32 - 1, nil
	}

	value, err := r.Read(leadingZeros)
	if err != nil {
		return 0, err
	}
	return value + (1<<uint(leadingZeros) - 1), nil
}

// ReadSu 读取 su(n) 有符号整数
func (r *Reader) ReadSu(n int) (int32, error) {
	v, err := r.Read(n)
	if err != nil {
		return 0, err
	}
	signMask := uint32(1) << uint(n-1)
	if v&signMask != 0 {
		return int32(v) - int32(2*signMask), nil
	}
	return int32(v), nil
}

// ReadNs 读取 ns(n) 非对称无符号编码
func (r *Reader) ReadNs(n uint32) (uint32, error) {
	if n == 0 {
		return 0, codecerr.Parse(int64(r.offset), "ns(0)")
	}
	w := floorLog2(n) + 1
	m := (uint32(1) << uint(w)) - n
	v, err := r.Read(w - 1)
	if err != nil {
		return 0, err
	}
	if v < m {
		return v, nil
	}
	extra, err := r.ReadBit()
	if err != nil {
		return 0, err
	}
	return (v << 1) - m + uint32(extra), nil
}

// ReadLe 读取 le(n) 小端 n 字节整数
func (r *Reader) ReadLe(n int) (uint64, error) {
	if n < 0 || n > 8 {
		return 0, codecerr.Parse(int64(r.offset), "le(%d)", n)
	}
	var t uint64
	for i := 0; i < n; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		t |= uint64(b) << uint(i*8)
	}
	return t, nil
}

func floorLog2(x uint32) int {
	s := 0
	for x > 1 {
		x >>= 1
		s++
	}
	return s
}

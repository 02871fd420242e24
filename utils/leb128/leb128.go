// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package leb128 实现 AV1 使用的无符号 LEB128 变长整数编解码。
// 每字节低 7 位为数据，最高位为延续标志，低位组在前。
package leb128

import (
	"github.com/cnotch/av1hub/av/codec/codecerr"
)

// MaxBytes AV1 限定的 leb128 最大编码字节数
const MaxBytes = 8

// MaxValue 在 MaxBytes 字节内可表示的最大值
const MaxValue = 1<<(7*MaxBytes) - 1

// Decode 从 buf 头部解码一个 leb128 值，返回值和消耗的字节数。
// 缓冲区在终止字节前耗尽，或编码超过 MaxBytes 字节时返回错误。
func Decode(buf []byte) (value uint64, n int, err error) {
	for i := 0; i < MaxBytes; i++ {
		if i >= len(buf) {
			return 0, 0, codecerr.EOFf(int64(i), codecerr.UnitByte, "leb128 truncated after %d bytes", i)
		}

		b := buf[i]
		value |= uint64(b&0x7f) << uint(i*7)
		if b&0x80 == 0 {
			return value, i + 1, nil
		}
	}
	return 0, 0, codecerr.Decode("leb128 longer than %d bytes", MaxBytes)
}

// DecodeUint32 解码并校验值不超过 32 位
func DecodeUint32(buf []byte) (uint32, int, error) {
	v, n, err := Decode(buf)
	if err != nil {
		return 0, 0, err
	}
	if v > 1<<32-1 {
		return 0, 0, codecerr.Decode("leb128 value %d overflows uint32", v)
	}
	return uint32(v), n, nil
}

// Size 返回 v 的编码长度
func Size(v uint64) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}

// Append 把 v 的编码追加到 dst。
// v 超过 MaxValue 时仍按标准 LEB128 编码，但 Decode 将拒绝它。
func Append(dst []byte, v uint64) []byte {
	for v >= 0x80 {
		dst = append(dst, byte(v)|0x80)
		v >>= 7
	}
	return append(dst, byte(v))
}

// Encode 返回 v 的编码
func Encode(v uint64) []byte {
	return Append(make([]byte, 0, Size(v)), v)
}

// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package av1

import (
	"strconv"

	"github.com/cnotch/av1hub/av/syntax"
	"github.com/cnotch/av1hub/utils/bits"
	"github.com/pkg/errors"
)

// fieldReader 读取语法元素并把实际读到的位区间记录到语法树。
// 采用粘滞错误：首个错误之后的读取都是空操作，调用者在结构边界检查 err。
type fieldReader struct {
	r    *bits.Reader
	tree *syntax.Builder
	base uint64 // 载荷在码流中的起始位
	err  error
}

func newFieldReader(payload []byte, tree *syntax.Builder, base uint64) *fieldReader {
	return &fieldReader{
		r:    bits.NewReader(payload),
		tree: tree,
		base: base,
	}
}

// pos 当前绝对位位置
func (fr *fieldReader) pos() uint64 {
	return fr.base + fr.r.Offset()
}

func (fr *fieldReader) fail(name string, err error) {
	if fr.err == nil {
		fr.err = errors.Wrap(err, name)
	}
}

func (fr *fieldReader) record(name string, start uint64, value string) {
	fr.tree.AddField(name, syntax.BitRange{Start: start, End: fr.pos()}, value)
}

// f 读取 n 位无符号整数，按十进制记录
func (fr *fieldReader) f(name string, n int) uint32 {
	return fr.fs(name, n, nil)
}

// fs 读取 n 位无符号整数，用 format 生成显示值
func (fr *fieldReader) fs(name string, n int, format func(uint32) string) uint32 {
	if fr.err != nil {
		return 0
	}
	start := fr.pos()
	v, err := fr.r.Read(n)
	if err != nil {
		fr.fail(name, err)
		return 0
	}
	if format != nil {
		fr.record(name, start, format(v))
	} else {
		fr.record(name, start, strconv.FormatUint(uint64(v), 10))
	}
	return v
}

// flag 读取 1 位标志
func (fr *fieldReader) flag(name string) bool {
	return fr.f(name, 1) == 1
}

// su 读取 su(n)
func (fr *fieldReader) su(name string, n int) int32 {
	if fr.err != nil {
		return 0
	}
	start := fr.pos()
	v, err := fr.r.ReadSu(n)
	if err != nil {
		fr.fail(name, err)
		return 0
	}
	fr.record(name, start, strconv.FormatInt(int64(v), 10))
	return v
}

// ns 读取 ns(n)
func (fr *fieldReader) ns(name string, n uint32) uint32 {
	if fr.err != nil {
		return 0
	}
	start := fr.pos()
	v, err := fr.r.ReadNs(n)
	if err != nil {
		fr.fail(name, err)
		return 0
	}
	fr.record(name, start, strconv.FormatUint(uint64(v), 10))
	return v
}

// uvlc 读取 uvlc()
func (fr *fieldReader) uvlc(name string) uint32 {
	if fr.err != nil {
		return 0
	}
	start := fr.pos()
	v, err := fr.r.ReadUvlc()
	if err != nil {
		fr.fail(name, err)
		return 0
	}
	fr.record(name, start, strconv.FormatUint(uint64(v), 10))
	return v
}

// raw 不记录地读取 n 位，供不对应语法元素的位（如 subexp 前缀）使用
func (fr *fieldReader) raw(n int) uint32 {
	if fr.err != nil {
		return 0
	}
	v, err := fr.r.Read(n)
	if err != nil {
		fr.fail("bits", err)
		return 0
	}
	return v
}

func (fr *fieldReader) push(name string) {
	if fr.err == nil {
		fr.tree.PushContainer(name, fr.pos())
	}
}

func (fr *fieldReader) pop() {
	fr.popAt(fr.pos())
}

// popAt 在 end 处结束当前容器，end 之后读取的位不归属该容器
func (fr *fieldReader) popAt(end uint64) {
	if fr.err == nil {
		if err := fr.tree.PopContainer(end); err != nil {
			fr.err = err
		}
	}
}

// byteAlign 跳过 byte_alignment() 的零位
func (fr *fieldReader) byteAlign() {
	if fr.err == nil {
		fr.r.ByteAlign()
	}
}

func flagString(v uint32) string {
	if v != 0 {
		return "1"
	}
	return "0"
}

func enumString(name string, v uint32) string {
	return name + " (" + strconv.FormatUint(uint64(v), 10) + ")"
}

// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package entropy

import (
	"github.com/cnotch/av1hub/utils/bits"
)

const (
	probTop     = 1 << 15 // CDF 总和
	probShift   = 6       // EC_PROB_SHIFT
	minProb     = 4       // EC_MIN_PROB
	windowBits  = 15
	maxCdfCount = 32
)

// rangeDecoder 二进制自适应区间解码器。
// value/rng 只能由 Symbol Decoder 操作；读过 tile 末尾后以 0 填充。
type rangeDecoder struct {
	r       *bits.Reader
	value   int
	rng     int
	maxBits int // 剩余可读数据位，负值表示已填充的位数
	size    int
}

func (d *rangeDecoder) init(data []byte) {
	d.r = bits.NewReader(data)
	d.size = len(data)
	numBits := minInt(len(data)*8, windowBits)
	buf := d.read(numBits)
	padded := buf << uint(windowBits-numBits)
	d.value = ((1 << windowBits) - 1) ^ padded
	d.rng = 1 << windowBits
	d.maxBits = 8*len(data) - windowBits
}

func (d *rangeDecoder) read(n int) int {
	if n <= 0 {
		return 0
	}
	v, err := d.r.Read(n)
	if err != nil {
		return 0
	}
	return int(v)
}

// decode 按 cdf 解出一个符号；cdf 为 N 个递增项，最后一项为 32768
func (d *rangeDecoder) decode(cdf []uint16, n int) int {
	cur := d.rng
	prev := cur
	symbol := -1
	for {
		symbol++
		prev = cur
		f := probTop - int(cdf[symbol])
		if f < 0 {
			f = 0
		}
		cur = ((d.rng >> 8) * (f >> probShift) >> (7 - probShift)) + minProb*(n-symbol-1)
		if d.value >= cur || symbol >= n-1 {
			break
		}
	}
	if d.value < cur {
		// 仅在 cdf 被破坏时发生：归入最后一个符号
		cur = 0
	}
	d.rng = prev - cur
	d.value -= cur
	if d.rng <= 0 {
		d.rng = 1
	}
	d.renormalize()
	return symbol
}

func (d *rangeDecoder) renormalize() {
	bits := windowBits - floorLog2(uint32(d.rng))
	d.rng <<= uint(bits)
	numBits := minInt(bits, maxInt(0, d.maxBits))
	newData := d.read(numBits)
	padded := newData << uint(bits-numBits)
	d.value = padded ^ (((d.value + 1) << uint(bits)) - 1)
	d.maxBits -= bits
}

// position 已从 tile 数据消费的位数
func (d *rangeDecoder) position() int {
	consumed := 8*d.size - d.maxBits
	if consumed > 8*d.size {
		return 8 * d.size
	}
	if consumed < 0 {
		return 0
	}
	return consumed
}

// padded 读过末尾后注入的 0 位数
func (d *rangeDecoder) padded() int {
	if d.maxBits >= 0 {
		return 0
	}
	return -d.maxBits
}

func floorLog2(x uint32) int {
	s := -1
	for x != 0 {
		x >>= 1
		s++
	}
	return s
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

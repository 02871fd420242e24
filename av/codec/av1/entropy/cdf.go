// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package entropy

// 各类符号的取值个数
const (
	PartitionSymbolsW8   = 4
	PartitionSymbols     = 10
	PartitionSymbolsW128 = 8
	IntraModes           = 13
	InterModes           = 4
	RefFrameSymbols      = 7
	MVJoints             = 4
	MVClasses            = 12
	MVClass0Bits         = 1
	MVMaxBits            = MVClasses - 2 // class 11 的附加位数
	DeltaQSmall          = 3
	DeltaQAbsSymbols     = DeltaQSmall + 2
	DeltaQRemBits        = 6
)

// CdfContext 每类符号一张累积分布表。
// 每张表 N 项递增，最后一项为 32768；第 N+1 项是自适应计数器。
// 值类型：复制即得到独立副本，每个 tile 解码使用自己的副本。
type CdfContext struct {
	PartitionW8   [PartitionSymbolsW8 + 1]uint16
	PartitionW16  [PartitionSymbols + 1]uint16
	PartitionW32  [PartitionSymbols + 1]uint16
	PartitionW64  [PartitionSymbols + 1]uint16
	PartitionW128 [PartitionSymbolsW128 + 1]uint16

	Skip      [2 + 1]uint16
	IntraMode [IntraModes + 1]uint16
	InterMode [InterModes + 1]uint16
	IsInter   [2 + 1]uint16
	RefFrame  [RefFrameSymbols + 1]uint16
	Compound  [2 + 1]uint16

	MVJoint   [MVJoints + 1]uint16
	MVClass   [2][MVClasses + 1]uint16
	MVBits    [2][MVMaxBits][2 + 1]uint16
	MVSign    [2][2 + 1]uint16
	MVHalf    [2][2 + 1]uint16
	MVQuarter [2][2 + 1]uint16

	DeltaQAbs  [DeltaQAbsSymbols + 1]uint16
	DeltaQSign [2 + 1]uint16
}

// 默认表取自 AV1 上下文 0 的初始概率
var defaultCdfs = func() CdfContext {
	c := CdfContext{
		PartitionW8:   [...]uint16{19132, 25510, 30392, 32768, 0},
		PartitionW16:  [...]uint16{15597, 20929, 24571, 26706, 27664, 28821, 29601, 30571, 31902, 32768, 0},
		PartitionW32:  [...]uint16{15488, 18717, 21586, 24005, 25220, 26452, 27612, 28735, 30890, 32768, 0},
		PartitionW64:  [...]uint16{15117, 16993, 20159, 22245, 23328, 24382, 25366, 26314, 28999, 32768, 0},
		PartitionW128: [...]uint16{27899, 28219, 28529, 32484, 32539, 32619, 32639, 32768, 0},

		Skip:      [...]uint16{31671, 32768, 0},
		IntraMode: [...]uint16{15588, 17027, 19338, 20218, 20682, 21110, 21825, 23244, 24189, 28165, 29093, 30466, 32768, 0},
		InterMode: [...]uint16{8192, 17408, 21504, 32768, 0},
		IsInter:   [...]uint16{806, 32768, 0},
		RefFrame:  [...]uint16{14336, 18432, 21504, 25600, 27648, 29696, 32768, 0},
		Compound:  [...]uint16{26828, 32768, 0},

		MVJoint:    [...]uint16{4096, 11264, 19328, 32768, 0},
		DeltaQAbs:  [...]uint16{28160, 32120, 32677, 32740, 32768, 0},
		DeltaQSign: [...]uint16{16384, 32768, 0},
	}
	mvBits := [MVMaxBits]uint16{17408, 17920, 19072, 19968, 20992, 21888, 22528, 22912, 23936, 24832}
	for comp := 0; comp < 2; comp++ {
		c.MVClass[comp] = [...]uint16{28672, 30976, 31858, 32320, 32551, 32656, 32740, 32757, 32762, 32765, 32766, 32768, 0}
		for i := range c.MVBits[comp] {
			c.MVBits[comp][i] = [...]uint16{mvBits[i], 32768, 0}
		}
		c.MVSign[comp] = [...]uint16{16384, 32768, 0}
		c.MVHalf[comp] = [...]uint16{20480, 32768, 0}
		c.MVQuarter[comp] = [...]uint16{16384, 32768, 0}
	}
	return c
}()

// NewCdfContext 返回默认表的独立副本
func NewCdfContext() *CdfContext {
	c := defaultCdfs
	return &c
}

// Reset 恢复默认表
func (c *CdfContext) Reset() {
	*c = defaultCdfs
}

// Clone 复制，用于显式的跨 tile 继承
func (c *CdfContext) Clone() *CdfContext {
	cp := *c
	return &cp
}

// PartitionCdf 按块尺寸 log2（3..7）选择 partition 表，返回表和符号数
func (c *CdfContext) PartitionCdf(bsl int) ([]uint16, int) {
	switch bsl {
	case 3:
		return c.PartitionW8[:], PartitionSymbolsW8
	case 4:
		return c.PartitionW16[:], PartitionSymbols
	case 5:
		return c.PartitionW32[:], PartitionSymbols
	case 6:
		return c.PartitionW64[:], PartitionSymbols
	case 7:
		return c.PartitionW128[:], PartitionSymbolsW128
	}
	return nil, 0
}

// adapt 朝观测到的符号做指数衰减式更新
func adapt(cdf []uint16, symbol, n int) {
	count := int(cdf[n])
	rate := 3 + boolInt(count > 15) + boolInt(count > 31) + minInt(floorLog2(uint32(n)), 2)
	tmp := 0
	for i := 0; i < n-1; i++ {
		if i == symbol {
			tmp = probTop
		}
		v := int(cdf[i])
		if tmp < v {
			v -= (v - tmp) >> uint(rate)
		} else {
			v += (tmp - v) >> uint(rate)
		}
		// 保持每个符号区间非空
		lo := 1 + i
		hi := probTop - (n - 1 - i)
		if v < lo {
			v = lo
		} else if v > hi {
			v = hi
		}
		if i > 0 && v <= int(cdf[i-1]) {
			v = int(cdf[i-1]) + 1
		}
		cdf[i] = uint16(v)
	}
	if count < maxCdfCount {
		cdf[n]++
	}
}

// valid 检查表是否严格递增且落在 (0, 32768]
func valid(cdf []uint16, n int) bool {
	prev := 0
	for i := 0; i < n; i++ {
		v := int(cdf[i])
		if v <= prev || v > probTop {
			return false
		}
		prev = v
	}
	return int(cdf[n-1]) == probTop
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

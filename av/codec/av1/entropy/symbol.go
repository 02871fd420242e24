// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package entropy 实现 AV1 的自适应算术解码和按语法元素类型的符号读取。
//
// 解码严格顺序且有状态：每次读取都会消费 tile 数据并修改区间寄存器和 CDF 表，
// 调用顺序必须与码流语法一致。一个 SymbolDecoder 只能被一个 tile 解码独占使用。
package entropy

import "fmt"

// PartitionType 分区类型
type PartitionType uint8

// 分区类型常量
const (
	PartitionNone PartitionType = iota
	PartitionHorz
	PartitionVert
	PartitionSplit
	PartitionHorzA
	PartitionHorzB
	PartitionVertA
	PartitionVertB
	PartitionHorz4
	PartitionVert4
)

var partitionNames = [...]string{
	"PARTITION_NONE", "PARTITION_HORZ", "PARTITION_VERT", "PARTITION_SPLIT",
	"PARTITION_HORZ_A", "PARTITION_HORZ_B", "PARTITION_VERT_A", "PARTITION_VERT_B",
	"PARTITION_HORZ_4", "PARTITION_VERT_4",
}

func (p PartitionType) String() string {
	if int(p) < len(partitionNames) {
		return partitionNames[p]
	}
	return fmt.Sprintf("PARTITION_%d", uint8(p))
}

// MarshalText marshals the PartitionType to text.
func (p PartitionType) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// 帧间模式
const (
	NearestMV uint8 = 0
	NearMV    uint8 = 1
	GlobalMV  uint8 = 2
	NewMV     uint8 = 3
)

// MVJoint 运动矢量分量组合
type MVJoint uint8

// MVJoint 常量
const (
	MVJointZero   MVJoint = 0 // 两个分量都为 0
	MVJointHnzvz  MVJoint = 1 // 仅水平分量非 0
	MVJointHzvnz  MVJoint = 2 // 仅垂直分量非 0
	MVJointHnzvnz MVJoint = 3
)

// HasRow 垂直分量是否编码
func (j MVJoint) HasRow() bool { return j == MVJointHzvnz || j == MVJointHnzvnz }

// HasCol 水平分量是否编码
func (j MVJoint) HasCol() bool { return j == MVJointHnzvz || j == MVJointHnzvnz }

// MotionVector 运动矢量，1/4 像素单位
type MotionVector struct {
	Row int32 `json:"row"`
	Col int32 `json:"col"`
}

// Add 分量相加
func (mv MotionVector) Add(o MotionVector) MotionVector {
	return MotionVector{Row: mv.Row + o.Row, Col: mv.Col + o.Col}
}

// IsZero 是否零矢量
func (mv MotionVector) IsZero() bool {
	return mv.Row == 0 && mv.Col == 0
}

// SymbolDecoder 组合区间解码器与 CDF 表的类型化读取
type SymbolDecoder struct {
	rd            rangeDecoder
	cdfs          *CdfContext
	disableUpdate bool
}

// NewSymbolDecoder 在 tile 数据上创建解码器。
// cdfs 为 nil 时使用默认表的新副本；disableUpdate 对应 disable_cdf_update。
func NewSymbolDecoder(data []byte, cdfs *CdfContext, disableUpdate bool) *SymbolDecoder {
	if cdfs == nil {
		cdfs = NewCdfContext()
	}
	d := &SymbolDecoder{cdfs: cdfs, disableUpdate: disableUpdate}
	d.rd.init(data)
	return d
}

// Cdfs 当前使用的 CDF 表
func (d *SymbolDecoder) Cdfs() *CdfContext {
	return d.cdfs
}

// Position 已消费的 tile 数据位数
func (d *SymbolDecoder) Position() int {
	return d.rd.position()
}

// PaddedBits 读过 tile 末尾后以 0 填充的位数
func (d *SymbolDecoder) PaddedBits() int {
	return d.rd.padded()
}

// ReadSymbol 用 cdf 的前 n 项解一个符号，并在允许时自适应更新 cdf。
// cdf 必须至少有 n+1 项。
func (d *SymbolDecoder) ReadSymbol(cdf []uint16, n int) int {
	symbol := d.rd.decode(cdf, n)
	if !d.disableUpdate {
		adapt(cdf, symbol, n)
	}
	return symbol
}

// ReadBool 以固定的 1/2 概率读取 1 位，不做自适应
func (d *SymbolDecoder) ReadBool() bool {
	cdf := [...]uint16{1 << 14, 1 << 15, 0}
	return d.rd.decode(cdf[:], 2) == 1
}

// ReadLiteral 读取 n 位无符号数，高位在前
func (d *SymbolDecoder) ReadLiteral(n int) uint32 {
	var x uint32
	for i := 0; i < n; i++ {
		x <<= 1
		if d.ReadBool() {
			x |= 1
		}
	}
	return x
}

// ReadPartition 读取分区类型。
// hasRows/hasCols 表示块的下半/右半是否在帧内；缺失一半时只读取一个二元选择。
func (d *SymbolDecoder) ReadPartition(bsl int, hasRows, hasCols bool) PartitionType {
	cdf, n := d.cdfs.PartitionCdf(bsl)
	if cdf == nil {
		return PartitionNone
	}
	switch {
	case hasRows && hasCols:
		return PartitionType(d.ReadSymbol(cdf, n))
	case hasCols:
		// split_or_horz
		psum := partitionProbs(cdf, n, bsl, PartitionVert, PartitionSplit,
			PartitionHorzA, PartitionVertA, PartitionVertB, PartitionVert4)
		if d.readBoolProb(psum) {
			return PartitionSplit
		}
		return PartitionHorz
	case hasRows:
		// split_or_vert
		psum := partitionProbs(cdf, n, bsl, PartitionHorz, PartitionSplit,
			PartitionHorzA, PartitionHorzB, PartitionVertA, PartitionHorz4)
		if d.readBoolProb(psum) {
			return PartitionSplit
		}
		return PartitionVert
	default:
		return PartitionSplit
	}
}

// partitionProbs 累加给定分区类型的概率，128x128 没有 4 分
func partitionProbs(cdf []uint16, n, bsl int, types ...PartitionType) int {
	psum := 0
	for _, t := range types {
		k := int(t)
		if k >= n || (bsl == 7 && (t == PartitionHorz4 || t == PartitionVert4)) {
			continue
		}
		lo := 0
		if k > 0 {
			lo = int(cdf[k-1])
		}
		psum += int(cdf[k]) - lo
	}
	return psum
}

// readBoolProb 以 1 的概率 psum/32768 读取一个二元符号，不自适应
func (d *SymbolDecoder) readBoolProb(psum int) bool {
	if psum < 1 {
		psum = 1
	} else if psum > probTop-1 {
		psum = probTop - 1
	}
	cdf := [...]uint16{uint16(probTop - psum), probTop, 0}
	return d.rd.decode(cdf[:], 2) == 1
}

// ReadSkip 读取 skip
func (d *SymbolDecoder) ReadSkip() bool {
	return d.ReadSymbol(d.cdfs.Skip[:], 2) == 1
}

// ReadIntraMode 读取帧内预测模式 0..12
func (d *SymbolDecoder) ReadIntraMode() uint8 {
	return uint8(d.ReadSymbol(d.cdfs.IntraMode[:], IntraModes))
}

// ReadInterMode 读取帧间模式 0..3（NEAREST/NEAR/GLOBAL/NEW）
func (d *SymbolDecoder) ReadInterMode() uint8 {
	return uint8(d.ReadSymbol(d.cdfs.InterMode[:], InterModes))
}

// ReadIsInter 读取 is_inter
func (d *SymbolDecoder) ReadIsInter() bool {
	return d.ReadSymbol(d.cdfs.IsInter[:], 2) == 1
}

// ReadRefFrame 读取参考帧 1..7（LAST..ALTREF）
func (d *SymbolDecoder) ReadRefFrame() uint8 {
	return uint8(d.ReadSymbol(d.cdfs.RefFrame[:], RefFrameSymbols)) + 1
}

// ReadCompound 是否使用双参考预测
func (d *SymbolDecoder) ReadCompound() bool {
	return d.ReadSymbol(d.cdfs.Compound[:], 2) == 1
}

// ReadMVJoint 读取运动矢量分量组合
func (d *SymbolDecoder) ReadMVJoint() MVJoint {
	return MVJoint(d.ReadSymbol(d.cdfs.MVJoint[:], MVJoints))
}

// ReadMVComponent 读取一个运动矢量分量（comp 0 为垂直，1 为水平），1/4 像素单位。
// class 0 表示整数部分为 0；class c>=1 的基值为 1<<(c-1)，c>1 时再读 c-1 个附加位。
// 仅在整数部分非 0 时读取符号，随后总是读取半像素和 1/4 像素两位。
func (d *SymbolDecoder) ReadMVComponent(comp int) int32 {
	comp &= 1
	class := d.ReadSymbol(d.cdfs.MVClass[comp][:], MVClasses)
	var mag int32
	if class > 0 {
		mag = 1 << uint(class-1)
		var extra int32
		for i := 0; i < class-1; i++ {
			extra <<= 1
			if d.ReadSymbol(d.cdfs.MVBits[comp][i][:], 2) == 1 {
				extra |= 1
			}
		}
		mag += extra
	}
	negative := false
	if mag > 0 {
		negative = d.ReadSymbol(d.cdfs.MVSign[comp][:], 2) == 1
	}
	half := int32(d.ReadSymbol(d.cdfs.MVHalf[comp][:], 2))
	quarter := int32(d.ReadSymbol(d.cdfs.MVQuarter[comp][:], 2))
	v := mag*4 + half*2 + quarter
	if negative {
		return -v
	}
	return v
}

// ReadMV 读取 mv_joint 及其指定的分量
func (d *SymbolDecoder) ReadMV() MotionVector {
	var mv MotionVector
	joint := d.ReadMVJoint()
	if joint.HasRow() {
		mv.Row = d.ReadMVComponent(0)
	}
	if joint.HasCol() {
		mv.Col = d.ReadMVComponent(1)
	}
	return mv
}

// ReadDeltaQ 读取量化参数增量，范围 [-63, 63]。
// 基值 0..3 直接编码，4 表示再读 6 位的 diff，abs = min(4+diff, 63)；
// abs 为 0 时不读取符号。
func (d *SymbolDecoder) ReadDeltaQ() int16 {
	abs := d.ReadSymbol(d.cdfs.DeltaQAbs[:], DeltaQAbsSymbols)
	if abs > DeltaQSmall {
		diff := int(d.ReadLiteral(DeltaQRemBits))
		abs = minInt(DeltaQSmall+1+diff, 63)
	}
	if abs == 0 {
		return 0
	}
	if d.ReadSymbol(d.cdfs.DeltaQSign[:], 2) == 1 {
		return int16(-abs)
	}
	return int16(abs)
}

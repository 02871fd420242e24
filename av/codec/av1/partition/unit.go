// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package partition

import (
	"fmt"

	"github.com/cnotch/av1hub/av/codec/av1/entropy"
	"github.com/cnotch/av1hub/av/codec/codecerr"
)

// RefNone 未使用的参考帧
const RefNone int8 = -1

// CodingUnit 分区树的叶子块；坐标和尺寸为像素，已裁剪到帧内
type CodingUnit struct {
	X       int  `json:"x"`
	Y       int  `json:"y"`
	Width   int  `json:"width"`
	Height  int  `json:"height"`
	Tile    int  `json:"tile"`
	Depth   int  `json:"depth"`
	Skip    bool `json:"skip"`
	IsInter bool `json:"is_inter"`
	// Mode 帧内块为 0..12 的帧内模式，帧间块为 0..3 的帧间模式
	Mode      uint8                   `json:"mode"`
	QP        int                     `json:"qp"`
	DeltaQ    int                     `json:"delta_q"`
	RefFrames [2]int8                 `json:"ref_frames"`
	MVs       [2]entropy.MotionVector `json:"mvs"`
}

// Compound 是否双参考
func (cu *CodingUnit) Compound() bool {
	return cu.RefFrames[1] > 0
}

// Contains 像素点是否落在块内
func (cu *CodingUnit) Contains(x, y int) bool {
	return x >= cu.X && x < cu.X+cu.Width && y >= cu.Y && y < cu.Y+cu.Height
}

// SuperblockError 一个超级块解码失败；同一 tile 的后续超级块继续解码
type SuperblockError struct {
	Tile   int   `json:"tile"`
	SbRow  int   `json:"sb_row"`
	SbCol  int   `json:"sb_col"`
	Offset int64 `json:"offset"` // 超级块起始处的码流字节偏移
	Err    error `json:"-"`
}

func (e *SuperblockError) Error() string {
	return fmt.Sprintf("tile %d superblock (%d,%d) at byte %d: %v", e.Tile, e.SbRow, e.SbCol, e.Offset, e.Err)
}

// Unwrap 返回原始错误
func (e *SuperblockError) Unwrap() error { return e.Err }

// Cause 兼容 github.com/pkg/errors
func (e *SuperblockError) Cause() error { return e.Err }

func panicError(r interface{}) error {
	if err, ok := r.(error); ok {
		return codecerr.Decode("superblock panic: %v", err)
	}
	return codecerr.Decode("superblock panic: %v", r)
}

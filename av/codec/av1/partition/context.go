// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package partition

import (
	"github.com/cnotch/av1hub/av/codec/av1"
	"github.com/cnotch/av1hub/av/codec/codecerr"
)

// 块尺寸 log2 的边界
const (
	minPartLog2 = 3 // 8x8 以下不再读取 partition
	miSize      = 4
)

// FrameContext 熵解码一帧所需的上下文，可由帧头导出，也可由调用方直接填写
type FrameContext struct {
	Width            int   `json:"width"`
	Height           int   `json:"height"`
	MiCols           int   `json:"mi_cols"`
	MiRows           int   `json:"mi_rows"`
	SbSize           int   `json:"sb_size"`
	BaseQIdx         int   `json:"base_q_idx"`
	DeltaQPresent    bool  `json:"delta_q_present"`
	DeltaQRes        uint8 `json:"delta_q_res"`
	FrameIsIntra     bool  `json:"frame_is_intra"`
	DisableCdfUpdate bool  `json:"disable_cdf_update"`
	ReferenceSelect  bool  `json:"reference_select"`

	Tiles *av1.TileInfo `json:"-"`
}

// NewFrameContext 从完整解析的帧头构造上下文
func NewFrameContext(h *av1.FrameHeader, seq *av1.SequenceHeader) (*FrameContext, error) {
	switch {
	case h == nil || seq == nil:
		return nil, codecerr.Invalid("frame context requires frame and sequence headers")
	case h.Partial:
		return nil, codecerr.Invalid("frame header is partial")
	case h.ShowExistingFrame:
		return nil, codecerr.Invalid("show_existing_frame carries no tile data")
	case h.TileInfo == nil:
		return nil, codecerr.Invalid("frame header has no tile info")
	}

	fc := &FrameContext{
		Width:            h.FrameWidth,
		Height:           h.FrameHeight,
		MiCols:           h.MiCols,
		MiRows:           h.MiRows,
		SbSize:           seq.SuperblockSize(),
		BaseQIdx:         int(h.Quantization.BaseQIdx),
		DeltaQPresent:    h.DeltaQPresent,
		DeltaQRes:        h.DeltaQRes,
		FrameIsIntra:     h.FrameIsIntra(),
		DisableCdfUpdate: h.DisableCdfUpdate,
		ReferenceSelect:  h.ReferenceSelect,
		Tiles:            h.TileInfo,
	}
	return fc, fc.validate()
}

func (fc *FrameContext) validate() error {
	if fc.Width <= 0 || fc.Height <= 0 {
		return codecerr.Invalid("frame size %dx%d", fc.Width, fc.Height)
	}
	if fc.SbSize != 64 && fc.SbSize != 128 {
		return codecerr.Invalid("superblock size %d", fc.SbSize)
	}
	// 多个 tile 可能并发校验同一上下文，这里只读
	if mc, mr := fc.miCols(), fc.miRows(); mc*miSize < fc.Width || mr*miSize < fc.Height {
		return codecerr.Invalid("mi grid %dx%d smaller than frame %dx%d", mc, mr, fc.Width, fc.Height)
	}
	if fc.BaseQIdx < 0 || fc.BaseQIdx > 255 {
		return codecerr.Invalid("base_q_idx %d", fc.BaseQIdx)
	}
	if fc.DeltaQRes > 3 {
		return codecerr.Invalid("delta_q_res %d", fc.DeltaQRes)
	}
	return nil
}

// miCols MiCols 未填写时按宽度推导，与帧头的 compute_image_size 一致
func (fc *FrameContext) miCols() int {
	if fc.MiCols > 0 {
		return fc.MiCols
	}
	return 2 * ((fc.Width + 7) >> 3)
}

func (fc *FrameContext) miRows() int {
	if fc.MiRows > 0 {
		return fc.MiRows
	}
	return 2 * ((fc.Height + 7) >> 3)
}

// SbCols 超级块列数，SbSize 无效时为 0
func (fc *FrameContext) SbCols() int {
	if fc.SbSize <= 0 {
		return 0
	}
	return (fc.miCols()*miSize + fc.SbSize - 1) / fc.SbSize
}

// SbRows 超级块行数，SbSize 无效时为 0
func (fc *FrameContext) SbRows() int {
	if fc.SbSize <= 0 {
		return 0
	}
	return (fc.miRows()*miSize + fc.SbSize - 1) / fc.SbSize
}

func (fc *FrameContext) sbLog2() int {
	if fc.SbSize == 128 {
		return 7
	}
	return 6
}

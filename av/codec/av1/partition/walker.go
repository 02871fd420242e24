// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package partition 按超级块递归解码分区树，输出 CodingUnit。
package partition

import (
	"sort"

	"github.com/cnotch/av1hub/av/codec/av1"
	"github.com/cnotch/av1hub/av/codec/av1/entropy"
	"github.com/cnotch/av1hub/av/codec/codecerr"
	"github.com/cnotch/xlog"
	"go.uber.org/multierr"
)

// 超过该填充位数认为 tile 数据已耗尽
const maxPaddedBits = 30

// Options 走查选项
type Options struct {
	// Predictor 运动矢量预测；nil 时每个 tile 使用新的 NeighborPredictor。
	// 并行解码多个 tile 时不能共享同一实例。
	Predictor MVPredictor
	// Cdfs 非 nil 时复制后作为 tile 的初始表
	Cdfs   *entropy.CdfContext
	Logger *xlog.Logger
}

// TileResult 一个 tile 的解码结果
type TileResult struct {
	Tile       int                 `json:"tile"`
	Units      []CodingUnit        `json:"units"`
	Failed     []*SuperblockError  `json:"-"`
	Unparsed   int                 `json:"unparsed"` // 数据耗尽后未解码的超级块数
	PaddedBits int                 `json:"padded_bits"`
	Cdfs       *entropy.CdfContext `json:"-"` // tile 结束时的表
}

// FrameResult 一帧所有 tile 的结果
type FrameResult struct {
	Units    []CodingUnit       `json:"units"`
	Failed   []*SuperblockError `json:"-"`
	Unparsed int                `json:"unparsed"`
}

// Err 合并所有失败的超级块
func (fr *FrameResult) Err() error {
	var err error
	for _, f := range fr.Failed {
		err = multierr.Append(err, f)
	}
	return err
}

type walker struct {
	fc     *FrameContext
	sd     *entropy.SymbolDecoder
	pred   MVPredictor
	tile   int
	qp     int
	miW    int
	miH    int
	units  []CodingUnit
	offset int64
}

// WalkTile 解码一个 tile 中所有超级块。
// 输入不一致时返回错误；单个超级块失败记录在 Failed 中，不中断其余超级块。
func WalkTile(fc *FrameContext, tile *av1.Tile, opts *Options) (*TileResult, error) {
	if fc == nil || tile == nil {
		return nil, codecerr.Invalid("walk tile without frame context or tile")
	}
	if err := fc.validate(); err != nil {
		return nil, err
	}
	if opts == nil {
		opts = &Options{}
	}

	c0, c1, r0, r1, err := fc.tileBounds(tile)
	if err != nil {
		return nil, err
	}

	var cdfs *entropy.CdfContext
	if opts.Cdfs != nil {
		cdfs = opts.Cdfs.Clone()
	}
	pred := opts.Predictor
	if pred == nil {
		pred = NewNeighborPredictor(fc.Width, fc.Height)
	} else {
		pred.Reset()
	}

	w := &walker{
		fc:     fc,
		sd:     entropy.NewSymbolDecoder(tile.Data, cdfs, fc.DisableCdfUpdate),
		pred:   pred,
		tile:   tile.Index,
		qp:     fc.BaseQIdx,
		miW:    fc.miCols() * miSize,
		miH:    fc.miRows() * miSize,
		offset: int64(tile.Offset),
	}

	result := &TileResult{Tile: tile.Index}
	sbLog2 := fc.sbLog2()
walk:
	for sbRow := r0; sbRow < r1; sbRow++ {
		for sbCol := c0; sbCol < c1; sbCol++ {
			start := w.sd.Position()
			err := w.superblock(sbCol*fc.SbSize, sbRow*fc.SbSize, sbLog2)
			if err == nil {
				continue
			}

			sbe := &SuperblockError{
				Tile:   tile.Index,
				SbRow:  sbRow,
				SbCol:  sbCol,
				Offset: w.offset + int64(start/8),
				Err:    err,
			}
			result.Failed = append(result.Failed, sbe)
			if opts.Logger != nil {
				opts.Logger.With(xlog.Fields(
					xlog.F("tile", tile.Index),
					xlog.F("sbrow", sbRow),
					xlog.F("sbcol", sbCol))).Warnf("superblock decode failed: %v", err)
			}
			if codecerr.Is(err, codecerr.KindUnexpectedEOF) {
				// 剩余超级块没有数据
				result.Unparsed = (r1-sbRow-1)*(c1-c0) + (c1 - sbCol - 1)
				break walk
			}
		}
	}

	result.Units = w.units
	result.PaddedBits = w.sd.PaddedBits()
	result.Cdfs = w.sd.Cdfs()
	return result, nil
}

// WalkFrame 依次解码帧内所有 tile
func WalkFrame(fc *FrameContext, tiles []av1.Tile, opts *Options) (*FrameResult, error) {
	results := make([]*TileResult, 0, len(tiles))
	for i := range tiles {
		tr, err := WalkTile(fc, &tiles[i], opts)
		if err != nil {
			return nil, err
		}
		results = append(results, tr)
	}
	return MergeTiles(results), nil
}

// MergeTiles 按 tile 序号合并结果
func MergeTiles(results []*TileResult) *FrameResult {
	sorted := make([]*TileResult, 0, len(results))
	n := 0
	for _, r := range results {
		if r != nil {
			sorted = append(sorted, r)
			n += len(r.Units)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Tile < sorted[j].Tile })

	fr := &FrameResult{Units: make([]CodingUnit, 0, n)}
	for _, r := range sorted {
		fr.Units = append(fr.Units, r.Units...)
		fr.Failed = append(fr.Failed, r.Failed...)
		fr.Unparsed += r.Unparsed
	}
	return fr
}

func (fc *FrameContext) tileBounds(tile *av1.Tile) (c0, c1, r0, r1 int, err error) {
	sbCols, sbRows := fc.SbCols(), fc.SbRows()
	if ti := fc.Tiles; ti != nil {
		if tile.Col < 0 || tile.Col >= ti.Cols || tile.Row < 0 || tile.Row >= ti.Rows ||
			len(ti.ColStarts) != ti.Cols+1 || len(ti.RowStarts) != ti.Rows+1 {
			err = codecerr.Invalid("tile (%d,%d) outside %dx%d layout", tile.Col, tile.Row, ti.Cols, ti.Rows)
			return
		}
		c0, c1 = ti.ColStarts[tile.Col], ti.ColStarts[tile.Col+1]
		r0, r1 = ti.RowStarts[tile.Row], ti.RowStarts[tile.Row+1]
	} else {
		c1, r1 = tile.SbCols, tile.SbRows
	}
	if c0 < 0 || r0 < 0 {
		err = codecerr.Invalid("negative tile start")
		return
	}
	if c1 > sbCols {
		c1 = sbCols
	}
	if r1 > sbRows {
		r1 = sbRows
	}
	return
}

// invalidator 可选接口，超级块失败时清除其区域内的预测状态
type invalidator interface {
	Invalidate(x, y, width, height int)
}

func (w *walker) superblock(x, y, sbLog2 int) (err error) {
	mark, qp := len(w.units), w.qp
	rollback := func() {
		w.units = w.units[:mark]
		w.qp = qp
		if inv, ok := w.pred.(invalidator); ok {
			size := 1 << uint(sbLog2)
			inv.Invalidate(x, y, size, size)
		}
	}
	defer func() {
		if r := recover(); r != nil {
			rollback()
			err = panicError(r)
		}
	}()

	w.decodePartition(x, y, sbLog2, 0)
	if padded := w.sd.PaddedBits(); padded > maxPaddedBits {
		rollback()
		return codecerr.EOFf(w.offset+int64(w.sd.Position()/8), codecerr.UnitByte,
			"tile data exhausted, %d bits padded", padded)
	}
	return nil
}

// decodePartition 坐标为像素，bsl 为块边长 log2
func (w *walker) decodePartition(x, y, bsl, depth int) {
	if x >= w.miW || y >= w.miH {
		return
	}

	size := 1 << uint(bsl)
	half := size >> 1
	quarter := size >> 2
	hasRows := y+half < w.miH
	hasCols := x+half < w.miW

	p := entropy.PartitionNone
	if bsl >= minPartLog2 {
		p = w.sd.ReadPartition(bsl, hasRows, hasCols)
	}

	d := depth + 1
	switch p {
	case entropy.PartitionNone:
		w.block(x, y, size, size, depth)
	case entropy.PartitionHorz:
		w.block(x, y, size, half, d)
		if hasRows {
			w.block(x, y+half, size, half, d)
		}
	case entropy.PartitionVert:
		w.block(x, y, half, size, d)
		if hasCols {
			w.block(x+half, y, half, size, d)
		}
	case entropy.PartitionSplit:
		w.decodePartition(x, y, bsl-1, d)
		w.decodePartition(x+half, y, bsl-1, d)
		w.decodePartition(x, y+half, bsl-1, d)
		w.decodePartition(x+half, y+half, bsl-1, d)
	case entropy.PartitionHorzA:
		w.block(x, y, half, half, d)
		w.block(x+half, y, half, half, d)
		w.block(x, y+half, size, half, d)
	case entropy.PartitionHorzB:
		w.block(x, y, size, half, d)
		w.block(x, y+half, half, half, d)
		w.block(x+half, y+half, half, half, d)
	case entropy.PartitionVertA:
		w.block(x, y, half, half, d)
		w.block(x, y+half, half, half, d)
		w.block(x+half, y, half, size, d)
	case entropy.PartitionVertB:
		w.block(x, y, half, size, d)
		w.block(x+half, y, half, half, d)
		w.block(x+half, y+half, half, half, d)
	case entropy.PartitionHorz4:
		for i := 0; i < 4; i++ {
			yy := y + i*quarter
			if i > 0 && yy >= w.miH {
				break
			}
			w.block(x, yy, size, quarter, d)
		}
	case entropy.PartitionVert4:
		for i := 0; i < 4; i++ {
			xx := x + i*quarter
			if i > 0 && xx >= w.miW {
				break
			}
			w.block(xx, y, quarter, size, d)
		}
	}
}

// block 解码一个叶子块：skip, delta_q, is_inter, 参考帧, 模式, 运动矢量
func (w *walker) block(x, y, width, height, depth int) {
	cu := CodingUnit{
		X:         x,
		Y:         y,
		Width:     width,
		Height:    height,
		Tile:      w.tile,
		Depth:     depth,
		RefFrames: [2]int8{0, RefNone},
	}
	fc := w.fc

	cu.Skip = w.sd.ReadSkip()
	if fc.DeltaQPresent {
		dq := int(w.sd.ReadDeltaQ()) << fc.DeltaQRes
		w.qp = clampQP(w.qp + dq)
		cu.DeltaQ = dq
	}
	cu.QP = w.qp

	if !fc.FrameIsIntra {
		cu.IsInter = w.sd.ReadIsInter()
	}
	if !cu.IsInter {
		cu.Mode = w.sd.ReadIntraMode()
	} else {
		compound := fc.ReferenceSelect && w.sd.ReadCompound()
		cu.RefFrames[0] = int8(w.sd.ReadRefFrame())
		if compound {
			cu.RefFrames[1] = int8(w.sd.ReadRefFrame())
		}
		cu.Mode = w.sd.ReadInterMode()
		lists := 1
		if compound {
			lists = 2
		}
		for l := 0; l < lists; l++ {
			switch cu.Mode {
			case entropy.NewMV:
				pred := w.pred.Predict(x, y, l, cu.RefFrames[l])
				cu.MVs[l] = pred.Add(w.sd.ReadMV())
			case entropy.NearestMV, entropy.NearMV:
				cu.MVs[l] = w.pred.Predict(x, y, l, cu.RefFrames[l])
			}
		}
	}

	if x >= fc.Width || y >= fc.Height {
		// 对齐填充区域，只消费符号
		return
	}
	if x+cu.Width > fc.Width {
		cu.Width = fc.Width - x
	}
	if y+cu.Height > fc.Height {
		cu.Height = fc.Height - y
	}
	w.pred.Update(&cu)
	w.units = append(w.units, cu)
}

func clampQP(q int) int {
	if q < 1 {
		return 1
	}
	if q > 255 {
		return 255
	}
	return q
}

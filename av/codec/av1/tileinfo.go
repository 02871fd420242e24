// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package av1

import (
	"github.com/cnotch/av1hub/av/codec/codecerr"
)

// DefaultMaxTiles 默认 tile 总数上限，防止病态的 tile 数量耗尽资源
const DefaultMaxTiles = 512

// TileInfo tile 布局；起始数组以超级块为单位，长度为维度 + 1
type TileInfo struct {
	Cols      int   `json:"tile_cols"`
	Rows      int   `json:"tile_rows"`
	ColsLog2  int   `json:"tile_cols_log2"`
	RowsLog2  int   `json:"tile_rows_log2"`
	ColStarts []int `json:"col_starts"`
	RowStarts []int `json:"row_starts"`
	SbSize    int   `json:"sb_size"` // 超级块边长（像素）
	Uniform   bool  `json:"uniform"`

	ContextUpdateTileID int `json:"context_update_tile_id"`
	// SizeBytes tile_size_minus_1 的定长字节数；0 表示 leb128 编码
	SizeBytes int `json:"size_bytes"`

	fromHeader bool
}

// NewTileInfo 使用默认上限创建 cols x rows 的 tile 布局，每个 tile 一个超级块
func NewTileInfo(cols, rows uint32) (*TileInfo, error) {
	return NewTileInfoWithCap(cols, rows, DefaultMaxTiles)
}

// NewTileInfoWithCap 创建 tile 布局，tile 总数不能超过 maxTiles
func NewTileInfoWithCap(cols, rows uint32, maxTiles int) (*TileInfo, error) {
	if err := checkTileCounts(uint64(cols), uint64(rows), maxTiles); err != nil {
		return nil, err
	}
	ti := &TileInfo{
		Cols:      int(cols),
		Rows:      int(rows),
		ColsLog2:  tileLog2(1, int(cols)),
		RowsLog2:  tileLog2(1, int(rows)),
		ColStarts: make([]int, cols+1),
		RowStarts: make([]int, rows+1),
		SbSize:    64,
		Uniform:   true,
	}
	for i := range ti.ColStarts {
		ti.ColStarts[i] = i
	}
	for i := range ti.RowStarts {
		ti.RowStarts[i] = i
	}
	return ti, nil
}

// NewUniformTileInfo 把 sbCols x sbRows 个超级块尽量均匀地划分为 cols x rows 个 tile
func NewUniformTileInfo(sbCols, sbRows int, cols, rows uint32, maxTiles int) (*TileInfo, error) {
	if err := checkTileCounts(uint64(cols), uint64(rows), maxTiles); err != nil {
		return nil, err
	}
	if sbCols < int(cols) || sbRows < int(rows) {
		return nil, codecerr.Decode("%dx%d tiles do not fit %dx%d superblocks", cols, rows, sbCols, sbRows)
	}
	ti := &TileInfo{
		Cols:      int(cols),
		Rows:      int(rows),
		ColsLog2:  tileLog2(1, int(cols)),
		RowsLog2:  tileLog2(1, int(rows)),
		ColStarts: evenStarts(sbCols, int(cols)),
		RowStarts: evenStarts(sbRows, int(rows)),
		SbSize:    64,
		Uniform:   true,
	}
	return ti, nil
}

// newTileInfoFromStarts 由帧头计算出的起始数组构建，并校验上限和单调性
func newTileInfoFromStarts(colStarts, rowStarts []int, maxTiles int) (*TileInfo, error) {
	cols, rows := len(colStarts)-1, len(rowStarts)-1
	if cols < 0 || rows < 0 {
		return nil, codecerr.Decode("empty tile start array")
	}
	if err := checkTileCounts(uint64(cols), uint64(rows), maxTiles); err != nil {
		return nil, err
	}
	if !strictlyIncreasing(colStarts) || !strictlyIncreasing(rowStarts) {
		return nil, codecerr.Decode("tile start offsets not strictly increasing")
	}
	return &TileInfo{
		Cols:       cols,
		Rows:       rows,
		ColStarts:  colStarts,
		RowStarts:  rowStarts,
		SbSize:     64,
		fromHeader: true,
	}, nil
}

func checkTileCounts(cols, rows uint64, maxTiles int) error {
	switch {
	case cols == 0 || rows == 0:
		return codecerr.Decode("tile layout %dx%d is empty", cols, rows)
	case cols > MaxTileCols:
		return codecerr.Decode("tile_cols %d exceeds %d", cols, MaxTileCols)
	case rows > MaxTileRows:
		return codecerr.Decode("tile_rows %d exceeds %d", rows, MaxTileRows)
	case maxTiles > 0 && cols*rows > uint64(maxTiles):
		return codecerr.Decode("%d tiles exceed cap %d", cols*rows, maxTiles)
	}
	return nil
}

func evenStarts(total, n int) []int {
	starts := make([]int, n+1)
	for i := 0; i <= n; i++ {
		starts[i] = i * total / n
	}
	return starts
}

func strictlyIncreasing(a []int) bool {
	for i := 1; i < len(a); i++ {
		if a[i] <= a[i-1] {
			return false
		}
	}
	return true
}

// NumTiles tile 总数
func (ti *TileInfo) NumTiles() int {
	return ti.Cols * ti.Rows
}

// TileBits tg_start/tg_end 的位宽。
// 帧头导出的布局使用 TileColsLog2 + TileRowsLog2；
// 外部提供的布局使用 max(log2(cols), log2(rows))，至少 1 位。
func (ti *TileInfo) TileBits() int {
	if ti.fromHeader {
		return ti.ColsLog2 + ti.RowsLog2
	}
	n := ti.ColsLog2
	if ti.RowsLog2 > n {
		n = ti.RowsLog2
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Position 线性 tile 序号到 (col, row)
func (ti *TileInfo) Position(idx int) (col, row int) {
	return idx % ti.Cols, idx / ti.Cols
}

// TileSize 指定 tile 的超级块宽高
func (ti *TileInfo) TileSize(col, row int) (sbCols, sbRows int) {
	return ti.ColStarts[col+1] - ti.ColStarts[col], ti.RowStarts[row+1] - ti.RowStarts[row]
}

// tileLog2 返回使 blkSize<<k >= target 的最小 k
func tileLog2(blkSize, target int) int {
	k := 0
	for blkSize<<uint(k) < target {
		k++
	}
	return k
}

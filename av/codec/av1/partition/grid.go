// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package partition

import "github.com/cnotch/av1hub/av/codec/av1/entropy"

// DefaultCellSize 网格单元默认边长，与 64x64 超级块一致
const DefaultCellSize = 64

// Grid 帧的空间索引：每个单元记录第一个覆盖它的 CodingUnit
type Grid struct {
	CellSize int `json:"cell_size"`
	Cols     int `json:"cols"`
	Rows     int `json:"rows"`

	cells []int32
	units []CodingUnit
}

// NewGrid 一次性建立索引；cellSize <= 0 时使用 DefaultCellSize
func NewGrid(units []CodingUnit, width, height, cellSize int) *Grid {
	if cellSize <= 0 {
		cellSize = DefaultCellSize
	}
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	g := &Grid{
		CellSize: cellSize,
		Cols:     (width + cellSize - 1) / cellSize,
		Rows:     (height + cellSize - 1) / cellSize,
		units:    units,
	}
	g.cells = make([]int32, g.Cols*g.Rows)
	for i := range g.cells {
		g.cells[i] = -1
	}

	for i := range units {
		cu := &units[i]
		if cu.Width <= 0 || cu.Height <= 0 {
			continue
		}
		cx0, cy0 := cu.X/cellSize, cu.Y/cellSize
		cx1 := (cu.X + cu.Width - 1) / cellSize
		cy1 := (cu.Y + cu.Height - 1) / cellSize
		for cy := cy0; cy <= cy1 && cy < g.Rows; cy++ {
			for cx := cx0; cx <= cx1 && cx < g.Cols; cx++ {
				k := cy*g.Cols + cx
				if cx >= 0 && cy >= 0 && g.cells[k] < 0 {
					g.cells[k] = int32(i)
				}
			}
		}
	}
	return g
}

// Index 像素点所在单元的 CodingUnit 序号，-1 表示没有
func (g *Grid) Index(x, y int) int {
	if x < 0 || y < 0 {
		return -1
	}
	cx, cy := x/g.CellSize, y/g.CellSize
	if cx >= g.Cols || cy >= g.Rows {
		return -1
	}
	return int(g.cells[cy*g.Cols+cx])
}

// At O(1) 查找像素点所在单元的 CodingUnit
func (g *Grid) At(x, y int) (*CodingUnit, bool) {
	i := g.Index(x, y)
	if i < 0 {
		return nil, false
	}
	return &g.units[i], true
}

// QPMap 按行优先给出每个单元的 QP，空单元为 -1
func (g *Grid) QPMap() []int {
	qp := make([]int, len(g.cells))
	for k, i := range g.cells {
		if i < 0 {
			qp[k] = -1
			continue
		}
		qp[k] = g.units[i].QP
	}
	return qp
}

// MVField 按行优先给出每个单元第一参考列表的运动矢量，帧内块为 0
func (g *Grid) MVField() []entropy.MotionVector {
	mvs := make([]entropy.MotionVector, len(g.cells))
	for k, i := range g.cells {
		if i >= 0 && g.units[i].IsInter {
			mvs[k] = g.units[i].MVs[0]
		}
	}
	return mvs
}

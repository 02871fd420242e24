// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package partition

import "github.com/cnotch/av1hub/av/codec/av1/entropy"

// MVPredictor 运动矢量预测上下文。
// 每个 tile 独占一个实例；Walker 在 tile 开始时调用 Reset。
type MVPredictor interface {
	// Predict 返回块 (x, y) 在参考列表 list 上对参考帧 ref 的预测值
	Predict(x, y, list int, ref int8) entropy.MotionVector
	// Update 记录已解码的块
	Update(cu *CodingUnit)
	Reset()
}

const predCell = 8 // 预测网格粒度（像素）

type predEntry struct {
	valid bool
	refs  [2]int8
	mvs   [2]entropy.MotionVector
}

// NeighborPredictor 依次取左、上、右上邻块中参考帧相同的运动矢量，都没有时为 0
type NeighborPredictor struct {
	cols, rows int
	cells      []predEntry
}

var _ MVPredictor = (*NeighborPredictor)(nil)

// NewNeighborPredictor 创建覆盖 width x height 像素的预测器
func NewNeighborPredictor(width, height int) *NeighborPredictor {
	cols := (width + predCell - 1) / predCell
	rows := (height + predCell - 1) / predCell
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}
	return &NeighborPredictor{
		cols:  cols,
		rows:  rows,
		cells: make([]predEntry, cols*rows),
	}
}

func (p *NeighborPredictor) at(x, y int) *predEntry {
	if x < 0 || y < 0 {
		return nil
	}
	cx, cy := x/predCell, y/predCell
	if cx >= p.cols || cy >= p.rows {
		return nil
	}
	return &p.cells[cy*p.cols+cx]
}

// Predict 实现 MVPredictor
func (p *NeighborPredictor) Predict(x, y, list int, ref int8) entropy.MotionVector {
	candidates := [...][2]int{
		{x - 1, y},            // 左
		{x, y - 1},            // 上
		{x + predCell, y - 1}, // 右上
	}
	for _, c := range candidates {
		e := p.at(c[0], c[1])
		if e == nil || !e.valid {
			continue
		}
		for l := 0; l < 2; l++ {
			if e.refs[l] == ref {
				return e.mvs[l]
			}
		}
	}
	return entropy.MotionVector{}
}

// Update 实现 MVPredictor
func (p *NeighborPredictor) Update(cu *CodingUnit) {
	e := predEntry{valid: cu.IsInter, refs: cu.RefFrames, mvs: cu.MVs}
	for y := cu.Y; y < cu.Y+cu.Height; y += predCell {
		for x := cu.X; x < cu.X+cu.Width; x += predCell {
			if c := p.at(x, y); c != nil {
				*c = e
			}
		}
	}
}

// Invalidate 清除区域内的运动信息
func (p *NeighborPredictor) Invalidate(x, y, width, height int) {
	for yy := y; yy < y+height; yy += predCell {
		for xx := x; xx < x+width; xx += predCell {
			if c := p.at(xx, yy); c != nil {
				*c = predEntry{}
			}
		}
	}
}

// Reset 实现 MVPredictor
func (p *NeighborPredictor) Reset() {
	for i := range p.cells {
		p.cells[i] = predEntry{}
	}
}

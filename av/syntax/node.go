// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package syntax 记录解析过程中每个语法元素的精确位区间，
// 构建可按位区间反查语法节点的树。
package syntax

import "fmt"

// BitRange 半开位区间 [Start, End)
type BitRange struct {
	Start uint64 `json:"start_bit"`
	End   uint64 `json:"end_bit"`
}

// Len 区间位数
func (r BitRange) Len() uint64 {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start
}

// Contains 判断 q 是否完全位于 r 内
func (r BitRange) Contains(q BitRange) bool {
	return r.Start <= q.Start && q.End <= r.End
}

// Overlap 返回两个区间重叠的位数
func (r BitRange) Overlap(q BitRange) uint64 {
	start, end := r.Start, r.End
	if q.Start > start {
		start = q.Start
	}
	if q.End < end {
		end = q.End
	}
	if end <= start {
		return 0
	}
	return end - start
}

// distance 两区间之间的间隙位数，重叠时为 0
func (r BitRange) distance(q BitRange) uint64 {
	switch {
	case q.End <= r.Start:
		return r.Start - q.End
	case r.End <= q.Start:
		return q.Start - r.End
	default:
		return 0
	}
}

func (r BitRange) String() string {
	return fmt.Sprintf("[%d,%d)", r.Start, r.End)
}

// Node 语法节点
type Node struct {
	ID       int      `json:"id"`
	Parent   int      `json:"parent"` // 根节点为 -1
	Name     string   `json:"name"`
	Range    BitRange `json:"range"`
	Value    string   `json:"value,omitempty"`
	HasValue bool     `json:"-"`
	Children []int    `json:"children,omitempty"`
}

// IsContainer 是否为容器节点
func (n *Node) IsContainer() bool {
	return !n.HasValue
}

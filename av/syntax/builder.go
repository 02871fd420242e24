// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package syntax

import (
	"github.com/cnotch/av1hub/av/codec/codecerr"
)

// Builder 语法树构建器。
// 维护一个打开的容器栈和节点 id 到节点的平面映射；
// 方法在 nil 接收者上是空操作，解析器可以在不需要语法树时传入 nil。
type Builder struct {
	nodes []Node
	stack []int
}

// NewBuilder 创建构建器，根容器从 startBit 开始
func NewBuilder(rootName string, startBit uint64) *Builder {
	b := &Builder{}
	b.nodes = append(b.nodes, Node{
		ID:     0,
		Parent: -1,
		Name:   rootName,
		Range:  BitRange{startBit, startBit},
	})
	b.stack = append(b.stack, 0)
	return b
}

// PushContainer 在当前容器下打开一个子容器
func (b *Builder) PushContainer(name string, startBit uint64) int {
	if b == nil {
		return -1
	}
	id := b.add(name, BitRange{startBit, startBit}, "", false)
	b.stack = append(b.stack, id)
	return id
}

// AddField 在当前容器下追加一个叶子字段
func (b *Builder) AddField(name string, r BitRange, value string) int {
	if b == nil {
		return -1
	}
	return b.add(name, r, value, true)
}

// PopContainer 关闭栈顶容器。
// 容器区间扩展到覆盖所有子节点，保证子区间包含于父区间。
func (b *Builder) PopContainer(endBit uint64) error {
	if b == nil {
		return nil
	}
	if len(b.stack) <= 1 {
		return codecerr.Invalid("pop container without open container")
	}
	id := b.stack[len(b.stack)-1]
	b.stack = b.stack[:len(b.stack)-1]
	b.close(id, endBit)
	return nil
}

// Depth 当前打开的容器数（含根）
func (b *Builder) Depth() int {
	if b == nil {
		return 0
	}
	return len(b.stack)
}

// Finish 关闭所有仍打开的容器并返回不可变语法树
func (b *Builder) Finish(endBit uint64) *Tree {
	if b == nil {
		return nil
	}
	for len(b.stack) > 0 {
		id := b.stack[len(b.stack)-1]
		b.stack = b.stack[:len(b.stack)-1]
		b.close(id, endBit)
	}
	t := &Tree{nodes: b.nodes}
	b.nodes = nil
	return t
}

func (b *Builder) add(name string, r BitRange, value string, hasValue bool) int {
	if r.End < r.Start {
		r.End = r.Start
	}
	parent := b.stack[len(b.stack)-1]
	id := len(b.nodes)
	b.nodes = append(b.nodes, Node{
		ID:       id,
		Parent:   parent,
		Name:     name,
		Range:    r,
		Value:    value,
		HasValue: hasValue,
	})
	b.nodes[parent].Children = append(b.nodes[parent].Children, id)
	return id
}

func (b *Builder) close(id int, endBit uint64) {
	n := &b.nodes[id]
	if endBit > n.Range.End {
		n.Range.End = endBit
	}
	for _, c := range n.Children {
		cr := b.nodes[c].Range
		if cr.Start < n.Range.Start {
			n.Range.Start = cr.Start
		}
		if cr.End > n.Range.End {
			n.Range.End = cr.End
		}
	}
}

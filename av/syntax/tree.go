// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package syntax

import (
	"strconv"
	"strings"
)

// Tree 不可变语法树，节点 0 为根
type Tree struct {
	nodes []Node
}

// Root 根节点
func (t *Tree) Root() *Node {
	if t == nil || len(t.nodes) == 0 {
		return nil
	}
	return &t.nodes[0]
}

// Len 节点数
func (t *Tree) Len() int {
	if t == nil {
		return 0
	}
	return len(t.nodes)
}

// Node 按 id 获取节点
func (t *Tree) Node(id int) *Node {
	if t == nil || id < 0 || id >= len(t.nodes) {
		return nil
	}
	return &t.nodes[id]
}

// Children 返回节点的子节点
func (t *Tree) Children(id int) []*Node {
	n := t.Node(id)
	if n == nil {
		return nil
	}
	children := make([]*Node, 0, len(n.Children))
	for _, c := range n.Children {
		children = append(children, &t.nodes[c])
	}
	return children
}

// FindNearestNode 三向同步：返回最紧地包含 query 的节点。
// 没有节点包含 query 时，返回与之重叠最多的节点，
// 再退而求其次返回距离最近的叶子。
func (t *Tree) FindNearestNode(query BitRange) *Node {
	root := t.Root()
	if root == nil {
		return nil
	}

	if root.Range.Contains(query) {
		id := 0
	descend:
		for {
			for _, c := range t.nodes[id].Children {
				if t.nodes[c].Range.Contains(query) {
					id = c
					continue descend
				}
			}
			return &t.nodes[id]
		}
	}

	best := -1
	var bestOverlap, bestLen, bestDist uint64
	for i := range t.nodes {
		n := &t.nodes[i]
		ov := n.Range.Overlap(query)
		dist := n.Range.distance(query)
		switch {
		case best < 0:
		case ov > bestOverlap:
		case ov == bestOverlap && ov > 0 && n.Range.Len() < bestLen:
		case ov == 0 && bestOverlap == 0 && dist < bestDist:
		case ov == 0 && bestOverlap == 0 && dist == bestDist && n.Range.Len() < bestLen:
		default:
			continue
		}
		best, bestOverlap, bestLen, bestDist = i, ov, n.Range.Len(), dist
	}
	return &t.nodes[best]
}

// Path 返回节点的点分路径，如 obu[0].frame_header.frame_type
func (t *Tree) Path(id int) string {
	n := t.Node(id)
	if n == nil {
		return ""
	}
	var parts []string
	for n != nil {
		parts = append(parts, n.Name)
		n = t.Node(n.Parent)
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, ".")
}

// Lookup 按点分路径查找节点。
// 同名兄弟节点可以用 name#k 选择第 k 个（从 0 开始）。
func (t *Tree) Lookup(path string) *Node {
	root := t.Root()
	if root == nil {
		return nil
	}
	parts := strings.Split(path, ".")
	if parts[0] != root.Name {
		return nil
	}

	n := root
	for _, part := range parts[1:] {
		name, nth := part, 0
		if i := strings.LastIndexByte(part, '#'); i > 0 {
			if k, err := strconv.Atoi(part[i+1:]); err == nil {
				name, nth = part[:i], k
			}
		}

		var next *Node
		for _, c := range n.Children {
			if t.nodes[c].Name == name {
				if nth == 0 {
					next = &t.nodes[c]
					break
				}
				nth--
			}
		}
		if next == nil {
			return nil
		}
		n = next
	}
	return n
}

// Walk 先序遍历，fn 返回 false 时停止进入该节点的子树
func (t *Tree) Walk(fn func(n *Node, depth int) bool) {
	if t.Root() == nil {
		return
	}
	t.walk(0, 0, fn)
}

func (t *Tree) walk(id, depth int, fn func(n *Node, depth int) bool) {
	if !fn(&t.nodes[id], depth) {
		return
	}
	for _, c := range t.nodes[id].Children {
		t.walk(c, depth+1, fn)
	}
}

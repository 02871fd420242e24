// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package syntax

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// obu[0]
//
//	obu_header [0,8)
//	  obu_type [1,5)
//	  obu_has_size_field [6,7)
//	frame_header [8,16)
//	  show_existing_frame [8,9)
//	  frame_type [9,11)
//	  show_frame [11,12)
func sampleTree() *Tree {
	b := NewBuilder("obu[0]", 0)
	b.PushContainer("obu_header", 0)
	b.AddField("obu_type", BitRange{1, 5}, "OBU_FRAME (6)")
	b.AddField("obu_has_size_field", BitRange{6, 7}, "1")
	_ = b.PopContainer(8)
	b.PushContainer("frame_header", 8)
	b.AddField("show_existing_frame", BitRange{8, 9}, "0")
	b.AddField("frame_type", BitRange{9, 11}, "KEY_FRAME (0)")
	b.AddField("show_frame", BitRange{11, 12}, "1")
	_ = b.PopContainer(16)
	return b.Finish(16)
}

func TestBuilder_Containment(t *testing.T) {
	tree := sampleTree()
	require.Equal(t, 8, tree.Len())

	tree.Walk(func(n *Node, depth int) bool {
		if n.Parent >= 0 {
			parent := tree.Node(n.Parent)
			assert.True(t, parent.Range.Contains(n.Range), "%s in %s", n.Name, parent.Name)
		}
		var prevEnd uint64
		for i, c := range tree.Children(n.ID) {
			if i > 0 {
				assert.LessOrEqual(t, prevEnd, c.Range.Start)
			}
			prevEnd = c.Range.End
		}
		return true
	})
	assert.Equal(t, BitRange{0, 16}, tree.Root().Range)
}

func TestBuilder_PopWithoutPush(t *testing.T) {
	b := NewBuilder("root", 0)
	assert.Error(t, b.PopContainer(1))
}

func TestBuilder_Nil(t *testing.T) {
	var b *Builder
	assert.Equal(t, -1, b.PushContainer("x", 0))
	assert.Equal(t, -1, b.AddField("y", BitRange{0, 1}, "1"))
	assert.NoError(t, b.PopContainer(1))
	assert.Nil(t, b.Finish(1))
	assert.Equal(t, 0, b.Depth())
}

func TestBuilder_ContainerGrowsToChildren(t *testing.T) {
	b := NewBuilder("root", 10)
	b.PushContainer("c", 10)
	b.AddField("late", BitRange{20, 30}, "v")
	_ = b.PopContainer(12)
	tree := b.Finish(12)
	c := tree.Lookup("root.c")
	require.NotNil(t, c)
	assert.Equal(t, BitRange{10, 30}, c.Range)
	assert.Equal(t, BitRange{10, 30}, tree.Root().Range)
}

func TestFindNearestNode(t *testing.T) {
	tree := sampleTree()

	tests := []struct {
		name  string
		query BitRange
		want  string
	}{
		{"exact field", BitRange{9, 11}, "frame_type"},
		{"inside field", BitRange{10, 11}, "frame_type"},
		{"spans two fields", BitRange{9, 12}, "frame_header"},
		{"padding in header", BitRange{7, 8}, "obu_header"},
		{"whole tree", BitRange{0, 16}, "obu[0]"},
		{"beyond root overlaps", BitRange{14, 40}, "frame_header"},
		{"disjoint nearest", BitRange{100, 101}, "frame_header"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := tree.FindNearestNode(tt.query)
			require.NotNil(t, n)
			assert.Equal(t, tt.want, n.Name)
		})
	}
}

func TestFindNearestNode_Tightest(t *testing.T) {
	tree := sampleTree()
	root := tree.Root().Range
	for start := root.Start; start < root.End; start++ {
		for end := start + 1; end <= root.End; end++ {
			q := BitRange{start, end}
			n := tree.FindNearestNode(q)
			require.NotNil(t, n)
			assert.True(t, n.Range.Contains(q))
			for _, c := range tree.Children(n.ID) {
				assert.False(t, c.Range.Contains(q), "%s has child %s containing %s", n.Name, c.Name, q)
			}
		}
	}
}

func TestPathAndLookup(t *testing.T) {
	tree := sampleTree()
	n := tree.Lookup("obu[0].frame_header.frame_type")
	require.NotNil(t, n)
	assert.Equal(t, "KEY_FRAME (0)", n.Value)
	assert.Equal(t, "obu[0].frame_header.frame_type", tree.Path(n.ID))
	assert.Nil(t, tree.Lookup("obu[1].frame_header"))
	assert.Nil(t, tree.Lookup("obu[0].nothing"))

	b := NewBuilder("root", 0)
	b.AddField("x", BitRange{0, 1}, "a")
	b.AddField("x", BitRange{1, 2}, "b")
	tree = b.Finish(2)
	assert.Equal(t, "b", tree.Lookup("root.x#1").Value)
	assert.Nil(t, tree.Lookup("root.x#2"))
}

func TestEmptyTree(t *testing.T) {
	var tree *Tree
	assert.Nil(t, tree.Root())
	assert.Nil(t, tree.FindNearestNode(BitRange{0, 1}))
	assert.Equal(t, 0, tree.Len())
	assert.Equal(t, "", tree.Path(0))
}

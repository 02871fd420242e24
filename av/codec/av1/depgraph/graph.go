// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package depgraph 帧级 OBU 索引，用于提取最小可复现片段。
package depgraph

import (
	"sort"

	"github.com/cnotch/av1hub/av/codec/av1"
	"github.com/cnotch/av1hub/av/codec/codecerr"
	"github.com/cnotch/av1hub/utils/leb128"
)

// FrameNode 一个 OBU_FRAME 或 OBU_FRAME_HEADER
type FrameNode struct {
	Index        int           `json:"index"`
	ObuIndex     int           `json:"obu_index"`
	FrameType    av1.FrameType `json:"frame_type"`
	HasFrameType bool          `json:"has_frame_type"`
	Offset       int           `json:"offset"`
	Size         int           `json:"size"` // 帧 OBU 及其后续 tile group 的字节数
}

// IsKey 是否可作为解码起点
func (n *FrameNode) IsKey() bool {
	return n.HasFrameType && n.FrameType.IsIntra()
}

// Graph 依赖图，构建后只读
type Graph struct {
	Frames []FrameNode `json:"frames"`

	obus       []av1.Obu
	obuToFrame map[int]int
}

// ExtractionResult 提取结果
type ExtractionResult struct {
	ObuIndices    []int `json:"obu_indices"`
	FrameCount    int   `json:"frame_count"`
	EstimatedSize int   `json:"estimated_size"`
}

// Build 按出现顺序索引帧；帧头之后的 tile group 归属于该帧
func Build(obus []av1.Obu) *Graph {
	g := &Graph{
		obus:       obus,
		obuToFrame: make(map[int]int),
	}
	current := -1
	for i := range obus {
		o := &obus[i]
		switch o.Header.Type {
		case av1.ObuFrame, av1.ObuFrameHeader:
			current = len(g.Frames)
			g.Frames = append(g.Frames, FrameNode{
				Index:        current,
				ObuIndex:     i,
				FrameType:    o.FrameType,
				HasFrameType: o.HasFrameType,
				Offset:       o.Offset,
				Size:         o.TotalSize,
			})
			g.obuToFrame[i] = current
		case av1.ObuTileGroup:
			if current >= 0 {
				g.Frames[current].Size += o.TotalSize
				g.obuToFrame[i] = current
			}
		case av1.ObuTemporalDelimiter, av1.ObuSequenceHeader:
			// 新的时间单元，之后的 tile group 不再属于前一帧
			current = -1
		}
	}
	return g
}

// FrameOf OBU 所属的帧序号
func (g *Graph) FrameOf(obuIndex int) (int, bool) {
	f, ok := g.obuToFrame[obuIndex]
	return f, ok
}

// FindNearestKeyFrame 从 frame 向前查找最近的关键帧/帧内帧
func (g *Graph) FindNearestKeyFrame(frame int) (int, bool) {
	if frame >= len(g.Frames) {
		frame = len(g.Frames) - 1
	}
	for i := frame; i >= 0; i-- {
		if g.Frames[i].IsKey() {
			return i, true
		}
	}
	return -1, false
}

// ExtractRequiredObus 计算解码 target 及其前后上下文所需的最小 OBU 集合
func (g *Graph) ExtractRequiredObus(target, contextBefore, contextAfter int, includeSequenceHeader bool) (*ExtractionResult, error) {
	if target < 0 || target >= len(g.Frames) {
		return nil, codecerr.Invalid("target frame %d outside [0, %d)", target, len(g.Frames))
	}
	if contextBefore < 0 || contextAfter < 0 {
		return nil, codecerr.Invalid("negative context window %d/%d", contextBefore, contextAfter)
	}

	first := target - contextBefore
	if first < 0 {
		first = 0
	}
	if key, ok := g.FindNearestKeyFrame(target); ok && key < first {
		first = key
	}
	last := target + contextAfter
	if last >= len(g.Frames) {
		last = len(g.Frames) - 1
	}

	set := make(map[int]struct{})
	for f := first; f <= last; f++ {
		idx := g.Frames[f].ObuIndex
		set[idx] = struct{}{}
		for i := idx + 1; i < len(g.obus); i++ {
			if fi, ok := g.obuToFrame[i]; !ok || fi != f {
				break
			}
			set[i] = struct{}{}
		}
		if td, ok := g.temporalDelimiterBefore(idx); ok {
			set[td] = struct{}{}
		}
	}
	if includeSequenceHeader {
		if seq, ok := g.sequenceHeaderBefore(g.Frames[first].ObuIndex); ok {
			set[seq] = struct{}{}
		}
	}

	res := &ExtractionResult{
		ObuIndices: make([]int, 0, len(set)),
		FrameCount: last - first + 1,
	}
	for i := range set {
		res.ObuIndices = append(res.ObuIndices, i)
		res.EstimatedSize += g.obus[i].TotalSize
	}
	sort.Ints(res.ObuIndices)
	return res, nil
}

// temporalDelimiterBefore 跳过序列头、元数据和填充向前查找时间单元分隔符
func (g *Graph) temporalDelimiterBefore(obuIndex int) (int, bool) {
	for i := obuIndex - 1; i >= 0; i-- {
		switch g.obus[i].Header.Type {
		case av1.ObuTemporalDelimiter:
			return i, true
		case av1.ObuSequenceHeader, av1.ObuMetadata, av1.ObuPadding:
			continue
		default:
			return -1, false
		}
	}
	return -1, false
}

func (g *Graph) sequenceHeaderBefore(obuIndex int) (int, bool) {
	for i := obuIndex - 1; i >= 0; i-- {
		if g.obus[i].Header.Type == av1.ObuSequenceHeader {
			return i, true
		}
	}
	return -1, false
}

// Bytes 按顺序重新输出选中的 OBU；每个 OBU 都带 obu_size，以便拼接后仍可成帧
func (g *Graph) Bytes(res *ExtractionResult) []byte {
	out := make([]byte, 0, res.EstimatedSize+len(res.ObuIndices)*2)
	for _, i := range res.ObuIndices {
		if i < 0 || i >= len(g.obus) {
			continue
		}
		o := &g.obus[i]
		h := o.Header
		h.HasSizeField = true
		out = append(out, h.Bytes()...)
		out = leb128.Append(out, uint64(len(o.Payload)))
		out = append(out, o.Payload...)
	}
	return out
}

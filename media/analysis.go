// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package media

import (
	"context"
	"strconv"
	"strings"

	"github.com/cnotch/av1hub/av/codec/av1"
	"github.com/cnotch/av1hub/av/codec/av1/depgraph"
	"github.com/cnotch/av1hub/av/codec/av1/partition"
	"github.com/cnotch/av1hub/av/codec/codecerr"
	"github.com/cnotch/av1hub/av/syntax"
	"github.com/cnotch/av1hub/stats"
	"github.com/cnotch/xlog"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// ObuRecord 一个 OBU 及其解析结果
type ObuRecord struct {
	av1.Obu
	Sequence  *av1.SequenceHeader `json:"sequence_header,omitempty"`
	Frame     *av1.FrameHeader    `json:"frame_header,omitempty"`
	TileGroup *av1.TileGroup      `json:"tile_group,omitempty"`
	FrameIdx  int                 `json:"frame"` // 所属帧，-1 表示不属于帧
	Err       string              `json:"error,omitempty"`
	Tree      *syntax.Tree        `json:"-"`
}

// BitRange OBU 在码流中的位范围
func (r *ObuRecord) BitRange() syntax.BitRange {
	return syntax.BitRange{Start: uint64(r.Offset) << 3, End: uint64(r.Offset+r.TotalSize) << 3}
}

// FrameRecord 一帧的汇总
type FrameRecord struct {
	Index      int              `json:"index"`
	ObuIndex   int              `json:"obu_index"`
	Header     *av1.FrameHeader `json:"header,omitempty"`
	TileGroups []int            `json:"tile_groups,omitempty"` // 承载 tile 的 OBU 序号
	NumTiles   int              `json:"num_tiles"`
	Units      int              `json:"units"`
	Failed     []string         `json:"failed,omitempty"`
	Unparsed   int              `json:"unparsed,omitempty"` // 数据耗尽未解码的超级块
	Err        string           `json:"error,omitempty"`

	tiles  []av1.Tile
	ctx    *partition.FrameContext
	result *partition.FrameResult
	grid   *partition.Grid
}

// Result 熵解码结果，未解码时为 nil
func (f *FrameRecord) Result() *partition.FrameResult { return f.result }

// Grid 空间索引，未解码时为 nil
func (f *FrameRecord) Grid() *partition.Grid { return f.grid }

// UnitAt 查找像素点所在的 CodingUnit
func (f *FrameRecord) UnitAt(x, y int) (*partition.CodingUnit, bool) {
	if f.grid == nil {
		return nil, false
	}
	if cu, ok := f.grid.At(x, y); ok && cu.Contains(x, y) {
		return cu, true
	}
	// 单元内有多个编码块时退化为线性查找
	for i := range f.result.Units {
		if cu := &f.result.Units[i]; cu.Contains(x, y) {
			return cu, true
		}
	}
	return nil, false
}

// Analysis 一个码流的完整分析结果，构建完成后只读
type Analysis struct {
	Size      int                 `json:"size"`
	Obus      []*ObuRecord        `json:"obus"`
	Frames    []*FrameRecord      `json:"frames"`
	Anomalies av1.Anomalies       `json:"anomalies,omitempty"`
	Sequence  *av1.SequenceHeader `json:"sequence_header,omitempty"`

	graph *depgraph.Graph
	obus  []av1.Obu
}

// Graph 帧依赖图
func (a *Analysis) Graph() *depgraph.Graph { return a.graph }

// Analyze 成帧、解析每个 OBU 并记录语法树，建立依赖图，按需熵解码全部 tile。
// 非容错模式下成帧错误直接返回；其余错误记录在对应的 OBU/帧上。
func Analyze(ctx context.Context, data []byte, opts Options) (*Analysis, error) {
	opts.normalize()
	logger := opts.Logger

	var obus []av1.Obu
	var anomalies av1.Anomalies
	if opts.Resilient {
		obus, anomalies = av1.ParseObusResilient(data)
		for _, an := range anomalies {
			logger.Warnf("obu[%d] at byte %d: %s", an.ObuIndex, an.Offset, an.Message)
		}
	} else {
		var err error
		if obus, err = av1.ParseObus(data); err != nil {
			return nil, errors.Wrap(err, "framing")
		}
	}

	a := &Analysis{
		Size:      len(data),
		Anomalies: anomalies,
		obus:      obus,
	}
	a.parse(opts)
	a.graph = depgraph.Build(obus)

	if opts.DecodeTiles {
		if err := a.decode(ctx, opts); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// parse 顺序解析所有 OBU；帧头依赖之前的序列头和参考槽位
func (a *Analysis) parse(opts Options) {
	hp := av1.NewHeaderParser(nil)
	hp.MaxTiles = opts.MaxTiles
	var current *FrameRecord

	for i := range a.obus {
		o := &a.obus[i]
		rec := &ObuRecord{Obu: *o, FrameIdx: -1}
		a.Obus = append(a.Obus, rec)

		b := syntax.NewBuilder("obu["+strconv.Itoa(i)+"]", uint64(o.Offset)<<3)
		o.RecordHeader(b)

		var err error
		switch o.Header.Type {
		case av1.ObuSequenceHeader:
			var seq *av1.SequenceHeader
			if seq, err = av1.ParseSequenceHeader(o.Payload, b, o.PayloadBitOffset()); err == nil {
				hp.Seq = seq
				a.Sequence = seq
				rec.Sequence = seq
			}
		case av1.ObuTemporalDelimiter:
			hp.FinishFrame()
			current = nil
		case av1.ObuFrameHeader, av1.ObuRedundantFrameHeader, av1.ObuFrame:
			var fh *av1.FrameHeader
			fh, err = hp.ParseObu(o, b)
			rec.Frame = fh
			if fh == nil {
				break
			}
			if !fh.Redundant {
				current = &FrameRecord{Index: len(a.Frames), ObuIndex: i, Header: fh}
				a.Frames = append(a.Frames, current)
				if fh.TileInfo != nil {
					current.NumTiles = fh.TileInfo.NumTiles()
				}
			}
			if current != nil {
				rec.FrameIdx = current.Index
			}
			if err != nil || o.Header.Type != av1.ObuFrame {
				break
			}
			if fh.Partial || fh.TileInfo == nil {
				recordOpaque(b, o, fh.HeaderBytes())
				break
			}
			hb := fh.HeaderBytes()
			if hb > len(o.Payload) {
				err = codecerr.EOFf(int64(o.PayloadOffset+hb), codecerr.UnitByte, "frame header overruns obu")
				break
			}
			err = a.addTileGroup(rec, current, hp, o.Payload[hb:], b, o.PayloadBitOffset()+uint64(hb)<<3)
		case av1.ObuTileGroup:
			last := hp.Last()
			if current == nil || last == nil || last.TileInfo == nil {
				err = codecerr.Invalid("tile group without a frame header")
				recordOpaque(b, o, 0)
				break
			}
			rec.FrameIdx = current.Index
			err = a.addTileGroup(rec, current, hp, o.Payload, b, o.PayloadBitOffset())
		default:
			recordOpaque(b, o, 0)
		}

		if err != nil {
			rec.Err = errors.Wrapf(err, "obu[%d] %s", i, o.Header.Type).Error()
			if current != nil && rec.FrameIdx == current.Index && current.Err == "" {
				current.Err = rec.Err
			}
			opts.Logger.Debugf("%s", rec.Err)
		}
		rec.Tree = b.Finish(uint64(o.Offset+o.TotalSize) << 3)
	}
}

func (a *Analysis) addTileGroup(rec *ObuRecord, frame *FrameRecord, hp *av1.HeaderParser,
	payload []byte, b *syntax.Builder, base uint64) error {
	info := frame.Header.TileInfo
	tg, err := av1.ParseTileGroup(payload, info, b, base)
	if err != nil {
		return err
	}
	rec.TileGroup = tg
	frame.TileGroups = append(frame.TileGroups, rec.Index)
	frame.tiles = append(frame.tiles, tg.Tiles...)
	if tg.IsLast(info) {
		hp.FinishFrame()
	}
	return nil
}

// recordOpaque 不解析的载荷作为一个字段记录
func recordOpaque(b *syntax.Builder, o *av1.Obu, skip int) {
	if skip >= o.PayloadSize {
		return
	}
	start := o.PayloadBitOffset() + uint64(skip)<<3
	b.AddField("payload", syntax.BitRange{Start: start, End: uint64(o.PayloadEnd()) << 3},
		strconv.Itoa(o.PayloadSize-skip)+" bytes")
}

// decode 并行熵解码所有帧的 tile；同一 tile 内的超级块按光栅顺序解码
func (a *Analysis) decode(ctx context.Context, opts Options) error {
	type job struct {
		frame *FrameRecord
		tile  int
	}
	var jobs []job
	results := make(map[*FrameRecord][]*partition.TileResult)
	for _, f := range a.Frames {
		if len(f.tiles) == 0 || a.Sequence == nil {
			continue
		}
		fc, err := partition.NewFrameContext(f.Header, a.Sequence)
		if err != nil {
			f.Err = err.Error()
			continue
		}
		f.ctx = fc
		results[f] = make([]*partition.TileResult, len(f.tiles))
		for k := range f.tiles {
			jobs = append(jobs, job{f, k})
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.TileWorkers)
	for _, j := range jobs {
		j := j
		slot := results[j.frame]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			tile := &j.frame.tiles[j.tile]
			tr, err := partition.WalkTile(j.frame.ctx, tile, &partition.Options{
				Logger: opts.Logger.With(xlog.Fields(xlog.F("frame", j.frame.Index))),
			})
			if err != nil {
				// 帧上下文与 tile 布局不一致，只影响该 tile
				opts.Logger.Warnf("frame %d tile %d: %v", j.frame.Index, tile.Index, err)
				return nil
			}
			slot[j.tile] = tr
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return errors.Wrap(err, "decode tiles")
	}

	for f, trs := range results {
		fr := partition.MergeTiles(trs)
		f.result = fr
		f.Units = len(fr.Units)
		f.Unparsed = fr.Unparsed
		for _, sbe := range fr.Failed {
			f.Failed = append(f.Failed, sbe.Error())
		}
		cell := opts.CellSize
		if cell <= 0 {
			cell = f.ctx.SbSize
		}
		f.grid = partition.NewGrid(fr.Units, f.ctx.Width, f.ctx.Height, cell)
	}
	return nil
}

// Sample 汇总为统计采样
func (a *Analysis) Sample() stats.AnalysisSample {
	s := stats.AnalysisSample{
		Bitstreams: 1,
		InBytes:    int64(a.Size),
		Obus:       int64(len(a.Obus)),
		Frames:     int64(len(a.Frames)),
		Anomalies:  int64(len(a.Anomalies)),
	}
	for _, f := range a.Frames {
		s.Tiles += int64(len(f.tiles))
		s.CodingUnits += int64(f.Units)
		s.FailedSuperblocks += int64(len(f.Failed))
	}
	return s
}

// NodeRef 三向同步的结果
type NodeRef struct {
	ObuIndex int          `json:"obu_index"`
	Path     string       `json:"path"`
	Node     *syntax.Node `json:"node"`
}

// FindNode 返回包含位范围 r 的 OBU 中最具体的语法节点
func (a *Analysis) FindNode(r syntax.BitRange) (*NodeRef, bool) {
	for _, rec := range a.Obus {
		if !rec.BitRange().Contains(syntax.BitRange{Start: r.Start, End: r.Start + 1}) {
			continue
		}
		n := rec.Tree.FindNearestNode(r)
		if n == nil {
			return nil, false
		}
		return &NodeRef{ObuIndex: rec.Index, Path: rec.Tree.Path(n.ID), Node: n}, true
	}
	return nil, false
}

// Lookup 按 obu[i].container.field 路径查找节点
func (a *Analysis) Lookup(path string) (*NodeRef, bool) {
	if !strings.HasPrefix(path, "obu[") {
		return nil, false
	}
	end := strings.IndexByte(path, ']')
	if end < 0 {
		return nil, false
	}
	i, err := strconv.Atoi(path[4:end])
	if err != nil || i < 0 || i >= len(a.Obus) {
		return nil, false
	}
	rec := a.Obus[i]
	n := rec.Tree.Lookup(path)
	if n == nil {
		return nil, false
	}
	return &NodeRef{ObuIndex: i, Path: path, Node: n}, true
}

// Extract 计算最小可复现片段
func (a *Analysis) Extract(target, before, after int, includeSequenceHeader bool) (*depgraph.ExtractionResult, error) {
	return a.graph.ExtractRequiredObus(target, before, after, includeSequenceHeader)
}

// ExtractBytes 输出片段的码流
func (a *Analysis) ExtractBytes(res *depgraph.ExtractionResult) []byte {
	return a.graph.Bytes(res)
}

// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package av1

import (
	"strconv"

	"github.com/cnotch/av1hub/av/codec/codecerr"
	"github.com/cnotch/av1hub/av/syntax"
	"github.com/cnotch/av1hub/utils/leb128"
	"github.com/pkg/errors"
)

// Tile 一个独立熵编码的 tile；Data 引用输入缓冲区
type Tile struct {
	Index  int    `json:"index"`
	Col    int    `json:"col"`
	Row    int    `json:"row"`
	SbCols int    `json:"sb_cols"`
	SbRows int    `json:"sb_rows"`
	Offset int    `json:"offset"` // Data 在码流中的字节偏移
	Size   int    `json:"size"`
	Data   []byte `json:"-"`
}

// TileGroup tile_group_obu()
type TileGroup struct {
	Start int    `json:"tg_start"`
	End   int    `json:"tg_end"` // 包含
	Tiles []Tile `json:"tiles"`
}

// IsLast 是否包含帧的最后一个 tile
func (tg *TileGroup) IsLast(info *TileInfo) bool {
	return tg.End == info.NumTiles()-1
}

// SplitTiles 把 tile group 载荷切分为 tile
func SplitTiles(payload []byte, info *TileInfo) ([]Tile, error) {
	tg, err := ParseTileGroup(payload, info, nil, 0)
	if err != nil {
		return nil, err
	}
	return tg.Tiles, nil
}

// ParseTileGroup 解析 tile group 载荷。base 为载荷在码流中的起始位，
// 必须字节对齐；tree 为 nil 时不记录语法树。
func ParseTileGroup(payload []byte, info *TileInfo, tree *syntax.Builder, base uint64) (*TileGroup, error) {
	if info == nil {
		return nil, codecerr.Invalid("tile group without tile info")
	}
	if err := checkTileCounts(uint64(info.Cols), uint64(info.Rows), 0); err != nil {
		return nil, err
	}
	if len(info.ColStarts) != info.Cols+1 || len(info.RowStarts) != info.Rows+1 {
		return nil, codecerr.Decode("tile start arrays do not match %dx%d", info.Cols, info.Rows)
	}

	numTiles := info.NumTiles()
	tg := &TileGroup{End: numTiles - 1}
	baseByte := int(base >> 3)

	fr := newFieldReader(payload, tree, base)
	fr.push("tile_group")
	if numTiles > 1 {
		if fr.flag("tile_start_and_end_present_flag") {
			bits := info.TileBits()
			tg.Start = int(fr.f("tg_start", bits))
			tg.End = int(fr.f("tg_end", bits))
		}
	}
	fr.byteAlign()
	if fr.err != nil {
		return nil, fr.err
	}
	if tg.Start > tg.End || tg.End >= numTiles {
		return nil, codecerr.InvalidAt(int64(base), "tile range [%d, %d] outside %d tiles", tg.Start, tg.End, numTiles)
	}

	pos := int(fr.r.Offset() >> 3)
	for idx := tg.Start; idx <= tg.End; idx++ {
		var size int
		if idx == tg.End {
			size = len(payload) - pos
		} else {
			n, consumed, err := readTileSize(payload[pos:], info.SizeBytes)
			if err != nil {
				return nil, errors.Wrapf(shiftByteOffset(err, baseByte+pos), "tile[%d] size", idx)
			}
			if tree != nil {
				start := base + uint64(pos)*8
				tree.AddField("tile_size_minus_1["+strconv.Itoa(idx)+"]",
					syntax.BitRange{Start: start, End: start + uint64(consumed)*8}, strconv.FormatUint(n, 10))
			}
			pos += consumed
			if n+1 > uint64(len(payload)-pos) {
				return nil, codecerr.EOFf(int64(baseByte+pos), codecerr.UnitByte,
					"tile[%d] size %d overruns tile group by %d bytes", idx, n+1, n+1-uint64(len(payload)-pos))
			}
			size = int(n) + 1
		}

		col, row := info.Position(idx)
		sbCols, sbRows := info.TileSize(col, row)
		tile := Tile{
			Index:  idx,
			Col:    col,
			Row:    row,
			SbCols: sbCols,
			SbRows: sbRows,
			Offset: baseByte + pos,
			Size:   size,
			Data:   payload[pos : pos+size : pos+size],
		}
		if tree != nil {
			start := base + uint64(pos)*8
			tree.AddField("tile["+strconv.Itoa(idx)+"]",
				syntax.BitRange{Start: start, End: start + uint64(size)*8},
				strconv.Itoa(col)+","+strconv.Itoa(row))
		}
		tg.Tiles = append(tg.Tiles, tile)
		pos += size
	}
	fr.pop()
	return tg, nil
}

func readTileSize(buf []byte, sizeBytes int) (uint64, int, error) {
	if sizeBytes == 0 {
		return leb128.Decode(buf)
	}
	if len(buf) < sizeBytes {
		return 0, 0, codecerr.EOFf(int64(len(buf)), codecerr.UnitByte, "tile_size_minus_1 needs %d bytes", sizeBytes)
	}
	var v uint64
	for i := 0; i < sizeBytes; i++ {
		v |= uint64(buf[i]) << (8 * uint(i))
	}
	return v, sizeBytes, nil
}

// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package av1

import (
	"math"
	"math/rand"
	"testing"

	"github.com/cnotch/av1hub/av/codec/codecerr"
	"github.com/cnotch/av1hub/av/syntax"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTileInfo(t *testing.T) {
	tests := []struct {
		name    string
		cols    uint32
		rows    uint32
		wantErr bool
	}{
		{"single", 1, 1, false},
		{"at cap", 32, 16, false},
		{"max cols", 64, 1, false},
		{"cols over 64", 65, 1, true},
		{"rows over 64", 1, 65, true},
		{"over cap", 64, 64, true},
		{"zero", 0, 4, true},
		{"overflow", math.MaxUint32, math.MaxUint32, true},
		{"overflow cols", math.MaxUint32, 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ti *TileInfo
			var err error
			assert.NotPanics(t, func() { ti, err = NewTileInfo(tt.cols, tt.rows) })
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, codecerr.Is(err, codecerr.KindDecode))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, int(tt.cols), ti.Cols)
			assert.Len(t, ti.ColStarts, int(tt.cols)+1)
			assert.Len(t, ti.RowStarts, int(tt.rows)+1)
			assert.True(t, strictlyIncreasing(ti.ColStarts))
			assert.True(t, strictlyIncreasing(ti.RowStarts))
		})
	}
}

func TestNewTileInfo_Random(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	for i := 0; i < 2000; i++ {
		cols, rows := rnd.Uint32(), rnd.Uint32()
		if i%2 == 0 {
			cols, rows = cols%80, rows%80
		}
		_, err := NewTileInfoWithCap(cols, rows, 1024)
		if cols > MaxTileCols || rows > MaxTileRows || cols == 0 || rows == 0 || uint64(cols)*uint64(rows) > 1024 {
			assert.True(t, codecerr.Is(err, codecerr.KindDecode), "%dx%d", cols, rows)
		} else {
			assert.NoError(t, err, "%dx%d", cols, rows)
		}
	}
}

func TestNewUniformTileInfo(t *testing.T) {
	ti, err := NewUniformTileInfo(10, 5, 3, 2, DefaultMaxTiles)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 3, 6, 10}, ti.ColStarts)
	assert.Equal(t, []int{0, 2, 5}, ti.RowStarts)
	w, h := ti.TileSize(2, 1)
	assert.Equal(t, 4, w)
	assert.Equal(t, 3, h)

	_, err = NewUniformTileInfo(2, 2, 4, 1, DefaultMaxTiles)
	assert.True(t, codecerr.Is(err, codecerr.KindDecode))
}

func TestSplitTiles_Single(t *testing.T) {
	ti, _ := NewTileInfo(1, 1)
	tiles, err := SplitTiles([]byte{1, 2, 3}, ti)
	require.NoError(t, err)
	require.Len(t, tiles, 1)
	assert.Equal(t, []byte{1, 2, 3}, tiles[0].Data)
	assert.Equal(t, 0, tiles[0].Offset)
}

func TestParseTileGroup_Multi(t *testing.T) {
	ti, _ := NewTileInfo(2, 2)
	payload := []byte{
		0x00, // tile_start_and_end_present_flag = 0
		0x02, 0xa, 0xb, 0xc,
		0x00, 0xd,
		0x01, 0xe, 0xf,
		0x10, 0x11,
	}
	b := syntax.NewBuilder("obu[3]", 80)
	tg, err := ParseTileGroup(payload, ti, b, 80)
	require.NoError(t, err)
	require.Len(t, tg.Tiles, 4)
	assert.True(t, tg.IsLast(ti))

	want := []struct {
		col, row, offset int
		data             []byte
	}{
		{0, 0, 12, []byte{0xa, 0xb, 0xc}},
		{1, 0, 16, []byte{0xd}},
		{0, 1, 18, []byte{0xe, 0xf}},
		{1, 1, 20, []byte{0x10, 0x11}},
	}
	for i, w := range want {
		tile := tg.Tiles[i]
		assert.Equal(t, i, tile.Index)
		assert.Equal(t, w.col, tile.Col)
		assert.Equal(t, w.row, tile.Row)
		assert.Equal(t, w.offset, tile.Offset)
		assert.Equal(t, w.data, tile.Data)
		assert.Equal(t, 1, tile.SbCols)
	}

	tree := b.Finish(80 + uint64(len(payload))*8)
	n := tree.Lookup("obu[3].tile_group.tile_size_minus_1[0]")
	require.NotNil(t, n)
	assert.Equal(t, syntax.BitRange{Start: 88, End: 96}, n.Range)
	assert.Equal(t, "2", n.Value)
	assert.NotNil(t, tree.Lookup("obu[3].tile_group.tile[3]"))
}

func TestParseTileGroup_StartEnd(t *testing.T) {
	ti, _ := NewTileInfo(2, 1)
	// flag=1, tg_start=1, tg_end=1
	tg, err := ParseTileGroup([]byte{0xe0, 0x55, 0x66}, ti, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, tg.Start)
	assert.Equal(t, 1, tg.End)
	require.Len(t, tg.Tiles, 1)
	assert.Equal(t, 1, tg.Tiles[0].Col)
	assert.Equal(t, []byte{0x55, 0x66}, tg.Tiles[0].Data)

	// tg_start > tg_end
	_, err = ParseTileGroup([]byte{0xc0, 0x00}, ti, nil, 0)
	assert.True(t, codecerr.Is(err, codecerr.KindInvalidData))
}

func TestParseTileGroup_FixedSizeBytes(t *testing.T) {
	ti, _ := NewTileInfo(2, 1)
	ti.SizeBytes = 2
	tiles, err := SplitTiles([]byte{0x00, 0x01, 0x00, 0xa, 0xb, 0xc}, ti)
	require.NoError(t, err)
	require.Len(t, tiles, 2)
	assert.Equal(t, []byte{0xa, 0xb}, tiles[0].Data)
	assert.Equal(t, []byte{0xc}, tiles[1].Data)
}

func TestParseTileGroup_Overrun(t *testing.T) {
	ti, _ := NewTileInfo(2, 1)
	_, err := ParseTileGroup([]byte{0x00, 0x09, 1, 2}, ti, nil, 8*100)
	require.Error(t, err)
	assert.True(t, codecerr.Is(err, codecerr.KindUnexpectedEOF))
	off, unit, ok := codecerr.OffsetOf(err)
	require.True(t, ok)
	assert.Equal(t, codecerr.UnitByte, unit)
	assert.Equal(t, int64(102), off)

	_, err = ParseTileGroup([]byte{0x00, 0x80}, ti, nil, 0)
	assert.True(t, codecerr.Is(err, codecerr.KindUnexpectedEOF))
}

func TestParseTileGroup_Adversarial(t *testing.T) {
	layouts := []*TileInfo{}
	for _, dims := range [][2]uint32{{64, 8}, {8, 64}, {1, 64}, {32, 16}, {3, 5}} {
		ti, err := NewTileInfo(dims[0], dims[1])
		require.NoError(t, err)
		layouts = append(layouts, ti)
	}
	fixed, _ := NewTileInfo(16, 16)
	fixed.SizeBytes = 4
	layouts = append(layouts, fixed)

	rnd := rand.New(rand.NewSource(42))
	for i := 0; i < 3000; i++ {
		ti := layouts[i%len(layouts)]
		payload := make([]byte, rnd.Intn(300))
		rnd.Read(payload)
		assert.NotPanics(t, func() {
			_, err := ParseTileGroup(payload, ti, syntax.NewBuilder("tg", 0), 0)
			if err != nil {
				assert.NotEqual(t, codecerr.KindUnknown, codecerr.KindOf(err))
			}
		})
	}

	// 篡改的布局同样只返回错误
	broken := &TileInfo{Cols: 4, Rows: 4, ColStarts: []int{0, 1}, RowStarts: []int{0, 1}}
	_, err := SplitTiles([]byte{0, 0, 0}, broken)
	assert.True(t, codecerr.Is(err, codecerr.KindDecode))
	_, err = SplitTiles([]byte{0}, &TileInfo{Cols: 100, Rows: 1})
	assert.True(t, codecerr.Is(err, codecerr.KindDecode))
}

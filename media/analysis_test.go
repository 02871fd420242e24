// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package media

import (
	"context"
	"testing"

	"github.com/cnotch/av1hub/av/codec/av1"
	"github.com/cnotch/av1hub/av/codec/av1/av1test"
	"github.com/cnotch/av1hub/av/syntax"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOptions() Options {
	return Options{DecodeTiles: true, TileWorkers: 2}
}

// TD SEQ KEY TD INTER TD INTER
func analyzeTestStream(t *testing.T) *Analysis {
	a, err := Analyze(context.Background(), av1test.Stream(2, 256), testOptions())
	require.NoError(t, err)
	return a
}

func TestAnalyze_Stream(t *testing.T) {
	a := analyzeTestStream(t)

	require.Len(t, a.Obus, 7)
	require.Len(t, a.Frames, 3)
	require.NotNil(t, a.Sequence)
	assert.Empty(t, a.Anomalies)

	wantFrame := []int{-1, -1, 0, -1, 1, -1, 2}
	for i, rec := range a.Obus {
		assert.Equal(t, i, rec.Index)
		assert.Empty(t, rec.Err, "obu[%d]", i)
		assert.Equal(t, wantFrame[i], rec.FrameIdx, "obu[%d]", i)
		require.NotNil(t, rec.Tree)
		assert.Equal(t, rec.BitRange(), rec.Tree.Root().Range)
	}
	assert.NotNil(t, a.Obus[1].Sequence)

	key := a.Frames[0]
	assert.Equal(t, av1.KeyFrame, key.Header.FrameType)
	assert.Equal(t, []int{2}, key.TileGroups)
	assert.Equal(t, 1, key.NumTiles)
	assert.Equal(t, 30, key.Units)
	assert.Empty(t, key.Failed)
	assert.Empty(t, key.Err)

	for _, f := range a.Frames[1:] {
		assert.Equal(t, av1.InterFrame, f.Header.FrameType)
		assert.Equal(t, key.Units, f.Units)
	}

	cu, ok := key.UnitAt(330, 10)
	require.True(t, ok)
	assert.Equal(t, 320, cu.X)
	assert.Equal(t, 100, cu.QP)
	_, ok = key.UnitAt(400, 10)
	assert.False(t, ok)

	s := a.Sample()
	assert.Equal(t, int64(1), s.Bitstreams)
	assert.Equal(t, int64(7), s.Obus)
	assert.Equal(t, int64(3), s.Frames)
	assert.Equal(t, int64(3), s.Tiles)
	assert.Equal(t, int64(90), s.CodingUnits)
}

func TestAnalyze_GridCellSize(t *testing.T) {
	td := av1test.Obu(av1test.ObuTemporalDelimiter, nil)
	sb128 := append(append([]byte{}, td...), av1test.Obu(av1test.ObuSequenceHeader, av1test.SequenceHeaderSb128())...)
	sb128 = append(sb128, av1test.KeyFrame(100, make([]byte, 256))...)

	tests := []struct {
		name string
		data []byte
		cell int
		want int
	}{
		{"sb64 default", av1test.Stream(0, 256), 0, 64},
		{"sb128 default", sb128, 0, 128},
		{"sb128 explicit", sb128, 16, 16},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testOptions()
			opts.CellSize = tt.cell
			a, err := Analyze(context.Background(), tt.data, opts)
			require.NoError(t, err)
			require.Len(t, a.Frames, 1)
			key := a.Frames[0]
			require.NotNil(t, key.Grid())
			assert.Equal(t, tt.want, key.Grid().CellSize)
			assert.Greater(t, key.Units, 0)
		})
	}
}

func TestAnalyze_ExhaustedTile(t *testing.T) {
	td := av1test.Obu(av1test.ObuTemporalDelimiter, nil)
	data := append(append([]byte{}, td...), av1test.Obu(av1test.ObuSequenceHeader, av1test.SequenceHeader())...)
	data = append(data, av1test.KeyFrame(100, []byte{0xff, 0xff, 0xff, 0xff})...)

	a, err := Analyze(context.Background(), data, testOptions())
	require.NoError(t, err)
	require.Len(t, a.Frames, 1)
	key := a.Frames[0]
	require.Len(t, key.Failed, 1)
	// 6x5 个超级块，首个失败后其余均未解码
	assert.Equal(t, 29, key.Unparsed)
	assert.Zero(t, key.Units)
}

func TestAnalyze_WithoutDecode(t *testing.T) {
	a, err := Analyze(context.Background(), av1test.Stream(1, 64), Options{})
	require.NoError(t, err)
	require.Len(t, a.Frames, 2)
	for _, f := range a.Frames {
		assert.Zero(t, f.Units)
		assert.Nil(t, f.Result())
		assert.Nil(t, f.Grid())
		_, ok := f.UnitAt(0, 0)
		assert.False(t, ok)
	}
}

func TestAnalyze_Framing(t *testing.T) {
	data := av1test.Stream(1, 64)
	bad := append(append([]byte{}, data...), 0x2a, 0x40) // metadata 声明 64 字节载荷

	_, err := Analyze(context.Background(), bad, Options{})
	assert.Error(t, err)

	a, err := Analyze(context.Background(), bad, Options{Resilient: true})
	require.NoError(t, err)
	assert.NotEmpty(t, a.Anomalies)
	assert.Len(t, a.Frames, 2)
}

func TestAnalyze_TileGroupWithoutFrame(t *testing.T) {
	data := av1test.Obu(av1test.ObuTemporalDelimiter, nil)
	data = append(data, av1test.Obu(av1test.ObuTileGroup, []byte{1, 2, 3})...)

	a, err := Analyze(context.Background(), data, testOptions())
	require.NoError(t, err)
	require.Len(t, a.Obus, 2)
	assert.NotEmpty(t, a.Obus[1].Err)
	assert.Equal(t, -1, a.Obus[1].FrameIdx)
	assert.NotNil(t, a.Obus[1].Tree.Lookup("obu[1].payload"))
}

func TestAnalyze_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Analyze(ctx, av1test.Stream(1, 64), testOptions())
	assert.Error(t, err)
}

func TestAnalysis_FindNode(t *testing.T) {
	a := analyzeTestStream(t)

	// obu[1] 从字节 2 开始，obu_type 占 [17,21)
	ref, ok := a.FindNode(syntax.BitRange{Start: 17, End: 18})
	require.True(t, ok)
	assert.Equal(t, 1, ref.ObuIndex)
	assert.Equal(t, "obu[1].obu_header.obu_type", ref.Path)
	assert.Equal(t, syntax.BitRange{Start: 17, End: 21}, ref.Node.Range)

	_, ok = a.FindNode(syntax.BitRange{Start: uint64(a.Size) * 8, End: uint64(a.Size)*8 + 8})
	assert.False(t, ok)
}

func TestAnalysis_Lookup(t *testing.T) {
	a := analyzeTestStream(t)

	tests := []struct {
		path  string
		ok    bool
		value string
	}{
		{"obu[2].frame_header.quantization_params.base_q_idx", true, "100"},
		{"obu[4].frame_header.quantization_params.base_q_idx", true, "120"},
		{"obu[1].obu_header.obu_has_size_field", true, ""},
		{"obu[9].obu_header", false, ""},
		{"obu[x].obu_header", false, ""},
		{"frame[0]", false, ""},
		{"obu[2].no_such_field", false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			ref, ok := a.Lookup(tt.path)
			require.Equal(t, tt.ok, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.path, ref.Path)
			if tt.value != "" {
				assert.Equal(t, tt.value, ref.Node.Value)
			}

			// 反向同步回同一节点
			back, ok := a.FindNode(ref.Node.Range)
			require.True(t, ok)
			assert.Equal(t, ref.ObuIndex, back.ObuIndex)
		})
	}
}

func TestAnalysis_Extract(t *testing.T) {
	a := analyzeTestStream(t)

	res, err := a.Extract(1, 0, 0, true)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, res.ObuIndices)
	assert.Equal(t, 2, res.FrameCount)

	// 片段可以独立分析
	b, err := Analyze(context.Background(), a.ExtractBytes(res), testOptions())
	require.NoError(t, err)
	require.Len(t, b.Frames, 2)
	assert.Equal(t, a.Frames[1].Units, b.Frames[1].Units)

	res, err = a.Extract(2, 0, 0, false)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2, 3, 4, 5, 6}, res.ObuIndices)

	_, err = a.Extract(3, 0, 0, true)
	assert.Error(t, err)
}

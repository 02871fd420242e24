// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package av1

import (
	"testing"

	"github.com/cnotch/av1hub/av/codec/codecerr"
	"github.com/cnotch/av1hub/av/syntax"
	"github.com/cnotch/av1hub/utils/bits"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseTestSequence(t *testing.T) *SequenceHeader {
	seq, err := ParseSequenceHeader(testSequenceHeader(), nil, 0)
	require.NoError(t, err)
	return seq
}

func TestParseSequenceHeader(t *testing.T) {
	b := syntax.NewBuilder("payload", 0)
	seq, err := ParseSequenceHeader(testSequenceHeader(), b, 0)
	require.NoError(t, err)

	assert.Equal(t, 352, seq.MaxFrameWidth())
	assert.Equal(t, 288, seq.MaxFrameHeight())
	assert.Equal(t, 64, seq.SuperblockSize())
	assert.Equal(t, 7, seq.OrderHintBits)
	assert.True(t, seq.EnableOrderHint)
	assert.True(t, seq.EnableCdef)
	assert.False(t, seq.EnableRestoration)
	assert.Equal(t, uint8(SelectScreenContentTools), seq.SeqForceScreenContentTools)
	assert.Equal(t, uint8(SelectIntegerMV), seq.SeqForceIntegerMV)
	require.Len(t, seq.OperatingPoints, 1)
	assert.Equal(t, uint8(8), seq.OperatingPoints[0].SeqLevelIdx)

	cc := seq.ColorConfig
	assert.Equal(t, 8, cc.BitDepth)
	assert.Equal(t, 3, cc.NumPlanes)
	assert.True(t, cc.SubsamplingX)
	assert.True(t, cc.SubsamplingY)
	assert.Equal(t, uint8(ColorPrimariesUnspecified), cc.ColorPrimaries)

	tree := b.Finish(0)
	n := tree.Lookup("payload.sequence_header_obu.max_frame_width_minus_1")
	require.NotNil(t, n)
	assert.Equal(t, "351", n.Value)
	assert.Equal(t, uint64(10), n.Range.Len())
	assert.NotNil(t, tree.Lookup("payload.sequence_header_obu.operating_point[0].seq_tier"))
	assert.NotNil(t, tree.Lookup("payload.sequence_header_obu.color_config.chroma_sample_position"))
	// 条件字段不存在时不记录
	assert.Nil(t, tree.Lookup("payload.sequence_header_obu.timing_info"))
	assert.Nil(t, tree.Lookup("payload.sequence_header_obu.color_config.twelve_bit"))
}

func TestParseSequenceHeader_Errors(t *testing.T) {
	_, err := ParseSequenceHeader([]byte{0xe0}, nil, 0)
	assert.True(t, codecerr.Is(err, codecerr.KindInvalidData))

	_, err = ParseSequenceHeader(testSequenceHeader()[:4], nil, 0)
	assert.True(t, codecerr.Is(err, codecerr.KindUnexpectedEOF))
}

func TestParseSequenceHeader_ReducedStill(t *testing.T) {
	w := &bits.Writer{}
	w.WriteBits(0, 3)
	w.WriteBit(1)      // still_picture
	w.WriteBit(1)      // reduced_still_picture_header
	w.WriteBits(31, 5) // seq_level_idx[0]
	w.WriteBits(7, 4)
	w.WriteBits(7, 4)
	w.WriteBits(127, 8)
	w.WriteBits(63, 8)
	w.WriteBit(1) // use_128x128_superblock
	w.WriteBit(0)
	w.WriteBit(0)
	w.WriteBit(0) // enable_superres
	w.WriteBit(0) // enable_cdef
	w.WriteBit(0) // enable_restoration
	w.WriteBit(0) // high_bitdepth
	w.WriteBit(1) // mono_chrome
	w.WriteBit(0) // color_description_present_flag
	w.WriteBit(1) // color_range
	w.WriteBit(0) // film_grain_params_present

	seq, err := ParseSequenceHeader(w.Bytes(), nil, 0)
	require.NoError(t, err)
	assert.True(t, seq.ReducedStillPictureHeader)
	assert.Equal(t, 128, seq.MaxFrameWidth())
	assert.Equal(t, 64, seq.MaxFrameHeight())
	assert.Equal(t, 128, seq.SuperblockSize())
	assert.Equal(t, 0, seq.OrderHintBits)
	assert.Equal(t, 1, seq.ColorConfig.NumPlanes)
	assert.True(t, seq.ColorConfig.ColorRange)

	ft, ok := PeekFrameType(nil, true)
	assert.True(t, ok)
	assert.Equal(t, KeyFrame, ft)
}

func TestParseFrameHeader_WithoutSequenceHeader(t *testing.T) {
	b := syntax.NewBuilder("payload", 0)
	h, err := ParseFrameHeader([]byte{0x10}, nil, b)
	require.NoError(t, err)
	tree := b.Finish(8)

	ft := tree.Lookup("payload.frame_header.frame_type")
	require.NotNil(t, ft)
	assert.Equal(t, syntax.BitRange{Start: 1, End: 3}, ft.Range)
	assert.Contains(t, ft.Value, "KEY_FRAME")

	sf := tree.Lookup("payload.frame_header.show_frame")
	require.NotNil(t, sf)
	assert.Equal(t, syntax.BitRange{Start: 3, End: 4}, sf.Range)
	assert.Equal(t, "1", sf.Value)

	// 关键帧且显示时 showable_frame 与 error_resilient_mode 不在码流中
	assert.Nil(t, tree.Lookup("payload.frame_header.showable_frame"))
	assert.Nil(t, tree.Lookup("payload.frame_header.error_resilient_mode"))
	assert.True(t, h.ErrorResilientMode)

	assert.True(t, h.Partial)
	assert.Equal(t, uint8(0xff), h.RefreshFrameFlags)
	names := make([]string, 0, len(h.Estimated))
	for _, e := range h.Estimated {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"disable_cdf_update", "allow_screen_content_tools", "frame_size_override_flag"}, names)
	// 估计字段不进入语法树
	assert.Nil(t, tree.Lookup("payload.frame_header.disable_cdf_update"))

	// 帧头容器止于 show_frame，估计的位归属载荷
	fh := tree.Lookup("payload.frame_header")
	require.NotNil(t, fh)
	assert.Equal(t, syntax.BitRange{Start: 0, End: 4}, fh.Range)
	n := tree.FindNearestNode(syntax.BitRange{Start: 5, End: 6})
	require.NotNil(t, n)
	assert.Equal(t, "payload", n.Name)
	n = tree.FindNearestNode(syntax.BitRange{Start: 3, End: 4})
	assert.Equal(t, "show_frame", n.Name)
}

func TestParseFrameHeader_ConditionalFields(t *testing.T) {
	tests := []struct {
		name         string
		payload      byte
		showable     bool
		errResRange  syntax.BitRange
		wantShowable bool
	}{
		{"hidden inter", 0x28, true, syntax.BitRange{Start: 5, End: 6}, true},
		{"shown inter", 0x30, false, syntax.BitRange{Start: 4, End: 5}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := syntax.NewBuilder("payload", 0)
			h, err := ParseFrameHeader([]byte{tt.payload, 0x00, 0x00, 0x00}, nil, b)
			require.NoError(t, err)
			tree := b.Finish(32)

			assert.Equal(t, InterFrame, h.FrameType)
			assert.Equal(t, tt.wantShowable, h.ShowableFrame)
			n := tree.Lookup("payload.frame_header.showable_frame")
			if tt.showable {
				require.NotNil(t, n)
				assert.Equal(t, syntax.BitRange{Start: 4, End: 5}, n.Range)
			} else {
				assert.Nil(t, n)
			}
			er := tree.Lookup("payload.frame_header.error_resilient_mode")
			require.NotNil(t, er)
			assert.Equal(t, tt.errResRange, er.Range)

			_, ok := h.EstimatedValue("refresh_frame_flags")
			assert.True(t, ok)
		})
	}
}

func TestHeaderParser_KeyFrame(t *testing.T) {
	seq := parseTestSequence(t)
	w := &bits.Writer{}
	writeKeyFrameHeader(w, 100)

	p := NewHeaderParser(seq)
	b := syntax.NewBuilder("payload", 0)
	h, err := p.Parse(w.Bytes(), 0, 0, b, 0)
	require.NoError(t, err)

	assert.False(t, h.Partial)
	assert.Empty(t, h.Estimated)
	assert.Equal(t, KeyFrame, h.FrameType)
	assert.Equal(t, 352, h.FrameWidth)
	assert.Equal(t, 288, h.FrameHeight)
	assert.Equal(t, 352, h.UpscaledWidth)
	assert.Equal(t, 88, h.MiCols)
	assert.Equal(t, 72, h.MiRows)
	assert.Equal(t, uint8(100), h.Quantization.BaseQIdx)
	assert.True(t, h.DeltaQPresent)
	assert.False(t, h.CodedLossless)
	assert.Equal(t, TxModeSelect, h.TxMode)
	assert.Equal(t, uint8(3), h.Cdef.Damping)
	assert.Equal(t, uint8(0xff), h.RefreshFrameFlags)
	assert.Equal(t, w.Len(), h.HeaderBits)
	assert.Equal(t, int(w.Len()+7)/8, h.HeaderBytes())

	require.NotNil(t, h.TileInfo)
	assert.Equal(t, 1, h.TileInfo.NumTiles())
	assert.Equal(t, []int{0, 6}, h.TileInfo.ColStarts)
	assert.Equal(t, []int{0, 5}, h.TileInfo.RowStarts)
	assert.Equal(t, 0, h.TileInfo.TileBits())

	for _, slot := range p.Refs() {
		assert.True(t, slot.Valid)
		assert.Equal(t, KeyFrame, slot.FrameType)
		assert.Equal(t, 352, slot.UpscaledWidth)
	}

	tree := b.Finish(w.Len())
	n := tree.Lookup("payload.frame_header.quantization_params.base_q_idx")
	require.NotNil(t, n)
	assert.Equal(t, "100", n.Value)
	assert.Nil(t, tree.Lookup("payload.frame_header.refresh_frame_flags"))
	assert.Nil(t, tree.Lookup("payload.frame_header.primary_ref_frame"))
}

func TestHeaderParser_InterFrame(t *testing.T) {
	seq := parseTestSequence(t)
	p := NewHeaderParser(seq)

	w := &bits.Writer{}
	writeKeyFrameHeader(w, 90)
	_, err := p.Parse(w.Bytes(), 0, 0, nil, 0)
	require.NoError(t, err)
	p.FinishFrame()

	w = &bits.Writer{}
	writeInterFrameHeader(w, 1)
	b := syntax.NewBuilder("payload", 0)
	h, err := p.Parse(w.Bytes(), 0, 0, b, 0)
	require.NoError(t, err)

	assert.Equal(t, InterFrame, h.FrameType)
	assert.True(t, h.ShowableFrame)
	assert.Equal(t, uint8(0), h.PrimaryRefFrame)
	assert.Equal(t, uint8(0x02), h.RefreshFrameFlags)
	assert.Equal(t, FilterSwitchable, h.InterpolationFilter)
	assert.Equal(t, 352, h.FrameWidth)
	assert.Equal(t, uint8(120), h.Quantization.BaseQIdx)
	assert.Equal(t, defaultLoopFilterRefDeltas, h.LoopFilter.RefDeltas)
	assert.Equal(t, GmIdentity, h.GlobalMotion.Type[RefLast])
	assert.Equal(t, int32(1<<WarpedModelPrecBits), h.GlobalMotion.Params[RefLast][2])
	assert.Equal(t, w.Len(), h.HeaderBits)

	refs := p.Refs()
	assert.Equal(t, KeyFrame, refs[0].FrameType)
	assert.Equal(t, InterFrame, refs[1].FrameType)
	assert.Equal(t, uint32(1), refs[1].OrderHint)

	tree := b.Finish(w.Len())
	rf := tree.Lookup("payload.frame_header.refresh_frame_flags")
	require.NotNil(t, rf)
	assert.Equal(t, "0x02", rf.Value)
	assert.NotNil(t, tree.Lookup("payload.frame_header.ref_frame_idx[6]"))
	assert.NotNil(t, tree.Lookup("payload.frame_header.global_motion_params.is_global#6"))
}

func TestHeaderParser_ShowExistingAndRedundant(t *testing.T) {
	seq := parseTestSequence(t)
	p := NewHeaderParser(seq)

	w := &bits.Writer{}
	writeKeyFrameHeader(w, 64)
	keyObu := Obu{Header: ObuHeader{Type: ObuFrameHeader}, Payload: w.Bytes()}
	key, err := p.ParseObu(&keyObu, nil)
	require.NoError(t, err)
	assert.False(t, key.Redundant)

	red := Obu{Header: ObuHeader{Type: ObuRedundantFrameHeader}, Payload: w.Bytes()}
	copied, err := p.ParseObu(&red, nil)
	require.NoError(t, err)
	assert.True(t, copied.Redundant)
	assert.Equal(t, key.Quantization, copied.Quantization)
	p.FinishFrame()

	b := syntax.NewBuilder("payload", 0)
	h, err := p.Parse([]byte{0x80}, 0, 0, b, 0)
	require.NoError(t, err)
	assert.True(t, h.ShowExistingFrame)
	assert.Equal(t, KeyFrame, h.FrameType)
	assert.Equal(t, uint8(0xff), h.RefreshFrameFlags)
	assert.Equal(t, 352, h.FrameWidth)
	assert.Equal(t, uint64(4), h.HeaderBits)

	tree := b.Finish(8)
	n := tree.Lookup("payload.frame_header.frame_to_show_map_idx")
	require.NotNil(t, n)
	assert.Equal(t, syntax.BitRange{Start: 1, End: 4}, n.Range)
	assert.Nil(t, tree.Lookup("payload.frame_header.frame_type"))

	_, err = p.ParseObu(&Obu{Header: ObuHeader{Type: ObuTileGroup}}, nil)
	assert.True(t, codecerr.Is(err, codecerr.KindInvalidData))
}

func TestHeaderParser_Truncated(t *testing.T) {
	seq := parseTestSequence(t)
	w := &bits.Writer{}
	writeKeyFrameHeader(w, 100)
	payload := w.Bytes()

	for n := 0; n < len(payload)-1; n++ {
		_, err := NewHeaderParser(seq).Parse(payload[:n], 0, 0, syntax.NewBuilder("payload", 0), 0)
		require.Error(t, err, "prefix %d", n)
		assert.True(t, codecerr.Is(err, codecerr.KindUnexpectedEOF), "prefix %d: %v", n, err)
		_, _, ok := codecerr.OffsetOf(err)
		assert.True(t, ok)
	}
}

// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package av1test 生成测试用的合成 AV1 码流。
package av1test

import (
	"github.com/cnotch/av1hub/utils/bits"
	"github.com/cnotch/av1hub/utils/leb128"
)

// OBU 类型，与 av1.ObuType 取值一致
const (
	ObuSequenceHeader    = 1
	ObuTemporalDelimiter = 2
	ObuFrameHeader       = 3
	ObuTileGroup         = 4
	ObuMetadata          = 5
	ObuFrame             = 6
	ObuRedundantFrameHdr = 7
	ObuPadding           = 15
	refsPerFrame         = 7
	numGlobalMotionRefs  = 7
)

// SequenceHeader 352x288, profile 0, 8-bit 4:2:0, 7 位 order hint, cdef 开启，64x64 超级块
func SequenceHeader() []byte {
	return sequenceHeader(false)
}

// SequenceHeaderSb128 同 SequenceHeader，但使用 128x128 超级块
func SequenceHeaderSb128() []byte {
	return sequenceHeader(true)
}

func sequenceHeader(sb128 bool) []byte {
	w := &bits.Writer{}
	w.WriteBits(0, 3) // seq_profile
	w.WriteBit(0)     // still_picture
	w.WriteBit(0)     // reduced_still_picture_header
	w.WriteBit(0)     // timing_info_present_flag
	w.WriteBit(0)     // initial_display_delay_present_flag
	w.WriteBits(0, 5) // operating_points_cnt_minus_1
	w.WriteBits(0, 12)
	w.WriteBits(8, 5) // seq_level_idx
	w.WriteBit(0)     // seq_tier
	w.WriteBits(9, 4)
	w.WriteBits(9, 4)
	w.WriteBits(351, 10)
	w.WriteBits(287, 10)
	w.WriteBit(0) // frame_id_numbers_present_flag
	if sb128 {
		w.WriteBit(1) // use_128x128_superblock
	} else {
		w.WriteBit(0)
	}
	w.WriteBit(1) // enable_filter_intra
	w.WriteBit(1) // enable_intra_edge_filter
	w.WriteBit(0) // enable_interintra_compound
	w.WriteBit(0) // enable_masked_compound
	w.WriteBit(0) // enable_warped_motion
	w.WriteBit(0) // enable_dual_filter
	w.WriteBit(1) // enable_order_hint
	w.WriteBit(0) // enable_jnt_comp
	w.WriteBit(0) // enable_ref_frame_mvs
	w.WriteBit(1) // seq_choose_screen_content_tools
	w.WriteBit(1) // seq_choose_integer_mv
	w.WriteBits(6, 3)
	w.WriteBit(0) // enable_superres
	w.WriteBit(1) // enable_cdef
	w.WriteBit(0) // enable_restoration
	w.WriteBit(0) // high_bitdepth
	w.WriteBit(0) // mono_chrome
	w.WriteBit(0) // color_description_present_flag
	w.WriteBit(0) // color_range
	w.WriteBits(0, 2)
	w.WriteBit(0) // separate_uv_delta_q
	w.WriteBit(0) // film_grain_params_present
	w.ByteAlign()
	return w.Bytes()
}

// WriteKeyFrameHeader 与 SequenceHeader 配套的关键帧头，单 tile
func WriteKeyFrameHeader(w *bits.Writer, baseQ uint64) {
	w.WriteBit(0)     // show_existing_frame
	w.WriteBits(0, 2) // frame_type
	w.WriteBit(1)     // show_frame
	w.WriteBit(0)     // disable_cdf_update
	w.WriteBit(0)     // allow_screen_content_tools
	w.WriteBit(0)     // frame_size_override_flag
	w.WriteBits(0, 7) // order_hint
	w.WriteBit(0)     // render_and_frame_size_different
	w.WriteBit(0)     // disable_frame_end_update_cdf
	w.WriteBit(1)     // uniform_tile_spacing_flag
	w.WriteBit(0)     // increment_tile_cols_log2
	w.WriteBit(0)     // increment_tile_rows_log2
	w.WriteBits(baseQ, 8)
	w.WriteBit(0)     // delta_coded y_dc
	w.WriteBit(0)     // delta_coded u_dc
	w.WriteBit(0)     // delta_coded u_ac
	w.WriteBit(0)     // using_qmatrix
	w.WriteBit(0)     // segmentation_enabled
	w.WriteBit(1)     // delta_q_present，baseQ 必须大于 0
	w.WriteBits(0, 2) // delta_q_res
	w.WriteBit(0)     // delta_lf_present
	w.WriteBits(0, 6)
	w.WriteBits(0, 6)
	w.WriteBits(0, 3) // loop_filter_sharpness
	w.WriteBit(0)     // loop_filter_delta_enabled
	w.WriteBits(0, 2) // cdef_damping_minus_3
	w.WriteBits(0, 2) // cdef_bits
	w.WriteBits(0, 4)
	w.WriteBits(0, 2)
	w.WriteBits(0, 4)
	w.WriteBits(0, 2)
	w.WriteBit(1) // tx_mode_select
	w.WriteBit(0) // reduced_tx_set
}

// WriteInterFrameHeader 引用槽位 0 的帧间帧头
func WriteInterFrameHeader(w *bits.Writer, orderHint uint64) {
	w.WriteBit(0)     // show_existing_frame
	w.WriteBits(1, 2) // frame_type
	w.WriteBit(1)     // show_frame
	w.WriteBit(0)     // error_resilient_mode
	w.WriteBit(0)     // disable_cdf_update
	w.WriteBit(0)     // allow_screen_content_tools
	w.WriteBit(0)     // frame_size_override_flag
	w.WriteBits(orderHint, 7)
	w.WriteBits(0, 3)    // primary_ref_frame
	w.WriteBits(0x02, 8) // refresh_frame_flags
	w.WriteBit(0)        // frame_refs_short_signaling
	for i := 0; i < refsPerFrame; i++ {
		w.WriteBits(0, 3)
	}
	w.WriteBit(0) // render_and_frame_size_different
	w.WriteBit(0) // allow_high_precision_mv
	w.WriteBit(1) // is_filter_switchable
	w.WriteBit(0) // is_motion_mode_switchable
	w.WriteBit(0) // disable_frame_end_update_cdf
	w.WriteBit(1) // uniform_tile_spacing_flag
	w.WriteBit(0) // increment_tile_cols_log2
	w.WriteBit(0) // increment_tile_rows_log2
	w.WriteBits(120, 8)
	w.WriteBit(0) // delta_coded y_dc
	w.WriteBit(0) // delta_coded u_dc
	w.WriteBit(0) // delta_coded u_ac
	w.WriteBit(0) // using_qmatrix
	w.WriteBit(0) // segmentation_enabled
	w.WriteBit(0) // delta_q_present
	w.WriteBits(0, 6)
	w.WriteBits(0, 6)
	w.WriteBits(0, 3)
	w.WriteBit(0)
	w.WriteBits(0, 2)
	w.WriteBits(0, 2)
	w.WriteBits(0, 4)
	w.WriteBits(0, 2)
	w.WriteBits(0, 4)
	w.WriteBits(0, 2)
	w.WriteBit(1) // tx_mode_select
	w.WriteBit(0) // reference_select
	w.WriteBit(0) // reduced_tx_set
	for ref := 0; ref < numGlobalMotionRefs; ref++ {
		w.WriteBit(0) // is_global
	}
}

// Obu 组装带 obu_size 的 OBU
func Obu(typ int, payload []byte) []byte {
	out := []byte{byte(typ)<<3 | 0x02}
	out = leb128.Append(out, uint64(len(payload)))
	return append(out, payload...)
}

// KeyFrame 关键帧 OBU_FRAME：帧头按字节对齐后接 tileData
func KeyFrame(baseQ uint64, tileData []byte) []byte {
	w := &bits.Writer{}
	WriteKeyFrameHeader(w, baseQ)
	w.ByteAlign()
	return Obu(ObuFrame, append(w.Bytes(), tileData...))
}

// InterFrame 帧间 OBU_FRAME
func InterFrame(orderHint uint64, tileData []byte) []byte {
	w := &bits.Writer{}
	WriteInterFrameHeader(w, orderHint)
	w.ByteAlign()
	return Obu(ObuFrame, append(w.Bytes(), tileData...))
}

// Stream TD SEQ KEY (TD INTER)* 组成的时间单元序列，tile 数据全零
func Stream(interFrames int, tileBytes int) []byte {
	td := Obu(ObuTemporalDelimiter, nil)
	var out []byte
	out = append(out, td...)
	out = append(out, Obu(ObuSequenceHeader, SequenceHeader())...)
	out = append(out, KeyFrame(100, make([]byte, tileBytes))...)
	for i := 1; i <= interFrames; i++ {
		out = append(out, td...)
		out = append(out, InterFrame(uint64(i), make([]byte, tileBytes))...)
	}
	return out
}

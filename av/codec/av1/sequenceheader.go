// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package av1

import (
	"strconv"

	"github.com/cnotch/av1hub/av/codec/codecerr"
	"github.com/cnotch/av1hub/av/syntax"
)

// TimingInfo timing_info()
type TimingInfo struct {
	NumUnitsInDisplayTick    uint32 `json:"num_units_in_display_tick"`
	TimeScale                uint32 `json:"time_scale"`
	EqualPictureInterval     bool   `json:"equal_picture_interval"`
	NumTicksPerPictureMinus1 uint32 `json:"num_ticks_per_picture_minus_1,omitempty"`
}

// DecoderModelInfo decoder_model_info()
type DecoderModelInfo struct {
	BufferDelayLengthMinus1           uint8  `json:"buffer_delay_length_minus_1"`
	NumUnitsInDecodingTick            uint32 `json:"num_units_in_decoding_tick"`
	BufferRemovalTimeLengthMinus1     uint8  `json:"buffer_removal_time_length_minus_1"`
	FramePresentationTimeLengthMinus1 uint8  `json:"frame_presentation_time_length_minus_1"`
}

// OperatingPoint 操作点参数
type OperatingPoint struct {
	Idc                        uint16 `json:"idc"`
	SeqLevelIdx                uint8  `json:"seq_level_idx"`
	SeqTier                    uint8  `json:"seq_tier"`
	DecoderModelPresent        bool   `json:"decoder_model_present"`
	DecoderBufferDelay         uint32 `json:"decoder_buffer_delay,omitempty"`
	EncoderBufferDelay         uint32 `json:"encoder_buffer_delay,omitempty"`
	LowDelayModeFlag           bool   `json:"low_delay_mode_flag,omitempty"`
	InitialDisplayDelayPresent bool   `json:"initial_display_delay_present"`
	InitialDisplayDelayMinus1  uint8  `json:"initial_display_delay_minus_1,omitempty"`
}

// ColorConfig color_config()
type ColorConfig struct {
	BitDepth                int   `json:"bit_depth"`
	MonoChrome              bool  `json:"mono_chrome"`
	NumPlanes               int   `json:"num_planes"`
	ColorDescriptionPresent bool  `json:"color_description_present"`
	ColorPrimaries          uint8 `json:"color_primaries"`
	TransferCharacteristics uint8 `json:"transfer_characteristics"`
	MatrixCoefficients      uint8 `json:"matrix_coefficients"`
	ColorRange              bool  `json:"color_range"`
	SubsamplingX            bool  `json:"subsampling_x"`
	SubsamplingY            bool  `json:"subsampling_y"`
	ChromaSamplePosition    uint8 `json:"chroma_sample_position"`
	SeparateUVDeltaQ        bool  `json:"separate_uv_delta_q"`
}

// SequenceHeader sequence_header_obu()
type SequenceHeader struct {
	SeqProfile                uint8 `json:"seq_profile"`
	StillPicture              bool  `json:"still_picture"`
	ReducedStillPictureHeader bool  `json:"reduced_still_picture_header"`

	TimingInfoPresent          bool              `json:"timing_info_present"`
	TimingInfo                 *TimingInfo       `json:"timing_info,omitempty"`
	DecoderModelInfoPresent    bool              `json:"decoder_model_info_present"`
	DecoderModelInfo           *DecoderModelInfo `json:"decoder_model_info,omitempty"`
	InitialDisplayDelayPresent bool              `json:"initial_display_delay_present"`
	OperatingPoints            []OperatingPoint  `json:"operating_points"`

	FrameWidthBits       int    `json:"frame_width_bits"`
	FrameHeightBits      int    `json:"frame_height_bits"`
	MaxFrameWidthMinus1  uint32 `json:"max_frame_width_minus_1"`
	MaxFrameHeightMinus1 uint32 `json:"max_frame_height_minus_1"`

	FrameIDNumbersPresent         bool  `json:"frame_id_numbers_present"`
	DeltaFrameIDLengthMinus2      uint8 `json:"delta_frame_id_length_minus_2,omitempty"`
	AdditionalFrameIDLengthMinus1 uint8 `json:"additional_frame_id_length_minus_1,omitempty"`

	Use128x128Superblock       bool  `json:"use_128x128_superblock"`
	EnableFilterIntra          bool  `json:"enable_filter_intra"`
	EnableIntraEdgeFilter      bool  `json:"enable_intra_edge_filter"`
	EnableInterintraCompound   bool  `json:"enable_interintra_compound"`
	EnableMaskedCompound       bool  `json:"enable_masked_compound"`
	EnableWarpedMotion         bool  `json:"enable_warped_motion"`
	EnableDualFilter           bool  `json:"enable_dual_filter"`
	EnableOrderHint            bool  `json:"enable_order_hint"`
	EnableJntComp              bool  `json:"enable_jnt_comp"`
	EnableRefFrameMvs          bool  `json:"enable_ref_frame_mvs"`
	SeqForceScreenContentTools uint8 `json:"seq_force_screen_content_tools"`
	SeqForceIntegerMV          uint8 `json:"seq_force_integer_mv"`
	OrderHintBits              int   `json:"order_hint_bits"`

	EnableSuperres         bool        `json:"enable_superres"`
	EnableCdef             bool        `json:"enable_cdef"`
	EnableRestoration      bool        `json:"enable_restoration"`
	ColorConfig            ColorConfig `json:"color_config"`
	FilmGrainParamsPresent bool        `json:"film_grain_params_present"`
}

// MaxFrameWidth 最大帧宽
func (s *SequenceHeader) MaxFrameWidth() int { return int(s.MaxFrameWidthMinus1) + 1 }

// MaxFrameHeight 最大帧高
func (s *SequenceHeader) MaxFrameHeight() int { return int(s.MaxFrameHeightMinus1) + 1 }

// SuperblockSize 超级块边长（像素）
func (s *SequenceHeader) SuperblockSize() int {
	if s.Use128x128Superblock {
		return 128
	}
	return 64
}

// IDLen 帧 id 长度（位），仅在 FrameIDNumbersPresent 时有效
func (s *SequenceHeader) IDLen() int {
	return int(s.AdditionalFrameIDLengthMinus1) + int(s.DeltaFrameIDLengthMinus2) + 3
}

// ParseSequenceHeader 解析序列头载荷；base 为载荷在码流中的起始位，
// tree 为 nil 时不记录语法树
func ParseSequenceHeader(payload []byte, tree *syntax.Builder, base uint64) (*SequenceHeader, error) {
	fr := newFieldReader(payload, tree, base)
	s := &SequenceHeader{}

	fr.push("sequence_header_obu")
	s.SeqProfile = uint8(fr.f("seq_profile", 3))
	if fr.err == nil && s.SeqProfile > 2 {
		return s, codecerr.InvalidAt(int64(fr.pos()-3), "seq_profile %d out of range", s.SeqProfile)
	}
	s.StillPicture = fr.flag("still_picture")
	s.ReducedStillPictureHeader = fr.flag("reduced_still_picture_header")

	if s.ReducedStillPictureHeader {
		op := OperatingPoint{}
		op.SeqLevelIdx = uint8(fr.f("seq_level_idx[0]", 5))
		s.OperatingPoints = []OperatingPoint{op}
	} else {
		s.parseOperatingPoints(fr)
	}

	s.FrameWidthBits = int(fr.f("frame_width_bits_minus_1", 4)) + 1
	s.FrameHeightBits = int(fr.f("frame_height_bits_minus_1", 4)) + 1
	s.MaxFrameWidthMinus1 = fr.f("max_frame_width_minus_1", s.FrameWidthBits)
	s.MaxFrameHeightMinus1 = fr.f("max_frame_height_minus_1", s.FrameHeightBits)

	if !s.ReducedStillPictureHeader {
		s.FrameIDNumbersPresent = fr.flag("frame_id_numbers_present_flag")
	}
	if s.FrameIDNumbersPresent {
		s.DeltaFrameIDLengthMinus2 = uint8(fr.f("delta_frame_id_length_minus_2", 4))
		s.AdditionalFrameIDLengthMinus1 = uint8(fr.f("additional_frame_id_length_minus_1", 3))
	}

	s.Use128x128Superblock = fr.flag("use_128x128_superblock")
	s.EnableFilterIntra = fr.flag("enable_filter_intra")
	s.EnableIntraEdgeFilter = fr.flag("enable_intra_edge_filter")

	s.SeqForceScreenContentTools = SelectScreenContentTools
	s.SeqForceIntegerMV = SelectIntegerMV
	if !s.ReducedStillPictureHeader {
		s.EnableInterintraCompound = fr.flag("enable_interintra_compound")
		s.EnableMaskedCompound = fr.flag("enable_masked_compound")
		s.EnableWarpedMotion = fr.flag("enable_warped_motion")
		s.EnableDualFilter = fr.flag("enable_dual_filter")
		s.EnableOrderHint = fr.flag("enable_order_hint")
		if s.EnableOrderHint {
			s.EnableJntComp = fr.flag("enable_jnt_comp")
			s.EnableRefFrameMvs = fr.flag("enable_ref_frame_mvs")
		}
		if !fr.flag("seq_choose_screen_content_tools") {
			s.SeqForceScreenContentTools = uint8(fr.f("seq_force_screen_content_tools", 1))
		}
		if s.SeqForceScreenContentTools > 0 {
			if !fr.flag("seq_choose_integer_mv") {
				s.SeqForceIntegerMV = uint8(fr.f("seq_force_integer_mv", 1))
			}
		}
		if s.EnableOrderHint {
			s.OrderHintBits = int(fr.f("order_hint_bits_minus_1", 3)) + 1
		}
	}

	s.EnableSuperres = fr.flag("enable_superres")
	s.EnableCdef = fr.flag("enable_cdef")
	s.EnableRestoration = fr.flag("enable_restoration")
	s.parseColorConfig(fr)
	s.FilmGrainParamsPresent = fr.flag("film_grain_params_present")
	fr.pop()

	if fr.err != nil {
		return s, fr.err
	}
	return s, nil
}

func (s *SequenceHeader) parseOperatingPoints(fr *fieldReader) {
	s.TimingInfoPresent = fr.flag("timing_info_present_flag")
	if s.TimingInfoPresent {
		ti := &TimingInfo{}
		fr.push("timing_info")
		ti.NumUnitsInDisplayTick = fr.f("num_units_in_display_tick", 32)
		ti.TimeScale = fr.f("time_scale", 32)
		ti.EqualPictureInterval = fr.flag("equal_picture_interval")
		if ti.EqualPictureInterval {
			ti.NumTicksPerPictureMinus1 = fr.uvlc("num_ticks_per_picture_minus_1")
		}
		fr.pop()
		s.TimingInfo = ti

		s.DecoderModelInfoPresent = fr.flag("decoder_model_info_present_flag")
		if s.DecoderModelInfoPresent {
			dm := &DecoderModelInfo{}
			fr.push("decoder_model_info")
			dm.BufferDelayLengthMinus1 = uint8(fr.f("buffer_delay_length_minus_1", 5))
			dm.NumUnitsInDecodingTick = fr.f("num_units_in_decoding_tick", 32)
			dm.BufferRemovalTimeLengthMinus1 = uint8(fr.f("buffer_removal_time_length_minus_1", 5))
			dm.FramePresentationTimeLengthMinus1 = uint8(fr.f("frame_presentation_time_length_minus_1", 5))
			fr.pop()
			s.DecoderModelInfo = dm
		}
	}

	s.InitialDisplayDelayPresent = fr.flag("initial_display_delay_present_flag")
	count := int(fr.f("operating_points_cnt_minus_1", 5)) + 1
	if fr.err != nil {
		return
	}
	s.OperatingPoints = make([]OperatingPoint, count)
	for i := range s.OperatingPoints {
		op := &s.OperatingPoints[i]
		suffix := "[" + strconv.Itoa(i) + "]"
		fr.push("operating_point" + suffix)
		op.Idc = uint16(fr.f("operating_point_idc", 12))
		op.SeqLevelIdx = uint8(fr.f("seq_level_idx", 5))
		if op.SeqLevelIdx > 7 {
			op.SeqTier = uint8(fr.f("seq_tier", 1))
		}
		if s.DecoderModelInfoPresent {
			op.DecoderModelPresent = fr.flag("decoder_model_present_for_this_op")
			if op.DecoderModelPresent {
				n := int(s.DecoderModelInfo.BufferDelayLengthMinus1) + 1
				op.DecoderBufferDelay = fr.f("decoder_buffer_delay", n)
				op.EncoderBufferDelay = fr.f("encoder_buffer_delay", n)
				op.LowDelayModeFlag = fr.flag("low_delay_mode_flag")
			}
		}
		if s.InitialDisplayDelayPresent {
			op.InitialDisplayDelayPresent = fr.flag("initial_display_delay_present_for_this_op")
			if op.InitialDisplayDelayPresent {
				op.InitialDisplayDelayMinus1 = uint8(fr.f("initial_display_delay_minus_1", 4))
			}
		}
		fr.pop()
	}
}

func (s *SequenceHeader) parseColorConfig(fr *fieldReader) {
	cc := &s.ColorConfig
	fr.push("color_config")
	defer fr.pop()

	highBitdepth := fr.flag("high_bitdepth")
	cc.BitDepth = 8
	if s.SeqProfile == 2 && highBitdepth {
		if fr.flag("twelve_bit") {
			cc.BitDepth = 12
		} else {
			cc.BitDepth = 10
		}
	} else if highBitdepth {
		cc.BitDepth = 10
	}

	if s.SeqProfile != 1 {
		cc.MonoChrome = fr.flag("mono_chrome")
	}
	cc.NumPlanes = 3
	if cc.MonoChrome {
		cc.NumPlanes = 1
	}

	cc.ColorDescriptionPresent = fr.flag("color_description_present_flag")
	if cc.ColorDescriptionPresent {
		cc.ColorPrimaries = uint8(fr.f("color_primaries", 8))
		cc.TransferCharacteristics = uint8(fr.f("transfer_characteristics", 8))
		cc.MatrixCoefficients = uint8(fr.f("matrix_coefficients", 8))
	} else {
		cc.ColorPrimaries = ColorPrimariesUnspecified
		cc.TransferCharacteristics = TransferUnspecified
		cc.MatrixCoefficients = MatrixUnspecified
	}

	switch {
	case cc.MonoChrome:
		cc.ColorRange = fr.flag("color_range")
		cc.SubsamplingX, cc.SubsamplingY = true, true
		return
	case cc.ColorPrimaries == ColorPrimariesBT709 &&
		cc.TransferCharacteristics == TransferCharacteristicsSRGB &&
		cc.MatrixCoefficients == MatrixCoefficientsIdentity:
		cc.ColorRange = true
	default:
		cc.ColorRange = fr.flag("color_range")
		switch s.SeqProfile {
		case 0:
			cc.SubsamplingX, cc.SubsamplingY = true, true
		case 1:
		default:
			if cc.BitDepth == 12 {
				cc.SubsamplingX = fr.flag("subsampling_x")
				if cc.SubsamplingX {
					cc.SubsamplingY = fr.flag("subsampling_y")
				}
			} else {
				cc.SubsamplingX = true
			}
		}
		if cc.SubsamplingX && cc.SubsamplingY {
			cc.ChromaSamplePosition = uint8(fr.f("chroma_sample_position", 2))
		}
	}
	cc.SeparateUVDeltaQ = fr.flag("separate_uv_delta_q")
}

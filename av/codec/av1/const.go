// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package av1

import "fmt"

// ObuType OBU 类型，4 位
type ObuType uint8

// OBU 类型常量
const (
	ObuReserved0            ObuType = 0
	ObuSequenceHeader       ObuType = 1
	ObuTemporalDelimiter    ObuType = 2
	ObuFrameHeader          ObuType = 3
	ObuTileGroup            ObuType = 4
	ObuMetadata             ObuType = 5
	ObuFrame                ObuType = 6
	ObuRedundantFrameHeader ObuType = 7
	ObuTileList             ObuType = 8
	ObuPadding              ObuType = 15
)

var obuTypeNames = [16]string{
	ObuSequenceHeader:       "OBU_SEQUENCE_HEADER",
	ObuTemporalDelimiter:    "OBU_TEMPORAL_DELIMITER",
	ObuFrameHeader:          "OBU_FRAME_HEADER",
	ObuTileGroup:            "OBU_TILE_GROUP",
	ObuMetadata:             "OBU_METADATA",
	ObuFrame:                "OBU_FRAME",
	ObuRedundantFrameHeader: "OBU_REDUNDANT_FRAME_HEADER",
	ObuTileList:             "OBU_TILE_LIST",
	ObuPadding:              "OBU_PADDING",
}

func (t ObuType) String() string {
	if int(t) < len(obuTypeNames) && obuTypeNames[t] != "" {
		return obuTypeNames[t]
	}
	return fmt.Sprintf("OBU_RESERVED_%d", uint8(t))
}

// IsKnown 是否为已定义（非保留）类型
func (t ObuType) IsKnown() bool {
	return int(t) < len(obuTypeNames) && obuTypeNames[t] != ""
}

// CarriesFrameHeader 是否携带帧头
func (t ObuType) CarriesFrameHeader() bool {
	return t == ObuFrameHeader || t == ObuFrame || t == ObuRedundantFrameHeader
}

// MarshalText marshals the ObuType to text.
func (t ObuType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// FrameType 帧类型，2 位
type FrameType uint8

// 帧类型常量
const (
	KeyFrame       FrameType = 0
	InterFrame     FrameType = 1
	IntraOnlyFrame FrameType = 2
	SwitchFrame    FrameType = 3
)

func (t FrameType) String() string {
	switch t {
	case KeyFrame:
		return "KEY_FRAME"
	case InterFrame:
		return "INTER_FRAME"
	case IntraOnlyFrame:
		return "INTRA_ONLY_FRAME"
	case SwitchFrame:
		return "SWITCH_FRAME"
	default:
		return fmt.Sprintf("FRAME_TYPE_%d", uint8(t))
	}
}

// IsIntra 关键帧或帧内帧
func (t FrameType) IsIntra() bool {
	return t == KeyFrame || t == IntraOnlyFrame
}

// MarshalText marshals the FrameType to text.
func (t FrameType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// 语法常量
const (
	RefsPerFrame             = 7
	TotalRefsPerFrame        = 8
	NumRefFrames             = 8
	PrimaryRefNone           = 7
	MaxSegments              = 8
	SegLvlMax                = 8
	SegLvlAltQ               = 0
	MaxTileWidth             = 4096
	MaxTileArea              = 4096 * 2304
	MaxTileRows              = 64
	MaxTileCols              = 64
	MaxOperatingPoints       = 32
	SelectScreenContentTools = 2
	SelectIntegerMV          = 2
	SuperresNum              = 8
	SuperresDenomMin         = 9
	SuperresDenomBits        = 3
	WarpedModelPrecBits      = 16
	allFrames                = 0xff
)

// 色彩常量
const (
	ColorPrimariesBT709         = 1
	ColorPrimariesUnspecified   = 2
	TransferCharacteristicsSRGB = 13
	TransferUnspecified         = 2
	MatrixCoefficientsIdentity  = 0
	MatrixUnspecified           = 2
)

// InterpolationFilter 插值滤波器
type InterpolationFilter uint8

// 插值滤波器常量
const (
	FilterEightTap       InterpolationFilter = 0
	FilterEightTapSmooth InterpolationFilter = 1
	FilterEightTapSharp  InterpolationFilter = 2
	FilterBilinear       InterpolationFilter = 3
	FilterSwitchable     InterpolationFilter = 4
)

func (f InterpolationFilter) String() string {
	switch f {
	case FilterEightTap:
		return "EIGHTTAP"
	case FilterEightTapSmooth:
		return "EIGHTTAP_SMOOTH"
	case FilterEightTapSharp:
		return "EIGHTTAP_SHARP"
	case FilterBilinear:
		return "BILINEAR"
	default:
		return "SWITCHABLE"
	}
}

// GlobalMotionType 全局运动模型类型
type GlobalMotionType uint8

// 全局运动模型常量
const (
	GmIdentity    GlobalMotionType = 0
	GmTranslation GlobalMotionType = 1
	GmRotZoom     GlobalMotionType = 2
	GmAffine      GlobalMotionType = 3
)

func (g GlobalMotionType) String() string {
	switch g {
	case GmTranslation:
		return "TRANSLATION"
	case GmRotZoom:
		return "ROTZOOM"
	case GmAffine:
		return "AFFINE"
	default:
		return "IDENTITY"
	}
}

var (
	segmentationFeatureBits   = [SegLvlMax]int{8, 6, 6, 6, 6, 3, 0, 0}
	segmentationFeatureSigned = [SegLvlMax]bool{true, true, true, true, true, false, false, false}
	segmentationFeatureMax    = [SegLvlMax]int32{255, 63, 63, 63, 63, 7, 0, 0}
)

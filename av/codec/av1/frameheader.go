// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package av1

import (
	"fmt"
	"strconv"

	"github.com/cnotch/av1hub/av/codec/codecerr"
	"github.com/cnotch/av1hub/av/syntax"
)

// 参考帧名称
const (
	RefIntra   = 0
	RefLast    = 1
	RefLast2   = 2
	RefLast3   = 3
	RefGolden  = 4
	RefBwdref  = 5
	RefAltref2 = 6
	RefAltref  = 7
)

// TxMode 变换模式
type TxMode uint8

// 变换模式常量
const (
	TxModeOnly4x4 TxMode = 0
	TxModeLargest TxMode = 1
	TxModeSelect  TxMode = 2
)

func (m TxMode) String() string {
	switch m {
	case TxModeOnly4x4:
		return "ONLY_4X4"
	case TxModeLargest:
		return "TX_MODE_LARGEST"
	default:
		return "TX_MODE_SELECT"
	}
}

// RestorationType 环路恢复类型
type RestorationType uint8

// 环路恢复类型常量
const (
	RestoreNone       RestorationType = 0
	RestoreWiener     RestorationType = 1
	RestoreSgrproj    RestorationType = 2
	RestoreSwitchable RestorationType = 3
)

var remapLrType = [4]RestorationType{RestoreNone, RestoreSwitchable, RestoreWiener, RestoreSgrproj}

func (t RestorationType) String() string {
	switch t {
	case RestoreWiener:
		return "RESTORE_WIENER"
	case RestoreSgrproj:
		return "RESTORE_SGRPROJ"
	case RestoreSwitchable:
		return "RESTORE_SWITCHABLE"
	default:
		return "RESTORE_NONE"
	}
}

// Quantization quantization_params()
type Quantization struct {
	BaseQIdx     uint8 `json:"base_q_idx"`
	DeltaQYDc    int32 `json:"delta_q_y_dc"`
	DiffUVDelta  bool  `json:"diff_uv_delta"`
	DeltaQUDc    int32 `json:"delta_q_u_dc"`
	DeltaQUAc    int32 `json:"delta_q_u_ac"`
	DeltaQVDc    int32 `json:"delta_q_v_dc"`
	DeltaQVAc    int32 `json:"delta_q_v_ac"`
	UsingQmatrix bool  `json:"using_qmatrix"`
	QmY          uint8 `json:"qm_y,omitempty"`
	QmU          uint8 `json:"qm_u,omitempty"`
	QmV          uint8 `json:"qm_v,omitempty"`
}

// Segmentation segmentation_params()
type Segmentation struct {
	Enabled        bool                          `json:"enabled"`
	UpdateMap      bool                          `json:"update_map"`
	TemporalUpdate bool                          `json:"temporal_update"`
	UpdateData     bool                          `json:"update_data"`
	FeatureEnabled [MaxSegments][SegLvlMax]bool  `json:"-"`
	FeatureData    [MaxSegments][SegLvlMax]int32 `json:"-"`
}

// FeatureActive seg_feature_active_idx
func (s *Segmentation) FeatureActive(segmentID, feature int) bool {
	return s.Enabled && s.FeatureEnabled[segmentID][feature]
}

// LoopFilter loop_filter_params()
type LoopFilter struct {
	Level        [4]uint8                 `json:"level"`
	Sharpness    uint8                    `json:"sharpness"`
	DeltaEnabled bool                     `json:"delta_enabled"`
	DeltaUpdate  bool                     `json:"delta_update"`
	RefDeltas    [TotalRefsPerFrame]int32 `json:"ref_deltas"`
	ModeDeltas   [2]int32                 `json:"mode_deltas"`
}

var defaultLoopFilterRefDeltas = [TotalRefsPerFrame]int32{1, 0, 0, 0, -1, 0, -1, -1}

// Cdef cdef_params()
type Cdef struct {
	Damping       uint8    `json:"damping"`
	Bits          uint8    `json:"bits"`
	YPriStrength  [8]uint8 `json:"y_pri_strength"`
	YSecStrength  [8]uint8 `json:"y_sec_strength"`
	UVPriStrength [8]uint8 `json:"uv_pri_strength"`
	UVSecStrength [8]uint8 `json:"uv_sec_strength"`
}

// LoopRestoration lr_params()
type LoopRestoration struct {
	Type   [3]RestorationType `json:"type"`
	Size   [3]int             `json:"size"`
	UsesLr bool               `json:"uses_lr"`
}

// GlobalMotion global_motion_params()
type GlobalMotion struct {
	Type   [TotalRefsPerFrame]GlobalMotionType `json:"type"`
	Params [TotalRefsPerFrame][6]int32         `json:"params"`
}

func defaultGlobalMotion() GlobalMotion {
	var gm GlobalMotion
	for ref := range gm.Params {
		gm.Params[ref][2] = 1 << WarpedModelPrecBits
		gm.Params[ref][5] = 1 << WarpedModelPrecBits
	}
	return gm
}

// FilmGrain film_grain_params() 的标量部分
type FilmGrain struct {
	ApplyGrain            bool   `json:"apply_grain"`
	GrainSeed             uint16 `json:"grain_seed,omitempty"`
	UpdateGrain           bool   `json:"update_grain,omitempty"`
	RefIdx                uint8  `json:"ref_idx,omitempty"`
	NumYPoints            uint8  `json:"num_y_points,omitempty"`
	ChromaScalingFromLuma bool   `json:"chroma_scaling_from_luma,omitempty"`
	NumCbPoints           uint8  `json:"num_cb_points,omitempty"`
	NumCrPoints           uint8  `json:"num_cr_points,omitempty"`
	GrainScalingMinus8    uint8  `json:"grain_scaling_minus_8,omitempty"`
	ArCoeffLag            uint8  `json:"ar_coeff_lag,omitempty"`
	ArCoeffShiftMinus6    uint8  `json:"ar_coeff_shift_minus_6,omitempty"`
	GrainScaleShift       uint8  `json:"grain_scale_shift,omitempty"`
	OverlapFlag           bool   `json:"overlap_flag,omitempty"`
	ClipToRestrictedRange bool   `json:"clip_to_restricted_range,omitempty"`
}

// EstimatedField 缺少序列头上下文时以启发式方式得到的字段，
// 不记录到语法树
type EstimatedField struct {
	Name  string `json:"name"`
	Value uint32 `json:"value"`
	Bits  int    `json:"bits"`
}

// FrameHeader uncompressed_header()
type FrameHeader struct {
	ShowExistingFrame  bool      `json:"show_existing_frame"`
	FrameToShowMapIdx  uint8     `json:"frame_to_show_map_idx,omitempty"`
	DisplayFrameID     uint32    `json:"display_frame_id,omitempty"`
	FrameType          FrameType `json:"frame_type"`
	ShowFrame          bool      `json:"show_frame"`
	ShowableFrame      bool      `json:"showable_frame"`
	ErrorResilientMode bool      `json:"error_resilient_mode"`

	DisableCdfUpdate        bool   `json:"disable_cdf_update"`
	AllowScreenContentTools bool   `json:"allow_screen_content_tools"`
	ForceIntegerMV          bool   `json:"force_integer_mv"`
	CurrentFrameID          uint32 `json:"current_frame_id,omitempty"`
	FrameSizeOverrideFlag   bool   `json:"frame_size_override_flag"`
	OrderHint               uint32 `json:"order_hint"`
	PrimaryRefFrame         uint8  `json:"primary_ref_frame"`
	RefreshFrameFlags       uint8  `json:"refresh_frame_flags"`

	FrameWidth    int  `json:"frame_width"`
	FrameHeight   int  `json:"frame_height"`
	UpscaledWidth int  `json:"upscaled_width"`
	RenderWidth   int  `json:"render_width"`
	RenderHeight  int  `json:"render_height"`
	UseSuperres   bool `json:"use_superres"`
	SuperresDenom int  `json:"superres_denom"`
	MiCols        int  `json:"mi_cols"`
	MiRows        int  `json:"mi_rows"`

	AllowIntrabc            bool                `json:"allow_intrabc"`
	FrameRefsShortSignaling bool                `json:"frame_refs_short_signaling"`
	RefFrameIdx             [RefsPerFrame]int   `json:"ref_frame_idx"`
	AllowHighPrecisionMV    bool                `json:"allow_high_precision_mv"`
	InterpolationFilter     InterpolationFilter `json:"interpolation_filter"`
	IsMotionModeSwitchable  bool                `json:"is_motion_mode_switchable"`
	UseRefFrameMvs          bool                `json:"use_ref_frame_mvs"`

	DisableFrameEndUpdateCdf bool      `json:"disable_frame_end_update_cdf"`
	TileInfo                 *TileInfo `json:"tile_info,omitempty"`

	Quantization   Quantization `json:"quantization"`
	Segmentation   Segmentation `json:"segmentation"`
	DeltaQPresent  bool         `json:"delta_q_present"`
	DeltaQRes      uint8        `json:"delta_q_res"`
	DeltaLfPresent bool         `json:"delta_lf_present"`
	DeltaLfRes     uint8        `json:"delta_lf_res"`
	DeltaLfMulti   bool         `json:"delta_lf_multi"`
	CodedLossless  bool         `json:"coded_lossless"`
	AllLossless    bool         `json:"all_lossless"`

	LoopFilter        LoopFilter      `json:"loop_filter"`
	Cdef              Cdef            `json:"cdef"`
	LoopRestoration   LoopRestoration `json:"loop_restoration"`
	TxMode            TxMode          `json:"tx_mode"`
	ReferenceSelect   bool            `json:"reference_select"`
	SkipModePresent   bool            `json:"skip_mode_present"`
	AllowWarpedMotion bool            `json:"allow_warped_motion"`
	ReducedTxSet      bool            `json:"reduced_tx_set"`
	GlobalMotion      GlobalMotion    `json:"global_motion"`
	FilmGrain         FilmGrain       `json:"film_grain"`

	// HeaderBits 未压缩头消耗的位数（不含 byte_alignment）
	HeaderBits uint64 `json:"header_bits"`
	// Partial 缺少序列头，只解析到 error_resilient_mode
	Partial   bool             `json:"partial,omitempty"`
	Estimated []EstimatedField `json:"estimated,omitempty"`
	// Redundant 由 OBU_REDUNDANT_FRAME_HEADER 或重复帧头复制而来
	Redundant bool `json:"redundant,omitempty"`
}

// FrameIsIntra 关键帧或帧内帧
func (h *FrameHeader) FrameIsIntra() bool {
	return h.FrameType.IsIntra()
}

// HeaderBytes OBU_FRAME 中帧头按字节对齐后的长度
func (h *FrameHeader) HeaderBytes() int {
	return int((h.HeaderBits + 7) >> 3)
}

// SbCols 帧的超级块列数
func (h *FrameHeader) SbCols(sbSize int) int {
	return (h.FrameWidth + sbSize - 1) / sbSize
}

// SbRows 帧的超级块行数
func (h *FrameHeader) SbRows(sbSize int) int {
	return (h.FrameHeight + sbSize - 1) / sbSize
}

// EstimatedValue 返回启发式字段的值
func (h *FrameHeader) EstimatedValue(name string) (uint32, bool) {
	for _, e := range h.Estimated {
		if e.Name == name {
			return e.Value, true
		}
	}
	return 0, false
}

// RefSlot 参考帧槽位状态
type RefSlot struct {
	Valid         bool      `json:"valid"`
	FrameID       uint32    `json:"frame_id,omitempty"`
	FrameType     FrameType `json:"frame_type"`
	UpscaledWidth int       `json:"upscaled_width"`
	FrameWidth    int       `json:"frame_width"`
	FrameHeight   int       `json:"frame_height"`
	RenderWidth   int       `json:"render_width"`
	RenderHeight  int       `json:"render_height"`
	OrderHint     uint32    `json:"order_hint"`

	header *FrameHeader
}

// HeaderParser 帧头解析器，跨帧维护参考帧槽位；
// 同一实例只能被一个解码过程顺序使用
type HeaderParser struct {
	Seq      *SequenceHeader
	MaxTiles int

	refs [NumRefFrames]RefSlot
	seen bool
	last *FrameHeader
}

// NewHeaderParser 创建帧头解析器，seq 可以为 nil
func NewHeaderParser(seq *SequenceHeader) *HeaderParser {
	return &HeaderParser{Seq: seq, MaxTiles: DefaultMaxTiles}
}

// Refs 参考帧槽位快照
func (p *HeaderParser) Refs() [NumRefFrames]RefSlot {
	return p.refs
}

// Last 最近一次解析的帧头
func (p *HeaderParser) Last() *FrameHeader {
	return p.last
}

// FinishFrame 帧的最后一个 tile 被消费后调用，之后的帧头重新解析
func (p *HeaderParser) FinishFrame() {
	p.seen = false
}

// ParseObu 解析 OBU_FRAME_HEADER/OBU_FRAME/OBU_REDUNDANT_FRAME_HEADER 的帧头
func (p *HeaderParser) ParseObu(o *Obu, tree *syntax.Builder) (*FrameHeader, error) {
	if !o.Header.Type.CarriesFrameHeader() {
		return nil, codecerr.Invalid("%s does not carry a frame header", o.Header.Type)
	}
	if p.seen && p.last != nil && o.Header.Type != ObuFrame {
		copied := *p.last
		copied.Redundant = true
		return &copied, nil
	}
	return p.Parse(o.Payload, o.Header.TemporalID, o.Header.SpatialID, tree, o.PayloadBitOffset())
}

// Parse 解析一个未压缩帧头，base 为载荷在码流中的起始位
func (p *HeaderParser) Parse(payload []byte, temporalID, spatialID uint8, tree *syntax.Builder, base uint64) (*FrameHeader, error) {
	fp := &frameParse{
		fieldReader: newFieldReader(payload, tree, base),
		p:           p,
		seq:         p.Seq,
		h:           &FrameHeader{SuperresDenom: SuperresNum},
		temporalID:  temporalID,
		spatialID:   spatialID,
	}
	for i := range fp.h.RefFrameIdx {
		fp.h.RefFrameIdx[i] = -1
	}
	fp.push("frame_header")
	fp.uncompressedHeader()
	fp.h.HeaderBits = fp.r.Offset()
	if fp.h.Partial {
		// 估计字段没有节点，容器止于最后一个解析的字段
		fp.popAt(fp.parsedEnd)
	} else {
		fp.pop()
	}

	if fp.err != nil {
		return fp.h, fp.err
	}
	if !fp.h.Partial {
		p.updateRefs(fp.h)
		p.last = fp.h
		p.seen = !fp.h.ShowExistingFrame
	}
	return fp.h, nil
}

// ParseFrameHeader 使用新的解析器解析单个帧头载荷，seq 可以为 nil
func ParseFrameHeader(payload []byte, seq *SequenceHeader, tree *syntax.Builder) (*FrameHeader, error) {
	return NewHeaderParser(seq).Parse(payload, 0, 0, tree, 0)
}

// updateRefs reference frame update process
func (p *HeaderParser) updateRefs(h *FrameHeader) {
	if h.ShowExistingFrame && h.FrameType != KeyFrame {
		return
	}
	for i := 0; i < NumRefFrames; i++ {
		if (h.RefreshFrameFlags>>uint(i))&1 == 0 {
			continue
		}
		p.refs[i] = RefSlot{
			Valid:         true,
			FrameID:       h.CurrentFrameID,
			FrameType:     h.FrameType,
			UpscaledWidth: h.UpscaledWidth,
			FrameWidth:    h.FrameWidth,
			FrameHeight:   h.FrameHeight,
			RenderWidth:   h.RenderWidth,
			RenderHeight:  h.RenderHeight,
			OrderHint:     h.OrderHint,
			header:        h,
		}
	}
}

type frameParse struct {
	*fieldReader
	p          *HeaderParser
	seq        *SequenceHeader
	h          *FrameHeader
	temporalID uint8
	spatialID  uint8
	parsedEnd  uint64 // 开始估计前的位置
}

func (fp *frameParse) estimate(name string, bits int) {
	if fp.err != nil || fp.r.BitsLeft() < uint64(bits) {
		return
	}
	v, err := fp.r.Read(bits)
	if err != nil {
		return
	}
	fp.h.Estimated = append(fp.h.Estimated, EstimatedField{Name: name, Value: v, Bits: bits})
}

// estimateRest 缺少序列头时按常见编码器默认值（无帧 id、
// 屏幕内容工具自适应、7 位 order hint）跳到 refresh_frame_flags。
// 得到的值只是估计，位数不足时静默停止。
func (fp *frameParse) estimateRest() {
	h := fp.h
	h.Partial = true
	fp.estimate("disable_cdf_update", 1)
	fp.estimate("allow_screen_content_tools", 1)
	if v, ok := h.EstimatedValue("allow_screen_content_tools"); ok && v == 1 && !h.FrameIsIntra() {
		fp.estimate("force_integer_mv", 1)
	}
	if h.FrameType != SwitchFrame {
		fp.estimate("frame_size_override_flag", 1)
	}
	fp.estimate("order_hint", 7)
	if !h.FrameIsIntra() && !h.ErrorResilientMode {
		fp.estimate("primary_ref_frame", 3)
	}
	if h.FrameType == SwitchFrame || (h.FrameType == KeyFrame && h.ShowFrame) {
		h.RefreshFrameFlags = allFrames
	} else {
		fp.estimate("refresh_frame_flags", 8)
		if v, ok := h.EstimatedValue("refresh_frame_flags"); ok {
			h.RefreshFrameFlags = uint8(v)
		}
	}
}

func (fp *frameParse) frameTypeString(v uint32) string {
	return enumString(FrameType(v).String(), v)
}

func (fp *frameParse) uncompressedHeader() {
	seq, h := fp.seq, fp.h
	idLen := 0
	if seq != nil && seq.FrameIDNumbersPresent {
		idLen = seq.IDLen()
	}

	if seq != nil && seq.ReducedStillPictureHeader {
		h.FrameType = KeyFrame
		h.ShowFrame = true
		h.ErrorResilientMode = true
	} else {
		h.ShowExistingFrame = fp.flag("show_existing_frame")
		if h.ShowExistingFrame {
			fp.showExistingFrame(idLen)
			return
		}
		h.FrameType = FrameType(fp.fs("frame_type", 2, fp.frameTypeString))
		h.ShowFrame = fp.flag("show_frame")
		if h.ShowFrame && seq != nil && seq.DecoderModelInfoPresent && !seq.TimingInfo.EqualPictureInterval {
			fp.temporalPointInfo()
		}
		if h.ShowFrame {
			h.ShowableFrame = h.FrameType != KeyFrame
		} else {
			h.ShowableFrame = fp.flag("showable_frame")
		}
		if h.FrameType == SwitchFrame || (h.FrameType == KeyFrame && h.ShowFrame) {
			h.ErrorResilientMode = true
		} else {
			h.ErrorResilientMode = fp.flag("error_resilient_mode")
		}
	}
	if fp.err != nil {
		return
	}
	if seq == nil {
		fp.parsedEnd = fp.pos()
		fp.estimateRest()
		return
	}

	if h.FrameType == KeyFrame && h.ShowFrame {
		for i := range fp.p.refs {
			fp.p.refs[i].Valid = false
			fp.p.refs[i].OrderHint = 0
		}
	}

	h.DisableCdfUpdate = fp.flag("disable_cdf_update")
	if seq.SeqForceScreenContentTools == SelectScreenContentTools {
		h.AllowScreenContentTools = fp.flag("allow_screen_content_tools")
	} else {
		h.AllowScreenContentTools = seq.SeqForceScreenContentTools == 1
	}
	if h.AllowScreenContentTools {
		if seq.SeqForceIntegerMV == SelectIntegerMV {
			h.ForceIntegerMV = fp.flag("force_integer_mv")
		} else {
			h.ForceIntegerMV = seq.SeqForceIntegerMV == 1
		}
	}
	if h.FrameIsIntra() {
		h.ForceIntegerMV = true
	}

	if seq.FrameIDNumbersPresent {
		h.CurrentFrameID = fp.f("current_frame_id", idLen)
		fp.markRefFrames(idLen)
	}

	switch {
	case h.FrameType == SwitchFrame:
		h.FrameSizeOverrideFlag = true
	case seq.ReducedStillPictureHeader:
	default:
		h.FrameSizeOverrideFlag = fp.flag("frame_size_override_flag")
	}

	h.OrderHint = fp.f("order_hint", seq.OrderHintBits)
	if h.FrameIsIntra() || h.ErrorResilientMode {
		h.PrimaryRefFrame = PrimaryRefNone
	} else {
		h.PrimaryRefFrame = uint8(fp.f("primary_ref_frame", 3))
	}

	if seq.DecoderModelInfoPresent {
		fp.bufferRemovalTimes()
	}

	if h.FrameType == SwitchFrame || (h.FrameType == KeyFrame && h.ShowFrame) {
		h.RefreshFrameFlags = allFrames
	} else {
		h.RefreshFrameFlags = uint8(fp.fs("refresh_frame_flags", 8, func(v uint32) string {
			return fmt.Sprintf("0x%02x", v)
		}))
	}

	if (!h.FrameIsIntra() || h.RefreshFrameFlags != allFrames) && h.ErrorResilientMode && seq.EnableOrderHint {
		for i := 0; i < NumRefFrames; i++ {
			hint := fp.f("ref_order_hint["+strconv.Itoa(i)+"]", seq.OrderHintBits)
			if hint != fp.p.refs[i].OrderHint {
				fp.p.refs[i] = RefSlot{OrderHint: hint}
			}
		}
	}

	if h.FrameIsIntra() {
		fp.frameSize()
		fp.renderSize()
		if h.AllowScreenContentTools && h.UpscaledWidth == h.FrameWidth {
			h.AllowIntrabc = fp.flag("allow_intrabc")
		}
	} else {
		fp.interFrameRefs(idLen)
	}
	if fp.err != nil {
		return
	}

	if seq.ReducedStillPictureHeader || h.DisableCdfUpdate {
		h.DisableFrameEndUpdateCdf = true
	} else {
		h.DisableFrameEndUpdateCdf = fp.flag("disable_frame_end_update_cdf")
	}

	prev := fp.primaryRefHeader()
	fp.tileInfo()
	fp.quantizationParams()
	fp.segmentationParams(prev)
	fp.deltaParams()
	fp.computeLossless()
	fp.loopFilterParams(prev)
	fp.cdefParams()
	fp.lrParams()
	fp.readTxMode()
	if h.FrameIsIntra() {
		h.ReferenceSelect = false
	} else {
		h.ReferenceSelect = fp.flag("reference_select")
	}
	fp.skipModeParams()
	if h.FrameIsIntra() || h.ErrorResilientMode || !seq.EnableWarpedMotion {
		h.AllowWarpedMotion = false
	} else {
		h.AllowWarpedMotion = fp.flag("allow_warped_motion")
	}
	h.ReducedTxSet = fp.flag("reduced_tx_set")
	fp.globalMotionParams(prev)
	fp.filmGrainParams()
}

func (fp *frameParse) showExistingFrame(idLen int) {
	seq, h := fp.seq, fp.h
	h.FrameToShowMapIdx = uint8(fp.f("frame_to_show_map_idx", 3))
	if seq != nil && seq.DecoderModelInfoPresent && !seq.TimingInfo.EqualPictureInterval {
		fp.temporalPointInfo()
	}
	if seq != nil && seq.FrameIDNumbersPresent {
		h.DisplayFrameID = fp.f("display_frame_id", idLen)
	}
	if fp.err != nil {
		return
	}

	slot := fp.p.refs[h.FrameToShowMapIdx]
	h.ShowFrame = true
	h.FrameType = slot.FrameType
	if !slot.Valid {
		h.Estimated = append(h.Estimated, EstimatedField{Name: "frame_type", Value: uint32(slot.FrameType)})
	}
	if slot.header != nil {
		// 载入被显示帧的状态
		shown := *slot.header
		shown.ShowExistingFrame = true
		shown.FrameToShowMapIdx = h.FrameToShowMapIdx
		shown.DisplayFrameID = h.DisplayFrameID
		shown.ShowFrame = true
		shown.Estimated = h.Estimated
		*h = shown
	}
	h.RefreshFrameFlags = 0
	if h.FrameType == KeyFrame {
		h.RefreshFrameFlags = allFrames
	}
	h.Partial = seq == nil && slot.header == nil
}

func (fp *frameParse) temporalPointInfo() {
	n := int(fp.seq.DecoderModelInfo.FramePresentationTimeLengthMinus1) + 1
	fp.f("frame_presentation_time", n)
}

func (fp *frameParse) bufferRemovalTimes() {
	seq := fp.seq
	if !fp.flag("buffer_removal_time_present_flag") {
		return
	}
	n := int(seq.DecoderModelInfo.BufferRemovalTimeLengthMinus1) + 1
	for i, op := range seq.OperatingPoints {
		if !op.DecoderModelPresent {
			continue
		}
		inTemporal := (op.Idc>>fp.temporalID)&1 == 1
		inSpatial := (op.Idc>>(uint(fp.spatialID)+8))&1 == 1
		if op.Idc == 0 || (inTemporal && inSpatial) {
			fp.f("buffer_removal_time["+strconv.Itoa(i)+"]", n)
		}
	}
}

// markRefFrames 使帧 id 超出窗口的参考帧失效
func (fp *frameParse) markRefFrames(idLen int) {
	diffLen := int(fp.seq.DeltaFrameIDLengthMinus2) + 2
	cur := fp.h.CurrentFrameID
	window := uint32(1) << uint(diffLen)
	for i := range fp.p.refs {
		id := fp.p.refs[i].FrameID
		if cur > window {
			if id > cur || id < cur-window {
				fp.p.refs[i].Valid = false
			}
		} else if id > cur && id < (uint32(1)<<uint(idLen))+cur-window {
			fp.p.refs[i].Valid = false
		}
	}
}

func (fp *frameParse) interFrameRefs(idLen int) {
	seq, h := fp.seq, fp.h
	if seq.EnableOrderHint {
		h.FrameRefsShortSignaling = fp.flag("frame_refs_short_signaling")
		if h.FrameRefsShortSignaling {
			last := int(fp.f("last_frame_idx", 3))
			gold := int(fp.f("gold_frame_idx", 3))
			fp.setFrameRefs(last, gold)
		}
	}
	for i := 0; i < RefsPerFrame; i++ {
		if !h.FrameRefsShortSignaling {
			h.RefFrameIdx[i] = int(fp.f("ref_frame_idx["+strconv.Itoa(i)+"]", 3))
		}
		if seq.FrameIDNumbersPresent {
			fp.f("delta_frame_id_minus_1", int(seq.DeltaFrameIDLengthMinus2)+2)
		}
	}
	if fp.err != nil {
		return
	}

	if h.FrameSizeOverrideFlag && !h.ErrorResilientMode {
		fp.frameSizeWithRefs()
	} else {
		fp.frameSize()
		fp.renderSize()
	}

	if !h.ForceIntegerMV {
		h.AllowHighPrecisionMV = fp.flag("allow_high_precision_mv")
	}
	if fp.flag("is_filter_switchable") {
		h.InterpolationFilter = FilterSwitchable
	} else {
		h.InterpolationFilter = InterpolationFilter(fp.fs("interpolation_filter", 2, func(v uint32) string {
			return enumString(InterpolationFilter(v).String(), v)
		}))
	}
	h.IsMotionModeSwitchable = fp.flag("is_motion_mode_switchable")
	if !h.ErrorResilientMode && seq.EnableRefFrameMvs {
		h.UseRefFrameMvs = fp.flag("use_ref_frame_mvs")
	}
}

func (fp *frameParse) relDist(a, b uint32) int {
	if !fp.seq.EnableOrderHint {
		return 0
	}
	bits := uint(fp.seq.OrderHintBits)
	diff := int(a) - int(b)
	m := 1 << (bits - 1)
	return (diff & (m - 1)) - (diff & m)
}

// setFrameRefs 由 last/gold 推导其余参考帧索引
func (fp *frameParse) setFrameRefs(lastIdx, goldIdx int) {
	h := fp.h
	for i := range h.RefFrameIdx {
		h.RefFrameIdx[i] = -1
	}
	h.RefFrameIdx[RefLast-RefLast] = lastIdx
	h.RefFrameIdx[RefGolden-RefLast] = goldIdx

	var used [NumRefFrames]bool
	used[lastIdx], used[goldIdx] = true, true

	curFrameHint := 1 << uint(fp.seq.OrderHintBits-1)
	var shifted [NumRefFrames]int
	for i := range shifted {
		shifted[i] = curFrameHint + fp.relDist(fp.p.refs[i].OrderHint, h.OrderHint)
	}

	find := func(backward, latest bool) int {
		ref, best := -1, 0
		for i, hint := range shifted {
			if used[i] || (hint >= curFrameHint) != backward {
				continue
			}
			if ref < 0 || (latest && hint >= best) || (!latest && hint < best) {
				ref, best = i, hint
			}
		}
		return ref
	}
	assign := func(refFrame, ref int) {
		if ref >= 0 {
			h.RefFrameIdx[refFrame-RefLast] = ref
			used[ref] = true
		}
	}

	assign(RefAltref, find(true, true))
	assign(RefBwdref, find(true, false))
	assign(RefAltref2, find(true, false))
	for _, refFrame := range [...]int{RefLast2, RefLast3, RefBwdref, RefAltref2, RefAltref} {
		if h.RefFrameIdx[refFrame-RefLast] < 0 {
			assign(refFrame, find(false, true))
		}
	}

	ref, earliest := -1, 0
	for i, hint := range shifted {
		if ref < 0 || hint < earliest {
			ref, earliest = i, hint
		}
	}
	for i := range h.RefFrameIdx {
		if h.RefFrameIdx[i] < 0 {
			h.RefFrameIdx[i] = ref
		}
	}
}

func (fp *frameParse) frameSize() {
	seq, h := fp.seq, fp.h
	if h.FrameSizeOverrideFlag {
		h.FrameWidth = int(fp.f("frame_width_minus_1", seq.FrameWidthBits)) + 1
		h.FrameHeight = int(fp.f("frame_height_minus_1", seq.FrameHeightBits)) + 1
	} else {
		h.FrameWidth = seq.MaxFrameWidth()
		h.FrameHeight = seq.MaxFrameHeight()
	}
	fp.superresParams()
	fp.computeImageSize()
}

func (fp *frameParse) superresParams() {
	h := fp.h
	if fp.seq.EnableSuperres {
		h.UseSuperres = fp.flag("use_superres")
	}
	h.SuperresDenom = SuperresNum
	if h.UseSuperres {
		h.SuperresDenom = int(fp.f("coded_denom", SuperresDenomBits)) + SuperresDenomMin
	}
	h.UpscaledWidth = h.FrameWidth
	h.FrameWidth = (h.UpscaledWidth*SuperresNum + h.SuperresDenom/2) / h.SuperresDenom
}

func (fp *frameParse) computeImageSize() {
	h := fp.h
	h.MiCols = 2 * ((h.FrameWidth + 7) >> 3)
	h.MiRows = 2 * ((h.FrameHeight + 7) >> 3)
}

func (fp *frameParse) renderSize() {
	h := fp.h
	if fp.flag("render_and_frame_size_different") {
		h.RenderWidth = int(fp.f("render_width_minus_1", 16)) + 1
		h.RenderHeight = int(fp.f("render_height_minus_1", 16)) + 1
	} else {
		h.RenderWidth = h.UpscaledWidth
		h.RenderHeight = h.FrameHeight
	}
}

func (fp *frameParse) frameSizeWithRefs() {
	h := fp.h
	for i := 0; i < RefsPerFrame; i++ {
		if !fp.flag("found_ref") {
			continue
		}
		slot := fp.p.refs[h.RefFrameIdx[i]]
		h.UpscaledWidth = slot.UpscaledWidth
		h.FrameWidth = h.UpscaledWidth
		h.FrameHeight = slot.FrameHeight
		h.RenderWidth = slot.RenderWidth
		h.RenderHeight = slot.RenderHeight
		fp.superresParams()
		fp.computeImageSize()
		return
	}
	fp.frameSize()
	fp.renderSize()
}

func (fp *frameParse) primaryRefHeader() *FrameHeader {
	h := fp.h
	if h.PrimaryRefFrame == PrimaryRefNone {
		return nil
	}
	idx := h.RefFrameIdx[h.PrimaryRefFrame]
	if idx < 0 || idx >= NumRefFrames {
		return nil
	}
	return fp.p.refs[idx].header
}

func (fp *frameParse) tileInfo() {
	seq, h := fp.seq, fp.h
	if fp.err != nil {
		return
	}
	sbShift := 4
	if seq.Use128x128Superblock {
		sbShift = 5
	}
	sbCols := (h.MiCols + (1 << uint(sbShift)) - 1) >> uint(sbShift)
	sbRows := (h.MiRows + (1 << uint(sbShift)) - 1) >> uint(sbShift)
	sbSize := uint(sbShift + 2)
	maxTileWidthSb := MaxTileWidth >> sbSize
	maxTileAreaSb := MaxTileArea >> (2 * sbSize)
	minLog2TileCols := tileLog2(maxTileWidthSb, sbCols)
	maxLog2TileCols := tileLog2(1, minInt(sbCols, MaxTileCols))
	maxLog2TileRows := tileLog2(1, minInt(sbRows, MaxTileRows))
	minLog2Tiles := maxInt(minLog2TileCols, tileLog2(maxTileAreaSb, sbRows*sbCols))

	fp.push("tile_info")
	defer fp.pop()

	var colStarts, rowStarts []int
	var colsLog2, rowsLog2 int
	uniform := fp.flag("uniform_tile_spacing_flag")
	if uniform {
		colsLog2 = minLog2TileCols
		for colsLog2 < maxLog2TileCols && fp.err == nil {
			if !fp.flag("increment_tile_cols_log2") {
				break
			}
			colsLog2++
		}
		tileWidthSb := (sbCols + (1 << uint(colsLog2)) - 1) >> uint(colsLog2)
		for start := 0; start < sbCols; start += tileWidthSb {
			colStarts = append(colStarts, start)
		}
		colStarts = append(colStarts, sbCols)

		rowsLog2 = maxInt(minLog2Tiles-colsLog2, 0)
		for rowsLog2 < maxLog2TileRows && fp.err == nil {
			if !fp.flag("increment_tile_rows_log2") {
				break
			}
			rowsLog2++
		}
		tileHeightSb := (sbRows + (1 << uint(rowsLog2)) - 1) >> uint(rowsLog2)
		for start := 0; start < sbRows; start += tileHeightSb {
			rowStarts = append(rowStarts, start)
		}
		rowStarts = append(rowStarts, sbRows)
	} else {
		widest := 0
		for start := 0; start < sbCols && fp.err == nil; {
			colStarts = append(colStarts, start)
			size := int(fp.ns("width_in_sbs_minus_1", uint32(minInt(sbCols-start, maxTileWidthSb)))) + 1
			widest = maxInt(widest, size)
			start += size
		}
		colStarts = append(colStarts, sbCols)
		colsLog2 = tileLog2(1, len(colStarts)-1)

		area := sbRows * sbCols
		if minLog2Tiles > 0 {
			area >>= uint(minLog2Tiles + 1)
		}
		maxTileHeightSb := 1
		if widest > 0 {
			maxTileHeightSb = maxInt(area/widest, 1)
		}
		for start := 0; start < sbRows && fp.err == nil; {
			rowStarts = append(rowStarts, start)
			size := int(fp.ns("height_in_sbs_minus_1", uint32(minInt(sbRows-start, maxTileHeightSb)))) + 1
			start += size
		}
		rowStarts = append(rowStarts, sbRows)
		rowsLog2 = tileLog2(1, len(rowStarts)-1)
	}
	if fp.err != nil {
		return
	}

	ti, err := newTileInfoFromStarts(colStarts, rowStarts, fp.p.MaxTiles)
	if err != nil {
		fp.err = err
		return
	}
	ti.ColsLog2, ti.RowsLog2 = colsLog2, rowsLog2
	ti.Uniform = uniform
	ti.SbSize = 1 << sbSize
	if colsLog2 > 0 || rowsLog2 > 0 {
		ti.ContextUpdateTileID = int(fp.f("context_update_tile_id", rowsLog2+colsLog2))
		ti.SizeBytes = int(fp.f("tile_size_bytes_minus_1", 2)) + 1
	}
	h.TileInfo = ti
}

func (fp *frameParse) readDeltaQ(name string) int32 {
	if fp.flag("delta_coded") {
		return fp.su(name, 7)
	}
	return 0
}

func (fp *frameParse) quantizationParams() {
	seq, q := fp.seq, &fp.h.Quantization
	fp.push("quantization_params")
	defer fp.pop()

	q.BaseQIdx = uint8(fp.f("base_q_idx", 8))
	q.DeltaQYDc = fp.readDeltaQ("delta_q_y_dc")
	if seq.ColorConfig.NumPlanes > 1 {
		if seq.ColorConfig.SeparateUVDeltaQ {
			q.DiffUVDelta = fp.flag("diff_uv_delta")
		}
		q.DeltaQUDc = fp.readDeltaQ("delta_q_u_dc")
		q.DeltaQUAc = fp.readDeltaQ("delta_q_u_ac")
		if q.DiffUVDelta {
			q.DeltaQVDc = fp.readDeltaQ("delta_q_v_dc")
			q.DeltaQVAc = fp.readDeltaQ("delta_q_v_ac")
		} else {
			q.DeltaQVDc, q.DeltaQVAc = q.DeltaQUDc, q.DeltaQUAc
		}
	}
	q.UsingQmatrix = fp.flag("using_qmatrix")
	if q.UsingQmatrix {
		q.QmY = uint8(fp.f("qm_y", 4))
		q.QmU = uint8(fp.f("qm_u", 4))
		if seq.ColorConfig.SeparateUVDeltaQ {
			q.QmV = uint8(fp.f("qm_v", 4))
		} else {
			q.QmV = q.QmU
		}
	}
}

func (fp *frameParse) segmentationParams(prev *FrameHeader) {
	h, s := fp.h, &fp.h.Segmentation
	fp.push("segmentation_params")
	defer fp.pop()

	s.Enabled = fp.flag("segmentation_enabled")
	if !s.Enabled {
		return
	}
	if h.PrimaryRefFrame == PrimaryRefNone {
		s.UpdateMap, s.UpdateData = true, true
	} else {
		s.UpdateMap = fp.flag("segmentation_update_map")
		if s.UpdateMap {
			s.TemporalUpdate = fp.flag("segmentation_temporal_update")
		}
		s.UpdateData = fp.flag("segmentation_update_data")
	}
	if !s.UpdateData {
		if prev != nil {
			s.FeatureEnabled = prev.Segmentation.FeatureEnabled
			s.FeatureData = prev.Segmentation.FeatureData
		}
		return
	}
	for i := 0; i < MaxSegments; i++ {
		for j := 0; j < SegLvlMax; j++ {
			name := "[" + strconv.Itoa(i) + "][" + strconv.Itoa(j) + "]"
			enabled := fp.flag("feature_enabled" + name)
			s.FeatureEnabled[i][j] = enabled
			if !enabled {
				continue
			}
			bits, limit := segmentationFeatureBits[j], segmentationFeatureMax[j]
			if segmentationFeatureSigned[j] {
				s.FeatureData[i][j] = clip3(-limit, limit, fp.su("feature_value"+name, 1+bits))
			} else if bits > 0 {
				s.FeatureData[i][j] = clip3(0, limit, int32(fp.f("feature_value"+name, bits)))
			}
		}
	}
}

func (fp *frameParse) deltaParams() {
	h := fp.h
	if h.Quantization.BaseQIdx > 0 {
		h.DeltaQPresent = fp.flag("delta_q_present")
	}
	if h.DeltaQPresent {
		h.DeltaQRes = uint8(fp.f("delta_q_res", 2))
		if !h.AllowIntrabc {
			h.DeltaLfPresent = fp.flag("delta_lf_present")
		}
		if h.DeltaLfPresent {
			h.DeltaLfRes = uint8(fp.f("delta_lf_res", 2))
			h.DeltaLfMulti = fp.flag("delta_lf_multi")
		}
	}
}

func (fp *frameParse) computeLossless() {
	h := fp.h
	q := &h.Quantization
	h.CodedLossless = true
	for seg := 0; seg < MaxSegments; seg++ {
		qindex := int32(q.BaseQIdx)
		if h.Segmentation.FeatureActive(seg, SegLvlAltQ) {
			qindex = clip3(0, 255, qindex+h.Segmentation.FeatureData[seg][SegLvlAltQ])
		}
		lossless := qindex == 0 && q.DeltaQYDc == 0 && q.DeltaQUAc == 0 &&
			q.DeltaQUDc == 0 && q.DeltaQVAc == 0 && q.DeltaQVDc == 0
		if !lossless {
			h.CodedLossless = false
			break
		}
	}
	h.AllLossless = h.CodedLossless && h.FrameWidth == h.UpscaledWidth
}

func (fp *frameParse) loopFilterParams(prev *FrameHeader) {
	h, lf := fp.h, &fp.h.LoopFilter
	lf.RefDeltas = defaultLoopFilterRefDeltas
	if prev != nil {
		lf.RefDeltas = prev.LoopFilter.RefDeltas
		lf.ModeDeltas = prev.LoopFilter.ModeDeltas
	}
	if h.CodedLossless || h.AllowIntrabc {
		return
	}

	fp.push("loop_filter_params")
	defer fp.pop()
	lf.Level[0] = uint8(fp.f("loop_filter_level[0]", 6))
	lf.Level[1] = uint8(fp.f("loop_filter_level[1]", 6))
	if fp.seq.ColorConfig.NumPlanes > 1 && (lf.Level[0] != 0 || lf.Level[1] != 0) {
		lf.Level[2] = uint8(fp.f("loop_filter_level[2]", 6))
		lf.Level[3] = uint8(fp.f("loop_filter_level[3]", 6))
	}
	lf.Sharpness = uint8(fp.f("loop_filter_sharpness", 3))
	lf.DeltaEnabled = fp.flag("loop_filter_delta_enabled")
	if !lf.DeltaEnabled {
		return
	}
	lf.DeltaUpdate = fp.flag("loop_filter_delta_update")
	if !lf.DeltaUpdate {
		return
	}
	for i := 0; i < TotalRefsPerFrame; i++ {
		if fp.flag("update_ref_delta") {
			lf.RefDeltas[i] = fp.su("loop_filter_ref_deltas["+strconv.Itoa(i)+"]", 7)
		}
	}
	for i := 0; i < 2; i++ {
		if fp.flag("update_mode_delta") {
			lf.ModeDeltas[i] = fp.su("loop_filter_mode_deltas["+strconv.Itoa(i)+"]", 7)
		}
	}
}

func (fp *frameParse) cdefParams() {
	h, c := fp.h, &fp.h.Cdef
	c.Damping = 3
	if h.CodedLossless || h.AllowIntrabc || !fp.seq.EnableCdef {
		return
	}
	fp.push("cdef_params")
	defer fp.pop()
	c.Damping = uint8(fp.f("cdef_damping_minus_3", 2)) + 3
	c.Bits = uint8(fp.f("cdef_bits", 2))
	for i := 0; i < 1<<c.Bits && fp.err == nil; i++ {
		c.YPriStrength[i] = uint8(fp.f("cdef_y_pri_strength", 4))
		c.YSecStrength[i] = uint8(fp.f("cdef_y_sec_strength", 2))
		if c.YSecStrength[i] == 3 {
			c.YSecStrength[i]++
		}
		if fp.seq.ColorConfig.NumPlanes > 1 {
			c.UVPriStrength[i] = uint8(fp.f("cdef_uv_pri_strength", 4))
			c.UVSecStrength[i] = uint8(fp.f("cdef_uv_sec_strength", 2))
			if c.UVSecStrength[i] == 3 {
				c.UVSecStrength[i]++
			}
		}
	}
}

func (fp *frameParse) lrParams() {
	seq, h, lr := fp.seq, fp.h, &fp.h.LoopRestoration
	if h.AllLossless || h.AllowIntrabc || !seq.EnableRestoration {
		return
	}
	fp.push("lr_params")
	defer fp.pop()

	usesChromaLr := false
	for i := 0; i < seq.ColorConfig.NumPlanes; i++ {
		t := remapLrType[fp.fs("lr_type", 2, func(v uint32) string {
			return enumString(remapLrType[v&3].String(), v)
		})&3]
		lr.Type[i] = t
		if t != RestoreNone {
			lr.UsesLr = true
			if i > 0 {
				usesChromaLr = true
			}
		}
	}
	if !lr.UsesLr {
		return
	}
	var shift uint32
	if seq.Use128x128Superblock {
		shift = fp.f("lr_unit_shift", 1) + 1
	} else {
		shift = fp.f("lr_unit_shift", 1)
		if shift != 0 {
			shift += fp.f("lr_unit_extra_shift", 1)
		}
	}
	lr.Size[0] = 256 >> (2 - shift)
	var uvShift uint32
	if seq.ColorConfig.SubsamplingX && seq.ColorConfig.SubsamplingY && usesChromaLr {
		uvShift = fp.f("lr_uv_shift", 1)
	}
	lr.Size[1] = lr.Size[0] >> uvShift
	lr.Size[2] = lr.Size[0] >> uvShift
}

func (fp *frameParse) readTxMode() {
	h := fp.h
	if h.CodedLossless {
		h.TxMode = TxModeOnly4x4
		return
	}
	if fp.flag("tx_mode_select") {
		h.TxMode = TxModeSelect
	} else {
		h.TxMode = TxModeLargest
	}
}

func (fp *frameParse) skipModeParams() {
	seq, h := fp.seq, fp.h
	if h.FrameIsIntra() || !h.ReferenceSelect || !seq.EnableOrderHint || fp.err != nil {
		return
	}
	forwardIdx, backwardIdx := -1, -1
	var forwardHint, backwardHint uint32
	for i := 0; i < RefsPerFrame; i++ {
		refHint := fp.refHint(i)
		if d := fp.relDist(refHint, h.OrderHint); d < 0 {
			if forwardIdx < 0 || fp.relDist(refHint, forwardHint) > 0 {
				forwardIdx, forwardHint = i, refHint
			}
		} else if d > 0 {
			if backwardIdx < 0 || fp.relDist(refHint, backwardHint) < 0 {
				backwardIdx, backwardHint = i, refHint
			}
		}
	}

	allowed := false
	switch {
	case forwardIdx < 0:
	case backwardIdx >= 0:
		allowed = true
	default:
		secondIdx := -1
		var secondHint uint32
		for i := 0; i < RefsPerFrame; i++ {
			refHint := fp.refHint(i)
			if fp.relDist(refHint, forwardHint) < 0 {
				if secondIdx < 0 || fp.relDist(refHint, secondHint) > 0 {
					secondIdx, secondHint = i, refHint
				}
			}
		}
		allowed = secondIdx >= 0
	}
	if allowed {
		h.SkipModePresent = fp.flag("skip_mode_present")
	}
}

func (fp *frameParse) refHint(i int) uint32 {
	idx := fp.h.RefFrameIdx[i]
	if idx < 0 || idx >= NumRefFrames {
		return 0
	}
	return fp.p.refs[idx].OrderHint
}

func (fp *frameParse) globalMotionParams(prev *FrameHeader) {
	h := fp.h
	h.GlobalMotion = defaultGlobalMotion()
	if h.FrameIsIntra() {
		return
	}
	prevGm := defaultGlobalMotion()
	if prev != nil {
		prevGm = prev.GlobalMotion
	}

	fp.push("global_motion_params")
	defer fp.pop()
	for ref := RefLast; ref <= RefAltref && fp.err == nil; ref++ {
		typ := GmIdentity
		if fp.flag("is_global") {
			if fp.flag("is_rot_zoom") {
				typ = GmRotZoom
			} else if fp.flag("is_translation") {
				typ = GmTranslation
			} else {
				typ = GmAffine
			}
		}
		h.GlobalMotion.Type[ref] = typ

		params := &h.GlobalMotion.Params[ref]
		if typ >= GmRotZoom {
			params[2] = fp.readGlobalParam(typ, ref, 2, prevGm.Params[ref][2])
			params[3] = fp.readGlobalParam(typ, ref, 3, prevGm.Params[ref][3])
			if typ == GmAffine {
				params[4] = fp.readGlobalParam(typ, ref, 4, prevGm.Params[ref][4])
				params[5] = fp.readGlobalParam(typ, ref, 5, prevGm.Params[ref][5])
			} else {
				params[4] = -params[3]
				params[5] = params[2]
			}
		}
		if typ >= GmTranslation {
			params[0] = fp.readGlobalParam(typ, ref, 0, prevGm.Params[ref][0])
			params[1] = fp.readGlobalParam(typ, ref, 1, prevGm.Params[ref][1])
		}
	}
}

const (
	gmAbsAlphaBits      = 12
	gmAlphaPrecBits     = 15
	gmAbsTransOnlyBits  = 9
	gmTransOnlyPrecBits = 3
	gmAbsTransBits      = 12
	gmTransPrecBits     = 6
)

func (fp *frameParse) readGlobalParam(typ GlobalMotionType, ref, idx int, prev int32) int32 {
	absBits, precBits := gmAbsAlphaBits, gmAlphaPrecBits
	if idx < 2 {
		if typ == GmTranslation {
			hp := 0
			if !fp.h.AllowHighPrecisionMV {
				hp = 1
			}
			absBits, precBits = gmAbsTransOnlyBits-hp, gmTransOnlyPrecBits-hp
		} else {
			absBits, precBits = gmAbsTransBits, gmTransPrecBits
		}
	}
	precDiff := uint(WarpedModelPrecBits - precBits)
	var round, sub int32
	if idx%3 == 2 {
		round = 1 << WarpedModelPrecBits
		sub = 1 << uint(precBits)
	}
	mx := int32(1) << uint(absBits)
	r := (prev >> precDiff) - sub

	start := fp.pos()
	v := fp.decodeSignedSubexpWithRef(-mx, mx+1, r)
	value := (v << precDiff) + round
	if fp.err == nil {
		fp.record("gm_params["+strconv.Itoa(ref)+"]["+strconv.Itoa(idx)+"]", start, strconv.Itoa(int(value)))
	}
	return value
}

func (fp *frameParse) decodeSignedSubexpWithRef(low, high, r int32) int32 {
	x := fp.decodeUnsignedSubexpWithRef(high-low, r-low)
	return x + low
}

func (fp *frameParse) decodeUnsignedSubexpWithRef(mx, r int32) int32 {
	v := fp.decodeSubexp(mx)
	if r<<1 <= mx {
		return inverseRecenter(r, v)
	}
	return mx - 1 - inverseRecenter(mx-1-r, v)
}

func (fp *frameParse) decodeSubexp(numSyms int32) int32 {
	var i, mk int32
	k := int32(3)
	for fp.err == nil {
		b2 := k
		if i > 0 {
			b2 = k + i - 1
		}
		a := int32(1) << uint(b2)
		if numSyms <= mk+3*a {
			v, err := fp.r.ReadNs(uint32(numSyms - mk))
			if err != nil {
				fp.fail("subexp_final_bits", err)
				return 0
			}
			return int32(v) + mk
		}
		if fp.raw(1) == 1 {
			i++
			mk += a
			continue
		}
		return int32(fp.raw(int(b2))) + mk
	}
	return 0
}

func inverseRecenter(r, v int32) int32 {
	switch {
	case v > 2*r:
		return v
	case v&1 == 1:
		return r - ((v + 1) >> 1)
	default:
		return r + (v >> 1)
	}
}

func (fp *frameParse) filmGrainParams() {
	seq, h, fg := fp.seq, fp.h, &fp.h.FilmGrain
	if !seq.FilmGrainParamsPresent || (!h.ShowFrame && !h.ShowableFrame) {
		return
	}
	fp.push("film_grain_params")
	defer fp.pop()

	fg.ApplyGrain = fp.flag("apply_grain")
	if !fg.ApplyGrain {
		return
	}
	fg.GrainSeed = uint16(fp.f("grain_seed", 16))
	fg.UpdateGrain = true
	if h.FrameType == InterFrame {
		fg.UpdateGrain = fp.flag("update_grain")
	}
	if !fg.UpdateGrain {
		refIdx := uint8(fp.f("film_grain_params_ref_idx", 3))
		if slot := fp.p.refs[refIdx]; slot.header != nil {
			seed := fg.GrainSeed
			*fg = slot.header.FilmGrain
			fg.GrainSeed = seed
			fg.UpdateGrain = false
		}
		fg.RefIdx = refIdx
		return
	}

	fg.NumYPoints = uint8(fp.f("num_y_points", 4))
	for i := 0; i < int(fg.NumYPoints) && fp.err == nil; i++ {
		fp.f("point_y_value", 8)
		fp.f("point_y_scaling", 8)
	}
	cc := &seq.ColorConfig
	if !cc.MonoChrome {
		fg.ChromaScalingFromLuma = fp.flag("chroma_scaling_from_luma")
	}
	if !(cc.MonoChrome || fg.ChromaScalingFromLuma || (cc.SubsamplingX && cc.SubsamplingY && fg.NumYPoints == 0)) {
		fg.NumCbPoints = uint8(fp.f("num_cb_points", 4))
		for i := 0; i < int(fg.NumCbPoints) && fp.err == nil; i++ {
			fp.f("point_cb_value", 8)
			fp.f("point_cb_scaling", 8)
		}
		fg.NumCrPoints = uint8(fp.f("num_cr_points", 4))
		for i := 0; i < int(fg.NumCrPoints) && fp.err == nil; i++ {
			fp.f("point_cr_value", 8)
			fp.f("point_cr_scaling", 8)
		}
	}
	fg.GrainScalingMinus8 = uint8(fp.f("grain_scaling_minus_8", 2))
	fg.ArCoeffLag = uint8(fp.f("ar_coeff_lag", 2))
	numPosLuma := 2 * int(fg.ArCoeffLag) * (int(fg.ArCoeffLag) + 1)
	numPosChroma := numPosLuma
	if fg.NumYPoints > 0 {
		numPosChroma = numPosLuma + 1
		for i := 0; i < numPosLuma && fp.err == nil; i++ {
			fp.f("ar_coeffs_y_plus_128", 8)
		}
	}
	if fg.ChromaScalingFromLuma || fg.NumCbPoints > 0 {
		for i := 0; i < numPosChroma && fp.err == nil; i++ {
			fp.f("ar_coeffs_cb_plus_128", 8)
		}
	}
	if fg.ChromaScalingFromLuma || fg.NumCrPoints > 0 {
		for i := 0; i < numPosChroma && fp.err == nil; i++ {
			fp.f("ar_coeffs_cr_plus_128", 8)
		}
	}
	fg.ArCoeffShiftMinus6 = uint8(fp.f("ar_coeff_shift_minus_6", 2))
	fg.GrainScaleShift = uint8(fp.f("grain_scale_shift", 2))
	if fg.NumCbPoints > 0 {
		fp.f("cb_mult", 8)
		fp.f("cb_luma_mult", 8)
		fp.f("cb_offset", 9)
	}
	if fg.NumCrPoints > 0 {
		fp.f("cr_mult", 8)
		fp.f("cr_luma_mult", 8)
		fp.f("cr_offset", 9)
	}
	fg.OverlapFlag = fp.flag("overlap_flag")
	fg.ClipToRestrictedRange = fp.flag("clip_to_restricted_range")
}

func clip3(lo, hi, v int32) int32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

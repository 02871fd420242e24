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
	"go.uber.org/multierr"
)

// ObuHeader OBU 头
// obu_forbidden_bit(1) obu_type(4) obu_extension_flag(1) obu_has_size_field(1) obu_reserved_1bit(1)
// [temporal_id(3) spatial_id(2) extension_header_reserved_3bits(3)]
type ObuHeader struct {
	ForbiddenBit uint8   `json:"forbidden_bit,omitempty"`
	Type         ObuType `json:"type"`
	HasExtension bool    `json:"has_extension"`
	HasSizeField bool    `json:"has_size_field"`
	Reserved1Bit uint8   `json:"reserved_1bit,omitempty"`
	TemporalID   uint8   `json:"temporal_id"`
	SpatialID    uint8   `json:"spatial_id"`
	ExtReserved3 uint8   `json:"extension_reserved,omitempty"`
	HeaderSize   int     `json:"header_size"` // 1 或 2 字节
}

// ParseObuHeader 从 data 头部解析 OBU 头
func ParseObuHeader(data []byte) (ObuHeader, error) {
	var h ObuHeader
	if len(data) < 1 {
		return h, codecerr.EOFf(0, codecerr.UnitByte, "obu header")
	}

	b := data[0]
	h.ForbiddenBit = b >> 7
	h.Type = ObuType((b >> 3) & 0x0f)
	h.HasExtension = (b>>2)&1 == 1
	h.HasSizeField = (b>>1)&1 == 1
	h.Reserved1Bit = b & 1
	h.HeaderSize = 1

	if h.HasExtension {
		if len(data) < 2 {
			return h, codecerr.EOFf(1, codecerr.UnitByte, "obu extension header")
		}
		e := data[1]
		h.TemporalID = e >> 5
		h.SpatialID = (e >> 3) & 0x03
		h.ExtReserved3 = e & 0x07
		h.HeaderSize = 2
	}
	return h, nil
}

// Bytes 编码 OBU 头
func (h *ObuHeader) Bytes() []byte {
	b := byte(h.Type&0x0f) << 3
	if h.ForbiddenBit != 0 {
		b |= 0x80
	}
	if h.HasExtension {
		b |= 0x04
	}
	if h.HasSizeField {
		b |= 0x02
	}
	b |= h.Reserved1Bit & 1
	if !h.HasExtension {
		return []byte{b}
	}
	return []byte{b, h.TemporalID<<5 | (h.SpatialID&0x03)<<3 | h.ExtReserved3&0x07}
}

// Obu 一个成帧的 OBU；Payload 引用输入缓冲区，不复制
type Obu struct {
	Index          int       `json:"index"`
	Header         ObuHeader `json:"header"`
	Offset         int       `json:"offset"`           // OBU 在码流中的字节偏移
	SizeFieldBytes int       `json:"size_field_bytes"` // obu_size 的 leb128 字节数
	PayloadOffset  int       `json:"payload_offset"`   // 载荷在码流中的字节偏移
	PayloadSize    int       `json:"payload_size"`
	TotalSize      int       `json:"total_size"`
	DeclaredSize   uint64    `json:"declared_size,omitempty"` // obu_size 声明值，被截断时与 PayloadSize 不同
	Truncated      bool      `json:"truncated,omitempty"`
	FrameType      FrameType `json:"frame_type,omitempty"`
	HasFrameType   bool      `json:"has_frame_type,omitempty"`
	Payload        []byte    `json:"-"`
}

// PayloadEnd 载荷结束的字节偏移
func (o *Obu) PayloadEnd() int {
	return o.PayloadOffset + o.PayloadSize
}

// PayloadBitOffset 载荷在码流中的起始位
func (o *Obu) PayloadBitOffset() uint64 {
	return uint64(o.PayloadOffset) << 3
}

// RecordHeader 把 OBU 头和 obu_size 记录到语法树（绝对位位置）
func (o *Obu) RecordHeader(b *syntax.Builder) {
	if b == nil {
		return
	}
	base := uint64(o.Offset) << 3
	h := &o.Header
	b.PushContainer("obu_header", base)
	b.AddField("obu_forbidden_bit", syntax.BitRange{Start: base, End: base + 1}, strconv.Itoa(int(h.ForbiddenBit)))
	b.AddField("obu_type", syntax.BitRange{Start: base + 1, End: base + 5}, enumString(h.Type.String(), uint32(h.Type)))
	b.AddField("obu_extension_flag", syntax.BitRange{Start: base + 5, End: base + 6}, boolString(h.HasExtension))
	b.AddField("obu_has_size_field", syntax.BitRange{Start: base + 6, End: base + 7}, boolString(h.HasSizeField))
	b.AddField("obu_reserved_1bit", syntax.BitRange{Start: base + 7, End: base + 8}, strconv.Itoa(int(h.Reserved1Bit)))
	if h.HasExtension {
		b.PushContainer("obu_extension_header", base+8)
		b.AddField("temporal_id", syntax.BitRange{Start: base + 8, End: base + 11}, strconv.Itoa(int(h.TemporalID)))
		b.AddField("spatial_id", syntax.BitRange{Start: base + 11, End: base + 13}, strconv.Itoa(int(h.SpatialID)))
		b.AddField("extension_header_reserved_3bits", syntax.BitRange{Start: base + 13, End: base + 16}, strconv.Itoa(int(h.ExtReserved3)))
		b.PopContainer(base + 16)
	}
	b.PopContainer(base + uint64(h.HeaderSize)*8)

	if o.SizeFieldBytes > 0 {
		start := base + uint64(h.HeaderSize)*8
		b.AddField("obu_size", syntax.BitRange{Start: start, End: start + uint64(o.SizeFieldBytes)*8},
			strconv.FormatUint(o.DeclaredSize, 10))
	}
}

func boolString(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

// Anomaly 容错成帧时记录的异常
type Anomaly struct {
	ObuIndex int    `json:"obu_index"`
	Offset   int    `json:"offset"` // 字节偏移
	Err      error  `json:"-"`
	Message  string `json:"message"`
}

// Anomalies 异常列表
type Anomalies []Anomaly

// Err 合并为单个错误，没有异常时返回 nil
func (as Anomalies) Err() error {
	var err error
	for _, a := range as {
		err = multierr.Append(err, a.Err)
	}
	return err
}

// ParseObus 严格成帧：遇到第一个畸形 OBU 即返回错误
func ParseObus(data []byte) ([]Obu, error) {
	obus, anomalies := frameObus(data, false)
	if len(anomalies) > 0 {
		return obus, anomalies[0].Err
	}
	return obus, nil
}

// ParseObusResilient 容错成帧：单个畸形 OBU 被截断到剩余字节并记录异常，
// 后续 OBU 仍然可以访问
func ParseObusResilient(data []byte) ([]Obu, Anomalies) {
	return frameObus(data, true)
}

func frameObus(data []byte, resilient bool) (obus []Obu, anomalies Anomalies) {
	reducedStill := false
	report := func(index, offset int, err error) {
		anomalies = append(anomalies, Anomaly{ObuIndex: index, Offset: offset, Err: err, Message: err.Error()})
	}

	pos := 0
	for pos < len(data) {
		index := len(obus)
		h, err := ParseObuHeader(data[pos:])
		if err != nil {
			report(index, pos, errors.Wrapf(shiftByteOffset(err, pos), "obu[%d] header", index))
			return
		}

		if h.ForbiddenBit != 0 {
			report(index, pos, errors.Wrapf(codecerr.InvalidAt(int64(pos)*8, "obu_forbidden_bit set"), "obu[%d]", index))
			if !resilient {
				return
			}
		}

		obu := Obu{
			Index:  index,
			Header: h,
			Offset: pos,
		}
		cursor := pos + h.HeaderSize
		end := len(data)
		stop := false

		if h.HasSizeField {
			size, n, err := leb128.Decode(data[cursor:])
			if err != nil {
				report(index, cursor, errors.Wrapf(shiftByteOffset(err, cursor), "obu[%d] obu_size", index))
				if !resilient {
					return
				}
				// 无法定界，剩余字节作为不透明载荷
				obu.Truncated = true
				stop = true
			} else {
				obu.SizeFieldBytes = n
				obu.DeclaredSize = size
				cursor += n
				if size > uint64(len(data)-cursor) {
					report(index, cursor, errors.Wrapf(codecerr.EOFf(int64(cursor), codecerr.UnitByte,
						"obu_size %d overruns buffer by %d bytes", size, size-uint64(len(data)-cursor)), "obu[%d]", index))
					if !resilient {
						return
					}
					obu.Truncated = true
				} else {
					end = cursor + int(size)
				}
			}
		}

		obu.PayloadOffset = cursor
		obu.PayloadSize = end - cursor
		obu.TotalSize = end - pos
		obu.Payload = data[cursor:end:end]

		switch h.Type {
		case ObuSequenceHeader:
			reducedStill = peekReducedStill(obu.Payload)
		case ObuFrameHeader, ObuFrame, ObuRedundantFrameHeader:
			obu.FrameType, obu.HasFrameType = PeekFrameType(obu.Payload, reducedStill)
		}

		obus = append(obus, obu)
		if stop {
			return
		}
		pos = end
	}
	return
}

func shiftByteOffset(err error, base int) error {
	var e *codecerr.Error
	if errors.As(err, &e) && e.Unit == codecerr.UnitByte {
		shifted := *e
		shifted.Offset += int64(base)
		return &shifted
	}
	return err
}

// peekReducedStill 读取 reduced_still_picture_header（序列头第 5 位）
func peekReducedStill(payload []byte) bool {
	return len(payload) > 0 && (payload[0]>>3)&1 == 1
}

// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package codecerr 定义码流解析过程中的错误类别。
// 每个错误都可归因到码流中的位或字节偏移，便于调用者解释解析在何处偏离。
package codecerr

import (
	"errors"
	"fmt"
)

// Kind 错误类别
type Kind int

// 错误类别常量
const (
	KindUnknown       Kind = iota
	KindUnexpectedEOF      // 读取越过缓冲区末尾
	KindParse              // 位读取器契约违例，例如请求超过 32/64 位
	KindInvalidData        // 语法元素解码为非法取值
	KindDecode             // 超出结构限制，例如 tile 数量超限、乘法溢出
)

// String returns a lower-case representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindUnexpectedEOF:
		return "unexpected eof"
	case KindParse:
		return "parse"
	case KindInvalidData:
		return "invalid data"
	case KindDecode:
		return "decode"
	default:
		return "unknown"
	}
}

// Unit 偏移单位
type Unit uint8

// 偏移单位常量
const (
	UnitNone Unit = iota
	UnitBit
	UnitByte
)

func (u Unit) String() string {
	switch u {
	case UnitBit:
		return "bit"
	case UnitByte:
		return "byte"
	default:
		return ""
	}
}

// Error 码流错误
type Error struct {
	Kind    Kind
	Offset  int64 // 出错位置，单位由 Unit 指定；-1 表示未知
	Unit    Unit
	Message string
}

func (e *Error) Error() string {
	switch {
	case e.Unit != UnitNone && e.Message != "":
		return fmt.Sprintf("%s at %s %d: %s", e.Kind, e.Unit, e.Offset, e.Message)
	case e.Unit != UnitNone:
		return fmt.Sprintf("%s at %s %d", e.Kind, e.Unit, e.Offset)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
}

// EOF 创建 UnexpectedEOF 错误
func EOF(offset int64, unit Unit) *Error {
	return &Error{Kind: KindUnexpectedEOF, Offset: offset, Unit: unit}
}

// EOFf 创建带说明的 UnexpectedEOF 错误
func EOFf(offset int64, unit Unit, format string, args ...interface{}) *Error {
	return &Error{Kind: KindUnexpectedEOF, Offset: offset, Unit: unit, Message: fmt.Sprintf(format, args...)}
}

// Parse 创建位读取器契约违例错误，offset 为位偏移
func Parse(offset int64, format string, args ...interface{}) *Error {
	return &Error{Kind: KindParse, Offset: offset, Unit: UnitBit, Message: fmt.Sprintf(format, args...)}
}

// Invalid 创建非法数据错误
func Invalid(format string, args ...interface{}) *Error {
	return &Error{Kind: KindInvalidData, Offset: -1, Message: fmt.Sprintf(format, args...)}
}

// InvalidAt 创建带位偏移的非法数据错误
func InvalidAt(bitOffset int64, format string, args ...interface{}) *Error {
	return &Error{Kind: KindInvalidData, Offset: bitOffset, Unit: UnitBit, Message: fmt.Sprintf(format, args...)}
}

// Decode 创建结构限制错误
func Decode(format string, args ...interface{}) *Error {
	return &Error{Kind: KindDecode, Offset: -1, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries a *Error of the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// OffsetOf returns the offset attached to err, if any.
func OffsetOf(err error) (offset int64, unit Unit, ok bool) {
	var e *Error
	if errors.As(err, &e) && e.Unit != UnitNone {
		return e.Offset, e.Unit, true
	}
	return -1, UnitNone, false
}

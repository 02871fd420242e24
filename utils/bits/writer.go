// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package bits

// Writer MSB 优先的位写入器
type Writer struct {
	buf  []byte
	nbit uint64
}

// WriteBits 写入 v 的低 n 位，n <= 64
func (w *Writer) WriteBits(v uint64, n int) {
	for i := n - 1; i >= 0; i-- {
		w.WriteBit(uint8(v>>uint(i)) & 1)
	}
}

// WriteBit 写入 1 位
func (w *Writer) WriteBit(b uint8) {
	if w.nbit&7 == 0 {
		w.buf = append(w.buf, 0)
	}
	if b&1 == 1 {
		w.buf[len(w.buf)-1] |= 0x80 >> (w.nbit & 7)
	}
	w.nbit++
}

// WriteBool 写入布尔标志
func (w *Writer) WriteBool(v bool) {
	if v {
		w.WriteBit(1)
	} else {
		w.WriteBit(0)
	}
}

// WriteUvlc 写入 uvlc() 编码
func (w *Writer) WriteUvlc(v uint32) {
	x := uint64(v) + 1
	n := 0
	for (x >> uint(n+1)) != 0 {
		n++
	}
	w.WriteBits(0, n)
	w.WriteBits(x, n+1)
}

// ByteAlign 以 0 填充到字节边界
func (w *Writer) ByteAlign() {
	for w.nbit&7 != 0 {
		w.WriteBit(0)
	}
}

// Len 已写入的位数
func (w *Writer) Len() uint64 {
	return w.nbit
}

// Bytes 返回写入的字节，最后一个字节不足的位为 0
func (w *Writer) Bytes() []byte {
	return w.buf
}

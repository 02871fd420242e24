// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package av1

import (
	"github.com/cnotch/av1hub/av/codec/av1/av1test"
	"github.com/cnotch/av1hub/utils/bits"
)

func testSequenceHeader() []byte { return av1test.SequenceHeader() }

func writeKeyFrameHeader(w *bits.Writer, baseQ uint64) { av1test.WriteKeyFrameHeader(w, baseQ) }

func writeInterFrameHeader(w *bits.Writer, orderHint uint64) {
	av1test.WriteInterFrameHeader(w, orderHint)
}

func obuBytes(typ ObuType, payload []byte) []byte { return av1test.Obu(int(typ), payload) }

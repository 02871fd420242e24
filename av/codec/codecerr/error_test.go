// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package codecerr

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestKindThroughWrap(t *testing.T) {
	err := errors.Wrap(EOF(42, UnitBit), "sequence header")
	assert.True(t, Is(err, KindUnexpectedEOF))
	assert.False(t, Is(err, KindParse))
	assert.Equal(t, "sequence header: unexpected eof at bit 42", err.Error())

	off, unit, ok := OffsetOf(err)
	assert.True(t, ok)
	assert.Equal(t, int64(42), off)
	assert.Equal(t, UnitBit, unit)
}

func TestMessages(t *testing.T) {
	assert.Equal(t, "parse at bit 3: read 33 bits", Parse(3, "read %d bits", 33).Error())
	assert.Equal(t, "invalid data: frame_type 7", Invalid("frame_type %d", 7).Error())
	assert.Equal(t, "decode: too many tiles", Decode("too many tiles").Error())
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
	assert.False(t, Is(nil, KindDecode))

	_, _, ok := OffsetOf(Decode("x"))
	assert.False(t, ok)
}

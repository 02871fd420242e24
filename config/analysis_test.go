// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAnalysisConfig_normalize(t *testing.T) {
	var c AnalysisConfig
	c.normalize()
	def := DefaultAnalysis()
	def.Resilient = false
	def.DecodeTiles = false
	assert.Equal(t, def, c)
	assert.Equal(t, 30*time.Minute, c.SessionTimeout())

	c = AnalysisConfig{MaxTiles: 4, TileWorkers: 2, SessionTTL: 1, MaxUpload: 10, Rate: 3}
	c.normalize()
	assert.Equal(t, AnalysisConfig{MaxTiles: 4, TileWorkers: 2, SessionTTL: 1, MaxUpload: 10, Rate: 3}, c)
}

func TestDefaults(t *testing.T) {
	assert.Equal(t, ":8090", Addr())
	assert.False(t, Profile())
	assert.Equal(t, DefaultAnalysis(), Analysis())
}

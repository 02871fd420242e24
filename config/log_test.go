// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cnotch/xlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogConfig_normalize(t *testing.T) {
	var c LogConfig
	c.normalize()
	assert.Equal(t, LogConfig{
		Filename:   "./logs/av1hub-analysis.log",
		MaxSize:    defaultLogMaxSize,
		MaxDays:    defaultLogMaxDays,
		MaxBackups: defaultLogMaxBackups,
	}, c)

	c = LogConfig{Filename: "a.log", MaxSize: 1, MaxDays: 2, MaxBackups: 3, Compress: true}
	c.normalize()
	assert.Equal(t, LogConfig{Filename: "a.log", MaxSize: 1, MaxDays: 2, MaxBackups: 3, Compress: true}, c)
}

func TestLogConfig_NewLoggerToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "analysis.log")
	c := LogConfig{Level: xlog.InfoLevel, ToFile: true, Filename: path}
	c.normalize()

	logger := c.NewLogger()
	logger.With(xlog.Fields(xlog.F("session", "s1"))).Warn("obu 3 truncated")
	logger.Debug("discard superseded request")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "obu 3 truncated")
	assert.Contains(t, string(data), "s1")
	assert.NotContains(t, string(data), "superseded")
}

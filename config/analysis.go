// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"flag"
	"runtime"
	"time"
)

// AnalysisConfig 码流分析配置
type AnalysisConfig struct {
	// MaxTiles 单帧 tile 总数上限
	MaxTiles int `json:"max_tiles"`
	// Resilient 容错成帧，畸形 OBU 只记录异常
	Resilient bool `json:"resilient"`
	// DecodeTiles 是否熵解码 tile 数据
	DecodeTiles bool `json:"decode_tiles"`
	// TileWorkers 并行解码 tile 的协程数
	TileWorkers int `json:"tile_workers"`
	// SessionTTL 分析会话空闲多少分钟后释放
	SessionTTL int `json:"session_ttl"`
	// MaxUpload 上传码流的最大字节数
	MaxUpload int64 `json:"max_upload"`
	// Rate 每秒允许的分析请求数
	Rate int `json:"rate"`
}

func (c *AnalysisConfig) initFlags() {
	flag.IntVar(&c.MaxTiles, "analysis-maxtiles", 512,
		"Set the maximum number of tiles per frame")
	flag.BoolVar(&c.Resilient, "analysis-resilient", true,
		"Determines if malformed OBUs are truncated and reported instead of aborting")
	flag.BoolVar(&c.DecodeTiles, "analysis-decodetiles", true,
		"Determines if tile data should be entropy decoded")
	flag.IntVar(&c.TileWorkers, "analysis-tileworkers", runtime.NumCPU(),
		"Set the number of goroutines decoding tiles")
	flag.IntVar(&c.SessionTTL, "analysis-sessionttl", 30,
		"Set the minutes an idle analysis session is retained")
	flag.Int64Var(&c.MaxUpload, "analysis-maxupload", 64<<20,
		"Set the maximum size in bytes of an uploaded bitstream")
	flag.IntVar(&c.Rate, "analysis-rate", 10,
		"Set the number of analyze requests allowed per second")
}

func (c *AnalysisConfig) normalize() {
	if c.MaxTiles <= 0 {
		c.MaxTiles = 512
	}
	if c.TileWorkers <= 0 {
		c.TileWorkers = runtime.NumCPU()
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = 30
	}
	if c.MaxUpload <= 0 {
		c.MaxUpload = 64 << 20
	}
	if c.Rate <= 0 {
		c.Rate = 10
	}
}

// SessionTimeout 返回分析会话的空闲保留时长
func (c *AnalysisConfig) SessionTimeout() time.Duration {
	return time.Duration(c.SessionTTL) * time.Minute
}

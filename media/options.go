// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package media

import (
	"runtime"

	"github.com/cnotch/av1hub/av/codec/av1"
	"github.com/cnotch/av1hub/config"
	"github.com/cnotch/xlog"
)

// Options 分析选项
type Options struct {
	Resilient   bool `json:"resilient"`    // 容错成帧
	DecodeTiles bool `json:"decode_tiles"` // 熵解码 tile
	MaxTiles    int  `json:"max_tiles"`    // 单帧 tile 上限
	TileWorkers int  `json:"tile_workers"` // 并行解码 tile 的协程数
	CellSize    int  `json:"cell_size"`    // 空间索引单元边长，0 为超级块大小

	Logger *xlog.Logger `json:"-"`
}

// DefaultOptions 按全局配置生成选项
func DefaultOptions() Options {
	c := config.Analysis()
	return Options{
		Resilient:   c.Resilient,
		DecodeTiles: c.DecodeTiles,
		MaxTiles:    c.MaxTiles,
		TileWorkers: c.TileWorkers,
	}
}

func (o *Options) normalize() {
	if o.MaxTiles <= 0 {
		o.MaxTiles = av1.DefaultMaxTiles
	}
	if o.TileWorkers <= 0 {
		o.TileWorkers = runtime.NumCPU()
	}
	if o.Logger == nil {
		o.Logger = xlog.L()
	}
}

// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"flag"
)

// config 服务配置
type config struct {
	ListenAddr  string         `json:"listen"`  // 服务侦听地址和端口
	Profile     bool           `json:"profile"` // 是否启动Profile
	Log         LogConfig      `json:"log"`     // 日志配置
	Analysis    AnalysisConfig `json:"analysis"`
	AnalyzeFile string         `json:"-"` // 非空时只分析该文件并输出报告
}

func (c *config) initFlags() {
	// 服务的端口
	flag.StringVar(&c.ListenAddr, "listen", defaultListen, "Set server listen address")
	flag.BoolVar(&c.Profile, "pprof", false,
		"Determines if profile enabled")

	flag.StringVar(&c.AnalyzeFile, "analyze", "",
		"Analyze the bitstream file, print a JSON report and exit")

	// 初始化日志配置
	c.Log.initFlags()
	c.Analysis.initFlags()
}

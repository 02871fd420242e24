// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	cfg "github.com/cnotch/loader"
	"github.com/cnotch/xlog"
)

// 服务名
const (
	Vendor  = "CAOHONGJU"
	Name    = "av1hub"
	Version = "V1.0.0"
)

const defaultListen = ":8090"

var globalC *config

// InitConfig 初始化 Config
func InitConfig() {
	exe, err := os.Executable()
	if err != nil {
		xlog.Panic(err.Error())
	}

	configPath := filepath.Join(filepath.Dir(exe), Name+".conf")

	globalC = new(config)
	globalC.initFlags()

	// 创建或加载配置文件
	if err := cfg.Load(globalC,
		&cfg.JSONLoader{Path: configPath, CreatedIfNonExsit: true},
		&cfg.EnvLoader{Prefix: strings.ToUpper(Name)},
		&cfg.FlagLoader{}); err != nil {
		// 异常，直接退出
		xlog.Panic(err.Error())
	}
	globalC.Analysis.normalize()

	// 初始化日志
	globalC.Log.initLogger()
}

// AnalyzeFile 命令行指定的待分析文件
func AnalyzeFile() string {
	if globalC == nil {
		return ""
	}
	return globalC.AnalyzeFile
}

// Addr Listen addr
func Addr() string {
	if globalC == nil {
		return defaultListen
	}
	return globalC.ListenAddr
}

// Profile 是否启动 Http Profile
func Profile() bool {
	if globalC == nil {
		return false
	}
	return globalC.Profile
}

// Analysis 返回分析配置的副本；未初始化时为默认值
func Analysis() AnalysisConfig {
	if globalC == nil {
		return DefaultAnalysis()
	}
	return globalC.Analysis
}

// DefaultAnalysis 默认分析配置
func DefaultAnalysis() AnalysisConfig {
	return AnalysisConfig{
		MaxTiles:    512,
		Resilient:   true,
		DecodeTiles: true,
		TileWorkers: runtime.NumCPU(),
		SessionTTL:  30,
		MaxUpload:   64 << 20,
		Rate:        10,
	}
}

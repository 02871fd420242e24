// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"flag"
	"os"

	"github.com/cnotch/xlog"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// 分析日志的滚动默认值。每个分析请求会按 OBU 记录异常，单个文件放宽到 100M，
// 旧文件压缩后保留较短时间。
const (
	defaultLogMaxSize    = 100
	defaultLogMaxDays    = 3
	defaultLogMaxBackups = 5
)

// LogConfig 日志配置
type LogConfig struct {
	// Level 输出级别；debug 时记录被丢弃的过期分析请求
	Level xlog.Level `json:"level"`

	// ToFile 是否同时写入 JSON 格式的分析日志文件
	ToFile bool `json:"tofile"`

	// Filename 分析日志文件路径
	Filename string `json:"filename"`

	// MaxSize 单个日志文件的最大尺寸，以兆为单位
	MaxSize int `json:"maxsize"`

	// MaxDays 旧日志最多保存多少天
	MaxDays int `json:"maxdays"`

	// MaxBackups 旧日志最多保持数量，与 MaxDays 同时生效
	MaxBackups int `json:"maxbackups"`

	// Compress 是否用 gzip 压缩旧日志
	Compress bool `json:"compress"`
}

func defaultLogFilename() string {
	return "./logs/" + Name + "-analysis.log"
}

func (c *LogConfig) initFlags() {
	flag.Var(&c.Level, "log-level",
		"Set the log level to output")
	flag.BoolVar(&c.ToFile, "log-tofile", false,
		"Determines if analysis logs should be saved to file")
	flag.StringVar(&c.Filename, "log-filename", defaultLogFilename(),
		"Set the file to write analysis logs to")
	flag.IntVar(&c.MaxSize, "log-maxsize", defaultLogMaxSize,
		"Set the maximum size in megabytes of the log file before it gets rotated")
	flag.IntVar(&c.MaxDays, "log-maxdays", defaultLogMaxDays,
		"Set the maximum days of old log files to retain")
	flag.IntVar(&c.MaxBackups, "log-maxbackups", defaultLogMaxBackups,
		"Set the maximum number of old log files to retain")
	flag.BoolVar(&c.Compress, "log-compress", true,
		"Determines if rotated log files should be compressed")
}

// 配置文件中缺省的项使用默认值
func (c *LogConfig) normalize() {
	if c.Filename == "" {
		c.Filename = defaultLogFilename()
	}
	if c.MaxSize <= 0 {
		c.MaxSize = defaultLogMaxSize
	}
	if c.MaxDays <= 0 {
		c.MaxDays = defaultLogMaxDays
	}
	if c.MaxBackups <= 0 {
		c.MaxBackups = defaultLogMaxBackups
	}
}

// 初始化根日志
func (c *LogConfig) initLogger() {
	c.normalize()
	xlog.ReplaceGlobal(c.NewLogger())
}

// NewLogger 按配置创建日志；ToFile 时同时输出到滚动文件
func (c *LogConfig) NewLogger() *xlog.Logger {
	console := xlog.NewCore(xlog.NewConsoleEncoder(xlog.LstdFlags|xlog.Lmicroseconds|xlog.Llongfile), xlog.Lock(os.Stderr), c.Level)
	if !c.ToFile {
		return xlog.New(console, xlog.AddCaller())
	}

	fileWriter := &lumberjack.Logger{
		Filename:   c.Filename,
		MaxSize:    c.MaxSize,
		MaxBackups: c.MaxBackups,
		MaxAge:     c.MaxDays,
		LocalTime:  true,
		Compress:   c.Compress,
	}
	return xlog.New(xlog.NewTee(console,
		xlog.NewCore(xlog.NewJSONEncoder(xlog.Llongfile), fileWriter, c.Level)),
		xlog.AddCaller())
}

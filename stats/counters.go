// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package stats

import (
	"sync/atomic"
)

// 全局变量
var (
	Sessions = NewGauge()   // 分析会话统计
	Total    = NewCounter() // 全部分析的累计
)

// GaugeSample 计数采样
type GaugeSample struct {
	Total  int64 `json:"total"`
	Active int64 `json:"active"`
}

// Gauge 当前活动数与累计数
type Gauge interface {
	Add() int64
	Release() int64
	GetSample() GaugeSample
}

type gauge struct {
	sample GaugeSample
}

// NewGauge 新建计数
func NewGauge() Gauge {
	return &gauge{}
}

func (g *gauge) Add() int64 {
	atomic.AddInt64(&g.sample.Total, 1)
	return atomic.AddInt64(&g.sample.Active, 1)
}

func (g *gauge) Release() int64 {
	return atomic.AddInt64(&g.sample.Active, -1)
}

func (g *gauge) GetSample() GaugeSample {
	return GaugeSample{
		Total:  atomic.LoadInt64(&g.sample.Total),
		Active: atomic.LoadInt64(&g.sample.Active),
	}
}

// AnalysisSample 码流分析统计采样
type AnalysisSample struct {
	Bitstreams        int64 `json:"bitstreams"`
	InBytes           int64 `json:"inbytes"`  // 分析的码流字节
	OutBytes          int64 `json:"outbytes"` // 导出的片段字节
	Obus              int64 `json:"obus"`
	Frames            int64 `json:"frames"`
	Tiles             int64 `json:"tiles"`
	CodingUnits       int64 `json:"coding_units"`
	Anomalies         int64 `json:"anomalies"`
	FailedSuperblocks int64 `json:"failed_superblocks"`
}

func (s *AnalysisSample) clone() AnalysisSample {
	return AnalysisSample{
		Bitstreams:        atomic.LoadInt64(&s.Bitstreams),
		InBytes:           atomic.LoadInt64(&s.InBytes),
		OutBytes:          atomic.LoadInt64(&s.OutBytes),
		Obus:              atomic.LoadInt64(&s.Obus),
		Frames:            atomic.LoadInt64(&s.Frames),
		Tiles:             atomic.LoadInt64(&s.Tiles),
		CodingUnits:       atomic.LoadInt64(&s.CodingUnits),
		Anomalies:         atomic.LoadInt64(&s.Anomalies),
		FailedSuperblocks: atomic.LoadInt64(&s.FailedSuperblocks),
	}
}

func (s *AnalysisSample) add(d AnalysisSample) {
	atomic.AddInt64(&s.Bitstreams, d.Bitstreams)
	atomic.AddInt64(&s.InBytes, d.InBytes)
	atomic.AddInt64(&s.OutBytes, d.OutBytes)
	atomic.AddInt64(&s.Obus, d.Obus)
	atomic.AddInt64(&s.Frames, d.Frames)
	atomic.AddInt64(&s.Tiles, d.Tiles)
	atomic.AddInt64(&s.CodingUnits, d.CodingUnits)
	atomic.AddInt64(&s.Anomalies, d.Anomalies)
	atomic.AddInt64(&s.FailedSuperblocks, d.FailedSuperblocks)
}

// Counter 分析统计接口
type Counter interface {
	Add(d AnalysisSample)      // 累加
	AddOut(size int64)         // 增加导出字节
	GetSample() AnalysisSample // 获取当前时点采样
}

type counter struct {
	sample AnalysisSample
}

// NewCounter 创建分析统计
func NewCounter() Counter {
	return &counter{}
}

func (c *counter) Add(d AnalysisSample) {
	c.sample.add(d)
}

func (c *counter) AddOut(size int64) {
	atomic.AddInt64(&c.sample.OutBytes, size)
}

func (c *counter) GetSample() AnalysisSample {
	return c.sample.clone()
}

type childCounter struct {
	parent Counter
	sample AnalysisSample
}

// NewChildCounter 创建子计数，它会把自己的计数Add到parent上
func NewChildCounter(parent Counter) Counter {
	return &childCounter{
		parent: parent,
	}
}

func (c *childCounter) Add(d AnalysisSample) {
	c.sample.add(d)
	c.parent.Add(d)
}

func (c *childCounter) AddOut(size int64) {
	atomic.AddInt64(&c.sample.OutBytes, size)
	c.parent.AddOut(size)
}

func (c *childCounter) GetSample() AnalysisSample {
	return c.sample.clone()
}

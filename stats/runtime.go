// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package stats

import (
	"runtime"
	"time"

	"github.com/kelindar/process"
)

// 创建时间
var (
	StartingTime = time.Now()
)

// Snapshot 服务运行快照
type Snapshot struct {
	Proc     Proc           `json:"proc"`
	Runtime  Runtime        `json:"runtime"`
	Sessions GaugeSample    `json:"sessions"`
	Analysis AnalysisSample `json:"analysis"`
}

// Proc 进程信息统计
type Proc struct {
	CPU    float64 `json:"cpu"`    // cpu使用情况
	Priv   int32   `json:"priv"`   // 私有内存 KB
	Virt   int32   `json:"virt"`   // 虚拟内存 KB
	Uptime int32   `json:"uptime"` // 运行时间 S
}

// Runtime Go 运行时统计，内存单位 KB
type Runtime struct {
	HeapAlloc   int32   `json:"heap_alloc"`
	HeapInuse   int32   `json:"heap_inuse"`
	HeapObjects int32   `json:"heap_objects"`
	StackInuse  int32   `json:"stack_inuse"`
	GCCPU       float64 `json:"gc_cpu"`
	NumGC       uint32  `json:"num_gc"`
	Go          Go      `json:"go"`
}

// Go goroutines 、CPU 和总内存
type Go struct {
	Count int32 `json:"count"` // runtime.NumGoroutine()
	Procs int32 `json:"procs"` // runtime.NumCPU()
	Sys   int32 `json:"sys"`   // KB MemStats.Sys
	Alloc int32 `json:"alloc"` // KB MemStats.TotalAlloc
}

// MeasureProc 获取进程信息
func MeasureProc() (p Proc) {
	defer func() {
		recover()
	}()
	p.Uptime = int32(time.Since(StartingTime).Seconds())
	var memoryPriv, memoryVirtual int64
	var cpu float64
	process.ProcUsage(&cpu, &memoryPriv, &memoryVirtual)
	p.CPU = cpu
	p.Priv = toKB(uint64(memoryPriv))
	p.Virt = toKB(uint64(memoryVirtual))
	return
}

// MeasureRuntime 获取 Go 运行时信息
func MeasureRuntime() Runtime {
	var memory runtime.MemStats
	runtime.ReadMemStats(&memory)

	return Runtime{
		HeapAlloc:   toKB(memory.HeapAlloc),
		HeapInuse:   toKB(memory.HeapInuse),
		HeapObjects: int32(memory.HeapObjects),
		StackInuse:  toKB(memory.StackInuse),
		GCCPU:       memory.GCCPUFraction,
		NumGC:       memory.NumGC,
		Go: Go{
			Count: int32(runtime.NumGoroutine()),
			Procs: int32(runtime.NumCPU()),
			Sys:   toKB(memory.Sys),
			Alloc: toKB(memory.TotalAlloc),
		},
	}
}

// Measure 采集进程、运行时与分析统计
func Measure() Snapshot {
	return Snapshot{
		Proc:     MeasureProc(),
		Runtime:  MeasureRuntime(),
		Sessions: Sessions.GetSample(),
		Analysis: Total.GetSample(),
	}
}

// Converts the memory in bytes to KBs, otherwise it would overflow our int32
func toKB(v uint64) int32 {
	return int32(v / 1024)
}

// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/cnotch/av1hub/config"
	"github.com/cnotch/av1hub/media"
	"github.com/cnotch/av1hub/service"
	"github.com/cnotch/scheduler"
	"github.com/cnotch/xlog"
)

func main() {
	// 初始化配置
	config.InitConfig()
	// 初始化全局计划任务
	scheduler.SetPanicHandler(func(job *scheduler.ManagedJob, r interface{}) {
		xlog.Errorf("scheduler task panic. tag: %v, recover: %v", job.Tag, r)
	})

	if file := config.AnalyzeFile(); file != "" {
		if err := report(file); err != nil {
			xlog.Errorf("analyze %s: %v", file, err)
			os.Exit(1)
		}
		return
	}

	// Start new service
	svc, err := service.NewService(context.Background(), xlog.L())
	if err != nil {
		xlog.L().Panic(err.Error())
	}

	// Listen and serve
	svc.Listen()
}

// report 分析文件并把结果以 JSON 写到标准输出
func report(file string) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return err
	}

	a, err := media.Analyze(context.Background(), data, media.DefaultOptions())
	if err != nil {
		return err
	}

	type frameSummary struct {
		*media.FrameRecord
		QPMap []int `json:"qp_map,omitempty"`
	}
	type fileReport struct {
		File     string          `json:"file"`
		Analysis *media.Analysis `json:"analysis"`
		Frames   []frameSummary  `json:"frames"`
	}
	r := fileReport{File: filepath.Base(file), Analysis: a}
	for _, f := range a.Frames {
		fs := frameSummary{FrameRecord: f}
		if g := f.Grid(); g != nil {
			fs.QPMap = g.QPMap()
		}
		r.Frames = append(r.Frames, fs)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "\t")
	return enc.Encode(&r)
}

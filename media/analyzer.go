// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package media

import (
	"context"
	"runtime/debug"
	"sync/atomic"

	"github.com/cnotch/queue"
	"github.com/cnotch/xlog"
	"github.com/pkg/errors"
)

// 分析请求
type request struct {
	session *Session
	id      uint64
	data    []byte
	opts    Options
}

// Analyzer 后台分析工作者，按提交顺序处理请求
type Analyzer struct {
	ctx       context.Context
	cancel    context.CancelFunc
	recvQueue *queue.SyncQueue
	logger    *xlog.Logger
	workers   int
	closed    atomic.Bool
}

// NewAnalyzer 创建并启动 workers 个分析工作者
func NewAnalyzer(workers int, logger *xlog.Logger) *Analyzer {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = xlog.L()
	}
	ctx, cancel := context.WithCancel(context.Background())
	a := &Analyzer{
		ctx:       ctx,
		cancel:    cancel,
		recvQueue: queue.NewSyncQueue(),
		logger:    logger,
		workers:   workers,
	}
	for i := 0; i < workers; i++ {
		go a.consume()
	}
	return a
}

// Submit 提交会话的分析请求，返回请求 id；会话之前的请求自动过期
func (a *Analyzer) Submit(s *Session, data []byte, opts Options) uint64 {
	id := s.nextRequest()
	a.recvQueue.Push(&request{session: s, id: id, data: data, opts: opts})
	return id
}

// Close 停止全部工作者
func (a *Analyzer) Close() error {
	if a.closed.Swap(true) {
		return nil
	}
	a.cancel()
	for i := 0; i < a.workers; i++ {
		a.recvQueue.Signal()
	}
	return nil
}

func (a *Analyzer) consume() {
	defer a.recvQueue.Reset()

	for !a.closed.Load() {
		p := a.recvQueue.Pop()
		if p == nil {
			if !a.closed.Load() {
				a.logger.Warn("receive nil request")
			}
			continue
		}
		a.process(p.(*request))
	}
}

func (a *Analyzer) process(req *request) {
	s := req.session
	logger := s.logger.With(xlog.Fields(xlog.F("request", req.id)))

	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("analyze routine panic；r = %v \n %s", r, debug.Stack())
			s.complete(req.id, nil, nil, errors.Errorf("analyze panic: %v", r))
		}
	}()

	// 已有更新的请求，直接丢弃
	if s.isStale(req.id) {
		s.complete(req.id, nil, nil, ErrSuperseded)
		logger.Debug("discard superseded request")
		return
	}

	req.opts.Logger = logger
	result, err := Analyze(a.ctx, req.data, req.opts)
	if !s.complete(req.id, req.data, result, err) {
		logger.Debug("discard superseded result")
		return
	}
	if err != nil {
		logger.Warnf("analyze failed: %v", err)
		return
	}
	logger.Infof("analyzed %d bytes, %d obus, %d frames, %d anomalies",
		result.Size, len(result.Obus), len(result.Frames), len(result.Anomalies))
}

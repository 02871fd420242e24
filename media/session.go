// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package media

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cnotch/av1hub/stats"
	"github.com/cnotch/xlog"
	"github.com/google/uuid"
)

// 会话状态
const (
	SessionPending int32 = iota
	SessionReady
	SessionFailed
	SessionClosed
)

var statusNames = []string{"pending", "ready", "failed", "closed"}

// 错误定义
var (
	// ErrSessionClosed 会话已关闭
	ErrSessionClosed = errors.New("analysis session is closed")
	// ErrSuperseded 请求已被更新的请求取代
	ErrSuperseded = errors.New("analysis request superseded")
)

// Session 一个码流的分析会话
type Session struct {
	id       string
	name     string
	createOn time.Time
	access   int64 // 最近访问时间 UnixNano
	counter  stats.Counter
	logger   *xlog.Logger

	lock      sync.Mutex
	status    int32
	requestID uint64 // 最近一次提交的请求
	completed uint64 // 最近一次完成（或被取代）的请求
	analysis  *Analysis
	data      []byte
	err       error
	changed   chan struct{}
}

// NewSession 创建会话
func NewSession(name string) *Session {
	id := uuid.New().String()
	now := time.Now()
	return &Session{
		id:       id,
		name:     name,
		createOn: now,
		access:   now.UnixNano(),
		counter:  stats.NewChildCounter(stats.Total),
		logger:   xlog.L().With(xlog.Fields(xlog.F("session", id))),
		status:   SessionPending,
		changed:  make(chan struct{}),
	}
}

// ID 会话标识
func (s *Session) ID() string { return s.id }

// Name 会话名称，通常为文件名
func (s *Session) Name() string { return s.name }

// Touch 刷新访问时间
func (s *Session) Touch() {
	atomic.StoreInt64(&s.access, time.Now().UnixNano())
}

// LastAccessTime 最近访问时间
func (s *Session) LastAccessTime() time.Time {
	return time.Unix(0, atomic.LoadInt64(&s.access))
}

// Counter 会话统计
func (s *Session) Counter() stats.Counter { return s.counter }

// Analysis 当前可用的分析结果
func (s *Session) Analysis() (*Analysis, error) {
	s.Touch()
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.status == SessionClosed {
		return nil, ErrSessionClosed
	}
	return s.analysis, s.err
}

// Data 分析结果对应的码流
func (s *Session) Data() []byte {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.data
}

// nextRequest 分配一个新的请求 id，之前未完成的请求随之过期
func (s *Session) nextRequest() uint64 {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.requestID++
	if s.status != SessionClosed {
		s.status = SessionPending
	}
	return s.requestID
}

// isStale 请求是否已被取代
func (s *Session) isStale(requestID uint64) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.status == SessionClosed || requestID != s.requestID
}

// complete 只接受最新请求的结果；过期结果被丢弃
func (s *Session) complete(requestID uint64, data []byte, a *Analysis, err error) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.status == SessionClosed || requestID != s.requestID {
		s.markCompleted(requestID)
		return false
	}

	s.analysis, s.data, s.err = a, data, err
	if err != nil {
		s.status = SessionFailed
	} else {
		s.status = SessionReady
		s.counter.Add(a.Sample())
	}
	s.markCompleted(requestID)
	return true
}

func (s *Session) markCompleted(requestID uint64) {
	if requestID > s.completed {
		s.completed = requestID
	}
	close(s.changed)
	s.changed = make(chan struct{})
}

// Wait 等待 requestID 对应的请求完成或被取代
func (s *Session) Wait(done <-chan struct{}, requestID uint64) error {
	for {
		s.lock.Lock()
		if s.status == SessionClosed {
			s.lock.Unlock()
			return ErrSessionClosed
		}
		if s.completed >= requestID {
			superseded := s.requestID != requestID
			s.lock.Unlock()
			if superseded {
				return ErrSuperseded
			}
			return nil
		}
		ch := s.changed
		s.lock.Unlock()

		select {
		case <-ch:
		case <-done:
			return errors.New("wait canceled")
		}
	}
}

// Close 关闭会话并释放分析结果
func (s *Session) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.status == SessionClosed {
		return nil
	}
	s.status = SessionClosed
	s.analysis, s.data = nil, nil
	close(s.changed)
	s.changed = make(chan struct{})
	s.logger.Info("analysis session closed")
	return nil
}

// SessionInfo 会话信息
type SessionInfo struct {
	ID         string               `json:"id"`
	Name       string               `json:"name"`
	Status     string               `json:"status"`
	Request    uint64               `json:"request"`
	StartOn    string               `json:"start_on"`
	LastAccess string               `json:"last_access"`
	Error      string               `json:"error,omitempty"`
	Size       int                  `json:"size"`
	Obus       int                  `json:"obus"`
	Frames     int                  `json:"frames"`
	Anomalies  int                  `json:"anomalies"`
	Stats      stats.AnalysisSample `json:"stats"`
}

// Info 会话信息
func (s *Session) Info() *SessionInfo {
	s.lock.Lock()
	defer s.lock.Unlock()
	si := &SessionInfo{
		ID:         s.id,
		Name:       s.name,
		Status:     statusNames[s.status],
		Request:    s.requestID,
		StartOn:    s.createOn.Format(time.RFC3339Nano),
		LastAccess: s.LastAccessTime().Format(time.RFC3339Nano),
		Stats:      s.counter.GetSample(),
	}
	if s.err != nil {
		si.Error = s.err.Error()
	}
	if a := s.analysis; a != nil {
		si.Size = a.Size
		si.Obus = len(a.Obus)
		si.Frames = len(a.Frames)
		si.Anomalies = len(a.Anomalies)
	}
	return si
}

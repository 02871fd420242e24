// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package media

import (
	"sort"
	"sync"
	"time"

	"github.com/cnotch/av1hub/stats"
	"github.com/cnotch/scheduler"
	"github.com/cnotch/xlog"
)

// 全局变量
var (
	sessions sync.Map // 分析会话集合 string->*Session
)

// Regist 注册会话
func Regist(s *Session) {
	if _, loaded := sessions.LoadOrStore(s.id, s); !loaded {
		stats.Sessions.Add()
	}
}

// Unregist 取消注册并关闭会话
func Unregist(id string) bool {
	si, ok := sessions.Load(id)
	if !ok {
		return false
	}
	sessions.Delete(id)
	stats.Sessions.Release()
	si.(*Session).Close()
	return true
}

// UnregistAll 取消全部注册的会话
func UnregistAll() {
	sessions.Range(func(key, value interface{}) bool {
		Unregist(key.(string))
		return true
	})
}

// Get 获取会话并刷新访问时间
func Get(id string) *Session {
	si, ok := sessions.Load(id)
	if !ok {
		return nil
	}
	s := si.(*Session)
	s.Touch()
	return s
}

// Count 会话数量
func Count() (n int) {
	sessions.Range(func(key, value interface{}) bool {
		n++
		return true
	})
	return
}

// Infos 按 id 分页返回会话信息
func Infos(pagetoken string, pagesize int) (int, []*SessionInfo) {
	var all []*SessionInfo
	sessions.Range(func(key, value interface{}) bool {
		all = append(all, value.(*Session).Info())
		return true
	})

	count := len(all)
	ss := make([]*SessionInfo, 0, count)
	for _, v := range all {
		if v.ID > pagetoken {
			ss = append(ss, v)
		}
	}
	sort.Slice(ss, func(i, j int) bool {
		return ss[i].ID < ss[j].ID
	})

	if pagesize <= 0 || pagesize > len(ss) {
		return count, ss
	}
	return count, ss[:pagesize]
}

// ExpireIdle 释放空闲超过 ttl 的会话，返回释放数量
func ExpireIdle(ttl time.Duration) int {
	n := 0
	now := time.Now()
	sessions.Range(func(key, value interface{}) bool {
		s := value.(*Session)
		if now.Sub(s.LastAccessTime()) >= ttl {
			if Unregist(s.id) {
				n++
			}
		}
		return true
	})
	return n
}

// RunExpireTask 启动周期性释放空闲会话的计划任务
func RunExpireTask(ttl time.Duration) {
	interval := ttl / 4
	if interval < time.Second {
		interval = time.Second
	}
	scheduler.PeriodFunc(interval, interval, func() {
		if n := ExpireIdle(ttl); n > 0 {
			xlog.Infof("released %d idle analysis sessions", n)
		}
	}, "The release task of analysis sessions idle for "+ttl.String())
}

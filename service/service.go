// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package service

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cnotch/av1hub/config"
	"github.com/cnotch/av1hub/media"
	"github.com/cnotch/av1hub/network"
	"github.com/cnotch/scheduler"
	"github.com/cnotch/xlog"
	"github.com/kelindar/rate"
)

// Service 网络服务对象(服务的入口)
type Service struct {
	context  context.Context
	cancel   context.CancelFunc
	logger   *xlog.Logger
	http     *http.Server
	analyzer *media.Analyzer
	conf     config.AnalysisConfig

	limitLock sync.Mutex
	limit     *rate.Limiter // 分析请求限流
}

// NewService 创建服务
func NewService(ctx context.Context, l *xlog.Logger) (s *Service, err error) {
	ctx, cancel := context.WithCancel(ctx)
	conf := config.Analysis()
	s = &Service{
		context:  ctx,
		cancel:   cancel,
		logger:   l,
		http:     new(http.Server),
		analyzer: media.NewAnalyzer(conf.TileWorkers, l),
		conf:     conf,
		limit:    rate.New(conf.Rate, time.Second),
	}

	// 设置 http 的Handler
	mux := http.NewServeMux()

	if config.Profile() {
		mux.HandleFunc("/debug/pprof/", localOnly(pprof.Index))
		mux.HandleFunc("/debug/pprof/cmdline", localOnly(pprof.Cmdline))
		mux.HandleFunc("/debug/pprof/profile", localOnly(pprof.Profile))
		mux.HandleFunc("/debug/pprof/symbol", localOnly(pprof.Symbol))
		mux.HandleFunc("/debug/pprof/trace", localOnly(pprof.Trace))
	}

	s.initApis(mux)
	s.http.Handler = mux

	// 启动空闲会话释放任务
	media.RunExpireTask(conf.SessionTimeout())

	s.logger.Info("service configured")
	return s, nil
}

// Handler 返回 http 处理器
func (s *Service) Handler() http.Handler {
	return s.http.Handler
}

// Listen starts the service.
func (s *Service) Listen() (err error) {
	defer s.Close()
	s.hookSignals()

	addr, err := network.ListenAddr(config.Addr())
	if err != nil {
		s.logger.Panic(err.Error())
	}

	s.logger.Infof("starting the listener, addr = %s.", addr.String())
	l, err := net.Listen("tcp", addr.String())
	if err != nil {
		s.logger.Panic(err.Error())
	}

	s.logger.Infof("service started(%s).", config.Version)
	s.logger = xlog.L()
	if err = s.http.Serve(l); err == http.ErrServerClosed {
		err = nil
	}
	return
}

// Close closes gracefully the service.,
func (s *Service) Close() {
	if s.cancel != nil {
		s.cancel()
	}

	// 停止计划任务
	jobs := scheduler.Jobs()
	for _, job := range jobs {
		job.Cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.http.Shutdown(ctx)

	s.analyzer.Close()
	// 清空注册
	media.UnregistAll()
}

// allow 是否允许新的分析请求
func (s *Service) allow() bool {
	s.limitLock.Lock()
	defer s.limitLock.Unlock()
	return !s.limit.Limit()
}

// localOnly 仅允许本机或私有网络访问
func localOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !network.IsLocalhostIP(network.HostIP(r.RemoteAddr)) {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		h(w, r)
	}
}

// OnSignal starts the signal processing and makes su
func (s *Service) hookSignals() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		for sig := range c {
			s.onSignal(sig)
		}
	}()
}

// OnSignal will be called when a OS-level signal is received.
func (s *Service) onSignal(sig os.Signal) {
	switch sig {
	case syscall.SIGTERM:
		fallthrough
	case syscall.SIGINT:
		s.logger.Warn(fmt.Sprintf("received signal %s, exiting...", sig.String()))
		s.Close()
		os.Exit(0)
	}
}

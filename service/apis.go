// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package service

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"path"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cnotch/apirouter"
	"github.com/cnotch/av1hub/av/codec/av1/entropy"
	"github.com/cnotch/av1hub/av/codec/av1/partition"
	"github.com/cnotch/av1hub/av/syntax"
	"github.com/cnotch/av1hub/config"
	"github.com/cnotch/av1hub/media"
	"github.com/cnotch/av1hub/network"
	"github.com/cnotch/av1hub/stats"
	"github.com/cnotch/xlog"
)

var (
	buffers = sync.Pool{
		New: func() interface{} {
			return bytes.NewBuffer(make([]byte, 0, 1024*2))
		},
	}
)

var crossdomainxml = []byte(
	`<?xml version="1.0" ?><cross-domain-policy>
			<allow-access-from domain="*" />
			<allow-http-request-headers-from domain="*" headers="*"/>
		</cross-domain-policy>`)

func (s *Service) initApis(mux *http.ServeMux) {
	api := apirouter.NewForGRPC(
		// 系统信息类API
		apirouter.GET("/api/v1/server", s.onGetServerInfo),
		apirouter.GET("/api/v1/runtime", s.onGetRuntime),

		// 分析会话API
		apirouter.POST("/api/v1/analyses", s.onCreateAnalysis),
		apirouter.GET("/api/v1/analyses", s.onListAnalyses),
		apirouter.GET("/api/v1/analyses/{id=*}", s.onGetAnalysis),
		apirouter.POST("/api/v1/analyses/{id=*}", s.onReanalyze),
		apirouter.DELETE("/api/v1/analyses/{id=*}", s.onDelAnalysis),

		// 分析结果API
		apirouter.GET("/api/v1/analyses/{id=*}/obus", s.onListObus),
		apirouter.GET("/api/v1/analyses/{id=*}/syntax", s.onGetSyntax),
		apirouter.GET("/api/v1/analyses/{id=*}/frames", s.onListFrames),
		apirouter.GET("/api/v1/analyses/{id=*}/frames/{n=*}/units", s.onGetUnits),
		apirouter.GET("/api/v1/analyses/{id=*}/extract", s.onExtract),
	)

	// api add to mux
	mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		if path.Base(r.URL.Path) == "crossdomain.xml" {
			w.Header().Set("Content-Type", "application/xml")
			w.Write(crossdomainxml)
			return
		}

		w.Header().Set("Access-Control-Allow-Origin", "*")
		api.ServeHTTP(w, r)
	})
}

func (s *Service) onGetServerInfo(w http.ResponseWriter, r *http.Request, pathParams apirouter.Params) {
	type server struct {
		Vendor   string   `json:"vendor"`
		Name     string   `json:"name"`
		Version  string   `json:"version"`
		OS       string   `json:"os"`
		Arch     string   `json:"arch"`
		Addrs    []string `json:"addrs"`
		StartOn  string   `json:"start_on"`
		Duration string   `json:"duration"`
	}
	srv := server{
		Vendor:   config.Vendor,
		Name:     config.Name,
		Version:  config.Version,
		OS:       strings.Title(runtime.GOOS),
		Arch:     strings.ToUpper(runtime.GOARCH),
		Addrs:    network.GetLocalIP(),
		StartOn:  stats.StartingTime.Format(time.RFC3339Nano),
		Duration: time.Now().Sub(stats.StartingTime).String(),
	}

	if err := jsonTo(w, &srv); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Service) onGetRuntime(w http.ResponseWriter, r *http.Request, pathParams apirouter.Params) {
	type rt struct {
		On string `json:"on"`
		stats.Snapshot
	}
	v := rt{
		On:       time.Now().Format(time.RFC3339Nano),
		Snapshot: stats.Measure(),
	}
	if err := jsonTo(w, &v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// 上传码流并创建分析会话；?wait=1 同步等待分析完成
func (s *Service) onCreateAnalysis(w http.ResponseWriter, r *http.Request, pathParams apirouter.Params) {
	if !s.allow() {
		http.Error(w, "Too many analyze requests", http.StatusTooManyRequests)
		return
	}

	data, ok := s.readBitstream(w, r)
	if !ok {
		return
	}
	if len(data) == 0 {
		http.Error(w, "Empty bitstream", http.StatusBadRequest)
		return
	}

	params := r.URL.Query()
	name := params.Get("name")
	if name == "" {
		name = "upload"
	}
	sess := media.NewSession(name)
	media.Regist(sess)
	s.logger.Info("analysis session created.",
		xlog.F("session", sess.ID()), xlog.F("name", name), xlog.F("size", len(data)))

	s.submit(w, r, sess, data, http.StatusCreated)
}

// 重新分析；请求体为空时沿用会话已有的码流
func (s *Service) onReanalyze(w http.ResponseWriter, r *http.Request, pathParams apirouter.Params) {
	sess := media.Get(pathParams.ByName("id"))
	if sess == nil {
		http.NotFound(w, r)
		return
	}
	if !s.allow() {
		http.Error(w, "Too many analyze requests", http.StatusTooManyRequests)
		return
	}

	data, ok := s.readBitstream(w, r)
	if !ok {
		return
	}
	if len(data) == 0 {
		data = sess.Data()
	}
	if len(data) == 0 {
		http.Error(w, "Empty bitstream", http.StatusBadRequest)
		return
	}
	s.submit(w, r, sess, data, http.StatusAccepted)
}

func (s *Service) submit(w http.ResponseWriter, r *http.Request, sess *media.Session, data []byte, status int) {
	params := r.URL.Query()
	opts := media.DefaultOptions()
	if v := params.Get("resilient"); v != "" {
		opts.Resilient = v == "1"
	}
	if v := params.Get("decode"); v != "" {
		opts.DecodeTiles = v == "1"
	}
	if cs, err := strconv.Atoi(params.Get("cell")); err == nil && cs > 0 {
		opts.CellSize = cs
	}

	reqID := s.analyzer.Submit(sess, data, opts)
	if strings.TrimSpace(params.Get("wait")) == "1" {
		if err := sess.Wait(r.Context().Done(), reqID); err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
	}

	w.Header().Set("Location", "/api/v1/analyses/"+sess.ID())
	w.WriteHeader(status)
	if err := jsonTo(w, sess.Info()); err != nil {
		s.logger.Warn(err.Error())
	}
}

func (s *Service) readBitstream(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body := http.MaxBytesReader(w, r.Body, s.conf.MaxUpload)
	data, err := io.ReadAll(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
		return nil, false
	}
	return data, true
}

func (s *Service) onListAnalyses(w http.ResponseWriter, r *http.Request, pathParams apirouter.Params) {
	params := r.URL.Query()
	pageSize, pageToken, err := listParamers(params)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	count, infos := media.Infos(pageToken, pageSize)
	type sessionInfos struct {
		Total         int                  `json:"total"`
		NextPageToken string               `json:"next_page_token"`
		Analyses      []*media.SessionInfo `json:"analyses,omitempty"`
	}

	list := &sessionInfos{
		Total:    count,
		Analyses: infos,
	}
	if len(infos) > 0 {
		list.NextPageToken = infos[len(infos)-1].ID
	}

	if err := jsonTo(w, list); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Service) onGetAnalysis(w http.ResponseWriter, r *http.Request, pathParams apirouter.Params) {
	sess := media.Get(pathParams.ByName("id"))
	if sess == nil {
		http.NotFound(w, r)
		return
	}
	if err := jsonTo(w, sess.Info()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Service) onDelAnalysis(w http.ResponseWriter, r *http.Request, pathParams apirouter.Params) {
	if !media.Unregist(pathParams.ByName("id")) {
		http.NotFound(w, r)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// analysisOf 获取会话当前的分析结果，未就绪时写入错误响应
func analysisOf(w http.ResponseWriter, r *http.Request, pathParams apirouter.Params) (*media.Session, *media.Analysis) {
	sess := media.Get(pathParams.ByName("id"))
	if sess == nil {
		http.NotFound(w, r)
		return nil, nil
	}
	a, err := sess.Analysis()
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return nil, nil
	}
	if a == nil {
		http.Error(w, "Analysis is pending", http.StatusConflict)
		return nil, nil
	}
	return sess, a
}

func (s *Service) onListObus(w http.ResponseWriter, r *http.Request, pathParams apirouter.Params) {
	_, a := analysisOf(w, r, pathParams)
	if a == nil {
		return
	}
	if err := jsonTo(w, a.Obus); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// ?start=&end= 按位范围定位语法节点，?path= 按路径查找
func (s *Service) onGetSyntax(w http.ResponseWriter, r *http.Request, pathParams apirouter.Params) {
	_, a := analysisOf(w, r, pathParams)
	if a == nil {
		return
	}

	params := r.URL.Query()
	var ref *media.NodeRef
	var ok bool
	if p := params.Get("path"); p != "" {
		ref, ok = a.Lookup(p)
	} else {
		start, err := strconv.ParseUint(params.Get("start"), 10, 64)
		if err != nil {
			http.Error(w, "start: "+err.Error(), http.StatusBadRequest)
			return
		}
		end := start + 1
		if v := params.Get("end"); v != "" {
			if end, err = strconv.ParseUint(v, 10, 64); err != nil || end <= start {
				http.Error(w, "end must be greater than start", http.StatusBadRequest)
				return
			}
		}
		ref, ok = a.FindNode(syntax.BitRange{Start: start, End: end})
	}
	if !ok {
		http.NotFound(w, r)
		return
	}

	type syntaxNode struct {
		*media.NodeRef
		Children []*syntax.Node `json:"children,omitempty"`
	}
	v := syntaxNode{NodeRef: ref, Children: a.Obus[ref.ObuIndex].Tree.Children(ref.Node.ID)}
	if err := jsonTo(w, &v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Service) onListFrames(w http.ResponseWriter, r *http.Request, pathParams apirouter.Params) {
	_, a := analysisOf(w, r, pathParams)
	if a == nil {
		return
	}
	if err := jsonTo(w, a.Frames); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// ?x=&y= 返回像素点所在的编码块，否则返回整帧的编码块
func (s *Service) onGetUnits(w http.ResponseWriter, r *http.Request, pathParams apirouter.Params) {
	_, a := analysisOf(w, r, pathParams)
	if a == nil {
		return
	}
	n, err := strconv.Atoi(pathParams.ByName("n"))
	if err != nil || n < 0 || n >= len(a.Frames) {
		http.NotFound(w, r)
		return
	}
	frame := a.Frames[n]
	if frame.Result() == nil {
		http.Error(w, "Frame is not decoded", http.StatusConflict)
		return
	}

	params := r.URL.Query()
	if params.Get("x") != "" || params.Get("y") != "" {
		x, errx := strconv.Atoi(params.Get("x"))
		y, erry := strconv.Atoi(params.Get("y"))
		if errx != nil || erry != nil {
			http.Error(w, "x and y must be integers", http.StatusBadRequest)
			return
		}
		cu, ok := frame.UnitAt(x, y)
		if !ok {
			http.NotFound(w, r)
			return
		}
		if err := jsonTo(w, cu); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	type units struct {
		Frame  int                    `json:"frame"`
		Units  []partition.CodingUnit `json:"units"`
		Failed []string               `json:"failed,omitempty"`
		QPMap  []int                  `json:"qp_map,omitempty"`
		MVs    []entropy.MotionVector `json:"mv_field,omitempty"`
		Cols   int                    `json:"cols"`
	}
	g := frame.Grid()
	v := units{
		Frame:  n,
		Units:  frame.Result().Units,
		Failed: frame.Failed,
		QPMap:  g.QPMap(),
		MVs:    g.MVField(),
		Cols:   g.Cols,
	}
	if err := jsonTo(w, &v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// ?target=&before=&after=&seq=1 计算最小可复现片段；&raw=1 直接返回码流
func (s *Service) onExtract(w http.ResponseWriter, r *http.Request, pathParams apirouter.Params) {
	sess, a := analysisOf(w, r, pathParams)
	if a == nil {
		return
	}

	params := r.URL.Query()
	target, err := strconv.Atoi(params.Get("target"))
	if err != nil {
		http.Error(w, "target: "+err.Error(), http.StatusBadRequest)
		return
	}
	before, _ := strconv.Atoi(params.Get("before"))
	after, _ := strconv.Atoi(params.Get("after"))
	seq := params.Get("seq") != "0"

	res, err := a.Extract(target, before, after, seq)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if strings.TrimSpace(params.Get("raw")) == "1" {
		out := a.ExtractBytes(res)
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Disposition", "attachment; filename=\"frame"+strconv.Itoa(target)+".obu\"")
		w.Header().Set("Content-Length", strconv.Itoa(len(out)))
		w.Write(out)
		sess.Counter().AddOut(int64(len(out)))
		return
	}
	if err := jsonTo(w, res); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func jsonTo(w io.Writer, o interface{}) error {
	formatted := buffers.Get().(*bytes.Buffer)
	formatted.Reset()
	defer buffers.Put(formatted)

	body, err := json.Marshal(o)
	if err != nil {
		return err
	}

	if err := json.Indent(formatted, body, "", "\t"); err != nil {
		return err
	}

	if _, err := w.Write(formatted.Bytes()); err != nil {
		return err
	}
	return nil
}

func listParamers(params url.Values) (pageSize int, pageToken string, err error) {
	pageSizeStr := params.Get("page_size")
	pageSize = 20
	if pageSizeStr != "" {
		var err error
		pageSize, err = strconv.Atoi(pageSizeStr)
		if err != nil {
			return pageSize, pageToken, err
		}
	}
	pageToken = params.Get("page_token")
	return
}

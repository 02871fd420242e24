// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package service

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cnotch/av1hub/av/codec/av1/av1test"
	"github.com/cnotch/av1hub/media"
	"github.com/cnotch/xlog"
	"github.com/kelindar/rate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Service, *httptest.Server) {
	s, err := NewService(context.Background(), xlog.L())
	require.NoError(t, err)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		s.analyzer.Close()
		media.UnregistAll()
	})
	return s, ts
}

func doRequest(t *testing.T, method, url string, body []byte) (int, []byte) {
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func getJSON(t *testing.T, url string, v interface{}) int {
	code, data := doRequest(t, http.MethodGet, url, nil)
	if code == http.StatusOK && v != nil {
		require.NoError(t, json.Unmarshal(data, v), string(data))
	}
	return code
}

func createAnalysis(t *testing.T, ts *httptest.Server, data []byte) media.SessionInfo {
	code, body := doRequest(t, http.MethodPost, ts.URL+"/api/v1/analyses?wait=1&name=test.obu", data)
	require.Equal(t, http.StatusCreated, code, string(body))
	var info media.SessionInfo
	require.NoError(t, json.Unmarshal(body, &info))
	return info
}

func TestAnalysesAPI(t *testing.T) {
	_, ts := newTestServer(t)
	info := createAnalysis(t, ts, av1test.Stream(2, 256))
	assert.Equal(t, "ready", info.Status)
	assert.Equal(t, "test.obu", info.Name)
	assert.Equal(t, 7, info.Obus)
	assert.Equal(t, 3, info.Frames)

	base := ts.URL + "/api/v1/analyses/" + info.ID

	var list struct {
		Total    int                  `json:"total"`
		Analyses []*media.SessionInfo `json:"analyses"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/v1/analyses", &list))
	assert.Equal(t, 1, list.Total)

	var obus []map[string]interface{}
	require.Equal(t, http.StatusOK, getJSON(t, base+"/obus", &obus))
	assert.Len(t, obus, 7)

	var node struct {
		ObuIndex int    `json:"obu_index"`
		Path     string `json:"path"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, base+"/syntax?start=17&end=18", &node))
	assert.Equal(t, 1, node.ObuIndex)
	assert.Equal(t, "obu[1].obu_header.obu_type", node.Path)

	require.Equal(t, http.StatusOK, getJSON(t, base+"/syntax?path=obu[2].frame_header", &node))
	assert.Equal(t, 2, node.ObuIndex)
	assert.Equal(t, http.StatusNotFound, getJSON(t, base+"/syntax?path=obu[2].nothing", nil))
	assert.Equal(t, http.StatusBadRequest, getJSON(t, base+"/syntax?start=x", nil))

	var frames []map[string]interface{}
	require.Equal(t, http.StatusOK, getJSON(t, base+"/frames", &frames))
	assert.Len(t, frames, 3)

	var cu struct {
		X  int `json:"x"`
		QP int `json:"qp"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, base+"/frames/0/units?x=330&y=10", &cu))
	assert.Equal(t, 320, cu.X)
	assert.Equal(t, 100, cu.QP)

	var units struct {
		Units []map[string]interface{} `json:"units"`
		QPMap []int                    `json:"qp_map"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, base+"/frames/0/units", &units))
	assert.Len(t, units.Units, 30)
	assert.NotEmpty(t, units.QPMap)
	assert.Equal(t, http.StatusNotFound, getJSON(t, base+"/frames/9/units", nil))
	assert.Equal(t, http.StatusBadRequest, getJSON(t, base+"/frames/0/units?x=a&y=1", nil))

	code, raw := doRequest(t, http.MethodGet, base+"/extract?target=1&raw=1", nil)
	require.Equal(t, http.StatusOK, code)
	sub, err := media.Analyze(context.Background(), raw, media.Options{})
	require.NoError(t, err)
	assert.Len(t, sub.Frames, 2)
	assert.Equal(t, http.StatusBadRequest, getJSON(t, base+"/extract?target=5", nil))

	var after media.SessionInfo
	require.Equal(t, http.StatusOK, getJSON(t, base, &after))
	assert.Equal(t, int64(len(raw)), after.Stats.OutBytes)

	code, _ = doRequest(t, http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, http.StatusNotFound, getJSON(t, base, nil))
	assert.Equal(t, http.StatusNotFound, getJSON(t, base+"/obus", nil))
}

func TestReanalyzeAPI(t *testing.T) {
	_, ts := newTestServer(t)
	info := createAnalysis(t, ts, av1test.Stream(0, 64))
	assert.Equal(t, 1, info.Frames)

	code, body := doRequest(t, http.MethodPost, ts.URL+"/api/v1/analyses/"+info.ID+"?wait=1", av1test.Stream(2, 64))
	require.Equal(t, http.StatusAccepted, code, string(body))
	var again media.SessionInfo
	require.NoError(t, json.Unmarshal(body, &again))
	assert.Equal(t, info.ID, again.ID)
	assert.Equal(t, uint64(2), again.Request)
	assert.Equal(t, 3, again.Frames)

	// 空请求体沿用已有码流
	code, body = doRequest(t, http.MethodPost, ts.URL+"/api/v1/analyses/"+info.ID+"?wait=1", nil)
	require.Equal(t, http.StatusAccepted, code, string(body))

	code, _ = doRequest(t, http.MethodPost, ts.URL+"/api/v1/analyses/missing", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestCreateAnalysis_Errors(t *testing.T) {
	s, ts := newTestServer(t)

	code, _ := doRequest(t, http.MethodPost, ts.URL+"/api/v1/analyses", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	info := createAnalysis(t, ts, []byte{0x32, 0x40})
	assert.Equal(t, "failed", info.Status)
	assert.NotEmpty(t, info.Error)
	code = getJSON(t, ts.URL+"/api/v1/analyses/"+info.ID+"/frames", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, code)

	s.conf.MaxUpload = 4
	code, _ = doRequest(t, http.MethodPost, ts.URL+"/api/v1/analyses", av1test.Stream(0, 64))
	assert.Equal(t, http.StatusRequestEntityTooLarge, code)

	s.limit = rate.New(1, time.Hour)
	createAnalysis(t, ts, av1test.Stream(0, 64)[:2])
	code, _ = doRequest(t, http.MethodPost, ts.URL+"/api/v1/analyses", av1test.Stream(0, 64))
	assert.Equal(t, http.StatusTooManyRequests, code)
}

func TestServerAPIs(t *testing.T) {
	_, ts := newTestServer(t)

	var srv struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/v1/server", &srv))
	assert.Equal(t, "av1hub", srv.Name)

	var rt struct {
		On       string `json:"on"`
		Sessions struct {
			Active int64 `json:"active"`
		} `json:"sessions"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/v1/runtime", &rt))
	assert.NotEmpty(t, rt.On)

	code, body := doRequest(t, http.MethodGet, ts.URL+"/api/v1/crossdomain.xml", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body), "cross-domain-policy")
}

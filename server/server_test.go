package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeychilson/strmanip/config"
	"github.com/joeychilson/strmanip/engine"
	"github.com/joeychilson/strmanip/logger"
)

func newTestServer(t *testing.T, mutate func(*config.Config), serverCfg *Config) *Server {
	t.Helper()

	cfg := config.New()
	cfg.Presets = []config.Preset{{
		Name:        "slack",
		Description: "Slack group handles",
		Rules:       "add-prefix:slack_\nadd-suffix:_grp\nremove:_",
	}}
	if mutate != nil {
		mutate(cfg)
	}

	e, err := engine.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })

	s, err := New(e, logger.Noop(), serverCfg)
	require.NoError(t, err)
	return s
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	return w
}

func TestNew_RequiresEngine(t *testing.T) {
	_, err := New(nil, nil, nil)
	assert.Error(t, err)
}

func TestServerHealth(t *testing.T) {
	s := newTestServer(t, nil, nil)

	w := do(t, s, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	var health map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&health))
	assert.Equal(t, "ok", health["status"])
	assert.NotEmpty(t, health["time"])
}

func TestServerApply(t *testing.T) {
	s := newTestServer(t, nil, nil)

	w := do(t, s, http.MethodPost, "/v1/apply", `{"input":"Admin\nUser\nViewer_1","rules":"add-prefix:slack_\nadd-suffix:_grp\nremove:_"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var result engine.Result
	require.NoError(t, json.NewDecoder(w.Body).Decode(&result))
	assert.Equal(t, "slackAdmingrp\nslackUsergrp\nslackViewer1grp", result.Output)
	assert.Equal(t, 3, result.Lines)
	assert.NotEmpty(t, result.RunID)
	assert.NotNil(t, result.Diagnostics)
}

func TestServerApply_Diagnostics(t *testing.T) {
	s := newTestServer(t, nil, nil)

	w := do(t, s, http.MethodPost, "/v1/apply", `{"input":"a","rules":"frobnicate\nreplace:x\nto-upper"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "A", body["output"])

	diags, ok := body["diagnostics"].([]any)
	require.True(t, ok)
	require.Len(t, diags, 2)
	first := diags[0].(map[string]any)
	assert.Equal(t, "malformed_replace", first["kind"])
	assert.Equal(t, "error", first["severity"])
	second := diags[1].(map[string]any)
	assert.Equal(t, "The rule 'frobnicate' is not recognized.", second["message"])
}

func TestServerApply_Preset(t *testing.T) {
	s := newTestServer(t, nil, nil)

	w := do(t, s, http.MethodPost, "/v1/apply", `{"input":"Admin","preset":"slack"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var result engine.Result
	require.NoError(t, json.NewDecoder(w.Body).Decode(&result))
	assert.Equal(t, "slackAdmingrp", result.Output)
}

func TestServerApply_Errors(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) {
		c.Engine.MaxInputBytes = 16
	}, nil)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"invalid JSON", "invalid json", http.StatusBadRequest},
		{"unknown preset", `{"input":"a","preset":"nope"}`, http.StatusBadRequest},
		{"input too large", `{"input":"` + strings.Repeat("x", 17) + `","rules":"to-upper"}`, http.StatusRequestEntityTooLarge},
		{"body too large", `{"input":"` + strings.Repeat("x", 200<<10) + `"}`, http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, s, http.MethodPost, "/v1/apply", tt.body)
			require.Equal(t, tt.status, w.Code)

			var errResp ErrorResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&errResp))
			assert.NotEmpty(t, errResp.Error)
			assert.Equal(t, tt.status, errResp.StatusCode)
		})
	}
}

func TestServerApplyBatch(t *testing.T) {
	s := newTestServer(t, nil, nil)

	w := do(t, s, http.MethodPost, "/v1/apply/batch", `{"items":[{"input":"a","rules":"to-upper"},{"input":"B","rules":"to-lower"},{"input":"Admin","preset":"slack"}]}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp BatchResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Len(t, resp.Results, 3)
	assert.Equal(t, "A", resp.Results[0].Output)
	assert.Equal(t, "b", resp.Results[1].Output)
	assert.Equal(t, "slackAdmingrp", resp.Results[2].Output)
}

func TestServerApplyBatch_Errors(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) {
		c.Engine.MaxBatchItems = 2
	}, nil)

	w := do(t, s, http.MethodPost, "/v1/apply/batch", `{"items":[]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, s, http.MethodPost, "/v1/apply/batch", `{"items":[{"input":"a"},{"input":"b"},{"input":"c"}]}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	w = do(t, s, http.MethodPost, "/v1/apply/batch", `{"items":[{"input":"a"},{"input":"b","preset":"nope"}]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServerParse(t *testing.T) {
	s := newTestServer(t, nil, nil)

	w := do(t, s, http.MethodPost, "/v1/parse", `{"rules":"// comment\nremove:_,-\nreplace:x\nfrobnicate"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Rules []struct {
			Kind  string   `json:"kind"`
			Line  int      `json:"line"`
			Chars []string `json:"chars"`
		} `json:"rules"`
		Diagnostics []map[string]any `json:"diagnostics"`
		Unknown     int              `json:"unknown"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))

	require.Len(t, body.Rules, 2)
	assert.Equal(t, "remove", body.Rules[0].Kind)
	assert.Equal(t, 2, body.Rules[0].Line)
	assert.Equal(t, []string{"_", "-"}, body.Rules[0].Chars)
	assert.Equal(t, 1, body.Unknown)
	require.Len(t, body.Diagnostics, 1)
	assert.Equal(t, "malformed_replace", body.Diagnostics[0]["kind"])
}

func TestServerParse_Empty(t *testing.T) {
	s := newTestServer(t, nil, nil)

	w := do(t, s, http.MethodPost, "/v1/parse", `{"rules":""}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"rules":[],"diagnostics":[],"unknown":0}`, w.Body.String())
}

func TestServerPresets(t *testing.T) {
	s := newTestServer(t, nil, nil)

	w := do(t, s, http.MethodGet, "/v1/presets", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp PresetsResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Len(t, resp.Presets, 1)
	assert.Equal(t, "slack", resp.Presets[0].Name)
	assert.Equal(t, "Slack group handles", resp.Presets[0].Description)
}

func TestServerNotFound(t *testing.T) {
	s := newTestServer(t, nil, nil)

	w := do(t, s, http.MethodGet, "/v1/fetch", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, s, http.MethodGet, "/v1/apply", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestServerRateLimit(t *testing.T) {
	s := newTestServer(t, nil, &Config{RateLimitRequests: 2, RateLimitWindow: time.Minute})

	for range 2 {
		w := do(t, s, http.MethodGet, "/health", "")
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := do(t, s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.JSONEq(t, `{"error":"rate limit exceeded","status_code":429}`, w.Body.String())
}

func TestServerRateLimit_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	s := newTestServer(t, nil, &Config{
		RedisClient:       client,
		RateLimitRequests: 1,
		RateLimitWindow:   time.Minute,
	})

	w := do(t, s, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	keys := mr.Keys()
	require.NotEmpty(t, keys)
	assert.True(t, strings.HasPrefix(keys[0], "strmanip:ratelimit"), "got keys %v", keys)
}

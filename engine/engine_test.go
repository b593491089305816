package engine

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeychilson/strmanip/cache"
	"github.com/joeychilson/strmanip/config"
	"github.com/joeychilson/strmanip/logger"
	"github.com/joeychilson/strmanip/rules"
)

func testConfig() *config.Config {
	cfg := config.New()
	cfg.Presets = []config.Preset{{
		Name:  "slack",
		Rules: "add-prefix:slack_\nadd-suffix:_grp\nremove:_\n",
	}}
	return cfg
}

func newTestEngine(t *testing.T, cfg *config.Config) *Engine {
	t.Helper()
	e, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func TestNew(t *testing.T) {
	e, err := New(nil)
	require.NoError(t, err)
	defer e.Close()

	assert.NotNil(t, e.Config())
	assert.NotNil(t, e.cache, "default config enables the memory cache")
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := config.New()
	cfg.Engine.MaxInputBytes = -1

	_, err := New(cfg)
	assert.ErrorContains(t, err, "invalid config")
}

func TestNewFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cache:\n  ttl: 0s\npresets:\n  - name: up\n    rules: to-upper\n"), 0o644))

	e, err := NewFromFile(path)
	require.NoError(t, err)
	defer e.Close()

	assert.Nil(t, e.cache)
	require.Len(t, e.Presets(), 1)
	assert.Equal(t, "up", e.Presets()[0].Name)

	_, err = NewFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to load config")
}

func TestApply(t *testing.T) {
	e := newTestEngine(t, testConfig())

	res, err := e.Apply(context.Background(), Request{
		Input: "Admin\nUser\nViewer_1",
		Rules: "add-prefix:slack_\nadd-suffix:_grp\nremove:_",
	})
	require.NoError(t, err)

	assert.Equal(t, "slackAdmingrp\nslackUsergrp\nslackViewer1grp", res.Output)
	assert.Equal(t, 3, res.Lines)
	assert.Equal(t, 3, res.Rules)
	assert.Empty(t, res.Diagnostics)
	assert.NotNil(t, res.Diagnostics)
	assert.Equal(t, CacheMiss, res.CacheState)
	assert.Len(t, res.RunID, 36)
	assert.False(t, res.HasErrors())
}

func TestApply_NormalizesCRLF(t *testing.T) {
	e := newTestEngine(t, testConfig())

	res, err := e.Apply(context.Background(), Request{
		Input: "a\r\nb\r\n",
		Rules: "to-upper\r\nadd-suffix:!\r\n",
	})
	require.NoError(t, err)

	assert.Equal(t, "A!\nB!", res.Output)
	assert.Equal(t, 2, res.Rules)
}

func TestApply_Preset(t *testing.T) {
	e := newTestEngine(t, testConfig())

	res, err := e.Apply(context.Background(), Request{
		Input:  "Admin\nUser",
		Rules:  "to-upper",
		Preset: "slack",
	})
	require.NoError(t, err)

	assert.Equal(t, "SLACKADMINGRP\nSLACKUSERGRP", res.Output)
	assert.Equal(t, 4, res.Rules)

	res, err = e.Apply(context.Background(), Request{Input: "Admin", Preset: "slack"})
	require.NoError(t, err)
	assert.Equal(t, "slackAdmingrp", res.Output)
	assert.Equal(t, 3, res.Rules)
}

func TestApply_UnknownPreset(t *testing.T) {
	e := newTestEngine(t, testConfig())

	_, err := e.Apply(context.Background(), Request{Input: "x", Preset: "nope"})
	assert.ErrorIs(t, err, ErrUnknownPreset)
}

func TestApply_SizeLimits(t *testing.T) {
	cfg := testConfig()
	cfg.Engine.MaxInputBytes = 8
	cfg.Engine.MaxRulesBytes = 8
	e := newTestEngine(t, cfg)

	_, err := e.Apply(context.Background(), Request{Input: strings.Repeat("x", 9), Rules: "to-upper"})
	assert.ErrorIs(t, err, ErrInputTooLarge)

	_, err = e.Apply(context.Background(), Request{Input: "x", Rules: "add-suffix:toolong"})
	assert.ErrorIs(t, err, ErrRulesTooLarge)

	_, _, err = e.Parse("add-suffix:toolong")
	assert.ErrorIs(t, err, ErrRulesTooLarge)
}

func TestApply_Diagnostics(t *testing.T) {
	var buf bytes.Buffer
	e := newTestEngine(t, testConfig())
	e.WithLogger(logger.NewWithFormat(&buf, logger.LevelDebug, logger.FormatJSON))

	res, err := e.Apply(context.Background(), Request{
		Input: "a\nb",
		Rules: "frobnicate\nreplace:x\nto-upper",
	})
	require.NoError(t, err)

	assert.Equal(t, "A\nB", res.Output)
	assert.True(t, res.HasErrors())
	require.Len(t, res.Diagnostics, 3)
	assert.Equal(t, rules.DiagnosticMalformedReplace, res.Diagnostics[0].Kind)
	assert.Equal(t, rules.DiagnosticUnknownRule, res.Diagnostics[1].Kind)
	assert.Equal(t, 1, res.Diagnostics[1].InputLine)
	assert.Equal(t, 2, res.Diagnostics[2].InputLine)

	logs := buf.String()
	assert.Contains(t, logs, "The rule 'frobnicate' is not recognized.")
	assert.Contains(t, logs, `"run_id":"`+res.RunID+`"`)
	assert.Contains(t, logs, "apply completed")
}

func TestApply_Cache(t *testing.T) {
	e := newTestEngine(t, testConfig())
	req := Request{Input: "a", Rules: "frobnicate\nto-upper"}

	first, err := e.Apply(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, CacheMiss, first.CacheState)

	second, err := e.Apply(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, CacheHit, second.CacheState)
	assert.Equal(t, first.Output, second.Output)
	assert.Equal(t, first.Diagnostics, second.Diagnostics)
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestApply_CacheDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Cache.TTL = 0
	e := newTestEngine(t, cfg)

	for range 2 {
		res, err := e.Apply(context.Background(), Request{Input: "a", Rules: "to-upper"})
		require.NoError(t, err)
		assert.Equal(t, CacheDisabled, res.CacheState)
	}
}

func TestApply_RedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	e := newTestEngine(t, testConfig())
	e.WithCache(cache.NewRedisCache(client, cache.Config{Prefix: "run:", TTL: time.Minute}))

	req := Request{Input: "Admin\nUser", Rules: "to-lower"}

	first, err := e.Apply(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, CacheMiss, first.CacheState)
	assert.True(t, mr.Exists("run:"+cache.Key(req.Input, req.Rules)))

	second, err := e.Apply(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, CacheHit, second.CacheState)
	assert.Equal(t, "admin\nuser", second.Output)
}

func TestApply_CacheErrorFallsThrough(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	e := newTestEngine(t, testConfig())
	e.WithCache(cache.NewRedisCache(client, cache.Config{}))
	mr.Close()

	res, err := e.Apply(context.Background(), Request{Input: "a", Rules: "to-upper"})
	require.NoError(t, err)
	assert.Equal(t, "A", res.Output)
	assert.Equal(t, CacheMiss, res.CacheState)
}

func TestApplyBatch(t *testing.T) {
	e := newTestEngine(t, testConfig())

	reqs := make([]Request, 10)
	for i := range reqs {
		reqs[i] = Request{Input: fmt.Sprintf("item%d", i), Rules: "to-upper"}
	}

	results, err := e.ApplyBatch(context.Background(), reqs)
	require.NoError(t, err)
	require.Len(t, results, len(reqs))
	for i, res := range results {
		assert.Equal(t, fmt.Sprintf("ITEM%d", i), res.Output)
	}
}

func TestApplyBatch_Errors(t *testing.T) {
	cfg := testConfig()
	cfg.Engine.MaxBatchItems = 2
	e := newTestEngine(t, cfg)

	_, err := e.ApplyBatch(context.Background(), make([]Request, 3))
	assert.ErrorIs(t, err, ErrTooManyItems)

	_, err = e.ApplyBatch(context.Background(), []Request{
		{Input: "a", Rules: "to-upper"},
		{Input: "b", Preset: "missing"},
	})
	assert.ErrorIs(t, err, ErrUnknownPreset)
	assert.ErrorContains(t, err, "item 1")
}

func TestParse(t *testing.T) {
	e := newTestEngine(t, testConfig())

	set, diags, err := e.Parse("\n// comment\nremove:_\r\nreplace:x\nfrobnicate")
	require.NoError(t, err)

	require.Len(t, set, 2)
	assert.Equal(t, rules.KindRemove, set[0].Kind)
	assert.Equal(t, 3, set[0].Line)
	assert.Len(t, set.Unknown(), 1)

	require.Len(t, diags, 1)
	assert.Equal(t, rules.DiagnosticMalformedReplace, diags[0].Kind)
	assert.Equal(t, 4, diags[0].RuleLine)

	_, diags, err = e.Parse("to-upper")
	require.NoError(t, err)
	assert.NotNil(t, diags)
}

func TestWithCache_Nil(t *testing.T) {
	e := newTestEngine(t, testConfig())
	e.WithCache(nil)

	res, err := e.Apply(context.Background(), Request{Input: "a", Rules: "to-upper"})
	require.NoError(t, err)
	assert.Equal(t, CacheDisabled, res.CacheState)
	assert.NoError(t, e.Close())
}

// Package engine runs rules blocks over input blocks for the CLI and HTTP hosts.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/joeychilson/strmanip/cache"
	"github.com/joeychilson/strmanip/config"
	"github.com/joeychilson/strmanip/logger"
	"github.com/joeychilson/strmanip/pipeline"
	"github.com/joeychilson/strmanip/rules"
)

var (
	// ErrInputTooLarge is returned when the input block exceeds engine.max_input_bytes.
	ErrInputTooLarge = errors.New("input too large")
	// ErrRulesTooLarge is returned when the rules block exceeds engine.max_rules_bytes.
	ErrRulesTooLarge = errors.New("rules too large")
	// ErrUnknownPreset is returned when a request names a preset that is not configured.
	ErrUnknownPreset = errors.New("unknown preset")
	// ErrTooManyItems is returned when a batch exceeds engine.max_batch_items.
	ErrTooManyItems = errors.New("too many batch items")
)

// Cache states reported on a Result.
const (
	CacheHit      = "hit"
	CacheMiss     = "miss"
	CacheDisabled = "disabled"
)

// Engine applies rules to text, with optional presets and result caching.
type Engine struct {
	config *config.Config
	cache  cache.Cache
	logger logger.Logger
}

// Request is one run: an input block plus a rules block and/or a preset name.
type Request struct {
	Input  string `json:"input"`
	Rules  string `json:"rules"`
	Preset string `json:"preset,omitempty"`
}

// Result is the outcome of one run.
type Result struct {
	RunID       string             `json:"run_id"`
	Output      string             `json:"output"`
	Lines       int                `json:"lines"`
	Rules       int                `json:"rules"`
	Diagnostics []rules.Diagnostic `json:"diagnostics"`
	CacheState  string             `json:"cache_state"`
	Duration    time.Duration      `json:"duration_ns"`
}

// HasErrors reports whether any diagnostic on the result is an error.
func (r *Result) HasErrors() bool {
	return rules.HasErrors(r.Diagnostics)
}

// New creates a new Engine with the given configuration.
// An in-memory cache is attached when caching is enabled.
func New(cfg *config.Config) (*Engine, error) {
	if cfg == nil {
		cfg = config.New()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	e := &Engine{
		config: cfg,
		logger: logger.Noop(),
	}

	if cfg.Cache.IsEnabled() {
		e.cache = cache.NewMemoryCache(cache.Config{
			Prefix:          cfg.Cache.GetPrefix(),
			TTL:             cfg.Cache.TTL,
			CleanupInterval: cfg.Cache.GetCleanupInterval(),
		})
	}

	return e, nil
}

// NewFromFile creates a new Engine by loading configuration from a YAML file.
func NewFromFile(path string) (*Engine, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return New(cfg)
}

// WithCache replaces the engine's cache, closing the previous one.
// Passing nil disables caching.
func (e *Engine) WithCache(c cache.Cache) *Engine {
	if e.cache != nil && e.cache != c {
		if err := e.cache.Close(); err != nil {
			e.logger.Warn("failed to close previous cache", "error", err)
		}
	}
	e.cache = c
	return e
}

// WithLogger sets the logger for the engine.
func (e *Engine) WithLogger(log logger.Logger) *Engine {
	e.logger = log
	return e
}

// Config returns the engine configuration.
func (e *Engine) Config() *config.Config {
	return e.config
}

// Presets returns the configured presets.
func (e *Engine) Presets() []config.Preset {
	return e.config.Presets
}

// Parse parses a rules block and returns the rules with any parse diagnostics.
func (e *Engine) Parse(rulesBlock string) (rules.RuleSet, []rules.Diagnostic, error) {
	if err := e.checkRulesSize(rulesBlock); err != nil {
		return nil, nil, err
	}
	set, diags := pipeline.ParseRules(normalize(rulesBlock))
	if diags == nil {
		diags = []rules.Diagnostic{}
	}
	return set, diags, nil
}

// Apply runs one request. Rule problems are reported as diagnostics on the
// result; an error is returned only when the request itself is rejected.
func (e *Engine) Apply(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	runID := uuid.NewString()
	log := e.logger.WithContext(ctx).With("run_id", runID)

	input, rulesBlock, err := e.prepare(req)
	if err != nil {
		log.Warn("request rejected", "error", err)
		return nil, err
	}

	log.Debug("apply started", "input_bytes", len(input), "rules_bytes", len(rulesBlock), "preset", req.Preset)

	key := cache.Key(input, rulesBlock)
	cacheState := CacheDisabled

	if e.cache != nil {
		cacheState = CacheMiss

		entry, err := e.cache.Get(ctx, key)
		if err != nil {
			log.Error("cache get failed", "error", err)
		} else if entry != nil {
			log.Debug("cache hit")
			return &Result{
				RunID:       runID,
				Output:      entry.Output,
				Lines:       entry.Lines,
				Rules:       entry.Rules,
				Diagnostics: entry.Diagnostics,
				CacheState:  CacheHit,
				Duration:    time.Since(start),
			}, nil
		}
	}

	run := pipeline.Run(input, rulesBlock)
	logger.Diagnostics(log, run.Diagnostics)

	if e.cache != nil {
		entry := &cache.Entry{
			Key:         key,
			Output:      run.Output,
			Lines:       run.Lines,
			Rules:       run.Rules,
			Diagnostics: run.Diagnostics,
			StoredAt:    time.Now(),
		}
		if err := e.cache.Set(ctx, entry); err != nil {
			log.Error("cache set failed", "error", err)
		}
	}

	duration := time.Since(start)
	log.Info("apply completed",
		"lines", run.Lines,
		"rules", run.Rules,
		"diagnostics", len(run.Diagnostics),
		"cache", cacheState,
		"duration", duration)

	return &Result{
		RunID:       runID,
		Output:      run.Output,
		Lines:       run.Lines,
		Rules:       run.Rules,
		Diagnostics: run.Diagnostics,
		CacheState:  cacheState,
		Duration:    duration,
	}, nil
}

// ApplyBatch runs requests concurrently and returns results in request order.
// The first rejected request cancels the rest.
func (e *Engine) ApplyBatch(ctx context.Context, reqs []Request) ([]*Result, error) {
	if limit := e.config.Engine.GetMaxBatchItems(); len(reqs) > limit {
		return nil, fmt.Errorf("%w: %d items (max %d)", ErrTooManyItems, len(reqs), limit)
	}

	results := make([]*Result, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.config.Engine.GetBatchConcurrency())

	for i, req := range reqs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := e.Apply(gctx, req)
			if err != nil {
				return fmt.Errorf("item %d: %w", i, err)
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Close releases resources held by the engine.
func (e *Engine) Close() error {
	if e.cache != nil {
		return e.cache.Close()
	}
	return nil
}

// prepare normalizes the request and resolves its preset. Preset rules run
// before the request's own rules.
func (e *Engine) prepare(req Request) (string, string, error) {
	if limit := e.config.Engine.GetMaxInputBytes(); len(req.Input) > limit {
		return "", "", fmt.Errorf("%w: %d bytes (max %d)", ErrInputTooLarge, len(req.Input), limit)
	}
	if err := e.checkRulesSize(req.Rules); err != nil {
		return "", "", err
	}

	rulesBlock := req.Rules
	if req.Preset != "" {
		preset, ok := e.config.Preset(req.Preset)
		if !ok {
			return "", "", fmt.Errorf("%w: %q", ErrUnknownPreset, req.Preset)
		}
		rulesBlock = joinRules(preset.Rules, req.Rules)
	}

	return normalize(req.Input), normalize(rulesBlock), nil
}

func (e *Engine) checkRulesSize(rulesBlock string) error {
	if limit := e.config.Engine.GetMaxRulesBytes(); len(rulesBlock) > limit {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrRulesTooLarge, len(rulesBlock), limit)
	}
	return nil
}

func joinRules(preset, extra string) string {
	preset = strings.TrimRight(preset, "\r\n")
	if strings.TrimSpace(extra) == "" {
		return preset
	}
	return preset + "\n" + extra
}

// normalize converts CRLF line endings so lines split on "\n" alone.
func normalize(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}

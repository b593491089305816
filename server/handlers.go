package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/joeychilson/strmanip/engine"
	"github.com/joeychilson/strmanip/logger"
	"github.com/joeychilson/strmanip/rules"
)

// bodyOverhead is the allowance for JSON framing on top of the engine's size limits.
const bodyOverhead = 4 << 10

// ApplyRequest is the body of POST /v1/apply.
type ApplyRequest = engine.Request

// BatchRequest is the body of POST /v1/apply/batch.
type BatchRequest struct {
	Items []engine.Request `json:"items"`
}

// BatchResponse is the response from a batch request.
type BatchResponse struct {
	Results []*engine.Result `json:"results"`
}

// ParseRequest is the body of POST /v1/parse.
type ParseRequest struct {
	Rules string `json:"rules"`
}

// ParseResponse lists the parsed rules and any problems found while parsing.
type ParseResponse struct {
	Rules       rules.RuleSet      `json:"rules"`
	Diagnostics []rules.Diagnostic `json:"diagnostics"`
	Unknown     int                `json:"unknown"`
}

// PresetInfo describes a configured preset.
type PresetInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Rules       string `json:"rules"`
}

// PresetsResponse is the response from GET /v1/presets.
type PresetsResponse struct {
	Presets []PresetInfo `json:"presets"`
}

// ErrorResponse represents an error.
type ErrorResponse struct {
	Error      string            `json:"error"`
	StatusCode int               `json:"status_code"`
	Details    map[string]string `json:"details,omitempty"`
}

// Handler contains the HTTP handlers for the API.
type Handler struct {
	engine *engine.Engine
	logger logger.Logger
}

// NewHandler creates a new Handler.
func NewHandler(e *engine.Engine, log logger.Logger) *Handler {
	return &Handler{
		engine: e,
		logger: log,
	}
}

// HandleApply handles POST /v1/apply requests.
func (h *Handler) HandleApply(w http.ResponseWriter, r *http.Request) {
	var req ApplyRequest
	if !h.decode(w, r, h.maxBody(1), &req) {
		return
	}

	result, err := h.engine.Apply(r.Context(), req)
	if err != nil {
		h.sendEngineError(w, err)
		return
	}

	h.sendJSON(w, result, http.StatusOK)
}

// HandleApplyBatch handles POST /v1/apply/batch requests.
func (h *Handler) HandleApplyBatch(w http.ResponseWriter, r *http.Request) {
	maxItems := h.engine.Config().Engine.GetMaxBatchItems()

	var req BatchRequest
	if !h.decode(w, r, h.maxBody(maxItems), &req) {
		return
	}

	if len(req.Items) == 0 {
		h.sendError(w, "items cannot be empty", http.StatusBadRequest)
		return
	}

	results, err := h.engine.ApplyBatch(r.Context(), req.Items)
	if err != nil {
		h.sendEngineError(w, err)
		return
	}

	h.sendJSON(w, BatchResponse{Results: results}, http.StatusOK)
}

// HandleParse handles POST /v1/parse requests.
func (h *Handler) HandleParse(w http.ResponseWriter, r *http.Request) {
	var req ParseRequest
	if !h.decode(w, r, int64(h.engine.Config().Engine.GetMaxRulesBytes())+bodyOverhead, &req) {
		return
	}

	set, diags, err := h.engine.Parse(req.Rules)
	if err != nil {
		h.sendEngineError(w, err)
		return
	}
	if set == nil {
		set = rules.RuleSet{}
	}

	h.sendJSON(w, ParseResponse{
		Rules:       set,
		Diagnostics: diags,
		Unknown:     len(set.Unknown()),
	}, http.StatusOK)
}

// HandlePresets handles GET /v1/presets requests.
func (h *Handler) HandlePresets(w http.ResponseWriter, r *http.Request) {
	presets := h.engine.Presets()
	resp := PresetsResponse{Presets: make([]PresetInfo, 0, len(presets))}
	for _, p := range presets {
		resp.Presets = append(resp.Presets, PresetInfo{
			Name:        p.Name,
			Description: p.Description,
			Rules:       p.Rules,
		})
	}
	h.sendJSON(w, resp, http.StatusOK)
}

// HandleHealth handles GET /health requests.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	}
	h.sendJSON(w, health, http.StatusOK)
}

// maxBody returns the request body limit for n engine requests.
func (h *Handler) maxBody(n int) int64 {
	cfg := h.engine.Config().Engine
	per := int64(cfg.GetMaxInputBytes()+cfg.GetMaxRulesBytes()) + bodyOverhead
	return per * int64(n)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, limit int64, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.sendError(w, fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit), http.StatusRequestEntityTooLarge)
			return false
		}
		h.logger.WithContext(r.Context()).Warn("failed to decode request", "error", err)
		h.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return false
	}
	return true
}

func (h *Handler) sendEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrInputTooLarge),
		errors.Is(err, engine.ErrRulesTooLarge),
		errors.Is(err, engine.ErrTooManyItems):
		h.sendError(w, err.Error(), http.StatusRequestEntityTooLarge)
	case errors.Is(err, engine.ErrUnknownPreset):
		h.sendError(w, err.Error(), http.StatusBadRequest)
	default:
		h.logger.Error("apply failed", "error", err)
		h.sendError(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handler) sendJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) sendError(w http.ResponseWriter, message string, statusCode int) {
	h.sendJSON(w, ErrorResponse{
		Error:      message,
		StatusCode: statusCode,
	}, statusCode)
}

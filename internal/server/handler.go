// Package server implements the workshop-facing HTTP API: the completion
// endpoints, the chain runner, the model picker, and view selection.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/af-corp/promptlab/internal/gateway"
	"github.com/af-corp/promptlab/internal/httputil"
	"github.com/af-corp/promptlab/internal/pricing"
	"github.com/af-corp/promptlab/internal/registry"
	"github.com/af-corp/promptlab/internal/telemetry"
	"github.com/af-corp/promptlab/internal/usage"
)

const defaultTemperature = 0.7

// maxChainStages bounds the chain view: three sequential stages.
const maxChainStages = 3

// Completer is the inference capability the handlers depend on. The core
// never retries; a transient failure is surfaced and the client decides.
type Completer interface {
	Complete(ctx context.Context, req gateway.Request) (*gateway.Completion, error)
	GeneratePrompt(ctx context.Context, description string) (string, error)
}

// Handler holds dependencies for the workshop HTTP handlers.
type Handler struct {
	registry *registry.Registry
	gateway  Completer
	spend    *usage.SpendTracker
	ledger   *usage.Ledger
	metrics  *telemetry.Metrics
	logger   *slog.Logger
}

func NewHandler(reg *registry.Registry, gw Completer, spend *usage.SpendTracker, ledger *usage.Ledger, metrics *telemetry.Metrics, logger *slog.Logger) *Handler {
	return &Handler{
		registry: reg,
		gateway:  gw,
		spend:    spend,
		ledger:   ledger,
		metrics:  metrics,
		logger:   logger,
	}
}

// Index resolves the ?view= parameter and tells the UI which screen to show.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	view := ResolveView(r.URL.Query().Get("view"))
	writeJSON(w, map[string]any{
		"view":            view,
		"comparison_mode": h.registry.Workshop().ComparisonMode,
	})
}

// ListModels serves the non-admin model picker: visible entries only, in
// registry file order. Pricing fields appear only when the admin has enabled
// pricing display.
func (h *Handler) ListModels(w http.ResponseWriter, r *http.Request) {
	workshop := h.registry.Workshop()
	defs := h.registry.ListVisible()

	models := make([]pickerModel, 0, len(defs))
	for _, def := range defs {
		m := pickerModel{
			Name:        def.Name,
			Description: def.Description,
			MaxTokens:   def.MaxTokens,
		}
		if workshop.ShowPricing {
			m.InputPrice = def.InputPrice
			m.OutputPrice = def.OutputPrice
		}
		models = append(models, m)
	}
	writeJSON(w, map[string]any{
		"models":     models,
		"max_tokens": workshop.MaxTokens,
	})
}

type completionRequest struct {
	Model        string   `json:"model"`
	SystemPrompt string   `json:"system_prompt"`
	UserPrompt   string   `json:"user_prompt"`
	Temperature  *float64 `json:"temperature"`
	MaxTokens    int      `json:"max_tokens"`
}

type usagePayload struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type costPayload struct {
	// Known distinguishes "free so far: $0.00" from "pricing unavailable".
	Known        bool                       `json:"known"`
	EstimatedUSD *decimal.Decimal           `json:"estimated_usd,omitempty"`
	Projections  map[string]decimal.Decimal `json:"projections,omitempty"`
}

type completionResponse struct {
	Model   string       `json:"model"`
	Content string       `json:"content"`
	Usage   usagePayload `json:"usage"`
	Cost    costPayload  `json:"cost"`
}

// Completion handles POST /api/v1/completions for the main view.
func (h *Handler) Completion(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")

	var req completionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequestError(w, reqID, "Invalid JSON: "+err.Error())
		return
	}
	if req.Model == "" {
		httputil.WriteBadRequestError(w, reqID, "model is required")
		return
	}
	if req.UserPrompt == "" {
		httputil.WriteBadRequestError(w, reqID, "user_prompt is required")
		return
	}

	resp, err := h.runCompletion(r.Context(), string(ViewMain), req)
	if err != nil {
		h.writeCompletionError(w, reqID, req.Model, string(ViewMain), err)
		return
	}
	writeJSON(w, resp)
}

type compareRequest struct {
	Models       []string `json:"models"`
	SystemPrompt string   `json:"system_prompt"`
	UserPrompt   string   `json:"user_prompt"`
	Temperature  *float64 `json:"temperature"`
	MaxTokens    int      `json:"max_tokens"`
}

// Compare runs the same prompt across several visible models. Partial
// failures degrade gracefully; only when every model fails does the request
// fail as a whole.
func (h *Handler) Compare(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")

	if !h.registry.Workshop().ComparisonMode {
		httputil.WriteFeatureDisabledError(w, reqID, "Comparison mode is disabled")
		return
	}

	var req compareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequestError(w, reqID, "Invalid JSON: "+err.Error())
		return
	}
	if len(req.Models) == 0 {
		httputil.WriteBadRequestError(w, reqID, "models is required")
		return
	}
	if req.UserPrompt == "" {
		httputil.WriteBadRequestError(w, reqID, "user_prompt is required")
		return
	}

	responses := make(map[string]*completionResponse)
	failures := make(map[string]string)
	for _, model := range req.Models {
		resp, err := h.runCompletion(r.Context(), string(ViewMain), completionRequest{
			Model:        model,
			SystemPrompt: req.SystemPrompt,
			UserPrompt:   req.UserPrompt,
			Temperature:  req.Temperature,
			MaxTokens:    req.MaxTokens,
		})
		if err != nil {
			h.logger.Warn("comparison model failed", "request_id", reqID, "model", model, "error", err)
			failures[model] = err.Error()
			continue
		}
		responses[model] = resp
	}

	if len(responses) == 0 {
		httputil.WriteInferenceError(w, reqID, "All models failed to generate responses", true)
		return
	}
	writeJSON(w, map[string]any{
		"responses": responses,
		"failures":  failures,
	})
}

type chainStage struct {
	Model        string   `json:"model"`
	SystemPrompt string   `json:"system_prompt"`
	Temperature  *float64 `json:"temperature"`
}

type chainRequest struct {
	Stages     []chainStage `json:"stages"`
	UserPrompt string       `json:"user_prompt"`
	MaxTokens  int          `json:"max_tokens"`
}

// Chain runs up to three stages sequentially, feeding each stage's output in
// as the next stage's user prompt.
func (h *Handler) Chain(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")

	var req chainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequestError(w, reqID, "Invalid JSON: "+err.Error())
		return
	}
	if len(req.Stages) == 0 || len(req.Stages) > maxChainStages {
		httputil.WriteBadRequestError(w, reqID, "stages must contain between 1 and 3 entries")
		return
	}
	if req.UserPrompt == "" {
		httputil.WriteBadRequestError(w, reqID, "user_prompt is required")
		return
	}

	input := req.UserPrompt
	results := make([]*completionResponse, 0, len(req.Stages))
	for i, stage := range req.Stages {
		resp, err := h.runCompletion(r.Context(), string(ViewChain), completionRequest{
			Model:        stage.Model,
			SystemPrompt: stage.SystemPrompt,
			UserPrompt:   input,
			Temperature:  stage.Temperature,
			MaxTokens:    req.MaxTokens,
		})
		if err != nil {
			h.logger.Warn("chain stage failed", "request_id", reqID, "stage", i+1, "model", stage.Model, "error", err)
			h.writeCompletionError(w, reqID, stage.Model, string(ViewChain), err)
			return
		}
		results = append(results, resp)
		input = resp.Content
	}

	writeJSON(w, map[string]any{
		"stages":       results,
		"final_output": input,
	})
}

// GeneratePrompt drafts a system prompt from a task description, when the
// admin has enabled the feature.
func (h *Handler) GeneratePrompt(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")

	if !h.registry.Workshop().GeneratePromptEnabled {
		httputil.WriteFeatureDisabledError(w, reqID, "Prompt generation is disabled")
		return
	}

	var req struct {
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequestError(w, reqID, "Invalid JSON: "+err.Error())
		return
	}
	if req.Description == "" {
		httputil.WriteBadRequestError(w, reqID, "description is required")
		return
	}

	prompt, err := h.gateway.GeneratePrompt(r.Context(), req.Description)
	if err != nil {
		h.logger.Error("prompt generation failed", "request_id", reqID, "error", err)
		httputil.WriteInferenceError(w, reqID, "Prompt generation failed", gateway.IsTransient(err))
		return
	}
	writeJSON(w, map[string]string{"system_prompt": prompt})
}

// runCompletion is the shared path behind the main, comparison, and chain
// endpoints: resolve the model, cap tokens, call the gateway, estimate cost,
// and account for usage.
func (h *Handler) runCompletion(ctx context.Context, view string, req completionRequest) (*completionResponse, error) {
	def, err := h.registry.Get(req.Model)
	if err != nil {
		return nil, err
	}
	if !def.Visible {
		// Hidden models are not offered to attendees; do not leak them.
		return nil, registry.ErrModelNotFound
	}
	workshop := h.registry.Workshop()

	temperature := defaultTemperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	started := time.Now()
	comp, err := h.gateway.Complete(ctx, gateway.Request{
		APIName:      def.APIName,
		SystemPrompt: req.SystemPrompt,
		UserPrompt:   req.UserPrompt,
		Temperature:  temperature,
		MaxTokens:    capTokens(req.MaxTokens, def, workshop),
	})
	duration := time.Since(started)

	status := "200"
	if err != nil {
		if gateway.IsTransient(err) {
			status = "503"
		} else {
			status = "502"
		}
		h.recordMetrics(def.Name, view, status, duration, nil, pricing.Estimate{})
		return nil, err
	}

	est, estErr := pricing.ForDefinition(def, comp.PromptTokens, comp.CompletionTokens)
	if estErr != nil {
		// Provider-reported counts should never be negative; log and move
		// on with an unknown estimate.
		h.logger.Error("cost estimation failed", "model", def.Name, "error", estErr)
		est = pricing.Estimate{}
	}

	h.account(ctx, view, def.Name, comp, est, duration)
	h.recordMetrics(def.Name, view, status, duration, comp, est)

	h.logger.Info("completion finished",
		"model", def.Name,
		"view", view,
		"prompt_tokens", comp.PromptTokens,
		"completion_tokens", comp.CompletionTokens,
		"cost_known", est.Known,
		"duration_ms", duration.Milliseconds(),
	)

	resp := &completionResponse{
		Model:   def.Name,
		Content: comp.Content,
		Usage: usagePayload{
			PromptTokens:     comp.PromptTokens,
			CompletionTokens: comp.CompletionTokens,
			TotalTokens:      comp.TotalTokens,
		},
		Cost: costPayload{Known: est.Known},
	}
	if est.Known {
		cost := est.Cost
		resp.Cost.EstimatedUSD = &cost
		if workshop.ShowPricing {
			resp.Cost.Projections = pricing.Projections(cost)
		}
	}
	return resp, nil
}

// capTokens applies the per-model cap and the workshop-wide cap on top of
// whatever the attendee asked for.
func capTokens(requested int, def registry.ModelDefinition, workshop registry.Workshop) int {
	limit := workshop.MaxTokens
	if def.MaxTokens > 0 && (limit == 0 || def.MaxTokens < limit) {
		limit = def.MaxTokens
	}
	if requested <= 0 {
		return limit
	}
	if limit > 0 && requested > limit {
		return limit
	}
	return requested
}

func (h *Handler) account(ctx context.Context, view, model string, comp *gateway.Completion, est pricing.Estimate, duration time.Duration) {
	entry := usage.Entry{
		Model:            model,
		View:             view,
		PromptTokens:     comp.PromptTokens,
		CompletionTokens: comp.CompletionTokens,
		DurationMs:       duration.Milliseconds(),
	}
	if est.Known {
		cost := est.Cost
		entry.CostUSD = &cost
		if err := h.spend.RecordSpend(ctx, model, cost); err != nil {
			h.logger.Warn("spend tracking failed", "model", model, "error", err)
		}
	}
	if err := h.ledger.Record(ctx, entry); err != nil {
		h.logger.Warn("usage ledger write failed", "model", model, "error", err)
	}
}

func (h *Handler) recordMetrics(model, view, status string, duration time.Duration, comp *gateway.Completion, est pricing.Estimate) {
	if h.metrics == nil {
		return
	}
	labels := telemetry.CompletionLabels{
		Model:      model,
		View:       view,
		Status:     status,
		DurationMs: float64(duration.Milliseconds()),
	}
	if comp != nil {
		labels.PromptTokens = comp.PromptTokens
		labels.CompletionTokens = comp.CompletionTokens
	}
	if est.Known {
		labels.CostUSD = est.Cost.InexactFloat64()
	}
	h.metrics.RecordCompletion(labels)
}

func (h *Handler) writeCompletionError(w http.ResponseWriter, reqID, model, view string, err error) {
	var infErr *gateway.InferenceError
	switch {
	case errors.Is(err, registry.ErrModelNotFound):
		httputil.WriteNotFoundError(w, reqID, "Unknown model: "+model)
	case errors.As(err, &infErr):
		httputil.WriteInferenceError(w, reqID, infErr.Message, infErr.Kind == gateway.KindTransient)
	default:
		h.logger.Error("completion failed", "request_id", reqID, "model", model, "view", view, "error", err)
		httputil.WriteInternalError(w, reqID, "Completion failed")
	}
}

type pickerModel struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
	InputPrice  *decimal.Decimal `json:"input_price,omitempty"`
	OutputPrice *decimal.Decimal `json:"output_price,omitempty"`
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payload)
}

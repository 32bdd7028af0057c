package admin

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/af-corp/promptlab/internal/httputil"
	"github.com/af-corp/promptlab/internal/registry"
	"github.com/af-corp/promptlab/internal/usage"
)

// Handler implements the admin API endpoints. Authorization happens in the
// middleware; these handlers assume the caller is already trusted.
type Handler struct {
	registry *registry.Registry
	ledger   *usage.Ledger
	logger   *slog.Logger
}

func NewHandler(reg *registry.Registry, ledger *usage.Ledger, logger *slog.Logger) *Handler {
	return &Handler{registry: reg, ledger: ledger, logger: logger}
}

// Routes mounts the admin API on a chi router, gated by the guard.
func (h *Handler) Routes(g *Guard) chi.Router {
	r := chi.NewRouter()
	r.Use(Middleware(g))
	r.Get("/models", h.ListModels)
	r.Put("/models/{name}", h.UpsertModel)
	r.Patch("/models/{name}/visibility", h.SetVisibility)
	r.Patch("/models/{name}/pricing", h.SetPricing)
	r.Patch("/models/{name}/limits", h.SetLimits)
	r.Get("/settings", h.GetSettings)
	r.Put("/settings", h.PutSettings)
	r.Get("/usage", h.Usage)
	return r
}

// ListModels returns every entry, hidden ones included.
func (h *Handler) ListModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"models": h.registry.ListAll()})
}

type upsertRequest struct {
	APIName     string      `json:"api_name"`
	InputPrice  json.Number `json:"input_price"`
	OutputPrice json.Number `json:"output_price"`
	Description string      `json:"description"`
	Visible     bool        `json:"visible"`
	MaxTokens   int         `json:"max_tokens"`
}

func (h *Handler) UpsertModel(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")
	name := chi.URLParam(r, "name")

	var req upsertRequest
	if err := decodeJSON(r, &req); err != nil {
		httputil.WriteBadRequestError(w, reqID, "Invalid JSON: "+err.Error())
		return
	}

	in, err := parsePrice(req.InputPrice)
	if err != nil {
		httputil.WriteBadRequestError(w, reqID, "input_price: "+err.Error())
		return
	}
	out, err := parsePrice(req.OutputPrice)
	if err != nil {
		httputil.WriteBadRequestError(w, reqID, "output_price: "+err.Error())
		return
	}

	def := registry.ModelDefinition{
		Name:        name,
		APIName:     req.APIName,
		InputPrice:  in,
		OutputPrice: out,
		Description: req.Description,
		Visible:     req.Visible,
		MaxTokens:   req.MaxTokens,
	}
	if err := h.registry.Upsert(def); err != nil {
		h.writeRegistryError(w, reqID, err)
		return
	}

	h.logger.Info("model upserted", "model", name, "api_name", req.APIName, "visible", req.Visible)
	writeJSON(w, map[string]any{"model": mustGet(h.registry, name)})
}

func (h *Handler) SetVisibility(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")
	name := chi.URLParam(r, "name")

	var req struct {
		Visible *bool `json:"visible"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Visible == nil {
		httputil.WriteBadRequestError(w, reqID, "body must be {\"visible\": true|false}")
		return
	}

	if err := h.registry.SetVisibility(name, *req.Visible); err != nil {
		h.writeRegistryError(w, reqID, err)
		return
	}
	h.logger.Info("model visibility changed", "model", name, "visible", *req.Visible)
	writeJSON(w, map[string]any{"model": mustGet(h.registry, name)})
}

func (h *Handler) SetPricing(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")
	name := chi.URLParam(r, "name")

	var req struct {
		InputPrice  json.Number `json:"input_price"`
		OutputPrice json.Number `json:"output_price"`
	}
	if err := decodeJSON(r, &req); err != nil {
		httputil.WriteBadRequestError(w, reqID, "Invalid JSON: "+err.Error())
		return
	}
	in, err := parsePrice(req.InputPrice)
	if err != nil {
		httputil.WriteBadRequestError(w, reqID, "input_price: "+err.Error())
		return
	}
	out, err := parsePrice(req.OutputPrice)
	if err != nil {
		httputil.WriteBadRequestError(w, reqID, "output_price: "+err.Error())
		return
	}

	if err := h.registry.SetPrice(name, in, out); err != nil {
		h.writeRegistryError(w, reqID, err)
		return
	}
	h.logger.Info("model pricing changed", "model", name)
	writeJSON(w, map[string]any{"model": mustGet(h.registry, name)})
}

func (h *Handler) SetLimits(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")
	name := chi.URLParam(r, "name")

	var req struct {
		MaxTokens *int `json:"max_tokens"`
	}
	if err := decodeJSON(r, &req); err != nil || req.MaxTokens == nil {
		httputil.WriteBadRequestError(w, reqID, "body must be {\"max_tokens\": n}")
		return
	}

	if err := h.registry.SetMaxTokens(name, *req.MaxTokens); err != nil {
		h.writeRegistryError(w, reqID, err)
		return
	}
	h.logger.Info("model token limit changed", "model", name, "max_tokens", *req.MaxTokens)
	writeJSON(w, map[string]any{"model": mustGet(h.registry, name)})
}

func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"settings": h.registry.Workshop()})
}

func (h *Handler) PutSettings(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")

	var req registry.Workshop
	if err := decodeJSON(r, &req); err != nil {
		httputil.WriteBadRequestError(w, reqID, "Invalid JSON: "+err.Error())
		return
	}
	if err := h.registry.SetWorkshop(req); err != nil {
		h.writeRegistryError(w, reqID, err)
		return
	}
	h.logger.Info("workshop settings updated",
		"show_pricing", req.ShowPricing,
		"comparison_mode", req.ComparisonMode,
		"max_tokens", req.MaxTokens,
		"generate_prompt_enabled", req.GeneratePromptEnabled,
	)
	writeJSON(w, map[string]any{"settings": h.registry.Workshop()})
}

// Usage serves the ledger aggregation. Without a configured database the
// summary is empty rather than an error.
func (h *Handler) Usage(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")

	since := time.Now().Add(-24 * time.Hour)
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httputil.WriteBadRequestError(w, reqID, "since must be RFC 3339")
			return
		}
		since = parsed
	}

	summary, err := h.ledger.Summary(r.Context(), since)
	if err != nil {
		h.logger.Error("usage summary failed", "error", err)
		httputil.WriteInternalError(w, reqID, "Failed to read usage ledger")
		return
	}
	if summary == nil {
		summary = []usage.ModelUsage{}
	}
	writeJSON(w, map[string]any{"since": since.UTC().Format(time.RFC3339), "usage": summary})
}

func (h *Handler) writeRegistryError(w http.ResponseWriter, reqID string, err error) {
	var vErr *registry.ValidationError
	switch {
	case errors.Is(err, registry.ErrModelNotFound):
		httputil.WriteNotFoundError(w, reqID, err.Error())
	case errors.As(err, &vErr):
		httputil.WriteValidationError(w, reqID, err.Error())
	default:
		h.logger.Error("registry mutation failed", "error", err)
		httputil.WriteInternalError(w, reqID, "Failed to persist registry change")
	}
}

func parsePrice(n json.Number) (*decimal.Decimal, error) {
	if n == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return nil, errors.New("must be a decimal number")
	}
	return &d, nil
}

func decodeJSON(r *http.Request, dest any) error {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	return dec.Decode(dest)
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payload)
}

func mustGet(reg *registry.Registry, name string) registry.ModelDefinition {
	def, _ := reg.Get(name)
	return def
}

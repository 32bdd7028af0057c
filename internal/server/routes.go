package server

import "github.com/go-chi/chi/v5"

// Routes mounts the workshop API on a chi router. The view dispatcher at the
// server root is wired separately by the caller.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/models", h.ListModels)
	r.Post("/completions", h.Completion)
	r.Post("/completions/compare", h.Compare)
	r.Post("/chain", h.Chain)
	r.Post("/prompts/generate", h.GeneratePrompt)
	return r
}

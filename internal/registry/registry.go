package registry

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"
)

// Registry is the typed view over the store: lookup and enumeration of
// merged model definitions, plus the admin mutations. It holds a read-mostly
// in-memory snapshot; every mutation persists through the store and reloads,
// so readers observe either the pre- or post-mutation state, never a partial
// one. A single concurrent writer is assumed; Save runs under the write lock.
type Registry struct {
	store  *Store
	logger *slog.Logger

	mu       sync.RWMutex
	state    *State
	onReload func()
}

// New loads the initial snapshot from the store. A load failure here is
// fatal to construction: an empty registry must be an explicit state, not a
// fallback.
func New(store *Store, logger *slog.Logger) (*Registry, error) {
	st, err := store.Load()
	if err != nil {
		return nil, err
	}
	return &Registry{store: store, logger: logger, state: st}, nil
}

// Reload re-reads the file and swaps the snapshot. On failure the previous
// snapshot stays in place untouched.
func (r *Registry) Reload() error {
	st, err := r.store.Load()
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.state = st
	r.mu.Unlock()
	if r.onReload != nil {
		r.onReload()
	}
	return nil
}

// OnReload registers fn to run after every successful snapshot reload.
// Register before Watch; there is no locking around the hook itself.
func (r *Registry) OnReload(fn func()) {
	r.onReload = fn
}

// Watch reloads the snapshot whenever the registry file changes on disk.
func (r *Registry) Watch() (func(), error) {
	return r.store.Watch(func() {
		if err := r.Reload(); err != nil {
			r.logger.Error("failed to reload registry", "error", err)
		}
	})
}

// ListVisible returns the entries offered in the non-admin picker, in the
// insertion order of the source file.
func (r *Registry) ListVisible() []ModelDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []ModelDefinition
	for _, m := range r.state.Models {
		def := r.state.Merged(m)
		if def.Visible {
			out = append(out, def)
		}
	}
	return out
}

// ListAll returns every entry, hidden ones included. Admin use only.
func (r *Registry) ListAll() []ModelDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ModelDefinition, 0, len(r.state.Models))
	for _, m := range r.state.Models {
		out = append(out, r.state.Merged(m))
	}
	return out
}

// Get returns the merged definition for name, or ErrModelNotFound.
func (r *Registry) Get(name string) (ModelDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i := r.state.index(name)
	if i < 0 {
		return ModelDefinition{}, fmt.Errorf("%q: %w", name, ErrModelNotFound)
	}
	return r.state.Merged(r.state.Models[i]), nil
}

// Workshop returns the current workshop-wide settings.
func (r *Registry) Workshop() Workshop {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state.Settings.Workshop
}

// Upsert validates def and writes it through the store. A duplicate name
// overwrites the existing entry in place, keeping its position in the file
// order; a new name is appended at the end.
func (r *Registry) Upsert(def ModelDefinition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	return r.mutate(func(st *State) error {
		m := StaticModel{
			Name:        def.Name,
			APIName:     def.APIName,
			InputPrice:  def.InputPrice,
			OutputPrice: def.OutputPrice,
			Description: def.Description,
		}
		if i := st.index(def.Name); i >= 0 {
			st.Models[i] = m
		} else {
			st.Models = append(st.Models, m)
		}
		ov := st.Settings.Overrides[def.Name]
		visible := def.Visible
		ov.Visible = &visible
		if def.MaxTokens > 0 {
			mt := def.MaxTokens
			ov.MaxTokens = &mt
		} else {
			ov.MaxTokens = nil
		}
		// Upsert sets prices on the static definition; stale overrides
		// would shadow them.
		ov.InputPrice = nil
		ov.OutputPrice = nil
		st.Settings.Overrides[def.Name] = ov
		return nil
	})
}

// SetVisibility toggles whether name is offered in the non-admin picker.
func (r *Registry) SetVisibility(name string, visible bool) error {
	return r.mutate(func(st *State) error {
		if st.index(name) < 0 {
			return fmt.Errorf("%q: %w", name, ErrModelNotFound)
		}
		ov := st.Settings.Overrides[name]
		v := visible
		ov.Visible = &v
		st.Settings.Overrides[name] = ov
		return nil
	})
}

// SetPrice overrides the per-1K-token prices for name. Nil clears an
// override back to the static definition's price.
func (r *Registry) SetPrice(name string, input, output *decimal.Decimal) error {
	if input != nil && input.IsNegative() {
		return &ValidationError{Name: name, Field: "input_price", Reason: "must not be negative"}
	}
	if output != nil && output.IsNegative() {
		return &ValidationError{Name: name, Field: "output_price", Reason: "must not be negative"}
	}
	return r.mutate(func(st *State) error {
		if st.index(name) < 0 {
			return fmt.Errorf("%q: %w", name, ErrModelNotFound)
		}
		ov := st.Settings.Overrides[name]
		ov.InputPrice = input
		ov.OutputPrice = output
		st.Settings.Overrides[name] = ov
		return nil
	})
}

// SetMaxTokens caps generation length for name. Zero clears the cap.
func (r *Registry) SetMaxTokens(name string, maxTokens int) error {
	if maxTokens < 0 {
		return &ValidationError{Name: name, Field: "max_tokens", Reason: "must be positive"}
	}
	return r.mutate(func(st *State) error {
		if st.index(name) < 0 {
			return fmt.Errorf("%q: %w", name, ErrModelNotFound)
		}
		ov := st.Settings.Overrides[name]
		if maxTokens == 0 {
			ov.MaxTokens = nil
		} else {
			mt := maxTokens
			ov.MaxTokens = &mt
		}
		st.Settings.Overrides[name] = ov
		return nil
	})
}

// SetWorkshop replaces the workshop-wide settings.
func (r *Registry) SetWorkshop(w Workshop) error {
	if w.MaxTokens <= 0 {
		return &ValidationError{Field: "max_tokens", Reason: "must be positive"}
	}
	return r.mutate(func(st *State) error {
		st.Settings.Workshop = w
		return nil
	})
}

// mutate is the single critical section: clone the snapshot, apply the
// change, persist, then reload from the store so the snapshot reflects
// exactly what the file says. Any failure leaves the old snapshot in place.
func (r *Registry) mutate(fn func(*State) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := r.state.Clone()
	if err := fn(next); err != nil {
		return err
	}
	if err := r.store.Save(next); err != nil {
		return err
	}
	st, err := r.store.Load()
	if err != nil {
		// The write succeeded but the re-read failed; keep the mutated
		// in-memory state so readers see what was persisted.
		r.state = next
		r.logger.Error("reload after save failed", "error", err)
		return nil
	}
	r.state = st
	return nil
}

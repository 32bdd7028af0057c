package registry

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
)

func newTestRegistry(t *testing.T, content string) *Registry {
	t.Helper()
	store := writeRegistryFile(t, content)
	r, err := New(store, testLogger())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return r
}

const workshopRegistry = `{
	"models": {
		"GPT-4o": {"api_name": "gpt-4o", "input_price": 0.03, "output_price": 0.06},
		"Phi-4": {"api_name": "phi-4", "input_price": 0.000111, "output_price": 0.00045},
		"mystery": {"api_name": "mystery-1"}
	},
	"settings": {
		"overrides": {
			"GPT-4o": {"visible": true},
			"Phi-4": {"visible": true}
		}
	}
}`

func TestRegistryGet_NotFound(t *testing.T) {
	r := newTestRegistry(t, workshopRegistry)
	_, err := r.Get("nonexistent")
	if !errors.Is(err, ErrModelNotFound) {
		t.Fatalf("expected ErrModelNotFound, got %v", err)
	}
}

func TestRegistryGet_MergesOverride(t *testing.T) {
	r := newTestRegistry(t, workshopRegistry)
	def, err := r.Get("GPT-4o")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !def.Visible {
		t.Error("override visible=true not applied")
	}
	if def.APIName != "gpt-4o" {
		t.Errorf("api_name = %q", def.APIName)
	}
	if def.InputPrice == nil || !def.InputPrice.Equal(decimal.RequireFromString("0.03")) {
		t.Errorf("input price = %v", def.InputPrice)
	}
}

func TestRegistryListVisible_ExcludesHidden(t *testing.T) {
	r := newTestRegistry(t, workshopRegistry)

	visible := r.ListVisible()
	if len(visible) != 2 {
		t.Fatalf("expected 2 visible models, got %d", len(visible))
	}
	// mystery has no visibility override, so it stays hidden.
	for _, def := range visible {
		if def.Name == "mystery" {
			t.Error("model without visibility override leaked into the picker")
		}
	}
	if all := r.ListAll(); len(all) != 3 {
		t.Errorf("ListAll should include hidden entries, got %d", len(all))
	}
}

func TestRegistrySetVisibility(t *testing.T) {
	r := newTestRegistry(t, workshopRegistry)

	if err := r.SetVisibility("GPT-4o", false); err != nil {
		t.Fatalf("SetVisibility failed: %v", err)
	}
	for _, def := range r.ListVisible() {
		if def.Name == "GPT-4o" {
			t.Error("GPT-4o still visible after SetVisibility(false)")
		}
	}
	found := false
	for _, def := range r.ListAll() {
		if def.Name == "GPT-4o" {
			found = true
		}
	}
	if !found {
		t.Error("GPT-4o missing from ListAll")
	}

	// The change must survive a reload from disk.
	if err := r.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	def, err := r.Get("GPT-4o")
	if err != nil {
		t.Fatal(err)
	}
	if def.Visible {
		t.Error("visibility change was not persisted")
	}
}

func TestRegistrySetVisibility_UnknownModel(t *testing.T) {
	r := newTestRegistry(t, workshopRegistry)
	if err := r.SetVisibility("nonexistent", true); !errors.Is(err, ErrModelNotFound) {
		t.Fatalf("expected ErrModelNotFound, got %v", err)
	}
}

func TestRegistryUpsert_OverwritesInPlace(t *testing.T) {
	r := newTestRegistry(t, workshopRegistry)

	err := r.Upsert(ModelDefinition{
		Name:        "Phi-4",
		APIName:     "phi-4-v2",
		InputPrice:  price("0.0002"),
		OutputPrice: price("0.0008"),
		Visible:     true,
	})
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	all := r.ListAll()
	if len(all) != 3 {
		t.Fatalf("overwrite must preserve uniqueness: got %d entries", len(all))
	}
	// Position in the order is preserved: Phi-4 was second.
	if all[1].Name != "Phi-4" || all[1].APIName != "phi-4-v2" {
		t.Errorf("expected updated Phi-4 at position 1, got %+v", all[1])
	}
}

func TestRegistryUpsert_AppendsNewAtEnd(t *testing.T) {
	r := newTestRegistry(t, workshopRegistry)

	err := r.Upsert(ModelDefinition{Name: "o4-mini", APIName: "o4-mini", Visible: false})
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	all := r.ListAll()
	if all[len(all)-1].Name != "o4-mini" {
		t.Errorf("new model should append at the end, got order %v", names(all))
	}
}

func TestRegistryUpsert_RejectsInvalid(t *testing.T) {
	r := newTestRegistry(t, workshopRegistry)
	before := names(r.ListAll())

	tests := []ModelDefinition{
		{Name: "", APIName: "x"},
		{Name: "x", APIName: ""},
		{Name: "x", APIName: "x", InputPrice: price("-1")},
		{Name: "x", APIName: "x", MaxTokens: -5},
	}
	for _, def := range tests {
		err := r.Upsert(def)
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Errorf("Upsert(%+v): expected *ValidationError, got %v", def, err)
		}
	}

	// Rejection is all-or-nothing: nothing may have been persisted.
	if err := r.Reload(); err != nil {
		t.Fatal(err)
	}
	after := names(r.ListAll())
	if len(before) != len(after) {
		t.Fatalf("rejected upsert changed the registry: %v -> %v", before, after)
	}
}

func TestRegistrySetPrice(t *testing.T) {
	r := newTestRegistry(t, workshopRegistry)

	if err := r.SetPrice("mystery", price("0.001"), price("0.004")); err != nil {
		t.Fatalf("SetPrice failed: %v", err)
	}
	def, err := r.Get("mystery")
	if err != nil {
		t.Fatal(err)
	}
	if def.InputPrice == nil || !def.InputPrice.Equal(decimal.RequireFromString("0.001")) {
		t.Errorf("input price override not applied: %v", def.InputPrice)
	}

	if err := r.SetPrice("mystery", price("-0.1"), nil); err == nil {
		t.Fatal("negative price must be rejected")
	}
}

func TestRegistryMutation_FailedSaveLeavesSnapshot(t *testing.T) {
	r := newTestRegistry(t, workshopRegistry)

	// Make the destination directory unwritable so Save fails.
	dir := filepath.Dir(r.store.Path())
	if err := os.Chmod(dir, 0o500); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chmod(dir, 0o755) })

	err := r.SetVisibility("GPT-4o", false)
	var persistErr *PersistError
	if !errors.As(err, &persistErr) {
		t.Skipf("expected *PersistError (running as privileged user?), got %v", err)
	}

	// Readers still see the pre-mutation state.
	def, err := r.Get("GPT-4o")
	if err != nil {
		t.Fatal(err)
	}
	if !def.Visible {
		t.Error("failed save must not change the in-memory snapshot")
	}
}

func TestRegistryReload_FailureKeepsPreviousState(t *testing.T) {
	r := newTestRegistry(t, workshopRegistry)

	if err := os.WriteFile(r.store.Path(), []byte(`{broken`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := r.Reload(); err == nil {
		t.Fatal("expected reload of malformed file to fail")
	}
	// Previously loaded registry stays untouched.
	if len(r.ListAll()) != 3 {
		t.Error("failed reload corrupted the snapshot")
	}
}

func TestRegistrySetWorkshop(t *testing.T) {
	r := newTestRegistry(t, workshopRegistry)

	w := Workshop{ShowPricing: true, ComparisonMode: true, MaxTokens: 2000, GeneratePromptEnabled: true}
	if err := r.SetWorkshop(w); err != nil {
		t.Fatalf("SetWorkshop failed: %v", err)
	}
	if err := r.Reload(); err != nil {
		t.Fatal(err)
	}
	if got := r.Workshop(); got != w {
		t.Errorf("workshop settings = %+v, want %+v", got, w)
	}

	if err := r.SetWorkshop(Workshop{MaxTokens: 0}); err == nil {
		t.Error("zero max_tokens must be rejected")
	}
}

func names(defs []ModelDefinition) []string {
	out := make([]string, len(defs))
	for i, d := range defs {
		out[i] = d.Name
	}
	return out
}

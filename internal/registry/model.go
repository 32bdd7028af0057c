package registry

import (
	"github.com/shopspring/decimal"
)

// ModelDefinition is the merged view of one registry entry: the static
// definition from the models section with any admin overrides applied.
type ModelDefinition struct {
	// Name is the human-readable key, unique within the registry.
	Name string `json:"name"`
	// APIName is the deployment identifier the inference endpoint understands.
	APIName string `json:"api_name"`
	// InputPrice and OutputPrice are USD per 1,000 tokens. Nil means the
	// price is unknown and no cost estimate can be produced.
	InputPrice  *decimal.Decimal `json:"input_price,omitempty"`
	OutputPrice *decimal.Decimal `json:"output_price,omitempty"`
	Description string           `json:"description,omitempty"`
	Visible     bool             `json:"visible"`
	// MaxTokens caps generation length for this model. Zero means uncapped
	// (the workshop-wide cap still applies).
	MaxTokens int `json:"max_tokens,omitempty"`
}

// Override is the admin-editable overlay for one model, merged over the
// static definition at read time.
type Override struct {
	Visible     *bool            `json:"visible,omitempty"`
	InputPrice  *decimal.Decimal `json:"input_price,omitempty"`
	OutputPrice *decimal.Decimal `json:"output_price,omitempty"`
	MaxTokens   *int             `json:"max_tokens,omitempty"`
}

// Workshop holds the workshop-wide admin settings.
type Workshop struct {
	ShowPricing           bool `json:"show_pricing"`
	ComparisonMode        bool `json:"comparison_mode"`
	MaxTokens             int  `json:"max_tokens"`
	GeneratePromptEnabled bool `json:"generate_prompt_enabled"`
}

// DefaultWorkshop returns the settings a fresh registry starts with.
func DefaultWorkshop() Workshop {
	return Workshop{
		ShowPricing:    false,
		ComparisonMode: false,
		MaxTokens:      1000,
	}
}

// Settings is the runtime overlay: per-model overrides plus workshop globals.
type Settings struct {
	Overrides map[string]Override `json:"overrides,omitempty"`
	Workshop  Workshop            `json:"workshop"`
}

// State is the full persisted registry: static definitions in file order
// plus the runtime settings overlay.
type State struct {
	Models   []StaticModel
	Settings Settings
}

// StaticModel is one entry of the models section, before overrides.
type StaticModel struct {
	Name        string
	APIName     string
	InputPrice  *decimal.Decimal
	OutputPrice *decimal.Decimal
	Description string
}

// Merged applies the override for a static model and returns the effective
// definition. A model with no visibility override is hidden: admins opt
// models into the picker explicitly.
func (s *State) Merged(m StaticModel) ModelDefinition {
	def := ModelDefinition{
		Name:        m.Name,
		APIName:     m.APIName,
		InputPrice:  m.InputPrice,
		OutputPrice: m.OutputPrice,
		Description: m.Description,
	}
	ov, ok := s.Settings.Overrides[m.Name]
	if !ok {
		return def
	}
	if ov.Visible != nil {
		def.Visible = *ov.Visible
	}
	if ov.InputPrice != nil {
		def.InputPrice = ov.InputPrice
	}
	if ov.OutputPrice != nil {
		def.OutputPrice = ov.OutputPrice
	}
	if ov.MaxTokens != nil {
		def.MaxTokens = *ov.MaxTokens
	}
	return def
}

// Clone returns a deep copy so mutations never touch a snapshot readers hold.
func (s *State) Clone() *State {
	out := &State{
		Models:   make([]StaticModel, len(s.Models)),
		Settings: s.Settings,
	}
	copy(out.Models, s.Models)
	out.Settings.Overrides = make(map[string]Override, len(s.Settings.Overrides))
	for k, v := range s.Settings.Overrides {
		out.Settings.Overrides[k] = v
	}
	return out
}

func (s *State) index(name string) int {
	for i, m := range s.Models {
		if m.Name == name {
			return i
		}
	}
	return -1
}

// Validate checks the invariants a definition must satisfy before it may be
// persisted: non-empty name and api_name, non-negative prices, positive
// max_tokens when set.
func (d ModelDefinition) Validate() error {
	if d.Name == "" {
		return &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if d.APIName == "" {
		return &ValidationError{Name: d.Name, Field: "api_name", Reason: "must not be empty"}
	}
	if d.InputPrice != nil && d.InputPrice.IsNegative() {
		return &ValidationError{Name: d.Name, Field: "input_price", Reason: "must not be negative"}
	}
	if d.OutputPrice != nil && d.OutputPrice.IsNegative() {
		return &ValidationError{Name: d.Name, Field: "output_price", Reason: "must not be negative"}
	}
	if d.MaxTokens < 0 {
		return &ValidationError{Name: d.Name, Field: "max_tokens", Reason: "must be positive"}
	}
	return nil
}

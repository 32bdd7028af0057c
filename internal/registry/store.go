package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/shopspring/decimal"
)

// Store owns the on-disk JSON representation of the registry. It is the only
// component that touches the file; everything else goes through Registry.
type Store struct {
	path   string
	logger *slog.Logger
}

func NewStore(path string, logger *slog.Logger) *Store {
	return &Store{path: path, logger: logger}
}

func (s *Store) Path() string { return s.path }

// modelEntry is the file representation of one models-section entry. Prices
// are kept as json.Number so the literal decimal text round-trips exactly.
type modelEntry struct {
	APIName     string      `json:"api_name"`
	InputPrice  json.Number `json:"input_price,omitempty"`
	OutputPrice json.Number `json:"output_price,omitempty"`
	Description string      `json:"description,omitempty"`
}

type overrideEntry struct {
	Visible     *bool       `json:"visible,omitempty"`
	InputPrice  json.Number `json:"input_price,omitempty"`
	OutputPrice json.Number `json:"output_price,omitempty"`
	MaxTokens   *int        `json:"max_tokens,omitempty"`
}

type settingsFile struct {
	Overrides map[string]overrideEntry `json:"overrides,omitempty"`
	Workshop  *Workshop                `json:"workshop,omitempty"`
}

// Load reads and validates the registry file. Entries that fail validation
// (missing api_name, negative price, duplicate name) are skipped with a
// warning so one bad entry cannot take down the others. Malformed JSON or an
// unreadable file fails with *LoadError; an empty registry is only ever the
// result of a valid empty file, never a parse-failure fallback.
func (s *Store) Load() (*State, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, &LoadError{Path: s.path, Err: err}
	}
	st, skipped, err := decodeState(data)
	if err != nil {
		return nil, &LoadError{Path: s.path, Err: err}
	}
	for _, sk := range skipped {
		s.logger.Warn("skipping invalid model entry", "path", s.path, "model", sk.name, "reason", sk.reason)
	}
	return st, nil
}

// Save serializes the state atomically: write to a temp file in the same
// directory, then rename over the target. A crash mid-write leaves the
// previous file intact.
func (s *Store) Save(st *State) error {
	data, err := encodeState(st)
	if err != nil {
		return &PersistError{Path: s.path, Err: err}
	}
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return &PersistError{Path: s.path, Err: err}
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &PersistError{Path: s.path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &PersistError{Path: s.path, Err: err}
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return &PersistError{Path: s.path, Err: err}
	}
	return nil
}

// Watch starts watching the registry file's directory and invokes onChange
// whenever the file is written or replaced. Returns a stop function.
func (s *Store) Watch(onChange func()) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	// Watch the directory, not the file: atomic renames replace the inode.
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch registry dir: %w", err)
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != s.path {
					continue
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
					s.logger.Info("registry file changed, reloading", "path", s.path)
					onChange()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Error("fsnotify error", "error", err)
			}
		}
	}()

	return func() { watcher.Close() }, nil
}

type skippedEntry struct {
	name   string
	reason string
}

// decodeState parses the registry document with a token-level decoder so the
// models section keeps its file order. encoding/json maps would sort keys
// alphabetically, and admins control ordering by editing the file.
func decodeState(data []byte) (*State, []skippedEntry, error) {
	st := &State{
		Settings: Settings{
			Overrides: map[string]Override{},
			Workshop:  DefaultWorkshop(),
		},
	}
	var skipped []skippedEntry

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, nil, fmt.Errorf("expected top-level object, got %v", tok)
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, _ := keyTok.(string)
		switch key {
		case "models":
			skipped, err = decodeModels(dec, st, skipped)
			if err != nil {
				return nil, nil, err
			}
		case "settings":
			var sf settingsFile
			if err := dec.Decode(&sf); err != nil {
				return nil, nil, fmt.Errorf("settings section: %w", err)
			}
			if err := applySettings(st, sf); err != nil {
				return nil, nil, err
			}
		default:
			var ignore json.RawMessage
			if err := dec.Decode(&ignore); err != nil {
				return nil, nil, err
			}
		}
	}
	if _, err := dec.Token(); err != nil { // closing brace
		return nil, nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, nil, fmt.Errorf("trailing data after registry document")
	}
	return st, skipped, nil
}

func decodeModels(dec *json.Decoder, st *State, skipped []skippedEntry) ([]skippedEntry, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("models section must be an object")
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		name, _ := keyTok.(string)
		var entry modelEntry
		if err := dec.Decode(&entry); err != nil {
			return nil, fmt.Errorf("model %q: %w", name, err)
		}

		m, reason := staticFromEntry(name, entry)
		if reason != "" {
			skipped = append(skipped, skippedEntry{name: name, reason: reason})
			continue
		}
		if st.index(name) >= 0 {
			skipped = append(skipped, skippedEntry{name: name, reason: "duplicate name, keeping first occurrence"})
			continue
		}
		st.Models = append(st.Models, m)
	}
	if _, err := dec.Token(); err != nil { // closing brace
		return nil, err
	}
	return skipped, nil
}

func staticFromEntry(name string, entry modelEntry) (StaticModel, string) {
	if entry.APIName == "" {
		return StaticModel{}, "missing api_name"
	}
	in, err := priceFromNumber(entry.InputPrice)
	if err != nil {
		return StaticModel{}, "input_price: " + err.Error()
	}
	out, err := priceFromNumber(entry.OutputPrice)
	if err != nil {
		return StaticModel{}, "output_price: " + err.Error()
	}
	return StaticModel{
		Name:        name,
		APIName:     entry.APIName,
		InputPrice:  in,
		OutputPrice: out,
		Description: entry.Description,
	}, ""
}

func priceFromNumber(n json.Number) (*decimal.Decimal, error) {
	if n == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return nil, err
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("must not be negative")
	}
	return &d, nil
}

func applySettings(st *State, sf settingsFile) error {
	for name, ov := range sf.Overrides {
		in, err := priceFromNumber(ov.InputPrice)
		if err != nil {
			return fmt.Errorf("override %q input_price: %w", name, err)
		}
		out, err := priceFromNumber(ov.OutputPrice)
		if err != nil {
			return fmt.Errorf("override %q output_price: %w", name, err)
		}
		st.Settings.Overrides[name] = Override{
			Visible:     ov.Visible,
			InputPrice:  in,
			OutputPrice: out,
			MaxTokens:   ov.MaxTokens,
		}
	}
	if sf.Workshop != nil {
		st.Settings.Workshop = *sf.Workshop
	}
	return nil
}

// encodeState writes the document back with the models object in state order.
func encodeState(st *State) ([]byte, error) {
	var models bytes.Buffer
	models.WriteByte('{')
	for i, m := range st.Models {
		if i > 0 {
			models.WriteByte(',')
		}
		key, err := json.Marshal(m.Name)
		if err != nil {
			return nil, err
		}
		entry, err := json.Marshal(entryFromStatic(m))
		if err != nil {
			return nil, err
		}
		models.Write(key)
		models.WriteByte(':')
		models.Write(entry)
	}
	models.WriteByte('}')

	sf := settingsFile{
		Overrides: map[string]overrideEntry{},
		Workshop:  &st.Settings.Workshop,
	}
	for name, ov := range st.Settings.Overrides {
		sf.Overrides[name] = overrideEntry{
			Visible:     ov.Visible,
			InputPrice:  numberFromPrice(ov.InputPrice),
			OutputPrice: numberFromPrice(ov.OutputPrice),
			MaxTokens:   ov.MaxTokens,
		}
	}

	doc := struct {
		Models   json.RawMessage `json:"models"`
		Settings settingsFile    `json:"settings"`
	}{
		Models:   models.Bytes(),
		Settings: sf,
	}
	return json.MarshalIndent(doc, "", "  ")
}

func entryFromStatic(m StaticModel) modelEntry {
	return modelEntry{
		APIName:     m.APIName,
		InputPrice:  numberFromPrice(m.InputPrice),
		OutputPrice: numberFromPrice(m.OutputPrice),
		Description: m.Description,
	}
}

func numberFromPrice(d *decimal.Decimal) json.Number {
	if d == nil {
		return ""
	}
	return json.Number(d.String())
}

package frame

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Canonical frame types after alias normalization.
const (
	TypeStory = "story_prompts"
	TypePanel = "panel_image"
)

// Frame is one complete, independently-parseable unit of a structured
// generation stream.
type Frame struct {
	Type         string
	Content      string
	Index        *int
	URL          string
	Caption      string
	SourcePrompt string
}

// HasIndex reports whether the frame carries an ordering key.
func (f Frame) HasIndex() bool {
	return f.Index != nil
}

// Alias tables for tolerant decoding. The backend has shipped several
// synonymous field names for panel frames; decoding accepts all of them
// rather than scattering fallbacks through callers.
var (
	typeAliases = map[string]string{
		"story":         TypeStory,
		"story_prompts": TypeStory,
		"panel":         TypePanel,
		"panel_image":   TypePanel,
	}
	contentAliases = []string{"content", "text"}
	indexAliases   = []string{"index", "panel_index"}
	urlAliases     = []string{"url", "image_url", "image_data_url"}
	captionAliases = []string{"caption", "footer_text"}
	promptAliases  = []string{"source_prompt", "prompt_used"}
)

// Decode parses a single JSON frame, resolving known field aliases.
func Decode(data []byte) (Frame, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}

	typ, ok := stringField(raw, []string{"type"})
	if !ok || strings.TrimSpace(typ) == "" {
		return Frame{}, fmt.Errorf("frame missing type")
	}
	typ = strings.ToLower(strings.TrimSpace(typ))
	if canonical, known := typeAliases[typ]; known {
		typ = canonical
	}

	f := Frame{Type: typ}
	if v, ok := stringField(raw, contentAliases); ok {
		f.Content = v
	}
	if v, ok := intField(raw, indexAliases); ok {
		f.Index = &v
	}
	if v, ok := stringField(raw, urlAliases); ok {
		f.URL = v
	}
	if v, ok := stringField(raw, captionAliases); ok {
		f.Caption = v
	}
	if v, ok := stringField(raw, promptAliases); ok {
		f.SourcePrompt = v
	}
	return f, nil
}

func stringField(raw map[string]json.RawMessage, names []string) (string, bool) {
	for _, name := range names {
		data, ok := raw[name]
		if !ok {
			continue
		}
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			continue
		}
		return v, true
	}
	return "", false
}

func intField(raw map[string]json.RawMessage, names []string) (int, bool) {
	for _, name := range names {
		data, ok := raw[name]
		if !ok {
			continue
		}
		var v int
		if err := json.Unmarshal(data, &v); err == nil {
			return v, true
		}
		// Some backends send indexes as strings.
		var s string
		if err := json.Unmarshal(data, &s); err == nil {
			var n int
			if _, scanErr := fmt.Sscanf(strings.TrimSpace(s), "%d", &n); scanErr == nil {
				return n, true
			}
		}
	}
	return 0, false
}

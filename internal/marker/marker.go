package marker

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/spf13/cast"
)

// Dictionary keys used on the wire.
const (
	KeyCode                           = "code"
	KeyTitle                          = "title"
	KeyDescription                    = "description"
	KeyAction                         = "action"
	KeyImage                          = "image"
	KeyShowDetail                     = "showDetail"
	KeyResetHistoryOnOpen             = "resetHistoryOnOpen"
	KeyChangeToExperienceWithIDOnOpen = "changeToExperienceWithIdOnOpen"
)

// Marker is one scannable code definition and the UI behavior attached to it.
type Marker struct {
	// Code is the code pattern (e.g. "1:1:2:4"), the addressing key within an experience
	Code string

	// Title is the human-readable name shown to the user
	Title string

	// Description is longer explanatory text (Markdown)
	Description string

	// Action identifies what to trigger when the marker is activated
	Action string

	// Image is a path or URL of an associated image asset
	Image string

	// ShowDetail shows a detail view on activation instead of opening Action directly
	ShowDetail bool

	// ResetHistoryOnOpen clears prior scan/navigation history on activation
	ResetHistoryOnOpen bool

	// ChangeToExperienceWithIDOnOpen switches to another experience on activation
	ChangeToExperienceWithIDOnOpen string
}

// FromDictionary builds a Marker from a decoded JSON object.
func FromDictionary(data map[string]any) Marker {
	var m Marker
	m.Load(data)
	return m
}

// Load overwrites every field of m from data. Missing keys reset the field
// to its default; it never fails.
func (m *Marker) Load(data map[string]any) {
	m.Code = StringOrEmpty(data, KeyCode)
	m.Title = StringOrEmpty(data, KeyTitle)
	m.Description = StringOrEmpty(data, KeyDescription)
	m.Action = StringOrEmpty(data, KeyAction)
	m.Image = StringOrEmpty(data, KeyImage)
	m.ShowDetail = BoolOrDefault(data, KeyShowDetail, false)
	m.ResetHistoryOnOpen = BoolOrDefault(data, KeyResetHistoryOnOpen, false)
	m.ChangeToExperienceWithIDOnOpen = StringOrEmpty(data, KeyChangeToExperienceWithIDOnOpen)
}

// ToDictionary exports m as a generic map. Empty strings are omitted;
// booleans are always present.
func (m Marker) ToDictionary() map[string]any {
	out := make(map[string]any, 8)
	putString(out, KeyCode, m.Code)
	putString(out, KeyTitle, m.Title)
	putString(out, KeyDescription, m.Description)
	putString(out, KeyAction, m.Action)
	putString(out, KeyImage, m.Image)
	out[KeyShowDetail] = m.ShowDetail
	out[KeyResetHistoryOnOpen] = m.ResetHistoryOnOpen
	putString(out, KeyChangeToExperienceWithIDOnOpen, m.ChangeToExperienceWithIDOnOpen)
	return out
}

// MarshalJSON encodes m through ToDictionary.
func (m Marker) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.ToDictionary())
}

// UnmarshalJSON decodes a JSON object through Load. JSON null leaves m unchanged.
func (m *Marker) UnmarshalJSON(b []byte) error {
	if string(bytes.TrimSpace(b)) == "null" {
		return nil
	}
	var data map[string]any
	if err := json.Unmarshal(b, &data); err != nil {
		return fmt.Errorf("decode marker: %w", err)
	}
	if data == nil {
		return fmt.Errorf("decode marker: expected JSON object")
	}
	m.Load(data)
	return nil
}

// BoolOrDefault returns data[key] when it is present and a bool, def otherwise.
func BoolOrDefault(data map[string]any, key string, def bool) bool {
	if v, ok := data[key].(bool); ok {
		return v
	}
	return def
}

// StringOrEmpty returns data[key] as a string. Scalars are coerced
// (1234 -> "1234"); nil, maps and slices yield "".
func StringOrEmpty(data map[string]any, key string) string {
	switch v := data[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case map[string]any, []any:
		return ""
	default:
		s, err := cast.ToStringE(v)
		if err != nil {
			return ""
		}
		return s
	}
}

func putString(out map[string]any, key, value string) {
	if value != "" {
		out[key] = value
	}
}

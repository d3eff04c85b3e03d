package experience

import (
	"github.com/artcodes/registry/internal/marker"
)

// Experience is a named collection of markers loaded into the scanner together.
type Experience struct {
	// ID is a ULID that uniquely identifies this experience
	ID string `json:"id"`

	// NameRaw is the name as provided by the user (empty for unnamed experiences)
	NameRaw string `json:"name,omitempty"`

	// NameNorm is the normalized name used for addressing
	NameNorm string `json:"-"`

	// Description is an optional summary shown in the library
	Description string `json:"description,omitempty"`

	// Markers are kept in definition order
	Markers []marker.Marker `json:"markers"`

	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
	DeletedAt *int64 `json:"deleted_at,omitempty"`
}

// Load reads an experience definition from a decoded JSON object.
// Entries of "markers" that are not objects are skipped.
func (e *Experience) Load(data map[string]any) {
	e.ID = marker.StringOrEmpty(data, "id")
	e.NameRaw = marker.StringOrEmpty(data, "name")
	e.NameNorm = Normalize(e.NameRaw)
	e.Description = marker.StringOrEmpty(data, "description")
	e.Markers = MarkersFromValue(data["markers"])
}

// ToDictionary exports the definition part of e (no timestamps).
func (e *Experience) ToDictionary() map[string]any {
	out := map[string]any{}
	if e.ID != "" {
		out["id"] = e.ID
	}
	if e.NameRaw != "" {
		out["name"] = e.NameRaw
	}
	if e.Description != "" {
		out["description"] = e.Description
	}
	markers := make([]any, 0, len(e.Markers))
	for _, m := range e.Markers {
		markers = append(markers, m.ToDictionary())
	}
	out["markers"] = markers
	return out
}

// FindMarker returns the marker with the given code.
func (e *Experience) FindMarker(code string) (marker.Marker, bool) {
	for _, m := range e.Markers {
		if m.Code == code {
			return m, true
		}
	}
	return marker.Marker{}, false
}

// MarkersFromValue decodes a JSON array of marker objects.
func MarkersFromValue(v any) []marker.Marker {
	items, _ := v.([]any)
	markers := make([]marker.Marker, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		markers = append(markers, marker.FromDictionary(obj))
	}
	return markers
}

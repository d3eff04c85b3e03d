package experience

import "github.com/artcodes/registry/internal/marker"

// ExportRecord is one line of a JSONL export file. The header line sets
// ArtcodesExport and leaves the experience fields empty.
type ExportRecord struct {
	ArtcodesExport bool   `json:"_artcodes_export,omitempty"`
	SchemaVersion  string `json:"schema_version,omitempty"`
	ExportedAt     int64  `json:"exported_at,omitempty"`

	ID          string          `json:"id,omitempty"`
	Name        string          `json:"name,omitempty"`
	Description string          `json:"description,omitempty"`
	Markers     []*marker.Marker `json:"markers,omitempty"`
	CreatedAt   int64           `json:"created_at,omitempty"`
	UpdatedAt   int64           `json:"updated_at,omitempty"`
	DeletedAt   *int64          `json:"deleted_at,omitempty"`
}

// ToExperience converts an ExportRecord to an Experience, recomputing the normalized name.
// Null marker entries are skipped.
func (r *ExportRecord) ToExperience() *Experience {
	markers := make([]marker.Marker, 0, len(r.Markers))
	for _, m := range r.Markers {
		if m != nil {
			markers = append(markers, *m)
		}
	}
	return &Experience{
		ID:          r.ID,
		NameRaw:     r.Name,
		NameNorm:    Normalize(r.Name),
		Description: r.Description,
		Markers:     markers,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
		DeletedAt:   r.DeletedAt,
	}
}

// ToExportRecord converts an Experience for export.
func ToExportRecord(e *Experience) *ExportRecord {
	markers := make([]*marker.Marker, len(e.Markers))
	for i := range e.Markers {
		markers[i] = &e.Markers[i]
	}
	return &ExportRecord{
		ID:          e.ID,
		Name:        e.NameRaw,
		Description: e.Description,
		Markers:     markers,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
		DeletedAt:   e.DeletedAt,
	}
}

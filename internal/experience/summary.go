package experience

// Summary is an experience without its markers, used by list and search.
type Summary struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	MarkerCount int    `json:"marker_count"`
	CreatedAt   int64  `json:"created_at"`
	UpdatedAt   int64  `json:"updated_at"`
	DeletedAt   *int64 `json:"deleted_at,omitempty"`
}

// Summarize returns the summary view of e.
func Summarize(e *Experience) Summary {
	return Summary{
		ID:          e.ID,
		Name:        e.NameRaw,
		Description: e.Description,
		MarkerCount: len(e.Markers),
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
		DeletedAt:   e.DeletedAt,
	}
}

package ops

import (
	"context"
	"database/sql"

	"github.com/artcodes/registry/internal/experience"
	"github.com/artcodes/registry/internal/marker"
)

// FetchInput contains parameters for the Fetch operation.
type FetchInput struct {
	ID             string
	Name           string
	IncludeDeleted bool
	IncludeMarkers *bool // default: true (nil means default)
}

// FetchOutput contains the result of the Fetch operation.
type FetchOutput struct {
	experience.Experience
	MarkerCount int `json:"marker_count"`
}

// Fetch retrieves an experience by ID or name.
func Fetch(ctx context.Context, database *sql.DB, input FetchInput) (*FetchOutput, error) {
	addr, err := ValidateAddress(input.ID, input.Name)
	if err != nil {
		return nil, err
	}

	e, err := resolve(ctx, database, addr, input.IncludeDeleted)
	if err != nil {
		return nil, err
	}

	output := &FetchOutput{
		Experience:  *e,
		MarkerCount: len(e.Markers),
	}
	if input.IncludeMarkers != nil && !*input.IncludeMarkers {
		output.Markers = []marker.Marker{}
	}
	return output, nil
}

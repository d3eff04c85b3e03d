package ops

import (
	"context"
	"database/sql"
	"time"

	"github.com/artcodes/registry/internal/config"
	"github.com/artcodes/registry/internal/db"
	"github.com/artcodes/registry/internal/errors"
	"github.com/artcodes/registry/internal/experience"
	"github.com/artcodes/registry/internal/marker"
)

// StoreMode controls collision behavior.
type StoreMode string

const (
	StoreModeError   StoreMode = "error"   // default: fail on name collision
	StoreModeReplace StoreMode = "replace" // overwrite the experience with the same name
)

// StoreInput contains parameters for the Store operation.
type StoreInput struct {
	Definition map[string]any // experience dictionary: name, description, markers
	Mode       StoreMode      // default: StoreModeError
}

// StoreOutput contains the result of the Store operation.
type StoreOutput struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	MarkerCount int    `json:"marker_count"`
	Replaced    bool   `json:"replaced"`
}

// Store creates an experience from its dictionary form, or replaces the
// experience with the same name in replace mode.
func Store(ctx context.Context, database *sql.DB, cfg *config.Config, input StoreInput) (*StoreOutput, error) {
	if input.Definition == nil {
		return nil, errors.NewInvalidRequest("experience definition is required")
	}
	if input.Mode == "" {
		input.Mode = StoreModeError
	}
	if input.Mode != StoreModeError && input.Mode != StoreModeReplace {
		return nil, errors.NewInvalidRequest("mode must be one of: error, replace")
	}

	var e experience.Experience
	e.Load(input.Definition)

	if input.Mode == StoreModeReplace && e.NameNorm == "" {
		return nil, errors.NewInvalidRequest("replace mode requires a name")
	}
	if err := checkMarkers(e.Markers, cfg.MaxMarkersPerExperience); err != nil {
		return nil, err
	}

	id, err := generateULID()
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	now := time.Now().Unix()
	e.ID = id
	e.CreatedAt = now
	e.UpdatedAt = now

	if input.Mode == StoreModeReplace {
		existing, err := db.GetByName(ctx, database, e.NameNorm, false)
		if err != nil && !errors.Is(err, errors.ErrNotFound) {
			return nil, err
		}
		if existing != nil {
			e.ID = existing.ID
			e.CreatedAt = existing.CreatedAt
			if err := db.Replace(ctx, database, &e); err != nil {
				return nil, err
			}
			return storeOutput(&e, true), nil
		}
	}

	if err := db.Insert(ctx, database, &e); err != nil {
		if err == db.ErrUniqueConstraint {
			return nil, errors.NewNameAlreadyExists(e.NameRaw)
		}
		return nil, err
	}
	return storeOutput(&e, false), nil
}

func storeOutput(e *experience.Experience, replaced bool) *StoreOutput {
	return &StoreOutput{
		ID:          e.ID,
		Name:        e.NameRaw,
		MarkerCount: len(e.Markers),
		Replaced:    replaced,
	}
}

// checkMarkers trims marker codes in place, then turns a failed lint into
// the matching error.
func checkMarkers(markers []marker.Marker, maxMarkers int) error {
	experience.TrimCodes(markers)
	result := experience.Lint(markers, maxMarkers)
	if result.Valid {
		return nil
	}
	if result.TooMany {
		return errors.NewTooManyMarkers(result.MaxMarkers, result.Count)
	}
	if len(result.EmptyCodes) > 0 {
		return errors.NewInvalidMarker("marker code is required", result.EmptyCodes)
	}
	return errors.NewDuplicateCode(result.DuplicateCodes)
}

package ops

import (
	"context"
	"database/sql"
	"strings"

	"github.com/artcodes/registry/internal/config"
	"github.com/artcodes/registry/internal/db"
	"github.com/artcodes/registry/internal/errors"
	"github.com/artcodes/registry/internal/experience"
	"github.com/artcodes/registry/internal/marker"
)

// PutMarkerInput contains parameters for the PutMarker operation.
type PutMarkerInput struct {
	ID     string
	Name   string
	Marker map[string]any // marker dictionary; "code" is required
}

// PutMarkerOutput contains the result of the PutMarker operation.
type PutMarkerOutput struct {
	ExperienceID string `json:"experience_id"`
	Code         string `json:"code"`
	Created      bool   `json:"created"`
}

// PutMarker adds a marker to an experience, or replaces the marker with the same code.
func PutMarker(ctx context.Context, database *sql.DB, cfg *config.Config, input PutMarkerInput) (*PutMarkerOutput, error) {
	addr, err := ValidateAddress(input.ID, input.Name)
	if err != nil {
		return nil, err
	}
	if input.Marker == nil {
		return nil, errors.NewInvalidRequest("marker is required")
	}

	m := marker.FromDictionary(input.Marker)
	m.Code = strings.TrimSpace(m.Code)
	if m.Code == "" {
		return nil, errors.NewInvalidMarker("marker code is required", nil)
	}

	e, err := resolve(ctx, database, addr, false)
	if err != nil {
		return nil, err
	}

	created, err := db.UpsertMarker(ctx, database, e.ID, m, cfg.MaxMarkersPerExperience)
	if err != nil {
		return nil, err
	}

	return &PutMarkerOutput{
		ExperienceID: e.ID,
		Code:         m.Code,
		Created:      created,
	}, nil
}

// MarkerInput addresses one marker of an experience.
type MarkerInput struct {
	ID   string
	Name string
	Code string
}

// FetchMarkerOutput contains the result of the FetchMarker operation.
type FetchMarkerOutput struct {
	ExperienceID string        `json:"experience_id"`
	Marker       marker.Marker `json:"marker"`
}

// FetchMarker retrieves one marker of an active experience by code.
func FetchMarker(ctx context.Context, database *sql.DB, input MarkerInput) (*FetchMarkerOutput, error) {
	e, code, err := resolveMarker(ctx, database, input)
	if err != nil {
		return nil, err
	}

	m, ok := e.FindMarker(code)
	if !ok {
		return nil, errors.NewMarkerNotFound(e.ID, code)
	}
	return &FetchMarkerOutput{ExperienceID: e.ID, Marker: m}, nil
}

// RemoveMarkerOutput contains the result of the RemoveMarker operation.
type RemoveMarkerOutput struct {
	ExperienceID string `json:"experience_id"`
	Code         string `json:"code"`
	Removed      bool   `json:"removed"`
}

// RemoveMarker deletes one marker from an active experience.
func RemoveMarker(ctx context.Context, database *sql.DB, input MarkerInput) (*RemoveMarkerOutput, error) {
	e, code, err := resolveMarker(ctx, database, input)
	if err != nil {
		return nil, err
	}

	if err := db.DeleteMarker(ctx, database, e.ID, code); err != nil {
		return nil, err
	}
	return &RemoveMarkerOutput{ExperienceID: e.ID, Code: code, Removed: true}, nil
}

func resolveMarker(ctx context.Context, database *sql.DB, input MarkerInput) (*experience.Experience, string, error) {
	addr, err := ValidateAddress(input.ID, input.Name)
	if err != nil {
		return nil, "", err
	}
	code := strings.TrimSpace(input.Code)
	if code == "" {
		return nil, "", errors.NewInvalidRequest("code is required")
	}

	e, err := resolve(ctx, database, addr, false)
	if err != nil {
		return nil, "", err
	}
	return e, code, nil
}

package ops

import (
	"context"
	"database/sql"

	"github.com/artcodes/registry/internal/experience"
)

// SettingsInput contains parameters for the Settings operation.
type SettingsInput struct {
	ID   string
	Name string
}

// SettingsOutput contains the result of the Settings operation.
type SettingsOutput struct {
	ExperienceID string `json:"experience_id"`
	experience.DetectionSettings
}

// Settings derives the scanner detection settings for an experience's marker codes.
func Settings(ctx context.Context, database *sql.DB, input SettingsInput) (*SettingsOutput, error) {
	addr, err := ValidateAddress(input.ID, input.Name)
	if err != nil {
		return nil, err
	}

	e, err := resolve(ctx, database, addr, false)
	if err != nil {
		return nil, err
	}

	return &SettingsOutput{
		ExperienceID:      e.ID,
		DetectionSettings: experience.NewDetectionSettings(e.Markers),
	}, nil
}

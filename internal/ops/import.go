package ops

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"

	"github.com/artcodes/registry/internal/config"
	"github.com/artcodes/registry/internal/db"
	"github.com/artcodes/registry/internal/errors"
	"github.com/artcodes/registry/internal/experience"
)

// ImportMode controls collision behavior during import.
type ImportMode string

const (
	ImportModeError   ImportMode = "error"   // fail on collision (atomic)
	ImportModeReplace ImportMode = "replace" // overwrite on collision
	ImportModeRename  ImportMode = "rename"  // new id / suffixed name on collision
)

// maxImportLineBytes bounds one JSONL line (an experience with all its markers).
const maxImportLineBytes = 16 * 1024 * 1024

// ImportInput contains parameters for the Import operation.
type ImportInput struct {
	Path string     // required
	Mode ImportMode // default: error
}

// ImportOutput contains the result of the Import operation.
type ImportOutput struct {
	Imported int           `json:"imported"`
	Skipped  int           `json:"skipped"`
	Errors   []ImportError `json:"errors"`
}

// ImportError represents an error that occurred during import.
type ImportError struct {
	Line    int    `json:"line,omitempty"`
	ID      string `json:"id,omitempty"`
	Name    string `json:"name,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type importRecord struct {
	line int
	exp  *experience.Experience
}

// Import loads experiences from a JSONL export file.
func Import(ctx context.Context, database *sql.DB, cfg *config.Config, input ImportInput) (*ImportOutput, error) {
	if input.Path == "" {
		return nil, errors.NewInvalidRequest("path is required")
	}
	if input.Mode == "" {
		input.Mode = ImportModeError
	}
	if input.Mode != ImportModeError && input.Mode != ImportModeReplace && input.Mode != ImportModeRename {
		return nil, errors.NewInvalidRequest("mode must be one of: error, replace, rename")
	}

	if err := ValidatePath(input.Path, PathCheckRead, cfg); err != nil {
		return nil, err
	}

	file, err := openFileNoFollowRead(input.Path)
	if err != nil {
		if _, ok := err.(*errors.ArtcodesError); ok {
			return nil, err
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to open import file: %w", err))
	}
	defer file.Close()

	records, parseErrors := parseExportFile(file, cfg.MaxMarkersPerExperience)

	switch input.Mode {
	case ImportModeError:
		if len(parseErrors) > 0 {
			return &ImportOutput{Errors: parseErrors}, nil
		}
		return importModeError(ctx, database, records)
	case ImportModeReplace:
		return importModeReplace(ctx, database, records, parseErrors)
	default:
		return importModeRename(ctx, database, records, parseErrors)
	}
}

// parseExportFile decodes the records of a JSONL export file, skipping the
// header line and reporting lines that cannot be imported.
func parseExportFile(r io.Reader, maxMarkers int) ([]importRecord, []ImportError) {
	var records []importRecord
	var parseErrors []ImportError

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxImportLineBytes)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var record experience.ExportRecord
		if err := json.Unmarshal(line, &record); err != nil {
			parseErrors = append(parseErrors, ImportError{
				Line:    lineNum,
				Code:    "PARSE_ERROR",
				Message: fmt.Sprintf("invalid JSON: %v", err),
			})
			continue
		}

		if record.ArtcodesExport {
			continue
		}

		if record.ID == "" {
			parseErrors = append(parseErrors, ImportError{
				Line:    lineNum,
				Code:    "INVALID_RECORD",
				Message: "missing id field",
			})
			continue
		}

		e := record.ToExperience()
		if err := checkMarkers(e.Markers, maxMarkers); err != nil {
			ae := err.(*errors.ArtcodesError)
			parseErrors = append(parseErrors, ImportError{
				Line:    lineNum,
				ID:      e.ID,
				Name:    e.NameRaw,
				Code:    string(ae.Code),
				Message: ae.Message,
			})
			continue
		}

		records = append(records, importRecord{line: lineNum, exp: e})
	}

	if err := scanner.Err(); err != nil {
		parseErrors = append(parseErrors, ImportError{
			Line:    lineNum,
			Code:    "READ_ERROR",
			Message: fmt.Sprintf("failed to read file: %v", err),
		})
	}

	return records, parseErrors
}

// importModeError imports all records in one transaction, or none if any collides.
func importModeError(ctx context.Context, database *sql.DB, records []importRecord) (*ImportOutput, error) {
	seenIDs := make(map[string]bool, len(records))
	seenNames := make(map[string]bool, len(records))
	experiences := make([]*experience.Experience, 0, len(records))

	for _, r := range records {
		e := r.exp

		existing, err := db.GetByID(ctx, database, e.ID, true)
		if err != nil && !errors.Is(err, errors.ErrNotFound) {
			return nil, err
		}
		if existing != nil || seenIDs[e.ID] {
			return collisionOutput(r, "ID_COLLISION", fmt.Sprintf("experience with id %q already exists", e.ID)), nil
		}
		seenIDs[e.ID] = true

		if e.NameNorm != "" && e.DeletedAt == nil {
			exists, err := db.CheckNameExists(ctx, database, e.NameNorm)
			if err != nil {
				return nil, err
			}
			if exists || seenNames[e.NameNorm] {
				return collisionOutput(r, "NAME_COLLISION", fmt.Sprintf("experience with name %q already exists", e.NameRaw)), nil
			}
			seenNames[e.NameNorm] = true
		}

		experiences = append(experiences, e)
	}

	if err := db.InsertAll(ctx, database, experiences); err != nil {
		if err == db.ErrUniqueConstraint {
			return &ImportOutput{Errors: []ImportError{{
				Code:    "INSERT_FAILED",
				Message: "import collided with a concurrent write",
			}}}, nil
		}
		return nil, err
	}

	return &ImportOutput{
		Imported: len(experiences),
		Errors:   []ImportError{},
	}, nil
}

func collisionOutput(r importRecord, code, message string) *ImportOutput {
	return &ImportOutput{Errors: []ImportError{{
		Line:    r.line,
		ID:      r.exp.ID,
		Name:    r.exp.NameRaw,
		Code:    code,
		Message: message,
	}}}
}

// importModeReplace imports records, overwriting the existing experience on collision.
func importModeReplace(ctx context.Context, database *sql.DB, records []importRecord, parseErrors []ImportError) (*ImportOutput, error) {
	output := &ImportOutput{Errors: append([]ImportError{}, parseErrors...), Skipped: len(parseErrors)}

	for _, r := range records {
		e := r.exp

		existingByID, err := db.GetByID(ctx, database, e.ID, true)
		if err != nil && !errors.Is(err, errors.ErrNotFound) {
			return nil, err
		}

		var existingByName *experience.Experience
		if e.NameNorm != "" {
			existingByName, err = db.GetByName(ctx, database, e.NameNorm, false)
			if err != nil && !errors.Is(err, errors.ErrNotFound) {
				return nil, err
			}
		}

		// ID matches one experience but the name belongs to another.
		if existingByID != nil && existingByName != nil && existingByID.ID != existingByName.ID {
			output.Errors = append(output.Errors, ImportError{
				Line:    r.line,
				ID:      e.ID,
				Name:    e.NameRaw,
				Code:    "AMBIGUOUS_COLLISION",
				Message: fmt.Sprintf("id %q matches an existing experience but name %q matches a different one", e.ID, e.NameRaw),
			})
			output.Skipped++
			continue
		}

		switch {
		case existingByID != nil:
			err = db.Overwrite(ctx, database, e)
		case existingByName != nil:
			e.ID = existingByName.ID
			err = db.Overwrite(ctx, database, e)
		default:
			err = db.Insert(ctx, database, e)
		}
		if err != nil {
			if err != db.ErrUniqueConstraint {
				return nil, err
			}
			output.Errors = append(output.Errors, ImportError{
				Line:    r.line,
				ID:      e.ID,
				Name:    e.NameRaw,
				Code:    "INSERT_FAILED",
				Message: "name collides with an active experience",
			})
			output.Skipped++
			continue
		}
		output.Imported++
	}

	return output, nil
}

// importModeRename imports records, assigning a new ID or a suffixed name on collision.
func importModeRename(ctx context.Context, database *sql.DB, records []importRecord, parseErrors []ImportError) (*ImportOutput, error) {
	output := &ImportOutput{Errors: append([]ImportError{}, parseErrors...), Skipped: len(parseErrors)}

	for _, r := range records {
		e := r.exp

		existingByID, err := db.GetByID(ctx, database, e.ID, true)
		if err != nil && !errors.Is(err, errors.ErrNotFound) {
			return nil, err
		}
		if existingByID != nil {
			if e.ID, err = generateULID(); err != nil {
				return nil, errors.NewInternal(err)
			}
		}

		if e.NameNorm != "" && e.DeletedAt == nil {
			exists, err := db.CheckNameExists(ctx, database, e.NameNorm)
			if err != nil {
				return nil, err
			}
			if exists {
				newName, err := db.FindUniqueName(ctx, database, e.NameRaw)
				if err != nil {
					output.Errors = append(output.Errors, ImportError{
						Line:    r.line,
						ID:      e.ID,
						Name:    e.NameRaw,
						Code:    "RENAME_FAILED",
						Message: fmt.Sprintf("failed to find unique name: %v", err),
					})
					output.Skipped++
					continue
				}
				e.NameRaw = newName
				e.NameNorm = experience.Normalize(newName)
			}
		}

		if err := db.Insert(ctx, database, e); err != nil {
			output.Errors = append(output.Errors, ImportError{
				Line:    r.line,
				ID:      e.ID,
				Name:    e.NameRaw,
				Code:    "INSERT_FAILED",
				Message: fmt.Sprintf("failed to insert: %v", err),
			})
			output.Skipped++
			continue
		}
		output.Imported++
	}

	return output, nil
}

package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/artcodes/registry/internal/errors"
	"github.com/artcodes/registry/internal/experience"
	"github.com/artcodes/registry/internal/marker"
)

// ErrUniqueConstraint is returned when an insert violates a UNIQUE constraint.
var ErrUniqueConstraint = &errors.ArtcodesError{
	Code:    "UNIQUE_CONSTRAINT",
	Status:  409,
	Message: "unique constraint violation",
}

// MinSearchQueryChars is the shortest query Search accepts.
const MinSearchQueryChars = 3

// MaxSearchQueryChars is the longest query Search accepts.
const MaxSearchQueryChars = 200

const experienceColumns = `id, name_raw, name_norm, description, created_at, updated_at, deleted_at`

const summaryColumns = `e.id, e.name_raw, e.description, e.created_at, e.updated_at, e.deleted_at,
	(SELECT COUNT(*) FROM markers m WHERE m.experience_id = e.id) AS marker_count`

const markerColumns = `code, title, description, action, image,
	show_detail, reset_history_on_open, change_to_experience`

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Insert stores a new experience and its markers in one transaction.
func Insert(ctx context.Context, db *sql.DB, e *experience.Experience) error {
	return withTx(ctx, db, func(tx *sql.Tx) error {
		return insertExperience(ctx, tx, e)
	})
}

// InsertAll stores several experiences in one transaction; nothing is kept if any insert fails.
func InsertAll(ctx context.Context, db *sql.DB, experiences []*experience.Experience) error {
	return withTx(ctx, db, func(tx *sql.Tx) error {
		for _, e := range experiences {
			if err := insertExperience(ctx, tx, e); err != nil {
				return err
			}
		}
		return nil
	})
}

// Overwrite replaces every stored field of an experience (active or deleted) by ID,
// including timestamps. Used by import.
func Overwrite(ctx context.Context, db *sql.DB, e *experience.Experience) error {
	return withTx(ctx, db, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE experiences
			SET name_raw = ?, name_norm = ?, description = ?,
				created_at = ?, updated_at = ?, deleted_at = ?
			WHERE id = ?
		`, toNullString(e.NameRaw), toNullString(e.NameNorm), toNullString(e.Description),
			e.CreatedAt, e.UpdatedAt, toNullInt64(e.DeletedAt), e.ID)
		if err != nil {
			if isUniqueConstraintError(err) {
				return ErrUniqueConstraint
			}
			return errors.NewInternal(err)
		}
		if err := requireAffected(result, errors.NewNotFound(e.ID)); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM markers WHERE experience_id = ?`, e.ID); err != nil {
			return errors.NewInternal(err)
		}
		return insertMarkers(ctx, tx, e.ID, e.Markers)
	})
}

// CheckNameExists checks if an active experience with the given normalized name exists.
func CheckNameExists(ctx context.Context, db *sql.DB, nameNorm string) (bool, error) {
	var exists int
	err := db.QueryRowContext(ctx, `
		SELECT 1 FROM experiences
		WHERE name_norm = ? AND deleted_at IS NULL
		LIMIT 1
	`, nameNorm).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.NewInternal(err)
	}
	return true, nil
}

// maxRenameAttempts bounds FindUniqueName.
const maxRenameAttempts = 100

// FindUniqueName returns base suffixed with "-2", "-3", ... until no active experience uses it.
func FindUniqueName(ctx context.Context, db *sql.DB, base string) (string, error) {
	for i := 2; i <= maxRenameAttempts+1; i++ {
		candidate := fmt.Sprintf("%s-%d", base, i)
		exists, err := CheckNameExists(ctx, db, experience.Normalize(candidate))
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no free name for %q after %d attempts", base, maxRenameAttempts)
}

func insertExperience(ctx context.Context, q querier, e *experience.Experience) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO experiences (`+experienceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.ID, toNullString(e.NameRaw), toNullString(e.NameNorm), toNullString(e.Description),
		e.CreatedAt, e.UpdatedAt, toNullInt64(e.DeletedAt))
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrUniqueConstraint
		}
		return errors.NewInternal(err)
	}
	return insertMarkers(ctx, q, e.ID, e.Markers)
}

// Replace overwrites the name, description and full marker set of an active experience.
// Sets updated_at to the current timestamp.
func Replace(ctx context.Context, db *sql.DB, e *experience.Experience) error {
	now := time.Now().Unix()
	err := withTx(ctx, db, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE experiences
			SET name_raw = ?, name_norm = ?, description = ?, updated_at = ?
			WHERE id = ? AND deleted_at IS NULL
		`, toNullString(e.NameRaw), toNullString(e.NameNorm), toNullString(e.Description), now, e.ID)
		if err != nil {
			if isUniqueConstraintError(err) {
				return ErrUniqueConstraint
			}
			return errors.NewInternal(err)
		}
		if err := requireAffected(result, errors.NewNotFound(e.ID)); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM markers WHERE experience_id = ?`, e.ID); err != nil {
			return errors.NewInternal(err)
		}
		return insertMarkers(ctx, tx, e.ID, e.Markers)
	})
	if err != nil {
		return err
	}
	e.UpdatedAt = now
	return nil
}

// GetByID retrieves an experience with its markers.
// If includeDeleted is false, soft-deleted experiences are excluded.
func GetByID(ctx context.Context, db *sql.DB, id string, includeDeleted bool) (*experience.Experience, error) {
	query := `SELECT ` + experienceColumns + ` FROM experiences WHERE id = ?`
	if !includeDeleted {
		query += " AND deleted_at IS NULL"
	}

	e, err := scanExperience(db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	if e.Markers, err = loadMarkers(ctx, db, e.ID); err != nil {
		return nil, err
	}
	return e, nil
}

// GetByName retrieves an experience by normalized name.
// With includeDeleted, an active experience is preferred over deleted ones.
func GetByName(ctx context.Context, db *sql.DB, nameNorm string, includeDeleted bool) (*experience.Experience, error) {
	query := `SELECT ` + experienceColumns + ` FROM experiences WHERE name_norm = ?`
	if !includeDeleted {
		query += " AND deleted_at IS NULL"
	} else {
		query += " ORDER BY (deleted_at IS NULL) DESC, updated_at DESC LIMIT 1"
	}

	e, err := scanExperience(db.QueryRowContext(ctx, query, nameNorm))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(nameNorm)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	if e.Markers, err = loadMarkers(ctx, db, e.ID); err != nil {
		return nil, err
	}
	return e, nil
}

// List returns experience summaries ordered by updated_at desc, plus the total count.
func List(ctx context.Context, db *sql.DB, limit, offset int, includeDeleted bool) ([]experience.Summary, int, error) {
	where := ""
	if !includeDeleted {
		where = " WHERE e.deleted_at IS NULL"
	}

	var total int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM experiences e`+where).Scan(&total); err != nil {
		return nil, 0, errors.NewInternal(err)
	}

	rows, err := db.QueryContext(ctx, `
		SELECT `+summaryColumns+` FROM experiences e`+where+`
		ORDER BY e.updated_at DESC, e.id DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	defer rows.Close()

	summaries, err := scanSummaries(rows)
	if err != nil {
		return nil, 0, err
	}
	return summaries, total, nil
}

// Search matches query (case-insensitive substring, Unicode-aware) against
// experience names, descriptions and marker titles.
func Search(ctx context.Context, db *sql.DB, query string, limit, offset int, includeDeleted bool) ([]experience.Summary, int, error) {
	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"
	where := `
		WHERE (` + foldFunc + `(COALESCE(e.name_raw, '')) LIKE ?1 ESCAPE '\'
			OR ` + foldFunc + `(COALESCE(e.description, '')) LIKE ?1 ESCAPE '\'
			OR EXISTS (
				SELECT 1 FROM markers m
				WHERE m.experience_id = e.id AND ` + foldFunc + `(COALESCE(m.title, '')) LIKE ?1 ESCAPE '\'
			))`
	if !includeDeleted {
		where += " AND e.deleted_at IS NULL"
	}

	var total int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM experiences e`+where, pattern).Scan(&total); err != nil {
		return nil, 0, errors.NewInternal(err)
	}

	rows, err := db.QueryContext(ctx, `
		SELECT `+summaryColumns+` FROM experiences e`+where+`
		ORDER BY e.updated_at DESC, e.id DESC
		LIMIT ?2 OFFSET ?3
	`, pattern, limit, offset)
	if err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	defer rows.Close()

	summaries, err := scanSummaries(rows)
	if err != nil {
		return nil, 0, err
	}
	return summaries, total, nil
}

// SoftDelete marks an experience as deleted by setting deleted_at.
func SoftDelete(ctx context.Context, db *sql.DB, id string) error {
	result, err := db.ExecContext(ctx, `
		UPDATE experiences
		SET deleted_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`, time.Now().Unix(), id)
	if err != nil {
		return errors.NewInternal(err)
	}
	return requireAffected(result, errors.NewNotFound(id))
}

// Purge permanently removes soft-deleted experiences (and their markers)
// deleted at or before deletedBefore. A nil deletedBefore purges all of them.
func Purge(ctx context.Context, db *sql.DB, deletedBefore *int64) (int, error) {
	cond := "deleted_at IS NOT NULL"
	args := []any{}
	if deletedBefore != nil {
		cond += " AND deleted_at <= ?"
		args = append(args, *deletedBefore)
	}

	var purged int
	err := withTx(ctx, db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM markers WHERE experience_id IN (SELECT id FROM experiences WHERE `+cond+`)`, args...); err != nil {
			return errors.NewInternal(err)
		}
		result, err := tx.ExecContext(ctx, `DELETE FROM experiences WHERE `+cond, args...)
		if err != nil {
			return errors.NewInternal(err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return errors.NewInternal(err)
		}
		purged = int(n)
		return nil
	})
	return purged, err
}

// UpsertMarker inserts or replaces one marker of an active experience, keeping
// the position of an existing code. Returns true when the code was new.
// A new code is rejected once the experience holds maxMarkers (0 disables
// the limit); the experience row is updated first, so the count is read
// under the write lock.
func UpsertMarker(ctx context.Context, db *sql.DB, experienceID string, m marker.Marker, maxMarkers int) (bool, error) {
	var created bool
	err := withTx(ctx, db, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE experiences SET updated_at = ? WHERE id = ? AND deleted_at IS NULL
		`, time.Now().Unix(), experienceID)
		if err != nil {
			return errors.NewInternal(err)
		}
		if err := requireAffected(result, errors.NewNotFound(experienceID)); err != nil {
			return err
		}

		var position int
		err = tx.QueryRowContext(ctx,
			`SELECT position FROM markers WHERE experience_id = ? AND code = ?`, experienceID, m.Code).Scan(&position)
		switch {
		case err == sql.ErrNoRows:
			created = true
			if maxMarkers > 0 {
				n, err := countMarkers(ctx, tx, experienceID)
				if err != nil {
					return err
				}
				if n >= maxMarkers {
					return errors.NewTooManyMarkers(maxMarkers, n+1)
				}
			}
			if err := tx.QueryRowContext(ctx,
				`SELECT COALESCE(MAX(position) + 1, 0) FROM markers WHERE experience_id = ?`, experienceID).Scan(&position); err != nil {
				return errors.NewInternal(err)
			}
		case err != nil:
			return errors.NewInternal(err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO markers (experience_id, position, `+markerColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(experience_id, code) DO UPDATE SET
				title = excluded.title,
				description = excluded.description,
				action = excluded.action,
				image = excluded.image,
				show_detail = excluded.show_detail,
				reset_history_on_open = excluded.reset_history_on_open,
				change_to_experience = excluded.change_to_experience
		`, append([]any{experienceID, position}, markerArgs(m)...)...)
		if err != nil {
			return errors.NewInternal(err)
		}
		return nil
	})
	return created, err
}

// DeleteMarker removes one marker from an active experience.
func DeleteMarker(ctx context.Context, db *sql.DB, experienceID, code string) error {
	return withTx(ctx, db, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			DELETE FROM markers
			WHERE experience_id = ? AND code = ?
			  AND experience_id IN (SELECT id FROM experiences WHERE deleted_at IS NULL)
		`, experienceID, code)
		if err != nil {
			return errors.NewInternal(err)
		}
		if err := requireAffected(result, errors.NewMarkerNotFound(experienceID, code)); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE experiences SET updated_at = ? WHERE id = ?`, time.Now().Unix(), experienceID); err != nil {
			return errors.NewInternal(err)
		}
		return nil
	})
}

// countMarkers returns the number of markers stored for an experience.
func countMarkers(ctx context.Context, q querier, experienceID string) (int, error) {
	var n int
	if err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM markers WHERE experience_id = ?`, experienceID).Scan(&n); err != nil {
		return 0, errors.NewInternal(err)
	}
	return n, nil
}

// ListForExport returns full experiences (with markers) ordered by creation time.
func ListForExport(ctx context.Context, db *sql.DB, includeDeleted bool) ([]*experience.Experience, error) {
	query := `SELECT ` + experienceColumns + ` FROM experiences`
	if !includeDeleted {
		query += " WHERE deleted_at IS NULL"
	}
	query += " ORDER BY created_at ASC, id ASC"

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	var out []*experience.Experience
	for rows.Next() {
		e, err := scanExperience(rows)
		if err != nil {
			rows.Close()
			return nil, errors.NewInternal(err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, errors.NewInternal(err)
	}
	rows.Close()

	for _, e := range out {
		if e.Markers, err = loadMarkers(ctx, db, e.ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func insertMarkers(ctx context.Context, q querier, experienceID string, markers []marker.Marker) error {
	for i, m := range markers {
		_, err := q.ExecContext(ctx, `
			INSERT INTO markers (experience_id, position, `+markerColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, append([]any{experienceID, i}, markerArgs(m)...)...)
		if err != nil {
			if isUniqueConstraintError(err) {
				return errors.NewDuplicateCode([]string{m.Code})
			}
			return errors.NewInternal(err)
		}
	}
	return nil
}

func loadMarkers(ctx context.Context, q querier, experienceID string) ([]marker.Marker, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+markerColumns+` FROM markers
		WHERE experience_id = ?
		ORDER BY position ASC
	`, experienceID)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	markers := []marker.Marker{}
	for rows.Next() {
		var (
			m                                     marker.Marker
			title, description, action, image, to sql.NullString
		)
		if err := rows.Scan(&m.Code, &title, &description, &action, &image,
			&m.ShowDetail, &m.ResetHistoryOnOpen, &to); err != nil {
			return nil, errors.NewInternal(err)
		}
		m.Title = title.String
		m.Description = description.String
		m.Action = action.String
		m.Image = image.String
		m.ChangeToExperienceWithIDOnOpen = to.String
		markers = append(markers, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return markers, nil
}

func markerArgs(m marker.Marker) []any {
	return []any{
		m.Code, toNullString(m.Title), toNullString(m.Description), toNullString(m.Action),
		toNullString(m.Image), m.ShowDetail, m.ResetHistoryOnOpen,
		toNullString(m.ChangeToExperienceWithIDOnOpen),
	}
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanExperience(row rowScanner) (*experience.Experience, error) {
	var (
		e                               experience.Experience
		nameRaw, nameNorm, description sql.NullString
		deletedAt                       sql.NullInt64
	)

	if err := row.Scan(&e.ID, &nameRaw, &nameNorm, &description,
		&e.CreatedAt, &e.UpdatedAt, &deletedAt); err != nil {
		return nil, err
	}

	e.NameRaw = nameRaw.String
	e.NameNorm = nameNorm.String
	e.Description = description.String
	if deletedAt.Valid {
		e.DeletedAt = &deletedAt.Int64
	}
	e.Markers = []marker.Marker{}
	return &e, nil
}

func scanSummaries(rows *sql.Rows) ([]experience.Summary, error) {
	summaries := []experience.Summary{}
	for rows.Next() {
		var (
			s                 experience.Summary
			name, description sql.NullString
			deletedAt         sql.NullInt64
		)
		if err := rows.Scan(&s.ID, &name, &description, &s.CreatedAt, &s.UpdatedAt,
			&deletedAt, &s.MarkerCount); err != nil {
			return nil, errors.NewInternal(err)
		}
		s.Name = name.String
		s.Description = description.String
		if deletedAt.Valid {
			s.DeletedAt = &deletedAt.Int64
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return summaries, nil
}

// withTx runs fn in a transaction, rolling back on error.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewInternal(err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

func requireAffected(result sql.Result, notFound error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// isUniqueConstraintError checks if the error is a SQLite UNIQUE constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// escapeLike escapes LIKE wildcards so user input matches literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func toNullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

// toNullString maps "" to NULL.
func toNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

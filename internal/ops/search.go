package ops

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/artcodes/registry/internal/db"
	"github.com/artcodes/registry/internal/errors"
	"github.com/artcodes/registry/internal/experience"
)

// SearchInput contains parameters for the Search operation.
type SearchInput struct {
	Query          string // required, 3 to 200 characters after trimming
	Limit          int
	Offset         int
	IncludeDeleted bool
}

// SearchOutput contains the result of the Search operation.
type SearchOutput struct {
	Query      string               `json:"query"`
	Items      []experience.Summary `json:"items"`
	Pagination Pagination           `json:"pagination"`
	Sort       string               `json:"sort"`
}

// Search finds experiences whose name, description or marker titles contain the query.
func Search(ctx context.Context, database *sql.DB, input SearchInput) (*SearchOutput, error) {
	query := strings.TrimSpace(input.Query)
	n := utf8.RuneCountInString(query)
	if n < db.MinSearchQueryChars {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("query must be at least %d characters", db.MinSearchQueryChars))
	}
	if n > db.MaxSearchQueryChars {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("query must be at most %d characters", db.MaxSearchQueryChars))
	}

	limit, offset := clampPage(input.Limit, input.Offset)

	summaries, total, err := db.Search(ctx, database, query, limit, offset, input.IncludeDeleted)
	if err != nil {
		return nil, err
	}
	if summaries == nil {
		summaries = []experience.Summary{}
	}

	return &SearchOutput{
		Query: query,
		Items: summaries,
		Pagination: Pagination{
			Limit:   limit,
			Offset:  offset,
			HasMore: offset+len(summaries) < total,
			Total:   total,
		},
		Sort: "updated_at_desc",
	}, nil
}

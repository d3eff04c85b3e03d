package experience

import (
	"strings"

	"github.com/artcodes/registry/internal/marker"
)

// LintResult contains the results of checking a marker set.
type LintResult struct {
	Valid          bool
	EmptyCodes     []int    // indexes of markers without a code
	DuplicateCodes []string // codes used more than once, in first-seen order
	TooMany        bool
	Count          int
	MaxMarkers     int
}

// Lint checks that every marker has a code, codes are unique and the
// set fits within maxMarkers (0 disables the size check).
func Lint(markers []marker.Marker, maxMarkers int) *LintResult {
	result := &LintResult{
		Valid:      true,
		Count:      len(markers),
		MaxMarkers: maxMarkers,
	}

	if maxMarkers > 0 && len(markers) > maxMarkers {
		result.TooMany = true
		result.Valid = false
	}

	seen := make(map[string]int, len(markers))
	for i, m := range markers {
		code := strings.TrimSpace(m.Code)
		if code == "" {
			result.EmptyCodes = append(result.EmptyCodes, i)
			result.Valid = false
			continue
		}
		seen[code]++
		if seen[code] == 2 {
			result.DuplicateCodes = append(result.DuplicateCodes, code)
			result.Valid = false
		}
	}

	return result
}

// TrimCodes strips surrounding whitespace from every marker code in place.
func TrimCodes(markers []marker.Marker) {
	for i := range markers {
		markers[i].Code = strings.TrimSpace(markers[i].Code)
	}
}

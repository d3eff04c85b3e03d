package experience

import (
	"slices"
	"strconv"
	"strings"

	"github.com/artcodes/registry/internal/marker"
)

// initialMinRegions is the starting value for MinRegions; an experience
// without codes reports it unchanged.
const initialMinRegions = 20

// DetectionSettings are the scanner limits derived from an experience's codes.
// A code is a colon-separated list of region values, e.g. "1:1:2:4".
type DetectionSettings struct {
	MinRegions     int      `json:"min_regions"`
	MaxRegions     int      `json:"max_regions"`
	MaxRegionValue int      `json:"max_region_value"`
	Checksum       int      `json:"checksum"`
	ValidCodes     []string `json:"valid_codes"`
}

// NewDetectionSettings computes detection limits from markers.
// Checksum is the gcd of all positive region sums. Non-numeric regions
// count towards the region total but not towards values or sums.
func NewDetectionSettings(markers []marker.Marker) DetectionSettings {
	s := DetectionSettings{
		MinRegions: initialMinRegions,
		ValidCodes: []string{},
	}

	seen := make(map[string]bool, len(markers))
	for _, m := range markers {
		if m.Code == "" {
			continue
		}

		regions := splitRegions(m.Code)
		s.MinRegions = min(s.MinRegions, len(regions))
		s.MaxRegions = max(s.MaxRegions, len(regions))

		total := 0
		for _, r := range regions {
			if n, err := strconv.Atoi(r); err == nil {
				s.MaxRegionValue = max(s.MaxRegionValue, n)
				total += n
			}
		}
		if total > 0 {
			s.Checksum = gcd(s.Checksum, total)
		}

		if !seen[m.Code] {
			seen[m.Code] = true
			s.ValidCodes = append(s.ValidCodes, m.Code)
		}
	}

	slices.Sort(s.ValidCodes)
	return s
}

// IsValidCode reports whether code belongs to the experience these settings were built from.
func (s DetectionSettings) IsValidCode(code string) bool {
	_, found := slices.BinarySearch(s.ValidCodes, code)
	return found
}

func splitRegions(code string) []string {
	return slices.DeleteFunc(strings.Split(code, ":"), func(r string) bool { return r == "" })
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

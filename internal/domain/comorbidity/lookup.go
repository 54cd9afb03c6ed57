package comorbidity

import (
	"fmt"
	"sort"
	"strings"
)

// ClosestYear picks the table year for a request: the exact year when
// available, otherwise the latest year before it.
func ClosestYear(available []int, year int) (int, bool) {
	best, found := 0, false
	for _, y := range available {
		if y == year {
			return y, true
		}
		if y < year && (!found || y > best) {
			best, found = y, true
		}
	}
	return best, found
}

// Lookup finds the rule set for scheme, version and year in a catalog keyed
// by scheme, then version, then year. Scheme and version are case-insensitive.
func Lookup(tables map[string]map[string]map[int]*RuleSet, scheme, version string, year int) (*RuleSet, error) {
	scheme = strings.ToLower(strings.TrimSpace(scheme))
	version = strings.ToLower(strings.TrimSpace(version))

	versions, ok := tables[scheme]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownScheme, scheme)
	}
	years, ok := versions[version]
	if !ok {
		return nil, fmt.Errorf("%w: %q for scheme %q", ErrUnknownVersion, version, scheme)
	}

	available := make([]int, 0, len(years))
	for y := range years {
		available = append(available, y)
	}
	y, ok := ClosestYear(available, year)
	if !ok {
		sort.Ints(available)
		return nil, fmt.Errorf("%w %d in %s/%s (available: %v)", ErrUnknownYear, year, scheme, version, available)
	}
	return years[y], nil
}

// SortInfos orders catalog entries by scheme, version and year.
func SortInfos(infos []RuleSetInfo) {
	sort.Slice(infos, func(i, j int) bool {
		a, b := infos[i], infos[j]
		if a.Scheme != b.Scheme {
			return a.Scheme < b.Scheme
		}
		if a.Version != b.Version {
			return a.Version < b.Version
		}
		return a.Year < b.Year
	})
}

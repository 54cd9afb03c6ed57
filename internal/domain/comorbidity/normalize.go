package comorbidity

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeCodes turns a single code or a collection of codes into a
// deduplicated slice of uppercase, trimmed codes in first-seen order.
// Unordered collections (maps) come back sorted.
func NormalizeCodes(v any) ([]string, error) {
	switch codes := v.(type) {
	case string:
		return uniqueCodes([]string{codes}), nil
	case []string:
		return uniqueCodes(codes), nil
	case []any:
		raw := make([]string, 0, len(codes))
		for i, c := range codes {
			s, ok := c.(string)
			if !ok {
				return nil, fmt.Errorf("%w: element %d is %T", ErrInvalidCodes, i, c)
			}
			raw = append(raw, s)
		}
		return uniqueCodes(raw), nil
	case map[string]struct{}:
		raw := make([]string, 0, len(codes))
		for c := range codes {
			raw = append(raw, c)
		}
		return sortedCodes(raw), nil
	case map[string]bool:
		raw := make([]string, 0, len(codes))
		for c, present := range codes {
			if present {
				raw = append(raw, c)
			}
		}
		return sortedCodes(raw), nil
	default:
		return nil, fmt.Errorf("%w: got %T", ErrInvalidCodes, v)
	}
}

// normalizeCode folds compatibility forms (full-width digits and letters),
// trims and uppercases a single code.
func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(norm.NFKC.String(code)))
}

func uniqueCodes(codes []string) []string {
	seen := make(map[string]struct{}, len(codes))
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		n := normalizeCode(c)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

func sortedCodes(codes []string) []string {
	out := uniqueCodes(codes)
	sort.Strings(out)
	return out
}

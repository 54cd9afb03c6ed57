package comorbidity

import (
	"fmt"
	"strings"
)

// NewRuleSet validates the rules and returns an immutable RuleSet. Candidate
// codes are normalized the same way input codes are. All problems found are
// reported together.
func NewRuleSet(scheme, version string, year int, rules []CategoryRule) (*RuleSet, error) {
	var errs []string

	scheme = strings.ToLower(strings.TrimSpace(scheme))
	version = strings.ToLower(strings.TrimSpace(version))
	if scheme == "" {
		errs = append(errs, "scheme is required")
	}
	if version == "" {
		errs = append(errs, "version is required")
	}
	if year <= 0 {
		errs = append(errs, fmt.Sprintf("year must be positive, got %d", year))
	}
	if len(rules) == 0 {
		errs = append(errs, "at least one category is required")
	}

	rs := &RuleSet{
		Scheme:     scheme,
		Version:    version,
		Year:       year,
		categories: make([]CategoryRule, 0, len(rules)),
		index:      make(map[string]int, len(rules)),
	}

	for i, r := range rules {
		name := strings.TrimSpace(r.Name)
		if name == "" {
			errs = append(errs, fmt.Sprintf("category %d has no name", i))
			continue
		}
		if _, dup := rs.index[name]; dup {
			errs = append(errs, fmt.Sprintf("duplicate category name: %q", name))
			continue
		}
		if r.Weight < 0 {
			errs = append(errs, fmt.Sprintf("category %q: weight must be >= 0, got %d", name, r.Weight))
		}

		spec, specErrs := cloneSpec(r.Match)
		for _, e := range specErrs {
			errs = append(errs, fmt.Sprintf("category %q: %s", name, e))
		}

		var overriddenBy []string
		for _, by := range r.OverriddenBy {
			by = strings.TrimSpace(by)
			if by == name {
				errs = append(errs, fmt.Sprintf("category %q overrides itself", name))
				continue
			}
			overriddenBy = append(overriddenBy, by)
		}

		rs.index[name] = len(rs.categories)
		rs.categories = append(rs.categories, CategoryRule{
			Name:         name,
			Description:  r.Description,
			Weight:       r.Weight,
			Match:        spec,
			OverriddenBy: overriddenBy,
		})
	}

	for _, r := range rs.categories {
		for _, by := range r.OverriddenBy {
			if _, ok := rs.index[by]; !ok {
				errs = append(errs, fmt.Sprintf("category %q references nonexistent overriding category %q", r.Name, by))
			}
		}
	}

	if cyclic := overrideCycle(rs.categories); len(cyclic) > 0 {
		errs = append(errs, fmt.Sprintf("override cycle involving categories: %s", strings.Join(cyclic, ", ")))
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("%w %s/%s/%d:\n  %s", ErrInvalidRuleSet, scheme, version, year, strings.Join(errs, "\n  "))
	}
	return rs, nil
}

// cloneSpec copies and normalizes a match spec so the rule set owns its data.
func cloneSpec(spec MatchSpec) (MatchSpec, []string) {
	switch s := spec.(type) {
	case AnyOf:
		codes := uniqueCodes(s.Codes)
		if len(codes) == 0 {
			return nil, []string{"codes must not be empty"}
		}
		return AnyOf{Codes: codes}, nil
	case *AnyOf:
		if s == nil {
			return nil, []string{"match spec is required"}
		}
		return cloneSpec(*s)
	case Both:
		a, b := uniqueCodes(s.GroupA), uniqueCodes(s.GroupB)
		var errs []string
		if len(a) == 0 {
			errs = append(errs, "group_a must not be empty")
		}
		if len(b) == 0 {
			errs = append(errs, "group_b must not be empty")
		}
		inA := make(map[string]struct{}, len(a))
		for _, c := range a {
			inA[c] = struct{}{}
		}
		for _, c := range b {
			if _, ok := inA[c]; ok {
				errs = append(errs, fmt.Sprintf("code %q appears in both groups", c))
			}
		}
		if len(errs) > 0 {
			return nil, errs
		}
		return Both{GroupA: a, GroupB: b}, nil
	case *Both:
		if s == nil {
			return nil, []string{"match spec is required"}
		}
		return cloneSpec(*s)
	default:
		return nil, []string{"match spec is required"}
	}
}

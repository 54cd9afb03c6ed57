package comorbidity

// Aggregate sums the weights of the resolved categories and lists their names
// in the given order.
func Aggregate(resolved []CategoryRule) Result {
	res := Result{Categories: make([]string, 0, len(resolved))}
	for _, r := range resolved {
		res.Score += r.Weight
		res.Categories = append(res.Categories, r.Name)
	}
	return res
}

// Evaluate runs matching, override resolution and aggregation for already
// normalized codes against one rule set.
func Evaluate(rs *RuleSet, codes []string, mode MatchMode) (Result, error) {
	resolved, err := Resolve(matchAll(rs, codes, mode))
	if err != nil {
		return Result{}, err
	}
	return Aggregate(resolved), nil
}

// Explain evaluates like Evaluate and also reports the triggering codes of
// each surviving category and the categories removed by overrides.
func Explain(rs *RuleSet, codes []string, mode MatchMode) (Explanation, error) {
	matched := matchAll(rs, codes, mode)
	resolved, err := Resolve(matched)
	if err != nil {
		return Explanation{}, err
	}

	exp := Explanation{
		Result:     Aggregate(resolved),
		Triggered:  make([]CategoryMatch, 0, len(resolved)),
		Suppressed: []Suppression{},
	}
	for _, r := range resolved {
		exp.Triggered = append(exp.Triggered, CategoryMatch{
			Name:   r.Name,
			Weight: r.Weight,
			Codes:  matchingCodes(r.Match, codes, mode),
		})
	}

	present := make(map[string]struct{}, len(matched))
	for _, r := range matched {
		present[r.Name] = struct{}{}
	}
	for _, r := range matched {
		if by := suppressors(r, present); len(by) > 0 {
			exp.Suppressed = append(exp.Suppressed, Suppression{Name: r.Name, Weight: r.Weight, By: by})
		}
	}
	return exp, nil
}

// matchAll evaluates every category independently, in declaration order.
func matchAll(rs *RuleSet, codes []string, mode MatchMode) []CategoryRule {
	var matched []CategoryRule
	for _, r := range rs.categories {
		if Matches(r, codes, mode) {
			matched = append(matched, r)
		}
	}
	return matched
}

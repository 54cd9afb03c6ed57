package comorbidity

import "strings"

// Matches reports whether the normalized codes trigger the rule's category.
func Matches(rule CategoryRule, codes []string, mode MatchMode) bool {
	if rule.Match == nil {
		return false
	}
	return rule.Match.Matches(codes, mode)
}

func (s AnyOf) Matches(codes []string, mode MatchMode) bool {
	return anyMatch(codes, s.Codes, mode)
}

// Matches checks each group on its own, so one input code may satisfy both.
func (s Both) Matches(codes []string, mode MatchMode) bool {
	return anyMatch(codes, s.GroupA, mode) && anyMatch(codes, s.GroupB, mode)
}

// matchingCodes returns the input codes that satisfy the spec, in input order.
func matchingCodes(spec MatchSpec, codes []string, mode MatchMode) []string {
	var candidates [][]string
	switch s := spec.(type) {
	case AnyOf:
		candidates = [][]string{s.Codes}
	case Both:
		candidates = [][]string{s.GroupA, s.GroupB}
	}
	var out []string
	for _, code := range codes {
		for _, group := range candidates {
			if codeMatchesAny(code, group, mode) {
				out = append(out, code)
				break
			}
		}
	}
	return out
}

func anyMatch(codes, candidates []string, mode MatchMode) bool {
	for _, code := range codes {
		if codeMatchesAny(code, candidates, mode) {
			return true
		}
	}
	return false
}

func codeMatchesAny(code string, candidates []string, mode MatchMode) bool {
	for _, cand := range candidates {
		if codeMatches(code, cand, mode) {
			return true
		}
	}
	return false
}

func codeMatches(code, candidate string, mode MatchMode) bool {
	if mode == MatchExact {
		return code == candidate
	}
	return strings.HasPrefix(code, candidate)
}

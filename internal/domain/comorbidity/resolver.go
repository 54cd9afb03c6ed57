package comorbidity

import (
	"fmt"
	"strings"
)

// Resolve removes every matched category that is overridden by another
// matched category. Suppression is decided against the full matched set in a
// single pass, so chains resolve the same way regardless of order. The input
// order is preserved.
func Resolve(matched []CategoryRule) ([]CategoryRule, error) {
	if cyclic := overrideCycle(matched); len(cyclic) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrOverrideCycle, strings.Join(cyclic, ", "))
	}

	present := make(map[string]struct{}, len(matched))
	for _, r := range matched {
		present[r.Name] = struct{}{}
	}

	out := make([]CategoryRule, 0, len(matched))
	for _, r := range matched {
		if len(suppressors(r, present)) > 0 {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// suppressors returns the names in r.OverriddenBy that are present.
func suppressors(r CategoryRule, present map[string]struct{}) []string {
	var by []string
	for _, name := range r.OverriddenBy {
		if name == r.Name {
			continue
		}
		if _, ok := present[name]; ok {
			by = append(by, name)
		}
	}
	return by
}

// overrideCycle runs Kahn's algorithm over the override edges between the
// given rules and returns the names left on a cycle, in input order.
func overrideCycle(rules []CategoryRule) []string {
	present := make(map[string]struct{}, len(rules))
	for _, r := range rules {
		present[r.Name] = struct{}{}
	}

	// Edge overrider -> overridden.
	inDegree := make(map[string]int, len(rules))
	adj := make(map[string][]string)
	for _, r := range rules {
		if _, ok := inDegree[r.Name]; !ok {
			inDegree[r.Name] = 0
		}
		for _, by := range r.OverriddenBy {
			if _, ok := present[by]; !ok {
				continue
			}
			adj[by] = append(adj[by], r.Name)
			inDegree[r.Name]++
		}
	}

	var queue []string
	for _, r := range rules {
		if inDegree[r.Name] == 0 {
			queue = append(queue, r.Name)
		}
	}
	visited := 0
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		visited++
		for _, next := range adj[name] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	if visited >= len(inDegree) {
		return nil
	}

	var cyclic []string
	for _, r := range rules {
		if inDegree[r.Name] > 0 {
			cyclic = append(cyclic, r.Name)
		}
	}
	return cyclic
}

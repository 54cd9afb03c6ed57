package comorbidity

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Defaults applied to a Request when the caller leaves a field empty.
const (
	DefaultScheme  = "charlson"
	DefaultVersion = "icd10gm"
	DefaultYear    = Year(2024)
)

// MatchMode selects how an input code is compared with a candidate code.
type MatchMode int

const (
	// MatchPrefix matches when the candidate is a prefix of the input code.
	MatchPrefix MatchMode = iota
	// MatchExact matches only identical codes.
	MatchExact
)

func (m MatchMode) String() string {
	if m == MatchExact {
		return "exact"
	}
	return "prefix"
}

// ModeFor maps the exact-codes flag used by callers to a MatchMode.
func ModeFor(exact bool) MatchMode {
	if exact {
		return MatchExact
	}
	return MatchPrefix
}

// MatchKind names the variant of a MatchSpec.
type MatchKind string

const (
	KindAnyOf MatchKind = "any"
	KindBoth  MatchKind = "both"
)

// MatchSpec decides whether a set of normalized codes triggers a category.
// The set of implementations is closed: AnyOf and Both.
type MatchSpec interface {
	Kind() MatchKind
	Matches(codes []string, mode MatchMode) bool
	matchSpec()
}

// AnyOf triggers when any input code matches any candidate.
type AnyOf struct {
	Codes []string `json:"codes"`
}

// Both triggers only when at least one input code matches GroupA and at least
// one input code matches GroupB.
type Both struct {
	GroupA []string `json:"group_a"`
	GroupB []string `json:"group_b"`
}

func (AnyOf) Kind() MatchKind { return KindAnyOf }
func (Both) Kind() MatchKind  { return KindBoth }
func (AnyOf) matchSpec()      {}
func (Both) matchSpec()       {}

// CategoryRule is one weighted comorbidity category.
type CategoryRule struct {
	Name        string
	Description string
	Weight      int
	Match       MatchSpec
	// OverriddenBy lists categories that suppress this one when they match in
	// the same evaluation.
	OverriddenBy []string
}

// RuleSet is the immutable set of categories for one scheme, code-system
// version and year. Build it with NewRuleSet.
type RuleSet struct {
	Scheme  string
	Version string
	Year    int

	categories []CategoryRule
	index      map[string]int
}

// Len returns the number of categories.
func (rs *RuleSet) Len() int { return len(rs.categories) }

// Categories returns the categories in declaration order. The returned slice
// is a copy; the rules themselves must not be modified.
func (rs *RuleSet) Categories() []CategoryRule {
	out := make([]CategoryRule, len(rs.categories))
	copy(out, rs.categories)
	return out
}

// Category looks up a category by name.
func (rs *RuleSet) Category(name string) (CategoryRule, bool) {
	i, ok := rs.index[name]
	if !ok {
		return CategoryRule{}, false
	}
	return rs.categories[i], true
}

// MaxScore is the score obtained when every category is triggered, i.e. the
// upper bound after override resolution.
func (rs *RuleSet) MaxScore() int {
	resolved, err := Resolve(rs.categories)
	if err != nil {
		return 0
	}
	return Aggregate(resolved).Score
}

// Info summarizes the rule set for catalogs.
func (rs *RuleSet) Info() RuleSetInfo {
	return RuleSetInfo{
		Scheme:     rs.Scheme,
		Version:    rs.Version,
		Year:       rs.Year,
		Categories: len(rs.categories),
		MaxScore:   rs.MaxScore(),
	}
}

// Key returns the catalog key "scheme/version/year".
func (rs *RuleSet) Key() string {
	return fmt.Sprintf("%s/%s/%d", rs.Scheme, rs.Version, rs.Year)
}

// RuleSetInfo is a catalog entry describing an available rule set.
type RuleSetInfo struct {
	Scheme     string `json:"scheme" yaml:"scheme"`
	Version    string `json:"version" yaml:"version"`
	Year       int    `json:"year" yaml:"year"`
	Categories int    `json:"categories" yaml:"categories"`
	MaxScore   int    `json:"max_score" yaml:"max_score"`
}

// Result is the outcome of one evaluation.
type Result struct {
	Score      int      `json:"score" yaml:"score"`
	Categories []string `json:"categories" yaml:"categories"`
}

// CategoryMatch records which input codes triggered a category.
type CategoryMatch struct {
	Name   string   `json:"name" yaml:"name"`
	Weight int      `json:"weight" yaml:"weight"`
	Codes  []string `json:"codes" yaml:"codes"`
}

// Suppression records a matched category removed by override resolution.
type Suppression struct {
	Name   string   `json:"name" yaml:"name"`
	Weight int      `json:"weight" yaml:"weight"`
	By     []string `json:"suppressed_by" yaml:"suppressed_by"`
}

// Explanation is a Result together with the reasoning behind it.
type Explanation struct {
	Result     `yaml:",inline"`
	Triggered  []CategoryMatch `json:"triggered" yaml:"triggered"`
	Suppressed []Suppression   `json:"suppressed" yaml:"suppressed"`
}

// Request carries the arguments of a score calculation.
type Request struct {
	// Codes is a single code string or a collection of code strings.
	Codes   any    `json:"codes" yaml:"codes"`
	Scheme  string `json:"scheme,omitempty" yaml:"scheme,omitempty"`
	Version string `json:"version,omitempty" yaml:"version,omitempty"`
	Year    Year   `json:"year,omitempty" yaml:"year,omitempty"`
	Exact   bool   `json:"exact,omitempty" yaml:"exact,omitempty"`
}

// WithDefaults fills empty scheme, version and year.
func (r Request) WithDefaults() Request {
	if strings.TrimSpace(r.Scheme) == "" {
		r.Scheme = DefaultScheme
	}
	if strings.TrimSpace(r.Version) == "" {
		r.Version = DefaultVersion
	}
	if r.Year == 0 {
		r.Year = DefaultYear
	}
	return r
}

// Year is an applicable year. It decodes from either a number or a string.
type Year int

// ParseYear converts an integer or string year.
func ParseYear(v any) (Year, error) {
	switch y := v.(type) {
	case Year:
		return y, nil
	case int:
		return checkYear(y)
	case int64:
		return checkYear(int(y))
	case float64:
		if y != float64(int(y)) {
			return 0, fmt.Errorf("%w: %v", ErrInvalidYear, y)
		}
		return checkYear(int(y))
	case string:
		s := strings.TrimSpace(y)
		if s == "" {
			return 0, nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidYear, y)
		}
		return checkYear(n)
	case nil:
		return 0, nil
	default:
		return 0, fmt.Errorf("%w: unsupported type %T", ErrInvalidYear, v)
	}
}

func checkYear(n int) (Year, error) {
	if n < 0 || n > 9999 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidYear, n)
	}
	return Year(n), nil
}

func (y *Year) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidYear, string(b))
	}
	parsed, err := ParseYear(v)
	if err != nil {
		return err
	}
	*y = parsed
	return nil
}

func (y *Year) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("%w: line %d is not a scalar", ErrInvalidYear, node.Line)
	}
	parsed, err := ParseYear(node.Value)
	if err != nil {
		return err
	}
	*y = parsed
	return nil
}

func (y Year) String() string { return strconv.Itoa(int(y)) }

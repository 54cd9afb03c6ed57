package comorbidity

import "context"

// Calculator computes comorbidity scores against rule sets from a provider.
// It holds no per-call state and is safe for concurrent use.
type Calculator struct {
	rules RuleSetProvider
}

// NewCalculator creates a Calculator backed by the given provider.
func NewCalculator(rules RuleSetProvider) *Calculator {
	return &Calculator{rules: rules}
}

// TableRef identifies the rule table a result was computed with. Year is the
// table's year, which may be earlier than the requested one.
type TableRef struct {
	Scheme  string `json:"scheme" yaml:"scheme"`
	Version string `json:"version" yaml:"version"`
	Year    int    `json:"year" yaml:"year"`
}

// Assessment is a Result tagged with the table that produced it.
type Assessment struct {
	Result   `yaml:",inline"`
	TableRef `yaml:",inline"`
}

// ExplainedAssessment is an Explanation tagged with the table that produced it.
type ExplainedAssessment struct {
	Explanation `yaml:",inline"`
	TableRef    `yaml:",inline"`
}

// Calculate normalizes the request codes, looks up the rule set and returns
// the score with the triggered categories. Input and lookup errors are
// returned unchanged.
func (c *Calculator) Calculate(ctx context.Context, req Request) (Result, error) {
	a, err := c.Assess(ctx, req)
	return a.Result, err
}

// Explain is Calculate with the triggering codes and suppressed categories.
func (c *Calculator) Explain(ctx context.Context, req Request) (Explanation, error) {
	a, err := c.AssessWithExplanation(ctx, req)
	return a.Explanation, err
}

// Assess is Calculate that also reports the table used.
func (c *Calculator) Assess(ctx context.Context, req Request) (Assessment, error) {
	codes, rs, mode, err := c.prepare(ctx, req)
	if err != nil {
		return Assessment{}, err
	}
	res, err := Evaluate(rs, codes, mode)
	if err != nil {
		return Assessment{}, err
	}
	return Assessment{Result: res, TableRef: refOf(rs)}, nil
}

// AssessWithExplanation is Explain that also reports the table used.
func (c *Calculator) AssessWithExplanation(ctx context.Context, req Request) (ExplainedAssessment, error) {
	codes, rs, mode, err := c.prepare(ctx, req)
	if err != nil {
		return ExplainedAssessment{}, err
	}
	exp, err := Explain(rs, codes, mode)
	if err != nil {
		return ExplainedAssessment{}, err
	}
	return ExplainedAssessment{Explanation: exp, TableRef: refOf(rs)}, nil
}

func (c *Calculator) prepare(ctx context.Context, req Request) ([]string, *RuleSet, MatchMode, error) {
	codes, err := NormalizeCodes(req.Codes)
	if err != nil {
		return nil, nil, 0, err
	}
	req = req.WithDefaults()
	rs, err := c.rules.RuleSet(ctx, req.Scheme, req.Version, int(req.Year))
	if err != nil {
		return nil, nil, 0, err
	}
	return codes, rs, ModeFor(req.Exact), nil
}

func refOf(rs *RuleSet) TableRef {
	return TableRef{Scheme: rs.Scheme, Version: rs.Version, Year: rs.Year}
}

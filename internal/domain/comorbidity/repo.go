package comorbidity

import "context"

// RuleSetProvider supplies rule sets by scheme, code-system version and year.
// Implementations own the fallback policy for years without a table and
// return ErrUnknownScheme, ErrUnknownVersion or ErrUnknownYear on failure.
type RuleSetProvider interface {
	RuleSet(ctx context.Context, scheme, version string, year int) (*RuleSet, error)
	Catalog(ctx context.Context) ([]RuleSetInfo, error)
}

// RuleSetStore is a provider that can also persist rule sets.
type RuleSetStore interface {
	RuleSetProvider
	// Import stores rs, replacing any rule set with the same key.
	Import(ctx context.Context, rs *RuleSet) error
}

package comorbidity

import "errors"

var (
	// ErrInvalidCodes is returned when the codes input is neither a string nor
	// a collection of strings.
	ErrInvalidCodes = errors.New("codes must be a string or a collection of strings")

	// ErrUnknownScheme is returned when no rule tables exist for a scoring scheme.
	ErrUnknownScheme = errors.New("unknown scoring scheme")

	// ErrUnknownVersion is returned when a scheme has no tables for a code-system version.
	ErrUnknownVersion = errors.New("unknown code-system version")

	// ErrUnknownYear is returned when no table applies to the requested year.
	ErrUnknownYear = errors.New("no rule table for year")

	ErrInvalidYear    = errors.New("invalid year")
	ErrInvalidRuleSet = errors.New("invalid rule set")
	ErrOverrideCycle  = errors.New("override cycle between matched categories")
)

// IsInputError reports whether err was caused by the caller's input.
func IsInputError(err error) bool {
	return errors.Is(err, ErrInvalidCodes) || errors.Is(err, ErrInvalidYear)
}

// IsLookupError reports whether err came from resolving a rule set rather than
// from the input itself.
func IsLookupError(err error) bool {
	return errors.Is(err, ErrUnknownScheme) ||
		errors.Is(err, ErrUnknownVersion) ||
		errors.Is(err, ErrUnknownYear)
}

// ErrReadOnlyRules is returned when importing into a provider that cannot store rule sets.
var ErrReadOnlyRules = errors.New("rule source is read-only")

// Outcome classifies err into a short label: "ok", "invalid_input",
// "unknown_table" or "error".
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case IsInputError(err):
		return "invalid_input"
	case IsLookupError(err):
		return "unknown_table"
	default:
		return "error"
	}
}

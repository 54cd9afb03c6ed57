package comorbidity

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// DefaultBatchConcurrency bounds parallel evaluations in ScoreBatch.
const DefaultBatchConcurrency = 8

// Observer receives scoring outcomes for metrics. It is never given codes,
// categories or scores.
type Observer interface {
	ObserveScore(scheme, version, outcome string)
	ObserveBatch(items, failed int)
}

type nopObserver struct{}

func (nopObserver) ObserveScore(string, string, string) {}
func (nopObserver) ObserveBatch(int, int)               {}

type Service struct {
	rules       RuleSetProvider
	calc        *Calculator
	defaults    Request
	concurrency int
	log         zerolog.Logger
	obs         Observer
}

func NewService(rules RuleSetProvider, logger zerolog.Logger) *Service {
	return &Service{
		rules:       rules,
		calc:        NewCalculator(rules),
		defaults:    Request{}.WithDefaults(),
		concurrency: DefaultBatchConcurrency,
		log:         logger.With().Str("component", "comorbidity").Logger(),
		obs:         nopObserver{},
	}
}

func (s *Service) SetObserver(o Observer) {
	if o != nil {
		s.obs = o
	}
}

// SetDefaults overrides the scheme, version and year used when a request
// leaves them empty. Empty arguments keep the current value.
func (s *Service) SetDefaults(scheme, version string, year Year) {
	if scheme != "" {
		s.defaults.Scheme = scheme
	}
	if version != "" {
		s.defaults.Version = version
	}
	if year != 0 {
		s.defaults.Year = year
	}
}

func (s *Service) SetBatchConcurrency(n int) {
	if n > 0 {
		s.concurrency = n
	}
}

func (s *Service) withDefaults(req Request) Request {
	if strings.TrimSpace(req.Scheme) == "" {
		req.Scheme = s.defaults.Scheme
	}
	if strings.TrimSpace(req.Version) == "" {
		req.Version = s.defaults.Version
	}
	if req.Year == 0 {
		req.Year = s.defaults.Year
	}
	return req
}

// Score evaluates one request. Scores and matched categories are not logged.
func (s *Service) Score(ctx context.Context, req Request) (Assessment, error) {
	req = s.withDefaults(req)
	a, err := s.calc.Assess(ctx, req)
	s.observe(a.TableRef, err)
	if err != nil {
		s.logFailure(err, req)
		return Assessment{}, err
	}
	s.log.Debug().
		Str("table", fmt.Sprintf("%s/%s/%d", a.Scheme, a.Version, a.Year)).
		Bool("exact", req.Exact).
		Msg("scored")
	return a, nil
}

// Explain evaluates one request and reports triggering codes and suppressions.
func (s *Service) Explain(ctx context.Context, req Request) (ExplainedAssessment, error) {
	req = s.withDefaults(req)
	a, err := s.calc.AssessWithExplanation(ctx, req)
	s.observe(a.TableRef, err)
	if err != nil {
		s.logFailure(err, req)
		return ExplainedAssessment{}, err
	}
	return a, nil
}

// observe reports an evaluation under the table that produced it. Failed
// evaluations are labelled "unknown" so caller-supplied names never become
// metric labels.
func (s *Service) observe(ref TableRef, err error) {
	scheme, version := "unknown", "unknown"
	if err == nil {
		scheme, version = ref.Scheme, ref.Version
	}
	s.obs.ObserveScore(scheme, version, Outcome(err))
}

func (s *Service) logFailure(err error, req Request) {
	ev := s.log.Debug()
	if !IsLookupError(err) && !IsInputError(err) {
		ev = s.log.Error()
	}
	ev.Err(err).
		Str("scheme", req.Scheme).
		Str("version", req.Version).
		Int("year", int(req.Year)).
		Msg("score failed")
}

// BatchItem is one request of a batch. ID is echoed back in the result.
type BatchItem struct {
	ID      string `json:"id,omitempty" yaml:"id,omitempty"`
	Request `yaml:",inline"`
}

// BatchResult holds either the assessment or the error for one item.
type BatchResult struct {
	ID     string      `json:"id,omitempty" yaml:"id,omitempty"`
	Index  int         `json:"index" yaml:"index"`
	Result *Assessment `json:"result,omitempty" yaml:"result,omitempty"`
	Error  string      `json:"error,omitempty" yaml:"error,omitempty"`

	err error
}

// Err returns the item's error, if any.
func (r BatchResult) Err() error { return r.err }

// ScoreBatch evaluates items concurrently. Item failures are recorded per
// result and do not stop the batch; only cancellation of ctx is returned as
// an error. Results keep the input order.
func (s *Service) ScoreBatch(ctx context.Context, items []BatchItem) ([]BatchResult, error) {
	results := make([]BatchResult, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, item := range items {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res := BatchResult{ID: item.ID, Index: i}
			req := s.withDefaults(item.Request)
			a, err := s.calc.Assess(gctx, req)
			s.observe(a.TableRef, err)
			if err != nil {
				res.Error = err.Error()
				res.err = err
			} else {
				res.Result = &a
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("batch cancelled: %w", err)
	}

	failed := 0
	for _, r := range results {
		if r.err != nil {
			failed++
		}
	}
	s.obs.ObserveBatch(len(items), failed)
	s.log.Info().Int("items", len(items)).Int("failed", failed).Msg("batch scored")
	return results, nil
}

// ListRuleSets returns the catalog of available rule sets.
func (s *Service) ListRuleSets(ctx context.Context) ([]RuleSetInfo, error) {
	return s.rules.Catalog(ctx)
}

// GetRuleSet returns the rule set that applies to scheme, version and year.
func (s *Service) GetRuleSet(ctx context.Context, scheme, version string, year int) (*RuleSet, error) {
	return s.rules.RuleSet(ctx, scheme, version, year)
}

// ImportRuleSet stores rs when the provider supports it.
func (s *Service) ImportRuleSet(ctx context.Context, rs *RuleSet) error {
	store, ok := s.rules.(RuleSetStore)
	if !ok {
		return ErrReadOnlyRules
	}
	if err := store.Import(ctx, rs); err != nil {
		return err
	}
	s.log.Info().Str("table", rs.Key()).Int("categories", rs.Len()).Msg("rule set imported")
	return nil
}

package comorbidity

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

// sampleRules is a reduced Charlson-style table exercising prefix codes, a
// two-group category and override pairs.
func sampleRules() []CategoryRule {
	return []CategoryRule{
		{Name: "myocardial_infarction", Weight: 1, Match: AnyOf{Codes: []string{"I21", "I22", "I25.2"}}},
		{Name: "liver_mild", Weight: 1, Match: AnyOf{Codes: []string{"B18", "K70.0", "K70.1", "K70.3", "K74"}},
			OverriddenBy: []string{"liver_severe"}},
		{Name: "dm_simple", Weight: 1, Match: AnyOf{Codes: []string{"E10.0", "E10.1", "E10.9"}},
			OverriddenBy: []string{"dm_complicated"}},
		{Name: "dm_complicated", Weight: 2, Match: AnyOf{Codes: []string{"E10.2", "E10.3", "E10.4"}}},
		{Name: "cancer", Weight: 2, Match: AnyOf{Codes: []string{"C18", "C50"}},
			OverriddenBy: []string{"cancer_metastatic"}},
		{Name: "liver_severe", Weight: 3, Match: Both{
			GroupA: []string{"I85", "I98.2"},
			GroupB: []string{"K70", "K74"},
		}},
		{Name: "cancer_metastatic", Weight: 6, Match: AnyOf{Codes: []string{"C77", "C78", "C79", "C80"}}},
	}
}

func sampleRuleSet(t *testing.T) *RuleSet {
	t.Helper()
	rs, err := NewRuleSet("charlson", "test", 2024, sampleRules())
	require.NoError(t, err)
	return rs
}

// mockProvider serves rule sets from memory with the closest-earlier-year rule.
type mockProvider struct {
	tables map[string]map[string]map[int]*RuleSet
	err    error
	calls  atomic.Int32
}

func newMockProvider(sets ...*RuleSet) *mockProvider {
	m := &mockProvider{tables: make(map[string]map[string]map[int]*RuleSet)}
	for _, rs := range sets {
		if m.tables[rs.Scheme] == nil {
			m.tables[rs.Scheme] = make(map[string]map[int]*RuleSet)
		}
		if m.tables[rs.Scheme][rs.Version] == nil {
			m.tables[rs.Scheme][rs.Version] = make(map[int]*RuleSet)
		}
		m.tables[rs.Scheme][rs.Version][rs.Year] = rs
	}
	return m
}

func (m *mockProvider) RuleSet(_ context.Context, scheme, version string, year int) (*RuleSet, error) {
	m.calls.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	return Lookup(m.tables, scheme, version, year)
}

func (m *mockProvider) Catalog(context.Context) ([]RuleSetInfo, error) {
	if m.err != nil {
		return nil, m.err
	}
	var infos []RuleSetInfo
	for _, versions := range m.tables {
		for _, years := range versions {
			for _, rs := range years {
				infos = append(infos, rs.Info())
			}
		}
	}
	SortInfos(infos)
	return infos, nil
}

// mockStore adds Import to mockProvider.
type mockStore struct {
	*mockProvider
	imported []string
}

func (m *mockStore) Import(_ context.Context, rs *RuleSet) error {
	if m.err != nil {
		return m.err
	}
	m.imported = append(m.imported, rs.Key())
	return nil
}

func mustRuleSet(t *testing.T, scheme, version string, year int, rules []CategoryRule) *RuleSet {
	t.Helper()
	rs, err := NewRuleSet(scheme, version, year, rules)
	if err != nil {
		t.Fatalf("NewRuleSet(%s/%s/%d): %v", scheme, version, year, err)
	}
	return rs
}

func singleCategory(name string, weight int, codes ...string) []CategoryRule {
	return []CategoryRule{{Name: name, Weight: weight, Match: AnyOf{Codes: codes}}}
}

package ruletable

import (
	"context"
	"fmt"
	"sync"

	"github.com/ehr/comorbidity/internal/domain/comorbidity"
)

// Registry is an in-memory comorbidity.RuleSetProvider.
type Registry struct {
	mu     sync.RWMutex
	tables map[string]map[string]map[int]*comorbidity.RuleSet
	count  int
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tables: make(map[string]map[string]map[int]*comorbidity.RuleSet)}
}

// Add registers a rule set. Registering the same scheme/version/year twice is
// an error.
func (r *Registry) Add(rs *comorbidity.RuleSet) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	versions, ok := r.tables[rs.Scheme]
	if !ok {
		versions = make(map[string]map[int]*comorbidity.RuleSet)
		r.tables[rs.Scheme] = versions
	}
	years, ok := versions[rs.Version]
	if !ok {
		years = make(map[int]*comorbidity.RuleSet)
		versions[rs.Version] = years
	}
	if _, dup := years[rs.Year]; dup {
		return fmt.Errorf("duplicate rule table %s", rs.Key())
	}
	years[rs.Year] = rs
	r.count++
	return nil
}

// Len returns the number of registered rule sets.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}

// RuleSet returns the table for the exact year or the closest earlier one.
func (r *Registry) RuleSet(_ context.Context, scheme, version string, year int) (*comorbidity.RuleSet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return comorbidity.Lookup(r.tables, scheme, version, year)
}

// Catalog lists every registered rule set ordered by scheme, version and year.
func (r *Registry) Catalog(_ context.Context) ([]comorbidity.RuleSetInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]comorbidity.RuleSetInfo, 0, r.count)
	for _, versions := range r.tables {
		for _, years := range versions {
			for _, rs := range years {
				infos = append(infos, rs.Info())
			}
		}
	}
	comorbidity.SortInfos(infos)
	return infos, nil
}

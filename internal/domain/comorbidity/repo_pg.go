package comorbidity

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/comorbidity/internal/platform/db"
)

type ruleSetRepoPG struct {
	pool *pgxpool.Pool

	mu    sync.RWMutex
	cache map[uuid.UUID]*RuleSet
}

// NewRuleSetRepoPG returns a store backed by the comorbidity_* tables. Built
// rule sets are cached by row id; Import writes a new id, so a replaced table
// is reloaded by every process on its next lookup.
func NewRuleSetRepoPG(pool *pgxpool.Pool) RuleSetStore {
	return &ruleSetRepoPG{pool: pool, cache: make(map[uuid.UUID]*RuleSet)}
}

func (r *ruleSetRepoPG) conn(ctx context.Context) db.Querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *ruleSetRepoPG) RuleSet(ctx context.Context, scheme, version string, year int) (*RuleSet, error) {
	scheme = strings.ToLower(strings.TrimSpace(scheme))
	version = strings.ToLower(strings.TrimSpace(version))

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, version, year FROM comorbidity_ruleset WHERE scheme = $1`, scheme)
	if err != nil {
		return nil, fmt.Errorf("query rule sets: %w", err)
	}
	var (
		anyScheme bool
		years     []int
		ids       = make(map[int]uuid.UUID)
	)
	for rows.Next() {
		var (
			id uuid.UUID
			v  string
			y  int
		)
		if err := rows.Scan(&id, &v, &y); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan rule set: %w", err)
		}
		anyScheme = true
		if v == version {
			years = append(years, y)
			ids[y] = id
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rule sets: %w", err)
	}

	if !anyScheme {
		return nil, fmt.Errorf("%w: %q", ErrUnknownScheme, scheme)
	}
	if len(years) == 0 {
		return nil, fmt.Errorf("%w: %q for scheme %q", ErrUnknownVersion, version, scheme)
	}
	y, ok := ClosestYear(years, year)
	if !ok {
		return nil, fmt.Errorf("%w %d in %s/%s (available: %v)", ErrUnknownYear, year, scheme, version, years)
	}
	return r.load(ctx, ids[y], scheme, version, y)
}

// load returns the rule set stored under id, building it on a cache miss.
func (r *ruleSetRepoPG) load(ctx context.Context, id uuid.UUID, scheme, version string, year int) (*RuleSet, error) {
	r.mu.RLock()
	rs, ok := r.cache[id]
	r.mu.RUnlock()
	if ok {
		return rs, nil
	}

	key := fmt.Sprintf("%s/%s/%d", scheme, version, year)
	rules, err := r.loadCategories(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load rule set %s: %w", key, err)
	}
	if len(rules) == 0 {
		// Replaced by a concurrent Import between the lookup and this read.
		return nil, fmt.Errorf("%w %d in %s/%s: table was replaced, retry", ErrUnknownYear, year, scheme, version)
	}
	rs, err = NewRuleSet(scheme, version, year, rules)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.cache[id] = rs
	r.mu.Unlock()
	return rs, nil
}

func (r *ruleSetRepoPG) loadCategories(ctx context.Context, id uuid.UUID) ([]CategoryRule, error) {
	type group struct{ a, b []string }
	groups := make(map[string]*group)

	crows, err := r.conn(ctx).Query(ctx, `
		SELECT category, grp, code FROM comorbidity_candidate
		WHERE ruleset_id = $1 ORDER BY category, grp, code`, id)
	if err != nil {
		return nil, err
	}
	for crows.Next() {
		var category, grp, code string
		if err := crows.Scan(&category, &grp, &code); err != nil {
			crows.Close()
			return nil, err
		}
		g, ok := groups[category]
		if !ok {
			g = &group{}
			groups[category] = g
		}
		if grp == "b" {
			g.b = append(g.b, code)
		} else {
			g.a = append(g.a, code)
		}
	}
	crows.Close()
	if err := crows.Err(); err != nil {
		return nil, err
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT name, description, weight, match_kind, overridden_by
		FROM comorbidity_category WHERE ruleset_id = $1 ORDER BY position`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []CategoryRule
	for rows.Next() {
		var (
			rule CategoryRule
			kind string
		)
		if err := rows.Scan(&rule.Name, &rule.Description, &rule.Weight, &kind, &rule.OverriddenBy); err != nil {
			return nil, err
		}
		g := groups[rule.Name]
		if g == nil {
			g = &group{}
		}
		switch MatchKind(kind) {
		case KindBoth:
			rule.Match = Both{GroupA: g.a, GroupB: g.b}
		default:
			rule.Match = AnyOf{Codes: g.a}
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

func (r *ruleSetRepoPG) Catalog(ctx context.Context) ([]RuleSetInfo, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, scheme, version, year FROM comorbidity_ruleset ORDER BY scheme, version, year`)
	if err != nil {
		return nil, fmt.Errorf("query catalog: %w", err)
	}
	type entry struct {
		id              uuid.UUID
		scheme, version string
		year            int
	}
	var entries []entry
	for rows.Next() {
		var e entry
		if err := rows.Scan(&e.id, &e.scheme, &e.version, &e.year); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan catalog: %w", err)
		}
		entries = append(entries, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate catalog: %w", err)
	}

	infos := make([]RuleSetInfo, 0, len(entries))
	live := make(map[uuid.UUID]struct{}, len(entries))
	for _, e := range entries {
		rs, err := r.load(ctx, e.id, e.scheme, e.version, e.year)
		if err != nil {
			return nil, err
		}
		live[e.id] = struct{}{}
		infos = append(infos, rs.Info())
	}
	r.evictExcept(live)
	return infos, nil
}

// evictExcept drops cached rule sets whose rows no longer exist.
func (r *ruleSetRepoPG) evictExcept(live map[uuid.UUID]struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id := range r.cache {
		if _, ok := live[id]; !ok {
			delete(r.cache, id)
		}
	}
}

func (r *ruleSetRepoPG) Import(ctx context.Context, rs *RuleSet) error {
	err := db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		tx := db.TxFromContext(ctx)

		if _, err := tx.Exec(ctx, `
			DELETE FROM comorbidity_ruleset WHERE scheme = $1 AND version = $2 AND year = $3`,
			rs.Scheme, rs.Version, rs.Year); err != nil {
			return fmt.Errorf("delete previous rule set: %w", err)
		}

		id := uuid.New()
		if _, err := tx.Exec(ctx, `
			INSERT INTO comorbidity_ruleset (id, scheme, version, year) VALUES ($1, $2, $3, $4)`,
			id, rs.Scheme, rs.Version, rs.Year); err != nil {
			return fmt.Errorf("insert rule set: %w", err)
		}

		var candidates [][]any
		for i, c := range rs.categories {
			overriddenBy := c.OverriddenBy
			if overriddenBy == nil {
				overriddenBy = []string{}
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO comorbidity_category (ruleset_id, position, name, description, weight, match_kind, overridden_by)
				VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				id, i, c.Name, c.Description, c.Weight, string(c.Match.Kind()), overriddenBy); err != nil {
				return fmt.Errorf("insert category %q: %w", c.Name, err)
			}
			switch m := c.Match.(type) {
			case AnyOf:
				for _, code := range m.Codes {
					candidates = append(candidates, []any{id, c.Name, "a", code})
				}
			case Both:
				for _, code := range m.GroupA {
					candidates = append(candidates, []any{id, c.Name, "a", code})
				}
				for _, code := range m.GroupB {
					candidates = append(candidates, []any{id, c.Name, "b", code})
				}
			}
		}

		if _, err := tx.CopyFrom(ctx,
			pgx.Identifier{"comorbidity_candidate"},
			[]string{"ruleset_id", "category", "grp", "code"},
			pgx.CopyFromRows(candidates),
		); err != nil {
			return fmt.Errorf("copy candidates: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("import %s: %w", rs.Key(), err)
	}

	r.mu.Lock()
	r.cache = make(map[uuid.UUID]*RuleSet)
	r.mu.Unlock()
	return nil
}

package comorbidity

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/comorbidity/internal/platform/db"
)

func newTestRepoPG(t *testing.T) (RuleSetStore, string) {
	t.Helper()
	pool, scheme := newTestPool(t)
	return NewRuleSetRepoPG(pool), scheme
}

// newTestPool connects to COMORBIDITY_TEST_DATABASE_URL, applies the
// migrations and returns the pool plus a scheme name unique to the test.
func newTestPool(t *testing.T) (*pgxpool.Pool, string) {
	t.Helper()
	url := os.Getenv("COMORBIDITY_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("COMORBIDITY_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	pool, err := db.NewPool(ctx, url, "public", 4, 1)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	m, err := db.NewMigrator(pool, "public")
	require.NoError(t, err)
	_, err = m.Up(ctx)
	require.NoError(t, err)

	scheme := "pgtest" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DELETE FROM comorbidity_ruleset WHERE scheme = $1`, scheme)
	})
	return pool, scheme
}

func TestRuleSetRepoPG_ImportAndScore(t *testing.T) {
	repo, scheme := newTestRepoPG(t)
	ctx := context.Background()

	for _, year := range []int{2020, 2024} {
		rs, err := NewRuleSet(scheme, "test", year, sampleRules())
		require.NoError(t, err)
		require.NoError(t, repo.Import(ctx, rs))
	}

	rs, err := repo.RuleSet(ctx, strings.ToUpper(scheme), "TEST", 2022)
	require.NoError(t, err)
	assert.Equal(t, 2020, rs.Year)
	assert.Equal(t, len(sampleRules()), rs.Len())

	liver, ok := rs.Category("liver_severe")
	require.True(t, ok)
	assert.Equal(t, KindBoth, liver.Match.Kind())

	res, err := Evaluate(rs, []string{"I98.2", "K74.4", "B18.2"}, MatchPrefix)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Score)
	assert.Equal(t, []string{"liver_severe"}, res.Categories)
}

func TestRuleSetRepoPG_Errors(t *testing.T) {
	repo, scheme := newTestRepoPG(t)
	ctx := context.Background()

	rs, err := NewRuleSet(scheme, "test", 2024, sampleRules())
	require.NoError(t, err)
	require.NoError(t, repo.Import(ctx, rs))

	tests := []struct {
		name    string
		scheme  string
		version string
		year    int
		want    error
	}{
		{"unknown scheme", scheme + "x", "test", 2024, ErrUnknownScheme},
		{"unknown version", scheme, "icd9", 2024, ErrUnknownVersion},
		{"year too early", scheme, "test", 2000, ErrUnknownYear},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := repo.RuleSet(ctx, tt.scheme, tt.version, tt.year)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestRuleSetRepoPG_ImportReplaces(t *testing.T) {
	repo, scheme := newTestRepoPG(t)
	ctx := context.Background()

	rs, err := NewRuleSet(scheme, "test", 2024, sampleRules())
	require.NoError(t, err)
	require.NoError(t, repo.Import(ctx, rs))

	// Warm the cache before replacing.
	_, err = repo.RuleSet(ctx, scheme, "test", 2024)
	require.NoError(t, err)

	smaller, err := NewRuleSet(scheme, "test", 2024, sampleRules()[:1])
	require.NoError(t, err)
	require.NoError(t, repo.Import(ctx, smaller))

	got, err := repo.RuleSet(ctx, scheme, "test", 2024)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Len())

	infos, err := repo.Catalog(ctx)
	require.NoError(t, err)
	var mine []RuleSetInfo
	for _, info := range infos {
		if info.Scheme == scheme {
			mine = append(mine, info)
		}
	}
	require.Len(t, mine, 1)
	assert.Equal(t, 1, mine[0].Categories)
	assert.Equal(t, 1, mine[0].MaxScore)
}

func TestRuleSetRepoPG_ImportFromAnotherStore(t *testing.T) {
	pool, scheme := newTestPool(t)
	ctx := context.Background()
	server := NewRuleSetRepoPG(pool)
	cli := NewRuleSetRepoPG(pool)

	rs, err := NewRuleSet(scheme, "test", 2024, sampleRules())
	require.NoError(t, err)
	require.NoError(t, cli.Import(ctx, rs))

	got, err := server.RuleSet(ctx, scheme, "test", 2024)
	require.NoError(t, err)
	require.Equal(t, len(sampleRules()), got.Len())

	smaller, err := NewRuleSet(scheme, "test", 2024, sampleRules()[:2])
	require.NoError(t, err)
	require.NoError(t, cli.Import(ctx, smaller))

	got, err = server.RuleSet(ctx, scheme, "test", 2024)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Len(), "store with a warm cache must see the replaced table")
}

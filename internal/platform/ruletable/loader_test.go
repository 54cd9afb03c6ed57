package ruletable

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/comorbidity/internal/domain/comorbidity"
)

const minimalTable = `
scheme: Charlson
version: ICD10GM
year: 2024
categories:
  - name: myocardial_infarction
    weight: 1
    codes: [I21, I22]
  - name: liver_mild
    weight: 1
    codes: [K70.1]
    overridden_by: [liver_severe]
  - name: liver_severe
    weight: 3
    both:
      group_a: [I85]
      group_b: [K70]
`

func TestParse(t *testing.T) {
	doc, rs, err := Parse([]byte(minimalTable))
	require.NoError(t, err)

	assert.Equal(t, "Charlson", doc.Scheme)
	assert.Equal(t, "charlson", rs.Scheme)
	assert.Equal(t, "icd10gm", rs.Version)
	assert.Equal(t, 2024, rs.Year)
	assert.Equal(t, 3, rs.Len())
	assert.Equal(t, 4, rs.MaxScore())

	severe, ok := rs.Category("liver_severe")
	require.True(t, ok)
	assert.IsType(t, comorbidity.Both{}, severe.Match)
}

func TestParse_JSON(t *testing.T) {
	data := `{"scheme":"charlson","version":"v1","year":"2019","categories":[{"name":"a","weight":2,"codes":["x1"]}]}`
	_, rs, err := Parse([]byte(data))
	require.NoError(t, err)
	assert.Equal(t, 2019, rs.Year)
	assert.Equal(t, []string{"X1"}, rs.Categories()[0].Match.(comorbidity.AnyOf).Codes)
}

func TestParse_SchemaErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty", ``},
		{"missing year", `{scheme: s, version: v, categories: [{name: a, weight: 1, codes: [X]}]}`},
		{"no categories", `{scheme: s, version: v, year: 2020, categories: []}`},
		{"bad year string", `{scheme: s, version: v, year: "20x0", categories: [{name: a, weight: 1, codes: [X]}]}`},
		{"bad name", `{scheme: s, version: v, year: 2020, categories: [{name: Liver Disease, weight: 1, codes: [X]}]}`},
		{"negative weight", `{scheme: s, version: v, year: 2020, categories: [{name: a, weight: -1, codes: [X]}]}`},
		{"codes and both", `{scheme: s, version: v, year: 2020, categories: [{name: a, weight: 1, codes: [X], both: {group_a: [Y], group_b: [Z]}}]}`},
		{"neither codes nor both", `{scheme: s, version: v, year: 2020, categories: [{name: a, weight: 1}]}`},
		{"both missing group", `{scheme: s, version: v, year: 2020, categories: [{name: a, weight: 1, both: {group_a: [Y]}}]}`},
		{"unknown field", `{scheme: s, version: v, year: 2020, extra: 1, categories: [{name: a, weight: 1, codes: [X]}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Parse([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestParse_RuleSetErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{
			"dangling override",
			`{scheme: s, version: v, year: 2020, categories: [{name: a, weight: 1, codes: [X], overridden_by: [b]}]}`,
			"nonexistent overriding category",
		},
		{
			"cycle",
			`{scheme: s, version: v, year: 2020, categories: [
				{name: a, weight: 1, codes: [X], overridden_by: [b]},
				{name: b, weight: 2, codes: [Y], overridden_by: [a]}]}`,
			"override cycle",
		},
		{
			"duplicate name",
			`{scheme: s, version: v, year: 2020, categories: [{name: a, weight: 1, codes: [X]}, {name: a, weight: 1, codes: [Y]}]}`,
			"duplicate category name",
		},
		{
			"overlapping groups",
			`{scheme: s, version: v, year: 2020, categories: [{name: a, weight: 1, both: {group_a: [X, Y], group_b: [y]}}]}`,
			"appears in both groups",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Parse([]byte(tt.data))
			require.Error(t, err)
			assert.ErrorIs(t, err, comorbidity.ErrInvalidRuleSet)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadFS(t *testing.T) {
	fsys := fstest.MapFS{
		"charlson/icd10gm/2020.yaml": {Data: []byte(`{scheme: charlson, version: icd10gm, year: 2020, categories: [{name: a, weight: 1, codes: [X]}]}`)},
		"charlson/icd10gm/2024.yml":  {Data: []byte(minimalTable)},
		"charlson/README.md":         {Data: []byte("not a table")},
	}
	reg, err := LoadFS(fsys)
	require.NoError(t, err)
	assert.Equal(t, 2, reg.Len())
}

func TestLoadFS_Errors(t *testing.T) {
	t.Run("duplicate key", func(t *testing.T) {
		fsys := fstest.MapFS{
			"a.yaml": {Data: []byte(minimalTable)},
			"b.yaml": {Data: []byte(minimalTable)},
		}
		_, err := LoadFS(fsys)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate rule table charlson/icd10gm/2024")
	})

	t.Run("invalid file names path", func(t *testing.T) {
		fsys := fstest.MapFS{"broken.yaml": {Data: []byte(`{scheme: s}`)}}
		_, err := LoadFS(fsys)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "broken.yaml")
	})

	t.Run("empty", func(t *testing.T) {
		_, err := LoadFS(fstest.MapFS{"notes.txt": {Data: []byte("x")}})
		assert.EqualError(t, err, "no rule tables found")
	})
}

func TestLoadDir_Missing(t *testing.T) {
	_, err := LoadDir(t.TempDir() + "/nope")
	assert.Error(t, err)
}

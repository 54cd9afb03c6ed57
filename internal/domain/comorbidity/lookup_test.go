package comorbidity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClosestYear(t *testing.T) {
	available := []int{2018, 2024, 2020}

	tests := []struct {
		year  int
		want  int
		found bool
	}{
		{2024, 2024, true},
		{2021, 2020, true},
		{2019, 2018, true},
		{2099, 2024, true},
		{2017, 0, false},
	}
	for _, tt := range tests {
		got, ok := ClosestYear(available, tt.year)
		assert.Equal(t, tt.found, ok, "year %d", tt.year)
		assert.Equal(t, tt.want, got, "year %d", tt.year)
	}

	_, ok := ClosestYear(nil, 2024)
	assert.False(t, ok)
}

func TestSortInfos(t *testing.T) {
	infos := []RuleSetInfo{
		{Scheme: "charlson", Version: "icd10gmquan", Year: 2024},
		{Scheme: "charlson", Version: "icd10gm", Year: 2024},
		{Scheme: "charlson", Version: "icd10gm", Year: 2020},
		{Scheme: "another", Version: "x", Year: 2030},
	}
	SortInfos(infos)
	assert.Equal(t, "another", infos[0].Scheme)
	assert.Equal(t, 2020, infos[1].Year)
	assert.Equal(t, "icd10gm", infos[2].Version)
	assert.Equal(t, "icd10gmquan", infos[3].Version)
}

package comorbidity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/comorbidity/internal/platform/fhir"
)

func TestToRiskAssessment(t *testing.T) {
	calc := NewCalculator(newMockProvider(sampleRuleSet(t)))
	a, err := calc.AssessWithExplanation(context.Background(), Request{
		Codes:   []string{"C50.9", "C79.5", "I21.4"},
		Version: "test",
	})
	require.NoError(t, err)

	now := time.Date(2024, 3, 9, 8, 30, 0, 0, time.FixedZone("CET", 3600))
	ra := a.ToRiskAssessment("Patient/p-1", now)

	assert.Equal(t, "RiskAssessment", ra.ResourceType)
	assert.NotEmpty(t, ra.ID)
	assert.Equal(t, fhir.RiskAssessmentFinal, ra.Status)
	assert.Equal(t, "2024-03-09T07:30:00Z", ra.OccurrenceDateTime)
	require.NotNil(t, ra.Subject)
	assert.Equal(t, "Patient/p-1", ra.Subject.Reference)

	require.Len(t, ra.Extension, 1)
	assert.Equal(t, scoreExtension, ra.Extension[0].URL)
	require.NotNil(t, ra.Extension[0].ValueInteger)
	assert.Equal(t, 7, *ra.Extension[0].ValueInteger)

	require.NotNil(t, ra.Method)
	assert.Equal(t, "charlson", ra.Method.Coding[0].Code)
	assert.Equal(t, "test/2024", ra.Method.Coding[0].Version)

	require.Len(t, ra.Prediction, 2)
	names := map[string]float64{}
	for _, p := range ra.Prediction {
		require.NotNil(t, p.Outcome)
		require.NotNil(t, p.RelativeRisk)
		names[p.Outcome.Coding[0].Code] = *p.RelativeRisk
	}
	assert.Equal(t, map[string]float64{"myocardial_infarction": 1, "cancer_metastatic": 6}, names)

	require.Len(t, ra.Note, 1)
	assert.Equal(t, "cancer not counted: superseded by cancer_metastatic", ra.Note[0].Text)
}

func TestToRiskAssessment_NoMatches(t *testing.T) {
	calc := NewCalculator(newMockProvider(sampleRuleSet(t)))
	a, err := calc.AssessWithExplanation(context.Background(), Request{Codes: "Z00.0", Version: "test"})
	require.NoError(t, err)

	ra := a.ToRiskAssessment("", time.Now())
	assert.Nil(t, ra.Subject)
	assert.Empty(t, ra.Prediction)
	assert.Empty(t, ra.Note)
	assert.Equal(t, 0, *ra.Extension[0].ValueInteger)
}

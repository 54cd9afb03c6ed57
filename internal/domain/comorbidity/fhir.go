package comorbidity

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/comorbidity/internal/platform/fhir"
)

const (
	schemeSystem   = "urn:comorbidity:scheme"
	categorySystem = "urn:comorbidity:category"
	scoreExtension = "urn:comorbidity:extension:score"
)

// ToRiskAssessment renders the assessment as a FHIR R4 RiskAssessment. The
// total score is carried in an extension. Each counted category becomes a
// prediction whose relativeRisk is its weight. subject is an optional
// "Type/id" reference.
func (a ExplainedAssessment) ToRiskAssessment(subject string, now time.Time) *fhir.RiskAssessment {
	score := a.Score
	ra := &fhir.RiskAssessment{
		ResourceType: "RiskAssessment",
		ID:           uuid.New().String(),
		Status:       fhir.RiskAssessmentFinal,
		Extension: []fhir.Extension{
			{URL: scoreExtension, ValueInteger: &score},
		},
		Method: &fhir.CodeableConcept{
			Coding: []fhir.Coding{{
				System:  schemeSystem,
				Version: fmt.Sprintf("%s/%d", a.Version, a.Year),
				Code:    a.Scheme,
			}},
			Text: fmt.Sprintf("%s index (%s, %d)", a.Scheme, a.Version, a.Year),
		},
		OccurrenceDateTime: now.UTC().Format(time.RFC3339),
	}
	if subject != "" {
		ra.Subject = &fhir.Reference{Reference: subject}
	}

	for _, m := range a.Triggered {
		weight := float64(m.Weight)
		ra.Prediction = append(ra.Prediction, fhir.RiskAssessmentPrediction{
			Outcome: &fhir.CodeableConcept{
				Coding: []fhir.Coding{{System: categorySystem, Code: m.Name}},
			},
			RelativeRisk: &weight,
			Rationale:    strings.Join(m.Codes, ", "),
		})
	}
	for _, s := range a.Suppressed {
		ra.Note = append(ra.Note, fhir.Annotation{
			Text: fmt.Sprintf("%s not counted: superseded by %s", s.Name, strings.Join(s.By, ", ")),
		})
	}
	return ra
}


package fhir

// RiskAssessment is the subset of the FHIR R4 RiskAssessment resource used to
// report index scores.
type RiskAssessment struct {
	ResourceType       string                     `json:"resourceType"`
	ID                 string                     `json:"id"`
	Meta               *Meta                      `json:"meta,omitempty"`
	Extension          []Extension                `json:"extension,omitempty"`
	Status             string                     `json:"status"`
	Method             *CodeableConcept           `json:"method,omitempty"`
	Code               *CodeableConcept           `json:"code,omitempty"`
	Subject            *Reference                 `json:"subject,omitempty"`
	OccurrenceDateTime string                     `json:"occurrenceDateTime,omitempty"`
	Basis              []Reference                `json:"basis,omitempty"`
	Prediction         []RiskAssessmentPrediction `json:"prediction,omitempty"`
	Note               []Annotation               `json:"note,omitempty"`
}

// RiskAssessmentPrediction is one outcome entry of a RiskAssessment.
type RiskAssessmentPrediction struct {
	Outcome      *CodeableConcept `json:"outcome,omitempty"`
	RelativeRisk *float64         `json:"relativeRisk,omitempty"`
	Rationale    string           `json:"rationale,omitempty"`
}

// RiskAssessment status codes.
const (
	RiskAssessmentFinal       = "final"
	RiskAssessmentPreliminary = "preliminary"
)

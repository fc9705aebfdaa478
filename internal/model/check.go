package model

import "time"

// CheckStatus is the verdict of one compliance check.
type CheckStatus string

const (
	StatusCompliant     CheckStatus = "compliant"
	StatusNonCompliant  CheckStatus = "non_compliant"
	StatusUnclear       CheckStatus = "unclear"
	StatusNotApplicable CheckStatus = "not_applicable"
)

// Valid reports whether s is a known check status.
func (s CheckStatus) Valid() bool {
	switch s {
	case StatusCompliant, StatusNonCompliant, StatusUnclear, StatusNotApplicable:
		return true
	}
	return false
}

// RiskLevel grades the exposure a check outcome represents.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Rank orders risk levels: high > medium > low. Unknown levels rank 0.
func (r RiskLevel) Rank() int {
	switch r {
	case RiskHigh:
		return 3
	case RiskMedium:
		return 2
	case RiskLow:
		return 1
	}
	return 0
}

// Valid reports whether r is a known risk level.
func (r RiskLevel) Valid() bool { return r.Rank() > 0 }

// OverallStatus summarizes a whole compliance report.
type OverallStatus string

const (
	OverallCompliant         OverallStatus = "compliant"
	OverallPartialCompliance OverallStatus = "partial_compliance"
	OverallNonCompliant      OverallStatus = "non_compliant"
)

// CheckOutcome is the result of one compliance check. Degraded marks a
// synthetic outcome produced because the check itself failed.
type CheckOutcome struct {
	CheckName       string      `json:"check_name"`
	Status          CheckStatus `json:"status"`
	Score           float64     `json:"score"`
	Findings        []string    `json:"findings"`
	Recommendations []string    `json:"recommendations"`
	RiskLevel       RiskLevel   `json:"risk_level"`
	Evidence        []string    `json:"evidence"`
	Degraded        bool        `json:"degraded,omitempty"`
}

// Clone returns a deep copy of the outcome.
func (o CheckOutcome) Clone() CheckOutcome {
	out := o
	out.Findings = append([]string(nil), o.Findings...)
	out.Recommendations = append([]string(nil), o.Recommendations...)
	out.Evidence = append([]string(nil), o.Evidence...)
	return out
}

// AggregateReport is the scored result of a parallel check run.
type AggregateReport struct {
	RunID           string         `json:"run_id"`
	OverallScore    float64        `json:"overall_score"`
	OverallStatus   OverallStatus  `json:"overall_status"`
	Outcomes        []CheckOutcome `json:"outcomes"`
	CriticalIssues  []string       `json:"critical_issues"`
	Recommendations []string       `json:"recommendations"`
	NextSteps       []string       `json:"next_steps"`
	GeneratedAt     time.Time      `json:"generated_at"`
}

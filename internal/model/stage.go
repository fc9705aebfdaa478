package model

import (
	"fmt"
	"strings"
	"time"
)

// StageName identifies one step of the IRAC sequence.
type StageName string

const (
	StageIssue       StageName = "issue"
	StageRule        StageName = "rule"
	StageApplication StageName = "application"
	StageConclusion  StageName = "conclusion"
)

// IRACStages lists the stages in execution order.
var IRACStages = []StageName{StageIssue, StageRule, StageApplication, StageConclusion}

// Severity grades an identified legal issue.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return true
	}
	return false
}

// Strength grades how well a rule applies to the facts.
type Strength string

const (
	StrengthWeak     Strength = "weak"
	StrengthModerate Strength = "moderate"
	StrengthStrong   Strength = "strong"
)

// Valid reports whether s is a known strength.
func (s Strength) Valid() bool {
	switch s {
	case StrengthWeak, StrengthModerate, StrengthStrong:
		return true
	}
	return false
}

// Issue is a single legal question raised by the document.
type Issue struct {
	ID          string   `json:"id"`
	Description string   `json:"description"`
	Severity    Severity `json:"severity"`
	Category    string   `json:"category,omitempty"`
}

// IssueAnalysis is the validated output of the issue stage.
type IssueAnalysis struct {
	Issues []Issue `json:"issues"`
}

// Validate checks the issue stage shape.
func (a *IssueAnalysis) Validate() error {
	var errs []string
	if len(a.Issues) == 0 {
		errs = append(errs, "issues: at least one issue is required")
	}
	seen := make(map[string]bool, len(a.Issues))
	for i, iss := range a.Issues {
		if strings.TrimSpace(iss.ID) == "" {
			errs = append(errs, fmt.Sprintf("issues[%d].id: required", i))
		} else if seen[iss.ID] {
			errs = append(errs, fmt.Sprintf("issues[%d].id: duplicate %q", i, iss.ID))
		}
		seen[iss.ID] = true
		if strings.TrimSpace(iss.Description) == "" {
			errs = append(errs, fmt.Sprintf("issues[%d].description: required", i))
		}
		if !iss.Severity.Valid() {
			errs = append(errs, fmt.Sprintf("issues[%d].severity: invalid value %q", i, iss.Severity))
		}
	}
	return joinViolations(errs)
}

// IDs returns the issue ids in order.
func (a *IssueAnalysis) IDs() []string {
	ids := make([]string, len(a.Issues))
	for i, iss := range a.Issues {
		ids[i] = iss.ID
	}
	return ids
}

// Rule is a legal rule governing one issue.
type Rule struct {
	IssueID   string `json:"issue_id"`
	Source    string `json:"source"`
	Citation  string `json:"citation,omitempty"`
	Statement string `json:"statement"`
}

// RuleAnalysis is the validated output of the rule stage.
type RuleAnalysis struct {
	Rules []Rule `json:"rules"`
}

// Validate checks the rule stage shape.
func (a *RuleAnalysis) Validate() error {
	var errs []string
	if len(a.Rules) == 0 {
		errs = append(errs, "rules: at least one rule is required")
	}
	for i, r := range a.Rules {
		if strings.TrimSpace(r.IssueID) == "" {
			errs = append(errs, fmt.Sprintf("rules[%d].issue_id: required", i))
		}
		if strings.TrimSpace(r.Source) == "" {
			errs = append(errs, fmt.Sprintf("rules[%d].source: required", i))
		}
		if strings.TrimSpace(r.Statement) == "" {
			errs = append(errs, fmt.Sprintf("rules[%d].statement: required", i))
		}
	}
	return joinViolations(errs)
}

// Application applies the rules to the facts of one issue.
type Application struct {
	IssueID  string   `json:"issue_id"`
	Analysis string   `json:"analysis"`
	Strength Strength `json:"strength"`
}

// ApplicationAnalysis is the validated output of the application stage.
type ApplicationAnalysis struct {
	Applications []Application `json:"applications"`
}

// Validate checks the application stage shape.
func (a *ApplicationAnalysis) Validate() error {
	var errs []string
	if len(a.Applications) == 0 {
		errs = append(errs, "applications: at least one application is required")
	}
	for i, app := range a.Applications {
		if strings.TrimSpace(app.IssueID) == "" {
			errs = append(errs, fmt.Sprintf("applications[%d].issue_id: required", i))
		}
		if strings.TrimSpace(app.Analysis) == "" {
			errs = append(errs, fmt.Sprintf("applications[%d].analysis: required", i))
		}
		if !app.Strength.Valid() {
			errs = append(errs, fmt.Sprintf("applications[%d].strength: invalid value %q", i, app.Strength))
		}
	}
	return joinViolations(errs)
}

// Conclusion is the validated output of the final stage.
type Conclusion struct {
	Summary          string   `json:"summary"`
	Outcome          string   `json:"outcome"`
	Confidence       float64  `json:"confidence"`
	ReferencedIssues []string `json:"referenced_issues"`
	Recommendations  []string `json:"recommendations,omitempty"`
}

// Validate checks the conclusion stage shape.
func (c *Conclusion) Validate() error {
	var errs []string
	if strings.TrimSpace(c.Summary) == "" {
		errs = append(errs, "summary: required")
	}
	if strings.TrimSpace(c.Outcome) == "" {
		errs = append(errs, "outcome: required")
	}
	if c.Confidence < 0 || c.Confidence > 1 {
		errs = append(errs, fmt.Sprintf("confidence: %v outside [0,1]", c.Confidence))
	}
	if len(c.ReferencedIssues) == 0 {
		errs = append(errs, "referenced_issues: at least one issue reference is required")
	}
	return joinViolations(errs)
}

// StageOutput is one validated stage record owned by a single run.
type StageOutput struct {
	RunID       string    `json:"run_id"`
	Stage       StageName `json:"stage"`
	Sequence    int       `json:"sequence"`
	Data        any       `json:"data"`
	Raw         string    `json:"-"`
	CompletedAt time.Time `json:"completed_at"`
}

// SequentialResult is a complete IRAC opinion. It is only assembled once all
// four stages have validated output for the same run.
type SequentialResult struct {
	RunID        string      `json:"run_id"`
	Issues       StageOutput `json:"issues"`
	Rules        StageOutput `json:"rules"`
	Application  StageOutput `json:"application"`
	Conclusion   StageOutput `json:"conclusion"`
	Jurisdiction string      `json:"jurisdiction"`
	DocumentType string      `json:"document_type"`
	Warnings     []string    `json:"warnings,omitempty"`
	StartedAt    time.Time   `json:"started_at"`
	CompletedAt  time.Time   `json:"completed_at"`
	DurationMs   int64       `json:"duration_ms"`
}

// ViolationError lists the schema violations found in one record.
type ViolationError struct {
	Violations []string
}

func (e *ViolationError) Error() string {
	return "schema violation: " + strings.Join(e.Violations, "; ")
}

func joinViolations(errs []string) error {
	if len(errs) == 0 {
		return nil
	}
	return &ViolationError{Violations: errs}
}

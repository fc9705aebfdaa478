// Package scoring aggregates compliance check outcomes into a report.
//
// Every function here is deterministic: identical outcome sets yield
// identical scores, statuses and lists.
package scoring

import (
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/Virtual-Global-Trading-AG/lexpilot/internal/model"
)

const (
	// DefaultWeight applies to checks missing from the weight table. Known
	// weights are not renormalized when it is used, so the effective total
	// may drift slightly from 1.0.
	DefaultWeight = 0.1

	// DefaultMaxRecommendations caps the ranked recommendation list.
	DefaultMaxRecommendations = 10

	// nonCompliantLimit is the number of non_compliant outcomes tolerated
	// before the overall status becomes non_compliant.
	nonCompliantLimit = 2
)

// Weights maps check names to their share of the overall score.
type Weights map[string]float64

// DefaultWeights is the built-in table for the standard check catalog.
func DefaultWeights() Weights {
	return Weights{
		"data_protection":       0.25,
		"contractual_risk":      0.35,
		"regulatory_disclosure": 0.25,
		"consumer_protection":   0.15,
	}
}

// For returns the weight for name, or fallback when unknown.
func (w Weights) For(name string, fallback float64) float64 {
	if v, ok := w[name]; ok {
		return v
	}
	return fallback
}

// Sum returns the total of all configured weights.
func (w Weights) Sum() float64 {
	keys := make([]string, 0, len(w))
	for k := range w {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var total float64
	for _, k := range keys {
		total += w[k]
	}
	return total
}

// OverallScore is Σ score × weight. Unknown checks get defaultWeight and the
// known weights are left as configured.
func OverallScore(outcomes []model.CheckOutcome, weights Weights, defaultWeight float64) float64 {
	var total float64
	for _, o := range outcomes {
		total += o.Score * weights.For(o.CheckName, defaultWeight)
	}
	return total
}

// OverallStatus derives the report status from risk levels and
// non_compliant counts.
func OverallStatus(outcomes []model.CheckOutcome) model.OverallStatus {
	var nonCompliant int
	var highRisk bool
	for _, o := range outcomes {
		if o.RiskLevel == model.RiskHigh {
			highRisk = true
		}
		if o.Status == model.StatusNonCompliant {
			nonCompliant++
		}
	}

	switch {
	case highRisk || nonCompliant > nonCompliantLimit:
		return model.OverallNonCompliant
	case nonCompliant > 0:
		return model.OverallPartialCompliance
	default:
		return model.OverallCompliant
	}
}

// CriticalIssues collects findings from high-risk outcomes in outcome order.
// Repeats within one outcome collapse; repeats across checks are kept.
func CriticalIssues(outcomes []model.CheckOutcome) []string {
	out := []string{}
	for _, o := range outcomes {
		if o.RiskLevel != model.RiskHigh {
			continue
		}
		seen := make(map[string]bool, len(o.Findings))
		for _, f := range o.Findings {
			if seen[f] {
				continue
			}
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}

// RankRecommendations prefixes every recommendation with its check name,
// stable-sorts by risk level (high first) and keeps the first limit.
func RankRecommendations(outcomes []model.CheckOutcome, limit int) []string {
	type ranked struct {
		text string
		rank int
	}
	var all []ranked
	for _, o := range outcomes {
		for _, r := range o.Recommendations {
			all = append(all, ranked{
				text: fmt.Sprintf("%s: %s", o.CheckName, r),
				rank: o.RiskLevel.Rank(),
			})
		}
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].rank > all[j].rank
	})

	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	out := make([]string, len(all))
	for i, r := range all {
		out[i] = r.text
	}
	return out
}

var nextSteps = map[model.OverallStatus][]string{
	model.OverallNonCompliant: {
		"Stop execution or signature until the critical issues are resolved.",
		"Escalate the document to legal counsel for review.",
		"Remediate the high-risk findings and re-run the compliance checks.",
	},
	model.OverallPartialCompliance: {
		"Address the non-compliant checks before the next review cycle.",
		"Document accepted residual risks with an owner.",
	},
	model.OverallCompliant: {
		"No blocking issues found; proceed with the standard approval flow.",
		"Schedule a periodic re-check when the governing rules change.",
	},
}

// NextSteps returns the guidance for a status.
func NextSteps(status model.OverallStatus) []string {
	return slices.Clone(nextSteps[status])
}

// AggregationError reports an outcome set that cannot be scored.
type AggregationError struct {
	CheckName string
	Reason    string
}

func (e *AggregationError) Error() string {
	return fmt.Sprintf("scoring: inconsistent outcome %q: %s", e.CheckName, e.Reason)
}

// Options configures an Aggregator.
type Options struct {
	Weights            Weights
	DefaultWeight      float64
	MaxRecommendations int
	Now                func() time.Time
}

// Aggregator builds AggregateReports from check outcomes.
type Aggregator struct {
	opts Options
}

// NewAggregator fills unset options with defaults.
func NewAggregator(opts Options) *Aggregator {
	if opts.Weights == nil {
		opts.Weights = DefaultWeights()
	}
	if opts.DefaultWeight <= 0 {
		opts.DefaultWeight = DefaultWeight
	}
	if opts.MaxRecommendations <= 0 {
		opts.MaxRecommendations = DefaultMaxRecommendations
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Aggregator{opts: opts}
}

// Weight returns the weight used for a check name.
func (a *Aggregator) Weight(name string) float64 {
	return a.opts.Weights.For(name, a.opts.DefaultWeight)
}

// WithFallbackWeights returns an Aggregator that also knows the weights in
// extra. Configured weights win over extra for the same check name.
func (a *Aggregator) WithFallbackWeights(extra Weights) *Aggregator {
	merged := make(Weights, len(a.opts.Weights)+len(extra))
	for name, w := range extra {
		merged[name] = w
	}
	for name, w := range a.opts.Weights {
		merged[name] = w
	}
	opts := a.opts
	opts.Weights = merged
	return &Aggregator{opts: opts}
}

// Aggregate validates the outcomes and derives a report. The outcomes are
// copied; the report shares no slices with the caller.
func (a *Aggregator) Aggregate(runID string, outcomes []model.CheckOutcome) (model.AggregateReport, error) {
	copied := make([]model.CheckOutcome, len(outcomes))
	for i, o := range outcomes {
		if err := Consistent(o); err != nil {
			return model.AggregateReport{}, err
		}
		copied[i] = o.Clone()
	}

	status := OverallStatus(copied)
	return model.AggregateReport{
		RunID:           runID,
		OverallScore:    OverallScore(copied, a.opts.Weights, a.opts.DefaultWeight),
		OverallStatus:   status,
		Outcomes:        copied,
		CriticalIssues:  CriticalIssues(copied),
		Recommendations: RankRecommendations(copied, a.opts.MaxRecommendations),
		NextSteps:       NextSteps(status),
		GeneratedAt:     a.opts.Now().UTC(),
	}, nil
}

// Consistent rejects an outcome with a missing name, an out-of-range score
// or an unknown status or risk level.
func Consistent(o model.CheckOutcome) error {
	switch {
	case o.CheckName == "":
		return &AggregationError{Reason: "missing check name"}
	case o.Score < 0 || o.Score > 1:
		return &AggregationError{CheckName: o.CheckName, Reason: fmt.Sprintf("score %v outside [0,1]", o.Score)}
	case !o.Status.Valid():
		return &AggregationError{CheckName: o.CheckName, Reason: fmt.Sprintf("unknown status %q", o.Status)}
	case !o.RiskLevel.Valid():
		return &AggregationError{CheckName: o.CheckName, Reason: fmt.Sprintf("unknown risk level %q", o.RiskLevel)}
	}
	return nil
}

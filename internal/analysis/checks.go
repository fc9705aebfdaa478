package analysis

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Virtual-Global-Trading-AG/lexpilot/internal/events"
	"github.com/Virtual-Global-Trading-AG/lexpilot/internal/model"
	"github.com/Virtual-Global-Trading-AG/lexpilot/internal/scoring"
)

// maxCheckProgress caps per-check progress so 100 is reserved for the
// completed event.
const maxCheckProgress = 95

// CheckDefinition is one independent compliance check.
type CheckDefinition struct {
	Name   string
	Weight float64
	// Execute evaluates the check against its own copy of the input.
	Execute func(ctx context.Context, input model.AnalysisInput) (model.CheckOutcome, error)
}

// Degrade builds the synthetic outcome of a check that could not run.
// An unreachable check counts as a high-risk signal.
func Degrade(name string, err error) model.CheckOutcome {
	return model.CheckOutcome{
		CheckName:       name,
		Status:          model.StatusUnclear,
		Score:           0,
		Findings:        []string{fmt.Sprintf("check %s could not be completed: %v", name, err)},
		Recommendations: []string{"Re-run the " + name + " check or review it manually."},
		RiskLevel:       model.RiskHigh,
		Degraded:        true,
	}
}

// Parallel fans a set of checks out over one document and joins on all of
// them. No check's failure cancels another.
type Parallel struct {
	limit int
	now   func() time.Time
}

// NewParallel creates the engine. limit bounds concurrent checks; zero or
// less means unbounded.
func NewParallel(limit int) *Parallel {
	return &Parallel{limit: limit, now: time.Now}
}

// Run executes every check and returns exactly one outcome per check, in
// check order.
func (p *Parallel) Run(ctx context.Context, bus *events.Bus, runID string, input model.AnalysisInput, checks []CheckDefinition) []model.CheckOutcome {
	log := zap.L().With(zap.String("run_id", runID), zap.String("mode", string(model.RunModeParallel)))
	total := len(checks)
	outcomes := make([]model.CheckOutcome, total)
	started := p.now()

	bus.Publish(ctx, model.NewEvent(model.EventStarted, runID, "").
		WithProgress(0).
		WithPayload("mode", string(model.RunModeParallel)).
		WithPayload("checks", total))

	var completed atomic.Int32
	var degraded atomic.Int32

	// Goroutines always return nil so one failure never cancels the rest.
	g := new(errgroup.Group)
	if p.limit > 0 {
		g.SetLimit(p.limit)
	}
	for i, chk := range checks {
		g.Go(func() error {
			bus.Publish(ctx, model.NewEvent(model.EventStarted, runID, chk.Name))

			out, failure := p.runCheck(ctx, log, chk, input.Clone())
			outcomes[i] = out
			if failure != nil {
				degraded.Add(1)
				bus.Publish(ctx, model.NewEvent(model.EventFailed, runID, chk.Name).
					WithPayload("error_kind", string(KindOf(failure))).
					WithPayload("error", failure.Error()))
			}

			n := int(completed.Add(1))
			bus.Publish(ctx, model.NewEvent(model.EventProgress, runID, chk.Name).
				WithProgress(min(n*100/total, maxCheckProgress)).
				WithPayload("status", string(out.Status)).
				WithPayload("degraded", out.Degraded))
			return nil
		})
	}
	_ = g.Wait()

	bus.Publish(ctx, model.NewEvent(model.EventCompleted, runID, "").
		WithProgress(doneProgress).
		WithPayload("degraded", int(degraded.Load())))

	log.Info("analysis: checks complete",
		zap.Int("checks", total),
		zap.Int32("degraded", degraded.Load()),
		zap.Int64("duration_ms", p.now().Sub(started).Milliseconds()),
	)
	return outcomes
}

// runCheck executes one check. A non-nil error means the returned outcome
// is the degraded stand-in.
func (p *Parallel) runCheck(ctx context.Context, log *zap.Logger, chk CheckDefinition, input model.AnalysisInput) (out model.CheckOutcome, failure error) {
	start := p.now()
	defer func() {
		if r := recover(); r != nil {
			failure = &StageError{Stage: chk.Name, Kind: KindUnclassified, Err: eris.Errorf("panic: %v", r)}
			out = Degrade(chk.Name, failure)
		}
		if failure != nil {
			log.Warn("analysis: check failed",
				zap.String("check", chk.Name),
				zap.String("error_kind", string(KindOf(failure))),
				zap.Error(failure),
			)
		}
		log.Debug("analysis: check finished",
			zap.String("check", chk.Name),
			zap.String("status", string(out.Status)),
			zap.Bool("degraded", out.Degraded),
			zap.Int64("duration_ms", p.now().Sub(start).Milliseconds()),
		)
	}()

	if chk.Execute == nil {
		failure = &StageError{Stage: chk.Name, Kind: KindUnclassified, Err: eris.New("check has no executor")}
		return Degrade(chk.Name, failure), failure
	}

	res, err := chk.Execute(ctx, input)
	if err != nil {
		return Degrade(chk.Name, err), err
	}

	res = res.Clone()
	if res.CheckName == "" {
		res.CheckName = chk.Name
	}
	if err := scoring.Consistent(res); err != nil {
		failure = &StageError{Stage: chk.Name, Kind: KindSchema, Err: err}
		return Degrade(chk.Name, failure), failure
	}
	return res, nil
}

// checkResponse is the record a check's model reply must decode into.
type checkResponse struct {
	Status          model.CheckStatus `json:"status"`
	Score           float64           `json:"score"`
	RiskLevel       model.RiskLevel   `json:"risk_level"`
	Findings        []string          `json:"findings"`
	Recommendations []string          `json:"recommendations"`
	Evidence        []string          `json:"evidence"`
}

// Validate checks the reply shape.
func (c *checkResponse) Validate() error {
	var errs []string
	if !c.Status.Valid() {
		errs = append(errs, fmt.Sprintf("status: invalid value %q", c.Status))
	}
	if c.Score < 0 || c.Score > 1 {
		errs = append(errs, fmt.Sprintf("score: %v outside [0,1]", c.Score))
	}
	if !c.RiskLevel.Valid() {
		errs = append(errs, fmt.Sprintf("risk_level: invalid value %q", c.RiskLevel))
	}
	if c.Status == model.StatusNonCompliant && len(c.Findings) == 0 {
		errs = append(errs, "findings: a non_compliant check needs at least one finding")
	}
	if len(errs) > 0 {
		return &model.ViolationError{Violations: errs}
	}
	return nil
}

func (c checkResponse) outcome(name string) model.CheckOutcome {
	return model.CheckOutcome{
		CheckName:       name,
		Status:          c.Status,
		Score:           c.Score,
		Findings:        trimAll(c.Findings),
		Recommendations: trimAll(c.Recommendations),
		RiskLevel:       c.RiskLevel,
		Evidence:        trimAll(c.Evidence),
	}
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// WeightsOf collects the weights declared by a check set.
func WeightsOf(checks []CheckDefinition) scoring.Weights {
	w := make(scoring.Weights, len(checks))
	for _, c := range checks {
		if c.Weight > 0 {
			w[c.Name] = c.Weight
		}
	}
	return w
}

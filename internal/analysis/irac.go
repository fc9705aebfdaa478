package analysis

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/Virtual-Global-Trading-AG/lexpilot/internal/events"
	"github.com/Virtual-Global-Trading-AG/lexpilot/internal/model"
)

// Progress published as each IRAC stage starts, indexed by stage position.
var stageProgress = []int{20, 40, 60, 80}

const (
	crossValidatedProgress = 95
	doneProgress           = 100
	// plausibilityConfidence is the confidence at or above which a
	// high-severity issue draws a warning.
	plausibilityConfidence = 0.9
)

// Sequential runs the four IRAC stages in order. A stage starts only after
// every earlier stage produced a validated output; the first failure ends
// the run.
type Sequential struct {
	exec   *StageExecutor
	stages []StageDefinition
	now    func() time.Time
}

// NewSequential creates the engine. stages must be the issue, rule,
// application and conclusion definitions in that order.
func NewSequential(exec *StageExecutor, stages []StageDefinition) (*Sequential, error) {
	if len(stages) != len(model.IRACStages) {
		return nil, eris.Errorf("analysis: sequential engine needs %d stages, got %d", len(model.IRACStages), len(stages))
	}
	for i, def := range stages {
		if def.Name != string(model.IRACStages[i]) {
			return nil, eris.Errorf("analysis: stage %d must be %q, got %q", i, model.IRACStages[i], def.Name)
		}
	}
	return &Sequential{exec: exec, stages: stages, now: time.Now}, nil
}

// Run executes one sequential analysis. It returns either a complete result
// or a *PipelineError naming the failing stage, never both.
func (s *Sequential) Run(ctx context.Context, bus *events.Bus, runID string, input model.AnalysisInput) (*model.SequentialResult, error) {
	log := zap.L().With(zap.String("run_id", runID), zap.String("mode", string(model.RunModeSequential)))
	exec := s.exec.WithBus(bus)
	started := s.now()

	bus.Publish(ctx, model.NewEvent(model.EventStarted, runID, "").
		WithProgress(0).
		WithPayload("mode", string(model.RunModeSequential)))

	if err := input.Validate(); err != nil {
		return nil, s.fail(ctx, bus, log, runID, model.StageIssue,
			&StageError{Stage: string(model.StageIssue), Kind: KindInvalidInput, Err: err})
	}

	outputs := make([]model.StageOutput, 0, len(s.stages))
	for i, def := range s.stages {
		name := model.StageName(def.Name)
		bus.Publish(ctx, model.NewEvent(model.EventProgress, runID, def.Name).WithProgress(stageProgress[i]))

		view := newPromptView(input)
		prior, err := priorJSON(outputs)
		if err != nil {
			return nil, s.fail(ctx, bus, log, runID, name,
				&StageError{Stage: def.Name, Kind: KindUnclassified, Err: eris.Wrap(err, "analysis: encode prior outputs")})
		}
		view.Prior = prior

		rendered, err := render(def.Name, def.Template, view)
		if err != nil {
			return nil, s.fail(ctx, bus, log, runID, name, err)
		}

		out, err := exec.Run(ctx, runID, i+1, def, rendered)
		if err != nil {
			return nil, s.fail(ctx, bus, log, runID, name, err)
		}
		outputs = append(outputs, out)
	}

	warnings, err := crossValidate(outputs)
	if err != nil {
		return nil, s.fail(ctx, bus, log, runID, model.StageConclusion, err)
	}
	for _, w := range warnings {
		log.Warn("analysis: plausibility warning", zap.String("warning", w))
	}
	bus.Publish(ctx, model.NewEvent(model.EventProgress, runID, "cross_validation").
		WithProgress(crossValidatedProgress).
		WithPayload("warnings", len(warnings)))

	completed := s.now()
	result := &model.SequentialResult{
		RunID:        runID,
		Issues:       outputs[0],
		Rules:        outputs[1],
		Application:  outputs[2],
		Conclusion:   outputs[3],
		Jurisdiction: input.Jurisdiction,
		DocumentType: input.DocumentType,
		Warnings:     warnings,
		StartedAt:    started.UTC(),
		CompletedAt:  completed.UTC(),
		DurationMs:   completed.Sub(started).Milliseconds(),
	}

	log.Info("analysis: sequential run complete",
		zap.Int64("duration_ms", result.DurationMs),
		zap.Int("warnings", len(warnings)),
	)
	bus.Publish(ctx, model.NewEvent(model.EventCompleted, runID, "").WithProgress(doneProgress))
	return result, nil
}

func (s *Sequential) fail(ctx context.Context, bus *events.Bus, log *zap.Logger, runID string, stage model.StageName, err error) error {
	perr := &PipelineError{RunID: runID, Stage: stage, Err: err}
	log.Error("analysis: sequential run failed",
		zap.String("failed_stage", string(stage)),
		zap.String("error_kind", string(KindOf(err))),
		zap.Error(err),
	)
	bus.Publish(ctx, model.NewEvent(model.EventFailed, runID, "").
		WithPayload("failed_stage", string(stage)).
		WithPayload("error_kind", string(KindOf(err))).
		WithPayload("error", err.Error()))
	return perr
}

// crossValidate checks the four outputs together. A conclusion that does
// not reference every identified issue is a schema violation; the other
// findings are warnings only.
func crossValidate(outputs []model.StageOutput) ([]string, error) {
	issues, ok1 := outputs[0].Data.(model.IssueAnalysis)
	rules, ok2 := outputs[1].Data.(model.RuleAnalysis)
	apps, ok3 := outputs[2].Data.(model.ApplicationAnalysis)
	concl, ok4 := outputs[3].Data.(model.Conclusion)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return nil, &StageError{
			Stage: string(model.StageConclusion),
			Kind:  KindUnclassified,
			Err:   eris.New("analysis: stage outputs have unexpected types"),
		}
	}

	ids := issues.IDs()
	referenced := make(map[string]bool, len(concl.ReferencedIssues))
	for _, id := range concl.ReferencedIssues {
		referenced[id] = true
	}

	var missing []string
	for _, id := range ids {
		if !referenced[id] {
			missing = append(missing, fmt.Sprintf("referenced_issues: issue %q is not referenced", id))
		}
	}
	if len(missing) > 0 {
		return nil, &StageError{
			Stage: string(model.StageConclusion),
			Kind:  KindSchema,
			Err:   &model.ViolationError{Violations: missing},
		}
	}

	var warnings []string
	for _, r := range rules.Rules {
		if !slices.Contains(ids, r.IssueID) {
			warnings = append(warnings, fmt.Sprintf("rule %q refers to unknown issue %q", r.Source, r.IssueID))
		}
	}
	for _, a := range apps.Applications {
		if !slices.Contains(ids, a.IssueID) {
			warnings = append(warnings, fmt.Sprintf("application refers to unknown issue %q", a.IssueID))
		}
	}
	for _, id := range concl.ReferencedIssues {
		if !slices.Contains(ids, id) {
			warnings = append(warnings, fmt.Sprintf("conclusion refers to unknown issue %q", id))
		}
	}
	if concl.Confidence >= plausibilityConfidence {
		for _, iss := range issues.Issues {
			if iss.Severity == model.SeverityHigh {
				warnings = append(warnings, fmt.Sprintf(
					"confidence %.2f is implausibly high given high-severity issue %q", concl.Confidence, iss.ID))
			}
		}
	}
	return warnings, nil
}

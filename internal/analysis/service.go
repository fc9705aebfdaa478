package analysis

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/Virtual-Global-Trading-AG/lexpilot/internal/config"
	"github.com/Virtual-Global-Trading-AG/lexpilot/internal/events"
	"github.com/Virtual-Global-Trading-AG/lexpilot/internal/llm"
	"github.com/Virtual-Global-Trading-AG/lexpilot/internal/model"
	"github.com/Virtual-Global-Trading-AG/lexpilot/internal/scoring"
)

// ErrNoChecks is returned when a parallel run is requested without checks.
var ErrNoChecks = eris.New("analysis: no checks selected")

// RunRecorder keeps run bookkeeping. Recording failures never fail a run.
type RunRecorder interface {
	CreateRun(ctx context.Context, run model.Run) error
	FinishRun(ctx context.Context, id string, summary model.RunSummary) error
}

// Service is the caller API over both engines.
type Service struct {
	sequential *Sequential
	parallel   *Parallel
	aggregator *scoring.Aggregator
	catalog    []CheckDefinition

	bus   *events.Bus
	sink  events.EventAppender
	runs  RunRecorder
	newID func() string
	now   func() time.Time
}

// Deps are the collaborators of a Service. Bus, Sink and Runs are optional.
type Deps struct {
	Sequential *Sequential
	Parallel   *Parallel
	Aggregator *scoring.Aggregator
	Catalog    []CheckDefinition
	Bus        *events.Bus
	Sink       events.EventAppender
	Runs       RunRecorder
}

// NewService wires a Service from its collaborators.
func NewService(d Deps) *Service {
	bus := d.Bus
	if bus == nil {
		bus = events.NewBus()
	}
	agg := d.Aggregator
	if agg == nil {
		agg = scoring.NewAggregator(scoring.Options{})
	}
	return &Service{
		sequential: d.Sequential,
		parallel:   d.Parallel,
		aggregator: agg,
		catalog:    d.Catalog,
		bus:        bus,
		sink:       d.Sink,
		runs:       d.Runs,
		newID:      uuid.NewString,
		now:        time.Now,
	}
}

// Build assembles a Service from configuration around invoker.
func Build(cfg *config.Config, invoker llm.Invoker, bus *events.Bus, sink events.EventAppender, runs RunRecorder) (*Service, error) {
	exec := NewStageExecutor(invoker, bus)

	seq, err := NewSequential(exec, IRACStages(cfg.Analysis.StageTimeout()))
	if err != nil {
		return nil, err
	}

	specs := BuiltinChecks()
	if cfg.Analysis.ChecksFile != "" {
		specs, err = LoadCheckSpecs(cfg.Analysis.ChecksFile)
		if err != nil {
			return nil, err
		}
	}

	agg := scoring.NewAggregator(scoring.Options{
		Weights:            scoring.Weights(cfg.Analysis.Weights),
		DefaultWeight:      cfg.Analysis.DefaultWeight,
		MaxRecommendations: cfg.Analysis.MaxRecommendations,
	})

	return NewService(Deps{
		Sequential: seq,
		Parallel:   NewParallel(cfg.Analysis.MaxConcurrentChecks),
		Aggregator: agg,
		Catalog:    BuildChecks(exec, specs, cfg.Analysis.CheckTimeout()),
		Bus:        bus,
		Sink:       sink,
		Runs:       runs,
	}), nil
}

// Checks returns the catalog checks with the given names, or the whole
// catalog when names is empty.
func (s *Service) Checks(names ...string) ([]CheckDefinition, error) {
	if len(names) == 0 {
		return append([]CheckDefinition(nil), s.catalog...), nil
	}
	byName := make(map[string]CheckDefinition, len(s.catalog))
	for _, c := range s.catalog {
		byName[c.Name] = c
	}
	out := make([]CheckDefinition, 0, len(names))
	for _, n := range names {
		c, ok := byName[n]
		if !ok {
			return nil, &StageError{Stage: "input", Kind: KindInvalidInput, Err: eris.Errorf("unknown check %q", n)}
		}
		out = append(out, c)
	}
	return out, nil
}

// RunSequentialAnalysis runs the IRAC pipeline. The error, when non-nil, is
// a *PipelineError.
func (s *Service) RunSequentialAnalysis(ctx context.Context, input model.AnalysisInput, subs ...events.Subscriber) (*model.SequentialResult, error) {
	if s.sequential == nil {
		return nil, eris.New("analysis: sequential engine not configured")
	}
	runID := s.newID()
	bus := s.scopedBus(input, subs)

	s.recordStart(ctx, runID, model.RunModeSequential, input)
	res, err := s.sequential.Run(ctx, bus, runID, input)
	if err != nil {
		s.recordFinish(ctx, runID, model.RunSummary{Status: model.RunStatusFailed, Error: err.Error()})
		return nil, err
	}
	s.recordFinish(ctx, runID, model.RunSummary{Status: model.RunStatusComplete})
	return res, nil
}

// RunParallelChecks runs checks concurrently and aggregates them. Check
// failures never surface as an error; they are absorbed as degraded
// outcomes. The error is reserved for invalid input and inconsistent
// outcomes.
func (s *Service) RunParallelChecks(ctx context.Context, input model.AnalysisInput, checks []CheckDefinition, subs ...events.Subscriber) (*model.AggregateReport, error) {
	if err := input.Validate(); err != nil {
		return nil, &StageError{Stage: "input", Kind: KindInvalidInput, Err: err}
	}
	if len(checks) == 0 {
		return nil, &StageError{Stage: "input", Kind: KindInvalidInput, Err: ErrNoChecks}
	}

	runID := s.newID()
	bus := s.scopedBus(input, subs)
	log := zap.L().With(zap.String("run_id", runID))

	s.recordStart(ctx, runID, model.RunModeParallel, input)
	outcomes := s.parallel.Run(ctx, bus, runID, input, checks)

	report, err := s.aggregator.WithFallbackWeights(WeightsOf(checks)).Aggregate(runID, outcomes)
	if err != nil {
		log.Error("analysis: aggregation failed", zap.Error(err))
		s.recordFinish(ctx, runID, model.RunSummary{Status: model.RunStatusFailed, Error: err.Error()})
		return nil, err
	}

	degraded := 0
	for _, o := range report.Outcomes {
		if o.Degraded {
			degraded++
		}
	}
	log.Info("analysis: report aggregated",
		zap.Float64("overall_score", report.OverallScore),
		zap.String("overall_status", string(report.OverallStatus)),
		zap.Int("degraded", degraded),
	)
	s.recordFinish(ctx, runID, model.RunSummary{Status: model.RunStatusComplete, Degraded: degraded})
	return &report, nil
}

func (s *Service) scopedBus(input model.AnalysisInput, subs []events.Subscriber) *events.Bus {
	if s.sink != nil {
		subs = append(slices.Clone(subs), events.NewStoreSink(s.sink, input.UserID))
	}
	return s.bus.With(subs...)
}

func (s *Service) recordStart(ctx context.Context, runID string, mode model.RunMode, input model.AnalysisInput) {
	if s.runs == nil {
		return
	}
	now := s.now().UTC()
	err := s.runs.CreateRun(ctx, model.Run{
		ID:           runID,
		UserID:       input.UserID,
		Mode:         mode,
		DocumentType: input.DocumentType,
		Jurisdiction: input.Jurisdiction,
		Status:       model.RunStatusRunning,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		zap.L().Warn("analysis: record run start", zap.String("run_id", runID), zap.Error(err))
	}
}

func (s *Service) recordFinish(ctx context.Context, runID string, summary model.RunSummary) {
	if s.runs == nil {
		return
	}
	// Bookkeeping outlives a cancelled request context.
	if err := s.runs.FinishRun(context.WithoutCancel(ctx), runID, summary); err != nil {
		zap.L().Warn("analysis: record run finish", zap.String("run_id", runID), zap.Error(err))
	}
}

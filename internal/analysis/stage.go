package analysis

import (
	"context"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/Virtual-Global-Trading-AG/lexpilot/internal/events"
	"github.com/Virtual-Global-Trading-AG/lexpilot/internal/llm"
	"github.com/Virtual-Global-Trading-AG/lexpilot/internal/model"
	"github.com/Virtual-Global-Trading-AG/lexpilot/internal/structured"
)

// StageDefinition describes one model call: its instructions, how the user
// prompt is rendered, how long it may take and which record shape the reply
// must decode into.
type StageDefinition struct {
	Name      string
	System    string
	Template  *template.Template
	Deadline  time.Duration
	MaxTokens int
	Decode    structured.Decoder
}

// StageExecutor runs a single stage against the model invocation port.
type StageExecutor struct {
	invoker llm.Invoker
	bus     *events.Bus
	now     func() time.Time
}

// NewStageExecutor creates an executor publishing to bus. A nil bus
// publishes nowhere.
func NewStageExecutor(invoker llm.Invoker, bus *events.Bus) *StageExecutor {
	if bus == nil {
		bus = events.NewBus()
	}
	return &StageExecutor{invoker: invoker, bus: bus, now: time.Now}
}

// WithBus returns a copy of the executor publishing to bus.
func (e *StageExecutor) WithBus(bus *events.Bus) *StageExecutor {
	cp := *e
	cp.bus = bus
	return &cp
}

// Run executes one stage. It publishes exactly one started event and one
// completed or failed event, and returns a *StageError on every failure path.
func (e *StageExecutor) Run(ctx context.Context, runID string, seq int, def StageDefinition, rendered string) (model.StageOutput, error) {
	log := zap.L().With(zap.String("run_id", runID), zap.String("stage", def.Name))
	start := e.now()

	e.bus.Publish(ctx, model.NewEvent(model.EventStarted, runID, def.Name).
		WithPayload("sequence", seq))

	data, raw, err := e.Call(ctx, def, rendered)
	elapsed := e.now().Sub(start).Milliseconds()

	if err != nil {
		kind := KindOf(err)
		log.Warn("analysis: stage failed",
			zap.String("error_kind", string(kind)),
			zap.Int64("duration_ms", elapsed),
			zap.Error(err),
		)
		e.bus.Publish(ctx, model.NewEvent(model.EventFailed, runID, def.Name).
			WithPayload("error_kind", string(kind)).
			WithPayload("error", err.Error()))
		return model.StageOutput{}, err
	}

	out := model.StageOutput{
		RunID:       runID,
		Stage:       model.StageName(def.Name),
		Sequence:    seq,
		Data:        data,
		Raw:         raw,
		CompletedAt: e.now().UTC(),
	}

	log.Info("analysis: stage complete", zap.Int64("duration_ms", elapsed))
	e.bus.Publish(ctx, model.NewEvent(model.EventCompleted, runID, def.Name).
		WithPayload("sequence", seq).
		WithPayload("duration_ms", elapsed))
	return out, nil
}

// Call invokes the model once and decodes the reply without publishing
// events. Every error it returns is a *StageError.
func (e *StageExecutor) Call(ctx context.Context, def StageDefinition, rendered string) (data any, raw string, err error) {
	defer func() {
		if r := recover(); r != nil {
			data, raw = nil, ""
			err = &StageError{Stage: def.Name, Kind: KindUnclassified, Err: eris.Errorf("panic: %v", r)}
		}
	}()

	if strings.TrimSpace(rendered) == "" {
		return nil, "", &StageError{Stage: def.Name, Kind: KindInvalidInput, Err: eris.New("rendered input is empty")}
	}
	if def.Decode == nil {
		return nil, "", &StageError{Stage: def.Name, Kind: KindUnclassified, Err: eris.New("stage has no decoder")}
	}

	callCtx := ctx
	if def.Deadline > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, def.Deadline)
		defer cancel()
	}

	raw, err = e.invoker.Invoke(callCtx, llm.Prompt{
		System:    def.System,
		User:      rendered,
		Label:     def.Name,
		MaxTokens: def.MaxTokens,
	})
	if err != nil {
		return nil, "", &StageError{Stage: def.Name, Kind: KindModelInvocation, Err: err}
	}

	data, err = def.Decode(raw)
	switch {
	case err == nil:
		return data, raw, nil
	case structured.IsParseError(err):
		return nil, raw, &StageError{Stage: def.Name, Kind: KindParse, Err: err}
	case structured.IsSchemaError(err):
		return nil, raw, &StageError{Stage: def.Name, Kind: KindSchema, Err: err}
	default:
		return nil, raw, &StageError{Stage: def.Name, Kind: KindUnclassified, Err: err}
	}
}

// render executes a stage template. A template failure is a programming
// error, not a model problem.
func render(stage string, tmpl *template.Template, view any) (string, error) {
	if tmpl == nil {
		return "", &StageError{Stage: stage, Kind: KindUnclassified, Err: eris.New("stage has no template")}
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, view); err != nil {
		return "", &StageError{Stage: stage, Kind: KindUnclassified, Err: eris.Wrap(err, fmt.Sprintf("analysis: render %s", stage))}
	}
	return b.String(), nil
}

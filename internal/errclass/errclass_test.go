package errclass

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Virtual-Global-Trading-AG/lexpilot/internal/analysis"
	"github.com/Virtual-Global-Trading-AG/lexpilot/internal/events"
	"github.com/Virtual-Global-Trading-AG/lexpilot/internal/llm"
	"github.com/Virtual-Global-Trading-AG/lexpilot/internal/model"
	"github.com/Virtual-Global-Trading-AG/lexpilot/internal/resilience"
	"github.com/Virtual-Global-Trading-AG/lexpilot/internal/scoring"
)

func stageErr(kind analysis.ErrorKind, err error) error {
	return &analysis.StageError{Stage: "rule", Kind: kind, Err: err}
}

func pipelineErr(stage model.StageName, inner error) error {
	return &analysis.PipelineError{RunID: "r", Stage: stage, Err: inner}
}

var corpus = []struct {
	name string
	err  error
	want Kind
}{
	{"sentinel validation", eris.Wrap(ErrValidation, "bad body"), KindValidation},
	{"invalid input", stageErr(analysis.KindInvalidInput, model.ErrEmptyDocument), KindValidation},
	{"empty document", model.ErrEmptyDocument, KindValidation},
	{"parse in pipeline", pipelineErr(model.StageRule, stageErr(analysis.KindParse, errors.New("x"))), KindValidation},
	{"schema in pipeline", pipelineErr(model.StageConclusion, stageErr(analysis.KindSchema, errors.New("x"))), KindValidation},
	{"unauthenticated", ErrUnauthenticated, KindAuthentication},
	{"provider 401", pipelineErr(model.StageIssue, stageErr(analysis.KindModelInvocation,
		resilience.NewStatusError("anthropic", 401, errors.New("bad key")))), KindAuthentication},
	{"provider 403", resilience.NewStatusError("openai", 403, errors.New("forbidden")), KindAuthentication},
	{"sentinel rate limit", ErrRateLimited, KindRateLimit},
	{"client limiter", stageErr(analysis.KindModelInvocation, eris.Wrap(llm.ErrRateLimited, "wait")), KindRateLimit},
	{"provider 429", resilience.NewStatusError("gemini", 429, errors.New("quota")), KindRateLimit},
	{"aggregation", &scoring.AggregationError{CheckName: "a", Reason: "score"}, KindBusinessRule},
	{"sentinel business", ErrBusinessRule, KindBusinessRule},
	{"model invocation", stageErr(analysis.KindModelInvocation, errors.New("eof")), KindExternalDependency},
	{"deadline", pipelineErr(model.StageRule, stageErr(analysis.KindModelInvocation, context.DeadlineExceeded)), KindExternalDependency},
	{"bare deadline", context.DeadlineExceeded, KindExternalDependency},
	{"circuit open", resilience.ErrCircuitOpen, KindExternalDependency},
	{"provider 503", resilience.NewStatusError("anthropic", 503, errors.New("overloaded")), KindExternalDependency},
	{"connection reset", errors.New("read: connection reset by peer"), KindExternalDependency},
	{"plain", errors.New("something odd"), KindSystem},
	{"unclassified stage", stageErr(analysis.KindUnclassified, errors.New("panic: x")), KindSystem},
	{"subscriber", &events.SubscriberError{SubscriberID: "s", Err: errors.New("x")}, KindSystem},
	{"canceled", context.Canceled, KindSystem},
}

func TestDefaultChain_Classification(t *testing.T) {
	chain := DefaultChain()
	for _, tt := range corpus {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, chain.Classify(tt.err).Kind)
		})
	}
}

func TestDefaultChain_Order(t *testing.T) {
	var kinds []Kind
	for _, r := range DefaultChain().Rules() {
		kinds = append(kinds, r.Kind)
	}
	assert.Equal(t, []Kind{
		KindValidation, KindAuthentication, KindRateLimit,
		KindBusinessRule, KindExternalDependency, KindSystem,
	}, kinds)
}

// Exactly one rule claims each error and it is the first whose predicate
// holds.
func TestDefaultChain_TotalAndFirstMatch(t *testing.T) {
	chain := DefaultChain()
	rules := chain.Rules()
	for _, tt := range corpus {
		first := -1
		for i, r := range rules {
			if r.Match(tt.err) {
				first = i
				break
			}
		}
		require.GreaterOrEqual(t, first, 0, tt.name)
		assert.Equal(t, rules[first].Kind, chain.Classify(tt.err).Kind, tt.name)
	}
}

func TestChain_FirstMatchWins(t *testing.T) {
	always := func(error) bool { return true }
	chain := NewChain(
		Rule{Kind: KindRateLimit, Match: always, Status: 429, Message: "first"},
		Rule{Kind: KindValidation, Match: always, Status: 400, Message: "second"},
	)
	ce := chain.Classify(errors.New("x"))
	assert.Equal(t, KindRateLimit, ce.Kind)
	assert.Equal(t, "first", ce.Message)
}

func TestNewChain_AppendsCatchAll(t *testing.T) {
	chain := NewChain(Rule{Kind: KindValidation, Match: func(error) bool { return false }})
	rules := chain.Rules()
	require.Len(t, rules, 2)
	assert.Equal(t, KindSystem, rules[1].Kind)
	assert.Equal(t, KindSystem, chain.Classify(errors.New("x")).Kind)

	assert.Len(t, NewChain().Rules(), 1)
}

func TestClassify_PanickingPredicateIsNoMatch(t *testing.T) {
	chain := NewChain(
		Rule{Kind: KindValidation, Match: func(error) bool { panic("bad predicate") }},
		Rule{Kind: KindRateLimit, Match: func(error) bool { return true }, Status: 429},
	)
	var ce ClassifiedError
	assert.NotPanics(t, func() { ce = chain.Classify(errors.New("x")) })
	assert.Equal(t, KindRateLimit, ce.Kind)
}

func TestClassify_NilError(t *testing.T) {
	assert.Equal(t, KindSystem, DefaultChain().Classify(nil).Kind)
}

func TestClassify_SystemHidesDetail(t *testing.T) {
	ce := DefaultChain().Classify(fmt.Errorf("db password=hunter2 rejected"))
	assert.Equal(t, http.StatusInternalServerError, ce.Status)
	assert.Empty(t, ce.Detail)
	assert.NotContains(t, ce.Message, "hunter2")
}

func TestHandle_WritesResponse(t *testing.T) {
	rec := httptest.NewRecorder()
	err := pipelineErr(model.StageRule, stageErr(analysis.KindSchema,
		&model.ViolationError{Violations: []string{"rules[0].source: required"}}))

	ce := DefaultChain().Handle(rec, err)
	assert.Equal(t, KindValidation, ce.Kind)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, KindValidation, body.Error.Kind)
	assert.Equal(t, "rule", body.Error.Stage)
	assert.Equal(t, []string{"rules[0].source: required"}, body.Error.Violations)
	assert.Empty(t, body.Error.Detail)
}

func TestClassify_ValidationDetailIsSanitized(t *testing.T) {
	chain := DefaultChain()

	tests := []struct {
		name       string
		err        error
		detail     string
		violations []string
	}{
		{
			name:       "schema violation exposes violations only",
			err:        pipelineErr(model.StageConclusion, stageErr(analysis.KindSchema, &model.ViolationError{Violations: []string{`referenced_issues: issue "I1" is not referenced`}})),
			violations: []string{`referenced_issues: issue "I1" is not referenced`},
		},
		{
			name:   "parse failure hides model output",
			err:    pipelineErr(model.StageRule, stageErr(analysis.KindParse, errors.New("invalid character 'H' looking for beginning of value"))),
			detail: "the model response could not be parsed",
		},
		{
			name:   "invalid input keeps its reason",
			err:    stageErr(analysis.KindInvalidInput, errors.New(`unknown check "astrology"`)),
			detail: `unknown check "astrology"`,
		},
		{
			name:   "request validation drops the sentinel suffix",
			err:    eris.Wrapf(ErrValidation, "invalid request body: %v", errors.New("unexpected EOF")),
			detail: "invalid request body: unexpected EOF",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ce := chain.Classify(tt.err)
			require.Equal(t, KindValidation, ce.Kind)
			assert.Equal(t, tt.detail, ce.Detail)
			assert.Equal(t, tt.violations, ce.Violations)
			assert.NotContains(t, ce.Detail, "run-")
			assert.NotContains(t, ce.Detail, "analysis:")
		})
	}
}

func TestClassifiedError_Unwrap(t *testing.T) {
	ce := DefaultChain().Classify(ErrRateLimited)
	assert.ErrorIs(t, ce, ErrRateLimited)
}

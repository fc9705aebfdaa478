package analysis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Virtual-Global-Trading-AG/lexpilot/internal/llm"
	"github.com/Virtual-Global-Trading-AG/lexpilot/internal/model"
	"github.com/Virtual-Global-Trading-AG/lexpilot/internal/structured"
)

func issueStage() StageDefinition {
	return IRACStages(time.Second)[0]
}

func stageKind(t *testing.T, err error) ErrorKind {
	t.Helper()
	var se *StageError
	require.ErrorAs(t, err, &se)
	return se.Kind
}

func TestStageRun_Success(t *testing.T) {
	inv := newScripted()
	bus, rec := recorderBus()
	exec := NewStageExecutor(inv, bus)

	out, err := exec.Run(context.Background(), "run-1", 1, issueStage(), "some document")
	require.NoError(t, err)

	assert.Equal(t, "run-1", out.RunID)
	assert.Equal(t, model.StageIssue, out.Stage)
	assert.Equal(t, 1, out.Sequence)
	data, ok := out.Data.(model.IssueAnalysis)
	require.True(t, ok)
	assert.Equal(t, []string{"I1", "I2"}, data.IDs())
	assert.Equal(t, []model.EventKind{model.EventStarted, model.EventCompleted}, eventsFor(rec.Events(), "issue"))
}

func TestStageRun_EmptyInputSkipsPort(t *testing.T) {
	inv := newScripted()
	bus, rec := recorderBus()

	_, err := NewStageExecutor(inv, bus).Run(context.Background(), "run-1", 1, issueStage(), "  \n\t ")
	require.Error(t, err)
	assert.Equal(t, KindInvalidInput, stageKind(t, err))
	assert.Zero(t, inv.total())
	assert.Equal(t, []model.EventKind{model.EventStarted, model.EventFailed}, eventsFor(rec.Events(), "issue"))
}

func TestStageRun_InvocationFailure(t *testing.T) {
	boom := errors.New("provider exploded")
	inv := newScripted().on("issue", func(context.Context, llm.Prompt) (string, error) { return "", boom })

	_, err := NewStageExecutor(inv, nil).Run(context.Background(), "r", 1, issueStage(), "doc")
	assert.Equal(t, KindModelInvocation, stageKind(t, err))
	assert.ErrorIs(t, err, boom)
}

func TestStageRun_DeadlineExpiryIsInvocationFailure(t *testing.T) {
	inv := newScripted().on("issue", func(ctx context.Context, _ llm.Prompt) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	def := issueStage()
	def.Deadline = 10 * time.Millisecond

	_, err := NewStageExecutor(inv, nil).Run(context.Background(), "r", 1, def, "doc")
	assert.Equal(t, KindModelInvocation, stageKind(t, err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStageRun_ParseAndSchemaFailuresAreDistinct(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		kind  ErrorKind
	}{
		{"prose", "I could not find any issues.", KindParse},
		{"broken json", `{"issues": [`, KindParse},
		{"wrong type", `{"issues": "none"}`, KindParse},
		{"empty issues", `{"issues": []}`, KindSchema},
		{"bad severity", `{"issues":[{"id":"I1","description":"d","severity":"catastrophic"}]}`, KindSchema},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := newScripted().reply("issue", tt.reply)
			_, err := NewStageExecutor(inv, nil).Run(context.Background(), "r", 1, issueStage(), "doc")
			assert.Equal(t, tt.kind, stageKind(t, err))
		})
	}
}

func TestStageRun_DecoderPanicIsRecovered(t *testing.T) {
	def := issueStage()
	def.Decode = func(string) (any, error) { panic("decoder bug") }

	bus, rec := recorderBus()
	var err error
	assert.NotPanics(t, func() {
		_, err = NewStageExecutor(newScripted(), bus).Run(context.Background(), "r", 1, def, "doc")
	})
	assert.Equal(t, KindUnclassified, stageKind(t, err))
	assert.Contains(t, err.Error(), "decoder bug")
	assert.Equal(t, []model.EventKind{model.EventStarted, model.EventFailed}, eventsFor(rec.Events(), "issue"))
}

func TestStageRun_MissingDecoder(t *testing.T) {
	def := issueStage()
	def.Decode = nil
	_, err := NewStageExecutor(newScripted(), nil).Run(context.Background(), "r", 1, def, "doc")
	assert.Equal(t, KindUnclassified, stageKind(t, err))
}

func TestStageCall_PassesPromptFields(t *testing.T) {
	var got llm.Prompt
	inv := llm.Func(func(_ context.Context, p llm.Prompt) (string, error) {
		got = p
		return issueJSON, nil
	})
	def := issueStage()
	def.MaxTokens = 1234

	_, raw, err := NewStageExecutor(inv, nil).Call(context.Background(), def, "doc text")
	require.NoError(t, err)
	assert.Equal(t, issueJSON, raw)
	assert.Equal(t, "issue", got.Label)
	assert.Equal(t, "doc text", got.User)
	assert.Equal(t, 1234, got.MaxTokens)
	assert.Contains(t, got.System, "severity")
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindInvalidInput, KindOf(model.ErrEmptyDocument))
	assert.Equal(t, KindUnclassified, KindOf(errors.New("x")))
	assert.Equal(t, KindParse, KindOf(&PipelineError{Err: &StageError{Kind: KindParse, Err: &structured.ParseError{Err: errors.New("x")}}}))
}

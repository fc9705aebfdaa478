package analysis

import (
	"context"
	"strings"
	"sync"
	"testing"

	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/Virtual-Global-Trading-AG/lexpilot/internal/events"
	"github.com/Virtual-Global-Trading-AG/lexpilot/internal/llm"
	"github.com/Virtual-Global-Trading-AG/lexpilot/internal/model"
)

// verifyNoLeaks checks for leaked goroutines. The genai client pulls in
// opencensus, whose init starts a worker that lives for the whole process.
func verifyNoLeaks(t *testing.T) {
	t.Helper()
	goleak.VerifyNone(t, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

const (
	issueJSON = `{"issues":[
		{"id":"I1","description":"Unlimited liability for the supplier","severity":"high"},
		{"id":"I2","description":"No data processing agreement","severity":"medium"}]}`
	ruleJSON = "```json\n" + `{"rules":[
		{"issue_id":"I1","source":"CO Art. 100","statement":"Liability for gross negligence cannot be excluded."},
		{"issue_id":"I2","source":"FADP Art. 9","statement":"Processors act on documented instructions."}]}` + "\n```"
	applicationJSON = `Here is the analysis: {"applications":[
		{"issue_id":"I1","analysis":"The clause is enforceable within limits.","strength":"moderate"},
		{"issue_id":"I2","analysis":"The agreement is missing.","strength":"strong"}]}`
	conclusionJSON = `{"summary":"Two issues need attention.","outcome":"renegotiate",
		"confidence":0.7,"referenced_issues":["I1","I2"],"recommendations":["Add a DPA"]}`
)

// scripted is an Invoker answering by prompt label and counting calls.
type scripted struct {
	mu      sync.Mutex
	replies map[string]func(ctx context.Context, p llm.Prompt) (string, error)
	calls   map[string]int
	prompts map[string]string
}

func newScripted() *scripted {
	s := &scripted{
		replies: map[string]func(ctx context.Context, p llm.Prompt) (string, error){},
		calls:   map[string]int{},
		prompts: map[string]string{},
	}
	s.reply("issue", issueJSON)
	s.reply("rule", ruleJSON)
	s.reply("application", applicationJSON)
	s.reply("conclusion", conclusionJSON)
	return s
}

func (s *scripted) reply(label, text string) *scripted {
	return s.on(label, func(context.Context, llm.Prompt) (string, error) { return text, nil })
}

func (s *scripted) on(label string, fn func(ctx context.Context, p llm.Prompt) (string, error)) *scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies[label] = fn
	return s
}

func (s *scripted) Invoke(ctx context.Context, p llm.Prompt) (string, error) {
	s.mu.Lock()
	s.calls[p.Label]++
	s.prompts[p.Label] = p.User
	fn := s.replies[p.Label]
	s.mu.Unlock()
	if fn == nil {
		return "", context.Canceled
	}
	return fn(ctx, p)
}

func (s *scripted) count(label string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[label]
}

func (s *scripted) prompt(label string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prompts[label]
}

func (s *scripted) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

func testInput() model.AnalysisInput {
	return model.NewAnalysisInput(
		"The supplier shall be liable without limit for all damages.",
		"service_agreement",
		"CH",
		map[string]string{"party": "customer"},
	)
}

func newTestSequential(t *testing.T, inv llm.Invoker) *Sequential {
	t.Helper()
	seq, err := NewSequential(NewStageExecutor(inv, nil), IRACStages(0))
	if err != nil {
		t.Fatalf("new sequential: %v", err)
	}
	return seq
}

// progressOf returns the progress values of recorded events in order.
func progressOf(evs []model.AnalysisEvent) []int {
	var out []int
	for _, ev := range evs {
		if ev.Progress != nil {
			out = append(out, *ev.Progress)
		}
	}
	return out
}

func eventsFor(evs []model.AnalysisEvent, stage string) []model.EventKind {
	var out []model.EventKind
	for _, ev := range evs {
		if ev.Stage == stage && ev.Kind != model.EventProgress {
			out = append(out, ev.Kind)
		}
	}
	return out
}

func recorderBus() (*events.Bus, *events.Recorder) {
	rec := events.NewRecorder("rec")
	return events.NewBus(rec), rec
}

func containsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

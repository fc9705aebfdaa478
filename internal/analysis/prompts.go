package analysis

import (
	"encoding/json"
	"slices"
	"text/template"
	"time"

	"github.com/Virtual-Global-Trading-AG/lexpilot/internal/model"
	"github.com/Virtual-Global-Trading-AG/lexpilot/internal/structured"
)

const documentBlock = `Document type: {{ .Input.DocumentType }}
Jurisdiction: {{ .Input.Jurisdiction }}
{{- range .Context }}
{{ .Key }}: {{ .Value }}
{{- end }}

<document>
{{ .Input.Text }}
</document>
`

var (
	issueTemplate = template.Must(template.New("issue").Parse(documentBlock + `
Identify the legal issues raised by the document.`))

	ruleTemplate = template.Must(template.New("rule").Parse(documentBlock + `
Prior analysis:
{{ .Prior }}

State the governing rule for every issue above.`))

	applicationTemplate = template.Must(template.New("application").Parse(documentBlock + `
Prior analysis:
{{ .Prior }}

Apply each rule to the facts of the document.`))

	conclusionTemplate = template.Must(template.New("conclusion").Parse(documentBlock + `
Prior analysis:
{{ .Prior }}

Conclude. Reference every issue id from the issue analysis.`))

	checkTemplate = template.Must(template.New("check").Parse(documentBlock + `
Compliance check: {{ .Check.Name }}
{{ .Check.Description }}
{{ .Check.Instructions }}`))
)

const (
	issueSystem = `You are a legal analyst. Reply with one JSON object:
{"issues":[{"id":"I1","description":"...","severity":"low|medium|high","category":"..."}]}`

	ruleSystem = `You are a legal analyst. Reply with one JSON object:
{"rules":[{"issue_id":"I1","source":"statute or case","citation":"...","statement":"..."}]}`

	applicationSystem = `You are a legal analyst. Reply with one JSON object:
{"applications":[{"issue_id":"I1","analysis":"...","strength":"weak|moderate|strong"}]}`

	conclusionSystem = `You are a legal analyst. Reply with one JSON object:
{"summary":"...","outcome":"...","confidence":0.0,"referenced_issues":["I1"],"recommendations":["..."]}`

	checkSystem = `You are a compliance reviewer. Reply with one JSON object:
{"status":"compliant|non_compliant|unclear|not_applicable","score":0.0,"risk_level":"low|medium|high",
"findings":["..."],"recommendations":["..."],"evidence":["quoted passage"]}`
)

// IRACStages returns the four sequential stage definitions in execution
// order, each bounded by deadline.
func IRACStages(deadline time.Duration) []StageDefinition {
	return []StageDefinition{
		{
			Name:     string(model.StageIssue),
			System:   issueSystem,
			Template: issueTemplate,
			Deadline: deadline,
			Decode:   structured.DecoderFor[model.IssueAnalysis](),
		},
		{
			Name:     string(model.StageRule),
			System:   ruleSystem,
			Template: ruleTemplate,
			Deadline: deadline,
			Decode:   structured.DecoderFor[model.RuleAnalysis](),
		},
		{
			Name:     string(model.StageApplication),
			System:   applicationSystem,
			Template: applicationTemplate,
			Deadline: deadline,
			Decode:   structured.DecoderFor[model.ApplicationAnalysis](),
		},
		{
			Name:     string(model.StageConclusion),
			System:   conclusionSystem,
			Template: conclusionTemplate,
			Deadline: deadline,
			Decode:   structured.DecoderFor[model.Conclusion](),
		},
	}
}

type contextEntry struct {
	Key, Value string
}

// promptView is the data every template renders from.
type promptView struct {
	Input   model.AnalysisInput
	Context []contextEntry
	Prior   string
	Check   CheckSpec
}

func newPromptView(input model.AnalysisInput) promptView {
	keys := make([]string, 0, len(input.Context))
	for k := range input.Context {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	entries := make([]contextEntry, len(keys))
	for i, k := range keys {
		entries[i] = contextEntry{Key: k, Value: input.Context[k]}
	}
	return promptView{Input: input, Context: entries}
}

// priorJSON renders the validated outputs of earlier stages in order.
func priorJSON(outputs []model.StageOutput) (string, error) {
	type entry struct {
		Stage model.StageName `json:"stage"`
		Data  any             `json:"data"`
	}
	entries := make([]entry, len(outputs))
	for i, o := range outputs {
		entries[i] = entry{Stage: o.Stage, Data: o.Data}
	}
	b, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

package analysis

import (
	"context"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/Virtual-Global-Trading-AG/lexpilot/internal/model"
	"github.com/Virtual-Global-Trading-AG/lexpilot/internal/structured"
)

// CheckSpec is the declarative form of a prompt-driven check, as read from a
// checks file.
type CheckSpec struct {
	Name         string  `yaml:"name"`
	Weight       float64 `yaml:"weight"`
	Description  string  `yaml:"description"`
	Instructions string  `yaml:"instructions"`
}

// CatalogFile is the top-level shape of a checks YAML file.
type CatalogFile struct {
	Checks []CheckSpec `yaml:"checks"`
}

// BuiltinChecks returns the default contract compliance catalog.
func BuiltinChecks() []CheckSpec {
	return []CheckSpec{
		{
			Name:        "data_protection",
			Weight:      0.25,
			Description: "Personal data handling, lawful basis, retention and transfer clauses.",
			Instructions: "Assess whether personal data processing is described with a lawful basis, " +
				"purpose limitation, retention periods and safeguards for cross-border transfers.",
		},
		{
			Name:        "contractual_risk",
			Weight:      0.35,
			Description: "Liability, indemnity, termination and unilateral change clauses.",
			Instructions: "Assess liability caps, indemnities, termination rights and clauses allowing " +
				"one party to change terms unilaterally.",
		},
		{
			Name:        "regulatory_disclosure",
			Weight:      0.25,
			Description: "Mandatory disclosures and regulatory notices.",
			Instructions: "Assess whether the disclosures required for this document type and " +
				"jurisdiction are present and clear.",
		},
		{
			Name:        "consumer_protection",
			Weight:      0.15,
			Description: "Unfair terms, withdrawal rights and transparency toward consumers.",
			Instructions: "Assess terms that could be unfair to consumers, withdrawal rights and " +
				"the transparency of pricing and obligations.",
		},
	}
}

// LoadCheckSpecs reads a checks YAML file.
func LoadCheckSpecs(path string) ([]CheckSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "analysis: read checks file %s", path)
	}

	var file CatalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, eris.Wrapf(err, "analysis: parse checks file %s", path)
	}
	if err := validateSpecs(file.Checks); err != nil {
		return nil, eris.Wrapf(err, "analysis: checks file %s", path)
	}
	return file.Checks, nil
}

func validateSpecs(specs []CheckSpec) error {
	if len(specs) == 0 {
		return eris.New("no checks defined")
	}
	seen := make(map[string]bool, len(specs))
	for i, s := range specs {
		name := strings.TrimSpace(s.Name)
		if name == "" {
			return eris.Errorf("checks[%d]: name is required", i)
		}
		if seen[name] {
			return eris.Errorf("checks[%d]: duplicate name %q", i, name)
		}
		seen[name] = true
		if s.Weight < 0 {
			return eris.Errorf("checks[%d]: weight must be >= 0", i)
		}
	}
	return nil
}

// SelectChecks filters specs to the named checks, keeping catalog order.
// An empty names list selects everything.
func SelectChecks(specs []CheckSpec, names []string) ([]CheckSpec, error) {
	if len(names) == 0 {
		return specs, nil
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[strings.TrimSpace(n)] = true
	}

	var out []CheckSpec
	for _, s := range specs {
		if want[s.Name] {
			out = append(out, s)
			delete(want, s.Name)
		}
	}
	if len(want) > 0 {
		unknown := make([]string, 0, len(want))
		for n := range want {
			unknown = append(unknown, n)
		}
		slices.Sort(unknown)
		return nil, eris.Errorf("analysis: unknown checks %s", strings.Join(unknown, ", "))
	}
	return out, nil
}

// BuildChecks turns specs into check definitions that each make one model
// call through exec, bounded by deadline.
func BuildChecks(exec *StageExecutor, specs []CheckSpec, deadline time.Duration) []CheckDefinition {
	defs := make([]CheckDefinition, len(specs))
	for i, spec := range specs {
		stage := StageDefinition{
			Name:     spec.Name,
			System:   checkSystem,
			Template: checkTemplate,
			Deadline: deadline,
			Decode:   structured.DecoderFor[checkResponse](),
		}
		defs[i] = CheckDefinition{
			Name:   spec.Name,
			Weight: spec.Weight,
			Execute: func(ctx context.Context, input model.AnalysisInput) (model.CheckOutcome, error) {
				view := newPromptView(input)
				view.Check = spec
				rendered, err := render(spec.Name, stage.Template, view)
				if err != nil {
					return model.CheckOutcome{}, err
				}
				data, _, err := exec.Call(ctx, stage, rendered)
				if err != nil {
					return model.CheckOutcome{}, err
				}
				return data.(checkResponse).outcome(spec.Name), nil
			},
		}
	}
	return defs
}

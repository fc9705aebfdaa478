package main

import (
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/Virtual-Global-Trading-AG/lexpilot/internal/model"
)

// inputFlags are shared by analyze and check.
type inputFlags struct {
	file         string
	documentType string
	jurisdiction string
	context      []string
	user         string
}

func (f *inputFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.file, "file", "f", "", "document to analyze (- for stdin)")
	cmd.Flags().StringVar(&f.documentType, "type", "", "document type (e.g. employment_contract)")
	cmd.Flags().StringVar(&f.jurisdiction, "jurisdiction", "", "jurisdiction code (e.g. CH, DE, EU)")
	cmd.Flags().StringSliceVar(&f.context, "context", nil, "additional context as key=value (repeatable)")
	cmd.Flags().StringVar(&f.user, "user", "", "user id the run is attributed to")
	_ = cmd.MarkFlagRequired("file")
}

// input reads the document and builds the analysis input.
func (f *inputFlags) input(stdin io.Reader) (model.AnalysisInput, error) {
	text, err := readDocument(f.file, stdin)
	if err != nil {
		return model.AnalysisInput{}, err
	}
	ctxMap, err := parseContext(f.context)
	if err != nil {
		return model.AnalysisInput{}, err
	}
	return model.NewAnalysisInput(text, f.documentType, f.jurisdiction, ctxMap).WithUser(f.user), nil
}

func readDocument(path string, stdin io.Reader) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", eris.Wrapf(err, "read document %s", path)
	}
	return string(data), nil
}

func parseContext(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, eris.Errorf("invalid --context %q, want key=value", p)
		}
		out[k] = strings.TrimSpace(v)
	}
	return out, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

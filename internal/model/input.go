package model

import (
	"maps"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/unicode/norm"
)

// ErrEmptyDocument is returned when an analysis is requested for a document
// with no text.
var ErrEmptyDocument = eris.New("analysis input: document text is empty")

// AnalysisInput is the immutable request for one analysis. Construct it with
// NewAnalysisInput and pass it by value; use Clone when handing it to
// concurrent work so the context map is never shared.
type AnalysisInput struct {
	Text         string            `json:"text"`
	DocumentType string            `json:"document_type"`
	Jurisdiction string            `json:"jurisdiction"`
	Context      map[string]string `json:"context,omitempty"`
	UserID       string            `json:"user_id,omitempty"`
}

// NewAnalysisInput normalizes the document text to NFC and copies the
// context map so later mutation by the caller has no effect.
func NewAnalysisInput(text, documentType, jurisdiction string, context map[string]string) AnalysisInput {
	return AnalysisInput{
		Text:         norm.NFC.String(text),
		DocumentType: strings.TrimSpace(documentType),
		Jurisdiction: strings.TrimSpace(jurisdiction),
		Context:      maps.Clone(context),
	}
}

// WithUser returns a copy of the input attributed to userID.
func (in AnalysisInput) WithUser(userID string) AnalysisInput {
	out := in.Clone()
	out.UserID = userID
	return out
}

// Clone returns a deep copy of the input.
func (in AnalysisInput) Clone() AnalysisInput {
	out := in
	out.Context = maps.Clone(in.Context)
	return out
}

// Validate reports whether the input can be analyzed.
func (in AnalysisInput) Validate() error {
	if strings.TrimSpace(in.Text) == "" {
		return ErrEmptyDocument
	}
	return nil
}

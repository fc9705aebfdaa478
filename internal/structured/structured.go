// Package structured turns free-form model text into typed, validated records.
package structured

import (
	"encoding/json"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
)

// Validator is implemented by every record shape the pipeline accepts.
type Validator interface {
	Validate() error
}

// ParseError means the model response could not be decoded at all, which
// usually points to a malformed response rather than bad content.
type ParseError struct {
	Err     error
	Snippet string
}

func (e *ParseError) Error() string {
	return "structured: parse response: " + e.Err.Error()
}

func (e *ParseError) Unwrap() error { return e.Err }

// SchemaError means the response decoded but violates the declared shape.
type SchemaError struct {
	Err error
}

func (e *SchemaError) Error() string {
	return "structured: " + e.Err.Error()
}

func (e *SchemaError) Unwrap() error { return e.Err }

// IsParseError reports whether err is, or wraps, a ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// IsSchemaError reports whether err is, or wraps, a SchemaError.
func IsSchemaError(err error) bool {
	var se *SchemaError
	return errors.As(err, &se)
}

const snippetLen = 200

// Decode extracts the JSON object from raw, decodes it into T and validates
// it. Parse failures return *ParseError, validation failures *SchemaError.
func Decode[T any, PT interface {
	*T
	Validator
}](raw string) (*T, error) {
	cleaned := CleanJSON(raw)
	if cleaned == "" {
		return nil, &ParseError{Err: eris.New("empty response"), Snippet: snippet(raw)}
	}

	var out T
	if err := json.Unmarshal([]byte(cleaned), &out); err != nil {
		return nil, &ParseError{Err: err, Snippet: snippet(cleaned)}
	}

	if err := PT(&out).Validate(); err != nil {
		return nil, &SchemaError{Err: err}
	}
	return &out, nil
}

// Decoder is a type-erased Decode bound to one record shape.
type Decoder func(raw string) (any, error)

// DecoderFor binds Decode to T so heterogeneous stages can share one executor.
func DecoderFor[T any, PT interface {
	*T
	Validator
}]() Decoder {
	return func(raw string) (any, error) {
		v, err := Decode[T, PT](raw)
		if err != nil {
			return nil, err
		}
		return *v, nil
	}
}

// CleanJSON extracts a JSON object from text that may contain markdown code
// fences or surrounding prose.
func CleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ""
	}
	return strings.TrimSpace(text[start : end+1])
}

func snippet(s string) string {
	if len(s) <= snippetLen {
		return s
	}
	cut := snippetLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

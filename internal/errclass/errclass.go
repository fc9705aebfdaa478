// Package errclass classifies errors raised at the service boundary into a
// small caller-facing taxonomy. Rules are evaluated in order and the first
// match wins; the last rule matches everything.
package errclass

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/Virtual-Global-Trading-AG/lexpilot/internal/analysis"
	"github.com/Virtual-Global-Trading-AG/lexpilot/internal/llm"
	"github.com/Virtual-Global-Trading-AG/lexpilot/internal/model"
	"github.com/Virtual-Global-Trading-AG/lexpilot/internal/resilience"
)

// Kind is a classification bucket.
type Kind string

const (
	KindValidation         Kind = "validation"
	KindAuthentication     Kind = "authentication"
	KindRateLimit          Kind = "rate_limit"
	KindBusinessRule       Kind = "business_rule"
	KindExternalDependency Kind = "external_dependency"
	KindSystem             Kind = "system"
)

// Sentinels for callers outside the analysis engines.
var (
	ErrValidation      = eris.New("validation failed")
	ErrUnauthenticated = eris.New("unauthenticated")
	ErrRateLimited     = eris.New("rate limited")
	ErrBusinessRule    = eris.New("business rule violated")
)

// Rule pairs a predicate with the response it produces.
type Rule struct {
	Kind    Kind
	Match   func(err error) bool
	Status  int
	Message string
}

// ClassifiedError is the result of running an error through a Chain.
type ClassifiedError struct {
	Kind    Kind
	Status  int
	Message string
	// Detail is only set for kinds whose underlying message is safe to show.
	Detail string
	// Violations lists schema violations of a rejected record.
	Violations []string
	// Stage names the failing stage of a sequential run, if any.
	Stage string
	Err   error
}

func (c ClassifiedError) Error() string {
	return string(c.Kind) + ": " + c.Message
}

func (c ClassifiedError) Unwrap() error { return c.Err }

// Chain is an ordered list of rules.
type Chain struct {
	rules []Rule
}

// NewChain creates a chain from rules in evaluation order. A catch-all
// system rule is appended when the last rule is not one already.
func NewChain(rules ...Rule) *Chain {
	out := make([]Rule, 0, len(rules)+1)
	out = append(out, rules...)
	if len(out) == 0 || out[len(out)-1].Kind != KindSystem {
		out = append(out, systemRule())
	}
	return &Chain{rules: out}
}

// DefaultChain returns the standard ordering: validation, authentication,
// rate limit, business rule, external dependency, system.
func DefaultChain() *Chain {
	return NewChain(
		Rule{Kind: KindValidation, Match: isValidation, Status: http.StatusBadRequest, Message: "The request could not be processed as submitted."},
		Rule{Kind: KindAuthentication, Match: isAuthentication, Status: http.StatusUnauthorized, Message: "Authentication failed."},
		Rule{Kind: KindRateLimit, Match: isRateLimit, Status: http.StatusTooManyRequests, Message: "Too many requests. Please retry later."},
		Rule{Kind: KindBusinessRule, Match: isBusinessRule, Status: http.StatusUnprocessableEntity, Message: "The analysis result violated a business rule."},
		Rule{Kind: KindExternalDependency, Match: isExternalDependency, Status: http.StatusBadGateway, Message: "An upstream service is unavailable. Please retry later."},
		systemRule(),
	)
}

func systemRule() Rule {
	return Rule{
		Kind:    KindSystem,
		Match:   func(error) bool { return true },
		Status:  http.StatusInternalServerError,
		Message: "An internal error occurred.",
	}
}

// Rules returns a copy of the chain's rules in order.
func (c *Chain) Rules() []Rule {
	return append([]Rule(nil), c.rules...)
}

// Classify returns the classification of the first matching rule and logs
// it once. A panicking predicate counts as no match.
func (c *Chain) Classify(err error) ClassifiedError {
	if err == nil {
		err = eris.New("nil error classified")
	}

	rule := c.rules[len(c.rules)-1]
	for _, r := range c.rules {
		if safeMatch(r, err) {
			rule = r
			break
		}
	}

	ce := ClassifiedError{Kind: rule.Kind, Status: rule.Status, Message: rule.Message, Err: err}
	var perr *analysis.PipelineError
	if errors.As(err, &perr) {
		ce.Stage = string(perr.Stage)
	}
	switch rule.Kind {
	case KindValidation:
		ce.Detail, ce.Violations = validationDetail(err)
	case KindBusinessRule:
		ce.Detail = err.Error()
	}

	fields := []zap.Field{
		zap.String("error_kind", string(ce.Kind)),
		zap.Int("status", ce.Status),
		zap.Error(err),
	}
	if ce.Stage != "" {
		fields = append(fields, zap.String("stage", ce.Stage))
	}
	if ce.Kind == KindSystem {
		zap.L().Error("errclass: unclassified error", fields...)
	} else {
		zap.L().Warn("errclass: classified error", fields...)
	}
	return ce
}

// validationDetail keeps run ids and wrap chains out of responses. Schema
// failures expose their violation list only.
func validationDetail(err error) (string, []string) {
	var ve *model.ViolationError
	if errors.As(err, &ve) {
		return "", append([]string(nil), ve.Violations...)
	}
	var se *analysis.StageError
	if errors.As(err, &se) {
		switch se.Kind {
		case analysis.KindInvalidInput:
			return se.Err.Error(), nil
		case analysis.KindParse:
			return "the model response could not be parsed", nil
		default:
			return string(se.Kind), nil
		}
	}
	if errors.Is(err, ErrValidation) {
		return strings.TrimSuffix(err.Error(), ": "+ErrValidation.Error()), nil
	}
	return "", nil
}

func safeMatch(r Rule, err error) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return r.Match != nil && r.Match(err)
}

// Response is the JSON body written for a classified error.
type Response struct {
	Error ResponseError `json:"error"`
}

// ResponseError is the error object inside Response.
type ResponseError struct {
	Kind       Kind     `json:"kind"`
	Message    string   `json:"message"`
	Detail     string   `json:"detail,omitempty"`
	Violations []string `json:"violations,omitempty"`
	Stage      string   `json:"stage,omitempty"`
}

// Handle classifies err and writes the response.
func (c *Chain) Handle(w http.ResponseWriter, err error) ClassifiedError {
	ce := c.Classify(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(ce.Status)
	_ = json.NewEncoder(w).Encode(Response{Error: ResponseError{
		Kind:       ce.Kind,
		Message:    ce.Message,
		Detail:     ce.Detail,
		Violations: ce.Violations,
		Stage:      ce.Stage,
	}})
	return ce
}

func isValidation(err error) bool {
	if errors.Is(err, ErrValidation) {
		return true
	}
	switch analysis.KindOf(err) {
	case analysis.KindInvalidInput, analysis.KindParse, analysis.KindSchema:
		return true
	}
	return false
}

func isAuthentication(err error) bool {
	if errors.Is(err, ErrUnauthenticated) {
		return true
	}
	code := resilience.StatusCode(err)
	return code == http.StatusUnauthorized || code == http.StatusForbidden
}

func isRateLimit(err error) bool {
	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, llm.ErrRateLimited) ||
		resilience.StatusCode(err) == http.StatusTooManyRequests
}

func isBusinessRule(err error) bool {
	return errors.Is(err, ErrBusinessRule) || analysis.KindOf(err) == analysis.KindAggregation
}

func isExternalDependency(err error) bool {
	return analysis.KindOf(err) == analysis.KindModelInvocation ||
		errors.Is(err, resilience.ErrCircuitOpen) ||
		errors.Is(err, context.DeadlineExceeded) ||
		resilience.IsTransient(err)
}

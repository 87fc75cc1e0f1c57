// Package classify maps raw failures to categorized errors with severity,
// retryability and recovery actions. Classification is a pure function of
// the error message and its context; the rule table is explicit and
// ordered so individual rules stay testable.
package classify

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/livefeed/internal/core/domain"
)

// rule matches an error message against lowercase substrings. Rules are
// evaluated in order; the first match wins.
type rule struct {
	category domain.ErrorCategory
	patterns []string
}

// Rule order matters: auth and validation messages often mention the
// connection too, so they are checked before the transport/network rules.
var rules = []rule{
	{domain.CategoryAuth, []string{
		"401",
		"unauthorized",
		"session expired",
		"authentication",
		"invalid identity",
	}},
	{domain.CategoryValidation, []string{
		"invalid input",
		"malformed",
		"validation failed",
		"invalid format",
		"bad request",
	}},
	{domain.CategoryBackend, []string{
		"canister",
		"out of cycles",
		"replica",
		"rejected",
		"ic0.",
	}},
	{domain.CategoryTransport, []string{
		"websocket",
		"socket closed",
		"socket error",
		"connection closed",
		"abnormal closure",
	}},
	{domain.CategoryNetwork, []string{
		"failed to fetch",
		"fetch",
		"timeout",
		"timed out",
		"network",
		"connection refused",
		"connection reset",
		"no such host",
		"dns",
	}},
}

// exhaustionPatterns mark backend failures caused by resource exhaustion,
// which need a manual top-up rather than plain retries.
var exhaustionPatterns = []string{
	"out of cycles",
	"cycles balance",
	"insufficient cycles",
	"memory limit",
	"resource exhausted",
}

// defaults per category: severity and retryability.
var defaults = map[domain.ErrorCategory]struct {
	severity  domain.ErrorSeverity
	retryable bool
}{
	domain.CategoryNetwork:    {domain.SeverityHigh, true},
	domain.CategoryTransport:  {domain.SeverityHigh, true},
	domain.CategoryBackend:    {domain.SeverityMedium, true},
	domain.CategoryAuth:       {domain.SeverityHigh, false},
	domain.CategoryValidation: {domain.SeverityLow, false},
	domain.CategorySystem:     {domain.SeverityMedium, true},
}

// Hooks bind the automatic recovery actions to engine operations. Nil
// hooks produce actions without a Run effect.
type Hooks struct {
	Retry     func() error
	Reconnect func() error
	Fallback  func() error
}

// Classifier produces ClassifiedErrors with recovery actions bound to the
// given hooks.
type Classifier struct {
	hooks Hooks
}

// New creates a classifier with the given recovery hooks.
func New(hooks Hooks) *Classifier {
	return &Classifier{hooks: hooks}
}

// Classify enriches a raw failure. The context hint wins over message
// matching: any error carrying a canister ID is a backend error no matter
// what the message says. Unmatched errors land in CategorySystem.
func (c *Classifier) Classify(err error, ctx domain.ErrorContext) *domain.ClassifiedError {
	category := Categorize(err, ctx)
	def := defaults[category]

	return &domain.ClassifiedError{
		ID:              uuid.New().String(),
		Category:        category,
		Severity:        def.severity,
		Retryable:       def.retryable,
		Context:         ctx,
		RecoveryActions: c.actions(category, err),
		Timestamp:       time.Now().UTC(),
		Err:             err,
	}
}

// Categorize returns the category alone, without building the full
// classified error.
func Categorize(err error, ctx domain.ErrorContext) domain.ErrorCategory {
	if ctx.CanisterID != "" {
		return domain.CategoryBackend
	}
	if err == nil {
		return domain.CategorySystem
	}

	msg := strings.ToLower(err.Error())
	for _, r := range rules {
		for _, p := range r.patterns {
			if strings.Contains(msg, p) {
				return r.category
			}
		}
	}
	return domain.CategorySystem
}

// IsResourceExhaustion reports whether a backend error indicates the
// canister ran out of resources.
func IsResourceExhaustion(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, p := range exhaustionPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// actions builds the category-driven recovery catalog.
func (c *Classifier) actions(category domain.ErrorCategory, err error) []domain.RecoveryAction {
	switch category {
	case domain.CategoryNetwork:
		return []domain.RecoveryAction{
			{Kind: domain.ActionRetry, Label: "Retry", Run: c.hooks.Retry},
			{Kind: domain.ActionManual, Label: "Check connection", Instruction: "Check your internet connection"},
		}

	case domain.CategoryTransport:
		return []domain.RecoveryAction{
			{Kind: domain.ActionRetry, Label: "Retry", Run: c.hooks.Retry},
			{Kind: domain.ActionManual, Label: "Check connection", Instruction: "Check your internet connection"},
			{Kind: domain.ActionReconnect, Label: "Reconnect", Run: c.hooks.Reconnect},
			{Kind: domain.ActionFallback, Label: "Switch to polling", Run: c.hooks.Fallback},
		}

	case domain.CategoryBackend:
		actions := []domain.RecoveryAction{
			{Kind: domain.ActionRetry, Label: "Retry", Run: c.hooks.Retry},
		}
		if IsResourceExhaustion(err) {
			actions = append(actions, domain.RecoveryAction{
				Kind:        domain.ActionManual,
				Label:       "Top up resources",
				Instruction: "Top up the canister's cycles balance",
			})
		}
		return actions

	case domain.CategoryAuth:
		return []domain.RecoveryAction{
			{Kind: domain.ActionManual, Label: "Re-authenticate", Instruction: "Sign in again to refresh your session"},
		}

	case domain.CategoryValidation:
		// Caller/input defects: surfaced only, never retried.
		return nil

	default:
		return []domain.RecoveryAction{
			{Kind: domain.ActionRetry, Label: "Retry", Run: c.hooks.Retry},
		}
	}
}

package types

import (
	"fmt"
	"time"
)

// Method records which classification tier produced a verdict.
type Method string

const (
	// MethodPrimary is the language-model tier.
	MethodPrimary Method = "primary"
	// MethodFallback is the local similarity tier.
	MethodFallback Method = "fallback"
	// MethodError marks a conservative verdict produced because no tier answered.
	MethodError Method = "error"
)

// Rank orders methods by trust: primary > fallback > error.
func (m Method) Rank() int {
	switch m {
	case MethodPrimary:
		return 2
	case MethodFallback:
		return 1
	default:
		return 0
	}
}

// ParseMethod converts a stored string into a Method.
func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case MethodPrimary, MethodFallback, MethodError:
		return Method(s), nil
	}
	return "", fmt.Errorf("unknown classification method %q", s)
}

// Verdict is the structured output of either classification tier.
type Verdict struct {
	IsRelevant   bool      `json:"is_relevant"`
	Confidence   float64   `json:"confidence"`
	Reasoning    string    `json:"reasoning"`
	Method       Method    `json:"method"`
	ClassifiedAt time.Time `json:"classified_at"`
}

// ErrorVerdict returns the conservative verdict: not relevant, zero confidence.
func ErrorVerdict(reason string) Verdict {
	return Verdict{
		IsRelevant:   false,
		Confidence:   0,
		Reasoning:    reason,
		Method:       MethodError,
		ClassifiedAt: time.Now().UTC(),
	}
}

// IsError reports whether v came from neither tier.
func (v Verdict) IsError() bool {
	return v.Method == MethodError
}

// ClampConfidence bounds c to [0, 100].
func ClampConfidence(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 100:
		return 100
	}
	return c
}

// ShouldReplace applies the persistence merge rule: an incoming verdict replaces the
// recorded one only when its method is no worse. A new error never overwrites a
// non-error verdict.
func ShouldReplace(existing *Verdict, incoming Verdict) bool {
	if existing == nil {
		return true
	}
	return incoming.Method.Rank() >= existing.Method.Rank()
}

package rules

import (
	"errors"
	"fmt"
)

// DiagnosticKind classifies a non-fatal rule problem.
type DiagnosticKind string

const (
	DiagnosticUnknownRule      DiagnosticKind = "unknown_rule"
	DiagnosticMalformedReplace DiagnosticKind = "malformed_replace"
	DiagnosticRuleFailed       DiagnosticKind = "rule_failed"
)

// Severity tells the host how loudly to surface a diagnostic.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Diagnostic is a structured record of a rule problem. Diagnostics never stop a run.
type Diagnostic struct {
	Kind     DiagnosticKind `json:"kind"`
	Severity Severity       `json:"severity"`
	Command  string         `json:"command,omitempty"`
	Rule     string         `json:"rule"`
	RuleLine int            `json:"rule_line,omitempty"`

	// InputLine is the 1-based input line being transformed, 0 for parse-time diagnostics.
	InputLine int    `json:"input_line,omitempty"`
	Message   string `json:"message"`
}

func (d Diagnostic) String() string {
	if d.InputLine > 0 {
		return fmt.Sprintf("%s (rule line %d, input line %d)", d.Message, d.RuleLine, d.InputLine)
	}
	if d.RuleLine > 0 {
		return fmt.Sprintf("%s (rule line %d)", d.Message, d.RuleLine)
	}
	return d.Message
}

// NewMalformed builds the parse-time diagnostic for a malformed rule line.
func NewMalformed(source string, ruleLine int, err error) Diagnostic {
	command := CommandReplace
	var malformed *MalformedRuleError
	if errors.As(err, &malformed) {
		command = malformed.Command
	}
	return Diagnostic{
		Kind:     DiagnosticMalformedReplace,
		Severity: SeverityError,
		Command:  command,
		Rule:     source,
		RuleLine: ruleLine,
		Message:  failureMessage(source, err),
	}
}

// NewFailure builds the diagnostic for a rule that failed while being applied.
// Unknown-rule errors become warnings; everything else is a rule failure.
func NewFailure(rule Rule, err error) Diagnostic {
	var unknown *UnknownRuleError
	if errors.As(err, &unknown) {
		return Diagnostic{
			Kind:     DiagnosticUnknownRule,
			Severity: SeverityWarning,
			Command:  unknown.Command,
			Rule:     rule.Source,
			RuleLine: rule.Line,
			Message:  unknown.Error(),
		}
	}
	return Diagnostic{
		Kind:     DiagnosticRuleFailed,
		Severity: SeverityError,
		Command:  rule.Kind.String(),
		Rule:     rule.Source,
		RuleLine: rule.Line,
		Message:  failureMessage(rule.Source, err),
	}
}

func failureMessage(source string, err error) string {
	return fmt.Sprintf("An error occurred while processing rule '%s': %v", source, err)
}

// Distinct collapses diagnostics that differ only by input line, keeping first-seen order.
func Distinct(diags []Diagnostic) []Diagnostic {
	type key struct {
		kind     DiagnosticKind
		rule     string
		ruleLine int
		message  string
	}

	seen := make(map[key]struct{}, len(diags))
	var out []Diagnostic
	for _, d := range diags {
		k := key{d.Kind, d.Rule, d.RuleLine, d.Message}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, d)
	}
	return out
}

// HasErrors reports whether any diagnostic has error severity.
func HasErrors(diags []Diagnostic) bool {
	for _, d := range diags {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

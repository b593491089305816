// Package pipeline runs a rules block over every line of an input block.
package pipeline

import (
	"strings"
	"unicode"

	"github.com/joeychilson/strmanip/rules"
	"github.com/joeychilson/strmanip/transform"
)

const newline = "\n"

// Result is the output of one run.
type Result struct {
	Output      string             `json:"output"`
	Lines       int                `json:"lines"`
	Rules       int                `json:"rules"`
	Diagnostics []rules.Diagnostic `json:"diagnostics"`
}

// Run applies rulesBlock to each line of input and joins the results.
// It never fails; every rule problem is returned as a diagnostic.
func Run(input, rulesBlock string) Result {
	set, diags := ParseRules(rulesBlock)
	chain := transform.Compile(set)

	lines := strings.Split(strings.TrimSpace(input), newline)
	out := make([]string, len(lines))
	for i, line := range lines {
		result, lineDiags := chain.Apply(line)
		for _, d := range lineDiags {
			d.InputLine = i + 1
			diags = append(diags, d)
		}
		out[i] = result
	}

	if diags == nil {
		diags = []rules.Diagnostic{}
	}

	return Result{
		Output:      strings.Join(out, newline),
		Lines:       len(lines),
		Rules:       len(set),
		Diagnostics: diags,
	}
}

// ParseRules trims the block and parses it. Rule line numbers refer to the
// untrimmed block so they match what the author sees.
func ParseRules(block string) (rules.RuleSet, []rules.Diagnostic) {
	offset := leadingLines(block)
	set, diags := rules.ParseSet(strings.TrimSpace(block))
	if offset == 0 {
		return set, diags
	}
	for i := range set {
		set[i].Line += offset
	}
	for i := range diags {
		diags[i].RuleLine += offset
	}
	return set, diags
}

// leadingLines counts the newlines inside the block's leading whitespace.
func leadingLines(block string) int {
	end := strings.IndexFunc(block, func(r rune) bool { return !unicode.IsSpace(r) })
	if end < 0 {
		return 0
	}
	return strings.Count(block[:end], newline)
}

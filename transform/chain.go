// Package transform applies parsed rules to a single line.
package transform

import (
	"fmt"

	"github.com/joeychilson/strmanip/rules"
)

// Step is one transformation applied to the accumulator.
type Step interface {
	Apply(s string) (string, error)
	Name() string
}

// StepError reports a failed step. The accumulator is left as it was before the step.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

type link struct {
	rule rules.Rule
	step Step
}

// Chain manages an ordered collection of steps, each tied to the rule it came from.
type Chain struct {
	links []link
}

// NewChain creates an empty chain.
func NewChain() *Chain {
	return &Chain{}
}

// Compile builds a chain for the rule set, preserving order.
func Compile(set rules.RuleSet) *Chain {
	c := &Chain{links: make([]link, 0, len(set))}
	for _, r := range set {
		c.Add(r, StepFor(r))
	}
	return c
}

// Add appends a step to the chain. rule identifies the step in diagnostics.
func (c *Chain) Add(rule rules.Rule, step Step) {
	c.links = append(c.links, link{rule: rule, step: step})
}

// Len returns the number of steps in the chain.
func (c *Chain) Len() int {
	return len(c.links)
}

// Apply runs every step in order against line. A failing step is skipped and
// recorded as a diagnostic; later steps still run.
func (c *Chain) Apply(line string) (string, []rules.Diagnostic) {
	if len(c.links) == 0 {
		return line, nil
	}

	var diags []rules.Diagnostic
	result := line
	for _, l := range c.links {
		next, err := safeApply(l.step, result)
		if err != nil {
			diags = append(diags, rules.NewFailure(l.rule, err))
			continue
		}
		result = next
	}

	return result, diags
}

// safeApply converts a panicking step into an error.
func safeApply(step Step, s string) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &StepError{Step: step.Name(), Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	return step.Apply(s)
}

// Line applies the rule set to a single line.
func Line(line string, set rules.RuleSet) (string, []rules.Diagnostic) {
	return Compile(set).Apply(line)
}

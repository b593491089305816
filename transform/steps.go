package transform

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/joeychilson/strmanip/rules"
)

// StepFor returns the step implementing a parsed rule.
func StepFor(r rules.Rule) Step {
	switch r.Kind {
	case rules.KindRemove:
		return &removeStep{chars: r.Chars}
	case rules.KindReplace:
		return &replaceStep{old: r.Old, new: r.New}
	case rules.KindAddPrefix:
		return &prefixStep{text: r.Text}
	case rules.KindAddSuffix:
		return &suffixStep{text: r.Text}
	case rules.KindToUpper:
		return &caseStep{name: rules.CommandToUpper, caser: cases.Upper(language.Und)}
	case rules.KindToLower:
		return &caseStep{name: rules.CommandToLower, caser: cases.Lower(language.Und)}
	default:
		return &unknownStep{command: r.Command}
	}
}

// removeStep deletes every occurrence of each target, in listed order.
type removeStep struct {
	chars []string
}

func (s *removeStep) Apply(in string) (string, error) {
	for _, c := range s.chars {
		if c == "" {
			continue
		}
		in = strings.ReplaceAll(in, c, "")
	}
	return in, nil
}

func (s *removeStep) Name() string { return rules.CommandRemove }

// replaceStep replaces all non-overlapping occurrences of a non-empty needle.
type replaceStep struct {
	old string
	new string
}

func (s *replaceStep) Apply(in string) (string, error) {
	if s.old == "" {
		return in, nil
	}
	return strings.ReplaceAll(in, s.old, s.new), nil
}

func (s *replaceStep) Name() string { return rules.CommandReplace }

type prefixStep struct {
	text string
}

func (s *prefixStep) Apply(in string) (string, error) { return s.text + in, nil }

func (s *prefixStep) Name() string { return rules.CommandAddPrefix }

type suffixStep struct {
	text string
}

func (s *suffixStep) Apply(in string) (string, error) { return in + s.text, nil }

func (s *suffixStep) Name() string { return rules.CommandAddSuffix }

// caseStep applies full Unicode case mapping with the root locale.
// A Caser is stateful, so a compiled chain must not be shared across goroutines.
type caseStep struct {
	name  string
	caser cases.Caser
}

func (s *caseStep) Apply(in string) (string, error) {
	return s.caser.String(in), nil
}

func (s *caseStep) Name() string { return s.name }

// unknownStep never changes the accumulator; it always reports the command.
type unknownStep struct {
	command string
}

func (s *unknownStep) Apply(in string) (string, error) {
	return in, &rules.UnknownRuleError{Command: s.command}
}

func (s *unknownStep) Name() string { return "unknown" }

// Package rules parses the line-oriented rule language.
//
// One rule per line:
//
//	// comment
//	remove:a,b,c
//	replace:old,new
//	add-prefix:text
//	add-suffix:text
//	to-upper
//	to-lower
//
// Blank lines and comments are skipped. Everything else parses to exactly one Rule,
// with unrecognized commands carried forward as KindUnknown.
package rules

import (
	"strings"
)

const (
	delimiter     = ":"
	argSeparator  = ","
	commentPrefix = "//"
)

// Command keywords.
const (
	CommandRemove    = "remove"
	CommandReplace   = "replace"
	CommandAddPrefix = "add-prefix"
	CommandAddSuffix = "add-suffix"
	CommandToUpper   = "to-upper"
	CommandToLower   = "to-lower"
)

// Kind identifies the rule variant.
type Kind int

const (
	KindUnknown Kind = iota
	KindRemove
	KindReplace
	KindAddPrefix
	KindAddSuffix
	KindToUpper
	KindToLower
)

// String returns the command keyword for the kind.
func (k Kind) String() string {
	switch k {
	case KindRemove:
		return CommandRemove
	case KindReplace:
		return CommandReplace
	case KindAddPrefix:
		return CommandAddPrefix
	case KindAddSuffix:
		return CommandAddSuffix
	case KindToUpper:
		return CommandToUpper
	case KindToLower:
		return CommandToLower
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	*k = kindFromCommand(string(text))
	return nil
}

func kindFromCommand(command string) Kind {
	switch command {
	case CommandRemove:
		return KindRemove
	case CommandReplace:
		return KindReplace
	case CommandAddPrefix:
		return KindAddPrefix
	case CommandAddSuffix:
		return KindAddSuffix
	case CommandToUpper:
		return KindToUpper
	case CommandToLower:
		return KindToLower
	default:
		return KindUnknown
	}
}

// Rule is one parsed rule. Only the fields relevant to Kind are set.
type Rule struct {
	Kind Kind `json:"kind"`

	// Line is the 1-based position of the rule in its rules block, 0 when parsed standalone.
	Line int `json:"line,omitempty"`

	// Source is the raw rule text as written.
	Source string `json:"source"`

	Chars   []string `json:"chars,omitempty"`   // remove
	Old     string   `json:"old,omitempty"`     // replace
	New     string   `json:"new,omitempty"`     // replace
	Text    string   `json:"text,omitempty"`    // add-prefix, add-suffix
	Command string   `json:"command,omitempty"` // unknown
}

// RuleSet is an ordered list of rules in file order.
type RuleSet []Rule

// Unknown returns the rules whose command was not recognized.
func (s RuleSet) Unknown() RuleSet {
	var unknown RuleSet
	for _, r := range s {
		if r.Kind == KindUnknown {
			unknown = append(unknown, r)
		}
	}
	return unknown
}

// Parse parses a single rule line.
// It returns ok == false for blank and comment lines. The only error is a
// replace rule without a comma, reported as *MalformedRuleError.
func Parse(line string) (rule Rule, ok bool, err error) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, commentPrefix) {
		return Rule{}, false, nil
	}

	rule = Rule{Source: line}

	head, args, found := strings.Cut(line, delimiter)
	if !found {
		command := strings.ToLower(trimmed)
		switch command {
		case CommandToUpper:
			rule.Kind = KindToUpper
		case CommandToLower:
			rule.Kind = KindToLower
		default:
			rule.Kind = KindUnknown
			rule.Command = command
		}
		return rule, true, nil
	}

	command := strings.ToLower(strings.TrimSpace(head))
	switch command {
	case CommandRemove:
		rule.Kind = KindRemove
		rule.Chars = splitChars(args)
	case CommandReplace:
		old, replacement, hasComma := strings.Cut(args, argSeparator)
		if !hasComma {
			return Rule{}, true, &MalformedRuleError{Command: command, Source: line}
		}
		rule.Kind = KindReplace
		rule.Old = old
		rule.New = replacement
	case CommandAddPrefix:
		rule.Kind = KindAddPrefix
		rule.Text = args
	case CommandAddSuffix:
		rule.Kind = KindAddSuffix
		rule.Text = args
	default:
		rule.Kind = KindUnknown
		rule.Command = command
	}

	return rule, true, nil
}

// ParseSet parses a whole rules block. Malformed rules are dropped from the set
// and reported as diagnostics, in line order.
func ParseSet(block string) (RuleSet, []Diagnostic) {
	var (
		set   RuleSet
		diags []Diagnostic
	)

	for i, line := range strings.Split(block, "\n") {
		rule, ok, err := Parse(line)
		if !ok {
			continue
		}
		if err != nil {
			diags = append(diags, NewMalformed(line, i+1, err))
			continue
		}
		rule.Line = i + 1
		set = append(set, rule)
	}

	return set, diags
}

// splitChars splits remove arguments on commas and trims each piece.
// Empty pieces are kept.
func splitChars(args string) []string {
	pieces := strings.Split(args, argSeparator)
	for i, p := range pieces {
		pieces[i] = strings.TrimSpace(p)
	}
	return pieces
}

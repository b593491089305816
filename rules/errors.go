package rules

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedReplace is matched by errors.Is for a replace rule without a comma.
	ErrMalformedReplace = errors.New("replace rule requires 'old,new' arguments")

	// ErrUnknownRule is matched by errors.Is for an unrecognized command.
	ErrUnknownRule = errors.New("rule is not recognized")
)

// MalformedRuleError reports a rule line whose arguments cannot be parsed.
type MalformedRuleError struct {
	Command string
	Source  string
}

func (e *MalformedRuleError) Error() string {
	return fmt.Sprintf("malformed %s rule %q: expected 'old,new'", e.Command, e.Source)
}

func (e *MalformedRuleError) Is(target error) bool {
	return target == ErrMalformedReplace && e.Command == CommandReplace
}

// UnknownRuleError reports an unrecognized command at an application site.
type UnknownRuleError struct {
	Command string
}

func (e *UnknownRuleError) Error() string {
	return fmt.Sprintf("The rule '%s' is not recognized.", e.Command)
}

func (e *UnknownRuleError) Is(target error) bool {
	return target == ErrUnknownRule
}

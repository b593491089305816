package logger

import "github.com/joeychilson/strmanip/rules"

// Diagnostics logs each diagnostic at warn or error level with its fields.
func Diagnostics(log Logger, diags []rules.Diagnostic) {
	for _, d := range diags {
		args := []any{
			"kind", string(d.Kind),
			"rule", d.Rule,
			"rule_line", d.RuleLine,
		}
		if d.Command != "" {
			args = append(args, "command", d.Command)
		}
		if d.InputLine > 0 {
			args = append(args, "input_line", d.InputLine)
		}

		if d.Severity == rules.SeverityError {
			log.Error(d.Message, args...)
		} else {
			log.Warn(d.Message, args...)
		}
	}
}

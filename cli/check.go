package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/joeychilson/strmanip/rules"
)

var errCheckFailed = errors.New("rules have errors")

func newCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check RULES_FILE",
		Short: "Parse a rules file and report problems",
		Long:  `Check parses a rules file without running it. Malformed rules are errors and unrecognized commands are warnings. The exit status is non-zero when any error is found.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			block, err := readSource(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}

			e, err := a.newEngine()
			if err != nil {
				return err
			}
			defer e.Close()

			set, diags, err := e.Parse(block)
			if err != nil {
				return err
			}
			for _, r := range set.Unknown() {
				diags = append(diags, rules.NewFailure(r, &rules.UnknownRuleError{Command: r.Command}))
			}

			stderr := cmd.ErrOrStderr()
			printDiagnostics(stderr, diags)

			if rules.HasErrors(diags) {
				return errCheckFailed
			}
			printSuccess(cmd.OutOrStdout(), "%d rules parsed", len(set))
			return nil
		},
	}
}

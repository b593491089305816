package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"github.com/joeychilson/strmanip/engine"
)

const stdinPath = "-"

// errRuleErrors is returned by --strict runs that produced error diagnostics.
var errRuleErrors = errors.New("rules reported errors")

// clipboardWriteAll is replaced in tests.
var clipboardWriteAll = clipboard.WriteAll

// runOptions are the flags shared by apply and watch.
type runOptions struct {
	input  string
	rules  string
	preset string
	output string
}

func (o *runOptions) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.input, "input", "i", stdinPath, "input file, or - for stdin")
	cmd.Flags().StringVarP(&o.rules, "rules", "r", "", "rules file, or - for stdin")
	cmd.Flags().StringVarP(&o.preset, "preset", "p", "", "configured preset to run before --rules")
	cmd.Flags().StringVarP(&o.output, "output", "o", "", "write output to a file instead of stdout")
}

func (o *runOptions) validate() error {
	if o.rules == "" && o.preset == "" {
		return fmt.Errorf("either --rules or --preset is required")
	}
	if o.input == stdinPath && o.rules == stdinPath {
		return fmt.Errorf("--input and --rules cannot both read from stdin")
	}
	return nil
}

// request reads the input and rules files into an engine request.
func (o *runOptions) request(stdin io.Reader) (engine.Request, error) {
	input, err := readSource(o.input, stdin)
	if err != nil {
		return engine.Request{}, fmt.Errorf("read input: %w", err)
	}

	var rulesBlock string
	if o.rules != "" {
		rulesBlock, err = readSource(o.rules, stdin)
		if err != nil {
			return engine.Request{}, fmt.Errorf("read rules: %w", err)
		}
	}

	return engine.Request{Input: input, Rules: rulesBlock, Preset: o.preset}, nil
}

func newApplyCmd(a *app) *cobra.Command {
	var (
		opts   runOptions
		copyTo bool
		strict bool
	)

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply rules to every line of the input",
		Long: `Apply runs the rules on each input line in order and prints the result.

Rules are written one per line as command:arguments, for example:

  remove:_,-
  replace:old,new
  add-prefix:slack_
  add-suffix:_grp
  to-upper
  to-lower

Blank lines and lines starting with // are ignored.`,
		Example: `  strmanip apply --input users.txt --rules rules.txt
  cat users.txt | strmanip apply --rules rules.txt --copy
  strmanip apply --config config.yaml --preset slack --input users.txt`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.validate(); err != nil {
				return err
			}

			req, err := opts.request(cmd.InOrStdin())
			if err != nil {
				return err
			}

			e, err := a.newEngine()
			if err != nil {
				return err
			}
			defer e.Close()

			res, err := e.Apply(cmd.Context(), req)
			if err != nil {
				return err
			}

			if err := writeOutput(opts.output, cmd.OutOrStdout(), res.Output); err != nil {
				return err
			}

			stderr := cmd.ErrOrStderr()
			printDiagnostics(stderr, res.Diagnostics)

			if copyTo {
				if err := copyOutput(stderr, res.Output); err != nil {
					return err
				}
			}

			if strict && res.HasErrors() {
				return errRuleErrors
			}
			return nil
		},
	}

	opts.register(cmd)
	cmd.Flags().BoolVarP(&copyTo, "copy", "c", false, "copy the output to the clipboard")
	cmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero when a rule reports an error")

	return cmd
}

// copyOutput puts the output on the system clipboard. Empty output is only a warning.
func copyOutput(w io.Writer, output string) error {
	if output == "" {
		printWarning(w, "output is empty, nothing copied")
		return nil
	}
	if err := clipboardWriteAll(output); err != nil {
		return fmt.Errorf("failed to copy to clipboard: %w", err)
	}
	printSuccess(w, "output copied to clipboard")
	return nil
}

func readSource(path string, stdin io.Reader) (string, error) {
	if path == stdinPath {
		data, err := io.ReadAll(stdin)
		return string(data), err
	}
	data, err := os.ReadFile(path)
	return string(data), err
}

func writeOutput(path string, stdout io.Writer, output string) error {
	if path == "" {
		_, err := fmt.Fprintln(stdout, output)
		return err
	}
	if err := os.WriteFile(path, []byte(output+"\n"), 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

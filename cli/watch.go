package cli

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func newWatchCmd(a *app) *cobra.Command {
	var (
		opts     runOptions
		debounce time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-apply rules whenever the input or rules file changes",
		Example: `  strmanip watch --input users.txt --rules rules.txt
  strmanip watch --input users.txt --rules rules.txt --output users.out`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.validate(); err != nil {
				return err
			}
			if opts.input == stdinPath || opts.rules == stdinPath {
				return fmt.Errorf("watch needs files, not stdin")
			}

			paths := []string{opts.input}
			if opts.rules != "" {
				paths = append(paths, opts.rules)
			}

			e, err := a.newEngine()
			if err != nil {
				return err
			}
			defer e.Close()

			w, err := NewWatcher(paths, debounce, a.log)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()

			run := func(ctx context.Context) {
				req, err := opts.request(nil)
				if err != nil {
					printError(stderr, "%v", err)
					return
				}
				res, err := e.Apply(ctx, req)
				if err != nil {
					printError(stderr, "%v", err)
					return
				}
				if err := writeOutput(opts.output, stdout, res.Output); err != nil {
					printError(stderr, "%v", err)
					return
				}
				printDiagnostics(stderr, res.Diagnostics)
			}

			run(ctx)
			printInfo(stderr, "watching %d files, press Ctrl+C to stop", len(paths))

			return w.Run(ctx, func(changed []string) {
				for _, p := range changed {
					printInfo(stderr, "%s changed", filepath.Base(p))
				}
				run(ctx)
			})
		},
	}

	opts.register(cmd)
	cmd.Flags().DurationVar(&debounce, "debounce", defaultDebounce, "quiet period before re-running after a change")

	return cmd
}

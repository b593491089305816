// Package cli implements the strmanip command-line interface.
package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/joeychilson/strmanip/config"
	"github.com/joeychilson/strmanip/engine"
	"github.com/joeychilson/strmanip/logger"
)

var (
	version string // semantic version (e.g., "v1.2.3")
	commit  string // git commit SHA
	date    string // build timestamp
)

// SetVersion sets the version information displayed by --version.
// The main package calls it with values injected via ldflags at build time.
func SetVersion(v, c, d string) {
	version = v
	commit = c
	date = d
}

// app holds state shared by every subcommand.
type app struct {
	configPath string
	verbose    bool

	cfg *config.Config
	log logger.Logger
}

// Execute runs the strmanip CLI and returns an error if any command fails.
func Execute() error {
	return NewRootCmd().ExecuteContext(context.Background())
}

// NewRootCmd builds the command tree. Output goes to the command's
// configured writers so callers can redirect it.
func NewRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:          "strmanip",
		Short:        "strmanip applies line-by-line text rules",
		Long:         `strmanip transforms every line of an input block with an ordered list of rules such as remove, replace, add-prefix, add-suffix, to-upper and to-lower.`,
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd.ErrOrStderr())
		},
	}

	root.SetVersionTemplate(fmt.Sprintf("strmanip %s\ncommit: %s\nbuilt: %s\n", version, commit, date))
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "path to a YAML config file")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable verbose logging")

	root.AddCommand(newApplyCmd(a))
	root.AddCommand(newCheckCmd(a))
	root.AddCommand(newPresetsCmd(a))
	root.AddCommand(newWatchCmd(a))

	return root
}

// load reads the config and sets up logging. Without --verbose the engine
// stays quiet because diagnostics are rendered by the commands themselves.
func (a *app) load(stderr io.Writer) error {
	a.cfg = config.New()
	if a.configPath != "" {
		cfg, err := config.LoadConfig(a.configPath)
		if err != nil {
			return err
		}
		a.cfg = cfg
	}

	a.log = logger.Noop()
	if a.verbose {
		a.log = logger.NewText(stderr, logger.LevelDebug)
	}
	return nil
}

// newEngine creates an engine for one command. The caller must Close it.
func (a *app) newEngine() (*engine.Engine, error) {
	e, err := engine.New(a.cfg)
	if err != nil {
		return nil, err
	}
	return e.WithLogger(a.log), nil
}

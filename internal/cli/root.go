package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/SureOnThisShiningNight/openrank/internal/config"
	"github.com/SureOnThisShiningNight/openrank/internal/engine"
	"github.com/SureOnThisShiningNight/openrank/internal/flags"
)

var (
	buildVersion = "dev"
	buildCommit  = "unknown"
	buildDate    = "unknown"
)

// ExitError carries a process exit status out of a command. Err may be nil,
// e.g. for an interrupted sweep.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func fatal(err error) error {
	return &ExitError{Code: engine.ExitFatal, Err: err}
}

func newRootCmd(v *viper.Viper) *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "openrank",
		Short: "Enrich a list of GitHub repositories with API metadata, resumably",
		Long: `openrank walks a JSON Lines list of repository links and appends one
record per repository (stars, forks, issues, contributors, commit counts) to
an output log. Progress is checkpointed after every item, so an interrupted
sweep picks up where it stopped.

Examples:
	# Enrich the default dataset
	export GITHUB_TOKEN="<your_token>"
	openrank crawl

	# Inspect progress of an interrupted sweep
	openrank status

	# Collapse duplicate records left by a crash
	openrank dedupe --in-place

	# Print build info
	openrank version

Configuration:
	Every flag can also be set in a config file (--config, YAML/TOML/JSON, keys
	are flag names) or through the environment as OPENRANK_<FLAG>, e.g.
	OPENRANK_RECENT_WINDOW=168h. Command-line flags win over the environment,
	which wins over the config file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.BindFlags(v, cmd.Flags()); err != nil {
				return fatal(err)
			}
			if err := config.ReadFile(v, configPath); err != nil {
				return fatal(err)
			}
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&configPath, flags.FlagConfig, "", "Config file (YAML, TOML or JSON)")
	pf.Bool(flags.FlagVerbose, false, "Enable debug logging (logs every GitHub API call)")
	pf.String(flags.FlagLogFormat, config.DefaultLogFormat, "Log format on stderr: console|json")
	pf.String(flags.FlagInput, config.DefaultInput, "Input work list (JSON Lines with 总序号 and github链接)")
	pf.String(flags.FlagOutput, config.DefaultOutput, "Append-only result log (JSON Lines)")
	pf.String(flags.FlagCheckpoint, config.DefaultCheckpoint, "Checkpoint file holding the last attempted id")

	root.AddCommand(newCrawlCmd(v), newStatusCmd(v), newDedupeCmd(v), newVersionCmd())
	return root
}

func SetBuildInfo(version, commit, date string) {
	if version != "" {
		buildVersion = version
	}
	if commit != "" {
		buildCommit = commit
	}
	if date != "" {
		buildDate = date
	}
}

func BuildInfo() (version, commit, date string) {
	return buildVersion, buildCommit, buildDate
}

// Execute runs the CLI with the process arguments and returns the exit code.
func Execute() int {
	return run(os.Args[1:], os.Stdout, os.Stderr)
}

func run(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(config.NewViper())
	root.Version = fmt.Sprintf("%s (%s) %s", buildVersion, buildCommit, buildDate)
	root.SetVersionTemplate("{{.Version}}\n")
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.Execute()
	if err == nil {
		return engine.ExitOK
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		if exitErr.Err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", exitErr.Err)
		}
		return exitErr.Code
	}
	// Usage errors from cobra (unknown flag, bad value).
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return engine.ExitFatal
}

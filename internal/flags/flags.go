package flags

// Package flags defines canonical CLI flag names. The same names are the
// viper keys, the config file keys and (upper-cased, '-' as '_', OPENRANK_
// prefix) the environment variables.
// IMPORTANT: These are flag *names* without leading dashes.
// Example usage:
//
//	cmd.Flags().String(flags.FlagInput, config.DefaultInput, "...")
//	env: OPENRANK_RECENT_WINDOW=168h
const (
	// Global
	FlagConfig    = "config"
	FlagVerbose   = "verbose"
	FlagLogFormat = "log-format"

	// Files
	FlagInput      = "input"
	FlagOutput     = "output"
	FlagCheckpoint = "checkpoint"

	// GitHub
	FlagToken          = "token"
	FlagGitHubAPIURL   = "github-api-url"
	FlagPace           = "pace"
	FlagRecentWindow   = "recent-window"
	FlagRequestTimeout = "request-timeout"

	// Run
	FlagRecordUnresolvable = "record-unresolvable"
	FlagConsoleFormat      = "console-format"
	FlagQuiet              = "quiet"
	FlagMetricsAddr        = "metrics-addr"
	FlagEventsFile         = "events-file"

	// Dedupe
	FlagInPlace = "in-place"
)

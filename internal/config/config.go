package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/SureOnThisShiningNight/openrank/internal/flags"
)

// Defaults.
const (
	DefaultInput          = "论文详情_批量爬取.jsonl"
	DefaultOutput         = "crawled_data.jsonl"
	DefaultCheckpoint     = "last_processed_id.txt"
	DefaultPace           = time.Second
	DefaultRecentWindow   = 30 * 24 * time.Hour
	DefaultRequestTimeout = 30 * time.Second
	DefaultLogFormat      = "console"
	DefaultConsoleFormat  = "text"
)

// EnvPrefix prefixes every environment variable the CLI reads.
const EnvPrefix = "OPENRANK"

type Config struct {
	// MAINTAINER NOTE: If you add/change/remove config fields, keep these in sync:
	// - flag names in internal/flags
	// - flag wiring in internal/cli
	// - FromViper below
	Files   Files
	GitHub  GitHub
	Run     Run
	Runtime Runtime
}

type Files struct {
	// Input is the JSON Lines work list (see --input).
	Input string

	// Output is the append-only result log (see --output).
	Output string

	// Checkpoint holds the id of the last attempted item (see --checkpoint).
	Checkpoint string
}

type GitHub struct {
	// Token authenticates API calls (see --token). Empty falls back to
	// GITHUB_TOKEN and then `gh auth token`.
	Token string

	// APIURL overrides the REST endpoint, e.g. for GitHub Enterprise (see --github-api-url).
	APIURL string

	// Pace is the minimum interval between two API calls (see --pace). 0 disables pacing.
	Pace time.Duration

	// RecentWindow is how far back "recent" commits are counted (see --recent-window).
	RecentWindow time.Duration

	// RequestTimeout bounds a single HTTP request (see --request-timeout).
	RequestTimeout time.Duration
}

type Run struct {
	// RecordUnresolvable writes an error record for references that cannot be
	// resolved instead of skipping them (see --record-unresolvable).
	RecordUnresolvable bool

	// ConsoleFormat is the progress format on stdout: text or ndjson (see --console-format).
	ConsoleFormat string

	// Quiet suppresses per-item progress lines (see --quiet).
	Quiet bool

	// MetricsAddr serves Prometheus /metrics on this address when set (see --metrics-addr).
	MetricsAddr string

	// EventsFile, when set, receives every progress event as NDJSON (see --events-file).
	EventsFile string
}

type Runtime struct {
	// Verbose enables debug logging, including every GitHub API call (see --verbose).
	Verbose bool

	// LogFormat selects the log encoder: console or json (see --log-format).
	LogFormat string
}

func New() *Config {
	return &Config{
		Files: Files{
			Input:      DefaultInput,
			Output:     DefaultOutput,
			Checkpoint: DefaultCheckpoint,
		},
		GitHub: GitHub{
			Pace:           DefaultPace,
			RecentWindow:   DefaultRecentWindow,
			RequestTimeout: DefaultRequestTimeout,
		},
		Run: Run{
			ConsoleFormat: DefaultConsoleFormat,
		},
		Runtime: Runtime{
			LogFormat: DefaultLogFormat,
		},
	}
}

// NewViper returns a viper instance with defaults and environment lookup set
// up. Flags are bound separately with BindFlags.
func NewViper() *viper.Viper {
	v := viper.New()
	d := New()
	v.SetDefault(flags.FlagInput, d.Files.Input)
	v.SetDefault(flags.FlagOutput, d.Files.Output)
	v.SetDefault(flags.FlagCheckpoint, d.Files.Checkpoint)
	v.SetDefault(flags.FlagPace, d.GitHub.Pace)
	v.SetDefault(flags.FlagRecentWindow, d.GitHub.RecentWindow)
	v.SetDefault(flags.FlagRequestTimeout, d.GitHub.RequestTimeout)
	v.SetDefault(flags.FlagConsoleFormat, d.Run.ConsoleFormat)
	v.SetDefault(flags.FlagLogFormat, d.Runtime.LogFormat)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// BindFlags makes every flag in fs a viper key of the same name.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	if err := v.BindPFlags(fs); err != nil {
		return fmt.Errorf("bind flags: %w", err)
	}
	return nil
}

// ReadFile merges the config file at path (YAML, TOML or JSON by extension).
// An empty path is a no-op.
func ReadFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	return nil
}

// FromViper builds and validates a Config. Precedence is viper's: flags set on
// the command line, then environment, then config file, then defaults.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Files: Files{
			Input:      v.GetString(flags.FlagInput),
			Output:     v.GetString(flags.FlagOutput),
			Checkpoint: v.GetString(flags.FlagCheckpoint),
		},
		GitHub: GitHub{
			Token:          v.GetString(flags.FlagToken),
			APIURL:         v.GetString(flags.FlagGitHubAPIURL),
			Pace:           v.GetDuration(flags.FlagPace),
			RecentWindow:   v.GetDuration(flags.FlagRecentWindow),
			RequestTimeout: v.GetDuration(flags.FlagRequestTimeout),
		},
		Run: Run{
			RecordUnresolvable: v.GetBool(flags.FlagRecordUnresolvable),
			ConsoleFormat:      v.GetString(flags.FlagConsoleFormat),
			Quiet:              v.GetBool(flags.FlagQuiet),
			MetricsAddr:        v.GetString(flags.FlagMetricsAddr),
			EventsFile:         v.GetString(flags.FlagEventsFile),
		},
		Runtime: Runtime{
			Verbose:   v.GetBool(flags.FlagVerbose),
			LogFormat: v.GetString(flags.FlagLogFormat),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	c.Files.Input = strings.TrimSpace(c.Files.Input)
	c.Files.Output = strings.TrimSpace(c.Files.Output)
	c.Files.Checkpoint = strings.TrimSpace(c.Files.Checkpoint)
	c.GitHub.Token = strings.TrimSpace(c.GitHub.Token)
	c.GitHub.APIURL = strings.TrimSpace(c.GitHub.APIURL)
	c.Run.MetricsAddr = strings.TrimSpace(c.Run.MetricsAddr)
	c.Run.EventsFile = strings.TrimSpace(c.Run.EventsFile)

	// File validation
	if c.Files.Input == "" {
		return errors.New("--input must not be empty")
	}
	if c.Files.Output == "" {
		return errors.New("--output must not be empty")
	}
	if c.Files.Checkpoint == "" {
		return errors.New("--checkpoint must not be empty")
	}
	if c.Files.Output == c.Files.Input || c.Files.Checkpoint == c.Files.Input || c.Files.Checkpoint == c.Files.Output {
		return errors.New("--input, --output and --checkpoint must be distinct files")
	}
	if ev := c.Run.EventsFile; ev != "" && (ev == c.Files.Input || ev == c.Files.Output || ev == c.Files.Checkpoint) {
		return errors.New("--events-file must differ from --input, --output and --checkpoint")
	}

	// GitHub validation
	if c.GitHub.APIURL != "" {
		u, err := url.Parse(c.GitHub.APIURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid --github-api-url value: %q", c.GitHub.APIURL)
		}
	}
	if c.GitHub.Pace < 0 {
		return errors.New("--pace must be >= 0")
	}
	if c.GitHub.RecentWindow <= 0 {
		return errors.New("--recent-window must be > 0")
	}
	if c.GitHub.RequestTimeout <= 0 {
		return errors.New("--request-timeout must be > 0")
	}

	// Output validation
	c.Run.ConsoleFormat = normalizeEnumValue(c.Run.ConsoleFormat)
	if c.Run.ConsoleFormat == "" {
		c.Run.ConsoleFormat = DefaultConsoleFormat
	}
	if c.Run.ConsoleFormat != "text" && c.Run.ConsoleFormat != "ndjson" {
		return fmt.Errorf("unsupported --console-format: %s (must be one of: text, ndjson)", c.Run.ConsoleFormat)
	}

	c.Runtime.LogFormat = normalizeEnumValue(c.Runtime.LogFormat)
	if c.Runtime.LogFormat == "" {
		c.Runtime.LogFormat = DefaultLogFormat
	}
	if c.Runtime.LogFormat != "console" && c.Runtime.LogFormat != "json" {
		return fmt.Errorf("unsupported --log-format: %s (must be one of: console, json)", c.Runtime.LogFormat)
	}

	return nil
}

func normalizeEnumValue(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

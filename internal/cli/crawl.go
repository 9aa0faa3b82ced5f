package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/SureOnThisShiningNight/openrank/internal/checkpoint"
	"github.com/SureOnThisShiningNight/openrank/internal/config"
	"github.com/SureOnThisShiningNight/openrank/internal/engine"
	"github.com/SureOnThisShiningNight/openrank/internal/fetcher"
	"github.com/SureOnThisShiningNight/openrank/internal/flags"
	gh "github.com/SureOnThisShiningNight/openrank/internal/github"
	"github.com/SureOnThisShiningNight/openrank/internal/logging"
	"github.com/SureOnThisShiningNight/openrank/internal/metrics"
	"github.com/SureOnThisShiningNight/openrank/internal/output"
	"github.com/SureOnThisShiningNight/openrank/internal/ratelimit"
	"github.com/SureOnThisShiningNight/openrank/internal/worklist"
)

const crawlLong = `Run, or resume, the enrichment sweep.

For every item of the input list, in order, openrank resolves the GitHub link,
fetches the repository summary, its contributors, the commits of the recent
window and the total commit count, appends one record to the output log and
then saves the item's id to the checkpoint file. On the next start the sweep
resumes right after the checkpointed id; once the last item is done the
checkpoint file is removed.

A failed API call never stops the sweep: the record keeps what was fetched and
its "error" field says what went wrong. Links that are not github.com/OWNER/REPO
are skipped unless --record-unresolvable is set.

Authentication:
	Sources (in order):
	1) --token, the config file, or OPENRANK_TOKEN
	2) GITHUB_TOKEN environment variable
	3) GitHub CLI (gh) authentication via gh auth token

	The token is checked against the API before the first item is processed.

Exit codes:
	0   = sweep completed (individual items may have failed)
	3   = fatal error (input unreadable, authentication, config, output or checkpoint I/O)
	130 = interrupted (SIGINT/SIGTERM); rerun to resume

Examples:
	openrank crawl --input papers.jsonl --output repos.jsonl
	openrank crawl --pace 2s --recent-window 168h --metrics-addr :9090
	openrank crawl --console-format ndjson | jq 'select(.type == "item.finished")'
	openrank crawl --quiet --events-file sweep-events.ndjson
`

func newCrawlCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Run or resume the enrichment sweep",
		Long:  crawlLong,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCrawl(cmd, v)
		},
	}

	f := cmd.Flags()
	// GitHub
	f.String(flags.FlagToken, "", "GitHub token (default: GITHUB_TOKEN, then gh auth token)")
	f.String(flags.FlagGitHubAPIURL, "", "GitHub REST API base URL (GitHub Enterprise)")
	f.Duration(flags.FlagPace, config.DefaultPace, "Minimum interval between API calls (0 disables pacing)")
	f.Duration(flags.FlagRecentWindow, config.DefaultRecentWindow, "Window for the recent commit count")
	f.Duration(flags.FlagRequestTimeout, config.DefaultRequestTimeout, "Timeout of a single API request")

	// Run
	f.Bool(flags.FlagRecordUnresolvable, false, "Write an error record for unresolvable links instead of skipping them")
	f.String(flags.FlagConsoleFormat, config.DefaultConsoleFormat, "Progress format on stdout: text|ndjson")
	f.Bool(flags.FlagQuiet, false, "Only print the start and end of the sweep")
	f.String(flags.FlagMetricsAddr, "", "Serve Prometheus metrics on this address (e.g. :9090)")
	f.String(flags.FlagEventsFile, "", "Append every progress event as NDJSON to this file")
	return cmd
}

func runCrawl(cmd *cobra.Command, v *viper.Viper) error {
	cfg, err := config.FromViper(v)
	if err != nil {
		return fatal(err)
	}

	logger, err := logging.New(cfg.Runtime.LogFormat, cfg.Runtime.Verbose)
	if err != nil {
		return fatal(err)
	}
	logger = logger.With(zap.String("run_id", uuid.NewString()))
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	token, source, err := gh.ResolveToken(ctx, cfg.GitHub.Token)
	if err != nil {
		return fatal(err)
	}
	logger.Debug("resolved GitHub token", zap.String("source", string(source)))

	items, client, err := preflight(ctx, cfg, token, logger)
	if err != nil {
		return fatal(err)
	}
	defer client.Close()
	logger.Info("preflight ok",
		zap.String("input", cfg.Files.Input),
		zap.Int("items", len(items)),
		zap.String("login", client.Login))

	m := metrics.New()
	if cfg.Run.MetricsAddr != "" {
		go func() {
			if err := m.Serve(ctx, cfg.Run.MetricsAddr); err != nil {
				logger.Warn("metrics server stopped", zap.String("addr", cfg.Run.MetricsAddr), zap.Error(err))
			}
		}()
	}

	pacer := ratelimit.NewPacer(cfg.GitHub.Pace)
	pacer.OnWait(m.PacingWait)
	f, err := fetcher.New(client, pacer, ratelimit.NewBudget(),
		fetcher.WithLogger(logger),
		fetcher.WithMetrics(m),
		fetcher.WithRecentWindow(cfg.GitHub.RecentWindow))
	if err != nil {
		return fatal(err)
	}

	results, err := output.OpenResultLog(cfg.Files.Output)
	if err != nil {
		return fatal(err)
	}
	defer func() { _ = results.Close() }()

	console, err := output.NewConsoleSink(cmd.OutOrStdout(), cfg.Run.ConsoleFormat, cfg.Run.Quiet)
	if err != nil {
		return fatal(err)
	}
	out := output.NewManager(console)
	defer func() { _ = out.Close() }()
	if cfg.Run.EventsFile != "" {
		events, err := output.OpenEventLog(cfg.Run.EventsFile)
		if err != nil {
			return fatal(err)
		}
		if err := out.AddSink(events); err != nil {
			_ = events.Close()
			return fatal(err)
		}
	}

	eng, err := engine.New(items, checkpoint.NewFileStore(cfg.Files.Checkpoint, logger), f, results,
		engine.WithOutput(out),
		engine.WithLogger(logger),
		engine.WithMetrics(m),
		engine.WithRecordUnresolvable(cfg.Run.RecordUnresolvable))
	if err != nil {
		return fatal(err)
	}

	sum, err := eng.Run(ctx)
	if code := engine.ExitCode(sum.State, err); code != engine.ExitOK {
		return &ExitError{Code: code, Err: err}
	}
	return nil
}

// preflight loads the work list and authenticates the client concurrently.
// Either failure is fatal.
func preflight(ctx context.Context, cfg *config.Config, token string, logger *zap.Logger) ([]worklist.Item, *gh.Client, error) {
	var (
		items  []worklist.Item
		client *gh.Client
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		loaded, err := worklist.Load(cfg.Files.Input, logger)
		if err != nil {
			return err
		}
		items = loaded
		return nil
	})
	g.Go(func() error {
		c, err := gh.Connect(gctx, token,
			gh.WithLogger(logger),
			gh.WithVerbose(cfg.Runtime.Verbose),
			gh.WithBaseURL(cfg.GitHub.APIURL),
			gh.WithTimeout(cfg.GitHub.RequestTimeout))
		if err != nil {
			return err
		}
		client = c
		return nil
	})
	if err := g.Wait(); err != nil {
		if client != nil {
			client.Close()
		}
		return nil, nil, err
	}
	return items, client, nil
}

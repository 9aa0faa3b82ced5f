package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/SureOnThisShiningNight/openrank/internal/checkpoint"
	"github.com/SureOnThisShiningNight/openrank/internal/config"
	"github.com/SureOnThisShiningNight/openrank/internal/engine"
	"github.com/SureOnThisShiningNight/openrank/internal/logging"
	"github.com/SureOnThisShiningNight/openrank/internal/output"
	"github.com/SureOnThisShiningNight/openrank/internal/worklist"
)

func newStatusCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show sweep progress and output log health",
		Long: `Show where the next crawl would start and what the output log holds.

status is read-only: it never touches the checkpoint or the output log and
needs no GitHub token.

Examples:
	openrank status
	openrank status --input papers.jsonl --output repos.jsonl`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromViper(v)
			if err != nil {
				return fatal(err)
			}
			logger, err := logging.New(cfg.Runtime.LogFormat, cfg.Runtime.Verbose)
			if err != nil {
				return fatal(err)
			}
			defer func() { _ = logger.Sync() }()

			st, err := collectStatus(cfg, logger)
			if err != nil {
				return fatal(err)
			}
			return renderStatus(cmd.OutOrStdout(), cfg, st)
		},
	}
}

type sweepStatus struct {
	Items       int
	Checkpoint  *int64
	Offset      int
	ResumedFrom *int64
	Log         output.LogStats
}

func collectStatus(cfg *config.Config, logger *zap.Logger) (sweepStatus, error) {
	items, err := worklist.Load(cfg.Files.Input, logger)
	if err != nil {
		return sweepStatus{}, err
	}
	store := checkpoint.NewFileStore(cfg.Files.Checkpoint, logger)

	st := sweepStatus{Items: len(items)}
	if id, ok := store.Load(); ok {
		st.Checkpoint = &id
	}
	st.Offset, st.ResumedFrom = engine.ResumePoint(items, store, logger)

	recs, corrupt, err := output.ReadRecordsFile(cfg.Files.Output)
	if err != nil {
		return sweepStatus{}, err
	}
	st.Log = output.Summarize(recs, corrupt)
	return st, nil
}

func renderStatus(w io.Writer, cfg *config.Config, st sweepStatus) error {
	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.DrawBorder = false
	tbl.Style().Options.SeparateColumns = false

	tbl.AppendHeader(table.Row{"", "Value", "Detail"})
	tbl.AppendRow(table.Row{"Input", humanize.Comma(int64(st.Items)) + " items", cfg.Files.Input})

	checkpointValue := "none"
	if st.Checkpoint != nil {
		checkpointValue = fmt.Sprintf("#%d", *st.Checkpoint)
	}
	tbl.AppendRow(table.Row{"Checkpoint", checkpointValue, cfg.Files.Checkpoint})

	tbl.AppendRow(table.Row{"Next start", nextStart(st), ""})
	tbl.AppendRow(table.Row{"Output", humanize.Comma(int64(st.Log.Lines)) + " lines", cfg.Files.Output})
	tbl.AppendRow(table.Row{"  distinct ids", humanize.Comma(int64(st.Log.Distinct)), ""})
	tbl.AppendRow(table.Row{"  duplicates", humanize.Comma(int64(st.Log.Duplicates)), "run dedupe to collapse"})
	tbl.AppendRow(table.Row{"  corrupt lines", humanize.Comma(int64(st.Log.Corrupt)), ""})
	tbl.AppendRow(table.Row{"  succeeded", humanize.Comma(int64(st.Log.Succeeded)), ""})
	tbl.AppendRow(table.Row{"  failed", humanize.Comma(int64(st.Log.Failed)), errorBreakdown(st.Log.Errors)})
	tbl.Render()

	if st.Checkpoint != nil && st.ResumedFrom == nil {
		_, err := color.New(color.FgYellow).Fprintf(w, "checkpoint #%d is not in the input; the next crawl restarts from the beginning\n", *st.Checkpoint)
		return err
	}
	return nil
}

func nextStart(st sweepStatus) string {
	if st.Offset >= st.Items {
		return "nothing left; the next crawl only clears the checkpoint"
	}
	if st.ResumedFrom == nil {
		return fmt.Sprintf("item 1 of %s (fresh sweep)", humanize.Comma(int64(st.Items)))
	}
	return fmt.Sprintf("item %s of %s (%.1f%% done)",
		humanize.Comma(int64(st.Offset+1)),
		humanize.Comma(int64(st.Items)),
		100*float64(st.Offset)/float64(st.Items))
}

func errorBreakdown(errs map[string]int) string {
	parts := make([]string, 0, len(errs))
	for class, n := range errs {
		parts = append(parts, fmt.Sprintf("%s %d", class, n))
	}
	sort.Strings(parts)
	return strings.Join(parts, ", ")
}

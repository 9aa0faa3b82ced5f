package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/SureOnThisShiningNight/openrank/internal/config"
	"github.com/SureOnThisShiningNight/openrank/internal/flags"
	"github.com/SureOnThisShiningNight/openrank/internal/output"
)

func newDedupeCmd(v *viper.Viper) *cobra.Command {
	var inPlace bool
	cmd := &cobra.Command{
		Use:   "dedupe [DEST]",
		Short: "Keep the last record per id in the output log",
		Long: `Collapse duplicate records in the output log.

A crash between appending a record and saving the checkpoint makes the next
crawl process that item again, so the log can hold two records for one id.
dedupe keeps the last record for every id, in the order ids first appeared,
and drops corrupt lines (e.g. a line torn by a crash).

The result goes to DEST, to stdout when DEST is omitted, or replaces the
output log with --in-place. Do not run --in-place while a crawl is running.

Examples:
	openrank dedupe > clean.jsonl
	openrank dedupe clean.jsonl
	openrank dedupe --in-place --output repos.jsonl`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromViper(v)
			if err != nil {
				return fatal(err)
			}
			if inPlace && len(args) > 0 {
				return fatal(fmt.Errorf("--%s and DEST are mutually exclusive", flags.FlagInPlace))
			}

			recs, corrupt, err := output.ReadRecordsFile(cfg.Files.Output)
			if err != nil {
				return fatal(err)
			}
			kept := output.Dedupe(recs)

			switch {
			case inPlace:
				err = replaceFile(cfg.Files.Output, func(w io.Writer) error { return output.WriteRecords(w, kept) })
			case len(args) == 1:
				err = replaceFile(args[0], func(w io.Writer) error { return output.WriteRecords(w, kept) })
			default:
				err = output.WriteRecords(cmd.OutOrStdout(), kept)
			}
			if err != nil {
				return fatal(err)
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "kept %s of %s records (%s duplicates, %s corrupt lines dropped)\n",
				humanize.Comma(int64(len(kept))),
				humanize.Comma(int64(len(recs))),
				humanize.Comma(int64(len(recs)-len(kept))),
				humanize.Comma(int64(corrupt)))
			return nil
		},
	}
	cmd.Flags().BoolVar(&inPlace, flags.FlagInPlace, false, "Rewrite the output log instead of writing to DEST or stdout")
	return cmd
}

// replaceFile writes through a temp file in the same directory and renames it
// over path. The result keeps path's permissions, or gets the result log's
// 0644 when path does not exist yet.
func replaceFile(path string, write func(io.Writer) error) error {
	mode := os.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := tmp.Chmod(mode); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod %s: %w", tmpName, err)
	}
	if err := write(tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

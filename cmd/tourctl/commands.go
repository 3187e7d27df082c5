// Tourtracker - Tour Progress Tracking Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourtracker

package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomtom215/tourtracker/internal/config"
	"github.com/tomtom215/tourtracker/internal/ingest"
	"github.com/tomtom215/tourtracker/internal/legacy"
	"github.com/tomtom215/tourtracker/internal/progress"
	"github.com/tomtom215/tourtracker/internal/tour"
	"github.com/tomtom215/tourtracker/internal/wal"
)

// openLog loads the configuration and opens the durable log it names.
func openLog(opts *RootOptions) (*config.Config, *wal.BadgerWAL, error) {
	cfg, err := opts.config()
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to load configuration", err)
	}
	log, err := wal.Open(&cfg.Log)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to open durable log", err)
	}
	return cfg, log, nil
}

// ImportOptions holds flags for the import-sqlite command.
type ImportOptions struct {
	*RootOptions
	Database   string
	BatchSize  int
	AfterRowID int64
	DryRun     bool
	SkipMedals bool
}

// NewImportCommand creates the import-sqlite command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import-sqlite",
		Short: "Import a legacy SQLite database into the durable log",
		Long: `Import the WaveCredits and MedalOwners tables of the previous tour
server. Credits are appended in rowid order; credits outside the configured
mission catalog are skipped. MedalOwners rows become reward ledger entries.

Importing the same database twice appends its credits twice. The progress
index ignores the repeats, but the log grows. Use --after-row to resume an
interrupted import.

Examples:
  tourctl import-sqlite --db tour.sq3
  tourctl import-sqlite --db tour.sq3 --dry-run --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to legacy SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().IntVar(&opts.BatchSize, "batch", 1000, "credits per append")
	cmd.Flags().Int64Var(&opts.AfterRowID, "after-row", 0, "resume after this WaveCredits rowid")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "read and validate without writing")
	cmd.Flags().BoolVar(&opts.SkipMedals, "skip-medals", false, "do not import MedalOwners")

	return cmd
}

func runImport(ctx context.Context, opts *ImportOptions, w io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, log, err := openLog(opts.RootOptions)
	if err != nil {
		return err
	}
	defer func() { _ = log.Close() }()

	catalog, err := tour.NewCatalog(cfg.Tour.Missions)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid mission catalog", err)
	}

	r, err := legacy.Open(ctx, opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open legacy database", err)
	}
	defer func() { _ = r.Close() }()

	stats, err := legacy.Import(ctx, r, log, catalog, legacy.Options{
		BatchSize:  opts.BatchSize,
		AfterRowID: opts.AfterRowID,
		DryRun:     opts.DryRun,
		SkipMedals: opts.SkipMedals,
	})
	if err != nil {
		return WrapExitError(ExitFailure, fmt.Sprintf("import stopped, resume with --after-row %d", stats.LastProcessedID), err)
	}

	return opts.print(w, stats, func(w io.Writer) {
		fmt.Fprintf(w, "records:   %d\n", stats.TotalRecords)
		fmt.Fprintf(w, "imported:  %d\n", stats.Imported)
		fmt.Fprintf(w, "invalid:   %d\n", stats.Invalid)
		fmt.Fprintf(w, "bad ids:   %d\n", stats.BadIDs)
		fmt.Fprintf(w, "medals:    %d\n", stats.Medals)
		fmt.Fprintf(w, "last row:  %d\n", stats.LastProcessedID)
		if stats.DryRun {
			fmt.Fprintln(w, "dry run, nothing written")
		}
	})
}

// CompletionistsOptions holds flags for the completionists command.
type CompletionistsOptions struct {
	*RootOptions
	ExcludeRewarded bool
}

// CompletionistsResult is the JSON output of the completionists command.
type CompletionistsResult struct {
	Participants []string `json:"participants"`
	Rewarded     int      `json:"rewarded"`
	Total        int      `json:"total"`
}

// NewCompletionistsCommand creates the completionists command.
func NewCompletionistsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompletionistsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "completionists",
		Short: "List participants who completed every mission",
		Long: `Replay the durable log and print every participant whose progress
covers the whole mission catalog, one Steam64 ID per line in ascending order.
With --exclude-rewarded, participants already in the reward ledger are left
out, which gives the list of rewards still owed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompletionists(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&opts.ExcludeRewarded, "exclude-rewarded", false, "omit participants in the reward ledger")

	return cmd
}

func runCompletionists(ctx context.Context, opts *CompletionistsOptions, w io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, log, err := openLog(opts.RootOptions)
	if err != nil {
		return err
	}
	defer func() { _ = log.Close() }()

	catalog, err := tour.NewCatalog(cfg.Tour.Missions)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid mission catalog", err)
	}

	index := progress.NewIndex(catalog)
	ledger := progress.NewLedger()
	if _, err := ingest.Recover(ctx, log, index, ledger); err != nil {
		return WrapExitError(ExitFailure, "failed to replay durable log", err)
	}

	completed := index.Completed()
	sort.Slice(completed, func(i, j int) bool { return completed[i] < completed[j] })

	res := CompletionistsResult{Participants: []string{}, Total: len(completed)}
	for _, id := range completed {
		if ledger.Has(id) {
			res.Rewarded++
			if opts.ExcludeRewarded {
				continue
			}
		}
		res.Participants = append(res.Participants, strconv.FormatUint(id, 10))
	}

	return opts.print(w, res, func(w io.Writer) {
		for _, id := range res.Participants {
			fmt.Fprintln(w, id)
		}
	})
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print durable log statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, log, err := openLog(rootOpts)
			if err != nil {
				return err
			}
			defer func() { _ = log.Close() }()

			st := log.Stats()
			return rootOpts.print(cmd.OutOrStdout(), st, func(w io.Writer) {
				fmt.Fprintf(w, "credits:  %d\n", st.Credits)
				fmt.Fprintf(w, "grants:   %d\n", st.Grants)
				fmt.Fprintf(w, "size:     %d bytes\n", st.DBSizeBytes)
			})
		},
	}
}

// NewGCCommand creates the gc command.
func NewGCCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "gc",
		Short: "Run value-log garbage collection",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, log, err := openLog(rootOpts)
			if err != nil {
				return err
			}
			defer func() { _ = log.Close() }()

			start := time.Now()
			before := log.Stats().DBSizeBytes
			if err := log.RunGC(); err != nil {
				return WrapExitError(ExitFailure, "garbage collection failed", err)
			}
			after := log.Stats().DBSizeBytes
			fmt.Fprintf(cmd.OutOrStdout(), "gc done in %s: %d -> %d bytes\n", time.Since(start).Round(time.Millisecond), before, after)
			return nil
		},
	}
}

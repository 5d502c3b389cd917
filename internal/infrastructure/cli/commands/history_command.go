package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/MustafaMerchant21/Nova/internal/app"
	"github.com/MustafaMerchant21/Nova/internal/domain"
	"github.com/MustafaMerchant21/Nova/internal/infrastructure/cli/helpers"
	"github.com/MustafaMerchant21/Nova/internal/infrastructure/history"
	"github.com/MustafaMerchant21/Nova/internal/ports"
)

// NewHistoryCommand creates the history command with all subcommands
func NewHistoryCommand(container *app.Container) *cobra.Command {
	historyCmd := &cobra.Command{
		Use:     "history",
		Aliases: []string{"audit"},
		Short:   "Inspect the audit trail of gate decisions",
	}

	historyCmd.AddCommand(
		newHistoryListCommand(container),
		newHistorySearchCommand(container),
		newHistoryClearCommand(container),
		newHistoryExportCommand(container),
		newHistoryStatsCommand(container),
		newHistoryRetainCommand(container),
	)
	return historyCmd
}

func newHistoryListCommand(container *app.Container) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent audit entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return listHistoryEntries(cmd.Context(), cmd.OutOrStdout(), container, limit, "")
		},
	}
	cmd.Flags().IntVar(&limit, "limit", domain.DefaultHistoryLimit, "Max entries to show")
	return cmd
}

func newHistorySearchCommand(container *app.Container) *cobra.Command {
	var (
		query       string
		searchLimit int
	)
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search input, kind, run ID or threat level",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				query = args[0]
			}
			if query == "" {
				return errors.New(ErrQueryRequired)
			}
			return listHistoryEntries(cmd.Context(), cmd.OutOrStdout(), container, searchLimit, query)
		},
	}
	cmd.Flags().StringVar(&query, "query", "", "Search keyword")
	cmd.Flags().IntVar(&searchLimit, "limit", domain.DefaultHistorySearchLimit, "Limit search results")
	return cmd
}

func newHistoryClearCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete every audit entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := historyStore(container)
			if err != nil {
				return err
			}
			if err := store.Clear(cmd.Context()); err != nil {
				return fmt.Errorf("failed to clear history: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %s\n", store.Path())
			return nil
		},
	}
}

func newHistoryExportCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "export <path>",
		Short: "Export the audit trail to a JSONL file, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := historyStore(container)
			if err != nil {
				return err
			}
			exporter, ok := store.(history.Exporter)
			if !ok {
				return fmt.Errorf("history backend at %s cannot export", store.Path())
			}
			if err := exporter.ExportJSON(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("failed to export history to %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported history to %s\n", args[0])
			return nil
		},
	}
}

func newHistoryStatsCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show decisions, success rate and top inputs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showHistoryStats(cmd.Context(), cmd.OutOrStdout(), container)
		},
	}
}

func newHistoryRetainCommand(container *app.Container) *cobra.Command {
	var retainDays int
	cmd := &cobra.Command{
		Use:   "retain",
		Short: "Prune entries older than N days and update the retention policy",
		RunE: func(cmd *cobra.Command, args []string) error {
			if retainDays <= 0 {
				return errors.New(ErrInvalidRetainDays)
			}
			return updateHistoryRetention(cmd.Context(), cmd.OutOrStdout(), container, retainDays)
		},
	}
	cmd.Flags().IntVar(&retainDays, "days", domain.DefaultHistoryRetainDays, "Days to retain history")
	return cmd
}

func historyStore(container *app.Container) (ports.AuditRepository, error) {
	if container.HistoryStore == nil {
		return nil, errors.New(ErrHistoryStoreUnavailable)
	}
	return container.HistoryStore, nil
}

func listHistoryEntries(ctx context.Context, out io.Writer, container *app.Container, limit int, query string) error {
	store, err := historyStore(container)
	if err != nil {
		return err
	}
	records, err := store.Records(ctx, limit, query)
	if err != nil {
		return fmt.Errorf("failed to retrieve history records: %w", err)
	}
	if len(records) == 0 {
		fmt.Fprintln(out, MsgNoHistoryRecorded)
		return nil
	}
	for _, rec := range records {
		fmt.Fprintln(out, formatRecord(rec))
	}
	return nil
}

func formatRecord(rec domain.AuditRecord) string {
	return fmt.Sprintf("%s | %-10s | %-8s | %-9s | %s",
		rec.Timestamp.Local().Format(DisplayTimestampFormat),
		rec.Kind,
		rec.ThreatLevel,
		outcome(rec),
		preview(rec.Input))
}

func outcome(rec domain.AuditRecord) string {
	switch {
	case rec.Kind == domain.AuditValidate:
		return "checked"
	case !rec.Allowed:
		return "denied"
	case !rec.Executed:
		return "allowed"
	case rec.Success:
		return "ok"
	default:
		return fmt.Sprintf("exit %d", rec.ExitCode)
	}
}

func preview(input string) string {
	input = strings.Join(strings.Fields(input), " ")
	if len(input) > historyInputPreviewLength {
		return input[:historyInputPreviewLength-3] + "..."
	}
	return input
}

func showHistoryStats(ctx context.Context, out io.Writer, container *app.Container) error {
	store, err := historyStore(container)
	if err != nil {
		return err
	}
	records, err := store.Records(ctx, domain.MaxHistoryAnalysisRecords, "")
	if err != nil {
		return fmt.Errorf("failed to retrieve history for analysis: %w", err)
	}
	if len(records) == 0 {
		fmt.Fprintln(out, MsgNoHistoryRecorded)
		return nil
	}
	displayHistoryStatistics(out, helpers.AnalyzeRecords(records), records)
	return nil
}

// displayHistoryStatistics expects records newest first.
func displayHistoryStatistics(out io.Writer, stats helpers.AuditStats, records []domain.AuditRecord) {
	oldest := records[len(records)-1].Timestamp
	fmt.Fprintf(out, "Entries analyzed: %d (since %s)\n", stats.Total, humanize.Time(oldest))
	fmt.Fprintf(out, "Allowed: %d  Denied: %d  Executed: %d\n", stats.Allowed, stats.Denied, stats.Executed)
	fmt.Fprintf(out, "Success rate: %.1f%%\n", stats.SuccessRate())

	fmt.Fprintln(out, "Threat levels:")
	levels := domain.AllThreatLevels()
	sort.Slice(levels, func(i, j int) bool { return levels[i] > levels[j] })
	for _, level := range levels {
		if count := stats.ByLevel[level]; count > 0 {
			fmt.Fprintf(out, "  %s: %d\n", level, count)
		}
	}

	if top := stats.TopInputs(DefaultTopInputs); len(top) > 0 {
		fmt.Fprintln(out, "Top inputs:")
		for _, stat := range top {
			fmt.Fprintf(out, "  %s (%d)\n", preview(stat.Input), stat.Count)
		}
	}

	if hints := helpers.DeriveUndoHints(records); len(hints) > 0 {
		fmt.Fprintln(out, "Undo hints:")
		for _, hint := range hints {
			fmt.Fprintf(out, "  - %s\n", hint)
		}
	}
}

func updateHistoryRetention(ctx context.Context, out io.Writer, container *app.Container, days int) error {
	store, err := historyStore(container)
	if err != nil {
		return err
	}
	cutoff := time.Now().AddDate(0, 0, -days)
	removed, err := store.PruneOlderThan(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to prune old history: %w", err)
	}

	loader, err := helpers.GetConfigLoader(container)
	if err != nil {
		return err
	}
	cfg, err := loader.LoadFile()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	cfg.History.RetentionDays = days
	if err := helpers.SaveConfigWithValidation(container, cfg); err != nil {
		return err
	}

	fmt.Fprintf(out, "Removed %d entries older than %s; retaining %d days.\n",
		removed, cutoff.Format(DisplayTimestampFormat), days)
	return nil
}

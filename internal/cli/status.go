package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/vietddude/livefeed/internal/core/config"
	"github.com/vietddude/livefeed/internal/infra/storage/postgres"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent classified errors and per-category totals",
	Run:   runStatus,
}

var statusLimit int

func init() {
	statusCmd.Flags().IntVar(&statusLimit, "limit", 20, "number of recent errors to show")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.Database.URL == "" {
		fmt.Println("No database configured; the status command needs the persistent error journal")
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = db.Close()
	}()

	journal := postgres.NewErrorJournal(db)

	counts, err := journal.CountByCategory(ctx)
	if err != nil {
		slog.Error("Failed to count errors", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "CATEGORY\tTOTAL")
	for cat, n := range counts {
		_, _ = fmt.Fprintf(w, "%s\t%d\n", cat, n)
	}
	_ = w.Flush()

	records, err := journal.Recent(ctx, statusLimit)
	if err != nil {
		slog.Error("Failed to query error journal", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	w = tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "TIME\tCATEGORY\tSEVERITY\tOPERATION\tMESSAGE")
	for _, rec := range records {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			rec.OccurredAt.Format("2006-01-02 15:04:05"),
			rec.Category, rec.Severity, rec.Operation, rec.Message)
	}
	_ = w.Flush()
}

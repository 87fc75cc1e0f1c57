package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/vietddude/livefeed/internal/core/config"
	"github.com/vietddude/livefeed/internal/infra/storage/postgres"
)

var purgeErrorsCmd = &cobra.Command{
	Use:   "purge-errors [hours]",
	Short: "Delete journal entries older than the given number of hours",
	Args:  cobra.ExactArgs(1),
	Run:   runPurgeErrors,
}

func init() {
	rootCmd.AddCommand(purgeErrorsCmd)
}

func runPurgeErrors(cmd *cobra.Command, args []string) {
	hours, err := strconv.Atoi(args[0])
	if err != nil || hours <= 0 {
		fmt.Printf("Invalid hours value: %v\n", args[0])
		os.Exit(1)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
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

	// Direct SQL is fine for a one-shot maintenance command.
	query := "DELETE FROM error_journal WHERE occurred_at < now() - ($1 * interval '1 hour')"
	res, err := db.ExecContext(ctx, query, hours)
	if err != nil {
		slog.Error("Failed to purge error journal", "error", err)
		os.Exit(1)
	}

	deleted, _ := res.RowsAffected()
	fmt.Printf("Purged %d error records older than %dh\n", deleted, hours)
}

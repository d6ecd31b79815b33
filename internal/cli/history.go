package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/duongvq/homelink/internal/core/config"
	"github.com/duongvq/homelink/internal/infra/journal"
)

var historyCmd = &cobra.Command{
	Use:   "history [limit]",
	Short: "Show recent state transitions from the journal",
	Args:  cobra.MaximumNArgs(1),
	Run:   runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) {
	limit := 20
	if len(args) == 1 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			fmt.Printf("Invalid limit: %s\n", args[0])
			os.Exit(1)
		}
		limit = n
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.Journal.URL == "" {
		fmt.Println("Journal is not configured")
		os.Exit(1)
	}

	ctx := context.Background()
	jnl, err := journal.Open(ctx, cfg.Journal, slog.Default())
	if err != nil {
		slog.Error("Failed to open journal", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = jnl.Close()
	}()

	rows, err := jnl.Recent(ctx, limit)
	if err != nil {
		slog.Error("Failed to query transitions", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "TIME\tEVENT\tINTERFACE\tFROM\tTO\tFAILURE")

	for _, row := range rows {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			row.OccurredAt.Format("2006-01-02 15:04:05"),
			row.EventType, row.Interface, row.OldState, row.NewState, row.Failure)
	}
	_ = w.Flush()
}

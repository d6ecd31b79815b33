package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/duongvq/homelink/internal/core/config"
	"github.com/duongvq/homelink/internal/resilience/health"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current state of all configured interfaces",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	url := fmt.Sprintf("http://localhost:%d/health/detailed", cfg.Server.Port)

	resp, err := client.Get(url)
	if err != nil {
		slog.Error("Failed to reach hub, is it running?", "url", url, "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	var report health.Report
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		slog.Error("Failed to decode health report", "error", err)
		os.Exit(1)
	}

	fmt.Printf("System: %s (central state %s)\n", report.Status, report.CentralState)
	if report.Failure != "" {
		fmt.Printf("Failure: %s on %s\n", report.Failure, report.FailedOn)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "INTERFACE\tSTATE\tBREAKER\tAVAILABLE\tISSUES")

	for _, iface := range cfg.Interfaces {
		h, ok := report.Interfaces[string(iface.ID)]
		if !ok {
			continue
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%v\t%d\n",
			h.Interface, h.ClientState, h.BreakerState, h.Available, len(h.Issues))
	}
	_ = w.Flush()
}

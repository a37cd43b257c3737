package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/paywatch/internal/core/config"
	"github.com/vietddude/paywatch/internal/infra/journal"
)

var paymentsLimit int

var paymentsCmd = &cobra.Command{
	Use:   "payments",
	Short: "Show recently journaled payments",
	Run:   runPayments,
}

func init() {
	paymentsCmd.Flags().IntVar(&paymentsLimit, "limit", 20, "maximum rows to show")
	rootCmd.AddCommand(paymentsCmd)
}

func runPayments(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.Database.URL == "" {
		slog.Error("No database configured, journal unavailable")
		os.Exit(1)
	}

	ctx := context.Background()
	j, err := journal.Open(ctx, cfg.Database, slog.Default())
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = j.Close()
	}()

	entries, err := j.Recent(ctx, paymentsLimit)
	if err != nil {
		slog.Error("Failed to query payments", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "NETWORK\tADDRESS\tTX\tAMOUNT\tDETECTED")

	for _, e := range entries {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s %s\t%s\n",
			e.Network, e.Address, e.TxID, e.Amount, e.Currency,
			e.DetectedAt.Format(time.RFC3339))
	}
	_ = w.Flush()
}

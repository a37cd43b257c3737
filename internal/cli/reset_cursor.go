package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vietddude/paywatch/internal/core/config"
	"github.com/vietddude/paywatch/internal/infra/checkpoint"
)

var resetCursorCmd = &cobra.Command{
	Use:   "reset-cursor <network> <address>",
	Short: "Delete the stored poll cursor so the next watch cold-starts",
	Args:  cobra.ExactArgs(2),
	Run:   runResetCursor,
}

func init() {
	rootCmd.AddCommand(resetCursorCmd)
}

func runResetCursor(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.Redis.URL == "" {
		slog.Error("No Redis configured, checkpoints unavailable")
		os.Exit(1)
	}

	store, err := checkpoint.NewRedisStore(cfg.Redis)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = store.Close()
	}()

	key := fmt.Sprintf("cursor:%s:%s", args[0], args[1])
	if err := store.Delete(context.Background(), key); err != nil {
		slog.Error("Failed to delete cursor", "key", key, "error", err)
		os.Exit(1)
	}
	slog.Info("Cursor reset", "network", args[0], "address", args[1])
}

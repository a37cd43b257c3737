package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/vietddude/stylelog"

	"github.com/vietddude/paywatch/internal/control"
	"github.com/vietddude/paywatch/internal/core/config"
	"github.com/vietddude/paywatch/internal/core/registry"
)

var (
	cfgPath string
	isDebug bool
)

var rootCmd = &cobra.Command{
	Use:   "paywatch",
	Short: "Paywatch payment monitoring service",
	Long:  `Paywatch watches wallet addresses across EVM, Solana, and Bitcoin networks and reports incoming payments once they reach the required confirmation depth.`,
	Run:   runWatch,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
}

func runWatch(cmd *cobra.Command, args []string) {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		stylelog.InitDefault()
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	slogLevel := slog.LevelInfo
	if isDebug || cfg.Logging.Level == "debug" {
		slogLevel = slog.LevelDebug
	}

	stylelog.InitDefault(&tint.Options{
		Level:      slogLevel,
		TimeFormat: time.RFC3339,
	})

	app, err := control.NewSupervisor(control.Config{
		Port:     cfg.Server.Port,
		Watches:  cfg.Watches,
		Redis:    cfg.Redis,
		Database: cfg.Database,
		Metrics:  cfg.Metrics,
	}, registry.New(), slog.Default())
	if err != nil {
		slog.Error("Failed to initialize supervisor", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Run(ctx)
	}()

	slog.Info("Paywatch started", "config", cfgPath, "watches", len(cfg.Watches))

	select {
	case sig := <-sigChan:
		slog.Info("Received signal, shutting down...", "signal", sig)
		app.Stop()
		if err := <-errCh; err != nil {
			slog.Error("Error during shutdown", "error", err)
			os.Exit(1)
		}
	case err := <-errCh:
		if err != nil {
			slog.Error("Watch terminated", "error", err)
			os.Exit(1)
		}
	}

	slog.Info("Paywatch stopped gracefully")
}

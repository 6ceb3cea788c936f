package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/user/coinsight/internal/session"
	"github.com/user/coinsight/internal/telegram"
)

func init() {
	rootCmd.AddCommand(botCmd)
}

var botCmd = &cobra.Command{
	Use:   "bot",
	Short: "Start the Telegram bot",
	RunE:  runBot,
}

func runBot(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram token not configured (set telegram.token or TELEGRAM_BOT_TOKEN)")
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	engine := session.NewEngine(session.NewStore(cfg.DataDir))

	adapter, err := telegram.New(cfg.Telegram.Token, cfg.Telegram.AgentURL, engine, int64(cfg.MaxConcurrent))
	if err != nil {
		return fmt.Errorf("create telegram adapter: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		slog.Info("shutting down", "signal", sig)
		cancel()
	}()

	slog.Info("telegram bot started", "agent_url", cfg.Telegram.AgentURL)
	adapter.Start(ctx)
	return nil
}

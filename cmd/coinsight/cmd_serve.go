package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/coinsight/internal/cache"
	"github.com/user/coinsight/internal/intent"
	"github.com/user/coinsight/internal/market"
	"github.com/user/coinsight/internal/producer"
	"github.com/user/coinsight/internal/scheduler"
	"github.com/user/coinsight/internal/server"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the streaming query API",
	RunE:  runServe,
}

func writePIDFile(dataDir string) (string, error) {
	pidPath := filepath.Join(dataDir, "coinsight.pid")
	pid := os.Getpid()
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		return "", fmt.Errorf("write PID file: %w", err)
	}
	return pidPath, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	// Write PID file
	pidPath, err := writePIDFile(cfg.DataDir)
	if err != nil {
		return err
	}
	defer os.Remove(pidPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Cache store
	store, err := cache.Open(cfg.Cache.DBPath)
	if err != nil {
		return fmt.Errorf("open cache store: %w", err)
	}
	defer store.Close()

	// Upstream clients
	coingecko := market.NewCoinGecko(cfg.Upstream.CoinGeckoBaseURL)
	news := market.NewNewsAPI(cfg.Upstream.NewsAPIKey)
	etherscan := market.NewEtherscan(cfg.Upstream.EtherscanAPIKey)

	// Token index: prefer the live market listing, fall back to the
	// built-in set when the upstream is unavailable at startup.
	index := intent.DefaultIndex()
	indexCtx, indexCancel := context.WithTimeout(ctx, 10*time.Second)
	if tokens, err := coingecko.Markets(indexCtx); err != nil {
		slog.Warn("token index fetch failed, using built-in set", "error", err)
	} else {
		index = intent.NewIndex(tokens)
		slog.Info("token index built", "tokens", index.Len())
	}
	indexCancel()

	resolver := intent.NewResolver(index)
	prod := producer.New(resolver, store, coingecko, news, etherscan, coingecko)

	// Cache janitor
	retention := time.Duration(cfg.Cache.RetentionHours) * time.Hour
	janitor := scheduler.NewJanitor(store, cfg.Cache.JanitorSchedule, retention)
	if err := janitor.Start(); err != nil {
		return fmt.Errorf("start cache janitor: %w", err)
	}
	defer janitor.Stop()

	// HTTP server. WriteTimeout stays zero: event streams are long-lived.
	srv := server.NewServer(prod, coingecko)
	httpServer := &http.Server{
		Addr:        cfg.HTTP.Listen,
		Handler:     srv,
		ReadTimeout: 30 * time.Second,
	}
	go func() {
		slog.Info("api server started", "listen", cfg.HTTP.Listen)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("api server error", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	slog.Info("coinsight started",
		"data_dir", cfg.DataDir,
		"log_level", cfg.LogLevel,
		"db_path", cfg.Cache.DBPath,
		"retention_hours", cfg.Cache.RetentionHours,
		"pid_file", pidPath,
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for {
		sig := <-sigChan
		if sig == syscall.SIGHUP {
			slog.Info("received SIGHUP, restarting")
			execPath, err := os.Executable()
			if err != nil {
				slog.Error("failed to get executable path", "error", err)
				continue
			}
			// Clean up PID file before re-exec
			os.Remove(pidPath)
			if err := syscall.Exec(execPath, os.Args, os.Environ()); err != nil {
				slog.Error("failed to re-exec", "error", err)
				if _, writeErr := writePIDFile(cfg.DataDir); writeErr != nil {
					slog.Error("failed to re-write PID file", "error", writeErr)
				}
				continue
			}
		}
		// SIGINT or SIGTERM
		slog.Info("shutting down", "signal", sig)
		return nil
	}
}

package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/coinsight/internal/cache"
	"github.com/user/coinsight/internal/config"
)

func init() {
	rootCmd.AddCommand(setupCmd)
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup wizard",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		scanner := bufio.NewScanner(os.Stdin)

		fmt.Println("Coinsight Setup Wizard")
		fmt.Println("Press Enter to accept the default value shown in brackets.")
		fmt.Println()

		cfg.HTTP.Listen = prompt(scanner, "API listen address", cfg.HTTP.Listen)
		cfg.Cache.DBPath = prompt(scanner, "Cache database path", cfg.Cache.DBPath)
		cfg.Upstream.NewsAPIKey = prompt(scanner, "NewsAPI key (optional)", cfg.Upstream.NewsAPIKey)
		cfg.Upstream.EtherscanAPIKey = prompt(scanner, "Etherscan API key (optional)", cfg.Upstream.EtherscanAPIKey)
		cfg.Telegram.Token = prompt(scanner, "Telegram bot token (optional)", cfg.Telegram.Token)
		cfg.Telegram.AgentURL = prompt(scanner, "Agent API URL for the bot", cfg.Telegram.AgentURL)

		if err := config.Save(cfgPath, cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}

		// Initialize the cache schema so first serve starts clean.
		store, err := cache.Open(cfg.Cache.DBPath)
		if err != nil {
			return fmt.Errorf("initialize cache store: %w", err)
		}
		defer store.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Ping(ctx); err != nil {
			return fmt.Errorf("verify cache store: %w", err)
		}

		fmt.Println()
		fmt.Println("Configuration saved to", cfgPath)
		fmt.Println("Cache database ready at", cfg.Cache.DBPath)
		return nil
	},
}

// prompt displays a labeled prompt with a default value and reads user input.
// If the user enters nothing, the default is returned.
func prompt(scanner *bufio.Scanner, label, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", label, defaultVal)
	} else {
		fmt.Printf("%s: ", label)
	}
	if scanner.Scan() {
		input := strings.TrimSpace(scanner.Text())
		if input != "" {
			return input
		}
	}
	return defaultVal
}

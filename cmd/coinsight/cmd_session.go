package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/user/coinsight/internal/session"
	"github.com/user/coinsight/internal/types"
)

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionListCmd, sessionClearCmd)
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage conversation sessions",
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		store := session.NewStore(cfg.DataDir)

		list, err := store.List()
		if err != nil {
			return fmt.Errorf("list sessions: %w", err)
		}

		if len(list) == 0 {
			fmt.Println("No sessions found.")
			return nil
		}

		sort.Slice(list, func(i, j int) bool {
			return list[i].UpdatedAt.After(list[j].UpdatedAt)
		})

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "CONVERSATION\tSUBJECT\tINTENT\tTURNS\tUPDATED")
		for _, s := range list {
			subject := s.LastSubject
			if subject == "" {
				subject = "-"
			}
			intent := string(s.LastIntent)
			if intent == "" {
				intent = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
				s.ConversationID,
				subject,
				intent,
				len(s.History),
				s.UpdatedAt.Format("2006-01-02 15:04:05"),
			)
		}
		return w.Flush()
	},
}

var sessionClearCmd = &cobra.Command{
	Use:   "clear <conversation-id|all>",
	Short: "Clear a session or all sessions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()

		if args[0] == "all" {
			path := filepath.Join(cfg.DataDir, "sessions.json")
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("remove sessions file: %w", err)
			}
			fmt.Println("All sessions cleared.")
			return nil
		}

		store := session.NewStore(cfg.DataDir)
		if _, err := store.Reset(types.ConversationID(args[0])); err != nil {
			return fmt.Errorf("reset session: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Session %s cleared.\n", args[0])
		return nil
	},
}

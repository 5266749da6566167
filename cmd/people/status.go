package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	people "github.com/mochi-os/people/sdk/golang"
)

var (
	welcomeJSON bool
)

func init() {
	rootCmd.AddCommand(statusCmd)

	welcomeShowCmd.Flags().BoolVar(&welcomeJSON, "json", false, "Output JSON")
	welcomeCmd.AddCommand(welcomeShowCmd)
	welcomeCmd.AddCommand(welcomeSeenCmd)
	rootCmd.AddCommand(welcomeCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current configuration and account status",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		applyEnv(cfg)

		fmt.Fprintln(out, "Configuration:")
		fmt.Fprintf(out, "  Environment: %s\n", valueOrDefault(cfg.Default.Environment, "(not set)"))
		fmt.Fprintf(out, "  Base URL:    %s\n", valueOrDefault(cfg.Default.BaseURL, people.DefaultBaseURL))
		fmt.Fprintf(out, "  App path:    %s\n", valueOrDefault(cfg.Default.AppPath, people.DefaultAppPath))
		if cfg.Auth.Token == "" {
			fmt.Fprintln(out, "  Token:       (not set)")
			return nil
		}
		fmt.Fprintf(out, "  Token:       %s\n", maskToken(cfg.Auth.Token))

		client := people.NewClient(cfg.Auth.Token, clientOptions(cfg)...)
		defer client.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		fmt.Fprintln(out)
		fmt.Fprintln(out, "Live status:")
		list, err := client.Friends.List(ctx)
		if err != nil {
			fmt.Fprintf(out, "  Error fetching friends: %v\n", requestError(err))
			return nil
		}
		fmt.Fprintf(out, "  Friends:       %d\n", len(list.Friends))
		fmt.Fprintf(out, "  Received:      %d\n", len(list.Received))
		fmt.Fprintf(out, "  Sent:          %d\n", len(list.Sent))

		if chk, err := client.Notifications.Check(ctx); err == nil {
			fmt.Fprintf(out, "  Notifications: %t\n", chk.Exists)
		}
		return nil
	},
}

// ============================================================================
// welcome
// ============================================================================

var welcomeCmd = &cobra.Command{
	Use:   "welcome",
	Short: "First-run welcome state",
}

var welcomeShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show whether the welcome screen was seen",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := getClient()
		if err != nil {
			return err
		}
		defer client.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		w, err := client.Welcome.Get(ctx)
		if err != nil {
			return requestError(err)
		}
		if welcomeJSON {
			return printJSON(cmd.OutOrStdout(), w)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Seen:    %t\nFriends: %d\n", w.Seen, w.Count)
		return nil
	},
}

var welcomeSeenCmd = &cobra.Command{
	Use:   "seen",
	Short: "Mark the welcome screen as seen",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := getClient()
		if err != nil {
			return err
		}
		defer client.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if _, err := client.Welcome.MarkSeen(ctx); err != nil {
			return requestError(err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Welcome marked as seen.")
		return nil
	},
}

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	people "github.com/mochi-os/people/sdk/golang"
)

// ============================================================================
// Flag variables
// ============================================================================

var (
	// friends list
	friendsListJSON   bool
	friendsListFilter string

	// friends search
	friendsSearchLocal bool
	friendsSearchJSON  bool

	// friends suggest
	friendsSuggestLimit int
	friendsSuggestJSON  bool
)

var friendsCmd = &cobra.Command{
	Use:   "friends",
	Short: "Friends and invitations",
}

// ============================================================================
// friends list
// ============================================================================

var friendsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List friends and pending invitations",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := getClient()
		if err != nil {
			return err
		}
		defer client.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		list, err := client.Friends.List(ctx)
		if err != nil {
			return requestError(err)
		}
		list.Friends = people.FilterFriendsByName(list.Friends, friendsListFilter)
		list.Received = people.FilterInvitesByName(list.Received, friendsListFilter)
		list.Sent = people.FilterInvitesByName(list.Sent, friendsListFilter)

		out := cmd.OutOrStdout()
		if friendsListJSON {
			return printJSON(out, list)
		}

		fmt.Fprintf(out, "Friends (%d):\n", len(list.Friends))
		for _, f := range list.Friends {
			fmt.Fprintf(out, "  %s: %s\n", f.ID, f.Name)
		}
		fmt.Fprintf(out, "Received invitations (%d):\n", len(list.Received))
		for _, inv := range list.Received {
			fmt.Fprintf(out, "  %s: %s\n", inv.ID, inv.Name)
		}
		fmt.Fprintf(out, "Sent invitations (%d):\n", len(list.Sent))
		for _, inv := range list.Sent {
			fmt.Fprintf(out, "  %s: %s\n", inv.ID, inv.Name)
		}
		if list.Total != nil {
			fmt.Fprintf(out, "Total: %d\n", *list.Total)
		}
		return nil
	},
}

// ============================================================================
// friends search / suggest
// ============================================================================

func printUsers(cmd *cobra.Command, users []people.Friend) {
	out := cmd.OutOrStdout()
	if len(users) == 0 {
		fmt.Fprintln(out, "No users found.")
		return
	}
	for _, u := range users {
		fmt.Fprintf(out, "  %s: %s (%s)\n", u.ID, u.Name, valueOrDefault(string(u.RelationshipStatus), string(people.StatusNone)))
	}
}

var friendsSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search users by name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := getClient()
		if err != nil {
			return err
		}
		defer client.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		search := client.Friends.Search
		if friendsSearchLocal {
			search = client.Friends.SearchLocal
		}
		res, err := search(ctx, args[0])
		if err != nil {
			return requestError(err)
		}
		if friendsSearchJSON {
			return printJSON(cmd.OutOrStdout(), res)
		}
		printUsers(cmd, res.Results)
		return nil
	},
}

var friendsSuggestCmd = &cobra.Command{
	Use:   "suggest [query]",
	Short: "Suggest users to befriend",
	Long:  "Suggest users to befriend from a broad search, skipping existing friends.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := getClient()
		if err != nil {
			return err
		}
		defer client.Close()

		q := "a"
		if len(args) == 1 {
			q = args[0]
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		res, err := client.Friends.Search(ctx, q)
		if err != nil {
			return requestError(err)
		}
		users := people.SuggestedUsers(res.Results, nil, friendsSuggestLimit)
		if friendsSuggestJSON {
			return printJSON(cmd.OutOrStdout(), users)
		}
		out := cmd.OutOrStdout()
		for _, u := range users {
			action := "-"
			switch people.ActionFor(u.RelationshipStatus) {
			case people.ActionInvite:
				action = "people friends add " + u.ID
			case people.ActionAccept:
				action = "people friends accept " + u.ID
			}
			fmt.Fprintf(out, "  %s: %s [%s]\n", u.ID, u.Name, action)
		}
		return nil
	},
}

// ============================================================================
// friends add / accept / decline / remove
// ============================================================================

// friendMutation builds a command that runs one friend mutation on an id.
func friendMutation(use, short, done string, nargs cobra.PositionalArgs, run func(context.Context, *people.FriendsClient, []string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  nargs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := getClient()
			if err != nil {
				return err
			}
			defer client.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()

			if err := run(ctx, client.Friends, args); err != nil {
				return requestError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", done, args[0])
			return nil
		},
	}
}

var friendsAddCmd = friendMutation("add <id> [name]", "Send a friend invitation", "Invitation sent to", cobra.RangeArgs(1, 2),
	func(ctx context.Context, f *people.FriendsClient, args []string) error {
		name := args[0]
		if len(args) > 1 {
			name = args[1]
		}
		_, err := f.Invite(ctx, args[0], name)
		return err
	})

var friendsAcceptCmd = friendMutation("accept <id>", "Accept an invitation", "Accepted invitation from", cobra.ExactArgs(1),
	func(ctx context.Context, f *people.FriendsClient, args []string) error {
		_, err := f.AcceptInvite(ctx, args[0])
		return err
	})

var friendsDeclineCmd = friendMutation("decline <id>", "Decline an invitation", "Declined invitation from", cobra.ExactArgs(1),
	func(ctx context.Context, f *people.FriendsClient, args []string) error {
		_, err := f.DeclineInvite(ctx, args[0])
		return err
	})

var friendsRemoveCmd = friendMutation("remove <id>", "Remove a friend or cancel a sent invitation", "Removed", cobra.ExactArgs(1),
	func(ctx context.Context, f *people.FriendsClient, args []string) error {
		_, err := f.Remove(ctx, args[0])
		return err
	})

// ============================================================================
// Registration
// ============================================================================

func init() {
	friendsListCmd.Flags().BoolVar(&friendsListJSON, "json", false, "Output JSON")
	friendsListCmd.Flags().StringVar(&friendsListFilter, "filter", "", "Only show names containing this text")

	friendsSearchCmd.Flags().BoolVar(&friendsSearchLocal, "local", false, "Search users on this server only")
	friendsSearchCmd.Flags().BoolVar(&friendsSearchJSON, "json", false, "Output JSON")

	friendsSuggestCmd.Flags().IntVarP(&friendsSuggestLimit, "limit", "n", people.DefaultSuggestionLimit, "Maximum number of suggestions")
	friendsSuggestCmd.Flags().BoolVar(&friendsSuggestJSON, "json", false, "Output JSON")

	friendsCmd.AddCommand(friendsListCmd)
	friendsCmd.AddCommand(friendsSearchCmd)
	friendsCmd.AddCommand(friendsSuggestCmd)
	friendsCmd.AddCommand(friendsAddCmd)
	friendsCmd.AddCommand(friendsAcceptCmd)
	friendsCmd.AddCommand(friendsDeclineCmd)
	friendsCmd.AddCommand(friendsRemoveCmd)
	rootCmd.AddCommand(friendsCmd)
}

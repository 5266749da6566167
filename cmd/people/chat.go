package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	people "github.com/mochi-os/people/sdk/golang"
)

var (
	chatNewJSON    bool
	chatListJSON   bool
	chatCreateJSON bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start chats with friends",
}

var chatNewCmd = &cobra.Command{
	Use:   "new",
	Short: "List friends available for a new chat",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := getClient()
		if err != nil {
			return err
		}
		defer client.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		nc, err := client.Chat.NewChatFriends(ctx)
		if err != nil {
			return requestError(err)
		}

		out := cmd.OutOrStdout()
		if chatNewJSON {
			return printJSON(out, nc)
		}
		if len(nc.Friends) == 0 {
			fmt.Fprintln(out, "No friends to chat with.")
			return nil
		}
		for _, f := range nc.Friends {
			if f.ChatID != "" {
				fmt.Fprintf(out, "  %s: %s (chat %s)\n", f.ID, f.Name, f.ChatID)
			} else {
				fmt.Fprintf(out, "  %s: %s\n", f.ID, f.Name)
			}
		}
		return nil
	},
}

var chatCreateCmd = &cobra.Command{
	Use:   "create <name> <member-id>[,<member-id>...]",
	Short: "Create a chat",
	Long:  "Create a chat. With a single friend id and an empty name, the chat is named after that friend.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := getClient()
		if err != nil {
			return err
		}
		defer client.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		var members []string
		for _, id := range strings.Split(args[1], ",") {
			if id = strings.TrimSpace(id); id != "" {
				members = append(members, id)
			}
		}

		var chat *people.CreatedChat
		if strings.TrimSpace(args[0]) == "" && len(members) == 1 {
			friend, err := findFriend(ctx, client, members[0])
			if err != nil {
				return err
			}
			chat, err = client.Chat.StartWith(ctx, friend)
			if err != nil {
				return requestError(err)
			}
		} else {
			chat, err = client.Chat.Create(ctx, args[0], members)
			if err != nil {
				return requestError(err)
			}
		}

		if chatCreateJSON {
			return printJSON(cmd.OutOrStdout(), chat)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Chat %q created: %s\n", chat.Name, chat.ID)
		return nil
	},
}

// findFriend looks a friend up by id in the friends list.
func findFriend(ctx context.Context, client *people.Client, id string) (people.Friend, error) {
	list, err := client.Friends.List(ctx)
	if err != nil {
		return people.Friend{}, requestError(err)
	}
	for _, f := range list.Friends {
		if f.ID == id {
			return f, nil
		}
	}
	return people.Friend{}, fmt.Errorf("%s is not a friend", id)
}

var chatListCmd = &cobra.Command{
	Use:   "list",
	Short: "List chats",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := getClient()
		if err != nil {
			return err
		}
		defer client.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		chats, err := client.Chat.List(ctx)
		if err != nil {
			return requestError(err)
		}

		out := cmd.OutOrStdout()
		if chatListJSON {
			return printJSON(out, chats)
		}
		if len(chats) == 0 {
			fmt.Fprintln(out, "No chats found.")
			return nil
		}
		for _, c := range chats {
			updated := "-"
			if c.Updated > 0 {
				updated = time.Unix(c.Updated, 0).Format(time.RFC3339)
			}
			fmt.Fprintf(out, "  %s: %s (updated %s)\n", c.ID, c.Name, updated)
		}
		return nil
	},
}

func init() {
	chatNewCmd.Flags().BoolVar(&chatNewJSON, "json", false, "Output JSON")
	chatCreateCmd.Flags().BoolVar(&chatCreateJSON, "json", false, "Output JSON")
	chatListCmd.Flags().BoolVar(&chatListJSON, "json", false, "Output JSON")

	chatCmd.AddCommand(chatNewCmd)
	chatCmd.AddCommand(chatCreateCmd)
	chatCmd.AddCommand(chatListCmd)
	rootCmd.AddCommand(chatCmd)
}

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	people "github.com/mochi-os/people/sdk/golang"
)

var (
	// groups list / get
	groupsListJSON bool
	groupsGetJSON  bool

	// groups create
	groupsCreateID          string
	groupsCreateDescription string

	// groups update
	groupsUpdateName        string
	groupsUpdateDescription string

	// groups members add
	groupsMemberType string
)

var groupsCmd = &cobra.Command{
	Use:   "groups",
	Short: "Manage groups",
}

var groupsMembersCmd = &cobra.Command{
	Use:   "members",
	Short: "Manage group members",
}

// ============================================================================
// groups list / get
// ============================================================================

var groupsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List groups",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := getClient()
		if err != nil {
			return err
		}
		defer client.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		groups, err := client.Groups.List(ctx)
		if err != nil {
			return requestError(err)
		}

		out := cmd.OutOrStdout()
		if groupsListJSON {
			return printJSON(out, groups)
		}
		if len(groups) == 0 {
			fmt.Fprintln(out, "No groups found.")
			return nil
		}
		for _, g := range groups {
			if g.Description != "" {
				fmt.Fprintf(out, "  %s: %s (%s)\n", g.ID, g.Name, g.Description)
			} else {
				fmt.Fprintf(out, "  %s: %s\n", g.ID, g.Name)
			}
		}
		return nil
	},
}

var groupsGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show a group and its members",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := getClient()
		if err != nil {
			return err
		}
		defer client.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		detail, err := client.Groups.Get(ctx, args[0])
		if err != nil {
			return requestError(err)
		}

		out := cmd.OutOrStdout()
		if groupsGetJSON {
			return printJSON(out, detail)
		}
		fmt.Fprintf(out, "Group:       %s\n", detail.Group.Name)
		fmt.Fprintf(out, "ID:          %s\n", detail.Group.ID)
		if detail.Group.Description != "" {
			fmt.Fprintf(out, "Description: %s\n", detail.Group.Description)
		}
		fmt.Fprintf(out, "Members (%d):\n", len(detail.Members))
		for _, m := range detail.Members {
			fmt.Fprintf(out, "  %s: %s [%s]\n", m.Member, m.Name, m.Type)
		}
		return nil
	},
}

// ============================================================================
// groups create / update / delete
// ============================================================================

var groupsCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a group",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := getClient()
		if err != nil {
			return err
		}
		defer client.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		_, err = client.Groups.Create(ctx, people.CreateGroupOptions{
			ID:          groupsCreateID,
			Name:        args[0],
			Description: groupsCreateDescription,
		})
		if err != nil {
			return requestError(err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Group %q created.\n", args[0])
		return nil
	},
}

var groupsUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Rename a group or change its description",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := people.UpdateGroupOptions{ID: args[0], Name: groupsUpdateName}
		if cmd.Flags().Changed("description") {
			opts.Description = &groupsUpdateDescription
		}
		if opts.Name == "" && opts.Description == nil {
			return fmt.Errorf("nothing to update; pass --name and/or --description")
		}

		client, err := getClient()
		if err != nil {
			return err
		}
		defer client.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if _, err := client.Groups.Update(ctx, opts); err != nil {
			return requestError(err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Group %s updated.\n", args[0])
		return nil
	},
}

var groupsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a group",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := getClient()
		if err != nil {
			return err
		}
		defer client.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if _, err := client.Groups.Delete(ctx, args[0]); err != nil {
			return requestError(err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Group %s deleted.\n", args[0])
		return nil
	},
}

// ============================================================================
// groups members add / remove
// ============================================================================

var groupsMembersAddCmd = &cobra.Command{
	Use:   "add <group> <member>",
	Short: "Add a user or a group to a group",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := getClient()
		if err != nil {
			return err
		}
		defer client.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		var d people.MemberDialog
		d.Open()
		d.SetTab(people.MemberType(groupsMemberType))
		if d.Tab() != people.MemberType(groupsMemberType) {
			return fmt.Errorf("unknown member type %q (valid: user, group)", groupsMemberType)
		}

		if d.Tab() == people.MemberGroup {
			groups, err := client.Groups.List(ctx)
			if err != nil {
				return requestError(err)
			}
			if !containsGroup(people.AvailableGroups(groups, args[0]), args[1]) {
				return fmt.Errorf("group %s cannot be added to %s", args[1], args[0])
			}
		}

		d.Select(args[1])
		req, _ := d.Request(args[0])
		if _, err := client.Groups.AddMember(ctx, req); err != nil {
			return requestError(err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Added %s %s to %s.\n", req.Type, req.Member, req.Group)
		return nil
	},
}

var groupsMembersRemoveCmd = &cobra.Command{
	Use:   "remove <group> <member>",
	Short: "Remove a member from a group",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := getClient()
		if err != nil {
			return err
		}
		defer client.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		_, err = client.Groups.RemoveMember(ctx, people.RemoveMemberOptions{Group: args[0], Member: args[1]})
		if err != nil {
			return requestError(err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %s from %s.\n", args[1], args[0])
		return nil
	},
}

func containsGroup(groups []people.Group, id string) bool {
	for _, g := range groups {
		if g.ID == id {
			return true
		}
	}
	return false
}

// ============================================================================
// Registration
// ============================================================================

func init() {
	groupsListCmd.Flags().BoolVar(&groupsListJSON, "json", false, "Output JSON")
	groupsGetCmd.Flags().BoolVar(&groupsGetJSON, "json", false, "Output JSON")

	groupsCreateCmd.Flags().StringVar(&groupsCreateID, "id", "", "Group id (generated by the server when empty)")
	groupsCreateCmd.Flags().StringVar(&groupsCreateDescription, "description", "", "Group description")

	groupsUpdateCmd.Flags().StringVar(&groupsUpdateName, "name", "", "New name")
	groupsUpdateCmd.Flags().StringVar(&groupsUpdateDescription, "description", "", "New description (empty clears it)")

	groupsMembersAddCmd.Flags().StringVar(&groupsMemberType, "type", string(people.MemberUser), "Member type: user or group")

	groupsMembersCmd.AddCommand(groupsMembersAddCmd)
	groupsMembersCmd.AddCommand(groupsMembersRemoveCmd)

	groupsCmd.AddCommand(groupsListCmd)
	groupsCmd.AddCommand(groupsGetCmd)
	groupsCmd.AddCommand(groupsCreateCmd)
	groupsCmd.AddCommand(groupsUpdateCmd)
	groupsCmd.AddCommand(groupsDeleteCmd)
	groupsCmd.AddCommand(groupsMembersCmd)
	rootCmd.AddCommand(groupsCmd)
}

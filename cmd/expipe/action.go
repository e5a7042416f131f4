package main

import (
	"context"
	"fmt"
	"slices"

	"github.com/spf13/cobra"
)

var (
	actionType string
	actionTag  string
)

var actionCmd = &cobra.Command{
	Use:   "action",
	Short: "Manage the actions of a project",
}

var actionCreateCmd = &cobra.Command{
	Use:   "create <id>",
	Short: "Create an action",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		h, p, err := openProject(ctx)
		if err != nil {
			fatal("Failed to open project", err)
		}
		defer h.Close()

		a, err := p.CreateAction(ctx, args[0])
		if err != nil {
			fatal("Failed to create action", err)
		}
		if actionType != "" {
			if err := a.SetType(ctx, actionType); err != nil {
				fatal("Failed to set type", err)
			}
		}
		fmt.Println("Created action", a)
	},
}

var actionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List actions",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		h, p, err := openProject(ctx)
		if err != nil {
			fatal("Failed to open project", err)
		}
		defer h.Close()

		actions, err := p.Actions().Values(ctx)
		if err != nil {
			fatal("Failed to list actions", err)
		}
		for _, a := range actions {
			tags, err := a.Tags(ctx)
			if err != nil {
				fatal("Failed to read tags of "+a.ID(), err)
			}
			if actionTag != "" && !slices.Contains(tags, actionTag) {
				continue
			}
			typ, err := a.Type(ctx)
			if err != nil {
				fatal("Failed to read type of "+a.ID(), err)
			}
			line := a.ID()
			if typ != "" {
				line += " (" + typ + ")"
			}
			if len(tags) > 0 {
				line += fmt.Sprintf(" %v", tags)
			}
			fmt.Println(line)
		}
	},
}

var actionDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an action with its modules and messages",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		h, p, err := openProject(ctx)
		if err != nil {
			fatal("Failed to open project", err)
		}
		defer h.Close()

		if err := p.DeleteAction(ctx, args[0]); err != nil {
			fatal("Failed to delete action", err)
		}
		fmt.Println("Deleted action", args[0])
	},
}

var actionTagCmd = &cobra.Command{
	Use:   "tag <id> <tag>...",
	Short: "Add tags to an action",
	Args:  cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		h, p, err := openProject(ctx)
		if err != nil {
			fatal("Failed to open project", err)
		}
		defer h.Close()

		a, err := p.GetAction(ctx, args[0])
		if err != nil {
			fatal("Failed to open action", err)
		}
		if err := a.AddTags(ctx, args[1:]...); err != nil {
			fatal("Failed to tag action", err)
		}
		tags, err := a.Tags(ctx)
		if err != nil {
			fatal("Failed to read tags", err)
		}
		fmt.Println(a, tags)
	},
}

func init() {
	rootCmd.AddCommand(actionCmd)
	actionCmd.AddCommand(actionCreateCmd, actionListCmd, actionDeleteCmd, actionTagCmd)
	actionCreateCmd.Flags().StringVar(&actionType, "type", "", "Action type")
	actionListCmd.Flags().StringVar(&actionTag, "tag", "", "Only list actions with this tag")
}

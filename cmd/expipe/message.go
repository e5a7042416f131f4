package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/expipe/pkg/core"
)

var (
	messageUser   string
	messageEntity bool
)

var messageCmd = &cobra.Command{
	Use:   "message",
	Short: "Attach notes to actions and entities",
}

var messageAddCmd = &cobra.Command{
	Use:   "add <action> <text>",
	Short: "Add a message to an action (or an entity with --entity)",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		h, p, err := openProject(ctx)
		if err != nil {
			fatal("Failed to open project", err)
		}
		defer h.Close()

		var opts []core.MessageOption
		if messageUser != "" {
			opts = append(opts, core.WithUser(messageUser))
		}
		var m *core.Message
		if messageEntity {
			e, err := p.GetEntity(ctx, args[0])
			if err != nil {
				fatal("Failed to open entity", err)
			}
			m, err = e.CreateMessage(ctx, args[1], opts...)
			if err != nil {
				fatal("Failed to add message", err)
			}
		} else {
			a, err := p.GetAction(ctx, args[0])
			if err != nil {
				fatal("Failed to open action", err)
			}
			m, err = a.CreateMessage(ctx, args[1], opts...)
			if err != nil {
				fatal("Failed to add message", err)
			}
		}
		fmt.Println("Added message", m.ID())
	},
}

func init() {
	rootCmd.AddCommand(messageCmd)
	messageCmd.AddCommand(messageAddCmd)
	messageAddCmd.Flags().StringVar(&messageUser, "user", "", "Author (default: $USER)")
	messageAddCmd.Flags().BoolVar(&messageEntity, "entity", false, "The first argument names an entity")
}

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/expipe/pkg/core"
)

var deleteAll bool

var deleteCmd = &cobra.Command{
	Use:   "delete <project>",
	Short: "Delete a project",
	Long: `Delete a project. A project that still holds actions, entities, modules
or templates is kept unless --all is given.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		h, err := openStore(ctx)
		if err != nil {
			fatal("Failed to open store", err)
		}
		defer h.Close()

		err = h.Store.DeleteProject(ctx, args[0], deleteAll)
		if errors.Is(err, core.ErrNotEmpty) {
			fatal("Refusing to delete", fmt.Errorf("%w (use --all)", err))
		}
		if err != nil {
			fatal("Failed to delete project", err)
		}
		fmt.Println("Deleted project", args[0])
	},
}

func init() {
	rootCmd.AddCommand(deleteCmd)
	deleteCmd.Flags().BoolVar(&deleteAll, "all", false, "Delete everything the project holds")
}

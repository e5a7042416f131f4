package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/aretw0/expipe"
)

var initCmd = &cobra.Command{
	Use:   "init <project>",
	Short: "Create a project, marking the data directory if needed",
	Long: `Create a project in the store. When the store is a directory without an
expipe.yaml, the marker is written first so later commands can find it.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		if dataPath == "" && (backend == "" || backend == expipe.AdapterFS) {
			wd, err := os.Getwd()
			if err != nil {
				fatal("Failed to get CWD", err)
			}
			if _, err := expipe.FindRoot(wd); err != nil {
				if err := os.WriteFile(filepath.Join(wd, "expipe.yaml"), []byte("backend: fs\n"), 0644); err != nil {
					fatal("Failed to write expipe.yaml", err)
				}
				fmt.Println("Initialized data directory in", wd)
			}
		}

		h, err := openStore(ctx)
		if err != nil {
			fatal("Failed to open store", err)
		}
		defer h.Close()

		p, err := h.Store.CreateProject(ctx, args[0])
		if err != nil {
			fatal("Failed to create project", err)
		}
		fmt.Println("Created project", p.ID())
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}

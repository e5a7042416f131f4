package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/expipe/pkg/core"
)

var statusJSON bool

type projectStatus struct {
	ID        string `json:"id"`
	Actions   int    `json:"actions"`
	Entities  int    `json:"entities"`
	Modules   int    `json:"modules"`
	Templates int    `json:"templates"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "List projects and what they hold",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		h, err := openStore(ctx)
		if err != nil {
			fatal("Failed to open store", err)
		}
		defer h.Close()

		projects, err := h.Store.Projects().Values(ctx)
		if err != nil {
			fatal("Failed to list projects", err)
		}
		out := make([]projectStatus, 0, len(projects))
		for _, p := range projects {
			if project != "" && p.ID() != project {
				continue
			}
			st, err := describe(ctx, p)
			if err != nil {
				fatal("Failed to read project "+p.ID(), err)
			}
			out = append(out, st)
		}

		if statusJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(out); err != nil {
				fatal("Failed to encode JSON", err)
			}
			return
		}
		if len(out) == 0 {
			fmt.Println("No projects.")
			return
		}
		for _, st := range out {
			fmt.Printf("%s: %d actions, %d entities, %d modules, %d templates\n",
				st.ID, st.Actions, st.Entities, st.Modules, st.Templates)
		}
	},
}

func describe(ctx context.Context, p *core.Project) (projectStatus, error) {
	st := projectStatus{ID: p.ID()}
	var err error
	if st.Actions, err = p.Actions().Len(ctx); err != nil {
		return st, err
	}
	if st.Entities, err = p.Entities().Len(ctx); err != nil {
		return st, err
	}
	if st.Modules, err = p.Modules().Len(ctx); err != nil {
		return st, err
	}
	st.Templates, err = p.Templates().Len(ctx)
	return st, err
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output in JSON format")
}

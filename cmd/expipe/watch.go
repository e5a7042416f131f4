package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aretw0/expipe/pkg/adapters/lifecycle"
	"github.com/aretw0/expipe/pkg/core"
)

var watchTypes []string

var watchCmd = &cobra.Command{
	Use:   "watch [pattern]",
	Short: "Print changes to the store until interrupted",
	Long: `Print a line per change. The optional pattern is a glob over store
paths, e.g. "neuro/actions/**" (default "**").`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		pattern := "**"
		if len(args) == 1 {
			pattern = args[0]
		}
		h, err := openStore(ctx)
		if err != nil {
			fatal("Failed to open store", err)
		}
		defer h.Close()

		events, err := h.Store.Watch(ctx, pattern)
		if err != nil {
			fatal("Failed to watch", err)
		}
		var types []core.EventType
		for _, t := range watchTypes {
			types = append(types, core.EventType(strings.ToUpper(t)))
		}
		src := lifecycle.NewSource(events, types...)
		if err := src.Start(ctx); err != nil {
			fatal("Failed to start watcher", err)
		}
		fmt.Fprintf(os.Stderr, "Watching %s (Ctrl+C to stop)\n", pattern)
		for e := range src.Events() {
			fmt.Println(e)
		}
	},
}

func init() {
	watchCmd.Flags().StringSliceVar(&watchTypes, "only", nil, "Only print these change types (create, modify, delete)")
	rootCmd.AddCommand(watchCmd)
}

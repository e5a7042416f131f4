package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/expipe"
	"github.com/aretw0/expipe/pkg/core"
)

var (
	verbose  bool
	backend  string
	dataPath string
	project  string
)

var rootCmd = &cobra.Command{
	Use:   "expipe",
	Short: "Store experimental metadata as projects, actions, entities and modules",
	Long: `expipe keeps the metadata of experiments (what was done, to what, with
which parameters) in a hierarchical object store backed by YAML files,
a hosted JSON document tree or Redis.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)
	},
}

// Execute runs the root command. Called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&backend, "backend", "", "Storage adapter: fs, remote, redis or memory")
	rootCmd.PersistentFlags().StringVarP(&dataPath, "data-path", "d", "", "Data directory or backend URL (default: nearest expipe.yaml)")
	rootCmd.PersistentFlags().StringVarP(&project, "project", "p", "", "Project to operate on")
}

// openStore opens the store selected by the flags, falling back to the
// directory found by walking up from the working directory.
func openStore(ctx context.Context, extra ...expipe.Option) (*expipe.Handle, error) {
	opts := []expipe.Option{expipe.WithLogger(slog.Default())}
	if backend != "" {
		opts = append(opts, expipe.WithAdapter(backend))
	}
	if u := os.Getenv("USER"); u != "" {
		opts = append([]expipe.Option{expipe.WithUsername(u)}, opts...)
	}
	opts = append(opts, extra...)

	if dataPath == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		return expipe.Discover(ctx, wd, opts...)
	}

	root := ""
	if info, err := os.Stat(dataPath); err == nil && info.IsDir() {
		root = dataPath
	}
	s, err := expipe.LoadSettings(root)
	if err != nil {
		return nil, err
	}
	opts = append([]expipe.Option{expipe.WithSettings(s)}, opts...)
	return expipe.Open(ctx, dataPath, opts...)
}

// openProject opens the store and the project named by --project.
func openProject(ctx context.Context) (*expipe.Handle, *core.Project, error) {
	if project == "" {
		return nil, nil, fmt.Errorf("no project selected (use --project)")
	}
	h, err := openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	p, err := h.Store.GetProject(ctx, project)
	if err != nil {
		h.Close()
		return nil, nil, err
	}
	return h, p, nil
}

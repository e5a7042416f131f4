package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aretw0/expipe"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of expipe",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("expipe version %s\n", strings.TrimSpace(expipe.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

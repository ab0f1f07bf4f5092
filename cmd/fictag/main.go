package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/benvon/fictag/cmd/fictag/commands"
)

func main() {
	var rootCmd = &cobra.Command{
		Use:           "fictag",
		Short:         "Tag recommendations for works of fan fiction",
		Long:          "CLI tool for one-shot tag recommendations and vocabulary management",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging of backend prompts and responses")

	rootCmd.AddCommand(commands.NewRecommendCmd())
	rootCmd.AddCommand(commands.NewVocabCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

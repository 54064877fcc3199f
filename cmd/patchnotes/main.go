// Package main provides the patchnotes CLI: the HTTP API server plus sync,
// preload, query and migrate commands.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "patchnotes",
	Short: "Federal publications aggregator",
	Long: "patchnotes keeps a local store of congressional bills, executive orders, rules and proposed rules " +
		"in sync with api.congress.gov, federalregister.gov and regulations.gov, and serves them over a REST API.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a JSON config file (values override the environment)")
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// Package main provides the entry point for the job listing ingestion service.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	// Scheduler time zones must resolve on hosts without a zoneinfo database.
	_ "time/tzdata"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "dypse",
	Short:         "Job listing ingestion service",
	Long:          "dypse scrapes job boards on a schedule, keeps listings in a relational store, and serves them over a REST API.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a JSON or YAML config file")
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

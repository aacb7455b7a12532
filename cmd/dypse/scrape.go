package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/EVODENUBY/DYPSE-sub000/internal/observability"
	"github.com/spf13/cobra"
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Run the ingestion pipeline once",
	Long:  "Walk the job board, store every listing found, and print a summary of the run.",
	RunE:  runScrape,
}

var (
	scrapeMaxPages  int
	scrapeNoDetails bool
)

func init() {
	scrapeCmd.Flags().IntVar(&scrapeMaxPages, "max-pages", 0, "Page ceiling for this run (overrides SCRAPE_MAX_PAGES)")
	scrapeCmd.Flags().BoolVar(&scrapeNoDetails, "no-details", false, "Skip detail page enrichment")
	rootCmd.AddCommand(scrapeCmd)
}

func runScrape(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if scrapeMaxPages > 0 || scrapeNoDetails {
		if scrapeMaxPages > 0 {
			a.cfg.Scrape.MaxPages = scrapeMaxPages
		}
		if scrapeNoDetails {
			a.cfg.Scrape.FetchDetails = false
		}
		if a.pipeline, err = newPipeline(a.cfg, a.store, a.publisher, a.logger); err != nil {
			return err
		}
	}

	stats, runErr := a.pipeline.Run(ctx)
	observability.NewPrinter(cmd.OutOrStdout()).PrintRunStats(stats)
	if runErr != nil {
		return fmt.Errorf("scrape failed: %w", runErr)
	}
	return nil
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/EVODENUBY/DYPSE-sub000/internal/config"
	"github.com/EVODENUBY/DYPSE-sub000/internal/scheduler"
	"github.com/EVODENUBY/DYPSE-sub000/internal/server"
	"github.com/EVODENUBY/DYPSE-sub000/internal/server/ratelimit"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server and the scrape scheduler",
	Long: `Start an HTTP server that exposes the job listing API, and a scheduler that
runs the ingestion pipeline on the configured cron schedule. In development
(APP_ENV=development) one run also starts immediately.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides PORT)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if servePort > 0 {
		a.cfg.Port = servePort
	}

	jwtConfig, err := config.NewJWTConfig()
	if err != nil {
		return fmt.Errorf("failed to create JWT config: %w", err)
	}

	sched, err := scheduler.New(a.pipeline, scheduler.Config{
		Spec:     a.cfg.Scrape.Schedule,
		Timezone: a.cfg.Scrape.Timezone,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	srv, err := server.New(server.Config{
		Port:      a.cfg.Port,
		JWT:       jwtConfig,
		RateLimit: ratelimit.LoadConfig(),
	}, a.store, sched, a.logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	sched.Start()
	if a.cfg.IsDevelopment() {
		a.logger.Info("development mode: starting an initial scrape")
		sched.TriggerNow()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := sched.Stop(shutdownCtx); err != nil {
			a.logger.Warn("scheduler did not stop cleanly", zap.Error(err))
		}
		return nil
	})

	return g.Wait()
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"zentrust-donations/internal/client"
	"zentrust-donations/internal/repository"
	"zentrust-donations/internal/server"
	"zentrust-donations/internal/service"

	"github.com/spf13/cobra"
)

const shutdownTimeout = 30 * time.Second

func serveCmd() *cobra.Command {
	var skipMigrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), skipMigrate)
		},
	}

	cmd.Flags().BoolVar(&skipMigrate, "skip-migrate", false, "do not auto-migrate the schema on startup")

	return cmd
}

func runServe(ctx context.Context, skipMigrate bool) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := client.InitDBClient(cfg.DatabaseURL, log)
	if err != nil {
		return err
	}
	if !skipMigrate {
		if err := client.Migrate(db); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	stripeClient := client.NewStripeClient(&cfg.Stripe, log)

	donationRepo := repository.NewDonationRepository(db)
	webhookEventRepo := repository.NewWebhookEventRepository(db)

	validator, err := service.NewValidator(cfg.Donation)
	if err != nil {
		return fmt.Errorf("donation bounds: %w", err)
	}

	donationService, err := service.NewDonationService(stripeClient, donationRepo, cfg, log)
	if err != nil {
		return err
	}

	webhookService := service.NewWebhookService(stripeClient, webhookEventRepo, log)
	service.RegisterDonationHandlers(webhookService, donationRepo, log)

	srv := server.NewServer(cfg, donationService, webhookService, validator, log)

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("signal received, starting graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}

	log.Info("server stopped")
	return nil
}

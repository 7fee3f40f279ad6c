package main

import (
	"context"
	"errors"
	"net/http"
	"os"

	"golang.org/x/sync/errgroup"

	"ubillity/internal/amqp"
	"ubillity/internal/cli"
	apphttp "ubillity/internal/http"
	"ubillity/internal/log"
	"ubillity/internal/services"
)

func main() {
	cfg, logger := cli.LoadAndValidateConfig(log.ComponentApp)
	logger.Info("Starting ubillity server", "port", cfg.Port, "db_path", cfg.SQLiteDBPath)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	// The publisher stays a nil interface when events are disabled.
	var publisher services.EventPublisher
	if cfg.EventsEnabled() {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, bill events disabled", log.FieldError, err)
		} else {
			defer client.Close()
			publisher = client
			logger.Info("AMQP publisher ready", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	} else {
		logger.Info("Bill events disabled - no AMQP_URL provided")
	}

	srv := apphttp.NewServer(services.NewBillService(repo, publisher), apphttp.Options{
		Addr:               ":" + cfg.Port,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		HSTSEnabled:        cfg.HSTSEnabled,
		Logger:             logger,
	})

	ctx, stop := cli.SignalContext()
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down HTTP server", "timeout", cfg.ShutdownTimeout.String())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

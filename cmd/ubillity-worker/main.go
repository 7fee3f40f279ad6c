package main

import (
	"context"
	"errors"
	"os"

	"golang.org/x/sync/errgroup"

	"ubillity/internal/amqp"
	"ubillity/internal/cli"
	"ubillity/internal/log"
	"ubillity/internal/sheets"
	gsheet "ubillity/internal/sheets/google"
	"ubillity/internal/sheets/memory"
	"ubillity/internal/worker"
)

func main() {
	cfg, logger := cli.LoadAndValidateConfig(log.ComponentWorker)
	logger.Info("Starting ubillity-worker", "sync_interval", cfg.SyncInterval.String())

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	ctx, stop := cli.SignalContext()
	defer stop()

	var exporter sheets.BillExporter
	if cfg.SheetsEnabled() {
		client, err := gsheet.New(ctx, gsheet.Config{
			SpreadsheetID:      cfg.GoogleSpreadsheetID,
			SheetName:          cfg.GoogleSheetName,
			ServiceAccountJSON: cfg.GoogleServiceAccountJSON,
			ServiceAccountFile: cfg.GoogleServiceAccountFile,
			OAuthClientFile:    cfg.GoogleOAuthClientFile,
			OAuthTokenFile:     cfg.GoogleOAuthTokenFile,
		})
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
			os.Exit(1)
		}
		exporter = client
		logger.Info("Google Sheets exporter initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID, "sheet", cfg.GoogleSheetName)
	} else {
		exporter = memory.New()
		logger.Info("Google Sheets disabled - exporting to memory")
	}

	syncWorker := worker.NewSyncWorker(repo, exporter, cfg.SyncInterval)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return syncWorker.Run(gctx)
	})

	if cfg.EventsEnabled() {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", log.FieldError, err)
			os.Exit(1)
		}
		defer client.Close()

		g.Go(func() error {
			err := client.ConsumeBillEvents(gctx, syncWorker.HandleBillEvent)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
		logger.Info("Consuming bill events", "queue", cfg.AMQPQueue)
	} else {
		logger.Info("Skipping AMQP consumption - no AMQP_URL provided, relying on periodic sync")
	}

	if err := g.Wait(); err != nil {
		logger.Error("Worker stopped with error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Worker shutdown complete")
}

package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ubillity/internal/amqp"
	"ubillity/internal/core"
	"ubillity/internal/metrics"
	"ubillity/internal/sheets"
)

// BillLister is the read side of the bill store.
type BillLister interface {
	ListBills(ctx context.Context) ([]core.Bill, error)
}

// SyncWorker mirrors the bill table into a spreadsheet. It rewrites the
// whole snapshot on every change event and on a fixed interval.
type SyncWorker struct {
	store    BillLister
	exporter sheets.BillExporter
	interval time.Duration

	mu       sync.Mutex
	lastSync time.Time
}

func NewSyncWorker(store BillLister, exporter sheets.BillExporter, interval time.Duration) *SyncWorker {
	return &SyncWorker{
		store:    store,
		exporter: exporter,
		interval: interval,
	}
}

// HandleBillEvent processes one change event from AMQP.
func (w *SyncWorker) HandleBillEvent(ctx context.Context, ev *amqp.BillEvent) error {
	slog.InfoContext(ctx, "Processing bill event",
		"action", ev.Action,
		"count", ev.Count,
		"timestamp", ev.Timestamp)
	return w.Sync(ctx)
}

// Sync writes the current bill table to the exporter.
func (w *SyncWorker) Sync(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	bills, err := w.store.ListBills(ctx)
	if err != nil {
		metrics.SheetSync(metrics.ResultFailure)
		return fmt.Errorf("list bills: %w", err)
	}
	if err := w.exporter.ExportBills(ctx, bills); err != nil {
		metrics.SheetSync(metrics.ResultFailure)
		return fmt.Errorf("export bills: %w", err)
	}

	w.lastSync = time.Now()
	metrics.SheetSync(metrics.ResultSuccess)
	slog.InfoContext(ctx, "Bill snapshot synced", "bills", len(bills))
	return nil
}

// LastSync returns the time of the last successful sync.
func (w *SyncWorker) LastSync() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastSync
}

// Run syncs once immediately and then every interval until ctx is done.
// Sync failures are logged and retried on the next tick.
func (w *SyncWorker) Run(ctx context.Context) error {
	if w.interval <= 0 {
		return fmt.Errorf("sync interval must be positive, got %s", w.interval)
	}

	slog.InfoContext(ctx, "Starting periodic sync", "interval", w.interval)
	if err := w.Sync(ctx); err != nil {
		slog.ErrorContext(ctx, "Initial sync failed", "error", err)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Stopping periodic sync", "reason", ctx.Err())
			return nil
		case <-ticker.C:
			if err := w.Sync(ctx); err != nil {
				slog.ErrorContext(ctx, "Periodic sync failed", "error", err)
			}
		}
	}
}

package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"ubillity/internal/amqp"
	"ubillity/internal/core"
	"ubillity/internal/metrics"
)

// BillStore is the persistence port the service writes through.
type BillStore interface {
	CreateBills(ctx context.Context, bills []core.Bill) ([]core.Bill, error)
	ListBills(ctx context.Context) ([]core.Bill, error)
	ListSeries(ctx context.Context, recurrenceID uuid.UUID) ([]core.Bill, error)
	GetBill(ctx context.Context, id int64) (core.Bill, error)
	UpdateBill(ctx context.Context, b core.Bill) (core.Bill, error)
	DeleteBill(ctx context.Context, id int64) (int64, error)
	DeleteSeries(ctx context.Context, recurrenceID uuid.UUID) (int64, error)
	CountBills(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
}

// EventPublisher announces committed changes. It is optional.
type EventPublisher interface {
	PublishBillEvent(ctx context.Context, ev *amqp.BillEvent) error
}

// BillService orchestrates bill operations across the store and the event broker.
type BillService struct {
	store     BillStore
	publisher EventPublisher
	newID     func() uuid.UUID
}

func NewBillService(store BillStore, publisher EventPublisher) *BillService {
	return &BillService{
		store:     store,
		publisher: publisher,
		newID:     uuid.New,
	}
}

// CreateResult is the stored template and the size of the series it started.
type CreateResult struct {
	Bill  core.Bill
	Count int
}

// CreateBill validates the input, expands recurring bills, and stores the
// template with its siblings in one transaction.
func (s *BillService) CreateBill(ctx context.Context, in core.BillInput) (CreateResult, error) {
	b, err := in.Apply(core.Bill{}, false)
	if err != nil {
		return CreateResult{}, err
	}

	b.ID = 0
	b.RecurrenceID = uuid.NullUUID{}
	if b.Recurrence != core.RecurrenceNone {
		b.RecurrenceID = uuid.NullUUID{UUID: s.newID(), Valid: true}
	}

	siblings, err := core.Expand(b)
	if err != nil {
		if errors.Is(err, core.ErrUnmappedRecurrence) {
			slog.ErrorContext(ctx, "Recurrence has no schedule entry", "recurrence", b.Recurrence, "error", err)
		}
		return CreateResult{}, fmt.Errorf("expand recurrence: %w", err)
	}
	if err := b.ValidateSeries(); err != nil {
		return CreateResult{}, err
	}

	rows := append([]core.Bill{b}, siblings...)
	created, err := s.store.CreateBills(ctx, rows)
	if err != nil {
		return CreateResult{}, fmt.Errorf("create bills: %w", err)
	}
	metrics.BillsCreated(string(b.Recurrence), len(created))

	ids := make([]int64, len(created))
	for i, c := range created {
		ids[i] = c.ID
	}
	s.publish(ctx, amqp.NewBillEvent(amqp.ActionCreated, ids, recurrenceIDString(b.RecurrenceID), int64(len(created))))

	return CreateResult{Bill: created[0], Count: len(created)}, nil
}

func (s *BillService) ListBills(ctx context.Context) ([]core.Bill, error) {
	bills, err := s.store.ListBills(ctx)
	if err != nil {
		return nil, fmt.Errorf("list bills: %w", err)
	}
	return bills, nil
}

func (s *BillService) GetBill(ctx context.Context, id int64) (core.Bill, error) {
	return s.store.GetBill(ctx, id)
}

// Series returns the bills sharing b's recurrence id, or nil for a one-time bill.
func (s *BillService) Series(ctx context.Context, b core.Bill) ([]core.Bill, error) {
	if !b.RecurrenceID.Valid {
		return nil, nil
	}
	bills, err := s.store.ListSeries(ctx, b.RecurrenceID.UUID)
	if err != nil {
		return nil, fmt.Errorf("list series: %w", err)
	}
	return bills, nil
}

// UpdateBill applies in to the stored bill. With partial=false the input
// replaces every editable field. The recurrence of an existing bill cannot change.
func (s *BillService) UpdateBill(ctx context.Context, id int64, in core.BillInput, partial bool) (core.Bill, error) {
	current, err := s.store.GetBill(ctx, id)
	if err != nil {
		return core.Bill{}, err
	}

	updated, err := in.Apply(current, partial)
	if err != nil {
		return core.Bill{}, err
	}
	if updated.Recurrence != current.Recurrence {
		return core.Bill{}, core.FieldError(core.FieldRecurrence, "Recurrence cannot be changed after a bill is created.")
	}
	updated.ID = current.ID
	updated.RecurrenceID = current.RecurrenceID

	saved, err := s.store.UpdateBill(ctx, updated)
	if err != nil {
		return core.Bill{}, fmt.Errorf("update bill: %w", err)
	}

	s.publish(ctx, amqp.NewBillEvent(amqp.ActionUpdated, []int64{saved.ID}, recurrenceIDString(saved.RecurrenceID), 1))
	return saved, nil
}

// DeleteBill removes one bill, or its whole series when deleteSeries is set
// and the bill belongs to one. It returns the number of rows removed.
func (s *BillService) DeleteBill(ctx context.Context, id int64, deleteSeries bool) (int64, error) {
	target, err := s.store.GetBill(ctx, id)
	if err != nil {
		return 0, err
	}

	rid := recurrenceIDString(target.RecurrenceID)

	var (
		n    int64
		mode string
	)
	if deleteSeries && target.RecurrenceID.Valid {
		slog.DebugContext(ctx, "Deleting bill series",
			"bill_id", id, "recurrence_id", rid, "delete_series", deleteSeries)
		n, err = s.store.DeleteSeries(ctx, target.RecurrenceID.UUID)
		mode = metrics.ModeSeries
	} else {
		slog.DebugContext(ctx, "Deleting single bill",
			"bill_id", id, "recurrence_id", rid, "delete_series", deleteSeries)
		n, err = s.store.DeleteBill(ctx, id)
		mode = metrics.ModeSingle
	}
	if err != nil {
		return 0, fmt.Errorf("delete bill: %w", err)
	}
	metrics.BillsDeleted(mode, n)

	ids := []int64{id}
	if mode == metrics.ModeSeries {
		ids = []int64{}
	}
	s.publish(ctx, amqp.NewBillEvent(amqp.ActionDeleted, ids, rid, n))
	return n, nil
}

// Summary totals every stored bill by type.
func (s *BillService) Summary(ctx context.Context) (core.Summary, error) {
	bills, err := s.store.ListBills(ctx)
	if err != nil {
		return core.Summary{}, fmt.Errorf("summarize bills: %w", err)
	}
	return core.Summarize(bills), nil
}

// Ready reports whether the store can serve requests: the connection answers
// and the bills table can be queried.
func (s *BillService) Ready(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping store: %w", err)
	}
	if _, err := s.store.CountBills(ctx); err != nil {
		return fmt.Errorf("count bills: %w", err)
	}
	return nil
}

// publish never fails the caller; the change is already committed.
func (s *BillService) publish(ctx context.Context, ev *amqp.BillEvent) {
	if s.publisher == nil {
		metrics.EventPublished(metrics.ResultSkipped)
		return
	}
	if err := s.publisher.PublishBillEvent(ctx, ev); err != nil {
		metrics.EventPublished(metrics.ResultFailure)
		slog.ErrorContext(ctx, "Failed to publish bill event",
			"action", ev.Action, "count", ev.Count, "error", err)
		return
	}
	metrics.EventPublished(metrics.ResultSuccess)
}

func recurrenceIDString(id uuid.NullUUID) string {
	if !id.Valid {
		return ""
	}
	return id.UUID.String()
}

package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/google/uuid"

	"ubillity/internal/amqp"
	"ubillity/internal/core"
	"ubillity/internal/storage"
)

// fakeStore keeps bills in memory and mirrors the repository's error contract.
type fakeStore struct {
	mu     sync.Mutex
	nextID int64
	bills  map[int64]core.Bill
	failOn string
}

func newFakeStore() *fakeStore {
	return &fakeStore{bills: make(map[int64]core.Bill)}
}

func (f *fakeStore) CreateBills(_ context.Context, bills []core.Bill) ([]core.Bill, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn == "create" {
		return nil, errors.New("disk full")
	}
	out := make([]core.Bill, len(bills))
	for i, b := range bills {
		f.nextID++
		b.ID = f.nextID
		f.bills[b.ID] = b
		out[i] = b
	}
	return out, nil
}

func (f *fakeStore) sorted(keep func(core.Bill) bool) []core.Bill {
	out := []core.Bill{}
	for _, b := range f.bills {
		if keep(b) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DueDate.Equal(out[j].DueDate) {
			return out[i].DueDate.Before(out[j].DueDate.Time)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (f *fakeStore) ListBills(context.Context) ([]core.Bill, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sorted(func(core.Bill) bool { return true }), nil
}

func (f *fakeStore) ListSeries(_ context.Context, rid uuid.UUID) ([]core.Bill, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sorted(func(b core.Bill) bool { return b.RecurrenceID.Valid && b.RecurrenceID.UUID == rid }), nil
}

func (f *fakeStore) GetBill(_ context.Context, id int64) (core.Bill, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bills[id]
	if !ok {
		return core.Bill{}, fmt.Errorf("get bill %d: %w", id, storage.ErrNotFound)
	}
	return b, nil
}

func (f *fakeStore) UpdateBill(_ context.Context, b core.Bill) (core.Bill, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur, ok := f.bills[b.ID]
	if !ok {
		return core.Bill{}, storage.ErrNotFound
	}
	b.Recurrence = cur.Recurrence
	b.RecurrenceID = cur.RecurrenceID
	f.bills[b.ID] = b
	return b, nil
}

func (f *fakeStore) DeleteBill(_ context.Context, id int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.bills[id]; !ok {
		return 0, storage.ErrNotFound
	}
	delete(f.bills, id)
	return 1, nil
}

func (f *fakeStore) DeleteSeries(_ context.Context, rid uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, b := range f.bills {
		if b.RecurrenceID.Valid && b.RecurrenceID.UUID == rid {
			delete(f.bills, id)
			n++
		}
	}
	if n == 0 {
		return 0, storage.ErrNotFound
	}
	return n, nil
}

func (f *fakeStore) CountBills(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn == "count" {
		return 0, errors.New("no such table: bills")
	}
	return int64(len(f.bills)), nil
}

func (f *fakeStore) Ping(context.Context) error { return nil }

type recordingPublisher struct {
	events []*amqp.BillEvent
	err    error
}

func (p *recordingPublisher) PublishBillEvent(_ context.Context, ev *amqp.BillEvent) error {
	p.events = append(p.events, ev)
	return p.err
}

func str(s string) *string { return &s }

func input(recurrence string) core.BillInput {
	return core.BillInput{
		Name:       str("Gym"),
		Amount:     str("35.00"),
		Type:       str("expense"),
		Category:   str("recreation"),
		DueDate:    str("2025-01-31"),
		Recurrence: str(recurrence),
	}
}

func TestCreateBillOneTime(t *testing.T) {
	store := newFakeStore()
	pub := &recordingPublisher{}
	svc := NewBillService(store, pub)

	res, err := svc.CreateBill(context.Background(), input("none"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if res.Count != 1 || len(store.bills) != 1 {
		t.Fatalf("expected exactly one row, got count=%d stored=%d", res.Count, len(store.bills))
	}
	if res.Bill.RecurrenceID.Valid {
		t.Fatalf("one-time bill must not carry a recurrence id")
	}
	if len(pub.events) != 1 || pub.events[0].Action != amqp.ActionCreated || pub.events[0].RecurrenceID != nil {
		t.Fatalf("unexpected events: %+v", pub.events)
	}
}

func TestCreateBillWeeklySeries(t *testing.T) {
	store := newFakeStore()
	svc := NewBillService(store, nil)

	in := input("weekly")
	in.DueDate = str("2025-01-01")
	res, err := svc.CreateBill(context.Background(), in)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if res.Count != 26 {
		t.Fatalf("count = %d, want 26", res.Count)
	}
	if !res.Bill.RecurrenceID.Valid {
		t.Fatalf("template must carry a recurrence id")
	}

	series, _ := store.ListSeries(context.Background(), res.Bill.RecurrenceID.UUID)
	if len(series) != 26 {
		t.Fatalf("series length = %d, want 26", len(series))
	}
	if series[0].ID != res.Bill.ID {
		t.Fatalf("template should be first in the series")
	}
	for i := 1; i < len(series); i++ {
		if got := series[i].DueDate.Sub(series[i-1].DueDate.Time).Hours(); got != 7*24 {
			t.Fatalf("gap between %d and %d is %vh", i-1, i, got)
		}
		if series[i].Name != "Gym" || !series[i].Amount.Equal(res.Bill.Amount) || series[i].Reconciled {
			t.Fatalf("sibling %d does not share template fields: %+v", i, series[i])
		}
	}
}

func TestCreateBillOverridesClientRecurrenceID(t *testing.T) {
	store := newFakeStore()
	svc := NewBillService(store, nil)
	fixed := uuid.MustParse("11111111-1111-4111-8111-111111111111")
	svc.newID = func() uuid.UUID { return fixed }

	res, err := svc.CreateBill(context.Background(), input("annually"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if res.Bill.RecurrenceID.UUID != fixed || res.Count != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestCreateBillValidationWritesNothing(t *testing.T) {
	store := newFakeStore()
	pub := &recordingPublisher{}
	svc := NewBillService(store, pub)

	in := input("monthly")
	in.Name = str("")
	_, err := svc.CreateBill(context.Background(), in)
	var verr *core.ValidationError
	if !errors.As(err, &verr) || verr.Fields[core.FieldName] == "" {
		t.Fatalf("expected name validation error, got %v", err)
	}
	if len(store.bills) != 0 || len(pub.events) != 0 {
		t.Fatalf("validation failure must not write or publish")
	}
}

func TestCreateBillStoreFailure(t *testing.T) {
	store := newFakeStore()
	store.failOn = "create"
	svc := NewBillService(store, nil)

	if _, err := svc.CreateBill(context.Background(), input("daily")); err == nil {
		t.Fatal("expected store error")
	}
}

func TestPublishFailureDoesNotFailRequest(t *testing.T) {
	svc := NewBillService(newFakeStore(), &recordingPublisher{err: errors.New("broker down")})
	if _, err := svc.CreateBill(context.Background(), input("none")); err != nil {
		t.Fatalf("publish failure leaked into create: %v", err)
	}
}

func TestUpdateBill(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc := NewBillService(store, nil)

	res, err := svc.CreateBill(ctx, input("monthly"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	t.Run("partial keeps other fields", func(t *testing.T) {
		got, err := svc.UpdateBill(ctx, res.Bill.ID, core.BillInput{Reconciled: str("true")}, true)
		if err != nil {
			t.Fatalf("update: %v", err)
		}
		if !got.Reconciled || got.Name != "Gym" || got.RecurrenceID != res.Bill.RecurrenceID {
			t.Fatalf("unexpected bill: %+v", got)
		}
	})

	t.Run("full update requires fields", func(t *testing.T) {
		_, err := svc.UpdateBill(ctx, res.Bill.ID, core.BillInput{Name: str("Pool")}, false)
		var verr *core.ValidationError
		if !errors.As(err, &verr) || verr.Fields[core.FieldAmount] != core.MsgRequired {
			t.Fatalf("expected amount required, got %v", err)
		}
	})

	t.Run("recurrence is immutable", func(t *testing.T) {
		_, err := svc.UpdateBill(ctx, res.Bill.ID, core.BillInput{Recurrence: str("weekly")}, true)
		var verr *core.ValidationError
		if !errors.As(err, &verr) || verr.Fields[core.FieldRecurrence] == "" {
			t.Fatalf("expected recurrence error, got %v", err)
		}
	})

	t.Run("same recurrence accepted", func(t *testing.T) {
		if _, err := svc.UpdateBill(ctx, res.Bill.ID, input("monthly"), false); err != nil {
			t.Fatalf("update: %v", err)
		}
	})

	t.Run("missing bill", func(t *testing.T) {
		if _, err := svc.UpdateBill(ctx, 9999, input("none"), false); !errors.Is(err, storage.ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
	})
}

func TestDeleteBill(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*BillService, *fakeStore, CreateResult, CreateResult) {
		t.Helper()
		store := newFakeStore()
		svc := NewBillService(store, nil)
		series, err := svc.CreateBill(ctx, input("monthly"))
		if err != nil {
			t.Fatalf("create series: %v", err)
		}
		single, err := svc.CreateBill(ctx, input("none"))
		if err != nil {
			t.Fatalf("create single: %v", err)
		}
		return svc, store, series, single
	}

	t.Run("single bill of a series", func(t *testing.T) {
		svc, store, series, _ := setup(t)
		n, err := svc.DeleteBill(ctx, series.Bill.ID, false)
		if err != nil || n != 1 {
			t.Fatalf("delete = %d, %v", n, err)
		}
		if len(store.bills) != 6 {
			t.Fatalf("remaining = %d, want 6", len(store.bills))
		}
	})

	t.Run("whole series", func(t *testing.T) {
		svc, store, series, single := setup(t)
		n, err := svc.DeleteBill(ctx, series.Bill.ID, true)
		if err != nil || n != 6 {
			t.Fatalf("delete = %d, %v", n, err)
		}
		if len(store.bills) != 1 {
			t.Fatalf("remaining = %d, want 1", len(store.bills))
		}
		if _, err := svc.GetBill(ctx, single.Bill.ID); err != nil {
			t.Fatalf("unrelated bill removed: %v", err)
		}
	})

	t.Run("series flag on one-time bill", func(t *testing.T) {
		svc, store, _, single := setup(t)
		n, err := svc.DeleteBill(ctx, single.Bill.ID, true)
		if err != nil || n != 1 {
			t.Fatalf("delete = %d, %v", n, err)
		}
		if len(store.bills) != 6 {
			t.Fatalf("remaining = %d, want 6", len(store.bills))
		}
	})

	t.Run("unknown id", func(t *testing.T) {
		svc, _, _, _ := setup(t)
		if _, err := svc.DeleteBill(ctx, 404, true); !errors.Is(err, storage.ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
	})
}

func TestSeriesAndSummary(t *testing.T) {
	ctx := context.Background()
	svc := NewBillService(newFakeStore(), nil)

	res, err := svc.CreateBill(ctx, input("bimonthly"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	series, err := svc.Series(ctx, res.Bill)
	if err != nil || len(series) != 3 {
		t.Fatalf("series = %d, %v", len(series), err)
	}

	one, _ := svc.CreateBill(ctx, input("none"))
	if s, _ := svc.Series(ctx, one.Bill); s != nil {
		t.Fatalf("one-time bill should have no series")
	}

	sum, err := svc.Summary(ctx)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if sum.Count != 4 || sum.Unreconciled != 4 {
		t.Fatalf("summary = %+v", sum)
	}
}

func TestReady(t *testing.T) {
	store := newFakeStore()
	svc := NewBillService(store, nil)
	if err := svc.Ready(context.Background()); err != nil {
		t.Fatalf("Ready: %v", err)
	}

	store.failOn = "count"
	if err := svc.Ready(context.Background()); err == nil {
		t.Fatal("expected Ready to fail when bills cannot be counted")
	}
}

func TestCreateBillRejectsSeriesPastMaxDate(t *testing.T) {
	store := newFakeStore()
	svc := NewBillService(store, nil)

	in := input("monthly")
	in.DueDate = str("9999-12-01")
	_, err := svc.CreateBill(context.Background(), in)
	var verr *core.ValidationError
	if !errors.As(err, &verr) || verr.Fields[core.FieldDueDate] == "" {
		t.Fatalf("expected due_date validation error, got %v", err)
	}
	if n, _ := store.CountBills(context.Background()); n != 0 {
		t.Fatalf("stored %d bills", n)
	}
}

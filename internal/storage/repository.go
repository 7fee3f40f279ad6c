package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"ubillity/internal/core"

	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("bill not found")

const billColumns = `id, name, description, amount, type, category, due_date, reconciled, recurrence, recurrence_id`

const (
	insertBillSQL = `INSERT INTO bills (name, description, amount, type, category, due_date, reconciled, recurrence, recurrence_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	updateBillSQL = `UPDATE bills
		SET name = ?, description = ?, amount = ?, type = ?, category = ?, due_date = ?, reconciled = ?,
		    updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')
		WHERE id = ?`
	selectBillSQL   = `SELECT ` + billColumns + ` FROM bills WHERE id = ?`
	listBillsSQL    = `SELECT ` + billColumns + ` FROM bills ORDER BY due_date, id`
	listSeriesSQL   = `SELECT ` + billColumns + ` FROM bills WHERE recurrence_id = ? ORDER BY due_date, id`
	deleteBillSQL   = `DELETE FROM bills WHERE id = ?`
	deleteSeriesSQL = `DELETE FROM bills WHERE recurrence_id = ?`
	countBillsSQL   = `SELECT COUNT(*) FROM bills`
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	version, err := RunMigrations(dbPath)
	if err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	slog.Info("SQLite repository ready", "path", dbPath, "schema_version", version)
	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks that the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// CreateBills inserts all bills in a single transaction, in order, and
// returns them with their assigned ids. Either every row is stored or none is.
func (r *SQLiteRepository) CreateBills(ctx context.Context, bills []core.Bill) ([]core.Bill, error) {
	if len(bills) == 0 {
		return nil, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertBillSQL)
	if err != nil {
		return nil, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	created := make([]core.Bill, len(bills))
	for i, b := range bills {
		res, err := stmt.ExecContext(ctx,
			b.Name,
			nullString(b.Description),
			b.Amount.String(),
			string(b.Type),
			nullString(string(b.Category)),
			b.DueDate.String(),
			b.Reconciled,
			string(b.Recurrence),
			b.RecurrenceID,
		)
		if err != nil {
			return nil, fmt.Errorf("insert bill %d of %d: %w", i+1, len(bills), err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("read inserted id: %w", err)
		}
		b.ID = id
		created[i] = b
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	slog.InfoContext(ctx, "Bills saved to SQLite",
		"count", len(created),
		"first_id", created[0].ID,
		"recurrence", created[0].Recurrence,
		"recurrence_id", recurrenceIDString(created[0].RecurrenceID))

	return created, nil
}

// GetBill retrieves a single bill by id.
func (r *SQLiteRepository) GetBill(ctx context.Context, id int64) (core.Bill, error) {
	b, err := scanBill(r.db.QueryRowContext(ctx, selectBillSQL, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Bill{}, fmt.Errorf("get bill %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return core.Bill{}, fmt.Errorf("get bill %d: %w", id, err)
	}
	return b, nil
}

// ListBills returns every bill ordered by due date.
func (r *SQLiteRepository) ListBills(ctx context.Context) ([]core.Bill, error) {
	return r.queryBills(ctx, listBillsSQL)
}

// ListSeries returns every bill sharing a recurrence id, ordered by due date.
func (r *SQLiteRepository) ListSeries(ctx context.Context, recurrenceID uuid.UUID) ([]core.Bill, error) {
	return r.queryBills(ctx, listSeriesSQL, recurrenceID.String())
}

// UpdateBill stores the editable fields of b. Recurrence and recurrence id are left untouched.
func (r *SQLiteRepository) UpdateBill(ctx context.Context, b core.Bill) (core.Bill, error) {
	res, err := r.db.ExecContext(ctx, updateBillSQL,
		b.Name,
		nullString(b.Description),
		b.Amount.String(),
		string(b.Type),
		nullString(string(b.Category)),
		b.DueDate.String(),
		b.Reconciled,
		b.ID,
	)
	if err != nil {
		return core.Bill{}, fmt.Errorf("update bill %d: %w", b.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return core.Bill{}, fmt.Errorf("update bill %d: %w", b.ID, err)
	}
	if n == 0 {
		return core.Bill{}, fmt.Errorf("update bill %d: %w", b.ID, ErrNotFound)
	}
	return r.GetBill(ctx, b.ID)
}

// DeleteBill removes one bill.
func (r *SQLiteRepository) DeleteBill(ctx context.Context, id int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, deleteBillSQL, id)
	if err != nil {
		return 0, fmt.Errorf("delete bill %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete bill %d: %w", id, err)
	}
	if n == 0 {
		return 0, fmt.Errorf("delete bill %d: %w", id, ErrNotFound)
	}
	return n, nil
}

// DeleteSeries removes every bill sharing the recurrence id in one statement.
func (r *SQLiteRepository) DeleteSeries(ctx context.Context, recurrenceID uuid.UUID) (int64, error) {
	res, err := r.db.ExecContext(ctx, deleteSeriesSQL, recurrenceID.String())
	if err != nil {
		return 0, fmt.Errorf("delete series %s: %w", recurrenceID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete series %s: %w", recurrenceID, err)
	}
	if n == 0 {
		return 0, fmt.Errorf("delete series %s: %w", recurrenceID, ErrNotFound)
	}
	slog.InfoContext(ctx, "Bill series deleted from SQLite", "recurrence_id", recurrenceID.String(), "count", n)
	return n, nil
}

// CountBills returns the number of stored bills.
func (r *SQLiteRepository) CountBills(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, countBillsSQL).Scan(&n); err != nil {
		return 0, fmt.Errorf("count bills: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) queryBills(ctx context.Context, query string, args ...any) ([]core.Bill, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query bills: %w", err)
	}
	defer rows.Close()

	bills := []core.Bill{}
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bill: %w", err)
		}
		bills = append(bills, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bills: %w", err)
	}
	return bills, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBill(row rowScanner) (core.Bill, error) {
	var (
		b           core.Bill
		description sql.NullString
		amount      string
		billType    string
		category    sql.NullString
		dueDate     string
		recurrence  string
	)
	if err := row.Scan(&b.ID, &b.Name, &description, &amount, &billType, &category, &dueDate,
		&b.Reconciled, &recurrence, &b.RecurrenceID); err != nil {
		return core.Bill{}, err
	}

	amt, err := core.ParseAmount(amount)
	if err != nil {
		return core.Bill{}, fmt.Errorf("bill %d has invalid amount %q: %w", b.ID, amount, err)
	}
	due, err := core.ParseDate(dueDate)
	if err != nil {
		return core.Bill{}, fmt.Errorf("bill %d has invalid due date %q: %w", b.ID, dueDate, err)
	}

	b.Description = description.String
	b.Amount = amt
	b.Type = core.BillType(billType)
	b.Category = core.Category(category.String)
	b.DueDate = due
	b.Recurrence = core.Recurrence(recurrence)
	return b, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func recurrenceIDString(id uuid.NullUUID) string {
	if !id.Valid {
		return ""
	}
	return id.UUID.String()
}

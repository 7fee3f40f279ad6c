package sheets

import (
	"context"
	"strconv"

	"ubillity/internal/core"
)

// Ports for outbound adapters.
type (
	// BillExporter replaces the mirrored copy of the bill table with bills.
	BillExporter interface {
		ExportBills(ctx context.Context, bills []core.Bill) error
	}
)

// Header is the first row of every exported snapshot.
var Header = []string{
	"id", "name", "description", "amount", "type",
	"category", "due_date", "reconciled", "recurrence", "recurrence_id",
}

// Columns is the A1 column span covered by Header.
const Columns = "A:J"

// Rows renders bills as spreadsheet rows, header first.
func Rows(bills []core.Bill) [][]string {
	rows := make([][]string, 0, len(bills)+1)
	rows = append(rows, append([]string(nil), Header...))
	for _, b := range bills {
		rid := ""
		if b.RecurrenceID.Valid {
			rid = b.RecurrenceID.UUID.String()
		}
		rows = append(rows, []string{
			strconv.FormatInt(b.ID, 10),
			b.Name,
			b.Description,
			core.FormatAmount(b.Amount),
			string(b.Type),
			string(b.Category),
			b.DueDate.String(),
			strconv.FormatBool(b.Reconciled),
			string(b.Recurrence),
			rid,
		})
	}
	return rows
}

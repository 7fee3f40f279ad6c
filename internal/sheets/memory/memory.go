package memory

import (
	"context"
	"sync"

	"ubillity/internal/core"
	ports "ubillity/internal/sheets"
)

var _ ports.BillExporter = (*Exporter)(nil)

// Exporter keeps the latest exported snapshot in memory. It is used when no
// spreadsheet is configured and in tests.
type Exporter struct {
	mu      sync.Mutex
	rows    [][]string
	exports int
}

func New() *Exporter {
	return &Exporter{}
}

func (e *Exporter) ExportBills(_ context.Context, bills []core.Bill) error {
	rows := ports.Rows(bills)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rows = rows
	e.exports++
	return nil
}

// Rows returns a copy of the last snapshot, header included.
func (e *Exporter) Rows() [][]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([][]string, len(e.rows))
	for i, r := range e.rows {
		out[i] = append([]string(nil), r...)
	}
	return out
}

// Exports returns how many snapshots have been written.
func (e *Exporter) Exports() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.exports
}

package core

import "github.com/shopspring/decimal"

// TypeTotal is the sum of amounts for one bill type.
type TypeTotal struct {
	Type   BillType
	Amount decimal.Decimal
	Count  int
}

// Summary is a compact overview of a list of bills.
type Summary struct {
	Count        int
	Unreconciled int
	ByType       []TypeTotal
}

// Summarize totals bills per type, in BillTypes order, skipping empty types.
func Summarize(bills []Bill) Summary {
	totals := make(map[BillType]*TypeTotal, len(BillTypes))
	s := Summary{Count: len(bills)}
	for _, b := range bills {
		if !b.Reconciled {
			s.Unreconciled++
		}
		t, ok := totals[b.Type]
		if !ok {
			t = &TypeTotal{Type: b.Type, Amount: decimal.Zero}
			totals[b.Type] = t
		}
		t.Amount = t.Amount.Add(b.Amount)
		t.Count++
	}
	for _, bt := range BillTypes {
		if t, ok := totals[bt]; ok {
			s.ByType = append(s.ByType, *t)
		}
	}
	return s
}

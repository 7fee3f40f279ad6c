package core

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	TypeAsset     BillType = "asset"
	TypeExpense   BillType = "expense"
	TypeIncome    BillType = "income"
	TypeLiability BillType = "liability"
)

const (
	CategoryHealthcare   Category = "healthcare"
	CategoryLoan         Category = "loan"
	CategoryMisc         Category = "misc"
	CategoryRecreation   Category = "recreation"
	CategorySubscription Category = "subscription"
	CategoryUtility      Category = "utility"
)

const (
	NameMaxLength        = 30
	DescriptionMaxLength = 200
)

type (
	// BillType classifies a bill in the ledger.
	BillType string

	// Category is an optional grouping tag. The zero value means uncategorised.
	Category string

	// Choice is a value/label pair used to render select inputs.
	Choice struct {
		Value string
		Label string
	}

	// Bill is a single financial obligation or record with an amount and due date.
	Bill struct {
		ID           int64
		Name         string `form:"name" validate:"required,max=30"`
		Description  string `form:"description" validate:"max=200"`
		Amount       decimal.Decimal
		Type         BillType `form:"type" validate:"required,enum"`
		Category     Category `form:"category" validate:"omitempty,enum"`
		DueDate      Date     `form:"due_date" validate:"required"`
		Reconciled   bool
		Recurrence   Recurrence `form:"recurrence" validate:"required,enum"`
		RecurrenceID uuid.NullUUID
	}
)

// BillTypes lists every BillType in display order.
var BillTypes = []BillType{TypeAsset, TypeExpense, TypeIncome, TypeLiability}

// Categories lists every Category in display order.
var Categories = []Category{
	CategoryHealthcare,
	CategoryLoan,
	CategoryMisc,
	CategoryRecreation,
	CategorySubscription,
	CategoryUtility,
}

var (
	billTypeLabels = map[BillType]string{
		TypeAsset:     "Asset",
		TypeExpense:   "Expense",
		TypeIncome:    "Income",
		TypeLiability: "Liability",
	}
	categoryLabels = map[Category]string{
		CategoryHealthcare:   "Healthcare",
		CategoryLoan:         "Loan",
		CategoryMisc:         "Miscellaneous",
		CategoryRecreation:   "Recreation",
		CategorySubscription: "Subscription",
		CategoryUtility:      "Utility",
	}
)

func (t BillType) IsValid() bool {
	_, ok := billTypeLabels[t]
	return ok
}

func (t BillType) Label() string {
	if l, ok := billTypeLabels[t]; ok {
		return l
	}
	return string(t)
}

func (c Category) IsValid() bool {
	_, ok := categoryLabels[c]
	return ok
}

// Label returns the display name, or an empty string for an uncategorised bill.
func (c Category) Label() string {
	if l, ok := categoryLabels[c]; ok {
		return l
	}
	return string(c)
}

// BillTypeChoices returns select options for every bill type.
func BillTypeChoices() []Choice {
	out := make([]Choice, 0, len(BillTypes))
	for _, t := range BillTypes {
		out = append(out, Choice{Value: string(t), Label: t.Label()})
	}
	return out
}

// CategoryChoices returns select options for every category.
func CategoryChoices() []Choice {
	out := make([]Choice, 0, len(Categories))
	for _, c := range Categories {
		out = append(out, Choice{Value: string(c), Label: c.Label()})
	}
	return out
}

// IsRecurring reports whether the bill belongs to a generated series.
func (b Bill) IsRecurring() bool {
	return b.RecurrenceID.Valid
}

// SiblingOf returns a copy of the shared fields of b due on the given date.
// The copy has no ID and is not reconciled.
func (b Bill) SiblingOf(due Date) Bill {
	return Bill{
		Name:         b.Name,
		Description:  b.Description,
		Amount:       b.Amount,
		Type:         b.Type,
		Category:     b.Category,
		DueDate:      due,
		Reconciled:   false,
		Recurrence:   b.Recurrence,
		RecurrenceID: b.RecurrenceID,
	}
}

// Today returns the current UTC calendar date.
func Today() Date {
	now := time.Now().UTC()
	return NewDate(now.Year(), int(now.Month()), now.Day())
}

package core

import (
	"errors"
	"fmt"
)

const (
	RecurrenceNone      Recurrence = "none"
	RecurrenceDaily     Recurrence = "daily"
	RecurrenceWeekly    Recurrence = "weekly"
	RecurrenceBiweekly  Recurrence = "biweekly"
	RecurrenceMonthly   Recurrence = "monthly"
	RecurrenceBimonthly Recurrence = "bimonthly"
	RecurrenceAnnually  Recurrence = "annually"
)

// Recurrence describes the calendar cadence a bill repeats on.
type Recurrence string

// Recurrences lists every Recurrence in display order.
var Recurrences = []Recurrence{
	RecurrenceNone,
	RecurrenceDaily,
	RecurrenceWeekly,
	RecurrenceBiweekly,
	RecurrenceMonthly,
	RecurrenceBimonthly,
	RecurrenceAnnually,
}

var (
	ErrUnmappedRecurrence  = errors.New("recurrence has no schedule")
	ErrMissingRecurrenceID = errors.New("recurring bill has no recurrence id")
)

var recurrenceLabels = map[Recurrence]string{
	RecurrenceNone:      "One Time",
	RecurrenceDaily:     "Daily",
	RecurrenceWeekly:    "Weekly",
	RecurrenceBiweekly:  "Biweekly",
	RecurrenceMonthly:   "Monthly",
	RecurrenceBimonthly: "Bimonthly",
	RecurrenceAnnually:  "Annually",
}

// Schedule is the step between two instances of a series and the total
// number of instances, template included.
type Schedule struct {
	Years  int
	Months int
	Days   int
	Count  int
}

// Schedule returns the fixed expansion table entry for r.
func (r Recurrence) Schedule() (Schedule, error) {
	switch r {
	case RecurrenceNone:
		return Schedule{Count: 1}, nil
	case RecurrenceDaily:
		return Schedule{Days: 1, Count: 180}, nil
	case RecurrenceWeekly:
		return Schedule{Days: 7, Count: 26}, nil
	case RecurrenceBiweekly:
		return Schedule{Days: 14, Count: 13}, nil
	case RecurrenceMonthly:
		return Schedule{Months: 1, Count: 6}, nil
	case RecurrenceBimonthly:
		return Schedule{Months: 2, Count: 3}, nil
	case RecurrenceAnnually:
		return Schedule{Years: 1, Count: 1}, nil
	}
	return Schedule{}, fmt.Errorf("%w: %q", ErrUnmappedRecurrence, string(r))
}

// DueDate returns the due date of the i-th instance counted from anchor (i=0).
func (s Schedule) DueDate(anchor Date, i int) Date {
	return anchor.AddCalendar(s.Years*i, s.Months*i, s.Days*i)
}

func (r Recurrence) IsValid() bool {
	_, ok := recurrenceLabels[r]
	return ok
}

func (r Recurrence) Label() string {
	if l, ok := recurrenceLabels[r]; ok {
		return l
	}
	return string(r)
}

// RecurrenceChoices returns select options for every recurrence.
func RecurrenceChoices() []Choice {
	out := make([]Choice, 0, len(Recurrences))
	for _, r := range Recurrences {
		out = append(out, Choice{Value: string(r), Label: r.Label()})
	}
	return out
}

// MaxDueDate is the last date the YYYY-MM-DD format can hold.
var MaxDueDate = NewDate(9999, 12, 31)

// ValidateSeries rejects a template whose last instance would fall after
// MaxDueDate.
func (b Bill) ValidateSeries() error {
	schedule, err := b.Recurrence.Schedule()
	if err != nil {
		return err
	}
	if schedule.DueDate(b.DueDate, schedule.Count-1).After(MaxDueDate.Time) {
		return FieldError(FieldDueDate, MsgDateOutOfRange)
	}
	return nil
}

// Expand generates the future siblings of a recurring template bill.
// The template must already carry its recurrence id; it is not part of the result.
func Expand(template Bill) ([]Bill, error) {
	schedule, err := template.Recurrence.Schedule()
	if err != nil {
		return nil, err
	}
	if template.Recurrence == RecurrenceNone || schedule.Count <= 1 {
		return nil, nil
	}
	if !template.RecurrenceID.Valid {
		return nil, ErrMissingRecurrenceID
	}

	siblings := make([]Bill, 0, schedule.Count-1)
	for i := 1; i < schedule.Count; i++ {
		siblings = append(siblings, template.SiblingOf(schedule.DueDate(template.DueDate, i)))
	}
	return siblings, nil
}

func init() {
	for _, r := range Recurrences {
		if _, err := r.Schedule(); err != nil {
			panic(err)
		}
	}
}

package core

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// DateLayout is the wire and storage format of a calendar date.
const DateLayout = "2006-01-02"

var ErrInvalidDate = errors.New("invalid date")

// Date is a calendar date without a time of day, always in UTC.
type Date struct {
	time.Time
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string. Out of range days such as 2025-02-30 are rejected.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

func (d Date) Equal(o Date) bool {
	return d.Time.Equal(o.Time)
}

// AddCalendar moves the date by whole years and months, clamping the day
// to the last day of the target month, and then by a number of days.
//
// 2025-01-31 +1 month is 2025-02-28; 2024-02-29 +1 year is 2025-02-28.
func (d Date) AddCalendar(years, months, days int) Date {
	y, m, day := d.Date()
	idx := int(m) - 1 + months
	y += years + floorDiv(idx, 12)
	target := time.Month(idx - floorDiv(idx, 12)*12 + 1)
	if last := daysIn(y, target); day > last {
		day = last
	}
	return Date{Time: time.Date(y, target, day, 0, 0, 0, 0, time.UTC).AddDate(0, 0, days)}
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return ErrInvalidDate
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

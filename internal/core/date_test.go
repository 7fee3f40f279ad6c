package core

import (
	"encoding/json"
	"testing"
)

func TestParseDate(t *testing.T) {
	cases := []struct {
		in string
		ok bool
	}{
		{"2025-01-31", true},
		{" 2024-02-29 ", true},
		{"2025-02-29", false}, // not a leap year
		{"2025-02-30", false},
		{"2025-13-01", false},
		{"31/01/2025", false},
		{"", false},
	}
	for _, tc := range cases {
		_, err := ParseDate(tc.in)
		if tc.ok && err != nil {
			t.Fatalf("%q expected ok, got %v", tc.in, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("%q expected error", tc.in)
		}
	}
}

func TestAddCalendarClampsMonthEnd(t *testing.T) {
	cases := []struct {
		from                string
		years, months, days int
		want                string
	}{
		{"2025-01-31", 0, 1, 0, "2025-02-28"},
		{"2024-01-31", 0, 1, 0, "2024-02-29"},
		{"2025-01-31", 0, 3, 0, "2025-04-30"},
		{"2025-11-30", 0, 2, 0, "2026-01-30"},
		{"2025-12-31", 0, 2, 0, "2026-02-28"},
		{"2024-02-29", 1, 0, 0, "2025-02-28"},
		{"2024-02-29", 4, 0, 0, "2028-02-29"},
		{"2025-03-31", 0, -1, 0, "2025-02-28"},
		{"2025-12-30", 0, 0, 7, "2026-01-06"},
	}
	for _, tc := range cases {
		from, err := ParseDate(tc.from)
		if err != nil {
			t.Fatalf("parse %q: %v", tc.from, err)
		}
		got := from.AddCalendar(tc.years, tc.months, tc.days).String()
		if got != tc.want {
			t.Errorf("%s +%dy%dm%dd = %s, want %s", tc.from, tc.years, tc.months, tc.days, got, tc.want)
		}
	}
}

func TestDateJSON(t *testing.T) {
	d := NewDate(2025, 3, 9)
	b, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `"2025-03-09"` {
		t.Fatalf("marshal = %s", b)
	}

	var zero Date
	if b, _ := json.Marshal(zero); string(b) != "null" {
		t.Fatalf("zero date marshal = %s, want null", b)
	}

	var back Date
	if err := json.Unmarshal([]byte(`"2025-03-09"`), &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !back.Equal(d) {
		t.Fatalf("unmarshal = %s, want %s", back, d)
	}
	if err := json.Unmarshal([]byte(`"2025-02-31"`), &back); err == nil {
		t.Fatalf("expected error for invalid day")
	}
}

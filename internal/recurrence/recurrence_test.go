package recurrence

import (
	"testing"
	"time"
)

func date(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func dates(ts []time.Time) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.Format(time.DateOnly)
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestParseFreqOnly(t *testing.T) {
	tests := []struct {
		input string
		freq  Freq
	}{
		{"FREQ=DAILY", Daily},
		{"FREQ=WEEKLY", Weekly},
		{"freq=monthly", Monthly},
		{"RRULE:FREQ=YEARLY", Yearly},
	}

	for _, tt := range tests {
		r, err := Parse(tt.input)
		if err != nil {
			t.Errorf("Parse(%q) error: %v", tt.input, err)
			continue
		}
		if r.Freq != tt.freq {
			t.Errorf("Parse(%q).Freq = %d, want %d", tt.input, r.Freq, tt.freq)
		}
		if r.Interval != 1 {
			t.Errorf("Parse(%q).Interval = %d, want 1", tt.input, r.Interval)
		}
	}
}

func TestParseByDaySortsMondayFirst(t *testing.T) {
	r, err := Parse("FREQ=WEEKLY;BYDAY=SU,FR,MO,FR")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	want := []time.Weekday{time.Monday, time.Friday, time.Sunday}
	if len(r.ByDay) != len(want) {
		t.Fatalf("ByDay = %v, want %v", r.ByDay, want)
	}
	for i, d := range r.ByDay {
		if d != want[i] {
			t.Errorf("ByDay[%d] = %v, want %v", i, d, want[i])
		}
	}
}

func TestParseWithUntil(t *testing.T) {
	for _, in := range []string{"FREQ=WEEKLY;UNTIL=20260301T000000Z", "FREQ=WEEKLY;UNTIL=20260301"} {
		r, err := Parse(in)
		if err != nil {
			t.Fatalf("Parse(%q) error: %v", in, err)
		}
		if r.Until == nil || !r.Until.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)) {
			t.Errorf("Parse(%q).Until = %v", in, r.Until)
		}
	}
}

func TestParseErrors(t *testing.T) {
	tests := []string{
		"",
		"INTERVAL=2",
		"FREQ=HOURLY",
		"FREQ=DAILY;INTERVAL=0",
		"FREQ=WEEKLY;BYDAY=XX",
		"FREQ=MONTHLY;BYMONTHDAY=32",
		"FREQ=DAILY;COUNT=-1",
		"FREQ=DAILY;UNTIL=tomorrow",
		"FREQ=DAILY;BYSETPOS=1",
		"FREQ=DAILY;BYDAY=MO",
		"FREQ=WEEKLY;BYMONTHDAY=3",
		"FREQ",
	}
	for _, in := range tests {
		if _, err := Parse(in); err == nil {
			t.Errorf("Parse(%q) expected error", in)
		}
	}
}

func TestSeries(t *testing.T) {
	tests := []struct {
		name  string
		rule  string
		start string
		want  []string
	}{
		{
			name:  "daily",
			rule:  "FREQ=DAILY;COUNT=3",
			start: "2026-11-01",
			want:  []string{"2026-11-01", "2026-11-02", "2026-11-03"},
		},
		{
			name:  "every other day until",
			rule:  "FREQ=DAILY;INTERVAL=2;UNTIL=20261106",
			start: "2026-11-01",
			want:  []string{"2026-11-01", "2026-11-03", "2026-11-05"},
		},
		{
			name:  "weekly on start weekday",
			rule:  "FREQ=WEEKLY;COUNT=3",
			start: "2026-11-06",
			want:  []string{"2026-11-06", "2026-11-13", "2026-11-20"},
		},
		{
			name:  "weekly by day skips days before start",
			rule:  "FREQ=WEEKLY;BYDAY=MO,FR;COUNT=4",
			start: "2026-11-04",
			want:  []string{"2026-11-06", "2026-11-09", "2026-11-13", "2026-11-16"},
		},
		{
			name:  "biweekly sunday belongs to the monday week",
			rule:  "FREQ=WEEKLY;INTERVAL=2;BYDAY=SA,SU;COUNT=4",
			start: "2026-11-07",
			want:  []string{"2026-11-07", "2026-11-08", "2026-11-21", "2026-11-22"},
		},
		{
			name:  "monthly skips short months",
			rule:  "FREQ=MONTHLY;COUNT=3",
			start: "2027-01-31",
			want:  []string{"2027-01-31", "2027-03-31", "2027-05-31"},
		},
		{
			name:  "monthly by month day",
			rule:  "FREQ=MONTHLY;BYMONTHDAY=15;COUNT=2",
			start: "2026-11-20",
			want:  []string{"2026-12-15", "2027-01-15"},
		},
		{
			name:  "yearly leap day",
			rule:  "FREQ=YEARLY;COUNT=2",
			start: "2028-02-29",
			want:  []string{"2028-02-29", "2032-02-29"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Parse(tt.rule)
			if err != nil {
				t.Fatalf("Parse error: %v", err)
			}
			got, err := Series(r, date(tt.start), 31)
			if err != nil {
				t.Fatalf("Series error: %v", err)
			}
			if !equal(dates(got), tt.want) {
				t.Errorf("Series = %v, want %v", dates(got), tt.want)
			}
		})
	}
}

func TestSeriesRejectsUnbounded(t *testing.T) {
	r, _ := Parse("FREQ=DAILY")
	if _, err := Series(r, date("2026-11-01"), 31); err == nil {
		t.Error("expected error for rule without COUNT or UNTIL")
	}
}

func TestSeriesRejectsOverLimit(t *testing.T) {
	r, _ := Parse("FREQ=DAILY;COUNT=40")
	if _, err := Series(r, date("2026-11-01"), 31); err == nil {
		t.Error("expected error for series over the limit")
	}

	r, _ = Parse("FREQ=DAILY;COUNT=31")
	got, err := Series(r, date("2026-11-01"), 31)
	if err != nil || len(got) != 31 {
		t.Errorf("Series at limit = %d dates, %v", len(got), err)
	}
}

func TestSeriesUntilBeforeStart(t *testing.T) {
	r, _ := Parse("FREQ=DAILY;UNTIL=20261001")
	if _, err := Series(r, date("2026-11-01"), 31); err == nil {
		t.Error("expected error when UNTIL precedes the start")
	}
}

func TestSeriesTruncatesTimeOfDay(t *testing.T) {
	r, _ := Parse("FREQ=DAILY;COUNT=1")
	got, err := Series(r, time.Date(2026, 11, 1, 18, 30, 0, 0, time.UTC), 31)
	if err != nil {
		t.Fatalf("Series error: %v", err)
	}
	if got[0].Hour() != 0 || got[0].Minute() != 0 {
		t.Errorf("first = %v, want midnight", got[0])
	}
}

package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/orbitcrm/blueprint-engine/internal/pkg/blueprinterr"
)

func newTestCalendar(t *testing.T) *Calendar {
	t.Helper()
	cal, err := NewCalendar(CalendarConfig{StartHour: 9, EndHour: 17, Timezone: "UTC"})
	if err != nil {
		t.Fatalf("new calendar: %v", err)
	}
	return cal
}

func TestCalendarWallClock(t *testing.T) {
	cal := newTestCalendar(t)
	start := time.Date(2026, 3, 6, 10, 0, 0, 0, time.UTC) // Friday

	got := cal.Deadline(start, 48*time.Hour, false, false)
	want := start.Add(48 * time.Hour)
	if !got.Equal(want) {
		t.Fatalf("deadline = %v, want %v", got, want)
	}
}

func TestCalendarZeroHours(t *testing.T) {
	cal := newTestCalendar(t)
	start := time.Date(2026, 3, 6, 10, 0, 0, 0, time.UTC)

	if got := cal.Deadline(start, 0, true, true); !got.Equal(start) {
		t.Fatalf("zero-duration deadline = %v, want start", got)
	}
	if got := cal.Elapsed(start, start, true, true); got != 0 {
		t.Fatalf("elapsed at start = %v, want 0", got)
	}
}

func TestCalendarBusinessHoursCarryToNextDay(t *testing.T) {
	cal := newTestCalendar(t)
	// Monday 15:00; 4 business hours leaves 2h today (15-17) and 2h tomorrow.
	start := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

	got := cal.Deadline(start, 4*time.Hour, true, false)
	want := time.Date(2026, 3, 3, 11, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("deadline = %v, want %v", got, want)
	}
}

func TestCalendarStartOutsideWindow(t *testing.T) {
	cal := newTestCalendar(t)
	// Monday 20:00 is after close; the clock starts at Tuesday 09:00.
	start := time.Date(2026, 3, 2, 20, 0, 0, 0, time.UTC)

	got := cal.Deadline(start, 1*time.Hour, true, false)
	want := time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("deadline = %v, want %v", got, want)
	}
}

func TestCalendarExcludeWeekends(t *testing.T) {
	cal := newTestCalendar(t)
	// Friday 12:00 + 24h skipping the weekend: 12h of Friday remain, the
	// other 12h land on Monday.
	start := time.Date(2026, 3, 6, 12, 0, 0, 0, time.UTC)

	got := cal.Deadline(start, 24*time.Hour, false, true)
	want := time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("deadline = %v, want %v", got, want)
	}
}

func TestCalendarBusinessHoursAndWeekends(t *testing.T) {
	cal := newTestCalendar(t)
	// Friday 16:00; 8 business hours = 1h Friday + 7h Monday.
	start := time.Date(2026, 3, 6, 16, 0, 0, 0, time.UTC)

	got := cal.Deadline(start, 8*time.Hour, true, true)
	want := time.Date(2026, 3, 9, 16, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("deadline = %v, want %v", got, want)
	}
}

func TestCalendarRoundTrip(t *testing.T) {
	cal := newTestCalendar(t)

	starts := []time.Time{
		time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC), // Monday in window
		time.Date(2026, 3, 6, 16, 45, 0, 0, time.UTC), // Friday near close
		time.Date(2026, 3, 7, 3, 0, 0, 0, time.UTC),   // Saturday
		time.Date(2026, 3, 4, 22, 0, 0, 0, time.UTC),  // Wednesday after close
	}
	durations := []time.Duration{
		0,
		30 * time.Minute,
		8 * time.Hour,
		24 * time.Hour,
		100 * time.Hour,
	}
	flags := [][2]bool{{false, false}, {true, false}, {false, true}, {true, true}}

	for _, start := range starts {
		for _, d := range durations {
			for _, f := range flags {
				deadline := cal.Deadline(start, d, f[0], f[1])
				elapsed := cal.Elapsed(start, deadline, f[0], f[1])
				if elapsed != d {
					t.Fatalf("round trip start=%v d=%v business=%v weekends=%v: elapsed=%v",
						start, d, f[0], f[1], elapsed)
				}
			}
		}
	}
}

func TestCalendarElapsedNeverNegative(t *testing.T) {
	cal := newTestCalendar(t)
	start := time.Date(2026, 3, 6, 10, 0, 0, 0, time.UTC)

	if got := cal.Elapsed(start, start.Add(-time.Hour), true, true); got != 0 {
		t.Fatalf("elapsed before start = %v, want 0", got)
	}
}

func TestCalendarInvalidWindow(t *testing.T) {
	cases := []CalendarConfig{
		{StartHour: 17, EndHour: 9, Timezone: "UTC"},
		{StartHour: 9, EndHour: 9, Timezone: "UTC"},
		{StartHour: 9, EndHour: 17, Timezone: "Not/AZone"},
	}
	for _, cfg := range cases {
		_, err := NewCalendar(cfg)
		if !errors.Is(err, blueprinterr.ErrCalendarConfigInvalid) {
			t.Fatalf("config %+v: err = %v, want ErrCalendarConfigInvalid", cfg, err)
		}
	}
}

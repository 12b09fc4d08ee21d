package capsule

import (
	"strconv"
	"strings"
	"time"
)

const (
	DateLayout    = "2006-01-02"
	displayLayout = "Jan 2, 2006"
	invalidDate   = "Invalid date"

	secondsPerDay = 24 * 60 * 60
)

// Layouts tried for unlock strings that carry a time of day.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05-07",
	"2006-01-02 15:04:05.999999-07",
	"2006-01-02 15:04:05",
}

// Today returns now truncated to the calendar day in now's location.
func Today(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, now.Location())
}

// ParseUnlockDate returns midnight of the calendar day written in s, in loc.
//
// A plain YYYY-MM-DD is read component by component. A string with a time
// part keeps the day as written and drops the time and any offset, so a
// date never shifts by one when the server and the writer disagree on zone.
func ParseUnlockDate(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.Local
	}

	if len(s) == len(DateLayout) {
		return parseDateOnly(s, loc)
	}

	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		y, m, d := t.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, loc), true
	}
	return time.Time{}, false
}

func parseDateOnly(s string, loc *time.Location) (time.Time, bool) {
	parts := strings.Split(s, "-")
	if len(parts) != 3 || len(parts[0]) != 4 || len(parts[1]) != 2 || len(parts[2]) != 2 {
		return time.Time{}, false
	}
	y, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	d, err3 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil {
		return time.Time{}, false
	}
	if m < 1 || m > 12 || d < 1 || d > daysIn(time.Month(m), y) {
		return time.Time{}, false
	}
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, loc), true
}

func daysIn(m time.Month, year int) int {
	return time.Date(year, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// daysBetween counts calendar days from a to b, ignoring DST length changes.
// Unix seconds are used because a Duration cannot span more than ~292 years.
func daysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	ua := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	ub := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int((ub.Unix() - ua.Unix()) / secondsPerDay)
}

// FormatDisplayDate renders a day the way capsule lists show it.
func FormatDisplayDate(t time.Time) string {
	if t.IsZero() {
		return invalidDate
	}
	return t.Format(displayLayout)
}

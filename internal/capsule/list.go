package capsule

import (
	"errors"
	"slices"
	"strings"
	"time"
)

// View is the display form of a capsule. It is derived on every read and
// never written back.
type View struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Icon            string `json:"icon"`
	Color           string `json:"color"`
	UnlockAt        string `json:"unlock_at"`
	UnlockAtDisplay string `json:"unlock_at_display"`
	CreatedAt       string `json:"created_at"`
	Unlocked        bool   `json:"unlocked"`
	DaysLeftCount   int    `json:"days_left_count"`
	ImageCount      int    `json:"image_count"`
	VideoCount      int    `json:"video_count"`
	MessageCount    int    `json:"message_count"`

	unlockDay time.Time
	validDate bool
}

// Classify derives the view of one capsule relative to today. Only the
// calendar day of today is used.
func Classify(raw RawCapsule, today time.Time) View {
	today = Today(today)

	v := View{
		ID:              raw.ID,
		Name:            raw.Name,
		Icon:            raw.Icon,
		Color:           raw.Color,
		UnlockAt:        raw.UnlockAt,
		UnlockAtDisplay: invalidDate,
		CreatedAt:       invalidDate,
		ImageCount:      raw.ImageCount,
		VideoCount:      raw.VideoCount,
		MessageCount:    raw.MessageCount,
	}
	if !raw.CreatedAt.IsZero() {
		v.CreatedAt = FormatDisplayDate(raw.CreatedAt.In(today.Location()))
	}

	day, ok := ParseUnlockDate(raw.UnlockAt, today.Location())
	if !ok {
		return v
	}
	v.unlockDay = day
	v.validDate = true
	v.UnlockAtDisplay = FormatDisplayDate(day)
	v.Unlocked = !day.After(today)
	if !v.Unlocked {
		v.DaysLeftCount = daysBetween(today, day)
	}
	return v
}

// SortAndClassify classifies every capsule and orders them: still locked
// first by soonest unlock, then unlocked by most recent unlock, then
// unparsable dates. Equal dates keep their input order.
func SortAndClassify(raws []RawCapsule, today time.Time) []View {
	out := make([]View, 0, len(raws))
	for _, r := range raws {
		out = append(out, Classify(r, today))
	}
	slices.SortStableFunc(out, compareViews)
	return out
}

func compareViews(a, b View) int {
	ga, gb := sortGroup(a), sortGroup(b)
	if ga != gb {
		return ga - gb
	}
	switch ga {
	case 0:
		return a.unlockDay.Compare(b.unlockDay)
	case 1:
		return b.unlockDay.Compare(a.unlockDay)
	}
	return 0
}

func sortGroup(v View) int {
	switch {
	case !v.validDate:
		return 2
	case !v.Unlocked:
		return 0
	default:
		return 1
	}
}

type StatusFilter int

const (
	StatusAll StatusFilter = iota
	StatusLocked
	StatusUnlocked
)

var ErrInvalidStatus = errors.New("invalid status filter")

func ParseStatusFilter(s string) (StatusFilter, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return StatusAll, nil
	case "locked":
		return StatusLocked, nil
	case "unlocked":
		return StatusUnlocked, nil
	}
	return StatusAll, ErrInvalidStatus
}

func (f StatusFilter) String() string {
	switch f {
	case StatusLocked:
		return "Locked"
	case StatusUnlocked:
		return "Unlocked"
	default:
		return "All"
	}
}

// Filter keeps the views matching status and a case-insensitive name
// substring. The input slice is left untouched and order is preserved.
func Filter(views []View, status StatusFilter, query string) []View {
	q := strings.ToLower(strings.TrimSpace(query))

	out := make([]View, 0, len(views))
	for _, v := range views {
		switch status {
		case StatusLocked:
			if v.Unlocked {
				continue
			}
		case StatusUnlocked:
			if !v.Unlocked {
				continue
			}
		}
		if q != "" && !strings.Contains(strings.ToLower(v.Name), q) {
			continue
		}
		out = append(out, v)
	}
	return out
}

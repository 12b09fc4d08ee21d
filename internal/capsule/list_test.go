package capsule

import (
	"testing"
	"time"
)

var refDay = time.Date(2025, 1, 1, 15, 30, 0, 0, time.UTC)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		unlockAt string
		unlocked bool
		daysLeft int
		display  string
	}{
		{"future date only", "2025-12-25", false, 358, "Dec 25, 2025"},
		{"tomorrow", "2025-01-02", false, 1, "Jan 2, 2025"},
		{"today", "2025-01-01", true, 0, "Jan 1, 2025"},
		{"past", "2024-08-20", true, 0, "Aug 20, 2024"},
		{"far future", "2500-01-01", false, 173490, "Jan 1, 2500"},
		{"far future leap day", "2400-02-29", false, 137024, "Feb 29, 2400"},
		{"timestamp keeps written day", "2025-01-02T23:30:00-05:00", false, 1, "Jan 2, 2025"},
		{"timestamp late today", "2025-01-01T23:59:59Z", true, 0, "Jan 1, 2025"},
		{"postgres timestamptz", "2025-03-01 00:00:00+00", false, 59, "Mar 1, 2025"},
		{"empty", "", false, 0, "Invalid date"},
		{"garbage", "someday", false, 0, "Invalid date"},
		{"impossible day", "2025-02-30", false, 0, "Invalid date"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Classify(RawCapsule{ID: "1", Name: "c", UnlockAt: tt.unlockAt}, refDay)
			if v.Unlocked != tt.unlocked {
				t.Fatalf("Unlocked = %v, want %v", v.Unlocked, tt.unlocked)
			}
			if v.DaysLeftCount != tt.daysLeft {
				t.Fatalf("DaysLeftCount = %d, want %d", v.DaysLeftCount, tt.daysLeft)
			}
			if v.UnlockAtDisplay != tt.display {
				t.Fatalf("UnlockAtDisplay = %q, want %q", v.UnlockAtDisplay, tt.display)
			}
			if v.Unlocked && v.DaysLeftCount != 0 {
				t.Fatalf("unlocked capsule has %d days left", v.DaysLeftCount)
			}
		})
	}
}

func TestClassifyCopiesCounts(t *testing.T) {
	created := time.Date(2024, 8, 10, 12, 0, 0, 0, time.UTC)
	v := Classify(RawCapsule{
		ID: "x", Name: "Trip", Icon: "🎉", Color: "#fff",
		UnlockAt: "2024-08-20", CreatedAt: created,
		ImageCount: 2, VideoCount: 1, MessageCount: 3,
	}, refDay)

	if v.ImageCount != 2 || v.VideoCount != 1 || v.MessageCount != 3 {
		t.Fatalf("counts = %d/%d/%d", v.ImageCount, v.VideoCount, v.MessageCount)
	}
	if v.CreatedAt != "Aug 10, 2024" {
		t.Fatalf("CreatedAt = %q", v.CreatedAt)
	}
	if v.UnlockAt != "2024-08-20" {
		t.Fatalf("UnlockAt = %q", v.UnlockAt)
	}
}

func TestClassifyAcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tz data unavailable: %v", err)
	}
	today := time.Date(2025, 3, 8, 10, 0, 0, 0, loc)
	v := Classify(RawCapsule{UnlockAt: "2025-03-10"}, today)
	if v.DaysLeftCount != 2 {
		t.Fatalf("DaysLeftCount = %d, want 2", v.DaysLeftCount)
	}
}

func ids(views []View) []string {
	out := make([]string, 0, len(views))
	for _, v := range views {
		out = append(out, v.ID)
	}
	return out
}

func equalIDs(t *testing.T, got []View, want ...string) {
	t.Helper()
	g := ids(got)
	if len(g) != len(want) {
		t.Fatalf("ids = %v, want %v", g, want)
	}
	for i := range want {
		if g[i] != want[i] {
			t.Fatalf("ids = %v, want %v", g, want)
		}
	}
}

func TestSortAndClassifyOrder(t *testing.T) {
	raws := []RawCapsule{
		{ID: "past-old", UnlockAt: "2024-01-01"},
		{ID: "bad", UnlockAt: "nope"},
		{ID: "future-far", UnlockAt: "2026-06-01"},
		{ID: "today", UnlockAt: "2025-01-01"},
		{ID: "future-soon", UnlockAt: "2025-02-01"},
		{ID: "past-recent", UnlockAt: "2024-12-31"},
	}

	got := SortAndClassify(raws, refDay)
	equalIDs(t, got, "future-soon", "future-far", "today", "past-recent", "past-old", "bad")

	seenUnlocked := false
	for _, v := range got {
		if v.Unlocked {
			seenUnlocked = true
		} else if seenUnlocked && v.UnlockAtDisplay != invalidDate {
			t.Fatalf("locked capsule %s after an unlocked one", v.ID)
		}
	}
}

func TestSortAndClassifyIsStable(t *testing.T) {
	raws := []RawCapsule{
		{ID: "a", UnlockAt: "2025-05-05"},
		{ID: "b", UnlockAt: "2025-05-05"},
		{ID: "c", UnlockAt: "2024-05-05"},
		{ID: "d", UnlockAt: "2024-05-05"},
		{ID: "e", UnlockAt: "2025-05-05"},
	}
	got := SortAndClassify(raws, refDay)
	equalIDs(t, got, "a", "b", "e", "c", "d")
}

func TestSortAndClassifyDoesNotTouchInput(t *testing.T) {
	raws := []RawCapsule{{ID: "p", UnlockAt: "2024-01-01"}, {ID: "f", UnlockAt: "2026-01-01"}}
	_ = SortAndClassify(raws, refDay)
	if raws[0].ID != "p" || raws[1].ID != "f" {
		t.Fatalf("input reordered: %v", raws)
	}
}

func sampleViews() []View {
	return SortAndClassify([]RawCapsule{
		{ID: "1", Name: "Capsule 1", UnlockAt: "2026-01-01"},
		{ID: "2", Name: "capsule 10", UnlockAt: "2024-01-01"},
		{ID: "3", Name: "Summer", UnlockAt: "2025-06-01"},
		{ID: "4", Name: "Winter", UnlockAt: "2024-12-01"},
	}, refDay)
}

func TestFilter(t *testing.T) {
	views := sampleViews()

	tests := []struct {
		name   string
		status StatusFilter
		query  string
		want   []string
	}{
		{"all identity", StatusAll, "", ids(views)},
		{"locked", StatusLocked, "", []string{"3", "1"}},
		{"unlocked", StatusUnlocked, "", []string{"4", "2"}},
		{"search case insensitive", StatusAll, "CAPSULE 1", []string{"1", "2"}},
		{"search trims", StatusAll, "  summer ", []string{"3"}},
		{"status then search", StatusUnlocked, "capsule", []string{"2"}},
		{"no match", StatusAll, "NonExistent", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			equalIDs(t, Filter(views, tt.status, tt.query), tt.want...)
		})
	}
}

func TestFilterEmptyAndImmutable(t *testing.T) {
	if got := Filter(nil, StatusLocked, "x"); len(got) != 0 {
		t.Fatalf("Filter(nil) = %v", got)
	}

	views := sampleViews()
	before := ids(views)
	_ = Filter(views, StatusLocked, "summer")
	after := ids(views)
	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("input changed: %v -> %v", before, after)
		}
	}
}

func TestParseStatusFilter(t *testing.T) {
	for in, want := range map[string]StatusFilter{
		"":         StatusAll,
		"All":      StatusAll,
		"locked":   StatusLocked,
		"UNLOCKED": StatusUnlocked,
	} {
		got, err := ParseStatusFilter(in)
		if err != nil || got != want {
			t.Fatalf("ParseStatusFilter(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseStatusFilter("open"); err != ErrInvalidStatus {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

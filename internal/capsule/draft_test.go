package capsule

import (
	"errors"
	"testing"
	"time"
)

func TestDraftMessages(t *testing.T) {
	d := NewDraft()
	first := d.AddMessage("  hello ")
	blank := d.AddMessage("   ")
	third := d.AddMessage("bye")

	if !d.UpdateMessage(third, "see you") {
		t.Fatal("UpdateMessage returned false")
	}
	if d.UpdateMessage("missing", "x") {
		t.Fatal("UpdateMessage on unknown id returned true")
	}

	got := d.Messages()
	if len(got) != 2 || got[0] != "hello" || got[1] != "see you" {
		t.Fatalf("Messages() = %q", got)
	}

	if !d.RemoveMessage(first) || !d.RemoveMessage(blank) {
		t.Fatal("RemoveMessage returned false")
	}
	if n := len(d.DraftMessages()); n != 1 {
		t.Fatalf("len(DraftMessages) = %d", n)
	}
}

func TestDraftDefaults(t *testing.T) {
	d := NewDraft()
	if d.Icon != SuggestedIcons[0] || d.Color != SuggestedColors[0] {
		t.Fatalf("defaults = %q %q", d.Icon, d.Color)
	}
}

func TestDraftValidate(t *testing.T) {
	valid := func() *Draft {
		d := NewDraft()
		d.Name = "Trip"
		d.UnlockDate = time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
		return d
	}

	tests := []struct {
		name  string
		edit  func(*Draft)
		field string
	}{
		{"ok", func(*Draft) {}, ""},
		{"blank name", func(d *Draft) { d.Name = "  " }, "name"},
		{"no icon", func(d *Draft) { d.Icon = "" }, "icon"},
		{"bad color", func(d *Draft) { d.Color = "red" }, "color"},
		{"short color", func(d *Draft) { d.Color = "#fff" }, ""},
		{"no date", func(d *Draft) { d.UnlockDate = time.Time{} }, "unlock_at"},
		{"nil media", func(d *Draft) { d.AddMedia(nil) }, "media"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := valid()
			tt.edit(d)
			err := d.Validate()
			if tt.field == "" {
				if err != nil {
					t.Fatalf("Validate() = %v", err)
				}
				return
			}
			var ve *ValidationError
			if !errors.As(err, &ve) || ve.Field != tt.field {
				t.Fatalf("Validate() = %v, want field %s", err, tt.field)
			}
		})
	}
}

func TestDraftRemoveMedia(t *testing.T) {
	d := NewDraft()
	id := d.AddMedia(nil)
	if !d.RemoveMedia(id) || len(d.Media()) != 0 {
		t.Fatal("RemoveMedia did not remove item")
	}
}

func TestClassifyMedia(t *testing.T) {
	for ct, want := range map[string]MediaType{
		"video/mp4":       MediaVideo,
		"VIDEO/quicktime": MediaVideo,
		"image/jpeg":      MediaImage,
		"":                MediaImage,
	} {
		if got := ClassifyMedia(ct); got != want {
			t.Fatalf("ClassifyMedia(%q) = %s, want %s", ct, got, want)
		}
	}
}

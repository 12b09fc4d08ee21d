package capsule

import (
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

var SuggestedIcons = []string{"🎉", "💌", "🎁", "🎂", "🎈", "🎸", "☀️", "🌈", "🌊", "🌸"}

var SuggestedColors = []string{"#FFE182", "#EBBABF", "#345CA1", "#88C59F", "#AC2436"}

var hexColorRe = regexp.MustCompile(`^#([0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// MediaSource is a file picked for a capsule. Open may be called once per
// upload attempt.
type MediaSource interface {
	FileName() string
	ContentType() string
	Size() int64
	Open() (io.ReadCloser, error)
}

type DraftMessage struct {
	TempID string
	Text   string
}

type DraftMedia struct {
	TempID string
	Source MediaSource
}

// Draft is an unsaved capsule being composed. It only reaches the store
// through Service.CreateCapsule.
type Draft struct {
	Name       string
	Icon       string
	Color      string
	UnlockDate time.Time

	messages []DraftMessage
	media    []DraftMedia
}

func NewDraft() *Draft {
	return &Draft{
		Icon:  SuggestedIcons[0],
		Color: SuggestedColors[0],
	}
}

func (d *Draft) AddMessage(text string) string {
	id := uuid.NewString()
	d.messages = append(d.messages, DraftMessage{TempID: id, Text: text})
	return id
}

func (d *Draft) UpdateMessage(tempID, text string) bool {
	for i := range d.messages {
		if d.messages[i].TempID == tempID {
			d.messages[i].Text = text
			return true
		}
	}
	return false
}

func (d *Draft) RemoveMessage(tempID string) bool {
	for i, m := range d.messages {
		if m.TempID == tempID {
			d.messages = append(d.messages[:i], d.messages[i+1:]...)
			return true
		}
	}
	return false
}

func (d *Draft) AddMedia(src MediaSource) string {
	id := uuid.NewString()
	d.media = append(d.media, DraftMedia{TempID: id, Source: src})
	return id
}

func (d *Draft) RemoveMedia(tempID string) bool {
	for i, m := range d.media {
		if m.TempID == tempID {
			d.media = append(d.media[:i], d.media[i+1:]...)
			return true
		}
	}
	return false
}

func (d *Draft) DraftMessages() []DraftMessage { return append([]DraftMessage(nil), d.messages...) }

func (d *Draft) Media() []DraftMedia { return append([]DraftMedia(nil), d.media...) }

// Messages returns the trimmed texts that will be saved. Blank ones are dropped.
func (d *Draft) Messages() []string {
	var out []string
	for _, m := range d.messages {
		if t := strings.TrimSpace(m.Text); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// Validate checks the draft before any backend call.
func (d *Draft) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return &ValidationError{Field: "name", Message: "Please enter a name for your capsule"}
	}
	if strings.TrimSpace(d.Icon) == "" {
		return &ValidationError{Field: "icon", Message: "Please choose an icon"}
	}
	if !hexColorRe.MatchString(d.Color) {
		return &ValidationError{Field: "color", Message: "Please choose a valid color"}
	}
	if d.UnlockDate.IsZero() {
		return &ValidationError{Field: "unlock_at", Message: "Please choose an unlock date"}
	}
	for _, m := range d.media {
		if m.Source == nil {
			return &ValidationError{Field: "media", Message: "Media item has no file"}
		}
	}
	return nil
}

func (d *Draft) unlockDateString() string {
	return d.UnlockDate.Format(DateLayout)
}

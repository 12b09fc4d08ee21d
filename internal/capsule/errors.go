package capsule

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("capsule not found")
	ErrLocked   = errors.New("capsule is still locked")
)

// ValidationError is raised before any write is attempted.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

type Step string

const (
	StepInsertCapsule  Step = "insert_capsule"
	StepInsertMessages Step = "insert_messages"
	StepReadMedia      Step = "read_media"
	StepUploadMedia    Step = "upload_media"
	StepInsertMedia    Step = "insert_media"
)

var stepMessages = map[Step]string{
	StepInsertCapsule:  "Failed to create capsule",
	StepInsertMessages: "Failed to save capsule messages",
	StepReadMedia:      "Failed to read a media file",
	StepUploadMedia:    "Failed to upload media",
	StepInsertMedia:    "Failed to save media details",
}

// CreateError reports the step at which capsule creation stopped. Writes
// made before that step have been rolled back.
type CreateError struct {
	Step Step
	Err  error
}

func (e *CreateError) Error() string {
	return fmt.Sprintf("create capsule: %s: %v", e.Step, e.Err)
}

func (e *CreateError) Unwrap() error { return e.Err }

// UserMessage is the single line shown to the user.
func (e *CreateError) UserMessage() string {
	if m, ok := stepMessages[e.Step]; ok {
		return m
	}
	return "Failed to create capsule"
}

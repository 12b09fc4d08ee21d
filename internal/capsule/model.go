package capsule

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
)

// Capsule is owned by exactly one user. Messages and media cascade on delete.
type Capsule struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey"`
	UserID    uint64         `gorm:"index;not null"`
	Name      string         `gorm:"type:text;not null"`
	Icon      string         `gorm:"type:text;not null"`
	Color     string         `gorm:"type:text;not null"`
	UnlockAt  datatypes.Date `gorm:"not null"`
	CreatedAt time.Time      `gorm:"not null;default:now()"`

	Messages []Message    `gorm:"foreignKey:CapsuleID;constraint:OnDelete:CASCADE"`
	Media    []MediaAsset `gorm:"foreignKey:CapsuleID;constraint:OnDelete:CASCADE"`
}

type Message struct {
	ID        uint64    `gorm:"primaryKey"`
	CapsuleID uuid.UUID `gorm:"type:uuid;index;not null"`
	Body      string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null;default:now()"`
}

func (Message) TableName() string { return "capsule_messages" }

type MediaAsset struct {
	ID          uint64    `gorm:"primaryKey"`
	CapsuleID   uuid.UUID `gorm:"type:uuid;index;not null"`
	Type        MediaType `gorm:"type:text;not null"`
	Path        string    `gorm:"type:text;uniqueIndex;not null"`
	ContentType string    `gorm:"type:text;not null;default:''"`
	SizeBytes   int64     `gorm:"not null;default:0"`
	CreatedAt   time.Time `gorm:"not null;default:now()"`
}

func (MediaAsset) TableName() string { return "capsule_media" }

// NewCapsule is what the creation transaction writes in its first step.
type NewCapsule struct {
	UserID   uint64
	Name     string
	Icon     string
	Color    string
	UnlockAt string // YYYY-MM-DD
}

// NewMedia is one metadata row written after a successful upload.
type NewMedia struct {
	CapsuleID   uuid.UUID
	Type        MediaType
	Path        string
	ContentType string
	SizeBytes   int64
}

// RawCapsule is a capsule row joined with its media and message counts.
// UnlockAt is kept as the text the store returned; the list engine parses it.
type RawCapsule struct {
	ID           string
	UserID       uint64
	Name         string
	Icon         string
	Color        string
	UnlockAt     string
	CreatedAt    time.Time
	ImageCount   int
	VideoCount   int
	MessageCount int
}

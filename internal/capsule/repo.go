package capsule

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Repo is the postgres Store.
type Repo struct {
	DB *gorm.DB
}

func (r *Repo) InsertCapsule(ctx context.Context, in NewCapsule) (uuid.UUID, error) {
	day, err := time.Parse(DateLayout, in.UnlockAt)
	if err != nil {
		return uuid.Nil, err
	}
	c := Capsule{
		ID:       uuid.New(),
		UserID:   in.UserID,
		Name:     in.Name,
		Icon:     in.Icon,
		Color:    in.Color,
		UnlockAt: datatypes.Date(day),
	}
	if err := r.DB.WithContext(ctx).Omit("Messages", "Media").Create(&c).Error; err != nil {
		return uuid.Nil, err
	}
	return c.ID, nil
}

// InsertMessages writes all bodies in one statement.
func (r *Repo) InsertMessages(ctx context.Context, capsuleID uuid.UUID, bodies []string) error {
	if len(bodies) == 0 {
		return nil
	}
	rows := make([]Message, 0, len(bodies))
	for _, b := range bodies {
		rows = append(rows, Message{CapsuleID: capsuleID, Body: b})
	}
	return r.DB.WithContext(ctx).Create(&rows).Error
}

func (r *Repo) InsertMediaMetadata(ctx context.Context, m NewMedia) error {
	row := MediaAsset{
		CapsuleID:   m.CapsuleID,
		Type:        m.Type,
		Path:        m.Path,
		ContentType: m.ContentType,
		SizeBytes:   m.SizeBytes,
	}
	return r.DB.WithContext(ctx).Create(&row).Error
}

func (r *Repo) DeleteCapsule(ctx context.Context, id uuid.UUID) error {
	return r.DB.WithContext(ctx).Where("id = ?", id).Delete(&Capsule{}).Error
}

func (r *Repo) DeleteMessagesByCapsule(ctx context.Context, id uuid.UUID) error {
	return r.DB.WithContext(ctx).Where("capsule_id = ?", id).Delete(&Message{}).Error
}

func (r *Repo) DeleteMediaByCapsule(ctx context.Context, id uuid.UUID) error {
	return r.DB.WithContext(ctx).Where("capsule_id = ?", id).Delete(&MediaAsset{}).Error
}

// PurgeCapsule removes a capsule and everything under it in one transaction.
// A missing capsule is not an error.
func (r *Repo) PurgeCapsule(ctx context.Context, id uuid.UUID) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("capsule_id = ?", id).Delete(&MediaAsset{}).Error; err != nil {
			return err
		}
		if err := tx.Where("capsule_id = ?", id).Delete(&Message{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&Capsule{}).Error
	})
}

type capsuleRow struct {
	ID           uuid.UUID      `gorm:"column:id"`
	UserID       uint64         `gorm:"column:user_id"`
	Name         string         `gorm:"column:name"`
	Icon         string         `gorm:"column:icon"`
	Color        string         `gorm:"column:color"`
	UnlockAt     string         `gorm:"column:unlock_at"`
	CreatedAt    time.Time      `gorm:"column:created_at"`
	MediaTypes   pq.StringArray `gorm:"column:media_types;type:text[]"`
	MessageCount int            `gorm:"column:message_count"`
}

func (c capsuleRow) raw() RawCapsule {
	out := RawCapsule{
		ID:           c.ID.String(),
		UserID:       c.UserID,
		Name:         c.Name,
		Icon:         c.Icon,
		Color:        c.Color,
		UnlockAt:     c.UnlockAt,
		CreatedAt:    c.CreatedAt,
		MessageCount: c.MessageCount,
	}
	for _, t := range c.MediaTypes {
		switch MediaType(t) {
		case MediaVideo:
			out.VideoCount++
		default:
			out.ImageCount++
		}
	}
	return out
}

const capsuleListSQL = `
select c.id, c.user_id, c.name, c.icon, c.color,
       c.unlock_at::text as unlock_at,
       c.created_at,
       coalesce(array_agg(m.type order by m.id) filter (where m.id is not null), '{}') as media_types,
       (select count(*) from capsule_messages cm where cm.capsule_id = c.id) as message_count
from capsules c
left join capsule_media m on m.capsule_id = c.id
where c.user_id = ?
`

// QueryCapsulesForUser returns the user's capsules with counts, oldest unlock first.
func (r *Repo) QueryCapsulesForUser(ctx context.Context, userID uint64) ([]RawCapsule, error) {
	var rows []capsuleRow
	err := r.DB.WithContext(ctx).Raw(capsuleListSQL+`
group by c.id
order by c.unlock_at asc, c.created_at asc
`, userID).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]RawCapsule, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.raw())
	}
	return out, nil
}

func (r *Repo) GetCapsuleForUser(ctx context.Context, userID uint64, id uuid.UUID) (RawCapsule, error) {
	var rows []capsuleRow
	err := r.DB.WithContext(ctx).Raw(capsuleListSQL+`
  and c.id = ?
group by c.id
`, userID, id).Scan(&rows).Error
	if err != nil {
		return RawCapsule{}, err
	}
	if len(rows) == 0 {
		return RawCapsule{}, ErrNotFound
	}
	return rows[0].raw(), nil
}

func (r *Repo) ListMessages(ctx context.Context, capsuleID uuid.UUID) ([]Message, error) {
	var out []Message
	err := r.DB.WithContext(ctx).Where("capsule_id = ?", capsuleID).Order("id asc").Find(&out).Error
	return out, err
}

func (r *Repo) ListMedia(ctx context.Context, capsuleID uuid.UUID) ([]MediaAsset, error) {
	var out []MediaAsset
	err := r.DB.WithContext(ctx).Where("capsule_id = ?", capsuleID).Order("id asc").Find(&out).Error
	return out, err
}

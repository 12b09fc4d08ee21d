package db

import (
	"fmt"

	"timetravel/internal/auth"
	"timetravel/internal/capsule"
	"timetravel/internal/jobs"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func Connect(dsn string) (*gorm.DB, error) {
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		// unique violations surface as gorm.ErrDuplicatedKey
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}
	return gdb, nil
}

func AutoMigrateAndIndexes(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(
		&auth.User{},
		&auth.Profile{},
		&auth.RefreshToken{},
		&capsule.Capsule{},
		&capsule.Message{},
		&capsule.MediaAsset{},
		&jobs.Job{},
	); err != nil {
		return err
	}

	stmts := []string{
		`create index if not exists idx_capsules_user_unlock on capsules(user_id, unlock_at);`,
		`create index if not exists idx_capsule_messages_capsule on capsule_messages(capsule_id, id);`,
		`create index if not exists idx_capsule_media_capsule on capsule_media(capsule_id, id);`,
		`create index if not exists idx_refresh_tokens_revoked on refresh_tokens(revoked_at) where revoked_at is not null;`,
		`create index if not exists idx_jobs_due on jobs(status, run_at);`,
		`create index if not exists idx_jobs_lock on jobs(status, locked_at);`,
	}
	for _, s := range stmts {
		if err := gdb.Exec(s).Error; err != nil {
			return fmt.Errorf("index exec failed: %w (sql=%s)", err, s)
		}
	}

	return nil
}

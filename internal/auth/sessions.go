package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"gorm.io/gorm"
)

var ErrInvalidRefresh = errors.New("invalid refresh token")

type Tokens struct {
	AccessToken  string `json:"token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Sessions issues access tokens paired with rotating refresh tokens.
type Sessions struct {
	DB         *gorm.DB
	JWT        *JWT
	RefreshTTL time.Duration
}

func newRefreshToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func hashToken(tok string) string {
	sum := sha256.Sum256([]byte(tok))
	return hex.EncodeToString(sum[:])
}

func (s *Sessions) Issue(ctx context.Context, userID uint64) (Tokens, error) {
	return s.IssueTx(s.DB.WithContext(ctx), userID)
}

// IssueTx writes the refresh session through tx, e.g. inside a sign-up
// transaction.
func (s *Sessions) IssueTx(tx *gorm.DB, userID uint64) (Tokens, error) {
	access, err := s.JWT.Sign(userID)
	if err != nil {
		return Tokens{}, err
	}
	raw, err := newRefreshToken()
	if err != nil {
		return Tokens{}, err
	}
	rt := RefreshToken{
		UserID:    userID,
		TokenHash: hashToken(raw),
		ExpiresAt: time.Now().Add(s.RefreshTTL),
	}
	if err := tx.Create(&rt).Error; err != nil {
		return Tokens{}, err
	}
	return Tokens{
		AccessToken:  access,
		RefreshToken: raw,
		ExpiresIn:    int64(s.JWT.TTL().Seconds()),
	}, nil
}

// Refresh revokes the presented token and issues a new pair.
func (s *Sessions) Refresh(ctx context.Context, raw string) (Tokens, error) {
	var out Tokens
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		res := tx.Model(&RefreshToken{}).
			Where("token_hash = ? AND revoked_at IS NULL AND expires_at > ?", hashToken(raw), now).
			Update("revoked_at", now)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrInvalidRefresh
		}

		var rt RefreshToken
		if err := tx.Where("token_hash = ?", hashToken(raw)).First(&rt).Error; err != nil {
			return err
		}
		t, err := s.IssueTx(tx, rt.UserID)
		if err != nil {
			return err
		}
		out = t
		return nil
	})
	return out, err
}

func (s *Sessions) Revoke(ctx context.Context, raw string) error {
	return s.DB.WithContext(ctx).Model(&RefreshToken{}).
		Where("token_hash = ? AND revoked_at IS NULL", hashToken(raw)).
		Update("revoked_at", time.Now()).Error
}

// RevokeAll ends every session of a user, e.g. after a password change.
func (s *Sessions) RevokeAll(ctx context.Context, userID uint64) error {
	return s.DB.WithContext(ctx).Model(&RefreshToken{}).
		Where("user_id = ? AND revoked_at IS NULL", userID).
		Update("revoked_at", time.Now()).Error
}

// SweepExpired deletes refresh tokens that can no longer be used.
func (s *Sessions) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	res := s.DB.WithContext(ctx).
		Where("expires_at < ? OR revoked_at < ?", now, now.Add(-24*time.Hour)).
		Delete(&RefreshToken{})
	return res.RowsAffected, res.Error
}

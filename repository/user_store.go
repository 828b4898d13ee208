package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"funnelcrm/models"
)

// UserStore holds the account lookups and writes behind sign-in and
// session revocation.
type UserStore struct {
	db *gorm.DB
}

func NewUserStore(db *gorm.DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) UserByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, notFound(err, "user %d", id)
	}
	return &user, nil
}

// UserByEmail matches the address case-insensitively.
func (s *UserStore) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("LOWER(email) = ?", strings.ToLower(email)).First(&user).Error
	if err != nil {
		return nil, notFound(err, "user %s", email)
	}
	return &user, nil
}

// UserByGoogle finds the account linked to googleID, or else the one with
// the Google address.
func (s *UserStore) UserByGoogle(ctx context.Context, googleID, email string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("google_id = ?", googleID).
		Or("LOWER(email) = ?", strings.ToLower(email)).
		First(&user).Error
	if err != nil {
		return nil, notFound(err, "google user %s", email)
	}
	return &user, nil
}

func (s *UserStore) LinkGoogle(ctx context.Context, id uint, googleID string) error {
	return s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).
		UpdateColumn("google_id", googleID).Error
}

func (s *UserStore) RecordLogin(ctx context.Context, id uint, at time.Time) error {
	return s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).
		UpdateColumn("last_login_at", at).Error
}

// BumpTokenVersion invalidates every token issued to the user so far.
func (s *UserStore) BumpTokenVersion(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).
		UpdateColumn("token_version", gorm.Expr("token_version + 1")).Error
}

// SetPassword stores the new hash together with the new token version.
func (s *UserStore) SetPassword(ctx context.Context, id uint, hash string, tokenVersion int) error {
	return s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"password_hash": hash,
			"token_version": tokenVersion,
		}).Error
}

func notFound(err error, format string, args ...interface{}) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf(format+": %w", append(args, ErrNotFound)...)
	}
	return err
}

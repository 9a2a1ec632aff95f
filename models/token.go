package models

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/mmdatafocus/recon_backend/config"
)

const (
	TokenSystemRede    = "rede"
	TokenSystemSankhya = "sankhya"
)

// Token holds the cached credential for one upstream system. There is at
// most one row per System; refreshes overwrite in place so the table never
// grows past the number of systems.
type Token struct {
	ID           int        `gorm:"primaryKey;autoIncrement" json:"id"`
	System       string     `gorm:"column:system;size:20;uniqueIndex;not null" json:"system"`
	AccessToken  string     `gorm:"column:access_token;type:text;not null" json:"access_token"`
	RefreshToken string     `gorm:"column:refresh_token;type:text" json:"refresh_token"`
	ExpiresAt    *time.Time `gorm:"column:expires_at" json:"expires_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Token) TableName() string {
	return "tokens"
}

func MigrateTable() error {
	return config.GetDB().AutoMigrate(&Token{})
}

// TokenStore reads and upserts cached tokens keyed by system name.
type TokenStore struct{}

func NewTokenStore() *TokenStore {
	return &TokenStore{}
}

// Get returns the cached token for system, or (nil, nil) when no row exists.
func (s *TokenStore) Get(ctx context.Context, system string) (*Token, error) {
	var token Token
	err := config.GetDB().WithContext(ctx).
		Where("`system` = ?", system).
		First(&token).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &token, nil
}

// Save upserts the token row for token.System. A fresh credential for an
// already-known system updates the existing row instead of inserting.
func (s *TokenStore) Save(ctx context.Context, token *Token) error {
	db := config.GetDB().WithContext(ctx)

	var existing Token
	err := db.Where("`system` = ?", token.System).First(&existing).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return db.Create(token).Error
		}
		return err
	}

	token.ID = existing.ID
	return db.Save(token).Error
}

// Package repo implements the data persistence layer for client-side state,
// backed by GORM. This file provides a key/value store for the session's
// persisted token material.
//
// Writes of several keys happen in one transaction so a reader never sees a
// new access token next to an old user profile. Removal is likewise atomic.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-docqa-web/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience.
var ErrNotFound = gorm.ErrRecordNotFound

// Storage persists client-side key/value pairs in SQLite.
type Storage struct {
	DB *gorm.DB
}

// NewStorage returns a Storage bound to db.
func NewStorage(db *gorm.DB) *Storage { return &Storage{DB: db} }

// Get returns the value stored under key. The boolean is false when the key
// is absent; err is reserved for database failures.
func (s *Storage) Get(ctx context.Context, key string) (string, bool, error) {
	var it domain.StorageItem
	err := s.DB.WithContext(ctx).Where("key = ?", key).First(&it).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return it.Value, true, nil
}

// GetMany returns every present key among keys.
func (s *Storage) GetMany(ctx context.Context, keys ...string) (map[string]string, error) {
	var rows []domain.StorageItem
	if err := s.DB.WithContext(ctx).Where("key IN ?", keys).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.Key] = r.Value
	}
	return out, nil
}

// SetMany upserts all pairs in a single transaction.
func (s *Storage) SetMany(ctx context.Context, items map[string]string) error {
	if len(items) == 0 {
		return nil
	}
	now := time.Now().UTC()
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for k, v := range items {
			row := domain.StorageItem{Key: k, Value: v, UpdatedAt: now}
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "key"}},
				DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
			}).Create(&row).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// Remove deletes the given keys. Missing keys are not an error.
func (s *Storage) Remove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.DB.WithContext(ctx).Where("key IN ?", keys).Delete(&domain.StorageItem{}).Error
}

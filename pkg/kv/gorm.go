package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EntryModel is the GORM row backing one key.
type EntryModel struct {
	Key       string         `gorm:"primaryKey;column:key"`
	Value     datatypes.JSON `gorm:"column:value"`
	UpdatedAt time.Time      `gorm:"column:updated_at"`
}

// TableName pins the table name independent of GORM pluralization rules.
func (EntryModel) TableName() string { return "kv_entries" }

// GormStore persists values in Postgres, one row per key.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migration for the kv table.
func NewGormStore(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(&EntryModel{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// NewGormStoreWithDB wraps an existing GORM handle (used by tests).
func NewGormStoreWithDB(db *gorm.DB) (*GormStore, error) {
	if db == nil {
		return nil, errors.New("gorm db required")
	}
	if err := db.AutoMigrate(&EntryModel{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// Get returns the stored value, or ok=false when the key is absent.
func (s *GormStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var model EntryModel
	if err := s.db.WithContext(ctx).First(&model, "key = ?", key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("kv get %q: %w", key, err)
	}
	return []byte(model.Value), true, nil
}

// Set stores or replaces a value.
func (s *GormStore) Set(ctx context.Context, key string, value []byte) error {
	model := EntryModel{
		Key:       key,
		Value:     datatypes.JSON(value),
		UpdatedAt: time.Now().UTC(),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&model).Error
	if err != nil {
		return fmt.Errorf("kv set %q: %w", key, err)
	}
	return nil
}

// Delete removes a key. Deleting a missing key is not an error.
func (s *GormStore) Delete(ctx context.Context, key string) error {
	if err := s.db.WithContext(ctx).Delete(&EntryModel{}, "key = ?", key).Error; err != nil {
		return fmt.Errorf("kv delete %q: %w", key, err)
	}
	return nil
}

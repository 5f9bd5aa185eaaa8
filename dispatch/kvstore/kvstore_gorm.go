package kvstore

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type KVEntry struct {
	Path      string `gorm:"primaryKey"`
	Value     string
	UpdatedAt time.Time
}

// Stores entries in a single SQL table. Works with any gorm dialect; the daemon uses sqlite or postgres.
type GormKVStore struct {
	DB *gorm.DB
}

var _ KVStore = (*GormKVStore)(nil)

func NewGormKVStore(db *gorm.DB) (*GormKVStore, error) {
	if err := db.AutoMigrate(&KVEntry{}); err != nil {
		return nil, fmt.Errorf("migrating kv table: %w", err)
	}
	return &GormKVStore{DB: db}, nil
}

func (s *GormKVStore) Get(ctx context.Context, path string) (string, error) {
	var entries []KVEntry
	if err := s.DB.WithContext(ctx).Where("path = ?", path).Limit(1).Find(&entries).Error; err != nil {
		return "", unavailable("get", path, err)
	}
	if len(entries) == 0 {
		return "", nil
	}
	return entries[0].Value, nil
}

func (s *GormKVStore) Set(ctx context.Context, path, val string) error {
	entry := KVEntry{
		Path:      path,
		Value:     val,
		UpdatedAt: time.Now().UTC(),
	}
	err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "path"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry).Error
	if err != nil {
		return unavailable("set", path, err)
	}
	return nil
}

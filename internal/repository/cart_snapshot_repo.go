package repository

import (
	"context"
	"errors"

	"go-pos-ws/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CartSnapshotRepository is the durable key-value store behind cart persistence.
type CartSnapshotRepository interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

type cartSnapshotRepo struct {
	db *gorm.DB
}

func NewCartSnapshotRepo(db *gorm.DB) CartSnapshotRepository {
	return &cartSnapshotRepo{db}
}

func (r *cartSnapshotRepo) Get(ctx context.Context, key string) (string, bool, error) {
	var snap model.CartSnapshot
	err := r.db.WithContext(ctx).First(&snap, "session_key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return snap.Value, true, nil
}

// Set replaces the whole value in one statement.
func (r *cartSnapshotRepo) Set(ctx context.Context, key, value string) error {
	snap := model.CartSnapshot{SessionKey: key, Value: value}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&snap).Error
}

func (r *cartSnapshotRepo) Remove(ctx context.Context, key string) error {
	return r.db.WithContext(ctx).Delete(&model.CartSnapshot{}, "session_key = ?", key).Error
}

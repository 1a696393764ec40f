package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/anonrelay/internal/model"
)

type BanRepository interface {
	Exists(ctx context.Context, userID int64) (bool, error)
	Get(ctx context.Context, userID int64) (*model.BanRecord, error)
	// Upsert 最新的 reason / banned_by 生效
	Upsert(ctx context.Context, rec *model.BanRecord) error
	// CreateIfAbsent 已封禁时不覆盖原记录，返回 created=false
	CreateIfAbsent(ctx context.Context, rec *model.BanRecord) (bool, error)
	Delete(ctx context.Context, userID int64) (bool, error)
	DeleteAll(ctx context.Context) (int64, error)
	List(ctx context.Context, limit int) ([]*model.BanRecord, error)
	Count(ctx context.Context) (int64, error)
}

type banRepository struct {
	db *gorm.DB
}

func NewBanRepository(db *gorm.DB) BanRepository { return &banRepository{db: db} }

func (r *banRepository) Exists(ctx context.Context, userID int64) (bool, error) {
	var cnt int64
	if err := r.db.WithContext(ctx).Model(&model.BanRecord{}).Where("user_id = ?", userID).Count(&cnt).Error; err != nil {
		return false, err
	}
	return cnt > 0, nil
}

func (r *banRepository) Get(ctx context.Context, userID int64) (*model.BanRecord, error) {
	var rec model.BanRecord
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrBanNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *banRepository) Upsert(ctx context.Context, rec *model.BanRecord) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"display_name", "banned_by", "reason", "banned_at"}),
	}).Create(rec).Error
}

func (r *banRepository) CreateIfAbsent(ctx context.Context, rec *model.BanRecord) (bool, error) {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(rec)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *banRepository) Delete(ctx context.Context, userID int64) (bool, error) {
	res := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&model.BanRecord{})
	return res.RowsAffected > 0, res.Error
}

func (r *banRepository) DeleteAll(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&model.BanRecord{})
	return res.RowsAffected, res.Error
}

// List 按封禁时间正序
func (r *banRepository) List(ctx context.Context, limit int) ([]*model.BanRecord, error) {
	var res []*model.BanRecord
	err := r.db.WithContext(ctx).Order("banned_at ASC").Order("user_id ASC").Limit(limit).Find(&res).Error
	return res, err
}

func (r *banRepository) Count(ctx context.Context) (int64, error) {
	var cnt int64
	err := r.db.WithContext(ctx).Model(&model.BanRecord{}).Count(&cnt).Error
	return cnt, err
}

package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/anonrelay/internal/model"
)

type UserRepository interface {
	// Upsert 首次接触时创建；已存在时只在 display_name 为空时补全，并刷新 last_activity
	Upsert(ctx context.Context, id int64, name, tier string, now time.Time) error
	// Ensure 仅在不存在时创建（隐式创建收件人），不触碰已有行
	Ensure(ctx context.Context, id int64, tier string, now time.Time) error
	Get(ctx context.Context, id int64) (*model.User, error)
	Exists(ctx context.Context, id int64) (bool, error)
	// AddMessages 增量更新计数并返回新值
	AddMessages(ctx context.Context, id int64, delta int64, now time.Time) (int64, error)
	SetTier(ctx context.Context, id int64, tier string) error
	SetStats(ctx context.Context, id int64, count int64, tier string, now time.Time) error
	Count(ctx context.Context) (int64, error)
	CountActiveSince(ctx context.Context, since time.Time) (int64, error)
}

type userRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository { return &userRepository{db: db} }

func (r *userRepository) Upsert(ctx context.Context, id int64, name, tier string, now time.Time) error {
	if id <= 0 {
		return ErrInvalidUserID
	}
	u := &model.User{ID: id, DisplayName: name, Tier: tier, LastActivity: now, CreatedAt: now}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			// 最早的非空名字生效
			"display_name":  gorm.Expr("CASE WHEN users.display_name = '' THEN excluded.display_name ELSE users.display_name END"),
			"last_activity": now,
		}),
	}).Create(u).Error
}

func (r *userRepository) Ensure(ctx context.Context, id int64, tier string, now time.Time) error {
	if id <= 0 {
		return ErrInvalidUserID
	}
	u := &model.User{ID: id, Tier: tier, LastActivity: now, CreatedAt: now}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(u).Error
}

func (r *userRepository) Get(ctx context.Context, id int64) (*model.User, error) {
	var u model.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepository) Exists(ctx context.Context, id int64) (bool, error) {
	var cnt int64
	if err := r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Count(&cnt).Error; err != nil {
		return false, err
	}
	return cnt > 0, nil
}

func (r *userRepository) AddMessages(ctx context.Context, id int64, delta int64, now time.Time) (int64, error) {
	db := r.db.WithContext(ctx)
	res := db.Model(&model.User{}).Where("id = ?", id).Updates(map[string]interface{}{
		"message_count": gorm.Expr("message_count + ?", delta),
		"last_activity": now,
	})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, ErrUserNotFound
	}
	var count int64
	if err := db.Model(&model.User{}).Select("message_count").Where("id = ?", id).Scan(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *userRepository) SetTier(ctx context.Context, id int64, tier string) error {
	return r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Update("tier", tier).Error
}

func (r *userRepository) SetStats(ctx context.Context, id int64, count int64, tier string, now time.Time) error {
	return r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Updates(map[string]interface{}{
		"message_count": count,
		"tier":          tier,
		"last_activity": now,
	}).Error
}

func (r *userRepository) Count(ctx context.Context) (int64, error) {
	var cnt int64
	err := r.db.WithContext(ctx).Model(&model.User{}).Count(&cnt).Error
	return cnt, err
}

func (r *userRepository) CountActiveSince(ctx context.Context, since time.Time) (int64, error) {
	var cnt int64
	err := r.db.WithContext(ctx).Model(&model.User{}).Where("last_activity > ?", since).Count(&cnt).Error
	return cnt, err
}

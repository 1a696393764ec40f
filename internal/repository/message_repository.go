package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/d60-Lab/anonrelay/internal/model"
)

type MessageRepository interface {
	Create(ctx context.Context, m *model.Message) error
	Get(ctx context.Context, id int64) (*model.Message, error)
	// ListByReceiver 按时间倒序
	ListByReceiver(ctx context.Context, receiverID int64, limit int) ([]*model.Message, error)
	CountByReceiver(ctx context.Context, receiverID int64) (int64, error)
	DeleteByReceiver(ctx context.Context, receiverID int64) (int64, error)
	Count(ctx context.Context) (int64, error)
	CountSince(ctx context.Context, since time.Time) (int64, error)
}

type messageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) MessageRepository { return &messageRepository{db: db} }

func (r *messageRepository) Create(ctx context.Context, m *model.Message) error {
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *messageRepository) Get(ctx context.Context, id int64) (*model.Message, error) {
	var m model.Message
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *messageRepository) ListByReceiver(ctx context.Context, receiverID int64, limit int) ([]*model.Message, error) {
	var res []*model.Message
	err := r.db.WithContext(ctx).
		Where("receiver_id = ?", receiverID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&res).Error
	return res, err
}

func (r *messageRepository) CountByReceiver(ctx context.Context, receiverID int64) (int64, error) {
	var cnt int64
	err := r.db.WithContext(ctx).Model(&model.Message{}).Where("receiver_id = ?", receiverID).Count(&cnt).Error
	return cnt, err
}

func (r *messageRepository) DeleteByReceiver(ctx context.Context, receiverID int64) (int64, error) {
	res := r.db.WithContext(ctx).Where("receiver_id = ?", receiverID).Delete(&model.Message{})
	return res.RowsAffected, res.Error
}

func (r *messageRepository) Count(ctx context.Context) (int64, error) {
	var cnt int64
	err := r.db.WithContext(ctx).Model(&model.Message{}).Count(&cnt).Error
	return cnt, err
}

func (r *messageRepository) CountSince(ctx context.Context, since time.Time) (int64, error) {
	var cnt int64
	err := r.db.WithContext(ctx).Model(&model.Message{}).Where("created_at > ?", since).Count(&cnt).Error
	return cnt, err
}

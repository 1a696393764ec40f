package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/anonrelay/internal/model"
)

type DeliveryRepository interface {
	// Create 幂等：(receiver_id, transport_message_id) 冲突时视为已记录，返回 created=false
	Create(ctx context.Context, d *model.Delivery) (bool, error)
	// Resolve 找不到映射时返回 ok=false
	Resolve(ctx context.Context, receiverID, transportMessageID int64) (int64, bool, error)
	CountByMessage(ctx context.Context, messageID int64) (int64, error)
}

type deliveryRepository struct {
	db *gorm.DB
}

func NewDeliveryRepository(db *gorm.DB) DeliveryRepository { return &deliveryRepository{db: db} }

func (r *deliveryRepository) Create(ctx context.Context, d *model.Delivery) (bool, error) {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "receiver_id"}, {Name: "transport_message_id"}},
		DoNothing: true,
	}).Create(d)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *deliveryRepository) Resolve(ctx context.Context, receiverID, transportMessageID int64) (int64, bool, error) {
	var d model.Delivery
	err := r.db.WithContext(ctx).
		Where("receiver_id = ? AND transport_message_id = ?", receiverID, transportMessageID).
		First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return d.MessageID, true, nil
}

func (r *deliveryRepository) CountByMessage(ctx context.Context, messageID int64) (int64, error) {
	var cnt int64
	err := r.db.WithContext(ctx).Model(&model.Delivery{}).Where("message_id = ?", messageID).Count(&cnt).Error
	return cnt, err
}

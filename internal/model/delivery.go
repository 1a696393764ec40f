package model

import "time"

// Delivery 投递记录：把传输层消息 ID 映射回内部 Message
type Delivery struct {
	ID                 int64 `json:"id" gorm:"primaryKey;autoIncrement"`
	MessageID          int64 `json:"message_id" gorm:"not null;index"`
	ReceiverID         int64 `json:"receiver_id" gorm:"not null;uniqueIndex:ux_delivery_receiver_transport"`
	TransportMessageID int64 `json:"transport_message_id" gorm:"not null;uniqueIndex:ux_delivery_receiver_transport"`
	// 复合唯一键 ux_delivery_receiver_transport = (receiver_id, transport_message_id)
	CreatedAt time.Time `json:"created_at" gorm:"not null"`
}

func (Delivery) TableName() string { return "message_deliveries" }

package model

import "time"

// Message 匿名消息，落库后不可变（只允许按收件人整体删除）
type Message struct {
	ID         int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	ReceiverID int64     `json:"receiver_id" gorm:"not null;index:idx_message_receiver_created"`
	SenderID   *int64    `json:"sender_id,omitempty" gorm:"index"`
	Text       string    `json:"text" gorm:"type:text;not null"`
	CreatedAt  time.Time `json:"created_at" gorm:"not null;index:idx_message_receiver_created"`
}

func (Message) TableName() string { return "messages" }

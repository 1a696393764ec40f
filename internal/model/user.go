package model

import "time"

// User 链接主人或匿名发送者，首次接触时创建，从不删除
type User struct {
	ID           int64     `json:"id" gorm:"primaryKey;autoIncrement:false"`
	DisplayName  string    `json:"display_name" gorm:"type:varchar(255);not null"`
	MessageCount int64     `json:"message_count" gorm:"not null;default:0"`
	Tier         string    `json:"tier" gorm:"type:varchar(64);not null"`
	LastActivity time.Time `json:"last_activity" gorm:"index;not null"`
	CreatedAt    time.Time `json:"created_at" gorm:"not null"`
}

func (User) TableName() string { return "users" }

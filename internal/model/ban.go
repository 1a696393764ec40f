package model

import "time"

// BanRecord 存在即封禁
type BanRecord struct {
	UserID      int64     `json:"user_id" gorm:"primaryKey;autoIncrement:false"`
	DisplayName string    `json:"display_name" gorm:"type:varchar(255)"`
	BannedBy    int64     `json:"banned_by" gorm:"not null"`
	Reason      string    `json:"reason" gorm:"type:text;not null"`
	BannedAt    time.Time `json:"banned_at" gorm:"not null;index"`
}

func (BanRecord) TableName() string { return "banned_users" }

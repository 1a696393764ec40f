package model

import "time"

// ReportStatus 举报状态；pending 之外全部是终态
type ReportStatus string

const (
	ReportPending       ReportStatus = "pending"
	ReportBanned        ReportStatus = "banned"
	ReportDismissed     ReportStatus = "dismissed"
	ReportAlreadyBanned ReportStatus = "already_banned"
)

// ReportStatuses 所有合法状态，按展示顺序
var ReportStatuses = []ReportStatus{ReportPending, ReportBanned, ReportDismissed, ReportAlreadyBanned}

func (s ReportStatus) Valid() bool {
	switch s {
	case ReportPending, ReportBanned, ReportDismissed, ReportAlreadyBanned:
		return true
	}
	return false
}

func (s ReportStatus) Terminal() bool {
	return s.Valid() && s != ReportPending
}

// CanTransition 只允许 pending -> 终态
func (s ReportStatus) CanTransition(to ReportStatus) bool {
	return s == ReportPending && to.Terminal()
}

// Report 针对某条已投递消息发送者的举报
type Report struct {
	ID              int64        `json:"id" gorm:"primaryKey;autoIncrement"`
	MessageID       int64        `json:"message_id" gorm:"not null;index"`
	ReporterID      int64        `json:"reporter_id" gorm:"not null;index"`
	ReportedUserID  *int64       `json:"reported_user_id,omitempty" gorm:"index"`
	ContentSnapshot string       `json:"content_snapshot" gorm:"type:text;not null"`
	Status          ReportStatus `json:"status" gorm:"type:varchar(16);not null;default:pending;index:idx_report_status_created"`
	CreatedAt       time.Time    `json:"created_at" gorm:"not null;index:idx_report_status_created"`
	ReviewedAt      *time.Time   `json:"reviewed_at,omitempty"`
}

func (Report) TableName() string { return "reports" }

package repository

import "errors"

var (
	// ErrEmptyText 校验错误：消息正文为空
	ErrEmptyText       = errors.New("message text is empty")
	ErrInvalidUserID   = errors.New("invalid user id")
	ErrUserNotFound    = errors.New("user not found")
	ErrMessageNotFound = errors.New("message not found")
	ErrReportNotFound  = errors.New("report not found")
	ErrBanNotFound     = errors.New("ban record not found")
)

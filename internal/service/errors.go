package service

import (
	"errors"
	"fmt"

	"github.com/d60-Lab/anonrelay/internal/repository"
)

var (
	// ErrBanned 发送方或接收方被封禁
	ErrBanned         = errors.New("banned")
	ErrSenderBanned   = fmt.Errorf("sender %w", ErrBanned)
	ErrReceiverBanned = fmt.Errorf("receiver %w", ErrBanned)

	// ErrNotEligible 回复的消息不是 bot 投递的，或者消息已不存在
	ErrNotEligible = errors.New("message not eligible for report")
	// ErrSenderUnknown 匿名发送者未知，无法举报
	ErrSenderUnknown = fmt.Errorf("%w: sender unknown", ErrNotEligible)

	ErrDeliveryFailed = errors.New("delivery failed")
	ErrReportNotFound = repository.ErrReportNotFound
	ErrAlreadyBanned  = errors.New("user already banned")
	ErrNotBanned      = errors.New("user not banned")
)

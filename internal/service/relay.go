package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/d60-Lab/anonrelay/internal/messenger"
	"github.com/d60-Lab/anonrelay/internal/repository"
	"github.com/d60-Lab/anonrelay/pkg/logger"
)

var tracer = otel.Tracer("github.com/d60-Lab/anonrelay/internal/service")

const envelopeTimeLayout = "2006/01/02 - 3:04:05 PM"

// FormatEnvelope 投递给收件人的正文：时间戳 + 分隔线包裹的原文
func FormatEnvelope(at time.Time, body string) string {
	return "New anonymous message\n\nTime: " + at.Format(envelopeTimeLayout) + "\n\n----\n\n" + body + "\n\n----"
}

type SendRequest struct {
	ReceiverID int64  `json:"receiver_id" binding:"required,gt=0"`
	SenderID   *int64 `json:"sender_id,omitempty"`
	Text       string `json:"text" binding:"required"`
}

type SendResult struct {
	MessageID          int64 `json:"message_id"`
	TransportMessageID int64 `json:"transport_message_id,omitempty"`
	Delivered          bool  `json:"delivered"`
}

// Relay 匿名消息投递：封禁检查 -> 落库 -> 投递 -> 记录投递映射
type Relay struct {
	reg            *repository.Registry
	messenger      messenger.Messenger
	deliverTimeout time.Duration
}

func NewRelay(reg *repository.Registry, m messenger.Messenger, deliverTimeout time.Duration) *Relay {
	if deliverTimeout <= 0 {
		deliverTimeout = 15 * time.Second
	}
	return &Relay{reg: reg, messenger: m, deliverTimeout: deliverTimeout}
}

// Send 投递失败时仍返回已落库的 MessageID，错误包装 ErrDeliveryFailed
func (r *Relay) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	ctx, span := tracer.Start(ctx, "Relay.Send")
	defer span.End()
	span.SetAttributes(attribute.Int64("receiver_id", req.ReceiverID))

	if req.SenderID != nil {
		banned, err := r.reg.IsBanned(ctx, *req.SenderID)
		if err != nil {
			return nil, err
		}
		if banned {
			relaySends.WithLabelValues("sender_banned").Inc()
			return nil, ErrSenderBanned
		}
	}
	banned, err := r.reg.IsBanned(ctx, req.ReceiverID)
	if err != nil {
		return nil, err
	}
	if banned {
		relaySends.WithLabelValues("receiver_banned").Inc()
		return nil, ErrReceiverBanned
	}

	msg, err := r.reg.RecordMessage(ctx, req.ReceiverID, req.SenderID, req.Text)
	if err != nil {
		if errors.Is(err, repository.ErrEmptyText) || errors.Is(err, repository.ErrInvalidUserID) {
			relaySends.WithLabelValues("invalid").Inc()
		}
		return nil, err
	}
	res := &SendResult{MessageID: msg.ID}
	span.SetAttributes(attribute.Int64("message_id", msg.ID))

	dctx, cancel := context.WithTimeout(ctx, r.deliverTimeout)
	start := time.Now()
	transportID, err := r.messenger.Deliver(dctx, req.ReceiverID, FormatEnvelope(msg.CreatedAt, msg.Text))
	cancel()
	relayDeliverDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		relaySends.WithLabelValues("delivery_failed").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "deliver")
		logger.Warn("relay deliver failed",
			zap.Int64("message_id", msg.ID),
			zap.Int64("receiver_id", req.ReceiverID),
			zap.Error(err),
		)
		return res, fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}

	res.TransportMessageID = transportID
	res.Delivered = true
	if _, err := r.reg.RecordDelivery(ctx, msg.ID, req.ReceiverID, transportID); err != nil {
		// 消息已送达，映射缺失只影响之后的举报
		logger.Error("record delivery failed",
			zap.Int64("message_id", msg.ID),
			zap.Int64("transport_message_id", transportID),
			zap.Error(err),
		)
		return res, err
	}
	relaySends.WithLabelValues("delivered").Inc()
	logger.Debug("relay delivered", zap.Int64("message_id", msg.ID), zap.Int64("transport_message_id", transportID))
	return res, nil
}

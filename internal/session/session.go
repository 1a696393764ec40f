// Package session 保存 "正在给某人写匿名消息" 的会话状态。
// 用户通过 user_<id> 链接 /start 之后，下一条文本消息就发给该收件人。
package session

import (
	"context"
	"time"
)

// Compose 一个待发送的匿名会话
type Compose struct {
	ReceiverID int64     `json:"receiver_id"`
	StartedAt  time.Time `json:"started_at"`
}

type Store interface {
	// Begin 覆盖已有会话
	Begin(ctx context.Context, userID, receiverID int64) error
	Get(ctx context.Context, userID int64) (Compose, bool, error)
	// Take 读取并删除，同一个会话只会被取走一次
	Take(ctx context.Context, userID int64) (Compose, bool, error)
	Clear(ctx context.Context, userID int64) error
}

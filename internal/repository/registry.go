package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/d60-Lab/anonrelay/internal/model"
	"github.com/d60-Lab/anonrelay/internal/reputation"
)

const (
	DefaultBannedLimit  = 50
	DefaultPendingLimit = 20
	DefaultInboxLimit   = 50
)

// SystemStats 管理端统计
type SystemStats struct {
	Users         int64                        `json:"users"`
	ActiveUsers   int64                        `json:"active_users"`
	Messages      int64                        `json:"messages"`
	MessagesToday int64                        `json:"messages_today"`
	Banned        int64                        `json:"banned"`
	Reports       map[model.ReportStatus]int64 `json:"reports"`
}

// Registry 是用户、封禁、消息、投递、举报的唯一持久化入口。
// 每个方法都是原子的；跨表写入在同一个事务里完成。
type Registry struct {
	db    *gorm.DB
	tiers *reputation.Table
	now   func() time.Time

	Users      UserRepository
	Messages   MessageRepository
	Deliveries DeliveryRepository
	Bans       BanRepository
	Reports    ReportRepository
}

type Option func(*Registry)

// WithClock 替换时间源（测试用）
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

func NewRegistry(db *gorm.DB, tiers *reputation.Table, opts ...Option) *Registry {
	r := &Registry{db: db, tiers: tiers, now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(r)
	}
	return r.bind(db)
}

func (r *Registry) bind(db *gorm.DB) *Registry {
	return &Registry{
		db:         db,
		tiers:      r.tiers,
		now:        r.now,
		Users:      NewUserRepository(db),
		Messages:   NewMessageRepository(db),
		Deliveries: NewDeliveryRepository(db),
		Bans:       NewBanRepository(db),
		Reports:    NewReportRepository(db),
	}
}

// Transaction 在一个事务内执行 fn，fn 中只能使用传入的 tx
func (r *Registry) Transaction(ctx context.Context, fn func(tx *Registry) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(r.bind(tx))
	})
}

func (r *Registry) Tiers() *reputation.Table { return r.tiers }

func (r *Registry) Now() time.Time { return r.now() }

// UpsertUser 首次接触时创建用户；名字策略见 UserRepository.Upsert
func (r *Registry) UpsertUser(ctx context.Context, id int64, name string) error {
	return r.Users.Upsert(ctx, id, strings.TrimSpace(name), r.tiers.Lowest(), r.now())
}

func (r *Registry) GetUser(ctx context.Context, id int64) (*model.User, error) {
	return r.Users.Get(ctx, id)
}

func (r *Registry) UserExists(ctx context.Context, id int64) (bool, error) {
	return r.Users.Exists(ctx, id)
}

// RecordMessage 落库消息并增量更新收件人的 message_count / tier。
// 收件人不存在时隐式创建：链接可能在主人启动 bot 之前就被分享出去。
func (r *Registry) RecordMessage(ctx context.Context, receiverID int64, senderID *int64, text string) (*model.Message, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	if receiverID <= 0 {
		return nil, ErrInvalidUserID
	}
	now := r.now()
	msg := &model.Message{ReceiverID: receiverID, SenderID: senderID, Text: text, CreatedAt: now}
	err := r.Transaction(ctx, func(tx *Registry) error {
		if err := tx.Users.Ensure(ctx, receiverID, tx.tiers.Lowest(), now); err != nil {
			return err
		}
		if err := tx.Messages.Create(ctx, msg); err != nil {
			return err
		}
		count, err := tx.Users.AddMessages(ctx, receiverID, 1, now)
		if err != nil {
			return err
		}
		return tx.Users.SetTier(ctx, receiverID, tx.tiers.TierFor(count))
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// RecordDelivery 重复的 (receiver, transport) 视为已记录
func (r *Registry) RecordDelivery(ctx context.Context, messageID, receiverID, transportMessageID int64) (bool, error) {
	return r.Deliveries.Create(ctx, &model.Delivery{
		MessageID:          messageID,
		ReceiverID:         receiverID,
		TransportMessageID: transportMessageID,
		CreatedAt:          r.now(),
	})
}

func (r *Registry) ResolveMessageFromDelivery(ctx context.Context, receiverID, transportMessageID int64) (int64, bool, error) {
	return r.Deliveries.Resolve(ctx, receiverID, transportMessageID)
}

func (r *Registry) GetMessage(ctx context.Context, id int64) (*model.Message, error) {
	return r.Messages.Get(ctx, id)
}

func (r *Registry) ListMessagesOf(ctx context.Context, receiverID int64, limit int) ([]*model.Message, error) {
	if limit <= 0 {
		limit = DefaultInboxLimit
	}
	return r.Messages.ListByReceiver(ctx, receiverID, limit)
}

func (r *Registry) CountMessagesOf(ctx context.Context, receiverID int64) (int64, error) {
	return r.Messages.CountByReceiver(ctx, receiverID)
}

// DeleteMessagesOf 删除收件人的全部消息，计数归零、称号回到最低档
func (r *Registry) DeleteMessagesOf(ctx context.Context, userID int64) (int64, error) {
	var deleted int64
	err := r.Transaction(ctx, func(tx *Registry) error {
		n, err := tx.Messages.DeleteByReceiver(ctx, userID)
		if err != nil {
			return err
		}
		deleted = n
		return tx.Users.SetStats(ctx, userID, 0, tx.tiers.Lowest(), tx.now())
	})
	return deleted, err
}

// RecountMessages 全表计数校正 message_count / tier，返回校正后的计数
func (r *Registry) RecountMessages(ctx context.Context, userID int64) (int64, error) {
	var count int64
	err := r.Transaction(ctx, func(tx *Registry) error {
		if _, err := tx.Users.Get(ctx, userID); err != nil {
			return err
		}
		n, err := tx.Messages.CountByReceiver(ctx, userID)
		if err != nil {
			return err
		}
		count = n
		return tx.Users.SetStats(ctx, userID, n, tx.tiers.TierFor(n), tx.now())
	})
	return count, err
}

func (r *Registry) IsBanned(ctx context.Context, userID int64) (bool, error) {
	return r.Bans.Exists(ctx, userID)
}

func (r *Registry) GetBan(ctx context.Context, userID int64) (*model.BanRecord, error) {
	return r.Bans.Get(ctx, userID)
}

// Ban 幂等 upsert，最新的 reason / admin 覆盖旧值
func (r *Registry) Ban(ctx context.Context, userID, byAdmin int64, reason string) error {
	rec, err := r.banRecord(ctx, userID, byAdmin, reason)
	if err != nil {
		return err
	}
	return r.Bans.Upsert(ctx, rec)
}

// BanIfAbsent 已有封禁记录时不做任何写入
func (r *Registry) BanIfAbsent(ctx context.Context, userID, byAdmin int64, reason string) (bool, error) {
	rec, err := r.banRecord(ctx, userID, byAdmin, reason)
	if err != nil {
		return false, err
	}
	return r.Bans.CreateIfAbsent(ctx, rec)
}

func (r *Registry) banRecord(ctx context.Context, userID, byAdmin int64, reason string) (*model.BanRecord, error) {
	if userID <= 0 {
		return nil, ErrInvalidUserID
	}
	rec := &model.BanRecord{UserID: userID, BannedBy: byAdmin, Reason: reason, BannedAt: r.now()}
	u, err := r.Users.Get(ctx, userID)
	switch {
	case err == nil:
		rec.DisplayName = u.DisplayName
	case !errors.Is(err, ErrUserNotFound):
		return nil, err
	}
	return rec, nil
}

func (r *Registry) Unban(ctx context.Context, userID int64) (bool, error) {
	return r.Bans.Delete(ctx, userID)
}

func (r *Registry) UnbanAll(ctx context.Context) (int64, error) {
	return r.Bans.DeleteAll(ctx)
}

func (r *Registry) ListBanned(ctx context.Context, limit int) ([]*model.BanRecord, error) {
	if limit <= 0 {
		limit = DefaultBannedLimit
	}
	return r.Bans.List(ctx, limit)
}

func (r *Registry) CreateReport(ctx context.Context, rep *model.Report) error {
	if rep.CreatedAt.IsZero() {
		rep.CreatedAt = r.now()
	}
	rep.Status = model.ReportPending
	rep.ReviewedAt = nil
	return r.Reports.Create(ctx, rep)
}

func (r *Registry) GetReport(ctx context.Context, id int64) (*model.Report, error) {
	return r.Reports.Get(ctx, id)
}

// TransitionReport pending -> 终态，只会成功一次
func (r *Registry) TransitionReport(ctx context.Context, id int64, to model.ReportStatus) (bool, error) {
	return r.Reports.Transition(ctx, id, to, r.now())
}

func (r *Registry) ListPendingReports(ctx context.Context, limit int) ([]*model.Report, error) {
	if limit <= 0 {
		limit = DefaultPendingLimit
	}
	return r.Reports.ListPending(ctx, limit)
}

func (r *Registry) Stats(ctx context.Context) (*SystemStats, error) {
	now := r.now()
	var (
		s   SystemStats
		err error
	)
	if s.Users, err = r.Users.Count(ctx); err != nil {
		return nil, err
	}
	if s.ActiveUsers, err = r.Users.CountActiveSince(ctx, now.Add(-7*24*time.Hour)); err != nil {
		return nil, err
	}
	if s.Messages, err = r.Messages.Count(ctx); err != nil {
		return nil, err
	}
	if s.MessagesToday, err = r.Messages.CountSince(ctx, now.Add(-24*time.Hour)); err != nil {
		return nil, err
	}
	if s.Banned, err = r.Bans.Count(ctx); err != nil {
		return nil, err
	}
	if s.Reports, err = r.Reports.CountByStatus(ctx); err != nil {
		return nil, err
	}
	return &s, nil
}

package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/d60-Lab/anonrelay/internal/model"
	"github.com/d60-Lab/anonrelay/internal/repository"
)

const referralPrefix = "user_"

// ReferralToken 链接中的 start 参数
func ReferralToken(userID int64) string {
	return referralPrefix + strconv.FormatInt(userID, 10)
}

// ParseReferral 无法解析的参数视为没有推荐人
func ParseReferral(token string) (int64, bool) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(token), referralPrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

type UserStats struct {
	UserID       int64     `json:"user_id"`
	MessageCount int64     `json:"message_count"`
	Tier         string    `json:"tier"`
	NextTier     string    `json:"next_tier"`
	Remaining    int64     `json:"remaining"`
	MaxTier      bool      `json:"max_tier"`
	Rank         int       `json:"rank"`
	JoinedAt     time.Time `json:"joined_at"`
	Link         string    `json:"link,omitempty"`
}

// Account 链接主人的自助功能
type Account struct {
	reg         *repository.Registry
	botUsername string
}

func NewAccount(reg *repository.Registry, botUsername string) *Account {
	return &Account{reg: reg, botUsername: strings.TrimPrefix(botUsername, "@")}
}

func (a *Account) Link(userID int64) string {
	return fmt.Sprintf("https://t.me/%s?start=%s", a.botUsername, ReferralToken(userID))
}

// Touch 首次接触时登记用户；被封禁的用户返回 ErrBanned
func (a *Account) Touch(ctx context.Context, userID int64, name string) error {
	banned, err := a.reg.IsBanned(ctx, userID)
	if err != nil {
		return err
	}
	if banned {
		return ErrBanned
	}
	return a.reg.UpsertUser(ctx, userID, name)
}

func (a *Account) IsBanned(ctx context.Context, userID int64) (bool, error) {
	return a.reg.IsBanned(ctx, userID)
}

func (a *Account) Stats(ctx context.Context, userID int64) (*UserStats, error) {
	u, err := a.reg.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	tiers := a.reg.Tiers()
	next := tiers.NextTier(u.MessageCount)
	return &UserStats{
		UserID:       u.ID,
		MessageCount: u.MessageCount,
		Tier:         tiers.TierFor(u.MessageCount),
		NextTier:     next.Label,
		Remaining:    next.Remaining,
		MaxTier:      next.Max,
		Rank:         tiers.Rank(u.MessageCount),
		JoinedAt:     u.CreatedAt,
		Link:         a.Link(u.ID),
	}, nil
}

// Inbox 最新的在前
func (a *Account) Inbox(ctx context.Context, userID int64, limit int) ([]*model.Message, int64, error) {
	msgs, err := a.reg.ListMessagesOf(ctx, userID, limit)
	if err != nil {
		return nil, 0, err
	}
	total, err := a.reg.CountMessagesOf(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	return msgs, total, nil
}

func (a *Account) MessageCount(ctx context.Context, userID int64) (int64, error) {
	return a.reg.CountMessagesOf(ctx, userID)
}

func (a *Account) DeleteAll(ctx context.Context, userID int64) (int64, error) {
	return a.reg.DeleteMessagesOf(ctx, userID)
}

func (a *Account) Recount(ctx context.Context, userID int64) (*UserStats, error) {
	if _, err := a.reg.RecountMessages(ctx, userID); err != nil {
		return nil, err
	}
	return a.Stats(ctx, userID)
}

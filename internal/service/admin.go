package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/d60-Lab/anonrelay/internal/model"
	"github.com/d60-Lab/anonrelay/internal/repository"
	"github.com/d60-Lab/anonrelay/pkg/logger"
)

// PendingReport 审核队列条目；消息仍存在时带上当前文本，否则回退到快照
type PendingReport struct {
	*model.Report
	Text string `json:"text"`
}

// Admin 管理员的手动操作（review bot 命令与 HTTP 管理接口共用）
type Admin struct {
	reg           *repository.Registry
	defaultReason string
}

func NewAdmin(reg *repository.Registry, defaultReason string) *Admin {
	return &Admin{reg: reg, defaultReason: defaultReason}
}

// BanUser 已封禁时返回 ErrAlreadyBanned，不覆盖原记录
func (a *Admin) BanUser(ctx context.Context, userID, adminID int64, reason string) (*model.BanRecord, error) {
	if userID <= 0 {
		return nil, repository.ErrInvalidUserID
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = a.defaultReason
	}
	created, err := a.reg.BanIfAbsent(ctx, userID, adminID, reason)
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, ErrAlreadyBanned
	}
	logger.Info("user banned", zap.Int64("user_id", userID), zap.Int64("admin_id", adminID), zap.String("reason", reason))
	return a.reg.GetBan(ctx, userID)
}

func (a *Admin) UnbanUser(ctx context.Context, userID, adminID int64) error {
	removed, err := a.reg.Unban(ctx, userID)
	if err != nil {
		return err
	}
	if !removed {
		return ErrNotBanned
	}
	logger.Info("user unbanned", zap.Int64("user_id", userID), zap.Int64("admin_id", adminID))
	return nil
}

func (a *Admin) ListBanned(ctx context.Context, limit int) ([]*model.BanRecord, error) {
	return a.reg.ListBanned(ctx, limit)
}

func (a *Admin) Pending(ctx context.Context, limit int) ([]PendingReport, error) {
	reports, err := a.reg.ListPendingReports(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]PendingReport, 0, len(reports))
	for _, rep := range reports {
		text := rep.ContentSnapshot
		msg, err := a.reg.GetMessage(ctx, rep.MessageID)
		switch {
		case err == nil:
			text = msg.Text
		case !errors.Is(err, repository.ErrMessageNotFound):
			return nil, err
		}
		out = append(out, PendingReport{Report: rep, Text: text})
	}
	return out, nil
}

func (a *Admin) Stats(ctx context.Context) (*repository.SystemStats, error) {
	return a.reg.Stats(ctx)
}

func (a *Admin) Report(ctx context.Context, id int64) (*model.Report, error) {
	return a.reg.GetReport(ctx, id)
}

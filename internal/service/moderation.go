package service

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/d60-Lab/anonrelay/internal/messenger"
	"github.com/d60-Lab/anonrelay/internal/model"
	"github.com/d60-Lab/anonrelay/internal/repository"
	"github.com/d60-Lab/anonrelay/pkg/logger"
)

// Outcome 管理员操作的结果
type Outcome string

const (
	OutcomeBanned         Outcome = "banned"
	OutcomeAlreadyBanned  Outcome = "already_banned"
	OutcomeDismissed      Outcome = "dismissed"
	OutcomeAlreadyHandled Outcome = "already_handled"
)

// errLostRace 守卫更新失败，回滚同一事务中的封禁写入
var errLostRace = errors.New("report transition lost race")

type FileReportResult struct {
	Report   *model.Report `json:"report"`
	Notified bool          `json:"notified"`
}

// Moderation 举报状态机：pending -> banned | dismissed | already_banned
type Moderation struct {
	reg       *repository.Registry
	notifier  *Notifier
	admins    []int64
	banReason string
}

func NewModeration(reg *repository.Registry, notifier *Notifier, admins []int64, banReason string) *Moderation {
	return &Moderation{reg: reg, notifier: notifier, admins: append([]int64(nil), admins...), banReason: banReason}
}

// FileReport 通过投递映射找到原消息并创建 pending 举报。
// 通知失败不回滚举报，Notified=false 由调用方作为提示展示。
func (m *Moderation) FileReport(ctx context.Context, reporterID, transportMessageID int64) (*FileReportResult, error) {
	ctx, span := tracer.Start(ctx, "Moderation.FileReport")
	defer span.End()

	messageID, ok, err := m.reg.ResolveMessageFromDelivery(ctx, reporterID, transportMessageID)
	if err != nil {
		return nil, err
	}
	if !ok {
		reportsFiled.WithLabelValues("not_eligible").Inc()
		return nil, ErrNotEligible
	}
	msg, err := m.reg.GetMessage(ctx, messageID)
	if errors.Is(err, repository.ErrMessageNotFound) {
		reportsFiled.WithLabelValues("not_eligible").Inc()
		return nil, ErrNotEligible
	}
	if err != nil {
		return nil, err
	}
	if msg.SenderID == nil {
		reportsFiled.WithLabelValues("sender_unknown").Inc()
		return nil, ErrSenderUnknown
	}

	rep := &model.Report{
		MessageID:       msg.ID,
		ReporterID:      reporterID,
		ReportedUserID:  msg.SenderID,
		ContentSnapshot: msg.Text,
	}
	if err := m.reg.CreateReport(ctx, rep); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int64("report_id", rep.ID))
	reportsFiled.WithLabelValues("created").Inc()

	notified := m.notifier.Notify(ctx, rep, m.admins)
	if !notified {
		logger.Warn("report filed without admin notification", zap.Int64("report_id", rep.ID))
	}
	return &FileReportResult{Report: rep, Notified: notified}, nil
}

// AdminBan 在一个事务内：读举报 -> 封禁（已封禁则不覆盖）-> 带守卫的状态迁移
func (m *Moderation) AdminBan(ctx context.Context, reportID, adminID int64) (Outcome, error) {
	ctx, span := tracer.Start(ctx, "Moderation.AdminBan")
	defer span.End()
	span.SetAttributes(attribute.Int64("report_id", reportID), attribute.Int64("admin_id", adminID))

	var outcome Outcome
	err := m.reg.Transaction(ctx, func(tx *repository.Registry) error {
		rep, err := tx.GetReport(ctx, reportID)
		if err != nil {
			return err
		}
		if rep.Status != model.ReportPending {
			outcome = OutcomeAlreadyHandled
			return nil
		}
		if rep.ReportedUserID == nil {
			return ErrSenderUnknown
		}
		created, err := tx.BanIfAbsent(ctx, *rep.ReportedUserID, adminID, m.banReason)
		if err != nil {
			return err
		}
		to, result := model.ReportBanned, OutcomeBanned
		if !created {
			to, result = model.ReportAlreadyBanned, OutcomeAlreadyBanned
		}
		ok, err := tx.TransitionReport(ctx, reportID, to)
		if err != nil {
			return err
		}
		if !ok {
			return errLostRace
		}
		outcome = result
		return nil
	})
	return m.finish(messenger.VerbBan, reportID, adminID, outcome, err)
}

func (m *Moderation) AdminDismiss(ctx context.Context, reportID, adminID int64) (Outcome, error) {
	ctx, span := tracer.Start(ctx, "Moderation.AdminDismiss")
	defer span.End()
	span.SetAttributes(attribute.Int64("report_id", reportID), attribute.Int64("admin_id", adminID))

	rep, err := m.reg.GetReport(ctx, reportID)
	if err != nil {
		return m.finish(messenger.VerbDismiss, reportID, adminID, "", err)
	}
	if rep.Status != model.ReportPending {
		return m.finish(messenger.VerbDismiss, reportID, adminID, OutcomeAlreadyHandled, nil)
	}
	ok, err := m.reg.TransitionReport(ctx, reportID, model.ReportDismissed)
	if err == nil && !ok {
		err = errLostRace
	}
	return m.finish(messenger.VerbDismiss, reportID, adminID, OutcomeDismissed, err)
}

// HandleAction 处理传输层回传的 "ban:<id>" / "dismiss:<id>"
func (m *Moderation) HandleAction(ctx context.Context, adminID int64, act messenger.Action) (Outcome, error) {
	switch act.Verb {
	case messenger.VerbBan:
		return m.AdminBan(ctx, act.ReportID, adminID)
	case messenger.VerbDismiss:
		return m.AdminDismiss(ctx, act.ReportID, adminID)
	default:
		return "", fmt.Errorf("%w: %s", messenger.ErrInvalidAction, act.Verb)
	}
}

// UnbanAll 清空封禁表，举报记录保持不变
func (m *Moderation) UnbanAll(ctx context.Context) (int64, error) {
	n, err := m.reg.UnbanAll(ctx)
	if err != nil {
		return 0, err
	}
	logger.Info("all bans lifted", zap.Int64("count", n))
	return n, nil
}

func (m *Moderation) finish(verb messenger.Verb, reportID, adminID int64, outcome Outcome, err error) (Outcome, error) {
	if errors.Is(err, errLostRace) {
		outcome, err = OutcomeAlreadyHandled, nil
	}
	if err != nil {
		adminActions.WithLabelValues(string(verb), "error").Inc()
		return "", err
	}
	adminActions.WithLabelValues(string(verb), string(outcome)).Inc()
	logger.Info("admin action",
		zap.String("verb", string(verb)),
		zap.Int64("report_id", reportID),
		zap.Int64("admin_id", adminID),
		zap.String("outcome", string(outcome)),
	)
	return outcome, nil
}

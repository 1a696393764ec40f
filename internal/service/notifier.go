package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/d60-Lab/anonrelay/internal/messenger"
	"github.com/d60-Lab/anonrelay/internal/model"
	"github.com/d60-Lab/anonrelay/pkg/logger"
)

// Notifier 把新举报推送给管理员：按配置顺序尝试，第一个成功即停止
type Notifier struct {
	messenger messenger.Messenger
	timeout   time.Duration
}

func NewNotifier(m messenger.Messenger, timeout time.Duration) *Notifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Notifier{messenger: m, timeout: timeout}
}

// Notify 返回 false 表示列表为空或全部失败
func (n *Notifier) Notify(ctx context.Context, rep *model.Report, recipients []int64) bool {
	if n == nil || n.messenger == nil || len(recipients) == 0 {
		notifyAttempts.WithLabelValues("no_recipients").Inc()
		return false
	}
	body := FormatReportNotice(rep)
	actions := messenger.ReportActions(rep.ID)
	for i, admin := range recipients {
		actx, cancel := context.WithTimeout(ctx, n.timeout)
		err := n.messenger.Notify(actx, admin, body, actions)
		cancel()
		if err == nil {
			notifyAttempts.WithLabelValues("ok").Inc()
			logger.Info("report notified",
				zap.Int64("report_id", rep.ID),
				zap.Int64("admin_id", admin),
				zap.Int("attempt", i+1),
			)
			return true
		}
		notifyAttempts.WithLabelValues("failed").Inc()
		logger.Warn("report notify failed",
			zap.Int64("report_id", rep.ID),
			zap.Int64("admin_id", admin),
			zap.Int("attempt", i+1),
			zap.Error(err),
		)
		if ctx.Err() != nil {
			break
		}
	}
	return false
}

func FormatReportNotice(rep *model.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "New report #%d\n\n", rep.ID)
	if rep.ReportedUserID != nil {
		fmt.Fprintf(&b, "Reported sender: %d\n", *rep.ReportedUserID)
	} else {
		b.WriteString("Reported sender: unknown\n")
	}
	fmt.Fprintf(&b, "Reporter: %d\n\n", rep.ReporterID)
	b.WriteString("Text:\n")
	b.WriteString(rep.ContentSnapshot)
	return b.String()
}

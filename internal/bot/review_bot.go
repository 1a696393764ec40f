package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/d60-Lab/anonrelay/internal/messenger"
	"github.com/d60-Lab/anonrelay/internal/repository"
	"github.com/d60-Lab/anonrelay/internal/service"
	"github.com/d60-Lab/anonrelay/internal/telegram"
	"github.com/d60-Lab/anonrelay/pkg/logger"
)

const (
	cbBannedList = "banned_list"
	cbUnbanAll   = "unban_all"
	cbStats      = "stats"
)

// Review 管理员审核 bot，只对白名单内的 admin 开放
type Review struct {
	api        API
	moderation *service.Moderation
	admin      *service.Admin
	admins     map[int64]bool
}

func NewReview(api API, moderation *service.Moderation, admin *service.Admin, admins []int64) *Review {
	allow := make(map[int64]bool, len(admins))
	for _, id := range admins {
		allow[id] = true
	}
	return &Review{api: api, moderation: moderation, admin: admin, admins: allow}
}

func (b *Review) IsAdmin(userID int64) bool { return b.admins[userID] }

func (b *Review) HandleUpdate(ctx context.Context, u telegram.Update) error {
	switch {
	case u.CallbackQuery != nil:
		q := u.CallbackQuery
		if !b.IsAdmin(q.From.ID) {
			answer(ctx, b.api, q, textNotAllowed)
			return nil
		}
		return b.OnCallback(ctx, q)
	case u.Message != nil && u.Message.From != nil:
		msg := u.Message
		if !b.IsAdmin(msg.From.ID) {
			reply(ctx, b.api, msg.Chat.ID, textNotAdmin, nil)
			return nil
		}
		return b.onCommand(ctx, msg)
	}
	return nil
}

func (b *Review) onCommand(ctx context.Context, msg *telegram.Message) error {
	cmd, args, ok := parseCommand(msg.Text)
	if !ok {
		return nil
	}
	chatID, adminID := msg.Chat.ID, msg.From.ID
	switch cmd {
	case "start":
		reply(ctx, b.api, chatID, reviewHelpText(), adminKeyboard())
	case "pending":
		return b.sendPending(ctx, chatID)
	case "ban":
		return b.banCommand(ctx, chatID, adminID, args)
	case "unban":
		return b.unbanCommand(ctx, chatID, adminID, args)
	case "banned":
		text, err := b.bannedList(ctx)
		if err != nil {
			return err
		}
		reply(ctx, b.api, chatID, text, bannedKeyboard())
	case "stats":
		text, err := b.statsText(ctx)
		if err != nil {
			return err
		}
		reply(ctx, b.api, chatID, text, nil)
	}
	return nil
}

func (b *Review) sendPending(ctx context.Context, chatID int64) error {
	pending, err := b.admin.Pending(ctx, 0)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		reply(ctx, b.api, chatID, textNoPending, nil)
		return nil
	}
	reply(ctx, b.api, chatID, fmt.Sprintf("📋 %d pending reports:", len(pending)), nil)
	for _, p := range pending {
		reply(ctx, b.api, chatID, pendingText(p), reviewKeyboard(p.ID))
	}
	return nil
}

func (b *Review) banCommand(ctx context.Context, chatID, adminID int64, args []string) error {
	if len(args) == 0 {
		reply(ctx, b.api, chatID, textBanUsage, nil)
		return nil
	}
	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || userID <= 0 {
		reply(ctx, b.api, chatID, textBadUserID, nil)
		return nil
	}
	reason := strings.Join(args[1:], " ")
	rec, err := b.admin.BanUser(ctx, userID, adminID, reason)
	switch {
	case errors.Is(err, service.ErrAlreadyBanned):
		reply(ctx, b.api, chatID, textAlreadyBanned, nil)
	case err != nil:
		return err
	default:
		reply(ctx, b.api, chatID, fmt.Sprintf("✅ User %d banned.\nReason: %s", rec.UserID, rec.Reason), nil)
	}
	return nil
}

func (b *Review) unbanCommand(ctx context.Context, chatID, adminID int64, args []string) error {
	if len(args) == 0 {
		reply(ctx, b.api, chatID, textUnbanUsage, nil)
		return nil
	}
	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || userID <= 0 {
		reply(ctx, b.api, chatID, textBadUserID, nil)
		return nil
	}
	err = b.admin.UnbanUser(ctx, userID, adminID)
	switch {
	case errors.Is(err, service.ErrNotBanned):
		reply(ctx, b.api, chatID, textNotBanned, nil)
	case err != nil:
		return err
	default:
		reply(ctx, b.api, chatID, fmt.Sprintf("✅ Ban lifted for %d.", userID), nil)
	}
	return nil
}

// OnAdminAction 处理 ban / dismiss 按钮，返回给管理员看的文本
func (b *Review) OnAdminAction(ctx context.Context, adminID int64, verb messenger.Verb, reportID int64) (string, error) {
	outcome, err := b.moderation.HandleAction(ctx, adminID, messenger.Action{Verb: verb, ReportID: reportID})
	if errors.Is(err, service.ErrReportNotFound) {
		return textReportNotFound, nil
	}
	if errors.Is(err, service.ErrSenderUnknown) {
		return textSenderUnknown, nil
	}
	if err != nil {
		return "", err
	}
	rep, err := b.admin.Report(ctx, reportID)
	if err != nil {
		return "", err
	}
	return outcomeText(outcome, reportID, rep), nil
}

func (b *Review) OnCallback(ctx context.Context, q *telegram.CallbackQuery) error {
	answer(ctx, b.api, q, "")
	logger.Info("review callback", zap.String("data", q.Data), zap.Int64("admin_id", q.From.ID))

	switch q.Data {
	case cbBannedList:
		text, err := b.bannedList(ctx)
		if err != nil {
			return err
		}
		edit(ctx, b.api, q, text, bannedKeyboard())
		return nil
	case cbUnbanAll:
		if _, err := b.moderation.UnbanAll(ctx); err != nil {
			edit(ctx, b.api, q, textInternalError, nil)
			return err
		}
		edit(ctx, b.api, q, textUnbannedAll, nil)
		return nil
	case cbStats:
		text, err := b.statsText(ctx)
		if err != nil {
			return err
		}
		edit(ctx, b.api, q, text, nil)
		return nil
	}

	act, err := messenger.ParseAction(q.Data)
	if err != nil {
		logger.Debug("unknown review callback", zap.String("data", q.Data))
		return nil
	}
	text, err := b.OnAdminAction(ctx, q.From.ID, act.Verb, act.ReportID)
	if err != nil {
		edit(ctx, b.api, q, textInternalError, nil)
		return err
	}
	edit(ctx, b.api, q, text, nil)
	return nil
}

func (b *Review) bannedList(ctx context.Context) (string, error) {
	list, err := b.admin.ListBanned(ctx, repository.DefaultBannedLimit)
	if err != nil {
		return "", err
	}
	if len(list) == 0 {
		return textNoBanned, nil
	}
	return bannedText(list), nil
}

func (b *Review) statsText(ctx context.Context) (string, error) {
	st, err := b.admin.Stats(ctx)
	if err != nil {
		return "", err
	}
	return systemStatsText(st), nil
}

func bannedKeyboard() *telegram.InlineKeyboardMarkup {
	return telegram.Keyboard(telegram.Row(telegram.Button("🔄 Unban everyone", cbUnbanAll), telegram.Button("📊 Stats", cbStats)))
}

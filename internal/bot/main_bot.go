package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/d60-Lab/anonrelay/internal/messenger"
	"github.com/d60-Lab/anonrelay/internal/repository"
	"github.com/d60-Lab/anonrelay/internal/service"
	"github.com/d60-Lab/anonrelay/internal/session"
	"github.com/d60-Lab/anonrelay/internal/telegram"
	"github.com/d60-Lab/anonrelay/pkg/logger"
)

const (
	cbMyMessages   = "my_messages"
	cbMyLink       = "my_link"
	cbMessageCount = "message_count"
	cbDeleteAll    = "delete_all"
	cbMyStats      = "my_stats"
	cbInfo         = "info"
	cbCancelSend   = "cancel_send"
)

// Main 面向普通用户的 bot
type Main struct {
	api        API
	relay      *service.Relay
	moderation *service.Moderation
	account    *service.Account
	sessions   session.Store
	// actions 非空时，举报通知按钮（ban:<id> / dismiss:<id>）回到主 bot，由它转交审核
	actions *Review
}

func NewMain(api API, relay *service.Relay, moderation *service.Moderation, account *service.Account, sessions session.Store) *Main {
	return &Main{api: api, relay: relay, moderation: moderation, account: account, sessions: sessions}
}

// WithReviewActions 没有独立 review bot 时，通知经主 bot 发出，按钮回调也由主 bot 接收
func (b *Main) WithReviewActions(r *Review) *Main {
	b.actions = r
	return b
}

// HandleUpdate 实现 telegram.UpdateHandler
func (b *Main) HandleUpdate(ctx context.Context, u telegram.Update) error {
	switch {
	case u.CallbackQuery != nil:
		if b.actions != nil {
			if _, err := messenger.ParseAction(u.CallbackQuery.Data); err == nil {
				// 白名单校验在 Review.HandleUpdate 内
				return b.actions.HandleUpdate(ctx, u)
			}
		}
		return b.OnCallback(ctx, u.CallbackQuery)
	case u.Message != nil && u.Message.From != nil:
		return b.onMessage(ctx, u.Message)
	}
	return nil
}

func (b *Main) onMessage(ctx context.Context, msg *telegram.Message) error {
	from := msg.From
	cmd, args, ok := parseCommand(msg.Text)
	if !ok {
		return b.OnText(ctx, from.ID, msg.Chat.ID, msg.Text)
	}
	switch cmd {
	case "start":
		ref := ""
		if len(args) > 0 {
			ref = args[0]
		}
		return b.OnStart(ctx, from.ID, msg.Chat.ID, from.DisplayName(), ref)
	case "link":
		return b.guarded(ctx, from.ID, msg.Chat.ID, func() error {
			reply(ctx, b.api, msg.Chat.ID, linkText(b.account.Link(from.ID)), mainKeyboard())
			return nil
		})
	case "stats":
		return b.guarded(ctx, from.ID, msg.Chat.ID, func() error {
			text, err := b.statsText(ctx, from.ID)
			if err != nil {
				return err
			}
			reply(ctx, b.api, msg.Chat.ID, text, mainKeyboard())
			return nil
		})
	case "report":
		return b.OnReportRequest(ctx, from.ID, msg.Chat.ID, msg.ReplyToMessage)
	default:
		return b.OnText(ctx, from.ID, msg.Chat.ID, msg.Text)
	}
}

// guarded 被封禁的用户只会收到封禁提示
func (b *Main) guarded(ctx context.Context, userID, chatID int64, fn func() error) error {
	banned, err := b.account.IsBanned(ctx, userID)
	if err != nil {
		reply(ctx, b.api, chatID, textInternalError, nil)
		return err
	}
	if banned {
		reply(ctx, b.api, chatID, textBanned, nil)
		return nil
	}
	if err := fn(); err != nil {
		reply(ctx, b.api, chatID, textInternalError, nil)
		return err
	}
	return nil
}

// OnStart 登记用户；referrer 是 user_<id> 时进入匿名发送会话
func (b *Main) OnStart(ctx context.Context, userID, chatID int64, name, referrer string) error {
	if err := b.account.Touch(ctx, userID, name); err != nil {
		if errors.Is(err, service.ErrBanned) {
			reply(ctx, b.api, chatID, textBanned, nil)
			return nil
		}
		reply(ctx, b.api, chatID, textInternalError, nil)
		return err
	}
	if err := b.sessions.Clear(ctx, userID); err != nil {
		return err
	}

	receiverID, ok := service.ParseReferral(referrer)
	if !ok {
		reply(ctx, b.api, chatID, textWelcome, mainKeyboard())
		return nil
	}
	banned, err := b.account.IsBanned(ctx, receiverID)
	if err != nil {
		return err
	}
	if banned {
		reply(ctx, b.api, chatID, textOwnerBanned, nil)
		return nil
	}
	if err := b.sessions.Begin(ctx, userID, receiverID); err != nil {
		reply(ctx, b.api, chatID, textInternalError, nil)
		return err
	}
	reply(ctx, b.api, chatID, textCompose, cancelKeyboard())
	return nil
}

// OnText 有会话时作为匿名消息发出，否则提示无法识别
func (b *Main) OnText(ctx context.Context, userID, chatID int64, text string) error {
	return b.guarded(ctx, userID, chatID, func() error {
		c, ok, err := b.sessions.Take(ctx, userID)
		if err != nil {
			return err
		}
		if !ok {
			reply(ctx, b.api, chatID, textUnknownInput, mainKeyboard())
			return nil
		}
		sender := userID
		res, err := b.relay.Send(ctx, service.SendRequest{ReceiverID: c.ReceiverID, SenderID: &sender, Text: text})
		switch {
		case err == nil:
			reply(ctx, b.api, chatID, textSent, mainKeyboard())
		case errors.Is(err, service.ErrSenderBanned):
			reply(ctx, b.api, chatID, textBanned, nil)
		case errors.Is(err, service.ErrReceiverBanned):
			reply(ctx, b.api, chatID, textOwnerBanned, nil)
		case errors.Is(err, repository.ErrEmptyText):
			// 保留会话，让用户重新输入
			_ = b.sessions.Begin(ctx, userID, c.ReceiverID)
			reply(ctx, b.api, chatID, textEmpty, cancelKeyboard())
		case errors.Is(err, service.ErrDeliveryFailed):
			logger.Info("anonymous message not delivered", zap.Int64("message_id", res.MessageID))
			reply(ctx, b.api, chatID, textNotSent, mainKeyboard())
		default:
			return err
		}
		return nil
	})
}

// OnReportRequest 链接主人回复 bot 投递的消息来举报
func (b *Main) OnReportRequest(ctx context.Context, reporterID, chatID int64, replyTo *telegram.Message) error {
	return b.guarded(ctx, reporterID, chatID, func() error {
		if replyTo == nil {
			reply(ctx, b.api, chatID, textReplyToReport, nil)
			return nil
		}
		if replyTo.From == nil || !replyTo.From.IsBot {
			reply(ctx, b.api, chatID, textNotAnonymous, nil)
			return nil
		}
		res, err := b.moderation.FileReport(ctx, reporterID, replyTo.MessageID)
		switch {
		case errors.Is(err, service.ErrSenderUnknown):
			reply(ctx, b.api, chatID, textSenderUnknown, nil)
			return nil
		case errors.Is(err, service.ErrNotEligible):
			reply(ctx, b.api, chatID, textNotAnonymous, nil)
			return nil
		case err != nil:
			return err
		}
		reply(ctx, b.api, chatID, textReportSent, nil)
		if !res.Notified {
			reply(ctx, b.api, chatID, textReportNotNotified, nil)
		}
		return nil
	})
}

func (b *Main) OnCallback(ctx context.Context, q *telegram.CallbackQuery) error {
	answer(ctx, b.api, q, "")
	userID := q.From.ID
	banned, err := b.account.IsBanned(ctx, userID)
	if err != nil {
		return err
	}
	if banned {
		edit(ctx, b.api, q, textBanned, nil)
		return nil
	}

	var text string
	switch q.Data {
	case cbMyLink:
		text = linkText(b.account.Link(userID))
	case cbMyMessages:
		msgs, total, err := b.account.Inbox(ctx, userID, inboxShown)
		if err != nil {
			return err
		}
		text = inboxText(msgs, total)
	case cbMessageCount:
		n, err := b.account.MessageCount(ctx, userID)
		if err != nil {
			return err
		}
		text = fmt.Sprintf("📊 Messages received: %d", n)
	case cbDeleteAll:
		n, err := b.account.DeleteAll(ctx, userID)
		if err != nil {
			return err
		}
		text = fmt.Sprintf("🗑️ All messages deleted!\n\n🗑️ %d messages removed.", n)
	case cbMyStats:
		text, err = b.statsText(ctx, userID)
		if err != nil {
			return err
		}
	case cbInfo:
		n, err := b.account.MessageCount(ctx, userID)
		if err != nil {
			return err
		}
		text = fmt.Sprintf("ℹ️ Bot info:\n\n🔗 Your link:\n%s\n\n📊 Messages: %d", b.account.Link(userID), n)
	case cbCancelSend:
		if err := b.sessions.Clear(ctx, userID); err != nil {
			return err
		}
		text = textCancelled
	default:
		logger.Debug("unknown callback", zap.String("data", q.Data), zap.Int64("user_id", userID))
		return nil
	}
	edit(ctx, b.api, q, text, mainKeyboard())
	return nil
}

func (b *Main) statsText(ctx context.Context, userID int64) (string, error) {
	st, err := b.account.Stats(ctx, userID)
	if errors.Is(err, repository.ErrUserNotFound) {
		// 没走过 /start 的用户
		if err := b.account.Touch(ctx, userID, ""); err != nil {
			return "", err
		}
		st, err = b.account.Stats(ctx, userID)
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(statsText(st)), nil
}

// Package bot 把 Telegram update 映射到核心服务：主 bot 负责匿名投递与举报，
// review bot 负责管理员审核。
package bot

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/d60-Lab/anonrelay/internal/telegram"
	"github.com/d60-Lab/anonrelay/pkg/logger"
)

// API 两个 bot 用到的 Bot API 子集，*telegram.Client 实现它
type API interface {
	SendMessage(ctx context.Context, chatID int64, text string, markup *telegram.InlineKeyboardMarkup) (*telegram.Message, error)
	EditMessageText(ctx context.Context, chatID, messageID int64, text string, markup *telegram.InlineKeyboardMarkup) error
	AnswerCallbackQuery(ctx context.Context, id, text string) error
}

var _ API = (*telegram.Client)(nil)

// parseCommand "/start@my_bot user_1" -> ("start", ["user_1"])
func parseCommand(text string) (string, []string, bool) {
	if !strings.HasPrefix(text, "/") {
		return "", nil, false
	}
	fields := strings.Fields(text)
	cmd := strings.TrimPrefix(fields[0], "/")
	if i := strings.IndexByte(cmd, '@'); i >= 0 {
		cmd = cmd[:i]
	}
	return strings.ToLower(cmd), fields[1:], true
}

// reply 回复失败只记日志，对话不依赖它
func reply(ctx context.Context, api API, chatID int64, text string, markup *telegram.InlineKeyboardMarkup) {
	if _, err := api.SendMessage(ctx, chatID, text, markup); err != nil {
		logger.Warn("bot reply failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func edit(ctx context.Context, api API, q *telegram.CallbackQuery, text string, markup *telegram.InlineKeyboardMarkup) {
	if q.Message == nil {
		reply(ctx, api, q.From.ID, text, markup)
		return
	}
	if err := api.EditMessageText(ctx, q.Message.Chat.ID, q.Message.MessageID, text, markup); err != nil {
		logger.Warn("bot edit failed", zap.Int64("chat_id", q.Message.Chat.ID), zap.Error(err))
	}
}

func answer(ctx context.Context, api API, q *telegram.CallbackQuery, text string) {
	if err := api.AnswerCallbackQuery(ctx, q.ID, text); err != nil {
		logger.Debug("answer callback failed", zap.String("callback_id", q.ID), zap.Error(err))
	}
}

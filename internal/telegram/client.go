package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/d60-Lab/anonrelay/internal/messenger"
	"github.com/d60-Lab/anonrelay/pkg/logger"
)

type Config struct {
	APIBase   string
	Token     string
	Timeout   time.Duration
	RetryMax  int
	RateLimit float64
}

// Client Bot API 客户端，同时实现 messenger.Messenger
type Client struct {
	base    string
	token   string
	http    *retryablehttp.Client
	limiter *rate.Limiter
}

var _ messenger.Messenger = (*Client)(nil)

func NewClient(cfg Config) *Client {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.telegram.org"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 25
	}
	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.RetryMax
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 5 * time.Second
	rc.HTTPClient.Timeout = cfg.Timeout
	rc.Logger = retryLogger{}
	// 非 2xx 也要读出 body 里的 description
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	burst := int(cfg.RateLimit)
	if burst < 1 {
		burst = 1
	}
	return &Client{
		base:    strings.TrimRight(cfg.APIBase, "/"),
		token:   cfg.Token,
		http:    rc,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), burst),
	}
}

func (c *Client) endpoint(method string) string {
	return c.base + "/bot" + c.token + "/" + method
}

// call 发送 JSON 请求并把 result 解到 out；paced=false 时不经过限速（长轮询）
func (c *Client) call(ctx context.Context, method string, params, out interface{}, paced bool) error {
	if paced {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	payload, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encode %s: %w", method, err)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(method), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		// 不把带 token 的 URL 暴露到错误里
		return fmt.Errorf("telegram %s: %w", method, redact(err, c.token))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read %s: %w", method, err)
	}
	var ar apiResponse
	if err := json.Unmarshal(body, &ar); err != nil {
		return fmt.Errorf("telegram %s: status %d: decode: %w", method, resp.StatusCode, err)
	}
	if !ar.OK {
		apiErr := &APIError{Method: method, Code: ar.ErrorCode, Description: ar.Description}
		if ar.Parameters != nil {
			apiErr.RetryAfter = ar.Parameters.RetryAfter
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(ar.Result, out); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}

type sendMessageParams struct {
	ChatID           int64                 `json:"chat_id"`
	Text             string                `json:"text"`
	ReplyMarkup      *InlineKeyboardMarkup `json:"reply_markup,omitempty"`
	ReplyToMessageID int64                 `json:"reply_to_message_id,omitempty"`
}

func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, markup *InlineKeyboardMarkup) (*Message, error) {
	var msg Message
	err := c.call(ctx, "sendMessage", sendMessageParams{ChatID: chatID, Text: text, ReplyMarkup: markup}, &msg, true)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

type editMessageTextParams struct {
	ChatID      int64                 `json:"chat_id"`
	MessageID   int64                 `json:"message_id"`
	Text        string                `json:"text"`
	ReplyMarkup *InlineKeyboardMarkup `json:"reply_markup,omitempty"`
}

func (c *Client) EditMessageText(ctx context.Context, chatID, messageID int64, text string, markup *InlineKeyboardMarkup) error {
	return c.call(ctx, "editMessageText", editMessageTextParams{ChatID: chatID, MessageID: messageID, Text: text, ReplyMarkup: markup}, nil, true)
}

type answerCallbackParams struct {
	CallbackQueryID string `json:"callback_query_id"`
	Text            string `json:"text,omitempty"`
}

func (c *Client) AnswerCallbackQuery(ctx context.Context, id, text string) error {
	return c.call(ctx, "answerCallbackQuery", answerCallbackParams{CallbackQueryID: id, Text: text}, nil, true)
}

type getUpdatesParams struct {
	Offset         int64    `json:"offset,omitempty"`
	Timeout        int      `json:"timeout"`
	AllowedUpdates []string `json:"allowed_updates,omitempty"`
}

func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout int) ([]Update, error) {
	var updates []Update
	params := getUpdatesParams{Offset: offset, Timeout: timeout, AllowedUpdates: []string{"message", "callback_query"}}
	if err := c.call(ctx, "getUpdates", params, &updates, false); err != nil {
		return nil, err
	}
	return updates, nil
}

type setWebhookParams struct {
	URL         string `json:"url"`
	SecretToken string `json:"secret_token,omitempty"`
}

func (c *Client) SetWebhook(ctx context.Context, url, secret string) error {
	return c.call(ctx, "setWebhook", setWebhookParams{URL: url, SecretToken: secret}, nil, true)
}

func (c *Client) DeleteWebhook(ctx context.Context) error {
	return c.call(ctx, "deleteWebhook", struct{}{}, nil, true)
}

func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var u User
	if err := c.call(ctx, "getMe", struct{}{}, &u, true); err != nil {
		return nil, err
	}
	return &u, nil
}

// Deliver 实现 messenger.Messenger
func (c *Client) Deliver(ctx context.Context, target int64, body string) (int64, error) {
	msg, err := c.SendMessage(ctx, target, body, nil)
	if err != nil {
		return 0, err
	}
	return msg.MessageID, nil
}

// Notify 把 Action 渲染成 inline 按钮，回调数据即 Action.Data()
func (c *Client) Notify(ctx context.Context, target int64, body string, actions []messenger.Action) error {
	var markup *InlineKeyboardMarkup
	if len(actions) > 0 {
		row := make([]InlineKeyboardButton, 0, len(actions))
		for _, a := range actions {
			row = append(row, Button(ActionLabel(a.Verb), a.Data()))
		}
		markup = Keyboard(row)
	}
	_, err := c.SendMessage(ctx, target, body, markup)
	return err
}

func ActionLabel(v messenger.Verb) string {
	switch v {
	case messenger.VerbBan:
		return "🚫 Ban sender"
	case messenger.VerbDismiss:
		return "✅ Dismiss report"
	default:
		return string(v)
	}
}

type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }

func redact(err error, token string) error {
	if token == "" || !strings.Contains(err.Error(), token) {
		return err
	}
	return &redactedError{msg: strings.ReplaceAll(err.Error(), token, "<token>"), err: err}
}

// retryLogger 把 retryablehttp 的日志接到 zap
type retryLogger struct{}

func (retryLogger) Error(msg string, kv ...interface{}) { logger.L().Sugar().Errorw(msg, kv...) }
func (retryLogger) Info(msg string, kv ...interface{})  { logger.L().Sugar().Debugw(msg, kv...) }
func (retryLogger) Debug(msg string, kv ...interface{}) { logger.L().Sugar().Debugw(msg, kv...) }
func (retryLogger) Warn(msg string, kv ...interface{})  { logger.L().Sugar().Warnw(msg, kv...) }

var _ retryablehttp.LeveledLogger = retryLogger{}

func logUpdateError(u Update, err error) {
	logger.Warn("telegram update failed", zap.Int64("update_id", u.UpdateID), zap.Error(err))
}

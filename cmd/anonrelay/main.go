package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/d60-Lab/anonrelay/config"
	"github.com/d60-Lab/anonrelay/internal/api"
	"github.com/d60-Lab/anonrelay/internal/api/handler"
	"github.com/d60-Lab/anonrelay/internal/api/middleware"
	"github.com/d60-Lab/anonrelay/internal/bot"
	"github.com/d60-Lab/anonrelay/internal/messenger"
	"github.com/d60-Lab/anonrelay/internal/repository"
	"github.com/d60-Lab/anonrelay/internal/reputation"
	"github.com/d60-Lab/anonrelay/internal/service"
	"github.com/d60-Lab/anonrelay/internal/session"
	"github.com/d60-Lab/anonrelay/internal/telegram"
	"github.com/d60-Lab/anonrelay/pkg/database"
	"github.com/d60-Lab/anonrelay/pkg/logger"
	"github.com/d60-Lab/anonrelay/pkg/tracing"
)

// @title anonrelay API
// @version 1.0
// @description Anonymous relay admin and integration API.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "anonrelay:", err)
		os.Exit(1)
	}
}

type stopFunc func(context.Context) error

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := logger.Init(cfg.Log); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return err
	}

	sentryEnabled := cfg.Sentry.DSN != ""
	if sentryEnabled {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.Sentry.DSN, Environment: cfg.Sentry.Environment}); err != nil {
			return fmt.Errorf("init sentry: %w", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	db, err := database.InitDB(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = database.Close(db) }()
	if err := repository.AutoMigrate(db); err != nil {
		return err
	}

	tiers, err := buildTiers(cfg.Reputation)
	if err != nil {
		return err
	}
	reg := repository.NewRegistry(db, tiers)

	sessions, closeSessions, err := buildSessions(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer closeSessions()

	// 客户端：没有 token 的 bot 退化为内存 messenger，只能通过 HTTP 接口驱动
	mainClient := newClient(cfg.Telegram, cfg.Telegram.MainToken)
	reviewClient := newClient(cfg.Telegram, cfg.Telegram.ReviewToken)
	if reviewClient == nil {
		reviewClient = mainClient
	}

	offline := messenger.NewOffline()
	var deliverer, notices messenger.Messenger = offline, offline
	if mainClient != nil {
		deliverer = mainClient
	}
	if reviewClient != nil {
		notices = reviewClient
	}
	if mainClient == nil {
		logger.Warn("telegram.main_token is empty, deliveries stay in memory")
	}
	if reviewClient == nil {
		logger.Warn("no telegram token configured, report notices will fail")
	}

	username := cfg.Telegram.MainUsername
	if username == "" && mainClient != nil && cfg.Telegram.Mode != "off" {
		me, err := mainClient.GetMe(ctx)
		if err != nil {
			return fmt.Errorf("resolve main bot username: %w", err)
		}
		username = me.Username
	}

	notifier := service.NewNotifier(notices, cfg.Moderation.NotifyTimeout)
	relay := service.NewRelay(reg, deliverer, cfg.Relay.DeliverTimeout)
	moderation := service.NewModeration(reg, notifier, cfg.Moderation.Admins, cfg.Moderation.ReportBanReason)
	admin := service.NewAdmin(reg, cfg.Moderation.DefaultBanReason)
	account := service.NewAccount(reg, username)

	dispatcher := service.NewDispatcher(cfg.Telegram.QueueSize, cfg.Telegram.RequestTimeout)
	stops := []stopFunc{dispatcher.Start(cfg.Telegram.Workers)}

	handlers := map[string]telegram.UpdateHandler{}
	sources := map[string]*telegram.Client{}
	if mainClient != nil {
		mainBot := bot.NewMain(mainClient, relay, moderation, account, sessions)
		if cfg.Telegram.ReviewToken == "" {
			// 通知由主 bot 发出，按钮回调也只会回到主 bot
			mainBot.WithReviewActions(bot.NewReview(mainClient, moderation, admin, cfg.Moderation.Admins))
		}
		handlers["main"] = mainBot.HandleUpdate
		sources["main"] = mainClient
	}
	if cfg.Telegram.ReviewToken != "" {
		handlers["review"] = bot.NewReview(reviewClient, moderation, admin, cfg.Moderation.Admins).HandleUpdate
		sources["review"] = reviewClient
	}

	switch cfg.Telegram.Mode {
	case "polling":
		for name, client := range sources {
			// 设置了 webhook 时 getUpdates 会被拒绝
			if err := client.DeleteWebhook(ctx); err != nil {
				return fmt.Errorf("delete %s webhook: %w", name, err)
			}
			p := telegram.NewPoller(name, client, enqueue(dispatcher, name, handlers[name]), cfg.Telegram.PollTimeout, cfg.Telegram.PollInterval)
			stops = append(stops, p.Start())
		}
	case "webhook":
		if base := strings.TrimRight(cfg.Telegram.WebhookURL, "/"); base != "" {
			for name, client := range sources {
				if err := client.SetWebhook(ctx, base+"/telegram/"+name, cfg.Telegram.WebhookSecret); err != nil {
					return fmt.Errorf("set %s webhook: %w", name, err)
				}
			}
		}
	}

	issuer, err := middleware.NewTokenIssuer(cfg.Server.JWTSecret, cfg.Server.TokenTTL)
	if err != nil {
		return fmt.Errorf("server.jwt_secret: %w", err)
	}
	h := handler.New(handler.Options{
		Relay:         relay,
		Moderation:    moderation,
		Admin:         admin,
		Account:       account,
		Issuer:        issuer,
		Admins:        cfg.Moderation.Admins,
		PasswordHash:  cfg.Server.AdminPasswordHash,
		Dispatcher:    dispatcher,
		Webhooks:      webhookHandlers(cfg.Telegram.Mode, handlers),
		WebhookSecret: cfg.Telegram.WebhookSecret,
	})
	serviceName := ""
	if cfg.Tracing.Enabled {
		serviceName = cfg.Tracing.ServiceName
	}
	router := api.NewRouter(api.RouterConfig{Mode: cfg.Server.Mode, ServiceName: serviceName, SentryEnabled: sentryEnabled}, h, issuer)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr), zap.String("telegram_mode", cfg.Telegram.Mode))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			logger.Error("http server failed", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	// 先停 poller 再停 dispatcher，保证已入队的 update 被处理完
	for i := len(stops) - 1; i >= 0; i-- {
		if err := stops[i](shutdownCtx); err != nil {
			logger.Warn("stop worker", zap.Error(err))
		}
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("tracing shutdown", zap.Error(err))
	}
	return nil
}

func buildTiers(cfg config.ReputationConfig) (*reputation.Table, error) {
	levels := make([]reputation.Level, 0, len(cfg.Tiers))
	for _, t := range cfg.Tiers {
		levels = append(levels, reputation.Level{Threshold: t.Threshold, Label: t.Label})
	}
	return reputation.New(levels, cfg.MaxLabel)
}

// buildSessions 配置了 redis 时跨实例共享撰写状态，否则进程内保存
func buildSessions(ctx context.Context, cfg config.RedisConfig) (session.Store, func(), error) {
	if cfg.Addr == "" {
		return session.NewMemoryStore(cfg.SessionTTL), func() {}, nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	return session.NewRedisStore(rdb, cfg.SessionTTL), func() { _ = rdb.Close() }, nil
}

func newClient(cfg config.TelegramConfig, token string) *telegram.Client {
	if token == "" {
		return nil
	}
	return telegram.NewClient(telegram.Config{
		APIBase:   cfg.APIBase,
		Token:     token,
		Timeout:   cfg.RequestTimeout,
		RetryMax:  cfg.RetryMax,
		RateLimit: cfg.RateLimit,
	})
}

// enqueue 轮询到的 update 交给 dispatcher，poller 不被慢处理阻塞
func enqueue(d *service.Dispatcher, name string, handle telegram.UpdateHandler) telegram.UpdateHandler {
	return func(_ context.Context, u telegram.Update) error {
		if !d.Enqueue("telegram."+name, func(ctx context.Context) error { return handle(ctx, u) }) {
			return fmt.Errorf("dispatcher queue full, update %d dropped", u.UpdateID)
		}
		return nil
	}
}

func webhookHandlers(mode string, handlers map[string]telegram.UpdateHandler) map[string]telegram.UpdateHandler {
	if mode != "webhook" {
		return nil
	}
	return handlers
}

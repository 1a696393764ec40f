package telegram

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/d60-Lab/anonrelay/pkg/logger"
)

// UpdateHandler 处理一条 update；返回的错误只记录日志
type UpdateHandler func(ctx context.Context, u Update) error

type updatesSource interface {
	GetUpdates(ctx context.Context, offset int64, timeout int) ([]Update, error)
}

// Poller getUpdates 长轮询；出错后按 interval 退避
type Poller struct {
	name     string
	src      updatesSource
	handle   UpdateHandler
	timeout  int
	interval time.Duration
	offset   int64
}

func NewPoller(name string, src updatesSource, handle UpdateHandler, timeout int, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = time.Second
	}
	return &Poller{name: name, src: src, handle: handle, timeout: timeout, interval: interval}
}

// Start 后台运行，返回停止函数
func (p *Poller) Start() func(context.Context) error {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx)
	}()
	return func(stopCtx context.Context) error {
		cancel()
		select {
		case <-done:
			return nil
		case <-stopCtx.Done():
			return stopCtx.Err()
		}
	}
}

func (p *Poller) Run(ctx context.Context) {
	logger.Info("telegram poller started", zap.String("bot", p.name))
	defer logger.Info("telegram poller stopped", zap.String("bot", p.name))
	for {
		if ctx.Err() != nil {
			return
		}
		if err := p.pollOnce(ctx); err != nil {
			if errors.Is(err, context.Canceled) && ctx.Err() != nil {
				return
			}
			logger.Warn("telegram poll failed", zap.String("bot", p.name), zap.Error(err))
			timer := time.NewTimer(p.interval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}
	}
}

// pollOnce 拉取一批并逐条处理，offset 在处理后前移
func (p *Poller) pollOnce(ctx context.Context) error {
	updates, err := p.src.GetUpdates(ctx, p.offset, p.timeout)
	if err != nil {
		return err
	}
	for _, u := range updates {
		if u.UpdateID >= p.offset {
			p.offset = u.UpdateID + 1
		}
		if err := p.handle(ctx, u); err != nil {
			logUpdateError(u, err)
		}
	}
	return nil
}

// Offset 下一次 getUpdates 使用的 offset
func (p *Poller) Offset() int64 { return p.offset }

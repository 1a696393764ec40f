package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/d60-Lab/anonrelay/pkg/logger"
)

type dispatchJob struct {
	name  string
	run   func(ctx context.Context) error
	enqAt time.Time
}

// Dispatcher 入站更新的本地异步执行器：有界队列 + 固定数量 worker
type Dispatcher struct {
	ch         chan dispatchJob
	jobTimeout time.Duration
}

func NewDispatcher(queueSize int, jobTimeout time.Duration) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 10000
	}
	if jobTimeout <= 0 {
		jobTimeout = 30 * time.Second
	}
	return &Dispatcher{ch: make(chan dispatchJob, queueSize), jobTimeout: jobTimeout}
}

// Start 启动 worker，返回停止函数；停止时先排空队列再退出
func (d *Dispatcher) Start(workers int) func(context.Context) error {
	if workers <= 0 {
		workers = 4
	}
	stopCh := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case job := <-d.ch:
					d.handle(job)
				case <-stopCh:
					for {
						select {
						case job := <-d.ch:
							d.handle(job)
						default:
							return
						}
					}
				}
			}
		}()
	}
	var once sync.Once
	return func(ctx context.Context) error {
		once.Do(func() { close(stopCh) })
		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			logger.Warn("dispatcher stop timed out", zap.Int("queued", len(d.ch)))
			return ctx.Err()
		}
	}
}

func (d *Dispatcher) handle(job dispatchJob) {
	ctx, cancel := context.WithTimeout(context.Background(), d.jobTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("dispatch job panic", zap.String("job", job.name), zap.Any("panic", r))
		}
	}()
	if err := job.run(ctx); err != nil {
		logger.Warn("dispatch job failed", zap.String("job", job.name), zap.Error(err))
	}
	dispatchLatency.Observe(time.Since(job.enqAt).Seconds())
}

// Enqueue 队列满时丢弃并返回 false
func (d *Dispatcher) Enqueue(name string, run func(ctx context.Context) error) bool {
	select {
	case d.ch <- dispatchJob{name: name, run: run, enqAt: time.Now()}:
		return true
	default:
		dispatchQueueDropped.Inc()
		logger.Warn("dispatcher queue full, drop job", zap.String("job", name))
		return false
	}
}

// QueueLen 返回当前队列长度（采样值）。
func (d *Dispatcher) QueueLen() int { return len(d.ch) }

package messenger

import (
	"context"
	"errors"
	"sync"
)

var ErrUnreachable = errors.New("target unreachable")

// Sent 一次成功的投递或通知
type Sent struct {
	Target    int64
	Body      string
	Actions   []Action
	MessageID int64
}

// Fake 内存实现，供测试和本地无传输运行使用。
// Fail 中的 target 会返回 ErrUnreachable。
type Fake struct {
	mu      sync.Mutex
	nextID  int64
	fail    map[int64]bool
	sent    []Sent
	notices []Sent
}

func NewFake() *Fake {
	return &Fake{nextID: 1000, fail: make(map[int64]bool)}
}

func (f *Fake) Fail(targets ...int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range targets {
		f.fail[t] = true
	}
}

func (f *Fake) Recover(targets ...int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range targets {
		delete(f.fail, t)
	}
}

func (f *Fake) Deliver(ctx context.Context, target int64, body string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[target] {
		return 0, ErrUnreachable
	}
	f.nextID++
	f.sent = append(f.sent, Sent{Target: target, Body: body, MessageID: f.nextID})
	return f.nextID, nil
}

func (f *Fake) Notify(ctx context.Context, target int64, body string, actions []Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[target] {
		return ErrUnreachable
	}
	f.nextID++
	f.notices = append(f.notices, Sent{Target: target, Body: body, Actions: append([]Action(nil), actions...), MessageID: f.nextID})
	return nil
}

func (f *Fake) Delivered() []Sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Sent(nil), f.sent...)
}

func (f *Fake) Notices() []Sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Sent(nil), f.notices...)
}

// ErrNoTransport 未配置任何 bot token 时 Notify 的返回值
var ErrNoTransport = errors.New("no transport configured")

// Offline 没有 bot token 时使用：投递留在内存里，通知一律失败，
// 举报因此以 Notified=false 返回而不是假装管理员已收到
type Offline struct {
	*Fake
}

func NewOffline() *Offline { return &Offline{Fake: NewFake()} }

func (o *Offline) Notify(ctx context.Context, target int64, body string, actions []Action) error {
	return ErrNoTransport
}

// Package messenger 定义投递与管理员通知的传输能力。
// 核心逻辑只依赖这里的接口，Telegram 客户端和测试替身都实现它。
package messenger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Messenger 向某个用户投递文本，返回传输层消息 ID
type Messenger interface {
	Deliver(ctx context.Context, target int64, body string) (int64, error)
	// Notify 附带一组可回调的操作按钮
	Notify(ctx context.Context, target int64, body string, actions []Action) error
}

type Verb string

const (
	VerbBan     Verb = "ban"
	VerbDismiss Verb = "dismiss"
)

var ErrInvalidAction = errors.New("invalid action")

// Action 管理员对某个举报的操作，编码为 "ban:<id>" / "dismiss:<id>"
type Action struct {
	Verb     Verb
	ReportID int64
}

func (a Action) Data() string {
	return string(a.Verb) + ":" + strconv.FormatInt(a.ReportID, 10)
}

func (a Action) String() string { return a.Data() }

// ReportActions 举报通知附带的两个按钮
func ReportActions(reportID int64) []Action {
	return []Action{{Verb: VerbBan, ReportID: reportID}, {Verb: VerbDismiss, ReportID: reportID}}
}

// ParseAction 只接受 ban / dismiss 与正整数 ID
func ParseAction(data string) (Action, error) {
	verb, id, ok := strings.Cut(data, ":")
	if !ok {
		return Action{}, fmt.Errorf("%w: %q", ErrInvalidAction, data)
	}
	v := Verb(verb)
	if v != VerbBan && v != VerbDismiss {
		return Action{}, fmt.Errorf("%w: unknown verb %q", ErrInvalidAction, verb)
	}
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil || n <= 0 {
		return Action{}, fmt.Errorf("%w: bad report id %q", ErrInvalidAction, id)
	}
	return Action{Verb: v, ReportID: n}, nil
}

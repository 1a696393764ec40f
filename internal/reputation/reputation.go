// Package reputation 根据收到的消息数计算称号，表来自配置，构造时校验一次
package reputation

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrEmptyTable   = errors.New("reputation: table has no levels")
	ErrNoZeroLevel  = errors.New("reputation: table must define a threshold 0 level")
	ErrBadThreshold = errors.New("reputation: thresholds must be non-negative and unique")
	ErrEmptyLabel   = errors.New("reputation: level label must not be empty")
)

// Level 一行 (阈值, 称号)
type Level struct {
	Threshold int64
	Label     string
}

// Next 距离下一档称号的进度
type Next struct {
	Label     string
	Threshold int64
	Remaining int64
	// 已达到最高档
	Max bool
}

// Table 按阈值升序、不可变
type Table struct {
	levels   []Level
	maxLabel string
}

// New 校验并排序；maxLabel 是达到最高档后 NextTier 返回的称号
func New(levels []Level, maxLabel string) (*Table, error) {
	if len(levels) == 0 {
		return nil, ErrEmptyTable
	}
	sorted := append([]Level(nil), levels...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Threshold < sorted[j].Threshold })

	for i, l := range sorted {
		if l.Threshold < 0 || (i > 0 && l.Threshold == sorted[i-1].Threshold) {
			return nil, fmt.Errorf("%w: %d", ErrBadThreshold, l.Threshold)
		}
		if l.Label == "" {
			return nil, ErrEmptyLabel
		}
	}
	if sorted[0].Threshold != 0 {
		return nil, ErrNoZeroLevel
	}
	return &Table{levels: sorted, maxLabel: maxLabel}, nil
}

// MustNew 测试与静态默认值用
func MustNew(levels []Level, maxLabel string) *Table {
	t, err := New(levels, maxLabel)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *Table) Levels() []Level { return append([]Level(nil), t.levels...) }

// Lowest 阈值 0 的称号
func (t *Table) Lowest() string { return t.levels[0].Label }

// Rank 从 0 开始的档位下标，bot 显示为星级
func (t *Table) Rank(count int64) int {
	// 第一个阈值大于 count 的下标减一
	i := sort.Search(len(t.levels), func(i int) bool { return t.levels[i].Threshold > count })
	if i == 0 {
		return 0
	}
	return i - 1
}

// TierFor 阈值 <= count 的最大一档；负数落在最低档
func (t *Table) TierFor(count int64) string {
	return t.levels[t.Rank(count)].Label
}

// NextTier 严格大于 count 的最小阈值
func (t *Table) NextTier(count int64) Next {
	i := sort.Search(len(t.levels), func(i int) bool { return t.levels[i].Threshold > count })
	if i == len(t.levels) {
		return Next{Label: t.maxLabel, Max: true}
	}
	l := t.levels[i]
	return Next{Label: l.Label, Threshold: l.Threshold, Remaining: l.Threshold - count}
}

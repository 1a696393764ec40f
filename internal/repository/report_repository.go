package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/d60-Lab/anonrelay/internal/model"
)

type ReportRepository interface {
	Create(ctx context.Context, rep *model.Report) error
	Get(ctx context.Context, id int64) (*model.Report, error)
	// Transition 带 status = 'pending' 守卫的 CAS 更新；守卫失败返回 false
	Transition(ctx context.Context, id int64, to model.ReportStatus, at time.Time) (bool, error)
	// ListPending FIFO 审核队列
	ListPending(ctx context.Context, limit int) ([]*model.Report, error)
	CountByStatus(ctx context.Context) (map[model.ReportStatus]int64, error)
}

type reportRepository struct {
	db *gorm.DB
}

func NewReportRepository(db *gorm.DB) ReportRepository { return &reportRepository{db: db} }

func (r *reportRepository) Create(ctx context.Context, rep *model.Report) error {
	if rep.Status == "" {
		rep.Status = model.ReportPending
	}
	return r.db.WithContext(ctx).Create(rep).Error
}

func (r *reportRepository) Get(ctx context.Context, id int64) (*model.Report, error) {
	var rep model.Report
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&rep).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrReportNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rep, nil
}

func (r *reportRepository) Transition(ctx context.Context, id int64, to model.ReportStatus, at time.Time) (bool, error) {
	if !model.ReportPending.CanTransition(to) {
		return false, errors.New("invalid report transition to " + string(to))
	}
	res := r.db.WithContext(ctx).
		Model(&model.Report{}).
		Where("id = ? AND status = ?", id, model.ReportPending).
		Updates(map[string]interface{}{"status": to, "reviewed_at": at})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *reportRepository) ListPending(ctx context.Context, limit int) ([]*model.Report, error) {
	var res []*model.Report
	err := r.db.WithContext(ctx).
		Where("status = ?", model.ReportPending).
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&res).Error
	return res, err
}

func (r *reportRepository) CountByStatus(ctx context.Context) (map[model.ReportStatus]int64, error) {
	var rows []struct {
		Status model.ReportStatus
		Count  int64
	}
	err := r.db.WithContext(ctx).
		Model(&model.Report{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[model.ReportStatus]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Count
	}
	return out, nil
}

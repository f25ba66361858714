package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"aliasmail/backend/internal/config"
	"aliasmail/backend/internal/domain"
	"aliasmail/backend/internal/monitoring"
)

// ActivityStore 活动服务依赖的存储
type ActivityStore interface {
	ListAliasLogs(ctx context.Context, aliasID uint, offset, limit int) ([]domain.AliasLog, error)
}

// ActivityService 将邮件日志转换为带方向的活动列表
type ActivityService struct {
	guard     AliasGuard
	store     ActivityStore
	pageLimit int
	metrics   *monitoring.Metrics
	log       *zap.Logger
}

// NewActivityService 创建活动服务
func NewActivityService(guard AliasGuard, store ActivityStore, cfg config.AliasConfig, metrics *monitoring.Metrics, log *zap.Logger) *ActivityService {
	return &ActivityService{
		guard:     guard,
		store:     store,
		pageLimit: pageLimitOrDefault(cfg.PageLimit),
		metrics:   metrics,
		log:       log,
	}
}

// List 返回别名的活动，最新的在前
func (s *ActivityService) List(ctx context.Context, user *domain.User, aliasID uint, page int) ([]domain.Activity, error) {
	offset, err := pageOffset(page, s.pageLimit)
	if err != nil {
		return nil, err
	}
	alias, err := s.guard.Authorize(ctx, user, aliasID)
	if err != nil {
		return nil, err
	}

	logs, err := s.store.ListAliasLogs(ctx, alias.ID, offset, s.pageLimit)
	if err != nil {
		return nil, fmt.Errorf("list alias logs: %w", err)
	}

	activities := make([]domain.Activity, 0, len(logs))
	for i := range logs {
		activity := domain.NewActivity(alias.Email, &logs[i])
		s.metrics.RecordActivity(string(activity.Action))
		activities = append(activities, activity)
	}
	return activities, nil
}

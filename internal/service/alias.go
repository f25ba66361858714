package service

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"aliasmail/backend/internal/config"
	"aliasmail/backend/internal/domain"
	"aliasmail/backend/internal/monitoring"
	"aliasmail/backend/internal/storage"
)

// AliasGuard 检查调用方对别名的所有权
type AliasGuard interface {
	Authorize(ctx context.Context, user *domain.User, aliasID uint) (*domain.Alias, error)
}

// AliasStore 别名服务依赖的存储
type AliasStore interface {
	storage.AliasRepository
	CountLogFlags(ctx context.Context, aliasIDs []uint) ([]domain.LogFlagCount, error)
}

// AliasService 封装别名的查询与变更逻辑。
type AliasService struct {
	store     AliasStore
	pageLimit int
	metrics   *monitoring.Metrics
	log       *zap.Logger
}

var _ AliasGuard = (*AliasService)(nil)

// NewAliasService 创建别名业务服务。
func NewAliasService(store AliasStore, cfg config.AliasConfig, metrics *monitoring.Metrics, log *zap.Logger) *AliasService {
	return &AliasService{
		store:     store,
		pageLimit: pageLimitOrDefault(cfg.PageLimit),
		metrics:   metrics,
		log:       log,
	}
}

// Authorize 返回属于 user 的别名。
// 别名不存在与不属于该用户都返回 ErrForbidden，仅在日志中区分。
func (s *AliasService) Authorize(ctx context.Context, user *domain.User, aliasID uint) (*domain.Alias, error) {
	alias, err := s.store.GetAlias(ctx, aliasID)
	if err != nil {
		if errors.Is(err, storage.ErrAliasNotFound) {
			s.log.Debug("alias not found", zap.Uint("alias_id", aliasID), zap.Uint("user_id", user.ID))
			return nil, ErrForbidden
		}
		return nil, fmt.Errorf("get alias %d: %w", aliasID, err)
	}

	if !alias.OwnedBy(user.ID) {
		s.log.Debug("alias owned by another user", zap.Uint("alias_id", aliasID), zap.Uint("user_id", user.ID))
		return nil, ErrForbidden
	}
	return alias, nil
}

// List 返回用户自己的别名（最新的在前），附带转发、拦截和回复计数。
func (s *AliasService) List(ctx context.Context, user *domain.User, page int) ([]domain.AliasSummary, error) {
	offset, err := pageOffset(page, s.pageLimit)
	if err != nil {
		return nil, err
	}

	aliases, err := s.store.ListAliasesByUser(ctx, user.ID, offset, s.pageLimit)
	if err != nil {
		return nil, fmt.Errorf("list aliases: %w", err)
	}
	if len(aliases) == 0 {
		return []domain.AliasSummary{}, nil
	}

	ids := make([]uint, len(aliases))
	for i, alias := range aliases {
		ids[i] = alias.ID
	}
	counts, err := s.store.CountLogFlags(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("count alias logs: %w", err)
	}

	summaries := make([]domain.AliasSummary, len(aliases))
	index := make(map[uint]*domain.AliasSummary, len(aliases))
	for i, alias := range aliases {
		summaries[i] = domain.AliasSummary{Alias: alias}
		index[alias.ID] = &summaries[i]
	}
	for _, c := range counts {
		summary, ok := index[c.AliasID]
		if !ok {
			continue
		}
		// 退信不计入任何一项
		switch domain.Classify(domain.LogFlags{IsReply: c.IsReply, Bounced: c.Bounced, Blocked: c.Blocked}) {
		case domain.ActionForward:
			summary.NbForward += c.Count
		case domain.ActionBlock:
			summary.NbBlock += c.Count
		case domain.ActionReply:
			summary.NbReply += c.Count
		}
	}
	return summaries, nil
}

// Toggle 翻转别名的启用状态
func (s *AliasService) Toggle(ctx context.Context, user *domain.User, aliasID uint) (*domain.Alias, error) {
	if _, err := s.Authorize(ctx, user, aliasID); err != nil {
		return nil, err
	}

	alias, err := s.store.ToggleAlias(ctx, aliasID, user.ID)
	if err != nil {
		return nil, s.mutationError(err, "toggle alias")
	}
	s.metrics.RecordAliasMutation("toggle")
	return alias, nil
}

// UpdateNote 用 note 替换备注，nil 表示清空
func (s *AliasService) UpdateNote(ctx context.Context, user *domain.User, aliasID uint, note *string) (*domain.Alias, error) {
	if _, err := s.Authorize(ctx, user, aliasID); err != nil {
		return nil, err
	}

	alias, err := s.store.UpdateAliasNote(ctx, aliasID, user.ID, note)
	if err != nil {
		return nil, s.mutationError(err, "update alias note")
	}
	s.metrics.RecordAliasMutation("update")
	return alias, nil
}

// Delete 删除别名，联系人与日志由存储层级联删除
func (s *AliasService) Delete(ctx context.Context, user *domain.User, aliasID uint) error {
	if _, err := s.Authorize(ctx, user, aliasID); err != nil {
		return err
	}

	if err := s.store.DeleteAlias(ctx, aliasID, user.ID); err != nil {
		return s.mutationError(err, "delete alias")
	}
	s.metrics.RecordAliasMutation("delete")
	s.log.Info("alias deleted", zap.Uint("alias_id", aliasID), zap.Uint("user_id", user.ID))
	return nil
}

// mutationError 检查之后别名被并发删除时同样按无权限处理
func (s *AliasService) mutationError(err error, op string) error {
	if errors.Is(err, storage.ErrAliasNotFound) {
		return ErrForbidden
	}
	return fmt.Errorf("%s: %w", op, err)
}

// pageOffset 根据页码计算偏移量，乘积溢出时取 math.MaxInt，保证超出范围的页返回空列表
func pageOffset(page, limit int) (int, error) {
	if page < 0 {
		return 0, ErrInvalidPage
	}
	if limit > 0 && page > math.MaxInt/limit {
		return math.MaxInt, nil
	}
	return page * limit, nil
}

func pageLimitOrDefault(limit int) int {
	if limit <= 0 {
		return 20
	}
	return limit
}

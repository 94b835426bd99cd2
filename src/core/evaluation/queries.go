package evaluation

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"qa-compass-server/src/core/cache"
	"qa-compass-server/src/core/errs"
	"qa-compass-server/src/core/utils"
	"qa-compass-server/src/models"

	"gorm.io/gorm"
)

// 列表分页限制
const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// List 按创建时间倒序分页查询，结果经读穿缓存
func (r *Reconciler) List(ctx context.Context, p models.EvaluationListParams) ([]models.Evaluation, error) {
	if p.Limit <= 0 {
		p.Limit = DefaultListLimit
	}
	p.Limit = utils.ClampInt(p.Limit, 1, MaxListLimit)
	if p.Offset < 0 {
		p.Offset = 0
	}

	params := url.Values{}
	params.Set("limit", strconv.Itoa(p.Limit))
	params.Set("offset", strconv.Itoa(p.Offset))
	if p.Reviewed != nil {
		params.Set("reviewed", strconv.FormatBool(*p.Reviewed))
	}
	if p.Status != "" {
		params.Set("status", p.Status)
	}

	return cache.List(ctx, r.cache, cache.EvaluationsListKey(params), r.ttl.List, func(ctx context.Context) ([]models.Evaluation, error) {
		q := r.db.WithContext(ctx).Model(&models.Evaluation{})
		if p.Reviewed != nil {
			q = q.Where("reviewed = ?", *p.Reviewed)
		}
		if p.Status != "" {
			q = q.Where("status = ?", p.Status)
		}
		var rows []models.Evaluation
		if err := q.Order("created_at DESC, id DESC").Limit(p.Limit).Offset(p.Offset).Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("查询评估列表失败: %w", err)
		}
		return rows, nil
	})
}

// Get 按会话 ID 查询单条评估
func (r *Reconciler) Get(ctx context.Context, conversationID string) (*models.Evaluation, error) {
	return cache.Item(ctx, r.cache, cache.EvaluationDetailKey(conversationID), r.ttl.Detail, func(ctx context.Context) (*models.Evaluation, error) {
		var ev models.Evaluation
		err := r.db.WithContext(ctx).Where("conversation_id = ?", conversationID).First(&ev).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NewNotFound("evaluation", conversationID)
		}
		if err != nil {
			return nil, fmt.Errorf("查询评估失败: %w", err)
		}
		return &ev, nil
	})
}

// ClearCache 删除所有评估相关缓存
func (r *Reconciler) ClearCache(ctx context.Context) int {
	return r.cache.InvalidatePattern(ctx, cache.EvaluationsPattern)
}

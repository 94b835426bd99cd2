// Package conversation 从只读的旧系统库中拉取待评估会话
package conversation

import (
	"context"
	"fmt"

	"qa-compass-server/src/core/errs"
	"qa-compass-server/src/core/utils"
	"qa-compass-server/src/models"

	"gorm.io/gorm"
)

// MaxBatch 单次评估最多处理的会话数
const MaxBatch = 20

// Query 显式 ID 非空时为显式模式，否则按 Limit 自动选取最近会话
type Query struct {
	ConversationIDs []string
	Limit           int
}

// Source 会话来源接口
type Source interface {
	Fetch(ctx context.Context, q Query) ([]models.Conversation, error)
}

// DefaultSource 读取 conversation 表
type DefaultSource struct {
	db       *gorm.DB
	logger   *utils.Logger
	maxBatch int
}

// NewSource 创建会话来源，maxBatch 不能超过 MaxBatch
func NewSource(db *gorm.DB, logger *utils.Logger, maxBatch int) *DefaultSource {
	return &DefaultSource{db: db, logger: logger, maxBatch: utils.ClampInt(maxBatch, 1, MaxBatch)}
}

// Fetch 拉取会话，空结果返回 errs.ErrNoConversations
func (s *DefaultSource) Fetch(ctx context.Context, q Query) ([]models.Conversation, error) {
	var (
		rows []models.Conversation
		err  error
	)
	if len(q.ConversationIDs) > 0 {
		rows, err = s.fetchByIDs(ctx, q.ConversationIDs)
	} else {
		rows, err = s.fetchLatest(ctx, q.Limit)
	}
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errs.ErrNoConversations
	}
	return rows, nil
}

func (s *DefaultSource) fetchByIDs(ctx context.Context, ids []string) ([]models.Conversation, error) {
	if len(ids) > s.maxBatch {
		return nil, errs.NewInput(fmt.Sprintf("conversation_ids exceeds %d", s.maxBatch), errs.ErrTooManyConversations)
	}

	wanted := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		wanted = append(wanted, id)
	}

	var found []models.Conversation
	err := s.db.WithContext(ctx).
		Where("conversation_id IN ?", wanted).
		Order("created_at DESC, id DESC").
		Find(&found).Error
	if err != nil {
		s.logger.Error("按ID查询会话失败: %v", err)
		return nil, fmt.Errorf("fetch conversations by id: %w", err)
	}

	// 同一 conversation_id 有多行时取最新一行，结果按请求顺序排列
	byID := make(map[string]models.Conversation, len(found))
	for _, c := range found {
		if _, ok := byID[c.ConversationID]; !ok {
			byID[c.ConversationID] = c
		}
	}
	out := make([]models.Conversation, 0, len(wanted))
	for _, id := range wanted {
		if c, ok := byID[id]; ok {
			out = append(out, c)
		}
	}
	if dropped := len(wanted) - len(out); dropped > 0 {
		s.logger.Info("忽略 %d 个不存在的会话ID", dropped)
	}
	return out, nil
}

func (s *DefaultSource) fetchLatest(ctx context.Context, limit int) ([]models.Conversation, error) {
	limit = utils.ClampInt(limit, 1, s.maxBatch)

	var rows []models.Conversation
	err := s.db.WithContext(ctx).
		Where("customer_phone IS NOT NULL AND TRIM(customer_phone) <> ''").
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		s.logger.Error("查询最近会话失败: %v", err)
		return nil, fmt.Errorf("fetch latest conversations: %w", err)
	}
	return rows, nil
}

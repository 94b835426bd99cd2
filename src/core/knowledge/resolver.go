// Package knowledge 批量解析机器人最新版本的知识库
package knowledge

import (
	"context"
	"fmt"
	"sort"

	"qa-compass-server/src/core/utils"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Resolver 知识库解析接口
type Resolver interface {
	// Resolve 每个请求的编号返回一项，未知机器人或无版本时为空文档
	Resolve(ctx context.Context, indices []int64) (map[int64]datatypes.JSONMap, error)
}

// DefaultResolver 基于写库 bot_versions 表的实现
type DefaultResolver struct {
	db     *gorm.DB
	logger *utils.Logger
}

// NewResolver 创建知识库解析器
func NewResolver(db *gorm.DB, logger *utils.Logger) *DefaultResolver {
	return &DefaultResolver{db: db, logger: logger}
}

type latestRow struct {
	BotIndex      int64
	KnowledgeBase datatypes.JSONMap
}

// Resolve 单条查询取每个 bot_index 的最新版本：created_at 最大，相同时取 id 最大
func (r *DefaultResolver) Resolve(ctx context.Context, indices []int64) (map[int64]datatypes.JSONMap, error) {
	wanted := dedupe(indices)
	result := make(map[int64]datatypes.JSONMap, len(wanted))
	if len(wanted) == 0 {
		return result, nil
	}

	latest := r.db.Table("bot_versions AS latest").
		Select("latest.id").
		Where("latest.bot_index = v.bot_index").
		Order("latest.created_at DESC, latest.id DESC").
		Limit(1)

	var rows []latestRow
	err := r.db.WithContext(ctx).
		Table("bot_versions AS v").
		Select("v.bot_index, v.knowledge_base").
		Where("v.bot_index IN ?", wanted).
		Where("v.id = (?)", latest).
		Order("v.bot_index ASC").
		Scan(&rows).Error
	if err != nil {
		r.logger.Error("批量查询知识库失败: %v", err)
		return nil, fmt.Errorf("resolve knowledge: %w", err)
	}

	for _, row := range rows {
		if _, seen := result[row.BotIndex]; seen {
			continue
		}
		kb := row.KnowledgeBase
		if kb == nil {
			kb = datatypes.JSONMap{}
		}
		result[row.BotIndex] = kb
	}
	for _, idx := range wanted {
		if _, ok := result[idx]; !ok {
			result[idx] = datatypes.JSONMap{}
		}
	}

	r.logger.Debug("解析知识库: 请求 %d 个, 命中 %d 个", len(wanted), len(rows))
	return result, nil
}

func dedupe(indices []int64) []int64 {
	seen := make(map[int64]struct{}, len(indices))
	out := make([]int64, 0, len(indices))
	for _, idx := range indices {
		if _, ok := seen[idx]; ok {
			continue
		}
		seen[idx] = struct{}{}
		out = append(out, idx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

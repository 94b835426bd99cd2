// Package evaluation 批量评估编排与评估结果落库
package evaluation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"qa-compass-server/src/core/cache"
	"qa-compass-server/src/core/errs"
	"qa-compass-server/src/core/sanitize"
	"qa-compass-server/src/core/scoring"
	"qa-compass-server/src/core/utils"
	"qa-compass-server/src/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// 重新评估时覆盖的列，复核字段不在其中
var upsertColumns = []string{"memory", "evaluation_result", "score", "status", "issues", "updated_at"}

// Record 一条待落库的评估
type Record struct {
	ConversationID string
	BotMemory      *string
	Result         map[string]any
	Verdict        scoring.Verdict
}

// CacheTTL 读穿缓存过期时间
type CacheTTL struct {
	List   time.Duration
	Detail time.Duration
}

// Reconciler 评估结果的写入、复核与查询
type Reconciler struct {
	db     *gorm.DB
	cache  *cache.ReadThrough
	ttl    CacheTTL
	logger *utils.Logger
}

// NewReconciler rt 为空时不使用缓存
func NewReconciler(db *gorm.DB, rt *cache.ReadThrough, ttl CacheTTL, logger *utils.Logger) *Reconciler {
	if rt == nil {
		rt = cache.NewReadThrough(nil, logger)
	}
	return &Reconciler{db: db, cache: rt, ttl: ttl, logger: logger}
}

// Upsert 单事务按 conversation_id 覆盖写入；校验失败的条目在事务前剔除并返回，
// 事务失败时整批回滚并返回包装了 errs.ErrPersistence 的错误
func (r *Reconciler) Upsert(ctx context.Context, records []Record) (map[string]error, error) {
	rejected := make(map[string]error)
	rows := make([]models.Evaluation, 0, len(records))
	position := make(map[string]int, len(records))

	// 同一会话多次出现时保留最后一条
	for _, rec := range records {
		ev := toEvaluation(rec)
		if i, ok := position[ev.ConversationID]; ok {
			rows[i] = ev
			continue
		}
		position[ev.ConversationID] = len(rows)
		rows = append(rows, ev)
	}

	valid := rows[:0]
	for _, ev := range rows {
		if err := ev.Validate(); err != nil {
			rejected[ev.ConversationID] = fmt.Errorf("%w: %v", errs.ErrInvalidEvaluation, err)
			continue
		}
		valid = append(valid, ev)
	}
	rows = valid

	if len(rows) == 0 {
		return rejected, nil
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "conversation_id"}},
			DoUpdates: clause.AssignmentColumns(upsertColumns),
		}).Create(&rows).Error
	})
	if err != nil {
		r.logger.Error("评估结果落库失败 count=%d: %v", len(rows), err)
		return rejected, fmt.Errorf("%w: %v", errs.ErrPersistence, err)
	}

	keys := make([]string, 0, len(rows))
	for _, ev := range rows {
		keys = append(keys, cache.EvaluationDetailKey(ev.ConversationID))
	}
	r.cache.Invalidate(ctx, keys...)
	r.cache.InvalidatePattern(ctx, cache.EvaluationsListPattern)
	r.logger.Info("评估结果已落库 count=%d rejected=%d", len(rows), len(rejected))
	return rejected, nil
}

func toEvaluation(rec Record) models.Evaluation {
	issues := make([]models.EvaluationIssue, 0, len(rec.Verdict.Issues))
	for _, is := range rec.Verdict.Issues {
		issues = append(issues, models.EvaluationIssue{
			Criterion: sanitize.StripString(is.Criterion),
			Issue:     sanitize.StripString(is.Issue),
			Severity:  string(is.Severity),
		})
	}
	return models.Evaluation{
		ConversationID:   strings.TrimSpace(rec.ConversationID),
		Memory:           datatypes.JSONMap(sanitize.StripDocument(MemoryDocument(rec.BotMemory))),
		EvaluationResult: datatypes.JSONMap(sanitize.StripDocument(rec.Result)),
		Score:            rec.Verdict.Score,
		Status:           rec.Verdict.Status,
		Issues:           issues,
	}
}

// MemoryDocument 对象原样使用，其他 JSON 值与无法解析的文本放在 raw 字段下，空值为 {}
func MemoryDocument(raw *string) map[string]any {
	if raw == nil {
		return map[string]any{}
	}
	var v any
	if err := json.Unmarshal([]byte(*raw), &v); err != nil {
		return map[string]any{"raw": *raw}
	}
	switch t := v.(type) {
	case map[string]any:
		return t
	case nil:
		return map[string]any{}
	default:
		return map[string]any{"raw": t}
	}
}

// UpdateReview 更新人工复核字段，不影响评分列
func (r *Reconciler) UpdateReview(ctx context.Context, conversationID string, upd models.ReviewUpdate) (*models.Evaluation, error) {
	if upd.Reviewed == nil && upd.ReviewNote == nil {
		return nil, errs.NewInput("nothing to update", nil)
	}

	var ev models.Evaluation
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", conversationID).First(&ev).Error; err != nil {
			return err
		}
		updates := map[string]any{"updated_at": time.Now()}
		if upd.Reviewed != nil {
			updates["reviewed"] = *upd.Reviewed
		}
		if upd.ReviewNote != nil {
			updates["review_note"] = sanitize.StripString(*upd.ReviewNote)
		}
		if err := tx.Model(&ev).Updates(updates).Error; err != nil {
			return err
		}
		return tx.First(&ev, "id = ?", ev.ID).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.NewNotFound("evaluation", conversationID)
	}
	if err != nil {
		return nil, fmt.Errorf("更新复核信息失败: %w", err)
	}

	r.cache.Invalidate(ctx, cache.EvaluationDetailKey(conversationID))
	r.cache.InvalidatePattern(ctx, cache.EvaluationsListPattern)
	return &ev, nil
}

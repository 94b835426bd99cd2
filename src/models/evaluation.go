package models

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrEmptyConversationID = errors.New("conversation id cannot be empty")
	ErrEmptyMemory         = errors.New("memory cannot be empty")
	ErrEmptyResult         = errors.New("evaluation result cannot be empty")
)

// 评估状态
const (
	StatusGood = "good"
	StatusWarn = "warn"
	StatusBad  = "bad"
)

// EvaluationIssue 评分过程中发现的问题
type EvaluationIssue struct {
	Criterion string `json:"criterion"`
	Issue     string `json:"issue"`
	Severity  string `json:"severity"`
}

// Evaluation 每个会话至多一条，按 conversation_id 覆盖写入
type Evaluation struct {
	ID               uuid.UUID                            `gorm:"type:uuid;primaryKey" json:"id"`
	ConversationID   string                               `gorm:"type:text;uniqueIndex;not null" json:"conversation_id"`
	Memory           datatypes.JSONMap                    `gorm:"not null" json:"memory"`
	EvaluationResult datatypes.JSONMap                    `gorm:"not null" json:"evaluation_result"`
	Score            float64                              `json:"score"`
	Status           string                               `gorm:"type:varchar(8);index" json:"status"`
	Issues           datatypes.JSONSlice[EvaluationIssue] `json:"issues"`
	Reviewed         bool                                 `gorm:"not null;default:false" json:"reviewed"`
	ReviewNote       *string                              `gorm:"type:text" json:"review_note"`
	CreatedAt        time.Time                            `gorm:"index" json:"created_at"`
	UpdatedAt        time.Time                            `json:"updated_at"`
}

// TableName 指定Evaluation表名
func (Evaluation) TableName() string {
	return "evaluations"
}

// Validate 记忆与评估结果均不能为空
func (e *Evaluation) Validate() error {
	if strings.TrimSpace(e.ConversationID) == "" {
		return ErrEmptyConversationID
	}
	if len(e.Memory) == 0 {
		return ErrEmptyMemory
	}
	if len(e.EvaluationResult) == 0 {
		return ErrEmptyResult
	}
	return nil
}

// BeforeCreate 生成主键并校验
func (e *Evaluation) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return e.Validate()
}

// EvaluationListParams 列表查询条件
type EvaluationListParams struct {
	Limit    int
	Offset   int
	Reviewed *bool
	Status   string
}

// ReviewUpdate 人工复核字段，nil 表示不修改
type ReviewUpdate struct {
	Reviewed   *bool   `json:"reviewed"`
	ReviewNote *string `json:"review_note"`
}

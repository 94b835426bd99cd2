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
	ErrEmptyBotName      = errors.New("bot name cannot be empty")
	ErrInvalidBotIndex   = errors.New("bot index must be a positive integer")
	ErrEmptySystemPrompt = errors.New("system prompt cannot be empty")
)

// Bot 从旧系统导入的机器人，bot_index 为外部分配的编号
type Bot struct {
	ID        uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	BotIndex  int64        `gorm:"uniqueIndex;not null" json:"index"`
	Name      string       `gorm:"type:varchar(255);not null" json:"name"`
	Versions  []BotVersion `gorm:"foreignKey:BotIndex;references:BotIndex;constraint:OnDelete:CASCADE" json:"-"`
	CreatedAt time.Time    `gorm:"index" json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// TableName 指定Bot表名
func (Bot) TableName() string {
	return "bots"
}

// BeforeSave 名称去空白并校验
func (b *Bot) BeforeSave(tx *gorm.DB) error {
	b.Name = strings.TrimSpace(b.Name)
	if b.Name == "" {
		return ErrEmptyBotName
	}
	if b.BotIndex <= 0 {
		return ErrInvalidBotIndex
	}
	return nil
}

// BeforeCreate 生成主键
func (b *Bot) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// BotVersion 机器人的不可变版本，只追加不修改
type BotVersion struct {
	ID            uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	BotIndex      int64             `gorm:"not null;index" json:"bot_index"`
	SystemPrompt  string            `gorm:"type:text;not null" json:"system_prompt"`
	KnowledgeBase datatypes.JSONMap `gorm:"not null" json:"knowledge_base"`
	CreatedAt     time.Time         `gorm:"index" json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// TableName 指定BotVersion表名
func (BotVersion) TableName() string {
	return "bot_versions"
}

// BeforeSave 校验系统提示词并补全空知识库
func (v *BotVersion) BeforeSave(tx *gorm.DB) error {
	v.SystemPrompt = strings.TrimSpace(v.SystemPrompt)
	if v.SystemPrompt == "" {
		return ErrEmptySystemPrompt
	}
	if v.BotIndex <= 0 {
		return ErrInvalidBotIndex
	}
	if v.KnowledgeBase == nil {
		v.KnowledgeBase = datatypes.JSONMap{}
	}
	return nil
}

// BeforeCreate 使用按时间有序的 UUIDv7，同一时间戳下按 id 排序即为创建顺序
func (v *BotVersion) BeforeCreate(tx *gorm.DB) error {
	if v.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		v.ID = id
	}
	return nil
}

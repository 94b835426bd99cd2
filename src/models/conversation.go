package models

import "time"

// Conversation 旧系统的会话记录，只读
type Conversation struct {
	ID             int64     `gorm:"primaryKey" json:"id"`
	ConversationID string    `gorm:"column:conversation_id" json:"conversation_id"`
	CustomerPhone  *string   `gorm:"column:customer_phone" json:"customer_phone,omitempty"`
	BotID          *int64    `gorm:"column:bot_id" json:"bot_id,omitempty"`
	BotMemory      *string   `gorm:"column:bot_memory;type:text" json:"bot_memory,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TableName 旧系统表名
func (Conversation) TableName() string {
	return "conversation"
}

// LegacyBot 旧系统的机器人定义，只读
type LegacyBot struct {
	ID           int64   `gorm:"primaryKey" json:"id"`
	Name         *string `json:"name"`
	SystemPrompt *string `gorm:"type:text" json:"system_prompt"`
}

// TableName 旧系统表名
func (LegacyBot) TableName() string {
	return "bot"
}

// Package botcatalog 机器人目录：从旧系统导入、版本管理与知识库生成
package botcatalog

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"qa-compass-server/src/core/cache"
	"qa-compass-server/src/core/errs"
	"qa-compass-server/src/core/prompt"
	"qa-compass-server/src/core/providers/llm"
	"qa-compass-server/src/core/sanitize"
	"qa-compass-server/src/core/utils"
	"qa-compass-server/src/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ImportedPrompt 旧系统没有系统提示词时使用
const ImportedPrompt = "Imported from legacy bot"

// 列表分页限制
const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

// Options 服务参数
type Options struct {
	KnowledgeModel  string
	Temperature     float64
	GenerateTimeout time.Duration
	ListTTL         time.Duration
}

// Service 机器人目录服务
type Service struct {
	db       *gorm.DB
	readDB   *gorm.DB
	provider llm.Provider
	prompts  *prompt.Loader
	cache    *cache.ReadThrough
	opts     Options
	logger   *utils.Logger
}

// NewService db 为写库，readDB 为旧系统只读库
func NewService(db, readDB *gorm.DB, provider llm.Provider, prompts *prompt.Loader, rt *cache.ReadThrough, opts Options, logger *utils.Logger) *Service {
	if readDB == nil {
		readDB = db
	}
	if rt == nil {
		rt = cache.NewReadThrough(nil, logger)
	}
	if opts.GenerateTimeout <= 0 {
		opts.GenerateTimeout = 90 * time.Second
	}
	return &Service{
		db:       db,
		readDB:   readDB,
		provider: provider,
		prompts:  prompts,
		cache:    rt,
		opts:     opts,
		logger:   logger,
	}
}

// Import 按旧系统编号导入机器人并生成首个版本，已存在时直接返回，created 为 false
func (s *Service) Import(ctx context.Context, index int64) (bot *models.Bot, created bool, err error) {
	if index <= 0 {
		return nil, false, errs.NewInput("bot index must be a positive integer", models.ErrInvalidBotIndex)
	}

	if existing, err := s.findBot(ctx, index); err == nil {
		return existing, false, nil
	} else if !errs.IsNotFound(err) {
		return nil, false, err
	}

	legacy := s.legacyBot(ctx, index)
	name := fmt.Sprintf("Bot %d", index)
	systemPrompt := ImportedPrompt
	kb := datatypes.JSONMap{}
	if legacy != nil {
		if legacy.Name != nil && strings.TrimSpace(*legacy.Name) != "" {
			name = *legacy.Name
		}
		if legacy.SystemPrompt != nil && strings.TrimSpace(*legacy.SystemPrompt) != "" {
			systemPrompt = *legacy.SystemPrompt
			kb = s.generateKnowledge(ctx, index, systemPrompt)
		}
	}

	bot = &models.Bot{BotIndex: index, Name: name}
	version := &models.BotVersion{BotIndex: index, SystemPrompt: systemPrompt, KnowledgeBase: kb}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(bot).Error; err != nil {
			return err
		}
		return tx.Create(version).Error
	})
	if err != nil {
		// 并发导入时另一请求已创建
		if existing, findErr := s.findBot(ctx, index); findErr == nil {
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("导入机器人失败: %w", err)
	}

	s.cache.InvalidatePattern(ctx, cache.BotsListPattern)
	s.logger.Info("导入机器人 index=%d name=%s legacy=%t", index, bot.Name, legacy != nil)
	return bot, true, nil
}

// legacyBot 旧系统表不存在或查询失败时返回 nil
func (s *Service) legacyBot(ctx context.Context, index int64) *models.LegacyBot {
	var rows []models.LegacyBot
	if err := s.readDB.WithContext(ctx).Where("id = ?", index).Limit(1).Find(&rows).Error; err != nil {
		s.logger.Warn("读取旧系统机器人失败 index=%d: %v", index, err)
		return nil
	}
	if len(rows) == 0 {
		return nil
	}
	return &rows[0]
}

// generateKnowledge 调用模型从系统提示词提取知识库，任何失败都返回空文档
func (s *Service) generateKnowledge(ctx context.Context, index int64, systemPrompt string) datatypes.JSONMap {
	if s.provider == nil {
		return datatypes.JSONMap{}
	}
	instructions, err := s.prompts.Load(prompt.Knowledge, nil)
	if err != nil {
		s.logger.Error("加载知识库提示词失败: %v", err)
		return datatypes.JSONMap{}
	}

	callCtx, cancel := context.WithTimeout(ctx, s.opts.GenerateTimeout)
	defer cancel()
	text, err := s.provider.Chat(callCtx, llm.ChatRequest{
		Model: s.opts.KnowledgeModel,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: instructions},
			{Role: llm.RoleUser, Content: systemPrompt},
		},
		Temperature: s.opts.Temperature,
		JSONObject:  true,
	})
	if err != nil {
		s.logger.Error("生成知识库失败 index=%d: %v", index, err)
		return datatypes.JSONMap{}
	}

	parsed := sanitize.ParseObject(text)
	if !parsed.OK() {
		s.logger.Warn("知识库输出无法解析 index=%d length=%d", index, len(text))
		return datatypes.JSONMap{}
	}
	return datatypes.JSONMap(sanitize.StripDocument(parsed.Doc))
}

// List 按创建时间倒序列出机器人
func (s *Service) List(ctx context.Context, limit int) ([]models.Bot, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	limit = utils.ClampInt(limit, 1, MaxListLimit)
	key := cache.BotsListKey(url.Values{"limit": {strconv.Itoa(limit)}})

	return cache.List(ctx, s.cache, key, s.opts.ListTTL, func(ctx context.Context) ([]models.Bot, error) {
		var bots []models.Bot
		if err := s.db.WithContext(ctx).Order("created_at DESC, id DESC").Limit(limit).Find(&bots).Error; err != nil {
			return nil, fmt.Errorf("查询机器人列表失败: %w", err)
		}
		return bots, nil
	})
}

// Versions 机器人的全部版本，最新在前
func (s *Service) Versions(ctx context.Context, index int64) ([]models.BotVersion, error) {
	if _, err := s.findBot(ctx, index); err != nil {
		return nil, err
	}
	var versions []models.BotVersion
	if err := s.db.WithContext(ctx).Where("bot_index = ?", index).Order("created_at DESC, id DESC").Find(&versions).Error; err != nil {
		return nil, fmt.Errorf("查询机器人版本失败: %w", err)
	}
	return versions, nil
}

// RegenerateKnowledge 基于最新版本的提示词重新生成知识库，追加为新版本
func (s *Service) RegenerateKnowledge(ctx context.Context, index int64) (*models.BotVersion, error) {
	if _, err := s.findBot(ctx, index); err != nil {
		return nil, err
	}

	var latest models.BotVersion
	err := s.db.WithContext(ctx).Where("bot_index = ?", index).Order("created_at DESC, id DESC").First(&latest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.NewNotFound("bot version", strconv.FormatInt(index, 10))
	}
	if err != nil {
		return nil, fmt.Errorf("查询最新版本失败: %w", err)
	}

	s.logger.Info("重新生成知识库 index=%d", index)
	version := &models.BotVersion{
		BotIndex:      index,
		SystemPrompt:  latest.SystemPrompt,
		KnowledgeBase: s.generateKnowledge(ctx, index, latest.SystemPrompt),
	}
	if err := s.db.WithContext(ctx).Create(version).Error; err != nil {
		return nil, fmt.Errorf("保存机器人版本失败: %w", err)
	}
	return version, nil
}

// Rename 修改机器人名称
func (s *Service) Rename(ctx context.Context, index int64, name string) (*models.Bot, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errs.NewInput("bot name cannot be empty", models.ErrEmptyBotName)
	}
	bot, err := s.findBot(ctx, index)
	if err != nil {
		return nil, err
	}
	bot.Name = name
	if err := s.db.WithContext(ctx).Save(bot).Error; err != nil {
		return nil, fmt.Errorf("更新机器人失败: %w", err)
	}
	s.cache.InvalidatePattern(ctx, cache.BotsListPattern)
	return bot, nil
}

// ClearCache 删除机器人相关缓存
func (s *Service) ClearCache(ctx context.Context) int {
	return s.cache.InvalidatePattern(ctx, cache.BotsPattern)
}

func (s *Service) findBot(ctx context.Context, index int64) (*models.Bot, error) {
	var bot models.Bot
	err := s.db.WithContext(ctx).Where("bot_index = ?", index).First(&bot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.NewNotFound("bot", strconv.FormatInt(index, 10))
	}
	if err != nil {
		return nil, fmt.Errorf("查询机器人失败: %w", err)
	}
	return &bot, nil
}

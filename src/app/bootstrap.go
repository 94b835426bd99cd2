package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"qa-compass-server/src/configs"
	"qa-compass-server/src/configs/database"
	"qa-compass-server/src/core/auth"
	"qa-compass-server/src/core/botcatalog"
	"qa-compass-server/src/core/cache"
	"qa-compass-server/src/core/conversation"
	"qa-compass-server/src/core/evaluation"
	"qa-compass-server/src/core/knowledge"
	"qa-compass-server/src/core/notify"
	"qa-compass-server/src/core/prompt"
	"qa-compass-server/src/core/providers/llm"
	_ "qa-compass-server/src/core/providers/llm/openai"
	"qa-compass-server/src/core/scoring"
	"qa-compass-server/src/core/utils"
	"qa-compass-server/src/httpsvr"
	"qa-compass-server/src/httpsvr/bot"
	evalhttp "qa-compass-server/src/httpsvr/evaluation"
	"qa-compass-server/src/httpsvr/health"
	"qa-compass-server/src/httpsvr/qarun"
	"qa-compass-server/src/models"

	"gorm.io/gorm"
)

// App 组装完成的服务依赖
type App struct {
	Config       *configs.Config
	Logger       *utils.Logger
	DB           *gorm.DB
	ReadDB       *gorm.DB
	Store        cache.Store
	Provider     llm.Provider
	Orchestrator *evaluation.Orchestrator
	Reconciler   *evaluation.Reconciler
	Bots         *botcatalog.Service

	closers []func() error
}

// NewLogger 按配置创建日志组件
func NewLogger(cfg *configs.Config) (*utils.Logger, error) {
	return utils.NewLogger(utils.LogConfig{Level: cfg.Log.LogLevel, Dir: cfg.Log.LogDir, File: cfg.Log.LogFile})
}

// Build 打开数据库与缓存，创建评分服务并组装各组件
func Build(ctx context.Context, cfg *configs.Config, logger *utils.Logger) (a *App, err error) {
	a = &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			a.Close()
			a = nil
		}
	}()

	if a.DB, err = database.Open(cfg.DB); err != nil {
		return a, fmt.Errorf("打开写库失败: %w", err)
	}
	a.closers = append(a.closers, func() error { return database.Close(a.DB) })

	if cfg.ReadDB.DSN == "" {
		a.ReadDB = a.DB
	} else {
		if a.ReadDB, err = database.Open(cfg.ReadDBConfig()); err != nil {
			return a, fmt.Errorf("打开只读库失败: %w", err)
		}
		a.closers = append(a.closers, func() error { return database.Close(a.ReadDB) })
	}

	a.Store = cache.NopStore{}
	if cfg.RedisCache.Enabled {
		store, err := cache.NewRedisStore(ctx, cfg.RedisCache)
		if err != nil {
			logger.Warn("Redis不可用，缓存已禁用: %v", err)
		} else {
			a.Store = store
			a.closers = append(a.closers, store.Close)
		}
	}
	rt := cache.NewReadThrough(a.Store, logger)

	if a.Provider, err = newProvider(cfg, logger); err != nil {
		return a, err
	}
	a.closers = append(a.closers, a.Provider.Cleanup)

	engine, err := scoring.NewEngine(RubricFromConfig(cfg.QA))
	if err != nil {
		return a, fmt.Errorf("评分规则无效: %w", err)
	}
	prompts := prompt.NewLoader(cfg.QA.PromptDir)

	a.Reconciler = evaluation.NewReconciler(a.DB, rt, evaluation.CacheTTL{
		List:   configs.Duration(cfg.Cache.ListTTL, 5*time.Hour),
		Detail: configs.Duration(cfg.Cache.DetailTTL, 24*time.Hour),
	}, logger)

	var notifier evaluation.Notifier
	if cfg.Notify.Mqtt.Enabled {
		pub, err := notify.NewMQTTPublisher(cfg.Notify.Mqtt, logger)
		if err != nil {
			logger.Warn("MQTT通知不可用: %v", err)
		} else {
			notifier = pub
			a.closers = append(a.closers, func() error { pub.Close(); return nil })
		}
	}

	callTimeout := configs.Duration(cfg.QA.CallTimeout, 90*time.Second)
	a.Orchestrator = evaluation.NewOrchestrator(
		conversation.NewSource(a.ReadDB, logger, cfg.QA.MaxConversations),
		knowledge.NewResolver(a.DB, logger),
		a.Provider,
		prompts,
		engine,
		a.Reconciler,
		notifier,
		evaluation.Options{
			Model:            cfg.QA.Model,
			Temperature:      cfg.QA.Temperature,
			Concurrency:      cfg.QA.Concurrency,
			CallTimeout:      callTimeout,
			UserPromptPrefix: cfg.QA.UserPromptPrefix,
		},
		logger,
	)

	a.Bots = botcatalog.NewService(a.DB, a.ReadDB, a.Provider, prompts, rt, botcatalog.Options{
		KnowledgeModel:  cfg.QA.KnowledgeModel,
		Temperature:     cfg.QA.Temperature,
		GenerateTimeout: callTimeout,
		ListTTL:         configs.Duration(cfg.Cache.BotsTTL, 24*time.Hour),
	}, logger)
	return a, nil
}

func newProvider(cfg *configs.Config, logger *utils.Logger) (llm.Provider, error) {
	name, c, err := cfg.SelectedLLM()
	if err != nil {
		return nil, err
	}
	typ := strings.ToLower(strings.TrimSpace(c.Type))
	if typ == "" {
		typ = "openai"
	}
	return llm.Create(typ, &llm.Config{
		Name:         name,
		Type:         typ,
		ModelName:    c.ModelName,
		BaseURL:      c.BaseURL,
		APIKey:       c.APIKey,
		Temperature:  c.Temperature,
		MaxTokens:    c.MaxTokens,
		MaxAttempts:  c.MaxAttempts,
		RetryMinWait: configs.Duration(c.RetryMinWait, 4*time.Second),
		RetryMaxWait: configs.Duration(c.RetryMaxWait, 10*time.Second),
	}, logger)
}

// RubricFromConfig 未配置维度时使用默认规则，未配置违规短语时使用默认短语
func RubricFromConfig(qa configs.QAConfig) scoring.Rubric {
	r := scoring.DefaultRubric()
	if len(qa.Criteria) > 0 {
		r.Criteria = make([]scoring.Criterion, len(qa.Criteria))
		for i, c := range qa.Criteria {
			r.Criteria[i] = scoring.Criterion{Key: strings.TrimSpace(c.Key), Weight: c.Weight, Description: c.Description}
		}
	}
	if len(qa.CriticalViolations) > 0 {
		r.CriticalViolations = qa.CriticalViolations
	}
	return r
}

// Router 创建 HTTP 路由
func (a *App) Router() (*httpsvr.Routes, error) {
	routes := &httpsvr.Routes{
		QARun:       qarun.NewHandler(a.Orchestrator, a.Logger),
		Evaluations: evalhttp.NewHandler(a.Reconciler, a.Logger),
		Bots:        bot.NewBotHandler(a.Bots, a.Logger),
		AllowOrigin: a.Config.Server.CORSAllowOrigins,
		Swagger:     true,
	}
	readDB := a.ReadDB
	if readDB == a.DB {
		readDB = nil
	}
	var store cache.Store
	if _, nop := a.Store.(cache.NopStore); !nop {
		store = a.Store
	}
	routes.Health = health.NewHandler(a.DB, readDB, store, a.Logger)

	if a.Config.Server.Auth.Enabled {
		token, err := auth.NewAuthToken(a.Config.Server.Token)
		if err != nil {
			return nil, fmt.Errorf("创建令牌校验器失败: %w", err)
		}
		routes.AuthToken = token
	}
	return routes, nil
}

// Migrate 创建写库表，sqlite 下同时创建旧系统表便于本地运行
func Migrate(cfg *configs.Config, logger *utils.Logger) error {
	db, err := database.Open(cfg.DB)
	if err != nil {
		return err
	}
	defer database.Close(db)

	targets := models.WriteModels()
	if strings.HasPrefix(strings.ToLower(cfg.DB.Dialect), "sqlite") {
		targets = append(targets, models.LegacyModels()...)
	}
	if err := database.Migrate(db, targets...); err != nil {
		return err
	}
	logger.Info("数据库迁移完成 tables=%d", len(targets))
	return nil
}

// Close 按创建的逆序释放资源
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

package bot

import (
	"context"
	"net/http"
	"strconv"

	"qa-compass-server/src/core/botcatalog"
	"qa-compass-server/src/core/errs"
	"qa-compass-server/src/core/utils"
	"qa-compass-server/src/models"

	"github.com/gin-gonic/gin"
)

// CatalogService 机器人目录服务
type CatalogService interface {
	Import(ctx context.Context, index int64) (*models.Bot, bool, error)
	List(ctx context.Context, limit int) ([]models.Bot, error)
	Versions(ctx context.Context, index int64) ([]models.BotVersion, error)
	RegenerateKnowledge(ctx context.Context, index int64) (*models.BotVersion, error)
	Rename(ctx context.Context, index int64, name string) (*models.Bot, error)
	ClearCache(ctx context.Context) int
}

// CreateBotRequest 按旧系统编号导入
type CreateBotRequest struct {
	Index int64 `json:"index" binding:"required"`
}

// UpdateBotRequest 修改名称
type UpdateBotRequest struct {
	Name string `json:"name" binding:"required"`
}

// BotHandler 机器人处理器
type BotHandler struct {
	service CatalogService
	logger  *utils.Logger
}

// NewBotHandler 创建机器人处理器
func NewBotHandler(service CatalogService, logger *utils.Logger) *BotHandler {
	return &BotHandler{service: service, logger: logger}
}

// RegisterRoutes 注册机器人路由
func (h *BotHandler) RegisterRoutes(apiGroup *gin.RouterGroup) {
	botGroup := apiGroup.Group("/bots")
	{
		botGroup.POST("", h.CreateBot)
		botGroup.GET("", h.ListBots)
		botGroup.DELETE("/cache", h.ClearCache)
		botGroup.GET("/:index/versions", h.ListVersions)
		botGroup.PUT("/:index", h.UpdateBot)
		botGroup.POST("/:index/knowledge_base/regenerate", h.RegenerateKnowledge)
	}
}

// CreateBot 从旧系统导入机器人
// @Summary 导入机器人
// @Description 按旧系统编号导入机器人并生成首个版本，已存在时直接返回
// @Tags 机器人
// @Accept json
// @Produce json
// @Param bot body CreateBotRequest true "旧系统编号"
// @Success 201 {object} utils.UnifiedResponse "导入成功"
// @Success 200 {object} utils.UnifiedResponse "已存在"
// @Failure 400 {object} utils.UnifiedResponse "请求参数错误"
// @Router /api/v1/bots [post]
func (h *BotHandler) CreateBot(c *gin.Context) {
	var req CreateBotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, "请求参数格式错误", errs.NewInput("invalid request body", err))
		return
	}

	bot, created, err := h.service.Import(c.Request.Context(), req.Index)
	if err != nil {
		h.respondError(c, "导入机器人失败", err)
		return
	}
	if created {
		utils.Created(c, bot)
		return
	}
	utils.Success(c, bot)
}

// ListBots 机器人列表
// @Summary 机器人列表
// @Tags 机器人
// @Produce json
// @Param limit query int false "数量 (1-1000)" default(100)
// @Success 200 {object} utils.UnifiedResponse
// @Router /api/v1/bots [get]
func (h *BotHandler) ListBots(c *gin.Context) {
	page := utils.ParseLimitOffset(c, botcatalog.DefaultListLimit, botcatalog.MaxListLimit)
	bots, err := h.service.List(c.Request.Context(), page.Limit)
	if err != nil {
		h.respondError(c, "查询机器人列表失败", err)
		return
	}
	utils.Success(c, bots)
}

// ListVersions 机器人版本列表
// @Summary 机器人版本列表
// @Tags 机器人
// @Produce json
// @Param index path int true "旧系统编号"
// @Success 200 {object} utils.UnifiedResponse
// @Failure 404 {object} utils.UnifiedResponse
// @Router /api/v1/bots/{index}/versions [get]
func (h *BotHandler) ListVersions(c *gin.Context) {
	index, ok := h.parseIndex(c)
	if !ok {
		return
	}
	versions, err := h.service.Versions(c.Request.Context(), index)
	if err != nil {
		h.respondError(c, "查询机器人版本失败", err)
		return
	}
	utils.Success(c, versions)
}

// UpdateBot 修改机器人名称
// @Summary 修改机器人名称
// @Tags 机器人
// @Accept json
// @Produce json
// @Param index path int true "旧系统编号"
// @Param bot body UpdateBotRequest true "新名称"
// @Success 200 {object} utils.UnifiedResponse
// @Failure 400 {object} utils.UnifiedResponse
// @Failure 404 {object} utils.UnifiedResponse
// @Router /api/v1/bots/{index} [put]
func (h *BotHandler) UpdateBot(c *gin.Context) {
	index, ok := h.parseIndex(c)
	if !ok {
		return
	}
	var req UpdateBotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, "请求参数格式错误", errs.NewInput("invalid request body", err))
		return
	}
	bot, err := h.service.Rename(c.Request.Context(), index, req.Name)
	if err != nil {
		h.respondError(c, "更新机器人失败", err)
		return
	}
	utils.Success(c, bot)
}

// RegenerateKnowledge 重新生成知识库
// @Summary 重新生成知识库
// @Description 使用最新版本的系统提示词重新生成知识库，并保存为新版本
// @Tags 机器人
// @Produce json
// @Param index path int true "旧系统编号"
// @Success 200 {object} utils.UnifiedResponse
// @Failure 404 {object} utils.UnifiedResponse
// @Router /api/v1/bots/{index}/knowledge_base/regenerate [post]
func (h *BotHandler) RegenerateKnowledge(c *gin.Context) {
	index, ok := h.parseIndex(c)
	if !ok {
		return
	}
	version, err := h.service.RegenerateKnowledge(c.Request.Context(), index)
	if err != nil {
		h.respondError(c, "重新生成知识库失败", err)
		return
	}
	utils.Success(c, version)
}

// ClearCache 清空机器人缓存
// @Summary 清空机器人缓存
// @Tags 机器人
// @Produce json
// @Success 200 {object} utils.UnifiedResponse
// @Router /api/v1/bots/cache [delete]
func (h *BotHandler) ClearCache(c *gin.Context) {
	n := h.service.ClearCache(c.Request.Context())
	h.logger.Info("已清空机器人缓存 deleted=%d", n)
	utils.Success(c, gin.H{"deleted": n})
}

func (h *BotHandler) parseIndex(c *gin.Context) (int64, bool) {
	index, err := strconv.ParseInt(c.Param("index"), 10, 64)
	if err != nil || index <= 0 {
		h.respondError(c, "无效的机器人编号", errs.NewInput("index must be a positive integer", models.ErrInvalidBotIndex))
		return 0, false
	}
	return index, true
}

func (h *BotHandler) respondError(c *gin.Context, message string, err error) {
	status := errs.StatusCode(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("%s: %v", message, err)
	} else {
		h.logger.Warn("%s: %v", message, err)
	}
	utils.ErrorWithDetail(c, status, message, err)
}

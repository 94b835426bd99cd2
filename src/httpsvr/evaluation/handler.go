package evaluation

import (
	"context"
	"net/http"
	"strings"

	"qa-compass-server/src/core/errs"
	evalcore "qa-compass-server/src/core/evaluation"
	"qa-compass-server/src/core/utils"
	"qa-compass-server/src/models"

	"github.com/gin-gonic/gin"
)

// Service 评估查询与复核
type Service interface {
	List(ctx context.Context, p models.EvaluationListParams) ([]models.Evaluation, error)
	Get(ctx context.Context, conversationID string) (*models.Evaluation, error)
	UpdateReview(ctx context.Context, conversationID string, upd models.ReviewUpdate) (*models.Evaluation, error)
	ClearCache(ctx context.Context) int
}

// Handler 评估处理器
type Handler struct {
	service Service
	logger  *utils.Logger
}

func NewHandler(service Service, logger *utils.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes 注册评估路由
func (h *Handler) RegisterRoutes(apiGroup *gin.RouterGroup) {
	group := apiGroup.Group("/evaluations")
	{
		group.GET("", h.List)
		group.DELETE("/cache", h.ClearCache)
		group.GET("/:conversation_id", h.Get)
		group.PATCH("/:conversation_id", h.UpdateReview)
	}
}

// List 评估列表
// @Summary 评估列表
// @Description 按创建时间倒序分页，可按 status 与 reviewed 过滤
// @Tags 评估
// @Produce json
// @Param limit query int false "每页数量 (1-200)" default(50)
// @Param offset query int false "偏移量" default(0)
// @Param status query string false "good / warn / bad"
// @Param reviewed query bool false "是否已复核"
// @Success 200 {object} utils.UnifiedResponse
// @Failure 400 {object} utils.UnifiedResponse
// @Router /api/v1/evaluations [get]
func (h *Handler) List(c *gin.Context) {
	page := utils.ParseLimitOffset(c, evalcore.DefaultListLimit, evalcore.MaxListLimit)
	status := strings.ToLower(strings.TrimSpace(c.Query("status")))
	switch status {
	case "", models.StatusGood, models.StatusWarn, models.StatusBad:
	default:
		h.respondError(c, "无效的状态值", errs.NewInput("status must be one of good, warn, bad", nil))
		return
	}

	rows, err := h.service.List(c.Request.Context(), models.EvaluationListParams{
		Limit:    page.Limit,
		Offset:   page.Offset,
		Reviewed: utils.ParseOptionalBool(c, "reviewed"),
		Status:   status,
	})
	if err != nil {
		h.respondError(c, "查询评估列表失败", err)
		return
	}
	utils.Success(c, rows)
}

// Get 评估详情
// @Summary 评估详情
// @Tags 评估
// @Produce json
// @Param conversation_id path string true "会话ID"
// @Success 200 {object} utils.UnifiedResponse
// @Failure 404 {object} utils.UnifiedResponse
// @Router /api/v1/evaluations/{conversation_id} [get]
func (h *Handler) Get(c *gin.Context) {
	ev, err := h.service.Get(c.Request.Context(), c.Param("conversation_id"))
	if err != nil {
		h.respondError(c, "查询评估失败", err)
		return
	}
	utils.Success(c, ev)
}

// UpdateReview 更新人工复核信息
// @Summary 更新人工复核信息
// @Tags 评估
// @Accept json
// @Produce json
// @Param conversation_id path string true "会话ID"
// @Param review body models.ReviewUpdate true "复核字段"
// @Success 200 {object} utils.UnifiedResponse
// @Failure 400 {object} utils.UnifiedResponse
// @Failure 404 {object} utils.UnifiedResponse
// @Router /api/v1/evaluations/{conversation_id} [patch]
func (h *Handler) UpdateReview(c *gin.Context) {
	var upd models.ReviewUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		h.respondError(c, "请求参数格式错误", errs.NewInput("invalid request body", err))
		return
	}
	ev, err := h.service.UpdateReview(c.Request.Context(), c.Param("conversation_id"), upd)
	if err != nil {
		h.respondError(c, "更新复核信息失败", err)
		return
	}
	utils.Success(c, ev)
}

// ClearCache 清空评估缓存
// @Summary 清空评估缓存
// @Tags 评估
// @Produce json
// @Success 200 {object} utils.UnifiedResponse
// @Router /api/v1/evaluations/cache [delete]
func (h *Handler) ClearCache(c *gin.Context) {
	n := h.service.ClearCache(c.Request.Context())
	h.logger.Info("已清空评估缓存 deleted=%d", n)
	utils.Success(c, gin.H{"deleted": n})
}

func (h *Handler) respondError(c *gin.Context, message string, err error) {
	status := errs.StatusCode(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("%s: %v", message, err)
	}
	utils.ErrorWithDetail(c, status, message, err)
}

package qarun

import (
	"context"
	"errors"
	"net/http"

	"qa-compass-server/src/core/conversation"
	"qa-compass-server/src/core/errs"
	"qa-compass-server/src/core/evaluation"
	"qa-compass-server/src/core/utils"

	"github.com/gin-gonic/gin"
)

// Runner 批量评估执行者
type Runner interface {
	Run(ctx context.Context, req evaluation.Request) (*evaluation.Report, error)
}

// RunRequest 批量评估请求体
type RunRequest struct {
	ConversationIDs []string `json:"conversation_ids"`
	Limit           *int     `json:"limit"`
}

// RunIDHeader 响应头中的运行 ID
const RunIDHeader = "X-Run-Id"

// Handler QA 运行处理器
type Handler struct {
	runner Runner
	logger *utils.Logger
}

func NewHandler(runner Runner, logger *utils.Logger) *Handler {
	return &Handler{runner: runner, logger: logger}
}

// RegisterRoutes 注册 QA 运行路由
func (h *Handler) RegisterRoutes(apiGroup *gin.RouterGroup) {
	group := apiGroup.Group("/qa_runs")
	{
		group.POST("/run", h.Run)
	}
}

// Run 执行批量评估
// @Summary 执行批量评估
// @Description 显式 conversation_ids（最多 20 个）或按 limit 选取最近的会话，并发评分并落库
// @Tags QA运行
// @Accept json
// @Produce json
// @Param request body RunRequest false "评估范围"
// @Success 200 {object} utils.UnifiedResponse "按请求顺序返回每个会话的结果"
// @Failure 400 {object} utils.UnifiedResponse "请求参数错误"
// @Failure 404 {object} utils.UnifiedResponse "没有可评估的会话"
// @Failure 500 {object} utils.UnifiedResponse "落库失败，data 中仍包含各条结果"
// @Router /api/v1/qa_runs/run [post]
func (h *Handler) Run(c *gin.Context) {
	var req RunRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.respondError(c, "请求参数格式错误", errs.NewInput("invalid request body", err))
			return
		}
	}
	if len(req.ConversationIDs) > conversation.MaxBatch {
		h.respondError(c, "会话数量超过上限", errs.NewInput("conversation_ids must contain at most 20 ids", errs.ErrTooManyConversations))
		return
	}

	limit := conversation.MaxBatch
	if req.Limit != nil {
		limit = *req.Limit
	}

	report, err := h.runner.Run(c.Request.Context(), evaluation.Request{ConversationIDs: req.ConversationIDs, Limit: limit})
	if report != nil {
		c.Header(RunIDHeader, report.RunID)
	}
	if err != nil {
		if errors.Is(err, errs.ErrPersistence) && report != nil {
			h.logger.Error("批量评估落库失败 run_id=%s: %v", report.RunID, err)
			utils.ErrorWithData(c, http.StatusInternalServerError, "评估结果落库失败", err, report.Items)
			return
		}
		h.respondError(c, "批量评估失败", err)
		return
	}
	utils.Success(c, report.Items)
}

func (h *Handler) respondError(c *gin.Context, message string, err error) {
	status := errs.StatusCode(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("%s: %v", message, err)
	} else {
		h.logger.Warn("%s: %v", message, err)
	}
	utils.ErrorWithDetail(c, status, message, err)
}

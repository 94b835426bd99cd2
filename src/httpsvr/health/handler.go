package health

import (
	"context"
	"net/http"
	"time"

	"qa-compass-server/src/configs/database"
	"qa-compass-server/src/core/cache"
	"qa-compass-server/src/core/utils"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const checkTimeout = 3 * time.Second

// Status 健康检查结果
type Status struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	ReadDB   string `json:"read_database"`
	Redis    string `json:"redis"`
}

// Handler 健康检查
type Handler struct {
	db     *gorm.DB
	readDB *gorm.DB
	store  cache.Store
	logger *utils.Logger
}

// NewHandler readDB 为空时只检查写库，store 为空时不检查缓存
func NewHandler(db, readDB *gorm.DB, store cache.Store, logger *utils.Logger) *Handler {
	return &Handler{db: db, readDB: readDB, store: store, logger: logger}
}

// RegisterRoutes 注册健康检查路由
func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/health", h.Check)
}

// Check 检查数据库与缓存
// @Summary 健康检查
// @Tags 系统
// @Produce json
// @Success 200 {object} Status
// @Failure 503 {object} Status
// @Router /health [get]
func (h *Handler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), checkTimeout)
	defer cancel()

	st := Status{Status: "healthy", ReadDB: "disabled", Redis: "disabled"}
	st.Database = h.probe(ctx, "database", func(ctx context.Context) error { return database.Ping(ctx, h.db) })
	if h.readDB != nil {
		st.ReadDB = h.probe(ctx, "read_database", func(ctx context.Context) error { return database.Ping(ctx, h.readDB) })
	}
	if h.store != nil {
		st.Redis = h.probe(ctx, "redis", h.store.Ping)
	}

	for _, v := range []string{st.Database, st.ReadDB, st.Redis} {
		if v == "unhealthy" {
			st.Status = "unhealthy"
		}
	}
	if st.Status != "healthy" {
		c.JSON(http.StatusServiceUnavailable, st)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *Handler) probe(ctx context.Context, name string, ping func(context.Context) error) string {
	if err := ping(ctx); err != nil {
		h.logger.Warn("健康检查失败 %s: %v", name, err)
		return "unhealthy"
	}
	return "healthy"
}

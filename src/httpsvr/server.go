// Package httpsvr 组装 HTTP 路由并管理服务生命周期
package httpsvr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	_ "qa-compass-server/docs"
	"qa-compass-server/src/core/auth"
	"qa-compass-server/src/core/middleware"
	"qa-compass-server/src/core/utils"
	"qa-compass-server/src/httpsvr/bot"
	"qa-compass-server/src/httpsvr/evaluation"
	"qa-compass-server/src/httpsvr/health"
	"qa-compass-server/src/httpsvr/qarun"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

const shutdownTimeout = 10 * time.Second

// APIPrefix 业务接口前缀
const APIPrefix = "/api/v1"

// Routes 路由依赖，AuthToken 为空表示不校验令牌
type Routes struct {
	QARun       *qarun.Handler
	Evaluations *evaluation.Handler
	Bots        *bot.BotHandler
	Health      *health.Handler
	AuthToken   *auth.AuthToken
	AllowOrigin []string
	Swagger     bool
}

// NewRouter 创建 gin 引擎并注册全部路由
func NewRouter(routes Routes, logger *utils.Logger) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery(), middleware.RequestID(), middleware.RequestLogger(logger), middleware.CORS(routes.AllowOrigin))

	if routes.Health != nil {
		routes.Health.RegisterRoutes(engine)
	}
	if routes.Swagger {
		engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	apiGroup := engine.Group(APIPrefix)
	if routes.AuthToken != nil {
		apiGroup.Use(middleware.BearerAuth(routes.AuthToken, logger))
	}
	if routes.QARun != nil {
		routes.QARun.RegisterRoutes(apiGroup)
	}
	if routes.Evaluations != nil {
		routes.Evaluations.RegisterRoutes(apiGroup)
	}
	if routes.Bots != nil {
		routes.Bots.RegisterRoutes(apiGroup)
	}
	return engine
}

// Server HTTP 服务
type Server struct {
	srv    *http.Server
	logger *utils.Logger
}

// NewServer 监听 ip:port
func NewServer(ip string, port int, handler http.Handler, logger *utils.Logger) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              net.JoinHostPort(ip, strconv.Itoa(port)),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Addr 监听地址
func (s *Server) Addr() string {
	return s.srv.Addr
}

// Run 阻塞直到 ctx 结束或监听失败，ctx 结束后优雅关闭
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP服务启动 addr=%s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("HTTP服务启动失败: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("正在关闭HTTP服务...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("关闭HTTP服务失败: %w", err)
	}
	s.logger.Info("HTTP服务已关闭")
	return nil
}

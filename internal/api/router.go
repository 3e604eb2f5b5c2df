package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/boat-telnet/internal/bridge"
	"github.com/wfunc/boat-telnet/internal/config"
	"github.com/wfunc/boat-telnet/internal/middleware"
	"github.com/wfunc/boat-telnet/internal/settings"
	"github.com/wfunc/boat-telnet/internal/utils"
	ws "github.com/wfunc/boat-telnet/internal/websocket"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// StatusProvider 转发核心对外暴露的只读状态
type StatusProvider interface {
	Status() *bridge.Status
	Sessions() []bridge.SinkInfo
	MaxSessions() int
	Ticks() uint64
}

// Options 路由依赖
type Options struct {
	Device       config.DeviceConfig
	Mode         string
	Core         StatusProvider
	Settings     *settings.Host
	Hub          *ws.Hub
	JWT          *utils.JWTManager
	PasswordHash string // 为空时不启用认证
	DB           *gorm.DB
	Logger       *zap.Logger
}

// Router API路由器
type Router struct {
	engine   *gin.Engine
	opts     Options
	auth     *middleware.AuthMiddleware
	settings *SettingsHandler
	login    *AuthHandler
	log      *zap.Logger
}

// NewRouter 创建路由器
func NewRouter(opts Options) *Router {
	if opts.Mode != "" {
		gin.SetMode(opts.Mode)
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger(log))

	r := &Router{
		engine:   engine,
		opts:     opts,
		auth:     middleware.NewAuthMiddleware(opts.JWT, opts.PasswordHash != ""),
		settings: NewSettingsHandler(opts.Settings),
		login:    NewAuthHandler(opts.JWT, opts.PasswordHash),
		log:      log,
	}
	r.setupRoutes()
	return r
}

// setupRoutes 设置路由
func (r *Router) setupRoutes() {
	r.engine.GET("/health", r.healthCheck)

	v1 := r.engine.Group("/api/v1")
	{
		v1.POST("/auth/login", r.login.Login)
		v1.GET("/status", r.getStatus)

		s := v1.Group("/settings")
		{
			s.GET("", r.settings.List)
			s.GET("/:id", r.settings.Get)
			s.PUT("/:id", r.auth.RequireAuth(), r.settings.Update)
		}
	}

	if r.opts.Hub != nil {
		r.engine.GET("/ws/status", r.statusWebSocket)
	}

	registerOpenAPIRoutes(r.engine)
	registerSwaggerRoutes(r.engine)

	r.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Code:    "NOT_FOUND",
			Message: "接口不存在",
		})
	})
}

// healthCheck 健康检查
func (r *Router) healthCheck(c *gin.Context) {
	resp := gin.H{
		"status":  "healthy",
		"device":  r.opts.Device.Name,
		"version": r.opts.Device.Version,
	}
	if r.opts.Device.URL != "" {
		resp["url"] = r.opts.Device.URL
	}

	if r.opts.DB != nil {
		sqlDB, err := r.opts.DB.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			resp["status"] = "unhealthy"
			resp["database"] = err.Error()
			c.JSON(http.StatusServiceUnavailable, resp)
			return
		}
		resp["database"] = "ok"
	}

	c.JSON(http.StatusOK, resp)
}

// StatusResponse 状态响应
type StatusResponse struct {
	Status      string                `json:"status"`
	Counters    bridge.StatusSnapshot `json:"counters"`
	Sessions    []bridge.SinkInfo     `json:"sessions"`
	MaxSessions int                   `json:"max_sessions"`
	Ticks       uint64                `json:"ticks"`
}

// StatusSnapshot 组装当前状态，供HTTP与WebSocket推送共用
func StatusSnapshot(core StatusProvider) StatusResponse {
	snap := core.Status().Snapshot()
	sessions := core.Sessions()
	if sessions == nil {
		sessions = []bridge.SinkInfo{}
	}
	return StatusResponse{
		Status:      snap.String(),
		Counters:    snap,
		Sessions:    sessions,
		MaxSessions: core.MaxSessions(),
		Ticks:       core.Ticks(),
	}
}

// getStatus 获取转发状态
func (r *Router) getStatus(c *gin.Context) {
	if r.opts.Core == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Code:    "NOT_READY",
			Message: "转发核心未启动",
		})
		return
	}
	c.JSON(http.StatusOK, StatusSnapshot(r.opts.Core))
}

// statusWebSocket 状态推送连接
func (r *Router) statusWebSocket(c *gin.Context) {
	client, err := r.opts.Hub.Serve(c.Writer, c.Request)
	if err != nil {
		return
	}
	r.log.Info("WebSocket连接建立",
		zap.String("client_id", client.ID),
		zap.String("ip", c.ClientIP()))
}

// requestLogger 请求日志中间件
func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("HTTP请求",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()))
	}
}

// Handler 返回http.Handler
func (r *Router) Handler() http.Handler {
	return r.engine
}

// GetEngine 获取Gin引擎（用于测试）
func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}

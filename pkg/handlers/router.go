package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"hud-backend/pkg/auth"
	"hud-backend/pkg/config"
	"hud-backend/pkg/dashboard"
	"hud-backend/pkg/docstore"
	"hud-backend/pkg/gateway"
	customMiddleware "hud-backend/pkg/middleware"
	"hud-backend/pkg/utils"
)

// NewRouter 构建完整的API路由（单体路由模式，所有端点集中在一个Chi路由器中）
func NewRouter(cfg *config.Config, store docstore.Store, logger *logrus.Logger) *chi.Mux {
	router := chi.NewRouter()
	setupMiddleware(router, cfg, logger)
	setupRoutes(router, cfg, store)
	return router
}

// PooledHandler 每个请求从进程级存储池取得存储后再路由，
// 供 Vercel 函数入口与 hud serve 共用
func PooledHandler(cfg *config.Config, logger *logrus.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		store, err := docstore.GetStore(cfg.StoreConfig())
		if err != nil {
			logger.WithError(err).Error("failed to open document store")
			utils.WriteInternalServerErrorResponse(w, "Store unavailable: "+err.Error())
			return
		}
		NewRouter(cfg, store, logger).ServeHTTP(w, r)
	})
}

// setupMiddleware 设置全局中间件
func setupMiddleware(router *chi.Mux, cfg *config.Config, logger *logrus.Logger) {
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	// 在日志与路由之前规范化路径并恢复 scheme/host
	router.Use(customMiddleware.Normalize())
	router.Use(customMiddleware.RequestLogger(logger))
	router.Use(customMiddleware.Recovery(logger, cfg.IsDevelopment()))
	router.Use(customMiddleware.CORS(cfg))

	// 超时中间件（Vercel函数有时间限制）
	router.Use(middleware.Timeout(25 * time.Second))
	router.Use(customMiddleware.MaxBodySize(customMiddleware.DefaultMaxBodyBytes))
	router.Use(customMiddleware.ContentTypeJSON)
	router.Use(middleware.Compress(5))

	if cfg.IsDevelopment() {
		router.Use(middleware.Heartbeat("/ping"))
	}
}

// setupRoutes 设置所有API路由
func setupRoutes(router *chi.Mux, cfg *config.Config, store docstore.Store) {
	accounts := auth.NewService(store)
	jwtService := utils.NewJWTService(cfg.JWTSecret)
	manager := dashboard.NewManager(gateway.New(store))

	authHandler := NewAuthHandler(accounts, jwtService)
	tabsHandler := NewTabsHandler(manager)
	healthHandler := NewHealthHandler(cfg, store)
	requireAuth := customMiddleware.AuthMiddleware(jwtService, accounts)

	router.Get("/", healthHandler.HealthCheck)

	router.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			authHandler.Routes(r, requireAuth)
		})

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Route("/tabs", tabsHandler.Routes)
		})
	})

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		utils.WriteNotFoundResponse(w, fmt.Sprintf("Route not found: %s %s", r.Method, r.URL.Path))
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		utils.WriteErrorResponseWithCode(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
			fmt.Sprintf("Method %s not allowed for %s", r.Method, r.URL.Path), "")
	})
}

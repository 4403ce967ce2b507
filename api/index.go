package handler

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"hud-backend/pkg/config"
	"hud-backend/pkg/handlers"
	"hud-backend/pkg/utils"
)

// Handler 是Vercel函数的入口点
func Handler(w http.ResponseWriter, r *http.Request) {
	cfg := config.GetCached()
	if err := cfg.Validate(); err != nil {
		utils.WriteInternalServerErrorResponse(w, "Configuration error: "+err.Error())
		return
	}

	// 存储由进程级连接池管理，热启动时复用
	handlers.PooledHandler(cfg, logrus.StandardLogger()).ServeHTTP(w, r)
}

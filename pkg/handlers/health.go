package handlers

import (
	"context"
	"net/http"
	"time"

	"hud-backend/pkg/config"
	"hud-backend/pkg/docstore"
	"hud-backend/pkg/utils"
)

// HealthHandler 健康检查处理器
type HealthHandler struct {
	config *config.Config
	store  docstore.Store
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(cfg *config.Config, store docstore.Store) *HealthHandler {
	return &HealthHandler{config: cfg, store: store}
}

// HealthCheck 健康检查；?pool=1 时附带存储池状态
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status, storeStatus := "healthy", "healthy"
	if err := h.store.HealthCheck(ctx); err != nil {
		status, storeStatus = "degraded", "unhealthy: "+err.Error()
	}

	body := map[string]interface{}{
		"service":      "hud-backend",
		"version":      "1.0.0",
		"environment":  h.config.Environment,
		"store":        h.config.StoreType(),
		"store_status": storeStatus,
		"timestamp":    time.Now().Unix(),
		"status":       status,
	}
	if utils.GetQueryParam(r, "pool", "") != "" {
		body["pool"] = docstore.GetPoolStats()
	}

	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	utils.WriteJSONResponse(w, code, body)
}

package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"hud-backend/pkg/dashboard"
	"hud-backend/pkg/models"
	"hud-backend/pkg/utils"
)

// TabsHandler 标签页与组件处理器
type TabsHandler struct {
	manager *dashboard.Manager
}

// NewTabsHandler 创建标签页处理器
func NewTabsHandler(manager *dashboard.Manager) *TabsHandler {
	return &TabsHandler{manager: manager}
}

// Routes 挂载 /api/tabs 下的路由
func (h *TabsHandler) Routes(r chi.Router) {
	r.Get("/", h.ListTabs)
	r.Post("/", h.CreateTab)
	r.Put("/order", h.ReorderTabs)
	r.Route("/{tabID}", func(r chi.Router) {
		r.Get("/", h.GetTab)
		r.Patch("/", h.UpdateTab)
		r.Delete("/", h.DeleteTab)

		r.Get("/widgets", h.ListWidgets)
		r.Post("/widgets", h.CreateWidget)
		r.Get("/widgets/{widgetID}", h.GetWidget)
		r.Patch("/widgets/{widgetID}", h.UpdateWidget)
		r.Delete("/widgets/{widgetID}", h.DeleteWidget)
	})
}

// GET /api/tabs
func (h *TabsHandler) ListTabs(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUserID(w, r)
	if !ok {
		return
	}
	tabs, err := h.manager.ListTabs(r.Context(), uid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{"tabs": tabs})
}

// POST /api/tabs
func (h *TabsHandler) CreateTab(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req models.CreateTabRequest
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, err.Error())
		return
	}
	tab, err := h.manager.CreateTab(r.Context(), uid, req.Label, req.Icon)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteCreatedResponse(w, tab)
}

// GET /api/tabs/{tabID}
func (h *TabsHandler) GetTab(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUserID(w, r)
	if !ok {
		return
	}
	tab, err := h.manager.GetTab(r.Context(), uid, chi.URLParam(r, "tabID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteSuccessResponse(w, tab)
}

// PATCH /api/tabs/{tabID}
func (h *TabsHandler) UpdateTab(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUserID(w, r)
	if !ok {
		return
	}
	tabID := chi.URLParam(r, "tabID")
	var req models.UpdateTabRequest
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, err.Error())
		return
	}
	patch := dashboard.TabPatch{Label: req.Label, Icon: req.Icon, Order: req.Order}
	if err := h.manager.UpdateTab(r.Context(), uid, tabID, patch); err != nil {
		writeError(w, r, err)
		return
	}
	tab, err := h.manager.GetTab(r.Context(), uid, tabID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteSuccessResponse(w, tab)
}

// PUT /api/tabs/order
func (h *TabsHandler) ReorderTabs(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req models.ReorderTabsRequest
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, err.Error())
		return
	}
	if err := h.manager.ReorderTabs(r.Context(), uid, req.TabIDs); err != nil {
		writeError(w, r, err)
		return
	}
	tabs, err := h.manager.ListTabs(r.Context(), uid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{"tabs": tabs})
}

// DELETE /api/tabs/{tabID}
func (h *TabsHandler) DeleteTab(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUserID(w, r)
	if !ok {
		return
	}
	tabID := chi.URLParam(r, "tabID")
	if err := h.manager.DeleteTab(r.Context(), uid, tabID); err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{"deleted": tabID})
}

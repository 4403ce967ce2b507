package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"hud-backend/pkg/dashboard"
	"hud-backend/pkg/models"
	"hud-backend/pkg/utils"
)

// GET /api/tabs/{tabID}/widgets
func (h *TabsHandler) ListWidgets(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUserID(w, r)
	if !ok {
		return
	}
	widgets, err := h.manager.ListWidgets(r.Context(), uid, chi.URLParam(r, "tabID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{"widgets": widgets})
}

// POST /api/tabs/{tabID}/widgets
func (h *TabsHandler) CreateWidget(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUserID(w, r)
	if !ok {
		return
	}
	tabID := chi.URLParam(r, "tabID")
	var req models.CreateWidgetRequest
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, err.Error())
		return
	}

	// 组件只能挂在已存在的标签页下
	if _, err := h.manager.GetTab(r.Context(), uid, tabID); err != nil {
		writeError(w, r, err)
		return
	}

	widget, err := h.manager.CreateWidget(r.Context(), uid, tabID, dashboard.WidgetInput{
		Type:         req.Type,
		Name:         req.Name,
		URL:          req.Data.URL,
		Color:        req.Color,
		IconURL:      req.IconURL,
		GridPosition: req.GridPosition,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteCreatedResponse(w, widget)
}

// GET /api/tabs/{tabID}/widgets/{widgetID}
func (h *TabsHandler) GetWidget(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUserID(w, r)
	if !ok {
		return
	}
	widget, err := h.manager.GetWidget(r.Context(), uid, chi.URLParam(r, "tabID"), chi.URLParam(r, "widgetID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteSuccessResponse(w, widget)
}

// PATCH /api/tabs/{tabID}/widgets/{widgetID}
func (h *TabsHandler) UpdateWidget(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUserID(w, r)
	if !ok {
		return
	}
	tabID, widgetID := chi.URLParam(r, "tabID"), chi.URLParam(r, "widgetID")
	var req models.UpdateWidgetRequest
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, err.Error())
		return
	}

	patch := dashboard.WidgetPatch{
		Name:         req.Name,
		Color:        req.Color,
		IconURL:      req.IconURL,
		GridPosition: req.GridPosition,
	}
	if req.Data != nil {
		patch.URL = &req.Data.URL
	}
	if err := h.manager.UpdateWidget(r.Context(), uid, tabID, widgetID, patch); err != nil {
		writeError(w, r, err)
		return
	}
	widget, err := h.manager.GetWidget(r.Context(), uid, tabID, widgetID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteSuccessResponse(w, widget)
}

// DELETE /api/tabs/{tabID}/widgets/{widgetID}
func (h *TabsHandler) DeleteWidget(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUserID(w, r)
	if !ok {
		return
	}
	widgetID := chi.URLParam(r, "widgetID")
	if err := h.manager.DeleteWidget(r.Context(), uid, chi.URLParam(r, "tabID"), widgetID); err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{"deleted": widgetID})
}

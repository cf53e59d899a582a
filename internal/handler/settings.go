package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"goldwatch/internal/service"
)

type SettingsHandler struct {
	Settings *service.SettingsService
}

func (h *SettingsHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/settings")
	group.GET("/user/:user_id", h.getUserSettings)
	group.PUT("/user/:user_id", h.updateUserSettings)
	group.PUT("/switches/:key", h.setSwitch)
}

func (h *SettingsHandler) getUserSettings(c *gin.Context) {
	if h.Settings == nil {
		Error(c, http.StatusInternalServerError, "settings unavailable", nil)
		return
	}
	userID := strings.TrimSpace(c.Param("user_id"))
	if userID == "" {
		Error(c, http.StatusBadRequest, "user_id is required", nil)
		return
	}
	item, err := h.Settings.UserSettings(c.Request.Context(), userID)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, item, nil)
}

type updateUserSettingsRequest struct {
	AutoTrading bool   `json:"auto_trading"`
	TradingMode string `json:"trading_mode"`
}

func (h *SettingsHandler) updateUserSettings(c *gin.Context) {
	if h.Settings == nil {
		Error(c, http.StatusInternalServerError, "settings unavailable", nil)
		return
	}
	userID := strings.TrimSpace(c.Param("user_id"))
	if userID == "" {
		Error(c, http.StatusBadRequest, "user_id is required", nil)
		return
	}
	var req updateUserSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if err := h.Settings.UpdateUserSettings(c.Request.Context(), userID, req.AutoTrading, req.TradingMode); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	item, err := h.Settings.UserSettings(c.Request.Context(), userID)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, item, nil)
}

type setSwitchRequest struct {
	Enabled     bool   `json:"enabled"`
	Description string `json:"description"`
}

func (h *SettingsHandler) setSwitch(c *gin.Context) {
	if h.Settings == nil {
		Error(c, http.StatusInternalServerError, "settings unavailable", nil)
		return
	}
	key := strings.TrimSpace(c.Param("key"))
	if key == "" {
		Error(c, http.StatusBadRequest, "switch key is required", nil)
		return
	}
	var req setSwitchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if err := h.Settings.SetSwitch(c.Request.Context(), key, req.Enabled, req.Description); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, gin.H{"key": key, "enabled": req.Enabled}, nil)
}

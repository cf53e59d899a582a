package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"goldwatch/internal/ledger"
	"goldwatch/internal/models"
	"goldwatch/internal/repository"
	"goldwatch/internal/service"
)

type PositionHandler struct {
	Repo   repository.Repository
	Ledger *ledger.Ledger
	Symbol string
}

func (h *PositionHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/positions")
	group.GET("", h.listPositions)
	group.GET("/summary", h.summary)
	group.GET("/:id", h.getPosition)
	group.POST("/:id/close", h.closePosition)
}

func (h *PositionHandler) listPositions(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	status := strings.TrimSpace(c.Query("status"))
	userID := strings.TrimSpace(c.Query("user_id"))
	mode := strings.TrimSpace(c.Query("mode"))
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)

	var statusPtr, userPtr, modePtr *string
	if status != "" {
		statusPtr = &status
	}
	if userID != "" {
		userPtr = &userID
	}
	if mode != "" {
		modePtr = &mode
	}

	items, err := h.Repo.ListPositions(c.Request.Context(), repository.ListPositionsParams{
		Limit:   limit,
		Offset:  offset,
		Status:  statusPtr,
		UserID:  userPtr,
		Mode:    modePtr,
		OrderBy: "entry_at",
		Asc:     boolPtr(false),
	})
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	meta := paginationMeta(limit, offset, int64(len(items)))
	Ok(c, items, meta)
}

func (h *PositionHandler) summary(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	userID := strings.TrimSpace(c.Query("user_id"))
	out, err := h.Repo.PositionsSummary(c.Request.Context(), userID)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, out, nil)
}

func (h *PositionHandler) getPosition(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	id, ok := uint64Param(c, "id")
	if !ok {
		Error(c, http.StatusBadRequest, "invalid position id", nil)
		return
	}
	item, err := h.Repo.GetPositionByID(c.Request.Context(), id)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "position not found", nil)
		return
	}
	// Mark open positions to the latest price on the way out.
	if item.Status == models.PositionOpen {
		if tick, tickErr := h.Repo.LatestTick(c.Request.Context(), h.Symbol); tickErr == nil && tick != nil {
			plPct, plAbs := ledger.Unrealized(item, tick.Close)
			Ok(c, gin.H{
				"position":              item,
				"unrealized_pl":         plAbs,
				"unrealized_pl_percent": plPct,
				"mark_price":            tick.Close,
			}, nil)
			return
		}
	}
	Ok(c, item, nil)
}

type closePositionRequest struct {
	ExitPrice *decimal.Decimal `json:"exit_price"`
}

func (h *PositionHandler) closePosition(c *gin.Context) {
	if h.Ledger == nil {
		Error(c, http.StatusInternalServerError, "ledger unavailable", nil)
		return
	}
	id, ok := uint64Param(c, "id")
	if !ok {
		Error(c, http.StatusBadRequest, "invalid position id", nil)
		return
	}
	var req closePositionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			Error(c, http.StatusBadRequest, err.Error(), nil)
			return
		}
	}
	item, err := h.Ledger.Close(c.Request.Context(), id, req.ExitPrice, service.CloseReasonUser)
	if err != nil {
		if errors.Is(err, repository.ErrPositionNotOpen) {
			Error(c, http.StatusConflict, "position is not open", nil)
			return
		}
		if errors.Is(err, ledger.ErrNoMarketPrice) {
			Error(c, http.StatusConflict, "no market price for at-market close", nil)
			return
		}
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, item, nil)
}

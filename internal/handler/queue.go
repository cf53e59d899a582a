package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"goldwatch/internal/models"
	"goldwatch/internal/repository"
)

type QueueHandler struct {
	Repo repository.Repository
}

func (h *QueueHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/queue")
	group.GET("", h.listItems)
	group.GET("/stats", h.stats)
	group.POST("/:id/retry", h.retryItem)
}

func (h *QueueHandler) listItems(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	status := strings.TrimSpace(c.Query("status"))
	userID := strings.TrimSpace(c.Query("user_id"))
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)

	var statusPtr, userPtr *string
	if status != "" {
		statusPtr = &status
	}
	if userID != "" {
		userPtr = &userID
	}

	items, err := h.Repo.ListQueueItems(c.Request.Context(), repository.ListQueueItemsParams{
		Limit:   limit,
		Offset:  offset,
		Status:  statusPtr,
		UserID:  userPtr,
		OrderBy: "created_at",
		Asc:     boolPtr(false),
	})
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	meta := paginationMeta(limit, offset, int64(len(items)))
	Ok(c, items, meta)
}

func (h *QueueHandler) stats(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	counts, err := h.Repo.CountQueueByStatus(c.Request.Context())
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, counts, nil)
}

// retryItem re-enqueues a failed item as a fresh pending row. Terminal rows
// are never mutated, so the original failure stays on record.
func (h *QueueHandler) retryItem(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	id, ok := uint64Param(c, "id")
	if !ok {
		Error(c, http.StatusBadRequest, "invalid queue item id", nil)
		return
	}
	item, err := h.Repo.GetQueueItemByID(c.Request.Context(), id)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "queue item not found", nil)
		return
	}
	if item.Status != models.QueueFailed {
		Error(c, http.StatusConflict, "only failed items can be retried", nil)
		return
	}
	fresh := &models.QueueItem{
		SignalID: item.SignalID,
		UserID:   item.UserID,
		Status:   models.QueuePending,
		Attempt:  item.Attempt + 1,
	}
	if err := h.Repo.InsertQueueItem(c.Request.Context(), fresh); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, fresh, nil)
}

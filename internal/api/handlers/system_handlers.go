package handlers

import (
	"net/http"

	"facespace/internal/utils"

	"github.com/gin-gonic/gin"
)

// GetStatus reports system, worker pool, storage and model state.
func (h *APIHandler) GetStatus(c *gin.Context) {
	stats, err := h.service.Repository().GetStatistics()
	if err != nil {
		writeError(c, err)
		return
	}

	resp := gin.H{
		"system":     utils.GetSystemStats(h.pool),
		"statistics": stats,
		"trained":    false,
	}
	if model := h.service.Model(); model != nil {
		resp["trained"] = true
		resp["model"] = newModelInfo(model)
	}
	if h.sseHub != nil {
		resp["sse_clients"] = h.sseHub.ClientCount()
	}
	c.JSON(http.StatusOK, resp)
}

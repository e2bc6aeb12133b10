package handler

import (
	"net/http"

	"github.com/mediagate/modgate/internal/middleware"
	"github.com/mediagate/modgate/internal/model"
	"github.com/mediagate/modgate/internal/service"

	"github.com/gin-gonic/gin"
)

type StatsHandler struct {
	svc *service.StatsService
}

func NewStatsHandler(svc *service.StatsService) *StatsHandler {
	return &StatsHandler{svc: svc}
}

func (h *StatsHandler) GetStats(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)
	timeRange := model.StatsTimeRange(c.DefaultQuery("range", string(model.Range24h)))

	stats, err := h.svc.GetStats(c.Request.Context(), timeRange, actor.OrganizationID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

package handler

import (
	"net/http"
	"time"

	"dispatchconsole/internal/apperror"
	"dispatchconsole/internal/middleware"
	"dispatchconsole/internal/service"
	"dispatchconsole/pkg/response"

	"github.com/gin-gonic/gin"
)

type StatisticsHandler struct {
	statisticsService service.StatisticsService
	readers           []string
}

func NewStatisticsHandler(statisticsService service.StatisticsService, readerRoles ...string) *StatisticsHandler {
	return &StatisticsHandler{statisticsService: statisticsService, readers: readerRoles}
}

func (h *StatisticsHandler) RegisterRoutes(router *gin.RouterGroup) {
	statsGroup := router.Group("/statistics")
	{
		statsGroup.GET("", middleware.RequireRole(h.readers...), h.GetStatistics)
	}
}

// @Summary      Get dashboard statistics
// @Description  Approval request counts by status and type, pending backlog per category and machine totals
// @Tags         statistics
// @Produce      json
// @Param        start_date query string false "Start Date (RFC3339), defaults to the first of the month"
// @Param        end_date   query string false "End Date (RFC3339), defaults to now"
// @Success      200 {object} response.Response{data=service.StatisticsResponse}
// @Failure      400 {object} response.Response "Invalid date format"
// @Failure      403 {object} response.Response
// @Security     BearerAuth
// @Router       /api/statistics [get]
func (h *StatisticsHandler) GetStatistics(c *gin.Context) {
	now := time.Now()
	startDate := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	endDate := now

	if s := c.Query("start_date"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			writeError(c, apperror.Validation("invalid start_date format, expected RFC3339"))
			return
		}
		startDate = t
	}
	if s := c.Query("end_date"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			writeError(c, apperror.Validation("invalid end_date format, expected RFC3339"))
			return
		}
		endDate = t
	}
	if endDate.Before(startDate) {
		writeError(c, apperror.Validation("end_date must not be before start_date"))
		return
	}

	stats, err := h.statisticsService.GetStatistics(c.Request.Context(), startDate, endDate)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, stats))
}

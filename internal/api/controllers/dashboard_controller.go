package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	rm "finmodel/internal/models/response_models"
	"finmodel/internal/services"
	"finmodel/pkg/utils"
)

type DashboardController struct {
	dashboardService services.DashboardService
}

func NewDashboardController(dashboardService services.DashboardService) *DashboardController {
	return &DashboardController{
		dashboardService: dashboardService,
	}
}

// GetDashboard godoc
// @Summary Operator billing overview
// @Description Subscription counts, plan mix with seat utilization, one-off revenue and webhook outcomes
// @Tags Admin
// @Produce json
// @Param start     query string false "RFC3339 start"
// @Param end       query string false "RFC3339 end"
// @Param last_days query int    false "Lookback in days, exclusive with start/end. Default 30"
// @Success 200 {object} utils.APIResponse
// @Failure 400 {object} utils.APIResponse
// @Failure 403 {object} utils.APIResponse
// @Security BearerAuth
// @Router /admin/dashboard [get]
func (p *DashboardController) GetDashboard(c *gin.Context) {
	rng, err := parseReportRange(c.Query("start"), c.Query("end"), c.Query("last_days"), time.Now().UTC())
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, err.Error())
		return
	}

	report, err := p.dashboardService.BuildDashboard(c.Request.Context(), rng)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.RespondSuccess(c, report, "Dashboard data fetched successfully")
}

// parseReportRange leaves unset bounds zero; the service fills the defaults.
func parseReportRange(startStr, endStr, lastDaysStr string, now time.Time) (rm.TimeRange, error) {
	var rng rm.TimeRange

	if lastDaysStr != "" {
		if startStr != "" || endStr != "" {
			return rng, errors.New("provide either last_days or start/end (not both)")
		}
		days, err := strconv.Atoi(lastDaysStr)
		if err != nil || days <= 0 {
			return rng, errors.New("last_days must be a positive integer")
		}
		rng.End = now
		rng.Start = now.AddDate(0, 0, -days)
		return rng, nil
	}

	var err error
	if startStr != "" {
		if rng.Start, err = time.Parse(time.RFC3339, startStr); err != nil {
			return rng, errors.New("start must be RFC3339 (e.g. 2026-10-01T00:00:00Z)")
		}
	}
	if endStr != "" {
		if rng.End, err = time.Parse(time.RFC3339, endStr); err != nil {
			return rng, errors.New("end must be RFC3339 (e.g. 2026-10-19T23:59:59Z)")
		}
	}
	return rng, nil
}

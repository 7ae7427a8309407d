package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	dbm "finmodel/internal/models/db_models"
	"finmodel/internal/models/request_models"
	"finmodel/internal/services"
	"finmodel/pkg/utils"
)

// EntitlementController exposes the read-only gates so clients can grey out
// actions ahead of time. A denial here is data, so it is answered with 200.
type EntitlementController struct {
	entitlements services.EntitlementServiceInterface
}

func NewEntitlementController(entitlements services.EntitlementServiceInterface) *EntitlementController {
	return &EntitlementController{entitlements: entitlements}
}

// CanCreateModel godoc
// @Summary Check whether the company can create another file
// @Tags Entitlements
// @Produce json
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /entitlements/can-create-model [get]
func (e *EntitlementController) CanCreateModel(c *gin.Context) {
	_, companyID, ok := identity(c)
	if !ok {
		return
	}

	verdict, err := e.entitlements.CanCreateModel(c.Request.Context(), companyID)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.RespondSuccess(c, verdict, "Entitlement evaluated")
}

// CanInvite godoc
// @Summary Check whether the caller can share a file
// @Tags Entitlements
// @Produce json
// @Param id path string true "File ID"
// @Param permission query string true "view or edit"
// @Param email query string false "Invitee email"
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /files/{id}/can-invite [get]
func (e *EntitlementController) CanInvite(c *gin.Context) {
	userID, _, ok := identity(c)
	if !ok {
		return
	}
	instanceID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var q request_models.CanInviteQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Invalid query parameters")
		return
	}

	verdict, err := e.entitlements.CanInvite(c.Request.Context(), instanceID, userID, dbm.SharePermission(q.Permission), q.Email)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.RespondSuccess(c, verdict, "Entitlement evaluated")
}

// InviteEligibility godoc
// @Summary Check whether the company can add another editor
// @Tags Entitlements
// @Produce json
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /entitlements/invite-eligibility [get]
func (e *EntitlementController) InviteEligibility(c *gin.Context) {
	_, companyID, ok := identity(c)
	if !ok {
		return
	}

	verdict, err := e.entitlements.CheckInviteEligibility(c.Request.Context(), companyID)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.RespondSuccess(c, verdict, "Entitlement evaluated")
}

// Limits godoc
// @Summary Plan limits and usage of the caller's company
// @Tags Entitlements
// @Produce json
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /entitlements/limits [get]
func (e *EntitlementController) Limits(c *gin.Context) {
	_, companyID, ok := identity(c)
	if !ok {
		return
	}

	limits, err := e.entitlements.CompanyLimits(c.Request.Context(), companyID)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.RespondSuccess(c, limits, "Limits fetched successfully")
}

package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	dbm "finmodel/internal/models/db_models"
	"finmodel/internal/models/request_models"
	"finmodel/internal/services"
	"finmodel/pkg/utils"
)

type CompanyController struct {
	companyService services.CompanyServiceInterface
}

func NewCompanyController(companyService services.CompanyServiceInterface) *CompanyController {
	return &CompanyController{companyService: companyService}
}

// ListMembers godoc
// @Summary List active members of the caller's company
// @Tags Company
// @Produce json
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /company/members [get]
func (cc *CompanyController) ListMembers(c *gin.Context) {
	userID, companyID, ok := identity(c)
	if !ok {
		return
	}

	members, err := cc.companyService.ListMembers(c.Request.Context(), userID, companyID)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.RespondSuccess(c, members, "Members fetched successfully")
}

// UpdateRole godoc
// @Summary Change a member's role
// @Tags Company
// @Accept json
// @Produce json
// @Param userId path string true "Member user ID"
// @Param request body request_models.UpdateRoleRequest true "Role payload"
// @Success 200 {object} utils.APIResponse
// @Failure 403 {object} utils.APIResponse
// @Security BearerAuth
// @Router /company/members/{userId}/role [patch]
func (cc *CompanyController) UpdateRole(c *gin.Context) {
	ownerID, companyID, ok := identity(c)
	if !ok {
		return
	}
	memberID, ok := pathUUID(c, "userId")
	if !ok {
		return
	}
	var req request_models.UpdateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Invalid request format")
		return
	}

	result, err := cc.companyService.UpdateMemberRole(c.Request.Context(), ownerID, companyID, memberID, dbm.MemberRole(req.Role))
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	if result.Verdict.Denied() {
		respondDenied(c, result.Verdict, result)
		return
	}
	utils.RespondSuccess(c, result, "Role updated successfully")
}

// RemoveMember godoc
// @Summary Remove a member from the caller's company
// @Tags Company
// @Produce json
// @Param userId path string true "Member user ID"
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /company/members/{userId} [delete]
func (cc *CompanyController) RemoveMember(c *gin.Context) {
	ownerID, companyID, ok := identity(c)
	if !ok {
		return
	}
	memberID, ok := pathUUID(c, "userId")
	if !ok {
		return
	}

	result, err := cc.companyService.RemoveMember(c.Request.Context(), ownerID, companyID, memberID)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.RespondSuccess(c, result, "Member removed successfully")
}

package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	dbm "finmodel/internal/models/db_models"
	"finmodel/internal/models/request_models"
	"finmodel/internal/services"
	"finmodel/pkg/utils"
)

type ShareController struct {
	shareService services.ShareServiceInterface
}

func NewShareController(shareService services.ShareServiceInterface) *ShareController {
	return &ShareController{shareService: shareService}
}

// ShareFile godoc
// @Summary Share a file with an email address
// @Tags Sharing
// @Accept json
// @Produce json
// @Param id path string true "File ID"
// @Param request body request_models.ShareFileRequest true "Share payload"
// @Success 201 {object} utils.APIResponse
// @Failure 403 {object} utils.APIResponse
// @Security BearerAuth
// @Router /files/{id}/shares [post]
func (s *ShareController) ShareFile(c *gin.Context) {
	userID, _, ok := identity(c)
	if !ok {
		return
	}
	instanceID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var req request_models.ShareFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Invalid request format")
		return
	}

	result, err := s.shareService.SendInvitation(c.Request.Context(), userID, instanceID, req.Email, dbm.SharePermission(req.Permission))
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	if result.Verdict.Denied() {
		respondDenied(c, result.Verdict, result)
		return
	}

	utils.RespondCreated(c, result, "Invitation sent successfully")
}

// ListCollaborators godoc
// @Summary List the active shares of a file
// @Tags Sharing
// @Produce json
// @Param id path string true "File ID"
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /files/{id}/shares [get]
func (s *ShareController) ListCollaborators(c *gin.Context) {
	userID, _, ok := identity(c)
	if !ok {
		return
	}
	instanceID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	collaborators, err := s.shareService.ListCollaborators(c.Request.Context(), userID, instanceID)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.RespondSuccess(c, collaborators, "Collaborators fetched successfully")
}

// Resend godoc
// @Summary Resend a pending invitation with a fresh token
// @Tags Sharing
// @Produce json
// @Param shareId path string true "Share ID"
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /shares/{shareId}/resend [post]
func (s *ShareController) Resend(c *gin.Context) {
	userID, _, ok := identity(c)
	if !ok {
		return
	}
	shareID, ok := pathUUID(c, "shareId")
	if !ok {
		return
	}

	result, err := s.shareService.ResendInvitation(c.Request.Context(), userID, shareID)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.RespondSuccess(c, result, "Invitation resent successfully")
}

// UpdatePermission godoc
// @Summary Change the permission of a share
// @Tags Sharing
// @Accept json
// @Produce json
// @Param shareId path string true "Share ID"
// @Param request body request_models.UpdatePermissionRequest true "Permission payload"
// @Success 200 {object} utils.APIResponse
// @Failure 403 {object} utils.APIResponse
// @Security BearerAuth
// @Router /shares/{shareId}/permission [patch]
func (s *ShareController) UpdatePermission(c *gin.Context) {
	userID, _, ok := identity(c)
	if !ok {
		return
	}
	shareID, ok := pathUUID(c, "shareId")
	if !ok {
		return
	}
	var req request_models.UpdatePermissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Invalid request format")
		return
	}

	result, err := s.shareService.UpdatePermission(c.Request.Context(), userID, shareID, dbm.SharePermission(req.Permission))
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	if result.Verdict.Denied() {
		respondDenied(c, result.Verdict, result)
		return
	}
	utils.RespondSuccess(c, result, "Permission updated successfully")
}

// Delete godoc
// @Summary Revoke a share
// @Tags Sharing
// @Produce json
// @Param shareId path string true "Share ID"
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /shares/{shareId} [delete]
func (s *ShareController) Delete(c *gin.Context) {
	userID, _, ok := identity(c)
	if !ok {
		return
	}
	shareID, ok := pathUUID(c, "shareId")
	if !ok {
		return
	}

	result, err := s.shareService.DeleteInvitation(c.Request.Context(), userID, shareID)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.RespondSuccess(c, result, "Invitation deleted successfully")
}

// Respond godoc
// @Summary Accept or decline an invitation from its email link
// @Tags Sharing
// @Produce json
// @Param access_token query string true "Invitation token"
// @Param accepted query bool true "Accept or decline"
// @Success 200 {object} utils.APIResponse
// @Failure 400 {object} utils.APIResponse
// @Router /shares/respond [get]
func (s *ShareController) Respond(c *gin.Context) {
	var req request_models.RespondInvitationRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Invalid query parameters")
		return
	}

	result, err := s.shareService.RespondToInvitation(c.Request.Context(), req.AccessToken, *req.Accepted)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	message := "Invitation declined"
	if *req.Accepted {
		message = "Invitation accepted"
	}
	utils.RespondSuccess(c, result, message)
}

// SharedWithMe godoc
// @Summary Files of the current company shared with the caller
// @Tags Sharing
// @Produce json
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /shares/shared-with-me [get]
func (s *ShareController) SharedWithMe(c *gin.Context) {
	userID, companyID, ok := identity(c)
	if !ok {
		return
	}

	files, err := s.shareService.ListSharedWithMe(c.Request.Context(), userID, companyID)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.RespondSuccess(c, files, "Shared files retrieved successfully")
}

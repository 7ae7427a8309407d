package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"finmodel/internal/models/request_models"
	"finmodel/pkg/utils"
)

// Lock godoc
// @Summary Make a file read-only for everyone but the owner
// @Tags Files
// @Accept json
// @Produce json
// @Param id path string true "File ID"
// @Param request body request_models.LockFileRequest false "Lock reason"
// @Success 200 {object} utils.APIResponse
// @Failure 409 {object} utils.APIResponse
// @Security BearerAuth
// @Router /files/{id}/lock [post]
func (p *ProductController) Lock(c *gin.Context) {
	userID, companyID, ok := identity(c)
	if !ok {
		return
	}
	instanceID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var req request_models.LockFileRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondError(c, http.StatusBadRequest, "Invalid request format")
			return
		}
	}

	file, err := p.productService.LockModel(c.Request.Context(), companyID, userID, instanceID, req.Reason)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.RespondSuccess(c, file, "File locked successfully")
}

// Unlock godoc
// @Summary Release a file lock
// @Tags Files
// @Produce json
// @Param id path string true "File ID"
// @Success 200 {object} utils.APIResponse
// @Failure 409 {object} utils.APIResponse
// @Security BearerAuth
// @Router /files/{id}/unlock [post]
func (p *ProductController) Unlock(c *gin.Context) {
	userID, companyID, ok := identity(c)
	if !ok {
		return
	}
	instanceID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	file, err := p.productService.UnlockModel(c.Request.Context(), companyID, userID, instanceID)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.RespondSuccess(c, file, "File unlocked successfully")
}

// Versions godoc
// @Summary Version history of a file
// @Tags Files
// @Produce json
// @Param id path string true "File ID"
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /files/{id}/versions [get]
func (p *ProductController) Versions(c *gin.Context) {
	userID, companyID, ok := identity(c)
	if !ok {
		return
	}
	instanceID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	history, err := p.productService.ListVersions(c.Request.Context(), companyID, userID, instanceID)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.RespondSuccess(c, history, "Version history retrieved successfully")
}

// RestoreVersion godoc
// @Summary Copy an earlier version back as the newest one
// @Tags Files
// @Accept json
// @Produce json
// @Param id path string true "File ID"
// @Param versionId path string true "Version ID"
// @Param request body request_models.RestoreVersionRequest false "Reason"
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /files/{id}/versions/{versionId}/restore [post]
func (p *ProductController) RestoreVersion(c *gin.Context) {
	userID, companyID, ok := identity(c)
	if !ok {
		return
	}
	instanceID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	versionID, ok := pathUUID(c, "versionId")
	if !ok {
		return
	}
	var req request_models.RestoreVersionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondError(c, http.StatusBadRequest, "Invalid request format")
			return
		}
	}

	version, err := p.productService.RestoreVersion(c.Request.Context(), companyID, userID, instanceID, versionID, req.Reason)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.RespondSuccess(c, version, "Version restored successfully")
}

// Editors godoc
// @Summary Users with an active edit session on a file
// @Tags Files
// @Produce json
// @Param id path string true "File ID"
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /files/{id}/editors [get]
func (p *ProductController) Editors(c *gin.Context) {
	userID, companyID, ok := identity(c)
	if !ok {
		return
	}
	instanceID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	editors, err := p.productService.ListEditors(c.Request.Context(), companyID, userID, instanceID)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.RespondSuccess(c, gin.H{"active_editors": editors, "count": len(editors)}, "Active editors retrieved successfully")
}

// StartEdit godoc
// @Summary Open or resume an edit session
// @Tags Files
// @Produce json
// @Param id path string true "File ID"
// @Success 200 {object} utils.APIResponse
// @Failure 423 {object} utils.APIResponse
// @Security BearerAuth
// @Router /files/{id}/edit/start [post]
func (p *ProductController) StartEdit(c *gin.Context) {
	userID, companyID, ok := identity(c)
	if !ok {
		return
	}
	instanceID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	session, err := p.productService.StartEdit(c.Request.Context(), companyID, userID, instanceID)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.RespondSuccess(c, session, "Edit session started successfully")
}

// AutosaveSession godoc
// @Summary Store draft sections in an edit session
// @Tags Files
// @Accept json
// @Produce json
// @Param id path string true "File ID"
// @Param sessionId path string true "Session ID"
// @Param request body request_models.AutosaveSessionRequest true "Draft sections"
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /files/{id}/edit/sessions/{sessionId}/autosave [post]
func (p *ProductController) AutosaveSession(c *gin.Context) {
	userID, companyID, ok := identity(c)
	if !ok {
		return
	}
	instanceID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	sessionID, ok := pathUUID(c, "sessionId")
	if !ok {
		return
	}
	var req request_models.AutosaveSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Invalid request format")
		return
	}

	session, err := p.productService.AutosaveSession(c.Request.Context(), companyID, userID, instanceID, sessionID, req.Sections)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.RespondSuccess(c, session, "Draft saved successfully")
}

// SaveSession godoc
// @Summary Save an edit session as a new version
// @Tags Files
// @Accept json
// @Produce json
// @Param id path string true "File ID"
// @Param sessionId path string true "Session ID"
// @Param request body request_models.SaveSessionRequest false "Final sections and changelog"
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /files/{id}/edit/sessions/{sessionId}/save [post]
func (p *ProductController) SaveSession(c *gin.Context) {
	userID, companyID, ok := identity(c)
	if !ok {
		return
	}
	instanceID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	sessionID, ok := pathUUID(c, "sessionId")
	if !ok {
		return
	}
	var req request_models.SaveSessionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondError(c, http.StatusBadRequest, "Invalid request format")
			return
		}
	}

	result, err := p.productService.SaveSession(c.Request.Context(), companyID, userID, instanceID, sessionID, req)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.RespondSuccess(c, result, "Version saved successfully")
}

// DiscardSession godoc
// @Summary Drop an edit session's draft
// @Tags Files
// @Produce json
// @Param id path string true "File ID"
// @Param sessionId path string true "Session ID"
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /files/{id}/edit/sessions/{sessionId}/discard [post]
func (p *ProductController) DiscardSession(c *gin.Context) {
	userID, companyID, ok := identity(c)
	if !ok {
		return
	}
	instanceID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	sessionID, ok := pathUUID(c, "sessionId")
	if !ok {
		return
	}

	session, err := p.productService.DiscardSession(c.Request.Context(), companyID, userID, instanceID, sessionID)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.RespondSuccess(c, session, "Changes discarded successfully")
}

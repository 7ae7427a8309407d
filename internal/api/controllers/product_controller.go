package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"finmodel/internal/models/request_models"
	"finmodel/internal/services"
	"finmodel/pkg/utils"
)

type ProductController struct {
	productService services.ProductServiceInterface
}

func NewProductController(productService services.ProductServiceInterface) *ProductController {
	return &ProductController{productService: productService}
}

// Create godoc
// @Summary Create a financial model file
// @Tags Files
// @Accept json
// @Produce json
// @Param request body request_models.CreateProductRequest true "File payload"
// @Success 201 {object} utils.APIResponse
// @Failure 403 {object} utils.APIResponse
// @Security BearerAuth
// @Router /files [post]
func (p *ProductController) Create(c *gin.Context) {
	userID, companyID, ok := identity(c)
	if !ok {
		return
	}
	var req request_models.CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Invalid request format")
		return
	}

	result, err := p.productService.CreateModel(c.Request.Context(), companyID, userID, req)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	if result.Verdict.Denied() {
		respondDenied(c, result.Verdict, result)
		return
	}
	utils.RespondCreated(c, result.Instance, "File created successfully")
}

// List godoc
// @Summary List files of the caller's company
// @Tags Files
// @Produce json
// @Param archived query bool false "List archived files instead"
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /files [get]
func (p *ProductController) List(c *gin.Context) {
	userID, companyID, ok := identity(c)
	if !ok {
		return
	}
	archived, _ := strconv.ParseBool(c.DefaultQuery("archived", "false"))

	files, err := p.productService.ListModels(c.Request.Context(), companyID, userID, archived)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.RespondSuccess(c, files, "Files fetched successfully")
}

// Get godoc
// @Summary Get a file with its sections
// @Tags Files
// @Produce json
// @Param id path string true "File ID"
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /files/{id} [get]
func (p *ProductController) Get(c *gin.Context) {
	userID, companyID, ok := identity(c)
	if !ok {
		return
	}
	instanceID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	file, err := p.productService.GetModel(c.Request.Context(), companyID, userID, instanceID)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.RespondSuccess(c, file, "File fetched successfully")
}

// Clone godoc
// @Summary Duplicate a file
// @Tags Files
// @Produce json
// @Param id path string true "File ID"
// @Success 201 {object} utils.APIResponse
// @Failure 403 {object} utils.APIResponse
// @Security BearerAuth
// @Router /files/{id}/clone [post]
func (p *ProductController) Clone(c *gin.Context) {
	userID, companyID, ok := identity(c)
	if !ok {
		return
	}
	instanceID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	result, err := p.productService.CloneModel(c.Request.Context(), companyID, userID, instanceID)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	if result.Verdict.Denied() {
		respondDenied(c, result.Verdict, result)
		return
	}
	utils.RespondCreated(c, result.Instance, "File cloned successfully")
}

// Delete godoc
// @Summary Archive a file and revoke its shares
// @Tags Files
// @Produce json
// @Param id path string true "File ID"
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /files/{id} [delete]
func (p *ProductController) Delete(c *gin.Context) {
	userID, companyID, ok := identity(c)
	if !ok {
		return
	}
	instanceID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	result, err := p.productService.DeleteModel(c.Request.Context(), companyID, userID, instanceID)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.RespondSuccess(c, result, "File deleted successfully")
}

// Restore godoc
// @Summary Restore an archived file
// @Tags Files
// @Produce json
// @Param id path string true "File ID"
// @Success 200 {object} utils.APIResponse
// @Failure 403 {object} utils.APIResponse
// @Security BearerAuth
// @Router /files/{id}/restore [post]
func (p *ProductController) Restore(c *gin.Context) {
	userID, companyID, ok := identity(c)
	if !ok {
		return
	}
	instanceID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	result, err := p.productService.RestoreModel(c.Request.Context(), companyID, userID, instanceID)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	if result.Verdict.Denied() {
		respondDenied(c, result.Verdict, result)
		return
	}
	utils.RespondSuccess(c, result.Instance, "File restored successfully")
}

// SaveSection godoc
// @Summary Save the form data of one section
// @Tags Files
// @Accept json
// @Produce json
// @Param id path string true "File ID"
// @Param section path string true "Section name"
// @Param request body request_models.SaveSectionRequest true "Section data"
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /files/{id}/sections/{section} [put]
func (p *ProductController) SaveSection(c *gin.Context) {
	userID, companyID, ok := identity(c)
	if !ok {
		return
	}
	instanceID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var req request_models.SaveSectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Invalid request format")
		return
	}

	if err := p.productService.SaveSection(c.Request.Context(), companyID, userID, instanceID, c.Param("section"), req.Data); err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.RespondSuccess(c, nil, "Section saved successfully")
}

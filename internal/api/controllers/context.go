package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	rm "finmodel/internal/models/response_models"
	"finmodel/pkg/middleware"
	"finmodel/pkg/utils"
)

// identity reads the caller set by JWTAuthMiddleware. It writes the error
// response itself when the claims are unusable.
func identity(c *gin.Context) (userID, companyID uuid.UUID, ok bool) {
	userID, err := uuid.Parse(c.GetString(middleware.CtxUserID))
	if err != nil {
		utils.RespondError(c, http.StatusUnauthorized, "Invalid token subject")
		return uuid.Nil, uuid.Nil, false
	}
	companyID, err = uuid.Parse(c.GetString(middleware.CtxCompanyID))
	if err != nil {
		utils.RespondError(c, http.StatusUnauthorized, "Token carries no company")
		return uuid.Nil, uuid.Nil, false
	}
	return userID, companyID, true
}

func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// respondDenied writes a denied verdict. FILE_NOT_FOUND is a 404, every
// other reason is a 403.
func respondDenied(c *gin.Context, v *rm.Verdict, data interface{}) {
	code := http.StatusForbidden
	if v.Reason == rm.ReasonFileNotFound {
		code = http.StatusNotFound
	}
	utils.RespondErrorData(c, code, v.Message, data)
}

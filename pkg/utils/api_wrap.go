package utils

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type APIResponse struct {
	Status  string      `json:"status"`
	Code    int         `json:"code"`
	Message string      `json:"message,omitempty"`
	TraceID string      `json:"trace_id,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func RespondSuccess(c *gin.Context, data interface{}, message string) {
	RespondWithStatus(c, http.StatusOK, data, message)
}

func RespondCreated(c *gin.Context, data interface{}, message string) {
	RespondWithStatus(c, http.StatusCreated, data, message)
}

func RespondWithStatus(c *gin.Context, code int, data interface{}, message string) {
	c.JSON(code, APIResponse{
		Status:  "success",
		Code:    code,
		Message: message,
		TraceID: c.GetString("trace_id"),
		Data:    data,
	})
}

func RespondError(c *gin.Context, code int, message string) {
	c.JSON(code, APIResponse{
		Status:  "error",
		Code:    code,
		Message: message,
		TraceID: c.GetString("trace_id"),
	})
}

// RespondErrorData is an error envelope that still carries a payload, such as
// an entitlement verdict.
func RespondErrorData(c *gin.Context, code int, message string, data interface{}) {
	c.JSON(code, APIResponse{
		Status:  "error",
		Code:    code,
		Message: message,
		TraceID: c.GetString("trace_id"),
		Data:    data,
	})
}

type errorMapping struct {
	target  error
	code    int
	message string
}

var serviceErrors = []errorMapping{
	{RecordNotFound, http.StatusNotFound, "Record not found"},
	{ErrAccountNotFound, http.StatusNotFound, "Account not found"},
	{ErrInvalidCredentials, http.StatusUnauthorized, "Invalid email or password"},
	{ErrEmailAlreadyExists, http.StatusConflict, "Email already registered"},
	{ErrInvalidToken, http.StatusBadRequest, "Invalid token or expired"},
	{ErrPlanNotFound, http.StatusNotFound, "Plan not found"},
	{ErrSubscriptionNotFound, http.StatusNotFound, "Subscription not found"},
	{ErrBillingNotConfigured, http.StatusServiceUnavailable, "Billing is not configured"},
	{ErrInvalidProductType, http.StatusBadRequest, "Invalid product type"},
	{ErrNoBillingCustomer, http.StatusNotFound, "No billing account found for this company"},
	{ErrUnsupportedProvider, http.StatusBadRequest, "Unsupported login provider"},
	{ErrSocialAuthFailed, http.StatusUnauthorized, "Invalid or expired code"},
	{ErrSocialEmailMissing, http.StatusBadRequest, "Unable to fetch email from provider"},
	{ErrFileNotFound, http.StatusNotFound, "The requested file not found"},
	{ErrNotOwner, http.StatusForbidden, "Only workspace owner can perform this action"},
	{ErrInvitationNotFound, http.StatusNotFound, "Invitation not found"},
	{ErrSelfInvite, http.StatusBadRequest, "You cannot send an invitation to yourself"},
	{ErrAlreadyShared, http.StatusBadRequest, "File already shared with this user"},
	{ErrPermissionUnchanged, http.StatusConflict, "User already has this permission for this file"},
	{ErrInvalidPermission, http.StatusBadRequest, "Permission must be view or edit"},
	{ErrResendTooSoon, http.StatusBadRequest, "You can resend this invitation once 1 hour has passed since the last time it was sent"},
	{ErrFileNotArchived, http.StatusConflict, "File is not archived"},
	{ErrFileLocked, http.StatusLocked, "File is locked by the workspace owner"},
	{ErrFileAlreadyLocked, http.StatusConflict, "File is already locked"},
	{ErrFileNotLocked, http.StatusConflict, "File is already unlocked"},
	{ErrVersionNotFound, http.StatusNotFound, "Version not found"},
	{ErrSessionNotFound, http.StatusNotFound, "Edit session not found"},
	{ErrSessionClosed, http.StatusConflict, "Edit session is already closed"},
	{ErrMemberNotFound, http.StatusNotFound, "Company user not found"},
	{ErrSelfRoleChange, http.StatusForbidden, "You are not allowed to update your own role"},
	{ErrSelfRemoval, http.StatusForbidden, "You cannot delete yourself as a company member"},
	{ErrCannotChangeOwner, http.StatusForbidden, "The owner role cannot be changed"},
	{ErrRoleUnchanged, http.StatusConflict, "User already has this role for your company"},
	{ErrInvalidRole, http.StatusBadRequest, "Role must be editor or viewer"},
	{ErrInsufficientRole, http.StatusForbidden, "Your role does not allow this action"},
}

func HandleServiceError(c *gin.Context, err error) {
	for _, m := range serviceErrors {
		if errors.Is(err, m.target) {
			RespondError(c, m.code, m.message)
			return
		}
	}

	if errors.Is(err, ErrDatabaseError) {
		log.Error().Err(err).Str("trace_id", c.GetString("trace_id")).Msg("Database error")
	} else {
		log.Error().Err(err).Str("trace_id", c.GetString("trace_id")).Msg("Unhandled service error")
	}
	RespondError(c, http.StatusInternalServerError, "Internal server error")
}

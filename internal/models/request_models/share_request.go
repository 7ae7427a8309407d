package request_models

type ShareFileRequest struct {
	Email      string `json:"email" binding:"required,email"`
	Permission string `json:"permission" binding:"required,oneof=view edit"`
}

type UpdatePermissionRequest struct {
	Permission string `json:"permission" binding:"required,oneof=view edit"`
}

type RespondInvitationRequest struct {
	AccessToken string `form:"access_token" binding:"required"`
	Accepted    *bool  `form:"accepted" binding:"required"`
}

type CanInviteQuery struct {
	Permission string `form:"permission" binding:"required,oneof=view edit"`
	Email      string `form:"email" binding:"omitempty,email"`
}

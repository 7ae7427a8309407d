package utils

import "errors"

var (
	ErrDatabaseError        = errors.New("database error")
	RecordNotFound          = errors.New("record not found")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrEmailAlreadyExists   = errors.New("email already exists")
	ErrAccountNotFound      = errors.New("account not found")
	ErrInvalidToken         = errors.New("invalid or expired token")
	ErrPlanNotFound         = errors.New("plan not found")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrBillingNotConfigured = errors.New("billing not configured")
	ErrInvalidProductType   = errors.New("invalid product type")
	ErrNoBillingCustomer    = errors.New("no billing customer for company")
	ErrUnsupportedProvider  = errors.New("unsupported login provider")
	ErrSocialAuthFailed     = errors.New("social login failed")
	ErrSocialEmailMissing   = errors.New("provider returned no email")

	ErrFileNotFound        = errors.New("file not found")
	ErrNotOwner            = errors.New("only the workspace owner can perform this action")
	ErrInvitationNotFound  = errors.New("invitation not found")
	ErrSelfInvite          = errors.New("cannot invite yourself")
	ErrAlreadyShared       = errors.New("file already shared with this user")
	ErrPermissionUnchanged = errors.New("permission unchanged")
	ErrInvalidPermission   = errors.New("invalid permission")
	ErrResendTooSoon       = errors.New("invitation resent too recently")
	ErrFileNotArchived     = errors.New("file is not archived")
	ErrFileLocked          = errors.New("file is locked")
	ErrFileAlreadyLocked   = errors.New("file is already locked")
	ErrFileNotLocked       = errors.New("file is not locked")
	ErrVersionNotFound     = errors.New("version not found")
	ErrSessionNotFound     = errors.New("edit session not found")
	ErrSessionClosed       = errors.New("edit session is closed")

	ErrMemberNotFound    = errors.New("company member not found")
	ErrSelfRoleChange    = errors.New("cannot change your own role")
	ErrSelfRemoval       = errors.New("cannot remove yourself")
	ErrCannotChangeOwner = errors.New("owner role cannot be changed")
	ErrRoleUnchanged     = errors.New("role unchanged")
	ErrInvalidRole       = errors.New("invalid role")
	ErrInsufficientRole  = errors.New("insufficient company role")
)

package response_models

import "github.com/google/uuid"

type AccountLoginResponse struct {
	Token     string    `json:"token"`
	UserID    uuid.UUID `json:"user_id"`
	CompanyID uuid.UUID `json:"company_id"`
	PlanName  string    `json:"plan_name"`

	Provider    string `json:"provider,omitempty"`
	HasPassword *bool  `json:"has_password,omitempty"`
	NewAccount  bool   `json:"new_account,omitempty"`
}

type AccountResponse struct {
	ID            uuid.UUID `json:"id"`
	FullName      string    `json:"full_name"`
	Email         string    `json:"email"`
	EmailVerified bool      `json:"email_verified"`
	CompanyID     uuid.UUID `json:"company_id"`
	CompanyName   string    `json:"company_name"`
}

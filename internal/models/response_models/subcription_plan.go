package response_models

import "github.com/google/uuid"

type SubscriptionPlan struct {
	ID                   uuid.UUID `json:"id"`
	Name                 string    `json:"name"`
	MaxModels            int       `json:"max_models"`
	IncludedSeats        int       `json:"included_seats"`
	HasExport            bool      `json:"has_export"`
	HasAdvancedAnalytics bool      `json:"has_advanced_analytics"`
	HasAPIAccess         bool      `json:"has_api_access"`
	AllowsViewSharing    bool      `json:"allows_view_sharing"`
}

type CreateCheckoutResponse struct {
	URL       string `json:"url"`
	SessionID string `json:"session_id"`
}

type PortalSessionResponse struct {
	URL string `json:"url"`
}

type UsageSnapshot struct {
	Used      int `json:"used"`
	Limit     int `json:"limit"`
	Remaining int `json:"remaining"`
}

type FeatureFlags struct {
	ViewSharing       bool `json:"view_sharing"`
	EditSharing       bool `json:"edit_sharing"`
	Export            bool `json:"export"`
	AdvancedAnalytics bool `json:"advanced_analytics"`
	APIAccess         bool `json:"api_access"`
}

type SubscriptionStatusResponse struct {
	CompanyID          uuid.UUID     `json:"company_id"`
	PlanName           string        `json:"plan_name"`
	Status             string        `json:"status"`
	CancelAtPeriodEnd  bool          `json:"cancel_at_period_end"`
	StartDate          *int64        `json:"start_date,omitempty"`
	RenewalDate        *int64        `json:"renewal_date,omitempty"`
	TrialEndDate       *int64        `json:"trial_end_date,omitempty"`
	TrialDaysRemaining *int          `json:"trial_days_remaining,omitempty"`
	GraceDaysRemaining *int          `json:"grace_days_remaining,omitempty"`
	Models             UsageSnapshot `json:"models"`
	Seats              UsageSnapshot `json:"seats"`
	Features           FeatureFlags  `json:"features"`
}

type WebhookResult struct {
	EventID   string `json:"event_id"`
	Type      string `json:"type"`
	Duplicate bool   `json:"duplicate"`
	Outcome   string `json:"outcome"`
}

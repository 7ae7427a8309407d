package response_models

type ReasonCode string

const (
	ReasonFileNotFound         ReasonCode = "FILE_NOT_FOUND"
	ReasonNotOwner             ReasonCode = "NOT_OWNER"
	ReasonTrialExpired         ReasonCode = "TRIAL_EXPIRED"
	ReasonFreePlanViewOnly     ReasonCode = "FREE_PLAN_VIEW_ONLY"
	ReasonTeamLimitReached     ReasonCode = "TEAM_LIMIT_REACHED"
	ReasonModelLimitReached    ReasonCode = "MODEL_LIMIT_REACHED"
	ReasonNoActiveSubscription ReasonCode = "NO_ACTIVE_SUBSCRIPTION"
)

// Verdict is the outcome of an entitlement check. Denials are values, not errors.
type Verdict struct {
	Allowed    bool       `json:"allowed"`
	Reason     ReasonCode `json:"reason,omitempty"`
	Message    string     `json:"message,omitempty"`
	PlanName   string     `json:"plan_name,omitempty"`
	Role       string     `json:"role,omitempty"`
	Permission string     `json:"permission,omitempty"`
	Used       int        `json:"used"`
	Limit      int        `json:"limit"`
	Remaining  int        `json:"remaining"`
	SeatNeeded bool       `json:"seat_needed,omitempty"`
}

func (v *Verdict) Denied() bool {
	return v != nil && !v.Allowed
}

type CompanyLimits struct {
	Plan           string `json:"plan"`
	MaxModels      int    `json:"max_models"`
	IncludedSeats  int    `json:"included_seats"`
	ModelsCreated  int    `json:"models_created"`
	SeatsUsed      int    `json:"seats_used"`
	CanCreateModel bool   `json:"can_create_model"`
	CanInviteUsers bool   `json:"can_invite_users"`
	CanShareView   bool   `json:"can_share_view"`
}

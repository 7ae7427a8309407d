package response_models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type KPIBlock struct {
	TotalCompanies        int64 `json:"total_companies"`
	NewCompanies          int64 `json:"new_companies"`
	TrialingSubscriptions int64 `json:"trialing_subscriptions"`
	ActiveSubscriptions   int64 `json:"active_subscriptions"`
	PastDueSubscriptions  int64 `json:"past_due_subscriptions"`
	CanceledSubscriptions int64 `json:"canceled_subscriptions"`
	PaidSubscriptions     int64 `json:"paid_subscriptions"`

	// seats used / seats included across capped live subscriptions
	SeatUtilizationPct float64 `json:"seat_utilization_pct"`
}

type PlanMixItem struct {
	PlanName           string  `json:"plan_name"`
	Count              int64   `json:"count"`
	Percent            float64 `json:"percent"`
	SeatsUsed          int64   `json:"seats_used"`
	SeatsIncluded      int64   `json:"seats_included"` // 0 when uncapped
	ModelsUsed         int64   `json:"models_used"`
	ModelsAllowed      int64   `json:"models_allowed"`
	SeatUtilizationPct float64 `json:"seat_utilization_pct"`
}

type PlanMix struct {
	Items []PlanMixItem `json:"items"`
}

type CurrencyTotal struct {
	Currency string          `json:"currency"`
	Count    int64           `json:"count"`
	Total    decimal.Decimal `json:"total"`
}

type OneOffRevenue struct {
	Orders  []CurrencyTotal `json:"orders"`
	Credits []CurrencyTotal `json:"credits"`
}

type WebhookOutcome struct {
	Outcome string `json:"outcome"`
	Count   int64  `json:"count"`
}

type RecentOrder struct {
	ID            uuid.UUID       `json:"id"`
	CreatedAt     time.Time       `json:"created_at"`
	ProductType   string          `json:"product_type"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Status        string          `json:"status"`
	CustomerEmail string          `json:"customer_email"`
}

type DashboardReport struct {
	Range        TimeRange        `json:"range"`
	KPIs         KPIBlock         `json:"kpis"`
	PlanMix      PlanMix          `json:"plan_mix"`
	Revenue      OneOffRevenue    `json:"revenue"`
	Webhooks     []WebhookOutcome `json:"webhooks"`
	RecentOrders []RecentOrder    `json:"recent_orders"`
}

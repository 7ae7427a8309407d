package request_models

type SubscriptionCheckoutRequest struct {
	Email            string `json:"email" binding:"required,email"`
	SubscriptionType string `json:"subscription_type" binding:"required,oneof=founders_choice growth_engine"`
}

type OneOffCheckoutRequest struct {
	Email       string `json:"email" binding:"required,email"`
	ProductType string `json:"product_type" binding:"required,oneof=pitch_deck forecast complete"`
}

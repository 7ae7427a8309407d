package services

import (
	"encoding/json"
	"strings"
)

const (
	EventCheckoutCompleted   = "checkout.session.completed"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
	EventPaymentFailed       = "invoice.payment_failed"
)

// BillingEvent is a verified provider event. Data is the raw event object.
type BillingEvent struct {
	ID   string
	Type string
	Data json.RawMessage
}

// CheckoutSession is a minimal representation of a checkout.session object.
type CheckoutSession struct {
	ID              string `json:"id"`
	Mode            string `json:"mode"`
	Customer        string `json:"customer"`
	Subscription    string `json:"subscription"`
	PaymentIntent   string `json:"payment_intent"`
	CustomerEmail   string `json:"customer_email"`
	AmountTotal     int64  `json:"amount_total"`
	Currency        string `json:"currency"`
	CustomerDetails struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	} `json:"customer_details"`
	Metadata map[string]string `json:"metadata"`
}

func (c *CheckoutSession) Email() string {
	if email := strings.TrimSpace(c.CustomerDetails.Email); email != "" {
		return email
	}
	return strings.TrimSpace(c.CustomerEmail)
}

// SubscriptionObject is a minimal representation of a subscription object.
type SubscriptionObject struct {
	ID                  string `json:"id"`
	Customer            string `json:"customer"`
	Status              string `json:"status"`
	CancelAtPeriodEnd   bool   `json:"cancel_at_period_end"`
	CancelAt            int64  `json:"cancel_at"`
	StartDate           int64  `json:"start_date"`
	LatestInvoice       string `json:"latest_invoice"`
	CancellationDetails struct {
		Comment string `json:"comment"`
		Reason  string `json:"reason"`
	} `json:"cancellation_details"`
	Items struct {
		Data []struct {
			CurrentPeriodStart int64 `json:"current_period_start"`
			CurrentPeriodEnd   int64 `json:"current_period_end"`
			Price              struct {
				ID         string `json:"id"`
				UnitAmount int64  `json:"unit_amount"`
				Currency   string `json:"currency"`
				Recurring  struct {
					Interval string `json:"interval"`
				} `json:"recurring"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

// Period returns the current billing period of the first item.
func (s *SubscriptionObject) Period() (start, end int64) {
	if len(s.Items.Data) == 0 {
		return 0, 0
	}
	return s.Items.Data[0].CurrentPeriodStart, s.Items.Data[0].CurrentPeriodEnd
}

// InvoiceObject is a minimal representation of an invoice object.
type InvoiceObject struct {
	ID                 string `json:"id"`
	Customer           string `json:"customer"`
	CustomerEmail      string `json:"customer_email"`
	AmountDue          int64  `json:"amount_due"`
	Currency           string `json:"currency"`
	Created            int64  `json:"created"`
	AttemptCount       int64  `json:"attempt_count"`
	NextPaymentAttempt *int64 `json:"next_payment_attempt"`
	PaymentIntent      string `json:"payment_intent"`
	Subscription       string `json:"subscription"`
	Parent             struct {
		SubscriptionDetails struct {
			Subscription string `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

// SubscriptionID prefers the parent reference and falls back to the legacy field.
func (i *InvoiceObject) SubscriptionID() string {
	if id := strings.TrimSpace(i.Parent.SubscriptionDetails.Subscription); id != "" {
		return id
	}
	return strings.TrimSpace(i.Subscription)
}

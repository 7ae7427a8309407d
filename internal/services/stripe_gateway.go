package services

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
	portalsession "github.com/stripe/stripe-go/v82/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/invoice"
	"github.com/stripe/stripe-go/v82/paymentintent"
	"github.com/stripe/stripe-go/v82/subscription"

	"finmodel/internal/config"
	"finmodel/pkg/utils"
)

const cancelCommentUpgraded = "upgraded"

// ProviderSubscription is the provider's view of a subscription.
type ProviderSubscription struct {
	ID                 string
	CustomerID         string
	Status             string
	CancelAtPeriodEnd  bool
	StartDate          int64
	CurrentPeriodStart int64
	CurrentPeriodEnd   int64
	PriceID            string
	Interval           string
	Amount             decimal.Decimal
	Currency           string
}

type ProviderCustomer struct {
	ID    string
	Email string
	Name  string
}

type ProviderInvoice struct {
	ID        string
	AmountDue decimal.Decimal
	Currency  string
	Email     string
}

type CheckoutSessionInput struct {
	Mode       stripe.CheckoutSessionMode
	PriceID    string
	Email      string
	Metadata   map[string]string
	SuccessURL string
	CancelURL  string
}

// BillingProvider is the narrow slice of the payment provider the billing
// code needs. CancelSubscription is a no-op for subscriptions already canceled.
type BillingProvider interface {
	GetSubscription(ctx context.Context, id string) (*ProviderSubscription, error)
	CancelSubscription(ctx context.Context, id, comment string) error
	GetCustomer(ctx context.Context, id string) (*ProviderCustomer, error)
	GetInvoice(ctx context.Context, id string) (*ProviderInvoice, error)
	PaymentFailureReason(ctx context.Context, paymentIntentID string) (string, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
	CreateCheckoutSession(ctx context.Context, in CheckoutSessionInput) (id, url string, err error)
}

type stripeGateway struct {
	configured bool
}

func NewStripeGateway(cfg *config.Config) BillingProvider {
	stripe.Key = cfg.Stripe.SecretKey
	return &stripeGateway{configured: strings.TrimSpace(cfg.Stripe.SecretKey) != ""}
}

// centsToDecimal converts minor units to a two-decimal amount.
func centsToDecimal(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

func (g *stripeGateway) GetSubscription(ctx context.Context, id string) (*ProviderSubscription, error) {
	if !g.configured {
		return nil, utils.ErrBillingNotConfigured
	}
	params := &stripe.SubscriptionParams{}
	params.Context = ctx

	sub, err := subscription.Get(id, params)
	if err != nil {
		return nil, err
	}

	out := &ProviderSubscription{
		ID:                sub.ID,
		Status:            string(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		StartDate:         sub.StartDate,
	}
	if sub.Customer != nil {
		out.CustomerID = sub.Customer.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		out.CurrentPeriodStart = item.CurrentPeriodStart
		out.CurrentPeriodEnd = item.CurrentPeriodEnd
		if item.Price != nil {
			out.PriceID = item.Price.ID
			out.Amount = centsToDecimal(item.Price.UnitAmount)
			out.Currency = string(item.Price.Currency)
			if item.Price.Recurring != nil {
				out.Interval = string(item.Price.Recurring.Interval)
			}
		}
	}
	return out, nil
}

func (g *stripeGateway) CancelSubscription(ctx context.Context, id, comment string) error {
	if !g.configured {
		return utils.ErrBillingNotConfigured
	}

	current, err := g.GetSubscription(ctx, id)
	if err != nil {
		return err
	}
	if current.Status == string(stripe.SubscriptionStatusCanceled) {
		return nil
	}

	params := &stripe.SubscriptionCancelParams{
		InvoiceNow: stripe.Bool(false),
		Prorate:    stripe.Bool(false),
	}
	if comment != "" {
		params.CancellationDetails = &stripe.SubscriptionCancelCancellationDetailsParams{
			Comment: stripe.String(comment),
		}
	}
	params.Context = ctx

	_, err = subscription.Cancel(id, params)
	return err
}

func (g *stripeGateway) GetCustomer(ctx context.Context, id string) (*ProviderCustomer, error) {
	if !g.configured {
		return nil, utils.ErrBillingNotConfigured
	}
	params := &stripe.CustomerParams{}
	params.Context = ctx

	c, err := customer.Get(id, params)
	if err != nil {
		return nil, err
	}
	return &ProviderCustomer{ID: c.ID, Email: c.Email, Name: c.Name}, nil
}

func (g *stripeGateway) GetInvoice(ctx context.Context, id string) (*ProviderInvoice, error) {
	if !g.configured {
		return nil, utils.ErrBillingNotConfigured
	}
	params := &stripe.InvoiceParams{}
	params.Context = ctx

	inv, err := invoice.Get(id, params)
	if err != nil {
		return nil, err
	}
	return &ProviderInvoice{
		ID:        inv.ID,
		AmountDue: centsToDecimal(inv.AmountDue),
		Currency:  string(inv.Currency),
		Email:     inv.CustomerEmail,
	}, nil
}

func (g *stripeGateway) PaymentFailureReason(ctx context.Context, paymentIntentID string) (string, error) {
	if !g.configured {
		return "", utils.ErrBillingNotConfigured
	}
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := paymentintent.Get(paymentIntentID, params)
	if err != nil {
		return "", err
	}
	if pi.LastPaymentError == nil {
		return "", nil
	}
	if pi.LastPaymentError.Code != "" {
		return string(pi.LastPaymentError.Code), nil
	}
	return pi.LastPaymentError.Msg, nil
}

func (g *stripeGateway) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	if !g.configured {
		return "", utils.ErrBillingNotConfigured
	}
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx

	s, err := portalsession.New(params)
	if err != nil {
		return "", err
	}
	return s.URL, nil
}

func (g *stripeGateway) CreateCheckoutSession(ctx context.Context, in CheckoutSessionInput) (string, string, error) {
	if !g.configured {
		return "", "", utils.ErrBillingNotConfigured
	}
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(in.Mode)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(in.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(in.SuccessURL),
		CancelURL:  stripe.String(in.CancelURL),
	}
	if in.Email != "" {
		params.CustomerEmail = stripe.String(in.Email)
	}
	for k, v := range in.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx

	s, err := checkoutsession.New(params)
	if err != nil {
		return "", "", err
	}
	return s.ID, s.URL, nil
}

package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/stripe/stripe-go/v82"

	"finmodel/internal/config"
	dbm "finmodel/internal/models/db_models"
	"finmodel/internal/models/response_models"
	"finmodel/internal/repositories"
	"finmodel/pkg/utils"
)

const checkoutSessionPlaceholder = "{CHECKOUT_SESSION_ID}"

type PaymentService interface {
	CreateSubscriptionCheckout(ctx context.Context, email, subscriptionType string) (*response_models.CreateCheckoutResponse, error)
	CreateOneOffCheckout(ctx context.Context, email, productType string) (*response_models.CreateCheckoutResponse, error)
	CreatePortalSession(ctx context.Context, userID, companyID uuid.UUID) (*response_models.PortalSessionResponse, error)
	SubscriptionStatus(ctx context.Context, companyID uuid.UUID) (*response_models.SubscriptionStatusResponse, error)
	GetPlans(ctx context.Context) ([]response_models.SubscriptionPlan, error)
}

type paymentService struct {
	subRepo    repositories.SubscriptionRepository
	memberRepo repositories.MembershipRepository
	plans      PlanServiceInterface
	provider   BillingProvider
	cfg        *config.Config
	now        func() time.Time
}

func NewPaymentService(
	subRepo repositories.SubscriptionRepository,
	memberRepo repositories.MembershipRepository,
	plans PlanServiceInterface,
	provider BillingProvider,
	cfg *config.Config,
) PaymentService {
	return &paymentService{
		subRepo:    subRepo,
		memberRepo: memberRepo,
		plans:      plans,
		provider:   provider,
		cfg:        cfg,
		now:        time.Now,
	}
}

// subscriptionPrice maps a checkout subscription type to its plan and price.
func (p *paymentService) subscriptionPrice(subscriptionType string) (planName, priceID string, ok bool) {
	switch subscriptionType {
	case "founders_choice":
		return dbm.PlanFoundersChoice, p.cfg.Stripe.PriceFounders, true
	case "growth_engine":
		return dbm.PlanGrowthEngine, p.cfg.Stripe.PriceGrowth, true
	}
	return "", "", false
}

func (p *paymentService) oneOffPrice(productType string) (string, bool) {
	switch productType {
	case "pitch_deck":
		return p.cfg.Stripe.PricePitchDeck, true
	case "forecast":
		return p.cfg.Stripe.PriceForecast, true
	case "complete":
		return p.cfg.Stripe.PriceCompleteSet, true
	}
	return "", false
}

func (p *paymentService) CreateSubscriptionCheckout(ctx context.Context, email, subscriptionType string) (*response_models.CreateCheckoutResponse, error) {
	planName, priceID, ok := p.subscriptionPrice(subscriptionType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", utils.ErrPlanNotFound, subscriptionType)
	}
	if priceID == "" {
		return nil, utils.ErrBillingNotConfigured
	}

	return p.checkout(ctx, CheckoutSessionInput{
		Mode:       stripe.CheckoutSessionModeSubscription,
		PriceID:    priceID,
		Email:      dbm.NormalizeEmail(email),
		Metadata:   map[string]string{"subscription_type": planName},
		SuccessURL: p.cfg.FrontendBaseURL + "/checkout/success?session_id=" + checkoutSessionPlaceholder,
		CancelURL:  p.cfg.FrontendBaseURL + "/pricing",
	})
}

func (p *paymentService) CreateOneOffCheckout(ctx context.Context, email, productType string) (*response_models.CreateCheckoutResponse, error) {
	priceID, ok := p.oneOffPrice(productType)
	if !ok {
		return nil, utils.ErrInvalidProductType
	}
	if priceID == "" {
		return nil, utils.ErrBillingNotConfigured
	}

	return p.checkout(ctx, CheckoutSessionInput{
		Mode:       stripe.CheckoutSessionModePayment,
		PriceID:    priceID,
		Email:      dbm.NormalizeEmail(email),
		Metadata:   map[string]string{"product_type": productType},
		SuccessURL: p.cfg.FrontendBaseURL + "/checkout/success?session_id=" + checkoutSessionPlaceholder,
		CancelURL:  p.cfg.FrontendBaseURL + "/services",
	})
}

func (p *paymentService) checkout(ctx context.Context, in CheckoutSessionInput) (*response_models.CreateCheckoutResponse, error) {
	id, url, err := p.provider.CreateCheckoutSession(ctx, in)
	if err != nil {
		log.Error().Err(err).Str("mode", string(in.Mode)).Msg("Create checkout session failed")
		return nil, err
	}
	return &response_models.CreateCheckoutResponse{URL: url, SessionID: id}, nil
}

func (p *paymentService) CreatePortalSession(ctx context.Context, userID, companyID uuid.UUID) (*response_models.PortalSessionResponse, error) {
	role, ok, err := p.memberRepo.GetRole(ctx, companyID, userID)
	if err != nil {
		return nil, utils.ErrDatabaseError
	}
	if !ok || role != dbm.RoleOwner {
		return nil, utils.ErrNotOwner
	}

	sub, err := p.subRepo.FindByCompanyID(ctx, companyID)
	if err != nil {
		return nil, utils.ErrDatabaseError
	}
	if sub == nil || sub.StripeCustomerID == nil || *sub.StripeCustomerID == "" {
		return nil, utils.ErrNoBillingCustomer
	}

	url, err := p.provider.CreatePortalSession(ctx, *sub.StripeCustomerID, p.cfg.FrontendBaseURL+"/settings/billing")
	if err != nil {
		return nil, err
	}
	return &response_models.PortalSessionResponse{URL: url}, nil
}

func (p *paymentService) SubscriptionStatus(ctx context.Context, companyID uuid.UUID) (*response_models.SubscriptionStatusResponse, error) {
	sub, err := p.subRepo.FindByCompanyID(ctx, companyID)
	if err != nil {
		return nil, utils.ErrDatabaseError
	}
	if sub == nil {
		return nil, utils.ErrSubscriptionNotFound
	}
	plan, err := p.plans.Lookup(ctx, sub.PlanName)
	if err != nil {
		return nil, err
	}

	now := p.now()
	out := &response_models.SubscriptionStatusResponse{
		CompanyID:         companyID,
		PlanName:          plan.Name,
		Status:            string(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		StartDate:         sub.StartDate,
		RenewalDate:       sub.RenewalDate,
		TrialEndDate:      sub.TrialEndDate,
		Models: response_models.UsageSnapshot{
			Used:      sub.ModelsUsed,
			Limit:     plan.MaxModels,
			Remaining: max(plan.MaxModels-sub.ModelsUsed, 0),
		},
		Seats: response_models.UsageSnapshot{
			Used:      sub.SeatsUsed,
			Limit:     plan.IncludedSeats,
			Remaining: remainingSeats(sub, plan),
		},
		Features: response_models.FeatureFlags{
			ViewSharing:       plan.AllowsViewSharing,
			EditSharing:       !plan.IsFree(),
			Export:            plan.HasExport,
			AdvancedAnalytics: plan.HasAdvancedAnalytics,
			APIAccess:         plan.HasAPIAccess,
		},
	}

	if sub.Status == dbm.SubStatusTrialing && sub.TrialEndDate != nil {
		days := utils.DaysUntil(now, time.Unix(*sub.TrialEndDate, 0))
		out.TrialDaysRemaining = &days
	}
	if sub.Status == dbm.SubStatusPastDue {
		if pe, err := sub.PaymentError(); err == nil && pe != nil {
			deadline := pe.FailedAt.Add(time.Duration(p.cfg.Stripe.GracePeriodDays) * 24 * time.Hour)
			days := utils.DaysUntil(now, deadline)
			out.GraceDaysRemaining = &days
		}
	}
	return out, nil
}

func (p *paymentService) GetPlans(ctx context.Context) ([]response_models.SubscriptionPlan, error) {
	return p.plans.GetPlans(ctx)
}

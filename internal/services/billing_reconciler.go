package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"finmodel/internal/config"
	"finmodel/internal/infra"
	dbm "finmodel/internal/models/db_models"
	rm "finmodel/internal/models/response_models"
	"finmodel/internal/repositories"
	"finmodel/pkg/metrics"
	"finmodel/pkg/utils"
)

// ErrEventNotReady means the provider has not reached the state the event
// describes yet. The event stays unprocessed so redelivery can apply it.
var ErrEventNotReady = errors.New("billing event ahead of provider state")

const (
	passwordSetupTTL     = 3 * 24 * time.Hour
	creditDescription    = "Duplicate subscription payment converted to credit"
	unknownPaymentReason = "unknown_error"
)

// Outcomes recorded on processed events.
const (
	OutcomeDuplicate              = "duplicate"
	OutcomeIgnored                = "ignored"
	OutcomeIllegalTransition      = "skipped_illegal_transition"
	OutcomeMissingEmail           = "skipped_missing_email"
	OutcomeUnknownPlan            = "skipped_unknown_plan"
	OutcomeUnknownSubscription    = "skipped_unknown_subscription"
	OutcomeNoSubscriptionRef      = "skipped_no_subscription"
	OutcomeNoInvoice              = "skipped_no_invoice"
	OutcomeUpgradeArtifact        = "skipped_upgraded"
	OutcomeNewAccount             = "checkout_new_account"
	OutcomeAttached               = "checkout_attached"
	OutcomeUpgradedFree           = "checkout_upgraded_free"
	OutcomeUpgradedPlan           = "checkout_upgraded_plan"
	OutcomeReactivated            = "checkout_reactivated"
	OutcomeDuplicateCanceled      = "checkout_duplicate_canceled"
	OutcomeAlreadyApplied         = "checkout_already_applied"
	OutcomeOneOffRecorded         = "one_off_recorded"
	OutcomeCancelScheduled        = "cancel_scheduled"
	OutcomeCancelDiscarded        = "cancel_discarded"
	OutcomeRenewed                = "renewed"
	OutcomeNoChange               = "no_change"
	OutcomeCanceled               = "canceled"
	OutcomeAlreadyCanceled        = "already_canceled"
	OutcomeCredited               = "credited"
	OutcomeCreditExists           = "credit_exists"
	OutcomePaymentFailureRecorded = "payment_failure_recorded"
)

// BillingEventHandler consumes verified provider events.
type BillingEventHandler interface {
	HandleEvent(ctx context.Context, ev BillingEvent) (*rm.WebhookResult, error)
}

// BillingReconciler applies provider lifecycle events to local subscription
// state. Each event is reserved, applied and marked processed in one
// transaction; notifications go out only after that transaction commits.
type BillingReconciler struct {
	db          *gorm.DB
	billingRepo repositories.BillingRepository
	subRepo     repositories.SubscriptionRepository
	accountRepo repositories.AccountRepository
	memberRepo  repositories.MembershipRepository
	plans       PlanServiceInterface
	provider    BillingProvider
	dispatcher  *NotificationDispatcher
	cfg         *config.Config
	now         func() time.Time
}

func NewBillingReconciler(
	db *gorm.DB,
	billingRepo repositories.BillingRepository,
	subRepo repositories.SubscriptionRepository,
	accountRepo repositories.AccountRepository,
	memberRepo repositories.MembershipRepository,
	plans PlanServiceInterface,
	provider BillingProvider,
	dispatcher *NotificationDispatcher,
	cfg *config.Config,
) *BillingReconciler {
	return &BillingReconciler{
		db:          db,
		billingRepo: billingRepo,
		subRepo:     subRepo,
		accountRepo: accountRepo,
		memberRepo:  memberRepo,
		plans:       plans,
		provider:    provider,
		dispatcher:  dispatcher,
		cfg:         cfg,
		now:         time.Now,
	}
}

func (r *BillingReconciler) HandleEvent(ctx context.Context, ev BillingEvent) (*rm.WebhookResult, error) {
	start := time.Now()
	result := &rm.WebhookResult{EventID: ev.ID, Type: ev.Type}
	box := &outbox{}

	err := infra.RunInTransaction(ctx, r.db, func(ctx context.Context) error {
		processed, err := r.billingRepo.ReserveEvent(ctx, &dbm.WebhookEvent{
			StripeEventID: ev.ID,
			Type:          ev.Type,
			Payload:       datatypes.JSON(ev.Data),
		})
		if err != nil {
			return fmt.Errorf("%w: reserve event: %v", utils.ErrDatabaseError, err)
		}
		if processed {
			result.Duplicate = true
			result.Outcome = OutcomeDuplicate
			return nil
		}

		outcome, err := r.apply(ctx, ev, box)
		if err != nil {
			return err
		}
		result.Outcome = outcome

		if err := r.billingRepo.MarkProcessed(ctx, ev.ID, outcome); err != nil {
			return fmt.Errorf("%w: mark processed: %v", utils.ErrDatabaseError, err)
		}
		return nil
	})

	metrics.WebhookDuration.WithLabelValues(ev.Type).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.WebhookEventsTotal.WithLabelValues(ev.Type, "error").Inc()
		return nil, err
	}
	metrics.WebhookEventsTotal.WithLabelValues(ev.Type, result.Outcome).Inc()

	if result.Duplicate {
		log.Info().Str("event_id", ev.ID).Str("type", ev.Type).Msg("Billing event already processed")
		return result, nil
	}

	box.flush(r.dispatcher)
	log.Info().Str("event_id", ev.ID).Str("type", ev.Type).Str("outcome", result.Outcome).Msg("Billing event processed")
	return result, nil
}

func (r *BillingReconciler) apply(ctx context.Context, ev BillingEvent, box *outbox) (string, error) {
	switch ev.Type {
	case EventCheckoutCompleted:
		var session CheckoutSession
		if err := json.Unmarshal(ev.Data, &session); err != nil {
			return "", fmt.Errorf("decode checkout.session: %w", err)
		}
		return r.handleCheckoutCompleted(ctx, session, box)

	case EventSubscriptionUpdated:
		var obj SubscriptionObject
		if err := json.Unmarshal(ev.Data, &obj); err != nil {
			return "", fmt.Errorf("decode subscription: %w", err)
		}
		return r.handleSubscriptionUpdated(ctx, obj, box)

	case EventSubscriptionDeleted:
		var obj SubscriptionObject
		if err := json.Unmarshal(ev.Data, &obj); err != nil {
			return "", fmt.Errorf("decode subscription: %w", err)
		}
		return r.handleSubscriptionDeleted(ctx, obj, box)

	case EventPaymentFailed:
		var inv InvoiceObject
		if err := json.Unmarshal(ev.Data, &inv); err != nil {
			return "", fmt.Errorf("decode invoice: %w", err)
		}
		return r.handlePaymentFailed(ctx, inv, box)

	default:
		log.Debug().Str("type", ev.Type).Str("event_id", ev.ID).Msg("Billing event ignored (unhandled type)")
		return OutcomeIgnored, nil
	}
}

func (r *BillingReconciler) handleCheckoutCompleted(ctx context.Context, session CheckoutSession, box *outbox) (string, error) {
	email := dbm.NormalizeEmail(session.Email())
	if email == "" {
		log.Warn().Str("session_id", session.ID).Msg("Checkout session has no customer email")
		return OutcomeMissingEmail, nil
	}

	switch session.Mode {
	case "payment":
		return r.recordOneOffOrder(ctx, session, email, box)
	case "subscription":
	default:
		return OutcomeIgnored, nil
	}

	plan, err := r.plans.Lookup(ctx, session.Metadata["subscription_type"])
	if errors.Is(err, utils.ErrPlanNotFound) || (err == nil && plan.IsFree()) {
		log.Warn().Str("session_id", session.ID).Str("subscription_type", session.Metadata["subscription_type"]).Msg("Checkout for unknown plan")
		return OutcomeUnknownPlan, nil
	}
	if err != nil {
		return "", err
	}

	psub, err := r.provider.GetSubscription(ctx, session.Subscription)
	if err != nil {
		return "", fmt.Errorf("fetch subscription %s: %w", session.Subscription, err)
	}

	user, err := r.accountRepo.FindByEmail(ctx, email)
	if err != nil {
		return "", fmt.Errorf("%w: load user: %v", utils.ErrDatabaseError, err)
	}
	if user == nil {
		return r.provisionFromCheckout(ctx, session, email, plan, psub, box)
	}

	owned, err := r.memberRepo.FindOwnedCompany(ctx, user.ID)
	if err != nil {
		return "", fmt.Errorf("%w: load owned company: %v", utils.ErrDatabaseError, err)
	}
	if owned == nil {
		if err := r.attachCompany(ctx, user, plan, psub, session, email); err != nil {
			return "", err
		}
		r.notifyUpgrade(ctx, box, user, plan, psub)
		return OutcomeAttached, nil
	}
	companyID := owned.CompanyID

	sub, err := r.subRepo.LockByCompanyID(ctx, companyID)
	if err != nil {
		return "", fmt.Errorf("%w: lock subscription: %v", utils.ErrDatabaseError, err)
	}

	var outcome string
	switch {
	case sub == nil:
		row := r.newSubscriptionRow(companyID, plan, psub, session, email)
		if err := r.subRepo.Create(ctx, row); err != nil {
			return "", fmt.Errorf("%w: create subscription: %v", utils.ErrDatabaseError, err)
		}
		outcome = OutcomeAttached

	case sub.StripeSubscriptionID != nil && *sub.StripeSubscriptionID == psub.ID:
		return OutcomeAlreadyApplied, nil

	case sub.PlanName == dbm.PlanFree:
		if !r.transitionAllowed(sub, dbm.SubStatusActive) {
			return OutcomeIllegalTransition, nil
		}
		outcome = OutcomeUpgradedFree

	case sub.Status == dbm.SubStatusCanceled:
		if !r.transitionAllowed(sub, dbm.SubStatusActive) {
			return OutcomeIllegalTransition, nil
		}
		outcome = OutcomeReactivated

	case sub.PlanName == dbm.PlanFoundersChoice && plan.Name == dbm.PlanGrowthEngine:
		if !r.transitionAllowed(sub, dbm.SubStatusActive) {
			return OutcomeIllegalTransition, nil
		}
		if sub.StripeSubscriptionID != nil {
			if err := r.provider.CancelSubscription(ctx, *sub.StripeSubscriptionID, cancelCommentUpgraded); err != nil {
				return "", fmt.Errorf("cancel replaced subscription: %w", err)
			}
		}
		outcome = OutcomeUpgradedPlan

	default:
		// a second paid subscription for a company that already has one
		if err := r.provider.CancelSubscription(ctx, psub.ID, ""); err != nil {
			return "", fmt.Errorf("cancel duplicate subscription: %w", err)
		}
		log.Warn().
			Str("company_id", companyID.String()).
			Str("subscription_id", psub.ID).
			Str("current_plan", sub.PlanName).
			Str("requested_plan", plan.Name).
			Msg("Duplicate subscription canceled")
		return OutcomeDuplicateCanceled, nil
	}

	if sub != nil {
		if err := r.subRepo.Update(ctx, sub.ID, r.activationFields(sub, plan, psub, session, email)); err != nil {
			return "", fmt.Errorf("%w: activate subscription: %v", utils.ErrDatabaseError, err)
		}
	}
	if user.StripeCustomerID == nil && session.Customer != "" {
		if err := r.accountRepo.UpdateUser(ctx, user.ID, map[string]interface{}{"stripe_customer_id": session.Customer}); err != nil {
			return "", fmt.Errorf("%w: store customer id: %v", utils.ErrDatabaseError, err)
		}
	}

	r.notifyUpgrade(ctx, box, user, plan, psub)
	return outcome, nil
}

func (r *BillingReconciler) provisionFromCheckout(ctx context.Context, session CheckoutSession, email string, plan *dbm.Plan, psub *ProviderSubscription, box *outbox) (string, error) {
	token, err := utils.GenerateSecureToken(accessTokenBytes)
	if err != nil {
		return "", fmt.Errorf("generate setup token: %w", err)
	}
	expiry := r.now().Add(passwordSetupTTL).Unix()

	name := strings.TrimSpace(session.CustomerDetails.Name)
	if name == "" {
		name = strings.SplitN(email, "@", 2)[0]
	}

	user := &dbm.User{
		FullName:                 name,
		Email:                    email,
		PasswordSetupToken:       &token,
		PasswordSetupTokenExpiry: &expiry,
	}
	if session.Customer != "" {
		user.StripeCustomerID = &session.Customer
	}

	row := r.newSubscriptionRow(uuid.Nil, plan, psub, session, email)
	if _, err := provisionAccount(ctx, r.db, r.accountRepo, r.memberRepo, r.subRepo, user, name+"'s Company", row); err != nil {
		return "", err
	}

	q := url.Values{}
	q.Set("token", token)
	q.Set("email", email)

	box.add(TemplateSubscriptionNewAccount, email, map[string]any{
		"name":                name,
		"plan_name":           plan.Name,
		"amount":              formatAmount(psub.Amount, psub.Currency),
		"start_date":          displayDate(psub.CurrentPeriodStart),
		"renewal_date":        displayDate(psub.CurrentPeriodEnd),
		"setup_link":          r.cfg.FrontendBaseURL + "/auth/create-password?" + q.Encode(),
		"billing_portal_link": r.portalLink(ctx, session.Customer),
	})
	return OutcomeNewAccount, nil
}

// attachCompany gives an existing user without a company of their own a
// company owned by them, carrying the new subscription.
func (r *BillingReconciler) attachCompany(ctx context.Context, user *dbm.User, plan *dbm.Plan, psub *ProviderSubscription, session CheckoutSession, email string) error {
	company := &dbm.Company{Name: user.FullName + "'s Company", OwnerID: user.ID}
	if err := r.accountRepo.CreateCompany(ctx, company); err != nil {
		return fmt.Errorf("%w: create company: %v", utils.ErrDatabaseError, err)
	}
	if err := r.memberRepo.UpsertMembership(ctx, company.ID, user.ID, dbm.RoleOwner); err != nil {
		return fmt.Errorf("%w: create owner membership: %v", utils.ErrDatabaseError, err)
	}
	fields := map[string]interface{}{"default_company_id": company.ID}
	if user.StripeCustomerID == nil && session.Customer != "" {
		fields["stripe_customer_id"] = session.Customer
	}
	if err := r.accountRepo.UpdateUser(ctx, user.ID, fields); err != nil {
		return fmt.Errorf("%w: update user: %v", utils.ErrDatabaseError, err)
	}

	row := r.newSubscriptionRow(company.ID, plan, psub, session, email)
	row.SeatsUsed = 1
	if err := r.subRepo.Create(ctx, row); err != nil {
		return fmt.Errorf("%w: create subscription: %v", utils.ErrDatabaseError, err)
	}
	return nil
}

func (r *BillingReconciler) recordOneOffOrder(ctx context.Context, session CheckoutSession, email string, box *outbox) (string, error) {
	user, err := r.accountRepo.FindByEmail(ctx, email)
	if err != nil {
		return "", fmt.Errorf("%w: load user: %v", utils.ErrDatabaseError, err)
	}

	order := &dbm.CustomOrder{
		StripePaymentIntentID:   session.PaymentIntent,
		StripeCheckoutSessionID: session.ID,
		ProductType:             session.Metadata["product_type"],
		Amount:                  centsToDecimal(session.AmountTotal),
		Currency:                session.Currency,
		Status:                  dbm.OrderStatusCompleted,
		CustomerEmail:           email,
	}
	if order.StripePaymentIntentID == "" {
		order.StripePaymentIntentID = session.ID
	}

	name := strings.TrimSpace(session.CustomerDetails.Name)
	if user != nil {
		order.UserID = &user.ID
		if owned, err := r.memberRepo.FindOwnedCompany(ctx, user.ID); err == nil && owned != nil {
			order.CompanyID = &owned.CompanyID
		}
		if name == "" {
			name = user.FullName
		}
	}

	if _, err := r.billingRepo.CreateCustomOrder(ctx, order); err != nil {
		return "", fmt.Errorf("%w: create order: %v", utils.ErrDatabaseError, err)
	}

	box.add(TemplateOneOffOrder, email, map[string]any{
		"name":                  name,
		"product_type":          order.ProductType,
		"amount":                formatAmount(order.Amount, order.Currency),
		"requirement_form_link": r.cfg.OneOffRequirementFormLink,
		"calendly_link":         r.cfg.CalendlyLink,
	})
	return OutcomeOneOffRecorded, nil
}

func (r *BillingReconciler) handleSubscriptionUpdated(ctx context.Context, obj SubscriptionObject, box *outbox) (string, error) {
	sub, err := r.subRepo.FindByStripeSubscriptionID(ctx, obj.ID)
	if err != nil {
		return "", fmt.Errorf("%w: load subscription: %v", utils.ErrDatabaseError, err)
	}
	if sub == nil {
		log.Warn().Str("subscription_id", obj.ID).Msg("Subscription update for unknown subscription")
		return OutcomeUnknownSubscription, nil
	}

	periodStart, periodEnd := obj.Period()

	switch {
	case obj.CancelAtPeriodEnd && !sub.CancelAtPeriodEnd:
		if err := r.subRepo.Update(ctx, sub.ID, map[string]interface{}{"cancel_at_period_end": true}); err != nil {
			return "", fmt.Errorf("%w: schedule cancel: %v", utils.ErrDatabaseError, err)
		}
		accessEnd := obj.CancelAt
		if accessEnd == 0 {
			accessEnd = periodEnd
		}
		email, name := r.contact(ctx, sub)
		box.add(TemplateSubscriptionCancelled, email, map[string]any{
			"name":                name,
			"plan_name":           sub.PlanName,
			"access_end_date":     displayDate(accessEnd),
			"billing_portal_link": r.portalLink(ctx, obj.Customer),
		})
		return OutcomeCancelScheduled, nil

	case !obj.CancelAtPeriodEnd && sub.CancelAtPeriodEnd:
		if err := r.subRepo.Update(ctx, sub.ID, map[string]interface{}{"cancel_at_period_end": false}); err != nil {
			return "", fmt.Errorf("%w: discard cancel: %v", utils.ErrDatabaseError, err)
		}
		email, name := r.contact(ctx, sub)
		box.add(TemplateDiscardCancelSubscription, email, map[string]any{
			"name":         name,
			"plan_name":    sub.PlanName,
			"renewal_date": displayDate(periodEnd),
		})
		return OutcomeCancelDiscarded, nil

	case periodEnd != 0 && (sub.RenewalDate == nil || *sub.RenewalDate != periodEnd):
		fields := map[string]interface{}{
			"start_date":   periodStart,
			"renewal_date": periodEnd,
		}
		if sub.Status == dbm.SubStatusPastDue {
			if !r.transitionAllowed(sub, dbm.SubStatusActive) {
				return OutcomeIllegalTransition, nil
			}
			fields["status"] = dbm.SubStatusActive
			fields["last_payment_error"] = nil
		}
		if err := r.subRepo.Update(ctx, sub.ID, fields); err != nil {
			return "", fmt.Errorf("%w: renew subscription: %v", utils.ErrDatabaseError, err)
		}
		return OutcomeRenewed, nil
	}

	return OutcomeNoChange, nil
}

func (r *BillingReconciler) handleSubscriptionDeleted(ctx context.Context, obj SubscriptionObject, box *outbox) (string, error) {
	if obj.CancellationDetails.Comment == cancelCommentUpgraded {
		return OutcomeUpgradeArtifact, nil
	}

	sub, err := r.subRepo.FindByStripeSubscriptionID(ctx, obj.ID)
	if err != nil {
		return "", fmt.Errorf("%w: load subscription: %v", utils.ErrDatabaseError, err)
	}
	if sub != nil {
		if sub.Status == dbm.SubStatusCanceled {
			return OutcomeAlreadyCanceled, nil
		}
		if !r.transitionAllowed(sub, dbm.SubStatusCanceled) {
			return OutcomeIllegalTransition, nil
		}
		if err := r.subRepo.Update(ctx, sub.ID, map[string]interface{}{
			"status":               dbm.SubStatusCanceled,
			"cancel_at_period_end": false,
		}); err != nil {
			return "", fmt.Errorf("%w: cancel subscription: %v", utils.ErrDatabaseError, err)
		}
		return OutcomeCanceled, nil
	}

	// never reconciled locally, so the payment taken for it becomes credit
	if obj.LatestInvoice == "" {
		log.Warn().Str("subscription_id", obj.ID).Msg("Deleted subscription has no invoice to credit")
		return OutcomeNoInvoice, nil
	}
	inv, err := r.provider.GetInvoice(ctx, obj.LatestInvoice)
	if err != nil {
		return "", fmt.Errorf("fetch invoice %s: %w", obj.LatestInvoice, err)
	}

	email, name := dbm.NormalizeEmail(inv.Email), ""
	if email == "" && obj.Customer != "" {
		c, err := r.provider.GetCustomer(ctx, obj.Customer)
		if err != nil {
			return "", fmt.Errorf("fetch customer %s: %w", obj.Customer, err)
		}
		email, name = dbm.NormalizeEmail(c.Email), c.Name
	}

	credit := &dbm.AccountCredit{
		Email:       email,
		InvoiceID:   inv.ID,
		Amount:      inv.AmountDue,
		Currency:    inv.Currency,
		Description: creditDescription,
	}
	if email != "" {
		user, err := r.accountRepo.FindByEmail(ctx, email)
		if err != nil {
			return "", fmt.Errorf("%w: load user: %v", utils.ErrDatabaseError, err)
		}
		if user != nil {
			credit.UserID = &user.ID
			if name == "" {
				name = user.FullName
			}
			if owned, err := r.memberRepo.FindOwnedCompany(ctx, user.ID); err == nil && owned != nil {
				credit.CompanyID = &owned.CompanyID
			}
		}
	}

	created, err := r.billingRepo.CreateAccountCredit(ctx, credit)
	if err != nil {
		return "", fmt.Errorf("%w: create credit: %v", utils.ErrDatabaseError, err)
	}
	if !created {
		return OutcomeCreditExists, nil
	}

	box.add(TemplatePaymentConvertedToCredit, email, map[string]any{
		"name":          name,
		"credit_amount": formatAmount(inv.AmountDue, inv.Currency),
		"support_email": r.cfg.AdminEmail,
	})
	return OutcomeCredited, nil
}

func (r *BillingReconciler) handlePaymentFailed(ctx context.Context, inv InvoiceObject, box *outbox) (string, error) {
	subID := inv.SubscriptionID()
	if subID == "" {
		return OutcomeNoSubscriptionRef, nil
	}

	psub, err := r.provider.GetSubscription(ctx, subID)
	if err != nil {
		return "", fmt.Errorf("fetch subscription %s: %w", subID, err)
	}
	if psub.Status != string(dbm.SubStatusPastDue) {
		return "", fmt.Errorf("%w: subscription %s is %q", ErrEventNotReady, subID, psub.Status)
	}

	sub, err := r.subRepo.FindByStripeSubscriptionID(ctx, subID, dbm.SubStatusActive, dbm.SubStatusPastDue)
	if err != nil {
		return "", fmt.Errorf("%w: load subscription: %v", utils.ErrDatabaseError, err)
	}
	if sub == nil {
		log.Warn().Str("subscription_id", subID).Msg("Payment failure for unknown subscription")
		return OutcomeUnknownSubscription, nil
	}
	if !r.transitionAllowed(sub, dbm.SubStatusPastDue) {
		return OutcomeIllegalTransition, nil
	}

	reason := unknownPaymentReason
	if inv.PaymentIntent != "" {
		if got, err := r.provider.PaymentFailureReason(ctx, inv.PaymentIntent); err != nil {
			log.Warn().Err(err).Str("payment_intent", inv.PaymentIntent).Msg("Payment failure reason unavailable")
		} else if got != "" {
			reason = got
		}
	}

	failedAt := r.now()
	if inv.Created > 0 {
		failedAt = time.Unix(inv.Created, 0)
	}
	pe := &dbm.PaymentError{
		FailedAt:     failedAt.UTC(),
		Reason:       reason,
		AttemptCount: inv.AttemptCount,
	}
	if inv.NextPaymentAttempt != nil && *inv.NextPaymentAttempt > 0 {
		next := time.Unix(*inv.NextPaymentAttempt, 0).UTC()
		pe.NextRetryAt = &next
	}
	encoded, err := dbm.EncodePaymentError(pe)
	if err != nil {
		return "", fmt.Errorf("encode payment error: %w", err)
	}

	if err := r.subRepo.Update(ctx, sub.ID, map[string]interface{}{
		"status":             dbm.SubStatusPastDue,
		"last_payment_error": encoded,
	}); err != nil {
		return "", fmt.Errorf("%w: record payment failure: %v", utils.ErrDatabaseError, err)
	}

	suspension := failedAt.Add(time.Duration(r.cfg.Stripe.GracePeriodDays) * 24 * time.Hour)
	vars := map[string]any{
		"plan_name":           sub.PlanName,
		"failure_reason":      reason,
		"grace_days":          utils.DaysUntil(r.now(), suspension),
		"suspension_date":     utils.FormatDisplayDate(suspension),
		"billing_portal_link": r.portalLink(ctx, psub.CustomerID),
	}
	if pe.NextRetryAt != nil {
		vars["next_retry_date"] = utils.FormatDisplayDate(*pe.NextRetryAt)
	}
	email, name := r.contact(ctx, sub)
	if email == "" {
		email = dbm.NormalizeEmail(inv.CustomerEmail)
	}
	vars["name"] = name
	box.add(TemplateSubscriptionPaymentFailed, email, vars)

	return OutcomePaymentFailureRecorded, nil
}

func (r *BillingReconciler) transitionAllowed(sub *dbm.Subscription, to dbm.SubscriptionStatus) bool {
	if err := checkTransition(sub.Status, to); err != nil {
		log.Warn().
			Err(err).
			Str("company_id", sub.CompanyID.String()).
			Str("subscription_id", sub.ID.String()).
			Msg("Billing event implies illegal transition")
		return false
	}
	return true
}

func (r *BillingReconciler) newSubscriptionRow(companyID uuid.UUID, plan *dbm.Plan, psub *ProviderSubscription, session CheckoutSession, email string) *dbm.Subscription {
	now := r.now().Unix()
	row := &dbm.Subscription{
		CompanyID:             companyID,
		PlanName:              plan.Name,
		Status:                dbm.SubStatusActive,
		StripeSubscriptionID:  &psub.ID,
		BillingEmail:          &email,
		FirstSubscriptionDate: &now,
	}
	r.fillProviderFields(row, psub, session)
	return row
}

func (r *BillingReconciler) fillProviderFields(row *dbm.Subscription, psub *ProviderSubscription, session CheckoutSession) {
	if customerID := firstNonEmpty(session.Customer, psub.CustomerID); customerID != "" {
		row.StripeCustomerID = &customerID
	}
	if psub.PriceID != "" {
		row.StripePriceID = &psub.PriceID
	}
	if psub.Interval != "" {
		row.BillingCycle = &psub.Interval
	}
	start := psub.CurrentPeriodStart
	if start == 0 {
		start = psub.StartDate
	}
	if start != 0 {
		row.StartDate = &start
	}
	if psub.CurrentPeriodEnd != 0 {
		row.RenewalDate = &psub.CurrentPeriodEnd
	}
}

// activationFields moves an existing row onto the purchased plan.
func (r *BillingReconciler) activationFields(sub *dbm.Subscription, plan *dbm.Plan, psub *ProviderSubscription, session CheckoutSession, email string) map[string]interface{} {
	row := &dbm.Subscription{}
	r.fillProviderFields(row, psub, session)

	fields := map[string]interface{}{
		"plan_name":              plan.Name,
		"status":                 dbm.SubStatusActive,
		"stripe_subscription_id": psub.ID,
		"stripe_customer_id":     row.StripeCustomerID,
		"stripe_price_id":        row.StripePriceID,
		"billing_cycle":          row.BillingCycle,
		"billing_email":          email,
		"start_date":             row.StartDate,
		"renewal_date":           row.RenewalDate,
		"trial_end_date":         nil,
		"cancel_at_period_end":   false,
		"last_payment_error":     nil,
	}
	if sub.FirstSubscriptionDate == nil {
		fields["first_subscription_date"] = r.now().Unix()
	}
	return fields
}

func (r *BillingReconciler) notifyUpgrade(ctx context.Context, box *outbox, user *dbm.User, plan *dbm.Plan, psub *ProviderSubscription) {
	box.add(TemplateSubscriptionUpgrade, user.Email, map[string]any{
		"name":                user.FullName,
		"plan_name":           plan.Name,
		"amount":              formatAmount(psub.Amount, psub.Currency),
		"renewal_date":        displayDate(psub.CurrentPeriodEnd),
		"billing_portal_link": r.portalLink(ctx, psub.CustomerID),
	})
}

// contact resolves who billing mail for sub goes to.
func (r *BillingReconciler) contact(ctx context.Context, sub *dbm.Subscription) (email, name string) {
	if sub.BillingEmail != nil {
		email = *sub.BillingEmail
	}
	if email == "" && sub.StripeCustomerID != nil {
		if c, err := r.provider.GetCustomer(ctx, *sub.StripeCustomerID); err != nil {
			log.Warn().Err(err).Str("customer_id", *sub.StripeCustomerID).Msg("Billing contact lookup failed")
		} else {
			email, name = c.Email, c.Name
		}
	}
	if email != "" && name == "" {
		if user, err := r.accountRepo.FindByEmail(ctx, email); err == nil && user != nil {
			name = user.FullName
		}
	}
	return dbm.NormalizeEmail(email), name
}

// portalLink is best effort; mail without the link beats no mail.
func (r *BillingReconciler) portalLink(ctx context.Context, customerID string) string {
	if customerID == "" {
		return ""
	}
	link, err := r.provider.CreatePortalSession(ctx, customerID, r.cfg.FrontendBaseURL+"/settings/billing")
	if err != nil {
		log.Warn().Err(err).Str("customer_id", customerID).Msg("Billing portal link unavailable")
		return ""
	}
	return link
}

func formatAmount(amount decimal.Decimal, currency string) string {
	if currency == "" {
		return amount.StringFixed(2)
	}
	return amount.StringFixed(2) + " " + strings.ToUpper(currency)
}

func displayDate(unix int64) string {
	if unix == 0 {
		return ""
	}
	return utils.FormatDisplayDate(time.Unix(unix, 0))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

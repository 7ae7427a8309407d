package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	dbm "finmodel/internal/models/db_models"
	rm "finmodel/internal/models/response_models"
	"finmodel/internal/repositories"
	"finmodel/pkg/metrics"
	"finmodel/pkg/utils"
)

const (
	msgTrialExpired       = "Your trial has expired. Upgrade to continue"
	msgFreePlanViewOnly   = "Free plan only allows view-only sharing. Upgrade to share with edit permissions"
	msgNotOwner           = "Only workspace owner can share models"
	msgFileNotFound       = "The requested file not found"
	msgNoSubscription     = "An active subscription is required"
	msgRestoreNeedsActive = "An active subscription is required to restore archived files"
)

// EntitlementServiceInterface decides whether an action fits the company's
// plan. Denials come back as verdicts; only store faults are errors.
type EntitlementServiceInterface interface {
	CanCreateModel(ctx context.Context, companyID uuid.UUID) (*rm.Verdict, error)
	CanInvite(ctx context.Context, instanceID, inviterID uuid.UUID, permission dbm.SharePermission, inviteeEmail string) (*rm.Verdict, error)
	CheckInviteEligibility(ctx context.Context, companyID uuid.UUID) (*rm.Verdict, error)
	CanRestoreModel(ctx context.Context, companyID uuid.UUID) (*rm.Verdict, error)
	CompanyLimits(ctx context.Context, companyID uuid.UUID) (*rm.CompanyLimits, error)
}

type EntitlementService struct {
	subRepo     repositories.SubscriptionRepository
	productRepo repositories.ProductRepository
	memberRepo  repositories.MembershipRepository
	plans       PlanServiceInterface
	ledger      SeatLedger
	now         func() time.Time
}

func NewEntitlementService(
	subRepo repositories.SubscriptionRepository,
	productRepo repositories.ProductRepository,
	memberRepo repositories.MembershipRepository,
	plans PlanServiceInterface,
	ledger SeatLedger,
) *EntitlementService {
	return &EntitlementService{
		subRepo:     subRepo,
		productRepo: productRepo,
		memberRepo:  memberRepo,
		plans:       plans,
		ledger:      ledger,
		now:         time.Now,
	}
}

func (e *EntitlementService) CanCreateModel(ctx context.Context, companyID uuid.UUID) (*rm.Verdict, error) {
	sub, plan, err := e.snapshot(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return e.deny(companyID, &rm.Verdict{Reason: rm.ReasonNoActiveSubscription, Message: msgNoSubscription}), nil
	}
	if sub.TrialExpired(e.now()) {
		return e.deny(companyID, &rm.Verdict{Reason: rm.ReasonTrialExpired, Message: msgTrialExpired, PlanName: plan.Name}), nil
	}
	return e.modelGate(companyID, sub, plan, ". Upgrade to create more"), nil
}

func (e *EntitlementService) CanRestoreModel(ctx context.Context, companyID uuid.UUID) (*rm.Verdict, error) {
	sub, plan, err := e.snapshot(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if sub == nil || sub.Status != dbm.SubStatusActive || plan.IsFree() {
		v := &rm.Verdict{Reason: rm.ReasonNoActiveSubscription, Message: msgRestoreNeedsActive}
		if plan != nil {
			v.PlanName = plan.Name
		}
		return e.deny(companyID, v), nil
	}
	return e.modelGate(companyID, sub, plan, ". Upgrade to restore"), nil
}

func (e *EntitlementService) CanInvite(ctx context.Context, instanceID, inviterID uuid.UUID, permission dbm.SharePermission, inviteeEmail string) (*rm.Verdict, error) {
	return e.canInviteExcluding(ctx, instanceID, inviterID, permission, inviteeEmail)
}

// canInviteExcluding is CanInvite with the given shares left out of the
// invitee's existing edit grants, for re-evaluating a share being changed.
func (e *EntitlementService) canInviteExcluding(ctx context.Context, instanceID, inviterID uuid.UUID, permission dbm.SharePermission, inviteeEmail string, excluding ...uuid.UUID) (*rm.Verdict, error) {
	instance, err := e.productRepo.FindByID(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("%w: load file: %v", utils.ErrDatabaseError, err)
	}
	if instance == nil || instance.Status != dbm.InstanceActive {
		return e.deny(uuid.Nil, &rm.Verdict{Reason: rm.ReasonFileNotFound, Message: msgFileNotFound}), nil
	}
	companyID := instance.CompanyID

	role, ok, err := e.memberRepo.GetRole(ctx, companyID, inviterID)
	if err != nil {
		return nil, fmt.Errorf("%w: load role: %v", utils.ErrDatabaseError, err)
	}
	if !ok || role != dbm.RoleOwner {
		return e.deny(companyID, &rm.Verdict{Reason: rm.ReasonNotOwner, Message: msgNotOwner, Role: string(role)}), nil
	}

	sub, plan, err := e.snapshot(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return e.deny(companyID, &rm.Verdict{Reason: rm.ReasonNoActiveSubscription, Message: msgNoSubscription}), nil
	}
	if sub.TrialExpired(e.now()) {
		return e.deny(companyID, &rm.Verdict{Reason: rm.ReasonTrialExpired, Message: msgTrialExpired, PlanName: plan.Name}), nil
	}

	seatNeeded := false
	if permission == dbm.PermissionEdit {
		if inviteeEmail == "" {
			seatNeeded = true
		} else {
			occupied, err := e.ledger.HasIndependentEditAccess(ctx, companyID, inviteeEmail, excluding...)
			if err != nil {
				return nil, err
			}
			seatNeeded = !occupied
		}
	}

	v := e.seatGate(companyID, sub, plan, seatNeeded)
	v.Permission = string(permission)
	v.Role = string(role)
	return v, nil
}

func (e *EntitlementService) CheckInviteEligibility(ctx context.Context, companyID uuid.UUID) (*rm.Verdict, error) {
	sub, plan, err := e.snapshot(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return e.deny(companyID, &rm.Verdict{Reason: rm.ReasonNoActiveSubscription, Message: msgNoSubscription}), nil
	}
	if sub.TrialExpired(e.now()) {
		return e.deny(companyID, &rm.Verdict{Reason: rm.ReasonTrialExpired, Message: msgTrialExpired, PlanName: plan.Name}), nil
	}
	return e.seatGate(companyID, sub, plan, true), nil
}

func (e *EntitlementService) CompanyLimits(ctx context.Context, companyID uuid.UUID) (*rm.CompanyLimits, error) {
	sub, plan, err := e.snapshot(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, utils.ErrSubscriptionNotFound
	}

	createV, err := e.CanCreateModel(ctx, companyID)
	if err != nil {
		return nil, err
	}
	inviteV, err := e.CheckInviteEligibility(ctx, companyID)
	if err != nil {
		return nil, err
	}

	return &rm.CompanyLimits{
		Plan:           plan.Name,
		MaxModels:      plan.MaxModels,
		IncludedSeats:  plan.IncludedSeats,
		ModelsCreated:  sub.ModelsUsed,
		SeatsUsed:      sub.SeatsUsed,
		CanCreateModel: createV.Allowed,
		CanInviteUsers: inviteV.Allowed,
		CanShareView:   plan.AllowsViewSharing && !sub.TrialExpired(e.now()),
	}, nil
}

// snapshot reads the subscription and its plan. A missing subscription is
// returned as nil without error.
func (e *EntitlementService) snapshot(ctx context.Context, companyID uuid.UUID) (*dbm.Subscription, *dbm.Plan, error) {
	sub, err := e.subRepo.FindByCompanyID(ctx, companyID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: load subscription: %v", utils.ErrDatabaseError, err)
	}
	if sub == nil {
		return nil, nil, nil
	}
	plan, err := e.plans.Lookup(ctx, sub.PlanName)
	if err != nil {
		return nil, nil, err
	}
	return sub, plan, nil
}

func (e *EntitlementService) modelGate(companyID uuid.UUID, sub *dbm.Subscription, plan *dbm.Plan, upgradeHint string) *rm.Verdict {
	v := &rm.Verdict{
		PlanName:  plan.Name,
		Used:      sub.ModelsUsed,
		Limit:     plan.MaxModels,
		Remaining: max(plan.MaxModels-sub.ModelsUsed, 0),
	}
	if sub.ModelsUsed < plan.MaxModels {
		v.Allowed = true
		return v
	}
	return e.modelLimitVerdict(companyID, v, plan, upgradeHint)
}

func (e *EntitlementService) modelLimitVerdict(companyID uuid.UUID, v *rm.Verdict, plan *dbm.Plan, upgradeHint string) *rm.Verdict {
	v.Reason = rm.ReasonModelLimitReached
	v.Message = fmt.Sprintf("%s plan is limited to %d model", plan.Name, plan.MaxModels)
	if !plan.IsTopTier() {
		v.Message += upgradeHint
	}
	return e.deny(companyID, v)
}

func (e *EntitlementService) seatGate(companyID uuid.UUID, sub *dbm.Subscription, plan *dbm.Plan, seatNeeded bool) *rm.Verdict {
	v := &rm.Verdict{
		PlanName:   plan.Name,
		Used:       sub.SeatsUsed,
		Limit:      plan.IncludedSeats,
		Remaining:  remainingSeats(sub, plan),
		SeatNeeded: seatNeeded,
	}
	if !seatNeeded {
		v.Allowed = true
		return v
	}

	if plan.IsFree() {
		v.Reason = rm.ReasonFreePlanViewOnly
		v.Message = msgFreePlanViewOnly
		return e.deny(companyID, v)
	}
	if plan.SeatCapped() && sub.SeatsUsed >= plan.IncludedSeats {
		v.Reason = rm.ReasonTeamLimitReached
		v.Message = "Plan seat limit reached"
		if !plan.IsTopTier() {
			v.Message += ". Upgrade your plan to add more members"
		}
		return e.deny(companyID, v)
	}

	v.Allowed = true
	return v
}

func (e *EntitlementService) deny(companyID uuid.UUID, v *rm.Verdict) *rm.Verdict {
	v.Allowed = false
	metrics.EntitlementDenials.WithLabelValues(string(v.Reason)).Inc()
	log.Debug().Str("company_id", companyID.String()).Str("reason", string(v.Reason)).Msg("Entitlement denied")
	return v
}

// remainingSeats is -1 for plans without a seat cap.
func remainingSeats(sub *dbm.Subscription, plan *dbm.Plan) int {
	if !plan.SeatCapped() {
		return -1
	}
	return max(plan.IncludedSeats-sub.SeatsUsed, 0)
}

// seatLimitVerdict re-reads usage after a rolled back seat increment.
func (e *EntitlementService) seatLimitVerdict(ctx context.Context, companyID uuid.UUID) *rm.Verdict {
	sub, plan, err := e.snapshot(ctx, companyID)
	if err != nil {
		log.Warn().Err(err).Str("company_id", companyID.String()).Msg("Seat usage unavailable for denial")
	}
	return teamLimitVerdict(plan, sub)
}

// teamLimitVerdict is what a mutation reports when its bounded seat
// increment lost the race after the pre-check allowed it.
func teamLimitVerdict(plan *dbm.Plan, sub *dbm.Subscription) *rm.Verdict {
	v := &rm.Verdict{
		Reason:     rm.ReasonTeamLimitReached,
		Message:    "Plan seat limit reached",
		SeatNeeded: true,
	}
	if plan != nil {
		v.PlanName = plan.Name
		v.Limit = plan.IncludedSeats
		if !plan.IsTopTier() {
			v.Message += ". Upgrade your plan to add more members"
		}
	}
	if sub != nil {
		v.Used = sub.SeatsUsed
	}
	metrics.EntitlementDenials.WithLabelValues(string(v.Reason)).Inc()
	return v
}

package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"finmodel/internal/infra"
	dbm "finmodel/internal/models/db_models"
	"finmodel/internal/models/response_models"
	"finmodel/internal/repositories"
	"finmodel/pkg/metrics"
	"finmodel/pkg/utils"
)

// errSeatLimitReached aborts the surrounding transaction when a bounded seat
// increment matched no row.
var errSeatLimitReached = errors.New("seat limit reached")

// errLockOutsideTransaction means Lock was called without a transaction in
// ctx, where the row lock would be released before the caller's writes.
var errLockOutsideTransaction = errors.New("subscription lock requires a transaction")

// SeatLedger is the only writer of seats_used. A seat belongs to an email
// while it holds editor role or any active edit share in the company; the
// owner's seat is the baseline the subscription starts with.
type SeatLedger interface {
	HasIndependentEditAccess(ctx context.Context, companyID uuid.UUID, email string, excluding ...uuid.UUID) (bool, error)
	Lock(ctx context.Context, companyID uuid.UUID) (*dbm.Subscription, *dbm.Plan, error)
	Apply(ctx context.Context, companyID uuid.UUID, email string, mutate func(ctx context.Context) error) (response_models.SeatChange, error)
	ApplyAll(ctx context.Context, companyID uuid.UUID, emails []string, mutate func(ctx context.Context) error) (consumed, released int, err error)
}

type seatLedger struct {
	db         *gorm.DB
	subRepo    repositories.SubscriptionRepository
	memberRepo repositories.MembershipRepository
	shareRepo  repositories.ShareRepository
	plans      PlanServiceInterface
}

func NewSeatLedger(
	db *gorm.DB,
	subRepo repositories.SubscriptionRepository,
	memberRepo repositories.MembershipRepository,
	shareRepo repositories.ShareRepository,
	plans PlanServiceInterface,
) SeatLedger {
	return &seatLedger{
		db:         db,
		subRepo:    subRepo,
		memberRepo: memberRepo,
		shareRepo:  shareRepo,
		plans:      plans,
	}
}

// HasIndependentEditAccess reports whether email occupies a seat through
// editor role or an active edit share other than the ones excluded.
func (l *seatLedger) HasIndependentEditAccess(ctx context.Context, companyID uuid.UUID, email string, excluding ...uuid.UUID) (bool, error) {
	member, err := l.memberRepo.FindActiveMemberByEmail(ctx, companyID, email)
	if err != nil {
		return false, fmt.Errorf("%w: find member by email: %v", utils.ErrDatabaseError, err)
	}
	if member != nil && member.Role == dbm.RoleEditor {
		return true, nil
	}

	grants, err := l.shareRepo.FindActiveEditGrants(ctx, companyID, email, excluding...)
	if err != nil {
		return false, fmt.Errorf("%w: find edit grants: %v", utils.ErrDatabaseError, err)
	}
	return len(grants) > 0, nil
}

// Lock takes the subscription row lock for the surrounding transaction.
func (l *seatLedger) Lock(ctx context.Context, companyID uuid.UUID) (*dbm.Subscription, *dbm.Plan, error) {
	if !infra.InTransaction(ctx) {
		return nil, nil, errLockOutsideTransaction
	}
	sub, err := l.subRepo.LockByCompanyID(ctx, companyID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: lock subscription: %v", utils.ErrDatabaseError, err)
	}
	if sub == nil {
		return nil, nil, utils.ErrSubscriptionNotFound
	}

	plan, err := l.plans.Lookup(ctx, sub.PlanName)
	if err != nil {
		return nil, nil, err
	}
	return sub, plan, nil
}

// Apply runs mutate under the subscription lock and moves seats_used by the
// change in occupancy of email. A capped increment that fails rolls back
// mutate and returns errSeatLimitReached.
func (l *seatLedger) Apply(ctx context.Context, companyID uuid.UUID, email string, mutate func(ctx context.Context) error) (response_models.SeatChange, error) {
	var change response_models.SeatChange
	consumed, released, err := l.ApplyAll(ctx, companyID, []string{email}, mutate)
	if err != nil {
		return change, err
	}
	change.Consumed = consumed > 0
	change.Released = released > 0
	return change, nil
}

func (l *seatLedger) ApplyAll(ctx context.Context, companyID uuid.UUID, emails []string, mutate func(ctx context.Context) error) (int, int, error) {
	var consumed, released int
	emails = uniqueEmails(emails)

	err := infra.RunInTransaction(ctx, l.db, func(ctx context.Context) error {
		consumed, released = 0, 0

		_, plan, err := l.Lock(ctx, companyID)
		if err != nil {
			return err
		}

		before := make(map[string]bool, len(emails))
		for _, email := range emails {
			occupied, err := l.HasIndependentEditAccess(ctx, companyID, email)
			if err != nil {
				return err
			}
			before[email] = occupied
		}

		if err := mutate(ctx); err != nil {
			return err
		}

		seatCap := 0
		if plan.SeatCapped() {
			seatCap = plan.IncludedSeats
		}

		for _, email := range emails {
			after, err := l.HasIndependentEditAccess(ctx, companyID, email)
			if err != nil {
				return err
			}

			switch {
			case !before[email] && after:
				ok, err := l.subRepo.IncrementSeats(ctx, companyID, seatCap)
				if err != nil {
					return fmt.Errorf("%w: increment seats: %v", utils.ErrDatabaseError, err)
				}
				if !ok {
					return errSeatLimitReached
				}
				consumed++
			case before[email] && !after:
				ok, err := l.subRepo.DecrementSeats(ctx, companyID)
				if err != nil {
					return fmt.Errorf("%w: decrement seats: %v", utils.ErrDatabaseError, err)
				}
				if ok {
					released++
				}
			}
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}

	metrics.SeatAdjustments.WithLabelValues("consumed").Add(float64(consumed))
	metrics.SeatAdjustments.WithLabelValues("released").Add(float64(released))
	return consumed, released, nil
}

func uniqueEmails(emails []string) []string {
	seen := make(map[string]struct{}, len(emails))
	out := make([]string, 0, len(emails))
	for _, e := range emails {
		e = dbm.NormalizeEmail(e)
		if e == "" {
			continue
		}
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out
}

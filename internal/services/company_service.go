package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"finmodel/internal/infra"
	dbm "finmodel/internal/models/db_models"
	rm "finmodel/internal/models/response_models"
	"finmodel/internal/repositories"
	"finmodel/pkg/utils"
)

type CompanyServiceInterface interface {
	UpdateMemberRole(ctx context.Context, ownerID, companyID, userID uuid.UUID, role dbm.MemberRole) (*rm.RoleChangeResult, error)
	RemoveMember(ctx context.Context, ownerID, companyID, userID uuid.UUID) (*rm.MemberRemovalResult, error)
	ListMembers(ctx context.Context, userID, companyID uuid.UUID) ([]rm.CompanyMemberView, error)
}

type CompanyService struct {
	db           *gorm.DB
	memberRepo   repositories.MembershipRepository
	shareRepo    repositories.ShareRepository
	accountRepo  repositories.AccountRepository
	ledger       SeatLedger
	entitlements *EntitlementService
}

func NewCompanyService(
	db *gorm.DB,
	memberRepo repositories.MembershipRepository,
	shareRepo repositories.ShareRepository,
	accountRepo repositories.AccountRepository,
	ledger SeatLedger,
	entitlements *EntitlementService,
) CompanyServiceInterface {
	return &CompanyService{
		db:           db,
		memberRepo:   memberRepo,
		shareRepo:    shareRepo,
		accountRepo:  accountRepo,
		ledger:       ledger,
		entitlements: entitlements,
	}
}

func (c *CompanyService) UpdateMemberRole(ctx context.Context, ownerID, companyID, userID uuid.UUID, role dbm.MemberRole) (*rm.RoleChangeResult, error) {
	if role != dbm.RoleEditor && role != dbm.RoleViewer {
		return nil, utils.ErrInvalidRole
	}
	if err := c.requireOwner(ctx, companyID, ownerID); err != nil {
		return nil, err
	}
	if userID == ownerID {
		return nil, utils.ErrSelfRoleChange
	}

	member, err := c.memberRepo.FindMember(ctx, companyID, userID)
	if err != nil {
		return nil, utils.ErrDatabaseError
	}
	if member == nil || !member.Active() {
		return nil, utils.ErrMemberNotFound
	}
	if member.Role == dbm.RoleOwner {
		return nil, utils.ErrCannotChangeOwner
	}
	if member.Role == role {
		return nil, utils.ErrRoleUnchanged
	}

	result := &rm.RoleChangeResult{
		UserID:  userID,
		OldRole: string(member.Role),
		NewRole: string(role),
	}
	email := member.User.Email

	err = infra.RunInTransaction(ctx, c.db, func(ctx context.Context) error {
		if _, _, err := c.ledger.Lock(ctx, companyID); err != nil {
			return err
		}

		if role == dbm.RoleEditor {
			occupied, err := c.ledger.HasIndependentEditAccess(ctx, companyID, email)
			if err != nil {
				return err
			}
			if !occupied {
				verdict, err := c.entitlements.CheckInviteEligibility(ctx, companyID)
				if err != nil {
					return err
				}
				if verdict.Denied() {
					result.Verdict = verdict
					return nil
				}
			}
		}

		seat, err := c.ledger.Apply(ctx, companyID, email, func(ctx context.Context) error {
			if err := c.memberRepo.UpdateRole(ctx, companyID, userID, role); err != nil {
				return fmt.Errorf("%w: update role: %v", utils.ErrDatabaseError, err)
			}
			if role == dbm.RoleViewer {
				n, err := c.shareRepo.DowngradeEditToView(ctx, companyID, email)
				if err != nil {
					return fmt.Errorf("%w: downgrade shares: %v", utils.ErrDatabaseError, err)
				}
				result.FilesUpdated = n
			}
			return nil
		})
		if err != nil {
			return err
		}
		result.SeatConsumed = seat.Consumed
		result.SeatReleased = seat.Released
		return nil
	})
	if errors.Is(err, errSeatLimitReached) {
		result.Verdict = c.entitlements.seatLimitVerdict(ctx, companyID)
		return result, nil
	}
	if err != nil {
		return nil, err
	}
	if result.Verdict.Denied() {
		return result, nil
	}

	if sub, plan, err := c.entitlements.snapshot(ctx, companyID); err == nil && sub != nil {
		result.SeatsRemaining = remainingSeats(sub, plan)
	}

	log.Info().
		Str("company_id", companyID.String()).
		Str("user_id", userID.String()).
		Str("role", string(role)).
		Bool("seat_consumed", result.SeatConsumed).
		Bool("seat_released", result.SeatReleased).
		Msg("Member role updated")
	return result, nil
}

func (c *CompanyService) RemoveMember(ctx context.Context, ownerID, companyID, userID uuid.UUID) (*rm.MemberRemovalResult, error) {
	if err := c.requireOwner(ctx, companyID, ownerID); err != nil {
		return nil, err
	}
	if userID == ownerID {
		return nil, utils.ErrSelfRemoval
	}

	member, err := c.memberRepo.FindMember(ctx, companyID, userID)
	if err != nil {
		return nil, utils.ErrDatabaseError
	}
	if member == nil || !member.Active() {
		return nil, utils.ErrMemberNotFound
	}
	if member.Role == dbm.RoleOwner {
		return nil, utils.ErrCannotChangeOwner
	}

	result := &rm.MemberRemovalResult{UserID: userID, Email: member.User.Email}

	seat, err := c.ledger.Apply(ctx, companyID, member.User.Email, func(ctx context.Context) error {
		n, err := c.shareRepo.SoftDeleteByCompanyAndEmail(ctx, companyID, member.User.Email)
		if err != nil {
			return fmt.Errorf("%w: remove shares: %v", utils.ErrDatabaseError, err)
		}
		result.FilesRemoved = n

		if err := c.memberRepo.MarkRemoved(ctx, companyID, userID, time.Now().Unix()); err != nil {
			return fmt.Errorf("%w: tombstone member: %v", utils.ErrDatabaseError, err)
		}
		if member.User.DefaultCompanyID != nil && *member.User.DefaultCompanyID == companyID {
			if err := c.accountRepo.UpdateUser(ctx, userID, map[string]interface{}{"default_company_id": nil}); err != nil {
				return fmt.Errorf("%w: clear default company: %v", utils.ErrDatabaseError, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	result.SeatReleased = seat.Released

	log.Info().
		Str("company_id", companyID.String()).
		Str("user_id", userID.String()).
		Int64("files_removed", result.FilesRemoved).
		Bool("seat_released", result.SeatReleased).
		Msg("Member removed")
	return result, nil
}

func (c *CompanyService) ListMembers(ctx context.Context, userID, companyID uuid.UUID) ([]rm.CompanyMemberView, error) {
	if _, ok, err := c.memberRepo.GetRole(ctx, companyID, userID); err != nil {
		return nil, utils.ErrDatabaseError
	} else if !ok {
		return nil, utils.ErrMemberNotFound
	}

	members, err := c.memberRepo.ListActiveMembers(ctx, companyID)
	if err != nil {
		return nil, utils.ErrDatabaseError
	}

	views := make([]rm.CompanyMemberView, 0, len(members))
	for _, m := range members {
		views = append(views, rm.CompanyMemberView{
			UserID:   m.UserID,
			Email:    m.User.Email,
			FullName: m.User.FullName,
			Role:     string(m.Role),
		})
	}
	return views, nil
}

func (c *CompanyService) requireOwner(ctx context.Context, companyID, userID uuid.UUID) error {
	role, ok, err := c.memberRepo.GetRole(ctx, companyID, userID)
	if err != nil {
		return utils.ErrDatabaseError
	}
	if !ok || role != dbm.RoleOwner {
		return utils.ErrNotOwner
	}
	return nil
}

package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"finmodel/internal/config"
	"finmodel/internal/infra"
	dbm "finmodel/internal/models/db_models"
	rm "finmodel/internal/models/response_models"
	"finmodel/internal/repositories"
	"finmodel/pkg/utils"
)

const (
	invitationTTL    = 14 * 24 * time.Hour
	resendCooldown   = time.Hour
	accessTokenBytes = 32
)

type ShareServiceInterface interface {
	SendInvitation(ctx context.Context, inviterID, instanceID uuid.UUID, email string, permission dbm.SharePermission) (*rm.ShareResult, error)
	ResendInvitation(ctx context.Context, inviterID, shareID uuid.UUID) (*rm.ShareResult, error)
	UpdatePermission(ctx context.Context, inviterID, shareID uuid.UUID, permission dbm.SharePermission) (*rm.PermissionChangeResult, error)
	RespondToInvitation(ctx context.Context, token string, accept bool) (*rm.ShareResult, error)
	DeleteInvitation(ctx context.Context, inviterID, shareID uuid.UUID) (*rm.ShareResult, error)
	ListCollaborators(ctx context.Context, userID, instanceID uuid.UUID) ([]rm.Collaborator, error)
	ListSharedWithMe(ctx context.Context, userID, companyID uuid.UUID) ([]rm.SharedFile, error)
}

type ShareService struct {
	db           *gorm.DB
	shareRepo    repositories.ShareRepository
	productRepo  repositories.ProductRepository
	memberRepo   repositories.MembershipRepository
	accountRepo  repositories.AccountRepository
	ledger       SeatLedger
	entitlements *EntitlementService
	dispatcher   *NotificationDispatcher
	frontendURL  string
	now          func() time.Time
}

func NewShareService(
	db *gorm.DB,
	shareRepo repositories.ShareRepository,
	productRepo repositories.ProductRepository,
	memberRepo repositories.MembershipRepository,
	accountRepo repositories.AccountRepository,
	ledger SeatLedger,
	entitlements *EntitlementService,
	dispatcher *NotificationDispatcher,
	cfg *config.Config,
) ShareServiceInterface {
	return &ShareService{
		db:           db,
		shareRepo:    shareRepo,
		productRepo:  productRepo,
		memberRepo:   memberRepo,
		accountRepo:  accountRepo,
		ledger:       ledger,
		entitlements: entitlements,
		dispatcher:   dispatcher,
		frontendURL:  cfg.FrontendBaseURL,
		now:          time.Now,
	}
}

func (s *ShareService) SendInvitation(ctx context.Context, inviterID, instanceID uuid.UUID, email string, permission dbm.SharePermission) (*rm.ShareResult, error) {
	email = dbm.NormalizeEmail(email)
	if !permission.Valid() {
		return nil, utils.ErrInvalidPermission
	}

	inviter, err := s.accountRepo.FindByID(ctx, inviterID)
	if err != nil {
		return nil, utils.ErrDatabaseError
	}
	if inviter == nil {
		return nil, utils.ErrAccountNotFound
	}
	if inviter.Email == email {
		return nil, utils.ErrSelfInvite
	}

	result := &rm.ShareResult{Email: email, Permission: string(permission)}
	var instance *dbm.ProductInstance

	err = infra.RunInTransaction(ctx, s.db, func(ctx context.Context) error {
		var loadErr error
		instance, loadErr = s.productRepo.FindByID(ctx, instanceID)
		if loadErr != nil {
			return fmt.Errorf("%w: load file: %v", utils.ErrDatabaseError, loadErr)
		}
		if instance != nil {
			if _, _, err := s.ledger.Lock(ctx, instance.CompanyID); err != nil {
				return err
			}
		}

		verdict, err := s.entitlements.CanInvite(ctx, instanceID, inviterID, permission, email)
		if err != nil {
			return err
		}
		if verdict.Denied() {
			result.Verdict = verdict
			return nil
		}

		existing, err := s.shareRepo.FindByInstanceAndEmail(ctx, instanceID, email)
		if err != nil {
			return fmt.Errorf("%w: load share: %v", utils.ErrDatabaseError, err)
		}
		if existing != nil && existing.Status != dbm.ShareStatusDeclined && existing.Status != dbm.ShareStatusDeleted {
			return utils.ErrAlreadyShared
		}

		token, err := utils.GenerateSecureToken(accessTokenBytes)
		if err != nil {
			return fmt.Errorf("generate access token: %w", err)
		}

		var share *dbm.ShareInvitation
		seat, err := s.ledger.Apply(ctx, instance.CompanyID, email, func(ctx context.Context) error {
			var err error
			share, err = s.shareRepo.Upsert(ctx, &dbm.ShareInvitation{
				CompanyID:       instance.CompanyID,
				InstanceID:      instanceID,
				SharedBy:        inviterID,
				SharedWithEmail: email,
				Permission:      permission,
				Status:          dbm.ShareStatusPending,
				AccessToken:     token,
				TokenExpiry:     s.now().Add(invitationTTL).Unix(),
			})
			if err != nil {
				return fmt.Errorf("%w: upsert share: %v", utils.ErrDatabaseError, err)
			}
			return s.ensureMembership(ctx, instance.CompanyID, email, permission)
		})
		if err != nil {
			return err
		}

		result.ShareID = share.ID
		result.Status = string(share.Status)
		result.Seat = seat
		return nil
	})
	if errors.Is(err, errSeatLimitReached) {
		result.Verdict = s.entitlements.seatLimitVerdict(ctx, instance.CompanyID)
		return result, nil
	}
	if err != nil {
		return nil, err
	}
	if result.Verdict.Denied() {
		return result, nil
	}

	share := &dbm.ShareInvitation{SharedWithEmail: email, Permission: permission}
	share.ID = result.ShareID
	s.notifyInvitation(ctx, inviter, instance, share)

	log.Info().
		Str("share_id", result.ShareID.String()).
		Str("company_id", instance.CompanyID.String()).
		Str("permission", string(permission)).
		Bool("seat_added", result.Seat.Consumed).
		Msg("File shared")
	return result, nil
}

func (s *ShareService) ResendInvitation(ctx context.Context, inviterID, shareID uuid.UUID) (*rm.ShareResult, error) {
	share, err := s.shareRepo.FindByID(ctx, shareID)
	if err != nil {
		return nil, utils.ErrDatabaseError
	}
	if share == nil || share.Status != dbm.ShareStatusPending {
		return nil, utils.ErrInvitationNotFound
	}
	if err := s.requireOwner(ctx, share.CompanyID, inviterID); err != nil {
		return nil, err
	}
	if s.now().Sub(time.Unix(share.UpdatedAt, 0)) < resendCooldown {
		return nil, utils.ErrResendTooSoon
	}

	token, err := utils.GenerateSecureToken(accessTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("generate access token: %w", err)
	}
	share.AccessToken = token
	share.TokenExpiry = s.now().Add(invitationTTL).Unix()

	if err := s.shareRepo.UpdateFields(ctx, share.ID, map[string]interface{}{
		"access_token": share.AccessToken,
		"token_expiry": share.TokenExpiry,
		"updated_at":   s.now().Unix(),
	}); err != nil {
		return nil, utils.ErrDatabaseError
	}

	inviter, err := s.accountRepo.FindByID(ctx, inviterID)
	if err != nil || inviter == nil {
		return nil, utils.ErrAccountNotFound
	}
	s.notifyInvitation(ctx, inviter, share.Instance, share)

	return &rm.ShareResult{
		ShareID:    share.ID,
		Email:      share.SharedWithEmail,
		Permission: string(share.Permission),
		Status:     string(share.Status),
	}, nil
}

func (s *ShareService) UpdatePermission(ctx context.Context, inviterID, shareID uuid.UUID, permission dbm.SharePermission) (*rm.PermissionChangeResult, error) {
	if !permission.Valid() {
		return nil, utils.ErrInvalidPermission
	}

	share, err := s.shareRepo.FindByID(ctx, shareID)
	if err != nil {
		return nil, utils.ErrDatabaseError
	}
	if share == nil || !share.Active() {
		return nil, utils.ErrInvitationNotFound
	}
	if share.Permission == permission {
		return nil, utils.ErrPermissionUnchanged
	}

	result := &rm.PermissionChangeResult{
		ShareID:       share.ID,
		OldPermission: string(share.Permission),
		NewPermission: string(permission),
	}
	if invitee, err := s.accountRepo.FindByEmail(ctx, share.SharedWithEmail); err == nil && invitee != nil {
		result.UserID = &invitee.ID
	}

	err = infra.RunInTransaction(ctx, s.db, func(ctx context.Context) error {
		if _, _, err := s.ledger.Lock(ctx, share.CompanyID); err != nil {
			return err
		}

		verdict, err := s.entitlements.canInviteExcluding(ctx, share.InstanceID, inviterID, permission, share.SharedWithEmail, share.ID)
		if err != nil {
			return err
		}
		if verdict.Denied() {
			result.Verdict = verdict
			return nil
		}

		seat, err := s.ledger.Apply(ctx, share.CompanyID, share.SharedWithEmail, func(ctx context.Context) error {
			if err := s.shareRepo.UpdateFields(ctx, share.ID, map[string]interface{}{"permission": permission}); err != nil {
				return fmt.Errorf("%w: update permission: %v", utils.ErrDatabaseError, err)
			}
			if permission == dbm.PermissionEdit {
				return s.ensureMembership(ctx, share.CompanyID, share.SharedWithEmail, permission)
			}
			return nil
		})
		if err != nil {
			return err
		}
		result.Seat = seat
		return nil
	})
	if errors.Is(err, errSeatLimitReached) {
		result.Verdict = s.entitlements.seatLimitVerdict(ctx, share.CompanyID)
		return result, nil
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *ShareService) RespondToInvitation(ctx context.Context, token string, accept bool) (*rm.ShareResult, error) {
	share, err := s.shareRepo.FindByToken(ctx, token)
	if err != nil {
		return nil, utils.ErrDatabaseError
	}
	if share == nil || share.Status != dbm.ShareStatusPending || share.TokenExpiry < s.now().Unix() {
		return nil, utils.ErrInvalidToken
	}

	status := dbm.ShareStatusDeclined
	if accept {
		status = dbm.ShareStatusAccepted
	}
	fields := map[string]interface{}{
		"status":       status,
		"responded_at": s.now().Unix(),
	}

	result := &rm.ShareResult{
		ShareID:    share.ID,
		Email:      share.SharedWithEmail,
		Permission: string(share.Permission),
		Status:     string(status),
	}

	// pending and accepted both hold the grant, so only a decline can move a seat
	if accept {
		if err := s.shareRepo.UpdateFields(ctx, share.ID, fields); err != nil {
			return nil, utils.ErrDatabaseError
		}
		return result, nil
	}

	seat, err := s.ledger.Apply(ctx, share.CompanyID, share.SharedWithEmail, func(ctx context.Context) error {
		return s.shareRepo.UpdateFields(ctx, share.ID, fields)
	})
	if err != nil {
		return nil, err
	}
	result.Seat = seat
	return result, nil
}

func (s *ShareService) DeleteInvitation(ctx context.Context, inviterID, shareID uuid.UUID) (*rm.ShareResult, error) {
	share, err := s.shareRepo.FindByID(ctx, shareID)
	if err != nil {
		return nil, utils.ErrDatabaseError
	}
	if share == nil || share.Status == dbm.ShareStatusDeleted {
		return nil, utils.ErrInvitationNotFound
	}
	if err := s.requireOwner(ctx, share.CompanyID, inviterID); err != nil {
		return nil, err
	}

	seat, err := s.ledger.Apply(ctx, share.CompanyID, share.SharedWithEmail, func(ctx context.Context) error {
		if err := s.shareRepo.SoftDelete(ctx, share.ID); err != nil {
			return fmt.Errorf("%w: delete share: %v", utils.ErrDatabaseError, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &rm.ShareResult{
		ShareID:    share.ID,
		Email:      share.SharedWithEmail,
		Permission: string(share.Permission),
		Status:     string(dbm.ShareStatusDeleted),
		Seat:       seat,
	}, nil
}

func (s *ShareService) ListCollaborators(ctx context.Context, userID, instanceID uuid.UUID) ([]rm.Collaborator, error) {
	instance, err := s.productRepo.FindByID(ctx, instanceID)
	if err != nil {
		return nil, utils.ErrDatabaseError
	}
	if instance == nil || instance.Status != dbm.InstanceActive {
		return nil, utils.ErrFileNotFound
	}
	if _, ok, err := s.memberRepo.GetRole(ctx, instance.CompanyID, userID); err != nil {
		return nil, utils.ErrDatabaseError
	} else if !ok {
		return nil, utils.ErrFileNotFound
	}

	shares, err := s.shareRepo.ListActiveByInstance(ctx, instanceID)
	if err != nil {
		return nil, utils.ErrDatabaseError
	}

	collaborators := make([]rm.Collaborator, 0, len(shares))
	for _, sh := range shares {
		collaborators = append(collaborators, rm.Collaborator{
			ShareID:    sh.ID,
			Email:      sh.SharedWithEmail,
			Permission: string(sh.Permission),
			Status:     string(sh.Status),
			SharedAt:   sh.CreatedAt,
		})
	}
	return collaborators, nil
}

// ListSharedWithMe lists the company's live files shared with the caller's
// email.
func (s *ShareService) ListSharedWithMe(ctx context.Context, userID, companyID uuid.UUID) ([]rm.SharedFile, error) {
	if _, ok, err := s.memberRepo.GetRole(ctx, companyID, userID); err != nil {
		return nil, utils.ErrDatabaseError
	} else if !ok {
		return nil, utils.ErrMemberNotFound
	}
	user, err := s.accountRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, utils.ErrDatabaseError
	}
	if user == nil {
		return nil, utils.ErrAccountNotFound
	}

	shares, err := s.shareRepo.ListActiveByCompanyAndEmail(ctx, companyID, user.Email)
	if err != nil {
		return nil, utils.ErrDatabaseError
	}

	files := make([]rm.SharedFile, 0, len(shares))
	for _, sh := range shares {
		if sh.Instance == nil || sh.Instance.Status != dbm.InstanceActive {
			continue
		}
		files = append(files, rm.SharedFile{
			ShareID:     sh.ID,
			InstanceID:  sh.InstanceID,
			Title:       sh.Instance.Title,
			SharedBy:    sh.SharedBy,
			Permission:  string(sh.Permission),
			Status:      string(sh.Status),
			RespondedAt: sh.RespondedAt,
		})
	}
	return files, nil
}

// ensureMembership gives a registered invitee a role in the company: editor
// for edit shares, viewer otherwise. Viewers are promoted by an edit share;
// nobody is demoted here.
func (s *ShareService) ensureMembership(ctx context.Context, companyID uuid.UUID, email string, permission dbm.SharePermission) error {
	invitee, err := s.accountRepo.FindByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("%w: load invitee: %v", utils.ErrDatabaseError, err)
	}
	if invitee == nil {
		return nil
	}

	role := dbm.RoleViewer
	if permission == dbm.PermissionEdit {
		role = dbm.RoleEditor
	}

	member, err := s.memberRepo.FindMember(ctx, companyID, invitee.ID)
	if err != nil {
		return fmt.Errorf("%w: load member: %v", utils.ErrDatabaseError, err)
	}

	switch {
	case member == nil || !member.Active():
		err = s.memberRepo.UpsertMembership(ctx, companyID, invitee.ID, role)
	case member.Role == dbm.RoleViewer && role == dbm.RoleEditor:
		err = s.memberRepo.UpdateRole(ctx, companyID, invitee.ID, dbm.RoleEditor)
	}
	if err != nil {
		return fmt.Errorf("%w: upsert membership: %v", utils.ErrDatabaseError, err)
	}
	return nil
}

func (s *ShareService) requireOwner(ctx context.Context, companyID, userID uuid.UUID) error {
	role, ok, err := s.memberRepo.GetRole(ctx, companyID, userID)
	if err != nil {
		return utils.ErrDatabaseError
	}
	if !ok || role != dbm.RoleOwner {
		return utils.ErrNotOwner
	}
	return nil
}

func (s *ShareService) notifyInvitation(ctx context.Context, inviter *dbm.User, instance *dbm.ProductInstance, share *dbm.ShareInvitation) {
	// re-read for the token the upsert stored
	stored, err := s.shareRepo.FindByID(ctx, share.ID)
	if err != nil || stored == nil {
		log.Warn().Err(err).Str("share_id", share.ID.String()).Msg("Invitation mail skipped, share not readable")
		return
	}

	fileName := ""
	if instance == nil {
		instance = stored.Instance
	}
	if instance != nil {
		fileName = instance.Title
	}

	s.dispatcher.Dispatch(TemplateFileSharedInvitation, stored.SharedWithEmail, map[string]any{
		"inviter_name": inviter.FullName,
		"file_name":    fileName,
		"permission":   permissionVerb(stored.Permission),
		"accept_link":  s.responseLink(true, fileName, stored.AccessToken),
		"decline_link": s.responseLink(false, fileName, stored.AccessToken),
	})
}

func (s *ShareService) responseLink(accepted bool, fileName, token string) string {
	q := url.Values{}
	q.Set("accepted", fmt.Sprint(accepted))
	q.Set("file_name", fileName)
	q.Set("access_token", token)
	return s.frontendURL + "/shared-file?" + q.Encode()
}

func permissionVerb(p dbm.SharePermission) string {
	if p == dbm.PermissionEdit {
		return "edit"
	}
	return "view"
}

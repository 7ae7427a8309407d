package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"finmodel/internal/infra"
	"finmodel/internal/models/db_models"
	"finmodel/internal/models/request_models"
	"finmodel/internal/models/response_models"
	"finmodel/internal/repositories"
	"finmodel/pkg/socialauth"
	"finmodel/pkg/utils"
)

type AccountServiceInterface interface {
	Login(request request_models.LoginRequest, ctx context.Context) (*response_models.AccountLoginResponse, error)
	CreateAccount(request request_models.SignUpRequest, ctx context.Context) (*response_models.AccountResponse, error)
	SetPassword(request request_models.SetPasswordRequest, ctx context.Context) error
	GetAccount(ctx context.Context, userID, companyID uuid.UUID) (*response_models.AccountResponse, error)
	SocialLogin(ctx context.Context, provider, code string) (*response_models.AccountLoginResponse, error)
}

type AccountService struct {
	db          *gorm.DB
	accountRepo repositories.AccountRepository
	memberRepo  repositories.MembershipRepository
	subRepo     repositories.SubscriptionRepository
	tokens      *utils.TokenIssuer
	social      socialauth.Verifier
}

func NewAccountService(
	db *gorm.DB,
	accountRepo repositories.AccountRepository,
	memberRepo repositories.MembershipRepository,
	subRepo repositories.SubscriptionRepository,
	tokens *utils.TokenIssuer,
	social socialauth.Verifier,
) AccountServiceInterface {
	return &AccountService{
		db:          db,
		accountRepo: accountRepo,
		memberRepo:  memberRepo,
		subRepo:     subRepo,
		tokens:      tokens,
		social:      social,
	}
}

func (a *AccountService) Login(request request_models.LoginRequest, ctx context.Context) (*response_models.AccountLoginResponse, error) {
	startTime := time.Now()

	account, err := a.accountRepo.FindByEmail(ctx, request.Email)
	if err != nil {
		return nil, utils.ErrDatabaseError
	}
	if account == nil {
		return nil, utils.ErrAccountNotFound
	}

	if err := utils.ComparePasswords(account.PasswordHash, request.Password); err != nil {
		return nil, utils.ErrInvalidCredentials
	}

	resp, err := a.issueLogin(ctx, account)
	if err != nil {
		return nil, err
	}

	log.Debug().Str("user_id", account.ID.String()).Dur("took", time.Since(startTime)).Msg("Login succeeded")
	return resp, nil
}

// SocialLogin redeems a provider authorization code. A known provider
// identity signs in its user; otherwise the verified email is linked to an
// existing account or provisions a new one on the Free plan.
func (a *AccountService) SocialLogin(ctx context.Context, provider, code string) (*response_models.AccountLoginResponse, error) {
	if a.social == nil {
		return nil, utils.ErrUnsupportedProvider
	}

	profile, err := a.social.Verify(ctx, provider, code)
	switch {
	case errors.Is(err, socialauth.ErrUnknownProvider):
		return nil, utils.ErrUnsupportedProvider
	case errors.Is(err, socialauth.ErrEmailMissing), errors.Is(err, socialauth.ErrEmailUnverified):
		return nil, utils.ErrSocialEmailMissing
	case err != nil:
		log.Warn().Err(err).Str("provider", provider).Msg("Social login rejected")
		return nil, fmt.Errorf("%w: %v", utils.ErrSocialAuthFailed, err)
	}

	user, created, err := a.linkSocialAccount(ctx, profile)
	if err != nil {
		return nil, err
	}

	resp, err := a.issueLogin(ctx, user)
	if err != nil {
		return nil, err
	}
	hasPassword := user.PasswordHash != ""
	resp.Provider = profile.Provider
	resp.HasPassword = &hasPassword
	resp.NewAccount = created

	log.Info().
		Str("user_id", user.ID.String()).
		Str("provider", profile.Provider).
		Bool("new_account", created).
		Msg("Social login succeeded")
	return resp, nil
}

func (a *AccountService) linkSocialAccount(ctx context.Context, profile *socialauth.Profile) (*db_models.User, bool, error) {
	var (
		user    *db_models.User
		created bool
	)
	now := time.Now().Unix()

	err := infra.RunInTransaction(ctx, a.db, func(ctx context.Context) error {
		link, err := a.accountRepo.FindSocialAccount(ctx, profile.Provider, profile.ProviderUserID)
		if err != nil {
			return fmt.Errorf("%w: find social account: %v", utils.ErrDatabaseError, err)
		}
		if link != nil {
			user, err = a.accountRepo.FindByID(ctx, link.UserID)
			if err != nil {
				return fmt.Errorf("%w: load user: %v", utils.ErrDatabaseError, err)
			}
			if user == nil {
				return utils.ErrAccountNotFound
			}
			return a.accountRepo.UpdateSocialAccount(ctx, link.ID, map[string]interface{}{
				"email":         db_models.NormalizeEmail(profile.Email),
				"picture_url":   profile.PictureURL,
				"last_login_at": now,
			})
		}

		user, err = a.accountRepo.FindByEmail(ctx, profile.Email)
		if err != nil {
			return fmt.Errorf("%w: find user: %v", utils.ErrDatabaseError, err)
		}
		switch {
		case user == nil:
			user = &db_models.User{
				FullName:      profile.FullName,
				Email:         profile.Email,
				EmailVerified: true,
			}
			sub := &db_models.Subscription{
				PlanName: db_models.PlanFree,
				Status:   db_models.SubStatusActive,
			}
			if _, err := a.provision(ctx, user, workspaceName(profile), sub); err != nil {
				return err
			}
			created = true
		case !user.EmailVerified:
			// the provider vouched for the address
			if err := a.accountRepo.UpdateUser(ctx, user.ID, map[string]interface{}{"email_verified": true}); err != nil {
				return fmt.Errorf("%w: verify email: %v", utils.ErrDatabaseError, err)
			}
			user.EmailVerified = true
		}

		if err := a.accountRepo.CreateSocialAccount(ctx, &db_models.SocialAccount{
			UserID:         user.ID,
			Provider:       profile.Provider,
			ProviderUserID: profile.ProviderUserID,
			Email:          profile.Email,
			PictureURL:     profile.PictureURL,
			LastLoginAt:    now,
		}); err != nil {
			return fmt.Errorf("%w: link social account: %v", utils.ErrDatabaseError, err)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return user, created, nil
}

func workspaceName(profile *socialauth.Profile) string {
	name := strings.TrimSpace(profile.FullName)
	if name == "" {
		name, _, _ = strings.Cut(profile.Email, "@")
	}
	return name + "'s Workspace"
}

func (a *AccountService) issueLogin(ctx context.Context, account *db_models.User) (*response_models.AccountLoginResponse, error) {
	companyID, err := a.resolveCompany(ctx, account)
	if err != nil {
		return nil, err
	}

	token, err := a.tokens.CreateToken(account.ID, companyID, account.Email)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	planName := ""
	if sub, err := a.subRepo.FindByCompanyID(ctx, companyID); err == nil && sub != nil {
		planName = sub.PlanName
	}

	return &response_models.AccountLoginResponse{
		Token:     token,
		UserID:    account.ID,
		CompanyID: companyID,
		PlanName:  planName,
	}, nil
}

func (a *AccountService) CreateAccount(request request_models.SignUpRequest, ctx context.Context) (*response_models.AccountResponse, error) {
	existingAccount, err := a.accountRepo.FindByEmail(ctx, request.Email)
	if err != nil {
		return nil, utils.ErrDatabaseError
	}
	if existingAccount != nil {
		return nil, utils.ErrEmailAlreadyExists
	}

	hashedPassword, err := utils.HashPassword(request.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &db_models.User{
		FullName:     request.FullName,
		Email:        request.Email,
		PasswordHash: hashedPassword,
	}
	sub := &db_models.Subscription{
		PlanName: db_models.PlanFree,
		Status:   db_models.SubStatusActive,
	}

	company, err := a.provision(ctx, user, request.CompanyName, sub)
	if err != nil {
		return nil, err
	}

	return &response_models.AccountResponse{
		ID:            user.ID,
		FullName:      user.FullName,
		Email:         user.Email,
		EmailVerified: user.EmailVerified,
		CompanyID:     company.ID,
		CompanyName:   company.Name,
	}, nil
}

func (a *AccountService) SetPassword(request request_models.SetPasswordRequest, ctx context.Context) error {
	user, err := a.accountRepo.FindByPasswordSetupToken(ctx, request.Token)
	if err != nil {
		return utils.ErrDatabaseError
	}
	if user == nil || user.PasswordSetupTokenExpiry == nil || *user.PasswordSetupTokenExpiry < time.Now().Unix() {
		return utils.ErrInvalidToken
	}

	hashedPassword, err := utils.HashPassword(request.Password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	return a.accountRepo.UpdateUser(ctx, user.ID, map[string]interface{}{
		"password_hash":               hashedPassword,
		"email_verified":              true,
		"password_setup_token":        nil,
		"password_setup_token_expiry": nil,
	})
}

func (a *AccountService) GetAccount(ctx context.Context, userID, companyID uuid.UUID) (*response_models.AccountResponse, error) {
	user, err := a.accountRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, utils.ErrDatabaseError
	}
	if user == nil {
		return nil, utils.ErrAccountNotFound
	}

	resp := &response_models.AccountResponse{
		ID:            user.ID,
		FullName:      user.FullName,
		Email:         user.Email,
		EmailVerified: user.EmailVerified,
		CompanyID:     companyID,
	}
	if company, err := a.accountRepo.FindCompanyByID(ctx, companyID); err == nil && company != nil {
		resp.CompanyName = company.Name
	}
	return resp, nil
}

func (a *AccountService) resolveCompany(ctx context.Context, user *db_models.User) (uuid.UUID, error) {
	if user.DefaultCompanyID != nil {
		return *user.DefaultCompanyID, nil
	}
	owned, err := a.memberRepo.FindOwnedCompany(ctx, user.ID)
	if err != nil {
		return uuid.Nil, utils.ErrDatabaseError
	}
	if owned == nil {
		return uuid.Nil, utils.ErrMemberNotFound
	}
	return owned.CompanyID, nil
}

// provision creates the user, their company, the owner membership and the
// company's subscription in one transaction. The owner holds the first seat.
func (a *AccountService) provision(ctx context.Context, user *db_models.User, companyName string, sub *db_models.Subscription) (*db_models.Company, error) {
	return provisionAccount(ctx, a.db, a.accountRepo, a.memberRepo, a.subRepo, user, companyName, sub)
}

func provisionAccount(
	ctx context.Context,
	db *gorm.DB,
	accountRepo repositories.AccountRepository,
	memberRepo repositories.MembershipRepository,
	subRepo repositories.SubscriptionRepository,
	user *db_models.User,
	companyName string,
	sub *db_models.Subscription,
) (*db_models.Company, error) {
	company := &db_models.Company{Name: companyName}

	err := infra.RunInTransaction(ctx, db, func(ctx context.Context) error {
		if err := accountRepo.CreateUser(ctx, user); err != nil {
			return fmt.Errorf("%w: create user: %v", utils.ErrDatabaseError, err)
		}

		company.OwnerID = user.ID
		if err := accountRepo.CreateCompany(ctx, company); err != nil {
			return fmt.Errorf("%w: create company: %v", utils.ErrDatabaseError, err)
		}
		if err := memberRepo.UpsertMembership(ctx, company.ID, user.ID, db_models.RoleOwner); err != nil {
			return fmt.Errorf("%w: create owner membership: %v", utils.ErrDatabaseError, err)
		}
		if err := accountRepo.UpdateUser(ctx, user.ID, map[string]interface{}{"default_company_id": company.ID}); err != nil {
			return fmt.Errorf("%w: set default company: %v", utils.ErrDatabaseError, err)
		}
		user.DefaultCompanyID = &company.ID

		sub.CompanyID = company.ID
		if sub.SeatsUsed == 0 {
			sub.SeatsUsed = 1
		}
		if err := subRepo.Create(ctx, sub); err != nil {
			return fmt.Errorf("%w: create subscription: %v", utils.ErrDatabaseError, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return company, nil
}

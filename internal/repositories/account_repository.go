package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"finmodel/internal/infra"
	"finmodel/internal/models/db_models"
)

type AccountRepository interface {
	CreateUser(ctx context.Context, user *db_models.User) error
	CreateCompany(ctx context.Context, company *db_models.Company) error
	FindByID(ctx context.Context, id uuid.UUID) (*db_models.User, error)
	FindByEmail(ctx context.Context, email string) (*db_models.User, error)
	FindByPasswordSetupToken(ctx context.Context, token string) (*db_models.User, error)
	FindCompanyByID(ctx context.Context, id uuid.UUID) (*db_models.Company, error)
	UpdateUser(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error

	FindSocialAccount(ctx context.Context, provider, providerUserID string) (*db_models.SocialAccount, error)
	CreateSocialAccount(ctx context.Context, account *db_models.SocialAccount) error
	UpdateSocialAccount(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error
}

type accountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) AccountRepository {
	return &accountRepository{
		db: db,
	}
}

func (a *accountRepository) CreateUser(ctx context.Context, user *db_models.User) error {
	user.Email = db_models.NormalizeEmail(user.Email)
	return infra.Conn(ctx, a.db).Create(user).Error
}

func (a *accountRepository) CreateCompany(ctx context.Context, company *db_models.Company) error {
	return infra.Conn(ctx, a.db).Create(company).Error
}

func (a *accountRepository) FindByID(ctx context.Context, id uuid.UUID) (*db_models.User, error) {
	var user db_models.User
	err := infra.Conn(ctx, a.db).First(&user, "id = ?", id).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &user, nil
}

func (a *accountRepository) FindByEmail(ctx context.Context, email string) (*db_models.User, error) {
	var user db_models.User
	err := infra.Conn(ctx, a.db).First(&user, "email = ?", db_models.NormalizeEmail(email)).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &user, nil
}

func (a *accountRepository) FindByPasswordSetupToken(ctx context.Context, token string) (*db_models.User, error) {
	var user db_models.User
	err := infra.Conn(ctx, a.db).First(&user, "password_setup_token = ?", token).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &user, nil
}

func (a *accountRepository) FindCompanyByID(ctx context.Context, id uuid.UUID) (*db_models.Company, error) {
	var company db_models.Company
	err := infra.Conn(ctx, a.db).First(&company, "id = ?", id).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &company, nil
}

func (a *accountRepository) UpdateUser(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error {
	return infra.Conn(ctx, a.db).Model(&db_models.User{}).Where("id = ?", id).Updates(fields).Error
}

func (a *accountRepository) FindSocialAccount(ctx context.Context, provider, providerUserID string) (*db_models.SocialAccount, error) {
	var account db_models.SocialAccount
	err := infra.Conn(ctx, a.db).First(&account, "provider = ? AND provider_user_id = ?", provider, providerUserID).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &account, nil
}

func (a *accountRepository) CreateSocialAccount(ctx context.Context, account *db_models.SocialAccount) error {
	account.Email = db_models.NormalizeEmail(account.Email)
	return infra.Conn(ctx, a.db).Create(account).Error
}

func (a *accountRepository) UpdateSocialAccount(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error {
	return infra.Conn(ctx, a.db).Model(&db_models.SocialAccount{}).Where("id = ?", id).Updates(fields).Error
}

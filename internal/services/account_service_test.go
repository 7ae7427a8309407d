package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbm "finmodel/internal/models/db_models"
	"finmodel/internal/models/request_models"
	"finmodel/pkg/socialauth"
	"finmodel/pkg/utils"
)

type fakeVerifier struct {
	profiles map[string]*socialauth.Profile
}

func (f *fakeVerifier) Verify(_ context.Context, provider, code string) (*socialauth.Profile, error) {
	if provider != socialauth.ProviderGoogle && provider != socialauth.ProviderLinkedIn {
		return nil, socialauth.ErrUnknownProvider
	}
	p, ok := f.profiles[code]
	if !ok {
		return nil, fmt.Errorf("%w: invalid_grant", socialauth.ErrExchange)
	}
	out := *p
	out.Provider = provider
	return &out, nil
}

func newAccountService(env *testEnv) (AccountServiceInterface, *utils.TokenIssuer) {
	svc, tokens, _ := newAccountServiceWithSocial(env)
	return svc, tokens
}

func newAccountServiceWithSocial(env *testEnv) (AccountServiceInterface, *utils.TokenIssuer, *fakeVerifier) {
	tokens := utils.NewTokenIssuer("test-secret")
	social := &fakeVerifier{profiles: map[string]*socialauth.Profile{}}
	return NewAccountService(env.db, env.accountRepo, env.memberRepo, env.subRepo, tokens, social), tokens, social
}

func TestCreateAccountProvisionsFreeWorkspace(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	accounts, _ := newAccountService(env)

	acc, err := accounts.CreateAccount(request_models.SignUpRequest{
		FullName:    "Ada Founder",
		CompanyName: "Ada Labs",
		Email:       "Ada@Example.com",
		Password:    "hunter22",
	}, ctx)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", acc.Email)
	assert.Equal(t, "Ada Labs", acc.CompanyName)

	sub := env.subscription(t, acc.CompanyID)
	assert.Equal(t, dbm.PlanFree, sub.PlanName)
	assert.Equal(t, dbm.SubStatusActive, sub.Status)
	assert.Equal(t, 1, sub.SeatsUsed)
	assert.Equal(t, 0, sub.ModelsUsed)

	role, ok, err := env.memberRepo.GetRole(ctx, acc.CompanyID, acc.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, dbm.RoleOwner, role)

	_, err = accounts.CreateAccount(request_models.SignUpRequest{
		FullName:    "Someone Else",
		CompanyName: "Other",
		Email:       "ada@example.com",
		Password:    "hunter22",
	}, ctx)
	assert.ErrorIs(t, err, utils.ErrEmailAlreadyExists)
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	accounts, tokens := newAccountService(env)

	acc, err := accounts.CreateAccount(request_models.SignUpRequest{
		FullName:    "Grace",
		CompanyName: "Grace Co",
		Email:       "grace@example.com",
		Password:    "correct-horse",
	}, ctx)
	require.NoError(t, err)

	res, err := accounts.Login(request_models.LoginRequest{Email: "grace@example.com", Password: "correct-horse"}, ctx)
	require.NoError(t, err)
	assert.Equal(t, acc.CompanyID, res.CompanyID)
	assert.Equal(t, dbm.PlanFree, res.PlanName)

	claims, err := tokens.ValidateToken(res.Token)
	require.NoError(t, err)
	assert.Equal(t, acc.ID.String(), claims.UserID)
	assert.Equal(t, acc.CompanyID.String(), claims.CompanyID)

	_, err = accounts.Login(request_models.LoginRequest{Email: "grace@example.com", Password: "wrong-pass"}, ctx)
	assert.ErrorIs(t, err, utils.ErrInvalidCredentials)

	_, err = accounts.Login(request_models.LoginRequest{Email: "nobody@example.com", Password: "whatever"}, ctx)
	assert.ErrorIs(t, err, utils.ErrAccountNotFound)
}

func TestSetPassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	accounts, _ := newAccountService(env)

	valid := env.newUser(t, "invited@example.com")
	require.NoError(t, env.accountRepo.UpdateUser(ctx, valid.ID, map[string]interface{}{
		"password_setup_token":        "tok-valid",
		"password_setup_token_expiry": time.Now().Add(time.Hour).Unix(),
	}))
	stale := env.newUser(t, "stale@example.com")
	require.NoError(t, env.accountRepo.UpdateUser(ctx, stale.ID, map[string]interface{}{
		"password_setup_token":        "tok-stale",
		"password_setup_token_expiry": time.Now().Add(-time.Hour).Unix(),
	}))

	require.NoError(t, accounts.SetPassword(request_models.SetPasswordRequest{Token: "tok-valid", Password: "new-secret"}, ctx))

	user, err := env.accountRepo.FindByID(ctx, valid.ID)
	require.NoError(t, err)
	assert.True(t, user.EmailVerified)
	assert.Nil(t, user.PasswordSetupToken)
	assert.NoError(t, utils.ComparePasswords(user.PasswordHash, "new-secret"))

	// tokens are single use
	err = accounts.SetPassword(request_models.SetPasswordRequest{Token: "tok-valid", Password: "again"}, ctx)
	assert.ErrorIs(t, err, utils.ErrInvalidToken)

	err = accounts.SetPassword(request_models.SetPasswordRequest{Token: "tok-stale", Password: "new-secret"}, ctx)
	assert.ErrorIs(t, err, utils.ErrInvalidToken)
}

func TestSocialLoginProvisionsNewAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	accounts, tokens, social := newAccountServiceWithSocial(env)
	social.profiles["code-1"] = &socialauth.Profile{ProviderUserID: "g-1", Email: "grace@example.com", FullName: "Grace Hopper"}

	resp, err := accounts.SocialLogin(ctx, socialauth.ProviderGoogle, "code-1")
	require.NoError(t, err)
	assert.True(t, resp.NewAccount)
	assert.Equal(t, socialauth.ProviderGoogle, resp.Provider)
	require.NotNil(t, resp.HasPassword)
	assert.False(t, *resp.HasPassword)
	assert.Equal(t, dbm.PlanFree, resp.PlanName)

	claims, err := tokens.ValidateToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, resp.UserID.String(), claims.UserID)

	company, err := env.accountRepo.FindCompanyByID(ctx, resp.CompanyID)
	require.NoError(t, err)
	assert.Equal(t, "Grace Hopper's Workspace", company.Name)

	user, err := env.accountRepo.FindByEmail(ctx, "grace@example.com")
	require.NoError(t, err)
	assert.True(t, user.EmailVerified)
	assert.Equal(t, 1, env.subscription(t, resp.CompanyID).SeatsUsed)

	// the same identity signs in again without a second workspace
	again, err := accounts.SocialLogin(ctx, socialauth.ProviderGoogle, "code-1")
	require.NoError(t, err)
	assert.False(t, again.NewAccount)
	assert.Equal(t, resp.UserID, again.UserID)
	assert.Equal(t, resp.CompanyID, again.CompanyID)
}

func TestSocialLoginLinksExistingPasswordAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	accounts, _, social := newAccountServiceWithSocial(env)

	acc, err := accounts.CreateAccount(request_models.SignUpRequest{
		FullName:    "Ada Founder",
		CompanyName: "Ada Labs",
		Email:       "ada@example.com",
		Password:    "hunter22",
	}, ctx)
	require.NoError(t, err)
	social.profiles["li-code"] = &socialauth.Profile{ProviderUserID: "li-9", Email: "ada@example.com", FullName: "Ada F."}

	resp, err := accounts.SocialLogin(ctx, socialauth.ProviderLinkedIn, "li-code")
	require.NoError(t, err)
	assert.False(t, resp.NewAccount)
	assert.Equal(t, acc.ID, resp.UserID)
	assert.Equal(t, acc.CompanyID, resp.CompanyID)
	require.NotNil(t, resp.HasPassword)
	assert.True(t, *resp.HasPassword)

	link, err := env.accountRepo.FindSocialAccount(ctx, socialauth.ProviderLinkedIn, "li-9")
	require.NoError(t, err)
	require.NotNil(t, link)
	assert.Equal(t, acc.ID, link.UserID)

	user, err := env.accountRepo.FindByID(ctx, acc.ID)
	require.NoError(t, err)
	assert.True(t, user.EmailVerified)
}

func TestSocialLoginErrors(t *testing.T) {
	env := newTestEnv(t)
	accounts, _, _ := newAccountServiceWithSocial(env)

	_, err := accounts.SocialLogin(context.Background(), "github", "x")
	assert.ErrorIs(t, err, utils.ErrUnsupportedProvider)

	_, err = accounts.SocialLogin(context.Background(), socialauth.ProviderGoogle, "expired")
	assert.ErrorIs(t, err, utils.ErrSocialAuthFailed)
}

package account_fx

import (
	"net/http"
	"time"

	"go.uber.org/fx"
	"gorm.io/gorm"

	"finmodel/internal/config"
	"finmodel/internal/repositories"
	"finmodel/internal/services"
	"finmodel/pkg/socialauth"
	"finmodel/pkg/utils"
)

var Module = fx.Provide(
	provideAccountService, provideAccountRepo, provideMembershipRepo, provideSocialVerifier)

func provideSocialVerifier(cfg *config.Config) socialauth.Verifier {
	s := cfg.Social
	return socialauth.NewOAuthVerifier(
		&http.Client{Timeout: 15 * time.Second},
		socialauth.Google(s.GoogleClientID, s.GoogleClientSecret, s.GoogleRedirectURL),
		socialauth.LinkedIn(s.LinkedInClientID, s.LinkedInClientSecret, s.LinkedInRedirectURL),
	)
}

func provideAccountRepo(db *gorm.DB) repositories.AccountRepository {
	return repositories.NewAccountRepository(db)
}

func provideMembershipRepo(db *gorm.DB) repositories.MembershipRepository {
	return repositories.NewMembershipRepository(db)
}

func provideAccountService(
	db *gorm.DB,
	accountRepo repositories.AccountRepository,
	memberRepo repositories.MembershipRepository,
	subRepo repositories.SubscriptionRepository,
	tokens *utils.TokenIssuer,
	social socialauth.Verifier,
) services.AccountServiceInterface {
	return services.NewAccountService(db, accountRepo, memberRepo, subRepo, tokens, social)
}

package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"finmodel/internal/config"
	"finmodel/internal/infra"
	dbm "finmodel/internal/models/db_models"
	"finmodel/internal/repositories"
	mem "finmodel/pkg/memcache"
)

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Notify(ctx context.Context, template, recipient string, vars map[string]any) error {
	args := m.Called(template, recipient)
	return args.Error(0)
}

// fakeProvider is an in-memory BillingProvider.
type fakeProvider struct {
	mu        sync.Mutex
	subs      map[string]*ProviderSubscription
	customers map[string]*ProviderCustomer
	invoices  map[string]*ProviderInvoice
	canceled  []string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		subs:      map[string]*ProviderSubscription{},
		customers: map[string]*ProviderCustomer{},
		invoices:  map[string]*ProviderInvoice{},
	}
}

func (f *fakeProvider) GetSubscription(_ context.Context, id string) (*ProviderSubscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.subs[id]
	if !ok {
		return nil, fmt.Errorf("no such subscription: %s", id)
	}
	cp := *s
	return &cp, nil
}

func (f *fakeProvider) CancelSubscription(_ context.Context, id, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.canceled = append(f.canceled, id)
	if s, ok := f.subs[id]; ok {
		s.Status = "canceled"
	}
	return nil
}

func (f *fakeProvider) GetCustomer(_ context.Context, id string) (*ProviderCustomer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.customers[id]
	if !ok {
		return nil, fmt.Errorf("no such customer: %s", id)
	}
	return c, nil
}

func (f *fakeProvider) GetInvoice(_ context.Context, id string) (*ProviderInvoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.invoices[id]
	if !ok {
		return nil, fmt.Errorf("no such invoice: %s", id)
	}
	return inv, nil
}

func (f *fakeProvider) PaymentFailureReason(context.Context, string) (string, error) {
	return "card_declined", nil
}

func (f *fakeProvider) CreatePortalSession(_ context.Context, customerID, _ string) (string, error) {
	return "https://billing.example.com/p/" + customerID, nil
}

func (f *fakeProvider) CreateCheckoutSession(_ context.Context, in CheckoutSessionInput) (string, string, error) {
	return "cs_test", "https://checkout.example.com/cs_test?price=" + in.PriceID, nil
}

func (f *fakeProvider) canceledIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.canceled...)
}

type testEnv struct {
	db          *gorm.DB
	cfg         *config.Config
	accountRepo repositories.AccountRepository
	memberRepo  repositories.MembershipRepository
	subRepo     repositories.SubscriptionRepository
	shareRepo   repositories.ShareRepository
	productRepo repositories.ProductRepository
	billingRepo repositories.BillingRepository
	plans       PlanServiceInterface
	ledger      SeatLedger

	entitlements *EntitlementService
	notifier     *mockNotifier
	dispatcher   *NotificationDispatcher
	provider     *fakeProvider
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, infra.Migrate(db))

	env := &testEnv{
		db: db,
		cfg: &config.Config{
			FrontendBaseURL: "https://app.example.com",
			AdminEmail:      "support@example.com",
			Stripe: config.StripeConfig{
				SecretKey:       "sk_test",
				WebhookSecret:   "whsec_test",
				GracePeriodDays: 7,
				PriceFounders:   "price_founders",
				PriceGrowth:     "price_growth",
				PricePitchDeck:  "price_deck",
			},
		},
		accountRepo: repositories.NewAccountRepository(db),
		memberRepo:  repositories.NewMembershipRepository(db),
		subRepo:     repositories.NewSubscriptionRepository(db),
		shareRepo:   repositories.NewShareRepository(db),
		productRepo: repositories.NewProductRepository(db),
		billingRepo: repositories.NewBillingRepository(db),
		notifier:    &mockNotifier{},
		provider:    newFakeProvider(),
	}
	env.plans = NewPlanService(repositories.NewPlanRepository(db), mem.NewTTLStore[dbm.Plan]())
	env.ledger = NewSeatLedger(db, env.subRepo, env.memberRepo, env.shareRepo, env.plans)
	env.entitlements = NewEntitlementService(env.subRepo, env.productRepo, env.memberRepo, env.plans, env.ledger)
	env.dispatcher = NewNotificationDispatcher(env.notifier)
	env.notifier.On("Notify", mock.Anything, mock.Anything).Return(nil).Maybe()
	return env
}

func (e *testEnv) shares() ShareServiceInterface {
	return NewShareService(e.db, e.shareRepo, e.productRepo, e.memberRepo, e.accountRepo, e.ledger, e.entitlements, e.dispatcher, e.cfg)
}

func (e *testEnv) companies() CompanyServiceInterface {
	return NewCompanyService(e.db, e.memberRepo, e.shareRepo, e.accountRepo, e.ledger, e.entitlements)
}

func (e *testEnv) products() ProductServiceInterface {
	return NewProductService(e.db, e.productRepo, e.shareRepo, e.memberRepo, e.subRepo, e.ledger, e.entitlements)
}

func (e *testEnv) reconciler() *BillingReconciler {
	return NewBillingReconciler(e.db, e.billingRepo, e.subRepo, e.accountRepo, e.memberRepo, e.plans, e.provider, e.dispatcher, e.cfg)
}

type ownerFixture struct {
	user    *dbm.User
	company *dbm.Company
}

// newOwnerCompany provisions an owner, their company and an active
// subscription on planName.
func (e *testEnv) newOwnerCompany(t *testing.T, planName string) *ownerFixture {
	t.Helper()
	return e.newOwnerCompanyWith(t, &dbm.Subscription{PlanName: planName, Status: dbm.SubStatusActive})
}

func (e *testEnv) newOwnerCompanyWith(t *testing.T, sub *dbm.Subscription) *ownerFixture {
	t.Helper()
	user := &dbm.User{
		FullName: "Owner",
		Email:    "owner-" + uuid.NewString()[:8] + "@example.com",
	}
	company, err := provisionAccount(context.Background(), e.db, e.accountRepo, e.memberRepo, e.subRepo, user, "Acme", sub)
	require.NoError(t, err)
	return &ownerFixture{user: user, company: company}
}

func (e *testEnv) newUser(t *testing.T, email string) *dbm.User {
	t.Helper()
	user := &dbm.User{FullName: "Member", Email: dbm.NormalizeEmail(email)}
	require.NoError(t, e.accountRepo.CreateUser(context.Background(), user))
	return user
}

func (e *testEnv) addMember(t *testing.T, companyID uuid.UUID, email string, role dbm.MemberRole) *dbm.User {
	t.Helper()
	user := e.newUser(t, email)
	require.NoError(t, e.memberRepo.UpsertMembership(context.Background(), companyID, user.ID, role))
	return user
}

func (e *testEnv) newFile(t *testing.T, o *ownerFixture, title string) *dbm.ProductInstance {
	t.Helper()
	instance := &dbm.ProductInstance{
		CompanyID: o.company.ID,
		CreatedBy: o.user.ID,
		Title:     title,
		Status:    dbm.InstanceActive,
	}
	require.NoError(t, e.productRepo.Create(context.Background(), instance))
	return instance
}

func (e *testEnv) subscription(t *testing.T, companyID uuid.UUID) *dbm.Subscription {
	t.Helper()
	sub, err := e.subRepo.FindByCompanyID(context.Background(), companyID)
	require.NoError(t, err)
	require.NotNil(t, sub)
	return sub
}

func (e *testEnv) setSubscription(t *testing.T, companyID uuid.UUID, fields map[string]interface{}) {
	t.Helper()
	sub := e.subscription(t, companyID)
	require.NoError(t, e.subRepo.Update(context.Background(), sub.ID, fields))
}

func strPtr(s string) *string {
	return &s
}

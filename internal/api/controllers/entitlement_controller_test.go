package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	dbm "finmodel/internal/models/db_models"
	rm "finmodel/internal/models/response_models"
	"finmodel/pkg/middleware"
	"finmodel/pkg/utils"
)

type mockEntitlements struct {
	mock.Mock
}

func (m *mockEntitlements) verdict(args mock.Arguments) (*rm.Verdict, error) {
	v, _ := args.Get(0).(*rm.Verdict)
	return v, args.Error(1)
}

func (m *mockEntitlements) CanCreateModel(_ context.Context, companyID uuid.UUID) (*rm.Verdict, error) {
	return m.verdict(m.Called(companyID))
}

func (m *mockEntitlements) CanInvite(_ context.Context, instanceID, inviterID uuid.UUID, permission dbm.SharePermission, email string) (*rm.Verdict, error) {
	return m.verdict(m.Called(instanceID, inviterID, permission, email))
}

func (m *mockEntitlements) CheckInviteEligibility(_ context.Context, companyID uuid.UUID) (*rm.Verdict, error) {
	return m.verdict(m.Called(companyID))
}

func (m *mockEntitlements) CanRestoreModel(_ context.Context, companyID uuid.UUID) (*rm.Verdict, error) {
	return m.verdict(m.Called(companyID))
}

func (m *mockEntitlements) CompanyLimits(_ context.Context, companyID uuid.UUID) (*rm.CompanyLimits, error) {
	args := m.Called(companyID)
	l, _ := args.Get(0).(*rm.CompanyLimits)
	return l, args.Error(1)
}

// withIdentity stands in for JWTAuthMiddleware.
func withIdentity(userID, companyID uuid.UUID) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.CtxUserID, userID.String())
		c.Set(middleware.CtxCompanyID, companyID.String())
		c.Next()
	}
}

func TestEntitlementEndpoints(t *testing.T) {
	gin.SetMode(gin.TestMode)
	userID, companyID, fileID := uuid.New(), uuid.New(), uuid.New()

	svc := &mockEntitlements{}
	ctrl := NewEntitlementController(svc)
	r := gin.New()
	r.Use(withIdentity(userID, companyID))
	r.GET("/entitlements/can-create-model", ctrl.CanCreateModel)
	r.GET("/entitlements/limits", ctrl.Limits)
	r.GET("/files/:id/can-invite", ctrl.CanInvite)

	t.Run("denial is returned as data", func(t *testing.T) {
		svc.On("CanCreateModel", companyID).Return(&rm.Verdict{
			Reason: rm.ReasonModelLimitReached,
			Used:   5,
			Limit:  5,
		}, nil).Once()

		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/entitlements/can-create-model", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			Data rm.Verdict `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.False(t, body.Data.Allowed)
		assert.Equal(t, rm.ReasonModelLimitReached, body.Data.Reason)
	})

	t.Run("can invite passes query through", func(t *testing.T) {
		svc.On("CanInvite", fileID, userID, dbm.PermissionEdit, "a@example.com").
			Return(&rm.Verdict{Allowed: true, SeatNeeded: true}, nil).Once()

		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/files/"+fileID.String()+"/can-invite?permission=edit&email=a@example.com", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("bad file id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/files/not-a-uuid/can-invite?permission=view", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing subscription maps to not found", func(t *testing.T) {
		svc.On("CompanyLimits", companyID).Return(nil, utils.ErrSubscriptionNotFound).Once()

		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/entitlements/limits", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	svc.AssertExpectations(t)
}

func TestIdentityRequired(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctrl := NewEntitlementController(&mockEntitlements{})
	r := gin.New()
	r.GET("/entitlements/can-create-model", ctrl.CanCreateModel)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/entitlements/can-create-model", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

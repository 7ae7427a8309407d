package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"

	"finmodel/internal/config"
	rm "finmodel/internal/models/response_models"
	"finmodel/internal/services"
)

const testWebhookSecret = "whsec_test_secret"

type mockEventHandler struct {
	mock.Mock
}

func (m *mockEventHandler) HandleEvent(ctx context.Context, ev services.BillingEvent) (*rm.WebhookResult, error) {
	args := m.Called(ev.ID, ev.Type, string(ev.Data))
	res, _ := args.Get(0).(*rm.WebhookResult)
	return res, args.Error(1)
}

func newWebhookRouter(events services.BillingEventHandler, secret string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{Stripe: config.StripeConfig{WebhookSecret: secret}}
	ctrl := NewPaymentController(nil, events, cfg)

	r := gin.New()
	r.POST("/webhooks/stripe", ctrl.HandleWebhook)
	return r
}

func signedWebhook(t *testing.T, payload []byte, secret string) *http.Request {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", signed.Header)
	return req
}

func eventPayload(t *testing.T, id, typ string, object map[string]any) []byte {
	t.Helper()
	b, err := json.Marshal(map[string]any{
		"id":          id,
		"object":      "event",
		"type":        typ,
		"api_version": "2020-01-01",
		"data":        map[string]any{"object": object},
	})
	require.NoError(t, err)
	return b
}

func TestHandleWebhook(t *testing.T) {
	payload := eventPayload(t, "evt_ok", services.EventSubscriptionDeleted, map[string]any{"id": "sub_1"})

	t.Run("verified event is handed over", func(t *testing.T) {
		events := &mockEventHandler{}
		events.On("HandleEvent", "evt_ok", services.EventSubscriptionDeleted, mock.MatchedBy(func(data string) bool {
			return assert.JSONEq(t, `{"id":"sub_1"}`, data)
		})).Return(&rm.WebhookResult{EventID: "evt_ok", Outcome: services.OutcomeCanceled}, nil).Once()

		rec := httptest.NewRecorder()
		newWebhookRouter(events, testWebhookSecret).ServeHTTP(rec, signedWebhook(t, payload, testWebhookSecret))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), services.OutcomeCanceled)
		events.AssertExpectations(t)
	})

	t.Run("wrong secret", func(t *testing.T) {
		events := &mockEventHandler{}
		rec := httptest.NewRecorder()
		newWebhookRouter(events, testWebhookSecret).ServeHTTP(rec, signedWebhook(t, payload, "whsec_other"))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		events.AssertNotCalled(t, "HandleEvent", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("missing signature", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(payload))
		newWebhookRouter(&mockEventHandler{}, testWebhookSecret).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("not configured", func(t *testing.T) {
		rec := httptest.NewRecorder()
		newWebhookRouter(&mockEventHandler{}, "").ServeHTTP(rec, signedWebhook(t, payload, testWebhookSecret))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("event ahead of provider is retried", func(t *testing.T) {
		events := &mockEventHandler{}
		events.On("HandleEvent", "evt_ok", mock.Anything, mock.Anything).
			Return(nil, services.ErrEventNotReady).Once()

		rec := httptest.NewRecorder()
		newWebhookRouter(events, testWebhookSecret).ServeHTTP(rec, signedWebhook(t, payload, testWebhookSecret))

		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("processing failure", func(t *testing.T) {
		events := &mockEventHandler{}
		events.On("HandleEvent", "evt_ok", mock.Anything, mock.Anything).
			Return(nil, errors.New("db down")).Once()

		rec := httptest.NewRecorder()
		newWebhookRouter(events, testWebhookSecret).ServeHTTP(rec, signedWebhook(t, payload, testWebhookSecret))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

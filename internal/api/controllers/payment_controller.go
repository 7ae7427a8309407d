package controllers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/stripe/stripe-go/v82/webhook"

	"finmodel/internal/config"
	"finmodel/internal/models/request_models"
	"finmodel/internal/services"
	"finmodel/pkg/utils"
)

const webhookBodyLimit = 1 << 20

type PaymentController struct {
	paymentService services.PaymentService
	events         services.BillingEventHandler
	webhookSecret  string
}

func NewPaymentController(paymentService services.PaymentService, events services.BillingEventHandler, cfg *config.Config) *PaymentController {
	return &PaymentController{
		paymentService: paymentService,
		events:         events,
		webhookSecret:  cfg.Stripe.WebhookSecret,
	}
}

// GetPlans godoc
// @Summary List subscription plans
// @Tags Payments
// @Produce json
// @Success 200 {object} utils.APIResponse
// @Router /payments/plans [get]
func (p *PaymentController) GetPlans(c *gin.Context) {
	plans, err := p.paymentService.GetPlans(c.Request.Context())
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.RespondSuccess(c, plans, "Plans fetched successfully")
}

// CreateSubscriptionCheckout godoc
// @Summary Start a subscription checkout
// @Tags Payments
// @Accept json
// @Produce json
// @Param request body request_models.SubscriptionCheckoutRequest true "Checkout payload"
// @Success 200 {object} utils.APIResponse
// @Router /payments/checkout/subscription [post]
func (p *PaymentController) CreateSubscriptionCheckout(c *gin.Context) {
	var req request_models.SubscriptionCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Invalid request payload")
		return
	}

	session, err := p.paymentService.CreateSubscriptionCheckout(c.Request.Context(), req.Email, req.SubscriptionType)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.RespondSuccess(c, session, "Checkout session created successfully")
}

// CreateOneOffCheckout godoc
// @Summary Start a one-off service checkout
// @Tags Payments
// @Accept json
// @Produce json
// @Param request body request_models.OneOffCheckoutRequest true "Checkout payload"
// @Success 200 {object} utils.APIResponse
// @Router /payments/checkout/one-off [post]
func (p *PaymentController) CreateOneOffCheckout(c *gin.Context) {
	var req request_models.OneOffCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Invalid request payload")
		return
	}

	session, err := p.paymentService.CreateOneOffCheckout(c.Request.Context(), req.Email, req.ProductType)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.RespondSuccess(c, session, "Checkout session created successfully")
}

// CreatePortalSession godoc
// @Summary Open the billing portal for the caller's company
// @Tags Payments
// @Produce json
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /payments/portal [post]
func (p *PaymentController) CreatePortalSession(c *gin.Context) {
	userID, companyID, ok := identity(c)
	if !ok {
		return
	}

	session, err := p.paymentService.CreatePortalSession(c.Request.Context(), userID, companyID)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.RespondSuccess(c, session, "Portal session created successfully")
}

// SubscriptionStatus godoc
// @Summary Subscription, usage and feature flags of the caller's company
// @Tags Payments
// @Produce json
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /payments/subscription [get]
func (p *PaymentController) SubscriptionStatus(c *gin.Context) {
	_, companyID, ok := identity(c)
	if !ok {
		return
	}

	status, err := p.paymentService.SubscriptionStatus(c.Request.Context(), companyID)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.RespondSuccess(c, status, "Subscription fetched successfully")
}

// HandleWebhook verifies the Stripe signature and hands the event to the
// reconciler. Failures answer 5xx so Stripe redelivers.
func (p *PaymentController) HandleWebhook(c *gin.Context) {
	if strings.TrimSpace(p.webhookSecret) == "" {
		utils.RespondError(c, http.StatusServiceUnavailable, "Billing is not configured")
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, webhookBodyLimit)
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Failed to read request body")
		return
	}

	sigHeader := c.GetHeader("Stripe-Signature")
	if strings.TrimSpace(sigHeader) == "" {
		utils.RespondError(c, http.StatusBadRequest, "Missing Stripe signature")
		return
	}

	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, p.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		log.Warn().Err(err).Msg("Stripe webhook signature rejected")
		utils.RespondError(c, http.StatusBadRequest, "Invalid Stripe signature")
		return
	}

	var data []byte
	if event.Data != nil {
		data = event.Data.Raw
	}

	result, err := p.events.HandleEvent(c.Request.Context(), services.BillingEvent{
		ID:   event.ID,
		Type: string(event.Type),
		Data: data,
	})
	if err != nil {
		log.Error().Err(err).
			Str("event_id", event.ID).
			Str("type", string(event.Type)).
			Msg("Stripe webhook processing failed")
		if errors.Is(err, services.ErrEventNotReady) {
			utils.RespondError(c, http.StatusConflict, "Event not yet applicable")
			return
		}
		utils.RespondError(c, http.StatusInternalServerError, "Failed to process event")
		return
	}

	utils.RespondSuccess(c, result, "Event received")
}

package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"go.uber.org/fx"

	"finmodel/cmd/fx/account_fx"
	"finmodel/cmd/fx/company_fx"
	"finmodel/cmd/fx/config_fx"
	"finmodel/cmd/fx/controllers_fx"
	"finmodel/cmd/fx/dashboard_fx"
	"finmodel/cmd/fx/db_fx"
	"finmodel/cmd/fx/entitlement_fx"
	"finmodel/cmd/fx/grace_fx"
	"finmodel/cmd/fx/mail_fx"
	"finmodel/cmd/fx/memcache_fx"
	"finmodel/cmd/fx/payment_service_fx"
	"finmodel/cmd/fx/plan_fx"
	"finmodel/cmd/fx/product_fx"
	"finmodel/cmd/fx/share_fx"
	"finmodel/internal/api/controllers"
	"finmodel/internal/config"
	"finmodel/pkg/logging"
	"finmodel/pkg/middleware"
	"finmodel/pkg/utils"
)

func main() {
	app := fx.New(
		fx.NopLogger,
		config_fx.Module,
		fx.Invoke(initLogging),
		db_fx.Module,
		memcache_fx.Module,
		plan_fx.Module,
		account_fx.Module,
		entitlement_fx.Module,
		mail_fx.Module,
		share_fx.Module,
		company_fx.Module,
		product_fx.Module,
		payment_service_fx.Module,
		grace_fx.Module,
		dashboard_fx.Module,
		controllers_fx.Module,

		fx.Provide(ProvideRouter),
		fx.Invoke(StartServer),
	)

	app.Run()
}

func initLogging(cfg *config.Config) {
	logging.Init(cfg.LogLevel, cfg.LogPretty)
}

func StartServer(lc fx.Lifecycle, engine *gin.Engine, cfg *config.Config) {
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info().Str("addr", srv.Addr).Msg("Starting HTTP server")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal().Err(err).Msg("Failed to start server")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info().Msg("Stopping HTTP server")
			return srv.Shutdown(ctx)
		},
	})
}

type routeControllers struct {
	fx.In

	Account     *controllers.AccountController
	Entitlement *controllers.EntitlementController
	Product     *controllers.ProductController
	Share       *controllers.ShareController
	Company     *controllers.CompanyController
	Payment     *controllers.PaymentController
	Dashboard   *controllers.DashboardController
}

func ProvideRouter(cfg *config.Config, tokens *utils.TokenIssuer, ctrl routeControllers) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(middleware.TraceIDMiddleware())
	r.Use(logging.RequestLogger())
	r.Use(gin.Recovery())
	r.Use(middleware.CORSMiddleware(cfg.FrontendBaseURL))

	RegisterRoutes(r, middleware.JWTAuthMiddleware(tokens), middleware.AdminOnly(cfg.AdminEmail), ctrl)

	return r
}

func RegisterRoutes(r *gin.Engine, auth, admin gin.HandlerFunc, ctrl routeControllers) {
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	r.POST("/webhooks/stripe", ctrl.Payment.HandleWebhook)

	accounts := r.Group("/accounts")
	accounts.POST("/register", ctrl.Account.Register)
	accounts.POST("/login", ctrl.Account.Login)
	accounts.POST("/set-password", ctrl.Account.SetPassword)
	accounts.POST("/callback/:provider", ctrl.Account.SocialLogin)
	accounts.GET("/me", auth, ctrl.Account.Me)

	payments := r.Group("/payments")
	payments.GET("/plans", ctrl.Payment.GetPlans)
	payments.POST("/checkout/subscription", ctrl.Payment.CreateSubscriptionCheckout)
	payments.POST("/checkout/one-off", ctrl.Payment.CreateOneOffCheckout)
	payments.POST("/portal", auth, ctrl.Payment.CreatePortalSession)
	payments.GET("/subscription", auth, ctrl.Payment.SubscriptionStatus)

	r.GET("/shares/respond", ctrl.Share.Respond)

	protected := r.Group("/", auth)

	entitlements := protected.Group("/entitlements")
	entitlements.GET("/can-create-model", ctrl.Entitlement.CanCreateModel)
	entitlements.GET("/invite-eligibility", ctrl.Entitlement.InviteEligibility)
	entitlements.GET("/limits", ctrl.Entitlement.Limits)

	files := protected.Group("/files")
	files.POST("", ctrl.Product.Create)
	files.GET("", ctrl.Product.List)
	files.GET("/:id", ctrl.Product.Get)
	files.DELETE("/:id", ctrl.Product.Delete)
	files.POST("/:id/clone", ctrl.Product.Clone)
	files.POST("/:id/restore", ctrl.Product.Restore)
	files.PUT("/:id/sections/:section", ctrl.Product.SaveSection)
	files.GET("/:id/can-invite", ctrl.Entitlement.CanInvite)
	files.POST("/:id/shares", ctrl.Share.ShareFile)
	files.GET("/:id/shares", ctrl.Share.ListCollaborators)
	files.POST("/:id/lock", ctrl.Product.Lock)
	files.POST("/:id/unlock", ctrl.Product.Unlock)
	files.GET("/:id/versions", ctrl.Product.Versions)
	files.POST("/:id/versions/:versionId/restore", ctrl.Product.RestoreVersion)
	files.GET("/:id/editors", ctrl.Product.Editors)
	files.POST("/:id/edit/start", ctrl.Product.StartEdit)
	files.POST("/:id/edit/sessions/:sessionId/autosave", ctrl.Product.AutosaveSession)
	files.POST("/:id/edit/sessions/:sessionId/save", ctrl.Product.SaveSession)
	files.POST("/:id/edit/sessions/:sessionId/discard", ctrl.Product.DiscardSession)

	shares := protected.Group("/shares")
	shares.GET("/shared-with-me", ctrl.Share.SharedWithMe)
	shares.POST("/:shareId/resend", ctrl.Share.Resend)
	shares.PATCH("/:shareId/permission", ctrl.Share.UpdatePermission)
	shares.DELETE("/:shareId", ctrl.Share.Delete)

	company := protected.Group("/company")
	company.GET("/members", ctrl.Company.ListMembers)
	company.PATCH("/members/:userId/role", ctrl.Company.UpdateRole)
	company.DELETE("/members/:userId", ctrl.Company.RemoveMember)

	protected.GET("/admin/dashboard", admin, ctrl.Dashboard.GetDashboard)
}

package mail_fx

import (
	"context"

	"github.com/rs/zerolog/log"
	"go.uber.org/fx"

	"finmodel/internal/config"
	"finmodel/internal/services"
)

var Module = fx.Provide(provideMailService, services.NewMailNotifier, provideDispatcher)

func provideMailService(cfg *config.Config) services.IMailService {
	if cfg.SMTP.Username == "" {
		log.Warn().Msg("SMTP_USERNAME not set, sending mail without authentication")
	}

	return services.NewSMTPMailService(services.SMTPConfig{
		Host:       cfg.SMTP.Host,
		Port:       cfg.SMTP.Port,
		Username:   cfg.SMTP.Username,
		Password:   cfg.SMTP.Password,
		From:       cfg.SMTP.From,
		FromName:   cfg.SMTP.FromName,
		UseSSL:     cfg.SMTP.UseSSL,
		RequireTLS: !cfg.SMTP.UseSSL,
		AppName:    cfg.SMTP.FromName,
	})
}

// provideDispatcher drains in-flight notifications on shutdown.
func provideDispatcher(lc fx.Lifecycle, notifier services.Notifier) *services.NotificationDispatcher {
	d := services.NewNotificationDispatcher(notifier)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			d.Wait()
			return nil
		},
	})
	return d
}

package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"finmodel/pkg/metrics"
)

const (
	TemplateSubscriptionNewAccount    = "stripeSubscriptionNewAccount"
	TemplateSubscriptionUpgrade       = "stripeSubscriptionUpgrade"
	TemplateOneOffOrder               = "stripeOneOffOrderEmail"
	TemplateSubscriptionCancelled     = "stripeSubscriptionCancelled"
	TemplateDiscardCancelSubscription = "stripeDiscardCancelSubscriptionRequest"
	TemplatePaymentConvertedToCredit  = "stripePaymentConvertedToCredit"
	TemplateSubscriptionPaymentFailed = "stripeSubscriptionPaymentFailed"
	TemplateFileSharedInvitation      = "fileSharedInvitation"
)

const notifyTimeout = 30 * time.Second

// Notifier delivers one templated message.
type Notifier interface {
	Notify(ctx context.Context, template, recipient string, vars map[string]any) error
}

// NotificationDispatcher sends notifications in the background. Failures are
// logged and counted, never returned.
type NotificationDispatcher struct {
	notifier Notifier
	wg       sync.WaitGroup
}

func NewNotificationDispatcher(notifier Notifier) *NotificationDispatcher {
	return &NotificationDispatcher{notifier: notifier}
}

func (d *NotificationDispatcher) Dispatch(template, recipient string, vars map[string]any) {
	if recipient == "" {
		log.Warn().Str("template", template).Msg("Notification skipped, no recipient")
		metrics.NotificationsTotal.WithLabelValues(template, "skipped").Inc()
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Error().Str("template", template).Str("panic", fmt.Sprint(r)).Msg("Notifier panicked")
				metrics.NotificationsTotal.WithLabelValues(template, "failed").Inc()
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()

		if err := d.notifier.Notify(ctx, template, recipient, vars); err != nil {
			log.Warn().Err(err).Str("template", template).Str("recipient", recipient).Msg("Notification failed")
			metrics.NotificationsTotal.WithLabelValues(template, "failed").Inc()
			return
		}
		metrics.NotificationsTotal.WithLabelValues(template, "sent").Inc()
	}()
}

// Wait blocks until in-flight notifications finish.
func (d *NotificationDispatcher) Wait() {
	d.wg.Wait()
}

type pendingNotification struct {
	template  string
	recipient string
	vars      map[string]any
}

// outbox collects notifications during a transaction; flush after commit.
type outbox struct {
	items []pendingNotification
}

func (o *outbox) add(template, recipient string, vars map[string]any) {
	o.items = append(o.items, pendingNotification{template: template, recipient: recipient, vars: vars})
}

func (o *outbox) flush(d *NotificationDispatcher) {
	for _, n := range o.items {
		d.Dispatch(n.template, n.recipient, n.vars)
	}
	o.items = nil
}

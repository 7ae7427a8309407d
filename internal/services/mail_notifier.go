package services

import (
	"context"
	"fmt"
)

type mailVars map[string]any

func (v mailVars) str(key string) string {
	if x, ok := v[key]; ok && x != nil {
		return fmt.Sprint(x)
	}
	return ""
}

// details keeps only the labelled values that are present.
func (v mailVars) details(pairs ...string) []MailDetail {
	var out []MailDetail
	for i := 0; i+1 < len(pairs); i += 2 {
		if val := v.str(pairs[i+1]); val != "" {
			out = append(out, MailDetail{Label: pairs[i], Value: val})
		}
	}
	return out
}

var mailTemplates = map[string]func(v mailVars) MailMessage{
	TemplateSubscriptionNewAccount: func(v mailVars) MailMessage {
		return MailMessage{
			Subject:    "Welcome! Your subscription is active",
			Title:      fmt.Sprintf("Welcome, %s", v.str("name")),
			Intro:      "Your payment went through and your workspace is ready. Set a password to sign in.",
			Details:    v.details("Plan", "plan_name", "Amount", "amount", "Start date", "start_date", "Renews on", "renewal_date"),
			ButtonURL:  v.str("setup_link"),
			ButtonText: "Create password",
			Outro:      billingPortalOutro(v),
		}
	},
	TemplateSubscriptionUpgrade: func(v mailVars) MailMessage {
		return MailMessage{
			Subject:    fmt.Sprintf("You're now on %s", v.str("plan_name")),
			Title:      fmt.Sprintf("Hi %s, your plan has been updated", v.str("name")),
			Intro:      "Your new plan limits apply right away.",
			Details:    v.details("Plan", "plan_name", "Amount", "amount", "Renews on", "renewal_date"),
			ButtonURL:  v.str("billing_portal_link"),
			ButtonText: "Manage billing",
		}
	},
	TemplateOneOffOrder: func(v mailVars) MailMessage {
		return MailMessage{
			Subject:    "Thanks for your order",
			Title:      fmt.Sprintf("Hi %s, we received your order", v.str("name")),
			Intro:      "Tell us about your business using the requirements form so we can get started.",
			Details:    v.details("Product", "product_type", "Amount", "amount", "Book a call", "calendly_link"),
			ButtonURL:  v.str("requirement_form_link"),
			ButtonText: "Open requirements form",
		}
	},
	TemplateSubscriptionCancelled: func(v mailVars) MailMessage {
		return MailMessage{
			Subject:    "Your subscription will be cancelled",
			Title:      fmt.Sprintf("Hi %s, your cancellation is scheduled", v.str("name")),
			Intro:      "Your subscription stays active until the end of the current billing period.",
			Details:    v.details("Plan", "plan_name", "Access until", "access_end_date"),
			ButtonURL:  v.str("billing_portal_link"),
			ButtonText: "Keep my subscription",
		}
	},
	TemplateDiscardCancelSubscription: func(v mailVars) MailMessage {
		return MailMessage{
			Subject: "Your subscription will continue",
			Title:   fmt.Sprintf("Hi %s, your cancellation was withdrawn", v.str("name")),
			Intro:   "Your subscription will renew as usual.",
			Details: v.details("Plan", "plan_name", "Renews on", "renewal_date"),
		}
	},
	TemplatePaymentConvertedToCredit: func(v mailVars) MailMessage {
		return MailMessage{
			Subject: "Your payment was converted to account credit",
			Title:   fmt.Sprintf("Hi %s", v.str("name")),
			Intro:   "We could not attach your last payment to an active subscription, so it was added to your account as credit.",
			Details: v.details("Credit", "credit_amount"),
			Outro:   fmt.Sprintf("Questions? Contact us at %s.", v.str("support_email")),
		}
	},
	TemplateSubscriptionPaymentFailed: func(v mailVars) MailMessage {
		return MailMessage{
			Subject:    "Action required: payment failed",
			Title:      fmt.Sprintf("Hi %s, we couldn't process your payment", v.str("name")),
			Intro:      fmt.Sprintf("Please update your payment method within %s day(s) to keep access.", v.str("grace_days")),
			Details:    v.details("Plan", "plan_name", "Reason", "failure_reason", "Next retry", "next_retry_date", "Access suspended on", "suspension_date"),
			ButtonURL:  v.str("billing_portal_link"),
			ButtonText: "Update payment method",
		}
	},
	TemplateFileSharedInvitation: func(v mailVars) MailMessage {
		return MailMessage{
			Subject:    fmt.Sprintf("%s shared \"%s\" with you", v.str("inviter_name"), v.str("file_name")),
			Title:      "You've been invited to collaborate",
			Intro:      fmt.Sprintf("%s invited you to %s \"%s\".", v.str("inviter_name"), v.str("permission"), v.str("file_name")),
			ButtonURL:  v.str("accept_link"),
			ButtonText: "Accept invitation",
			Outro:      fmt.Sprintf("Not interested? Decline here: %s", v.str("decline_link")),
		}
	},
}

func billingPortalOutro(v mailVars) string {
	if link := v.str("billing_portal_link"); link != "" {
		return "Manage your subscription any time: " + link
	}
	return ""
}

type mailNotifier struct {
	mail IMailService
}

// NewMailNotifier renders notification templates as SMTP mail.
func NewMailNotifier(mail IMailService) Notifier {
	return &mailNotifier{mail: mail}
}

func (n *mailNotifier) Notify(ctx context.Context, template, recipient string, vars map[string]any) error {
	build, ok := mailTemplates[template]
	if !ok {
		return fmt.Errorf("unknown notification template %q", template)
	}
	msg := build(mailVars(vars))
	msg.To = recipient
	return n.mail.Send(ctx, msg)
}

// Package notify reports failed runs by email.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"signin-token-sync/internal/models"

	"github.com/resend/resend-go/v2"
)

// Notifier is told about every failed run
type Notifier interface {
	Notify(ctx context.Context, r models.Result) error
}

// Noop discards notifications
type Noop struct{}

func (Noop) Notify(context.Context, models.Result) error { return nil }

// New returns a Resend notifier when an API key and recipient are configured, Noop otherwise
func New(cfg models.NotifyConfig) Notifier {
	if cfg.ResendAPIKey == "" || cfg.To == "" {
		return Noop{}
	}
	return NewResend(resend.NewClient(cfg.ResendAPIKey), cfg.From, cfg.To)
}

// Resend sends a plain-text failure report through the Resend API
type Resend struct {
	client *resend.Client
	from   string
	to     []string
}

// NewResend creates a notifier sending from from to the comma separated recipients in to
func NewResend(client *resend.Client, from, to string) *Resend {
	if from == "" {
		from = "signin-token-sync <onboarding@resend.dev>"
	}
	var recipients []string
	for _, addr := range strings.Split(to, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			recipients = append(recipients, addr)
		}
	}
	return &Resend{client: client, from: from, to: recipients}
}

func (n *Resend) Notify(ctx context.Context, r models.Result) error {
	if r.Succeeded() {
		return nil
	}

	_, err := n.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    n.from,
		To:      n.to,
		Subject: fmt.Sprintf("Session token sync failed: %s", r.Reason),
		Text:    body(r),
	})
	if err != nil {
		return fmt.Errorf("send failure notification: %w", err)
	}
	return nil
}

func body(r models.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run:       %s\n", r.RunID)
	fmt.Fprintf(&b, "Started:   %s\n", r.StartedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Duration:  %s\n", r.Duration().Round(time.Second))
	fmt.Fprintf(&b, "Reason:    %s\n", r.Reason)
	fmt.Fprintf(&b, "Signed in: %t\n", r.SignedIn)
	fmt.Fprintf(&b, "Forwarded: %t\n", r.Forwarded)
	fmt.Fprintf(&b, "\n%s\n", r.Detail)
	return b.String()
}

package mailbox

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"signin-token-sync/internal/logging"
	"signin-token-sync/internal/mailparse"
	"signin-token-sync/internal/models"
	"signin-token-sync/internal/retry"

	"github.com/sirupsen/logrus"
)

// Poller looks for a fresh verification code, opening one mailbox session per call
type Poller struct {
	open Opener
	cfg  models.MailConfig
	now  func() time.Time
}

// NewPoller creates a Poller with the window, buffer, interval and attempt limits from cfg
func NewPoller(open Opener, cfg models.MailConfig) *Poller {
	return &Poller{open: open, cfg: cfg, now: time.Now}
}

// Poll returns the first 6-digit code found in a fresh matching email.
// Emails received before max(now-window, notBefore-buffer) are ignored.
func (p *Poller) Poll(ctx context.Context, notBefore time.Time) (string, error) {
	log := logging.Log.WithField("component", "mail_poller")

	mb, err := p.open(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: open mailbox: %w", models.ErrCodeTimeout, err)
	}
	defer func() {
		if err := mb.Close(); err != nil {
			log.WithError(err).Warn("Failed to close mailbox")
		}
	}()

	policy := retry.Policy{Attempts: p.cfg.MaxAttempts, Interval: p.cfg.Interval}
	email, attempt, err := retry.Poll(ctx, policy, func(ctx context.Context, attempt int) (*models.Email, bool, error) {
		cutoff := p.cutoff(notBefore)
		emails, err := mb.Recent(ctx, cutoff, p.cfg.MaxMessages)
		if err != nil {
			if ctx.Err() != nil {
				return nil, false, ctx.Err()
			}
			log.WithError(err).WithField("attempt", attempt).Warn("Mailbox read failed")
			return nil, false, nil
		}

		if found := p.pick(emails, cutoff, log); found != nil {
			return found, true, nil
		}

		log.WithFields(logrus.Fields{
			"attempt":  attempt,
			"messages": len(emails),
		}).Debug("No verification code yet")
		return nil, false, nil
	})

	switch {
	case errors.Is(err, retry.ErrExhausted):
		return "", fmt.Errorf("%w: no code after %d attempts", models.ErrCodeTimeout, attempt)
	case err != nil:
		return "", fmt.Errorf("%w: %w", models.ErrCodeTimeout, err)
	}

	code, _ := mailparse.CodeFromEmail(email)
	log.WithFields(logrus.Fields{
		"trace_id": email.TraceID,
		"attempt":  attempt,
		"from":     email.From,
	}).Info("Verification code received")

	if c, ok := mb.(Consumer); ok {
		if err := c.Consume(ctx, email); err != nil {
			log.WithError(err).WithField("trace_id", email.TraceID).Warn("Failed to mark verification email as read")
		}
	}

	return code, nil
}

func (p *Poller) cutoff(notBefore time.Time) time.Time {
	cutoff := p.now().Add(-p.cfg.Window)
	if !notBefore.IsZero() {
		if floor := notBefore.Add(-p.cfg.Buffer); floor.After(cutoff) {
			cutoff = floor
		}
	}
	return cutoff
}

func (p *Poller) pick(emails []*models.Email, cutoff time.Time, log *logrus.Entry) *models.Email {
	sorted := make([]*models.Email, len(emails))
	copy(sorted, emails)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ReceivedAt.After(sorted[j].ReceivedAt)
	})

	for _, email := range sorted {
		entry := log.WithField("trace_id", email.TraceID)

		if !mailparse.IsFresh(email, cutoff) {
			entry.WithField("received_at", email.ReceivedAt).Debug("Skipping stale email")
			continue
		}
		if !p.matches(email) {
			entry.Debug("Skipping email not matching filters")
			continue
		}
		if _, ok := mailparse.CodeFromEmail(email); ok {
			return email
		}
	}
	return nil
}

func (p *Poller) matches(email *models.Email) bool {
	if f := p.cfg.FromFilter; f != "" && !strings.Contains(strings.ToLower(email.From), strings.ToLower(f)) {
		return false
	}
	if f := p.cfg.SubjectFilter; f != "" && !strings.Contains(strings.ToLower(email.Subject), strings.ToLower(f)) {
		return false
	}
	return true
}

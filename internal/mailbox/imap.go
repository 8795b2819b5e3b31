package mailbox

import (
	"context"
	"fmt"
	"sort"
	"time"

	imapclient "signin-token-sync/internal/imap"
	"signin-token-sync/internal/logging"
	"signin-token-sync/internal/mailparse"
	"signin-token-sync/internal/models"
)

// IMAPMailbox reads verification emails over an IMAP session
type IMAPMailbox struct {
	client imapclient.Client
}

// OpenIMAP returns an Opener that connects, logs in and selects the configured mailbox
func OpenIMAP(cfg models.MailConfig, newClient func() imapclient.Client) Opener {
	if newClient == nil {
		newClient = func() imapclient.Client { return imapclient.NewStandardClient() }
	}

	return func(ctx context.Context) (Mailbox, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		c := newClient()
		if err := c.Connect(cfg.Imap); err != nil {
			return nil, err
		}
		if err := c.Login(cfg.Login, cfg.Password); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("IMAP login error: %w", err)
		}
		if err := c.SelectMailbox(cfg.MailBox); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("IMAP select %s: %w", cfg.MailBox, err)
		}

		return &IMAPMailbox{client: c}, nil
	}
}

// Recent fetches the newest messages first and stops at the first one received before since.
// UIDs grow with arrival, so everything after it is older too.
func (m *IMAPMailbox) Recent(ctx context.Context, since time.Time, limit int) ([]*models.Email, error) {
	if err := m.client.Refresh(); err != nil {
		return nil, err
	}

	uids, err := m.client.ListSince(since)
	if err != nil {
		return nil, err
	}

	sort.Slice(uids, func(i, j int) bool { return uids[i] > uids[j] })

	var emails []*models.Email
	for _, uid := range uids {
		if limit > 0 && len(emails) >= limit {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		msg, err := m.client.FetchMessage(uid)
		if err != nil {
			logging.Log.WithError(err).WithField("uid", uid).Warn("Failed to fetch message")
			continue
		}

		// day-granular SEARCH SINCE also returns older mail from the same day
		if msg.InternalDate.Before(since) {
			break
		}

		email, err := mailparse.Parse(msg)
		if err != nil {
			logging.Log.WithError(err).WithField("uid", uid).Warn("Failed to parse message")
			continue
		}
		emails = append(emails, email)
	}

	return emails, nil
}

// Consume marks the message holding the used code as seen
func (m *IMAPMailbox) Consume(_ context.Context, email *models.Email) error {
	return m.client.MarkSeen(email.UID)
}

// Close logs out of the IMAP session
func (m *IMAPMailbox) Close() error {
	return m.client.Close()
}

package mailbox

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"signin-token-sync/internal/logging"
	"signin-token-sync/internal/mailparse"
	"signin-token-sync/internal/models"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// GmailMailbox reads verification emails through the Gmail API
type GmailMailbox struct {
	srv  *gmail.Service
	user string
}

// OpenGmail returns an Opener that exchanges the refresh token for an access token on each run
func OpenGmail(cfg models.GmailConfig) Opener {
	oauthConfig := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{gmail.GmailReadonlyScope},
	}

	return func(ctx context.Context) (Mailbox, error) {
		httpClient := oauthConfig.Client(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})

		opts := []option.ClientOption{option.WithHTTPClient(httpClient)}
		if cfg.Endpoint != "" {
			opts = append(opts, option.WithEndpoint(cfg.Endpoint))
		}
		return NewGmailMailbox(ctx, cfg.User, opts...)
	}
}

// NewGmailMailbox creates a Gmail mailbox for user ("me" for the token owner)
func NewGmailMailbox(ctx context.Context, user string, opts ...option.ClientOption) (*GmailMailbox, error) {
	srv, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %w", err)
	}
	if user == "" {
		user = "me"
	}
	return &GmailMailbox{srv: srv, user: user}, nil
}

// Recent lists messages newer than since and fetches each one in raw RFC 5322 form
func (m *GmailMailbox) Recent(ctx context.Context, since time.Time, limit int) ([]*models.Email, error) {
	call := m.srv.Users.Messages.List(m.user).
		Q(fmt.Sprintf("after:%d", since.Unix())).
		Context(ctx)
	if limit > 0 {
		call = call.MaxResults(int64(limit))
	}

	list, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("gmail list: %w", err)
	}

	var emails []*models.Email
	for _, ref := range list.Messages {
		msg, err := m.srv.Users.Messages.Get(m.user, ref.Id).Format("raw").Context(ctx).Do()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logging.Log.WithError(err).WithField("message_id", ref.Id).Warn("Unable to retrieve message")
			continue
		}

		raw, err := decodeRaw(msg.Raw)
		if err != nil {
			logging.Log.WithError(err).WithField("message_id", ref.Id).Warn("Unable to decode message")
			continue
		}

		email, err := mailparse.ParseReader(bytes.NewReader(raw))
		if err != nil {
			logging.Log.WithError(err).WithField("message_id", ref.Id).Warn("Unable to parse message")
			continue
		}
		if msg.InternalDate > 0 {
			email.ReceivedAt = time.UnixMilli(msg.InternalDate)
		}
		emails = append(emails, email)
	}

	return emails, nil
}

// Close is a no-op, the API client holds no session
func (m *GmailMailbox) Close() error {
	return nil
}

func decodeRaw(s string) ([]byte, error) {
	if b, err := base64.URLEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawURLEncoding.DecodeString(s)
}

// Package mailbox polls a mailbox for the verification email sent during sign-in.
package mailbox

//go:generate mockgen -source=mailbox.go -destination=mocks/mailbox_mock.go -package=mock_mailbox

import (
	"context"
	"time"

	"signin-token-sync/internal/models"
)

// Mailbox reads recent messages from one mailbox session
type Mailbox interface {
	// Recent returns up to limit messages received at or after since, most recent first.
	Recent(ctx context.Context, since time.Time, limit int) ([]*models.Email, error)
	Close() error
}

// Consumer is implemented by mailboxes that can flag a message once its code was used
type Consumer interface {
	Consume(ctx context.Context, email *models.Email) error
}

// Opener acquires a fresh mailbox session for one run
type Opener func(ctx context.Context) (Mailbox, error)

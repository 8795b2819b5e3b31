package mailbox

import (
	"context"
	"errors"
	"testing"
	"time"

	mock_mailbox "signin-token-sync/internal/mailbox/mocks"
	"signin-token-sync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testMailConfig() models.MailConfig {
	return models.MailConfig{
		Window:      5 * time.Minute,
		Buffer:      30 * time.Second,
		Interval:    time.Millisecond,
		MaxAttempts: 4,
		MaxMessages: 5,
	}
}

func newTestPoller(mb Mailbox, cfg models.MailConfig) *Poller {
	p := NewPoller(func(context.Context) (Mailbox, error) { return mb, nil }, cfg)
	p.now = func() time.Time { return testNow }
	return p
}

func codeEmail(subject string, age time.Duration) *models.Email {
	return &models.Email{
		From:       "no-reply@sarvinarck.com",
		Subject:    subject,
		ReceivedAt: testNow.Add(-age),
		TraceID:    "trace-" + subject,
	}
}

func TestPollFindsCodeOnLaterAttempt(t *testing.T) {
	ctrl := gomock.NewController(t)
	mb := mock_mailbox.NewMockMailbox(ctrl)

	gomock.InOrder(
		mb.EXPECT().Recent(gomock.Any(), gomock.Any(), 5).Return(nil, nil).Times(2),
		mb.EXPECT().Recent(gomock.Any(), gomock.Any(), 5).
			Return([]*models.Email{codeEmail("Verification Code: 482913", 10*time.Second)}, nil),
	)
	mb.EXPECT().Close().Return(nil).Times(1)

	code, err := newTestPoller(mb, testMailConfig()).Poll(context.Background(), testNow.Add(-20*time.Second))

	require.NoError(t, err)
	assert.Equal(t, "482913", code)
}

func TestPollExhaustsAttempts(t *testing.T) {
	ctrl := gomock.NewController(t)
	mb := mock_mailbox.NewMockMailbox(ctrl)

	mb.EXPECT().Recent(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil).Times(4)
	mb.EXPECT().Close().Return(nil)

	_, err := newTestPoller(mb, testMailConfig()).Poll(context.Background(), testNow)

	require.ErrorIs(t, err, models.ErrCodeTimeout)
	assert.Contains(t, err.Error(), "4 attempts")
}

func TestPollIgnoresStaleEmail(t *testing.T) {
	ctrl := gomock.NewController(t)
	mb := mock_mailbox.NewMockMailbox(ctrl)

	stale := codeEmail("Verification Code: 111111", 10*time.Minute)
	undated := &models.Email{Subject: "Verification Code: 222222"}

	mb.EXPECT().Recent(gomock.Any(), gomock.Any(), gomock.Any()).
		Return([]*models.Email{stale, undated}, nil).Times(2)
	mb.EXPECT().Close().Return(nil)

	cfg := testMailConfig()
	cfg.MaxAttempts = 2
	_, err := newTestPoller(mb, cfg).Poll(context.Background(), time.Time{})

	require.ErrorIs(t, err, models.ErrCodeTimeout)
}

func TestPollCutoffUsesRunStart(t *testing.T) {
	ctrl := gomock.NewController(t)
	mb := mock_mailbox.NewMockMailbox(ctrl)

	notBefore := testNow.Add(-30 * time.Second)
	// received inside the 5m window but before the run started minus buffer
	leftover := codeEmail("Verification Code: 333333", 2*time.Minute)

	mb.EXPECT().Recent(gomock.Any(), notBefore.Add(-30*time.Second), gomock.Any()).
		Return([]*models.Email{leftover}, nil).Times(1)
	mb.EXPECT().Close().Return(nil)

	cfg := testMailConfig()
	cfg.MaxAttempts = 1
	_, err := newTestPoller(mb, cfg).Poll(context.Background(), notBefore)

	require.ErrorIs(t, err, models.ErrCodeTimeout)
}

func TestPollReadErrorCountsAsMiss(t *testing.T) {
	ctrl := gomock.NewController(t)
	mb := mock_mailbox.NewMockMailbox(ctrl)

	gomock.InOrder(
		mb.EXPECT().Recent(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, errors.New("connection reset")),
		mb.EXPECT().Recent(gomock.Any(), gomock.Any(), gomock.Any()).
			Return([]*models.Email{codeEmail("Verification Code: 482913", time.Second)}, nil),
	)
	mb.EXPECT().Close().Return(nil)

	code, err := newTestPoller(mb, testMailConfig()).Poll(context.Background(), testNow)

	require.NoError(t, err)
	assert.Equal(t, "482913", code)
}

func TestPollPicksNewestMatchingEmail(t *testing.T) {
	ctrl := gomock.NewController(t)
	mb := mock_mailbox.NewMockMailbox(ctrl)

	older := codeEmail("Verification Code: 111111", 40*time.Second)
	newer := codeEmail("Verification Code: 222222", 5*time.Second)
	spam := codeEmail("Lottery 999999", time.Second)
	spam.From = "promo@example.com"

	mb.EXPECT().Recent(gomock.Any(), gomock.Any(), gomock.Any()).
		Return([]*models.Email{older, spam, newer}, nil)
	mb.EXPECT().Close().Return(nil)

	cfg := testMailConfig()
	cfg.FromFilter = "SARVINARCK"
	cfg.SubjectFilter = "verification"
	code, err := newTestPoller(mb, cfg).Poll(context.Background(), time.Time{})

	require.NoError(t, err)
	assert.Equal(t, "222222", code)
}

func TestPollOpenFailure(t *testing.T) {
	p := NewPoller(func(context.Context) (Mailbox, error) {
		return nil, errors.New("auth failed")
	}, testMailConfig())

	_, err := p.Poll(context.Background(), testNow)

	require.ErrorIs(t, err, models.ErrCodeTimeout)
	assert.Contains(t, err.Error(), "auth failed")
}

func TestPollCanceled(t *testing.T) {
	ctrl := gomock.NewController(t)
	mb := mock_mailbox.NewMockMailbox(ctrl)
	mb.EXPECT().Close().Return(nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestPoller(mb, testMailConfig()).Poll(ctx, testNow)

	require.ErrorIs(t, err, models.ErrCodeTimeout)
	require.ErrorIs(t, err, context.Canceled)
}

type consumingMailbox struct {
	*mock_mailbox.MockMailbox
	*mock_mailbox.MockConsumer
}

func TestPollConsumesUsedEmail(t *testing.T) {
	ctrl := gomock.NewController(t)
	mb := consumingMailbox{
		MockMailbox:  mock_mailbox.NewMockMailbox(ctrl),
		MockConsumer: mock_mailbox.NewMockConsumer(ctrl),
	}

	email := codeEmail("Verification Code: 482913", time.Second)
	mb.MockMailbox.EXPECT().Recent(gomock.Any(), gomock.Any(), gomock.Any()).Return([]*models.Email{email}, nil)
	mb.MockConsumer.EXPECT().Consume(gomock.Any(), email).Return(errors.New("read-only"))
	mb.MockMailbox.EXPECT().Close().Return(nil)

	code, err := newTestPoller(mb, testMailConfig()).Poll(context.Background(), testNow)

	require.NoError(t, err)
	assert.Equal(t, "482913", code)
}

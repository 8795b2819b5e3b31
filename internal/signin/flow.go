// Package signin runs the interactive sign-in with an emailed two-factor code.
package signin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"signin-token-sync/internal/browser"
	"signin-token-sync/internal/logging"
	"signin-token-sync/internal/models"
	"signin-token-sync/internal/retry"
	"signin-token-sync/internal/token"

	"github.com/sirupsen/logrus"
)

// CodeSource supplies the verification code sent after the credentials were accepted
type CodeSource interface {
	Poll(ctx context.Context, notBefore time.Time) (string, error)
}

// Flow walks Idle → Navigated → CredentialsSubmitted → AwaitingCode → CodeSubmitted → Authenticated → Success.
// Any error moves it to Failed. Nothing is retried within a run.
type Flow struct {
	driver browser.Driver
	codes  CodeSource
	tokens token.Extractor
	site   models.SiteConfig
	log    *logrus.Entry
	now    func() time.Time

	state State
}

// NewFlow creates a flow in the Idle state
func NewFlow(d browser.Driver, codes CodeSource, tokens token.Extractor, site models.SiteConfig, log *logrus.Entry) *Flow {
	if log == nil {
		log = logrus.NewEntry(logging.Log)
	}
	return &Flow{
		driver: d,
		codes:  codes,
		tokens: tokens,
		site:   site,
		log:    log,
		now:    time.Now,
		state:  Idle,
	}
}

// State returns the current state
func (f *Flow) State() State {
	return f.state
}

// Run signs in and returns the session token. On failure the error is a *StepError.
func (f *Flow) Run(ctx context.Context) (string, error) {
	if f.state != Idle {
		return "", &StepError{From: f.state, Reason: models.ErrNavigation, Err: errors.New("flow already ran")}
	}
	started := f.now()
	creds := f.site.Credentials

	f.tokens.Prepare(f.driver)

	err := f.step(ctx, f.site.NavigationTimeout, func(ctx context.Context) error {
		return f.driver.Navigate(ctx, f.site.SignInURL)
	})
	if err != nil {
		return "", f.fail(models.ErrNavigation, fmt.Errorf("load %s: %w", f.site.SignInURL, err))
	}
	if err := retry.Sleep(ctx, f.site.SettleDelay); err != nil {
		return "", f.fail(models.ErrNavigation, err)
	}
	f.enter(Navigated)

	err = f.step(ctx, f.site.NavigationTimeout, func(ctx context.Context) error {
		if err := f.driver.WaitVisible(ctx, f.site.LoginSelector); err != nil {
			return fmt.Errorf("login field: %w", err)
		}
		if err := f.driver.WaitVisible(ctx, f.site.PasswordSelector); err != nil {
			return fmt.Errorf("password field: %w", err)
		}
		if err := f.driver.Type(ctx, f.site.LoginSelector, creds.LoginID, f.site.KeystrokeDelay); err != nil {
			return fmt.Errorf("type login: %w", err)
		}
		if err := f.driver.Type(ctx, f.site.PasswordSelector, creds.Password, f.site.KeystrokeDelay); err != nil {
			return fmt.Errorf("type password: %w", err)
		}
		return f.driver.Submit(ctx)
	})
	if err != nil {
		return "", f.fail(models.ErrNavigation, err)
	}
	f.enter(CredentialsSubmitted)

	err = f.step(ctx, f.site.CodePromptTimeout, func(ctx context.Context) error {
		return f.driver.WaitVisible(ctx, f.site.CodeSelector)
	})
	if err != nil {
		return "", f.fail(models.ErrCredentialRejected, fmt.Errorf("2FA prompt not shown within %s: %w", f.site.CodePromptTimeout, err))
	}
	f.enter(AwaitingCode)

	code, err := f.codes.Poll(ctx, started)
	if err != nil {
		return "", f.fail(models.ErrCodeTimeout, err)
	}

	err = f.step(ctx, f.site.NavigationTimeout, func(ctx context.Context) error {
		if err := f.driver.Type(ctx, f.site.CodeSelector, code, f.site.CodeKeystrokeDelay); err != nil {
			return fmt.Errorf("type code: %w", err)
		}
		return f.driver.Submit(ctx)
	})
	if err != nil {
		return "", f.fail(models.ErrNavigation, err)
	}
	f.enter(CodeSubmitted)

	var landed string
	err = f.step(ctx, f.site.AuthTimeout, func(ctx context.Context) error {
		var err error
		landed, err = browser.WaitURLExcludes(ctx, f.driver, f.site.SignInPathFragment)
		return err
	})
	if err != nil {
		return "", f.fail(models.ErrNavigation, fmt.Errorf("still on sign-in page: %w", err))
	}
	f.log.WithField("url", landed).Debug("Left sign-in page")
	f.enter(Authenticated)

	value, err := f.tokens.Extract(ctx, f.driver)
	if err != nil {
		return "", f.fail(models.ErrTokenNotFound, err)
	}
	f.enter(Success)

	return value, nil
}

func (f *Flow) step(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return fn(ctx)
}

func (f *Flow) enter(s State) {
	f.log.WithField("state", s.String()).WithField("from", f.state.String()).Info("Sign-in state changed")
	f.state = s
}

func (f *Flow) fail(reason, err error) error {
	stepErr := &StepError{From: f.state, Reason: reason, Err: err}
	f.log.WithField("state", Failed.String()).WithField("from", f.state.String()).WithError(err).Warn("Sign-in failed")
	f.state = Failed
	return stepErr
}

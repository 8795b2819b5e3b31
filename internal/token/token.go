// Package token reads the session token from the browser once sign-in completed.
package token

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"signin-token-sync/internal/browser"
	"signin-token-sync/internal/logging"
	"signin-token-sync/internal/models"
	"signin-token-sync/internal/retry"

	"github.com/sirupsen/logrus"
	"github.com/ysmood/gson"
)

// Extractor captures the session token from a signed-in browser
type Extractor interface {
	// Prepare runs before the first navigation so listeners see every response.
	Prepare(d browser.Driver)
	Extract(ctx context.Context, d browser.Driver) (string, error)
}

// New returns the extractor for the configured strategy
func New(cfg models.TokenConfig) Extractor {
	if cfg.Strategy == "network" {
		return &NetworkExtractor{
			URLContains: cfg.ResponseURLContains,
			Field:       cfg.ResponseField,
			Interval:    cfg.NetworkInterval,
			Timeout:     cfg.NetworkTimeout,
		}
	}
	return &CookieExtractor{
		Name:     cfg.CookieName,
		Interval: cfg.CookieInterval,
		Attempts: cfg.CookieAttempts,
	}
}

// CookieExtractor polls the cookie jar for a named cookie
type CookieExtractor struct {
	Name     string
	Interval time.Duration
	Attempts int
}

func (e *CookieExtractor) Prepare(browser.Driver) {}

// Extract returns the first non-empty value of the cookie, or ErrTokenNotFound once attempts run out
func (e *CookieExtractor) Extract(ctx context.Context, d browser.Driver) (string, error) {
	log := logging.Log.WithField("cookie", e.Name)

	policy := retry.Policy{Attempts: e.Attempts, Interval: e.Interval}
	value, attempt, err := retry.Poll(ctx, policy, func(ctx context.Context, attempt int) (string, bool, error) {
		value, found, err := d.Cookie(ctx, e.Name)
		if err != nil {
			if ctx.Err() != nil {
				return "", false, ctx.Err()
			}
			log.WithError(err).WithField("attempt", attempt).Warn("Failed to read cookies")
			return "", false, nil
		}
		return value, found && value != "", nil
	})
	if err != nil {
		if errors.Is(err, retry.ErrExhausted) {
			return "", fmt.Errorf("%w: cookie %s absent after %d attempts", models.ErrTokenNotFound, e.Name, attempt)
		}
		return "", fmt.Errorf("%w: %w", models.ErrTokenNotFound, err)
	}

	log.WithFields(logrus.Fields{"attempt": attempt, "token": logging.Mask(value)}).Info("Session token captured from cookie")
	return value, nil
}

// NetworkExtractor captures the token from the JSON body of a matching response
type NetworkExtractor struct {
	URLContains string
	// Field is a dotted path into the response body, e.g. "data.session.access_token".
	Field    string
	Interval time.Duration
	Timeout  time.Duration

	mu    sync.Mutex
	value string
}

// Prepare installs the response listener on the driver
func (e *NetworkExtractor) Prepare(d browser.Driver) {
	d.OnResponse(e.URLContains, e.capture)
}

func (e *NetworkExtractor) capture(url string, body []byte) {
	v, ok := gson.New(body).Gets(gson.Path(e.Field)...)
	if !ok {
		return
	}
	s, ok := v.Val().(string)
	if !ok || s == "" {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.value == "" {
		e.value = s
		logging.Log.WithFields(logrus.Fields{"url": url, "token": logging.Mask(s)}).Debug("Session token seen in response")
	}
}

func (e *NetworkExtractor) captured() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.value
}

// Extract waits until a matching response carried the token
func (e *NetworkExtractor) Extract(ctx context.Context, _ browser.Driver) (string, error) {
	policy := retry.Policy{Interval: e.Interval, Timeout: e.Timeout}
	value, _, err := retry.Poll(ctx, policy, func(context.Context, int) (string, bool, error) {
		v := e.captured()
		return v, v != "", nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: no response matching %q carried %s: %w", models.ErrTokenNotFound, e.URLContains, e.Field, err)
	}

	logging.Log.WithField("token", logging.Mask(value)).Info("Session token captured from network response")
	return value, nil
}
